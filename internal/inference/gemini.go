package inference

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// taskTypes maps embed modes onto Gemini's asymmetric retrieval task types.
var taskTypes = map[EmbedMode]string{
	EmbedQuery:   "RETRIEVAL_QUERY",
	EmbedArticle: "RETRIEVAL_DOCUMENT",
}

// Gemini backs embedding and generation with the Gemini API instead of the
// model server. Reranking has no Gemini equivalent and stays on the model
// server regardless of provider.
//
// Gemini is safe for concurrent use by multiple goroutines.
type Gemini struct {
	client        *genai.Client
	model         string
	embedderModel string
	outputDim     int32
	logger        *slog.Logger
}

// NewGemini creates a Gemini backend. The API key comes from the GEMINI_API_KEY
// environment variable when apiKey is empty.
func NewGemini(ctx context.Context, apiKey, model, embedderModel string, outputDim int, logger *slog.Logger) (*Gemini, error) {
	if model == "" || embedderModel == "" {
		return nil, fmt.Errorf("model and embedder model are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:        client,
		model:         model,
		embedderModel: embedderModel,
		outputDim:     int32(outputDim), // #nosec G115 -- embedding widths are small constants
		logger:        logger,
	}, nil
}

// Embed encodes texts with the retrieval task type matching mode.
func (g *Gemini) Embed(ctx context.Context, mode EmbedMode, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}
	taskType, ok := taskTypes[mode]
	if !ok {
		return nil, fmt.Errorf("unknown embed mode %q", mode)
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dim := g.outputDim
	resp, err := g.client.Models.EmbedContent(ctx, g.embedderModel, contents, &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini embed returned empty vector at index %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// EmbedQueryText embeds a single search query in query mode.
func (g *Gemini) EmbedQueryText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.Embed(ctx, EmbedQuery, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Generate runs chat completion over the given messages. A leading system
// message becomes the Gemini system instruction.
func (g *Gemini) Generate(ctx context.Context, messages []ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to generate from")
	}

	config := &genai.GenerateContentConfig{}
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			config.SystemInstruction = genai.NewContentFromText(msg.Content, genai.RoleUser)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("no user messages to generate from")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini generate returned empty response")
	}
	return text, nil
}
