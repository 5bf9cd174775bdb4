package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client talks to the model server over its JSON protocol. One process, three
// endpoints: /embed_text/, /generate_text/ and /rerank/.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a model server client. The HTTP transport reuses
// connections; callers bound individual requests with their context.
func NewClient(baseURL string, logger *slog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 30 * time.Second,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections releases pooled connections, for shutdown and tests.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

type embedRequest struct {
	InputType string   `json:"input_type"`
	Content   []string `json:"content"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type generateRequest struct {
	Messages []ChatMessage `json:"messages"`
}

type generateResponse struct {
	Messages []ChatMessage `json:"messages"`
}

type rerankRequest struct {
	Query  string   `json:"query"`
	Chunks []string `json:"chunks"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Embed encodes texts with the given side of the asymmetric embedding model.
// Retries once on transient failure.
func (c *Client) Embed(ctx context.Context, mode EmbedMode, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	var out embedResponse
	err := c.post(ctx, "/embed_text/", embedRequest{
		InputType: string(mode),
		Content:   texts,
	}, &out, 1)
	if err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed returned %d vectors for %d texts", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

// EmbedQueryText embeds a single search query in query mode.
func (c *Client) EmbedQueryText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, EmbedQuery, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Generate runs chat completion over the given messages and returns the
// model's reply. Generation is never retried; a duplicate completion costs
// more than a surfaced failure.
func (c *Client) Generate(ctx context.Context, messages []ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to generate from")
	}

	var out generateResponse
	if err := c.post(ctx, "/generate_text/", generateRequest{Messages: messages}, &out, 0); err != nil {
		return "", err
	}
	if len(out.Messages) == 0 {
		return "", fmt.Errorf("generate returned no messages")
	}

	last := out.Messages[len(out.Messages)-1]
	if last.Role != RoleAssistant {
		return "", fmt.Errorf("generate returned %q as final role, want %q", last.Role, RoleAssistant)
	}
	return last.Content, nil
}

// Rerank scores each chunk's relevance to the query with the cross-encoder.
// Scores come back in chunk order; higher means more relevant. Retries once
// on transient failure.
func (c *Client) Rerank(ctx context.Context, query string, chunks []string) ([]float64, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	var out rerankResponse
	err := c.post(ctx, "/rerank/", rerankRequest{Query: query, Chunks: chunks}, &out, 1)
	if err != nil {
		return nil, err
	}
	if len(out.Scores) != len(chunks) {
		return nil, fmt.Errorf("rerank returned %d scores for %d chunks", len(out.Scores), len(chunks))
	}
	return out.Scores, nil
}

// post sends one JSON request and decodes the response, retrying up to
// retries times on transport errors and 5xx responses. 4xx responses are
// caller bugs and never retried.
func (c *Client) post(ctx context.Context, path string, in, out any, retries int) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying model server call", "path", path, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
		}

		retryable, err := c.doOnce(ctx, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return lastErr
}

// doOnce performs a single request. The bool reports whether the failure is
// worth retrying.
func (c *Client) doOnce(ctx context.Context, path string, body []byte, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("calling model server %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("model server %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
		return resp.StatusCode >= 500, err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decoding model server response: %w", err)
	}
	return false, nil
}
