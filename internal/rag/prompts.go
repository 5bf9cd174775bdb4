package rag

import (
	"strings"

	"github.com/medchat/medchat/internal/inference"
)

// rewriteInstruction turns the latest user message plus chat history into a
// standalone search query. The model tends to echo a QUESTION: label, which
// stripQuestionLabel removes afterwards.
const rewriteInstruction = `You are a search assistant for a medical literature database. ` +
	`Rewrite the user's latest message as a single standalone search question, ` +
	`resolving any references to the earlier conversation. ` +
	`Respond with only the rewritten question.`

// answerInstruction grounds the final answer in the retrieved chunks.
const answerInstruction = `You are an expert medical assistant. ` +
	`Answer the user's question using the reference excerpts below. ` +
	`If the references do not cover the question, say so before answering ` +
	`from general medical knowledge.`

const questionLabel = "QUESTION:"

// stripQuestionLabel removes a leading QUESTION: label, case-insensitively,
// and trims surrounding whitespace. The label is prompt scaffolding, not part
// of the search query.
func stripQuestionLabel(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) >= len(questionLabel) &&
		strings.EqualFold(trimmed[:len(questionLabel)], questionLabel) {
		return strings.TrimSpace(trimmed[len(questionLabel):])
	}
	return trimmed
}

// rewritePrompt builds the chat prompt for the query rewrite step.
func rewritePrompt(query string, history []inference.ChatMessage) []inference.ChatMessage {
	messages := make([]inference.ChatMessage, 0, len(history)+2)
	messages = append(messages, inference.ChatMessage{
		Role:    inference.RoleSystem,
		Content: rewriteInstruction,
	})
	messages = append(messages, history...)
	messages = append(messages, inference.ChatMessage{
		Role:    inference.RoleUser,
		Content: query,
	})
	return messages
}

// answerPrompt builds the chat prompt for the final generation step.
// contextText holds the surviving chunk texts joined by blank lines, most
// relevant first; it may be empty when nothing passed the rerank threshold.
func answerPrompt(searchQuery, contextText string) []inference.ChatMessage {
	instruction := answerInstruction
	if contextText != "" {
		instruction += "\n\nREFERENCES:\n" + contextText
	} else {
		instruction += "\n\nNo reference excerpts were found for this question."
	}
	return []inference.ChatMessage{
		{Role: inference.RoleSystem, Content: instruction},
		{Role: inference.RoleUser, Content: searchQuery},
	}
}
