// Package llm provides chat-completion clients for the doctor persona
// and visit evaluation. Two providers are supported: GigaChat (via its
// OpenAI-compatible API) and Anthropic.
package llm

import (
	"context"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation sent to the provider.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatClient defines the interface for chat-completion providers.
// Use this interface for dependency injection to enable mocking in tests.
type ChatClient interface {
	// GenerateReply generates a completion for the conversation. The
	// system prompt sets the persona; messages carry the dialogue so far.
	GenerateReply(ctx context.Context, systemPrompt string, messages []ChatMessage, temperature float64) (string, error)

	// Model returns the configured model name.
	Model() string
}
