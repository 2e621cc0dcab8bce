package llm

import (
	"context"
)

// MockChatClient is a configurable mock for testing chat functionality.
// Set the function fields to control behavior in tests.
type MockChatClient struct {
	// GenerateReplyFunc is called when GenerateReply is invoked.
	// If nil, returns an empty string and nil error.
	GenerateReplyFunc func(ctx context.Context, systemPrompt string, messages []ChatMessage, temperature float64) (string, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Call tracking for verification
	GenerateReplyCalls []GenerateReplyCall
}

// GenerateReplyCall records the arguments of one GenerateReply call.
type GenerateReplyCall struct {
	SystemPrompt string
	Messages     []ChatMessage
	Temperature  float64
}

// NewMockChatClient creates a new mock with sensible defaults.
func NewMockChatClient() *MockChatClient {
	return &MockChatClient{ModelName: "mock-model"}
}

// GenerateReply implements ChatClient.
func (m *MockChatClient) GenerateReply(ctx context.Context, systemPrompt string, messages []ChatMessage, temperature float64) (string, error) {
	m.GenerateReplyCalls = append(m.GenerateReplyCalls, GenerateReplyCall{
		SystemPrompt: systemPrompt,
		Messages:     messages,
		Temperature:  temperature,
	})
	if m.GenerateReplyFunc != nil {
		return m.GenerateReplyFunc(ctx, systemPrompt, messages, temperature)
	}
	return "", nil
}

// Model implements ChatClient.
func (m *MockChatClient) Model() string {
	return m.ModelName
}

var _ ChatClient = (*MockChatClient)(nil)
