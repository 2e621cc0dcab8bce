package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/config"
)

const anthropicMaxTokens = 1024

// AnthropicClient is the Anthropic provider alternative.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicClient creates an Anthropic chat client.
func NewAnthropicClient(cfg *config.AnthropicConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: logger.Named("anthropic"),
	}, nil
}

// GenerateReply implements ChatClient. Anthropic carries the system
// prompt outside the message list.
func (c *AnthropicClient) GenerateReply(ctx context.Context, systemPrompt string, messages []ChatMessage, temperature float64) (string, error) {
	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		System:    systemPrompt,
		MaxTokens: anthropicMaxTokens,
		Messages:  make([]anthropic.Message, 0, len(messages)),
	}

	temp := float32(temperature)
	req.Temperature = &temp

	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			req.Messages = append(req.Messages, anthropic.NewAssistantTextMessage(m.Content))
		default:
			req.Messages = append(req.Messages, anthropic.NewUserTextMessage(m.Content))
		}
	}

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		c.logger.Error("Messages request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}

	text := resp.GetFirstContentText()
	if text == "" {
		return "", fmt.Errorf("no text content in response")
	}

	c.logger.Info("Chat completion",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

// Model implements ChatClient.
func (c *AnthropicClient) Model() string {
	return c.model
}

var _ ChatClient = (*AnthropicClient)(nil)
