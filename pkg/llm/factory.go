package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/config"
)

// NewChatClient creates the chat client selected by the AI configuration.
func NewChatClient(cfg *config.AIConfig, logger *zap.Logger) (ChatClient, error) {
	switch cfg.Provider {
	case "gigachat":
		return NewGigaChatClient(&cfg.GigaChat, logger)
	case "anthropic":
		return NewAnthropicClient(&cfg.Anthropic, logger)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
