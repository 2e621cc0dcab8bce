package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/config"
	"github.com/medsim-inc/medsim-engine/pkg/retry"
)

// tokenRefreshMargin renews the access token this long before its actual
// expiry so in-flight requests never race token death.
const tokenRefreshMargin = 2 * time.Minute

// GigaChatClient talks to GigaChat through its OpenAI-compatible chat
// API. Access tokens are short-lived (about 30 minutes) and are obtained
// by exchanging the long-lived authorization key at the OAuth endpoint.
type GigaChatClient struct {
	cfg        *config.GigaChatConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	chat        *openai.Client
}

// NewGigaChatClient creates a GigaChat client. No network calls are made
// until the first request.
func NewGigaChatClient(cfg *config.GigaChatConfig, logger *zap.Logger) (*GigaChatClient, error) {
	if cfg.AuthorizationKey == "" {
		return nil, fmt.Errorf("gigachat authorization key is required")
	}

	return &GigaChatClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Named("gigachat"),
	}, nil
}

// oauthResponse is the token grant returned by the OAuth endpoint.
// expires_at is unix milliseconds.
type oauthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// chatClient returns an OpenAI client carrying a valid access token,
// refreshing the token first when needed.
func (c *GigaChatClient) chatClient(ctx context.Context) (*openai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chat != nil && time.Now().Before(c.expiresAt.Add(-tokenRefreshMargin)) {
		return c.chat, nil
	}

	if err := c.refreshTokenLocked(ctx); err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(c.accessToken)
	clientConfig.BaseURL = strings.TrimSuffix(c.cfg.APIURL, "/")
	c.chat = openai.NewClientWithConfig(clientConfig)

	return c.chat, nil
}

// refreshTokenLocked exchanges the authorization key for an access
// token, retrying transient failures. Callers must hold c.mu.
func (c *GigaChatClient) refreshTokenLocked(ctx context.Context) error {
	grant, err := retry.DoWithResult(ctx, nil, func() (oauthResponse, error) {
		return c.fetchToken(ctx)
	})
	if err != nil {
		return err
	}

	c.accessToken = grant.AccessToken
	c.expiresAt = time.UnixMilli(grant.ExpiresAt)
	c.chat = nil

	c.logger.Debug("Access token refreshed", zap.Time("expires_at", c.expiresAt))
	return nil
}

func (c *GigaChatClient) fetchToken(ctx context.Context) (oauthResponse, error) {
	var grant oauthResponse

	form := url.Values{"scope": {c.cfg.Scope}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return grant, fmt.Errorf("failed to build oauth request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+c.cfg.AuthorizationKey)
	req.Header.Set("RqUID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return grant, fmt.Errorf("oauth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return grant, fmt.Errorf("oauth request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return grant, fmt.Errorf("failed to decode oauth response: %w", err)
	}
	if grant.AccessToken == "" {
		return grant, fmt.Errorf("oauth response contained no access token")
	}

	return grant, nil
}

// GenerateReply implements ChatClient.
func (c *GigaChatClient) GenerateReply(ctx context.Context, systemPrompt string, messages []ChatMessage, temperature float64) (string, error) {
	chat, err := c.chatClient(ctx)
	if err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: float32(temperature),
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)+1),
	}
	if systemPrompt != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	start := time.Now()
	resp, err := chat.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("Chat completion failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", fmt.Errorf("gigachat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	c.logger.Info("Chat completion",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// Model implements ChatClient.
func (c *GigaChatClient) Model() string {
	return c.cfg.Model
}

var _ ChatClient = (*GigaChatClient)(nil)
