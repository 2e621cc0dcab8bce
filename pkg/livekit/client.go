// Package livekit provides thin clients for a LiveKit media server's
// room and egress services, plus join-token minting. The server API is
// Twirp over HTTP with JSON bodies, authenticated by short-lived JWTs
// carrying video grants.
package livekit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/config"
	"github.com/medsim-inc/medsim-engine/pkg/retry"
)

// client is the shared Twirp transport for the room and egress services.
type client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     *zap.Logger
}

func newClient(cfg *config.LiveKitConfig, logger *zap.Logger) *client {
	return &client{
		baseURL:    httpBaseURL(cfg.URL),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
	}
}

// httpBaseURL normalizes the configured server URL: clients usually carry
// the ws/wss signaling URL, but the Twirp API speaks http/https.
func httpBaseURL(url string) string {
	url = strings.TrimSuffix(url, "/")
	switch {
	case strings.HasPrefix(url, "ws://"):
		return "http://" + strings.TrimPrefix(url, "ws://")
	case strings.HasPrefix(url, "wss://"):
		return "https://" + strings.TrimPrefix(url, "wss://")
	default:
		return url
	}
}

// twirpError is the JSON error body Twirp services return on non-200.
type twirpError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// call POSTs a Twirp request and decodes the response into out. The
// request is authenticated with a fresh admin token carrying grant.
// Transient failures (transport errors, 5xx, 429) are retried with
// backoff; Twirp application errors fail fast.
func (c *client) call(ctx context.Context, service, method string, grant *VideoGrant, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/twirp/livekit.%s/%s", c.baseURL, service, method)

	token, err := mintToken(c.apiKey, c.apiSecret, adminIdentity, "", grant, time.Minute)
	if err != nil {
		return fmt.Errorf("failed to mint admin token: %w", err)
	}

	return retry.Do(ctx, retry.DefaultConfig(), func() error {
		return c.once(ctx, url, method, token, body, out)
	})
}

// once performs a single Twirp round trip. The request is rebuilt per
// attempt because the body reader is consumed by the transport.
func (c *client) once(ctx context.Context, url, method, token string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var te twirpError
		if json.Unmarshal(data, &te) == nil && te.Msg != "" {
			return &APIError{Status: resp.StatusCode, Code: te.Code, Message: te.Msg}
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", method, err)
		}
	}

	return nil
}

// APIError is a non-200 response from the media server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// IsRetryable marks 5xx and rate-limit responses as transient; every
// other API error is a permanent answer from the server.
func (e *APIError) IsRetryable() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("livekit api error (status %d, code %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("livekit api error (status %d): %s", e.Status, e.Message)
}

// IsNotFound reports whether the error is the server's not_found code.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == "not_found" || apiErr.Status == http.StatusNotFound
}
