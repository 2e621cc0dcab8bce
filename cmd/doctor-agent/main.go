// doctor-agent is the per-visit worker process spawned by the engine's
// supervisor. It plays the doctor persona for one visit: it tails the
// visit transcript through the engine's internal API, generates replies
// to new rep utterances, and posts them back as doctor turns.
//
// The worker prints AGENT_READY on stdout once it has fetched its visit
// context and is polling; the supervisor waits for that line before it
// reports the launch as successful. All logging goes to stderr so the
// readiness channel stays clean.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/config"
	"github.com/medsim-inc/medsim-engine/pkg/llm"
	"github.com/medsim-inc/medsim-engine/pkg/logging"
	"github.com/medsim-inc/medsim-engine/pkg/models"
	"github.com/medsim-inc/medsim-engine/pkg/personas"
	"github.com/medsim-inc/medsim-engine/pkg/services"
)

// readyLine must match what the supervisor scans for on stdout.
const readyLine = "AGENT_READY"

// historyWindow bounds how many transcript turns are replayed to the
// provider, matching the engine's text-chat path.
const historyWindow = 10

const replyTemperature = 0.7

// maxConsecutiveFailures is how many polls in a row may fail before the
// worker gives up and exits. The supervisor deregisters it on exit.
const maxConsecutiveFailures = 5

// statusCheckEvery is how many polls pass between visit status rechecks.
// A visit completed or cancelled behind the worker's back ends the loop
// even if the supervisor's kill signal is lost.
const statusCheckEvery = 20

type workerConfig struct {
	VisitID      string        `env:"AGENT_VISIT_ID" env-required:"true"`
	RoomName     string        `env:"AGENT_ROOM_NAME" env-required:"true"`
	JoinToken    string        `env:"AGENT_JOIN_TOKEN"`
	EngineURL    string        `env:"AGENT_ENGINE_URL" env-default:"http://localhost:8080"`
	ServiceToken string        `env:"AGENT_SERVICE_TOKEN"`
	PollInterval time.Duration `env:"AGENT_POLL_INTERVAL" env-default:"1s"`
	PersonasPath string        `env:"PERSONAS_PATH" env-default:"personas.yaml"`

	AI config.AIConfig
}

func main() {
	var cfg workerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("Failed to read agent environment: %v", err)
	}

	visitID, err := uuid.Parse(cfg.VisitID)
	if err != nil {
		log.Fatalf("Invalid AGENT_VISIT_ID: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("doctor-agent").With(zap.String("visit_id", visitID.String()))

	if err := run(&cfg, visitID, logger); err != nil {
		logger.Fatal("Agent failed", zap.Error(err))
	}
}

func run(cfg *workerConfig, visitID uuid.UUID, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := &engineClient{
		baseURL: strings.TrimRight(cfg.EngineURL, "/"),
		token:   cfg.ServiceToken,
		visitID: visitID,
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	vc, err := engine.VisitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch visit context: %w", err)
	}
	if vc.Visit.Status != models.VisitInProgress {
		return fmt.Errorf("visit is %s, nothing to do", vc.Visit.Status)
	}

	catalog, err := personas.Load(cfg.PersonasPath)
	if err != nil {
		return fmt.Errorf("failed to load personas: %w", err)
	}

	chat, err := llm.NewChatClient(&cfg.AI, logger)
	if err != nil {
		return fmt.Errorf("failed to create chat client: %w", err)
	}

	session := &session{
		engine:  engine,
		chat:    chat,
		catalog: catalog,
		vc:      vc,
		prompt:  services.PersonaPrompt(&vc.Doctor, &vc.Scenario),
		timeout: cfg.AI.ChatTimeout,
		logger:  logger,
	}

	// Seed the high-water mark so only turns appended after startup get
	// answered.
	turns, err := engine.Messages(ctx)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}
	session.seen = len(turns)

	fmt.Println(readyLine)
	logger.Info("Agent ready",
		zap.String("room", cfg.RoomName),
		zap.String("doctor", vc.Doctor.Name),
		zap.Int("transcript_turns", session.seen))

	return session.loop(ctx, cfg.PollInterval)
}

// session is one doctor conversation being played against a visit.
type session struct {
	engine  *engineClient
	chat    llm.ChatClient
	catalog *personas.Catalog
	vc      *models.VisitContext
	prompt  string
	timeout time.Duration
	logger  *zap.Logger

	seen     int // transcript turns already accounted for
	failures int
	polls    int
}

func (s *session) loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Shutdown signal received")
			return nil
		case <-ticker.C:
		}

		s.polls++
		if s.polls%statusCheckEvery == 0 {
			done, err := s.visitFinished(ctx)
			if err == nil && done {
				s.logger.Info("Visit finished, exiting")
				return nil
			}
		}

		if err := s.poll(ctx); err != nil {
			s.failures++
			s.logger.Warn("Poll failed",
				zap.Int("consecutive", s.failures),
				zap.Error(err))
			if s.failures >= maxConsecutiveFailures {
				return fmt.Errorf("giving up after %d consecutive failures: %w", s.failures, err)
			}
			continue
		}
		s.failures = 0
	}
}

// poll reads the transcript tail and answers if the rep spoke last.
func (s *session) poll(ctx context.Context) error {
	turns, err := s.engine.Messages(ctx)
	if err != nil {
		return err
	}
	if len(turns) <= s.seen {
		return nil
	}
	s.seen = len(turns)

	last := turns[len(turns)-1]
	if last.Role != models.SpeakerRep {
		return nil
	}

	reply, fallback := s.generate(ctx, turns[:len(turns)-1], last.Content)
	if err := s.engine.AppendDoctorTurn(ctx, reply, fallback); err != nil {
		return err
	}
	// Count our own turn so the next poll does not re-read it.
	s.seen++

	s.logger.Info("Replied",
		zap.String("utterance", logging.SanitizeUtterance(reply)),
		zap.Bool("fallback", fallback))
	return nil
}

func (s *session) generate(ctx context.Context, history []*models.TranscriptTurn, message string) (string, bool) {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	messages := make([]llm.ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		role := llm.RoleUser
		if turn.Role == models.SpeakerDoctor {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: message})

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.chat.GenerateReply(ctx, s.prompt, messages, replyTemperature)
	if err != nil || strings.TrimSpace(content) == "" {
		s.logger.Warn("Provider reply failed, using persona fallback",
			zap.String("personality", s.vc.Doctor.PersonalityType),
			zap.Error(err))
		return s.catalog.Fallback(s.vc.Doctor.PersonalityType), true
	}
	return strings.TrimSpace(content), false
}

func (s *session) visitFinished(ctx context.Context) (bool, error) {
	vc, err := s.engine.VisitContext(ctx)
	if err != nil {
		return false, err
	}
	return vc.Visit.Status != models.VisitInProgress, nil
}

// engineClient calls the engine's internal agent API with the service
// token.
type engineClient struct {
	baseURL string
	token   string
	visitID uuid.UUID
	http    *http.Client
}

// apiEnvelope mirrors the engine's response envelope with the payload
// left raw for the caller to decode.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (c *engineClient) VisitContext(ctx context.Context) (*models.VisitContext, error) {
	var vc models.VisitContext
	url := fmt.Sprintf("%s/api/visits/%s/agent", c.baseURL, c.visitID)
	if err := c.do(ctx, http.MethodGet, url, nil, &vc); err != nil {
		return nil, err
	}
	return &vc, nil
}

func (c *engineClient) Messages(ctx context.Context) ([]*models.TranscriptTurn, error) {
	var payload struct {
		Messages []*models.TranscriptTurn `json:"messages"`
	}
	url := fmt.Sprintf("%s/internal/visits/%s/messages", c.baseURL, c.visitID)
	if err := c.do(ctx, http.MethodGet, url, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Messages, nil
}

func (c *engineClient) AppendDoctorTurn(ctx context.Context, content string, fallback bool) error {
	body := map[string]any{
		"role":    models.SpeakerDoctor,
		"content": content,
	}
	if fallback {
		body["metadata"] = map[string]any{"fallback": true}
	}
	url := fmt.Sprintf("%s/internal/visits/%s/messages", c.baseURL, c.visitID)
	return c.do(ctx, http.MethodPost, url, body, nil)
}

func (c *engineClient) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(auth.ServiceTokenHeader, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("engine request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode engine response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !envelope.Success {
		return fmt.Errorf("engine returned %d: %s %s", resp.StatusCode, envelope.Error, envelope.Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode engine payload: %w", err)
		}
	}
	return nil
}
