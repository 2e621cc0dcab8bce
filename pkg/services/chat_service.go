package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/llm"
	"github.com/medsim-inc/medsim-engine/pkg/models"
	"github.com/medsim-inc/medsim-engine/pkg/personas"
)

// chatHistoryWindow is how many recent turns are replayed to the
// provider as conversational context.
const chatHistoryWindow = 10

// chatTemperature keeps doctor replies varied but in character.
const chatTemperature = 0.7

// ChatReply is a generated doctor utterance. Fallback marks replies
// served from the canned persona lists during a provider outage.
type ChatReply struct {
	Content  string `json:"content"`
	Fallback bool   `json:"fallback"`
}

// ChatService generates doctor replies for the text-chat path and
// records both sides of the exchange in the transcript.
type ChatService interface {
	Reply(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, message string) (*ChatReply, error)
}

type chatService struct {
	visits     VisitService
	transcript TranscriptService
	chat       llm.ChatClient
	catalog    *personas.Catalog
	timeout    time.Duration
	logger     *zap.Logger
}

// NewChatService creates a new ChatService.
func NewChatService(
	visits VisitService,
	transcript TranscriptService,
	chat llm.ChatClient,
	catalog *personas.Catalog,
	timeout time.Duration,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		visits:     visits,
		transcript: transcript,
		chat:       chat,
		catalog:    catalog,
		timeout:    timeout,
		logger:     logger.Named("chat-service"),
	}
}

var _ ChatService = (*chatService)(nil)

func (s *chatService) Reply(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, message string) (*ChatReply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("empty message: %w", apperrors.ErrValidation)
	}

	vc, err := s.visits.GetContext(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if principal != nil && vc.Visit.UserID != principal.UserID && !principal.Elevated() {
		return nil, apperrors.ErrForbidden
	}
	if vc.Visit.Status != models.VisitInProgress {
		return nil, fmt.Errorf("visit %s is %s: %w", visitID, vc.Visit.Status, apperrors.ErrInvalidState)
	}

	history, err := s.transcript.List(ctx, principal, visitID, true)
	if err != nil {
		return nil, err
	}

	if _, err := s.transcript.Append(ctx, principal, visitID, models.SpeakerRep, message, nil); err != nil {
		return nil, err
	}

	reply := s.generate(ctx, vc, history, message)

	var metadata map[string]any
	if reply.Fallback {
		metadata = map[string]any{"fallback": true}
	}
	if _, err := s.transcript.Append(ctx, nil, visitID, models.SpeakerDoctor, reply.Content, metadata); err != nil {
		return nil, err
	}

	return reply, nil
}

// generate asks the provider for a reply; a failure is masked with a
// canned utterance in the persona's voice.
func (s *chatService) generate(ctx context.Context, vc *models.VisitContext, history []*models.TranscriptTurn, message string) *ChatReply {
	messages := buildChatHistory(history, message)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.chat.GenerateReply(ctx, PersonaPrompt(&vc.Doctor, &vc.Scenario), messages, chatTemperature)
	if err != nil || strings.TrimSpace(content) == "" {
		s.logger.Warn("Provider reply failed, using persona fallback",
			zap.String("visit_id", vc.Visit.ID.String()),
			zap.String("personality", vc.Doctor.PersonalityType),
			zap.Error(err))
		return &ChatReply{
			Content:  s.catalog.Fallback(vc.Doctor.PersonalityType),
			Fallback: true,
		}
	}

	return &ChatReply{Content: strings.TrimSpace(content)}
}

// buildChatHistory maps the last turns of the transcript onto provider
// roles (doctor speaks as assistant) and appends the new rep message.
func buildChatHistory(history []*models.TranscriptTurn, message string) []llm.ChatMessage {
	if len(history) > chatHistoryWindow {
		history = history[len(history)-chatHistoryWindow:]
	}

	messages := make([]llm.ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		role := llm.RoleUser
		if turn.Role == models.SpeakerDoctor {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: turn.Content})
	}

	return append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: message})
}

// PersonaPrompt assembles the doctor's system prompt from the persona
// template, the empathy scale, and the scenario framing. The agent
// worker uses the same prompt for voice sessions.
func PersonaPrompt(doctor *models.Doctor, scenario *models.Scenario) string {
	var b strings.Builder

	b.WriteString(doctor.PromptTemplate)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "You are %s", doctor.Name)
	if doctor.Specialty != "" {
		fmt.Fprintf(&b, ", a %s specialist", doctor.Specialty)
	}
	fmt.Fprintf(&b, ". Your personality is %s and your empathy level is %d out of 10.\n",
		doctor.PersonalityType, doctor.EmpathyLevel)
	fmt.Fprintf(&b, "\nScenario: %s\n%s\n", scenario.Title, scenario.PromptTemplate)
	b.WriteString("\nStay in character. You are speaking with a medical sales representative. Keep replies short and conversational.")

	return b.String()
}
