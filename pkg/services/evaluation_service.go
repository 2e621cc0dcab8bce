package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/jsonutil"
	"github.com/medsim-inc/medsim-engine/pkg/llm"
	"github.com/medsim-inc/medsim-engine/pkg/models"
	"github.com/medsim-inc/medsim-engine/pkg/repositories"
)

// evaluationCriteria is the fixed rubric scored by the provider.
var evaluationCriteria = []string{
	"communication clarity and professionalism",
	"product knowledge demonstration",
	"active listening and empathy",
	"problem-solving and objection handling",
	"call structure and organization",
	"confidence and rapport building",
}

// fallbackScore is persisted when the provider cannot score the visit.
// Neutral-positive so an outage never tanks a trainee's record.
const fallbackScore = 75

var fallbackRecommendations = []string{
	"Review the visit recording and note moments where the conversation stalled.",
	"Practice the scenario again with attention to the doctor's objections.",
	"Discuss this visit with your trainer for a detailed debrief.",
}

// EvaluationService scores completed visits from their transcripts.
type EvaluationService interface {
	// Evaluate scores the visit. The visit must be completed
	// (ErrInvalidState) and not yet evaluated (ErrConflict). Provider
	// failures persist a fallback evaluation instead of failing.
	Evaluate(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Evaluation, error)

	// Get returns the visit's evaluation, if any.
	Get(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Evaluation, error)

	// ListByUser returns all of the principal's evaluations, newest first.
	ListByUser(ctx context.Context, principal auth.Principal) ([]*models.Evaluation, error)
}

type evaluationService struct {
	evaluations repositories.EvaluationRepository
	visits      repositories.VisitRepository
	turns       repositories.TranscriptRepository
	chat        llm.ChatClient
	timeout     time.Duration
	logger      *zap.Logger
}

// NewEvaluationService creates a new EvaluationService.
func NewEvaluationService(
	evaluations repositories.EvaluationRepository,
	visits repositories.VisitRepository,
	turns repositories.TranscriptRepository,
	chat llm.ChatClient,
	timeout time.Duration,
	logger *zap.Logger,
) EvaluationService {
	return &evaluationService{
		evaluations: evaluations,
		visits:      visits,
		turns:       turns,
		chat:        chat,
		timeout:     timeout,
		logger:      logger.Named("evaluation-service"),
	}
}

var _ EvaluationService = (*evaluationService)(nil)

func (s *evaluationService) Evaluate(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Evaluation, error) {
	vc, err := s.visits.GetContext(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if vc.Visit.UserID != principal.UserID && !principal.Elevated() {
		return nil, apperrors.ErrForbidden
	}
	if vc.Visit.Status != models.VisitCompleted {
		return nil, fmt.Errorf("visit %s is %s, not completed: %w",
			visitID, vc.Visit.Status, apperrors.ErrInvalidState)
	}

	// Cheap precheck; the unique constraint is the real gate against
	// concurrent evaluations.
	if _, err := s.evaluations.GetByVisit(ctx, visitID); err == nil {
		return nil, fmt.Errorf("visit %s already evaluated: %w", visitID, apperrors.ErrConflict)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	turns, err := s.turns.ListByVisit(ctx, visitID, true)
	if err != nil {
		return nil, err
	}

	eval := s.score(ctx, vc, turns)
	eval.ID = uuid.New()
	eval.VisitID = visitID

	if err := s.evaluations.Create(ctx, eval); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("visit %s already evaluated: %w", visitID, apperrors.ErrConflict)
		}
		return nil, err
	}

	s.logger.Info("Visit evaluated",
		zap.String("visit_id", visitID.String()),
		zap.Int("score", eval.Score),
		zap.Bool("fallback", eval.Metrics["fallback"] == true))

	return eval, nil
}

// providerEvaluation is the JSON shape requested from the provider.
// The flexible fields absorb provider sloppiness (a string score, a
// single recommendation where an array was asked for).
type providerEvaluation struct {
	Score           jsonutil.FlexibleInt     `json:"score"`
	Feedback        string                   `json:"feedback"`
	Metrics         map[string]any           `json:"metrics"`
	Recommendations jsonutil.FlexibleStrings `json:"recommendations"`
}

// score asks the provider for a rubric evaluation; any failure falls
// back to the neutral evaluation rather than surfacing an error.
func (s *evaluationService) score(ctx context.Context, vc *models.VisitContext, turns []*models.TranscriptTurn) *models.Evaluation {
	if len(turns) == 0 {
		s.logger.Warn("Evaluating visit with empty transcript",
			zap.String("visit_id", vc.Visit.ID.String()))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := s.chat.GenerateReply(ctx,
		evaluationSystemPrompt(),
		[]llm.ChatMessage{{Role: llm.RoleUser, Content: evaluationUserPrompt(vc, turns)}},
		0.2)
	if err != nil {
		s.logger.Warn("Provider evaluation failed, persisting fallback",
			zap.String("visit_id", vc.Visit.ID.String()), zap.Error(err))
		return fallbackEvaluation()
	}

	parsed, err := llm.ParseJSONResponse[providerEvaluation](response)
	if err != nil {
		s.logger.Warn("Provider evaluation unparseable, persisting fallback",
			zap.String("visit_id", vc.Visit.ID.String()), zap.Error(err))
		return fallbackEvaluation()
	}

	recs := []string(parsed.Recommendations)
	if len(recs) == 0 {
		recs = fallbackRecommendations
	}

	return &models.Evaluation{
		Score:           models.ClampScore(int(parsed.Score)),
		FeedbackText:    parsed.Feedback,
		Metrics:         parsed.Metrics,
		Recommendations: recs,
	}
}

func fallbackEvaluation() *models.Evaluation {
	return &models.Evaluation{
		Score:           fallbackScore,
		FeedbackText:    "Automatic evaluation was unavailable for this visit. A neutral score has been recorded; ask your trainer for a manual review.",
		Metrics:         map[string]any{"fallback": true},
		Recommendations: fallbackRecommendations,
	}
}

func evaluationSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an expert trainer of medical sales representatives. ")
	b.WriteString("Evaluate the sales visit transcript against these criteria: ")
	b.WriteString(strings.Join(evaluationCriteria, ", "))
	b.WriteString(". Respond with JSON only: ")
	b.WriteString(`{"score": <0-100>, "feedback": "<2-3 sentences>", "metrics": {<criterion>: <0-10>}, "recommendations": ["<3 concrete suggestions>"]}`)
	return b.String()
}

// evaluationUserPrompt renders the transcript chronologically with
// speaker labels the rubric references.
func evaluationUserPrompt(vc *models.VisitContext, turns []*models.TranscriptTurn) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Scenario: %s (difficulty: %s)\n", vc.Scenario.Title, vc.Scenario.DifficultyLevel)
	fmt.Fprintf(&b, "Doctor persona: %s, %s, empathy %d/10\n\n",
		vc.Doctor.Name, vc.Doctor.PersonalityType, vc.Doctor.EmpathyLevel)
	b.WriteString("Transcript:\n")

	for _, turn := range turns {
		label := "Medical Rep"
		if turn.Role == models.SpeakerDoctor {
			label = "Dr. " + vc.Doctor.Name
		}
		fmt.Fprintf(&b, "%s: %s\n", label, turn.Content)
	}

	return b.String()
}

func (s *evaluationService) Get(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Evaluation, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.UserID != principal.UserID && !principal.Elevated() {
		return nil, apperrors.ErrForbidden
	}
	return s.evaluations.GetByVisit(ctx, visitID)
}

func (s *evaluationService) ListByUser(ctx context.Context, principal auth.Principal) ([]*models.Evaluation, error) {
	return s.evaluations.ListByUser(ctx, principal.UserID)
}
