package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/llm"
	"github.com/medsim-inc/medsim-engine/pkg/models"
)

type evaluationFixture struct {
	principal   auth.Principal
	visit       *models.Visit
	visits      *mockVisitRepo
	evaluations *mockEvaluationRepo
	turns       *mockTranscriptRepo
	chat        *llm.MockChatClient
	stored      *models.Evaluation
	service     EvaluationService
}

func newEvaluationFixture(status string) *evaluationFixture {
	f := &evaluationFixture{principal: testPrincipal()}
	f.visit = testVisit(f.principal, status)

	f.visits = newMockVisitRepo(f.visit)
	f.visits.GetContextFunc = func(ctx context.Context, id uuid.UUID) (*models.VisitContext, error) {
		if id != f.visit.ID {
			return nil, apperrors.ErrNotFound
		}
		return testVisitContext(f.visit), nil
	}

	f.evaluations = &mockEvaluationRepo{
		CreateFunc: func(ctx context.Context, eval *models.Evaluation) error {
			if f.stored != nil {
				return apperrors.ErrConflict
			}
			f.stored = eval
			return nil
		},
		GetByVisitFunc: func(ctx context.Context, visitID uuid.UUID) (*models.Evaluation, error) {
			if f.stored == nil {
				return nil, apperrors.ErrNotFound
			}
			return f.stored, nil
		},
	}

	f.turns = &mockTranscriptRepo{
		ListByVisitFunc: func(ctx context.Context, visitID uuid.UUID, asc bool) ([]*models.TranscriptTurn, error) {
			return []*models.TranscriptTurn{
				{Role: models.SpeakerRep, Content: "Good morning, doctor."},
				{Role: models.SpeakerDoctor, Content: "Make it quick."},
			}, nil
		},
	}

	f.chat = llm.NewMockChatClient()
	f.chat.GenerateReplyFunc = func(ctx context.Context, systemPrompt string, messages []llm.ChatMessage, temperature float64) (string, error) {
		return `{"score": 82, "feedback": "Solid opening.", "metrics": {"communication clarity": 8}, "recommendations": ["Lead with trial data."]}`, nil
	}

	f.service = NewEvaluationService(f.evaluations, f.visits, f.turns, f.chat, time.Second, testLogger())
	return f
}

func TestEvaluationService_Evaluate(t *testing.T) {
	f := newEvaluationFixture(models.VisitCompleted)

	eval, err := f.service.Evaluate(context.Background(), f.principal, f.visit.ID)
	require.NoError(t, err)

	assert.Equal(t, f.visit.ID, eval.VisitID)
	assert.Equal(t, 82, eval.Score)
	assert.Equal(t, "Solid opening.", eval.FeedbackText)
	assert.Equal(t, []string{"Lead with trial data."}, eval.Recommendations)
	require.NotNil(t, f.stored)

	// The provider saw the labeled transcript and the rubric.
	require.Len(t, f.chat.GenerateReplyCalls, 1)
	call := f.chat.GenerateReplyCalls[0]
	assert.Contains(t, call.SystemPrompt, "problem-solving and objection handling")
	assert.Contains(t, call.SystemPrompt, "active listening and empathy")
	assert.Contains(t, call.SystemPrompt, "call structure and organization")
	assert.Contains(t, call.Messages[0].Content, "Medical Rep: Good morning, doctor.")
	assert.Contains(t, call.Messages[0].Content, "Dr. Sokolova: Make it quick.")
}

func TestEvaluationService_Evaluate_ClampsScore(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     int
	}{
		{"over range", `{"score": 140, "feedback": "f", "recommendations": ["r"]}`, 100},
		{"under range", `{"score": -5, "feedback": "f", "recommendations": ["r"]}`, 0},
		{"in range", `{"score": 55, "feedback": "f", "recommendations": ["r"]}`, 55},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newEvaluationFixture(models.VisitCompleted)
			f.chat.GenerateReplyFunc = func(ctx context.Context, systemPrompt string, messages []llm.ChatMessage, temperature float64) (string, error) {
				return tc.response, nil
			}

			eval, err := f.service.Evaluate(context.Background(), f.principal, f.visit.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, eval.Score)
		})
	}
}

func TestEvaluationService_Evaluate_ToleratesLooseProviderTyping(t *testing.T) {
	f := newEvaluationFixture(models.VisitCompleted)
	f.chat.GenerateReplyFunc = func(ctx context.Context, systemPrompt string, messages []llm.ChatMessage, temperature float64) (string, error) {
		return `{"score": "88", "feedback": "Solid visit.", "recommendations": "Lead with the efficacy data."}`, nil
	}

	eval, err := f.service.Evaluate(context.Background(), f.principal, f.visit.ID)
	require.NoError(t, err)
	assert.Equal(t, 88, eval.Score)
	assert.Equal(t, []string{"Lead with the efficacy data."}, eval.Recommendations)
}

func TestEvaluationService_Evaluate_RequiresCompleted(t *testing.T) {
	for _, status := range []string{models.VisitScheduled, models.VisitInProgress, models.VisitCancelled} {
		t.Run(status, func(t *testing.T) {
			f := newEvaluationFixture(status)
			_, err := f.service.Evaluate(context.Background(), f.principal, f.visit.ID)
			assert.ErrorIs(t, err, apperrors.ErrInvalidState)
			assert.Nil(t, f.stored)
		})
	}
}

func TestEvaluationService_Evaluate_AlreadyEvaluated(t *testing.T) {
	f := newEvaluationFixture(models.VisitCompleted)
	f.stored = &models.Evaluation{VisitID: f.visit.ID, Score: 70}

	_, err := f.service.Evaluate(context.Background(), f.principal, f.visit.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Empty(t, f.chat.GenerateReplyCalls)
}

// A concurrent evaluation can slip past the precheck; the unique
// constraint surfaces as a conflict, not a duplicate row.
func TestEvaluationService_Evaluate_LostRaceIsConflict(t *testing.T) {
	f := newEvaluationFixture(models.VisitCompleted)
	f.evaluations.CreateFunc = func(ctx context.Context, eval *models.Evaluation) error {
		return apperrors.ErrConflict
	}

	_, err := f.service.Evaluate(context.Background(), f.principal, f.visit.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestEvaluationService_Evaluate_ProviderFailureFallsBack(t *testing.T) {
	f := newEvaluationFixture(models.VisitCompleted)
	f.chat.GenerateReplyFunc = func(ctx context.Context, systemPrompt string, messages []llm.ChatMessage, temperature float64) (string, error) {
		return "", errors.New("provider down")
	}

	eval, err := f.service.Evaluate(context.Background(), f.principal, f.visit.ID)
	require.NoError(t, err)

	assert.Equal(t, fallbackScore, eval.Score)
	assert.Equal(t, map[string]any{"fallback": true}, eval.Metrics)
	assert.Len(t, eval.Recommendations, 3)
	assert.NotEmpty(t, eval.FeedbackText)
	require.NotNil(t, f.stored)
}

func TestEvaluationService_Evaluate_UnparseableResponseFallsBack(t *testing.T) {
	f := newEvaluationFixture(models.VisitCompleted)
	f.chat.GenerateReplyFunc = func(ctx context.Context, systemPrompt string, messages []llm.ChatMessage, temperature float64) (string, error) {
		return "I would rate this visit quite highly overall.", nil
	}

	eval, err := f.service.Evaluate(context.Background(), f.principal, f.visit.ID)
	require.NoError(t, err)
	assert.Equal(t, fallbackScore, eval.Score)
	assert.Equal(t, map[string]any{"fallback": true}, eval.Metrics)
}

func TestEvaluationService_Evaluate_ForbiddenForOtherUser(t *testing.T) {
	f := newEvaluationFixture(models.VisitCompleted)
	stranger := testPrincipal()

	_, err := f.service.Evaluate(context.Background(), stranger, f.visit.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestEvaluationService_Get(t *testing.T) {
	f := newEvaluationFixture(models.VisitCompleted)
	f.stored = &models.Evaluation{VisitID: f.visit.ID, Score: 88}

	eval, err := f.service.Get(context.Background(), f.principal, f.visit.ID)
	require.NoError(t, err)
	assert.Equal(t, 88, eval.Score)
}

func TestEvaluationService_Get_NoneYet(t *testing.T) {
	f := newEvaluationFixture(models.VisitCompleted)

	_, err := f.service.Get(context.Background(), f.principal, f.visit.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
