package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/models"
)

func TestTranscriptService_Append(t *testing.T) {
	principal := testPrincipal()
	visit := testVisit(principal, models.VisitInProgress)

	var appended *models.TranscriptTurn
	turns := &mockTranscriptRepo{
		AppendFunc: func(ctx context.Context, turn *models.TranscriptTurn) error {
			appended = turn
			return nil
		},
	}
	service := NewTranscriptService(turns, newMockVisitRepo(visit), testLogger())

	turn, err := service.Append(context.Background(), &principal, visit.ID, models.SpeakerRep, "Good morning, doctor.", nil)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if appended == nil || appended.ID != turn.ID {
		t.Fatal("turn not handed to the repository")
	}
	if turn.VisitID != visit.ID || turn.Role != models.SpeakerRep {
		t.Errorf("turn = %+v, want visit %s role rep", turn, visit.ID)
	}
}

func TestTranscriptService_Append_InvalidRole(t *testing.T) {
	principal := testPrincipal()
	visit := testVisit(principal, models.VisitInProgress)
	service := NewTranscriptService(&mockTranscriptRepo{}, newMockVisitRepo(visit), testLogger())

	for _, role := range []string{"nurse", "", "REP"} {
		if _, err := service.Append(context.Background(), &principal, visit.ID, role, "hi", nil); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("Append(role=%q) error = %v, want ErrValidation", role, err)
		}
	}
}

func TestTranscriptService_Append_EmptyContent(t *testing.T) {
	principal := testPrincipal()
	visit := testVisit(principal, models.VisitInProgress)
	service := NewTranscriptService(&mockTranscriptRepo{}, newMockVisitRepo(visit), testLogger())

	for _, content := range []string{"", "   ", "\n\t"} {
		if _, err := service.Append(context.Background(), &principal, visit.ID, models.SpeakerRep, content, nil); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("Append(content=%q) error = %v, want ErrValidation", content, err)
		}
	}
}

func TestTranscriptService_Append_ForbiddenForOtherUser(t *testing.T) {
	owner := testPrincipal()
	visit := testVisit(owner, models.VisitInProgress)
	service := NewTranscriptService(&mockTranscriptRepo{}, newMockVisitRepo(visit), testLogger())

	stranger := testPrincipal()
	_, err := service.Append(context.Background(), &stranger, visit.ID, models.SpeakerRep, "hello", nil)
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Append() error = %v, want ErrForbidden", err)
	}
}

// The agent worker appends doctor turns without a user principal; the
// service-token middleware has already vouched for it.
func TestTranscriptService_Append_AgentPath(t *testing.T) {
	owner := testPrincipal()
	visit := testVisit(owner, models.VisitInProgress)
	turns := &mockTranscriptRepo{
		AppendFunc: func(ctx context.Context, turn *models.TranscriptTurn) error { return nil },
	}
	service := NewTranscriptService(turns, newMockVisitRepo(visit), testLogger())

	turn, err := service.Append(context.Background(), nil, visit.ID, models.SpeakerDoctor, "What brings you here?", map[string]any{"source": "agent"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if turn.Metadata["source"] != "agent" {
		t.Error("metadata not carried through")
	}
}

func TestTranscriptService_Append_UnknownVisit(t *testing.T) {
	principal := testPrincipal()
	service := NewTranscriptService(&mockTranscriptRepo{}, newMockVisitRepo(nil), testLogger())

	_, err := service.Append(context.Background(), &principal, uuid.New(), models.SpeakerRep, "hello", nil)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Append() error = %v, want ErrNotFound", err)
	}
}

func TestTranscriptService_List(t *testing.T) {
	principal := testPrincipal()
	visit := testVisit(principal, models.VisitCompleted)

	var gotAsc bool
	turns := &mockTranscriptRepo{
		ListByVisitFunc: func(ctx context.Context, visitID uuid.UUID, asc bool) ([]*models.TranscriptTurn, error) {
			gotAsc = asc
			return []*models.TranscriptTurn{{VisitID: visitID, Role: models.SpeakerRep, Content: "hi"}}, nil
		},
	}
	service := NewTranscriptService(turns, newMockVisitRepo(visit), testLogger())

	listed, err := service.List(context.Background(), &principal, visit.ID, true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 1 || !gotAsc {
		t.Errorf("List() = %d turns asc=%v, want 1 turn asc=true", len(listed), gotAsc)
	}
}

func TestTranscriptService_List_ForbiddenForOtherUser(t *testing.T) {
	owner := testPrincipal()
	visit := testVisit(owner, models.VisitCompleted)
	service := NewTranscriptService(&mockTranscriptRepo{}, newMockVisitRepo(visit), testLogger())

	stranger := testPrincipal()
	_, err := service.List(context.Background(), &stranger, visit.ID, true)
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("List() error = %v, want ErrForbidden", err)
	}
}
