package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/models"
	"github.com/medsim-inc/medsim-engine/pkg/repositories"
)

// TranscriptService is the append-only ledger of visit utterances.
type TranscriptService interface {
	// Append records one turn. A nil principal is the agent path
	// (service-authenticated); a rep principal may only write to its own
	// visit.
	Append(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, role, content string, metadata map[string]any) (*models.TranscriptTurn, error)

	// List returns a visit's turns in timestamp order, ascending or
	// descending.
	List(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, asc bool) ([]*models.TranscriptTurn, error)
}

type transcriptService struct {
	turns  repositories.TranscriptRepository
	visits repositories.VisitRepository
	logger *zap.Logger
}

// NewTranscriptService creates a new TranscriptService.
func NewTranscriptService(turns repositories.TranscriptRepository, visits repositories.VisitRepository, logger *zap.Logger) TranscriptService {
	return &transcriptService{
		turns:  turns,
		visits: visits,
		logger: logger.Named("transcript-service"),
	}
}

var _ TranscriptService = (*transcriptService)(nil)

func (s *transcriptService) Append(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, role, content string, metadata map[string]any) (*models.TranscriptTurn, error) {
	if !models.IsValidSpeaker(role) {
		return nil, fmt.Errorf("unknown speaker role %q: %w", role, apperrors.ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty content: %w", apperrors.ErrValidation)
	}

	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if principal != nil && visit.UserID != principal.UserID && !principal.Elevated() {
		return nil, apperrors.ErrForbidden
	}

	turn := &models.TranscriptTurn{
		ID:       uuid.New(),
		VisitID:  visit.ID,
		Role:     role,
		Content:  content,
		Metadata: metadata,
	}

	if err := s.turns.Append(ctx, turn); err != nil {
		return nil, err
	}

	s.logger.Debug("Transcript turn appended",
		zap.String("visit_id", visitID.String()),
		zap.String("role", role),
		zap.Int("content_len", len(content)))

	return turn, nil
}

func (s *transcriptService) List(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, asc bool) ([]*models.TranscriptTurn, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if principal != nil && visit.UserID != principal.UserID && !principal.Elevated() {
		return nil, apperrors.ErrForbidden
	}

	return s.turns.ListByVisit(ctx, visitID, asc)
}
