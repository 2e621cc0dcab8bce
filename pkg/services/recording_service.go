package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/livekit"
	"github.com/medsim-inc/medsim-engine/pkg/models"
	"github.com/medsim-inc/medsim-engine/pkg/repositories"
)

// RecordingService controls visit recordings directly, outside the
// status transitions (manual start/stop, status inspection).
type RecordingService interface {
	// Start begins a recording for an in_progress visit. At most one
	// recording may be active per visit (ErrConflict).
	Start(ctx context.Context, principal auth.Principal, visitID uuid.UUID, audioOnly bool) (*livekit.EgressInfo, error)

	// Stop ends the visit's active recording. Stops of an
	// already-finished egress are tolerated.
	Stop(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*livekit.EgressInfo, error)

	// Info returns the state of one egress by id.
	Info(ctx context.Context, egressID string) (*livekit.EgressInfo, error)

	// List returns egresses for a room.
	List(ctx context.Context, roomName string) ([]*livekit.EgressInfo, error)
}

type recordingService struct {
	visits repositories.VisitRepository
	egress livekit.EgressClient
	logger *zap.Logger
}

// NewRecordingService creates a new RecordingService.
func NewRecordingService(visits repositories.VisitRepository, egress livekit.EgressClient, logger *zap.Logger) RecordingService {
	return &recordingService{
		visits: visits,
		egress: egress,
		logger: logger.Named("recording-service"),
	}
}

var _ RecordingService = (*recordingService)(nil)

func (s *recordingService) authorize(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Visit, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.UserID != principal.UserID && !principal.Elevated() {
		return nil, apperrors.ErrForbidden
	}
	return visit, nil
}

func (s *recordingService) Start(ctx context.Context, principal auth.Principal, visitID uuid.UUID, audioOnly bool) (*livekit.EgressInfo, error) {
	visit, err := s.authorize(ctx, principal, visitID)
	if err != nil {
		return nil, err
	}

	if visit.Status != models.VisitInProgress {
		return nil, fmt.Errorf("visit %s is %s: %w", visitID, visit.Status, apperrors.ErrInvalidState)
	}
	if visit.RecordingStatus == models.RecordingActive {
		return nil, fmt.Errorf("recording already active for visit %s: %w", visitID, apperrors.ErrConflict)
	}

	filepath := fmt.Sprintf("visit-%s-%d.mp4", visit.ID, time.Now().UnixMilli())
	info, err := s.egress.StartRoomRecording(ctx, visit.RoomName, filepath, audioOnly)
	if err != nil {
		return nil, err
	}

	// The precheck above races concurrent starts; the conditional update
	// is the real gate. The loser's egress is stopped again.
	if err := s.visits.MarkRecordingActive(ctx, visitID, info.EgressID); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			if _, stopErr := s.egress.StopEgress(ctx, info.EgressID); stopErr != nil {
				s.logger.Warn("Failed to stop orphaned egress",
					zap.String("egress_id", info.EgressID), zap.Error(stopErr))
			}
		}
		return nil, err
	}

	return info, nil
}

func (s *recordingService) Stop(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*livekit.EgressInfo, error) {
	visit, err := s.authorize(ctx, principal, visitID)
	if err != nil {
		return nil, err
	}

	if visit.EgressID == nil {
		return nil, fmt.Errorf("visit %s has no recording: %w", visitID, apperrors.ErrNotFound)
	}

	if visit.RecordingStatus != models.RecordingActive {
		// Already stopped; report the terminal state without another
		// stop request.
		return s.egress.GetEgress(ctx, *visit.EgressID)
	}

	info, err := s.egress.StopEgress(ctx, *visit.EgressID)
	if err != nil {
		return nil, err
	}

	if err := s.visits.MarkRecordingStopped(ctx, visitID); err != nil {
		return nil, err
	}

	return info, nil
}

func (s *recordingService) Info(ctx context.Context, egressID string) (*livekit.EgressInfo, error) {
	info, err := s.egress.GetEgress(ctx, egressID)
	if err != nil {
		if livekit.IsNotFound(err) {
			return nil, fmt.Errorf("egress %s: %w", egressID, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return info, nil
}

func (s *recordingService) List(ctx context.Context, roomName string) ([]*livekit.EgressInfo, error) {
	return s.egress.ListEgress(ctx, roomName)
}
