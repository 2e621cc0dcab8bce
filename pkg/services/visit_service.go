package services

import (
	"context"
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

// roleRepresentative and roleDoctor label room participants in join
// token metadata.
const (
	roleRepresentative = "representative"
	roleDoctor         = "doctor"
)

// VisitService orchestrates the visit lifecycle: creation, the status
// state machine, and the room session around it.
type VisitService interface {
	// Create schedules a new visit against an active scenario and doctor
	// and provisions its room.
	Create(ctx context.Context, principal auth.Principal, scenarioID, doctorID uuid.UUID) (*CreateVisitResult, error)

	// Get returns one visit, owner or elevated roles only.
	Get(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Visit, error)

	// List returns the principal's visits, newest first.
	List(ctx context.Context, principal auth.Principal) ([]*models.VisitSummary, error)

	// GetContext returns the full visit context (scenario, doctor
	// persona) for the agent worker. Callers are service-authenticated.
	GetContext(ctx context.Context, visitID uuid.UUID) (*models.VisitContext, error)

	// JoinToken mints a fresh room join credential for the visit owner.
	JoinToken(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (string, error)

	// Transition moves the visit along a legal status edge, performing
	// the side effects of the target state. Side-effect failures are
	// reported as warnings on the result, never as errors.
	Transition(ctx context.Context, principal auth.Principal, visitID uuid.UUID, target string) (*TransitionResult, error)
}

// CreateVisitResult is a freshly scheduled visit with the owner's room
// credentials.
type CreateVisitResult struct {
	Visit     *models.Visit `json:"visit"`
	JoinToken string        `json:"join_token"`
	ServerURL string        `json:"server_url"`
}

// TransitionResult is the visit after a transition plus any side-effect
// warnings (recording, room, agent).
type TransitionResult struct {
	Visit    *models.Visit `json:"visit"`
	Warnings []string      `json:"warnings,omitempty"`
}

// AgentRunner is the subset of the process supervisor the visit
// lifecycle needs for teardown.
type AgentRunner interface {
	Stop(visitID uuid.UUID) error
	Running(visitID uuid.UUID) bool
}

type visitService struct {
	visits    repositories.VisitRepository
	scenarios repositories.ScenarioRepository
	doctors   repositories.DoctorRepository
	rooms     livekit.RoomClient
	egress    livekit.EgressClient
	tokens    *livekit.TokenIssuer
	agents    AgentRunner
	serverURL string
	logger    *zap.Logger
}

// NewVisitService creates a new VisitService. serverURL is the media
// server address handed to clients alongside join tokens.
func NewVisitService(
	visits repositories.VisitRepository,
	scenarios repositories.ScenarioRepository,
	doctors repositories.DoctorRepository,
	rooms livekit.RoomClient,
	egress livekit.EgressClient,
	tokens *livekit.TokenIssuer,
	agents AgentRunner,
	serverURL string,
	logger *zap.Logger,
) VisitService {
	return &visitService{
		visits:    visits,
		scenarios: scenarios,
		doctors:   doctors,
		rooms:     rooms,
		egress:    egress,
		tokens:    tokens,
		agents:    agents,
		serverURL: serverURL,
		logger:    logger.Named("visit-service"),
	}
}

var _ VisitService = (*visitService)(nil)

// roomName builds the unique per-visit room name. The random suffix
// keeps names unique even when one user schedules visits in the same
// millisecond.
func roomName(userID uuid.UUID) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("visit-%s-%d-%s", userID, time.Now().UnixMilli(), suffix)
}

func (s *visitService) Create(ctx context.Context, principal auth.Principal, scenarioID, doctorID uuid.UUID) (*CreateVisitResult, error) {
	scenario, err := s.scenarios.GetActive(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenarioID, err)
	}
	doctor, err := s.doctors.GetActive(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("doctor %s: %w", doctorID, err)
	}

	visit := &models.Visit{
		ID:              uuid.New(),
		UserID:          principal.UserID,
		ScenarioID:      scenario.ID,
		DoctorID:        doctor.ID,
		Status:          models.VisitScheduled,
		RoomName:        roomName(principal.UserID),
		RecordingStatus: models.RecordingNone,
	}

	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, err
	}

	// Room provisioning is best effort here; the in_progress transition
	// ensures the room again before anyone joins.
	if _, err := s.rooms.EnsureRoom(ctx, visit.RoomName); err != nil {
		s.logger.Warn("Failed to provision room at creation",
			zap.String("visit_id", visit.ID.String()),
			zap.Error(err))
	}

	token, err := s.tokens.JoinToken(visit.RoomName, principal.UserID.String(), participantMetadata(roleRepresentative))
	if err != nil {
		return nil, fmt.Errorf("failed to issue join token: %w", err)
	}

	s.logger.Info("Visit created",
		zap.String("visit_id", visit.ID.String()),
		zap.String("room", visit.RoomName),
		zap.String("scenario", scenario.Title),
		zap.String("doctor", doctor.Name))

	return &CreateVisitResult{
		Visit:     visit,
		JoinToken: token,
		ServerURL: s.serverURL,
	}, nil
}

func participantMetadata(role string) string {
	return fmt.Sprintf(`{"role":%q}`, role)
}

func (s *visitService) Get(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Visit, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.UserID != principal.UserID && !principal.Elevated() {
		return nil, apperrors.ErrForbidden
	}
	return visit, nil
}

func (s *visitService) List(ctx context.Context, principal auth.Principal) ([]*models.VisitSummary, error) {
	return s.visits.ListByUser(ctx, principal.UserID)
}

func (s *visitService) GetContext(ctx context.Context, visitID uuid.UUID) (*models.VisitContext, error) {
	return s.visits.GetContext(ctx, visitID)
}

func (s *visitService) JoinToken(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (string, error) {
	visit, err := s.Get(ctx, principal, visitID)
	if err != nil {
		return "", err
	}
	if visit.Status == models.VisitCompleted || visit.Status == models.VisitCancelled {
		return "", fmt.Errorf("visit %s is %s: %w", visitID, visit.Status, apperrors.ErrInvalidState)
	}
	return s.tokens.JoinToken(visit.RoomName, principal.UserID.String(), participantMetadata(roleRepresentative))
}

// Transition applies the state machine under the visit's row lock so
// concurrent requests serialize: the loser re-reads the winner's status
// and fails validation. External side effects run inside the locked
// section, which keeps the status and its effects ordered per visit.
func (s *visitService) Transition(ctx context.Context, principal auth.Principal, visitID uuid.UUID, target string) (*TransitionResult, error) {
	if !models.IsValidVisitStatus(target) {
		return nil, fmt.Errorf("unknown status %q: %w", target, apperrors.ErrValidation)
	}

	var warnings []string
	visit, err := s.visits.WithLocked(ctx, visitID, func(v *models.Visit) error {
		if v.UserID != principal.UserID && !principal.Elevated() {
			return apperrors.ErrForbidden
		}
		if !models.CanTransition(v.Status, target) {
			return fmt.Errorf("cannot transition %s from %s to %s: %w",
				v.ID, v.Status, target, apperrors.ErrInvalidTransition)
		}

		switch target {
		case models.VisitInProgress:
			warnings = s.beginVisit(ctx, v)
		case models.VisitCompleted:
			warnings = s.completeVisit(ctx, v)
		case models.VisitCancelled:
			warnings = s.cancelVisit(ctx, v)
		}

		v.Status = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Visit transitioned",
		zap.String("visit_id", visit.ID.String()),
		zap.String("status", visit.Status),
		zap.Int("warnings", len(warnings)))

	return &TransitionResult{Visit: visit, Warnings: warnings}, nil
}

// beginVisit performs the in_progress side effects: stamp the start
// time, ensure the room, start the recording. Recording and room
// failures degrade to warnings; the visit still starts.
func (s *visitService) beginVisit(ctx context.Context, v *models.Visit) []string {
	var warnings []string

	now := time.Now()
	v.StartedAt = &now

	if _, err := s.rooms.EnsureRoom(ctx, v.RoomName); err != nil {
		s.logger.Warn("Failed to ensure room on start",
			zap.String("visit_id", v.ID.String()), zap.Error(err))
		warnings = append(warnings, "room provisioning failed")
	}

	if v.RecordingStatus != models.RecordingActive {
		filepath := fmt.Sprintf("visit-%s-%d.mp4", v.ID, now.UnixMilli())
		info, err := s.egress.StartRoomRecording(ctx, v.RoomName, filepath, true)
		if err != nil {
			s.logger.Warn("Failed to start recording",
				zap.String("visit_id", v.ID.String()), zap.Error(err))
			warnings = append(warnings, "recording could not be started")
		} else {
			v.EgressID = &info.EgressID
			v.RecordingStatus = models.RecordingActive
		}
	}

	return warnings
}

// completeVisit performs the completed side effects: stamp the end time,
// compute the duration, stop the recording and the agent.
func (s *visitService) completeVisit(ctx context.Context, v *models.Visit) []string {
	var warnings []string

	now := time.Now()
	v.CompletedAt = &now
	if v.StartedAt != nil {
		seconds := int(now.Sub(*v.StartedAt).Seconds())
		v.Duration = &seconds
	}

	warnings = append(warnings, s.stopRecording(ctx, v)...)
	warnings = append(warnings, s.stopAgent(v)...)

	return warnings
}

// cancelVisit tears the session down: recording, agent, then the room
// itself.
func (s *visitService) cancelVisit(ctx context.Context, v *models.Visit) []string {
	var warnings []string

	warnings = append(warnings, s.stopRecording(ctx, v)...)
	warnings = append(warnings, s.stopAgent(v)...)

	if err := s.rooms.DeleteRoom(ctx, v.RoomName); err != nil {
		s.logger.Warn("Failed to delete room on cancel",
			zap.String("visit_id", v.ID.String()), zap.Error(err))
		warnings = append(warnings, "room teardown failed")
	}

	return warnings
}

func (s *visitService) stopRecording(ctx context.Context, v *models.Visit) []string {
	if v.RecordingStatus != models.RecordingActive || v.EgressID == nil {
		return nil
	}

	if _, err := s.egress.StopEgress(ctx, *v.EgressID); err != nil {
		s.logger.Warn("Failed to stop recording",
			zap.String("visit_id", v.ID.String()),
			zap.String("egress_id", *v.EgressID),
			zap.Error(err))
		// The egress id stays on the visit either way; the room empty
		// timeout eventually ends an orphaned egress server-side.
		v.RecordingStatus = models.RecordingStopped
		return []string{"recording could not be stopped cleanly"}
	}

	v.RecordingStatus = models.RecordingStopped
	return nil
}

func (s *visitService) stopAgent(v *models.Visit) []string {
	if s.agents == nil || !s.agents.Running(v.ID) {
		return nil
	}
	if err := s.agents.Stop(v.ID); err != nil {
		s.logger.Warn("Failed to stop agent",
			zap.String("visit_id", v.ID.String()), zap.Error(err))
		return []string{"agent could not be stopped"}
	}
	return nil
}
