package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/livekit"
	"github.com/medsim-inc/medsim-engine/pkg/models"
	"github.com/medsim-inc/medsim-engine/pkg/personas"
)

// mockVisitRepo is a function-field mock over the visit repository.
// newMockVisitRepo wires defaults around a single backing visit so most
// tests only override what they care about.
type mockVisitRepo struct {
	CreateFunc               func(ctx context.Context, visit *models.Visit) error
	GetByIDFunc              func(ctx context.Context, id uuid.UUID) (*models.Visit, error)
	ListByUserFunc           func(ctx context.Context, userID uuid.UUID) ([]*models.VisitSummary, error)
	GetContextFunc           func(ctx context.Context, id uuid.UUID) (*models.VisitContext, error)
	WithLockedFunc           func(ctx context.Context, id uuid.UUID, fn func(v *models.Visit) error) (*models.Visit, error)
	MarkRecordingActiveFunc  func(ctx context.Context, id uuid.UUID, egressID string) error
	MarkRecordingStoppedFunc func(ctx context.Context, id uuid.UUID) error
}

// newMockVisitRepo returns a repo whose reads and locked updates operate
// on the given visit in memory.
func newMockVisitRepo(visit *models.Visit) *mockVisitRepo {
	return &mockVisitRepo{
		CreateFunc: func(ctx context.Context, v *models.Visit) error { return nil },
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
			if visit == nil || visit.ID != id {
				return nil, apperrors.ErrNotFound
			}
			copied := *visit
			return &copied, nil
		},
		WithLockedFunc: func(ctx context.Context, id uuid.UUID, fn func(v *models.Visit) error) (*models.Visit, error) {
			if visit == nil || visit.ID != id {
				return nil, apperrors.ErrNotFound
			}
			working := *visit
			if err := fn(&working); err != nil {
				return nil, err
			}
			*visit = working
			copied := working
			return &copied, nil
		},
		MarkRecordingActiveFunc: func(ctx context.Context, id uuid.UUID, egressID string) error {
			if visit == nil || visit.ID != id {
				return apperrors.ErrNotFound
			}
			if visit.RecordingStatus == models.RecordingActive {
				return apperrors.ErrConflict
			}
			visit.EgressID = &egressID
			visit.RecordingStatus = models.RecordingActive
			return nil
		},
		MarkRecordingStoppedFunc: func(ctx context.Context, id uuid.UUID) error {
			if visit == nil || visit.ID != id {
				return apperrors.ErrNotFound
			}
			visit.RecordingStatus = models.RecordingStopped
			return nil
		},
	}
}

func (m *mockVisitRepo) Create(ctx context.Context, visit *models.Visit) error {
	return m.CreateFunc(ctx, visit)
}

func (m *mockVisitRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	return m.GetByIDFunc(ctx, id)
}

func (m *mockVisitRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.VisitSummary, error) {
	return m.ListByUserFunc(ctx, userID)
}

func (m *mockVisitRepo) GetContext(ctx context.Context, id uuid.UUID) (*models.VisitContext, error) {
	return m.GetContextFunc(ctx, id)
}

func (m *mockVisitRepo) WithLocked(ctx context.Context, id uuid.UUID, fn func(v *models.Visit) error) (*models.Visit, error) {
	return m.WithLockedFunc(ctx, id, fn)
}

func (m *mockVisitRepo) MarkRecordingActive(ctx context.Context, id uuid.UUID, egressID string) error {
	return m.MarkRecordingActiveFunc(ctx, id, egressID)
}

func (m *mockVisitRepo) MarkRecordingStopped(ctx context.Context, id uuid.UUID) error {
	return m.MarkRecordingStoppedFunc(ctx, id)
}

type mockScenarioRepo struct {
	GetActiveFunc  func(ctx context.Context, id uuid.UUID) (*models.Scenario, error)
	ListActiveFunc func(ctx context.Context) ([]*models.Scenario, error)
}

func (m *mockScenarioRepo) GetActive(ctx context.Context, id uuid.UUID) (*models.Scenario, error) {
	return m.GetActiveFunc(ctx, id)
}

func (m *mockScenarioRepo) ListActive(ctx context.Context) ([]*models.Scenario, error) {
	return m.ListActiveFunc(ctx)
}

type mockDoctorRepo struct {
	GetActiveFunc  func(ctx context.Context, id uuid.UUID) (*models.Doctor, error)
	ListActiveFunc func(ctx context.Context) ([]*models.Doctor, error)
}

func (m *mockDoctorRepo) GetActive(ctx context.Context, id uuid.UUID) (*models.Doctor, error) {
	return m.GetActiveFunc(ctx, id)
}

func (m *mockDoctorRepo) ListActive(ctx context.Context) ([]*models.Doctor, error) {
	return m.ListActiveFunc(ctx)
}

type mockTranscriptRepo struct {
	AppendFunc       func(ctx context.Context, turn *models.TranscriptTurn) error
	ListByVisitFunc  func(ctx context.Context, visitID uuid.UUID, asc bool) ([]*models.TranscriptTurn, error)
	CountByVisitFunc func(ctx context.Context, visitID uuid.UUID) (int, error)
}

func (m *mockTranscriptRepo) Append(ctx context.Context, turn *models.TranscriptTurn) error {
	return m.AppendFunc(ctx, turn)
}

func (m *mockTranscriptRepo) ListByVisit(ctx context.Context, visitID uuid.UUID, asc bool) ([]*models.TranscriptTurn, error) {
	return m.ListByVisitFunc(ctx, visitID, asc)
}

func (m *mockTranscriptRepo) CountByVisit(ctx context.Context, visitID uuid.UUID) (int, error) {
	return m.CountByVisitFunc(ctx, visitID)
}

type mockEvaluationRepo struct {
	CreateFunc     func(ctx context.Context, eval *models.Evaluation) error
	GetByVisitFunc func(ctx context.Context, visitID uuid.UUID) (*models.Evaluation, error)
	ListByUserFunc func(ctx context.Context, userID uuid.UUID) ([]*models.Evaluation, error)
}

func (m *mockEvaluationRepo) Create(ctx context.Context, eval *models.Evaluation) error {
	return m.CreateFunc(ctx, eval)
}

func (m *mockEvaluationRepo) GetByVisit(ctx context.Context, visitID uuid.UUID) (*models.Evaluation, error) {
	return m.GetByVisitFunc(ctx, visitID)
}

func (m *mockEvaluationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Evaluation, error) {
	return m.ListByUserFunc(ctx, userID)
}

type mockRoomClient struct {
	EnsureRoomFunc func(ctx context.Context, name string) (*livekit.Room, error)
	DeleteRoomFunc func(ctx context.Context, name string) error
	EnsureCalls    []string
	DeleteCalls    []string
}

func (m *mockRoomClient) EnsureRoom(ctx context.Context, name string) (*livekit.Room, error) {
	m.EnsureCalls = append(m.EnsureCalls, name)
	if m.EnsureRoomFunc != nil {
		return m.EnsureRoomFunc(ctx, name)
	}
	return &livekit.Room{Name: name}, nil
}

func (m *mockRoomClient) DeleteRoom(ctx context.Context, name string) error {
	m.DeleteCalls = append(m.DeleteCalls, name)
	if m.DeleteRoomFunc != nil {
		return m.DeleteRoomFunc(ctx, name)
	}
	return nil
}

type egressStartCall struct {
	RoomName  string
	Filepath  string
	AudioOnly bool
}

type mockEgressClient struct {
	StartFunc  func(ctx context.Context, roomName, filepath string, audioOnly bool) (*livekit.EgressInfo, error)
	StopFunc   func(ctx context.Context, egressID string) (*livekit.EgressInfo, error)
	GetFunc    func(ctx context.Context, egressID string) (*livekit.EgressInfo, error)
	ListFunc   func(ctx context.Context, roomName string) ([]*livekit.EgressInfo, error)
	StartCalls []egressStartCall
	StopCalls  []string
}

func (m *mockEgressClient) StartRoomRecording(ctx context.Context, roomName, filepath string, audioOnly bool) (*livekit.EgressInfo, error) {
	m.StartCalls = append(m.StartCalls, egressStartCall{RoomName: roomName, Filepath: filepath, AudioOnly: audioOnly})
	if m.StartFunc != nil {
		return m.StartFunc(ctx, roomName, filepath, audioOnly)
	}
	return &livekit.EgressInfo{EgressID: "EG_test", RoomName: roomName, Status: livekit.EgressActive}, nil
}

func (m *mockEgressClient) StopEgress(ctx context.Context, egressID string) (*livekit.EgressInfo, error) {
	m.StopCalls = append(m.StopCalls, egressID)
	if m.StopFunc != nil {
		return m.StopFunc(ctx, egressID)
	}
	return &livekit.EgressInfo{EgressID: egressID, Status: livekit.EgressComplete}, nil
}

func (m *mockEgressClient) GetEgress(ctx context.Context, egressID string) (*livekit.EgressInfo, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, egressID)
	}
	return &livekit.EgressInfo{EgressID: egressID, Status: livekit.EgressComplete}, nil
}

func (m *mockEgressClient) ListEgress(ctx context.Context, roomName string) ([]*livekit.EgressInfo, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, roomName)
	}
	return nil, nil
}

type mockAgentRunner struct {
	StopFunc    func(visitID uuid.UUID) error
	RunningFunc func(visitID uuid.UUID) bool
	StopCalls   []uuid.UUID
}

func (m *mockAgentRunner) Stop(visitID uuid.UUID) error {
	m.StopCalls = append(m.StopCalls, visitID)
	if m.StopFunc != nil {
		return m.StopFunc(visitID)
	}
	return nil
}

func (m *mockAgentRunner) Running(visitID uuid.UUID) bool {
	if m.RunningFunc != nil {
		return m.RunningFunc(visitID)
	}
	return false
}

// Fixtures shared across the service tests.

func testPrincipal() auth.Principal {
	return auth.Principal{UserID: uuid.New(), Role: auth.RoleRep}
}

func testDoctor() models.Doctor {
	return models.Doctor{
		ID:              uuid.New(),
		Name:            "Sokolova",
		Specialty:       "cardiology",
		PersonalityType: models.PersonalityDemanding,
		EmpathyLevel:    3,
		PromptTemplate:  "You are a busy hospital physician.",
		IsActive:        true,
	}
}

func testScenario() models.Scenario {
	return models.Scenario{
		ID:              uuid.New(),
		Title:           "New statin launch",
		DifficultyLevel: "medium",
		PromptTemplate:  "The rep is introducing a new statin.",
		IsActive:        true,
	}
}

func testVisit(principal auth.Principal, status string) *models.Visit {
	return &models.Visit{
		ID:              uuid.New(),
		UserID:          principal.UserID,
		ScenarioID:      uuid.New(),
		DoctorID:        uuid.New(),
		Status:          status,
		RoomName:        "visit-test-room",
		RecordingStatus: models.RecordingNone,
	}
}

func testVisitContext(visit *models.Visit) *models.VisitContext {
	doctor := testDoctor()
	scenario := testScenario()
	doctor.ID = visit.DoctorID
	scenario.ID = visit.ScenarioID
	return &models.VisitContext{Visit: *visit, Scenario: scenario, Doctor: doctor}
}

func testCatalog(t *testing.T) *personas.Catalog {
	t.Helper()
	catalog, err := personas.Load("../../personas.yaml")
	if err != nil {
		t.Fatalf("load personas: %v", err)
	}
	return catalog
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
