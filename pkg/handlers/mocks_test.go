package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/agent"
	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/livekit"
	"github.com/medsim-inc/medsim-engine/pkg/models"
	"github.com/medsim-inc/medsim-engine/pkg/services"
)

type mockVisitService struct {
	CreateFunc     func(ctx context.Context, principal auth.Principal, scenarioID, doctorID uuid.UUID) (*services.CreateVisitResult, error)
	GetFunc        func(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Visit, error)
	ListFunc       func(ctx context.Context, principal auth.Principal) ([]*models.VisitSummary, error)
	GetContextFunc func(ctx context.Context, visitID uuid.UUID) (*models.VisitContext, error)
	JoinTokenFunc  func(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (string, error)
	TransitionFunc func(ctx context.Context, principal auth.Principal, visitID uuid.UUID, target string) (*services.TransitionResult, error)
}

func (m *mockVisitService) Create(ctx context.Context, principal auth.Principal, scenarioID, doctorID uuid.UUID) (*services.CreateVisitResult, error) {
	return m.CreateFunc(ctx, principal, scenarioID, doctorID)
}

func (m *mockVisitService) Get(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Visit, error) {
	return m.GetFunc(ctx, principal, visitID)
}

func (m *mockVisitService) List(ctx context.Context, principal auth.Principal) ([]*models.VisitSummary, error) {
	return m.ListFunc(ctx, principal)
}

func (m *mockVisitService) GetContext(ctx context.Context, visitID uuid.UUID) (*models.VisitContext, error) {
	return m.GetContextFunc(ctx, visitID)
}

func (m *mockVisitService) JoinToken(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (string, error) {
	return m.JoinTokenFunc(ctx, principal, visitID)
}

func (m *mockVisitService) Transition(ctx context.Context, principal auth.Principal, visitID uuid.UUID, target string) (*services.TransitionResult, error) {
	return m.TransitionFunc(ctx, principal, visitID, target)
}

type mockTranscriptService struct {
	AppendFunc func(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, role, content string, metadata map[string]any) (*models.TranscriptTurn, error)
	ListFunc   func(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, asc bool) ([]*models.TranscriptTurn, error)
}

func (m *mockTranscriptService) Append(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, role, content string, metadata map[string]any) (*models.TranscriptTurn, error) {
	return m.AppendFunc(ctx, principal, visitID, role, content, metadata)
}

func (m *mockTranscriptService) List(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, asc bool) ([]*models.TranscriptTurn, error) {
	return m.ListFunc(ctx, principal, visitID, asc)
}

type mockRecordingService struct {
	StartFunc func(ctx context.Context, principal auth.Principal, visitID uuid.UUID, audioOnly bool) (*livekit.EgressInfo, error)
	StopFunc  func(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*livekit.EgressInfo, error)
	InfoFunc  func(ctx context.Context, egressID string) (*livekit.EgressInfo, error)
	ListFunc  func(ctx context.Context, roomName string) ([]*livekit.EgressInfo, error)
}

func (m *mockRecordingService) Start(ctx context.Context, principal auth.Principal, visitID uuid.UUID, audioOnly bool) (*livekit.EgressInfo, error) {
	return m.StartFunc(ctx, principal, visitID, audioOnly)
}

func (m *mockRecordingService) Stop(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*livekit.EgressInfo, error) {
	return m.StopFunc(ctx, principal, visitID)
}

func (m *mockRecordingService) Info(ctx context.Context, egressID string) (*livekit.EgressInfo, error) {
	return m.InfoFunc(ctx, egressID)
}

func (m *mockRecordingService) List(ctx context.Context, roomName string) ([]*livekit.EgressInfo, error) {
	return m.ListFunc(ctx, roomName)
}

type mockEvaluationService struct {
	EvaluateFunc   func(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Evaluation, error)
	GetFunc        func(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Evaluation, error)
	ListByUserFunc func(ctx context.Context, principal auth.Principal) ([]*models.Evaluation, error)
}

func (m *mockEvaluationService) Evaluate(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Evaluation, error) {
	return m.EvaluateFunc(ctx, principal, visitID)
}

func (m *mockEvaluationService) Get(ctx context.Context, principal auth.Principal, visitID uuid.UUID) (*models.Evaluation, error) {
	return m.GetFunc(ctx, principal, visitID)
}

func (m *mockEvaluationService) ListByUser(ctx context.Context, principal auth.Principal) ([]*models.Evaluation, error) {
	return m.ListByUserFunc(ctx, principal)
}

type mockChatService struct {
	ReplyFunc func(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, message string) (*services.ChatReply, error)
}

func (m *mockChatService) Reply(ctx context.Context, principal *auth.Principal, visitID uuid.UUID, message string) (*services.ChatReply, error) {
	return m.ReplyFunc(ctx, principal, visitID, message)
}

type supervisorStartCall struct {
	VisitID   uuid.UUID
	RoomName  string
	JoinToken string
}

type mockSupervisor struct {
	StartFunc   func(ctx context.Context, visitID uuid.UUID, roomName, joinToken string) error
	StopFunc    func(visitID uuid.UUID) error
	RunningFunc func(visitID uuid.UUID) bool
	ListFunc    func() []agent.Handle
	StartCalls  []supervisorStartCall
	StopCalls   []uuid.UUID
}

func (m *mockSupervisor) Start(ctx context.Context, visitID uuid.UUID, roomName, joinToken string) error {
	m.StartCalls = append(m.StartCalls, supervisorStartCall{VisitID: visitID, RoomName: roomName, JoinToken: joinToken})
	if m.StartFunc != nil {
		return m.StartFunc(ctx, visitID, roomName, joinToken)
	}
	return nil
}

func (m *mockSupervisor) Stop(visitID uuid.UUID) error {
	m.StopCalls = append(m.StopCalls, visitID)
	if m.StopFunc != nil {
		return m.StopFunc(visitID)
	}
	return nil
}

func (m *mockSupervisor) Running(visitID uuid.UUID) bool {
	if m.RunningFunc != nil {
		return m.RunningFunc(visitID)
	}
	return false
}

func (m *mockSupervisor) List() []agent.Handle {
	if m.ListFunc != nil {
		return m.ListFunc()
	}
	return nil
}

func (m *mockSupervisor) StopAll() {}

// authedRequest builds a request carrying the given caller's claims, as
// the auth middleware would have left them.
func authedRequest(method, target string, body string, userID uuid.UUID, role string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}

	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
		Role:             role,
	}
	return r.WithContext(context.WithValue(r.Context(), auth.ClaimsKey, claims))
}

func withVisitID(r *http.Request, visitID uuid.UUID) *http.Request {
	r.SetPathValue("vid", visitID.String())
	return r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func testHandlerLogger() *zap.Logger {
	return zap.NewNop()
}
