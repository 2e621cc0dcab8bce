package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsim-inc/medsim-engine/pkg/agent"
	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/livekit"
	"github.com/medsim-inc/medsim-engine/pkg/models"
)

func testAgentsHandler(visits *mockVisitService, supervisor *mockSupervisor) *AgentsHandler {
	tokens := livekit.NewTokenIssuer("test-key", "test-secret-test-secret", time.Minute)
	return NewAgentsHandler(visits, supervisor, tokens, testHandlerLogger())
}

func TestAgentsHandler_Start(t *testing.T) {
	userID := uuid.New()
	visitID := uuid.New()
	visits := &mockVisitService{
		GetFunc: func(ctx context.Context, principal auth.Principal, id uuid.UUID) (*models.Visit, error) {
			return &models.Visit{ID: id, UserID: userID, Status: models.VisitInProgress, RoomName: "visit-room-3"}, nil
		},
	}
	supervisor := &mockSupervisor{}
	h := testAgentsHandler(visits, supervisor)

	r := withVisitID(authedRequest(http.MethodPost, "/api/visits/x/agent/start", "", userID, auth.RoleRep), visitID)
	w := httptest.NewRecorder()
	h.Start(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, supervisor.StartCalls, 1)
	call := supervisor.StartCalls[0]
	assert.Equal(t, visitID, call.VisitID)
	assert.Equal(t, "visit-room-3", call.RoomName)
	assert.NotEmpty(t, call.JoinToken)
}

func TestAgentsHandler_Start_RequiresInProgress(t *testing.T) {
	userID := uuid.New()
	visits := &mockVisitService{
		GetFunc: func(ctx context.Context, principal auth.Principal, id uuid.UUID) (*models.Visit, error) {
			return &models.Visit{ID: id, UserID: userID, Status: models.VisitScheduled}, nil
		},
	}
	supervisor := &mockSupervisor{}
	h := testAgentsHandler(visits, supervisor)

	r := withVisitID(authedRequest(http.MethodPost, "/api/visits/x/agent/start", "", userID, auth.RoleRep), uuid.New())
	w := httptest.NewRecorder()
	h.Start(w, r)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, supervisor.StartCalls)
}

func TestAgentsHandler_Start_AlreadyRunning(t *testing.T) {
	userID := uuid.New()
	visits := &mockVisitService{
		GetFunc: func(ctx context.Context, principal auth.Principal, id uuid.UUID) (*models.Visit, error) {
			return &models.Visit{ID: id, UserID: userID, Status: models.VisitInProgress, RoomName: "r"}, nil
		},
	}
	supervisor := &mockSupervisor{
		StartFunc: func(ctx context.Context, visitID uuid.UUID, roomName, joinToken string) error {
			return apperrors.ErrConflict
		},
	}
	h := testAgentsHandler(visits, supervisor)

	r := withVisitID(authedRequest(http.MethodPost, "/api/visits/x/agent/start", "", userID, auth.RoleRep), uuid.New())
	w := httptest.NewRecorder()
	h.Start(w, r)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAgentsHandler_Stop(t *testing.T) {
	userID := uuid.New()
	visitID := uuid.New()
	visits := &mockVisitService{
		GetFunc: func(ctx context.Context, principal auth.Principal, id uuid.UUID) (*models.Visit, error) {
			return &models.Visit{ID: id, UserID: userID, Status: models.VisitInProgress}, nil
		},
	}
	supervisor := &mockSupervisor{}
	h := testAgentsHandler(visits, supervisor)

	r := withVisitID(authedRequest(http.MethodPost, "/api/visits/x/agent/stop", "", userID, auth.RoleRep), visitID)
	w := httptest.NewRecorder()
	h.Stop(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uuid.UUID{visitID}, supervisor.StopCalls)
}

func TestAgentsHandler_List(t *testing.T) {
	visitID := uuid.New()
	supervisor := &mockSupervisor{
		ListFunc: func() []agent.Handle {
			return []agent.Handle{{VisitID: visitID, RoomName: "visit-room-3", PID: 4242, StartedAt: time.Now()}}
		},
	}
	h := testAgentsHandler(&mockVisitService{}, supervisor)

	r := authedRequest(http.MethodGet, "/api/agents", "", uuid.New(), auth.RoleTrainer)
	w := httptest.NewRecorder()
	h.List(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	data := resp["data"].(map[string]any)
	assert.Equal(t, float64(1), data["total"])
}
