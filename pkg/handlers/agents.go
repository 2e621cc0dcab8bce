package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/agent"
	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/livekit"
	"github.com/medsim-inc/medsim-engine/pkg/logging"
	"github.com/medsim-inc/medsim-engine/pkg/models"
	"github.com/medsim-inc/medsim-engine/pkg/services"
)

// AgentListResponse for GET /api/agents
type AgentListResponse struct {
	Agents []agent.Handle `json:"agents"`
	Total  int            `json:"total"`
}

// AgentsHandler controls doctor-agent workers over HTTP.
type AgentsHandler struct {
	visitService services.VisitService
	supervisor   agent.Supervisor
	tokens       *livekit.TokenIssuer
	logger       *zap.Logger
}

// NewAgentsHandler creates a new agents handler.
func NewAgentsHandler(visitService services.VisitService, supervisor agent.Supervisor, tokens *livekit.TokenIssuer, logger *zap.Logger) *AgentsHandler {
	return &AgentsHandler{
		visitService: visitService,
		supervisor:   supervisor,
		tokens:       tokens,
		logger:       logger,
	}
}

// RegisterRoutes registers the agents handler's routes on the given mux.
func (h *AgentsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/visits/{vid}/agent/start", authMiddleware.RequireAuth(h.Start))
	mux.HandleFunc("POST /api/visits/{vid}/agent/stop", authMiddleware.RequireAuth(h.Stop))
	mux.HandleFunc("GET /api/agents",
		authMiddleware.RequireAuth(
			authMiddleware.RequireRole(auth.RoleAdmin, auth.RoleTrainer, auth.RoleManager)(h.List)))
}

// Start handles POST /api/visits/{vid}/agent/start
// Spawns the doctor-agent worker for an in-progress visit.
func (h *AgentsHandler) Start(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	visit, err := h.visitService.Get(r.Context(), principal, visitID)
	if err != nil {
		ServiceError(w, h.logger, err, "get_visit_failed")
		return
	}
	if visit.Status != models.VisitInProgress {
		if err := ErrorResponse(w, http.StatusConflict, "invalid_state",
			fmt.Sprintf("visit is %s, agent requires in_progress", visit.Status)); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	joinToken, err := h.tokens.JoinToken(visit.RoomName, "doctor-"+visitID.String(), `{"role":"doctor"}`)
	if err != nil {
		h.logger.Error("Failed to issue agent join token",
			zap.String("visit_id", visitID.String()), zap.Error(err))
		ServiceError(w, h.logger, err, "issue_join_token_failed")
		return
	}

	h.logger.Debug("Issued doctor join token",
		zap.String("visit_id", visitID.String()),
		zap.String("token", logging.SanitizeToken(joinToken)))

	if err := h.supervisor.Start(r.Context(), visitID, visit.RoomName, joinToken); err != nil {
		// Spawn errors can echo the worker environment; scrub before logging.
		h.logger.Error("Failed to start agent",
			zap.String("visit_id", visitID.String()),
			zap.String("error", logging.SanitizeError(err)))
		ServiceError(w, h.logger, err, "start_agent_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Message: "agent started"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Stop handles POST /api/visits/{vid}/agent/stop
// Stopping a visit with no running agent succeeds.
func (h *AgentsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	// Ownership check rides on the visit read.
	if _, err := h.visitService.Get(r.Context(), principal, visitID); err != nil {
		ServiceError(w, h.logger, err, "get_visit_failed")
		return
	}

	if err := h.supervisor.Stop(visitID); err != nil {
		h.logger.Error("Failed to stop agent",
			zap.String("visit_id", visitID.String()), zap.Error(err))
		ServiceError(w, h.logger, err, "stop_agent_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "agent stopped"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/agents
func (h *AgentsHandler) List(w http.ResponseWriter, r *http.Request) {
	handles := h.supervisor.List()
	response := AgentListResponse{Agents: handles, Total: len(handles)}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
