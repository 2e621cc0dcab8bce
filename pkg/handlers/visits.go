package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/services"
)

// CreateVisitRequest for POST /api/visits
type CreateVisitRequest struct {
	ScenarioID uuid.UUID `json:"scenario_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
}

// TransitionVisitRequest for POST /api/visits/{vid}/status
type TransitionVisitRequest struct {
	Status string `json:"status"`
}

// JoinTokenResponse for GET /api/visits/{vid}/token
type JoinTokenResponse struct {
	JoinToken string `json:"join_token"`
	ServerURL string `json:"server_url"`
}

// VisitsHandler handles visit lifecycle HTTP requests.
type VisitsHandler struct {
	visitService services.VisitService
	serverURL    string
	logger       *zap.Logger
}

// NewVisitsHandler creates a new visits handler. serverURL is the media
// server address returned with join tokens.
func NewVisitsHandler(visitService services.VisitService, serverURL string, logger *zap.Logger) *VisitsHandler {
	return &VisitsHandler{
		visitService: visitService,
		serverURL:    serverURL,
		logger:       logger,
	}
}

// RegisterRoutes registers the visits handler's routes on the given mux.
func (h *VisitsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/visits", authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("GET /api/visits", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("GET /api/visits/{vid}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("POST /api/visits/{vid}/status", authMiddleware.RequireAuth(h.Transition))
	mux.HandleFunc("GET /api/visits/{vid}/token", authMiddleware.RequireAuth(h.Token))

	// The doctor-agent worker fetches its visit context with the service
	// token, not a user JWT.
	mux.HandleFunc("GET /api/visits/{vid}/agent", authMiddleware.RequireServiceToken(h.AgentContext))
}

// Create handles POST /api/visits
func (h *VisitsHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if req.ScenarioID == uuid.Nil || req.DoctorID == uuid.Nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "scenario_id and doctor_id are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.visitService.Create(r.Context(), principal, req.ScenarioID, req.DoctorID)
	if err != nil {
		h.logger.Error("Failed to create visit",
			zap.String("user_id", principal.UserID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, err, "create_visit_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/visits
func (h *VisitsHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	visits, err := h.visitService.List(r.Context(), principal)
	if err != nil {
		h.logger.Error("Failed to list visits",
			zap.String("user_id", principal.UserID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, err, "list_visits_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: visits}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/visits/{vid}
func (h *VisitsHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: visit}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Transition handles POST /api/visits/{vid}/status
func (h *VisitsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	var req TransitionVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.visitService.Transition(r.Context(), principal, visitID, req.Status)
	if err != nil {
		h.logger.Warn("Visit transition rejected",
			zap.String("visit_id", visitID.String()),
			zap.String("target", req.Status),
			zap.Error(err))
		ServiceError(w, h.logger, err, "transition_visit_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Token handles GET /api/visits/{vid}/token
func (h *VisitsHandler) Token(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	token, err := h.visitService.JoinToken(r.Context(), principal, visitID)
	if err != nil {
		ServiceError(w, h.logger, err, "issue_join_token_failed")
		return
	}

	response := JoinTokenResponse{JoinToken: token, ServerURL: h.serverURL}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AgentContext handles GET /api/visits/{vid}/agent
// Returns the full visit context (scenario and persona prompt templates
// included) for the doctor-agent worker.
func (h *VisitsHandler) AgentContext(w http.ResponseWriter, r *http.Request) {
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	vc, err := h.visitService.GetContext(r.Context(), visitID)
	if err != nil {
		ServiceError(w, h.logger, err, "get_visit_context_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: vc}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
