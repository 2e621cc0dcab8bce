package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/models"
	"github.com/medsim-inc/medsim-engine/pkg/services"
)

// EvaluationListResponse for GET /api/evaluations
type EvaluationListResponse struct {
	Evaluations []*models.Evaluation `json:"evaluations"`
	Total       int                  `json:"total"`
}

// EvaluationsHandler handles visit evaluation HTTP requests.
type EvaluationsHandler struct {
	evaluationService services.EvaluationService
	logger            *zap.Logger
}

// NewEvaluationsHandler creates a new evaluations handler.
func NewEvaluationsHandler(evaluationService services.EvaluationService, logger *zap.Logger) *EvaluationsHandler {
	return &EvaluationsHandler{
		evaluationService: evaluationService,
		logger:            logger,
	}
}

// RegisterRoutes registers the evaluations handler's routes on the given mux.
func (h *EvaluationsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/visits/{vid}/evaluation", authMiddleware.RequireAuth(h.Evaluate))
	mux.HandleFunc("GET /api/visits/{vid}/evaluation", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("GET /api/evaluations", authMiddleware.RequireAuth(h.List))
}

// Evaluate handles POST /api/visits/{vid}/evaluation
func (h *EvaluationsHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	eval, err := h.evaluationService.Evaluate(r.Context(), principal, visitID)
	if err != nil {
		h.logger.Warn("Evaluation rejected",
			zap.String("visit_id", visitID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, err, "evaluate_visit_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: eval}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/visits/{vid}/evaluation
func (h *EvaluationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	eval, err := h.evaluationService.Get(r.Context(), principal, visitID)
	if err != nil {
		ServiceError(w, h.logger, err, "get_evaluation_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: eval}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/evaluations
func (h *EvaluationsHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	evaluations, err := h.evaluationService.ListByUser(r.Context(), principal)
	if err != nil {
		ServiceError(w, h.logger, err, "list_evaluations_failed")
		return
	}

	response := EvaluationListResponse{Evaluations: evaluations, Total: len(evaluations)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
