package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/models"
	"github.com/medsim-inc/medsim-engine/pkg/repositories"
)

// ScenarioListResponse for GET /api/scenarios
type ScenarioListResponse struct {
	Scenarios []*models.Scenario `json:"scenarios"`
	Total     int                `json:"total"`
}

// DoctorListResponse for GET /api/doctors
type DoctorListResponse struct {
	Doctors []*models.Doctor `json:"doctors"`
	Total   int              `json:"total"`
}

// CatalogHandler serves the read-only scenario and doctor catalogs that
// back visit creation.
type CatalogHandler struct {
	scenarios repositories.ScenarioRepository
	doctors   repositories.DoctorRepository
	logger    *zap.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(scenarios repositories.ScenarioRepository, doctors repositories.DoctorRepository, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		scenarios: scenarios,
		doctors:   doctors,
		logger:    logger,
	}
}

// RegisterRoutes registers the catalog handler's routes on the given mux.
func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/scenarios", authMiddleware.RequireAuth(h.ListScenarios))
	mux.HandleFunc("GET /api/doctors", authMiddleware.RequireAuth(h.ListDoctors))
}

// ListScenarios handles GET /api/scenarios
func (h *CatalogHandler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.scenarios.ListActive(r.Context())
	if err != nil {
		h.logger.Error("Failed to list scenarios", zap.Error(err))
		ServiceError(w, h.logger, err, "list_scenarios_failed")
		return
	}

	response := ScenarioListResponse{Scenarios: scenarios, Total: len(scenarios)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListDoctors handles GET /api/doctors
func (h *CatalogHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.doctors.ListActive(r.Context())
	if err != nil {
		h.logger.Error("Failed to list doctors", zap.Error(err))
		ServiceError(w, h.logger, err, "list_doctors_failed")
		return
	}

	response := DoctorListResponse{Doctors: doctors, Total: len(doctors)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
