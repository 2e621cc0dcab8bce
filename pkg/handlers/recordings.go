package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/livekit"
	"github.com/medsim-inc/medsim-engine/pkg/services"
)

// StartRecordingRequest for POST /api/visits/{vid}/recording/start
type StartRecordingRequest struct {
	AudioOnly bool `json:"audio_only"`
}

// RecordingListResponse for GET /api/visits/{vid}/recordings
type RecordingListResponse struct {
	Recordings []*livekit.EgressInfo `json:"recordings"`
	Total      int                   `json:"total"`
}

// RecordingsHandler handles recording control HTTP requests.
type RecordingsHandler struct {
	recordingService services.RecordingService
	visitService     services.VisitService
	logger           *zap.Logger
}

// NewRecordingsHandler creates a new recordings handler.
func NewRecordingsHandler(recordingService services.RecordingService, visitService services.VisitService, logger *zap.Logger) *RecordingsHandler {
	return &RecordingsHandler{
		recordingService: recordingService,
		visitService:     visitService,
		logger:           logger,
	}
}

// RegisterRoutes registers the recordings handler's routes on the given mux.
func (h *RecordingsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/visits/{vid}/recording/start", authMiddleware.RequireAuth(h.Start))
	mux.HandleFunc("POST /api/visits/{vid}/recording/stop", authMiddleware.RequireAuth(h.Stop))
	mux.HandleFunc("GET /api/visits/{vid}/recordings", authMiddleware.RequireAuth(h.ListForVisit))
	mux.HandleFunc("GET /api/recordings/{egressId}", authMiddleware.RequireAuth(h.Info))
}

// Start handles POST /api/visits/{vid}/recording/start
func (h *RecordingsHandler) Start(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	// An empty body means a default (audio-only) recording.
	req := StartRecordingRequest{AudioOnly: true}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	info, err := h.recordingService.Start(r.Context(), principal, visitID, req.AudioOnly)
	if err != nil {
		h.logger.Warn("Recording start rejected",
			zap.String("visit_id", visitID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, err, "start_recording_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: info}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Stop handles POST /api/visits/{vid}/recording/stop
func (h *RecordingsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	info, err := h.recordingService.Stop(r.Context(), principal, visitID)
	if err != nil {
		ServiceError(w, h.logger, err, "stop_recording_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: info}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListForVisit handles GET /api/visits/{vid}/recordings
func (h *RecordingsHandler) ListForVisit(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	// Ownership rides on the visit read.
	visit, err := h.visitService.Get(r.Context(), principal, visitID)
	if err != nil {
		ServiceError(w, h.logger, err, "get_visit_failed")
		return
	}

	recordings, err := h.recordingService.List(r.Context(), visit.RoomName)
	if err != nil {
		ServiceError(w, h.logger, err, "list_recordings_failed")
		return
	}

	response := RecordingListResponse{Recordings: recordings, Total: len(recordings)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Info handles GET /api/recordings/{egressId}
func (h *RecordingsHandler) Info(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r, h.logger); !ok {
		return
	}

	egressID := r.PathValue("egressId")
	if egressID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_egress_id", "Egress ID is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	info, err := h.recordingService.Info(r.Context(), egressID)
	if err != nil {
		ServiceError(w, h.logger, err, "get_recording_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: info}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
