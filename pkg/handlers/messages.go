package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/models"
	"github.com/medsim-inc/medsim-engine/pkg/services"
)

// AppendMessageRequest for POST /api/visits/{vid}/messages
type AppendMessageRequest struct {
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MessageListResponse for GET /api/visits/{vid}/messages
type MessageListResponse struct {
	Messages []*models.TranscriptTurn `json:"messages"`
	Total    int                      `json:"total"`
}

// MessagesHandler handles visit transcript HTTP requests.
type MessagesHandler struct {
	transcriptService services.TranscriptService
	logger            *zap.Logger
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(transcriptService services.TranscriptService, logger *zap.Logger) *MessagesHandler {
	return &MessagesHandler{
		transcriptService: transcriptService,
		logger:            logger,
	}
}

// RegisterRoutes registers the messages handler's routes on the given mux.
func (h *MessagesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/visits/{vid}/messages", authMiddleware.RequireAuth(h.Append))
	mux.HandleFunc("GET /api/visits/{vid}/messages", authMiddleware.RequireAuth(h.List))

	// The doctor-agent worker reads and writes its side of the
	// conversation with the service token.
	mux.HandleFunc("GET /internal/visits/{vid}/messages", authMiddleware.RequireServiceToken(h.AgentList))
	mux.HandleFunc("POST /internal/visits/{vid}/messages", authMiddleware.RequireServiceToken(h.AgentAppend))
}

// Append handles POST /api/visits/{vid}/messages
func (h *MessagesHandler) Append(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	h.append(w, r, &principal)
}

// AgentAppend handles POST /internal/visits/{vid}/messages
func (h *MessagesHandler) AgentAppend(w http.ResponseWriter, r *http.Request) {
	h.append(w, r, nil)
}

func (h *MessagesHandler) append(w http.ResponseWriter, r *http.Request, principal *auth.Principal) {
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	var req AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	turn, err := h.transcriptService.Append(r.Context(), principal, visitID, req.Role, req.Content, req.Metadata)
	if err != nil {
		ServiceError(w, h.logger, err, "append_message_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: turn}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/visits/{vid}/messages
// The order query parameter selects asc (default) or desc.
func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	order := r.URL.Query().Get("order")
	if order != "" && order != "asc" && order != "desc" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_order", "order must be asc or desc"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	messages, err := h.transcriptService.List(r.Context(), &principal, visitID, order != "desc")
	if err != nil {
		ServiceError(w, h.logger, err, "list_messages_failed")
		return
	}

	response := MessageListResponse{Messages: messages, Total: len(messages)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AgentList handles GET /internal/visits/{vid}/messages
// Always ascending; the worker tails the transcript from an offset.
func (h *MessagesHandler) AgentList(w http.ResponseWriter, r *http.Request) {
	visitID, ok := ParseVisitID(w, r, h.logger)
	if !ok {
		return
	}

	messages, err := h.transcriptService.List(r.Context(), nil, visitID, true)
	if err != nil {
		ServiceError(w, h.logger, err, "list_messages_failed")
		return
	}

	response := MessageListResponse{Messages: messages, Total: len(messages)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
