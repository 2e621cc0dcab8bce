package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/services"
)

// ChatReplyRequest for POST /api/chat/reply
type ChatReplyRequest struct {
	VisitID uuid.UUID `json:"visit_id"`
	Message string    `json:"message"`
}

// ChatHandler handles text-chat doctor reply requests.
type ChatHandler struct {
	chatService services.ChatService
	logger      *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/chat/reply", authMiddleware.RequireAuth(h.Reply))
}

// Reply handles POST /api/chat/reply
func (h *ChatHandler) Reply(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	var req ChatReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if req.VisitID == uuid.Nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "visit_id is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	reply, err := h.chatService.Reply(r.Context(), &principal, req.VisitID, req.Message)
	if err != nil {
		ServiceError(w, h.logger, err, "chat_reply_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: reply}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
