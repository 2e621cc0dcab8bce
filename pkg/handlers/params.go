package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/auth"
)

// ParseVisitID extracts and validates the visit ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on
// error (after writing an error response).
// Expects path parameter: vid
func ParseVisitID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "vid", "invalid_visit_id", "Invalid visit ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// requirePrincipal resolves the authenticated caller from the request
// context, writing a 401 when authentication is missing or malformed.
func requirePrincipal(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (auth.Principal, bool) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", err.Error()); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return auth.Principal{}, false
	}
	return principal, true
}
