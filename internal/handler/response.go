package handler

import (
	"encoding/json"
	"net/http"

	"tripsync/internal/middleware"
	apperrors "tripsync/pkg/errors"
	"tripsync/pkg/logger"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError renders err as an ErrorResponse. Anything that is not an
// AppError becomes a 500 whose cause is logged but not sent.
func respondError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	appErr := apperrors.As(err)
	requestID := middleware.GetRequestID(r.Context())

	entry := log.WithFields(map[string]interface{}{
		"request_id": requestID,
		"method":     r.Method,
		"path":       r.URL.Path,
		"status":     appErr.StatusCode,
	}).WithError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	if writeErr := apperrors.Write(w, appErr, requestID); writeErr != nil {
		log.WithError(writeErr).Error("Failed to write error response")
	}
}
