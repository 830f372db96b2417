package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"tripsync/pkg/logger"
)

type contextKey string

// RequestIDContextKey is the context key for the request id
const RequestIDContextKey contextKey = "request_id"

// RequestIDHeader carries the id in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request an id, reusing a well-formed one sent by
// the caller, and logs the request once it completes
func RequestID(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			r = r.WithContext(ctx)

			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
			}).Debug("Request handled")
		})
	}
}

// GetRequestID returns the request id stored by RequestID, "" if none
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDContextKey).(string)
	return requestID
}
