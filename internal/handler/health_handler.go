package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"tripsync/internal/container"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Service   string            `json:"service"`
	Driver    string            `json:"realtime_driver"`
	Checks    map[string]string `json:"checks,omitempty"`
	Listeners int               `json:"listeners"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	logger.Debug("Health check requested")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "tripsync",
		Driver:    h.container.GetConfig().RealtimeDriver,
		Checks:    map[string]string{},
	}

	if db := h.container.DB; db != nil {
		response.Checks["database"] = checkStatus(db.Health(ctx))
	}
	if h.container.HasRedis() {
		response.Checks["redis"] = checkStatus(h.container.GetRedisClient().Health(ctx))
	}
	for _, n := range h.container.Hub.Stats() {
		response.Listeners += n
	}

	status := http.StatusOK
	for _, v := range response.Checks {
		if v != "ok" {
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.WithError(err).Error("Failed to encode health check response")
		return
	}

	logger.Debug("Health check completed successfully")
}

func checkStatus(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
