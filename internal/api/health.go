package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kipackjeong/Demo-sub001/internal/chat"
	"github.com/kipackjeong/Demo-sub001/internal/engine"
	"github.com/kipackjeong/Demo-sub001/internal/store"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo     store.Repository
	eng      engine.Engine
	registry *chat.Registry
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, eng engine.Engine, registry *chat.Registry) *HealthHandler {
	return &HealthHandler{repo: repo, eng: eng, registry: registry}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	statusCode := http.StatusOK
	overall := "healthy"

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "check", "database", "error", err)
		checks["database"] = "unreachable"
		overall = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if err := h.eng.Healthy(ctx); err != nil {
		slog.Error("Health check failed", "check", "engine", "error", err)
		checks["engine"] = "unreachable"
		overall = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["engine"] = "ok"
	}

	JSON(w, statusCode, map[string]interface{}{
		"status":             overall,
		"checks":             checks,
		"connections_active": h.registry.Count(),
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
