package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger is a dependency whose connectivity can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	usage      Pinger
	timeout    time.Duration
	configured map[string]bool
}

// NewHealthHandler creates a health handler. configured maps collaborator
// names to whether their credentials are set; they are reported but never
// degrade the status.
func NewHealthHandler(usage Pinger, timeout time.Duration, configured map[string]bool) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{usage: usage, timeout: timeout, configured: configured}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	for name, ok := range h.configured {
		if ok {
			checks[name] = "configured"
		} else {
			checks[name] = "not_configured"
		}
	}

	if h.usage != nil {
		if err := h.usage.Ping(ctx); err != nil {
			slog.Error("Health check failed", "error", err)
			checks["usage_store"] = "unreachable"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["usage_store"] = "ok"
		}
	}

	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
