package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports liveness and store reachability
type HealthHandler struct {
	pingers map[string]Pinger
	logger  *slog.Logger
}

// NewHealthHandler creates a new HealthHandler. Nil pingers are ignored.
func NewHealthHandler(pingers map[string]Pinger, logger *slog.Logger) *HealthHandler {
	active := make(map[string]Pinger, len(pingers))
	for name, p := range pingers {
		if p != nil {
			active[name] = p
		}
	}
	return &HealthHandler{pingers: active, logger: logger}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.pingers))
	status := http.StatusOK
	for name, p := range h.pingers {
		if err := p.HealthCheck(ctx); err != nil {
			h.logger.Warn("health check failed", slog.String("store", name), slog.Any("error", err))
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	pkghttp.WriteJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": checks,
	})
}
