package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oggyb/sms-gateway/internal/response"
)

// Pinger is a dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HomeHandler serves the root and health endpoints.
type HomeHandler struct {
	deps   map[string]Pinger
	logger *slog.Logger
}

// NewHomeHandler returns a HomeHandler that reports on the named dependencies.
func NewHomeHandler(deps map[string]Pinger, logger *slog.Logger) *HomeHandler {
	return &HomeHandler{deps: deps, logger: logger}
}

// Index godoc
// @Summary     Welcome endpoint
// @Description Simple root endpoint that returns a welcome message.
// @Tags        home
// @Produce     json
// @Success     200 {object} response.WelcomeResponse
// @Router      / [get]
func (h *HomeHandler) Index(w http.ResponseWriter, r *http.Request) {
	payload := response.WelcomePayload{
		Message: "SMS dispatch gateway",
	}

	response.RespondJSON(w, http.StatusOK, payload)
}

// Health godoc
// @Summary     Health check
// @Description Pings the database and Redis. Returns 503 when either is unreachable.
// @Tags        home
// @Produce     json
// @Success     200 {object} response.HealthResponse
// @Failure     503 {object} response.ErrorResponse
// @Router      /health [get]
func (h *HomeHandler) Health(w http.ResponseWriter, r *http.Request) {
	for name, dep := range h.deps {
		if err := dep.Ping(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "dependency", name, "error", err)
			response.RespondError(w, http.StatusServiceUnavailable, name+" unavailable")
			return
		}
	}

	response.RespondJSON(w, http.StatusOK, response.HealthPayload{Status: "ok"})
}
