package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readyTimeout = 2 * time.Second

// Version is reported by /health.
const Version = "0.1.0"

// Pinger checks a backing dependency. *pgxpool.Pool and store.Client satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	deps map[string]Pinger
}

// NewHealthHandler checks every named dependency on /ready.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "unavailable"
			continue
		}
		checks[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "ready" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(HealthResponse{
		Status: status,
		Checks: checks,
	})
}
