package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/metrics"
)

const (
	defaultStatsWindow = 24 * time.Hour
	maxStatsWindow     = 30 * 24 * time.Hour
)

// StatsReader is implemented by metrics.Repository.
type StatsReader interface {
	Summary(ctx context.Context, since time.Time) (*metrics.Summary, error)
}

type StatsHandler struct {
	stats StatsReader
	now   func() time.Time
}

func NewStatsHandler(stats StatsReader) *StatsHandler {
	return &StatsHandler{stats: stats, now: time.Now}
}

// Stats GET /v1/kiosk/stats?window=24h - per-flow outcome counts and latency.
func (h *StatsHandler) Stats(c *fiber.Ctx) error {
	window := defaultStatsWindow
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxStatsWindow {
			return domain.ErrValidationFailed.WithError(fmt.Errorf("window must be a duration up to %s, got %q", maxStatsWindow, raw))
		}
		window = d
	}

	summary, err := h.stats.Summary(c.Context(), h.now().Add(-window))
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	return c.JSON(summary)
}
