package metrics

import (
	"context"
	"log/slog"
	"time"
)

// Aggregator periodically prunes the attempt table and logs a summary of
// the last interval.
type Aggregator struct {
	repo      *Repository
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	done      chan struct{}
}

// NewAggregator creates the periodic attempt aggregator. A zero interval
// means one hour; a zero retention keeps attempts forever.
func NewAggregator(repo *Repository, logger *slog.Logger, interval, retention time.Duration) *Aggregator {
	if interval == 0 {
		interval = time.Hour
	}

	return &Aggregator{
		repo:      repo,
		logger:    logger.With("component", "metrics"),
		interval:  interval,
		retention: retention,
		done:      make(chan struct{}),
	}
}

// Start runs until ctx is cancelled or Stop is called.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval, "retention", a.retention)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("metrics aggregator stopped")
			return
		case <-a.done:
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.aggregate(ctx)
		}
	}
}

// Stop gracefully shuts down the aggregator
func (a *Aggregator) Stop() {
	close(a.done)
}

func (a *Aggregator) aggregate(ctx context.Context) {
	if a.retention > 0 {
		deleted, err := a.repo.DeleteOlderThan(ctx, a.retention)
		if err != nil {
			a.logger.Error("failed to delete old attempts", "error", err)
		} else if deleted > 0 {
			a.logger.Info("deleted old attempts", "count", deleted)
		}
	}

	summary, err := a.repo.Summary(ctx, a.repo.now().Add(-a.interval))
	if err != nil {
		a.logger.Error("failed to summarize attempts", "error", err)
		return
	}

	for _, f := range summary.Flows {
		a.logger.Info("kiosk flow summary",
			"flow", f.Flow,
			"total", f.Total,
			"success_rate", f.SuccessRate,
			"avg_latency_ms", f.AvgLatencyMs,
			"p99_latency_ms", f.P99LatencyMs,
		)
	}
}
