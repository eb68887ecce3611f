package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// staleAfter is how long a job may stay in "sending" before it is assumed
// lost by a crashed worker and put back in the queue.
const staleAfter = 5 * time.Minute

// Deliverer sends one payload. *Sender implements it.
type Deliverer interface {
	Send(ctx context.Context, eventType string, payload []byte) error
}

type Worker struct {
	db       DB
	sender   Deliverer
	logger   *slog.Logger
	interval time.Duration
	batch    int
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewWorker(db DB, sender Deliverer, cfg Config, logger *slog.Logger) *Worker {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &Worker{
		db:       db,
		sender:   sender,
		logger:   logger.With("component", "webhook"),
		interval: cfg.PollInterval,
		batch:    cfg.BatchSize,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("webhook worker started")

	if err := w.requeueStale(ctx); err != nil {
		w.logger.Error("failed to requeue stale webhook jobs", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("webhook worker stopped")
			return
		case <-ticker.C:
			if err := w.processQueue(ctx); err != nil {
				w.logger.Error("failed to process webhook queue", "error", err)
			}
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Worker) requeueStale(ctx context.Context) error {
	query := `
		UPDATE webhook_queue
		SET status = 'pending',
		    updated_at = NOW()
		WHERE status = 'sending' AND updated_at < $1
	`

	_, err := w.db.Exec(ctx, query, w.now().Add(-staleAfter))
	return err
}

// claim marks up to batch due jobs as sending and returns them. SKIP LOCKED
// lets several API instances share one queue.
func (w *Worker) claim(ctx context.Context) ([]Job, error) {
	query := `
		UPDATE webhook_queue
		SET status = 'sending',
		    updated_at = NOW()
		WHERE id IN (
			SELECT id FROM webhook_queue
			WHERE status = 'pending' AND next_retry_at <= $1
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		RETURNING id, event_type, payload, attempts, max_attempts
	`

	rows, err := w.db.Query(ctx, query, w.now(), w.batch)
	if err != nil {
		return nil, fmt.Errorf("claim webhook jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.EventType, &job.Payload, &job.Attempts, &job.MaxAttempts); err != nil {
			return nil, fmt.Errorf("scan webhook job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (w *Worker) processQueue(ctx context.Context) error {
	jobs, err := w.claim(ctx)
	if err != nil {
		return err
	}

	for i := range jobs {
		if err := w.processJob(ctx, &jobs[i]); err != nil {
			w.logger.Error("failed to process webhook job",
				"job_id", jobs[i].ID,
				"attempts", jobs[i].Attempts,
				"error", err,
			)
		}
	}
	return nil
}

func (w *Worker) processJob(ctx context.Context, job *Job) error {
	if err := w.sender.Send(ctx, job.EventType, job.Payload); err != nil {
		return w.scheduleRetry(ctx, job, err.Error())
	}
	return w.markDelivered(ctx, job.ID)
}

func (w *Worker) scheduleRetry(ctx context.Context, job *Job, errorMsg string) error {
	if job.Attempts+1 >= job.MaxAttempts {
		return w.markFailed(ctx, job.ID, errorMsg)
	}

	delay := time.Duration(1<<job.Attempts) * time.Second
	nextRetry := w.now().Add(delay)

	query := `
		UPDATE webhook_queue
		SET attempts = attempts + 1,
		    next_retry_at = $1,
		    last_error = $2,
		    status = 'pending',
		    updated_at = NOW()
		WHERE id = $3
	`

	if _, err := w.db.Exec(ctx, query, nextRetry, errorMsg, job.ID); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}

	w.logger.Info("webhook job scheduled for retry",
		"job_id", job.ID,
		"attempts", job.Attempts+1,
		"next_retry", nextRetry,
	)
	return nil
}

func (w *Worker) markDelivered(ctx context.Context, jobID int64) error {
	query := `
		UPDATE webhook_queue
		SET status = 'delivered',
		    attempts = attempts + 1,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := w.db.Exec(ctx, query, jobID); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}

	w.logger.Debug("webhook job delivered", "job_id", jobID)
	return nil
}

func (w *Worker) markFailed(ctx context.Context, jobID int64, errorMsg string) error {
	query := `
		UPDATE webhook_queue
		SET status = 'failed',
		    attempts = attempts + 1,
		    last_error = $1,
		    updated_at = NOW()
		WHERE id = $2
	`

	if _, err := w.db.Exec(ctx, query, errorMsg, jobID); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	w.logger.Warn("webhook job failed", "job_id", jobID, "error", errorMsg)
	return nil
}
