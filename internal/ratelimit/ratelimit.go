package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/giovannifil-64/DeVisu/internal/domain"
)

// DB interface for database operations
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RateLimiter counts OTP attempts per client in rate_limit_counters.
// A window opens on the first attempt and lasts for window; the counter
// resets once it has closed.
type RateLimiter struct {
	db     DB
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(db DB, window time.Duration) *RateLimiter {
	return &RateLimiter{
		db:     db,
		window: window,
		now:    time.Now,
	}
}

func attemptKey(client string) string {
	return "otp_attempt:" + client
}

// CheckAttempt records one attempt for client and returns
// domain.ErrRateLimitExceeded once more than limit attempts fall in the
// current window. A non-positive limit disables the check.
func (r *RateLimiter) CheckAttempt(ctx context.Context, client string, limit int) error {
	if limit <= 0 {
		return nil
	}

	now := r.now()
	windowEnd := now.Add(r.window)

	query := `
		WITH current_count AS (
			INSERT INTO rate_limit_counters (key, count, window_start, window_end)
			VALUES ($1, 1, $2, $3)
			ON CONFLICT (key)
			DO UPDATE SET
				count = CASE
					WHEN rate_limit_counters.window_end <= $2 THEN 1
					ELSE rate_limit_counters.count + 1
				END,
				window_start = CASE
					WHEN rate_limit_counters.window_end <= $2 THEN $2
					ELSE rate_limit_counters.window_start
				END,
				window_end = CASE
					WHEN rate_limit_counters.window_end <= $2 THEN $3
					ELSE rate_limit_counters.window_end
				END
			RETURNING count
		)
		SELECT count FROM current_count
	`

	var count int
	err := r.db.QueryRow(ctx, query, attemptKey(client), now, windowEnd).Scan(&count)
	if err != nil {
		return fmt.Errorf("check rate limit: %w", err)
	}

	if count > limit {
		return domain.ErrRateLimitExceeded.WithError(
			fmt.Errorf("%d/%d attempts in window", count, limit))
	}

	return nil
}

// CleanupExpired removes counters whose window closed over an hour ago
func (r *RateLimiter) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM rate_limit_counters WHERE window_end < NOW() - INTERVAL '1 hour'`
	result, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// CurrentCount returns the attempts recorded for client in the open window.
func (r *RateLimiter) CurrentCount(ctx context.Context, client string) (int, error) {
	query := `
		SELECT count
		FROM rate_limit_counters
		WHERE key = $1 AND window_end > $2
	`

	var count int
	err := r.db.QueryRow(ctx, query, attemptKey(client), r.now()).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("current count: %w", err)
	}

	return count, nil
}

// Reset clears the counter for client, used after a successful verification.
func (r *RateLimiter) Reset(ctx context.Context, client string) error {
	query := `DELETE FROM rate_limit_counters WHERE key = $1`
	_, err := r.db.Exec(ctx, query, attemptKey(client))
	return err
}
