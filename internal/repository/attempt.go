package repository

import (
	"context"
	"fmt"

	"github.com/giovannifil-64/DeVisu/internal/domain"
)

// AttemptRepository persists the outcome of every kiosk flow.
type AttemptRepository struct {
	pool PgxPool
}

func NewAttemptRepository(pool PgxPool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) Create(ctx context.Context, a *domain.Attempt) error {
	query := `
		INSERT INTO kiosk_attempts (flow, identity_id, success, reason, score, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		a.Flow,
		a.IdentityID,
		a.Success,
		a.Reason,
		a.Score,
		a.LatencyMs,
	).Scan(&a.ID, &a.CreatedAt)

	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}

	return nil
}
