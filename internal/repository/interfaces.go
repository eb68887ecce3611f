package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/embedding"
)

// PgxPool is the subset of *pgxpool.Pool used by the repositories.
// pgxmock.PgxPoolIface satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IdentityRepositoryInterface defines operations for identity data access
type IdentityRepositoryInterface interface {
	Create(ctx context.Context, name, otp, vector string) (*domain.Identity, error)
	GetByID(ctx context.Context, id int64) (*domain.Identity, error)
	GetByOTP(ctx context.Context, otp string) (*domain.Identity, error)
	Update(ctx context.Context, id int64, upd domain.IdentityUpdate) (*domain.Identity, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]domain.Identity, error)
	NearestByEmbedding(ctx context.Context, emb embedding.Embedding, limit int) ([]domain.IdentityMatch, error)
}

// AttemptRepositoryInterface defines operations for kiosk attempt logging
type AttemptRepositoryInterface interface {
	Create(ctx context.Context, attempt *domain.Attempt) error
}
