package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/embedding"
)

const identityColumns = `id, name, otp, vector, created_at`

type IdentityRepository struct {
	pool PgxPool
}

func NewIdentityRepository(pool PgxPool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// toVector decodes the transport string into the pgvector column value.
// An empty vector string stores NULL.
func toVector(encoded string) (*pgvector.Vector, error) {
	emb, err := embedding.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if emb.IsEmpty() {
		return nil, nil
	}
	vec := pgvector.NewVector(emb.Float32())
	return &vec, nil
}

func (r *IdentityRepository) Create(ctx context.Context, name, otp, vector string) (*domain.Identity, error) {
	query := `
		INSERT INTO identities (name, otp, vector, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at
	`

	vec, err := toVector(vector)
	if err != nil {
		return nil, err
	}

	identity := &domain.Identity{Name: name, OTP: otp, Vector: vector}
	err = r.pool.QueryRow(ctx, query, name, otp, vector, vec).Scan(&identity.ID, &identity.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrOTPExists
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	return identity, nil
}

func (r *IdentityRepository) GetByID(ctx context.Context, id int64) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity by id: %w", err)
	}
	return identity, nil
}

func (r *IdentityRepository) GetByOTP(ctx context.Context, otp string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE otp = $1`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, otp))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOTPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity by otp: %w", err)
	}
	return identity, nil
}

// Update replaces the non-nil fields of upd. Replacing the vector also
// replaces the embedding column.
func (r *IdentityRepository) Update(ctx context.Context, id int64, upd domain.IdentityUpdate) (*domain.Identity, error) {
	query := `
		UPDATE identities SET
			name = COALESCE($2, name),
			otp = COALESCE($3, otp),
			vector = COALESCE($4, vector),
			embedding = CASE WHEN $4::text IS NULL THEN embedding ELSE $5 END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + identityColumns

	var vec *pgvector.Vector
	if upd.Vector != nil {
		v, err := toVector(*upd.Vector)
		if err != nil {
			return nil, err
		}
		vec = v
	}

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, id, upd.Name, upd.OTP, upd.Vector, vec))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrOTPExists
		}
		return nil, fmt.Errorf("update identity: %w", err)
	}
	return identity, nil
}

func (r *IdentityRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM identities WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}

	return nil
}

func (r *IdentityRepository) List(ctx context.Context, limit, offset int) ([]domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities ORDER BY id LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	identities := make([]domain.Identity, 0)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	return identities, nil
}

// NearestByEmbedding returns the identities closest to emb by cosine
// distance, best first. Rows whose embedding has a different dimension are
// skipped.
func (r *IdentityRepository) NearestByEmbedding(ctx context.Context, emb embedding.Embedding, limit int) ([]domain.IdentityMatch, error) {
	query := `
		SELECT id, name, 1 - (embedding <=> $1) AS similarity
		FROM identities
		WHERE embedding IS NOT NULL AND vector_dims(embedding) = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`

	if emb.IsEmpty() {
		return []domain.IdentityMatch{}, nil
	}

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(emb.Float32()), emb.Dim(), limit)
	if err != nil {
		return nil, fmt.Errorf("nearest identities: %w", err)
	}
	defer rows.Close()

	matches := make([]domain.IdentityMatch, 0)
	for rows.Next() {
		var m domain.IdentityMatch
		if err := rows.Scan(&m.IdentityID, &m.Name, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nearest identities: %w", err)
	}

	return matches, nil
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var identity domain.Identity
	err := row.Scan(
		&identity.ID,
		&identity.Name,
		&identity.OTP,
		&identity.Vector,
		&identity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}
