//go:build integration

package repository

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/giovannifil-64/DeVisu/internal/database"
	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/embedding"
)

func setupIntegrationTest(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "devisu_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/devisu_test?sslmode=disable", host, port.Port())

	sqlDB, err := database.NewPool(database.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	migrator, err := database.NewMigrator(sqlDB, "devisu_test")
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	_ = migrator.Close()

	db, err := database.NewPgxPool(ctx, database.DefaultPoolConfig(dsn))
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func normalized(v []float64) embedding.Embedding {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	n := math.Sqrt(sum)
	out := make(embedding.Embedding, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func TestIdentityRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, cleanup := setupIntegrationTest(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewIdentityRepository(db)

	ada, err := repo.Create(ctx, "Ada", "111111", embedding.Encode(normalized([]float64{1, 0, 0})))
	require.NoError(t, err)
	assert.NotZero(t, ada.ID)

	grace, err := repo.Create(ctx, "Grace", "222222", embedding.Encode(normalized([]float64{0.9, 0.1, 0})))
	require.NoError(t, err)

	_, err = repo.Create(ctx, "Linus", "333333", embedding.Encode(normalized([]float64{0, 1, 0})))
	require.NoError(t, err)

	pending, err := repo.Create(ctx, "Pending", "444444", "")
	require.NoError(t, err)

	t.Run("duplicate otp is rejected", func(t *testing.T) {
		_, err := repo.Create(ctx, "Copy", "111111", "")
		assert.ErrorIs(t, err, domain.ErrOTPExists)
	})

	t.Run("lookup by otp returns the stored vector", func(t *testing.T) {
		got, err := repo.GetByOTP(ctx, "111111")
		require.NoError(t, err)
		assert.Equal(t, ada.ID, got.ID)
		assert.Equal(t, ada.Vector, got.Vector)

		_, err = repo.GetByOTP(ctx, "999999")
		assert.ErrorIs(t, err, domain.ErrOTPNotFound)
	})

	t.Run("update attaches a vector", func(t *testing.T) {
		vec := embedding.Encode(normalized([]float64{0, 0, 1}))
		got, err := repo.Update(ctx, pending.ID, domain.IdentityUpdate{Vector: &vec})
		require.NoError(t, err)
		assert.Equal(t, vec, got.Vector)
		assert.Equal(t, "Pending", got.Name)
	})

	t.Run("nearest orders by cosine similarity", func(t *testing.T) {
		matches, err := repo.NearestByEmbedding(ctx, normalized([]float64{1, 0, 0}), 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, ada.ID, matches[0].IdentityID)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-5)
		assert.Equal(t, grace.ID, matches[1].IdentityID)
	})

	t.Run("nearest skips other dimensions", func(t *testing.T) {
		matches, err := repo.NearestByEmbedding(ctx, normalized([]float64{1, 0, 0, 0}), 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("list pages by id", func(t *testing.T) {
		page, err := repo.List(ctx, 2, 1)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, grace.ID, page[0].ID)
	})

	t.Run("delete removes the record", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, ada.ID))
		_, err := repo.GetByID(ctx, ada.ID)
		assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, ada.ID), domain.ErrIdentityNotFound)
	})

	t.Run("attempts are recorded", func(t *testing.T) {
		attempts := NewAttemptRepository(db)
		a := &domain.Attempt{Flow: "verify", IdentityID: &grace.ID, Success: true, Reason: "match", Score: 0.91, LatencyMs: 120}
		require.NoError(t, attempts.Create(ctx, a))
		assert.NotZero(t, a.ID)
	})
}
