package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/embedding"
)

var identityCols = []string{"id", "name", "otp", "vector", "created_at"}

func TestIdentityRepository_Create(t *testing.T) {
	now := time.Now()
	vector := embedding.Encode(embedding.Embedding{0.1, 0.2, 0.3})

	tests := []struct {
		name      string
		vector    string
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantID    int64
		wantErr   error
	}{
		{
			name:   "successful creation",
			vector: vector,
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO identities \(name, otp, vector, embedding, created_at, updated_at\)`).
					WithArgs("Ada", "123456", vector, pgxmock.AnyArg()).
					WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))
			},
			wantID: 7,
		},
		{
			name:   "empty vector stores null embedding",
			vector: "",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO identities`).
					WithArgs("Ada", "123456", "", pgxmock.AnyArg()).
					WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(8), now))
			},
			wantID: 8,
		},
		{
			name:   "duplicate otp",
			vector: vector,
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO identities`).
					WithArgs("Ada", "123456", vector, pgxmock.AnyArg()).
					WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "identities_otp_key" (SQLSTATE 23505)`))
			},
			wantErr: domain.ErrOTPExists,
		},
		{
			name:      "malformed vector never reaches the database",
			vector:    "%%%",
			mockSetup: func(mock pgxmock.PgxPoolIface) {},
			wantErr:   domain.ErrMalformedVector,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			repo := NewIdentityRepository(mock)
			got, err := repo.Create(context.Background(), "Ada", "123456", tt.vector)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, got.ID)
				assert.Equal(t, "Ada", got.Name)
				assert.Equal(t, "123456", got.OTP)
				assert.Equal(t, tt.vector, got.Vector)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdentityRepository_GetByOTP(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantErrIn string
	}{
		{
			name: "found",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT id, name, otp, vector, created_at FROM identities WHERE otp = \$1`).
					WithArgs("654321").
					WillReturnRows(pgxmock.NewRows(identityCols).AddRow(int64(3), "Grace", "654321", "AAAAAAAA8D8=", now))
			},
		},
		{
			name: "not found",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM identities WHERE otp = \$1`).
					WithArgs("654321").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: domain.ErrOTPNotFound,
		},
		{
			name: "database error",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM identities WHERE otp = \$1`).
					WithArgs("654321").
					WillReturnError(errors.New("connection reset"))
			},
			wantErrIn: "get identity by otp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			got, err := NewIdentityRepository(mock).GetByOTP(context.Background(), "654321")

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrIn != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrIn)
			default:
				require.NoError(t, err)
				assert.Equal(t, int64(3), got.ID)
				assert.Equal(t, "Grace", got.Name)
				assert.Equal(t, "AAAAAAAA8D8=", got.Vector)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdentityRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM identities WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewIdentityRepository(mock).GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_Update(t *testing.T) {
	now := time.Now()
	name := "Ada Lovelace"

	tests := []struct {
		name      string
		upd       domain.IdentityUpdate
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "rename",
			upd:  domain.IdentityUpdate{Name: &name},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE identities SET`).
					WithArgs(int64(1), &name, (*string)(nil), (*string)(nil), pgxmock.AnyArg()).
					WillReturnRows(pgxmock.NewRows(identityCols).AddRow(int64(1), name, "111111", "", now))
			},
		},
		{
			name: "missing identity",
			upd:  domain.IdentityUpdate{Name: &name},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE identities SET`).
					WithArgs(int64(1), &name, (*string)(nil), (*string)(nil), pgxmock.AnyArg()).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: domain.ErrIdentityNotFound,
		},
		{
			name: "malformed vector",
			upd: func() domain.IdentityUpdate {
				v := "abc"
				return domain.IdentityUpdate{Vector: &v}
			}(),
			mockSetup: func(mock pgxmock.PgxPoolIface) {},
			wantErr:   domain.ErrMalformedVector,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			got, err := NewIdentityRepository(mock).Update(context.Background(), 1, tt.upd)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, name, got.Name)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdentityRepository_Delete(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "deleted",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`DELETE FROM identities WHERE id = \$1`).
					WithArgs(int64(5)).
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
			},
		},
		{
			name: "not found",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`DELETE FROM identities WHERE id = \$1`).
					WithArgs(int64(5)).
					WillReturnResult(pgxmock.NewResult("DELETE", 0))
			},
			wantErr: domain.ErrIdentityNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			err = NewIdentityRepository(mock).Delete(context.Background(), 5)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdentityRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, name, otp, vector, created_at FROM identities ORDER BY id LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 0).
		WillReturnRows(pgxmock.NewRows(identityCols).
			AddRow(int64(1), "Ada", "111111", "", now).
			AddRow(int64(2), "Grace", "222222", "", now))

	got, err := NewIdentityRepository(mock).List(context.Background(), 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Grace", got[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_NearestByEmbedding(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, name, 1 - \(embedding <=> \$1\) AS similarity FROM identities`).
		WithArgs(pgxmock.AnyArg(), 3, 5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "similarity"}).
			AddRow(int64(4), "Ada", 0.97).
			AddRow(int64(9), "Grace", 0.41))

	repo := NewIdentityRepository(mock)
	got, err := repo.NearestByEmbedding(context.Background(), embedding.Embedding{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].IdentityID)
	assert.InDelta(t, 0.97, got[0].Similarity, 1e-9)

	empty, err := repo.NearestByEmbedding(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := int64(3)
	now := time.Now()
	attempt := &domain.Attempt{Flow: "verify", IdentityID: &id, Success: true, Reason: "match", Score: 0.8, LatencyMs: 1200}

	mock.ExpectQuery(`INSERT INTO kiosk_attempts`).
		WithArgs("verify", &id, true, "match", 0.8, int64(1200)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))

	require.NoError(t, NewAttemptRepository(mock).Create(context.Background(), attempt))
	assert.Equal(t, int64(11), attempt.ID)
	assert.Equal(t, now, attempt.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(nil))
	assert.True(t, isUniqueViolation(errors.New("SQLSTATE 23505")))
	assert.True(t, isUniqueViolation(errors.New("duplicate key value")))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
}
