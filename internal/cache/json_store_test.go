package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Flow  string `json:"flow"`
	State string `json:"state"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJSONStore_SaveAndLoad(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJSONStore[record](NewPGCache(mock), "kiosk_session", time.Minute)
	ctx := context.Background()

	payload := []byte(`{"flow":"verify","state":"otp_submitted"}`)

	mock.ExpectExec("INSERT INTO cache_entries").
		WithArgs("kiosk_session:s1", payload, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT value, expires_at FROM cache_entries").
		WithArgs("kiosk_session:s1").
		WillReturnRows(pgxmock.NewRows([]string{"value", "expires_at"}).
			AddRow(payload, time.Now().Add(time.Minute)))

	require.NoError(t, store.Save(ctx, "s1", &record{Flow: "verify", State: "otp_submitted"}))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, &record{Flow: "verify", State: "otp_submitted"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJSONStore_LoadMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJSONStore[record](NewPGCache(mock), "kiosk_session", time.Minute)

	mock.ExpectQuery("SELECT value, expires_at FROM cache_entries").
		WithArgs("kiosk_session:gone").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Load(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestJSONStore_LoadExpiredIsMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJSONStore[record](NewPGCache(mock), "kiosk_session", time.Minute)

	mock.ExpectQuery("SELECT value, expires_at FROM cache_entries").
		WithArgs("kiosk_session:old").
		WillReturnRows(pgxmock.NewRows([]string{"value", "expires_at"}).
			AddRow([]byte(`{}`), time.Now().Add(-time.Minute)))
	mock.ExpectExec("DELETE FROM cache_entries WHERE key").
		WithArgs("kiosk_session:old").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	_, err = store.Load(context.Background(), "old")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJSONStore_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJSONStore[record](NewPGCache(mock), "kiosk_session", time.Minute)

	mock.ExpectExec("DELETE FROM cache_entries WHERE key").
		WithArgs("kiosk_session:s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	assert.NoError(t, store.Delete(context.Background(), "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
