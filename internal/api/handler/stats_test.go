package handler

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/giovannifil-64/DeVisu/internal/api/middleware"
	"github.com/giovannifil-64/DeVisu/internal/metrics"
)

type MockStatsReader struct {
	mock.Mock
}

func (m *MockStatsReader) Summary(ctx context.Context, since time.Time) (*metrics.Summary, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metrics.Summary), args.Error(1)
}

func newStatsApp(stats StatsReader, now time.Time) *fiber.App {
	h := NewStatsHandler(stats)
	h.now = func() time.Time { return now }

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(testLogger())})
	app.Get("/stats", h.Stats)
	return app
}

func TestStatsHandler_Stats(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		query      string
		since      time.Time
		summary    *metrics.Summary
		err        error
		wantStatus int
	}{
		{
			name:  "default window",
			since: now.Add(-24 * time.Hour),
			summary: &metrics.Summary{Flows: []metrics.FlowStats{
				{Flow: "verify", Total: 4, Succeeded: 3, SuccessRate: 0.75, Reasons: map[string]int64{"match": 3, "no_match": 1}},
			}},
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "custom window",
			query:      "?window=1h",
			since:      now.Add(-time.Hour),
			summary:    &metrics.Summary{Flows: []metrics.FlowStats{}},
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "unparseable window",
			query:      "?window=yesterday",
			wantStatus: fiber.StatusUnprocessableEntity,
		},
		{
			name:       "window too long",
			query:      "?window=2000h",
			wantStatus: fiber.StatusUnprocessableEntity,
		},
		{
			name:       "database failure",
			since:      now.Add(-24 * time.Hour),
			err:        errors.New("connection refused"),
			wantStatus: fiber.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := new(MockStatsReader)
			if tt.summary != nil || tt.err != nil {
				stats.On("Summary", mock.Anything, tt.since).Return(tt.summary, tt.err)
			}

			resp, err := newStatsApp(stats, now).Test(httptest.NewRequest("GET", "/stats"+tt.query, nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantStatus == fiber.StatusOK {
				got := decode[metrics.Summary](t, resp.Body)
				assert.Len(t, got.Flows, len(tt.summary.Flows))
			}
			stats.AssertExpectations(t)
		})
	}
}
