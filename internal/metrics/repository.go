package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used here.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// FlowStats aggregates the kiosk_attempts rows of one flow.
type FlowStats struct {
	Flow         string           `json:"flow"`
	Total        int64            `json:"total"`
	Succeeded    int64            `json:"succeeded"`
	SuccessRate  float64          `json:"success_rate"`
	AvgLatencyMs float64          `json:"avg_latency_ms"`
	P99LatencyMs float64          `json:"p99_latency_ms"`
	Reasons      map[string]int64 `json:"reasons"`
}

// Summary covers every attempt recorded in [Since, Until].
type Summary struct {
	Since time.Time   `json:"since"`
	Until time.Time   `json:"until"`
	Flows []FlowStats `json:"flows"`
}

// Total counts attempts across all flows.
func (s *Summary) Total() int64 {
	var n int64
	for _, f := range s.Flows {
		n += f.Total
	}
	return n
}

// Repository computes kiosk statistics from the attempt audit table.
type Repository struct {
	db  DB
	now func() time.Time
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Summary aggregates attempts created at or after since, one entry per
// flow ordered by name.
func (r *Repository) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	summary := &Summary{Since: since, Until: r.now(), Flows: []FlowStats{}}

	query := `
		SELECT flow,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE success),
		       AVG(latency_ms)::float8,
		       percentile_cont(0.99) WITHIN GROUP (ORDER BY latency_ms)
		FROM kiosk_attempts
		WHERE created_at >= $1
		GROUP BY flow
		ORDER BY flow
	`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query flow stats: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var s FlowStats
		if err := rows.Scan(&s.Flow, &s.Total, &s.Succeeded, &s.AvgLatencyMs, &s.P99LatencyMs); err != nil {
			return nil, fmt.Errorf("scan flow stats: %w", err)
		}
		if s.Total > 0 {
			s.SuccessRate = float64(s.Succeeded) / float64(s.Total)
		}
		s.Reasons = make(map[string]int64)
		index[s.Flow] = len(summary.Flows)
		summary.Flows = append(summary.Flows, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow stats: %w", err)
	}

	if len(summary.Flows) == 0 {
		return summary, nil
	}

	if err := r.fillReasons(ctx, since, summary, index); err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *Repository) fillReasons(ctx context.Context, since time.Time, summary *Summary, index map[string]int) error {
	query := `
		SELECT flow, reason, COUNT(*)
		FROM kiosk_attempts
		WHERE created_at >= $1
		GROUP BY flow, reason
	`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return fmt.Errorf("query reason counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			flow, reason string
			count        int64
		)
		if err := rows.Scan(&flow, &reason, &count); err != nil {
			return fmt.Errorf("scan reason counts: %w", err)
		}
		// rows inserted between the two queries have no flow entry
		if i, ok := index[flow]; ok {
			summary.Flows[i].Reasons[reason] = count
		}
	}
	return rows.Err()
}

// DeleteOlderThan removes attempts older than the retention period.
func (r *Repository) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	query := `
		DELETE FROM kiosk_attempts
		WHERE created_at < $1
	`

	cutoff := r.now().Add(-retention)
	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old attempts: %w", err)
	}

	return result.RowsAffected(), nil
}
