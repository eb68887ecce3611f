package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/giovannifil-64/DeVisu/internal/audit"
)

// DB is the subset of pgxpool.Pool used by the queue.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var eventTypes = map[audit.EventType]string{
	audit.EventIdentityEnrolled: EventIdentityEnrolled,
	audit.EventIdentityVerified: EventIdentityVerified,
	audit.EventIdentityDeleted:  EventIdentityDeleted,
	audit.EventOTPRejected:      EventOTPRejected,
}

// Notifier is an audit.Logger that queues flow outcomes for delivery.
// Other audit events are ignored.
type Notifier struct {
	db          DB
	maxAttempts int
}

func NewNotifier(db DB, cfg Config) *Notifier {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultConfig().MaxAttempts
	}
	return &Notifier{db: db, maxAttempts: maxAttempts}
}

func (n *Notifier) Log(ctx context.Context, event audit.Event) error {
	eventType, ok := eventTypes[event.EventType]
	if !ok {
		return nil
	}

	id := event.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	payload, err := json.Marshal(EventPayload{
		ID:        id,
		Type:      eventType,
		Timestamp: event.Timestamp,
		Data: FlowOutcome{
			Flow:       event.Flow,
			Success:    event.Success,
			Reason:     event.Reason,
			IdentityID: event.IdentityID,
			Score:      event.Score,
			LatencyMs:  event.Latency.Milliseconds(),
			SessionID:  event.SessionID,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	query := `
		INSERT INTO webhook_queue (event_type, payload, max_attempts)
		VALUES ($1, $2, $3)
	`

	if _, err := n.db.Exec(ctx, query, eventType, payload, n.maxAttempts); err != nil {
		return fmt.Errorf("enqueue webhook: %w", err)
	}
	return nil
}
