package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/giovannifil-64/DeVisu/internal/domain"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventFaceCaptured     EventType = "FACE_CAPTURED"
	EventIdentityEnrolled EventType = "IDENTITY_ENROLLED"
	EventIdentityVerified EventType = "IDENTITY_VERIFIED"
	EventIdentityDeleted  EventType = "IDENTITY_DELETED"
	EventOTPRejected      EventType = "OTP_REJECTED"
)

// Event is one auditable kiosk action. Biometric data and OTPs are never
// part of an event.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	SessionID  string            `json:"session_id,omitempty"`
	EventType  EventType         `json:"event_type"`
	Flow       string            `json:"flow"`
	IdentityID int64             `json:"identity_id,omitempty"`
	Detector   string            `json:"detector,omitempty"`
	Success    bool              `json:"success"`
	Reason     string            `json:"reason,omitempty"`
	Score      float64           `json:"score,omitempty"`
	Latency    time.Duration     `json:"latency_ns,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger using slog
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	event = withDefaults(event)

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("flow", event.Flow),
		slog.Bool("success", event.Success),
		slog.String("reason", event.Reason),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

func withDefaults(event Event) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}

// AttemptWriter persists flow outcomes.
type AttemptWriter interface {
	Create(ctx context.Context, attempt *domain.Attempt) error
}

// AttemptLogger writes flow outcomes to the kiosk_attempts table. Events
// other than flow outcomes are ignored.
type AttemptLogger struct {
	writer AttemptWriter
}

func NewAttemptLogger(writer AttemptWriter) *AttemptLogger {
	return &AttemptLogger{writer: writer}
}

func (l *AttemptLogger) Log(ctx context.Context, event Event) error {
	switch event.EventType {
	case EventIdentityEnrolled, EventIdentityVerified, EventIdentityDeleted, EventOTPRejected:
	default:
		return nil
	}

	attempt := &domain.Attempt{
		Flow:      event.Flow,
		Success:   event.Success,
		Reason:    event.Reason,
		Score:     event.Score,
		LatencyMs: event.Latency.Milliseconds(),
	}
	if event.IdentityID != 0 {
		id := event.IdentityID
		attempt.IdentityID = &id
	}
	return l.writer.Create(ctx, attempt)
}

// Multi fans an event out to every logger and joins their errors.
type Multi []Logger

func (m Multi) Log(ctx context.Context, event Event) error {
	event = withDefaults(event)
	var errs []error
	for _, l := range m {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

// Log does nothing and returns nil
func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}
