package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Event types delivered to the configured endpoint.
const (
	EventIdentityEnrolled = "identity.enrolled"
	EventIdentityVerified = "identity.verified"
	EventIdentityDeleted  = "identity.deleted"
	EventOTPRejected      = "otp.rejected"
)

// Job status values in webhook_queue.
const (
	StatusPending   = "pending"
	StatusSending   = "sending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

type Config struct {
	URL          string
	Secret       string
	MaxAttempts  int
	Timeout      time.Duration
	PollInterval time.Duration
	BatchSize    int
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		Timeout:      10 * time.Second,
		PollInterval: 5 * time.Second,
		BatchSize:    10,
	}
}

// Job is one queued delivery.
type Job struct {
	ID          int64
	EventType   string
	Payload     []byte
	Attempts    int
	MaxAttempts int
}

// EventPayload is the JSON body POSTed to the endpoint.
type EventPayload struct {
	ID        uuid.UUID   `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      FlowOutcome `json:"data"`
}

// FlowOutcome never carries OTPs or biometric data.
type FlowOutcome struct {
	Flow       string  `json:"flow"`
	Success    bool    `json:"success"`
	Reason     string  `json:"reason"`
	IdentityID int64   `json:"identity_id,omitempty"`
	Score      float64 `json:"score,omitempty"`
	LatencyMs  int64   `json:"latency_ms"`
	SessionID  string  `json:"session_id,omitempty"`
}
