package ws

import (
	"time"
)

type EventType string

const (
	EventSessionCreated   EventType = "session.created"
	EventCaptureStarted   EventType = "capture.started"
	EventCaptureCompleted EventType = "capture.completed"
	EventFlowCompleted    EventType = "flow.completed"
)

// Event is pushed to kiosk displays. SessionID scopes it; an empty
// SessionID reaches every display.
type Event struct {
	SessionID string      `json:"session_id,omitempty"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
