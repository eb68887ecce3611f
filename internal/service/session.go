package service

import (
	"context"
	"errors"
	"time"

	"github.com/giovannifil-64/DeVisu/internal/domain"
)

type Flow string

const (
	FlowEnroll Flow = "enroll"
	FlowVerify Flow = "verify"
	FlowDelete Flow = "delete"
)

func (f Flow) Valid() bool {
	switch f {
	case FlowEnroll, FlowVerify, FlowDelete:
		return true
	}
	return false
}

type State string

const (
	StateIdle          State = "idle"
	StateNameCollected State = "name_collected"
	StateOTPSubmitted  State = "otp_submitted"
	StateCaptured      State = "captured"
	StateEncoded       State = "encoded"
	StateCompared      State = "compared"
	StatePersisted     State = "persisted"
	StateDone          State = "done"
)

// Session carries one kiosk interaction between its begin and complete
// steps. It is a plain value: callers keep it (the HTTP layer stores it in
// the session cache) and hand it back to Complete.
type Session struct {
	ID         string    `json:"id"`
	Flow       Flow      `json:"flow"`
	State      State     `json:"state"`
	Name       string    `json:"name,omitempty"`
	OTP        string    `json:"otp,omitempty"`
	IdentityID int64     `json:"identity_id,omitempty"`
	Vector     string    `json:"vector,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reasons reported in Result.
const (
	ReasonEnrolled            = "enrolled"
	ReasonMatch               = "match"
	ReasonNoMatch             = "no_match"
	ReasonDeleted             = "deleted"
	ReasonOTPNotFound         = "otp_not_found"
	ReasonNoFaceDetected      = "no_face_detected"
	ReasonEncodingFailed      = "encoding_failed"
	ReasonCaptureFailed       = "capture_failed"
	ReasonMalformedVector     = "malformed_vector"
	ReasonStoreUnreachable    = "store_unreachable"
	ReasonMissingPrerequisite = "missing_prerequisite"
	ReasonInvalidRequest      = "invalid_request"
	ReasonRateLimited         = "rate_limited"
	ReasonInternalError       = "internal_error"
)

// Result is the outcome of a flow. Errors never cross the flow boundary;
// they are folded into Reason.
type Result struct {
	Success    bool    `json:"success"`
	Reason     string  `json:"reason"`
	OTP        string  `json:"otp,omitempty"`
	IdentityID int64   `json:"identity_id,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// ResultFor converts an error from any kiosk step into a negative Result.
func ResultFor(err error) Result {
	return Result{Success: false, Reason: reasonFor(err)}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrOTPNotFound), errors.Is(err, domain.ErrIdentityNotFound):
		return ReasonOTPNotFound
	case errors.Is(err, domain.ErrNoFaceDetected):
		return ReasonNoFaceDetected
	case errors.Is(err, domain.ErrEncodingFailed), errors.Is(err, domain.ErrInvalidImage):
		return ReasonEncodingFailed
	case errors.Is(err, domain.ErrCameraUnavailable),
		errors.Is(err, domain.ErrFrameRead),
		errors.Is(err, domain.ErrCaptureAborted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ReasonCaptureFailed
	case errors.Is(err, domain.ErrMalformedVector):
		return ReasonMalformedVector
	case errors.Is(err, domain.ErrStoreUnreachable):
		return ReasonStoreUnreachable
	case errors.Is(err, domain.ErrMissingPrerequisite), errors.Is(err, domain.ErrSessionNotFound):
		return ReasonMissingPrerequisite
	case errors.Is(err, domain.ErrValidationFailed), errors.Is(err, domain.ErrBadRequest):
		return ReasonInvalidRequest
	case errors.Is(err, domain.ErrRateLimitExceeded):
		return ReasonRateLimited
	default:
		return ReasonInternalError
	}
}
