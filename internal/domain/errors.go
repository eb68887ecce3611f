package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so that errors.Is(err, ErrNoFaceDetected) holds for
// copies produced by WithError.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many attempts, please try again later",
		StatusCode: 429,
	}

	// Capture errors
	ErrCameraUnavailable = &AppError{
		Code:       "CAMERA_UNAVAILABLE",
		Message:    "Camera is not available",
		StatusCode: 503,
	}

	ErrFrameRead = &AppError{
		Code:       "FRAME_READ_FAILED",
		Message:    "Failed to read frame from camera",
		StatusCode: 503,
	}

	ErrCaptureAborted = &AppError{
		Code:       "CAPTURE_ABORTED",
		Message:    "Capture was aborted before a face was captured",
		StatusCode: 408,
	}

	// Extraction errors
	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		StatusCode: 422,
	}

	ErrEncodingFailed = &AppError{
		Code:       "ENCODING_FAILED",
		Message:    "Failed to compute face embedding",
		StatusCode: 422,
	}

	// Codec errors
	ErrMalformedVector = &AppError{
		Code:       "MALFORMED_VECTOR",
		Message:    "Stored face vector is malformed",
		StatusCode: 422,
	}

	// Store errors
	ErrIdentityNotFound = &AppError{
		Code:       "IDENTITY_NOT_FOUND",
		Message:    "Identity not found",
		StatusCode: 404,
	}

	ErrOTPNotFound = &AppError{
		Code:       "OTP_NOT_FOUND",
		Message:    "No identity is bound to this OTP",
		StatusCode: 404,
	}

	ErrOTPExists = &AppError{
		Code:       "OTP_ALREADY_EXISTS",
		Message:    "OTP is already bound to another identity",
		StatusCode: 409,
	}

	ErrStoreUnreachable = &AppError{
		Code:       "STORE_UNREACHABLE",
		Message:    "Identity store is unreachable",
		StatusCode: 503,
	}

	// Protocol errors
	ErrMissingPrerequisite = &AppError{
		Code:       "MISSING_PREREQUISITE",
		Message:    "Session has not completed its prerequisite step",
		StatusCode: 409,
	}

	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "Kiosk session not found or expired",
		StatusCode: 404,
	}

	ErrInvalidThreshold = &AppError{
		Code:       "INVALID_THRESHOLD",
		Message:    "Cosine threshold must be between -1 and 1",
		StatusCode: 422,
	}
)
