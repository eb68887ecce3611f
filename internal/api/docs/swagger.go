package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// FlowResult is the outcome of an enroll, verify or delete flow
type FlowResult struct {
	Success    bool    `json:"success" example:"true"`
	Reason     string  `json:"reason" example:"enrolled"`
	OTP        string  `json:"otp,omitempty" example:"042137"`
	IdentityID int64   `json:"identity_id,omitempty" example:"12"`
	Score      float64 `json:"score,omitempty" example:"0.83"`
}

type EnrollBody struct {
	Name string `json:"name" example:"Ada Lovelace"`
}

type OTPBody struct {
	OTP string `json:"otp" example:"042137"`
}

type SessionBody struct {
	Flow string `json:"flow" example:"verify"`
	Name string `json:"name,omitempty" example:""`
	OTP  string `json:"otp,omitempty" example:"042137"`
}

type SessionView struct {
	ID    string `json:"id" example:"6f1c2b9e-3a55-4c9a-9f0e-1d2a7c8b4e10"`
	Flow  string `json:"flow" example:"verify"`
	State string `json:"state" example:"otp_submitted"`
	Name  string `json:"name,omitempty" example:"Ada Lovelace"`
}

type SessionResponse struct {
	Session   SessionView `json:"session"`
	ExpiresAt string      `json:"expires_at" example:"2026-01-02T10:05:00Z"`
}

type ExtractResponse struct {
	Vector     string `json:"vector" example:"AAAAAAAA8D8AAAAAAAAAAA=="`
	Dimensions int    `json:"dimensions" example:"512"`
}

type IdentityMatch struct {
	IdentityID int64   `json:"identity_id" example:"12"`
	Name       string  `json:"name" example:"Ada Lovelace"`
	Similarity float64 `json:"similarity" example:"0.91"`
}

type NearestResponse struct {
	Matches []IdentityMatch `json:"matches"`
}

type FlowStats struct {
	Flow         string  `json:"flow" example:"verify"`
	Total        int64   `json:"total" example:"40"`
	Succeeded    int64   `json:"succeeded" example:"31"`
	SuccessRate  float64 `json:"success_rate" example:"0.775"`
	AvgLatencyMs float64 `json:"avg_latency_ms" example:"2450"`
	P99LatencyMs float64 `json:"p99_latency_ms" example:"5100"`
}

type StatsResponse struct {
	Since string      `json:"since" example:"2026-01-01T10:00:00Z"`
	Until string      `json:"until" example:"2026-01-02T10:00:00Z"`
	Flows []FlowStats `json:"flows"`
}

// User is a stored identity record
type User struct {
	ID     int64  `json:"id" example:"12"`
	Name   string `json:"name" example:"Ada Lovelace"`
	OTP    string `json:"otp" example:"042137"`
	Vector string `json:"vector" example:"AAAAAAAA8D8AAAAAAAAAAA=="`
}

type UserBody struct {
	Name   string `json:"name" example:"Ada Lovelace"`
	OTP    string `json:"otp" example:"042137"`
	Vector string `json:"vector" example:"AAAAAAAA8D8AAAAAAAAAAA=="`
}

type MessageResponse struct {
	Message string `json:"message" example:"user deleted"`
}

type HealthResponse struct {
	Status  string `json:"status" example:"ok"`
	Version string `json:"version,omitempty" example:"0.1.0"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

var internalError = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")

func kioskFlow(path, summary, description string, body interface{}, extraErrors ...response.Response) *endpoint.EndPoint {
	errs := append([]response.Response{
		response.New(FlowResult{Success: false, Reason: "invalid_request"}, "422", "Unprocessable Entity"),
		response.New(FlowResult{Success: false, Reason: "store_unreachable"}, "503", "Service Unavailable"),
		internalError,
	}, extraErrors...)

	return endpoint.New(
		endpoint.POST,
		path,
		endpoint.WithTags("Kiosk"),
		endpoint.WithSummary(summary),
		endpoint.WithDescription(description),
		endpoint.WithBody(body),
		endpoint.WithConsume([]mime.MIME{mime.JSON}),
		endpoint.WithProduce([]mime.MIME{mime.JSON}),
		endpoint.WithSuccessfulReturns([]response.Response{
			response.New(FlowResult{}, "200", "Flow finished; see success and reason"),
		}),
		endpoint.WithErrors(errs),
	)
}

func imageUpload(path, summary, description string, success response.Response) *endpoint.EndPoint {
	return endpoint.New(
		endpoint.POST,
		path,
		endpoint.WithTags("Kiosk"),
		endpoint.WithSummary(summary),
		endpoint.WithDescription(description),
		endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
		endpoint.WithProduce([]mime.MIME{mime.JSON}),
		endpoint.WithSuccessfulReturns([]response.Response{success}),
		endpoint.WithErrors([]response.Response{
			response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image format or corrupted file"}, "422", "Unprocessable Entity"),
			response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in the image"}, "422", "Unprocessable Entity"),
			internalError,
		}),
	)
}

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "DeVisu Kiosk API",
		Version:     "v1.0.0",
		Description: "Face-based identity kiosk: enrollment with a one-time code, verification and self-service deletion",
		Host:        "localhost:3000",
	})

	idParam := parameter.IntParam("id", parameter.Path, parameter.WithDescription("Identity ID"))

	endpoints := []*endpoint.EndPoint{
		endpoint.New(
			endpoint.GET,
			"/health",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Liveness probe"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Service is up"),
			}),
		),
		endpoint.New(
			endpoint.GET,
			"/ready",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Readiness probe"),
			endpoint.WithDescription("Pings the database or the remote identity store"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{Status: "ready"}, "200", "Dependencies reachable"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(HealthResponse{Status: "unavailable"}, "503", "A dependency is down"),
			}),
		),

		kioskFlow("/v1/kiosk/enroll", "Enroll a new identity",
			"Captures a face, stores its embedding and returns a fresh one-time code. The code is shown once.",
			EnrollBody{}),
		kioskFlow("/v1/kiosk/verify", "Verify an identity",
			"Looks up the identity bound to the code, captures a face and compares it with the stored embedding.",
			OTPBody{},
			response.New(FlowResult{Success: false, Reason: "rate_limited"}, "429", "Too Many Requests")),
		kioskFlow("/v1/kiosk/delete", "Delete an identity",
			"Removes the identity bound to the code once a captured face matches it.",
			OTPBody{},
			response.New(FlowResult{Success: false, Reason: "rate_limited"}, "429", "Too Many Requests")),

		endpoint.New(
			endpoint.POST,
			"/v1/kiosk/sessions",
			endpoint.WithTags("Kiosk Sessions"),
			endpoint.WithSummary("Begin a two-step flow"),
			endpoint.WithDescription("Collects the name or resolves the code without touching the camera. The session expires after SESSION_TTL."),
			endpoint.WithBody(SessionBody{}),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "201", "Session created"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "OTP_NOT_FOUND", Message: "No identity is bound to this OTP"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many attempts, please try again later"}, "429", "Too Many Requests"),
				internalError,
			}),
		),
		endpoint.New(
			endpoint.GET,
			"/v1/kiosk/sessions/{id}",
			endpoint.WithTags("Kiosk Sessions"),
			endpoint.WithSummary("Get a session"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session ID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "200", "Session state"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Kiosk session not found or expired"}, "404", "Not Found"),
			}),
		),
		endpoint.New(
			endpoint.POST,
			"/v1/kiosk/sessions/{id}/complete",
			endpoint.WithTags("Kiosk Sessions"),
			endpoint.WithSummary("Complete a two-step flow"),
			endpoint.WithDescription("Captures the face and finishes the flow begun by the session. A session completes once."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session ID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FlowResult{}, "200", "Flow finished; see success and reason"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Kiosk session not found or expired"}, "404", "Not Found"),
				response.New(FlowResult{Success: false, Reason: "missing_prerequisite"}, "409", "Conflict"),
				internalError,
			}),
		),

		imageUpload("/v1/kiosk/extract", "Extract an embedding",
			"Runs detection, cropping and encoding on an uploaded image and returns the transport-encoded vector.",
			response.New(ExtractResponse{}, "200", "Embedding extracted")),
		endpoint.New(
			endpoint.POST,
			"/v1/kiosk/nearest",
			endpoint.WithTags("Kiosk"),
			endpoint.WithSummary("Find similar identities"),
			endpoint.WithDescription("Returns stored identities closest to the uploaded face. Codes are never included."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Maximum number of matches (1-50, default: 5)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(NearestResponse{}, "200", "Nearest identities"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in the image"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "nearest search requires the postgres store"}, "501", "Not Implemented"),
				internalError,
			}),
		),
		endpoint.New(
			endpoint.GET,
			"/v1/kiosk/stats",
			endpoint.WithTags("Kiosk"),
			endpoint.WithSummary("Flow statistics"),
			endpoint.WithDescription("Outcome counts, success rate and latency per flow, computed from the attempt audit trail. Each flow also carries a reasons object counting attempts per reason."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("window", parameter.Query, parameter.WithDescription("Look-back duration, up to 720h (default: 24h)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StatsResponse{}, "200", "Statistics"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity"),
				internalError,
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/api/users",
			endpoint.WithTags("Users"),
			endpoint.WithSummary("List identities"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Maximum number of records (default: 100, max: 1000)")),
				parameter.IntParam("offset", parameter.Query, parameter.WithDescription("Offset for pagination (default: 0)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New([]User{}, "200", "Identity records"),
			}),
		),
		endpoint.New(
			endpoint.POST,
			"/api/users",
			endpoint.WithTags("Users"),
			endpoint.WithSummary("Create an identity"),
			endpoint.WithBody(UserBody{}),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(User{}, "201", "Identity created"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "OTP_ALREADY_EXISTS", Message: "OTP is already bound to another identity"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "MALFORMED_VECTOR", Message: "Stored face vector is malformed"}, "422", "Unprocessable Entity"),
			}),
		),
		endpoint.New(
			endpoint.GET,
			"/api/users/by_otp/{otp}",
			endpoint.WithTags("Users"),
			endpoint.WithSummary("Find an identity by code"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(parameter.StrParam("otp", parameter.Path, parameter.WithDescription("One-time code"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(User{}, "200", "Identity record"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "OTP_NOT_FOUND", Message: "No identity is bound to this OTP"}, "404", "Not Found"),
			}),
		),
		endpoint.New(
			endpoint.GET,
			"/api/users/{id}",
			endpoint.WithTags("Users"),
			endpoint.WithSummary("Get an identity"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(idParam),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(User{}, "200", "Identity record"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "IDENTITY_NOT_FOUND", Message: "Identity not found"}, "404", "Not Found"),
			}),
		),
		endpoint.New(
			endpoint.PUT,
			"/api/users/{id}",
			endpoint.WithTags("Users"),
			endpoint.WithSummary("Update an identity"),
			endpoint.WithDescription("Fields left out of the body are kept."),
			endpoint.WithBody(UserBody{}),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(idParam),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(User{}, "200", "Identity updated"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "IDENTITY_NOT_FOUND", Message: "Identity not found"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "OTP_ALREADY_EXISTS", Message: "OTP is already bound to another identity"}, "409", "Conflict"),
			}),
		),
		endpoint.New(
			endpoint.DELETE,
			"/api/users/{id}",
			endpoint.WithTags("Users"),
			endpoint.WithSummary("Delete an identity"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(idParam),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(MessageResponse{}, "200", "Identity deleted"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "IDENTITY_NOT_FOUND", Message: "Identity not found"}, "404", "Not Found"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
