package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/giovannifil-64/DeVisu/internal/cache"
	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/embedding"
	"github.com/giovannifil-64/DeVisu/internal/service"
)

const (
	maxImageSize       = 10 * 1024 * 1024 // 10MB
	defaultNearestSize = 5
	maxNearestSize     = 50
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/bmp":  true,
}

// KioskService is implemented by service.KioskService.
type KioskService interface {
	Enroll(ctx context.Context, name string) service.Result
	Verify(ctx context.Context, otp string) service.Result
	Delete(ctx context.Context, otp string) service.Result
	BeginEnroll(ctx context.Context, name string) (*service.Session, error)
	BeginVerify(ctx context.Context, otp string) (*service.Session, error)
	BeginDelete(ctx context.Context, otp string) (*service.Session, error)
	Complete(ctx context.Context, sess *service.Session) service.Result
}

// SessionStore keeps two-step sessions between requests.
// cache.JSONStore[service.Session] satisfies it.
type SessionStore interface {
	Save(ctx context.Context, id string, sess *service.Session) error
	Load(ctx context.Context, id string) (*service.Session, error)
	Delete(ctx context.Context, id string) error
}

// AttemptLimiter throttles OTP submissions per client.
type AttemptLimiter interface {
	CheckAttempt(ctx context.Context, client string, limit int) error
	Reset(ctx context.Context, client string) error
}

type Extractor interface {
	Extract(ctx context.Context, data []byte) (embedding.Embedding, error)
}

// NearestFinder looks up stored identities by embedding similarity.
type NearestFinder interface {
	NearestByEmbedding(ctx context.Context, emb embedding.Embedding, limit int) ([]domain.IdentityMatch, error)
}

type KioskConfig struct {
	AttemptLimit int
	SessionTTL   time.Duration
}

// KioskHandler exposes the enroll, verify and delete flows over HTTP.
type KioskHandler struct {
	service   KioskService
	sessions  SessionStore
	limiter   AttemptLimiter
	extractor Extractor
	nearest   NearestFinder
	config    KioskConfig
	logger    *slog.Logger
}

func NewKioskHandler(
	svc KioskService,
	sessions SessionStore,
	limiter AttemptLimiter,
	extractor Extractor,
	nearest NearestFinder,
	config KioskConfig,
	logger *slog.Logger,
) *KioskHandler {
	return &KioskHandler{
		service:   svc,
		sessions:  sessions,
		limiter:   limiter,
		extractor: extractor,
		nearest:   nearest,
		config:    config,
		logger:    logger,
	}
}

type EnrollRequest struct {
	Name string `json:"name"`
}

type OTPRequest struct {
	OTP string `json:"otp"`
}

type SessionRequest struct {
	Flow service.Flow `json:"flow"`
	Name string       `json:"name,omitempty"`
	OTP  string       `json:"otp,omitempty"`
}

type SessionResponse struct {
	Session   service.SessionView `json:"session"`
	ExpiresAt time.Time           `json:"expires_at"`
}

type ExtractResponse struct {
	Vector     string `json:"vector"`
	Dimensions int    `json:"dimensions"`
}

type NearestResponse struct {
	Matches []domain.IdentityMatch `json:"matches"`
}

// Enroll POST /v1/kiosk/enroll
func (h *KioskHandler) Enroll(c *fiber.Ctx) error {
	var req EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	res := h.service.Enroll(c.Context(), req.Name)
	return sendResult(c, res)
}

// Verify POST /v1/kiosk/verify
func (h *KioskHandler) Verify(c *fiber.Ctx) error {
	return h.runOTPFlow(c, h.service.Verify)
}

// Delete POST /v1/kiosk/delete
func (h *KioskHandler) Delete(c *fiber.Ctx) error {
	return h.runOTPFlow(c, h.service.Delete)
}

func (h *KioskHandler) runOTPFlow(c *fiber.Ctx, flow func(context.Context, string) service.Result) error {
	var req OTPRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	if err := h.checkAttempt(c); err != nil {
		return sendResult(c, service.ResultFor(err))
	}

	res := flow(c.Context(), req.OTP)
	if res.Success {
		h.resetAttempts(c)
	}
	return sendResult(c, res)
}

// CreateSession POST /v1/kiosk/sessions - first step of the two-step flow.
func (h *KioskHandler) CreateSession(c *fiber.Ctx) error {
	var req SessionRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if !req.Flow.Valid() {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("unknown flow %q", req.Flow))
	}

	var (
		sess *service.Session
		err  error
	)
	switch req.Flow {
	case service.FlowEnroll:
		sess, err = h.service.BeginEnroll(c.Context(), req.Name)
	default:
		if err := h.checkAttempt(c); err != nil {
			return err
		}
		if req.Flow == service.FlowVerify {
			sess, err = h.service.BeginVerify(c.Context(), req.OTP)
		} else {
			sess, err = h.service.BeginDelete(c.Context(), req.OTP)
		}
	}
	if err != nil {
		return err
	}

	if err := h.sessions.Save(c.Context(), sess.ID, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return c.Status(fiber.StatusCreated).JSON(SessionResponse{
		Session:   sess.View(),
		ExpiresAt: sess.CreatedAt.Add(h.config.SessionTTL),
	})
}

// GetSession GET /v1/kiosk/sessions/:id
func (h *KioskHandler) GetSession(c *fiber.Ctx) error {
	sess, err := h.loadSession(c)
	if err != nil {
		return err
	}
	return c.JSON(SessionResponse{
		Session:   sess.View(),
		ExpiresAt: sess.CreatedAt.Add(h.config.SessionTTL),
	})
}

// CompleteSession POST /v1/kiosk/sessions/:id/complete
func (h *KioskHandler) CompleteSession(c *fiber.Ctx) error {
	sess, err := h.loadSession(c)
	if err != nil {
		return err
	}

	res := h.service.Complete(c.Context(), sess)

	// The finished session stays until its TTL so a replay sees the done state.
	if err := h.sessions.Save(c.Context(), sess.ID, sess); err != nil {
		h.logger.Warn("failed to store finished session", "session_id", sess.ID, "error", err)
	}

	if res.Success && sess.Flow != service.FlowEnroll {
		h.resetAttempts(c)
	}
	return sendResult(c, res)
}

// Extract POST /v1/kiosk/extract - returns the encoded embedding of an uploaded image.
func (h *KioskHandler) Extract(c *fiber.Ctx) error {
	imageBytes, err := extractAndValidateImage(c)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	emb, err := h.extractor.Extract(c.Context(), imageBytes)
	if err != nil {
		return err
	}

	return c.JSON(ExtractResponse{
		Vector:     embedding.Encode(emb),
		Dimensions: emb.Dim(),
	})
}

// Nearest POST /v1/kiosk/nearest - stored identities most similar to the
// uploaded face. OTPs are never part of the response.
func (h *KioskHandler) Nearest(c *fiber.Ctx) error {
	if h.nearest == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "nearest search requires the postgres store")
	}

	limit := c.QueryInt("limit", defaultNearestSize)
	if limit <= 0 || limit > maxNearestSize {
		return domain.ErrValidationFailed.WithError(errors.New("limit must be between 1 and 50"))
	}

	imageBytes, err := extractAndValidateImage(c)
	if err != nil {
		return fmt.Errorf("nearest: %w", err)
	}

	emb, err := h.extractor.Extract(c.Context(), imageBytes)
	if err != nil {
		return err
	}

	matches, err := h.nearest.NearestByEmbedding(c.Context(), emb, limit)
	if err != nil {
		return err
	}
	return c.JSON(NearestResponse{Matches: matches})
}

func (h *KioskHandler) loadSession(c *fiber.Ctx) (*service.Session, error) {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return nil, domain.ErrBadRequest.WithError(errors.New("session id is required"))
	}

	sess, err := h.sessions.Load(c.Context(), id)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// checkAttempt counts one OTP submission for the caller. A limiter
// failure lets the request through.
func (h *KioskHandler) checkAttempt(c *fiber.Ctx) error {
	err := h.limiter.CheckAttempt(c.Context(), c.IP(), h.config.AttemptLimit)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrRateLimitExceeded) {
		h.logger.Warn("otp attempts exceeded", "ip", c.IP())
		return err
	}
	h.logger.Warn("rate limiter unavailable", "error", err)
	return nil
}

func (h *KioskHandler) resetAttempts(c *fiber.Ctx) {
	if err := h.limiter.Reset(c.Context(), c.IP()); err != nil {
		h.logger.Warn("failed to reset otp attempts", "ip", c.IP(), "error", err)
	}
}

// sendResult writes a flow Result. Outcomes of a completed flow are 200
// whatever their success; request and infrastructure problems are not.
func sendResult(c *fiber.Ctx, res service.Result) error {
	return c.Status(resultStatus(res)).JSON(res)
}

func resultStatus(res service.Result) int {
	switch res.Reason {
	case service.ReasonEnrolled:
		return fiber.StatusCreated
	case service.ReasonInvalidRequest:
		return fiber.StatusUnprocessableEntity
	case service.ReasonMissingPrerequisite:
		return fiber.StatusConflict
	case service.ReasonRateLimited:
		return fiber.StatusTooManyRequests
	case service.ReasonStoreUnreachable:
		return fiber.StatusServiceUnavailable
	case service.ReasonInternalError:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusOK
	}
}

// extractAndValidateImage reads the "image" form file.
func extractAndValidateImage(c *fiber.Ctx) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	if file.Size == 0 || file.Size > maxImageSize {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("image size %d", file.Size))
	}

	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("content type %q", contentType))
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	return imageBytes, nil
}
