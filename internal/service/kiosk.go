package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giovannifil-64/DeVisu/internal/audit"
	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/embedding"
	"github.com/giovannifil-64/DeVisu/internal/matcher"
	"github.com/giovannifil-64/DeVisu/internal/otp"
	"github.com/giovannifil-64/DeVisu/internal/ws"
)

// IdentityStore is satisfied by repository.IdentityRepository and store.Client.
type IdentityStore interface {
	Create(ctx context.Context, name, otp, vector string) (*domain.Identity, error)
	GetByID(ctx context.Context, id int64) (*domain.Identity, error)
	GetByOTP(ctx context.Context, otp string) (*domain.Identity, error)
	Update(ctx context.Context, id int64, upd domain.IdentityUpdate) (*domain.Identity, error)
	Delete(ctx context.Context, id int64) error
}

// Capturer runs one exclusive camera session and returns the face image.
// The camera is released and the artifact removed before it returns.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

type Extractor interface {
	Extract(ctx context.Context, data []byte) (embedding.Embedding, error)
}

type Publisher interface {
	Publish(sessionID string, eventType ws.EventType, data interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, ws.EventType, interface{}) {}

// enrollCreateAttempts bounds retries when a freshly drawn OTP loses a race
// against a concurrent enrollment.
const enrollCreateAttempts = 3

// KioskService runs the enroll, verify and delete flows.
type KioskService struct {
	store     IdentityStore
	capturer  Capturer
	extractor Extractor
	matcher   matcher.Config
	otp       *otp.Generator
	audit     audit.Logger
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewKioskService(
	store IdentityStore,
	capturer Capturer,
	extractor Extractor,
	matcherCfg matcher.Config,
	generator *otp.Generator,
	logger *slog.Logger,
) *KioskService {
	return &KioskService{
		store:     store,
		capturer:  capturer,
		extractor: extractor,
		matcher:   matcherCfg,
		otp:       generator,
		audit:     &audit.NoOpLogger{},
		publisher: noopPublisher{},
		logger:    logger.With("component", "kiosk"),
		now:       time.Now,
	}
}

func (s *KioskService) WithAudit(l audit.Logger) *KioskService {
	s.audit = l
	return s
}

func (s *KioskService) WithPublisher(p Publisher) *KioskService {
	s.publisher = p
	return s
}

// MatcherConfig returns the active matching policy.
func (s *KioskService) MatcherConfig() matcher.Config {
	return s.matcher
}

func (s *KioskService) newSession(flow Flow) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Flow:      flow,
		State:     StateIdle,
		CreatedAt: s.now().UTC(),
	}
}

// BeginEnroll collects the name for a new identity.
func (s *KioskService) BeginEnroll(ctx context.Context, name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("name is required"))
	}

	sess := s.newSession(FlowEnroll)
	sess.Name = name
	sess.State = StateNameCollected

	s.publisher.Publish(sess.ID, ws.EventSessionCreated, sessionView(sess))
	return sess, nil
}

// BeginVerify resolves otp to a stored identity. The camera is not touched.
func (s *KioskService) BeginVerify(ctx context.Context, code string) (*Session, error) {
	return s.beginWithOTP(ctx, FlowVerify, code)
}

// BeginDelete resolves otp like BeginVerify; the record is removed only
// when the face captured in Complete matches.
func (s *KioskService) BeginDelete(ctx context.Context, code string) (*Session, error) {
	return s.beginWithOTP(ctx, FlowDelete, code)
}

func (s *KioskService) beginWithOTP(ctx context.Context, flow Flow, code string) (*Session, error) {
	code = strings.TrimSpace(code)
	if !s.otp.Valid(code) {
		s.logOTPRejected(ctx, flow, ReasonInvalidRequest)
		return nil, domain.ErrValidationFailed.WithError(errors.New("otp must be numeric with the configured length"))
	}

	identity, err := s.store.GetByOTP(ctx, code)
	if err != nil {
		s.logOTPRejected(ctx, flow, reasonFor(err))
		return nil, err
	}

	sess := s.newSession(flow)
	sess.OTP = code
	sess.IdentityID = identity.ID
	sess.Name = identity.Name
	sess.Vector = identity.Vector
	sess.State = StateOTPSubmitted

	s.publisher.Publish(sess.ID, ws.EventSessionCreated, sessionView(sess))
	return sess, nil
}

func (s *KioskService) logOTPRejected(ctx context.Context, flow Flow, reason string) {
	_ = s.audit.Log(ctx, audit.Event{
		EventType: audit.EventOTPRejected,
		Flow:      string(flow),
		Reason:    reason,
	})
}

// Complete runs capture, extraction, the decision and persistence for sess.
// It never returns an error: every failure is reported through Result.
// sess is advanced in place and ends in StateDone.
func (s *KioskService) Complete(ctx context.Context, sess *Session) Result {
	if sess == nil {
		return Result{Reason: ReasonInvalidRequest}
	}

	start := s.now()

	var res Result
	switch sess.Flow {
	case FlowEnroll:
		res = s.completeEnroll(ctx, sess)
	case FlowVerify:
		res = s.completeMatch(ctx, sess, false)
	case FlowDelete:
		res = s.completeMatch(ctx, sess, true)
	default:
		return Result{Reason: ReasonInvalidRequest}
	}

	if res.Reason != ReasonMissingPrerequisite {
		sess.State = StateDone
		s.finish(ctx, sess, res, s.now().Sub(start))
	}
	return res
}

func (s *KioskService) finish(ctx context.Context, sess *Session, res Result, latency time.Duration) {
	eventType := audit.EventIdentityVerified
	switch sess.Flow {
	case FlowEnroll:
		eventType = audit.EventIdentityEnrolled
	case FlowDelete:
		eventType = audit.EventIdentityDeleted
	}

	identityID := res.IdentityID
	if identityID == 0 {
		identityID = sess.IdentityID
	}

	if err := s.audit.Log(ctx, audit.Event{
		SessionID:  sess.ID,
		EventType:  eventType,
		Flow:       string(sess.Flow),
		IdentityID: identityID,
		Success:    res.Success,
		Reason:     res.Reason,
		Score:      res.Score,
		Latency:    latency,
	}); err != nil {
		s.logger.Warn("audit log failed", "session_id", sess.ID, "error", err)
	}

	s.publisher.Publish(sess.ID, ws.EventFlowCompleted, publicResult(res))

	s.logger.Info("flow completed",
		"session_id", sess.ID,
		"flow", sess.Flow,
		"success", res.Success,
		"reason", res.Reason,
		"latency_ms", latency.Milliseconds(),
	)
}

// captureProbe captures one face and extracts its embedding.
func (s *KioskService) captureProbe(ctx context.Context, sess *Session) (embedding.Embedding, error) {
	s.publisher.Publish(sess.ID, ws.EventCaptureStarted, nil)

	image, err := s.capturer.Capture(ctx)
	s.publisher.Publish(sess.ID, ws.EventCaptureCompleted, map[string]bool{"success": err == nil})
	if err != nil {
		s.logger.Warn("capture failed", "session_id", sess.ID, "error", err)
		return nil, err
	}
	sess.State = StateCaptured

	emb, err := s.extractor.Extract(ctx, image)
	if err != nil {
		s.logger.Warn("extraction failed", "session_id", sess.ID, "error", err)
		return nil, err
	}
	return emb, nil
}

func (s *KioskService) completeEnroll(ctx context.Context, sess *Session) Result {
	if sess.State != StateNameCollected || sess.Name == "" {
		return ResultFor(domain.ErrMissingPrerequisite)
	}

	emb, err := s.captureProbe(ctx, sess)
	if err != nil {
		return ResultFor(err)
	}

	vector := embedding.Encode(emb)
	sess.Vector = vector
	sess.State = StateEncoded

	identity, err := s.createWithFreshOTP(ctx, sess.Name, vector)
	if err != nil {
		return ResultFor(err)
	}

	sess.IdentityID = identity.ID
	sess.OTP = identity.OTP
	sess.State = StatePersisted

	return Result{
		Success:    true,
		Reason:     ReasonEnrolled,
		OTP:        identity.OTP,
		IdentityID: identity.ID,
	}
}

func (s *KioskService) createWithFreshOTP(ctx context.Context, name, vector string) (*domain.Identity, error) {
	exists := otp.ExistsInStore(s.store.GetByOTP)

	var lastErr error
	for attempt := 0; attempt < enrollCreateAttempts; attempt++ {
		code, err := s.otp.Unique(ctx, exists)
		if err != nil {
			if errors.Is(err, otp.ErrExhausted) {
				return nil, domain.ErrInternal.WithError(err)
			}
			return nil, err
		}

		identity, err := s.store.Create(ctx, name, code, vector)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, domain.ErrOTPExists) {
			return nil, err
		}
		lastErr = err
	}
	return nil, domain.ErrInternal.WithError(fmt.Errorf("otp collided %d times: %w", enrollCreateAttempts, lastErr))
}

func (s *KioskService) completeMatch(ctx context.Context, sess *Session, remove bool) Result {
	if sess.State != StateOTPSubmitted || sess.IdentityID == 0 {
		return ResultFor(domain.ErrMissingPrerequisite)
	}

	stored, err := embedding.Decode(sess.Vector)
	if err != nil {
		return Result{Reason: ReasonMalformedVector, IdentityID: sess.IdentityID}
	}

	probe, err := s.captureProbe(ctx, sess)
	if err != nil {
		res := ResultFor(err)
		res.IdentityID = sess.IdentityID
		return res
	}

	score, _ := matcher.Score(stored, probe, s.matcher.Metric)
	matched := matcher.Compare(stored, probe, s.matcher)
	sess.State = StateCompared

	res := Result{IdentityID: sess.IdentityID, Score: score}
	if !matched {
		res.Reason = ReasonNoMatch
		return res
	}

	if !remove {
		res.Success = true
		res.Reason = ReasonMatch
		return res
	}

	if err := s.store.Delete(ctx, sess.IdentityID); err != nil {
		failed := ResultFor(err)
		failed.IdentityID = sess.IdentityID
		failed.Score = score
		return failed
	}
	sess.State = StatePersisted

	res.Success = true
	res.Reason = ReasonDeleted
	return res
}

// Enroll runs BeginEnroll and Complete.
func (s *KioskService) Enroll(ctx context.Context, name string) Result {
	sess, err := s.BeginEnroll(ctx, name)
	if err != nil {
		return ResultFor(err)
	}
	return s.Complete(ctx, sess)
}

// Verify runs BeginVerify and Complete.
func (s *KioskService) Verify(ctx context.Context, code string) Result {
	sess, err := s.BeginVerify(ctx, code)
	if err != nil {
		return ResultFor(err)
	}
	return s.Complete(ctx, sess)
}

// Delete runs BeginDelete and Complete.
func (s *KioskService) Delete(ctx context.Context, code string) Result {
	sess, err := s.BeginDelete(ctx, code)
	if err != nil {
		return ResultFor(err)
	}
	return s.Complete(ctx, sess)
}

// SessionView is the part of a Session safe to show on a display.
type SessionView struct {
	ID    string `json:"id"`
	Flow  Flow   `json:"flow"`
	State State  `json:"state"`
	Name  string `json:"name,omitempty"`
}

func sessionView(sess *Session) SessionView {
	return SessionView{ID: sess.ID, Flow: sess.Flow, State: sess.State, Name: sess.Name}
}

// View hides the stored vector and the OTP.
func (sess *Session) View() SessionView {
	return sessionView(sess)
}

// publicResult strips the OTP before broadcasting.
func publicResult(res Result) Result {
	res.OTP = ""
	return res
}
