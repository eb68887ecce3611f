package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/giovannifil-64/DeVisu/internal/domain"
)

// CameraFactory builds a fresh Camera for every capture session.
type CameraFactory func() Camera

// ManagerConfig controls the poll loop.
type ManagerConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PollInterval: 100 * time.Millisecond,
		Timeout:      30 * time.Second,
	}
}

// Manager hands out exclusive camera sessions.
type Manager struct {
	sem       *semaphore.Weighted
	newCamera CameraFactory
	config    ManagerConfig
	logger    *slog.Logger
}

func NewManager(factory CameraFactory, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultManagerConfig().PollInterval
	}
	return &Manager{
		sem:       semaphore.NewWeighted(1),
		newCamera: factory,
		config:    cfg,
		logger:    logger.With("component", "capture"),
	}
}

// Handle is an exclusive, initialized camera. Close must be called on every
// path; it releases the camera, removes the artifact and frees the slot.
type Handle struct {
	camera  Camera
	manager *Manager
	once    sync.Once
	err     error
}

// Acquire waits for the camera slot and initializes a new camera.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, domain.ErrCaptureAborted.WithError(err)
	}

	camera := m.newCamera()
	if err := camera.Initialize(ctx); err != nil {
		_ = camera.Release()
		m.sem.Release(1)
		if errors.Is(err, domain.ErrCameraUnavailable) {
			return nil, err
		}
		return nil, domain.ErrCameraUnavailable.WithError(err)
	}

	return &Handle{camera: camera, manager: m}, nil
}

// Run polls frames until the camera reports a capture and returns the
// artifact path. The path is only valid until Close.
func (h *Handle) Run(ctx context.Context) (string, error) {
	if h.manager.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.manager.config.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(h.manager.config.PollInterval)
	defer ticker.Stop()

	for {
		frame, err := h.camera.PollFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", domain.ErrCaptureAborted.WithError(ctx.Err())
			}
			return "", err
		}
		if frame.Captured {
			path := h.camera.CapturedImagePath()
			if path == "" {
				return "", domain.ErrFrameRead.WithError(errors.New("capture reported without artifact"))
			}
			return path, nil
		}

		select {
		case <-ctx.Done():
			return "", domain.ErrCaptureAborted.WithError(ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close is idempotent.
func (h *Handle) Close() error {
	h.once.Do(func() {
		h.err = h.camera.Release()
		h.manager.sem.Release(1)
		if h.err != nil {
			h.manager.logger.Warn("camera release failed", "error", h.err)
		}
	})
	return h.err
}

// Capture runs a whole session and returns the captured face image. The
// camera is released and the artifact removed before it returns.
func (m *Manager) Capture(ctx context.Context) ([]byte, error) {
	handle, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = handle.Close()
	}()

	path, err := handle.Run(ctx)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.ErrFrameRead.WithError(fmt.Errorf("read capture: %w", err))
	}
	return data, nil
}
