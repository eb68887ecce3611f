package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/extractor"
	"github.com/giovannifil-64/DeVisu/internal/provider"
)

const artifactTimeLayout = "20060102-150405"

// Config controls the dwell camera.
type Config struct {
	Dir     string
	Dwell   time.Duration
	Padding int
	// Now defaults to time.Now.
	Now func() time.Time
}

// DwellCamera captures once a face has been continuously detected for
// Dwell. Any frame without a face restarts the countdown.
type DwellCamera struct {
	source   FrameSource
	detector provider.Detector
	config   Config
	logger   *slog.Logger
	// writeFile is os.WriteFile outside tests.
	writeFile func(name string, data []byte, perm os.FileMode) error

	mu        sync.Mutex
	faceSince time.Time
	path      string
	released  bool
}

func NewDwellCamera(source FrameSource, detector provider.Detector, cfg Config, logger *slog.Logger) *DwellCamera {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	return &DwellCamera{
		source:    source,
		detector:  detector,
		config:    cfg,
		logger:    logger.With("component", "camera"),
		writeFile: os.WriteFile,
	}
}

func (c *DwellCamera) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(c.config.Dir, 0o755); err != nil {
		return domain.ErrCameraUnavailable.WithError(fmt.Errorf("capture dir: %w", err))
	}
	if err := c.source.Open(ctx); err != nil {
		if errors.Is(err, domain.ErrCameraUnavailable) {
			return err
		}
		return domain.ErrCameraUnavailable.WithError(err)
	}
	return nil
}

func (c *DwellCamera) PollFrame(ctx context.Context) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return Frame{}, domain.ErrCameraUnavailable.WithError(errors.New("camera released"))
	}
	if c.path != "" {
		return Frame{Captured: true}, nil
	}

	data, err := c.source.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		if errors.Is(err, domain.ErrFrameRead) {
			return Frame{}, err
		}
		return Frame{}, domain.ErrFrameRead.WithError(err)
	}

	frame := Frame{Live: data}

	faces, err := c.detector.DetectFaces(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		c.logger.Warn("face detection failed on frame", "error", err)
		c.faceSince = time.Time{}
		return frame, nil
	}

	face, ok := extractor.SelectFace(faces)
	if !ok {
		c.faceSince = time.Time{}
		return frame, nil
	}

	now := c.config.Now()
	if c.faceSince.IsZero() {
		c.faceSince = now
	}
	if now.Sub(c.faceSince) < c.config.Dwell {
		return frame, nil
	}

	path, err := c.saveCrop(data, face.BoundingBox, now)
	if err != nil {
		return Frame{}, err
	}
	c.path = path
	frame.Captured = true

	c.logger.Debug("face captured", "path", path)
	return frame, nil
}

// saveCrop writes the padded face region of data as a JPEG artifact.
func (c *DwellCamera) saveCrop(data []byte, box provider.BoundingBox, now time.Time) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", domain.ErrFrameRead.WithError(fmt.Errorf("decode frame: %w", err))
	}

	rect := extractor.CropRect(box, img.Bounds(), c.config.Padding)
	if rect.Empty() {
		return "", domain.ErrNoFaceDetected
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Copy(crop, image.Point{}, img, rect, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: 95}); err != nil {
		return "", fmt.Errorf("encode capture: %w", err)
	}

	path := filepath.Join(c.config.Dir, "captured_image"+now.Format(artifactTimeLayout)+".jpg")
	if err := c.writeFile(path, buf.Bytes(), 0o600); err != nil {
		// A failed write may still have created the file; nothing else knows its path.
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			c.logger.Warn("failed to remove partial capture", "path", path, "error", rmErr)
		}
		return "", fmt.Errorf("write capture: %w", err)
	}
	return path, nil
}

func (c *DwellCamera) CapturedImagePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

func (c *DwellCamera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil
	}
	c.released = true

	var errs []error
	if c.path != "" {
		if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove capture: %w", err))
		}
		c.path = ""
	}
	if err := c.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close source: %w", err))
	}
	return errors.Join(errs...)
}
