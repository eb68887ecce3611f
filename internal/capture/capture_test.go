package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/provider"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeSource struct {
	mu      sync.Mutex
	frame   []byte
	openErr error
	readErr error
	opened  bool
	closed  int
}

func (s *fakeSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = s.openErr == nil
	return s.openErr
}

func (s *fakeSource) Read(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.frame, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// scriptedDetector answers from a script, repeating the last entry.
type scriptedDetector struct {
	mu     sync.Mutex
	script [][]provider.DetectedFace
	calls  int
}

func (d *scriptedDetector) DetectFaces(ctx context.Context, data []byte) ([]provider.DetectedFace, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	d.calls++
	return d.script[i], nil
}

func face(x, y, w, h float64) []provider.DetectedFace {
	return []provider.DetectedFace{{BoundingBox: provider.BoundingBox{X: x, Y: y, Width: w, Height: h}, Confidence: 0.99}}
}

// steppingClock advances one second on every reading.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(time.Second)
		return t
	}
}

func newTestCamera(t *testing.T, src *fakeSource, det provider.Detector) *DwellCamera {
	t.Helper()
	return NewDwellCamera(src, det, Config{
		Dir:     t.TempDir(),
		Dwell:   2 * time.Second,
		Padding: 20,
		Now:     steppingClock(),
	}, discardLogger())
}

func TestDwellCamera_CapturesAfterDwell(t *testing.T) {
	src := &fakeSource{frame: testFrame(t)}
	cam := newTestCamera(t, src, &scriptedDetector{script: [][]provider.DetectedFace{face(50, 40, 60, 60)}})
	ctx := context.Background()

	require.NoError(t, cam.Initialize(ctx))

	for i := 0; i < 2; i++ {
		frame, err := cam.PollFrame(ctx)
		require.NoError(t, err)
		assert.False(t, frame.Captured, "poll %d", i)
		assert.NotEmpty(t, frame.Live)
		assert.Empty(t, cam.CapturedImagePath())
	}

	frame, err := cam.PollFrame(ctx)
	require.NoError(t, err)
	assert.True(t, frame.Captured)

	path := cam.CapturedImagePath()
	require.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "captured_image20260504-"))
	assert.Equal(t, ".jpg", filepath.Ext(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 100, cfg.Height)
}

func TestDwellCamera_PaddingIsClamped(t *testing.T) {
	src := &fakeSource{frame: testFrame(t)}
	cam := NewDwellCamera(src, &scriptedDetector{script: [][]provider.DetectedFace{face(0, 0, 50, 50)}}, Config{
		Dir:     t.TempDir(),
		Padding: 20,
	}, discardLogger())

	frame, err := cam.PollFrame(context.Background())
	require.NoError(t, err)
	require.True(t, frame.Captured)

	data, err := os.ReadFile(cam.CapturedImagePath())
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 70, cfg.Width)
	assert.Equal(t, 70, cfg.Height)
}

func TestDwellCamera_LostFaceRestartsCountdown(t *testing.T) {
	src := &fakeSource{frame: testFrame(t)}
	script := [][]provider.DetectedFace{
		face(50, 40, 60, 60),
		face(50, 40, 60, 60),
		nil,
		face(50, 40, 60, 60),
		face(50, 40, 60, 60),
		face(50, 40, 60, 60),
	}
	cam := newTestCamera(t, src, &scriptedDetector{script: script})
	ctx := context.Background()

	var captured []bool
	for range script {
		frame, err := cam.PollFrame(ctx)
		require.NoError(t, err)
		captured = append(captured, frame.Captured)
	}

	assert.Equal(t, []bool{false, false, false, false, false, true}, captured)
}

func TestDwellCamera_ReadErrorIsFrameRead(t *testing.T) {
	src := &fakeSource{readErr: errors.New("usb gone")}
	cam := newTestCamera(t, src, &scriptedDetector{script: [][]provider.DetectedFace{nil}})

	_, err := cam.PollFrame(context.Background())
	assert.ErrorIs(t, err, domain.ErrFrameRead)
}

func TestDwellCamera_ReleaseRemovesArtifact(t *testing.T) {
	src := &fakeSource{frame: testFrame(t)}
	cam := NewDwellCamera(src, &scriptedDetector{script: [][]provider.DetectedFace{face(50, 40, 60, 60)}}, Config{
		Dir: t.TempDir(),
	}, discardLogger())

	frame, err := cam.PollFrame(context.Background())
	require.NoError(t, err)
	require.True(t, frame.Captured)
	path := cam.CapturedImagePath()
	require.FileExists(t, path)

	require.NoError(t, cam.Release())
	assert.NoFileExists(t, path)
	assert.NoError(t, cam.Release())
	assert.Equal(t, 1, src.closed)

	_, err = cam.PollFrame(context.Background())
	assert.ErrorIs(t, err, domain.ErrCameraUnavailable)
}

func TestDwellCamera_FailedWriteLeavesNoArtifact(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{frame: testFrame(t)}
	cam := NewDwellCamera(src, &scriptedDetector{script: [][]provider.DetectedFace{face(50, 40, 60, 60)}}, Config{
		Dir: dir,
	}, discardLogger())
	cam.writeFile = func(name string, data []byte, perm os.FileMode) error {
		// half the bytes land before the disk fills up
		if err := os.WriteFile(name, data[:len(data)/2], perm); err != nil {
			return err
		}
		return errors.New("no space left on device")
	}

	_, err := cam.PollFrame(context.Background())
	require.Error(t, err)
	assert.Empty(t, cam.CapturedImagePath())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NoError(t, cam.Release())
}

func TestDwellCamera_InitializeFailure(t *testing.T) {
	src := &fakeSource{openErr: errors.New("no device")}
	cam := newTestCamera(t, src, &scriptedDetector{script: [][]provider.DetectedFace{nil}})

	err := cam.Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrCameraUnavailable)
}

// trackingCamera records lifecycle calls for manager tests.
type trackingCamera struct {
	mu           sync.Mutex
	initErr      error
	captureAt    int
	polls        int
	path         string
	dir          string
	released     int
	artifactGone bool
}

func (c *trackingCamera) Initialize(ctx context.Context) error { return c.initErr }

func (c *trackingCamera) PollFrame(ctx context.Context) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	if c.captureAt > 0 && c.polls >= c.captureAt {
		c.path = filepath.Join(c.dir, "captured_image.jpg")
		if err := os.WriteFile(c.path, []byte("face"), 0o600); err != nil {
			return Frame{}, err
		}
		return Frame{Live: []byte("live"), Captured: true}, nil
	}
	return Frame{Live: []byte("live")}, nil
}

func (c *trackingCamera) CapturedImagePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

func (c *trackingCamera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
	if c.path != "" {
		_ = os.Remove(c.path)
		c.artifactGone = true
	}
	return nil
}

func fastManager(factory CameraFactory, timeout time.Duration) *Manager {
	return NewManager(factory, ManagerConfig{PollInterval: time.Millisecond, Timeout: timeout}, discardLogger())
}

func TestManager_CaptureReleasesEverything(t *testing.T) {
	cam := &trackingCamera{captureAt: 3, dir: t.TempDir()}
	mgr := fastManager(func() Camera { return cam }, time.Second)

	data, err := mgr.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("face"), data)
	assert.Equal(t, 3, cam.polls)
	assert.Equal(t, 1, cam.released)
	assert.True(t, cam.artifactGone)
	assert.NoFileExists(t, filepath.Join(cam.dir, "captured_image.jpg"))

	// the slot is free again
	handle, err := mgr.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, handle.Close())
}

func TestManager_TimeoutAbortsAndReleases(t *testing.T) {
	cam := &trackingCamera{dir: t.TempDir()}
	mgr := fastManager(func() Camera { return cam }, 20*time.Millisecond)

	_, err := mgr.Capture(context.Background())
	assert.ErrorIs(t, err, domain.ErrCaptureAborted)
	assert.Equal(t, 1, cam.released)
}

func TestManager_CancelledContextReleases(t *testing.T) {
	cam := &trackingCamera{dir: t.TempDir()}
	mgr := fastManager(func() Camera { return cam }, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := mgr.Capture(ctx)
	assert.ErrorIs(t, err, domain.ErrCaptureAborted)
	assert.Equal(t, 1, cam.released)
}

func TestManager_SingleSession(t *testing.T) {
	mgr := fastManager(func() Camera { return &trackingCamera{dir: t.TempDir()} }, time.Second)

	first, err := mgr.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = mgr.Acquire(ctx)
	assert.ErrorIs(t, err, domain.ErrCaptureAborted)

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())

	second, err := mgr.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestManager_InitializeFailureFreesSlot(t *testing.T) {
	failing := true
	mgr := fastManager(func() Camera {
		if failing {
			return &trackingCamera{initErr: errors.New("busy")}
		}
		return &trackingCamera{dir: t.TempDir()}
	}, time.Second)

	_, err := mgr.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrCameraUnavailable)

	failing = false
	handle, err := mgr.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, handle.Close())
}

func TestHTTPSource(t *testing.T) {
	frame := testFrame(t)

	t.Run("reads a snapshot", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(frame)
		}))
		defer server.Close()

		src := NewHTTPSource(server.URL, time.Second)
		require.NoError(t, src.Open(context.Background()))

		data, err := src.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, frame, data)
		assert.NoError(t, src.Close())
	})

	t.Run("bad status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		src := NewHTTPSource(server.URL, time.Second)
		_, err := src.Read(context.Background())
		assert.ErrorIs(t, err, domain.ErrFrameRead)
		assert.ErrorIs(t, src.Open(context.Background()), domain.ErrCameraUnavailable)
	})
}
