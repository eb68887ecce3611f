// Package capture drives the kiosk camera: it polls frames until a face has
// been in view for the dwell interval, saves one padded face crop and hands
// its path back. Only one capture may hold the camera at a time.
package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/giovannifil-64/DeVisu/internal/domain"
)

// Frame is one poll of the camera. Live holds the encoded frame for
// preview. Captured is set once the face crop has been written.
type Frame struct {
	Live     []byte
	Captured bool
}

// Camera is a single capture session.
type Camera interface {
	Initialize(ctx context.Context) error
	PollFrame(ctx context.Context) (Frame, error)
	// CapturedImagePath is empty until a frame reports Captured.
	CapturedImagePath() string
	// Release frees the device and removes the capture artifact. Safe to
	// call more than once.
	Release() error
}

// FrameSource yields encoded still frames (JPEG, PNG or BMP).
type FrameSource interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// HTTPSource reads frames from a camera snapshot endpoint, such as the
// /snapshot.jpg route most IP cameras and mjpg-streamer expose.
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Open probes the endpoint once so an unplugged camera fails fast.
func (s *HTTPSource) Open(ctx context.Context) error {
	if _, err := s.Read(ctx); err != nil {
		return domain.ErrCameraUnavailable.WithError(err)
	}
	return nil
}

func (s *HTTPSource) Read(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.ErrFrameRead.WithError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.ErrFrameRead.WithError(fmt.Errorf("camera returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrFrameRead.WithError(err)
	}
	if len(data) == 0 {
		return nil, domain.ErrFrameRead.WithError(fmt.Errorf("empty frame"))
	}
	return data, nil
}

func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
