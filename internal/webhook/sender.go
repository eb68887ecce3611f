package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Sender POSTs signed payloads to a single endpoint.
type Sender struct {
	client *http.Client
	url    string
	secret string
	now    func() time.Time
}

func NewSender(cfg Config) *Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Sender{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		secret: cfg.Secret,
		now:    time.Now,
	}
}

// Send delivers payload once. Any non-2xx answer is an error.
func (s *Sender) Send(ctx context.Context, eventType string, payload []byte) error {
	timestamp := s.now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DeVisu-Signature", Sign(s.secret, timestamp, payload))
	req.Header.Set("X-DeVisu-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-DeVisu-Event", eventType)
	req.Header.Set("User-Agent", "DeVisu-Webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send webhook: HTTP %d", resp.StatusCode)
	}
	return nil
}
