// Package store talks to a remote users API over HTTP and JSON. It is the
// alternative to the PostgreSQL repository when the kiosk does not own the
// identity database.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/giovannifil-64/DeVisu/internal/domain"
)

// Config holds the configuration for the store client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5000",
		Timeout: 10 * time.Second,
	}
}

// Client implements the kiosk identity store against /api/users.
// Requests are never retried; a transport failure is reported as
// domain.ErrStoreUnreachable.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(config Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		baseURL: strings.TrimRight(config.BaseURL, "/"),
	}
}

type createRequest struct {
	Name   string `json:"name"`
	OTP    string `json:"otp"`
	Vector string `json:"vector"`
}

func (c *Client) Create(ctx context.Context, name, otp, vector string) (*domain.Identity, error) {
	var identity domain.Identity
	err := c.do(ctx, http.MethodPost, "/api/users", createRequest{Name: name, OTP: otp, Vector: vector}, &identity, domain.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (c *Client) GetByID(ctx context.Context, id int64) (*domain.Identity, error) {
	var identity domain.Identity
	if err := c.do(ctx, http.MethodGet, "/api/users/"+strconv.FormatInt(id, 10), nil, &identity, domain.ErrIdentityNotFound); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (c *Client) GetByOTP(ctx context.Context, otp string) (*domain.Identity, error) {
	var identity domain.Identity
	if err := c.do(ctx, http.MethodGet, "/api/users/by_otp/"+url.PathEscape(otp), nil, &identity, domain.ErrOTPNotFound); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (c *Client) Update(ctx context.Context, id int64, upd domain.IdentityUpdate) (*domain.Identity, error) {
	var identity domain.Identity
	if err := c.do(ctx, http.MethodPut, "/api/users/"+strconv.FormatInt(id, 10), upd, &identity, domain.ErrIdentityNotFound); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/users/"+strconv.FormatInt(id, 10), nil, nil, domain.ErrIdentityNotFound)
}

// List returns every record the remote API knows about.
func (c *Client) List(ctx context.Context) ([]domain.Identity, error) {
	identities := make([]domain.Identity, 0)
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &identities, domain.ErrNotFound); err != nil {
		return nil, err
	}
	return identities, nil
}

// Ping checks that the remote API answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/users", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ErrStoreUnreachable.WithError(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return domain.ErrStoreUnreachable.WithError(fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// do executes a single request. A 404 maps to notFound, a 409 to
// domain.ErrOTPExists and 5xx or transport errors to ErrStoreUnreachable.
func (c *Client) do(ctx context.Context, method, path string, body, result any, notFound *domain.AppError) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		return domain.ErrStoreUnreachable.WithError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrStoreUnreachable.WithError(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notFound
	case resp.StatusCode == http.StatusConflict:
		return domain.ErrOTPExists
	case resp.StatusCode >= 500:
		return domain.ErrStoreUnreachable.WithError(
			fmt.Errorf("store returned status %d: %s", resp.StatusCode, string(respBody)))
	case resp.StatusCode >= 400:
		return domain.ErrBadRequest.WithError(
			fmt.Errorf("store returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return domain.ErrStoreUnreachable.WithError(fmt.Errorf("decode response: %w", err))
		}
	}

	return nil
}
