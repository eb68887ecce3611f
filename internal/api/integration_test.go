//go:build integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/giovannifil-64/DeVisu/internal/api/handler"
	"github.com/giovannifil-64/DeVisu/internal/audit"
	"github.com/giovannifil-64/DeVisu/internal/cache"
	"github.com/giovannifil-64/DeVisu/internal/database"
	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/embedding"
	"github.com/giovannifil-64/DeVisu/internal/matcher"
	"github.com/giovannifil-64/DeVisu/internal/metrics"
	"github.com/giovannifil-64/DeVisu/internal/otp"
	"github.com/giovannifil-64/DeVisu/internal/ratelimit"
	"github.com/giovannifil-64/DeVisu/internal/repository"
	"github.com/giovannifil-64/DeVisu/internal/service"
	"github.com/giovannifil-64/DeVisu/internal/webhook"
	"github.com/giovannifil-64/DeVisu/internal/ws"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runWithDatabase(m))
}

func runWithDatabase(m *testing.M) int {
	ctx := context.Background()

	// Start PostgreSQL container with pgvector
	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "devisu_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Printf("Failed to start container: %v\n", err)
		return 1
	}

	defer func() {
		if err := container.Terminate(ctx); err != nil {
			fmt.Printf("Failed to terminate container: %v\n", err)
		}
	}()

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/devisu_test?sslmode=disable", host, port.Port())
	cfg := database.DefaultPoolConfig(dsn)

	sqlDB, err := database.NewPool(cfg)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		return 1
	}
	defer sqlDB.Close()

	migrator, err := database.NewMigrator(sqlDB, "devisu_test")
	if err != nil {
		fmt.Printf("Failed to create migrator: %v\n", err)
		return 1
	}
	if err := migrator.Up(); err != nil {
		fmt.Printf("Failed to run migrations: %v\n", err)
		return 1
	}

	testDB, err = database.NewPgxPool(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		return 1
	}
	defer testDB.Close()

	return m.Run()
}

// standIn plays the person in front of the camera.
type standIn struct {
	mu     sync.Mutex
	person string
}

func (s *standIn) set(person string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.person = person
}

func (s *standIn) Capture(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.person == "" {
		return nil, domain.ErrCaptureAborted
	}
	return []byte(s.person), nil
}

type faceBook map[string]embedding.Embedding

func (f faceBook) Extract(ctx context.Context, data []byte) (embedding.Embedding, error) {
	emb, ok := f[string(data)]
	if !ok {
		return nil, domain.ErrNoFaceDetected
	}
	return emb, nil
}

var faces = faceBook{
	"ada":   {1, 0, 0},
	"grace": {0, 1, 0},
}

func newIntegrationRouter(t *testing.T, camera *standIn) *Router {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	identities := repository.NewIdentityRepository(testDB)
	attempts := repository.NewAttemptRepository(testDB)
	sessions := cache.NewJSONStore[service.Session](cache.NewPGCache(testDB), "kiosk_session", 5*time.Minute)
	hub := ws.NewHub()

	svc := service.NewKioskService(identities, camera, faces, matcher.DefaultConfig(), otp.NewGenerator(6, 5), logger).
		WithAudit(audit.Multi{
			audit.NewSlogLogger(logger),
			audit.NewAttemptLogger(attempts),
			webhook.NewNotifier(testDB, webhook.DefaultConfig()),
		}).
		WithPublisher(hub)

	router := NewRouter(logger, &Dependencies{
		Kiosk:     svc,
		Sessions:  sessions,
		Attempts:  ratelimit.NewRateLimiter(testDB, time.Minute),
		Extractor: faces,
		Users:     identities,
		Nearest:   identities,
		Stats:     metrics.NewRepository(testDB),
		Hub:       hub,
		Ready:     map[string]handler.Pinger{"database": testDB},
		KioskConfig: handler.KioskConfig{
			AttemptLimit: 5,
			SessionTTL:   5 * time.Minute,
		},
	})
	router.Setup()
	t.Cleanup(func() { _ = router.Shutdown() })
	return router
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestIntegration_HealthEndpoints(t *testing.T) {
	router := newIntegrationRouter(t, &standIn{})

	resp, err := router.App().Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = router.App().Test(httptest.NewRequest("GET", "/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, map[string]string{"database": "ok"}, decodeBody[handler.HealthResponse](t, resp).Checks)

	resp, err = router.App().Test(httptest.NewRequest("GET", "/nonexistent", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestIntegration_KioskLifecycle(t *testing.T) {
	camera := &standIn{}
	router := newIntegrationRouter(t, camera)
	app := router.App()

	var adaOTP string

	t.Run("enroll", func(t *testing.T) {
		camera.set("ada")
		resp := postJSON(t, app, "/v1/kiosk/enroll", handler.EnrollRequest{Name: "Ada"})
		require.Equal(t, 201, resp.StatusCode)

		res := decodeBody[service.Result](t, resp)
		assert.True(t, res.Success)
		assert.Equal(t, service.ReasonEnrolled, res.Reason)
		assert.Len(t, res.OTP, 6)
		adaOTP = res.OTP
	})

	t.Run("users api sees the record", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/users/by_otp/"+adaOTP, nil), -1)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)

		identity := decodeBody[domain.Identity](t, resp)
		assert.Equal(t, "Ada", identity.Name)

		stored, err := embedding.Decode(identity.Vector)
		require.NoError(t, err)
		assert.Equal(t, faces["ada"], stored)
	})

	t.Run("verify same person", func(t *testing.T) {
		camera.set("ada")
		resp := postJSON(t, app, "/v1/kiosk/verify", handler.OTPRequest{OTP: adaOTP})
		require.Equal(t, 200, resp.StatusCode)

		res := decodeBody[service.Result](t, resp)
		assert.True(t, res.Success)
		assert.Equal(t, service.ReasonMatch, res.Reason)
		assert.Empty(t, res.OTP)
	})

	t.Run("verify different person", func(t *testing.T) {
		camera.set("grace")
		resp := postJSON(t, app, "/v1/kiosk/verify", handler.OTPRequest{OTP: adaOTP})
		require.Equal(t, 200, resp.StatusCode)

		res := decodeBody[service.Result](t, resp)
		assert.False(t, res.Success)
		assert.Equal(t, service.ReasonNoMatch, res.Reason)
	})

	t.Run("failed delete keeps the record", func(t *testing.T) {
		camera.set("grace")
		resp := postJSON(t, app, "/v1/kiosk/delete", handler.OTPRequest{OTP: adaOTP})
		require.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, service.ReasonNoMatch, decodeBody[service.Result](t, resp).Reason)

		resp, err := app.Test(httptest.NewRequest("GET", "/api/users/by_otp/"+adaOTP, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("nearest finds the enrolled face", func(t *testing.T) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="probe.jpg"`)
		h.Set("Content-Type", "image/jpeg")
		part, err := writer.CreatePart(h)
		require.NoError(t, err)
		_, _ = part.Write([]byte("ada"))
		require.NoError(t, writer.Close())

		req := httptest.NewRequest("POST", "/v1/kiosk/nearest?limit=1", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)

		out := decodeBody[handler.NearestResponse](t, resp)
		require.Len(t, out.Matches, 1)
		assert.Equal(t, "Ada", out.Matches[0].Name)
		assert.InDelta(t, 1.0, out.Matches[0].Similarity, 1e-6)
	})

	t.Run("two-step delete", func(t *testing.T) {
		resp := postJSON(t, app, "/v1/kiosk/sessions", handler.SessionRequest{Flow: service.FlowDelete, OTP: adaOTP})
		require.Equal(t, 201, resp.StatusCode)
		created := decodeBody[handler.SessionResponse](t, resp)
		assert.Equal(t, service.StateOTPSubmitted, created.Session.State)

		camera.set("ada")
		completePath := "/v1/kiosk/sessions/" + created.Session.ID + "/complete"
		resp, err := app.Test(httptest.NewRequest("POST", completePath, nil), -1)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, service.ReasonDeleted, decodeBody[service.Result](t, resp).Reason)

		resp, err = app.Test(httptest.NewRequest("GET", "/api/users/by_otp/"+adaOTP, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode)

		resp, err = app.Test(httptest.NewRequest("POST", completePath, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, 409, resp.StatusCode)
		assert.Equal(t, service.ReasonMissingPrerequisite, decodeBody[service.Result](t, resp).Reason)
	})

	t.Run("attempts are recorded", func(t *testing.T) {
		var count int
		err := testDB.QueryRow(context.Background(), `SELECT COUNT(*) FROM kiosk_attempts`).Scan(&count)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, 5)
	})

	t.Run("stats summarize the attempts", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/v1/kiosk/stats?window=1h", nil), -1)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)

		summary := decodeBody[metrics.Summary](t, resp)
		flows := make(map[string]metrics.FlowStats)
		for _, f := range summary.Flows {
			flows[f.Flow] = f
		}
		require.Contains(t, flows, "verify")
		assert.GreaterOrEqual(t, flows["verify"].Reasons[service.ReasonMatch], int64(1))
		assert.GreaterOrEqual(t, flows["verify"].Reasons[service.ReasonNoMatch], int64(1))
		require.Contains(t, flows, "enroll")
		assert.GreaterOrEqual(t, flows["enroll"].Succeeded, int64(1))
	})

	t.Run("flow outcomes are queued for the webhook", func(t *testing.T) {
		var pending int
		err := testDB.QueryRow(context.Background(),
			`SELECT COUNT(*) FROM webhook_queue WHERE status = 'pending'`).Scan(&pending)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pending, 5)
	})

	t.Run("otp guessing is throttled", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			resp := postJSON(t, app, "/v1/kiosk/verify", handler.OTPRequest{OTP: fmt.Sprintf("99990%d", i)})
			require.Equal(t, 200, resp.StatusCode)
			assert.Equal(t, service.ReasonOTPNotFound, decodeBody[service.Result](t, resp).Reason)
		}

		resp := postJSON(t, app, "/v1/kiosk/verify", handler.OTPRequest{OTP: "999999"})
		assert.Equal(t, 429, resp.StatusCode)
		assert.Equal(t, service.ReasonRateLimited, decodeBody[service.Result](t, resp).Reason)
	})
}

func TestIntegration_PgvectorExtension(t *testing.T) {
	var version string
	err := testDB.QueryRow(context.Background(), "SELECT extversion FROM pg_extension WHERE extname = 'vector'").Scan(&version)
	require.NoError(t, err)
	t.Logf("pgvector version: %s", version)
}
