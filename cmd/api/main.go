package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/giovannifil-64/DeVisu/internal/api"
	"github.com/giovannifil-64/DeVisu/internal/api/handler"
	"github.com/giovannifil-64/DeVisu/internal/audit"
	"github.com/giovannifil-64/DeVisu/internal/cache"
	"github.com/giovannifil-64/DeVisu/internal/capture"
	"github.com/giovannifil-64/DeVisu/internal/config"
	"github.com/giovannifil-64/DeVisu/internal/database"
	"github.com/giovannifil-64/DeVisu/internal/extractor"
	"github.com/giovannifil-64/DeVisu/internal/face"
	"github.com/giovannifil-64/DeVisu/internal/metrics"
	"github.com/giovannifil-64/DeVisu/internal/otp"
	"github.com/giovannifil-64/DeVisu/internal/ratelimit"
	"github.com/giovannifil-64/DeVisu/internal/repository"
	"github.com/giovannifil-64/DeVisu/internal/service"
	"github.com/giovannifil-64/DeVisu/internal/store"
	"github.com/giovannifil-64/DeVisu/internal/webhook"
	"github.com/giovannifil-64/DeVisu/internal/ws"
)

const (
	cacheJanitorInterval   = time.Minute
	attemptCleanupInterval = 5 * time.Minute
	statsInterval          = time.Hour
	cameraReadTimeout      = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting DeVisu kiosk API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("store_backend", cfg.StoreBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPgxPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	deps, err := buildDependencies(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}

	router := api.NewRouter(logger, deps)
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}

// buildDependencies wires the kiosk service and everything the router serves.
// Background janitors stop with ctx.
func buildDependencies(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*api.Dependencies, error) {
	deps := &api.Dependencies{
		Ready: map[string]handler.Pinger{"database": pool},
		KioskConfig: handler.KioskConfig{
			AttemptLimit: cfg.AttemptLimit,
			SessionTTL:   cfg.SessionTTL,
		},
	}

	var identities service.IdentityStore
	switch cfg.StoreBackend {
	case "http":
		client := store.NewClient(store.Config{
			BaseURL: cfg.StoreURL,
			Timeout: cfg.StoreTimeout,
		})
		identities = client
		deps.Ready["store"] = client
	default:
		repo := repository.NewIdentityRepository(pool)
		identities = repo
		deps.Users = repo
		deps.Nearest = repo
	}

	backends, err := face.NewBackends(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create face backends: %w", err)
	}

	extCfg := extractor.DefaultConfig()
	extCfg.Padding = cfg.CropPadding
	extCfg.CanonicalSize = cfg.CanonicalSize
	faces := extractor.New(backends.Detector, backends.Encoder, extCfg, logger)
	deps.Extractor = faces

	matcherCfg, err := cfg.Matcher()
	if err != nil {
		return nil, fmt.Errorf("failed to load matcher config: %w", err)
	}
	logger.Info("matcher configured",
		slog.String("metric", string(matcherCfg.Metric)),
		slog.Float64("threshold", matcherCfg.Threshold),
		slog.Float64("tolerance", matcherCfg.Tolerance),
		slog.String("version", matcherCfg.Version),
	)

	cameras := capture.NewManager(func() capture.Camera {
		source := capture.NewHTTPSource(cfg.CameraURL, cameraReadTimeout)
		return capture.NewDwellCamera(source, backends.Detector, capture.Config{
			Dir:     cfg.CaptureDir,
			Dwell:   cfg.CaptureDwell,
			Padding: cfg.CropPadding,
		}, logger)
	}, capture.ManagerConfig{
		PollInterval: cfg.CapturePollInterval,
		Timeout:      cfg.CaptureTimeout,
	}, logger)

	pgCache := cache.NewPGCache(pool)
	go pgCache.Janitor(ctx, cacheJanitorInterval, logger)
	deps.Sessions = cache.NewJSONStore[service.Session](pgCache, "kiosk_session", cfg.SessionTTL)

	limiter := ratelimit.NewRateLimiter(pool, cfg.AttemptWindow)
	go cleanupAttempts(ctx, limiter, logger)
	deps.Attempts = limiter

	hub := ws.NewHub()
	deps.Hub = hub

	stats := metrics.NewRepository(pool)
	go metrics.NewAggregator(stats, logger, statsInterval, cfg.AttemptRetention).Start(ctx)
	deps.Stats = stats

	attempts := repository.NewAttemptRepository(pool)
	auditLog := audit.Multi{audit.NewSlogLogger(logger), audit.NewAttemptLogger(attempts)}

	if cfg.WebhookURL != "" {
		whCfg := webhook.DefaultConfig()
		whCfg.URL = cfg.WebhookURL
		whCfg.Secret = cfg.WebhookSecret
		whCfg.MaxAttempts = cfg.WebhookMaxAttempts

		auditLog = append(auditLog, webhook.NewNotifier(pool, whCfg))
		go webhook.NewWorker(pool, webhook.NewSender(whCfg), whCfg, logger).Run(ctx)
		logger.Info("flow webhook enabled", slog.String("url", cfg.WebhookURL))
	}

	deps.Kiosk = service.NewKioskService(
		identities,
		cameras,
		faces,
		matcherCfg,
		otp.NewGenerator(cfg.OTPLength, cfg.OTPMaxAttempts),
		logger,
	).
		WithAudit(auditLog).
		WithPublisher(hub)

	return deps, nil
}

// cleanupAttempts drops expired rate limit windows until ctx is done.
func cleanupAttempts(ctx context.Context, limiter *ratelimit.RateLimiter, logger *slog.Logger) {
	ticker := time.NewTicker(attemptCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := limiter.CleanupExpired(ctx)
			if err != nil {
				logger.Warn("attempt cleanup failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				logger.Debug("expired attempt windows removed", slog.Int64("count", n))
			}
		}
	}
}
