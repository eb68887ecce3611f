package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Identity store: "postgres" uses DATABASE_URL directly, "http" talks to a
	// remote users API at STORE_URL.
	StoreBackend string        `envconfig:"STORE_BACKEND" default:"postgres"`
	StoreURL     string        `envconfig:"STORE_URL" default:"http://localhost:5000"`
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`

	// Provider
	ProviderType  string `envconfig:"PROVIDER_TYPE" default:"deepface"`
	DetectorType  string `envconfig:"DETECTOR_TYPE" default:"deepface"`
	DeepFaceURL   string `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	DeepFaceModel string `envconfig:"DEEPFACE_MODEL" default:"Facenet512"`
	AWSRegion     string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Matcher. MATCH_PROFILE, when set, overrides the three values below.
	MatchMetric    string  `envconfig:"MATCH_METRIC" default:"cosine"`
	MatchThreshold float64 `envconfig:"MATCH_THRESHOLD" default:"0.55"`
	MatchTolerance float64 `envconfig:"MATCH_TOLERANCE" default:"0.6"`
	MatchProfile   string  `envconfig:"MATCH_PROFILE"`

	// Extraction
	CropPadding   int `envconfig:"CROP_PADDING" default:"20"`
	CanonicalSize int `envconfig:"CANONICAL_SIZE" default:"512"`

	// Capture
	CameraURL           string        `envconfig:"CAMERA_URL" default:"http://localhost:8081/snapshot.jpg"`
	CaptureDir          string        `envconfig:"CAPTURE_DIR"`
	CaptureDwell        time.Duration `envconfig:"CAPTURE_DWELL" default:"2s"`
	CapturePollInterval time.Duration `envconfig:"CAPTURE_POLL_INTERVAL" default:"100ms"`
	CaptureTimeout      time.Duration `envconfig:"CAPTURE_TIMEOUT" default:"30s"`

	// OTP
	OTPLength      int `envconfig:"OTP_LENGTH" default:"6"`
	OTPMaxAttempts int `envconfig:"OTP_MAX_ATTEMPTS" default:"5"`

	// Kiosk sessions and OTP attempt throttling
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"5m"`
	AttemptLimit  int           `envconfig:"ATTEMPT_LIMIT" default:"5"`
	AttemptWindow time.Duration `envconfig:"ATTEMPT_WINDOW" default:"1m"`

	// Attempt audit retention; 0 keeps every row
	AttemptRetention time.Duration `envconfig:"ATTEMPT_RETENTION" default:"2160h"`

	// Outbound flow webhook, disabled when WEBHOOK_URL is empty
	WebhookURL         string `envconfig:"WEBHOOK_URL"`
	WebhookSecret      string `envconfig:"WEBHOOK_SECRET"`
	WebhookMaxAttempts int    `envconfig:"WEBHOOK_MAX_ATTEMPTS" default:"5"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.CaptureDir == "" {
		cfg.CaptureDir = os.TempDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "postgres", "http":
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or http, got %q", c.StoreBackend)
	}
	switch c.ProviderType {
	case "deepface", "mock":
	default:
		return fmt.Errorf("PROVIDER_TYPE must be deepface or mock, got %q", c.ProviderType)
	}
	switch c.DetectorType {
	case "deepface", "rekognition", "mock":
	default:
		return fmt.Errorf("DETECTOR_TYPE must be deepface, rekognition or mock, got %q", c.DetectorType)
	}
	switch c.MatchMetric {
	case "cosine", "euclidean":
	default:
		return fmt.Errorf("MATCH_METRIC must be cosine or euclidean, got %q", c.MatchMetric)
	}
	if c.OTPLength < 4 || c.OTPLength > 12 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 12, got %d", c.OTPLength)
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
	}
	if c.CanonicalSize <= 0 || c.CropPadding < 0 {
		return errors.New("CANONICAL_SIZE must be positive and CROP_PADDING non-negative")
	}
	return nil
}

// RequireDatabase is called by binaries that cannot run without PostgreSQL.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("required key DATABASE_URL missing value")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
