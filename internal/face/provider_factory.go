package face

import (
	"context"
	"fmt"

	"github.com/giovannifil-64/DeVisu/internal/config"
	"github.com/giovannifil-64/DeVisu/internal/provider"
	"github.com/giovannifil-64/DeVisu/internal/provider/deepface"
	"github.com/giovannifil-64/DeVisu/internal/provider/mock"
	"github.com/giovannifil-64/DeVisu/internal/provider/rekognition"
)

// ProviderType defines supported face backends
type ProviderType string

const (
	// ProviderTypeDeepFace is the DeepFace HTTP API (detect and encode)
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeRekognition is AWS Rekognition (detect only)
	ProviderTypeRekognition ProviderType = "rekognition"
	// ProviderTypeMock is the deterministic in-process backend for dev/test
	ProviderTypeMock ProviderType = "mock"
)

// Backends is the detector/encoder pair used by the extractor.
type Backends struct {
	Detector provider.Detector
	Encoder  provider.Encoder
}

// NewBackends builds the detector and encoder selected by configuration.
//
// Environment variables:
//   - PROVIDER_TYPE: encoder, "deepface" or "mock" (default: "deepface")
//   - DETECTOR_TYPE: "deepface", "rekognition" or "mock" (default: "deepface")
//   - DEEPFACE_URL / DEEPFACE_MODEL: DeepFace API settings
//   - AWS_REGION and the AWS SDK credential chain for Rekognition
func NewBackends(ctx context.Context, cfg *config.Config) (*Backends, error) {
	encoder, err := newEncoder(cfg)
	if err != nil {
		return nil, err
	}

	detector, err := newDetector(ctx, cfg, encoder)
	if err != nil {
		return nil, err
	}

	return &Backends{Detector: detector, Encoder: encoder}, nil
}

func newEncoder(cfg *config.Config) (provider.Encoder, error) {
	switch ProviderType(cfg.ProviderType) {
	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil
	case ProviderTypeMock:
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s)",
			cfg.ProviderType, ProviderTypeDeepFace, ProviderTypeMock)
	}
}

func newDetector(ctx context.Context, cfg *config.Config, encoder provider.Encoder) (provider.Detector, error) {
	switch ProviderType(cfg.DetectorType) {
	case ProviderTypeRekognition:
		api, err := rekognition.NewAPI(ctx, rekognition.Config{Region: cfg.AWSRegion})
		if err != nil {
			return nil, fmt.Errorf("create rekognition detector: %w", err)
		}
		rc := rekognition.DefaultConfig()
		rc.Region = cfg.AWSRegion
		return rekognition.NewDetector(api, rc), nil

	case ProviderTypeDeepFace, "":
		// reuse the encoder's client when both sides talk to DeepFace
		if p, ok := encoder.(*deepface.Provider); ok {
			return p, nil
		}
		return createDeepFaceProvider(cfg), nil

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown detector type: %s (supported: %s, %s, %s)",
			cfg.DetectorType, ProviderTypeDeepFace, ProviderTypeRekognition, ProviderTypeMock)
	}
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Config) *deepface.Provider {
	deepfaceConfig := deepface.DefaultConfig()
	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		deepfaceConfig.Model = cfg.DeepFaceModel
	}

	return deepface.NewProvider(deepfaceConfig)
}
