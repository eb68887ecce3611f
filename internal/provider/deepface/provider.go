package deepface

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/giovannifil-64/DeVisu/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels
)

// Provider implements provider.FaceProvider using DeepFace API
type Provider struct {
	client *Client
	config Config
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
		config: config,
	}
}

// DetectFaces runs the configured detector and returns facial areas in
// pixel coordinates, in the order DeepFace reports them.
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	imageBase64 := base64.StdEncoding.EncodeToString(image)

	resp, err := p.client.Represent(ctx, imageBase64, p.config.Detector)
	if err != nil {
		if isNoFaceError(err) {
			return []provider.DetectedFace{}, nil
		}
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(resp.Results))
	for _, result := range resp.Results {
		area := result.FacialArea
		if area.W <= 0 || area.H <= 0 {
			continue
		}

		confidence := result.FaceConfidence
		if confidence == 0 {
			confidence = estimateConfidence(float64(area.W * area.H))
		}

		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(area.X),
				Y:      float64(area.Y),
				Width:  float64(area.W),
				Height: float64(area.H),
			},
			Confidence: confidence,
		})
	}

	return faces, nil
}

// isNoFaceError reports DeepFace's 400 for frames without a face, which
// happens when enforce_detection is on.
func isNoFaceError(err error) bool {
	return isClientError(err) && strings.Contains(err.Error(), "Face could not be detected")
}

// estimateConfidence is used when the detector backend reports none.
// Larger faces are more likely to be accurately detected.
func estimateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5
	}
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

// Encode returns the embedding of an already cropped face. The crop goes to
// the model without a second detection pass.
func (p *Provider) Encode(ctx context.Context, image []byte) ([]float64, error) {
	imageBase64 := base64.StdEncoding.EncodeToString(image)

	resp, err := p.client.Represent(ctx, imageBase64, p.config.EncodeDetector)
	if err != nil {
		return nil, fmt.Errorf("encode face: %w", err)
	}

	if len(resp.Results) == 0 || len(resp.Results[0].Embedding) == 0 {
		return nil, nil
	}

	return resp.Results[0].Embedding, nil
}

// Ensure Provider implements provider.FaceProvider
var _ provider.FaceProvider = (*Provider)(nil)
