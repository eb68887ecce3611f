package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/giovannifil-64/DeVisu/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

// Detector implements provider.Detector with the Rekognition DetectFaces API.
// Rekognition does not expose embeddings, so it is paired with another Encoder.
type Detector struct {
	api    DetectAPI
	config Config
}

// NewDetector wraps api. Use NewAPI for a real client.
func NewDetector(api DetectAPI, cfg Config) *Detector {
	return &Detector{api: api, config: cfg}
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) < minImageSize {
		return fmt.Errorf("%w: image too small (%d bytes, minimum %d)", ErrInvalidImage, len(image), minImageSize)
	}
	if len(image) > maxImageSize {
		return fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(image), maxImageSize)
	}
	return nil
}

// DetectFaces returns detections in pixel coordinates. Rekognition reports
// boxes as ratios of the image size, so the image header is decoded first.
// Returns an empty slice if no faces are detected (not an error).
func (d *Detector) DetectFaces(ctx context.Context, img []byte) ([]provider.DetectedFace, error) {
	if err := validateImage(img); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	output, err := d.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: img},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", mapAPIError(err))
	}

	w, h := float64(cfg.Width), float64(cfg.Height)
	faces := make([]provider.DetectedFace, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if detail.BoundingBox == nil {
			continue
		}
		confidence := float32Value(detail.Confidence)
		if confidence < d.config.MinConfidence {
			continue
		}

		box := detail.BoundingBox
		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(float32Value(box.Left)) * w,
				Y:      float64(float32Value(box.Top)) * h,
				Width:  float64(float32Value(box.Width)) * w,
				Height: float64(float32Value(box.Height)) * h,
			},
			Confidence: float64(confidence) / 100,
		})
	}

	return faces, nil
}

func float32Value(p *float32) float32 {
	if p == nil {
		return 0
	}
	return *p
}

var _ provider.Detector = (*Detector)(nil)
