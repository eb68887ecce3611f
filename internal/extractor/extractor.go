// Package extractor turns an image into a face embedding: detect, pick one
// face, crop with padding, resize to a canonical square, then encode.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/embedding"
	"github.com/giovannifil-64/DeVisu/internal/provider"
)

// Config controls cropping and canonicalization. Changing any of these shifts
// the similarity distribution, so thresholds must be recalibrated afterwards.
type Config struct {
	Padding       int
	CanonicalSize int
	JPEGQuality   int
	// Dimensions, when set, rejects embeddings of any other length.
	Dimensions int
}

func DefaultConfig() Config {
	return Config{
		Padding:       20,
		CanonicalSize: 512,
		JPEGQuality:   90,
	}
}

type Extractor struct {
	detector provider.Detector
	encoder  provider.Encoder
	config   Config
	logger   *slog.Logger
}

func New(detector provider.Detector, encoder provider.Encoder, cfg Config, logger *slog.Logger) *Extractor {
	if cfg.CanonicalSize <= 0 {
		cfg.CanonicalSize = DefaultConfig().CanonicalSize
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultConfig().JPEGQuality
	}
	return &Extractor{
		detector: detector,
		encoder:  encoder,
		config:   cfg,
		logger:   logger.With("component", "extractor"),
	}
}

// Extract returns the embedding of the selected face in data. Errors are
// domain.ErrInvalidImage, domain.ErrNoFaceDetected or domain.ErrEncodingFailed.
func (e *Extractor) Extract(ctx context.Context, data []byte) (embedding.Embedding, error) {
	crop, err := e.Canonicalize(ctx, data)
	if err != nil {
		return nil, err
	}

	vec, err := e.encoder.Encode(ctx, crop)
	if err != nil {
		return nil, domain.ErrEncodingFailed.WithError(err)
	}
	if len(vec) == 0 {
		return nil, domain.ErrEncodingFailed
	}
	if e.config.Dimensions > 0 && len(vec) != e.config.Dimensions {
		return nil, domain.ErrEncodingFailed.WithError(
			fmt.Errorf("encoder returned %d dimensions, want %d", len(vec), e.config.Dimensions))
	}

	return embedding.Embedding(vec), nil
}

// Canonicalize runs detection and returns the selected face as a JPEG of
// CanonicalSize x CanonicalSize pixels.
func (e *Extractor) Canonicalize(ctx context.Context, data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	faces, err := e.detector.DetectFaces(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ErrEncodingFailed.WithError(fmt.Errorf("detect faces: %w", err))
	}

	face, ok := SelectFace(faces)
	if !ok {
		return nil, domain.ErrNoFaceDetected
	}
	if len(faces) > 1 {
		e.logger.DebugContext(ctx, "multiple faces detected, using largest",
			"faces", len(faces),
			"area", face.BoundingBox.Area(),
		)
	}

	rect := CropRect(face.BoundingBox, img.Bounds(), e.config.Padding)
	if rect.Empty() {
		return nil, domain.ErrNoFaceDetected.WithError(fmt.Errorf("face box %+v outside image", face.BoundingBox))
	}

	size := e.config.CanonicalSize
	canonical := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(canonical, canonical.Bounds(), img, rect, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canonical, &jpeg.Options{Quality: e.config.JPEGQuality}); err != nil {
		return nil, domain.ErrEncodingFailed.WithError(fmt.Errorf("encode crop: %w", err))
	}
	return buf.Bytes(), nil
}
