package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"

	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/provider"
)

const (
	gridW              = 8
	gridH              = 16
	embeddingDimension = gridW * gridH

	// frames flatter than this are treated as "nobody in front of the camera"
	minLumaStdDev = 4.0
)

// Provider implementa provider.FaceProvider para testes e desenvolvimento
type Provider struct{}

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

// DetectFaces reports one face covering the central 80% of any image with
// visible texture, and none for flat frames.
func (p *Provider) DetectFaces(ctx context.Context, data []byte) ([]provider.DetectedFace, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	if lumaStdDev(img) < minLumaStdDev {
		return []provider.DetectedFace{}, nil
	}

	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	return []provider.DetectedFace{
		{
			BoundingBox: provider.BoundingBox{
				X:      float64(b.Min.X) + w*0.1,
				Y:      float64(b.Min.Y) + h*0.1,
				Width:  w * 0.8,
				Height: h * 0.8,
			},
			Confidence: 0.99,
		},
	}, nil
}

// Encode returns a unit-norm luminance grid of the image, so visually close
// crops land close under cosine similarity. Undecodable input falls back to a
// hash-derived vector.
func (p *Provider) Encode(ctx context.Context, data []byte) ([]float64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return hashEmbedding(data), nil
	}
	return gridEmbedding(img), nil
}

func luma(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
}

func lumaStdDev(img image.Image) float64 {
	b := img.Bounds()
	stepX := max(1, b.Dx()/32)
	stepY := max(1, b.Dy()/32)

	var sum, sumSq, n float64
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			v := luma(img, x, y)
			sum += v
			sumSq += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / n
	return math.Sqrt(math.Max(0, sumSq/n-mean*mean))
}

func gridEmbedding(img image.Image) []float64 {
	b := img.Bounds()
	out := make([]float64, embeddingDimension)
	counts := make([]float64, embeddingDimension)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		gy := (y - b.Min.Y) * gridH / max(1, b.Dy())
		for x := b.Min.X; x < b.Max.X; x++ {
			gx := (x - b.Min.X) * gridW / max(1, b.Dx())
			idx := gy*gridW + gx
			out[idx] += luma(img, x, y)
			counts[idx]++
		}
	}

	var mean float64
	for i := range out {
		if counts[i] > 0 {
			out[i] /= counts[i]
		}
		mean += out[i]
	}
	mean /= embeddingDimension

	for i := range out {
		out[i] -= mean
	}
	return normalize(out)
}

// hashEmbedding gera embedding determinístico baseado no hash da imagem
func hashEmbedding(data []byte) []float64 {
	hash := sha256.Sum256(data)
	out := make([]float64, embeddingDimension)
	for i := range out {
		out[i] = (float64(hash[i%len(hash)])/255.0)*2 - 1
	}
	return normalize(out)
}

func normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

var _ provider.FaceProvider = (*Provider)(nil)
