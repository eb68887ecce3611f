package provider

import "context"

// Detector localiza faces numa imagem e devolve as regiões em pixels
type Detector interface {
	// DetectFaces returns every face found, in detector order.
	DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error)
}

// Encoder extrai o embedding de uma imagem já recortada na face
type Encoder interface {
	// Encode returns the embedding of the face in image, or an empty slice
	// when the encoder produced nothing.
	Encode(ctx context.Context, image []byte) ([]float64, error)
}

// FaceProvider is a backend able to both detect and encode.
type FaceProvider interface {
	Detector
	Encoder
}

// DetectedFace represents a detected face in the image
type DetectedFace struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence"`
}

// BoundingBox represents the face area in the image, in pixels
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns Width*Height, or 0 for degenerate boxes.
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}
