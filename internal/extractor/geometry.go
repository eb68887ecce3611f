package extractor

import (
	"image"
	"math"

	"github.com/giovannifil-64/DeVisu/internal/provider"
)

// SelectFace picks the face with the largest bounding box. On equal area the
// earliest face in detector order wins, so the choice does not depend on how a
// backend happens to sort its results.
func SelectFace(faces []provider.DetectedFace) (provider.DetectedFace, bool) {
	best := -1
	bestArea := 0.0
	for i, f := range faces {
		area := f.BoundingBox.Area()
		if area <= 0 {
			continue
		}
		if best == -1 || area > bestArea {
			best, bestArea = i, area
		}
	}
	if best == -1 {
		return provider.DetectedFace{}, false
	}
	return faces[best], true
}

// CropRect expands box by padding pixels on every side and clamps it to bounds.
// The result is empty when the box lies entirely outside bounds.
func CropRect(box provider.BoundingBox, bounds image.Rectangle, padding int) image.Rectangle {
	r := image.Rect(
		int(math.Floor(box.X))-padding,
		int(math.Floor(box.Y))-padding,
		int(math.Ceil(box.X+box.Width))+padding,
		int(math.Ceil(box.Y+box.Height))+padding,
	)
	return r.Intersect(bounds)
}
