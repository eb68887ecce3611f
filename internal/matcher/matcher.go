// Package matcher decides whether two face embeddings belong to the same person.
package matcher

import (
	"fmt"
	"math"

	"github.com/giovannifil-64/DeVisu/internal/domain"
	"github.com/giovannifil-64/DeVisu/internal/embedding"
)

// Metric selects the similarity rule.
type Metric string

const (
	// MetricCosine matches when cosine similarity >= Threshold.
	MetricCosine Metric = "cosine"
	// MetricEuclidean matches when L2 distance <= Tolerance.
	MetricEuclidean Metric = "euclidean"
)

const (
	DefaultThreshold = 0.55
	DefaultTolerance = 0.6
)

// Config is the operating point used by every comparison. It is explicit
// configuration: callers never carry their own threshold literals.
type Config struct {
	Metric    Metric  `yaml:"metric" json:"metric"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
	Version   string  `yaml:"version,omitempty" json:"version,omitempty"`
}

// DefaultConfig returns cosine at 0.55.
func DefaultConfig() Config {
	return Config{
		Metric:    MetricCosine,
		Threshold: DefaultThreshold,
		Tolerance: DefaultTolerance,
		Version:   "default",
	}
}

func (c Config) Validate() error {
	switch c.Metric {
	case MetricCosine:
		if c.Threshold < -1 || c.Threshold > 1 || math.IsNaN(c.Threshold) {
			return domain.ErrInvalidThreshold.WithError(fmt.Errorf("threshold %v", c.Threshold))
		}
	case MetricEuclidean:
		if c.Tolerance < 0 || math.IsNaN(c.Tolerance) {
			return fmt.Errorf("tolerance must be non-negative, got %v", c.Tolerance)
		}
	default:
		return fmt.Errorf("unknown metric %q", c.Metric)
	}
	return nil
}

// Accepts applies the configured decision rule to a score produced by Score.
func (c Config) Accepts(score float64) bool {
	if math.IsNaN(score) {
		return false
	}
	if c.Metric == MetricEuclidean {
		return score <= c.Tolerance
	}
	return score >= c.Threshold
}

// Score returns the metric value for a and b. ok is false when the inputs
// cannot be compared: either is empty, lengths differ, a cosine operand
// has zero norm, or the cosine is not finite.
func Score(a, b embedding.Embedding, metric Metric) (score float64, ok bool) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, false
	}

	switch metric {
	case MetricEuclidean:
		return euclideanDistance(a, b), true
	case MetricCosine:
		return cosineSimilarity(a, b)
	default:
		return 0, false
	}
}

// Compare reports whether a and b match under cfg. Invalid input is a
// non-match, never an error.
func Compare(a, b embedding.Embedding, cfg Config) bool {
	score, ok := Score(a, b, cfg.Metric)
	if !ok {
		return false
	}
	return cfg.Accepts(score)
}

// CompareAny reports whether probe matches at least one candidate.
func CompareAny(candidates []embedding.Embedding, probe embedding.Embedding, cfg Config) bool {
	_, ok := FirstMatch(candidates, probe, cfg)
	return ok
}

// FirstMatch returns the index of the first candidate matching probe, scanning
// in slice order.
func FirstMatch(candidates []embedding.Embedding, probe embedding.Embedding, cfg Config) (int, bool) {
	if len(probe) == 0 {
		return -1, false
	}
	for i, c := range candidates {
		if Compare(c, probe, cfg) {
			return i, true
		}
	}
	return -1, false
}

func cosineSimilarity(a, b embedding.Embedding) (float64, bool) {
	// Both operands are scaled by their largest magnitude so the sums below
	// neither underflow nor overflow. Scaling leaves the cosine unchanged.
	scaleA, scaleB := maxAbs(a), maxAbs(b)
	if scaleA == 0 || scaleB == 0 || math.IsInf(scaleA, 0) || math.IsInf(scaleB, 0) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := a[i]/scaleA, b[i]/scaleB
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	// sqrt(x*x) == |x| exactly, so identical vectors score exactly 1.
	sim := dot / math.Sqrt(normA*normB)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, false
	}
	switch {
	case sim > 1:
		sim = 1
	case sim < -1:
		sim = -1
	}
	return sim, true
}

// maxAbs returns the largest absolute component of e, or NaN when e holds one.
func maxAbs(e embedding.Embedding) float64 {
	var m float64
	for _, v := range e {
		if math.IsNaN(v) {
			return math.NaN()
		}
		if abs := math.Abs(v); abs > m {
			m = abs
		}
	}
	return m
}

func euclideanDistance(a, b embedding.Embedding) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
