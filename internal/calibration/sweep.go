package calibration

import (
	"context"
	"sort"

	"github.com/giovannifil-64/DeVisu/internal/matcher"
)

// SweepPoint is the report for one grid value. Value is the cosine
// threshold or the euclidean tolerance, depending on the metric.
type SweepPoint struct {
	Value  float64
	Config matcher.Config
	Report Report
}

// WithValue returns base with its metric's cutoff set to v.
func WithValue(base matcher.Config, v float64) matcher.Config {
	cfg := base
	if cfg.Metric == matcher.MetricEuclidean {
		cfg.Tolerance = v
	} else {
		cfg.Threshold = v
	}
	return cfg
}

// Sweep extracts the probes once and scores them at every grid value, in
// ascending order. Invalid grid values are skipped.
func (h *Harness) Sweep(ctx context.Context, ds *Dataset, refs References, base matcher.Config, grid []float64) ([]SweepPoint, error) {
	probes, err := h.ExtractProbes(ctx, ds)
	if err != nil {
		return nil, err
	}
	return SweepProbes(probes, refs, base, grid), nil
}

func SweepProbes(probes []Probe, refs References, base matcher.Config, grid []float64) []SweepPoint {
	values := append([]float64(nil), grid...)
	sort.Float64s(values)

	points := make([]SweepPoint, 0, len(values))
	for i, v := range values {
		if i > 0 && v == values[i-1] {
			continue
		}
		cfg := WithValue(base, v)
		if err := cfg.Validate(); err != nil {
			continue
		}
		points = append(points, SweepPoint{
			Value:  v,
			Config: cfg,
			Report: Score(probes, refs, cfg),
		})
	}
	return points
}

// Best picks the most accurate point. Ties go to the lowest value, which
// points is already sorted by.
func Best(points []SweepPoint) (SweepPoint, bool) {
	if len(points) == 0 {
		return SweepPoint{}, false
	}
	best := points[0]
	for _, p := range points[1:] {
		if p.Report.Accuracy() > best.Report.Accuracy() {
			best = p
		}
	}
	return best, true
}

// Profile builds the versioned matcher profile for best.
func Profile(best SweepPoint, points []SweepPoint, dataset string) *matcher.Profile {
	grid := make([]matcher.GridOutcome, 0, len(points))
	for _, p := range points {
		grid = append(grid, matcher.GridOutcome{
			Value:    p.Value,
			Accuracy: p.Report.Accuracy(),
			TP:       p.Report.TP,
			FP:       p.Report.FP,
			TN:       p.Report.TN,
			FN:       p.Report.FN,
			Failed:   p.Report.Failed,
		})
	}
	return &matcher.Profile{
		SchemaVersion: matcher.ProfileVersion,
		Matcher:       best.Config,
		Calibration: &matcher.Calibration{
			Dataset:  dataset,
			Accuracy: best.Report.Accuracy(),
			Grid:     grid,
		},
	}
}
