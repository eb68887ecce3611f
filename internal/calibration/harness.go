package calibration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/giovannifil-64/DeVisu/internal/embedding"
	"github.com/giovannifil-64/DeVisu/internal/matcher"
)

type Extractor interface {
	Extract(ctx context.Context, data []byte) (embedding.Embedding, error)
}

// References holds one embedding per person, ordered by ascending person ID.
// That order is the scan order of Evaluate.
type References struct {
	PersonIDs []int
	Vectors   []embedding.Embedding
}

func (r References) Len() int {
	return len(r.PersonIDs)
}

func (r References) Has(person int) bool {
	for _, id := range r.PersonIDs {
		if id == person {
			return true
		}
	}
	return false
}

// Probe is an extracted non-canonical sample. Err is set when extraction
// failed; such probes count as Failed.
type Probe struct {
	Sample    Sample
	Embedding embedding.Embedding
	Err       error
}

type Report struct {
	TP        int `json:"tp" yaml:"tp"`
	FP        int `json:"fp" yaml:"fp"`
	TN        int `json:"tn" yaml:"tn"`
	FN        int `json:"fn" yaml:"fn"`
	Failed    int `json:"failed" yaml:"failed"`
	Processed int `json:"processed" yaml:"processed"`
}

// Accuracy is (TP+TN)/(TP+FP+TN+FN), or 0 with no decided probes.
func (r Report) Accuracy() float64 {
	total := r.TP + r.FP + r.TN + r.FN
	if total == 0 {
		return 0
	}
	return float64(r.TP+r.TN) / float64(total)
}

// Harness extracts dataset embeddings with bounded parallelism. Results
// are collected by position, so reports do not depend on scheduling.
type Harness struct {
	extractor Extractor
	workers   int
	logger    *slog.Logger
	// OnExtracted, when set, is called after each image is processed.
	OnExtracted func()
}

func NewHarness(extractor Extractor, workers int, logger *slog.Logger) *Harness {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Harness{
		extractor: extractor,
		workers:   workers,
		logger:    logger.With("component", "calibration"),
	}
}

func (h *Harness) extractAll(ctx context.Context, samples []Sample) ([]embedding.Embedding, []error, error) {
	vectors := make([]embedding.Embedding, len(samples))
	errs := make([]error, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)

	for i, sample := range samples {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(sample.Path)
			if err == nil {
				vectors[i], err = h.extractor.Extract(gctx, data)
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
			}
			if h.OnExtracted != nil {
				h.OnExtracted()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return vectors, errs, nil
}

// BuildReferences extracts each person's canonical image. A person whose
// reference fails to extract, or who has none, is left out and logged.
func (h *Harness) BuildReferences(ctx context.Context, ds *Dataset) (References, error) {
	var samples []Sample
	for _, id := range ds.PersonIDs() {
		ref, ok := ds.Reference(id)
		if !ok {
			h.logger.Warn("reference image not found", "person_id", id)
			continue
		}
		samples = append(samples, ref)
	}

	vectors, errs, err := h.extractAll(ctx, samples)
	if err != nil {
		return References{}, fmt.Errorf("build references: %w", err)
	}

	var refs References
	for i, sample := range samples {
		if errs[i] != nil {
			h.logger.Warn("failed to extract reference",
				"person_id", sample.PersonID,
				"path", sample.Path,
				"error", errs[i],
			)
			continue
		}
		refs.PersonIDs = append(refs.PersonIDs, sample.PersonID)
		refs.Vectors = append(refs.Vectors, vectors[i])
	}
	return refs, nil
}

// ExtractProbes extracts every non-canonical sample once so the result can
// be scored against many thresholds.
func (h *Harness) ExtractProbes(ctx context.Context, ds *Dataset) ([]Probe, error) {
	samples := ds.Probes()

	vectors, errs, err := h.extractAll(ctx, samples)
	if err != nil {
		return nil, fmt.Errorf("extract probes: %w", err)
	}

	probes := make([]Probe, len(samples))
	for i, sample := range samples {
		probes[i] = Probe{Sample: sample, Embedding: vectors[i], Err: errs[i]}
		if errs[i] != nil {
			h.logger.Debug("failed to extract probe", "path", sample.Path, "error", errs[i])
		}
	}
	return probes, nil
}

// Evaluate extracts the probes of ds and scores them under cfg.
func (h *Harness) Evaluate(ctx context.Context, ds *Dataset, refs References, cfg matcher.Config) (Report, error) {
	probes, err := h.ExtractProbes(ctx, ds)
	if err != nil {
		return Report{}, err
	}
	return Score(probes, refs, cfg), nil
}

// Score classifies each probe. References are scanned in order and the
// first match decides: the probe's own person gives TP, anyone else FP.
// With no match the probe is FN if its person has a reference, else TN.
func Score(probes []Probe, refs References, cfg matcher.Config) Report {
	var report Report
	for _, p := range probes {
		if p.Err != nil {
			report.Failed++
			continue
		}
		report.Processed++

		idx, ok := matcher.FirstMatch(refs.Vectors, p.Embedding, cfg)
		switch {
		case ok && refs.PersonIDs[idx] == p.Sample.PersonID:
			report.TP++
		case ok:
			report.FP++
		case refs.Has(p.Sample.PersonID):
			report.FN++
		default:
			report.TN++
		}
	}
	return report
}
