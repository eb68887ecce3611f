package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/giovannifil-64/DeVisu/internal/calibration"
	"github.com/giovannifil-64/DeVisu/internal/config"
	"github.com/giovannifil-64/DeVisu/internal/matcher"
)

type runOptions struct {
	Dataset string
	Metric  string
	Grid    []float64
	Out     string
	Workers int
	Quiet   bool
}

func newRunCmd(newExtractor extractorFactory) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Score a dataset at each grid value and pick the most accurate",
		Long: `Reads {personId}_{sampleIndex}.{jpg,jpeg,png} files from --dataset.
Sample 1 of each person is its reference; every other sample is a probe
matched against all references. Each grid value is a cosine threshold
or a euclidean tolerance depending on --metric.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.Environment)

			base, err := baseConfig(cfg, opts.Metric)
			if err != nil {
				return err
			}

			ext, err := newExtractor(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return runCalibration(cmd.Context(), opts, base, ext, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
		},
	}

	cmd.Flags().StringVarP(&opts.Dataset, "dataset", "d", "", "Directory of {personId}_{sampleIndex} images")
	cmd.Flags().StringVarP(&opts.Metric, "metric", "m", "", "cosine or euclidean (default: MATCH_METRIC)")
	cmd.Flags().Float64SliceVarP(&opts.Grid, "grid", "g", nil, "Comma separated thresholds or tolerances to evaluate (default: the configured value)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "Write the best operating point to this profile file")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "Parallel extractions (default: number of CPUs)")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Hide the progress bar")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

// baseConfig is the configured matcher with the metric optionally replaced.
func baseConfig(cfg *config.Config, metric string) (matcher.Config, error) {
	base, err := cfg.Matcher()
	if err != nil {
		return matcher.Config{}, err
	}
	if metric != "" {
		base.Metric = matcher.Metric(metric)
	}
	if err := base.Validate(); err != nil {
		return matcher.Config{}, fmt.Errorf("invalid --metric: %w", err)
	}
	return base, nil
}

func runCalibration(
	ctx context.Context,
	opts runOptions,
	base matcher.Config,
	ext calibration.Extractor,
	out, errOut io.Writer,
	logger *slog.Logger,
) error {
	ds, err := calibration.LoadDataset(opts.Dataset)
	if err != nil {
		return err
	}

	grid := opts.Grid
	if len(grid) == 0 {
		grid = []float64{currentValue(base)}
	}

	harness := calibration.NewHarness(ext, opts.Workers, logger)
	if !opts.Quiet {
		bar := progressbar.NewOptions(ds.Size(),
			progressbar.OptionSetDescription("Extracting"),
			progressbar.OptionSetWriter(errOut),
			progressbar.OptionShowCount(),
		)
		harness.OnExtracted = func() { _ = bar.Add(1) }
		defer func() {
			_ = bar.Finish()
			fmt.Fprintln(errOut)
		}()
	}

	refs, err := harness.BuildReferences(ctx, ds)
	if err != nil {
		return err
	}
	if refs.Len() == 0 {
		return fmt.Errorf("dataset %s: no usable reference images", opts.Dataset)
	}

	points, err := harness.Sweep(ctx, ds, refs, base, grid)
	if err != nil {
		return err
	}

	best, ok := calibration.Best(points)
	if !ok {
		return fmt.Errorf("no valid grid values for metric %s", base.Metric)
	}

	printTable(out, base.Metric, points, best)

	if opts.Out == "" {
		return nil
	}

	now := time.Now().UTC()
	profile := calibration.Profile(best, points, filepath.Base(filepath.Clean(opts.Dataset)))
	profile.Matcher.Version = "calibrated-" + now.Format("20060102-150405")
	profile.Calibration.GeneratedAt = now

	if err := matcher.SaveProfile(opts.Out, profile); err != nil {
		return err
	}
	fmt.Fprintf(out, "profile written to %s\n", opts.Out)
	return nil
}

func currentValue(cfg matcher.Config) float64 {
	if cfg.Metric == matcher.MetricEuclidean {
		return cfg.Tolerance
	}
	return cfg.Threshold
}

func printTable(out io.Writer, metric matcher.Metric, points []calibration.SweepPoint, best calibration.SweepPoint) {
	column := "THRESHOLD"
	if metric == matcher.MetricEuclidean {
		column = "TOLERANCE"
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "%s\tACCURACY\tTP\tFP\tTN\tFN\tFAILED\t\n", column)
	for _, p := range points {
		mark := ""
		if p.Value == best.Value {
			mark = "*"
		}
		r := p.Report
		fmt.Fprintf(w, "%.3f\t%.4f\t%d\t%d\t%d\t%d\t%d\t%s\n",
			p.Value, r.Accuracy(), r.TP, r.FP, r.TN, r.FN, r.Failed, mark)
	}
	_ = w.Flush()

	fmt.Fprintf(out, "best %s: %.3f (accuracy %.2f%%)\n",
		strings.ToLower(column), best.Value, best.Report.Accuracy()*100)
}
