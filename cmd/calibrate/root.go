package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/giovannifil-64/DeVisu/internal/calibration"
	"github.com/giovannifil-64/DeVisu/internal/config"
	"github.com/giovannifil-64/DeVisu/internal/extractor"
	"github.com/giovannifil-64/DeVisu/internal/face"
)

// Version is the application version.
const Version = "0.1.0"

// extractorFactory builds the face pipeline used to embed dataset images.
type extractorFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (calibration.Extractor, error)

// defaultExtractor uses the same detector, encoder and crop settings as the
// kiosk so the measured thresholds carry over.
func defaultExtractor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (calibration.Extractor, error) {
	backends, err := face.NewBackends(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create face backends: %w", err)
	}

	extCfg := extractor.DefaultConfig()
	extCfg.Padding = cfg.CropPadding
	extCfg.CanonicalSize = cfg.CanonicalSize
	return extractor.New(backends.Detector, backends.Encoder, extCfg, logger), nil
}

func newRootCmd(newExtractor extractorFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "calibrate",
		Short:         "Face matcher accuracy calibration",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newRunCmd(newExtractor))
	return root
}
