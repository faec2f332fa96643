package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/quake-map-service/internal/config"
	"github.com/kjstillabower/quake-map-service/internal/observability"
	"github.com/kjstillabower/quake-map-service/internal/render"
)

func newExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Load both layers once and write a self-contained map page",
		RunE:  exportCommand,
	}
	exportCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	return exportCmd
}

func exportCommand(cmd *cobra.Command, args []string) error {
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	var w io.Writer = cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
	defer cancel()
	if err := runExport(ctx, cfg, logger, w); err != nil {
		return err
	}
	if out != "" {
		logger.Info("map exported", zap.String("path", out))
	}
	return nil
}

// runExport loads both overlays concurrently and renders them inline. A layer
// that fails to load is written as an empty overlay.
func runExport(ctx context.Context, cfg *config.Config, logger *zap.Logger, w io.Writer) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)

	page, err := render.NewPage()
	if err != nil {
		return fmt.Errorf("page template: %w", err)
	}

	snap := a.maps.Snapshot(ctx)
	collections := map[string]*geojson.FeatureCollection{
		snap.Earthquakes.Name(): snap.Earthquakes.FeatureCollection(),
		snap.FaultLines.Name():  snap.FaultLines.FeatureCollection(),
	}
	logger.Debug("snapshot loaded",
		zap.Int("earthquakes", snap.Earthquakes.Len()),
		zap.Int("fault_lines", snap.FaultLines.Len()),
	)
	return page.Render(w, render.Exported(a.composition, a.legend, collections))
}
