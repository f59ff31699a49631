package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
	"github.com/kjstillabower/hotspot-location-service/internal/validation"
)

var (
	enrichInput  string
	enrichOutput string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a JSON file of hotspot records",
	Long:  "Reads a JSON array of hotspot records, attaches localizacao to each and writes the enriched array to --output or stdout.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		points, err := readPoints(enrichInput)
		if err != nil {
			return err
		}
		if err := validation.ValidatePoints(points, 0); err != nil {
			return eris.Wrap(err, "enrich: invalid input")
		}

		p, err := buildPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer p.Close()

		enriched, report, err := p.enricher.Enrich(ctx, points)
		if err != nil {
			return eris.Wrap(err, "enrich")
		}

		out := cmd.OutOrStdout()
		if enrichOutput != "" {
			f, err := os.Create(enrichOutput)
			if err != nil {
				return eris.Wrapf(err, "enrich: create %s", enrichOutput)
			}
			defer f.Close()
			out = f
		}
		if err := writeEnriched(out, enriched); err != nil {
			return err
		}
		logger.Info("enrich finished",
			zap.Int("input", report.Input),
			zap.Int("output", len(enriched)),
			zap.Int("dropped", report.Dropped))
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichInput, "input", "", "path to a JSON array of hotspot records")
	enrichCmd.Flags().StringVar(&enrichOutput, "output", "", "output path (default stdout)")
	_ = enrichCmd.MarkFlagRequired("input")
}

func readPoints(path string) ([]models.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var points []models.Point
	if err := json.NewDecoder(f).Decode(&points); err != nil {
		return nil, eris.Wrapf(err, "decode %s", path)
	}
	return points, nil
}

func writeEnriched(w io.Writer, points []models.EnrichedPoint) error {
	if points == nil {
		points = []models.EnrichedPoint{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(points); err != nil {
		return eris.Wrap(err, "write enriched points")
	}
	return nil
}
