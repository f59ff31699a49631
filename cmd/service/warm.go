package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/hotspot-location-service/internal/cache"
	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

var (
	warmInput       string
	warmConcurrency int
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Seed the location cache from previously enriched records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		points, err := readEnriched(warmInput)
		if err != nil {
			return err
		}

		c, err := openCache(cfg, logger)
		if err != nil {
			return err
		}
		if c.close != nil {
			defer c.close()
		}

		n, err := cache.NewWarmer(c.cache, warmConcurrency, logger).Warm(ctx, points)
		if err != nil {
			return eris.Wrap(err, "warm cache")
		}
		logger.Info("cache warmed", zap.Int("written", n), zap.Int("records", len(points)))
		return nil
	},
}

func init() {
	warmCmd.Flags().StringVar(&warmInput, "input", "", "path to a JSON array of enriched records (enrich output)")
	warmCmd.Flags().IntVar(&warmConcurrency, "concurrency", 8, "parallel cache writes")
	_ = warmCmd.MarkFlagRequired("input")
}

func readEnriched(path string) ([]models.EnrichedPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var points []models.EnrichedPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, eris.Wrapf(err, "decode %s", path)
	}
	return points, nil
}
