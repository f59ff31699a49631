package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/hotspot-location-service/internal/config"
	"github.com/kjstillabower/hotspot-location-service/internal/observability"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hotspot-location-service",
	Short: "Attach municipality and state to fire hotspot detections",
	Long: "Resolves a location for each hotspot from the cache, then the offline " +
		"municipality boundaries, then the reverse-geocoding provider.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := observability.NewLogger()
		if err != nil {
			return eris.Wrap(err, "init logger")
		}
		logger = l

		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, enrichCmd, warmCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
