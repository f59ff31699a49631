package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	httphandler "github.com/kjstillabower/hotspot-location-service/internal/http"
	"github.com/kjstillabower/hotspot-location-service/internal/lifecycle"
	"github.com/kjstillabower/hotspot-location-service/internal/observability"
	"github.com/kjstillabower/hotspot-location-service/internal/traffic"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP enrichment service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer p.Close()

		tracker := traffic.NewTracker()
		lc := lifecycle.New()
		inFlight := &httphandler.InFlightTracker{}

		var limiter *rate.Limiter
		if cfg.RateLimitRPS > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		}

		handler := httphandler.NewHandler(p.enricher, tracker, lc, &httphandler.HealthConfig{
			DegradedWindow:      cfg.DegradedWindow,
			DegradedErrorPct:    cfg.DegradedErrorPct,
			DegradedMinRequests: cfg.DegradedMinRequests,
			CachePing:           p.cachePing,
			SpatialPing:         p.spatialPing,
		}, cfg.MaxPoints, logger)

		router := httphandler.NewRouter(handler, httphandler.RouterConfig{
			RequestTimeout: cfg.RequestTimeout,
			Limiter:        limiter,
			Tracker:        tracker,
			InFlight:       inFlight,
		}, logger)

		srv := &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				logger.Error("server", zap.Error(err))
				return err
			}
		case <-ctx.Done():
		}
		stop()

		logger.Info("graceful shutdown triggered")
		lc.BeginShutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}

		logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
		waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
		defer waitCancel()
		if err := inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
		}

		if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
			logger.Error("telemetry flush", zap.Error(err))
		}
		logger.Info("shutdown complete")
		return nil
	},
}
