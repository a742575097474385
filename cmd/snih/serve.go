package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/snih-data-etl/internal/adapter/http"
	"github.com/couchcryptid/snih-data-etl/internal/adapter/snih"
	"github.com/couchcryptid/snih-data-etl/internal/pipeline"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func getServeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve facility records and present values over HTTP",
		Long: `Keep the SNIH metadata catalog in memory, refreshed every
METADATA_REFRESH_INTERVAL, and serve:

  GET /healthz
  GET /readyz                               ready once metadata is harvested
  GET /metrics
  GET /v1/facilities/{code}                 synthesized facility record
  GET /v1/stations/{code}/present-values    latest readings`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, rt)
		},
	}
}

func runServe(cmd *cobra.Command, rt *runtime) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := snih.NewCachedTransport(rt.client(), rt.cfg.SNIHCacheSize, rt.cfg.SNIHCacheTTL, rt.clock, rt.metrics)
	if err != nil {
		return err
	}
	harvester := rt.harvester(transport)
	refresher := pipeline.NewRefresher(harvester, rt.facilityBuilder(), rt.cfg.MetadataRefreshInterval, rt.clock, rt.metrics, rt.logger)
	srv := httpadapter.NewServer(rt.cfg.HTTPAddr, refresher, harvester, nil, rt.logger)

	rt.logger.Info("snih cache configured", "size", rt.cfg.SNIHCacheSize, "ttl", rt.cfg.SNIHCacheTTL)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return refresher.Run(gctx)
	})

	g.Go(func() error {
		rt.metrics.ServerRunning.Set(1)
		defer rt.metrics.ServerRunning.Set(0)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		rt.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			rt.logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	rt.logger.Info("shutdown complete")
	return err
}
