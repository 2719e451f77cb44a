package main

import (
	"context"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/andrewwphillips/likecache"
	"github.com/andrewwphillips/likecache/internal/catalog"
	"github.com/andrewwphillips/likecache/internal/config"
	"github.com/andrewwphillips/likecache/internal/logging"
	"github.com/andrewwphillips/likecache/internal/server"
	"github.com/andrewwphillips/likecache/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Catalog Service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	config.ServeFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, "likecache")
	if err != nil {
		return err
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer tcancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("trace exporter shutdown", zap.Error(err))
		}
	}()

	router, err := newRouter(cfg, logger)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port))
	return server.Run(ctx, addr, router, cfg.ShutdownTimeout, logger)
}

// newRouter wires the catalog, the GraphQL handler and the metrics into the service routes
func newRouter(cfg config.Config, logger *zap.Logger) (*chi.Mux, error) {
	metrics := server.NewMetrics()
	svc := catalog.New(catalog.NewCounter(), catalog.Logger(logger), catalog.OnList(metrics.ProductListed))

	g := likecache.Catalog(svc)
	g.SetOptions(likecache.Logger(logger), likecache.Observer(metrics.ObserveOperation))
	gql, err := g.GetHandler()
	if err != nil {
		return nil, err
	}
	logger.Info("catalog ready", zap.String("path", cfg.Path))
	return server.NewRouter(cfg.Path, gql, metrics, logger), nil
}
