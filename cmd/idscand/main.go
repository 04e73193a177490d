package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"golang.org/x/time/rate"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/idscan/internal/app"
	"github.com/joseph-ayodele/idscan/internal/common"
	"github.com/joseph-ayodele/idscan/internal/core/async"
	"github.com/joseph-ayodele/idscan/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("IDSCAN_CONFIG"), "config file (YAML)")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	zl, err := newZapLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = zl.Sync() }()
	logger := slog.New(zapslog.NewHandler(zl.Core()))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("idscand exited", "error", err)
		_ = zl.Sync()
		os.Exit(1)
	}
}

func newZapLogger(c common.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if c.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(ctx, cfg, logger, app.WithRegisterer(reg))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := server.PingDB(ctx, a.DB, logger, 3*time.Second); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	logger.Info("DB health OK")

	queue := async.NewProcessorQueue(a.Processor, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
		async.WithRateLimit(rate.Limit(cfg.Queue.RateLimit), cfg.Queue.RateBurst))

	svc := server.NewScannerService(a.Processor, a.Ingestor, a.Documents, logger,
		server.WithQueue(queue),
		server.WithExporter(a.Exporter))
	grpcServer, health := server.NewGRPCServer(svc, logger)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	metricsSrv := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           metricsMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("gRPC serving", "addr", lis.Addr().String())
		errCh <- grpcServer.Serve(lis)
	}()
	if cfg.Server.MetricsAddr != "" {
		go func() {
			logger.Info("metrics serving", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics: %w", err)
			}
		}()
	}
	if len(cfg.Watch.Dirs) > 0 {
		go func() {
			if err := watchDirs(ctx, cfg.Watch, a.Ingestor, queue, logger); err != nil {
				errCh <- fmt.Errorf("watch: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err = <-errCh:
		logger.Error("component failed, shutting down", "error", err)
	}

	health.Shutdown()
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
	return err
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(healthpb.HealthCheckResponse_SERVING.String()))
	})
	return mux
}
