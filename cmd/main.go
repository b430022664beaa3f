package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/dropwatch/internal/adapters/http/api"
	"github.com/okian/dropwatch/internal/adapters/http/site"
	"github.com/okian/dropwatch/internal/adapters/http/swagger"
	repository "github.com/okian/dropwatch/internal/adapters/repository"
	"github.com/okian/dropwatch/internal/adapters/scheduler"
	service "github.com/okian/dropwatch/internal/app"
	"github.com/okian/dropwatch/internal/config"
	"github.com/okian/dropwatch/internal/domain/scoring"
	"github.com/okian/dropwatch/pkg/logger"
	"github.com/okian/dropwatch/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsSpec         = "@every 10s"
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "dropwatch exited", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run wires every component and serves until ctx is canceled. A model that
// cannot be loaded aborts startup before the listener opens.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	pipe, err := scoring.LoadPipeline(cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	metrics.UpdateModelInfo(len(pipe.Coefficients), pipe.Metadata.TestAccuracy)
	log.Info(ctx, "model loaded",
		logger.String("path", cfg.ModelPath),
		logger.Float64("test_accuracy", pipe.Metadata.TestAccuracy),
	)

	store, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreTarget(),
		repository.WithLogger(log.Named("store")),
		repository.WithMaxConns(int32(cfg.PostgresMaxConns)), //nolint:gosec // validated positive and small
	)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	svc := service.New(
		service.WithLogger(log.Named("service")),
		service.WithScorer(scoring.NewScorer(pipe, scoring.WithThresholds(cfg.LowRiskThreshold, cfg.HighRiskThreshold))),
		service.WithStore(store),
		service.WithBackendName(cfg.StoreDriver),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	sched, err := newScheduler(cfg, svc, log.Named("scheduler"))
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			log.Warn(ctx, "scheduler stop", logger.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newHandler builds the route table: business API, embedded UI and API docs,
// behind request-ID and CORS middleware.
func newHandler(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()

	swagger.Register(ctx, mux)
	site.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc, api.WithLogger(log.Named("api")))
	apiServer.Register(ctx, mux)

	return api.RequestIDMiddleware(api.CORSMiddleware(cfg.AllowedOrigins())(mux))
}

// newScheduler registers the periodic gauge refreshes.
func newScheduler(cfg *config.Config, svc *service.Service, log logger.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(scheduler.WithLogger(log))
	if cfg.MetricsRefreshSpec != "" {
		if err := sched.Add("store-metrics", cfg.MetricsRefreshSpec, svc.RefreshStoreMetrics); err != nil {
			return nil, fmt.Errorf("schedule store metrics: %w", err)
		}
	}
	if err := sched.Add("system-metrics", systemMetricsSpec, func(context.Context) error {
		updateSystemMetrics()
		return nil
	}); err != nil {
		return nil, fmt.Errorf("schedule system metrics: %w", err)
	}
	return sched, nil
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
