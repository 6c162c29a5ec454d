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

	"github.com/okian/pairank/internal/adapters/http/api"
	"github.com/okian/pairank/internal/adapters/http/swagger"
	"github.com/okian/pairank/internal/adapters/storage"
	app "github.com/okian/pairank/internal/app"
	"github.com/okian/pairank/internal/config"
	"github.com/okian/pairank/internal/domain/engine"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/internal/domain/reliability"
	"github.com/okian/pairank/internal/domain/selection"
	"github.com/okian/pairank/pkg/logger"
	"github.com/okian/pairank/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// application holds the wired components of one server process.
type application struct {
	svc    *app.Service
	store  *storage.Store
	server *http.Server
}

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
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
	defer func() {
		_ = logger.Sync()
	}()
	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	a, err := setup(ctx, cfg, loggerInstance)
	if err != nil {
		loggerInstance.Error(ctx, "failed to start", logger.Error(err))
		os.Exit(1)
	}
	defer a.close(ctx, loggerInstance)

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, a.svc)

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// setup opens the store, builds the engine from cfg, starts the ranking
// service and wires the HTTP handler.
func setup(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	kind, err := rating.ParseKind(cfg.RatingModel)
	if err != nil {
		return nil, err
	}
	m, err := rating.New(kind, cfg.RatingOptions()...)
	if err != nil {
		return nil, err
	}
	est, err := reliability.New(reliability.WithCurve(cfg.Curve()), reliability.WithThresholds(cfg.Thresholds()))
	if err != nil {
		return nil, err
	}
	e := engine.New(m, est, cfg.InitialRating())

	store, err := storage.Open(ctx, cfg.DBPath,
		storage.WithMigrateOnOpen(cfg.MigrateOnStart),
		storage.WithLogger(log.Named("storage")),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithEngine(e),
		app.WithSelector(selection.New(selectorOptions(cfg, log)...)),
		app.WithPersistence(store),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithReplayCheckEvery(cfg.ReplayCheckEvery),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("start service: %w", err)
	}

	opts := []api.Option{
		api.WithLogger(log.Named("http")),
		api.WithMaxRankingsLimit(cfg.MaxRankingsLimit),
		api.WithRateLimit(cfg.RateLimitPerMinute),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins),
	}
	for pattern, h := range swagger.Handlers() {
		opts = append(opts, api.WithHandler(pattern, h))
	}

	return &application{
		svc:   svc,
		store: store,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           api.NewServer(svc, opts...).Handler(ctx),
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

// selectorOptions builds the pair selector options. A zero seed keeps the
// random default so separate starts draw different pairs.
func selectorOptions(cfg *config.Config, log logger.Logger) []selection.Option {
	opts := []selection.Option{
		selection.WithWindow(cfg.CompetitivenessWindow),
		selection.WithTransition(cfg.ThresholdTransition),
		selection.WithLogger(log.Named("selection")),
	}
	if cfg.SelectionSeed != 0 {
		opts = append(opts, selection.WithSeed(cfg.SelectionSeed))
	}
	return opts
}

// close stops the service and releases the store.
func (a *application) close(ctx context.Context, log logger.Logger) {
	a.svc.Stop()
	if err := a.store.Close(); err != nil {
		log.Error(ctx, "store close failed", logger.Error(err))
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
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

// updateServiceMetrics refreshes the session gauges from the service stats.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	r, ok1 := stats["reliability"].(float64)
	items, ok2 := stats["items"].(int)
	votes, ok3 := stats["votes"].(int)
	if ok1 && ok2 && ok3 {
		metrics.UpdateSession(r, items, votes)
	}
}
