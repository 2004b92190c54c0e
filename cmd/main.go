package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/prix/internal/adapters/http/api"
	"github.com/okian/prix/internal/adapters/http/swagger"
	"github.com/okian/prix/internal/adapters/redis"
	"github.com/okian/prix/internal/adapters/repository"
	"github.com/okian/prix/internal/adapters/repository/postgres"
	service "github.com/okian/prix/internal/app"
	"github.com/okian/prix/internal/config"
	"github.com/okian/prix/internal/domain/dedupe"
	"github.com/okian/prix/pkg/logger"
	"github.com/okian/prix/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// The custom registry carries its own system metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithLevel(cfg.LogLevel)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "prix server failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, "store", store)

	deduper, closeDeduper, err := openDeduper(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, "dedupe backend", closeDeduper)

	svc := service.New(
		service.WithStore(store),
		service.WithDeduper(deduper),
		service.WithLogger(log),
		service.WithKFactor(cfg.KFactor),
		service.WithMinRating(cfg.MinRating),
		service.WithInitialRating(cfg.InitialRating),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.EventQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	// API first: its CORS handler must be mounted before any route.
	api.NewServer(svc,
		api.WithMaxLimit(cfg.MaxLeaderboardLimit),
		api.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	).Register(ctx, r)
	swagger.Register(ctx, r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.Store),
			logger.String("dedupe_backend", cfg.DedupeBackend),
			logger.Strings("cors_allowed_origins", cfg.CORSAllowedOrigins))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore builds the configured repository. Postgres schemas are migrated first.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.Store != config.StorePostgres {
		return repository.NewMemoryStore(ctx), nil
	}
	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// openDeduper builds the configured idempotency set and the closer for its client.
func openDeduper(ctx context.Context, cfg *config.Config) (dedupe.Deduper, io.Closer, error) {
	if cfg.DedupeBackend != config.DedupeRedis {
		return dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize)), closerFunc(func() error { return nil }), nil
	}
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return redis.NewDeduper(client, redis.WithTTL(cfg.DedupeTTL)), client, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func closeQuietly(ctx context.Context, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Get().Warn(ctx, "close failed", logger.String("resource", what), logger.Error(err))
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
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
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
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

// updateServiceMetrics refreshes the gauges GetStats does not touch.
func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	stats := svc.GetStats(ctx)

	if queueLen, ok := stats["queue_length"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if busy, ok := stats["busy_workers"].(int); ok {
		workers, _ := stats["worker_count"].(int)
		metrics.UpdateWorkerActiveCount(busy)
		metrics.UpdateWorkerIdleCount(workers - busy)
	}
}
