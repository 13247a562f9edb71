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

	"github.com/okian/circlematch/internal/adapters/http/api"
	"github.com/okian/circlematch/internal/adapters/http/swagger"
	"github.com/okian/circlematch/internal/adapters/llm/gemini"
	"github.com/okian/circlematch/internal/adapters/repository"
	app "github.com/okian/circlematch/internal/app"
	"github.com/okian/circlematch/internal/config"
	"github.com/okian/circlematch/internal/domain/ranking"
	"github.com/okian/circlematch/internal/domain/recommend"
	"github.com/okian/circlematch/internal/domain/scoring"
	"github.com/okian/circlematch/pkg/logger"
	"github.com/okian/circlematch/pkg/metrics"
)

// HTTP server timeout constants. Writes outlive the fan-out deadline.
const (
	readTimeout               = 10 * time.Second
	writeSlack                = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "circlematch exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	srv, svc, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// build wires the store, the scoring model, the matching service and the
// HTTP routes. The returned service is started.
func build(ctx context.Context, cfg *config.Config) (*http.Server, *app.Service, error) {
	log := logger.Get()

	store, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN,
		repository.WithAutoMigrate(cfg.DatabaseAutoMigrate),
		repository.WithLogger(log.Named("repository")),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if cfg.DatabaseSeedFile != "" {
		if err := seed(ctx, store, cfg.DatabaseSeedFile); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		log.Info(ctx, "store seeded", logger.String("file", cfg.DatabaseSeedFile))
	}

	model, err := gemini.New(cfg.ModelAPIKey,
		gemini.WithModel(cfg.ModelName),
		gemini.WithBaseURL(cfg.ModelBaseURL),
		gemini.WithRequestsPerSecond(cfg.ModelRequestsPerSecond),
		gemini.WithTimeout(cfg.ScoringCallTimeout),
		gemini.WithLogger(log.Named("gemini")),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("model client: %w", err)
	}
	scorer, err := scoring.New(model,
		scoring.WithCallTimeout(cfg.ScoringCallTimeout),
		scoring.WithTemperature(cfg.ModelTemperature),
		scoring.WithMaxTokens(cfg.ModelMaxTokens),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("scorer: %w", err)
	}

	svc := app.New(
		app.WithStore(store),
		app.WithScorer(scorer),
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithMaxConcurrency(cfg.FanoutMaxConcurrency),
		app.WithCallTimeout(cfg.ScoringCallTimeout),
		app.WithRunDeadline(cfg.FanoutDeadline),
		app.WithFailurePolicy(recommend.FailurePolicy(cfg.FanoutFailurePolicy)),
		app.WithTotalPolicy(ranking.TotalPolicy(cfg.RankingTotal)),
	)
	if err := svc.Start(ctx); err != nil {
		svc.Stop()
		return nil, nil, fmt.Errorf("start service: %w", err)
	}

	auth, err := api.NewAuthenticator(cfg.JWTSecret, cfg.ProjectURL, cfg.JWTAudience)
	if err != nil {
		svc.Stop()
		return nil, nil, err
	}
	if cfg.APIKey == "" {
		log.Warn(ctx, "api_key is empty; X-API-KEY is not checked")
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc,
		api.WithAPIKey(cfg.APIKey),
		api.WithAuthenticator(auth),
		api.WithSubmitRateLimit(cfg.SubmitRateLimit),
		api.WithStatsProvider(svc),
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      cfg.FanoutDeadline + writeSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return srv, svc, nil
}

func seed(ctx context.Context, store repository.Store, path string) error {
	fixture, err := repository.LoadFixture(path)
	if err != nil {
		return fmt.Errorf("load seed file: %w", err)
	}
	if err := store.Seed(ctx, fixture); err != nil {
		return fmt.Errorf("seed store: %w", err)
	}
	return nil
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

func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats refreshes the queue and worker gauges.
			_ = svc.GetStats()
		}
	}
}

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
