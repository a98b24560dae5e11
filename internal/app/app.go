package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/vladcalin/emerald/internal/config"
	"github.com/vladcalin/emerald/internal/httpserver"
	"github.com/vladcalin/emerald/internal/httpserver/deps"
	"github.com/vladcalin/emerald/internal/logger"
	"github.com/vladcalin/emerald/internal/redis"
	"github.com/vladcalin/emerald/internal/registry"
	"github.com/vladcalin/emerald/internal/scheduler"
	"github.com/vladcalin/emerald/internal/store/memory"
	redisstore "github.com/vladcalin/emerald/internal/store/redis"
	sqlitestore "github.com/vladcalin/emerald/internal/store/sqlite"
	"github.com/vladcalin/emerald/internal/telemetry"
	"github.com/vladcalin/emerald/internal/version"
)

type App struct {
	cfg             *config.Config
	logger          logger.Logger
	accessLogger    logger.Logger
	server          *httpserver.Server
	repo            registry.Repository
	sweeper         *scheduler.LivenessSweeper
	metricsShutdown func(context.Context) error
}

// New wires the registry: logger, metrics, store, registration service,
// sweeper and HTTP server. Nothing is started yet.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	if !logger.ValidLevel(cfg.LogLevel) {
		loggerClient.Warn("unknown log level, using default",
			logger.String("level", cfg.LogLevel))
	}
	if cfg.LogLevel == "debug" {
		loggerClient.Debugf("cfg: %+v", cfg.Redacted())
	}

	accessLogger := loggerClient.Named("http")
	if cfg.AccessLog != "" {
		l, err := logger.NewAccess(cfg.AccessLog)
		if err != nil {
			return nil, fmt.Errorf("failed to open access log %s: %w", cfg.AccessLog, err)
		}
		accessLogger = l
	}

	metricsShutdown, err := telemetry.SetupMeterProvider(ctx, "emerald", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}
	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, err
	}

	repo, err := OpenStore(ctx, cfg, loggerClient)
	if err != nil {
		_ = metricsShutdown(ctx)
		return nil, err
	}
	loggerClient.Info("store ready", logger.String("store", cfg.Store))

	svc := registry.NewService(repo, loggerClient.Named("registry"), registry.Options{
		LivenessWindow: cfg.LivenessWindow,
		Metrics:        metrics,
	})
	incidents := registry.NewIncidentLog(repo, time.Now)

	// Manual sweep trigger; one pending request at most.
	sweepTrigger := make(chan struct{}, 1)
	sweeper := scheduler.NewLivenessSweeper(repo, incidents, loggerClient.Named("sweeper"), scheduler.SweeperOptions{
		Interval: cfg.SweepInterval,
		Window:   cfg.LivenessWindow,
		Metrics:  metrics,
	}, sweepTrigger)

	d := deps.Deps{
		Logger:         loggerClient,
		AccessLogger:   accessLogger,
		StartTime:      time.Now(),
		Build:          version.Get(),
		TimeNow:        time.Now,
		AllowedHosts:   cfg.AllowedHosts,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		PingRateBurst:  cfg.PingRateBurst,
		PingRatePerMin: cfg.PingRatePerMin,
		StoreKind:      cfg.Store,
		SweepInterval:  cfg.SweepInterval,
		Registry:       svc,
		Incidents:      incidents,
		Repo:           repo,
		SweepTrigger:   sweepTrigger,
	}

	return &App{
		cfg:             cfg,
		logger:          loggerClient,
		accessLogger:    accessLogger,
		server:          httpserver.New(cfg.ListenAddr, loggerClient, d),
		repo:            repo,
		sweeper:         sweeper,
		metricsShutdown: metricsShutdown,
	}, nil
}

// OpenStore opens the repository selected by cfg.Store.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Logger) (registry.Repository, error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store, registrations are lost on restart")
		return memory.NewStore(), nil

	case config.StoreSQLite:
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlitestore.NewStore(db, cfg.MaxUpsertRetries), nil

	case config.StoreRedis:
		// Fail fast if redis never comes up.
		client, err := redis.New(ctx, redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, log)
		if err != nil {
			return nil, err
		}
		return redisstore.NewStore(client, cfg.MaxUpsertRetries), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// Run starts the sweeper and the HTTP server and blocks until SIGINT or
// SIGTERM, then shuts down sweeper, server and store in that order.
func (a *App) Run() error {
	a.logger.Infof("Starting %s on %s", version.Get(), a.cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start liveness sweeper: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down gracefully...")
	case runErr = <-errCh:
	}

	a.sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	if err := a.repo.Close(); err != nil {
		a.logger.Warn("failed to close store", logger.Error(err))
	}
	if err := a.metricsShutdown(shutdownCtx); err != nil {
		a.logger.Warn("failed to flush metrics", logger.Error(err))
	}

	a.logger.Info("emerald stopped")
	_ = a.accessLogger.Sync()
	_ = a.logger.Sync()
	return runErr
}
