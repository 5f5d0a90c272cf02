package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aman-churiwal/fetch-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/fetch-gateway/internal/config"
	"github.com/aman-churiwal/fetch-gateway/internal/healthcheck"
	"github.com/aman-churiwal/fetch-gateway/internal/logging"
	"github.com/aman-churiwal/fetch-gateway/internal/metrics"
	"github.com/aman-churiwal/fetch-gateway/internal/middleware"
	"github.com/aman-churiwal/fetch-gateway/internal/ratelimit"
	"github.com/aman-churiwal/fetch-gateway/internal/repository"
	"github.com/aman-churiwal/fetch-gateway/internal/retention"
	"github.com/aman-churiwal/fetch-gateway/internal/server"
	"github.com/aman-churiwal/fetch-gateway/internal/service"
	"github.com/aman-churiwal/fetch-gateway/internal/storage"
)

func main() {
	// Load .env if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("GATEWAY_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Development || cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	deps := server.Deps{
		Config:   cfg,
		Logger:   logger,
		Breakers: make(map[string]*circuitbreaker.CircuitBreaker),
	}
	probes := make(map[string]healthcheck.Probe)

	if cfg.Redis.Host != "" {
		redis, err := storage.NewRedis(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redis.Close()
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.GetRedisAddr()))

		breaker := circuitbreaker.New(circuitbreaker.Config{
			Name:        "counter-store",
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     time.Duration(cfg.Breaker.TimeoutSeconds) * time.Second,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
				metrics.SetBreakerState(name, int(to))
			},
		})
		deps.Breakers["counter-store"] = breaker
		deps.Counters = ratelimit.NewBreakerStore(redis, breaker)
		deps.KeyCache = redis
		probes["redis"] = redis.Ping
	} else {
		logger.Warn("redis.host is empty, quotas are enforced per instance only")
		memory := storage.NewMemoryStore()
		deps.Counters = memory
		deps.KeyCache = memory
	}

	var cleanup *retention.Job
	if cfg.Database.DSN != "" {
		db, err := storage.NewPostgres(cfg.Database.DSN, cfg.IsDevelopment())
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer db.Close()

		if err := db.AutoMigrate(); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		logger.Info("connected to postgres")

		deps.Postgres = db
		probes["postgres"] = db.Ping

		if cfg.Auth.AdminEmail != "" {
			auth := service.NewAuthService(repository.NewAdminUserRepository(db), cfg.Auth.JWTSecret, cfg.Auth.JWTExpiryHours)
			created, err := auth.EnsureAdmin(context.Background(), cfg.Auth.AdminEmail, cfg.Auth.AdminPassword, "Administrator")
			if err != nil {
				logger.Fatal("failed to create admin user", zap.Error(err))
			}
			if created {
				logger.Info("created admin user", zap.String("email", cfg.Auth.AdminEmail))
			}
		}

		fetchLogs := repository.NewFetchLogRepository(db)
		deps.FetchLogs = middleware.NewFetchLogRecorder(fetchLogs, cfg.Retention.FetchLogBuffer, logger)
		deps.FetchLogs.Start()

		cleanup, err = retention.New(service.NewAnalyticsService(fetchLogs), cfg.Retention.CleanupSchedule, cfg.Retention.FetchLogDays, logger)
		if err != nil {
			logger.Fatal("failed to schedule fetch log cleanup", zap.Error(err))
		}
		cleanup.Start()
	}

	deps.Checker = healthcheck.NewChecker(healthcheck.Config{
		Probes: probes,
		Logger: logger,
	})
	deps.Checker.Start()

	srv := server.New(deps)

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	deps.Checker.Stop()
	if cleanup != nil {
		cleanup.Stop()
	}
	if deps.FetchLogs != nil {
		deps.FetchLogs.Close()
	}

	logger.Info("server exited")
}
