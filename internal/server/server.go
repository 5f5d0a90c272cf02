package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aman-churiwal/fetch-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/fetch-gateway/internal/config"
	"github.com/aman-churiwal/fetch-gateway/internal/fetcher"
	"github.com/aman-churiwal/fetch-gateway/internal/guard"
	"github.com/aman-churiwal/fetch-gateway/internal/handler"
	"github.com/aman-churiwal/fetch-gateway/internal/healthcheck"
	"github.com/aman-churiwal/fetch-gateway/internal/metrics"
	"github.com/aman-churiwal/fetch-gateway/internal/middleware"
	"github.com/aman-churiwal/fetch-gateway/internal/ratelimit"
	"github.com/aman-churiwal/fetch-gateway/internal/repository"
	"github.com/aman-churiwal/fetch-gateway/internal/service"
	"github.com/aman-churiwal/fetch-gateway/internal/storage"
)

// Deps are the long-lived collaborators built in main
type Deps struct {
	Config *config.Config
	Logger *zap.Logger

	// Shared rate and usage counters. Required in commercial mode.
	Counters ratelimit.CounterStore
	// Cache for stored API keys, may be nil
	KeyCache service.KeyCache
	// nil unless database.dsn is set
	Postgres *storage.Postgres
	// nil disables the fetch log
	FetchLogs *middleware.FetchLogRecorder

	Checker  *healthcheck.Checker
	Breakers map[string]*circuitbreaker.CircuitBreaker

	// Overrides the outbound fetcher built from Config.Fetch
	Fetcher service.Fetcher
}

type Server struct {
	router     *gin.Engine
	config     *config.Config
	logger     *zap.Logger
	deps       Deps
	httpServer *http.Server

	fetchHandler  *handler.FetchHandler
	systemHandler *handler.SystemHandler
	apiKeyService *service.APIKeyService
	usageMeter    *ratelimit.UsageMeter
	limiter       *ratelimit.FixedWindowLimiter
}

func New(d Deps) *Server {
	cfg := d.Config
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Checker == nil {
		d.Checker = healthcheck.NewChecker(healthcheck.Config{Logger: d.Logger})
	}

	s := &Server{
		router: gin.New(),
		config: cfg,
		logger: d.Logger,
		deps:   d,
	}

	s.initializeServices()
	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) initializeServices() {
	cfg := s.config
	d := s.deps

	fetch := d.Fetcher
	if fetch == nil {
		fetchCfg := fetcher.Config{
			Timeout:      cfg.Fetch.Timeout(),
			UserAgent:    cfg.Fetch.UserAgent,
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		}
		if cfg.Fetch.BlockPrivateDial && !cfg.Fetch.AllowPrivateTargets {
			fetchCfg.DialControl = guard.DialControl
		}
		fetch = fetcher.New(fetchCfg)
	}

	var g guard.Guard = guard.Literal{}
	if cfg.Fetch.AllowPrivateTargets {
		s.logger.Warn("private fetch targets are allowed, do not use this in production")
		g = guard.AllowAll{}
	}

	fetchService := service.NewFetchService(service.FetchServiceConfig{
		Fetcher:           fetch,
		Guard:             g,
		Logger:            s.logger,
		SitemapFromRobots: cfg.Fetch.SitemapFromRobots,
		MaxRobotsSitemaps: cfg.Fetch.MaxRobotsSitemaps,
		ProbeTimeout:      cfg.Fetch.ProbeTimeout(),
	})
	s.fetchHandler = handler.NewFetchHandler(fetchService, cfg.IsDevelopment())
	s.systemHandler = handler.NewSystemHandler(d.Checker, d.Breakers, cfg.Server.Mode)

	if !cfg.IsCommercial() {
		return
	}

	var keyRepo service.KeyRepository
	if d.Postgres != nil {
		keyRepo = repository.NewAPIKeyRepository(d.Postgres)
	}
	s.apiKeyService = service.NewAPIKeyService(cfg.Auth.KeyTiers(), keyRepo, d.KeyCache, s.logger)
	s.limiter = ratelimit.NewHourly(d.Counters, s.logger)
	s.usageMeter = ratelimit.NewUsageMeter(d.Counters)
}

func (s *Server) setupMiddleware() {
	dev := s.config.IsDevelopment()

	s.router.Use(middleware.Recovery(s.logger, dev))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.CORS(s.config.Server.AllowedOrigin))
}

// Returns the middleware chain and handler for the fetch endpoint. Admission
// runs only in commercial mode and always before the outbound fetch.
func (s *Server) fetchChain() []gin.HandlerFunc {
	cfg := s.config
	dev := cfg.IsDevelopment()

	chain := []gin.HandlerFunc{middleware.BindFetchRequest(cfg.IsCommercial(), dev)}
	if s.deps.FetchLogs != nil {
		chain = append(chain, s.deps.FetchLogs.Middleware())
	}
	if cfg.IsCommercial() {
		chain = append(chain,
			middleware.RequireAPIKey(s.apiKeyService, s.logger, dev),
			middleware.RateLimitByTier(s.limiter, cfg.Server.UpgradeURL, s.logger, dev),
			middleware.MeterUsage(s.usageMeter, s.logger),
		)
	}
	return append(chain, s.fetchHandler.Fetch)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.systemHandler.Health)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	methods := []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	chain := s.fetchChain()
	s.router.Match(methods, "/api/fetch", chain...)
	s.router.Match(methods, "/", chain...)

	if s.config.AdminEnabled() && s.deps.Postgres != nil {
		s.setupAdminRoutes()
	}
}

func (s *Server) setupAdminRoutes() {
	cfg := s.config
	db := s.deps.Postgres

	authService := service.NewAuthService(repository.NewAdminUserRepository(db), cfg.Auth.JWTSecret, cfg.Auth.JWTExpiryHours)
	authHandler := handler.NewAuthHandler(authService)
	apiKeyHandler := handler.NewAPIKeyHandler(s.apiKeyService)
	usageHandler := handler.NewUsageHandler(s.apiKeyService, s.usageMeter)
	analyticsHandler := handler.NewAnalyticsHandler(service.NewAnalyticsService(repository.NewFetchLogRepository(db)))

	s.router.POST("/admin/login", authHandler.Login)

	admin := s.router.Group("/admin", middleware.RequireAdmin(authService))
	{
		admin.POST("/keys", apiKeyHandler.Create)
		admin.GET("/keys", apiKeyHandler.List)
		admin.GET("/keys/:id", apiKeyHandler.Get)
		admin.PATCH("/keys/:id", apiKeyHandler.Update)
		admin.DELETE("/keys/:id", apiKeyHandler.Delete)

		admin.GET("/usage/:key", usageHandler.Get)

		admin.GET("/analytics", analyticsHandler.GetSummary)
		admin.GET("/analytics/timeseries", analyticsHandler.GetTimeSeries)
		admin.GET("/logs", analyticsHandler.GetLogs)

		admin.GET("/breakers", s.systemHandler.CircuitBreakerStatus)
		admin.POST("/breakers/:name/reset", s.systemHandler.ResetCircuitBreaker)
	}
}

func (s *Server) Run(addr string) error {
	// Sitemap probing may run several fetches back to back
	writeTimeout := s.config.Fetch.ProbeTimeout() + 5*time.Second

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting fetch gateway",
		zap.String("addr", addr),
		zap.String("mode", s.config.Server.Mode),
		zap.String("environment", s.config.Server.Environment),
	)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
