// Package main provides the agentmail server implementation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agentmail-core/agentmail/api/handlers"
	"github.com/agentmail-core/agentmail/config"
	"github.com/agentmail-core/agentmail/internal/boundary"
	"github.com/agentmail-core/agentmail/internal/breaker"
	"github.com/agentmail-core/agentmail/internal/clock"
	"github.com/agentmail-core/agentmail/internal/eventstream"
	"github.com/agentmail-core/agentmail/internal/metrics"
	"github.com/agentmail-core/agentmail/internal/modelclient"
	"github.com/agentmail-core/agentmail/internal/reservation"
	"github.com/agentmail-core/agentmail/internal/retry"
	"github.com/agentmail-core/agentmail/internal/search"
	"github.com/agentmail-core/agentmail/internal/server"
	"github.com/agentmail-core/agentmail/internal/store"
	"github.com/agentmail-core/agentmail/internal/summarize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =============================================================================
// 🖥️ Server structure
// =============================================================================

// Server is the agentmail coordination bus process: one store-backed
// Registry, reachable over both the stdio-framed RPC and the HTTP/JSON
// boundary (spec §6), plus health/metrics/config-hot-reload surfaces.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	pool *store.Pool

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler *handlers.HealthHandler
	wsHandler     *eventstream.WSHandler

	metricsCollector *metrics.Collector

	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	redisMirror *eventstream.RedisBackend
	stdio       *boundary.StdioServer

	wg     sync.WaitGroup
	bgCtx  context.Context
	bgStop context.CancelFunc
}

// NewServer wires every SPEC_FULL.md component (store, breakers, model
// client, search/summarize/reservation, event stream) into one boundary
// Registry shared by both transports.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// =============================================================================
// 🚀 Startup sequence
// =============================================================================

// Start initializes every component and binds the HTTP, metrics, and
// (optionally) stdio surfaces. All three run non-blocking.
func (s *Server) Start() error {
	s.bgCtx, s.bgStop = context.WithCancel(context.Background())
	s.metricsCollector = metrics.NewCollector("agentmail", s.logger)

	deps, err := s.buildDeps()
	if err != nil {
		return fmt.Errorf("failed to wire dependencies: %w", err)
	}
	registry := boundary.NewRegistry(deps)

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	if err := s.startHTTPServer(registry); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	if s.cfg.Server.StdioEnabled {
		s.startStdioServer(registry)
	}

	s.logger.Info("all servers started",
		zap.String("http_addr", s.cfg.Server.HTTPAddr),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("stdio_enabled", s.cfg.Server.StdioEnabled),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// buildDeps opens the store and constructs the four core subsystems plus
// their breaker/retry wrapping, following the same clock/logger threading
// the store layer already uses.
func (s *Server) buildDeps() (*boundary.Deps, error) {
	clk := clock.New()

	poolCfg := store.PoolConfig{
		Path:                s.cfg.Database.Path,
		MaxOpenConns:        s.cfg.Database.MaxOpenConns,
		MaxIdleConns:        s.cfg.Database.MaxIdleConns,
		ConnMaxLifetime:     s.cfg.Database.ConnMaxLifetime,
		BusyTimeout:         s.cfg.Database.BusyTimeout,
		HealthCheckInterval: s.cfg.Database.HealthCheckInterval,
	}
	pool, err := store.Open(poolCfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := store.Migrate(pool, s.logger); err != nil {
		return nil, fmt.Errorf("migrating store: %w", err)
	}
	s.pool = pool
	pool.SetMetricsCollector(s.metricsCollector, "sqlite", 15*time.Second)

	breakers := map[string]*breaker.Breaker{
		"db": breaker.New("db", breaker.Config{
			Threshold:    s.cfg.Breakers.DB.Threshold,
			ResetTimeout: s.cfg.Breakers.DB.ResetSeconds,
		}, clk, s.logger),
		"git": breaker.New("git", breaker.Config{
			Threshold:    s.cfg.Breakers.Git.Threshold,
			ResetTimeout: s.cfg.Breakers.Git.ResetSeconds,
		}, clk, s.logger),
		"signal": breaker.New("signal", breaker.Config{
			Threshold:    s.cfg.Breakers.Signal.Threshold,
			ResetTimeout: s.cfg.Breakers.Signal.ResetSeconds,
		}, clk, s.logger),
		"llm": breaker.New("llm", breaker.Config{
			Threshold:    s.cfg.Breakers.LLM.Threshold,
			ResetTimeout: s.cfg.Breakers.LLM.ResetSeconds,
		}, clk, s.logger),
	}

	defaultPolicy := retry.DefaultPolicy()
	policy := retry.Policy{
		Base:       time.Duration(s.cfg.Retry.BaseMillis) * time.Millisecond,
		Cap:        time.Duration(s.cfg.Retry.CapSeconds) * time.Second,
		MaxRetries: s.cfg.Retry.MaxRetries,
		Jitter:     s.cfg.Retry.Jitter,
		MinDelay:   defaultPolicy.MinDelay,
	}

	st := store.New(pool, breakers["db"], policy, clk, s.logger)
	st.SetMetricsCollector(s.metricsCollector)
	searchExec := search.NewExecutor(st, s.logger)

	reservations := reservation.NewEngine(st, guardMode(s.cfg.Reservation.GuardMode), s.logger)

	events := eventstream.New(4096, clk)
	// The in-memory ring is the source of truth for sequence assignment
	// (spec §5); the Redis backend, when configured, is connected here and
	// closed on shutdown, but published events are not written to it.
	if s.cfg.Redis.Addr != "" {
		mirror, err := eventstream.NewRedisBackend(eventstream.RedisBackendConfig{
			Addr:      s.cfg.Redis.Addr,
			Password:  s.cfg.Redis.Password,
			DB:        s.cfg.Redis.DB,
			KeyPrefix: s.cfg.Redis.KeyPrefix,
			TTL:       s.cfg.Redis.TTL,
			TLS:       s.cfg.Redis.TLS,
		})
		if err != nil {
			s.logger.Warn("redis event mirror unavailable, falling back to in-memory ring only", zap.Error(err))
		} else {
			s.redisMirror = mirror
		}
	}
	s.wsHandler = eventstream.NewWSHandler(events, s.logger)

	summarizer := s.buildSummarizer(st, breakers["llm"], policy)

	return &boundary.Deps{
		Store:        st,
		Search:       searchExec,
		Summarizer:   summarizer,
		Reservations: reservations,
		Events:       events,
		Breakers:     breakers,
		Logger:       s.logger,
	}, nil
}

// guardMode maps the config's case-insensitive guard_mode string (and its
// "adv" shorthand) onto reservation's EnforcementMode.
func guardMode(raw string) reservation.EnforcementMode {
	switch strings.ToLower(raw) {
	case "warn":
		return reservation.ModeWarn
	case "advisory", "adv":
		return reservation.ModeAdvisory
	default:
		return reservation.ModeBlock
	}
}

// buildSummarizer wires the model client's HTTP provider through the
// resilient client (model breaker + retry loop + request-rate limiter)
// into a Refiner, the summarizer's ModelRefiner.
func (s *Server) buildSummarizer(st *store.Store, llmBreaker *breaker.Breaker, policy retry.Policy) *summarize.Summarizer {
	provider := modelclient.NewHTTPProvider(modelclient.HTTPConfig{
		ProviderName: s.cfg.LLM.Provider,
		BaseURL:      s.cfg.LLM.BaseURL,
		EndpointPath: "/v1/chat/completions",
		APIKey:       s.cfg.LLM.APIKey,
		DefaultModel: s.cfg.LLM.Model,
		Timeout:      s.cfg.LLM.Timeout,
	}, s.logger)

	var limiter *rate.Limiter
	if s.cfg.LLM.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.LLM.RPS), 1)
	}
	resilient := modelclient.NewResilientClient(provider, llmBreaker, policy, limiter, s.metricsCollector, s.logger)
	refiner := modelclient.NewRefiner(resilient, s.cfg.LLM.Model, s.cfg.LLM.Temperature, s.cfg.LLM.MaxTokens)
	return summarize.NewSummarizer(st, refiner, s.logger)
}

// =============================================================================
// 🔧 Component init
// =============================================================================

func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("store", func(ctx context.Context) error {
		return s.pool.Ping(ctx)
	}))
	s.logger.Info("handlers initialized")
	return nil
}

func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("configuration reloaded")
		s.cfg = newConfig
	})

	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)
	return nil
}

// =============================================================================
// 🌐 HTTP server
// =============================================================================

func (s *Server) startHTTPServer(registry *boundary.Registry) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	opHandler := boundary.NewHTTPHandler(registry, s.logger)
	mux.HandleFunc("/ops/{op}", opHandler.ServeOperation)
	mux.Handle("/events/ws", s.wsHandler)

	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("configuration API registered")
	}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		SecurityHeaders(),
		AdminAuth(s.cfg.Server.AdminAuthSecret, s.logger),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimiter(s.bgCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	handler := Chain(mux, middlewares...)

	serverConfig := server.Config{
		Addr:            s.cfg.Server.HTTPAddr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.cfg.Server.HTTPAddr))
	return nil
}

// =============================================================================
// 📊 Metrics server
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 📡 stdio transport
// =============================================================================

// startStdioServer serves the same Registry over stdin/stdout in a
// dedicated goroutine — spec §6's second boundary protocol.
func (s *Server) startStdioServer(registry *boundary.Registry) {
	s.stdio = boundary.NewStdioServer(registry, s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.stdio.Serve(s.bgCtx, os.Stdin, os.Stdout); err != nil {
			s.logger.Info("stdio server stopped", zap.Error(err))
		}
	}()
}

// =============================================================================
// 🛑 Shutdown
// =============================================================================

func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx := context.Background()

	if s.bgStop != nil {
		s.bgStop()
	}

	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("hot reload manager shutdown error", zap.Error(err))
		}
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.redisMirror != nil {
		if err := s.redisMirror.Close(); err != nil {
			s.logger.Error("redis mirror close error", zap.Error(err))
		}
	}

	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("store close error", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.logger.Info("graceful shutdown completed")
}
