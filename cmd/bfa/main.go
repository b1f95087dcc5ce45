package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/config"
	"github.com/boddenberg/card-tracker-bfa-go/internal/handler"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/cache"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/client"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/localstore"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/observability"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/realtime"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/card-tracker-bfa-go/internal/port"
	"github.com/boddenberg/card-tracker-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_supabase", cfg.UseSupabase),
		zap.String("push_backend", cfg.PushBackend),
		zap.String("sqlite_path", cfg.SQLitePath),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Bool("aggressive_polling", cfg.AggressivePolling),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "card-tracker-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Device store ---
	store, err := localstore.Open(cfg.SQLitePath, logger)
	if err != nil {
		logger.Fatal("failed to open local store", zap.Error(err))
	}
	defer store.Close()

	// --- Cache ---
	adviceCache := cache.New[string](cfg.CacheTTL)
	defer adviceCache.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var remote port.RemoteGateway
	var provider port.AuthProvider
	var push port.PushChannel

	if cfg.UseSupabase && cfg.SupabaseURL != "" {
		logger.Info("using Supabase as data backend",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		supabaseClient := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
		)
		remote = supabaseClient
		provider = supabaseClient

		switch cfg.PushBackend {
		case "amqp":
			ch, err := realtime.NewAMQPChannel(cfg.AMQPURL, cfg.AMQPExchange, logger)
			if err != nil {
				logger.Fatal("failed to connect push channel", zap.Error(err))
			}
			defer ch.Close()
			push = ch
			logger.Info("push channel: amqp", zap.String("exchange", cfg.AMQPExchange))
		default:
			push = realtime.NewHub()
			logger.Info("push channel: in-process hub")
		}
	} else {
		logger.Warn("Supabase not configured: device-only mode, sign-in unavailable")
	}

	advisor := client.NewAdvisorClient(httpClient, cfg.AdvisorURL, resilience.NewCircuitBreaker("advisor"))

	// --- Services ---
	sessions := service.NewManager(service.SessionDeps{
		Remote:      remote,
		Local:       store,
		Push:        push,
		Advisor:     advisor,
		AdviceCache: adviceCache,
		Writes:      resilience.NewBulkhead(cfg.MaxConcurrency),
		Metrics:     metrics,
		Logger:      logger,
	}, service.SessionConfig{
		HealthInterval:       cfg.SyncHealthInterval,
		FastPollInterval:     cfg.SyncFastPollInterval,
		AggressivePolling:    cfg.AggressivePolling,
		AutoPaySweepInterval: cfg.AutoPaySweepInterval,
		ToastDuration:        cfg.ToastDuration,
		ToastCooldown:        cfg.ToastCooldown,
		WriteTimeout:         cfg.HTTPTimeout,
	})

	authSvc := service.NewAuthService(provider, sessions, cfg.JWTSecret, cfg.JWTAccessTTL, logger)

	// --- Router ---
	router := handler.NewRouter(sessions, authSvc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}
	// pending writes get what is left of the grace period
	if err := sessions.Shutdown(ctx); err != nil {
		logger.Warn("sessions closed with pending writes", zap.Error(err))
	}

	logger.Info("server stopped")
}
