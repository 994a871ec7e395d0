// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/promptstudio/api/internal/admin"
	"github.com/promptstudio/api/internal/auth"
	"github.com/promptstudio/api/internal/config"
	"github.com/promptstudio/api/internal/core"
	"github.com/promptstudio/api/internal/events"
	"github.com/promptstudio/api/internal/generation"
	"github.com/promptstudio/api/internal/health"
	"github.com/promptstudio/api/internal/jobs"
	"github.com/promptstudio/api/internal/metrics"
	"github.com/promptstudio/api/internal/middleware"
	"github.com/promptstudio/api/internal/payment"
	"github.com/promptstudio/api/internal/server"
	"github.com/promptstudio/api/internal/user"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	keysDir := flag.String("generate-keys", "", "write a new ES256 key pair into this directory and exit")
	flag.Parse()

	if *keysDir != "" {
		if err := generateKeys(*keysDir); err != nil {
			slog.Error("key generation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.KeyID(),
	)

	var recorder metrics.Recorder = metrics.Nop{}
	var promMetrics *metrics.Metrics
	if cfg.Metrics.Enabled {
		promMetrics = metrics.New()
		recorder = promMetrics
	}

	var publisher events.Publisher = events.Nop{}
	healthDeps := []health.Dependency{
		{Name: "database", Checker: db},
		{Name: "redis", Checker: redis},
	}
	if cfg.Kafka.Enabled {
		kp, kErr := events.NewKafkaPublisher(cfg.Kafka, logger)
		if kErr != nil {
			return kErr
		}
		publisher = kp
		healthDeps = append(healthDeps, health.Dependency{
			Name:     "kafka",
			Checker:  kp,
			Optional: true,
		})
	}

	var generator generation.Generator = generation.Unavailable{}
	if azure, aiErr := generation.NewAzureClient(cfg.AI); aiErr != nil {
		logger.Warn("generation backend disabled", "error", aiErr)
	} else {
		generator = azure
		logger.Info("azure openai client initialized",
			"chat_deployment", cfg.AI.ChatDeployment,
			"image_deployment", cfg.AI.ImageDeployment,
		)
	}

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(
		userRepo,
		cfg.Admin,
		cfg.Subscription.FreePromptsLimit,
	)
	userHandler := user.NewHandler(userSvc)

	authRepo := auth.NewRepository(db.DB)
	authSvc := auth.NewService(
		authRepo,
		jwtManager,
		userSvc,
		auth.NewRedisBlacklist(redis.Client),
	)
	authHandler := auth.NewHandler(authSvc)

	paymentSvc := payment.NewService(payment.ServiceConfig{
		Repo:    payment.NewRepository(db.DB),
		Tx:      db,
		RepoFor: payment.NewRepository,
		AccountsFor: func(q core.DBTX) payment.Accounts {
			return user.NewRepository(q)
		},
		Publisher:       publisher,
		Metrics:         recorder,
		DefaultCurrency: cfg.Subscription.DefaultCurrency,
	})
	paymentHandler := payment.NewHandler(paymentSvc)

	generationSvc := generation.NewService(
		userSvc,
		generator,
		generation.NewRepository(db.DB),
		recorder,
	)
	generationHandler := generation.NewHandler(generationSvc)

	healthHandler := health.NewHandler(healthDeps...)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		Repo:       admin.NewRepository(db.DB),
		Expirer:    userSvc,
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
	})

	scheduler := jobs.NewScheduler(logger)
	if err := scheduler.Add(jobs.SessionCleanup(
		cfg.Jobs.SessionCleanupSchedule,
		authSvc,
	)); err != nil {
		return err
	}
	if cfg.Subscription.ExpirySweep.Enabled {
		if err := scheduler.Add(jobs.ExpirySweep(
			cfg.Subscription.ExpirySweep.Schedule,
			userSvc,
		)); err != nil {
			return err
		}
	}

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.JWKSHandler())

	if promMetrics != nil {
		router.Handle(cfg.Metrics.Path, promMetrics.Handler())
	}

	authenticator := middleware.Authenticator(authSvc)
	adminOnly := middleware.RequireAdmin(userSvc)
	planLimiter := middleware.TieredRateLimiter(
		redis.Client,
		middleware.DefaultPlanTiers,
	)

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator)

		r.Post("/users", authHandler.Register)

		userHandler.RegisterRoutes(r, authenticator)
		userHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
		paymentHandler.RegisterRoutes(r, authenticator)
		paymentHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
		generationHandler.RegisterRoutes(r, authenticator, planLimiter)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
	})

	scheduler.Start()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}

	if err := publisher.Close(); err != nil {
		logger.Error("event publisher close error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func generateKeys(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	private := filepath.Join(dir, "private.pem")
	public := filepath.Join(dir, "public.pem")
	if err := auth.GenerateKeyPair(private, public); err != nil {
		return err
	}

	slog.Info("key pair written", "private", private, "public", public)
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
