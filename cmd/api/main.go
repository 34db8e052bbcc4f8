package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/aoemotors/driveflow/internal/api/router"
	"github.com/aoemotors/driveflow/internal/bookings"
	"github.com/aoemotors/driveflow/internal/catalog"
	"github.com/aoemotors/driveflow/internal/channels/whatsapp"
	appconfig "github.com/aoemotors/driveflow/internal/config"
	"github.com/aoemotors/driveflow/internal/emailgen"
	"github.com/aoemotors/driveflow/internal/http/middleware"
	"github.com/aoemotors/driveflow/internal/messaging"
	"github.com/aoemotors/driveflow/internal/notify"
	"github.com/aoemotors/driveflow/internal/observability/metrics"
	"github.com/aoemotors/driveflow/internal/tasks"
	"github.com/aoemotors/driveflow/internal/tracking"
	"github.com/aoemotors/driveflow/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting driveflow API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to reach postgres", "error", err)
		os.Exit(1)
	}

	redisClient := buildRedisClient(cfg, logger)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	runner := tasks.NewRunner(logger, m)

	store := messaging.NewStore(pool)
	store.SetBindingTTL(cfg.BindingTTL)

	codec := tracking.NewCodec(cfg.TrackingSigningKey)
	sender := whatsapp.NewClient(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID)

	bookingsRepo := bookings.NewRepository(pool)
	vehicleCatalog := catalog.NewCache(catalog.NewStatic(), redisClient, cfg.CatalogCacheTTL, logger)
	drafter := emailgen.NewOpenAIDrafter(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)

	var emailSender notify.EmailSender = notify.NewStubEmailSender(logger)
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	}
	notifier := notify.NewService(emailSender, cfg.TeamEmail, logger)

	kickoff := messaging.NewKickoff(sender, store, bookingsRepo, cfg.WhatsAppBindTemplate, m, logger)

	bookingsService := bookings.NewService(bookings.ServiceConfig{
		Repo:    bookingsRepo,
		Catalog: vehicleCatalog,
		Drafter: drafter,
		Notify:  notifier,
		Kickoff: kickoff,
		Runner:  runner,
		Metrics: m,
		Logger:  logger,
	})

	webhook := messaging.NewHandler(messaging.HandlerConfig{
		VerifyToken:   cfg.WhatsAppVerifyToken,
		AppSecret:     cfg.WhatsAppAppSecret,
		Store:         store,
		Sender:        sender,
		Codec:         codec,
		TrackTTL:      cfg.TrackingTokenTTL,
		PublicBaseURL: cfg.PublicBaseURL,
		AutomationURL: cfg.AutomationForwardURL,
		Runner:        runner,
		Metrics:       m,
		Logger:        logger,
	})

	intakeLimiter := middleware.NewRateLimiter(5, 20)
	defer intakeLimiter.Stop()

	handler := router.New(&router.Config{
		Logger:          logger,
		Webhook:         webhook,
		Kickoff:         kickoff,
		Tracking:        tracking.NewHandler(codec, m, logger),
		Bookings:        bookings.NewHandler(bookingsService, bookingsRepo, logger),
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  metricsHandler,
		IntakeLimiter:   intakeLimiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := runner.Drain(shutdownCtx); err != nil {
		logger.Warn("background tasks did not drain", "error", err)
	}

	logger.Info("server stopped")
}

func buildRedisClient(cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		logger.Info("redis not configured, catalog cache disabled")
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis unreachable, catalog cache disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}
