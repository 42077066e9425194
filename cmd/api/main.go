package main

import (
	"context"
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

	"github.com/mediconnect/mediconnect-ai/internal/api/router"
	"github.com/mediconnect/mediconnect-ai/internal/appointments"
	appconfig "github.com/mediconnect/mediconnect-ai/internal/config"
	"github.com/mediconnect/mediconnect-ai/internal/conversation"
	"github.com/mediconnect/mediconnect-ai/internal/observability/metrics"
	"github.com/mediconnect/mediconnect-ai/internal/payments"
	"github.com/mediconnect/mediconnect-ai/internal/webchat"
	"github.com/mediconnect/mediconnect-ai/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting mediconnect-ai API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	streamer, err := conversation.NewGeminiStreamer(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
	if err != nil {
		logger.Error("failed to create Gemini streamer", "error", err)
		os.Exit(1)
	}

	var gateway payments.Gateway
	if cfg.AllowFakePayments {
		logger.Warn("fake payment gateway enabled; never set ALLOW_FAKE_PAYMENTS in production")
		gateway = payments.NewFakeGateway(logger)
	} else {
		gateway = payments.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, logger).
			WithBaseURL(cfg.RazorpayBaseURL).
			WithPollWait(cfg.RazorpayPollWait)
	}

	var repo appointments.Repository = appointments.NewInMemoryRepository()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repo = appointments.NewPostgresRepository(pool)
		logger.Info("appointments stored in postgres")
	} else {
		logger.Warn("DATABASE_URL not set; appointments stored in memory only")
	}

	var transcripts conversation.TranscriptStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		transcripts = conversation.NewRedisTranscriptStore(rdb, cfg.HistoryTTL)
		logger.Info("transcript history enabled", "ttl", cfg.HistoryTTL)
	}

	registry := prometheus.NewRegistry()
	convMetrics := metrics.NewConversationMetrics(registry)

	controllerCfg := conversation.ControllerConfig{
		AppName:       cfg.AppName,
		FeeMinorUnits: cfg.AppointmentFeeMinor,
		Currency:      cfg.Currency,
	}
	factory := func() *conversation.Controller {
		ctrl := conversation.NewController(controllerCfg, streamer, gateway, logger).
			WithRecorder(repo).
			WithMetrics(convMetrics)
		if transcripts != nil {
			ctrl = ctrl.WithTranscriptStore(transcripts)
		}
		return ctrl
	}

	chat := webchat.NewHandler(factory, transcripts, logger)

	r := router.New(&router.Config{
		Logger:         logger,
		WebChatHandler: chat,
		Appointments:   repo,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AppName:        cfg.AppName,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket sessions are long-lived
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

	logger.Info("server stopped")
}
