package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notifyhub/internal/app"
	"notifyhub/internal/config"
	"notifyhub/internal/domain/notify"
	"notifyhub/internal/infra/queue"
	"notifyhub/internal/infra/ratelimit"
	"notifyhub/internal/infra/sink"
	"notifyhub/internal/router"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"snapshot_source", cfg.Snapshot.Source,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	core, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize dispatch core", "error", err)
		os.Exit(1)
	}
	defer core.Close()
	slog.Info("dispatch core initialized", "channel_types", core.Registry.Types())

	go func() {
		if err := core.Refresher.Run(ctx); err != nil {
			slog.Error("refresher stopped", "error", err)
		}
	}()

	// Async enqueue
	var enqueuer notify.Enqueuer
	if cfg.Queue.Enabled {
		asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		defer asynqClient.Close()
		enqueuer = queue.NewEnqueuer(asynqClient, cfg.Queue.MaxRetry)
		slog.Info("asynq client initialized", "redis", cfg.Redis.Address)
	}

	// Route quota
	var routeLimiter notify.RouteRateLimiter
	if cfg.RouteRateLimit.MaxPerMinute > 0 {
		routeLimiter = ratelimit.NewRedisRouteLimiter(core.Redis, cfg.RouteRateLimit.MaxPerMinute)
		slog.Info("route rate limiter initialized", "max_per_minute", cfg.RouteRateLimit.MaxPerMinute)
	}

	// Result sinks
	hub := sink.NewHub(cfg.CORS.AllowedOrigins)
	go hub.Run(ctx)
	sinks := []notify.ResultSink{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		k := sink.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer k.Close()
		sinks = append(sinks, k)
		slog.Info("kafka result sink initialized", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// Service
	notifyService := notify.NewService(core.Engine, core.Snapshots, enqueuer, routeLimiter, sinks...)

	// Handler
	notifyHandler := notify.NewHandler(notifyService)

	// Router
	r := router.New(cfg, notifyHandler, router.Options{
		Events:    hub,
		Gatherer:  core.Prometheus,
		Snapshots: core.Snapshots,
	})

	// ==========================================
	// HTTP Server with Graceful Shutdown
	// ==========================================

	// Synchronous dispatch waits for every retry, so the write timeout
	// stays well above dispatch.attempt_timeout * dispatch.max_attempts.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	slog.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return
	}

	slog.Info("server exited gracefully")
}
