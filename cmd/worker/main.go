package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"notifyhub/internal/app"
	"notifyhub/internal/config"
	"notifyhub/internal/domain/notify"
	"notifyhub/internal/infra/queue"
	"notifyhub/internal/infra/sink"

	"github.com/hibiken/asynq"
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

	slog.Info("worker configuration loaded", "snapshot_source", cfg.Snapshot.Source)

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

	go func() {
		if err := core.Refresher.Run(ctx); err != nil {
			slog.Error("refresher stopped", "error", err)
		}
	}()

	var sinks []notify.ResultSink
	if len(cfg.Kafka.Brokers) > 0 {
		k := sink.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer k.Close()
		sinks = append(sinks, k)
		slog.Info("kafka result sink initialized", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// Queued requests already passed the route quota when accepted.
	notifyService := notify.NewService(core.Engine, core.Snapshots, nil, nil, sinks...)
	notifyWorker := notify.NewWorker(notifyService)

	// ==========================================
	// Asynq Server (task processing)
	// ==========================================

	asynqServer := queue.NewServer(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Queue.Concurrency,
	)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(notify.TaskTypeDispatch, notifyWorker.ProcessTask)

	// Start the asynq worker in a goroutine
	go func() {
		slog.Info("worker starting",
			"concurrency", cfg.Queue.Concurrency,
			"redis", cfg.Redis.Address,
		)
		if err := asynqServer.Run(mux); err != nil {
			slog.Error("worker failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// ==========================================
	// Graceful Shutdown
	// ==========================================

	<-ctx.Done()

	slog.Info("shutting down worker...")
	asynqServer.Shutdown()
	slog.Info("worker exited gracefully")
}
