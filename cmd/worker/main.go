package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/benvon/checkin-insights/internal/app"
	"github.com/benvon/checkin-insights/internal/config"
	"github.com/benvon/checkin-insights/internal/database"
	"github.com/benvon/checkin-insights/internal/logger"
	"github.com/benvon/checkin-insights/internal/queue"
	"github.com/benvon/checkin-insights/internal/workers"
)

const (
	dlqGCInterval  = 1 * time.Hour
	dlqGCRetention = 24 * time.Hour
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireQueue(); err != nil {
		log.Fatalf("Invalid worker configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Service: "worker", Debug: debugMode})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync(zapLogger)

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
		zap.Duration("warm_schedule_interval", cfg.WarmScheduleInterval),
	)
	if cfg.RedisURL == "" {
		zapLogger.Warn("redis_not_configured_warmed_predictions_stay_local")
	}

	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobQueue, err := connectQueue(ctx, cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	checkIns := database.NewCheckInRepository(db)
	engine, err := app.Build(ctx, cfg, checkIns, zapLogger, nil)
	if err != nil {
		zapLogger.Fatal("failed_to_build_prediction_engine", zap.Error(err))
	}
	defer engine.Close()

	warmer := workers.NewWarmer(engine.Orchestrator, jobQueue, zapLogger)
	scheduler := workers.NewScheduler(jobQueue, checkIns, zapLogger)
	scheduler.SetMaxRetries(cfg.WarmMaxRetries)
	dlqGC := queue.NewGarbageCollector(jobQueue, dlqGCInterval, dlqGCRetention, zapLogger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.RunBackground(gctx)
	})
	g.Go(func() error {
		return ignoreCanceled(dlqGC.Start(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(scheduler.Start(gctx, cfg.WarmScheduleInterval, cfg.WarmActiveDays, cfg.WarmWindowDays))
	})
	g.Go(func() error {
		err := warmer.Run(gctx, cfg.RabbitMQPrefetch)
		if err == nil && gctx.Err() == nil {
			return errors.New("warm worker stopped unexpectedly")
		}
		return err
	})

	if err := g.Wait(); err != nil {
		zapLogger.Error("worker_stopped_with_error", zap.Error(err))
		_ = logger.Sync(zapLogger)
		os.Exit(1)
	}
	zapLogger.Info("worker_stopped")
}

// connectQueue dials RabbitMQ with capped exponential backoff to ride out broker startup
func connectQueue(ctx context.Context, url string, zapLogger *zap.Logger) (*queue.RabbitMQQueue, error) {
	const maxRetries = 10
	const initialDelay = 2 * time.Second
	const maxDelay = 30 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		q, err := queue.NewRabbitMQQueue(url, zapLogger)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return q, nil
		}
		lastErr = err

		delay := queue.RetryBackoff(attempt, initialDelay, maxDelay)
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
