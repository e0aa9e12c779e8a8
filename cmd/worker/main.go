package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kiranaflow/kiranaflow/internal/app"
	"github.com/kiranaflow/kiranaflow/internal/extract"
	jobmetrics "github.com/kiranaflow/kiranaflow/internal/jobs"
	"github.com/kiranaflow/kiranaflow/internal/llm"
	"github.com/kiranaflow/kiranaflow/internal/queue"
	"github.com/kiranaflow/kiranaflow/internal/shared"
	"github.com/kiranaflow/kiranaflow/internal/storage"
	"github.com/kiranaflow/kiranaflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	repo := storage.NewRepository(pool)
	llmClient := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelID, cfg.LLMRequestTimeout)
	extractionService := extract.New(llmClient, repo)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	handlers := &jobs.Handlers{
		Extraction:  extractionService,
		Progress:    jobs.NewProgressStore(redisClient),
		Enqueuer:    jobClient,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		Idempotency: idempotencyStore,
		Logger:      logger,
		Metrics:     jobmetrics.NewMetrics(nil),
	}

	cleanupTask := asynq.NewTask(queue.TaskIdempotencyCleanup, nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers:  handlers,
		Metrics:   handlers.Metrics,
		Cron: []jobs.CronRegistration{
			{
				Spec:    "0 3 * * *",
				Task:    cleanupTask,
				Options: []asynq.Option{asynq.Queue(queue.QueueMaintenance), asynq.MaxRetry(1)},
			},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
