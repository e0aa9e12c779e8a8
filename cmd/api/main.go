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
	"github.com/kiranaflow/kiranaflow/internal/auth"
	"github.com/kiranaflow/kiranaflow/internal/extract"
	"github.com/kiranaflow/kiranaflow/internal/httpapi"
	"github.com/kiranaflow/kiranaflow/internal/invoice"
	"github.com/kiranaflow/kiranaflow/internal/llm"
	"github.com/kiranaflow/kiranaflow/internal/objectstore"
	"github.com/kiranaflow/kiranaflow/internal/observability"
	"github.com/kiranaflow/kiranaflow/internal/pii"
	"github.com/kiranaflow/kiranaflow/internal/queue"
	"github.com/kiranaflow/kiranaflow/internal/ratelimit"
	"github.com/kiranaflow/kiranaflow/internal/rbac"
	"github.com/kiranaflow/kiranaflow/internal/shared"
	"github.com/kiranaflow/kiranaflow/internal/storage"
	"github.com/kiranaflow/kiranaflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	repo := storage.NewRepository(pool)

	jwks := auth.NewJWKSCache(cfg.IdentityProviderJWKSURL, cfg.JWKSCacheTTL)
	authenticator := auth.Authenticator{
		Users:    repo,
		JWKS:     jwks,
		Audience: cfg.IdentityProviderAudience,
		Logger:   logger,
	}

	rbacService := rbac.NewService(repo)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	piiMiddleware := pii.Middleware{
		Permissions: rbacService,
		Redactor:    pii.New(),
		Logger:      logger,
	}

	limiter := ratelimit.New(redisClient, repo, ratelimit.Tiers{
		FreeMax:        cfg.RateLimitFreeTierMax,
		ProMax:         cfg.RateLimitProTierMax,
		EnterpriseMax:  cfg.RateLimitEnterpriseTierMax,
		Window:         cfg.RateLimitWindow,
		ReadMultiplier: cfg.RateLimitReadMultiplier,
	}, logger)

	idempotencyStore := shared.NewIdempotencyStore(pool)

	llmClient := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelID, cfg.LLMRequestTimeout)
	extractionService := extract.New(llmClient, repo)
	invoiceEngine := invoice.NewEngine()

	objectStore, err := objectstore.New(
		cfg.ObjectStoreAccountName,
		cfg.ObjectStoreAccountKey,
		cfg.ObjectStoreContainer,
		cfg.ObjectStoreEndpoint(),
		cfg.ObjectStoreTokenTTL,
	)
	if err != nil {
		logger.Error("init object store", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobProgress := jobs.NewProgressStore(redisClient)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	dlq := queue.NewDLQ(inspector, queue.QueueExtractionChat, queue.QueueExtractionSingle)

	apiHandler := httpapi.NewHandler(
		repo,
		repo,
		extractionService,
		invoiceEngine,
		objectStore,
		jobClient,
		jobProgress,
		dlq,
		authenticator,
		rbacMiddleware,
		piiMiddleware,
		limiter,
		idempotencyStore,
		logger,
	)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Pool:    pool,
		Metrics: metrics,
		API:     apiHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
