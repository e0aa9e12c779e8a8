// Package jobs wires the asynq client/server pair that backs the
// extraction and webhook queues, adapted from the teacher's own
// jobs/asynq_server.go Worker/Client/Handler shape.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kiranaflow/kiranaflow/internal/jobs"
	"github.com/kiranaflow/kiranaflow/internal/queue"
)

// Worker wraps the Asynq server and a periodic cron scheduler for
// housekeeping sweeps (idempotency-key expiry).
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
	inspector *asynq.Inspector
	metrics   *jobmetrics.Metrics
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
// Every queue is served by one asynq server with a shared concurrency of
// 8 (see NewWorker); there is no per-queue concurrency cap and no rate
// limit on extraction jobs.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  *Handlers
	Cron      []CronRegistration
	Metrics   *jobmetrics.Metrics
}

// NewWorker constructs a Worker instance. Queue weights realize the
// extraction queue's priority split: chat-log jobs (priority 2) are
// serviced roughly twice as often as single-message jobs (priority 1).
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 8, // 3 extraction + 5 webhook, shared pool per asynq's model
		Queues: map[string]int{
			queue.QueueExtractionChat:   2,
			queue.QueueExtractionSingle: 1,
			queue.QueueWebhook:          5,
			queue.QueueMaintenance:      1,
		},
		RetryDelayFunc: retryDelay,
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskExtractionProcess, cfg.Handlers.HandleExtraction)
	mux.HandleFunc(queue.TaskWebhookDeliver, cfg.Handlers.HandleWebhook)
	mux.HandleFunc(queue.TaskIdempotencyCleanup, cfg.Handlers.HandleIdempotencyCleanup)

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{
		server:    srv,
		mux:       mux,
		scheduler: scheduler,
		logger:    cfg.Logger,
		inspector: asynq.NewInspector(cfg.RedisOpts),
		metrics:   cfg.Metrics,
	}, nil
}

// Run starts processing jobs until context cancellation, then waits for
// in-flight jobs to finish before returning — the "close each worker"
// step of the graceful shutdown sequence.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	go w.sampleQueueDepth(ctx)
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		_ = w.inspector.Close()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		_ = w.inspector.Close()
		return err
	}
}

// sampleQueueDepth polls asynq's pending-task count every 15s and exports
// it via the gauge that backs the QueueBacklogSpike alert, since asynq does
// not push this metric on its own.
func (w *Worker) sampleQueueDepth(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	queues := []string{queue.QueueExtractionChat, queue.QueueExtractionSingle, queue.QueueWebhook, queue.QueueMaintenance}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range queues {
				info, err := w.inspector.GetQueueInfo(q)
				if err != nil {
					continue
				}
				w.metrics.SetQueueDepth(q, int64(info.Pending))
			}
		}
	}
}

// retryDelay picks an exponential-backoff base per task type: 3s for
// extraction, 5s for webhook delivery, matching the queue contract's
// distinct backoff bases.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	base := 3 * time.Second
	if task.Type() == queue.TaskWebhookDeliver {
		base = 5 * time.Second
	}
	delay := base
	for i := 0; i < n; i++ {
		delay *= 2
	}
	const maxDelay = 2 * time.Minute
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// Client submits jobs to the extraction and webhook queues.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueExtraction submits an extraction job with the retry/retention
// contract from the queue spec: 3 attempts, 3s-base backoff, successful
// jobs retained 24h (failed jobs are retained indefinitely by asynq's
// archive, which is exactly the DLQ).
func (c *Client) EnqueueExtraction(ctx context.Context, job queue.ExtractionJob) (*asynq.TaskInfo, error) {
	payload, err := marshalJob(job)
	if err != nil {
		return nil, err
	}
	task := asynq.NewTask(queue.TaskExtractionProcess, payload)
	return c.client.EnqueueContext(ctx, task,
		asynq.Queue(job.Queue()),
		asynq.MaxRetry(2), // first attempt + 2 retries = 3 attempts
		asynq.Timeout(60*time.Second),
		asynq.Retention(24*time.Hour),
	)
}

// EnqueueWebhook submits a webhook delivery with its own contract: 10
// attempts, 5s-base backoff. Retention governs the result of a successful
// task (24h); asynq's archive for exhausted-retry tasks is process-wide
// rather than per-task, so the spec's distinct 72h failed-retention figure
// is approximated by the server's archive sweep rather than set here.
func (c *Client) EnqueueWebhook(ctx context.Context, job queue.WebhookJob) (*asynq.TaskInfo, error) {
	payload, err := marshalJob(job)
	if err != nil {
		return nil, err
	}
	task := asynq.NewTask(queue.TaskWebhookDeliver, payload)
	return c.client.EnqueueContext(ctx, task,
		asynq.Queue(queue.QueueWebhook),
		asynq.MaxRetry(9), // first attempt + 9 retries = 10 attempts
		asynq.Timeout(10*time.Second),
		asynq.Retention(24*time.Hour),
	)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
