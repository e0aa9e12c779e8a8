package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kiranaflow/kiranaflow/internal/extract"
	jobmetrics "github.com/kiranaflow/kiranaflow/internal/jobs"
	"github.com/kiranaflow/kiranaflow/internal/queue"
	"github.com/kiranaflow/kiranaflow/internal/shared"
	"github.com/kiranaflow/kiranaflow/internal/storage"
)

// IdempotencyCleaner is the subset of shared.IdempotencyStore the cron sweep
// needs, declared on the consumer side per this package's usual pattern.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

const (
	metricJobExtract     = "extract_order"
	metricJobWebhook     = "deliver_webhook"
	metricJobIdempotency = "idempotency_cleanup"
)

// idempotencyRetention is how long a processed idempotency key is kept
// before the cron sweep removes it; well past any plausible client retry
// window for a single invoice-generation call.
const idempotencyRetention = 7 * 24 * time.Hour

// progressStarted, progressExtracting, progressPersisting, progressDone are
// the four fixed steps the queue contract reports for an extraction job.
const (
	progressStarted    = 10
	progressExtracting = 70
	progressPersisting = 90
	progressDone       = 100
)

// Handlers holds the collaborators the asynq ServeMux dispatches into.
// Webhook delivery is a distinct task type so a slow or failing endpoint
// never holds up the extraction queue.
type Handlers struct {
	Extraction  *extract.Service
	Progress    *ProgressStore
	Enqueuer    *Client
	HTTPClient  *http.Client
	Idempotency IdempotencyCleaner
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// HandleExtraction runs one extraction job end to end: resolves the
// correlation id onto the context, reports progress through the fixed
// 10/70/90/100 steps, persists the result, and — regardless of outcome —
// enqueues a best-effort webhook notification rather than posting inline.
func (h *Handlers) HandleExtraction(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics().Track(metricJobExtract)
	var job queue.ExtractionJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return tracker.End(fmt.Errorf("jobs: decode extraction payload: %w", err))
	}
	ctx = shared.ContextWithCorrelationID(ctx, job.CorrelationID)
	taskID, _ := asynq.GetTaskID(ctx)

	h.setProgress(ctx, taskID, progressStarted)

	order, err := h.runExtraction(ctx, job, taskID)
	if err != nil {
		err = tracker.End(err)
		h.logger().Error("extraction job failed",
			slog.String("correlation_id", job.CorrelationID),
			slog.String("org_id", job.OrgID),
			slog.Any("error", err))
		h.setResult(ctx, taskID, JobResult{Status: "failed", Error: err.Error()})
		h.notifyFailure(ctx, job, err)
		return err
	}

	h.setProgress(ctx, taskID, progressDone)
	h.setResult(ctx, taskID, JobResult{Status: "completed", OrderID: order.ID})
	h.notifySuccess(ctx, job, taskID, order)
	return tracker.End(nil)
}

func (h *Handlers) runExtraction(ctx context.Context, job queue.ExtractionJob, taskID string) (*storage.Order, error) {
	h.setProgress(ctx, taskID, progressExtracting)

	var order *storage.Order
	var err error
	switch job.Type {
	case storage.ExtractionChatLog:
		order, err = h.Extraction.ChatLog(ctx, job.OrgID, job.Messages)
	case storage.ExtractionSingleMessage:
		if job.Message == nil {
			return nil, errors.New("jobs: single-message job missing message")
		}
		order, err = h.Extraction.SingleMessage(ctx, job.OrgID, *job.Message)
	default:
		return nil, fmt.Errorf("jobs: unknown extraction type %q", job.Type)
	}
	if err != nil {
		return nil, err
	}

	h.setProgress(ctx, taskID, progressPersisting)
	return order, nil
}

func (h *Handlers) notifySuccess(ctx context.Context, job queue.ExtractionJob, taskID string, order *storage.Order) {
	if job.WebhookURL == nil {
		return
	}
	payload, err := json.Marshal(queue.ExtractionResult{
		JobID:   taskID,
		Status:  "completed",
		OrderID: order.ID,
		Order:   *order,
	})
	if err != nil {
		h.logger().Error("encode success webhook payload", slog.Any("error", err))
		return
	}
	h.enqueueWebhook(ctx, *job.WebhookURL, payload, job.CorrelationID)
}

func (h *Handlers) notifyFailure(ctx context.Context, job queue.ExtractionJob, cause error) {
	if job.WebhookURL == nil {
		return
	}
	payload, err := json.Marshal(queue.ExtractionFailure{OrgID: job.OrgID, CorrelationID: job.CorrelationID, Error: cause.Error()})
	if err != nil {
		h.logger().Error("encode failure webhook payload", slog.Any("error", err))
		return
	}
	h.enqueueWebhook(ctx, *job.WebhookURL, payload, job.CorrelationID)
}

func (h *Handlers) enqueueWebhook(ctx context.Context, url string, payload json.RawMessage, correlationID string) {
	if h.Enqueuer == nil {
		return
	}
	_, err := h.Enqueuer.EnqueueWebhook(ctx, queue.WebhookJob{
		WebhookURL:    url,
		Payload:       payload,
		CorrelationID: correlationID,
	})
	if err != nil {
		h.logger().Error("enqueue webhook notification failed", slog.Any("error", err))
	}
}

func (h *Handlers) setProgress(ctx context.Context, taskID string, pct int) {
	if h.Progress == nil || taskID == "" {
		return
	}
	if err := h.Progress.Set(ctx, taskID, pct); err != nil {
		h.logger().Warn("set job progress failed", slog.String("task_id", taskID), slog.Any("error", err))
	}
}

func (h *Handlers) setResult(ctx context.Context, taskID string, result JobResult) {
	if h.Progress == nil || taskID == "" {
		return
	}
	if err := h.Progress.SetResult(ctx, taskID, result); err != nil {
		h.logger().Warn("set job result failed", slog.String("task_id", taskID), slog.Any("error", err))
	}
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handlers) metrics() *jobmetrics.Metrics {
	return h.Metrics
}

// HandleWebhook delivers one outbound notification. A non-2xx response is
// treated as an error so asynq's retry/backoff schedule applies exactly as
// it would for any other failed task.
func (h *Handlers) HandleWebhook(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics().Track(metricJobWebhook)

	var job queue.WebhookJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return tracker.End(fmt.Errorf("jobs: decode webhook payload: %w", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, job.WebhookURL, bytes.NewReader(job.Payload))
	if err != nil {
		return tracker.End(fmt.Errorf("jobs: build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-Id", job.CorrelationID)

	client := h.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return tracker.End(fmt.Errorf("jobs: deliver webhook: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return tracker.End(fmt.Errorf("jobs: webhook endpoint returned status %d", resp.StatusCode))
	}
	return tracker.End(nil)
}

// HandleIdempotencyCleanup runs the periodic sweep that drops processed
// idempotency keys past their retention window, keeping the table from
// growing unbounded across every tenant's invoice-generation retries.
func (h *Handlers) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics().Track(metricJobIdempotency)
	if h.Idempotency == nil {
		return tracker.End(errors.New("jobs: idempotency cleanup not configured"))
	}
	return tracker.End(h.Idempotency.Cleanup(ctx, idempotencyRetention))
}
