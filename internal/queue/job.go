// Package queue defines the job payload shapes shared between request
// handlers (which enqueue) and workers (which consume), independent of
// the asynq wiring in the root jobs package.
package queue

import (
	"encoding/json"

	"github.com/kiranaflow/kiranaflow/internal/llm"
	"github.com/kiranaflow/kiranaflow/internal/storage"
)

// Queue names. Extraction is split into two so the asynq server can weight
// chat-log jobs above single-message jobs (priority 2 vs 1) without
// needing per-task priority, which asynq does not support within a queue.
const (
	QueueExtractionSingle = "extraction_single"
	QueueExtractionChat   = "extraction_chat"
	QueueWebhook          = "webhook"
	QueueMaintenance      = "maintenance"
)

// Task type names registered on the asynq ServeMux.
const (
	TaskExtractionProcess  = "extraction:process"
	TaskWebhookDeliver     = "webhook:deliver"
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ExtractionJob is the tagged-variant payload for both extraction task
// types: Type discriminates whether Message or Messages is populated.
type ExtractionJob struct {
	Type          storage.ExtractionType `json:"type"`
	OrgID         string                 `json:"org_id"`
	CorrelationID string                 `json:"correlation_id"`
	Message       *string                `json:"message,omitempty"`
	Messages      []llm.Message          `json:"messages,omitempty"`
	WebhookURL    *string                `json:"webhook_url,omitempty"`
}

// Queue returns the queue this job belongs to, based on its discriminator.
func (j ExtractionJob) Queue() string {
	if j.Type == storage.ExtractionChatLog {
		return QueueExtractionChat
	}
	return QueueExtractionSingle
}

// WebhookJob is the payload for a single outbound webhook delivery
// attempt.
type WebhookJob struct {
	WebhookURL    string          `json:"webhook_url"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id"`
}

// ExtractionResult is the success payload embedded in a completion
// webhook. GET /api/jobs/:id does not return it; that route reports the
// job with its own status shape.
type ExtractionResult struct {
	JobID   string        `json:"jobId"`
	Status  string        `json:"status"`
	OrderID string        `json:"orderId"`
	Order   storage.Order `json:"order"`
}

// ExtractionFailure is the payload embedded in a failure webhook once
// attempts are exhausted.
type ExtractionFailure struct {
	OrgID         string `json:"org_id"`
	CorrelationID string `json:"correlation_id"`
	Error         string `json:"error"`
}
