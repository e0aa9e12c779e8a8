package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranaflow/kiranaflow/internal/queue"
)

type stubIdempotencyCleaner struct {
	calledWith time.Duration
	err        error
}

func (s *stubIdempotencyCleaner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	s.calledWith = olderThan
	return s.err
}

func TestHandleWebhookSucceedsOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "corr-1", r.Header.Get("X-Correlation-Id"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := &Handlers{HTTPClient: srv.Client()}
	payload, err := json.Marshal(queue.WebhookJob{WebhookURL: srv.URL, Payload: json.RawMessage(`{}`), CorrelationID: "corr-1"})
	require.NoError(t, err)

	err = h.HandleWebhook(context.Background(), asynq.NewTask(queue.TaskWebhookDeliver, payload))
	assert.NoError(t, err)
}

func TestHandleWebhookReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := &Handlers{HTTPClient: srv.Client()}
	payload, _ := json.Marshal(queue.WebhookJob{WebhookURL: srv.URL})
	err := h.HandleWebhook(context.Background(), asynq.NewTask(queue.TaskWebhookDeliver, payload))
	assert.Error(t, err)
}

func TestHandleWebhookRejectsMalformedPayload(t *testing.T) {
	h := &Handlers{}
	err := h.HandleWebhook(context.Background(), asynq.NewTask(queue.TaskWebhookDeliver, []byte("not json")))
	assert.Error(t, err)
}

func TestHandleIdempotencyCleanupRunsWithConfiguredRetention(t *testing.T) {
	cleaner := &stubIdempotencyCleaner{}
	h := &Handlers{Idempotency: cleaner}
	err := h.HandleIdempotencyCleanup(context.Background(), asynq.NewTask(queue.TaskIdempotencyCleanup, nil))
	require.NoError(t, err)
	assert.Equal(t, idempotencyRetention, cleaner.calledWith)
}

func TestHandleIdempotencyCleanupFailsWhenUnconfigured(t *testing.T) {
	h := &Handlers{}
	err := h.HandleIdempotencyCleanup(context.Background(), asynq.NewTask(queue.TaskIdempotencyCleanup, nil))
	assert.Error(t, err)
}

func TestHandleIdempotencyCleanupPropagatesCleanerError(t *testing.T) {
	cleaner := &stubIdempotencyCleaner{err: assertError("boom")}
	h := &Handlers{Idempotency: cleaner}
	err := h.HandleIdempotencyCleanup(context.Background(), asynq.NewTask(queue.TaskIdempotencyCleanup, nil))
	assert.EqualError(t, err, "boom")
}

type assertError string

func (e assertError) Error() string { return string(e) }
