package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranaflow/kiranaflow/internal/storage"
)

func TestExtractionJobQueueRoutesByType(t *testing.T) {
	assert.Equal(t, QueueExtractionChat, ExtractionJob{Type: storage.ExtractionChatLog}.Queue())
	assert.Equal(t, QueueExtractionSingle, ExtractionJob{Type: storage.ExtractionSingleMessage}.Queue())
}

func TestExtractionResultMarshalsSuccessWebhookShape(t *testing.T) {
	result := ExtractionResult{
		JobID:   "task_1",
		Status:  "completed",
		OrderID: "order_1",
		Order:   storage.Order{ID: "order_1", OrgID: "org_1"},
	}
	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "task_1", decoded["jobId"])
	assert.Equal(t, "completed", decoded["status"])
	assert.Equal(t, "order_1", decoded["orderId"])
	assert.Contains(t, decoded, "order")
}

func TestExtractionFailureMarshalsWithCorrelationID(t *testing.T) {
	failure := ExtractionFailure{OrgID: "org_1", CorrelationID: "corr_1", Error: "boom"}
	raw, err := json.Marshal(failure)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "corr_1", decoded["correlation_id"])
	assert.Equal(t, "boom", decoded["error"])
}
