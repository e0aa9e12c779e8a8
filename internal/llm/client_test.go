package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractReturnsToolUseInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(toolCallResponse{
			Content: []toolUseBlock{{Type: "tool_use", Name: "record_single_message_order", Input: json.RawMessage(`{"items":[]}`)}},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", "test-model", 2*time.Second)
	out, err := client.Extract(context.Background(), "system prompt", "2 kg rice", "record_single_message_order", json.RawMessage(`{}`), 512)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(out))
}

func TestExtractSurfacesNonRetriableClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad schema"))
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", "test-model", 2*time.Second)
	_, err := client.Extract(context.Background(), "system", "hi", "tool", json.RawMessage(`{}`), 512)
	require.Error(t, err)
}

func TestExtractRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(toolCallResponse{
			Content: []toolUseBlock{{Type: "tool_use", Input: json.RawMessage(`{"items":[]}`)}},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", "test-model", 2*time.Second)
	_, err := client.Extract(context.Background(), "system", "hi", "tool", json.RawMessage(`{}`), 512)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestParseRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
}
