// Package llm produces a validated structured extraction from free-text
// input, treating the model as an unreliable remote collaborator.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranaflow/kiranaflow/internal/shared"
)

// Message is one chat turn fed to the model.
type Message struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Client wraps the vendor's tool-calling HTTP endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	httpClient  *http.Client
	maxAttempts int
}

// New constructs a Client. timeout bounds a single attempt, not the whole
// retry loop.
func New(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxAttempts: 4,
	}
}

// toolCallRequest mirrors the vendor's tool-calling contract: one POST with
// a cached system prompt, a single tool whose input_schema the model must
// satisfy, and tool_choice forcing that tool.
type toolCallRequest struct {
	Model      string        `json:"model"`
	MaxTokens  int           `json:"max_tokens"`
	System     []cacheable   `json:"system"`
	Tools      []tool        `json:"tools"`
	ToolChoice toolChoice    `json:"tool_choice"`
	Messages   []userMessage `json:"messages"`
}

type cacheable struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"`
}

type tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type userMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolUseBlock struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type toolCallResponse struct {
	Content []toolUseBlock `json:"content"`
}

// Extract sends systemPrompt + userContent against toolName/schema and
// returns the tool-use input payload, retrying per the backoff policy
// below. maxTokens bounds the response size.
func (c *Client) Extract(ctx context.Context, systemPrompt, userContent, toolName string, schema json.RawMessage, maxTokens int) (json.RawMessage, error) {
	body := toolCallRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []cacheable{{
			Type:         "text",
			Text:         systemPrompt,
			CacheControl: &cacheControl{Type: "ephemeral"},
		}},
		Tools: []tool{{
			Name:        toolName,
			Description: "Extract a structured order from the supplied text.",
			InputSchema: schema,
		}},
		ToolChoice: toolChoice{Type: "tool", Name: toolName},
		Messages:   []userMessage{{Role: "user", Content: userContent}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode llm request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithBackoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
		}
		result, retryAfter, err := c.attempt(ctx, payload)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var nr *nonRetriable
		if errors.As(err, &nr) {
			return nil, err
		}
		lastErr = err
		if retryAfter > 0 {
			lastErr = &retryAfterError{after: retryAfter, cause: err}
		}
	}
	return nil, fmt.Errorf("llm extraction exhausted %d attempts: %w", c.maxAttempts, lastErr)
}

// nonRetriable wraps a client error (4xx other than 429) that must not be
// retried and surfaces as UpstreamBadRequest immediately.
type nonRetriable struct{ cause error }

func (e *nonRetriable) Error() string { return e.cause.Error() }
func (e *nonRetriable) Unwrap() error { return e.cause }

// retryAfterError carries the server-advised retry delay from a 429
// response, overriding the computed backoff for the next attempt.
type retryAfterError struct {
	after time.Duration
	cause error
}

func (e *retryAfterError) Error() string { return e.cause.Error() }
func (e *retryAfterError) Unwrap() error { return e.cause }

func (c *Client) attempt(ctx context.Context, payload []byte) (json.RawMessage, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", shared.ErrUpstreamBadInput, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %v", shared.ErrUpstreamDown, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, retryAfter, fmt.Errorf("%w: rate limited", shared.ErrUpstreamDown)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, &nonRetriable{cause: fmt.Errorf("%w: status %d: %s", shared.ErrUpstreamBadInput, resp.StatusCode, body)}
	}
	if resp.StatusCode >= 500 {
		return nil, 0, fmt.Errorf("%w: status %d", shared.ErrUpstreamDown, resp.StatusCode)
	}

	var parsed toolCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("%w: decode response: %v", shared.ErrExtractionInvalid, err)
	}
	for _, block := range parsed.Content {
		if block.Type == "tool_use" {
			return block.Input, 0, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: no tool-use block in response", shared.ErrExtractionInvalid)
}

// sleepWithBackoff waits min(10s, 2s*2^attempt) + random(0..1s), unless the
// previous error carried a server Retry-After, which overrides it outright.
func sleepWithBackoff(ctx context.Context, attempt int, lastErr error) error {
	delay := backoffDelay(attempt)
	var ra *retryAfterError
	if errors.As(lastErr, &ra) {
		delay = ra.after
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDelay(attempt int) time.Duration {
	base := 2 * time.Second * time.Duration(1<<uint(attempt))
	if base > 10*time.Second {
		base = 10 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	return base + jitter
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		return time.Until(when)
	}
	return 0
}
