package jobs

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobResult is the terminal outcome of an extraction job, recorded once
// HandleExtraction finishes so GET /api/jobs/:id can report it without
// re-deriving it from asynq's own task state.
type JobResult struct {
	Status  string `json:"status"` // "completed" | "failed"
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProgressStore tracks the 0-100 progress of in-flight jobs outside of
// asynq's own result storage, since the queue contract calls for
// mid-task progress (10 → 70 → 90 → 100) that asynq's single
// write-once ResultWriter does not model well.
type ProgressStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewProgressStore constructs a store backed by the shared Redis client.
func NewProgressStore(client *redis.Client) *ProgressStore {
	return &ProgressStore{redis: client, ttl: 24 * time.Hour}
}

func progressKey(taskID string) string {
	return "job:progress:" + taskID
}

func resultKey(taskID string) string {
	return "job:result:" + taskID
}

// Set records pct for taskID, expiring after the retention window so
// abandoned keys don't accumulate.
func (p *ProgressStore) Set(ctx context.Context, taskID string, pct int) error {
	return p.redis.Set(ctx, progressKey(taskID), strconv.Itoa(pct), p.ttl).Err()
}

// Get returns the last recorded progress for taskID, or 0, false if none
// was ever recorded (e.g. the job hasn't started).
func (p *ProgressStore) Get(ctx context.Context, taskID string) (int, bool, error) {
	val, err := p.redis.Get(ctx, progressKey(taskID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	pct, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, nil
	}
	return pct, true, nil
}

// SetResult records the terminal outcome of a job.
func (p *ProgressStore) SetResult(ctx context.Context, taskID string, result JobResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return p.redis.Set(ctx, resultKey(taskID), payload, p.ttl).Err()
}

// GetResult returns the recorded terminal outcome for taskID, if any.
func (p *ProgressStore) GetResult(ctx context.Context, taskID string) (JobResult, bool, error) {
	val, err := p.redis.Get(ctx, resultKey(taskID)).Bytes()
	if err == redis.Nil {
		return JobResult{}, false, nil
	}
	if err != nil {
		return JobResult{}, false, err
	}
	var result JobResult
	if err := json.Unmarshal(val, &result); err != nil {
		return JobResult{}, false, err
	}
	return result, true, nil
}
