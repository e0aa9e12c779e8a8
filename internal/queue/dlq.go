package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
)

// dlqRetryConcurrency bounds how many archived tasks RetryAll reschedules
// at once, so a large backlog doesn't open hundreds of Redis connections
// in one burst.
const dlqRetryConcurrency = 4

// FailedJob is one archived (permanently failed) extraction job.
type FailedJob struct {
	ID      string
	Queue   string
	Type    string
	Payload []byte
	LastErr string
}

// DLQ manages dead-lettered extraction jobs via an asynq.Inspector. Retry
// reschedules the existing archived task; it never copies a new one.
type DLQ struct {
	inspector *asynq.Inspector
	queues    []string
}

// NewDLQ constructs a DLQ over the given queue names (the extraction
// queues; webhook failures are not dead-lettered the same way since a
// failure webhook is itself best-effort).
func NewDLQ(inspector *asynq.Inspector, queues ...string) *DLQ {
	return &DLQ{inspector: inspector, queues: queues}
}

// ListFailed returns one page of archived tasks for every managed queue:
// up to pageSize tasks per queue, with pageNum passed unchanged to
// asynq.Page (asynq numbers pages from 1). It takes a page, not a
// start..end range.
func (d *DLQ) ListFailed(pageSize, pageNum int) ([]FailedJob, error) {
	var out []FailedJob
	for _, q := range d.queues {
		tasks, err := d.inspector.ListArchivedTasks(q, asynq.PageSize(pageSize), asynq.Page(pageNum))
		if err != nil {
			return nil, fmt.Errorf("queue: list archived %s: %w", q, err)
		}
		for _, t := range tasks {
			out = append(out, FailedJob{
				ID:      t.ID,
				Queue:   t.Queue,
				Type:    t.Type,
				Payload: t.Payload,
				LastErr: t.LastErr,
			})
		}
	}
	return out, nil
}

// RetryOne reschedules a single archived task for immediate processing.
func (d *DLQ) RetryOne(queue, id string) error {
	if err := d.inspector.RunTask(queue, id); err != nil {
		return fmt.Errorf("queue: retry %s/%s: %w", queue, id, err)
	}
	return nil
}

// RetryAll reschedules the archived tasks returned by one
// ListFailed(100, 0) call, so at most 100 tasks per managed queue per
// call; tasks beyond that stay archived. It fans out with a bounded
// worker pool via errgroup rather than a
// sequential loop, since a single archived-task retry is one Redis round
// trip and a large DLQ backlog would otherwise serialize unnecessarily.
func (d *DLQ) RetryAll(ctx context.Context) (retried int, err error) {
	jobs, err := d.ListFailed(100, 0)
	if err != nil {
		return 0, err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(dlqRetryConcurrency)
	results := make(chan error, len(jobs))
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e := d.RetryOne(job.Queue, job.ID)
			results <- e
			return nil
		})
	}
	if waitErr := g.Wait(); waitErr != nil {
		return 0, waitErr
	}
	close(results)
	for e := range results {
		if e == nil {
			retried++
		}
	}
	return retried, nil
}
