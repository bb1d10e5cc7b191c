// Package admission bounds how many compile jobs run at once. Jobs beyond
// the bound wait for a slot; they finish in whatever order their processes
// exit.
package admission

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"asmexplorer/internal/logging"
)

// Stats is a snapshot of queue occupancy.
type Stats struct {
	Limit     int64         `json:"limit"`
	Waiting   int64         `json:"waiting"`
	Running   int64         `json:"running"`
	Completed uint64        `json:"completed"`
	TotalWait time.Duration `json:"total_wait"`
}

// AvgWait returns the mean time a job waited for a slot.
func (s Stats) AvgWait() time.Duration {
	if s.Completed == 0 {
		return 0
	}
	return s.TotalWait / time.Duration(s.Completed)
}

func (s Stats) String() string {
	return fmt.Sprintf("slots=%d/%d, waiting=%d, completed=%d, avg_wait=%v",
		s.Running, s.Limit, s.Waiting, s.Completed, s.AvgWait())
}

// Queue admits at most Limit concurrent jobs.
type Queue struct {
	slots *semaphore.Weighted
	limit int64

	waiting   atomic.Int64
	running   atomic.Int64
	completed atomic.Uint64
	totalWait atomic.Int64
}

// NewQueue returns a queue admitting limit jobs at once (minimum 1).
func NewQueue(limit int) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{
		slots: semaphore.NewWeighted(int64(limit)),
		limit: int64(limit),
	}
}

// Run waits for a slot, then runs fn holding it. If ctx ends while waiting,
// fn is not run and the context error is returned.
func (q *Queue) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	q.waiting.Add(1)
	if q.running.Load() >= q.limit {
		logging.QueueDebug("Job waiting for slot (%s)", q.Stats())
	}

	err := q.slots.Acquire(ctx, 1)
	q.waiting.Add(-1)
	if err != nil {
		logging.QueueDebug("Job abandoned while waiting after %v: %v", time.Since(start), err)
		return err
	}
	waited := time.Since(start)
	q.totalWait.Add(int64(waited))

	q.running.Add(1)
	defer func() {
		q.running.Add(-1)
		q.completed.Add(1)
		q.slots.Release(1)
	}()

	return fn(ctx)
}

// Stats returns current occupancy.
func (q *Queue) Stats() Stats {
	return Stats{
		Limit:     q.limit,
		Waiting:   q.waiting.Load(),
		Running:   q.running.Load(),
		Completed: q.completed.Load(),
		TotalWait: time.Duration(q.totalWait.Load()),
	}
}
