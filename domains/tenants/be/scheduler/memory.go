package scheduler

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue for tests and single-node local runs.
// It mirrors the Postgres queue's semantics including live-job dedup and
// retry backoff.
type MemoryQueue struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]Job

	// now is swappable so tests can step time past the retry backoff.
	now func() time.Time
}

// NewMemoryQueue constructs an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{nextID: 1, jobs: make(map[int64]Job), now: time.Now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, tenantID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, j := range q.jobs {
		if j.TenantID == tenantID && (j.State == JobQueued || j.State == JobRunning) {
			return nil
		}
	}

	now := q.now()
	j := Job{
		ID:          q.nextID,
		TenantID:    tenantID,
		State:       JobQueued,
		MaxAttempts: DefaultMaxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.nextID++
	q.jobs[j.ID] = j
	return nil
}

func (q *MemoryQueue) Claim(_ context.Context) (Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var best *Job
	for id := range q.jobs {
		j := q.jobs[id]
		due := j.State == JobQueued && !j.RunAt.After(now)
		stale := j.State == JobRunning && j.UpdatedAt.Before(now.Add(-StaleRunningAfter))
		if !due && !stale {
			continue
		}
		if best == nil || j.RunAt.Before(best.RunAt) || (j.RunAt.Equal(best.RunAt) && j.ID < best.ID) {
			copied := j
			best = &copied
		}
	}
	if best == nil {
		return Job{}, false, nil
	}

	best.State = JobRunning
	best.Attempts++
	best.UpdatedAt = now
	q.jobs[best.ID] = *best
	return *best, true, nil
}

func (q *MemoryQueue) Complete(_ context.Context, jobID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return nil
	}
	j.State = JobSucceeded
	j.LastError = nil
	j.UpdatedAt = q.now()
	q.jobs[jobID] = j
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, job Job, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[job.ID]
	if !ok {
		return nil
	}
	msg := cause.Error()
	j.LastError = &msg
	j.UpdatedAt = q.now()
	if j.Attempts >= j.MaxAttempts {
		j.State = JobFailed
	} else {
		j.State = JobQueued
		j.RunAt = q.now().Add(RetryDelay(j.Attempts))
	}
	q.jobs[job.ID] = j
	return nil
}

// Snapshot returns a copy of all jobs, used by tests to assert queue state.
func (q *MemoryQueue) Snapshot() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j)
	}
	return out
}

// Ensure interface compliance.
var _ Queue = (*MemoryQueue)(nil)
