package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnqueueDeduplicatesLiveJobs(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 7))
	require.NoError(t, q.Enqueue(ctx, 7))
	require.NoError(t, q.Enqueue(ctx, 7))

	require.Len(t, q.Snapshot(), 1)

	// A running job still blocks new enqueues.
	_, ok, err := q.Claim(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.Enqueue(ctx, 7))
	require.Len(t, q.Snapshot(), 1)
}

func TestEnqueueAfterTerminalJobCreatesNewOne(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 7))
	job, ok, err := q.Claim(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.Complete(ctx, job.ID))

	require.NoError(t, q.Enqueue(ctx, 7))
	require.Len(t, q.Snapshot(), 2)
}

func TestFailRequeuesWithBackoffThenGoesTerminal(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	now := time.Now()
	q.now = func() time.Time { return now }

	require.NoError(t, q.Enqueue(ctx, 1))
	cause := errors.New("boom")

	// Attempts 1 and 2 requeue with growing delay.
	delays := []time.Duration{time.Minute, 2 * time.Minute}
	for i, wantDelay := range delays {
		attempt := i + 1
		job, ok, err := q.Claim(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, attempt, job.Attempts)

		require.NoError(t, q.Fail(ctx, job, cause))
		jobs := q.Snapshot()
		require.Len(t, jobs, 1)
		require.Equal(t, JobQueued, jobs[0].State)
		require.Equal(t, now.Add(wantDelay), jobs[0].RunAt)
		require.NotNil(t, jobs[0].LastError)
		require.Equal(t, "boom", *jobs[0].LastError)

		// The requeued job is not due yet.
		_, ok, err = q.Claim(ctx)
		require.NoError(t, err)
		require.False(t, ok)

		now = now.Add(wantDelay)
	}

	// Attempt 3 hits max_attempts and the job goes terminal.
	job, ok, err := q.Claim(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, job.Attempts)
	require.NoError(t, q.Fail(ctx, job, cause))

	jobs := q.Snapshot()
	require.Equal(t, JobFailed, jobs[0].State)

	_, ok, err = q.Claim(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClaimReclaimsStaleRunningJobs(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	now := time.Now()
	q.now = func() time.Time { return now }

	require.NoError(t, q.Enqueue(ctx, 3))
	job, ok, err := q.Claim(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, job.Attempts)

	// A live running job is neither claimable nor re-enqueueable.
	_, ok, err = q.Claim(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, q.Enqueue(ctx, 3))
	require.Len(t, q.Snapshot(), 1)

	// Once it has sat in running past the stale cutoff the worker that held
	// it is presumed dead and the job can be claimed again.
	now = now.Add(StaleRunningAfter + time.Second)
	reclaimed, ok, err := q.Claim(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, job.ID, reclaimed.ID)
	require.Equal(t, 2, reclaimed.Attempts)
	require.Equal(t, JobRunning, reclaimed.State)
}

func TestRetryDelayClampsToLastEntry(t *testing.T) {
	require.Equal(t, time.Minute, RetryDelay(0))
	require.Equal(t, time.Minute, RetryDelay(1))
	require.Equal(t, 2*time.Minute, RetryDelay(2))
	require.Equal(t, 5*time.Minute, RetryDelay(3))
	require.Equal(t, 5*time.Minute, RetryDelay(10))
}

type recordingRunner struct {
	mu   sync.Mutex
	runs []int64
	errs map[int64]error
	done chan struct{}
}

func (r *recordingRunner) Run(_ context.Context, tenantID int64) error {
	r.mu.Lock()
	r.runs = append(r.runs, tenantID)
	r.mu.Unlock()
	if r.done != nil {
		r.done <- struct{}{}
	}
	if r.errs != nil {
		return r.errs[tenantID]
	}
	return nil
}

func TestWorkerRunsQueuedJobs(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, 1))
	require.NoError(t, q.Enqueue(ctx, 2))

	runner := &recordingRunner{done: make(chan struct{}, 4)}
	w := NewWorker(q, runner, zap.NewNop(), WorkerConfig{
		PollInterval: 5 * time.Millisecond,
		Concurrency:  2,
	})

	go w.Start(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-runner.done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker never ran the queued jobs")
		}
	}
	cancel()

	require.Eventually(t, func() bool {
		for _, j := range q.Snapshot() {
			if j.State != JobSucceeded {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.ElementsMatch(t, []int64{1, 2}, runner.runs)
}

func TestWorkerRecordsFailedRuns(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, 9))

	runner := &recordingRunner{
		done: make(chan struct{}, 1),
		errs: map[int64]error{9: errors.New("setup broke")},
	}
	w := NewWorker(q, runner, zap.NewNop(), WorkerConfig{
		PollInterval: 5 * time.Millisecond,
		Concurrency:  1,
	})

	go w.Start(ctx)

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never ran the job")
	}
	cancel()

	require.Eventually(t, func() bool {
		jobs := q.Snapshot()
		return len(jobs) == 1 && jobs[0].State == JobQueued && jobs[0].LastError != nil
	}, 2*time.Second, 10*time.Millisecond)
}
