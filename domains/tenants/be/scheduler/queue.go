// Package scheduler runs tenant provisioning asynchronously: a durable job
// queue in the landlord database plus a polling worker that claims jobs and
// hands them to the provisioner.
package scheduler

import (
	"context"
	"time"
)

// Job states.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// DefaultMaxAttempts caps how often a tenant's setup is retried before the
// job goes terminal.
const DefaultMaxAttempts = 3

// StaleRunningAfter is how long a job may sit in running untouched before it
// is presumed orphaned by a dead worker and becomes claimable again. Must
// comfortably exceed the per-job timeout so live runs are never reclaimed.
const StaleRunningAfter = 15 * time.Minute

// retryBackoff holds the delay before attempt 2, 3, … The last entry repeats
// for any further attempts.
var retryBackoff = []time.Duration{time.Minute, 2 * time.Minute, 5 * time.Minute}

// RetryDelay returns the wait before the next run after the given number of
// completed attempts.
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > len(retryBackoff) {
		attempts = len(retryBackoff)
	}
	return retryBackoff[attempts-1]
}

// Job is one provisioning run for one tenant.
type Job struct {
	ID          int64
	TenantID    int64
	State       string
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Queue is the durable provisioning queue. Enqueue is a no-op while the
// tenant already has a queued or running job, so bursts of retry requests
// collapse into one run.
type Queue interface {
	Enqueue(ctx context.Context, tenantID int64) error
	Claim(ctx context.Context) (Job, bool, error)
	Complete(ctx context.Context, jobID int64) error
	Fail(ctx context.Context, job Job, cause error) error
}
