package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, tenant_id, state, attempts, max_attempts, run_at, last_error, created_at, updated_at`

// PostgresQueue stores provisioning jobs in the landlord database. Claiming
// uses FOR UPDATE SKIP LOCKED, so multiple workers can poll the same table
// without stepping on each other.
type PostgresQueue struct {
	pool *pgxpool.Pool
}

// NewPostgresQueue constructs a queue backed by the landlord pool.
func NewPostgresQueue(pool *pgxpool.Pool) *PostgresQueue {
	if pool == nil {
		panic("landlord pool is required")
	}
	return &PostgresQueue{pool: pool}
}

// Enqueue inserts a queued job for the tenant. The partial unique index on
// live jobs turns duplicate enqueues into no-ops.
func (q *PostgresQueue) Enqueue(ctx context.Context, tenantID int64) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO provision_jobs (tenant_id, max_attempts)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) WHERE state IN ('queued', 'running') DO NOTHING`,
		tenantID, DefaultMaxAttempts)
	if err != nil {
		return fmt.Errorf("enqueueing provision job for tenant %d: %w", tenantID, err)
	}
	return nil
}

// Claim marks the oldest due queued job as running and returns it. Running
// jobs untouched for longer than StaleRunningAfter count as due again, so a
// worker crash cannot strand a tenant behind the live-job unique index. The
// second return value is false when nothing is due.
func (q *PostgresQueue) Claim(ctx context.Context) (Job, bool, error) {
	row := q.pool.QueryRow(ctx, `
		UPDATE provision_jobs
		SET state = 'running', attempts = attempts + 1, updated_at = now()
		WHERE id = (
			SELECT id FROM provision_jobs
			WHERE (state = 'queued' AND run_at <= now())
			   OR (state = 'running' AND updated_at < now() - ($1 * interval '1 second'))
			ORDER BY run_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		int(StaleRunningAfter.Seconds()))

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, false, nil
		}
		return Job{}, false, fmt.Errorf("claiming provision job: %w", err)
	}
	return job, true, nil
}

// Complete marks a running job as succeeded.
func (q *PostgresQueue) Complete(ctx context.Context, jobID int64) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE provision_jobs
		SET state = 'succeeded', last_error = NULL, updated_at = now()
		WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("completing provision job %d: %w", jobID, err)
	}
	return nil
}

// Fail records a failed attempt. Below the attempt cap the job is requeued
// with backoff; at the cap it goes terminal.
func (q *PostgresQueue) Fail(ctx context.Context, job Job, cause error) error {
	delay := int(RetryDelay(job.Attempts).Seconds())
	msg := cause.Error()
	_, err := q.pool.Exec(ctx, `
		UPDATE provision_jobs
		SET state = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'queued' END,
		    run_at = now() + ($2 * interval '1 second'),
		    last_error = $3,
		    updated_at = now()
		WHERE id = $1`,
		job.ID, delay, msg)
	if err != nil {
		return fmt.Errorf("failing provision job %d: %w", job.ID, err)
	}
	return nil
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.TenantID, &j.State, &j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

// Ensure interface compliance.
var _ Queue = (*PostgresQueue)(nil)
