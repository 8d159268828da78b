package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner executes one provisioning run. Implemented by provisioning.Provisioner.
type Runner interface {
	Run(ctx context.Context, tenantID int64) error
}

// WorkerConfig tunes the polling worker.
type WorkerConfig struct {
	PollInterval time.Duration
	Concurrency  int
	JobTimeout   time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	return c
}

// Worker polls the queue and runs claimed jobs with bounded concurrency.
// Distinct tenants provision in parallel; the queue's live-job dedup already
// guarantees at most one run per tenant.
type Worker struct {
	queue  Queue
	runner Runner
	log    *zap.Logger
	cfg    WorkerConfig

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewWorker constructs a Worker with required dependencies.
func NewWorker(queue Queue, runner Runner, log *zap.Logger, cfg WorkerConfig) *Worker {
	if queue == nil {
		panic("queue is required")
	}
	if runner == nil {
		panic("runner is required")
	}
	if log == nil {
		panic("logger is required")
	}
	cfg = cfg.withDefaults()
	return &Worker{
		queue:  queue,
		runner: runner,
		log:    log,
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.Concurrency),
	}
}

// Start blocks, polling for due jobs until ctx is cancelled, then waits for
// in-flight runs to finish.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("provisioning worker started",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Int("concurrency", w.cfg.Concurrency))

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.log.Info("provisioning worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain claims jobs until the queue is empty or all slots are busy.
func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			return
		default:
			return
		}

		job, ok, err := w.queue.Claim(ctx)
		if err != nil {
			<-w.sem
			w.log.Error("claiming provision job", zap.Error(err))
			return
		}
		if !ok {
			<-w.sem
			return
		}

		w.wg.Add(1)
		go func(job Job) {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.runJob(ctx, job)
		}(job)
	}
}

// runJob executes one claimed job. The run gets its own timeout and survives
// worker shutdown so a half-finished setup is not abandoned mid-step.
func (w *Worker) runJob(ctx context.Context, job Job) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancel()

	log := w.log.With(
		zap.Int64("job_id", job.ID),
		zap.Int64("tenant_id", job.TenantID),
		zap.Int("attempt", job.Attempts))

	if err := w.runner.Run(runCtx, job.TenantID); err != nil {
		log.Error("provision run failed", zap.Error(err))
		if failErr := w.queue.Fail(runCtx, job, err); failErr != nil {
			log.Error("recording job failure", zap.Error(failErr))
		}
		return
	}

	if err := w.queue.Complete(runCtx, job.ID); err != nil {
		log.Error("recording job completion", zap.Error(err))
		return
	}
	log.Info("provision run completed")
}
