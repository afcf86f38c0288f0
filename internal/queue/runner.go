// Package queue runs the durable background jobs: CRM publications,
// follow-up publications, contract PDFs, emails and inbound CRM syncs.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/observability"
	"github.com/homeward/backoffice-go/internal/infra/resilience"
	"github.com/homeward/backoffice-go/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("queue")

// HandlerFunc executes one job. The returned bytes are stored as the job
// result.
type HandlerFunc func(ctx context.Context, job domain.Job) ([]byte, error)

// DeadLetterFunc is called once when a job is given up on.
type DeadLetterFunc func(ctx context.Context, job domain.Job, err error)

// Config holds the runner parameters.
type Config struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	// Lease bounds one execution; jobs locked longer are requeued by
	// RequeueStale.
	Lease time.Duration
}

// Runner claims due jobs and executes them on a bounded worker pool.
type Runner struct {
	jobs     store.JobStore
	cfg      Config
	handlers map[domain.JobKind]HandlerFunc
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
	wg       sync.WaitGroup

	OnDead DeadLetterFunc
}

func NewRunner(jobs store.JobStore, cfg Config, metrics *observability.Metrics, logger *zap.Logger) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 8
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	return &Runner{
		jobs:     jobs,
		cfg:      cfg,
		handlers: map[domain.JobKind]HandlerFunc{},
		bulkhead: resilience.NewBulkhead(cfg.Workers),
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source (tests).
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Register installs the handler of a job kind.
func (r *Runner) Register(kind domain.JobKind, h HandlerFunc) {
	r.handlers[kind] = h
}

// Run polls until ctx is done, then waits for in-flight jobs.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("queue runner started",
		zap.Int("workers", r.cfg.Workers),
		zap.Duration("poll_interval", r.cfg.PollInterval),
	)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.poll(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("queue poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.wg.Wait()
			r.logger.Info("queue runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) poll(ctx context.Context) error {
	free := r.bulkhead.Free()
	if free == 0 {
		return nil
	}
	claimed, err := r.jobs.ClaimJobs(ctx, free, r.now())
	if err != nil {
		return fmt.Errorf("claim jobs: %w", err)
	}
	for _, job := range claimed {
		if err := r.bulkhead.Acquire(ctx); err != nil {
			// Lease expiry returns the job to pending.
			return err
		}
		r.wg.Add(1)
		go func(job domain.Job) {
			defer r.wg.Done()
			defer r.bulkhead.Release()
			// Shutdown must not abort a job half way.
			r.execute(context.WithoutCancel(ctx), job)
		}(job)
	}
	return nil
}

// Drain executes every due job on the calling goroutine until none is
// left. Tests and the `--mode=once` maintenance path use it.
func (r *Runner) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		claimed, err := r.jobs.ClaimJobs(ctx, r.cfg.Workers, r.now())
		if err != nil {
			return n, err
		}
		if len(claimed) == 0 {
			return n, nil
		}
		for _, job := range claimed {
			r.execute(ctx, job)
			n++
		}
	}
}

// RequeueStale returns expired leases to pending.
func (r *Runner) RequeueStale(ctx context.Context) {
	n, err := r.jobs.RequeueStaleJobs(ctx, r.now().Add(-r.cfg.Lease))
	if err != nil {
		r.logger.Error("requeue stale jobs failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Warn("requeued stale jobs", zap.Int("count", n))
	}
}

func (r *Runner) execute(ctx context.Context, job domain.Job) {
	ctx, span := tracer.Start(ctx, "job "+string(job.Kind))
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.Int("job.attempt", job.Attempts),
	)
	defer span.End()

	log := r.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("job_kind", string(job.Kind)),
		zap.Int("attempt", job.Attempts),
	)
	start := time.Now()

	h, ok := r.handlers[job.Kind]
	if !ok {
		r.dead(ctx, job, fmt.Errorf("no handler for job kind %q", job.Kind), log, start)
		return
	}

	jctx, cancel := context.WithTimeout(ctx, r.cfg.Lease)
	result, err := h(jctx, job)
	cancel()

	switch {
	case err == nil || errors.Is(err, ErrSkip):
		outcome := observability.OutcomeSucceeded
		if err != nil {
			outcome = observability.OutcomeSkipped
			log.Info("job skipped", zap.Error(err))
		}
		if cerr := r.jobs.CompleteJob(ctx, job.ID, result); cerr != nil {
			log.Error("complete job failed", zap.Error(cerr))
			return
		}
		r.metrics.RecordJob(job.Kind, outcome, time.Since(start))

	case Classify(err) == Terminal:
		log.Error("job failed permanently", zap.Error(err))
		r.dead(ctx, job, err, log, start)

	case job.Attempts >= r.maxAttempts(job):
		log.Error("job retries exhausted", zap.Error(err))
		r.dead(ctx, job, err, log, start)

	default:
		wait := resilience.Backoff(job.Attempts-1, r.cfg.BaseBackoff, r.cfg.MaxBackoff)
		log.Warn("job failed, retrying", zap.Duration("backoff", wait), zap.Error(err))
		if rerr := r.jobs.RetryJob(ctx, job.ID, r.now().Add(wait), err.Error()); rerr != nil {
			log.Error("reschedule job failed", zap.Error(rerr))
			return
		}
		r.metrics.RecordJob(job.Kind, observability.OutcomeRetried, time.Since(start))
	}
}

func (r *Runner) maxAttempts(job domain.Job) int {
	if job.MaxAttempts > 0 {
		return job.MaxAttempts
	}
	return r.cfg.MaxAttempts
}

func (r *Runner) dead(ctx context.Context, job domain.Job, cause error, log *zap.Logger, start time.Time) {
	if err := r.jobs.KillJob(ctx, job.ID, cause.Error()); err != nil {
		log.Error("dead-letter job failed", zap.Error(err))
		return
	}
	r.metrics.RecordJob(job.Kind, observability.OutcomeDead, time.Since(start))
	if r.OnDead != nil {
		r.OnDead(ctx, job, cause)
	}
}
