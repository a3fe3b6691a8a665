package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/docproc/internal/entity"
	"github.com/joseph-ayodele/docproc/internal/pipeline"
	"github.com/joseph-ayodele/docproc/internal/queue"
)

// Runtime pulls jobs from the processing queue, executes the pipeline, and
// routes exhausted jobs to the dead-letter queue. Per job it moves through
// received → executing → completed | failed; a failure below the attempt
// ceiling is re-queued by the queue itself, a failure at the ceiling is
// copied to the DLQ and only then removed from the main queue so no job is
// silently lost.
type Runtime struct {
	queue   *queue.Queue
	dlq     *queue.DeadLetter
	pipe    *pipeline.Pipeline
	logger  *slog.Logger
	workers int
}

type Option func(*Runtime)

// WithWorkers sets how many jobs may execute concurrently.
func WithWorkers(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.workers = n
		}
	}
}

func NewRuntime(q *queue.Queue, dlq *queue.DeadLetter, pipe *pipeline.Pipeline, logger *slog.Logger, opts ...Option) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{
		queue:   q,
		dlq:     dlq,
		pipe:    pipe,
		logger:  logger,
		workers: 4,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run consumes the queue until ctx is cancelled. It blocks.
func (r *Runtime) Run(ctx context.Context) {
	r.logger.Info("worker runtime starting", "channel", r.queue.Channel(), "workers", r.workers)
	r.queue.Run(ctx, r.workers, r.handle, r.onFailed)
	r.logger.Info("worker runtime stopped", "channel", r.queue.Channel())
}

// handle decodes and boundary-validates the payload, then runs the pipeline.
// Nothing may escape to crash the worker; errors feed the queue's retry
// bookkeeping.
func (r *Runtime) handle(ctx context.Context, job *entity.Job) error {
	var payload entity.JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode job payload: %w", err)
	}
	if payload.DocID == "" || payload.FilePath == "" {
		return fmt.Errorf("malformed job payload: docId=%q path=%q", payload.DocID, payload.FilePath)
	}
	return r.pipe.Process(ctx, payload)
}

// onFailed fires on every failed attempt. Exhausted jobs relocate to the DLQ;
// removal from the main queue happens only after the DLQ insert succeeds.
func (r *Runtime) onFailed(ctx context.Context, job *entity.Job, cause error) {
	if job == nil {
		// Defensive: a failure notification without a job reference is
		// logged and dropped.
		r.logger.Error("failed event triggered but job is undefined", "error", cause)
		return
	}

	if job.AttemptsMade < job.MaxAttempts {
		r.logger.Info("job failed, will retry",
			"job_id", job.ID, "attempt", job.AttemptsMade, "max_attempts", job.MaxAttempts)
		return
	}

	r.logger.Error("job failed after max retries, moving to dead letter queue",
		"job_id", job.ID, "attempts", job.AttemptsMade, "error", cause)

	if _, err := r.dlq.Submit(ctx, job.Name, job.Payload, job.LastError, job.AttemptsMade); err != nil {
		// Leave the job parked in the main queue rather than lose it.
		r.logger.Error("dead-letter submit failed, keeping job in main queue",
			"job_id", job.ID, "error", err)
		return
	}
	if err := r.queue.Remove(ctx, job.ID); err != nil {
		r.logger.Error("exhausted job removal failed", "job_id", job.ID, "error", err)
	}
}
