package queue

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

// BackoffPolicy is an exponential retry schedule: the nth retry waits
// InitialDelay * Multiplier^(n-1).
type BackoffPolicy struct {
	InitialDelay time.Duration
	Multiplier   float64
}

// Delay returns the wait before the next delivery, given how many attempts
// have already been made.
func (p BackoffPolicy) Delay(attemptsMade int) time.Duration {
	if p.InitialDelay <= 0 || attemptsMade < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	return time.Duration(float64(p.InitialDelay) * math.Pow(mult, float64(attemptsMade-1)))
}

// SubmitOptions override the queue defaults for a single job.
type SubmitOptions struct {
	MaxAttempts int
	Backoff     BackoffPolicy
}

// Handler executes one delivered job. A non-nil error counts the attempt as
// failed and engages the retry schedule.
type Handler func(ctx context.Context, job *entity.Job) error

// FailedListener is notified after every failed attempt, final or not. The
// job reference may be nil when a failure event carries no job; listeners
// must tolerate that.
type FailedListener func(ctx context.Context, job *entity.Job, cause error)

// Counts is a snapshot of the queue's job states, for tests and operational
// introspection.
type Counts struct {
	Waiting int
	Active  int
	Failed  int
}

const jobsDDL = `
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	channel          TEXT NOT NULL,
	name             TEXT NOT NULL,
	payload          BLOB,
	attempts_made    INTEGER NOT NULL DEFAULT 0,
	max_attempts     INTEGER NOT NULL,
	state            TEXT NOT NULL,
	last_error       TEXT NOT NULL DEFAULT '',
	backoff_delay_ns INTEGER NOT NULL,
	backoff_mult     REAL NOT NULL,
	created_at       INTEGER NOT NULL,
	next_run_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_channel_state ON jobs(channel, state, next_run_at);
`

// Queue is a durable work queue with at-least-once delivery. Jobs are rows in
// the jobs table; delivery claims a row waiting→active, success deletes it,
// failure either re-schedules it with backoff or parks it in state failed for
// the failed listener to route. Rows left active by a crash are re-queued on
// the next startup, which is where redelivery beyond a process lifetime comes
// from.
type Queue struct {
	db       *sql.DB
	channel  string
	logger   *slog.Logger
	defaults SubmitOptions
	poll     time.Duration
	wake     chan struct{}
}

type Option func(*Queue)

// WithDefaults sets the submit defaults applied when a job carries no
// explicit options.
func WithDefaults(opts SubmitOptions) Option {
	return func(q *Queue) {
		if opts.MaxAttempts > 0 {
			q.defaults.MaxAttempts = opts.MaxAttempts
		}
		if opts.Backoff.InitialDelay > 0 {
			q.defaults.Backoff.InitialDelay = opts.Backoff.InitialDelay
		}
		if opts.Backoff.Multiplier >= 1 {
			q.defaults.Backoff.Multiplier = opts.Backoff.Multiplier
		}
	}
}

// WithPollInterval sets how long an idle worker waits before re-checking for
// due jobs. Retries scheduled in the future become visible within one poll.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.poll = d
		}
	}
}

// New opens the queue over db for the given channel, bootstrapping the jobs
// table and re-queuing jobs a previous process left mid-flight.
func New(db *sql.DB, channel string, logger *slog.Logger, opts ...Option) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		db:      db,
		channel: channel,
		logger:  logger,
		defaults: SubmitOptions{
			MaxAttempts: constants.DefaultMaxAttempts,
			Backoff: BackoffPolicy{
				InitialDelay: 3 * time.Second,
				Multiplier:   constants.DefaultBackoffMultiplier,
			},
		},
		poll: 250 * time.Millisecond,
		wake: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(q)
	}
	if _, err := db.Exec(jobsDDL); err != nil {
		return nil, common.WrapError(err, "create jobs table")
	}
	if err := q.requeueOrphans(); err != nil {
		return nil, err
	}
	return q, nil
}

// Channel returns the queue's logical channel name.
func (q *Queue) Channel() string {
	return q.channel
}

// requeueOrphans returns jobs stranded in state active by a crashed process
// to the waiting state, due immediately.
func (q *Queue) requeueOrphans() error {
	res, err := q.db.Exec(
		`UPDATE jobs SET state = ?, next_run_at = ? WHERE channel = ? AND state = ?`,
		string(constants.JobStateWaiting), time.Now().UnixNano(),
		q.channel, string(constants.JobStateActive),
	)
	if err != nil {
		return common.WrapError(err, "requeue orphaned jobs")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		q.logger.Warn("re-queued jobs left mid-flight by a previous run", "channel", q.channel, "count", n)
	}
	return nil
}

// Submit enqueues a durable job. opts may be nil to take the queue defaults.
func (q *Queue) Submit(ctx context.Context, name string, payload []byte, opts *SubmitOptions) (*entity.Job, error) {
	o := q.defaults
	if opts != nil {
		if opts.MaxAttempts > 0 {
			o.MaxAttempts = opts.MaxAttempts
		}
		if opts.Backoff.InitialDelay > 0 {
			o.Backoff.InitialDelay = opts.Backoff.InitialDelay
		}
		if opts.Backoff.Multiplier >= 1 {
			o.Backoff.Multiplier = opts.Backoff.Multiplier
		}
	}

	now := time.Now().UTC()
	job := &entity.Job{
		ID:          uuid.NewString(),
		Channel:     q.channel,
		Name:        name,
		Payload:     payload,
		MaxAttempts: o.MaxAttempts,
		State:       constants.JobStateWaiting,
		CreatedAt:   now,
		NextRunAt:   now,
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, channel, name, payload, attempts_made, max_attempts, state,
			last_error, backoff_delay_ns, backoff_mult, created_at, next_run_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, '', ?, ?, ?, ?)`,
		job.ID, job.Channel, job.Name, job.Payload, job.MaxAttempts,
		string(job.State), int64(o.Backoff.InitialDelay), o.Backoff.Multiplier,
		now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		q.logger.Error("job submit failed", "channel", q.channel, "name", name, "error", err)
		return nil, common.WrapError(err, "submit job")
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.logger.Info("job submitted", "channel", q.channel, "job_id", job.ID, "name", name)
	return job, nil
}

// delivery pairs a claimed job with its stored backoff schedule.
type delivery struct {
	job     *entity.Job
	backoff BackoffPolicy
}

// claim atomically takes the earliest due waiting job, incrementing its
// attempt count. Returns (nil, nil) when nothing is due.
func (q *Queue) claim(ctx context.Context) (*delivery, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.WrapError(err, "begin claim")
	}
	defer func() { _ = tx.Rollback() }()

	var (
		job       entity.Job
		state     string
		delayNS   int64
		mult      float64
		createdNS int64
		nextNS    int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, payload, attempts_made, max_attempts, state, last_error,
			backoff_delay_ns, backoff_mult, created_at, next_run_at
		FROM jobs
		WHERE channel = ? AND state = ? AND next_run_at <= ?
		ORDER BY next_run_at LIMIT 1`,
		q.channel, string(constants.JobStateWaiting), time.Now().UnixNano(),
	).Scan(&job.ID, &job.Name, &job.Payload, &job.AttemptsMade, &job.MaxAttempts,
		&state, &job.LastError, &delayNS, &mult, &createdNS, &nextNS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, common.WrapError(err, "select due job")
	}

	job.Channel = q.channel
	job.AttemptsMade++
	job.State = constants.JobStateActive
	job.CreatedAt = time.Unix(0, createdNS).UTC()
	job.NextRunAt = time.Unix(0, nextNS).UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET state = ?, attempts_made = ? WHERE id = ?`,
		string(constants.JobStateActive), job.AttemptsMade, job.ID,
	); err != nil {
		return nil, common.WrapError(err, "claim job")
	}
	if err := tx.Commit(); err != nil {
		return nil, common.WrapError(err, "commit claim")
	}

	return &delivery{
		job:     &job,
		backoff: BackoffPolicy{InitialDelay: time.Duration(delayNS), Multiplier: mult},
	}, nil
}

// Run consumes the queue with a pool of workers until ctx is cancelled. Each
// job executes to completion on one worker; there is no mid-flight abort.
func (q *Queue) Run(ctx context.Context, workers int, h Handler, onFailed FailedListener) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			q.logger.Info("worker started", "worker_id", workerID, "channel", q.channel)
			for {
				select {
				case <-ctx.Done():
					q.logger.Info("worker stopped", "worker_id", workerID)
					return
				default:
				}

				d, err := q.claim(ctx)
				if err != nil {
					if ctx.Err() == nil {
						q.logger.Error("claim failed", "worker_id", workerID, "error", err)
					}
					q.idle(ctx)
					continue
				}
				if d == nil {
					q.idle(ctx)
					continue
				}
				q.execute(ctx, workerID, d, h, onFailed)
			}
		}(i + 1)
	}
	wg.Wait()
}

// idle waits for a submit notification, the poll interval, or cancellation.
func (q *Queue) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-q.wake:
	case <-time.After(q.poll):
	}
}

func (q *Queue) execute(ctx context.Context, workerID int, d *delivery, h Handler, onFailed FailedListener) {
	job := d.job
	err := h(ctx, job)

	// Bookkeeping writes must land even if ctx is cancelled mid-attempt.
	bctx := context.WithoutCancel(ctx)

	if err == nil {
		if _, derr := q.db.ExecContext(bctx, `DELETE FROM jobs WHERE id = ?`, job.ID); derr != nil {
			q.logger.Error("completed job removal failed", "job_id", job.ID, "error", derr)
		}
		q.logger.Info("job completed", "worker_id", workerID, "job_id", job.ID, "attempt", job.AttemptsMade)
		return
	}

	job.LastError = err.Error()
	if job.AttemptsMade < job.MaxAttempts {
		delay := d.backoff.Delay(job.AttemptsMade)
		next := time.Now().UTC().Add(delay)
		if _, uerr := q.db.ExecContext(bctx,
			`UPDATE jobs SET state = ?, last_error = ?, next_run_at = ? WHERE id = ?`,
			string(constants.JobStateWaiting), job.LastError, next.UnixNano(), job.ID,
		); uerr != nil {
			q.logger.Error("retry scheduling failed", "job_id", job.ID, "error", uerr)
		}
		job.State = constants.JobStateWaiting
		job.NextRunAt = next
		q.logger.Warn("job attempt failed, will retry",
			"worker_id", workerID, "job_id", job.ID,
			"attempt", job.AttemptsMade, "max_attempts", job.MaxAttempts,
			"delay", delay, "error", err)
	} else {
		if _, uerr := q.db.ExecContext(bctx,
			`UPDATE jobs SET state = ?, last_error = ? WHERE id = ?`,
			string(constants.JobStateFailed), job.LastError, job.ID,
		); uerr != nil {
			q.logger.Error("failed-state update failed", "job_id", job.ID, "error", uerr)
		}
		job.State = constants.JobStateFailed
		q.logger.Error("job failed on final attempt",
			"worker_id", workerID, "job_id", job.ID,
			"attempt", job.AttemptsMade, "error", err)
	}

	if onFailed != nil {
		onFailed(bctx, job, err)
	}
}

// Remove deletes a job from the queue, whatever its state.
func (q *Queue) Remove(ctx context.Context, jobID string) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE id = ? AND channel = ?`, jobID, q.channel)
	if err != nil {
		return common.WrapError(err, "remove job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Get returns a job by id, or common.ErrNotFound.
func (q *Queue) Get(ctx context.Context, jobID string) (*entity.Job, error) {
	var (
		job       entity.Job
		state     string
		createdNS int64
		nextNS    int64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, payload, attempts_made, max_attempts, state, last_error, created_at, next_run_at
		FROM jobs WHERE id = ? AND channel = ?`, jobID, q.channel,
	).Scan(&job.ID, &job.Name, &job.Payload, &job.AttemptsMade, &job.MaxAttempts,
		&state, &job.LastError, &createdNS, &nextNS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get job")
	}
	job.Channel = q.channel
	job.State = constants.JobState(state)
	job.CreatedAt = time.Unix(0, createdNS).UTC()
	job.NextRunAt = time.Unix(0, nextNS).UTC()
	return &job, nil
}

// Counts reports how many jobs sit in each state on this channel.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM jobs WHERE channel = ? GROUP BY state`, q.channel)
	if err != nil {
		return Counts{}, common.WrapError(err, "count jobs")
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return Counts{}, common.WrapError(err, "scan job counts")
		}
		switch constants.JobState(state) {
		case constants.JobStateWaiting:
			c.Waiting = n
		case constants.JobStateActive:
			c.Active = n
		case constants.JobStateFailed:
			c.Failed = n
		}
	}
	return c, rows.Err()
}
