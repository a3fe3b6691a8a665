package queue

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

const deadJobsDDL = `
CREATE TABLE IF NOT EXISTS dead_jobs (
	id            TEXT PRIMARY KEY,
	channel       TEXT NOT NULL,
	name          TEXT NOT NULL,
	payload       BLOB,
	last_error    TEXT NOT NULL DEFAULT '',
	attempts_made INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);
`

// DeadLetter is a write-once sink for jobs whose retry budget is exhausted.
// Entries have no retry semantics and persist until externally drained.
type DeadLetter struct {
	db      *sql.DB
	channel string
	logger  *slog.Logger
}

// NewDeadLetter opens the dead-letter sink on the given channel.
func NewDeadLetter(db *sql.DB, channel string, logger *slog.Logger) (*DeadLetter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(deadJobsDDL); err != nil {
		return nil, common.WrapError(err, "create dead_jobs table")
	}
	return &DeadLetter{db: db, channel: channel, logger: logger}, nil
}

// Channel returns the sink's logical channel name.
func (d *DeadLetter) Channel() string {
	return d.channel
}

// Submit appends a copy of an exhausted job's name and payload, annotated
// with its last error and attempt count for manual inspection.
func (d *DeadLetter) Submit(ctx context.Context, name string, payload []byte, lastError string, attemptsMade int) (*entity.DeadLetterEntry, error) {
	entry := &entity.DeadLetterEntry{
		ID:           uuid.NewString(),
		Channel:      d.channel,
		Name:         name,
		Payload:      payload,
		LastError:    lastError,
		AttemptsMade: attemptsMade,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO dead_jobs (id, channel, name, payload, last_error, attempts_made, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Channel, entry.Name, entry.Payload,
		entry.LastError, entry.AttemptsMade, entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		d.logger.Error("dead-letter submit failed", "channel", d.channel, "name", name, "error", err)
		return nil, common.WrapError(err, "submit dead-letter entry")
	}
	d.logger.Info("job dead-lettered", "channel", d.channel, "entry_id", entry.ID, "name", name)
	return entry, nil
}

// List returns all entries on this channel, oldest first.
func (d *DeadLetter) List(ctx context.Context) ([]entity.DeadLetterEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, payload, last_error, attempts_made, created_at
		FROM dead_jobs WHERE channel = ? ORDER BY created_at`, d.channel)
	if err != nil {
		return nil, common.WrapError(err, "list dead-letter entries")
	}
	defer rows.Close()

	var entries []entity.DeadLetterEntry
	for rows.Next() {
		var (
			e         entity.DeadLetterEntry
			createdNS int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Payload, &e.LastError, &e.AttemptsMade, &createdNS); err != nil {
			return nil, common.WrapError(err, "scan dead-letter entry")
		}
		e.Channel = d.channel
		e.CreatedAt = time.Unix(0, createdNS).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns how many entries sit on this channel.
func (d *DeadLetter) Count(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dead_jobs WHERE channel = ?`, d.channel).Scan(&n)
	if err != nil {
		return 0, common.WrapError(err, "count dead-letter entries")
	}
	return n, nil
}
