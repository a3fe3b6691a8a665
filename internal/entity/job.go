package entity

import (
	"time"

	"github.com/joseph-ayodele/docproc/constants"
)

// Job is one unit of queued work referencing a document's processing task.
// AttemptsMade counts deliveries, including the one currently executing.
type Job struct {
	ID           string             `json:"id"`
	Channel      string             `json:"channel"`
	Name         string             `json:"name"`
	Payload      []byte             `json:"payload"`
	AttemptsMade int                `json:"attempts_made"`
	MaxAttempts  int                `json:"max_attempts"`
	State        constants.JobState `json:"state"`
	LastError    string             `json:"last_error,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	NextRunAt    time.Time          `json:"next_run_at"`
}

// JobPayload is the document reference carried by a processing job. JSON keys
// are part of the wire contract with the upload path.
type JobPayload struct {
	DocID        string `json:"docId"`
	FilePath     string `json:"path"`
	OriginalName string `json:"originalName"`
}

// DeadLetterEntry is a copy of a job whose retry budget was exhausted.
// Entries persist until externally drained.
type DeadLetterEntry struct {
	ID           string    `json:"id"`
	Channel      string    `json:"channel"`
	Name         string    `json:"name"`
	Payload      []byte    `json:"payload"`
	LastError    string    `json:"last_error,omitempty"`
	AttemptsMade int       `json:"attempts_made"`
	CreatedAt    time.Time `json:"created_at"`
}
