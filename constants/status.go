package constants

// DocumentStatus is the canonical lifecycle status for a stored document.
type DocumentStatus string

// Stable values (store these exact strings in the document store).
const (
	StatusUploaded   DocumentStatus = "uploaded"   // record created, job queued
	StatusProcessing DocumentStatus = "processing" // a worker picked up the job
	StatusValidated  DocumentStatus = "validated"  // metadata extracted and valid
	StatusFailed     DocumentStatus = "failed"     // terminal or retryable failure
)

// JobState is the state of a row in the jobs table.
type JobState string

const (
	JobStateWaiting JobState = "waiting" // queued or scheduled for retry
	JobStateActive  JobState = "active"  // claimed by a worker
	JobStateFailed  JobState = "failed"  // final attempt failed, awaiting DLQ routing
)
