package constants

// Logical channel identifiers. Operational tooling keys off these names, so
// they are fixed.
const (
	ChannelProcessing = "document-processing"
	ChannelDead       = "document-processing-dead"
)

// JobNameProcessDocument is the task name under which upload jobs are
// submitted to the processing channel.
const JobNameProcessDocument = "process-doc"

// Queue retry defaults: three attempts with exponential backoff starting at
// three seconds and doubling.
const (
	DefaultMaxAttempts       = 3
	DefaultBackoffMultiplier = 2.0
)
