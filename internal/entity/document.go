package entity

import (
	"time"

	"github.com/joseph-ayodele/docproc/constants"
)

// Timestamps groups the lifecycle timestamps of a document. UploadedAt is set
// once at creation; ProcessedAt only on the transition to validated.
type Timestamps struct {
	UploadedAt  time.Time  `json:"uploadedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// Document is the persisted record tracking one uploaded file's processing
// lifecycle. OriginalName and FilePath are immutable after the initial write;
// later updates are status/metadata-only.
type Document struct {
	ID           string                   `json:"id"`
	Status       constants.DocumentStatus `json:"status"`
	OriginalName string                   `json:"originalName"`
	FilePath     string                   `json:"file_path"`
	Timestamps   Timestamps               `json:"timestamps"`
	Metadata     *InvoiceMetadata         `json:"metadata,omitempty"`
	Error        *string                  `json:"error,omitempty"`
}
