package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/entity"
	"github.com/joseph-ayodele/docproc/internal/metadata"
	"github.com/joseph-ayodele/docproc/internal/ocr"
	"github.com/joseph-ayodele/docproc/internal/repository"
)

// MetadataValidator checks extracted metadata against the invoice schema.
type MetadataValidator interface {
	Validate(md entity.InvoiceMetadata) error
}

// Pipeline runs one document through OCR, field extraction, schema validation
// and persistence, mapping each outcome to a document status transition.
//
// Failure semantics: every error is persisted onto the document as
// status=failed before being returned, so the user-visible state is never
// stale relative to the last attempt. A returned error engages the queue's
// retry machinery; low OCR confidence returns nil because it is a terminal
// business outcome, not a transient fault.
type Pipeline struct {
	logger          *slog.Logger
	docs            repository.DocumentRepository
	recognizer      ocr.Recognizer
	validator       MetadataValidator
	threshold       float32
	removeOnSuccess bool
	readFile        func(string) ([]byte, error)
}

type Option func(*Pipeline)

// WithConfidenceThreshold overrides the minimum OCR confidence.
func WithConfidenceThreshold(t float32) Option {
	return func(p *Pipeline) {
		if t > 0 {
			p.threshold = t
		}
	}
}

// WithSourceRemoval deletes the uploaded file after a document validates.
// Cleanup is best-effort and independent of processing correctness.
func WithSourceRemoval(enabled bool) Option {
	return func(p *Pipeline) {
		p.removeOnSuccess = enabled
	}
}

// WithFileReader swaps the file reader, for tests.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(p *Pipeline) {
		if read != nil {
			p.readFile = read
		}
	}
}

func New(logger *slog.Logger, docs repository.DocumentRepository, recognizer ocr.Recognizer, validator MetadataValidator, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		logger:     logger,
		docs:       docs,
		recognizer: recognizer,
		validator:  validator,
		threshold:  constants.OCRConfidenceThreshold,
		readFile:   os.ReadFile,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process executes the pipeline for one job payload. The processing status is
// persisted before any other I/O, so a mid-crash leaves visible in-flight
// state and status transitions within a document stay strictly sequential.
func (p *Pipeline) Process(ctx context.Context, job entity.JobPayload) error {
	if err := p.docs.SetStatus(ctx, job.DocID, constants.StatusProcessing, ""); err != nil {
		return common.WrapError(err, "mark processing")
	}

	data, err := p.readFile(job.FilePath)
	if err != nil {
		return p.fail(ctx, job.DocID, fmt.Errorf("read file %s: %w", job.FilePath, err))
	}

	res, err := p.recognizer.Recognize(ctx, data)
	if err != nil {
		return p.fail(ctx, job.DocID, common.WrapError(err, "ocr"))
	}

	if res.Confidence <= p.threshold {
		// Terminal business outcome: persisted as failed, never retried.
		p.logger.Warn("ocr confidence below threshold",
			"doc_id", job.DocID, "confidence", res.Confidence, "threshold", p.threshold)
		if err := p.docs.SetStatus(ctx, job.DocID, constants.StatusFailed, constants.ErrMsgLowOCRConfidence); err != nil {
			return common.WrapError(err, "mark low-confidence failure")
		}
		return nil
	}

	md := metadata.Extract(res.Text)
	if err := p.validator.Validate(md); err != nil {
		return p.fail(ctx, job.DocID, err)
	}

	// Re-read the record to preserve the immutable fields the initial write
	// set. A missing record (defensive) falls back to the job payload.
	uploadedAt := time.Now().UTC()
	filePath := job.FilePath
	if existing, gerr := p.docs.Get(ctx, job.DocID); gerr == nil {
		if !existing.Timestamps.UploadedAt.IsZero() {
			uploadedAt = existing.Timestamps.UploadedAt
		}
		if existing.FilePath != "" {
			filePath = existing.FilePath
		}
	} else if !errors.Is(gerr, common.ErrNotFound) {
		return p.fail(ctx, job.DocID, common.WrapError(gerr, "load document"))
	}

	processedAt := time.Now().UTC()
	doc := &entity.Document{
		ID:           job.DocID,
		Status:       constants.StatusValidated,
		OriginalName: job.OriginalName,
		FilePath:     filePath,
		Timestamps: entity.Timestamps{
			UploadedAt:  uploadedAt,
			ProcessedAt: &processedAt,
		},
		Metadata: &md,
	}
	if err := p.docs.Save(ctx, doc); err != nil {
		return p.fail(ctx, job.DocID, common.WrapError(err, "save validated document"))
	}

	if p.removeOnSuccess {
		if err := os.Remove(filePath); err != nil {
			p.logger.Warn("source file cleanup failed", "doc_id", job.DocID, "path", filePath, "error", err)
		}
	}

	p.logger.Info("document processed successfully",
		"doc_id", job.DocID,
		"invoice_number", md.InvoiceNumber,
		"amount", md.Amount,
		"customer", md.Customer.Name)
	return nil
}

// fail persists the failure onto the document, then returns the error so the
// queue's retry bookkeeping engages.
func (p *Pipeline) fail(ctx context.Context, docID string, cause error) error {
	if err := p.docs.SetStatus(ctx, docID, constants.StatusFailed, cause.Error()); err != nil {
		p.logger.Error("failure status write failed", "doc_id", docID, "error", err)
	}
	p.logger.Error("document processing failed", "doc_id", docID, "error", cause)
	return cause
}
