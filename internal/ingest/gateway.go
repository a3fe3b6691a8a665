package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/entity"
	"github.com/joseph-ayodele/docproc/internal/queue"
	"github.com/joseph-ayodele/docproc/internal/repository"
)

// Gateway is the boundary the upload path calls to hand a stored file to the
// processing core.
type Gateway struct {
	docs   repository.DocumentRepository
	queue  *queue.Queue
	logger *slog.Logger
}

func NewGateway(docs repository.DocumentRepository, q *queue.Queue, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{docs: docs, queue: q, logger: logger}
}

// Enqueue creates the initial document record, then submits the processing
// job referencing it. The record is written first so a status query never
// races ahead of the document's existence.
func (g *Gateway) Enqueue(ctx context.Context, filePath, originalName string) (string, error) {
	docID := uuid.NewString()

	doc := &entity.Document{
		ID:           docID,
		Status:       constants.StatusUploaded,
		OriginalName: originalName,
		FilePath:     filePath,
		Timestamps:   entity.Timestamps{UploadedAt: time.Now().UTC()},
	}
	if err := g.docs.Save(ctx, doc); err != nil {
		return "", common.WrapError(err, "save initial document")
	}

	payload, err := json.Marshal(entity.JobPayload{
		DocID:        docID,
		FilePath:     filePath,
		OriginalName: originalName,
	})
	if err != nil {
		return "", common.WrapError(err, "encode job payload")
	}

	if _, err := g.queue.Submit(ctx, constants.JobNameProcessDocument, payload, nil); err != nil {
		return "", common.WrapError(err, "submit processing job")
	}

	g.logger.Info("document uploaded and queued for processing",
		"doc_id", docID, "original_name", originalName)
	return docID, nil
}
