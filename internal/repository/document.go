package repository

import (
	"context"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

// DocumentRepository persists per-document processing state.
//
// Save is a full overwrite of the record. SetStatus is a partial write that
// touches status (and error, when non-empty) only; if the record does not
// exist yet it synthesizes a minimal one rather than fail, so a status update
// can never be lost to a missing row.
type DocumentRepository interface {
	Save(ctx context.Context, doc *entity.Document) error
	Get(ctx context.Context, id string) (*entity.Document, error)
	GetStatus(ctx context.Context, id string) (constants.DocumentStatus, error)
	SetStatus(ctx context.Context, id string, status constants.DocumentStatus, errMsg string) error
	ListByStatus(ctx context.Context, status constants.DocumentStatus) ([]*entity.Document, error)
}
