package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

// PGConfig carries pgx pool settings for the postgres-backed store.
type PGConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// OpenPostgres creates a pgx pool for the postgres document store.
func OpenPostgres(ctx context.Context, cfg PGConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to database", "dsn", cfg.DSN)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "docproc"

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	logger.Info("successfully connected to database")
	return pool, nil
}

// HealthCheck pings the pool to catch DSN issues early.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return pool.Ping(ctx)
}

const pgDocumentsDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	original_name TEXT NOT NULL DEFAULT '',
	file_path     TEXT NOT NULL DEFAULT '',
	uploaded_at   TIMESTAMPTZ,
	processed_at  TIMESTAMPTZ,
	metadata      JSONB,
	error         TEXT
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`

type pgDocumentRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPGDocumentRepository bootstraps the documents table and returns a
// repository backed by the pool.
func NewPGDocumentRepository(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) (DocumentRepository, error) {
	if _, err := pool.Exec(ctx, pgDocumentsDDL); err != nil {
		return nil, common.WrapError(err, "create documents table")
	}
	return &pgDocumentRepo{pool: pool, log: log}, nil
}

func (r *pgDocumentRepo) Save(ctx context.Context, doc *entity.Document) error {
	metadata, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	var uploadedAt *time.Time
	if !doc.Timestamps.UploadedAt.IsZero() {
		t := doc.Timestamps.UploadedAt.UTC()
		uploadedAt = &t
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO documents (id, status, original_name, file_path, uploaded_at, processed_at, metadata, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			original_name = EXCLUDED.original_name,
			file_path = EXCLUDED.file_path,
			uploaded_at = EXCLUDED.uploaded_at,
			processed_at = EXCLUDED.processed_at,
			metadata = EXCLUDED.metadata,
			error = EXCLUDED.error`,
		doc.ID, string(doc.Status), doc.OriginalName, doc.FilePath,
		uploadedAt, doc.Timestamps.ProcessedAt, metadata, doc.Error,
	)
	if err != nil {
		r.log.Error("document save failed", "doc_id", doc.ID, "error", err)
		return common.WrapError(err, "save document")
	}
	return nil
}

func (r *pgDocumentRepo) Get(ctx context.Context, id string) (*entity.Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, status, original_name, file_path, uploaded_at, processed_at, metadata, error
		FROM documents WHERE id = $1`, id)
	return scanPGDocument(row)
}

func (r *pgDocumentRepo) GetStatus(ctx context.Context, id string) (constants.DocumentStatus, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", common.WrapError(err, "get document status")
	}
	return constants.DocumentStatus(status), nil
}

func (r *pgDocumentRepo) SetStatus(ctx context.Context, id string, status constants.DocumentStatus, errMsg string) error {
	var errVal *string
	if errMsg != "" {
		errVal = &errMsg
	}
	// Partial write: error is only overwritten when a message is supplied.
	// Absent rows get a minimal synthesized record.
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET status = $2, error = COALESCE($3, error) WHERE id = $1`,
		id, string(status), errVal)
	if err != nil {
		r.log.Error("document status update failed", "doc_id", id, "error", err)
		return common.WrapError(err, "update document status")
	}
	if tag.RowsAffected() == 0 {
		_, err = r.pool.Exec(ctx,
			`INSERT INTO documents (id, status, error) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			id, string(status), errVal)
		if err != nil {
			r.log.Error("document status insert failed", "doc_id", id, "error", err)
			return common.WrapError(err, "insert document status")
		}
	}
	return nil
}

func (r *pgDocumentRepo) ListByStatus(ctx context.Context, status constants.DocumentStatus) ([]*entity.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, status, original_name, file_path, uploaded_at, processed_at, metadata, error
		FROM documents WHERE status = $1 ORDER BY uploaded_at`, string(status))
	if err != nil {
		return nil, common.WrapError(err, "list documents")
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanPGDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanPGDocument(row pgx.Row) (*entity.Document, error) {
	var (
		doc         entity.Document
		status      string
		uploadedAt  *time.Time
		processedAt *time.Time
		metadata    []byte
		errMsg      *string
	)
	err := row.Scan(&doc.ID, &status, &doc.OriginalName, &doc.FilePath,
		&uploadedAt, &processedAt, &metadata, &errMsg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "scan document")
	}
	doc.Status = constants.DocumentStatus(status)
	if uploadedAt != nil {
		doc.Timestamps.UploadedAt = *uploadedAt
	}
	doc.Timestamps.ProcessedAt = processedAt
	if len(metadata) > 0 {
		var md entity.InvoiceMetadata
		if err := json.Unmarshal(metadata, &md); err != nil {
			return nil, common.WrapError(err, "decode document metadata")
		}
		doc.Metadata = &md
	}
	doc.Error = errMsg
	return &doc, nil
}
