package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

// OpenSQLite opens (or creates) the local sqlite database used for the
// document store and queue durability.
func OpenSQLite(path string, logger *slog.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open sqlite database", "path", path, "error", err)
		return nil, err
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent workers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		logger.Error("failed to ping sqlite database", "path", path, "error", err)
		return nil, err
	}
	logger.Info("sqlite database opened", "path", path)
	return db, nil
}

const sqliteDocumentsDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	original_name TEXT NOT NULL DEFAULT '',
	file_path     TEXT NOT NULL DEFAULT '',
	uploaded_at   TEXT NOT NULL DEFAULT '',
	processed_at  TEXT,
	metadata      TEXT,
	error         TEXT
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`

type sqliteDocumentRepo struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQLiteDocumentRepository bootstraps the documents table and returns a
// repository backed by it.
func NewSQLiteDocumentRepository(db *sql.DB, log *slog.Logger) (DocumentRepository, error) {
	if _, err := db.Exec(sqliteDocumentsDDL); err != nil {
		return nil, common.WrapError(err, "create documents table")
	}
	return &sqliteDocumentRepo{db: db, log: log}, nil
}

func (r *sqliteDocumentRepo) Save(ctx context.Context, doc *entity.Document) error {
	metadata, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (id, status, original_name, file_path, uploaded_at, processed_at, metadata, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			original_name = excluded.original_name,
			file_path = excluded.file_path,
			uploaded_at = excluded.uploaded_at,
			processed_at = excluded.processed_at,
			metadata = excluded.metadata,
			error = excluded.error`,
		doc.ID, string(doc.Status), doc.OriginalName, doc.FilePath,
		formatTime(doc.Timestamps.UploadedAt), formatTimePtr(doc.Timestamps.ProcessedAt),
		metadata, doc.Error,
	)
	if err != nil {
		r.log.Error("document save failed", "doc_id", doc.ID, "error", err)
		return common.WrapError(err, "save document")
	}
	return nil
}

func (r *sqliteDocumentRepo) Get(ctx context.Context, id string) (*entity.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, original_name, file_path, uploaded_at, processed_at, metadata, error
		FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

func (r *sqliteDocumentRepo) GetStatus(ctx context.Context, id string) (constants.DocumentStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", common.WrapError(err, "get document status")
	}
	return constants.DocumentStatus(status), nil
}

func (r *sqliteDocumentRepo) SetStatus(ctx context.Context, id string, status constants.DocumentStatus, errMsg string) error {
	var (
		res sql.Result
		err error
	)
	if errMsg != "" {
		res, err = r.db.ExecContext(ctx,
			`UPDATE documents SET status = ?, error = ? WHERE id = ?`, string(status), errMsg, id)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE documents SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		r.log.Error("document status update failed", "doc_id", id, "error", err)
		return common.WrapError(err, "update document status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return common.WrapError(err, "update document status")
	}
	if affected == 0 {
		// No record yet: synthesize a minimal one so the status write is
		// never dropped.
		var errVal *string
		if errMsg != "" {
			errVal = &errMsg
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO documents (id, status, error) VALUES (?, ?, ?)`, id, string(status), errVal)
		if err != nil {
			r.log.Error("document status insert failed", "doc_id", id, "error", err)
			return common.WrapError(err, "insert document status")
		}
	}
	return nil
}

func (r *sqliteDocumentRepo) ListByStatus(ctx context.Context, status constants.DocumentStatus) ([]*entity.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, original_name, file_path, uploaded_at, processed_at, metadata, error
		FROM documents WHERE status = ? ORDER BY uploaded_at`, string(status))
	if err != nil {
		return nil, common.WrapError(err, "list documents")
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*entity.Document, error) {
	var (
		doc         entity.Document
		status      string
		uploadedAt  string
		processedAt sql.NullString
		metadata    sql.NullString
		errMsg      sql.NullString
	)
	err := row.Scan(&doc.ID, &status, &doc.OriginalName, &doc.FilePath,
		&uploadedAt, &processedAt, &metadata, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "scan document")
	}
	doc.Status = constants.DocumentStatus(status)
	doc.Timestamps.UploadedAt = parseTime(uploadedAt)
	if processedAt.Valid && processedAt.String != "" {
		t := parseTime(processedAt.String)
		doc.Timestamps.ProcessedAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		var md entity.InvoiceMetadata
		if err := json.Unmarshal([]byte(metadata.String), &md); err != nil {
			return nil, common.WrapError(err, "decode document metadata")
		}
		doc.Metadata = &md
	}
	if errMsg.Valid {
		doc.Error = &errMsg.String
	}
	return &doc, nil
}

func marshalMetadata(md *entity.InvoiceMetadata) (*string, error) {
	if md == nil {
		return nil, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil, common.WrapError(err, "encode document metadata")
	}
	s := string(b)
	return &s, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
