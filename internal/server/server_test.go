package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/entity"
	"github.com/joseph-ayodele/docproc/internal/export"
	"github.com/joseph-ayodele/docproc/internal/ingest"
	"github.com/joseph-ayodele/docproc/internal/queue"
	"github.com/joseph-ayodele/docproc/internal/repository"
)

type fixture struct {
	server *Server
	docs   repository.DocumentRepository
	queue  *queue.Queue
	dlq    *queue.DeadLetter
}

func newFixture(t *testing.T, apiKey string) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	docs, err := repository.NewSQLiteDocumentRepository(db, logger)
	require.NoError(t, err)

	q, err := queue.New(db, constants.ChannelProcessing, logger)
	require.NoError(t, err)

	dlq, err := queue.NewDeadLetter(db, constants.ChannelDead, logger)
	require.NoError(t, err)

	gateway := ingest.NewGateway(docs, q, logger)
	exportSvc := export.NewService(docs, logger)

	srv := New(logger, gateway, docs, exportSvc, dlq,
		common.ServerConfig{Addr: ":0", APIKey: apiKey},
		common.UploadConfig{Dir: t.TempDir(), MaxFileSize: constants.FileSizeLimit},
	)
	return &fixture{server: srv, docs: docs, queue: q, dlq: dlq}
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthcheck(t *testing.T) {
	f := newFixture(t, "")
	rec := httptest.NewRecorder()

	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["message"])
}

func TestAPIKey_MissingKeyRejected(t *testing.T) {
	f := newFixture(t, "secret")
	rec := httptest.NewRecorder()

	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dlq", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKey_WrongKeyRejected(t *testing.T) {
	f := newFixture(t, "secret")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dlq", nil)
	req.Header.Set("X-API-Key", "wrong")

	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKey_EmptyConfiguredKeyDisablesCheck(t *testing.T) {
	f := newFixture(t, "")
	rec := httptest.NewRecorder()

	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dlq", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpload_Accepted(t *testing.T) {
	f := newFixture(t, "secret")
	body, contentType := multipartBody(t, "invoice.pdf", "application/pdf", []byte("%PDF-1.4 fake"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()

	f.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	docID, _ := resp["documentId"].(string)
	require.NotEmpty(t, docID)
	assert.Equal(t, string(constants.StatusUploaded), resp["status"])

	// The document record exists and a processing job is queued.
	doc, err := f.docs.Get(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, "invoice.pdf", doc.OriginalName)

	counts, err := f.queue.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.Counts{Waiting: 1}, counts)
}

func TestUpload_MissingFileField(t *testing.T) {
	f := newFixture(t, "")
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("note", "no file here"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()

	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, constants.ErrMsgFileRequired, decodeBody(t, rec)["error"])
}

func TestUpload_DisallowedExtension(t *testing.T) {
	f := newFixture(t, "")
	body, contentType := multipartBody(t, "script.exe", "application/pdf", []byte("MZ"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, constants.ErrMsgInvalidFileType, decodeBody(t, rec)["error"])
}

func TestUpload_DisallowedMimeType(t *testing.T) {
	f := newFixture(t, "")
	body, contentType := multipartBody(t, "invoice.pdf", "text/html", []byte("<html>"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, constants.ErrMsgInvalidFileType, decodeBody(t, rec)["error"])
}

func TestGetDocument_NotFound(t *testing.T) {
	f := newFixture(t, "")
	rec := httptest.NewRecorder()

	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.docs.Save(context.Background(), &entity.Document{
		ID:         "d1",
		Status:     constants.StatusProcessing,
		Timestamps: entity.Timestamps{UploadedAt: time.Now().UTC()},
	}))

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/d1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, "d1", resp["documentId"])
	assert.Equal(t, string(constants.StatusProcessing), resp["status"])
}

func TestExport_ReturnsWorkbook(t *testing.T) {
	f := newFixture(t, "")
	processedAt := time.Now().UTC()
	require.NoError(t, f.docs.Save(context.Background(), &entity.Document{
		ID:           "d1",
		Status:       constants.StatusValidated,
		OriginalName: "invoice.pdf",
		Timestamps:   entity.Timestamps{UploadedAt: processedAt.Add(-time.Minute), ProcessedAt: &processedAt},
		Metadata: &entity.InvoiceMetadata{
			InvoiceNumber: "INV-123", Date: "2025-07-03", Amount: 100.50,
			Customer: entity.Customer{Name: "ACME Corp"},
		},
	}))

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/export", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "invoices.xlsx")
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestListDLQ(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.dlq.Submit(context.Background(), constants.JobNameProcessDocument,
		[]byte(`{"docId":"d1"}`), "validation failed", 3)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dlq", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, constants.ChannelDead, resp["channel"])
	entries, ok := resp["entries"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 1)
}
