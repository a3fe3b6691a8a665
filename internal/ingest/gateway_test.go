package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/entity"
	"github.com/joseph-ayodele/docproc/internal/queue"
	"github.com/joseph-ayodele/docproc/internal/repository"
)

func openTestDeps(t *testing.T) (repository.DocumentRepository, *queue.Queue) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "ingest.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	docs, err := repository.NewSQLiteDocumentRepository(db, logger)
	require.NoError(t, err)

	q, err := queue.New(db, constants.ChannelProcessing, logger)
	require.NoError(t, err)
	return docs, q
}

// failingDocs rejects every save, for ordering tests.
type failingDocs struct {
	repository.DocumentRepository
}

func (failingDocs) Save(context.Context, *entity.Document) error {
	return errors.New("store unavailable")
}

func TestEnqueue_CreatesRecordAndJob(t *testing.T) {
	docs, q := openTestDeps(t)
	g := NewGateway(docs, q, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	docID, err := g.Enqueue(ctx, "uploads/abc.pdf", "invoice.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, docID)

	doc, err := docs.Get(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusUploaded, doc.Status)
	assert.Equal(t, "invoice.pdf", doc.OriginalName)
	assert.Equal(t, "uploads/abc.pdf", doc.FilePath)
	assert.Nil(t, doc.Metadata, "metadata stays empty until validation")
	assert.WithinDuration(t, time.Now().UTC(), doc.Timestamps.UploadedAt, time.Minute)
	assert.Nil(t, doc.Timestamps.ProcessedAt)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, queue.Counts{Waiting: 1}, counts)
}

func TestEnqueue_JobPayloadReferencesDocument(t *testing.T) {
	docs, q := openTestDeps(t)
	g := NewGateway(docs, q, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docID, err := g.Enqueue(ctx, "uploads/abc.pdf", "invoice.pdf")
	require.NoError(t, err)

	payloads := make(chan entity.JobPayload, 1)
	go q.Run(ctx, 1, func(_ context.Context, job *entity.Job) error {
		assert.Equal(t, constants.JobNameProcessDocument, job.Name)
		var p entity.JobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return err
		}
		payloads <- p
		return nil
	}, nil)

	select {
	case p := <-payloads:
		assert.Equal(t, docID, p.DocID)
		assert.Equal(t, "uploads/abc.pdf", p.FilePath)
		assert.Equal(t, "invoice.pdf", p.OriginalName)
	case <-time.After(5 * time.Second):
		t.Fatal("job was never delivered")
	}
}

func TestEnqueue_UniqueDocumentIDs(t *testing.T) {
	docs, q := openTestDeps(t)
	g := NewGateway(docs, q, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id, err := g.Enqueue(ctx, "uploads/x.pdf", "x.pdf")
		require.NoError(t, err)
		assert.False(t, seen[id], "document ids must be unique")
		seen[id] = true
	}
}

func TestEnqueue_RecordWriteFailureSubmitsNoJob(t *testing.T) {
	docs, q := openTestDeps(t)
	g := NewGateway(failingDocs{docs}, q, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := g.Enqueue(context.Background(), "uploads/x.pdf", "x.pdf")
	require.Error(t, err)

	counts, err := q.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.Counts{}, counts, "no job without a document record")
}
