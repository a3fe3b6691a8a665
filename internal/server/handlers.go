package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
)

// handleUpload accepts a multipart "file" field, applies the type/size
// pre-checks, stores the bytes under the upload dir, and hands the stored
// path to the enqueue gateway.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.upload.MaxFileSize)
	if err := r.ParseMultipartForm(s.upload.MaxFileSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, constants.ErrMsgFileTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, constants.ErrMsgFileRequired)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, constants.ErrMsgFileRequired)
		return
	}
	defer file.Close()

	ext := constants.NormalizeExt(filepath.Ext(header.Filename))
	contentType := header.Header.Get("Content-Type")
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		writeError(w, http.StatusBadRequest, constants.ErrMsgInvalidFileType)
		return
	}
	if _, ok := constants.AllowedMimeTypes[contentType]; !ok {
		writeError(w, http.StatusBadRequest, constants.ErrMsgInvalidFileType)
		return
	}
	if header.Size > s.upload.MaxFileSize {
		writeError(w, http.StatusRequestEntityTooLarge, constants.ErrMsgFileTooLarge)
		return
	}

	if err := os.MkdirAll(s.upload.Dir, 0o755); err != nil {
		s.logger.Error("upload dir create failed", "dir", s.upload.Dir, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	storedPath := filepath.Join(s.upload.Dir, uuid.NewString()+"."+ext)
	dst, err := os.Create(storedPath)
	if err != nil {
		s.logger.Error("upload file create failed", "path", storedPath, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(storedPath)
		s.logger.Error("upload file write failed", "path", storedPath, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	if err := dst.Close(); err != nil {
		s.logger.Error("upload file close failed", "path", storedPath, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	docID, err := s.gateway.Enqueue(r.Context(), storedPath, header.Filename)
	if err != nil {
		s.logger.Error("enqueue failed", "original_name", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documentId": docID,
		"status":     constants.StatusUploaded,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.docs.Get(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.logger.Error("document lookup failed", "doc_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.docs.GetStatus(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.logger.Error("status lookup failed", "doc_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": id, "status": status})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.export.ExportValidatedXLSX(r.Context())
	if err != nil {
		s.logger.Error("export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	entries, err := s.dlq.List(r.Context())
	if err != nil {
		s.logger.Error("dlq list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "dlq list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": s.dlq.Channel(),
		"entries": entries,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
