package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"r53gate/internal/model"
	"r53gate/internal/service"
)

var errNoFile = errors.New("no file part in upload")

// Importer runs a CSV stream through the record pipeline.
type Importer interface {
	Import(ctx context.Context, zoneID string, r io.Reader) ([]model.ImportResult, error)
}

type BulkHandler struct {
	dns       DNS
	importer  Importer
	audit     AuditStore
	uploadDir string
	maxBytes  int64
	log       *slog.Logger
}

func NewBulkHandler(dns DNS, importer Importer, audit AuditStore, uploadDir string, maxBytes int64, logger *slog.Logger) *BulkHandler {
	return &BulkHandler{
		dns:       dns,
		importer:  importer,
		audit:     audit,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		log:       logger,
	}
}

// Upload creates one record per CSV row of the multipart "file" field and
// returns the per-row outcomes in input order.
func (h *BulkHandler) Upload(w http.ResponseWriter, r *http.Request) {
	zoneID := r.URL.Query().Get("zoneId")
	if zoneID == "" {
		writeError(w, http.StatusBadRequest, "zoneId is required")
		return
	}
	if !h.dns.ManagesZone(zoneID) {
		writeError(w, http.StatusForbidden, "Zone is not managed by this gateway")
		return
	}

	var body *limitedBody
	if h.maxBytes > 0 {
		if r.ContentLength > h.maxBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		body = &limitedBody{ReadCloser: http.MaxBytesReader(w, r.Body, h.maxBytes)}
		r.Body = body
	}

	path, err := h.spool(r)
	if path != "" {
		defer func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				h.log.Warn("failed to remove upload", "path", path, "error", err)
			}
		}()
	}
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr), err != nil && body != nil && body.tripped:
		writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
		return
	case errors.Is(err, errNoFile):
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	case err != nil:
		logFailure(h.log, r, "spooling upload failed", err)
		writeError(w, http.StatusInternalServerError, "Failed to process CSV file")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		logFailure(h.log, r, "reopening upload failed", err)
		writeError(w, http.StatusInternalServerError, "Failed to process CSV file")
		return
	}
	defer f.Close()

	results, err := h.importer.Import(r.Context(), zoneID, f)
	if errors.Is(err, service.ErrBadHeader) {
		writeError(w, http.StatusBadRequest, "CSV header must include name, type and value columns")
		return
	}
	if err != nil {
		logFailure(h.log, r, "csv processing failed", err)
		writeError(w, http.StatusInternalServerError, "Failed to process CSV file")
		return
	}

	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}
	audit(h.audit, h.log, r, model.AuditEntry{
		Action: "bulk_upload",
		ZoneID: zoneID,
		Detail: fmt.Sprintf("rows=%d failed=%d", len(results), failed),
	})

	writeJSON(w, http.StatusOK, results)
}

// spool copies the "file" part to a temporary file under uploadDir and
// returns its path. A non-empty path is returned whenever a file was created.
func (h *BulkHandler) spool(r *http.Request) (string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", fmt.Errorf("%w: %w", errNoFile, err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", errNoFile
		}
		if err != nil {
			return "", fmt.Errorf("%w: %w", errNoFile, err)
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		tmp, err := os.CreateTemp(h.uploadDir, "bulk-upload-*.csv")
		if err != nil {
			_ = part.Close()
			return "", fmt.Errorf("create temp file: %w", err)
		}
		_, copyErr := io.Copy(tmp, part)
		closeErr := tmp.Close()
		_ = part.Close()
		if copyErr != nil {
			return tmp.Name(), copyErr
		}
		if closeErr != nil {
			return tmp.Name(), closeErr
		}
		return tmp.Name(), nil
	}
}

// limitedBody remembers whether the size limit was hit. The multipart reader
// reports a limit hit inside part headers as a plain protocol error, so the
// *http.MaxBytesError cannot always be recovered from the returned chain.
type limitedBody struct {
	io.ReadCloser
	tripped bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		b.tripped = true
	}
	return n, err
}
