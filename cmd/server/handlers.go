package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/orderdoc"
	"github.com/brunobiangulo/orderdoc/crop"
	"github.com/brunobiangulo/orderdoc/parser"
)

const maxUpload = 100 << 20 // 100MB

type handler struct {
	engine    orderdoc.Engine
	uploadDir string
}

func newHandler(e orderdoc.Engine, uploadDir string) *handler {
	return &handler{engine: e, uploadDir: uploadDir}
}

// upload is a multipart file read into memory.
type upload struct {
	name   string
	format string
	data   []byte
}

func readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	// Sanitise filename to prevent path traversal.
	name := filepath.Base(header.Filename)
	format := r.FormValue("format")
	if format == "" {
		format = parser.DetectBytes(data, name)
	}
	return &upload{name: name, format: format, data: data}, nil
}

// POST /ingest
// Accepts multipart file upload or JSON with file path.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		up, err := readUpload(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload: expected multipart field 'file'")
			return
		}
		// Uploads are kept so the stored path stays valid for /update. The
		// same name and content hashes to the same document and is skipped.
		dst := filepath.Join(h.uploadDir, up.name)
		if err := os.WriteFile(dst, up.data, 0o644); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save file")
			slog.Error("saving uploaded file", "request_id", requestID(ctx), "error", err)
			return
		}
		opts := []orderdoc.IngestOption{orderdoc.WithFormat(up.format)}
		if r.FormValue("force") == "true" {
			opts = append(opts, orderdoc.WithForceReparse())
		}
		h.ingest(ctx, w, dst, opts)
		return
	}

	var req struct {
		Path     string            `json:"path"`
		Force    bool              `json:"force,omitempty"`
		Format   string            `json:"format,omitempty"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	// Validate that path is a real file (prevents directory traversal probing).
	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	var opts []orderdoc.IngestOption
	if req.Force {
		opts = append(opts, orderdoc.WithForceReparse())
	}
	if req.Format != "" {
		opts = append(opts, orderdoc.WithFormat(req.Format))
	}
	if req.Metadata != nil {
		opts = append(opts, orderdoc.WithMetadata(req.Metadata))
	}
	h.ingest(ctx, w, absPath, opts)
}

func (h *handler) ingest(ctx context.Context, w http.ResponseWriter, path string, opts []orderdoc.IngestOption) {
	if id := requestID(ctx); id != "" {
		opts = append(opts, orderdoc.WithBatchID(id))
	}
	res, err := h.engine.Ingest(ctx, path, opts...)
	if err != nil {
		writeEngineError(w, "ingestion failed", err)
		slog.Error("ingest error", "request_id", requestID(ctx), "path", path, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /parse
// Extracts an uploaded document without storing it.
func (h *handler) handleParse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	up, err := readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload: expected multipart field 'file'")
		return
	}
	tmp, err := os.CreateTemp(h.uploadDir, "parse-*."+up.format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating temp file", "error", err)
		return
	}
	defer os.Remove(tmp.Name())
	_, err = tmp.Write(up.data)
	tmp.Close()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save file")
		slog.Error("writing temp file", "error", err)
		return
	}

	res, err := h.engine.Parse(ctx, tmp.Name())
	if err != nil {
		writeEngineError(w, "parse failed", err)
		slog.Error("parse error", "request_id", requestID(ctx), "file", up.name, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /crop?role=label|invoice&ratio=0.45&pages=1,3
// Returns the role's pages of an uploaded PDF combined into one PDF.
func (h *handler) handleCrop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	q := r.URL.Query()
	role := crop.Role(q.Get("role"))
	if role == "" {
		role = crop.RoleLabel
	}
	if role != crop.RoleLabel && role != crop.RoleInvoice {
		writeError(w, http.StatusBadRequest, "role must be label or invoice")
		return
	}
	var opts crop.Options
	if v := q.Get("ratio"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid ratio")
			return
		}
		opts.SplitRatio = ratio
	}
	if v := q.Get("pages"); v != "" {
		for _, s := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid pages")
				return
			}
			opts.Pages = append(opts.Pages, n)
		}
	}

	up, err := readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload: expected multipart field 'file'")
		return
	}
	if up.format != "pdf" {
		writeError(w, http.StatusUnsupportedMediaType, "crop needs a PDF")
		return
	}

	outputs, err := h.engine.Crop(ctx, bytes.NewReader(up.data), opts)
	if err != nil {
		writeEngineError(w, "crop failed", err)
		slog.Error("crop error", "request_id", requestID(ctx), "file", up.name, "error", err)
		return
	}
	pdf, err := h.engine.CombineCrops(outputs, role)
	if err != nil {
		writeEngineError(w, "crop failed", err)
		slog.Error("combine error", "request_id", requestID(ctx), "file", up.name, "error", err)
		return
	}

	name := strings.TrimSuffix(up.name, filepath.Ext(up.name)) + "-" + string(role) + ".pdf"
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("X-Page-Count", strconv.Itoa(len(outputs)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// POST /update
func (h *handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	changed, err := h.engine.Update(ctx, req.Path)
	if err != nil {
		writeEngineError(w, "update failed", err)
		slog.Error("update error", "path", req.Path, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"path":    req.Path,
		"changed": changed,
	})
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.ListDocuments(r.Context())
	if err != nil {
		writeEngineError(w, "failed to list documents", err)
		slog.Error("list documents error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
	})
}

// GET /documents/{id}/items
func (h *handler) handleLineItems(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	items, err := h.engine.LineItems(r.Context(), id)
	if err != nil {
		writeEngineError(w, "failed to load line items", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": id,
		"items":       items,
	})
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	if err := h.engine.Delete(r.Context(), id); err != nil {
		writeEngineError(w, "delete failed", err)
		slog.Error("delete error", "document_id", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /skus
// Quantity per SKU across all stored documents.
func (h *handler) handleSKUTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.engine.Store().SKUTotals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sku totals")
		slog.Error("sku totals error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skus": totals})
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Store().DBStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		slog.Error("stats error", "error", err)
		return
	}
	recent, err := h.engine.Store().RecentParses(r.Context(), 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		slog.Error("recent parses error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts":        stats,
		"recent_parses": recent,
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return 0, false
	}
	return id, true
}

// writeEngineError maps engine sentinel errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orderdoc.ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orderdoc.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, orderdoc.ErrParsingFailed), errors.Is(err, orderdoc.ErrCropFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, orderdoc.ErrStoreClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status != http.StatusInternalServerError {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
