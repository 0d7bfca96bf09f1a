// Package orderdoc extracts structured order data from marketplace order
// documents and cuts combined shipping-label/invoice PDF pages apart.
//
// The Engine ties the pieces together: format detection and decoding
// (parser), page extraction (orders), persistence (store) and cropping
// (crop).
package orderdoc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brunobiangulo/orderdoc/crop"
	"github.com/brunobiangulo/orderdoc/orders"
	"github.com/brunobiangulo/orderdoc/parser"
	"github.com/brunobiangulo/orderdoc/store"
)

// Engine is the main entry point for order document processing.
type Engine interface {
	// Ingest parses a document, extracts its orders and line items and
	// stores them. Skips the parse if the content hash is unchanged.
	// If ctx is cancelled between pages, the pages extracted so far are
	// returned in Result along with ctx.Err() and nothing is stored.
	Ingest(ctx context.Context, path string, opts ...IngestOption) (*IngestResult, error)

	// IngestBatch ingests independent documents, parsing them in parallel.
	// Results are in input order; one failed document does not stop the rest.
	// A document cancelled midway keeps its partial Result next to Err.
	IngestBatch(ctx context.Context, paths []string, opts ...IngestOption) []IngestResult

	// Parse extracts a document without storing anything.
	Parse(ctx context.Context, path string) (*orders.DocumentResult, error)

	// Update re-checks a document by hash. Re-ingests if changed.
	Update(ctx context.Context, path string) (bool, error)

	// Crop cuts each page of a label/invoice PDF into two documents.
	// A zero SplitRatio in opts uses the configured default.
	Crop(ctx context.Context, rs io.ReadSeeker, opts crop.Options) ([]crop.PageOutput, error)

	// CombineCrops joins one role of cropped pages into a single PDF.
	CombineCrops(outputs []crop.PageOutput, role crop.Role) ([]byte, error)

	// LineItems returns the stored line items of a document.
	LineItems(ctx context.Context, documentID int64) ([]store.LineItem, error)

	// Delete removes a document and all associated data.
	Delete(ctx context.Context, documentID int64) error

	// ListDocuments returns all ingested documents.
	ListDocuments(ctx context.Context) ([]Document, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Document represents an ingested document.
type Document struct {
	ID          int64             `json:"id"`
	Path        string            `json:"path"`
	Filename    string            `json:"filename"`
	Format      string            `json:"format"`
	ContentHash string            `json:"content_hash"`
	ParseMethod string            `json:"parse_method"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

// IngestResult reports what Ingest did with one document.
type IngestResult struct {
	DocumentID int64                  `json:"document_id"`
	Path       string                 `json:"path"`
	BatchID    string                 `json:"batch_id"`
	Format     string                 `json:"format,omitempty"`
	Unchanged  bool                   `json:"unchanged"`
	Result     *orders.DocumentResult `json:"result,omitempty"`
	Err        error                  `json:"-"`
}

// IngestOption configures ingestion behavior.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	forceReparse bool
	format       string
	batchID      string
	metadata     map[string]string
}

// WithForceReparse forces re-parsing even if the hash hasn't changed.
func WithForceReparse() IngestOption {
	return func(o *ingestOptions) { o.forceReparse = true }
}

// WithFormat overrides content sniffing, e.g. for a CSV saved as .txt.
func WithFormat(format string) IngestOption {
	return func(o *ingestOptions) { o.format = format }
}

// WithBatchID groups parse log entries under a caller supplied ID.
func WithBatchID(id string) IngestOption {
	return func(o *ingestOptions) { o.batchID = id }
}

// WithMetadata attaches custom metadata to the ingested document.
func WithMetadata(metadata map[string]string) IngestOption {
	return func(o *ingestOptions) { o.metadata = metadata }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg     Config
	store   *store.Store
	parsers *parser.Registry
	orders  *orders.Parser
	cropper *crop.Cropper
	closed  atomic.Bool
}

// New creates an engine with the given configuration.
func New(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Crop.SplitRatio == 0 {
		cfg.Crop.SplitRatio = DefaultSplitRatio
	}
	oc, err := cfg.OrdersConfig()
	if err != nil {
		return nil, err
	}

	s, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return &engine{
		cfg:     cfg,
		store:   s,
		parsers: parser.NewRegistry(),
		orders:  orders.New(oc),
		cropper: crop.NewCropper(),
	}, nil
}

// decoded is a document read into pages but not yet extracted.
type decoded struct {
	absPath  string
	filename string
	format   string
	hash     string
	parsed   *parser.ParseResult
}

// decode resolves, hashes and parses one file. A nil result with a nil
// error means the stored copy is current.
func (e *engine) decode(ctx context.Context, path string, options *ingestOptions) (*decoded, int64, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, 0, fmt.Errorf("resolving path: %w", err)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return nil, 0, fmt.Errorf("hashing file: %w", err)
	}

	if !options.forceReparse {
		existing, err := e.store.GetDocumentByPath(ctx, absPath)
		if err == nil && existing.ContentHash == hash && existing.Status == "ready" {
			return nil, existing.ID, nil
		}
	}

	format := options.format
	if format == "" {
		if format, err = parser.DetectFormat(absPath); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
	}
	p, err := e.parsers.Get(format)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	filename := filepath.Base(absPath)
	slog.Info("ingest: parsing document", "file", filename, "format", format)
	parseStart := time.Now()
	parsed, err := p.Parse(ctx, absPath)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	slog.Info("ingest: parsing complete",
		"file", filename, "method", parsed.Method,
		"pages", len(parsed.Pages), "elapsed", time.Since(parseStart).Round(time.Millisecond))

	return &decoded{absPath: absPath, filename: filename, format: format, hash: hash, parsed: parsed}, 0, nil
}

// Ingest processes a document through the full pipeline.
func (e *engine) Ingest(ctx context.Context, path string, opts ...IngestOption) (*IngestResult, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	options := newIngestOptions(opts)
	start := time.Now()

	d, existingID, err := e.decode(ctx, path, options)
	if err != nil {
		e.logFailure(ctx, options.batchID, err)
		return nil, err
	}
	if d == nil {
		slog.Info("ingest: document unchanged", "path", path, "doc_id", existingID)
		return &IngestResult{DocumentID: existingID, Path: path, BatchID: options.batchID, Unchanged: true}, nil
	}

	return e.extract(ctx, d, options, start)
}

// extract parses the decoded pages and stores the result. A cancelled
// parse is returned unstored.
func (e *engine) extract(ctx context.Context, d *decoded, options *ingestOptions, start time.Time) (*IngestResult, error) {
	res, err := e.orders.ParseDocument(ctx, d.parsed.Pages)
	if err != nil {
		slog.Warn("ingest: extraction interrupted", "path", d.absPath,
			"pages_done", len(res.Pages), "error", err)
		return &IngestResult{Path: d.absPath, BatchID: options.batchID, Format: d.format, Result: res}, err
	}
	return e.persist(ctx, d, res, options, start)
}

// IngestBatch decodes each file, extracts all of them concurrently and
// stores the results in input order.
func (e *engine) IngestBatch(ctx context.Context, paths []string, opts ...IngestOption) []IngestResult {
	out := make([]IngestResult, len(paths))
	if e.closed.Load() {
		for i, p := range paths {
			out[i] = IngestResult{Path: p, Err: ErrStoreClosed}
		}
		return out
	}
	options := newIngestOptions(opts)
	start := time.Now()

	var (
		docs    []orders.Document
		pending []int
		decs    []*decoded
	)
	for i, path := range paths {
		out[i] = IngestResult{Path: path, BatchID: options.batchID}
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		d, existingID, err := e.decode(ctx, path, options)
		switch {
		case err != nil:
			out[i].Err = err
			e.logFailure(ctx, options.batchID, err)
		case d == nil:
			out[i].DocumentID = existingID
			out[i].Unchanged = true
		default:
			docs = append(docs, orders.Document{Name: d.filename, Pages: d.parsed.Pages})
			pending = append(pending, i)
			decs = append(decs, d)
		}
	}

	for j, br := range e.orders.ParseBatch(ctx, docs) {
		i := pending[j]
		if br.Err != nil {
			out[i].Format = decs[j].format
			out[i].Result = br.Result
			out[i].Err = br.Err
			continue
		}
		r, err := e.persist(ctx, decs[j], br.Result, options, start)
		if err != nil {
			out[i].Err = err
			continue
		}
		out[i] = *r
	}

	slog.Info("ingest: batch complete", "batch_id", options.batchID,
		"documents", len(paths), "parsed", len(docs),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return out
}

// persist writes the document record, its extraction output and a parse
// log entry.
func (e *engine) persist(ctx context.Context, d *decoded, res *orders.DocumentResult, options *ingestOptions, start time.Time) (*IngestResult, error) {
	meta := make(map[string]string, len(d.parsed.Metadata)+len(options.metadata))
	for k, v := range d.parsed.Metadata {
		meta[k] = v
	}
	for k, v := range options.metadata {
		meta[k] = v
	}
	var metadataJSON string
	if len(meta) > 0 {
		data, _ := json.Marshal(meta)
		metadataJSON = string(data)
	}

	docID, err := e.store.UpsertDocument(ctx, store.Document{
		Path:        d.absPath,
		Filename:    d.filename,
		Format:      d.format,
		ContentHash: d.hash,
		ParseMethod: d.parsed.Method,
		Status:      "processing",
		Metadata:    metadataJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("upserting document: %w", err)
	}

	if err := e.store.SaveParse(ctx, docID, toStoreParse(res)); err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "error")
		return nil, fmt.Errorf("saving parse: %w", err)
	}

	status := "ready"
	if res.Summary.Pages > 0 && res.Summary.FailedPages == res.Summary.Pages {
		status = "failed"
	}
	if err := e.store.UpdateDocumentStatus(ctx, docID, status); err != nil {
		return nil, fmt.Errorf("updating status: %w", err)
	}

	if err := e.store.LogParse(ctx, store.ParseLog{
		DocumentID:  docID,
		BatchID:     options.batchID,
		Pages:       res.Summary.Pages,
		FailedPages: res.Summary.FailedPages,
		Items:       res.Summary.Items,
		Rejections:  res.Summary.Rejections,
		DurationMS:  time.Since(start).Milliseconds(),
	}); err != nil {
		slog.Warn("ingest: parse log failed (non-fatal)", "doc_id", docID, "error", err)
	}

	slog.Info("ingest: document ready",
		"file", d.filename, "doc_id", docID, "status", status,
		"items", res.Summary.Items, "rejections", res.Summary.Rejections)

	return &IngestResult{
		DocumentID: docID,
		Path:       d.absPath,
		BatchID:    options.batchID,
		Format:     d.format,
		Result:     res,
	}, nil
}

func (e *engine) logFailure(ctx context.Context, batchID string, cause error) {
	if err := e.store.LogParse(ctx, store.ParseLog{BatchID: batchID, Error: cause.Error()}); err != nil {
		slog.Warn("ingest: parse log failed (non-fatal)", "error", err)
	}
}

// Parse extracts a document without storing it.
func (e *engine) Parse(ctx context.Context, path string) (*orders.DocumentResult, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	d, _, err := e.decode(ctx, path, &ingestOptions{forceReparse: true})
	if err != nil {
		return nil, err
	}
	return e.orders.ParseDocument(ctx, d.parsed.Pages)
}

// Update checks if a document has changed and re-ingests if needed.
func (e *engine) Update(ctx context.Context, path string) (bool, error) {
	if e.closed.Load() {
		return false, ErrStoreClosed
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolving path: %w", err)
	}

	doc, err := e.store.GetDocumentByPath(ctx, absPath)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrDocumentNotFound, absPath)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return false, fmt.Errorf("hashing file: %w", err)
	}
	if hash == doc.ContentHash {
		return false, nil
	}

	if _, err := e.Ingest(ctx, absPath, WithForceReparse()); err != nil {
		return false, err
	}
	return true, nil
}

// Crop cuts label and invoice documents out of each page.
func (e *engine) Crop(ctx context.Context, rs io.ReadSeeker, opts crop.Options) ([]crop.PageOutput, error) {
	if opts.SplitRatio == 0 {
		opts.SplitRatio = e.cfg.Crop.SplitRatio
	}
	if opts.LabelSize == nil {
		opts.LabelSize = e.cfg.Crop.LabelSize
	}
	if opts.InvoiceSize == nil {
		opts.InvoiceSize = e.cfg.Crop.InvoiceSize
	}
	out, err := e.cropper.CropDocument(ctx, rs, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return out, err
		}
		return out, fmt.Errorf("%w: %w", ErrCropFailed, err)
	}
	return out, nil
}

// CombineCrops merges the role's page documents in page order.
func (e *engine) CombineCrops(outputs []crop.PageOutput, role crop.Role) ([]byte, error) {
	data, err := e.cropper.Combine(outputs, role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCropFailed, err)
	}
	return data, nil
}

// LineItems returns the stored line items of a document.
func (e *engine) LineItems(ctx context.Context, documentID int64) ([]store.LineItem, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	if _, err := e.store.GetDocument(ctx, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
		}
		return nil, err
	}
	return e.store.LineItems(ctx, documentID)
}

// Delete removes a document and all its associated data.
func (e *engine) Delete(ctx context.Context, documentID int64) error {
	if e.closed.Load() {
		return ErrStoreClosed
	}
	err := e.store.DeleteDocument(ctx, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	return err
}

// ListDocuments returns all ingested documents.
func (e *engine) ListDocuments(ctx context.Context) ([]Document, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Document, len(docs))
	for i, d := range docs {
		result[i] = Document{
			ID:          d.ID,
			Path:        d.Path,
			Filename:    d.Filename,
			Format:      d.Format,
			ContentHash: d.ContentHash,
			ParseMethod: d.ParseMethod,
			Status:      d.Status,
			CreatedAt:   d.CreatedAt,
			UpdatedAt:   d.UpdatedAt,
		}
		if d.Metadata != "" {
			_ = json.Unmarshal([]byte(d.Metadata), &result[i].Metadata)
		}
	}
	return result, nil
}

// Store returns the underlying store for diagnostic access.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine. Calling it twice is a no-op.
func (e *engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	return e.store.Close()
}

func newIngestOptions(opts []IngestOption) *ingestOptions {
	options := &ingestOptions{}
	for _, o := range opts {
		o(options)
	}
	if options.batchID == "" {
		options.batchID = uuid.NewString()
	}
	return options
}

// toStoreParse flattens a document result into table rows.
func toStoreParse(res *orders.DocumentResult) store.Parse {
	var p store.Parse
	for _, pr := range res.Pages {
		fieldsJSON, _ := json.Marshal(pr.Fields)
		page := store.Page{
			PageNumber:    pr.PageNumber,
			OrderID:       pr.Context.OrderID,
			InvoiceNumber: pr.Context.InvoiceNumber,
			InvoiceDate:   pr.Fields.InvoiceDate.Value,
			GSTIN:         pr.Fields.GSTIN.Value,
			TrackingID:    pr.Fields.TrackingID.Value,
			PaymentType:   pr.Fields.PaymentType.Value,
			Fields:        string(fieldsJSON),
			Notes:         pr.Notes,
			Error:         pr.Error,
		}
		if amt := pr.Fields.GrandTotal.Amount; amt != nil {
			page.GrandTotal = decimal.NullDecimal{Decimal: *amt, Valid: true}
		}
		p.Pages = append(p.Pages, page)

		for _, it := range pr.Items {
			p.Items = append(p.Items, store.LineItem{
				PageNumber:     pr.PageNumber,
				RowIndex:       it.RowIndex,
				SKU:            it.SKU,
				Quantity:       it.Quantity,
				ProductName:    it.ProductName,
				QtySource:      string(it.QtySource),
				MatchedPattern: it.MatchedPattern,
				RawLine:        it.RawLine,
				OrderID:        pr.Context.OrderID,
				InvoiceNumber:  pr.Context.InvoiceNumber,
			})
		}
		for _, r := range pr.Rejections {
			p.Rejections = append(p.Rejections, store.Rejection{
				PageNumber: pr.PageNumber,
				RowIndex:   r.RowIndex,
				Candidate:  r.Candidate,
				Reason:     string(r.Reason),
				RawLine:    r.RawLine,
			})
		}
	}
	return p
}

// CropFile is a convenience wrapper that crops a PDF on disk.
func CropFile(ctx context.Context, e Engine, path string, opts crop.Options) ([]crop.PageOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return e.Crop(ctx, bytes.NewReader(data), opts)
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
