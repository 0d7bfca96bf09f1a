package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Document represents a row in the documents table.
type Document struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	Format      string `json:"format"`
	ContentHash string `json:"content_hash"`
	ParseMethod string `json:"parse_method"`
	Status      string `json:"status"`
	Metadata    string `json:"metadata,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Page represents a row in the pages table.
type Page struct {
	ID            int64               `json:"id"`
	DocumentID    int64               `json:"document_id"`
	PageNumber    int                 `json:"page_number"`
	OrderID       string              `json:"order_id"`
	InvoiceNumber string              `json:"invoice_number"`
	InvoiceDate   string              `json:"invoice_date"`
	GSTIN         string              `json:"gstin"`
	TrackingID    string              `json:"tracking_id"`
	PaymentType   string              `json:"payment_type"`
	GrandTotal    decimal.NullDecimal `json:"grand_total"`
	Fields        string              `json:"fields,omitempty"` // JSON object
	Notes         []string            `json:"notes"`
	Error         string              `json:"error,omitempty"`
}

// LineItem represents a row in the line_items table.
type LineItem struct {
	ID             int64  `json:"id"`
	DocumentID     int64  `json:"document_id"`
	PageNumber     int    `json:"page_number"`
	RowIndex       int    `json:"row_index"`
	SKU            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	ProductName    string `json:"product_name"`
	QtySource      string `json:"qty_source"`
	MatchedPattern string `json:"matched_pattern,omitempty"`
	RawLine        string `json:"raw_line"`
	OrderID        string `json:"order_id"`
	InvoiceNumber  string `json:"invoice_number"`
	Filename       string `json:"filename,omitempty"`
}

// Rejection represents a row in the rejections table.
type Rejection struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	PageNumber int    `json:"page_number"`
	RowIndex   int    `json:"row_index"`
	Candidate  string `json:"candidate"`
	Reason     string `json:"reason"`
	RawLine    string `json:"raw_line"`
}

// ParseLog represents a row in the parse_log table.
type ParseLog struct {
	DocumentID  int64  `json:"document_id"`
	BatchID     string `json:"batch_id,omitempty"`
	Pages       int    `json:"pages"`
	FailedPages int    `json:"failed_pages"`
	Items       int    `json:"items"`
	Rejections  int    `json:"rejections"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// Parse is everything one parse run produced for a document.
type Parse struct {
	Pages      []Page
	Items      []LineItem
	Rejections []Rejection
}

// Store wraps the SQLite database for all orderdoc persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Document operations ---

const documentColumns = `id, path, filename, format, content_hash, parse_method, status, metadata, created_at, updated_at`

// UpsertDocument inserts or updates a document record. Returns the document ID.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (path, filename, format, content_hash, parse_method, status, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			format = excluded.format,
			content_hash = excluded.content_hash,
			parse_method = excluded.parse_method,
			status = excluded.status,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
	`, doc.Path, doc.Filename, doc.Format, doc.ContentHash, doc.ParseMethod, doc.Status, nullString(doc.Metadata))
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	// If UPSERT did an UPDATE, LastInsertId may not reflect the existing row.
	if id == 0 {
		row := s.db.QueryRowContext(ctx, "SELECT id FROM documents WHERE path = ?", doc.Path)
		if err := row.Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetDocumentByPath retrieves a document by its file path.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE path = ?", path))
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus updates just the status field.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id)
	return err
}

// DeleteDocument removes a document. Pages, line items and rejections
// cascade; parse_log rows keep their counts with a null document.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDocumentData removes all extraction output for a document but
// keeps the document record itself.
func (s *Store) DeleteDocumentData(ctx context.Context, docID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return deleteDocumentData(ctx, tx, docID)
	})
}

func deleteDocumentData(ctx context.Context, tx *sql.Tx, docID int64) error {
	for _, table := range []string{"line_items", "rejections", "pages"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE document_id = ?", docID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

// --- Parse output ---

// SaveParse replaces the extraction output of a document with p in one
// transaction.
func (s *Store) SaveParse(ctx context.Context, docID int64, p Parse) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteDocumentData(ctx, tx, docID); err != nil {
			return err
		}

		pageStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pages (document_id, page_number, order_id, invoice_number, invoice_date,
				gstin, tracking_id, payment_type, grand_total, fields, notes, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer pageStmt.Close()
		for _, pg := range p.Pages {
			notes, err := json.Marshal(pg.Notes)
			if err != nil {
				return err
			}
			if _, err := pageStmt.ExecContext(ctx, docID, pg.PageNumber,
				nullString(pg.OrderID), nullString(pg.InvoiceNumber), nullString(pg.InvoiceDate),
				nullString(pg.GSTIN), nullString(pg.TrackingID), nullString(pg.PaymentType),
				pg.GrandTotal, nullString(pg.Fields), string(notes), nullString(pg.Error)); err != nil {
				return fmt.Errorf("inserting page %d: %w", pg.PageNumber, err)
			}
		}

		itemStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO line_items (document_id, page_number, row_index, sku, quantity, product_name,
				qty_source, matched_pattern, raw_line, order_id, invoice_number)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer itemStmt.Close()
		for _, it := range p.Items {
			if _, err := itemStmt.ExecContext(ctx, docID, it.PageNumber, it.RowIndex, it.SKU,
				it.Quantity, it.ProductName, it.QtySource, nullString(it.MatchedPattern),
				it.RawLine, nullString(it.OrderID), nullString(it.InvoiceNumber)); err != nil {
				return fmt.Errorf("inserting line item %s: %w", it.SKU, err)
			}
		}

		rejStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO rejections (document_id, page_number, row_index, candidate, reason, raw_line)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer rejStmt.Close()
		for _, r := range p.Rejections {
			if _, err := rejStmt.ExecContext(ctx, docID, r.PageNumber, r.RowIndex,
				r.Candidate, r.Reason, r.RawLine); err != nil {
				return fmt.Errorf("inserting rejection %s: %w", r.Candidate, err)
			}
		}
		return nil
	})
}

// Pages returns the stored pages of a document in page order.
func (s *Store) Pages(ctx context.Context, docID int64) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, page_number, order_id, invoice_number, invoice_date,
			gstin, tracking_id, payment_type, grand_total, fields, notes, error
		FROM pages WHERE document_id = ? ORDER BY page_number
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Page
	for rows.Next() {
		var (
			p                                               Page
			orderID, invNo, invDate, gstin, track, pay, fld sql.NullString
			notes, errText                                  sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.PageNumber, &orderID, &invNo, &invDate,
			&gstin, &track, &pay, &p.GrandTotal, &fld, &notes, &errText); err != nil {
			return nil, err
		}
		p.OrderID, p.InvoiceNumber, p.InvoiceDate = orderID.String, invNo.String, invDate.String
		p.GSTIN, p.TrackingID, p.PaymentType = gstin.String, track.String, pay.String
		p.Fields, p.Error = fld.String, errText.String
		if notes.Valid && notes.String != "" {
			if err := json.Unmarshal([]byte(notes.String), &p.Notes); err != nil {
				return nil, fmt.Errorf("decoding notes of page %d: %w", p.PageNumber, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const lineItemSelect = `
	SELECT li.id, li.document_id, li.page_number, li.row_index, li.sku, li.quantity,
		li.product_name, li.qty_source, li.matched_pattern, li.raw_line,
		li.order_id, li.invoice_number, d.filename
	FROM line_items li
	JOIN documents d ON d.id = li.document_id`

// LineItems returns the accepted line items of a document in page and
// row order.
func (s *Store) LineItems(ctx context.Context, docID int64) ([]LineItem, error) {
	return s.queryLineItems(ctx,
		lineItemSelect+" WHERE li.document_id = ? ORDER BY li.page_number, li.row_index, li.id", docID)
}

// LineItemsBySKU returns every stored line item with the given SKU across
// all documents.
func (s *Store) LineItemsBySKU(ctx context.Context, sku string) ([]LineItem, error) {
	return s.queryLineItems(ctx,
		lineItemSelect+" WHERE li.sku = ? ORDER BY li.document_id, li.page_number, li.row_index", sku)
}

// LineItemsByOrder returns the line items recorded under an order ID.
func (s *Store) LineItemsByOrder(ctx context.Context, orderID string) ([]LineItem, error) {
	return s.queryLineItems(ctx,
		lineItemSelect+" WHERE li.order_id = ? ORDER BY li.document_id, li.page_number, li.row_index", orderID)
}

func (s *Store) queryLineItems(ctx context.Context, query string, args ...any) ([]LineItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LineItem
	for rows.Next() {
		var (
			it                                 LineItem
			name, pattern, raw, orderID, invNo sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.DocumentID, &it.PageNumber, &it.RowIndex, &it.SKU,
			&it.Quantity, &name, &it.QtySource, &pattern, &raw, &orderID, &invNo,
			&it.Filename); err != nil {
			return nil, err
		}
		it.ProductName, it.MatchedPattern, it.RawLine = name.String, pattern.String, raw.String
		it.OrderID, it.InvoiceNumber = orderID.String, invNo.String
		out = append(out, it)
	}
	return out, rows.Err()
}

// Rejections returns the rejected SKU candidates of a document.
func (s *Store) Rejections(ctx context.Context, docID int64) ([]Rejection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, page_number, row_index, candidate, reason, raw_line
		FROM rejections WHERE document_id = ? ORDER BY page_number, row_index, id
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rejection
	for rows.Next() {
		var r Rejection
		var raw sql.NullString
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.PageNumber, &r.RowIndex,
			&r.Candidate, &r.Reason, &raw); err != nil {
			return nil, err
		}
		r.RawLine = raw.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// SKUQuantity is the total ordered quantity of one SKU.
type SKUQuantity struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Lines    int    `json:"lines"`
}

// SKUTotals sums quantities per SKU across all stored documents, largest
// quantity first. This is the pick list for a batch of labels.
func (s *Store) SKUTotals(ctx context.Context) ([]SKUQuantity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, SUM(quantity), COUNT(*)
		FROM line_items GROUP BY sku ORDER BY SUM(quantity) DESC, sku
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SKUQuantity
	for rows.Next() {
		var q SKUQuantity
		if err := rows.Scan(&q.SKU, &q.Quantity, &q.Lines); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// --- Parse log ---

// LogParse records one parse run.
func (s *Store) LogParse(ctx context.Context, l ParseLog) error {
	var docID any
	if l.DocumentID > 0 {
		docID = l.DocumentID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parse_log (document_id, batch_id, pages, failed_pages, items, rejections, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, docID, nullString(l.BatchID), l.Pages, l.FailedPages, l.Items, l.Rejections,
		l.DurationMS, nullString(l.Error))
	return err
}

// RecentParses returns the last n parse runs, newest first.
func (s *Store) RecentParses(ctx context.Context, n int) ([]ParseLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(document_id, 0), COALESCE(batch_id, ''), pages, failed_pages, items,
			rejections, duration_ms, COALESCE(error, ''), created_at
		FROM parse_log ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ParseLog
	for rows.Next() {
		var l ParseLog
		if err := rows.Scan(&l.DocumentID, &l.BatchID, &l.Pages, &l.FailedPages, &l.Items,
			&l.Rejections, &l.DurationMS, &l.Error, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DBStats holds aggregate counts across the database.
type DBStats struct {
	Documents  int `json:"documents"`
	Pages      int `json:"pages"`
	LineItems  int `json:"line_items"`
	Rejections int `json:"rejections"`
	Parses     int `json:"parses"`
}

// DBStats returns row counts of the main tables.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM pages", &stats.Pages},
		{"SELECT COUNT(*) FROM line_items", &stats.LineItems},
		{"SELECT COUNT(*) FROM rejections", &stats.Rejections},
		{"SELECT COUNT(*) FROM parse_log", &stats.Parses},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*Document, error) {
	doc := &Document{}
	var metadata sql.NullString
	if err := r.Scan(&doc.ID, &doc.Path, &doc.Filename, &doc.Format,
		&doc.ContentHash, &doc.ParseMethod, &doc.Status,
		&metadata, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Metadata = metadata.String
	return doc, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
