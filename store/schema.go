package store

// schemaSQL is the DDL for all tables. Every statement is idempotent so it
// can run on each open; later changes go through migrations.
const schemaSQL = `
-- Document registry with hash-based change detection
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    format TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    parse_method TEXT NOT NULL,
    status TEXT DEFAULT 'pending',
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per parsed page with its header fields
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    order_id TEXT,
    invoice_number TEXT,
    invoice_date TEXT,
    gstin TEXT,
    tracking_id TEXT,
    payment_type TEXT,
    grand_total TEXT,
    fields JSON,
    notes JSON,
    error TEXT,
    UNIQUE(document_id, page_number)
);

-- Accepted line items
CREATE TABLE IF NOT EXISTS line_items (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    row_index INTEGER NOT NULL,
    sku TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    product_name TEXT,
    qty_source TEXT NOT NULL,
    matched_pattern TEXT,
    raw_line TEXT,
    order_id TEXT,
    invoice_number TEXT
);

-- SKU candidates that failed validation
CREATE TABLE IF NOT EXISTS rejections (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    row_index INTEGER NOT NULL,
    candidate TEXT NOT NULL,
    reason TEXT NOT NULL,
    raw_line TEXT
);

-- Parse history for throughput and failure tracking
CREATE TABLE IF NOT EXISTS parse_log (
    id INTEGER PRIMARY KEY,
    document_id INTEGER REFERENCES documents(id) ON DELETE SET NULL,
    batch_id TEXT,
    pages INTEGER DEFAULT 0,
    failed_pages INTEGER DEFAULT 0,
    items INTEGER DEFAULT 0,
    rejections INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    error TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pages_document ON pages(document_id);
CREATE INDEX IF NOT EXISTS idx_line_items_document ON line_items(document_id);
CREATE INDEX IF NOT EXISTS idx_rejections_document ON rejections(document_id);
`
