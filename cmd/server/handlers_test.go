//go:build cgo

package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/orderdoc"
	"github.com/brunobiangulo/orderdoc/internal/pdftest"
)

const ordersCSV = "Order Id,SKU,Product,Quantity\nOD1,LANGO-TP2024-BLK-L,Lango Tee,2\n"

func newTestServer(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	dir := t.TempDir()
	cfg := orderdoc.DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "test.db")
	e, err := orderdoc.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return newRouter(newHandler(e, dir), apiKey, "")
}

func multipartBody(t *testing.T, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, h http.Handler, target, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, name, data)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", ct)
	return do(t, h, req)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func TestAuth(t *testing.T) {
	h := newTestServer(t, "secret")

	if rec := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("health: status %d", rec.Code)
	}
	if rec := do(t, h, httptest.NewRequest(http.MethodGet, "/documents", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if rec := do(t, h, req); rec.Code != http.StatusOK {
		t.Errorf("with key: status %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, "")

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if len(rec.Header().Get("X-Request-ID")) != 36 {
		t.Errorf("generated request id = %q", rec.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	if got := do(t, h, req).Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("request id = %q, want caller's", got)
	}
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

func TestIngestUploadAndQuery(t *testing.T) {
	h := newTestServer(t, "")

	rec := upload(t, h, "/ingest", "orders.csv", []byte(ordersCSV))
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest: status %d body %s", rec.Code, rec.Body)
	}
	var res orderdoc.IngestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.DocumentID == 0 || res.Format != "csv" {
		t.Fatalf("ingest result = %+v", res)
	}

	// Same name and content again is a no-op.
	rec = upload(t, h, "/ingest", "orders.csv", []byte(ordersCSV))
	var again orderdoc.IngestResult
	json.Unmarshal(rec.Body.Bytes(), &again)
	if !again.Unchanged || again.DocumentID != res.DocumentID {
		t.Errorf("re-upload = %+v", again)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/documents/1/items", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("items: status %d", rec.Code)
	}
	var items struct {
		Items []struct {
			SKU      string `json:"sku"`
			Quantity int    `json:"quantity"`
		} `json:"items"`
	}
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items.Items) != 1 || items.Items[0].SKU != "LANGO-TP2024-BLK-L" || items.Items[0].Quantity != 2 {
		t.Errorf("items = %+v", items.Items)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/skus", nil))
	if !strings.Contains(rec.Body.String(), `"quantity":2`) {
		t.Errorf("skus = %s", rec.Body)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if !strings.Contains(rec.Body.String(), `"line_items":1`) {
		t.Errorf("stats = %s", rec.Body)
	}

	if rec := do(t, h, httptest.NewRequest(http.MethodDelete, "/documents/1", nil)); rec.Code != http.StatusOK {
		t.Errorf("delete: status %d", rec.Code)
	}
	if rec := do(t, h, httptest.NewRequest(http.MethodDelete, "/documents/1", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status %d", rec.Code)
	}
	if rec := do(t, h, httptest.NewRequest(http.MethodGet, "/documents/1/items", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("items after delete: status %d", rec.Code)
	}
}

func TestIngestBadRequests(t *testing.T) {
	h := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{}`))
	if rec := do(t, h, req); rec.Code != http.StatusBadRequest {
		t.Errorf("empty path: status %d", rec.Code)
	}
	req = httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"path":"/does/not/exist.pdf"}`))
	if rec := do(t, h, req); rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: status %d", rec.Code)
	}
	if rec := do(t, h, httptest.NewRequest(http.MethodGet, "/documents/abc/items", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status %d", rec.Code)
	}
}

func TestParseDoesNotStore(t *testing.T) {
	h := newTestServer(t, "")

	rec := upload(t, h, "/parse", "orders.csv", []byte(ordersCSV))
	if rec.Code != http.StatusOK {
		t.Fatalf("parse: status %d body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "LANGO-TP2024-BLK-L") {
		t.Errorf("parse body = %s", rec.Body)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if !strings.Contains(rec.Body.String(), `"documents":0`) {
		t.Errorf("stats after parse = %s", rec.Body)
	}
}

// ---------------------------------------------------------------------------
// Crop
// ---------------------------------------------------------------------------

func TestCrop(t *testing.T) {
	h := newTestServer(t, "")
	pdf := pdftest.Build(
		pdftest.Page{Width: 600, Height: 1000, Texts: []pdftest.Text{{X: 20, Y: 900, S: "Ship To"}}},
		pdftest.Page{Width: 600, Height: 1000, Texts: []pdftest.Text{{X: 20, Y: 100, S: "Tax Invoice"}}},
	)

	rec := upload(t, h, "/crop?role=invoice", "labels.pdf", pdf)
	if rec.Code != http.StatusOK {
		t.Fatalf("crop: status %d body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if rec.Header().Get("X-Page-Count") != "2" {
		t.Errorf("page count = %q", rec.Header().Get("X-Page-Count"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "labels-invoice.pdf") {
		t.Errorf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}
}

func TestCropErrors(t *testing.T) {
	h := newTestServer(t, "")
	pdf := pdftest.Build(pdftest.Page{Width: 600, Height: 1000})

	if rec := upload(t, h, "/crop?role=packing", "a.pdf", pdf); rec.Code != http.StatusBadRequest {
		t.Errorf("bad role: status %d", rec.Code)
	}
	if rec := upload(t, h, "/crop?ratio=1.5", "a.pdf", pdf); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("degenerate ratio: status %d body %s", rec.Code, rec.Body)
	}
	if rec := upload(t, h, "/crop", "orders.csv", []byte(ordersCSV)); rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("csv upload: status %d", rec.Code)
	}
}
