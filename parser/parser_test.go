package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/orderdoc/internal/pdftest"
	"github.com/brunobiangulo/orderdoc/layout"
)

// ---------------------------------------------------------------------------
// Registry tests
// ---------------------------------------------------------------------------

func TestRegistryBuiltInParsers(t *testing.T) {
	reg := NewRegistry()

	for _, format := range []string{"pdf", "csv", "tsv", "xlsx", "xlsm", "txt"} {
		t.Run(format, func(t *testing.T) {
			p, err := reg.Get(format)
			if err != nil {
				t.Fatalf("Get(%q) returned error: %v", format, err)
			}
			found := false
			for _, f := range p.SupportedFormats() {
				if f == format {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("parser for %q does not list it in SupportedFormats(): %v", format, p.SupportedFormats())
			}
		})
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry()
	for _, format := range []string{"docx", "pptx", "json", ""} {
		if p, err := reg.Get(format); err == nil {
			t.Errorf("Get(%q) expected error, got parser %T", format, p)
		}
	}
}

type stubParser struct{}

func (stubParser) Parse(context.Context, string) (*ParseResult, error) { return &ParseResult{}, nil }
func (stubParser) SupportedFormats() []string                          { return []string{"json"} }

func TestRegistryCustomParser(t *testing.T) {
	reg := NewRegistry()
	reg.Register("json", stubParser{})
	if _, err := reg.Get("json"); err != nil {
		t.Fatalf("custom parser not registered: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Glyph merging
// ---------------------------------------------------------------------------

// glyphs lays out s one glyph per rune, 5pt apart, starting at x.
func glyphs(s string, x, y float64) []pdf.Text {
	var out []pdf.Text
	for _, r := range s {
		out = append(out, pdf.Text{FontSize: 10, X: x, Y: y, W: 5, S: string(r)})
		x += 5
	}
	return out
}

func tokenTexts(tokens []layout.Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

func TestMergeGlyphs(t *testing.T) {
	var texts []pdf.Text
	texts = append(texts, glyphs("Order Id:", 20, 800)...)
	texts = append(texts, glyphs("OD123", 120, 800)...)
	texts = append(texts, glyphs("QTY", 450, 760)...)

	got := mergeGlyphs(texts)
	want := []string{"Order", "Id:", "OD123", "QTY"}
	if strings.Join(tokenTexts(got), "|") != strings.Join(want, "|") {
		t.Fatalf("tokens = %v, want %v", tokenTexts(got), want)
	}
	if got[1].X != 50 || got[1].Width != 15 {
		t.Errorf("Id: token geometry = x %v w %v, want x 50 w 15", got[1].X, got[1].Width)
	}
	if got[3].Y != 760 || got[3].Height != 10 {
		t.Errorf("QTY token y/height = %v/%v", got[3].Y, got[3].Height)
	}
}

func TestMergeGlyphsGapThreshold(t *testing.T) {
	// A 1pt gap is below half a space width (1.25pt at 10pt); 2pt is above.
	texts := []pdf.Text{
		{FontSize: 10, X: 0, Y: 100, W: 5, S: "A"},
		{FontSize: 10, X: 6, Y: 100, W: 5, S: "B"},
		{FontSize: 10, X: 13, Y: 100, W: 5, S: "C"},
	}
	got := tokenTexts(mergeGlyphs(texts))
	if strings.Join(got, "|") != "AB|C" {
		t.Errorf("tokens = %v, want [AB C]", got)
	}
}

func TestMergeGlyphsZeroWidth(t *testing.T) {
	texts := []pdf.Text{
		{FontSize: 10, X: 10, Y: 100, S: "a"},
		{FontSize: 10, X: 10, Y: 100, S: "b"},
	}
	got := mergeGlyphs(texts)
	if len(got) != 1 || got[0].Text != "ab" || got[0].Width != 10 {
		t.Errorf("tokens = %+v, want one 'ab' token 10pt wide", got)
	}
}

// ---------------------------------------------------------------------------
// Format parsers
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPDFParser(t *testing.T) {
	data := pdftest.Build(
		pdftest.Page{Width: 600, Height: 800, Texts: []pdftest.Text{
			{X: 30, Y: 760, S: "SKU"}, {X: 450, Y: 760, S: "QTY"},
			{X: 30, Y: 740, S: "LANGO-TP2024-BLK-L"}, {X: 455, Y: 740, S: "2"},
		}},
		pdftest.Page{Width: 600, Height: 800},
	)
	path := writeFile(t, "order.pdf", data)

	res, err := (&PDFParser{}).Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Method != "native" || len(res.Pages) != 2 {
		t.Fatalf("method %q pages %d", res.Method, len(res.Pages))
	}
	p1 := res.Pages[0]
	if p1.Width != 600 || p1.Height != 800 {
		t.Errorf("page size = %vx%v", p1.Width, p1.Height)
	}
	got := strings.Join(tokenTexts(p1.Tokens), " ")
	for _, want := range []string{"SKU", "QTY", "LANGO-TP2024-BLK-L", "2"} {
		if !strings.Contains(got, want) {
			t.Errorf("page 1 tokens %q missing %q", got, want)
		}
	}
	if res.Pages[1].HasText() {
		t.Error("page 2 should have no text")
	}
	if res.Metadata["page_count"] != "2" {
		t.Errorf("page_count = %q", res.Metadata["page_count"])
	}
}

func TestCSVParser(t *testing.T) {
	csvData := "\ufeffOrder Id,SKU,Product,Quantity\n" +
		"OD1,LANGO-TP2024-BLK-L,Lango Tee,2\n" +
		"OD2,\"KURTA-RED-M42\",\"Kurta, red\",1\n"
	path := writeFile(t, "orders.csv", []byte(csvData))

	res, err := (&CSVParser{}).Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Pages) != 1 || res.Method != "grid" {
		t.Fatalf("pages %d method %q", len(res.Pages), res.Method)
	}

	rows := layout.GroupIntoRows(res.Pages[0].Tokens, 0)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].Text() != "Order Id SKU Product Quantity" {
		t.Errorf("header row = %q", rows[0].Text())
	}
	cols := layout.DetectColumns(rows, nil, 0)
	sku, ok := cols.Range(layout.ColumnSKU)
	if !ok {
		t.Fatal("SKU column not detected")
	}
	for _, r := range rows[1:] {
		in := r.TokensIn(sku)
		if len(in) != 1 {
			t.Errorf("row %q: %d tokens in SKU column, want 1", r.Text(), len(in))
		}
	}
}

func TestCSVParserEmpty(t *testing.T) {
	path := writeFile(t, "empty.csv", nil)
	if _, err := (&CSVParser{}).Parse(context.Background(), path); err == nil {
		t.Error("expected error for empty CSV")
	}
}

func TestXLSXParser(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetRow("Sheet1", "A1", &[]interface{}{"SKU", "Qty"}); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]interface{}{"TS1023", 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("Empty"); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "orders.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	res, err := (&XLSXParser{}).Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Pages) != 1 {
		t.Fatalf("pages = %d, want 1 (empty sheet skipped)", len(res.Pages))
	}
	if got := strings.Join(tokenTexts(res.Pages[0].Tokens), " "); got != "SKU Qty TS1023 3" {
		t.Errorf("tokens = %q", got)
	}
	if res.Metadata["sheets"] != "Sheet1" {
		t.Errorf("sheets = %q", res.Metadata["sheets"])
	}
}

func TestTextParser(t *testing.T) {
	text := "SKU            QTY\nAB-12-X        2\n\fInvoice No: FA1\n"
	path := writeFile(t, "order.txt", []byte(text))

	res, err := (&TextParser{}).Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(res.Pages))
	}
	toks := res.Pages[0].Tokens
	if len(toks) != 4 {
		t.Fatalf("tokens = %v", tokenTexts(toks))
	}
	// QTY and 2 start in the same character column.
	if toks[1].X != toks[3].X {
		t.Errorf("QTY x %v != 2 x %v", toks[1].X, toks[3].X)
	}
	if !strings.Contains(res.Pages[1].Text, "Invoice No") {
		t.Errorf("page 2 text = %q", res.Pages[1].Text)
	}
}

func TestGridPageColumnsDoNotOverlap(t *testing.T) {
	page := gridPage(1, [][]string{
		{"SKU", "Qty"},
		{"A", "1"},
	})
	rows := layout.GroupIntoRows(page.Tokens, 0)
	cols := layout.DetectColumns(rows, nil, 0)
	sku, _ := cols.Range(layout.ColumnSKU)
	for _, tk := range rows[1].TokensIn(sku) {
		if tk.Text == "1" {
			t.Error("quantity cell fell inside the SKU column range")
		}
	}
}

func TestDetectFormat(t *testing.T) {
	pdfPath := writeFile(t, "upload.bin", pdftest.Build(pdftest.Page{Width: 100, Height: 100}))
	if f, err := DetectFormat(pdfPath); err != nil || f != "pdf" {
		t.Errorf("DetectFormat(pdf) = %q, %v", f, err)
	}

	csvPath := writeFile(t, "orders.csv", []byte("SKU,Qty\nA-1-B,2\nC-3-D,1\n"))
	if f, err := DetectFormat(csvPath); err != nil || f != "csv" {
		t.Errorf("DetectFormat(csv) = %q, %v", f, err)
	}

	if f := DetectBytes([]byte("plain words"), "note.txt"); f != "txt" {
		t.Errorf("DetectBytes(txt) = %q", f)
	}
}
