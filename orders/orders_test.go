package orders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/orderdoc/fields"
	"github.com/brunobiangulo/orderdoc/layout"
	"github.com/brunobiangulo/orderdoc/lineitems"
)

func tok(text string, x, y float64) layout.Token {
	return layout.Token{Text: text, X: x, Y: y, Width: 8 * float64(len(text)), Height: 10}
}

func quietParser(cfg Config) *Parser {
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg)
}

// labelInvoicePage is a combined page: label with a SKU/QTY table on top,
// tax invoice below.
func labelInvoicePage(nr int, orderID, sku string) layout.Page {
	tokens := []layout.Token{
		tok("SKU", 30, 760), tok("ID", 62, 760), tok("Description", 200, 760), tok("QTY", 450, 760),
		tok(sku, 30, 740), tok("Cotton", 200, 740), tok("Tee", 260, 740), tok("2", 455, 740),
		tok("TAX", 20, 400), tok("INVOICE", 55, 400),
		tok("Invoice", 20, 380), tok("No:", 80, 380), tok("FATTN2024001", 110, 380),
		tok("Grand", 20, 200), tok("Total:", 70, 200), tok("₹", 120, 200), tok("499.00", 135, 200),
	}
	if orderID != "" {
		tokens = append(tokens, tok("Order", 20, 800), tok("Id:", 70, 800), tok(orderID, 100, 800))
	}
	return layout.Page{Number: nr, Width: 600, Height: 842, Tokens: tokens}
}

func TestParseDocumentEndToEnd(t *testing.T) {
	p := quietParser(Config{})
	doc, err := p.ParseDocument(context.Background(), []layout.Page{
		labelInvoicePage(1, "OD123456789012345", "LANGO-TP2024-BLK-L"),
	})
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)

	lines := doc.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "LANGO-TP2024-BLK-L", lines[0].Item.SKU)
	assert.Equal(t, 2, lines[0].Item.Quantity)
	assert.Equal(t, lineitems.QtyColumn, lines[0].Item.QtySource)
	assert.Equal(t, "OD123456789012345", lines[0].OrderID)
	assert.Equal(t, "FATTN2024001", lines[0].InvoiceNumber)

	assert.Equal(t, "FATTN2024001", doc.Fields.InvoiceNumber.Value)
	assert.Equal(t, fields.High, doc.Fields.InvoiceNumber.Confidence)
	assert.Equal(t, "499.00", doc.Fields.GrandTotal.Value)
	assert.Equal(t, Summary{Pages: 1, ParsedPages: 1, Items: 1}, doc.Summary)
	assert.NotContains(t, doc.Notes, "grand total not found")
}

func TestContextCarriesAcrossPages(t *testing.T) {
	p := quietParser(Config{})
	doc, err := p.ParseDocument(context.Background(), []layout.Page{
		labelInvoicePage(1, "OD123456789012345", "LANGO-TP2024-BLK-L"),
		labelInvoicePage(2, "", "LANGO-TP2024-RED-M"),
	})
	require.NoError(t, err)
	require.Len(t, doc.Pages, 2)
	assert.Equal(t, "OD123456789012345", doc.Pages[1].Context.OrderID)
	assert.Contains(t, doc.Pages[1].Notes, "order id carried from previous page")

	lines := doc.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, lines[0].OrderID, lines[1].OrderID)
	assert.Equal(t, 2, lines[1].PageNumber)
}

func TestPageWithoutTextLayer(t *testing.T) {
	p := quietParser(Config{})
	res := p.ParsePage(layout.Page{Number: 3, Width: 600, Height: 842}, Context{OrderID: "X1"})
	assert.Equal(t, fields.SourceOCRPlaceholder, res.Fields.OrderID.Source)
	assert.Equal(t, fields.Low, res.Fields.GrandTotal.Confidence)
	assert.Equal(t, "X1", res.Context.OrderID)
	assert.Contains(t, res.Notes, "page has no text layer; OCR required")
	assert.Empty(t, res.Items)

	doc, err := p.ParseDocument(context.Background(), []layout.Page{{Number: 1}})
	require.NoError(t, err)
	assert.Equal(t, fields.SourceOCRPlaceholder, doc.Fields.InvoiceNumber.Source)
	assert.Equal(t, 1, doc.Summary.SkippedPages)
}

func TestPagePanicIsContained(t *testing.T) {
	p := quietParser(Config{LineItems: lineitems.Config{StopPatterns: []*regexp.Regexp{nil}}})
	good := quietParser(Config{})

	pages := []layout.Page{labelInvoicePage(1, "OD123456789012345", "LANGO-TP2024-BLK-L")}
	res := p.ParsePage(pages[0], Context{})
	assert.True(t, res.Failed())
	assert.Empty(t, res.Items)
	assert.Contains(t, res.Error, "page 1")

	doc, err := p.ParseDocument(context.Background(), append(pages, layout.Page{Number: 2}))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Summary.FailedPages)
	assert.Equal(t, 1, doc.Summary.SkippedPages)
	assert.Len(t, doc.Errors(), 1)

	// The same page parses cleanly with a sane configuration.
	assert.False(t, good.ParsePage(pages[0], Context{}).Failed())
}

func TestParseDocumentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := quietParser(Config{})
	doc, err := p.ParseDocument(ctx, []layout.Page{labelInvoicePage(1, "OD123456789012345", "AB-12-X")})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, doc)
	assert.Empty(t, doc.Pages)
}

func TestMergeFieldsPrefersHighConfidence(t *testing.T) {
	medium := PageResult{PageNumber: 1, Fields: Fields{
		OrderID: fields.OrderID.Extract("Order ID: MSH99812"),
	}}
	high := PageResult{PageNumber: 2, Fields: Fields{
		OrderID: fields.OrderID.Extract("Order Id: OD123456789012345"),
		GSTIN:   fields.GSTIN.Extract("27AAACR5055K1Z7"),
	}}
	require.Equal(t, fields.Medium, medium.Fields.OrderID.Confidence)

	merged := mergeFields([]PageResult{medium, high})
	assert.Equal(t, "OD123456789012345", merged.OrderID.Value)
	assert.Equal(t, "27AAACR5055K1Z7", merged.GSTIN.Value)
	assert.False(t, merged.GrandTotal.Found())
	assert.Equal(t, fields.SourceFallback, merged.GrandTotal.Source)
}

func TestParseBatch(t *testing.T) {
	p := quietParser(Config{Concurrency: 2})
	var docs []Document
	for i := 0; i < 5; i++ {
		docs = append(docs, Document{
			Name:  fmt.Sprintf("doc-%d", i),
			Pages: []layout.Page{labelInvoicePage(1, "OD12345678901234"+fmt.Sprint(i), fmt.Sprintf("SKU-%d-X", i))},
		})
	}
	results := p.ParseBatch(context.Background(), docs)
	require.Len(t, results, 5)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("doc-%d", i), r.Name)
		lines := r.Result.Lines()
		require.Len(t, lines, 1)
		assert.Equal(t, fmt.Sprintf("SKU-%d-X", i), lines[0].Item.SKU)
		assert.Equal(t, fmt.Sprintf("OD12345678901234%d", i), lines[0].OrderID)
	}
}

func TestParseBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := quietParser(Config{Concurrency: 1})
	results := p.ParseBatch(ctx, []Document{{Name: "a"}, {Name: "b"}})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}
