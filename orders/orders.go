// Package orders runs the extraction pipeline over the pages of order
// documents.
//
// Pages of one document are parsed in order because later pages inherit
// the order ID and invoice number found on earlier ones. Independent
// documents may be parsed in parallel with ParseBatch.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/brunobiangulo/orderdoc/fields"
	"github.com/brunobiangulo/orderdoc/layout"
	"github.com/brunobiangulo/orderdoc/lineitems"
)

// Config tunes the pipeline. Zero values select defaults.
type Config struct {
	YTolerance     float64          `json:"y_tolerance" yaml:"y_tolerance"`
	HeaderKeywords []string         `json:"header_keywords" yaml:"header_keywords"`
	SearchDepth    int              `json:"search_depth" yaml:"search_depth"`
	AddressLines   int              `json:"address_lines" yaml:"address_lines"`
	Concurrency    int              `json:"concurrency" yaml:"concurrency"`
	LineItems      lineitems.Config `json:"-" yaml:"-"`
	Logger         *slog.Logger     `json:"-" yaml:"-"`
}

const defaultConcurrency = 4

func (c *Config) defaults() {
	if c.YTolerance <= 0 {
		c.YTolerance = layout.DefaultYTolerance
	}
	if len(c.HeaderKeywords) == 0 {
		c.HeaderKeywords = layout.DefaultHeaderKeywords
	}
	if c.SearchDepth <= 0 {
		c.SearchDepth = layout.DefaultSearchDepth
	}
	if c.AddressLines <= 0 {
		c.AddressLines = fields.DefaultAddressLines
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Context is the order-level information shared by the pages of a
// document and by every line item on a page.
type Context struct {
	OrderID       string `json:"order_id"`
	InvoiceNumber string `json:"invoice_number"`
}

// PageResult is everything extracted from one page.
type PageResult struct {
	PageNumber int                   `json:"page_number"`
	Context    Context               `json:"context"`
	Fields     Fields                `json:"fields"`
	Columns    layout.ColumnLayout   `json:"columns"`
	Items      []lineitems.LineItem  `json:"items"`
	Rejections []lineitems.Rejection `json:"rejections"`
	Notes      []string              `json:"parsing_notes"`
	// Error is set when extraction of this page failed outright.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the page hit a hard extraction failure.
func (p PageResult) Failed() bool { return p.Error != "" }

// Parser is a configured, stateless pipeline. Safe for concurrent use.
type Parser struct {
	cfg   Config
	items *lineitems.Extractor
	log   *slog.Logger
}

// New builds a Parser.
func New(cfg Config) *Parser {
	cfg.defaults()
	return &Parser{cfg: cfg, items: lineitems.New(cfg.LineItems), log: cfg.Logger}
}

// ParsePage extracts fields and line items from one page. carry is the
// context inherited from earlier pages of the same document; values found
// on this page take precedence. A panic during extraction is recovered
// and reported in PageResult.Error with no items.
func (p *Parser) ParsePage(page layout.Page, carry Context) (res PageResult) {
	res.PageNumber = page.Number
	res.Context = carry
	res.Columns.HeaderRowIndex = -1

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("orders: page extraction panicked",
				"page", page.Number, "panic", r, "stack", string(debug.Stack()))
			res.Items = nil
			res.Rejections = nil
			res.Error = fmt.Sprintf("page %d: extraction failed: %v", page.Number, r)
			res.Notes = append(res.Notes, "page extraction failed; no items returned")
		}
	}()

	if !page.HasText() {
		res.Fields = placeholderFields()
		res.Notes = append(res.Notes, "page has no text layer; OCR required")
		return res
	}

	rows := layout.GroupIntoRows(layout.NormalizeTokens(page.Tokens), p.cfg.YTolerance)
	cols := layout.DetectColumns(rows, p.cfg.HeaderKeywords, p.cfg.SearchDepth)
	res.Columns = cols

	text := pageText(page, rows)
	res.Fields = p.extractFields(text, rows)

	if v := res.Fields.OrderID.Value; v != "" {
		res.Context.OrderID = v
	} else if carry.OrderID != "" {
		res.Notes = append(res.Notes, "order id carried from previous page")
	}
	if v := res.Fields.InvoiceNumber.Value; v != "" {
		res.Context.InvoiceNumber = v
	}

	li := p.items.Extract(rows, cols)
	res.Items = li.Items
	res.Rejections = li.Rejections
	res.Notes = append(res.Notes, li.Notes...)

	p.log.Debug("orders: page parsed",
		"page", page.Number, "rows", len(rows), "header_row", cols.HeaderRowIndex,
		"items", len(res.Items), "rejections", len(res.Rejections))
	return res
}

// pageText is the text used for scalar fields: the page's raw text with
// each line normalized, or the grouped rows when there is none.
func pageText(page layout.Page, rows []layout.Row) string {
	if strings.TrimSpace(page.Text) == "" {
		return layout.RowsText(rows)
	}
	lines := strings.Split(page.Text, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = layout.NormalizeText(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// ParseDocument parses pages in order, carrying the order context
// forward. If ctx is cancelled between pages the pages already parsed are
// returned together with ctx.Err().
func (p *Parser) ParseDocument(ctx context.Context, pages []layout.Page) (*DocumentResult, error) {
	doc := &DocumentResult{}
	var carry Context
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			doc.finish()
			return doc, err
		}
		pr := p.ParsePage(page, carry)
		carry = pr.Context
		doc.Pages = append(doc.Pages, pr)
	}
	doc.finish()
	p.log.Info("orders: document parsed",
		"pages", doc.Summary.Pages, "parsed", doc.Summary.ParsedPages,
		"skipped", doc.Summary.SkippedPages, "failed", doc.Summary.FailedPages,
		"items", doc.Summary.Items)
	return doc, nil
}
