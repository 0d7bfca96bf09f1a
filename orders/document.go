package orders

import (
	"fmt"

	"github.com/brunobiangulo/orderdoc/lineitems"
)

// Summary counts what happened to a document's pages.
type Summary struct {
	Pages        int `json:"pages"`
	ParsedPages  int `json:"parsed_pages"`
	SkippedPages int `json:"skipped_pages"`
	FailedPages  int `json:"failed_pages"`
	Items        int `json:"items"`
	Rejections   int `json:"rejections"`
}

// DocumentResult is the outcome of parsing all pages of one document.
type DocumentResult struct {
	Pages   []PageResult `json:"pages"`
	Fields  Fields       `json:"fields"`
	Notes   []string     `json:"parsing_notes"`
	Summary Summary      `json:"summary"`
}

// OrderLine is a line item with the context of the page it came from.
type OrderLine struct {
	Item          lineitems.LineItem `json:"item"`
	PageNumber    int                `json:"page_number"`
	OrderID       string             `json:"order_id"`
	InvoiceNumber string             `json:"invoice_number"`
}

// Lines flattens the line items of all pages in page order.
func (d *DocumentResult) Lines() []OrderLine {
	var out []OrderLine
	for _, p := range d.Pages {
		for _, it := range p.Items {
			out = append(out, OrderLine{
				Item:          it,
				PageNumber:    p.PageNumber,
				OrderID:       p.Context.OrderID,
				InvoiceNumber: p.Context.InvoiceNumber,
			})
		}
	}
	return out
}

// Errors returns the hard failures of individual pages.
func (d *DocumentResult) Errors() []string {
	var out []string
	for _, p := range d.Pages {
		if p.Failed() {
			out = append(out, p.Error)
		}
	}
	return out
}

func (d *DocumentResult) finish() {
	d.Fields = mergeFields(d.Pages)
	d.Summary = Summary{Pages: len(d.Pages)}
	for _, p := range d.Pages {
		switch {
		case p.Failed():
			d.Summary.FailedPages++
		case len(p.Items) > 0:
			d.Summary.ParsedPages++
		default:
			d.Summary.SkippedPages++
		}
		d.Summary.Items += len(p.Items)
		d.Summary.Rejections += len(p.Rejections)
	}

	d.Notes = nil
	if len(d.Pages) == 0 {
		d.Notes = append(d.Notes, "document has no pages")
		return
	}
	if !d.Fields.OrderID.Found() {
		d.Notes = append(d.Notes, "order id not found")
	}
	if !d.Fields.GrandTotal.Found() {
		d.Notes = append(d.Notes, "grand total not found")
	}
	if d.Summary.Items == 0 {
		d.Notes = append(d.Notes, "no line items found")
	}
	if d.Summary.FailedPages > 0 {
		d.Notes = append(d.Notes, fmt.Sprintf("%d of %d pages failed", d.Summary.FailedPages, d.Summary.Pages))
	}
}
