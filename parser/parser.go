// Package parser reads order documents into positioned pages.
//
// PDFs keep their real glyph geometry. Spreadsheet and plain-text order
// reports are laid out on a synthetic grid so that the same row grouping
// and header detection apply to every format.
package parser

import (
	"context"

	"github.com/brunobiangulo/orderdoc/layout"
)

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Pages    []layout.Page     // One entry per source page, sheet or file
	Method   string            // "native" for PDF glyphs, "grid" for tabular input
	Metadata map[string]string // Format specific facts, e.g. scanned page numbers
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
