package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/brunobiangulo/orderdoc/layout"
)

// Synthetic grid metrics, in points. gridColumnGap exceeds the right
// padding added to header columns, so a column's range never reaches the
// next column's cells.
const (
	gridCharWidth  = 6.0
	gridColumnGap  = 110.0
	gridLineHeight = 14.0
	gridMargin     = 36.0
)

// gridPage lays records out as a table: one row per record, top down,
// columns aligned on the widest cell. Empty cells produce no token.
func gridPage(number int, records [][]string) layout.Page {
	var widths []int
	for _, rec := range records {
		for c, cell := range rec {
			for len(widths) <= c {
				widths = append(widths, 0)
			}
			widths[c] = max(widths[c], utf8.RuneCountInString(strings.TrimSpace(cell)))
		}
	}

	xs := make([]float64, len(widths))
	x := gridMargin
	for c, w := range widths {
		xs[c] = x
		x += float64(w)*gridCharWidth + gridColumnGap
	}

	height := gridMargin*2 + float64(len(records))*gridLineHeight
	page := layout.Page{Number: number, Width: x + gridMargin, Height: height}
	for r, rec := range records {
		y := height - gridMargin - float64(r)*gridLineHeight
		for c, cell := range rec {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			page.Tokens = append(page.Tokens, layout.Token{
				Text:   cell,
				X:      xs[c],
				Y:      y,
				Width:  float64(utf8.RuneCountInString(cell)) * gridCharWidth,
				Height: gridLineHeight - 4,
			})
		}
	}
	return page
}
