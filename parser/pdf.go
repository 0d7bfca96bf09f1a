package parser

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/brunobiangulo/orderdoc/layout"
)

// letter is the fallback page size when no usable MediaBox is declared.
var letter = [2]float64{612, 792}

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

// Parse extracts positioned word tokens from every page. A page whose
// content stream cannot be decoded yields an empty page rather than
// failing the document; its number is listed in Metadata["failed_pages"].
func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	pages := make([]layout.Page, 0, totalPages)
	var failed, scanned []string

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		w, h := mediaBox(page.V)
		lp := layout.Page{Number: i, Width: w, Height: h}

		texts, err := pageTexts(page)
		if err != nil {
			slog.Warn("parser: page content unreadable", "path", path, "page", i, "error", err)
			failed = append(failed, strconv.Itoa(i))
			pages = append(pages, lp)
			continue
		}

		lp.Tokens = mergeGlyphs(texts)
		if len(lp.Tokens) == 0 && hasImages(page.V) {
			scanned = append(scanned, strconv.Itoa(i))
		}
		pages = append(pages, lp)
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages found in PDF")
	}

	meta := map[string]string{"page_count": strconv.Itoa(totalPages)}
	if len(failed) > 0 {
		meta["failed_pages"] = strings.Join(failed, ",")
	}
	if len(scanned) > 0 {
		meta["scanned_pages"] = strings.Join(scanned, ",")
	}
	return &ParseResult{Pages: pages, Method: "native", Metadata: meta}, nil
}

// pageTexts decodes a page's glyph runs. The pdf package panics on some
// malformed streams, so the panic is turned into an error here.
func pageTexts(page pdf.Page) (texts []pdf.Text, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoding content stream: %v", r)
		}
	}()
	return page.Content().Text, nil
}

// mergeGlyphs joins glyph runs into word tokens. A word ends at a
// whitespace glyph, a baseline change of more than half the font size,
// a step backwards, or a horizontal gap of at least half a space width
// (a space is taken as a quarter of the font size).
func mergeGlyphs(texts []pdf.Text) []layout.Token {
	var (
		out  []layout.Token
		word strings.Builder
		cur  layout.Token
		open bool
	)
	flush := func() {
		if open && word.Len() > 0 {
			cur.Text = word.String()
			if cur.Width <= 0 {
				cur.Width = float64(len([]rune(cur.Text))) * cur.Height * 0.5
			}
			out = append(out, cur)
		}
		word.Reset()
		open = false
	}

	for _, t := range texts {
		if strings.TrimFunc(t.S, unicode.IsSpace) == "" {
			flush()
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = 10
		}
		if open {
			gap := t.X - cur.Right()
			sameLine := math.Abs(t.Y-cur.Y) <= size*0.5
			if !sameLine || gap < -size*0.5 || gap >= size*0.25*0.5 {
				flush()
			}
		}
		if !open {
			cur = layout.Token{X: t.X, Y: t.Y, Height: size}
			open = true
		}
		word.WriteString(t.S)
		if right := t.X + t.W; right > cur.Right() {
			cur.Width = right - cur.X
		}
	}
	flush()
	return out
}

// mediaBox reads the page's MediaBox, following inheritance through the
// page tree.
func mediaBox(v pdf.Value) (float64, float64) {
	for node, depth := v, 0; !node.IsNull() && depth < 32; node, depth = node.Key("Parent"), depth+1 {
		box := node.Key("MediaBox")
		if box.Len() != 4 {
			continue
		}
		w := box.Index(2).Float64() - box.Index(0).Float64()
		h := box.Index(3).Float64() - box.Index(1).Float64()
		if w > 0 && h > 0 {
			return w, h
		}
	}
	return letter[0], letter[1]
}

// hasImages reports whether the page draws any image XObject, which for a
// page without text means it is a scan awaiting OCR.
func hasImages(v pdf.Value) bool {
	xobjs := v.Key("Resources").Key("XObject")
	for _, k := range xobjs.Keys() {
		if xobjs.Key(k).Key("Subtype").Name() == "Image" {
			return true
		}
	}
	return false
}
