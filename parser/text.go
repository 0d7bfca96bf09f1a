package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/brunobiangulo/orderdoc/layout"
)

// TextParser handles plain text (.txt) exports, such as the text layer
// saved from a PDF viewer. Lines are treated as monospaced, so aligned
// columns keep their x positions. A form feed starts a new page.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if strings.TrimSpace(content) == "" {
		return &ParseResult{Method: "grid"}, nil
	}

	var pages []layout.Page
	for i, chunk := range strings.Split(content, "\f") {
		pages = append(pages, textPage(i+1, chunk))
	}
	return &ParseResult{Pages: pages, Method: "grid"}, nil
}

// textPage places each whitespace-separated word at its character column.
func textPage(number int, text string) layout.Page {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	height := gridMargin*2 + float64(len(lines))*gridLineHeight
	page := layout.Page{Number: number, Height: height, Text: text}

	widest := 0
	for r, line := range lines {
		y := height - gridMargin - float64(r)*gridLineHeight
		start := -1
		runes := []rune(line)
		for i := 0; i <= len(runes); i++ {
			if i < len(runes) && !unicode.IsSpace(runes[i]) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				word := string(runes[start:i])
				page.Tokens = append(page.Tokens, layout.Token{
					Text:   word,
					X:      gridMargin + float64(start)*gridCharWidth,
					Y:      y,
					Width:  float64(i-start) * gridCharWidth,
					Height: gridLineHeight - 4,
				})
				start = -1
			}
		}
		widest = max(widest, len(runes))
	}
	page.Width = gridMargin*2 + float64(widest)*gridCharWidth
	return page
}
