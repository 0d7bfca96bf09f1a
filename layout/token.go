// Package layout turns pre-extracted page text into positioned tokens,
// visual rows and header-derived column ranges.
//
// Coordinates follow PDF page space: origin at the bottom-left corner,
// x increasing to the right and y increasing upward.
package layout

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Token is one atomic run of text from a page.
type Token struct {
	Text   string  `json:"text"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the right edge of the token.
func (t Token) Right() float64 {
	return t.X + t.Width
}

// Page is a single page of positioned input handed to the extractors.
type Page struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Tokens []Token `json:"tokens"`
	// Text is the page's raw concatenated text. When empty it is derived
	// from the grouped rows.
	Text string `json:"text,omitempty"`
}

// HasText reports whether the page carries any text layer at all.
func (p Page) HasText() bool {
	if strings.TrimSpace(p.Text) != "" {
		return true
	}
	for _, t := range p.Tokens {
		if strings.TrimSpace(t.Text) != "" {
			return true
		}
	}
	return false
}

// NormalizeTokens applies NFKC normalization to every token, replaces
// exotic whitespace with plain spaces, collapses runs of whitespace and
// drops tokens left empty. Geometry is preserved.
func NormalizeTokens(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		t.Text = NormalizeText(t.Text)
		if t.Text == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// NormalizeText is the string-level normalization used by NormalizeTokens.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\uFEFF':
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		case !unicode.IsPrint(r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
