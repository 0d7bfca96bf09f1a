package layout

import (
	"math"
	"sort"
	"strings"
)

// DefaultYTolerance is the vertical distance within which a token joins
// an existing row.
const DefaultYTolerance = 5.0

// Row is a visual line of tokens sharing an effective y coordinate.
type Row struct {
	// Y is the row's representative y: the y of the token most recently
	// inserted into it.
	Y      float64 `json:"y"`
	Tokens []Token `json:"tokens"`
}

// Text joins the row's tokens left to right with single spaces.
func (r Row) Text() string {
	parts := make([]string, 0, len(r.Tokens))
	for _, t := range r.Tokens {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}

// TokensIn returns the tokens of the row whose x lies inside c.
func (r Row) TokensIn(c ColumnRange) []Token {
	var out []Token
	for _, t := range r.Tokens {
		if c.Contains(t.X) {
			out = append(out, t)
		}
	}
	return out
}

// GroupIntoRows clusters tokens into rows using a greedy first-match
// scan: each token, in input order, joins the first existing row whose
// representative y is within yTolerance, after which the row's
// representative y moves to that token. Rows therefore chain, and two
// tokens in the same row may be further apart than yTolerance. A
// non-positive tolerance selects DefaultYTolerance.
//
// The result is ordered top to bottom, tokens left to right.
func GroupIntoRows(tokens []Token, yTolerance float64) []Row {
	if len(tokens) == 0 {
		return nil
	}
	if yTolerance <= 0 {
		yTolerance = DefaultYTolerance
	}

	var rows []Row
	for _, t := range tokens {
		placed := false
		for i := range rows {
			if math.Abs(rows[i].Y-t.Y) <= yTolerance {
				rows[i].Tokens = append(rows[i].Tokens, t)
				rows[i].Y = t.Y
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, Row{Y: t.Y, Tokens: []Token{t}})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Y > rows[j].Y })
	for i := range rows {
		sort.SliceStable(rows[i].Tokens, func(a, b int) bool {
			return rows[i].Tokens[a].X < rows[i].Tokens[b].X
		})
	}
	return rows
}

// RowsText renders rows as newline-separated lines.
func RowsText(rows []Row) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, r.Text())
	}
	return strings.Join(lines, "\n")
}
