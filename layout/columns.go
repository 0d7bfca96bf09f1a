package layout

import (
	"regexp"
	"strings"
)

// ColumnKind names a logical table column.
type ColumnKind string

const (
	ColumnSKU          ColumnKind = "SKU"
	ColumnQty          ColumnKind = "QTY"
	ColumnProduct      ColumnKind = "PRODUCT"
	ColumnDescription  ColumnKind = "DESCRIPTION"
	ColumnHSN          ColumnKind = "HSN"
	ColumnRate         ColumnKind = "RATE"
	ColumnTaxableValue ColumnKind = "TAXABLE_VALUE"
	ColumnGSTAmount    ColumnKind = "GST_AMOUNT"
	ColumnTotal        ColumnKind = "TOTAL"
)

const (
	// DefaultSearchDepth is how many rows from the top are searched for a header.
	DefaultSearchDepth = 15

	columnLeftPad  = 20.0
	columnRightPad = 100.0
)

// DefaultHeaderKeywords are the patterns that mark a table header row.
var DefaultHeaderKeywords = []string{"sku", "product", "qty", "quantity", "amount", "description"}

// ColumnRange is the horizontal extent attributed to one header column.
// MaxX is deliberately wider than the header glyphs so that wrapped or
// overflowing cell content still falls inside.
type ColumnRange struct {
	Kind ColumnKind `json:"kind"`
	MinX float64    `json:"min_x"`
	MaxX float64    `json:"max_x"`
}

// Contains reports whether x lies within the range, bounds included.
func (c ColumnRange) Contains(x float64) bool {
	return x >= c.MinX && x <= c.MaxX
}

// ColumnLayout is the result of header detection for one page.
type ColumnLayout struct {
	// HeaderRowIndex is the index of the header row, or -1 when no header
	// was found within the search depth.
	HeaderRowIndex int           `json:"header_row_index"`
	Columns        []ColumnRange `json:"columns"`
}

// HasHeader reports whether a header row was detected.
func (l ColumnLayout) HasHeader() bool {
	return l.HeaderRowIndex >= 0
}

// Range returns the first column of the given kind.
func (l ColumnLayout) Range(kind ColumnKind) (ColumnRange, bool) {
	for _, c := range l.Columns {
		if c.Kind == kind {
			return c, true
		}
	}
	return ColumnRange{}, false
}

// columnRules classify header tokens. Order is precedence: "taxable"
// must be tested before the GST rule, "description" before "product".
var columnRules = []struct {
	kind ColumnKind
	re   *regexp.Regexp
}{
	{ColumnSKU, regexp.MustCompile(`(?i)sku`)},
	{ColumnQty, regexp.MustCompile(`(?i)\bqty|quantity`)},
	{ColumnHSN, regexp.MustCompile(`(?i)hsn|\bsac\b`)},
	{ColumnTaxableValue, regexp.MustCompile(`(?i)taxable`)},
	{ColumnGSTAmount, regexp.MustCompile(`(?i)[ics]?gst|tax\s*amount`)},
	{ColumnRate, regexp.MustCompile(`(?i)\brate\b|price`)},
	{ColumnTotal, regexp.MustCompile(`(?i)total|amount`)},
	{ColumnDescription, regexp.MustCompile(`(?i)description|\bitem`)},
	{ColumnProduct, regexp.MustCompile(`(?i)product|title`)},
}

// ClassifyHeader maps a header token to a column kind.
func ClassifyHeader(text string) (ColumnKind, bool) {
	for _, rule := range columnRules {
		if rule.re.MatchString(text) {
			return rule.kind, true
		}
	}
	return "", false
}

// DetectColumns scans the first searchDepth rows for a header row (any
// keyword matching the row text, case-insensitive) and derives a column
// range from each classified token of that row. Keywords are regular
// expressions; one that does not compile is matched literally. Nothing
// found yields HeaderRowIndex -1 and no columns, which is a normal
// outcome for pages without a table.
func DetectColumns(rows []Row, headerKeywords []string, searchDepth int) ColumnLayout {
	if searchDepth <= 0 {
		searchDepth = DefaultSearchDepth
	}
	if len(headerKeywords) == 0 {
		headerKeywords = DefaultHeaderKeywords
	}
	matchers := compileKeywords(headerKeywords)

	limit := min(searchDepth, len(rows))
	for i := 0; i < limit; i++ {
		text := rows[i].Text()
		if !matchesAny(matchers, text) {
			continue
		}
		return ColumnLayout{HeaderRowIndex: i, Columns: columnsFromHeader(rows[i])}
	}
	return ColumnLayout{HeaderRowIndex: -1}
}

func columnsFromHeader(row Row) []ColumnRange {
	var cols []ColumnRange
	seen := make(map[ColumnKind]bool)
	for _, t := range row.Tokens {
		kind, ok := ClassifyHeader(t.Text)
		if !ok || seen[kind] {
			continue
		}
		seen[kind] = true
		cols = append(cols, ColumnRange{
			Kind: kind,
			MinX: t.X - columnLeftPad,
			MaxX: t.X + t.Width + columnRightPad,
		})
	}
	return cols
}

func compileKeywords(keywords []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + k)
		if err != nil {
			re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(k))
		}
		out = append(out, re)
	}
	return out
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
