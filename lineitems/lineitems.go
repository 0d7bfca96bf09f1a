// Package lineitems turns the data rows of an order page into validated
// line items.
//
// The extractor walks rows below the detected header, takes SKU
// candidates from the SKU column (or a regex sweep when no column was
// found), validates each candidate against strict shape rules and
// resolves a quantity per row. Rejected candidates are kept with a reason
// code so a reviewer can see why a row produced nothing.
package lineitems

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/brunobiangulo/orderdoc/layout"
)

// UnknownProduct is the product name used when nothing but the SKU and
// quantity is left on a row.
const UnknownProduct = "Unknown Product"

// QtySource records how a line item's quantity was resolved.
type QtySource string

const (
	QtyColumn    QtySource = "column"
	QtyLabel     QtySource = "label"
	QtyProximity QtySource = "proximity"
	QtyGuessed   QtySource = "guessed"
)

// LineItem is one validated product row.
type LineItem struct {
	SKU            string    `json:"sku"`
	Quantity       int       `json:"quantity"`
	ProductName    string    `json:"product_name"`
	RawLine        string    `json:"raw_line"`
	QtySource      QtySource `json:"qty_source"`
	SKUValid       bool      `json:"sku_valid"`
	MatchedPattern string    `json:"matched_pattern"`
	RowIndex       int       `json:"row_index"`
}

// MarshalJSON encodes an empty MatchedPattern as null.
func (li LineItem) MarshalJSON() ([]byte, error) {
	type alias LineItem
	var pattern *string
	if li.MatchedPattern != "" {
		p := li.MatchedPattern
		pattern = &p
	}
	return json.Marshal(struct {
		alias
		MatchedPattern *string `json:"matched_pattern"`
	}{alias: alias(li), MatchedPattern: pattern})
}

// RejectReason explains why a SKU candidate was refused.
type RejectReason string

const (
	ReasonNoDigits        RejectReason = "no_digits"
	ReasonPatternMismatch RejectReason = "pattern_mismatch"
	ReasonBlacklisted     RejectReason = "blacklisted"
)

// Rejection is a SKU candidate that failed validation.
type Rejection struct {
	Candidate string       `json:"candidate"`
	Reason    RejectReason `json:"reason"`
	RowIndex  int          `json:"row_index"`
	RawLine   string       `json:"raw_line"`
}

// Result is the outcome of extracting one page.
type Result struct {
	Items      []LineItem  `json:"items"`
	Rejections []Rejection `json:"rejections"`
	Notes      []string    `json:"notes"`
	// Fallback is set when candidates came from the regex sweep instead
	// of a SKU column.
	Fallback bool `json:"fallback"`
}

// Extractor extracts line items with a fixed configuration. It holds no
// mutable state and is safe for concurrent use.
type Extractor struct {
	cfg       Config
	blacklist []string
}

// New builds an Extractor, filling unset configuration from DefaultConfig.
func New(cfg Config) *Extractor {
	cfg = cfg.withDefaults()
	bl := make([]string, 0, len(cfg.Blacklist))
	for _, b := range cfg.Blacklist {
		if b = strings.TrimSpace(b); b != "" {
			bl = append(bl, strings.ToUpper(b))
		}
	}
	return &Extractor{cfg: cfg, blacklist: bl}
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// ExtractLineItems runs a default extractor with the given blacklist
// added to the default one.
func ExtractLineItems(rows []layout.Row, cols layout.ColumnLayout, blacklist []string) []LineItem {
	cfg := DefaultConfig()
	cfg.Blacklist = append(cfg.Blacklist, blacklist...)
	return New(cfg).Extract(rows, cols).Items
}

var skuSweep = regexp.MustCompile(`\b[A-Z]{3,}(?:-[A-Z0-9]+){2,}\b`)

// Extract scans rows after the header (or from the top when there is no
// header) until a section boundary and returns the line items found.
// It never panics on odd input; structural gaps are reported as notes.
func (e *Extractor) Extract(rows []layout.Row, cols layout.ColumnLayout) Result {
	var res Result
	if len(rows) == 0 {
		res.Notes = append(res.Notes, "page has no text rows")
		return res
	}

	start := 0
	if cols.HasHeader() {
		start = min(cols.HeaderRowIndex+1, len(rows))
	} else {
		res.Notes = append(res.Notes, "no header detected; heuristic fallback used")
	}
	skuCol, hasSKU := cols.Range(layout.ColumnSKU)
	qtyCol, hasQty := cols.Range(layout.ColumnQty)
	if !hasSKU {
		res.Fallback = true
		if cols.HasHeader() {
			res.Notes = append(res.Notes, "no SKU column detected; regex sweep used")
		}
	}

	end := len(rows)
	for i := start; i < len(rows); i++ {
		if e.matchesAny(e.cfg.StopPatterns, rows[i].Text()) {
			end = i
			break
		}
	}
	scan := rows[start:end]
	cluster := densestQtyCluster(scan, e.cfg.MaxQuantity)

	for off, row := range scan {
		idx := start + off
		raw := row.Text()
		if e.matchesAny(e.cfg.SkipPatterns, raw) {
			continue
		}

		var candidates []string
		if hasSKU {
			candidates = columnCandidates(row, skuCol)
		} else {
			candidates = skuSweep.FindAllString(raw, -1)
		}
		if len(candidates) == 0 {
			continue
		}

		var accepted []LineItem
		seen := make(map[string]bool)
		for _, c := range candidates {
			if seen[c] {
				continue
			}
			seen[c] = true
			pattern, reason, ok := e.ValidateSKU(c)
			if !ok {
				res.Rejections = append(res.Rejections, Rejection{
					Candidate: c, Reason: reason, RowIndex: idx, RawLine: raw,
				})
				continue
			}
			accepted = append(accepted, LineItem{
				SKU: c, SKUValid: true, MatchedPattern: pattern, RawLine: raw, RowIndex: idx,
			})
		}
		if len(accepted) == 0 {
			continue
		}

		q := e.resolveQuantity(row, qtyCol, hasQty, cluster)
		skus := make([]string, len(accepted))
		for i, li := range accepted {
			skus[i] = li.SKU
		}
		name := productName(row, skus, q)
		for _, li := range accepted {
			li.Quantity = q.value
			li.QtySource = q.source
			li.ProductName = name
			res.Items = append(res.Items, li)
		}
	}

	if end < len(rows) {
		res.Notes = append(res.Notes, fmt.Sprintf("scan stopped at section boundary (row %d)", end))
	}
	if len(res.Items) == 0 {
		if len(res.Rejections) > 0 {
			res.Notes = append(res.Notes, fmt.Sprintf("no valid SKU found; %d candidates rejected", len(res.Rejections)))
		} else {
			res.Notes = append(res.Notes, "no valid SKU found")
		}
	}
	return res
}

func (e *Extractor) matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// columnCandidates joins the row's tokens inside the SKU column and
// splits the result on whitespace.
func columnCandidates(row layout.Row, col layout.ColumnRange) []string {
	toks := row.TokensIn(col)
	if len(toks) == 0 {
		return nil
	}
	parts := make([]string, 0, len(toks))
	for _, t := range toks {
		parts = append(parts, t.Text)
	}
	var out []string
	for _, f := range strings.Fields(strings.Join(parts, " ")) {
		if f = trimCandidate(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func trimCandidate(s string) string {
	return strings.Trim(s, ".,;:|()[]{}\"'")
}

// productName strips every accepted SKU, the quantity token and any
// quantity label from the row text.
func productName(row layout.Row, skus []string, q quantity) string {
	parts := make([]string, 0, len(row.Tokens))
	for i, t := range row.Tokens {
		if i == q.tokenIndex {
			continue
		}
		parts = append(parts, t.Text)
	}
	s := strings.Join(parts, " ")
	for _, sku := range skus {
		s = strings.ReplaceAll(s, sku, " ")
	}
	if q.label != "" {
		s = strings.Replace(s, q.label, " ", 1)
	}
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " |,;:-")
	if s == "" {
		return UnknownProduct
	}
	return s
}
