package fields

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/brunobiangulo/orderdoc/layout"
)

// DefaultAddressLines caps how many rows an address block may span.
const DefaultAddressLines = 5

var (
	// BillTo and ShipTo are the usual labels opening an address block.
	BillTo = regexp.MustCompile(`(?i)(?:Bill(?:ing)?\s*(?:To|Address)|Sold\s*To)\s*:?`)
	ShipTo = regexp.MustCompile(`(?i)(?:Ship(?:ping)?\s*(?:To|Address)|Deliver(?:y)?\s*(?:To|Address))\s*:?`)

	addressStop = regexp.MustCompile(`(?i)\b(?:invoice|date|gstin|total|order\s*(?:id|no|#)|pan\s*no|state/ut\s*code)\b`)
)

// Address locates the first row matching label and collects the text
// after the label plus up to maxLines-1 following rows, stopping early at
// a row that looks like another header field (Invoice, Date, GSTIN,
// Total). Surviving lines are joined with ", ".
func Address(rows []layout.Row, label *regexp.Regexp, maxLines int) Field {
	if maxLines <= 0 {
		maxLines = DefaultAddressLines
	}
	start := -1
	var lines, matched []string
	for i, r := range rows {
		text := r.Text()
		loc := label.FindStringIndex(text)
		if loc == nil {
			continue
		}
		start = i
		matched = append(matched, strings.Fields(text[loc[0]:loc[1]])...)
		if rest := cleanAddressLine(text[loc[1]:]); rest != "" && !addressStop.MatchString(rest) {
			lines = append(lines, rest)
		}
		break
	}
	if start < 0 {
		return Missing()
	}

	for i := start + 1; i < len(rows) && len(lines) < maxLines; i++ {
		text := rows[i].Text()
		if addressStop.MatchString(text) {
			break
		}
		if line := cleanAddressLine(text); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return Missing()
	}

	conf := High
	if len(lines) == 1 {
		conf = Medium
	}
	for _, l := range lines {
		matched = append(matched, strings.Fields(l)...)
	}
	return Field{
		Value:         strings.Join(lines, ", "),
		Source:        SourcePrimary,
		Confidence:    conf,
		Strategy:      "address_block",
		TokensMatched: matched,
	}
}

func cleanAddressLine(s string) string {
	s = spaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.Trim(s, ",:;- ")
}

var qtyLabelRe = regexp.MustCompile(`(?i)\b(?:qty|quantity)\s*[:.]?\s*(\d{1,4})\b`)

// QuantityLabel finds an explicit "Qty: N" / "Quantity N" label in text.
// It returns the quantity, the matched label text and whether one was found.
func QuantityLabel(text string) (int, string, bool) {
	m := qtyLabelRe.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, "", false
	}
	return n, m[0], true
}
