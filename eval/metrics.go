package eval

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/brunobiangulo/orderdoc/orders"
)

// normalizeSKU folds the characters PDF text layers substitute for plain
// ASCII so that SKUs compare reliably:
//   - Unicode hyphens and dashes → ASCII hyphen
//   - Unicode whitespace and zero-width characters are stripped
//   - letters are upper-cased
func normalizeSKU(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			// dropped
		case r == '\u2010' || r == '\u2011' || r == '\u2012' || r == '\u2013' || r == '\u2014':
			b.WriteByte('-')
		case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\uFEFF':
			// strip zero-width characters
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// ItemScore compares extracted line items against the expected ones.
type ItemScore struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	// QuantityAccuracy is the share of matched SKUs with the right quantity.
	QuantityAccuracy float64 `json:"quantity_accuracy"`

	Missing            []string `json:"missing,omitempty"`
	Unexpected         []string `json:"unexpected,omitempty"`
	QuantityMismatches []string `json:"quantity_mismatches,omitempty"`
}

// scoreItems matches SKUs as multisets: a SKU expected twice must be
// extracted twice. Quantities are compared pairwise in document order.
func scoreItems(got []orders.OrderLine, want []ExpectedItem) ItemScore {
	var s ItemScore

	wantQty := make(map[string][]int)
	for _, w := range want {
		k := normalizeSKU(w.SKU)
		wantQty[k] = append(wantQty[k], w.Quantity)
	}

	matched, qtyOK := 0, 0
	for _, g := range got {
		k := normalizeSKU(g.Item.SKU)
		q := wantQty[k]
		if len(q) == 0 {
			s.Unexpected = append(s.Unexpected, g.Item.SKU)
			continue
		}
		matched++
		if q[0] == g.Item.Quantity {
			qtyOK++
		} else {
			s.QuantityMismatches = append(s.QuantityMismatches,
				fmt.Sprintf("%s: got %d want %d", g.Item.SKU, g.Item.Quantity, q[0]))
		}
		wantQty[k] = q[1:]
	}
	for k, q := range wantQty {
		for range q {
			s.Missing = append(s.Missing, k)
		}
	}
	sort.Strings(s.Missing)

	switch {
	case len(got) == 0 && len(want) == 0:
		s.Precision, s.Recall = 1, 1
	case len(got) == 0:
		s.Precision, s.Recall = 1, 0
	case len(want) == 0:
		s.Precision, s.Recall = 0, 1
	default:
		s.Precision = float64(matched) / float64(len(got))
		s.Recall = float64(matched) / float64(len(want))
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	s.QuantityAccuracy = 1
	if matched > 0 {
		s.QuantityAccuracy = float64(qtyOK) / float64(matched)
	}
	return s
}

// scoreFields returns the share of expected fields extracted with the
// expected value, plus a description of every mismatch.
func scoreFields(got orders.Fields, want map[string]string) (float64, []string) {
	if len(want) == 0 {
		return 1, nil
	}
	byName := got.ByName()
	names := make([]string, 0, len(want))
	for n := range want {
		names = append(names, n)
	}
	sort.Strings(names)

	ok := 0
	var mismatches []string
	for _, n := range names {
		f, known := byName[n]
		if !known {
			mismatches = append(mismatches, fmt.Sprintf("%s: unknown field", n))
			continue
		}
		if strings.EqualFold(strings.TrimSpace(f.Value), strings.TrimSpace(want[n])) {
			ok++
			continue
		}
		mismatches = append(mismatches, fmt.Sprintf("%s: got %q want %q", n, f.Value, want[n]))
	}
	return float64(ok) / float64(len(want)), mismatches
}

// checkRejections reports expected rejections that were instead accepted
// or never seen.
func checkRejections(res *orders.DocumentResult, want []string) []string {
	if len(want) == 0 {
		return nil
	}
	rejected := make(map[string]bool)
	for _, p := range res.Pages {
		for _, r := range p.Rejections {
			rejected[normalizeSKU(r.Candidate)] = true
		}
	}
	var out []string
	for _, w := range want {
		if !rejected[normalizeSKU(w)] {
			out = append(out, w)
		}
	}
	return out
}
