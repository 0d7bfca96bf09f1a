package lineitems

import (
	"sort"
	"strconv"

	"github.com/brunobiangulo/orderdoc/fields"
	"github.com/brunobiangulo/orderdoc/layout"
)

// clusterGap is the horizontal distance within which small integers are
// treated as one column.
const clusterGap = 12.0

type quantity struct {
	value  int
	source QtySource
	// tokenIndex is the row token holding the value, or -1.
	tokenIndex int
	// label is the matched "Qty: N" text for label quantities.
	label string
}

// resolveQuantity applies the precedence QTY column, explicit label,
// densest small-integer column, then a guess of 1.
func (e *Extractor) resolveQuantity(row layout.Row, qtyCol layout.ColumnRange, hasQty bool, cl *xCluster) quantity {
	if hasQty {
		for i, t := range row.Tokens {
			if !qtyCol.Contains(t.X) {
				continue
			}
			if n, ok := positiveInt(t.Text); ok {
				return quantity{value: n, source: QtyColumn, tokenIndex: i}
			}
		}
	}
	if n, label, ok := fields.QuantityLabel(row.Text()); ok {
		return quantity{value: n, source: QtyLabel, tokenIndex: -1, label: label}
	}
	if cl != nil {
		for i, t := range row.Tokens {
			if !cl.contains(t.X) {
				continue
			}
			if n, ok := smallInt(t.Text, e.cfg.MaxQuantity); ok {
				return quantity{value: n, source: QtyProximity, tokenIndex: i}
			}
		}
	}
	return quantity{value: 1, source: QtyGuessed, tokenIndex: -1}
}

// positiveInt accepts any positive integer. A QTY column value is
// trusted whatever its size.
func positiveInt(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// smallInt bounds the proximity guess, where any number on the row could
// be mistaken for a quantity.
func smallInt(s string, maxQty int) (int, bool) {
	if len(s) == 0 || len(s) > 3 {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxQty {
		return 0, false
	}
	return n, true
}

type xCluster struct {
	minX, maxX float64
	members    int
}

func (c *xCluster) contains(x float64) bool {
	return x >= c.minX-clusterGap && x <= c.maxX+clusterGap
}

// densestQtyCluster groups the x positions of all small integers in rows
// and returns the group with the most members. Ties go to the leftmost
// group. Nil when no small integer exists.
func densestQtyCluster(rows []layout.Row, maxQty int) *xCluster {
	var xs []float64
	for _, r := range rows {
		for _, t := range r.Tokens {
			if _, ok := smallInt(t.Text, maxQty); ok {
				xs = append(xs, t.X)
			}
		}
	}
	if len(xs) == 0 {
		return nil
	}
	sort.Float64s(xs)

	var best *xCluster
	cur := &xCluster{minX: xs[0], maxX: xs[0], members: 1}
	for _, x := range xs[1:] {
		if x-cur.maxX <= clusterGap {
			cur.maxX = x
			cur.members++
			continue
		}
		if best == nil || cur.members > best.members {
			best = cur
		}
		cur = &xCluster{minX: x, maxX: x, members: 1}
	}
	if best == nil || cur.members > best.members {
		best = cur
	}
	return best
}
