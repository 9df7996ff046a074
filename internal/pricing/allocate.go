// Package pricing repairs missing per-line prices of a single order.
package pricing

// Line is the pricing view of one sibling line of an order.
type Line struct {
	Quantity    float64
	UnitPrice   float64
	LineRevenue float64
}

// HasPricing reports whether the line carries any positive price signal.
func (l Line) HasPricing() bool {
	return l.UnitPrice > 0 || l.LineRevenue > 0
}

// Allocate fills missing unit prices and line revenues for the sibling lines
// of one order whose net revenue is orderNet. It returns a new slice; the
// input is not modified.
//
// When any sibling has real pricing, each line is completed from its own
// figures (revenue from price × quantity, or price from revenue / quantity)
// and lines that already have both are untouched. Only the division floors
// the quantity. When no sibling has
// pricing and orderNet > 0, orderNet is split by quantity share. Quantities
// below 1 count as 1 so that no line divides by zero and a malformed
// zero-quantity line cannot absorb the whole order. With no pricing and
// orderNet <= 0 the lines stay unpriced.
func Allocate(lines []Line, orderNet float64) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	if len(out) == 0 {
		return out
	}

	if anyPriced(out) {
		for i := range out {
			l := &out[i]
			switch {
			case l.LineRevenue <= 0 && l.UnitPrice > 0:
				l.LineRevenue = l.UnitPrice * l.Quantity
			case l.UnitPrice <= 0 && l.LineRevenue > 0:
				l.UnitPrice = l.LineRevenue / floorQty(l.Quantity)
			}
		}
		return out
	}

	if orderNet <= 0 {
		return out
	}

	var sumQty float64
	for _, l := range out {
		sumQty += floorQty(l.Quantity)
	}
	for i := range out {
		q := floorQty(out[i].Quantity)
		share := orderNet * (q / sumQty)
		out[i].LineRevenue = share
		out[i].UnitPrice = share / q
	}
	return out
}

func anyPriced(lines []Line) bool {
	for _, l := range lines {
		if l.HasPricing() {
			return true
		}
	}
	return false
}

func floorQty(q float64) float64 {
	if q < 1 {
		return 1
	}
	return q
}
