package pending

import "github.com/shopspring/decimal"

// PivotPrice is the golden-ratio retracement entry of a signal bar. A rising
// bar yields open + (close-open) × ratio; any other bar degenerates to close.
func PivotPrice(open, close, ratio decimal.Decimal) decimal.Decimal {
	if close.GreaterThan(open) {
		return open.Add(close.Sub(open).Mul(ratio))
	}
	return close
}

// IsImmediate reports whether the pivot degenerates to an immediate entry.
func IsImmediate(open, close decimal.Decimal) bool {
	return !close.GreaterThan(open)
}

// Touched is the replay fill rule: a resting buy at pivot fills iff the next
// bar trades at or below it.
func Touched(nextLow, pivot decimal.Decimal) bool {
	return nextLow.LessThanOrEqual(pivot)
}
