package ledger

import "github.com/shopspring/decimal"

// Epsilon is the tolerance used everywhere amounts are compared:
// one cent, 0.01 currency units. Differences within Epsilon are
// treated as settled / equal.
var Epsilon = decimal.NewFromFloat(0.01)

// dropThreshold is the magnitude below which a computed share is
// considered "contributed nothing" and omitted from persisted sets.
var dropThreshold = decimal.NewFromFloat(0.001)

// RoundCents rounds d to currency-minor-unit precision (2 decimals).
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// WithinEpsilon reports whether a and b differ by at most Epsilon.
func WithinEpsilon(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// Negligible reports whether d is small enough to drop from a share set.
func Negligible(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(dropThreshold)
}
