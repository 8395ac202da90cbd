package entity

import "math"

// RoundCents rounds a dollar amount to the nearest cent, half away from zero.
//
// All order arithmetic (subtotals, tax, totals) goes through this at every
// aggregation boundary so that independently computed totals agree between
// devices regardless of float accumulation order.
func RoundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}
