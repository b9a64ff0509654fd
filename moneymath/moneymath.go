// Package moneymath provides decimal-safe helpers for the boundary between
// configuration/display (where shopspring/decimal avoids float drift in
// logged prices and ratios) and the hot per-bar math in greeks/volsurface,
// which stays on float64 for speed.
package moneymath

import (
	"github.com/shopspring/decimal"
)

// RoundToTick rounds price to the nearest multiple of tick using
// direction-aware rounding: aggressive rounds toward the taker side,
// passive rounds to the nearest tick.
//
// aggressive=true, buy side  -> rounds up (pay more to guarantee fill)
// aggressive=true, sell side -> rounds down
// aggressive=false            -> rounds to nearest tick
func RoundToTick(price, tick float64, isBuy bool, aggressive bool) float64 {
	if tick <= 0 {
		return price
	}
	d := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	ratio := d.Div(t)

	var rounded decimal.Decimal
	switch {
	case aggressive && isBuy:
		rounded = ratio.Ceil()
	case aggressive && !isBuy:
		rounded = ratio.Floor()
	default:
		rounded = ratio.Round(0)
	}
	result, _ := rounded.Mul(t).Float64()
	return result
}

// FormatPrice renders a price with 2 decimal places for log/display use,
// routed through decimal to avoid float formatting surprises (e.g. 9.999999999999998).
func FormatPrice(price float64) string {
	return decimal.NewFromFloat(price).Round(2).String()
}

// SplitVolume divides total into n roughly equal integer parts summing
// exactly to total, with any remainder absorbed by the last part. Used by
// the scheduler's equal-split algorithms (TWAP/ENHANCED_TWAP).
func SplitVolume(total, n int) []int {
	if n <= 0 || total <= 0 {
		return nil
	}
	base := total / n
	remainder := total % n
	parts := make([]int, n)
	for i := range parts {
		parts[i] = base
	}
	parts[n-1] += remainder
	return parts
}
