// Package strike snaps an underlying price to the at-the-money strike.
package strike

import (
	"math"

	"github.com/shopspring/decimal"
)

// Nearest rounds price to the nearest multiple of increment and reports
// whether a strike exists. Halfway prices round to the even multiple
// (24525 with increment 50 gives 24500, 24575 gives 24600), computed in
// decimal so the result does not depend on binary float rounding.
//
// A non-positive or non-finite price or increment has no strike.
func Nearest(price, increment float64) (int, bool) {
	if !(price > 0) || !(increment > 0) || math.IsInf(price, 0) || math.IsInf(increment, 0) {
		return 0, false
	}
	p := decimal.NewFromFloat(price)
	inc := decimal.NewFromFloat(increment)
	steps := p.DivRound(inc, 12).RoundBank(0)
	k := steps.Mul(inc).Round(0).IntPart()
	if k <= 0 {
		return 0, false
	}
	return int(k), true
}
