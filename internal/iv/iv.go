// Package iv turns aligned option and futures closes into an implied
// volatility series, and computes historical volatility when no option
// model applies.
//
// Values are annualised percentages. A computed series never contains a
// null: rejected samples are filled and every point records where its value
// came from in Source.
package iv

import (
	"errors"
	"math"
	"time"

	"github.com/contactkeval/iv-tracker/internal/align"
	"github.com/contactkeval/iv-tracker/internal/pricing"
	"github.com/contactkeval/iv-tracker/internal/symbol"
)

// Source tells where a point's value came from.
type Source string

const (
	SourceNone       Source = ""
	SourceModel      Source = "model"
	SourceHistorical Source = "historical-fallback"
	SourceOutlier    Source = "outlier-median"
	SourceForward    Source = "forward-fill"
	SourceBackward   Source = "backward-fill"
	SourceZero       Source = "zero-fill"
)

// Reason names the gate that rejected a sample.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonBadInput       Reason = "bad-input"
	ReasonPriceBound     Reason = "price-bound"
	ReasonMoneyness      Reason = "moneyness"
	ReasonExpiry         Reason = "expiry"
	ReasonBelowIntrinsic Reason = "below-intrinsic"
	ReasonNoSolution     Reason = "no-solution"
	ReasonOutOfRange     Reason = "out-of-range"
)

// Accepted volatility range as annual decimals.
const (
	MinIV = 0.0001
	MaxIV = 1.0
)

const (
	daysPerYear    = 365.0
	maxYears       = 2.0
	minYears       = 0.0001 // about 53 minutes
	priceCapRatio  = 0.5
	moneynessLow   = 0.5
	moneynessHigh  = 2.0
	intrinsicRatio = 0.5
)

// Params fixes the contract for a series.
type Params struct {
	Strike float64
	Expiry time.Time
	Side   symbol.Side
	Rate   float64
}

// Point is one value of a volatility series.
type Point struct {
	Time        time.Time
	Strike      float64
	Expiry      time.Time
	Side        symbol.Side
	OptionClose float64
	FutureClose float64
	// IV is a percentage; meaningless while Source is SourceNone.
	IV     float64
	Source Source
	// Reason is set when the model rejected the sample, even after filling.
	Reason Reason
}

// IsNull reports whether no value has been assigned yet.
func (p Point) IsNull() bool { return p.Source == SourceNone }

// YearsToExpiry is (expiry - at) on a 365-day year.
func YearsToExpiry(expiry, at time.Time) float64 {
	return expiry.Sub(at).Seconds() / (daysPerYear * 24 * 3600)
}

// Evaluate inverts one sample. It returns the volatility as a decimal, or a
// non-empty Reason when a sanity gate or the inversion rejects it.
func Evaluate(s align.Sample, p Params) (float64, Reason) {
	opt, fut, k := s.OptionClose, s.FutureClose, p.Strike
	if math.IsNaN(opt) || math.IsNaN(fut) || opt <= 0 || fut <= 0 || !(k > 0) {
		return 0, ReasonBadInput
	}
	isCall := p.Side == symbol.Call
	if opt > priceCapRatio*k || (isCall && opt > priceCapRatio*fut) {
		return 0, ReasonPriceBound
	}
	if fut < moneynessLow*k || fut > moneynessHigh*k {
		return 0, ReasonMoneyness
	}
	T := YearsToExpiry(p.Expiry, s.Time)
	if T <= 0 || T > maxYears || T < minYears {
		return 0, ReasonExpiry
	}
	intrinsic := math.Max(0, fut-k)
	if !isCall {
		intrinsic = math.Max(0, k-fut)
	}
	if opt < intrinsicRatio*intrinsic {
		return 0, ReasonBelowIntrinsic
	}

	sigma, err := pricing.ImpliedVol(isCall, opt, fut, k, T, p.Rate)
	if err != nil {
		if errors.Is(err, pricing.ErrBadInput) {
			return 0, ReasonBadInput
		}
		return 0, ReasonNoSolution
	}
	if sigma < MinIV || sigma > MaxIV || math.IsNaN(sigma) {
		return 0, ReasonOutOfRange
	}
	return sigma, ReasonNone
}

// Model evaluates every sample without suppression or filling. Rejected
// samples come back null with their Reason.
func Model(samples []align.Sample, p Params) []Point {
	out := make([]Point, len(samples))
	for i, s := range samples {
		pt := Point{
			Time:        s.Time,
			Strike:      p.Strike,
			Expiry:      p.Expiry,
			Side:        p.Side,
			OptionClose: s.OptionClose,
			FutureClose: s.FutureClose,
		}
		if sigma, reason := Evaluate(s, p); reason == ReasonNone {
			pt.IV = sigma * 100
			pt.Source = SourceModel
		} else {
			pt.Reason = reason
		}
		out[i] = pt
	}
	return out
}

// Compute runs the model over samples, replaces isolated spikes and fills
// the gaps. The result has one point per sample and no nulls.
func Compute(samples []align.Sample, p Params) []Point {
	pts := Model(samples, p)
	SuppressOutliers(pts)
	Fill(pts)
	return pts
}

// Stats summarises a computed series.
type Stats struct {
	Model, Filled, Outliers int
	Rejected                map[Reason]int
}

// Summarize counts points by origin.
func Summarize(pts []Point) Stats {
	st := Stats{Rejected: map[Reason]int{}}
	for _, p := range pts {
		switch p.Source {
		case SourceModel:
			st.Model++
		case SourceOutlier:
			st.Outliers++
		case SourceForward, SourceBackward, SourceZero:
			st.Filled++
		}
		if p.Reason != ReasonNone {
			st.Rejected[p.Reason]++
		}
	}
	return st
}
