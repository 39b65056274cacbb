// Package pricing implements the Black-76 model for European options on
// futures and its inversion for implied volatility.
package pricing

import (
	"errors"
	"math"
)

const sqrt2Pi = 2.5066282746310002

// Search bounds for ImpliedVol, as annual decimal volatility.
const (
	MinVol = 1e-4
	MaxVol = 5.0
)

var (
	// ErrNoSolution means no volatility in [MinVol, MaxVol] reproduces the price.
	ErrNoSolution = errors.New("implied vol: no solution")
	// ErrBadInput means a non-positive or non-finite input.
	ErrBadInput = errors.New("implied vol: invalid input")
)

// Black76Price calculates the price of a European option on a futures contract.
//
// Parameters:
//   - isCall: true for call option, false for put option
//   - F: futures price
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual, continuous)
//   - sigma: volatility of the futures price (annual, as a decimal)
//
// Returns:
//
//	The discounted option value. If time to expiry or volatility is zero or
//	negative, returns the discounted intrinsic value.
func Black76Price(isCall bool, F, K, T, r, sigma float64) float64 {
	df := math.Exp(-r * math.Max(T, 0))
	if T <= 0 || sigma <= 0 {
		if isCall {
			return df * math.Max(0, F-K)
		}
		return df * math.Max(0, K-F)
	}

	sqrtT := math.Sqrt(T)
	d1 := (math.Log(F/K) + 0.5*sigma*sigma*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	if isCall {
		return df * (F*normCDF(d1) - K*normCDF(d2))
	}
	return df * (K*normCDF(-d2) - F*normCDF(-d1))
}

// Black76Vega is dPrice/dSigma, identical for calls and puts.
// Returns 0 if T or sigma is non-positive.
func Black76Vega(F, K, T, r, sigma float64) float64 {
	if T <= 0 || sigma <= 0 {
		return 0
	}
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(F/K) + 0.5*sigma*sigma*T) / (sigma * sqrtT)
	return math.Exp(-r*T) * F * normPDF(d1) * sqrtT
}

// ImpliedVol solves Black76Price(isCall, F, K, T, r, sigma) == price for sigma.
//
// Newton-Raphson from 30% is tried first. When vega vanishes or the step
// leaves the bounds without converging, bisection on [MinVol, MaxVol] takes
// over; the price is monotonic in sigma there so bisection always settles if
// a root is bracketed.
func ImpliedVol(isCall bool, price, F, K, T, r float64) (float64, error) {
	for _, v := range []float64{price, F, K, T, r} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, ErrBadInput
		}
	}
	if price <= 0 || F <= 0 || K <= 0 || T <= 0 {
		return 0, ErrBadInput
	}

	const (
		maxIter = 100
		tol     = 1e-8
	)

	lo, hi := Black76Price(isCall, F, K, T, r, MinVol), Black76Price(isCall, F, K, T, r, MaxVol)
	if price < lo-tol || price > hi+tol {
		return 0, ErrNoSolution
	}

	sigma := 0.30
	for i := 0; i < maxIter; i++ {
		diff := Black76Price(isCall, F, K, T, r, sigma) - price
		if math.Abs(diff) < tol {
			return sigma, nil
		}
		vega := Black76Vega(F, K, T, r, sigma)
		if vega < 1e-10 {
			break
		}
		next := sigma - diff/vega
		if next <= MinVol || next >= MaxVol || math.IsNaN(next) {
			break
		}
		sigma = next
	}

	return bisect(isCall, price, F, K, T, r)
}

func bisect(isCall bool, price, F, K, T, r float64) (float64, error) {
	a, b := MinVol, MaxVol
	for i := 0; i < 200; i++ {
		mid := 0.5 * (a + b)
		diff := Black76Price(isCall, F, K, T, r, mid) - price
		if math.Abs(diff) < 1e-8 || (b-a) < 1e-10 {
			return mid, nil
		}
		if diff > 0 {
			b = mid
		} else {
			a = mid
		}
	}
	return 0, ErrNoSolution
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

// normCDF is the standard normal CDF via the error function.
func normCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}
