package pricing

import (
	"errors"
	"math"
	"testing"
)

// Simple sanity check: ATM call should have non-zero value
func TestBlack76CallBasic(t *testing.T) {
	call := Black76Price(true, 24500, 24500, 30.0/365.0, 0.10, 0.15)
	if call <= 0 {
		t.Fatalf("expected call price > 0, got %f", call)
	}
}

// Put-call parity on futures: C - P = e^{-rT}(F - K)
func TestBlack76PutCallParity(t *testing.T) {
	F, K, T, r, sigma := 24513.0, 24500.0, 45.0/365.0, 0.10, 0.18

	call := Black76Price(true, F, K, T, r, sigma)
	put := Black76Price(false, F, K, T, r, sigma)

	lhs := call - put
	rhs := math.Exp(-r*T) * (F - K)
	if math.Abs(lhs-rhs) > 1e-6 {
		t.Fatalf("put-call parity violated: LHS=%f RHS=%f", lhs, rhs)
	}
}

func TestBlack76IntrinsicAtExpiry(t *testing.T) {
	if got := Black76Price(true, 110, 100, 0, 0.1, 0.2); got != 10 {
		t.Fatalf("call intrinsic = %f", got)
	}
	if got := Black76Price(false, 110, 100, 0, 0.1, 0.2); got != 0 {
		t.Fatalf("put intrinsic = %f", got)
	}
}

func TestImpliedVolRecoversSigma(t *testing.T) {
	cases := []struct {
		isCall bool
		F, K   float64
		T      float64
		sigma  float64
	}{
		{true, 24513, 24500, 7.0 / 365, 0.12},
		{false, 24513, 24500, 7.0 / 365, 0.12},
		{true, 5300, 5600, 30.0 / 365, 0.35},
		{false, 5300, 5000, 30.0 / 365, 0.45},
		{true, 100, 100, 1.0 / 365, 0.90},
		{false, 52000, 51000, 0.5, 0.02},
	}
	for _, c := range cases {
		price := Black76Price(c.isCall, c.F, c.K, c.T, 0.10, c.sigma)
		got, err := ImpliedVol(c.isCall, price, c.F, c.K, c.T, 0.10)
		if err != nil {
			t.Fatalf("ImpliedVol(%+v): %v", c, err)
		}
		if math.Abs(got-c.sigma) > 1e-5 {
			t.Fatalf("ImpliedVol(%+v) = %f, want %f", c, got, c.sigma)
		}
	}
}

func TestImpliedVolRejectsUnreachablePrice(t *testing.T) {
	// below discounted intrinsic: no volatility reproduces it
	F, K, T, r := 110.0, 100.0, 0.1, 0.1
	_, err := ImpliedVol(true, 5, F, K, T, r)
	if !errors.Is(err, ErrNoSolution) {
		t.Fatalf("expected ErrNoSolution, got %v", err)
	}
	// above the futures price
	if _, err := ImpliedVol(true, 200, F, K, T, r); !errors.Is(err, ErrNoSolution) {
		t.Fatalf("expected ErrNoSolution, got %v", err)
	}
}

func TestImpliedVolRejectsBadInput(t *testing.T) {
	bad := [][5]float64{
		{0, 100, 100, 0.1, 0.1},
		{1, -1, 100, 0.1, 0.1},
		{1, 100, 0, 0.1, 0.1},
		{1, 100, 100, 0, 0.1},
		{math.NaN(), 100, 100, 0.1, 0.1},
		{1, math.Inf(1), 100, 0.1, 0.1},
	}
	for _, b := range bad {
		if _, err := ImpliedVol(true, b[0], b[1], b[2], b[3], b[4]); !errors.Is(err, ErrBadInput) {
			t.Fatalf("ImpliedVol(%v) err=%v", b, err)
		}
	}
}
