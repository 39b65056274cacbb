package strike

import (
	"math"
	"testing"
)

func TestNearest(t *testing.T) {
	tests := []struct {
		price, inc float64
		want       int
		ok         bool
	}{
		{24513, 50, 24500, true},
		{24525, 50, 24500, true}, // half to even: 490.5 -> 490
		{24575, 50, 24600, true}, // 491.5 -> 492
		{24526, 50, 24550, true},
		{52049.99, 100, 52000, true},
		{52050, 100, 52000, true},
		{52150, 100, 52200, true},
		{5312.4, 10, 5310, true},
		{10, 50, 0, false},
		{0, 50, 0, false},
		{-5, 50, 0, false},
		{24513, 0, 0, false},
		{24513, -50, 0, false},
		{math.NaN(), 50, 0, false},
		{math.Inf(1), 50, 0, false},
	}
	for _, tt := range tests {
		got, ok := Nearest(tt.price, tt.inc)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("Nearest(%v, %v) = %d,%v want %d,%v", tt.price, tt.inc, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNearestMonotonic(t *testing.T) {
	for _, inc := range []float64{5, 50, 100} {
		prev := 0
		for p := 1.0; p < 30000; p += 7.3 {
			k, _ := Nearest(p, inc)
			if k < prev {
				t.Fatalf("inc %v: Nearest(%v)=%d < previous %d", inc, p, k, prev)
			}
			prev = k
		}
	}
}

func TestNearestExactMultiples(t *testing.T) {
	for _, inc := range []float64{5, 50, 100} {
		for k := 1; k <= 1000; k++ {
			want := k * int(inc)
			got, ok := Nearest(float64(want), inc)
			if !ok || got != want {
				t.Fatalf("Nearest(%d, %v) = %d,%v", want, inc, got, ok)
			}
		}
	}
}
