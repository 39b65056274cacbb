package iv

import (
	"math"
	"sort"
)

const (
	outlierSigmas   = 3.0
	outlierRelative = 0.2
	replaceRadius   = 2
)

// outlierWindow is about a tenth of the series, between 3 and 5 samples.
func outlierWindow(n int) int {
	w := n / 10
	if w < 3 {
		w = 3
	}
	if w > 5 {
		w = 5
	}
	return w
}

// SuppressOutliers replaces spikes in place. A value is a spike when it is
// more than three standard deviations and more than 20% away from the
// median of the valid values around it in a centred window; the candidate
// itself is excluded from the window statistics. A spike becomes the median
// of its valid neighbours within two positions. All comparisons use the
// values as they were before this pass.
func SuppressOutliers(pts []Point) {
	n := len(pts)
	if n < 3 {
		return
	}
	orig := make([]float64, n)
	valid := make([]bool, n)
	for i, p := range pts {
		orig[i], valid[i] = p.IV, !p.IsNull()
	}
	half := outlierWindow(n) / 2

	for i := 0; i < n; i++ {
		if !valid[i] {
			continue
		}
		nb := neighbours(orig, valid, i, half)
		if len(nb) < 2 {
			continue
		}
		med := median(nb)
		dev := math.Abs(orig[i] - med)
		if dev <= outlierSigmas*stddev(nb) || dev <= outlierRelative*math.Abs(med) {
			continue
		}
		repl := neighbours(orig, valid, i, replaceRadius)
		pts[i].IV = median(repl)
		pts[i].Source = SourceOutlier
	}
}

func neighbours(vals []float64, valid []bool, i, radius int) []float64 {
	var out []float64
	for j := i - radius; j <= i+radius; j++ {
		if j == i || j < 0 || j >= len(vals) || !valid[j] {
			continue
		}
		out = append(out, vals[j])
	}
	return out
}

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

// stddev is the sample standard deviation (n-1).
func stddev(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	var mean float64
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	var ss float64
	for _, x := range v {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(v)-1))
}

// Fill assigns every null point in place: first the last earlier value,
// then the first later value, and zero when the series has no value at all.
func Fill(pts []Point) {
	last, seen := 0.0, false
	for i := range pts {
		if !pts[i].IsNull() {
			last, seen = pts[i].IV, true
			continue
		}
		if seen {
			pts[i].IV, pts[i].Source = last, SourceForward
		}
	}
	next, seen := 0.0, false
	for i := len(pts) - 1; i >= 0; i-- {
		if !pts[i].IsNull() {
			next, seen = pts[i].IV, true
			continue
		}
		if seen {
			pts[i].IV, pts[i].Source = next, SourceBackward
		}
	}
	for i := range pts {
		if pts[i].IsNull() {
			pts[i].IV, pts[i].Source = 0, SourceZero
		}
	}
}
