package iv

import (
	"math"

	"github.com/contactkeval/iv-tracker/internal/data"
)

// HVWindow is the rolling window of log returns.
const HVWindow = 20

// HistoricalVolatility annualises the standard deviation of log returns of
// bars' closes, as a percentage per bar.
//
// With more than HVWindow bars each point uses the HVWindow returns ending at
// it; earlier points have no full window. With fewer bars every point gets
// the deviation of all returns. Points without a value are forward filled
// and then zero filled. Fewer than two bars give nil.
func HistoricalVolatility(bars []data.Bar, tf data.Timeframe) []Point {
	n := len(bars)
	if n < 2 {
		return nil
	}
	scale := math.Sqrt(tf.PeriodsPerYear()) * 100

	returns := make([]float64, n)
	returns[0] = math.NaN()
	for i := 1; i < n; i++ {
		prev, cur := bars[i-1].Close, bars[i].Close
		if prev > 0 && cur > 0 {
			returns[i] = math.Log(cur / prev)
		} else {
			returns[i] = math.NaN()
		}
	}

	hv := make([]float64, n)
	if n > HVWindow {
		for i := range hv {
			hv[i] = math.NaN()
			if i < HVWindow {
				continue
			}
			win := returns[i-HVWindow+1 : i+1]
			if anyNaN(win) {
				continue
			}
			hv[i] = stddev(win) * scale
		}
	} else {
		var all []float64
		for _, r := range returns {
			if !math.IsNaN(r) {
				all = append(all, r)
			}
		}
		v := math.NaN()
		if len(all) >= 2 {
			v = stddev(all) * scale
		}
		for i := range hv {
			hv[i] = v
		}
	}

	out := make([]Point, n)
	for i, b := range bars {
		out[i] = Point{Time: b.Date, OptionClose: b.Close}
		if !math.IsNaN(hv[i]) {
			out[i].IV = hv[i]
			out[i].Source = SourceHistorical
		}
	}
	forwardThenZero(out)
	return out
}

func forwardThenZero(pts []Point) {
	last, seen := 0.0, false
	for i := range pts {
		switch {
		case !pts[i].IsNull():
			last, seen = pts[i].IV, true
		case seen:
			pts[i].IV, pts[i].Source = last, SourceForward
		default:
			pts[i].IV, pts[i].Source = 0, SourceZero
		}
	}
}

func anyNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
