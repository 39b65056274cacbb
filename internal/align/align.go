// Package align pairs option bars with futures bars that share a minute.
package align

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/contactkeval/iv-tracker/internal/data"
)

// ErrMergeAnomaly is returned when the raw join is more than twice the size
// of the option series, which only happens when one side repeats minutes
// heavily and the pairing can no longer be trusted.
var ErrMergeAnomaly = errors.New("merge anomaly")

// Sample is one matched pair. Time is the option bar's original timestamp.
type Sample struct {
	Time        time.Time
	OptionClose float64
	FutureClose float64
}

// RoundMinute rounds t to the nearest minute, halves rounding up.
func RoundMinute(t time.Time) time.Time {
	return t.Round(time.Minute)
}

// Align inner-joins option and future bars on the rounded minute.
//
// Every option bar is paired with every future bar of the same minute. If
// that raw join exceeds twice len(option) the result is rejected with
// ErrMergeAnomaly. Otherwise only the first pair per minute is kept, in
// option order, and the output is sorted by time. Unmatched minutes are
// dropped; nothing is filled.
func Align(option, future []data.Bar) ([]Sample, error) {
	if len(option) == 0 || len(future) == 0 {
		return nil, nil
	}

	byMinute := make(map[int64][]float64, len(future))
	for _, b := range future {
		k := RoundMinute(b.Date).Unix()
		byMinute[k] = append(byMinute[k], b.Close)
	}

	joined := 0
	for _, b := range option {
		joined += len(byMinute[RoundMinute(b.Date).Unix()])
	}
	if joined > 2*len(option) {
		return nil, fmt.Errorf("%w: %d joined rows for %d option bars", ErrMergeAnomaly, joined, len(option))
	}

	seen := make(map[int64]struct{}, len(option))
	out := make([]Sample, 0, len(option))
	for _, b := range option {
		k := RoundMinute(b.Date).Unix()
		closes, ok := byMinute[k]
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, Sample{Time: b.Date, OptionClose: b.Close, FutureClose: closes[0]})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
