package data

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a bar resolution, named by its exchange code.
type Timeframe string

const (
	Second1  Timeframe = "1S"
	Minute1  Timeframe = "1"
	Minute5  Timeframe = "5"
	Minute15 Timeframe = "15"
	Minute30 Timeframe = "30"
	Hour1    Timeframe = "60"
	Hour2    Timeframe = "120"
	Day1     Timeframe = "1D"
)

// periodsPerYear annualises per-bar volatility: 252 trading days of a
// 375 minute session.
var periodsPerYear = map[Timeframe]float64{
	Second1:  252 * 375 * 60,
	Minute1:  252 * 375,
	Minute5:  252 * 75,
	Minute15: 252 * 25,
	Minute30: 252 * 12,
	Hour1:    252 * 6,
	Hour2:    252 * 3,
	Day1:     252,
}

var timeframeAliases = map[string]Timeframe{
	"1s": Second1, "1sec": Second1,
	"1": Minute1, "1m": Minute1, "1min": Minute1,
	"5": Minute5, "5m": Minute5, "5min": Minute5,
	"15": Minute15, "15m": Minute15, "15min": Minute15,
	"30": Minute30, "30m": Minute30, "30min": Minute30,
	"60": Hour1, "1h": Hour1, "60m": Hour1,
	"120": Hour2, "2h": Hour2, "120m": Hour2,
	"1d": Day1, "d": Day1, "day": Day1, "daily": Day1,
}

// ParseTimeframe accepts exchange codes ("5", "1D") and common aliases ("5m", "day").
func ParseTimeframe(s string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", fmt.Errorf("timeframe is required")
	}
	if tf, ok := timeframeAliases[key]; ok {
		return tf, nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// PeriodsPerYear returns the annualisation factor for tf, 252 if unknown.
func (tf Timeframe) PeriodsPerYear() float64 {
	if v, ok := periodsPerYear[tf]; ok {
		return v
	}
	return 252
}

// Duration is the length of one bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Second1:
		return time.Second
	case Minute1:
		return time.Minute
	case Minute5:
		return 5 * time.Minute
	case Minute15:
		return 15 * time.Minute
	case Minute30:
		return 30 * time.Minute
	case Hour1:
		return time.Hour
	case Hour2:
		return 2 * time.Hour
	}
	return 24 * time.Hour
}

func (tf Timeframe) String() string { return string(tf) }
