package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/contactkeval/iv-tracker/internal/logger"
	"github.com/contactkeval/iv-tracker/internal/market"
	"github.com/contactkeval/iv-tracker/internal/symbol"
)

// localGateway replays bars recorded in CSV files, one file per symbol and
// timeframe: <dir>/<symbol file name>_<timeframe>.csv with a header row
// date,open,high,low,close,volume. The last price of a symbol is the close
// of its newest bar in any timeframe file, preferring 1-minute.
type localGateway struct {
	dir       string
	secondary Gateway
}

// NewLocalGateway convenience constructor.
func NewLocalGateway(dir string, secondary Gateway) *localGateway {
	return &localGateway{dir: dir, secondary: secondary}
}

func (l *localGateway) Name() string { return "local" }

func (l *localGateway) Secondary() Gateway { return l.secondary }

// LocalFile is the replay file path for sym at tf under dir.
func LocalFile(dir, sym string, tf Timeframe) string {
	return filepath.Join(dir, symbol.FileName(sym)+"_"+string(tf)+".csv")
}

func (l *localGateway) LastPrice(ctx context.Context, sym string) (float64, error) {
	for _, tf := range []Timeframe{Minute1, Second1, Minute5, Minute15, Minute30, Hour1, Hour2, Day1} {
		bars, err := l.readBars(LocalFile(l.dir, sym, tf))
		if errors.Is(err, ErrNoData) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return bars[len(bars)-1].Close, nil
	}
	return 0, fmt.Errorf("%w: no local file for %s", ErrNoData, sym)
}

func (l *localGateway) History(ctx context.Context, sym string, tf Timeframe, from, to time.Time) ([]Bar, error) {
	bars, err := l.readBars(LocalFile(l.dir, sym, tf))
	if err != nil {
		return nil, err
	}
	out := bars[:0]
	for _, b := range bars {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s has no bars between %s and %s", ErrNoData, sym,
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return out, nil
}

var localDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseLocalDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).In(market.IST), nil
	}
	for _, layout := range localDateLayouts {
		if t, err := time.ParseInLocation(layout, s, market.IST); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func (l *localGateway) readBars(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoData, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrTransport, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var bars []Bar
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrTransport, path, err)
		}
		if line == 1 || len(row) < 5 {
			continue // header
		}
		d, err := parseLocalDate(row[0])
		if err != nil {
			logger.Debugf("%s line %d: %v", path, line, err)
			continue
		}
		var vals [5]float64
		ok := true
		for i := 1; i < len(row) && i <= 5; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil {
				ok = false
				break
			}
			vals[i-1] = v
		}
		if !ok {
			logger.Debugf("%s line %d: bad number", path, line)
			continue
		}
		bars = append(bars, Bar{Date: d, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Vol: vals[4]})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s has no bars", ErrNoData, path)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}
