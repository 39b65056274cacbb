// Package store keeps one CSV file of computed volatility rows per option
// symbol and merges new rows into it.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/contactkeval/iv-tracker/internal/iv"
	"github.com/contactkeval/iv-tracker/internal/logger"
	"github.com/contactkeval/iv-tracker/internal/market"
	"github.com/contactkeval/iv-tracker/internal/symbol"
)

// TimeLayout is the on-disk timestamp format, always written in IST.
const TimeLayout = "2006-01-02 15:04:05-07:00"

const ext = ".csv"

// Columns is the fixed header of every store file.
var Columns = []string{
	"timestamp", "option_name", "underlying_name", "option_close", "future_close",
	"strike", "expiry", "iv", "side", "timeframe", "source",
}

// ErrNoSeries is returned by Load when nothing was stored for a symbol.
var ErrNoSeries = errors.New("store: no series")

// Row is one persisted sample.
type Row struct {
	Time           time.Time
	OptionName     string
	UnderlyingName string
	OptionClose    float64
	FutureClose    float64
	Strike         float64
	Expiry         time.Time
	IV             float64
	Side           string
	Timeframe      string
	Source         string
}

// FromPoints converts a computed series into rows.
func FromPoints(pts []iv.Point, option, underlying, timeframe string) []Row {
	rows := make([]Row, len(pts))
	for i, p := range pts {
		rows[i] = Row{
			Time:           p.Time,
			OptionName:     option,
			UnderlyingName: underlying,
			OptionClose:    p.OptionClose,
			FutureClose:    p.FutureClose,
			Strike:         p.Strike,
			Expiry:         p.Expiry,
			IV:             p.IV,
			Side:           p.Side.String(),
			Timeframe:      timeframe,
			Source:         string(p.Source),
		}
	}
	return rows
}

// Store is a directory of series files. Methods are safe for concurrent use.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Path is the file holding sym's series.
func (s *Store) Path(sym string) string {
	return filepath.Join(s.dir, symbol.FileName(sym)+ext)
}

// Upsert merges rows into the series of sym and returns the number of rows
// stored afterwards. On a duplicate timestamp the row from rows wins, and
// among rows the later one wins. The file is sorted by time. An existing file
// that cannot be read is replaced by rows alone.
func (s *Store) Upsert(sym string, rows []Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(sym)
	merged := map[string][]string{}
	existing, err := readRecords(path)
	switch {
	case err == nil:
		for _, rec := range existing {
			merged[rec[0]] = rec
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		logger.Warnf("store: overwriting unreadable %s: %v", path, err)
	}
	for _, r := range rows {
		if r.Time.IsZero() {
			continue
		}
		rec := encode(r)
		merged[rec[0]] = rec
	}

	out := make([][]string, 0, len(merged))
	for _, rec := range merged {
		out = append(out, rec)
	}
	// every key parses: existing keys were validated on read, new ones were formatted here
	sort.Slice(out, func(i, j int) bool {
		a, _ := time.Parse(TimeLayout, out[i][0])
		b, _ := time.Parse(TimeLayout, out[j][0])
		return a.Before(b)
	})

	if err := writeRecords(s.dir, path, out); err != nil {
		return 0, err
	}
	logger.Tracef("store: %s now holds %d rows (%d new)", path, len(out), len(rows))
	return len(out), nil
}

// Load reads the stored series of sym in time order.
func (s *Store) Load(sym string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(sym)
	recs, err := readRecords(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w for %s", ErrNoSeries, sym)
	}
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(recs))
	for i, rec := range recs {
		if rows[i], err = decode(rec); err != nil {
			return nil, fmt.Errorf("store: %s row %d: %w", path, i+2, err)
		}
	}
	return rows, nil
}

// Symbols lists the stored series by file name, without extension.
func (s *Store) Symbols() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

func readRecords(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Columns)
	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(recs) == 0 {
		return nil, errors.New("missing header")
	}
	for i, col := range Columns {
		if recs[0][i] != col {
			return nil, fmt.Errorf("unexpected column %q at %d", recs[0][i], i)
		}
	}
	recs = recs[1:]
	for i, rec := range recs {
		if _, err := decode(rec); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	return recs, nil
}

func writeRecords(dir, path string, recs [][]string) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(Columns); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := w.WriteAll(recs); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store: replace %s: %w", path, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(market.IST).Format(TimeLayout)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func encode(r Row) []string {
	return []string{
		formatTime(r.Time),
		r.OptionName,
		r.UnderlyingName,
		formatFloat(r.OptionClose),
		formatFloat(r.FutureClose),
		formatFloat(r.Strike),
		formatTime(r.Expiry),
		formatFloat(r.IV),
		r.Side,
		r.Timeframe,
		r.Source,
	}
}

func decode(rec []string) (Row, error) {
	var (
		r   Row
		err error
	)
	if r.Time, err = time.ParseInLocation(TimeLayout, rec[0], market.IST); err != nil {
		return r, fmt.Errorf("timestamp: %w", err)
	}
	r.OptionName, r.UnderlyingName = rec[1], rec[2]
	floats := []struct {
		dst *float64
		col int
	}{{&r.OptionClose, 3}, {&r.FutureClose, 4}, {&r.Strike, 5}, {&r.IV, 7}}
	for _, f := range floats {
		if *f.dst, err = strconv.ParseFloat(rec[f.col], 64); err != nil {
			return r, fmt.Errorf("%s: %w", Columns[f.col], err)
		}
	}
	if rec[6] != "" {
		if r.Expiry, err = time.ParseInLocation(TimeLayout, rec[6], market.IST); err != nil {
			return r, fmt.Errorf("expiry: %w", err)
		}
	}
	r.Side, r.Timeframe, r.Source = rec[8], rec[9], rec[10]
	return r, nil
}
