// Package cache holds the most recently computed series per symbol so
// readers need not go to the store. Writes replace the whole series.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/contactkeval/iv-tracker/internal/store"
)

// ErrMiss is returned by Get when the symbol is not cached.
var ErrMiss = errors.New("cache: miss")

// Series is the read model of a computed window.
type Series struct {
	Symbol      string      `json:"symbol"`
	Timeframe   string      `json:"timeframe,omitempty"`
	Timestamps  []time.Time `json:"timestamps"`
	IV          []float64   `json:"iv"`
	OptionClose []float64   `json:"option_close"`
	FutureClose []float64   `json:"future_close"`
	Sources     []string    `json:"sources,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Len is the number of points.
func (s Series) Len() int { return len(s.Timestamps) }

// FromRows builds a series from stored rows.
func FromRows(sym string, rows []store.Row, at time.Time) Series {
	s := Series{
		Symbol:      sym,
		Timestamps:  make([]time.Time, len(rows)),
		IV:          make([]float64, len(rows)),
		OptionClose: make([]float64, len(rows)),
		FutureClose: make([]float64, len(rows)),
		Sources:     make([]string, len(rows)),
		UpdatedAt:   at,
	}
	for i, r := range rows {
		s.Timestamps[i] = r.Time
		s.IV[i] = r.IV
		s.OptionClose[i] = r.OptionClose
		s.FutureClose[i] = r.FutureClose
		s.Sources[i] = r.Source
		if s.Timeframe == "" {
			s.Timeframe = r.Timeframe
		}
	}
	return s
}

// Cache is a last-writer-wins map of symbol to series.
type Cache interface {
	Put(ctx context.Context, s Series) error
	Get(ctx context.Context, sym string) (Series, error)
	Clear(ctx context.Context) error
}

// Memory is an in-process Cache.
type Memory struct {
	mu     sync.RWMutex
	series map[string]Series
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{series: map[string]Series{}}
}

func (m *Memory) Put(_ context.Context, s Series) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[s.Symbol] = s
	return nil
}

func (m *Memory) Get(_ context.Context, sym string) (Series, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.series[sym]
	if !ok {
		return Series{}, ErrMiss
	}
	return s, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series = map[string]Series{}
	return nil
}
