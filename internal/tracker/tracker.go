// Package tracker runs the polling session: it derives the option to track,
// fetches its history and the future's, computes the volatility series and
// persists it, once per tick, until stopped or superseded.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/contactkeval/iv-tracker/internal/cache"
	"github.com/contactkeval/iv-tracker/internal/config"
	"github.com/contactkeval/iv-tracker/internal/data"
	"github.com/contactkeval/iv-tracker/internal/logger"
	"github.com/contactkeval/iv-tracker/internal/market"
	"github.com/contactkeval/iv-tracker/internal/metrics"
	"github.com/contactkeval/iv-tracker/internal/session"
	"github.com/contactkeval/iv-tracker/internal/store"
)

var (
	// ErrTransitionInFlight means another start or stop holds the lock.
	ErrTransitionInFlight = errors.New("tracker: start or stop already in progress")
	// ErrNotRunning is returned by Stop when no session runs.
	ErrNotRunning = errors.New("tracker: no session running")
	// ErrRejected wraps the reason a start request was refused.
	ErrRejected = errors.New("tracker: start rejected")
)

// Policy is the loop timing.
type Policy struct {
	// Tick is the pause after a successful cycle.
	Tick time.Duration
	// Retry is the pause after a failed fetch or a recovered panic.
	Retry time.Duration
	// Closed is the pause while the market is closed.
	Closed time.Duration
	// Join bounds the wait for a stopped loop to return.
	Join time.Duration
	// Lookback is the history range fetched each cycle.
	Lookback time.Duration
	// Rate is the default risk-free rate.
	Rate float64
}

// DefaultPolicy is 1s/5s/60s with a 5s join and 90 days of history.
func DefaultPolicy() Policy {
	return Policy{
		Tick:     time.Second,
		Retry:    5 * time.Second,
		Closed:   time.Minute,
		Join:     5 * time.Second,
		Lookback: 90 * 24 * time.Hour,
		Rate:     0.10,
	}
}

// PolicyFrom copies the loop settings of cfg.
func PolicyFrom(cfg *config.AppConfig) Policy {
	return Policy{
		Tick:     cfg.Loop.Tick,
		Retry:    cfg.Loop.Retry,
		Closed:   cfg.Loop.Closed,
		Join:     cfg.Loop.Join,
		Lookback: cfg.Lookback,
		Rate:     cfg.Rate,
	}
}

// Deps are the collaborators of a Supervisor. Metrics may be nil.
type Deps struct {
	Gateway  data.Gateway
	Store    *store.Store
	Cache    cache.Cache
	Calendar *market.Calendar
	Catalog  *config.Catalog
	Sessions *session.Manager
	Metrics  *metrics.Metrics
}

// StartResult describes an accepted start.
type StartResult struct {
	SessionID      string    `json:"session_id"`
	ResolvedSymbol string    `json:"resolved_symbol"`
	FutureSymbol   string    `json:"future_symbol"`
	Strike         int       `json:"strike"`
	Expiry         time.Time `json:"expiry"`
	Points         int       `json:"points"`
	Diagnostics    []string  `json:"diagnostics,omitempty"`
}

// Status is the externally visible session state.
type Status struct {
	Active        bool         `json:"active"`
	State         string       `json:"state"`
	SessionID     string       `json:"session_id,omitempty"`
	Mode          session.Mode `json:"mode,omitempty"`
	CurrentSymbol string       `json:"current_symbol,omitempty"`
	FutureSymbol  string       `json:"future_symbol,omitempty"`
	Strike        int          `json:"strike,omitempty"`
	Expiry        *time.Time   `json:"expiry,omitempty"`
	Side          string       `json:"option_type,omitempty"`
	Timeframe     string       `json:"timeframe,omitempty"`
	Rate          float64      `json:"risk_free_rate,omitempty"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	UpdatedAt     *time.Time   `json:"updated_at,omitempty"`
}

// Supervisor owns the session loop.
type Supervisor struct {
	deps   Deps
	policy Policy
	base   context.Context

	// Now and Sleep are replaced in tests. Sleep returns false when ctx ends
	// first.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) bool

	wg sync.WaitGroup
}

// New returns a supervisor whose loops live until base is cancelled or the
// session stops.
func New(base context.Context, deps Deps, policy Policy) *Supervisor {
	if deps.Sessions == nil {
		deps.Sessions = session.NewManager()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemory()
	}
	if deps.Calendar == nil {
		deps.Calendar, _ = market.NewCalendar(nil)
	}
	return &Supervisor{
		deps:   deps,
		policy: policy,
		base:   base,
		Now:    time.Now,
		Sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Start stops any running session, primes a new one with one synchronous
// cycle and hands it to a background loop.
func (s *Supervisor) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	release, ok := s.deps.Sessions.TryAcquire()
	if !ok {
		return StartResult{}, ErrTransitionInFlight
	}
	defer release()

	p, diag, err := s.prepare(ctx, req)
	if err != nil {
		logger.Warnf("tracker: %v", err)
		return StartResult{}, err
	}

	s.stopRunning()
	if err := s.deps.Cache.Clear(ctx); err != nil {
		logger.Warnf("tracker: clear cache: %v", err)
	}

	h := s.deps.Sessions.Begin(s.base, p.info())
	logger.Infof("tracker: session %s started (%s %s on %s, future %s)", h.ID, p.mode, p.option, p.tf, p.future)
	s.deps.Metrics.SessionStarted()

	res := StartResult{
		SessionID:      h.ID,
		ResolvedSymbol: p.option,
		FutureSymbol:   p.future,
		Strike:         int(p.params.Strike),
		Expiry:         p.params.Expiry,
		Diagnostics:    diag,
	}
	out, err := s.cycle(ctx, h, p)
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("priming cycle: %v", err))
		logger.Warnf("tracker: priming %s: %v", p.option, err)
	} else {
		res.Points = out.points
		if out.fallback {
			res.Diagnostics = append(res.Diagnostics, "historical volatility fallback")
		}
	}

	s.wg.Add(1)
	go s.loop(h, *p)
	return res, nil
}

// Stop ends the running session and clears the cache, also when nothing
// was running. Stored series are kept.
func (s *Supervisor) Stop(ctx context.Context) error {
	release, ok := s.deps.Sessions.TryAcquire()
	if !ok {
		return ErrTransitionInFlight
	}
	defer release()

	running := s.stopRunning()
	if err := s.deps.Cache.Clear(ctx); err != nil {
		logger.Warnf("tracker: clear cache: %v", err)
	}
	if !running {
		return ErrNotRunning
	}
	return nil
}

// stopRunning cancels the running loop and waits up to policy.Join for it.
// It reports whether a session was running. Callers hold the transition lock.
func (s *Supervisor) stopRunning() bool {
	info := s.deps.Sessions.Snapshot()
	done := s.deps.Sessions.Stop()
	if done == nil {
		return false
	}
	select {
	case <-done:
		logger.Infof("tracker: session %s stopped", info.ID)
	case <-time.After(s.policy.Join):
		logger.Warnf("tracker: session %s did not stop within %v, continuing", info.ID, s.policy.Join)
	}
	s.deps.Sessions.End()
	return true
}

// Close stops the running session and waits for every loop to return.
func (s *Supervisor) Close() {
	_ = s.Stop(context.Background())
	s.wg.Wait()
}

// Status reports the current or last session.
func (s *Supervisor) Status() Status {
	info := s.deps.Sessions.Snapshot()
	st := Status{
		Active:        info.Active(),
		State:         info.State.String(),
		SessionID:     info.ID,
		Mode:          info.Mode,
		CurrentSymbol: info.OptionSymbol,
		FutureSymbol:  info.FutureSymbol,
		Strike:        info.Strike,
		Expiry:        timePtr(info.Expiry),
		Timeframe:     info.Timeframe,
		Rate:          info.Rate,
		StartedAt:     timePtr(info.StartedAt),
		UpdatedAt:     timePtr(info.UpdatedAt),
	}
	if info.ID != "" {
		st.Side = info.Side.String()
	}
	return st
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Series returns the cached series of sym, or the stored one on a miss.
func (s *Supervisor) Series(ctx context.Context, sym string) (cache.Series, error) {
	ser, err := s.deps.Cache.Get(ctx, sym)
	if err == nil {
		return ser, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logger.Warnf("tracker: cache get %s: %v", sym, err)
	}
	rows, err := s.deps.Store.Load(sym)
	if err != nil {
		return cache.Series{}, err
	}
	return cache.FromRows(sym, rows, s.Now()), nil
}

// Files lists the stored series.
func (s *Supervisor) Files() ([]string, error) {
	return s.deps.Store.Symbols()
}
