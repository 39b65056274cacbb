package tracker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/contactkeval/iv-tracker/internal/align"
	"github.com/contactkeval/iv-tracker/internal/cache"
	"github.com/contactkeval/iv-tracker/internal/data"
	"github.com/contactkeval/iv-tracker/internal/iv"
	"github.com/contactkeval/iv-tracker/internal/logger"
	"github.com/contactkeval/iv-tracker/internal/metrics"
	"github.com/contactkeval/iv-tracker/internal/session"
	"github.com/contactkeval/iv-tracker/internal/store"
	"github.com/contactkeval/iv-tracker/internal/strike"
	"github.com/contactkeval/iv-tracker/internal/symbol"
)

var (
	errHistory    = errors.New("option history unavailable")
	errSuperseded = errors.New("session superseded")
)

type cycleResult struct {
	points   int
	stored   int
	fallback bool
	lastIV   float64
}

// loop ticks until the session is stopped or superseded. The priming cycle
// has already run, so it waits one tick first.
func (s *Supervisor) loop(h *session.Handle, p plan) {
	defer s.wg.Done()
	defer h.Exit()

	ctx := h.Context()
	wait := s.policy.Tick
	for {
		if !s.Sleep(ctx, wait) || !s.deps.Sessions.IsCurrent(h.ID) {
			logger.Debugf("tracker: loop %s exiting", h.ID)
			return
		}
		var stop bool
		wait, stop = s.safeTick(h, &p)
		if stop {
			logger.Infof("tracker: loop %s superseded, exiting", h.ID)
			return
		}
	}
}

// safeTick runs one tick and turns a panic into a retry.
func (s *Supervisor) safeTick(h *session.Handle, p *plan) (wait time.Duration, stop bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("tracker: tick panicked: %v\n%s", r, debug.Stack())
			s.deps.Metrics.Tick(metrics.OutcomePanic)
			wait, stop = s.policy.Retry, false
		}
	}()
	return s.tick(h, p)
}

func (s *Supervisor) tick(h *session.Handle, p *plan) (time.Duration, bool) {
	ctx := h.Context()
	now := s.Now()
	if !s.deps.Calendar.IsOpen(p.exchange, now) {
		s.deps.Metrics.Tick(metrics.OutcomeClosed)
		logger.Debugf("tracker: %s closed at %s", p.exchange, now.Format(time.RFC3339))
		return s.policy.Closed, false
	}
	if !s.stillOwns(h, p) {
		return 0, true
	}

	if p.mode == session.Automatic {
		ltp, err := s.deps.Gateway.LastPrice(ctx, p.future)
		if err != nil || !(ltp > 0) {
			s.deps.Metrics.Tick(metrics.OutcomeNoPrice)
			logger.Warnf("tracker: no last price for %s: %v", p.future, err)
			return s.policy.Retry, false
		}
		k, ok := strike.Nearest(ltp, p.contract.StrikeStep)
		if !ok {
			s.deps.Metrics.Tick(metrics.OutcomeNoSymbol)
			logger.Warnf("tracker: no strike for %.2f", ltp)
			return s.policy.Retry, false
		}
		opt, err := symbol.OptionSymbol(p.exchange, p.contract.Root, p.params.Expiry, k, p.params.Side, p.kind)
		if err != nil {
			s.deps.Metrics.Tick(metrics.OutcomeNoSymbol)
			logger.Warnf("tracker: %v", err)
			return s.policy.Retry, false
		}
		if !s.stillOwns(h, p) {
			return 0, true
		}
		if opt != p.option {
			logger.Infof("tracker: ATM moved to %d, tracking %s", k, opt)
		}
		p.option, p.params.Strike, p.lastFuture = opt, float64(k), ltp
		s.deps.Sessions.Update(h.ID, func(i *session.Info) {
			i.OptionSymbol, i.Strike = opt, k
		})
	}

	out, err := s.cycle(ctx, h, p)
	switch {
	case errors.Is(err, errSuperseded):
		return 0, true
	case errors.Is(err, errHistory):
		s.deps.Metrics.Tick(metrics.OutcomeHistoryFail)
		logger.Warnf("tracker: %v, retrying in %v", err, s.policy.Retry)
		return s.policy.Retry, false
	case err != nil:
		s.deps.Metrics.Tick(metrics.OutcomeStoreFail)
		logger.Warnf("tracker: %v", err)
		return s.policy.Tick, false
	}
	if out.fallback {
		s.deps.Metrics.Tick(metrics.OutcomeFallback)
	} else {
		s.deps.Metrics.Tick(metrics.OutcomeOK)
	}
	logger.Debugf("tracker: %s %d points, store %d rows, last %.2f", p.option, out.points, out.stored, out.lastIV)
	return s.policy.Tick, false
}

// stillOwns reports whether the session was neither stopped nor replaced
// with different symbols.
func (s *Supervisor) stillOwns(h *session.Handle, p *plan) bool {
	cur := s.deps.Sessions.Snapshot()
	if cur.ID != h.ID || cur.State != session.Running {
		return false
	}
	if cur.FutureSymbol != p.future || cur.Timeframe != string(p.tf) {
		return false
	}
	return p.mode == session.Automatic || cur.OptionSymbol == p.option
}

// cycle fetches, computes and persists one window for p.option.
func (s *Supervisor) cycle(ctx context.Context, h *session.Handle, p *plan) (cycleResult, error) {
	to := s.Now()
	from := to.Add(-s.policy.Lookback)

	optBars, err := s.deps.Gateway.History(ctx, p.option, p.tf, from, to)
	if err == nil && len(optBars) == 0 {
		err = data.ErrNoData
	}
	if err != nil {
		s.serveStored(ctx, p.option)
		return cycleResult{}, fmt.Errorf("%w: %s: %v", errHistory, p.option, err)
	}

	pts, fallback := s.model(ctx, p, optBars, from, to)
	if !s.deps.Sessions.IsCurrent(h.ID) {
		return cycleResult{}, errSuperseded
	}

	stats := iv.Summarize(pts)
	for reason, n := range stats.Rejected {
		s.deps.Metrics.Rejected(string(reason), n)
	}

	rows := store.FromPoints(pts, p.option, p.future, string(p.tf))
	began := time.Now()
	n, err := s.deps.Store.Upsert(p.option, rows)
	s.deps.Metrics.ObserveUpsert(time.Since(began))
	if err != nil {
		return cycleResult{}, fmt.Errorf("persist %s: %w", p.option, err)
	}

	ser := cache.FromRows(p.option, rows, s.Now())
	ser.Timeframe = string(p.tf)
	if err := s.deps.Cache.Put(ctx, ser); err != nil {
		logger.Warnf("tracker: cache put %s: %v", p.option, err)
	}

	out := cycleResult{points: len(pts), stored: n, fallback: fallback}
	if len(pts) > 0 {
		out.lastIV = pts[len(pts)-1].IV
		s.deps.Metrics.LastIV(p.option, out.lastIV)
	}
	s.deps.Sessions.Update(h.ID, func(*session.Info) {})
	return out, nil
}

// model runs the option model when the future's history aligns with the
// option's, and historical volatility of the option otherwise.
func (s *Supervisor) model(ctx context.Context, p *plan, optBars []data.Bar, from, to time.Time) ([]iv.Point, bool) {
	futBars, err := s.deps.Gateway.History(ctx, p.future, p.tf, from, to)
	if err == nil && len(futBars) == 0 {
		err = data.ErrNoData
	}
	if err != nil {
		logger.Warnf("tracker: future history %s: %v, using historical volatility", p.future, err)
		return s.historical(p, optBars, nil), true
	}

	samples, err := align.Align(optBars, futBars)
	if err == nil && len(samples) == 0 {
		err = errors.New("no common timestamps")
	}
	if err != nil {
		logger.Warnf("tracker: align %s with %s: %v, using historical volatility", p.option, p.future, err)
		return s.historical(p, optBars, futBars), true
	}
	return iv.Compute(samples, p.params), false
}

// historical computes the fallback series and attaches the contract fields
// and, where known, future closes.
func (s *Supervisor) historical(p *plan, optBars, futBars []data.Bar) []iv.Point {
	byMinute := make(map[int64]float64, len(futBars))
	for _, b := range futBars {
		byMinute[align.RoundMinute(b.Date).Unix()] = b.Close
	}
	pts := iv.HistoricalVolatility(optBars, p.tf)
	for i := range pts {
		pts[i].Strike = p.params.Strike
		pts[i].Expiry = p.params.Expiry
		pts[i].Side = p.params.Side
		if f, ok := byMinute[align.RoundMinute(pts[i].Time).Unix()]; ok {
			pts[i].FutureClose = f
		} else {
			pts[i].FutureClose = p.lastFuture
		}
	}
	return pts
}

// serveStored puts the stored series of sym in the cache so readers keep
// seeing data while the gateway fails.
func (s *Supervisor) serveStored(ctx context.Context, sym string) {
	rows, err := s.deps.Store.Load(sym)
	if err != nil {
		logger.Debugf("tracker: nothing stored for %s: %v", sym, err)
		return
	}
	if err := s.deps.Cache.Put(ctx, cache.FromRows(sym, rows, s.Now())); err != nil {
		logger.Warnf("tracker: cache put %s: %v", sym, err)
	}
}
