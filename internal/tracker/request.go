package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/contactkeval/iv-tracker/internal/config"
	"github.com/contactkeval/iv-tracker/internal/data"
	"github.com/contactkeval/iv-tracker/internal/iv"
	"github.com/contactkeval/iv-tracker/internal/market"
	"github.com/contactkeval/iv-tracker/internal/session"
	"github.com/contactkeval/iv-tracker/internal/strike"
	"github.com/contactkeval/iv-tracker/internal/symbol"
)

// StartRequest asks for a new tracking session.
//
// In automatic mode Symbol is a catalog root such as NIFTY or MCX:CRUDEOILM.
// In manual mode it is a full option symbol. Strike, Expiry, Side and
// ExpiryType override what the symbol or catalog gives.
type StartRequest struct {
	Mode       session.Mode `json:"mode" validate:"required,oneof=automatic manual"`
	Symbol     string       `json:"symbol" validate:"required"`
	Timeframe  string       `json:"timeframe" validate:"required"`
	Rate       *float64     `json:"risk_free_rate,omitempty" validate:"omitempty,gte=0,lte=1"`
	Side       string       `json:"option_type,omitempty"`
	ExpiryType string       `json:"expiry_type,omitempty"`
	Expiry     string       `json:"expiry,omitempty"`
	Strike     int          `json:"strike,omitempty" validate:"gte=0"`
	Future     string       `json:"future_symbol,omitempty"`
}

var validate = validator.New()

var expiryLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02"}

// plan is everything a session loop needs. The loop owns its copy.
type plan struct {
	mode     session.Mode
	exchange string
	contract config.Contract
	option   string
	future   string
	params   iv.Params
	kind     symbol.ExpiryKind
	tf       data.Timeframe
	// lastFuture is the latest future price seen, used for fallback rows.
	lastFuture float64
}

func (p *plan) info() session.Info {
	return session.Info{
		Mode:         p.mode,
		Exchange:     p.exchange,
		Root:         p.contract.Root.Name,
		FutureSymbol: p.future,
		OptionSymbol: p.option,
		Strike:       int(p.params.Strike),
		Expiry:       p.params.Expiry,
		Side:         p.params.Side,
		Kind:         p.kind,
		Timeframe:    string(p.tf),
		Rate:         p.params.Rate,
	}
}

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

// prepare validates req and resolves the symbols of the session.
func (s *Supervisor) prepare(ctx context.Context, req StartRequest) (*plan, []string, error) {
	if err := validate.Struct(req); err != nil {
		return nil, nil, rejectf("%v", err)
	}
	tf, err := data.ParseTimeframe(req.Timeframe)
	if err != nil {
		return nil, nil, rejectf("%v", err)
	}
	if !data.IsAuthenticated(s.deps.Gateway) {
		return nil, nil, rejectf("gateway %s is not authenticated", s.deps.Gateway.Name())
	}

	p := &plan{mode: req.Mode, tf: tf}
	p.params.Rate = s.policy.Rate
	if req.Rate != nil {
		p.params.Rate = *req.Rate
	}

	switch req.Mode {
	case session.Automatic:
		return s.prepareAutomatic(ctx, req, p)
	default:
		return s.prepareManual(req, p)
	}
}

func (s *Supervisor) prepareAutomatic(ctx context.Context, req StartRequest, p *plan) (*plan, []string, error) {
	if s.deps.Catalog == nil {
		return nil, nil, rejectf("no contract catalog loaded")
	}
	ct, err := s.deps.Catalog.Lookup(req.Symbol)
	if err != nil {
		return nil, nil, rejectf("%v", err)
	}
	p.contract, p.exchange, p.kind = ct, ct.Exchange, ct.Kind
	p.params.Expiry = ct.OptionExpiry
	if err := applyOverrides(req, p); err != nil {
		return nil, nil, err
	}
	if p.future, err = ct.FutureSymbol(); err != nil {
		return nil, nil, rejectf("%v", err)
	}

	ltp, err := s.deps.Gateway.LastPrice(ctx, p.future)
	if err != nil {
		return nil, nil, rejectf("no last price for %s: %v", p.future, err)
	}
	k, ok := strike.Nearest(ltp, ct.StrikeStep)
	if !ok {
		return nil, nil, rejectf("no strike for price %.2f step %.2f", ltp, ct.StrikeStep)
	}
	if req.Strike > 0 {
		k = req.Strike
	}
	if p.option, err = symbol.OptionSymbol(p.exchange, ct.Root, p.params.Expiry, k, p.params.Side, p.kind); err != nil {
		return nil, nil, rejectf("%v", err)
	}
	p.params.Strike = float64(k)
	p.lastFuture = ltp

	diag := []string{
		fmt.Sprintf("future %s last %.2f", p.future, ltp),
		fmt.Sprintf("atm strike %d (step %g)", k, ct.StrikeStep),
	}
	return p, diag, nil
}

func (s *Supervisor) prepareManual(req StartRequest, p *plan) (*plan, []string, error) {
	sym := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if !strings.Contains(sym, ":") {
		sym = "NSE:" + sym
	}
	opt, err := symbol.ParseOptionSymbol(sym, s.Now())
	if err != nil {
		return nil, nil, rejectf("%v", err)
	}
	root, err := symbol.Resolve(opt.Exchange, opt.Root)
	if err != nil {
		return nil, nil, rejectf("%v", err)
	}
	p.option, p.exchange, p.kind = sym, opt.Exchange, opt.Kind
	p.contract = config.Contract{Exchange: opt.Exchange, Root: root, FutureExpiry: opt.Expiry, Kind: opt.Kind}
	p.params.Strike = float64(opt.Strike)
	p.params.Side = opt.Side
	p.params.Expiry = opt.Expiry
	if err := applyOverrides(req, p); err != nil {
		return nil, nil, err
	}
	if req.Strike > 0 {
		p.params.Strike = float64(req.Strike)
	}

	diag := []string{fmt.Sprintf("parsed %s: strike %d %s expiring %s", sym, opt.Strike, opt.Side, opt.Expiry.Format(time.RFC3339))}

	// Overrides that change the contract re-derive the tracked symbol.
	k := int(p.params.Strike)
	if k != opt.Strike || p.params.Side != opt.Side || p.kind != opt.Kind || !sameDay(p.params.Expiry, opt.Expiry) {
		if p.option, err = symbol.OptionSymbol(p.exchange, root, p.params.Expiry, k, p.params.Side, p.kind); err != nil {
			return nil, nil, rejectf("%v", err)
		}
		p.contract.FutureExpiry = p.params.Expiry
		diag = append(diag, fmt.Sprintf("overrides select %s", p.option))
	}

	p.future = strings.ToUpper(strings.TrimSpace(req.Future))
	if p.future == "" {
		if p.future, err = symbol.FutureSymbol(opt.Exchange, root, p.contract.FutureExpiry); err != nil {
			return nil, nil, rejectf("%v", err)
		}
	}
	diag = append(diag, fmt.Sprintf("future %s", p.future))
	return p, diag, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(market.IST).Date()
	by, bm, bd := b.In(market.IST).Date()
	return ay == by && am == bm && ad == bd
}

func applyOverrides(req StartRequest, p *plan) error {
	if req.Side != "" {
		side, err := symbol.ParseSide(req.Side)
		if err != nil {
			return rejectf("%v", err)
		}
		p.params.Side = side
	}
	if req.ExpiryType != "" {
		kind, err := symbol.ParseExpiryKind(req.ExpiryType)
		if err != nil {
			return rejectf("%v", err)
		}
		p.kind = kind
	}
	if req.Expiry != "" {
		t, err := parseExpiry(p.exchange, req.Expiry)
		if err != nil {
			return rejectf("%v", err)
		}
		p.params.Expiry = t
	}
	return nil
}

// parseExpiry reads an expiry override. A bare date gets the exchange's
// expiry time of day.
func parseExpiry(exchange, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range expiryLayouts {
		t, err := time.ParseInLocation(layout, s, market.IST)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			return symbol.ExpiryAt(exchange, t), nil
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse expiry %q", s)
}
