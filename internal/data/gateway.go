// Package data defines the market data gateway the tracker polls and its
// implementations: Fyers REST, the Massive SDK, local CSV replay and a
// synthetic generator.
package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/contactkeval/iv-tracker/internal/logger"
)

var (
	// ErrNoData means the gateway answered but has nothing for the request.
	ErrNoData = errors.New("no data")
	// ErrTransport means the gateway could not be reached or answered badly.
	ErrTransport = errors.New("transport failure")
)

// Gateway supplies last prices and historical bars.
type Gateway interface {
	// Name identifies the gateway in logs and diagnostics.
	Name() string
	// Secondary returns the gateway consulted when this one fails, or nil.
	Secondary() Gateway
	// LastPrice returns the last traded price of sym.
	LastPrice(ctx context.Context, sym string) (float64, error)
	// History returns bars for sym ordered by time, oldest first.
	History(ctx context.Context, sym string, tf Timeframe, from, to time.Time) ([]Bar, error)
}

// Authenticator is implemented by gateways that need a credential before use.
type Authenticator interface {
	Authenticated() bool
}

// IsAuthenticated reports whether gw holds a credential. Gateways that need
// none are always authenticated.
func IsAuthenticated(gw Gateway) bool {
	a, ok := gw.(Authenticator)
	return !ok || a.Authenticated()
}

// Bar is one OHLCV candle. Date is the candle open time.
type Bar struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
	Vol   float64
}

// fallbackGateway tries primary first and asks secondary on any failure.
type fallbackGateway struct {
	primary   Gateway
	secondary Gateway
}

// WithFallback chains secondary behind primary. A nil secondary returns primary.
func WithFallback(primary, secondary Gateway) Gateway {
	if secondary == nil {
		return primary
	}
	return &fallbackGateway{primary: primary, secondary: secondary}
}

func (g *fallbackGateway) Name() string {
	return g.primary.Name() + "+" + g.secondary.Name()
}

func (g *fallbackGateway) Secondary() Gateway { return g.secondary }

// Authenticated follows the primary. A chain whose primary lacks a
// credential is not usable.
func (g *fallbackGateway) Authenticated() bool {
	return IsAuthenticated(g.primary)
}

func (g *fallbackGateway) LastPrice(ctx context.Context, sym string) (float64, error) {
	p, err := g.primary.LastPrice(ctx, sym)
	if err == nil {
		return p, nil
	}
	logger.Debugf("%s last price %s failed (%v), delegating to %s", g.primary.Name(), sym, err, g.secondary.Name())
	p2, err2 := g.secondary.LastPrice(ctx, sym)
	if err2 != nil {
		return 0, fmt.Errorf("%w; secondary: %v", err, err2)
	}
	return p2, nil
}

func (g *fallbackGateway) History(ctx context.Context, sym string, tf Timeframe, from, to time.Time) ([]Bar, error) {
	bars, err := g.primary.History(ctx, sym, tf, from, to)
	if err == nil {
		return bars, nil
	}
	logger.Debugf("%s history %s failed (%v), delegating to %s", g.primary.Name(), sym, err, g.secondary.Name())
	bars2, err2 := g.secondary.History(ctx, sym, tf, from, to)
	if err2 != nil {
		return nil, fmt.Errorf("%w; secondary: %v", err, err2)
	}
	return bars2, nil
}
