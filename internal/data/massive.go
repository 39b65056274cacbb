package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	massiverest "github.com/massive-com/client-go/v2/rest"
	"github.com/massive-com/client-go/v2/rest/models"

	"github.com/contactkeval/iv-tracker/internal/logger"
)

// massiveGateway implements Gateway with the Massive REST SDK.
type massiveGateway struct {
	apiKey    string
	client    *massiverest.Client
	secondary Gateway
}

// NewMassiveGateway constructs a Massive-backed gateway.
//
// Parameters:
//   - apiKey: Massive API key for authentication
//   - secondary: optional gateway consulted by WithFallback, may be nil
func NewMassiveGateway(apiKey string, secondary Gateway) *massiveGateway {
	logger.Infof("initializing Massive gateway")

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
		},
	}
	return &massiveGateway{
		apiKey:    apiKey,
		client:    massiverest.NewWithClient(apiKey, httpClient),
		secondary: secondary,
	}
}

func (m *massiveGateway) Name() string { return "massive" }

// Secondary returns the configured secondary Gateway, if any.
func (m *massiveGateway) Secondary() Gateway { return m.secondary }

// Authenticated reports whether an API key is configured.
func (m *massiveGateway) Authenticated() bool { return m.apiKey != "" }

// LastPrice returns the price of the last trade for sym.
func (m *massiveGateway) LastPrice(ctx context.Context, sym string) (float64, error) {
	ticker := massiveTicker(sym)
	logger.Tracef("massive last trade request: %s", ticker)

	res, err := m.client.GetLastTrade(ctx, &models.GetLastTradeParams{Ticker: ticker})
	if err != nil {
		return 0, classifyMassiveErr("last trade "+ticker, err)
	}
	if res.Results.Price <= 0 {
		return 0, fmt.Errorf("%w: no last trade for %s", ErrNoData, ticker)
	}
	return res.Results.Price, nil
}

// History pages through the aggregates endpoint and returns bars oldest first.
func (m *massiveGateway) History(ctx context.Context, sym string, tf Timeframe, from, to time.Time) ([]Bar, error) {
	ticker := massiveTicker(sym)
	mult, span := massiveSpan(tf)

	params := &models.ListAggsParams{
		Ticker:     ticker,
		Timespan:   span,
		Multiplier: mult,
		From:       models.Millis(from),
		To:         models.Millis(to),
	}
	limit := 50000
	asc := models.Asc
	adj := true
	params.Limit = &limit
	params.Order = &asc
	params.Adjusted = &adj

	logger.Tracef("massive aggs request: %s %d/%s %s..%s", ticker, mult, span, from.Format(time.RFC3339), to.Format(time.RFC3339))

	var bars []Bar
	iter := m.client.ListAggs(ctx, params)
	for iter.Next() {
		bars = append(bars, barFromAgg(iter.Item()))
	}
	if err := iter.Err(); err != nil {
		return nil, classifyMassiveErr("aggs "+ticker, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: massive aggs %s", ErrNoData, ticker)
	}
	logger.Tracef("massive aggs %s: %d bars", ticker, len(bars))
	return bars, nil
}

func barFromAgg(a models.Agg) Bar {
	return Bar{
		Date:  time.Time(a.Timestamp),
		Open:  a.Open,
		High:  a.High,
		Low:   a.Low,
		Close: a.Close,
		Vol:   a.Volume,
	}
}

// massiveTicker drops the "EXCH:" prefix. Massive option tickers keep their
// own "O:" prefix.
func massiveTicker(sym string) string {
	if strings.HasPrefix(sym, "O:") {
		return sym
	}
	if i := strings.IndexByte(sym, ':'); i >= 0 {
		return sym[i+1:]
	}
	return sym
}

func massiveSpan(tf Timeframe) (int, models.Timespan) {
	switch tf {
	case Second1:
		return 1, models.Second
	case Minute1:
		return 1, models.Minute
	case Minute5:
		return 5, models.Minute
	case Minute15:
		return 15, models.Minute
	case Minute30:
		return 30, models.Minute
	case Hour1:
		return 1, models.Hour
	case Hour2:
		return 2, models.Hour
	}
	return 1, models.Day
}

func classifyMassiveErr(what string, err error) error {
	var apiErr *models.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: massive %s: %v", ErrNoData, what, err)
	}
	return fmt.Errorf("%w: massive %s: %v", ErrTransport, what, err)
}
