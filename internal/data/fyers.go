package data

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/contactkeval/iv-tracker/internal/logger"
	"github.com/contactkeval/iv-tracker/internal/market"
)

// DefaultFyersBaseURL is the Fyers v3 data API root.
const DefaultFyersBaseURL = "https://api-t1.fyers.in"

// fyersGateway implements Gateway on the Fyers REST data API.
type fyersGateway struct {
	appID       string
	accessToken string
	client      *resty.Client
	secondary   Gateway
}

// fyersHistoryResp models /data/history. Each candle is
// [epoch seconds, open, high, low, close, volume].
type fyersHistoryResp struct {
	S       string      `json:"s"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Candles [][]float64 `json:"candles"`
}

// fyersQuotesResp models /data/quotes.
type fyersQuotesResp struct {
	S       string `json:"s"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	D       []struct {
		N string `json:"n"`
		S string `json:"s"`
		V struct {
			LP     float64 `json:"lp"`
			Symbol string  `json:"symbol"`
		} `json:"v"`
	} `json:"d"`
}

// NewFyersGateway constructs a Fyers-backed gateway.
//
// Parameters:
//   - appID: Fyers application id (the part before the dash is fine too)
//   - accessToken: bearer credential produced by the login flow
//   - baseURL: API root, DefaultFyersBaseURL when empty
//   - secondary: optional gateway consulted by WithFallback, may be nil
//
// Requests rejected with 429 are retried twice with a short wait.
func NewFyersGateway(appID, accessToken, baseURL string, secondary Gateway) *fyersGateway {
	if baseURL == "" {
		baseURL = DefaultFyersBaseURL
	}
	logger.Infof("initializing Fyers gateway base=%s", baseURL)

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() == http.StatusTooManyRequests
		})
	if appID != "" && accessToken != "" {
		client.SetHeader("Authorization", appID+":"+accessToken)
	}

	return &fyersGateway{
		appID:       appID,
		accessToken: accessToken,
		client:      client,
		secondary:   secondary,
	}
}

func (f *fyersGateway) Name() string { return "fyers" }

// Secondary returns the configured secondary Gateway, if any.
func (f *fyersGateway) Secondary() Gateway { return f.secondary }

// Authenticated reports whether an access token is configured.
func (f *fyersGateway) Authenticated() bool {
	return f.appID != "" && f.accessToken != ""
}

// LastPrice returns the last traded price from /data/quotes.
//
// Returns:
//   - ErrNoData when the symbol is unknown or has no trade yet
//   - ErrTransport on network failures, non-200 statuses and API errors
func (f *fyersGateway) LastPrice(ctx context.Context, sym string) (float64, error) {
	logger.Tracef("fyers quote request: %s", sym)

	var body fyersQuotesResp
	res, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("symbols", sym).
		SetResult(&body).
		SetError(&body).
		Get("/data/quotes")
	if err != nil {
		return 0, fmt.Errorf("%w: fyers quotes %s: %v", ErrTransport, sym, err)
	}
	if res.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("%w: fyers quotes %s status=%d message=%s", ErrTransport, sym, res.StatusCode(), body.Message)
	}
	if body.S != "ok" {
		return 0, fmt.Errorf("%w: fyers quotes %s: %s", ErrTransport, sym, body.Message)
	}
	for _, q := range body.D {
		if q.S == "ok" && q.V.LP > 0 {
			return q.V.LP, nil
		}
	}
	return 0, fmt.Errorf("%w: no last price for %s", ErrNoData, sym)
}

// History returns candles for sym between from and to (dates inclusive, IST)
// from /data/history, oldest first.
//
// Returns:
//   - ErrNoData when Fyers answers "no_data" or an empty candle list
//   - ErrTransport on network failures, non-200 statuses and API errors
func (f *fyersGateway) History(ctx context.Context, sym string, tf Timeframe, from, to time.Time) ([]Bar, error) {
	params := map[string]string{
		"symbol":      sym,
		"resolution":  string(tf),
		"date_format": "1",
		"range_from":  from.In(market.IST).Format("2006-01-02"),
		"range_to":    to.In(market.IST).Format("2006-01-02"),
		"cont_flag":   "1",
	}
	logger.Tracef("fyers history request: %v", params)

	var body fyersHistoryResp
	res, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		SetError(&body).
		Get("/data/history")
	if err != nil {
		return nil, fmt.Errorf("%w: fyers history %s: %v", ErrTransport, sym, err)
	}
	if res.StatusCode() != http.StatusOK {
		logger.Errorf("fyers history status=%d message=%s", res.StatusCode(), body.Message)
		return nil, fmt.Errorf("%w: fyers history %s status=%d message=%s", ErrTransport, sym, res.StatusCode(), body.Message)
	}

	switch body.S {
	case "ok":
	case "no_data":
		return nil, fmt.Errorf("%w: fyers history %s", ErrNoData, sym)
	default:
		return nil, fmt.Errorf("%w: fyers history %s: s=%s code=%d message=%s",
			ErrTransport, sym, body.S, body.Code, body.Message)
	}
	if len(body.Candles) == 0 {
		return nil, fmt.Errorf("%w: fyers history %s returned no candles", ErrNoData, sym)
	}

	bars := make([]Bar, 0, len(body.Candles))
	for _, c := range body.Candles {
		if len(c) < 5 {
			logger.Debugf("skipping short candle %v for %s", c, sym)
			continue
		}
		b := Bar{
			Date:  time.Unix(int64(c[0]), 0).In(market.IST),
			Open:  c[1],
			High:  c[2],
			Low:   c[3],
			Close: c[4],
		}
		if len(c) > 5 {
			b.Vol = c[5]
		}
		bars = append(bars, b)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	logger.Tracef("fyers history %s: %d bars", sym, len(bars))
	return bars, nil
}
