package data

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/contactkeval/iv-tracker/internal/market"
	"github.com/contactkeval/iv-tracker/internal/pricing"
	"github.com/contactkeval/iv-tracker/internal/symbol"
)

// maxSyntheticBars caps one History answer.
const maxSyntheticBars = 2000

var futurePattern = regexp.MustCompile(`^([A-Z][A-Z0-9&-]*?)\d{2}[A-Z]{3}FUT$`)

// syntheticBase seeds futures prices per root.
var syntheticBase = map[string]float64{
	"NIFTY":      24500,
	"BANKNIFTY":  52000,
	"FINNIFTY":   23500,
	"MIDCPNIFTY": 12800,
	"CRUDEOIL":   5300,
	"GOLD":       130000,
	"GOLDM":      130000,
	"SILVER":     150000,
	"SILVERM":    150000,
	"NATURALGAS": 380,
}

// synthGateway generates deterministic prices for futures and options
// without a network. The futures path is a function of the bar time only,
// so overlapping requests agree. Options are priced with Black-76 from that
// path and a slowly varying volatility, which makes the generator useful to
// check IV recovery end to end.
type synthGateway struct {
	rate      float64
	now       func() time.Time
	secondary Gateway
}

// NewSyntheticGateway returns a generator pricing options at rate.
func NewSyntheticGateway(rate float64) *synthGateway {
	return &synthGateway{rate: rate, now: time.Now}
}

func (s *synthGateway) Name() string { return "synthetic" }

func (s *synthGateway) Secondary() Gateway { return s.secondary }

// SyntheticVol is the volatility used to price options at t.
func SyntheticVol(t time.Time) float64 {
	minutes := float64(t.Unix()) / 60
	return 0.14 + 0.03*math.Sin(2*math.Pi*minutes/(375*5))
}

func (s *synthGateway) futurePrice(root string, t time.Time) float64 {
	base, ok := syntheticBase[root]
	if !ok {
		base = 1000
	}
	minutes := float64(t.Unix()) / 60
	wave := 0.01*math.Sin(2*math.Pi*minutes/390) + 0.004*math.Sin(2*math.Pi*minutes/47)
	return base * (1 + wave + 0.0005*noise(root, t))
}

func (s *synthGateway) price(sym string, t, ref time.Time) (float64, error) {
	body := strings.ToUpper(sym)
	if i := strings.IndexByte(body, ':'); i >= 0 {
		body = body[i+1:]
	}
	if m := futurePattern.FindStringSubmatch(body); m != nil {
		return s.futurePrice(m[1], t), nil
	}
	opt, err := symbol.ParseOptionSymbol(sym, ref)
	if err != nil {
		if _, ok := syntheticBase[body]; ok {
			return s.futurePrice(body, t), nil
		}
		return 0, fmt.Errorf("%w: synthetic has no model for %s", ErrNoData, sym)
	}
	T := opt.Expiry.Sub(t).Hours() / 24 / 365
	f := s.futurePrice(opt.Root, t)
	return pricing.Black76Price(opt.Side == symbol.Call, f, float64(opt.Strike), T, s.rate, SyntheticVol(t)), nil
}

// LastPrice prices sym at the gateway clock.
func (s *synthGateway) LastPrice(_ context.Context, sym string) (float64, error) {
	now := s.now()
	return s.price(sym, now, now)
}

// History returns bars inside the exchange's regular session on weekdays,
// the newest maxSyntheticBars of them.
func (s *synthGateway) History(ctx context.Context, sym string, tf Timeframe, from, to time.Time) ([]Bar, error) {
	step := tf.Duration()
	sess, ok := market.DefaultSessions[market.ExchangeOf(sym)]
	if !ok {
		sess = market.DefaultSessions["NSE"]
	}

	if span := step * maxSyntheticBars * 5; to.Sub(from) > span {
		from = to.Add(-span)
	}

	var bars []Bar
	for cur := from.In(market.IST).Truncate(step); !cur.After(to); cur = cur.Add(step) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if wd := cur.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		m := cur.Hour()*60 + cur.Minute()
		if step < 24*time.Hour && (m < sess.OpenHour*60+sess.OpenMinute || m > sess.CloseHour*60+sess.CloseMinute) {
			continue
		}
		p, err := s.price(sym, cur, to)
		if err != nil {
			return nil, err
		}
		if p <= 0 {
			continue
		}
		bars = append(bars, Bar{Date: cur, Open: p, High: p * 1.001, Low: p * 0.999, Close: p, Vol: 1000})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: synthetic %s has no bars in range", ErrNoData, sym)
	}
	if len(bars) > maxSyntheticBars {
		bars = bars[len(bars)-maxSyntheticBars:]
	}
	return bars, nil
}

// noise is a deterministic value in [-1, 1) for root at t.
func noise(root string, t time.Time) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d", root, t.Unix())
	return float64(h.Sum64()%2000)/1000 - 1
}
