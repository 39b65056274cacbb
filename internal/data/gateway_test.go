package data

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/contactkeval/iv-tracker/internal/market"
	"github.com/contactkeval/iv-tracker/internal/pricing"
	"github.com/contactkeval/iv-tracker/internal/symbol"
)

type stubGateway struct {
	name  string
	price float64
	bars  []Bar
	err   error
	calls int
}

func (s *stubGateway) Name() string       { return s.name }
func (s *stubGateway) Secondary() Gateway { return nil }
func (s *stubGateway) LastPrice(context.Context, string) (float64, error) {
	s.calls++
	return s.price, s.err
}
func (s *stubGateway) History(context.Context, string, Timeframe, time.Time, time.Time) ([]Bar, error) {
	s.calls++
	return s.bars, s.err
}

func TestWithFallback(t *testing.T) {
	primary := &stubGateway{name: "a", err: ErrTransport}
	secondary := &stubGateway{name: "b", price: 42, bars: []Bar{{Close: 1}}}
	gw := WithFallback(primary, secondary)

	if gw.Name() != "a+b" || gw.Secondary() != secondary {
		t.Fatalf("unexpected chain %s", gw.Name())
	}
	p, err := gw.LastPrice(context.Background(), "X")
	if err != nil || p != 42 {
		t.Fatalf("LastPrice = %v, %v", p, err)
	}
	bars, err := gw.History(context.Background(), "X", Minute1, time.Time{}, time.Time{})
	if err != nil || len(bars) != 1 {
		t.Fatalf("History = %v, %v", bars, err)
	}

	secondary.err = ErrNoData
	if _, err := gw.LastPrice(context.Background(), "X"); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected primary error kind to surface, got %v", err)
	}

	primary.err = nil
	primary.price = 7
	secondary.calls = 0
	if p, _ := gw.LastPrice(context.Background(), "X"); p != 7 || secondary.calls != 0 {
		t.Fatalf("secondary consulted although primary succeeded")
	}

	if WithFallback(primary, nil) != Gateway(primary) {
		t.Fatal("nil secondary must return primary")
	}
}

func TestIsAuthenticated(t *testing.T) {
	if !IsAuthenticated(&stubGateway{}) {
		t.Fatal("gateway without credentials concept is authenticated")
	}
	chain := WithFallback(NewFyersGateway("", "", "", nil), NewSyntheticGateway(0.1))
	if IsAuthenticated(chain) {
		t.Fatal("chain follows its primary, not an authenticated secondary")
	}
	if !IsAuthenticated(WithFallback(NewFyersGateway("APP", "tok", "", nil), NewFyersGateway("", "", "", nil))) {
		t.Fatal("chain with an authenticated primary is authenticated")
	}
	if IsAuthenticated(NewFyersGateway("", "", "", nil)) {
		t.Fatal("fyers without token is not authenticated")
	}
}

func TestParseTimeframe(t *testing.T) {
	tests := map[string]Timeframe{"1": Minute1, "5m": Minute5, " 1D ": Day1, "day": Day1, "60": Hour1, "2h": Hour2, "1s": Second1}
	for in, want := range tests {
		got, err := ParseTimeframe(in)
		if err != nil || got != want {
			t.Fatalf("ParseTimeframe(%q) = %v, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "7", "week"} {
		if _, err := ParseTimeframe(bad); err == nil {
			t.Fatalf("ParseTimeframe(%q) should fail", bad)
		}
	}
	if Minute5.PeriodsPerYear() != 252*75 || Day1.PeriodsPerYear() != 252 || Timeframe("x").PeriodsPerYear() != 252 {
		t.Fatal("unexpected periods per year")
	}
	if Minute15.Duration() != 15*time.Minute || Day1.Duration() != 24*time.Hour {
		t.Fatal("unexpected durations")
	}
}

func TestSyntheticOptionMatchesModel(t *testing.T) {
	gw := NewSyntheticGateway(0.10)
	now := time.Date(2025, 11, 18, 11, 0, 0, 0, market.IST)
	gw.now = func() time.Time { return now }

	fut, err := gw.LastPrice(context.Background(), "NSE:NIFTY25NOVFUT")
	if err != nil || fut < 24000 || fut > 25000 {
		t.Fatalf("future price %f, %v", fut, err)
	}

	const sym = "NSE:NIFTY25N2524500CE"
	opt, err := gw.LastPrice(context.Background(), sym)
	if err != nil {
		t.Fatalf("option price: %v", err)
	}
	o, _ := symbol.ParseOptionSymbol(sym, now)
	T := o.Expiry.Sub(now).Hours() / 24 / 365
	iv, err := pricing.ImpliedVol(true, opt, fut, 24500, T, 0.10)
	if err != nil {
		t.Fatalf("ImpliedVol: %v", err)
	}
	if d := iv - SyntheticVol(now); d > 1e-4 || d < -1e-4 {
		t.Fatalf("recovered vol %f, model %f", iv, SyntheticVol(now))
	}

	if _, err := gw.LastPrice(context.Background(), "NSE:UNKNOWN"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestSyntheticHistorySessionOnly(t *testing.T) {
	gw := NewSyntheticGateway(0.10)
	from := time.Date(2025, 11, 21, 0, 0, 0, 0, market.IST) // Friday
	to := from.Add(72 * time.Hour)                           // through Sunday

	bars, err := gw.History(context.Background(), "NSE:NIFTY25NOVFUT", Minute5, from, to)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// 09:15 through 15:30 inclusive on Friday only
	if len(bars) != 76 {
		t.Fatalf("expected 76 bars, got %d", len(bars))
	}
	again, _ := gw.History(context.Background(), "NSE:NIFTY25NOVFUT", Minute5, from, to)
	if again[10].Close != bars[10].Close {
		t.Fatal("synthetic history is not deterministic")
	}
}

func TestLocalGateway(t *testing.T) {
	dir := t.TempDir()
	content := "date,open,high,low,close,volume\n" +
		"2025-11-18 09:16:00,10,11,9,10.5,100\n" +
		"2025-11-18 09:15:00,10,11,9,10.0,100\n" +
		"garbage,1,2,3,4,5\n" +
		"2025-11-19 09:15:00,12,13,11,12.5,100\n"
	sym := "NSE:NIFTY25NOVFUT"
	if err := os.WriteFile(LocalFile(dir, sym, Minute1), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if filepath.Base(LocalFile(dir, sym, Minute1)) != "NSE_NIFTY25NOVFUT_1.csv" {
		t.Fatalf("unexpected file name %s", LocalFile(dir, sym, Minute1))
	}

	gw := NewLocalGateway(dir, nil)
	p, err := gw.LastPrice(context.Background(), sym)
	if err != nil || p != 12.5 {
		t.Fatalf("LastPrice = %v, %v", p, err)
	}

	from := time.Date(2025, 11, 18, 0, 0, 0, 0, market.IST)
	bars, err := gw.History(context.Background(), sym, Minute1, from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(bars) != 2 || bars[0].Close != 10.0 || bars[1].Close != 10.5 {
		t.Fatalf("unexpected bars %+v", bars)
	}

	if _, err := gw.History(context.Background(), sym, Minute5, from, from.Add(time.Hour)); !errors.Is(err, ErrNoData) {
		t.Fatalf("missing file should be ErrNoData, got %v", err)
	}
}

func TestMassiveHelpers(t *testing.T) {
	if massiveTicker("NSE:NIFTY25NOVFUT") != "NIFTY25NOVFUT" || massiveTicker("O:SPY250117C00580000") != "O:SPY250117C00580000" {
		t.Fatal("unexpected ticker mapping")
	}
	if m, _ := massiveSpan(Hour2); m != 2 {
		t.Fatalf("Hour2 multiplier = %d", m)
	}
	if m, _ := massiveSpan(Minute15); m != 15 {
		t.Fatalf("Minute15 multiplier = %d", m)
	}
	if !NewMassiveGateway("key", nil).Authenticated() || NewMassiveGateway("", nil).Authenticated() {
		t.Fatal("unexpected massive authentication state")
	}
}
