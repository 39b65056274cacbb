package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"

	"github.com/contactkeval/iv-tracker/internal/cache"
	"github.com/contactkeval/iv-tracker/internal/metrics"
	"github.com/contactkeval/iv-tracker/internal/store"
	"github.com/contactkeval/iv-tracker/internal/tracker"
)

type fakeService struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	got      tracker.StartRequest
	status   tracker.Status
	series   map[string]cache.Series
	files    []string
}

func (f *fakeService) Start(_ context.Context, req tracker.StartRequest) (tracker.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = req
	if f.startErr != nil {
		return tracker.StartResult{}, f.startErr
	}
	return tracker.StartResult{SessionID: "s-1", ResolvedSymbol: "NSE:NIFTY25N2524500CE", Strike: 24500, Points: 3}, nil
}

func (f *fakeService) Stop(context.Context) error { return f.stopErr }

func (f *fakeService) Status() tracker.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeService) Series(_ context.Context, sym string) (cache.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ser, ok := f.series[sym]
	if !ok {
		return cache.Series{}, fmt.Errorf("load %s: %w", sym, store.ErrNoSeries)
	}
	return ser, nil
}

func (f *fakeService) Files() ([]string, error) { return f.files, nil }

func sampleSeries(sym string, at time.Time) cache.Series {
	return cache.Series{
		Symbol:      sym,
		Timeframe:   "1m",
		Timestamps:  []time.Time{at.Add(-time.Minute), at},
		IV:          []float64{18.5, 18.7},
		OptionClose: []float64{120, 121},
		FutureClose: []float64{24510, 24512},
		UpdatedAt:   at,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStart(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"accepted", nil, `{"mode":"automatic","symbol":"NIFTY","timeframe":"1m"}`, http.StatusOK},
		{"rejected", fmt.Errorf("%w: bad symbol", tracker.ErrRejected), `{"mode":"automatic","symbol":"X","timeframe":"1m"}`, http.StatusBadRequest},
		{"in flight", tracker.ErrTransitionInFlight, `{"mode":"automatic","symbol":"NIFTY","timeframe":"1m"}`, http.StatusConflict},
		{"bad json", nil, `{"mode":`, http.StatusBadRequest},
		{"unknown field", nil, `{"mode":"automatic","colour":"red"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{startErr: tt.err}
			rec := do(t, NewRouter(svc, Options{}), http.MethodPost, "/api/sessions/start", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	svc := &fakeService{}
	rec := do(t, NewRouter(svc, Options{}), http.MethodPost, "/api/sessions/start",
		`{"mode":"manual","symbol":"NSE:NIFTY25N2524500PE","timeframe":"1m","risk_free_rate":0.07}`)
	var out Response[tracker.StartResult]
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Data.ResolvedSymbol != "NSE:NIFTY25N2524500CE" || out.Data.Strike != 24500 {
		t.Fatalf("unexpected result %+v", out.Data)
	}
	if svc.got.Rate == nil || *svc.got.Rate != 0.07 || svc.got.Symbol != "NSE:NIFTY25N2524500PE" {
		t.Fatalf("request not decoded: %+v", svc.got)
	}
}

func TestStopAcknowledged(t *testing.T) {
	for _, err := range []error{nil, tracker.ErrNotRunning} {
		rec := do(t, NewRouter(&fakeService{stopErr: err}, Options{}), http.MethodPost, "/api/sessions/stop", "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"acknowledged":true`) {
			t.Fatalf("stop with %v: %d %s", err, rec.Code, rec.Body.String())
		}
	}
	rec := do(t, NewRouter(&fakeService{stopErr: tracker.ErrTransitionInFlight}, Options{}), http.MethodPost, "/api/sessions/stop", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestStatusAndMethods(t *testing.T) {
	svc := &fakeService{status: tracker.Status{Active: true, State: "running", CurrentSymbol: "NSE:NIFTY25N2524500CE"}}
	h := NewRouter(svc, Options{})

	rec := do(t, h, http.MethodGet, "/api/sessions/status", "")
	var out Response[tracker.Status]
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Data.Active || out.Data.CurrentSymbol != "NSE:NIFTY25N2524500CE" {
		t.Fatalf("unexpected status %+v", out.Data)
	}

	if rec := do(t, h, http.MethodPost, "/health", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST health: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health: %d %q", rec.Code, rec.Body.String())
	}
}

func TestSeries(t *testing.T) {
	at := time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
	svc := &fakeService{
		status: tracker.Status{CurrentSymbol: "NSE:NIFTY25N2524500CE"},
		series: map[string]cache.Series{"NSE:NIFTY25N2524500CE": sampleSeries("NSE:NIFTY25N2524500CE", at)},
		files:  []string{"NSE_NIFTY25N2524500CE"},
	}
	h := NewRouter(svc, Options{})

	for _, path := range []string{"/api/series?symbol=NSE:NIFTY25N2524500CE", "/api/series"} {
		rec := do(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", path, rec.Code, rec.Body.String())
		}
		var out Response[cache.Series]
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Meta.Points != 2 || out.Data.IV[1] != 18.7 || out.Meta.LastTs == "" {
			t.Fatalf("%s: unexpected body %+v", path, out)
		}
	}

	if rec := do(t, h, http.MethodGet, "/api/series?symbol=NSE:OTHER", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown series: %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/series/files", "")
	if !strings.Contains(rec.Body.String(), "NSE_NIFTY25N2524500CE") {
		t.Fatalf("files: %s", rec.Body.String())
	}

	idle := NewRouter(&fakeService{}, Options{})
	if rec := do(t, idle, http.MethodGet, "/api/series", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("series without symbol or session: %d", rec.Code)
	}
	if rec := do(t, idle, http.MethodGet, "/api/series/files", ""); strings.TrimSpace(rec.Body.String()) != `{"data":[],"meta":{}}` {
		t.Fatalf("empty files: %s", rec.Body.String())
	}
}

func TestZstd(t *testing.T) {
	svc := &fakeService{files: []string{"NSE_A", "NSE_B"}}
	req := httptest.NewRequest(http.MethodGet, "/api/series/files", nil)
	req.Header.Set("Accept-Encoding", "gzip, zstd")
	rec := httptest.NewRecorder()
	NewRouter(svc, Options{}).ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "zstd" {
		t.Fatalf("expected zstd encoding, got %q", rec.Header().Get("Content-Encoding"))
	}
	dec, err := zstd.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	body, err := io.ReadAll(dec)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "NSE_B") {
		t.Fatalf("decoded body %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.Tick(metrics.OutcomeOK)
	rec := do(t, NewRouter(&fakeService{}, Options{Metrics: m}), http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `ivtracker_ticks_total{outcome="ok"} 1`) {
		t.Fatalf("metrics body: %s", rec.Body.String())
	}
}

func TestStream(t *testing.T) {
	at := time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
	sym := "NSE:NIFTY25N2524500CE"
	svc := &fakeService{series: map[string]cache.Series{sym: sampleSeries(sym, at)}}
	srv := httptest.NewServer(NewRouter(svc, Options{StreamEvery: 10 * time.Millisecond}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/series/stream?symbol=" + sym
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Response[cache.Series]
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Meta.Points != 2 {
		t.Fatalf("first frame %+v", first.Meta)
	}

	svc.mu.Lock()
	next := sampleSeries(sym, at.Add(time.Minute))
	next.IV[1] = 19.1
	svc.series[sym] = next
	svc.mu.Unlock()

	var second Response[cache.Series]
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if second.Data.IV[1] != 19.1 {
		t.Fatalf("second frame not updated: %+v", second.Data.IV)
	}
}
