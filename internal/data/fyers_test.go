package data

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fyersServer(t *testing.T, handler http.HandlerFunc) (*fyersGateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFyersGateway("APP-100", "token", srv.URL, nil), srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestFyersHistory(t *testing.T) {
	var gotAuth, gotRes, gotSym string
	gw, _ := fyersServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotRes = r.URL.Query().Get("resolution")
		gotSym = r.URL.Query().Get("symbol")
		// deliberately out of order
		writeJSON(w, 200, `{"s":"ok","candles":[
			[1763448960,101,102,100,101.5,300],
			[1763448900,100,101,99,100.5,200]
		]}`)
	})

	from := time.Date(2025, 11, 18, 0, 0, 0, 0, time.UTC)
	bars, err := gw.History(context.Background(), "NSE:NIFTY25NOVFUT", Minute1, from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if gotAuth != "APP-100:token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotRes != "1" || gotSym != "NSE:NIFTY25NOVFUT" {
		t.Fatalf("query resolution=%q symbol=%q", gotRes, gotSym)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if !bars[0].Date.Before(bars[1].Date) || bars[0].Close != 100.5 || bars[1].Vol != 300 {
		t.Fatalf("unexpected bars %+v", bars)
	}
}

func TestFyersHistoryNoData(t *testing.T) {
	gw, _ := fyersServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"s":"no_data","candles":[]}`)
	})
	_, err := gw.History(context.Background(), "NSE:X", Minute1, time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestFyersHistoryHTTPError(t *testing.T) {
	// fake server returning 500
	gw, _ := fyersServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"s":"error","message":"internal error"}`)
	})
	_, err := gw.History(context.Background(), "NSE:X", Minute1, time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestFyersHistoryAPIError(t *testing.T) {
	gw, _ := fyersServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"s":"error","code":-16,"message":"token expired"}`)
	})
	_, err := gw.History(context.Background(), "NSE:X", Minute1, time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestFyersTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	gw := NewFyersGateway("APP", "token", url, nil)
	if _, err := gw.LastPrice(context.Background(), "NSE:X"); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestFyersLastPrice(t *testing.T) {
	gw, _ := fyersServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/quotes" || r.URL.Query().Get("symbols") != "NSE:NIFTY25NOVFUT" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		writeJSON(w, 200, `{"s":"ok","d":[{"n":"NSE:NIFTY25NOVFUT","s":"ok","v":{"lp":24513.5}}]}`)
	})
	p, err := gw.LastPrice(context.Background(), "NSE:NIFTY25NOVFUT")
	if err != nil {
		t.Fatalf("LastPrice: %v", err)
	}
	if p != 24513.5 {
		t.Fatalf("expected 24513.5, got %f", p)
	}
}

func TestFyersLastPriceMissing(t *testing.T) {
	gw, _ := fyersServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"s":"ok","d":[{"n":"NSE:X","s":"error","v":{}}]}`)
	})
	if _, err := gw.LastPrice(context.Background(), "NSE:X"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestFyersAuthenticated(t *testing.T) {
	if NewFyersGateway("", "", "", nil).Authenticated() {
		t.Fatal("gateway without token must not be authenticated")
	}
	if !NewFyersGateway("APP", "tok", "", nil).Authenticated() {
		t.Fatal("gateway with token must be authenticated")
	}
}
