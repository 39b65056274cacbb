// Package api exposes the tracker over HTTP: session control, the stored
// and live volatility series, a websocket feed and the metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/contactkeval/iv-tracker/internal/cache"
	"github.com/contactkeval/iv-tracker/internal/logger"
	"github.com/contactkeval/iv-tracker/internal/metrics"
	"github.com/contactkeval/iv-tracker/internal/store"
	"github.com/contactkeval/iv-tracker/internal/tracker"
)

// Service is the part of the tracker the API drives.
type Service interface {
	Start(ctx context.Context, req tracker.StartRequest) (tracker.StartResult, error)
	Stop(ctx context.Context) error
	Status() tracker.Status
	Series(ctx context.Context, sym string) (cache.Series, error)
	Files() ([]string, error)
}

// Options tune the router. The zero value is usable.
type Options struct {
	Metrics *metrics.Metrics
	// StreamEvery is the push interval of the websocket feed.
	StreamEvery time.Duration
}

// Response wraps every successful JSON body.
type Response[T any] struct {
	Data T    `json:"data"`
	Meta Meta `json:"meta"`
}

// Meta describes a series payload.
type Meta struct {
	Symbol    string `json:"symbol,omitempty"`
	Timeframe string `json:"timeframe,omitempty"`
	Points    int    `json:"points,omitempty"`
	FirstTs   string `json:"first_ts,omitempty"`
	LastTs    string `json:"last_ts,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

type apiRoute struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
}

type server struct {
	svc   Service
	every time.Duration
}

// NewRouter returns the HTTP handler of svc.
func NewRouter(svc Service, opts Options) http.Handler {
	s := &server{svc: svc, every: opts.StreamEvery}
	if s.every <= 0 {
		s.every = time.Second
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	for _, rt := range s.routes() {
		api.HandleFunc(rt.Path, rt.Handler).Methods(rt.Method)
	}
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	router.Use(logRequests)
	return Zstd(router)
}

func (s *server) routes() []apiRoute {
	return []apiRoute{
		{Path: "/sessions/start", Method: http.MethodPost, Handler: s.start},
		{Path: "/sessions/stop", Method: http.MethodPost, Handler: s.stop},
		{Path: "/sessions/status", Method: http.MethodGet, Handler: s.status},
		{Path: "/series", Method: http.MethodGet, Handler: s.series},
		{Path: "/series/files", Method: http.MethodGet, Handler: s.files},
		{Path: "/series/stream", Method: http.MethodGet, Handler: s.stream},
	}
}

func (s *server) start(w http.ResponseWriter, r *http.Request) {
	var req tracker.StartRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := s.svc.Start(r.Context(), req)
	switch {
	case errors.Is(err, tracker.ErrTransitionInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tracker.ErrRejected):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, Response[tracker.StartResult]{Data: res})
	}
}

func (s *server) stop(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Stop(r.Context())
	switch {
	case errors.Is(err, tracker.ErrTransitionInFlight):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil && !errors.Is(err, tracker.ErrNotRunning):
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Response[map[string]any]{Data: map[string]any{
		"acknowledged": true,
		"was_running":  err == nil,
	}})
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response[tracker.Status]{Data: s.svc.Status()})
}

func (s *server) series(w http.ResponseWriter, r *http.Request) {
	sym := r.URL.Query().Get("symbol")
	if sym == "" {
		if sym = s.svc.Status().CurrentSymbol; sym == "" {
			writeError(w, http.StatusBadRequest, "missing symbol")
			return
		}
	}
	ser, err := s.svc.Series(r.Context(), sym)
	if errors.Is(err, store.ErrNoSeries) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse(ser))
}

func (s *server) files(w http.ResponseWriter, r *http.Request) {
	names, err := s.svc.Files()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, Response[[]string]{Data: names})
}

func seriesResponse(ser cache.Series) Response[cache.Series] {
	meta := Meta{Symbol: ser.Symbol, Timeframe: ser.Timeframe, Points: ser.Len()}
	if n := ser.Len(); n > 0 {
		meta.FirstTs = ser.Timestamps[0].Format(store.TimeLayout)
		meta.LastTs = ser.Timestamps[n-1].Format(store.TimeLayout)
	}
	return Response[cache.Series]{Data: ser, Meta: meta}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		next.ServeHTTP(w, r)
		logger.Debugf("api: %s %s in %v", r.Method, r.URL.Path, time.Since(began))
	})
}
