package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/contactkeval/iv-tracker/internal/logger"
	"github.com/contactkeval/iv-tracker/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stream pushes the series of ?symbol, or of the tracked option, every
// s.every until the client goes away. A frame is sent only when the series
// changed since the last one.
func (s *server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("api: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	// Reads are only needed to notice the close frame.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	fixed := r.URL.Query().Get("symbol")
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	var last time.Time
	var lastSym string
	for {
		sym := fixed
		if sym == "" {
			sym = s.svc.Status().CurrentSymbol
		}
		if sym != "" {
			ser, err := s.svc.Series(r.Context(), sym)
			switch {
			case errors.Is(err, store.ErrNoSeries):
			case err != nil:
				logger.Warnf("api: stream %s: %v", sym, err)
			case sym != lastSym || !ser.UpdatedAt.Equal(last):
				if err := conn.WriteJSON(seriesResponse(ser)); err != nil {
					logger.Debugf("api: stream closed: %v", err)
					return
				}
				last, lastSym = ser.UpdatedAt, sym
			}
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
