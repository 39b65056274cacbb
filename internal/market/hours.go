// Package market answers whether an exchange is trading at a given instant.
package market

import (
	"fmt"
	"strings"
	"time"
)

// IST is India Standard Time. A fixed zone keeps the calendar independent of
// the host tzdata.
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session is an exchange's regular trading window in IST, inclusive at both ends.
type Session struct {
	OpenHour, OpenMinute   int
	CloseHour, CloseMinute int
}

func (s Session) contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= s.OpenHour*60+s.OpenMinute && m <= s.CloseHour*60+s.CloseMinute
}

// DefaultSessions holds the regular sessions of the exchanges the tracker knows.
var DefaultSessions = map[string]Session{
	"NSE": {9, 15, 15, 30},
	"NFO": {9, 15, 15, 30},
	"BSE": {9, 15, 15, 30},
	"MCX": {9, 0, 23, 30},
}

// Calendar gates polling on exchange hours, weekends and holidays.
type Calendar struct {
	Sessions map[string]Session
	holidays map[string]struct{} // "2006-01-02" in IST
}

// NewCalendar builds a calendar with the default sessions. Holidays are
// "YYYY-MM-DD" dates in IST and close every exchange for the whole day.
func NewCalendar(holidays []string) (*Calendar, error) {
	c := &Calendar{Sessions: DefaultSessions, holidays: map[string]struct{}{}}
	for _, h := range holidays {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		d, err := time.ParseInLocation("2006-01-02", h, IST)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h, err)
		}
		c.holidays[d.Format("2006-01-02")] = struct{}{}
	}
	return c, nil
}

// IsOpen reports whether exchange is in its regular session at t.
// Exchanges without a configured session are treated as always open.
func (c *Calendar) IsOpen(exchange string, t time.Time) bool {
	sess, ok := c.Sessions[strings.ToUpper(exchange)]
	if !ok {
		return true
	}
	local := t.In(IST)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if _, closed := c.holidays[local.Format("2006-01-02")]; closed {
		return false
	}
	return sess.contains(local)
}

// ExchangeOf returns the "EXCH" part of an "EXCH:SYMBOL" string, or NSE when
// the symbol carries no prefix.
func ExchangeOf(sym string) string {
	if i := strings.IndexByte(sym, ':'); i > 0 {
		return strings.ToUpper(sym[:i])
	}
	return "NSE"
}
