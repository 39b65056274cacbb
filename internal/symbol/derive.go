package symbol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/contactkeval/iv-tracker/internal/market"
)

// Side of an option contract.
type Side int

const (
	Call Side = iota
	Put
)

// Suffix is the two-letter exchange code for the side.
func (s Side) Suffix() string {
	if s == Put {
		return "PE"
	}
	return "CE"
}

func (s Side) String() string {
	if s == Put {
		return "put"
	}
	return "call"
}

// ParseSide accepts "c", "call", "ce" and their put counterparts in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "call", "ce":
		return Call, nil
	case "p", "put", "pe":
		return Put, nil
	}
	return Call, fmt.Errorf("unknown option side %q", s)
}

// ExpiryKind selects the option symbol layout.
type ExpiryKind int

const (
	Weekly ExpiryKind = iota
	Monthly
)

func (k ExpiryKind) String() string {
	if k == Monthly {
		return "monthly"
	}
	return "weekly"
}

// ParseExpiryKind accepts "weekly"/"w" and "monthly"/"m". Blank means weekly.
func ParseExpiryKind(s string) (ExpiryKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "w", "weekly":
		return Weekly, nil
	case "m", "monthly":
		return Monthly, nil
	}
	return Weekly, fmt.Errorf("unknown expiry type %q", s)
}

// weekly month letters, January first; J, M and A repeat.
const weeklyMonthLetters = "JFMAMJJASOND"

var monthAbbrs = [...]string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

func monthAbbr(m time.Month) string { return monthAbbrs[m-1] }

// FutureSymbol returns EXCH:ROOT{YY}{MMM}FUT, for example NSE:NIFTY25NOVFUT.
func FutureSymbol(exchange string, root Root, expiry time.Time) (string, error) {
	if root.Name == "" {
		return "", fmt.Errorf("%w: future needs a root", ErrNoSymbol)
	}
	if expiry.IsZero() {
		return "", fmt.Errorf("%w: future %s needs an expiry", ErrNoSymbol, root.Name)
	}
	exch := strings.ToUpper(strings.TrimSpace(exchange))
	if exch == "" {
		return "", fmt.Errorf("%w: future %s needs an exchange", ErrNoSymbol, root.Name)
	}
	return fmt.Sprintf("%s:%s%s%sFUT", exch, root.Name, expiry.Format("06"), monthAbbr(expiry.Month())), nil
}

// OptionSymbol returns the option symbol for strike and side.
//
//	weekly:  EXCH:ROOT{YY}{L}{DD}{STRIKE}{CE|PE}   NSE:NIFTY25N1824500CE
//	monthly: EXCH:ROOT{YY}{MMM}{STRIKE}{CE|PE}     MCX:CRUDEOIL25DEC5300CE
func OptionSymbol(exchange string, root Root, expiry time.Time, strike int, side Side, kind ExpiryKind) (string, error) {
	if root.Name == "" {
		return "", fmt.Errorf("%w: option needs a root", ErrNoSymbol)
	}
	if expiry.IsZero() {
		return "", fmt.Errorf("%w: option %s needs an expiry", ErrNoSymbol, root.Name)
	}
	if strike <= 0 {
		return "", fmt.Errorf("%w: option %s strike %d", ErrNoSymbol, root.Name, strike)
	}
	exch := strings.ToUpper(strings.TrimSpace(exchange))
	if exch == "" {
		return "", fmt.Errorf("%w: option %s needs an exchange", ErrNoSymbol, root.Name)
	}

	var b strings.Builder
	b.WriteString(exch)
	b.WriteByte(':')
	b.WriteString(root.Name)
	b.WriteString(expiry.Format("06"))
	if kind == Weekly {
		b.WriteByte(weeklyMonthLetters[expiry.Month()-1])
		b.WriteString(expiry.Format("02"))
	} else {
		b.WriteString(monthAbbr(expiry.Month()))
	}
	b.WriteString(strconv.Itoa(strike))
	b.WriteString(side.Suffix())
	return b.String(), nil
}

// Option is a parsed option symbol.
type Option struct {
	Exchange string
	Root     string
	Expiry   time.Time
	Strike   int
	Side     Side
	Kind     ExpiryKind
}

var (
	monthlyPattern = regexp.MustCompile(`^([A-Z][A-Z0-9&-]*?)(\d{2})(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)(\d+)(CE|PE)$`)
	weeklyPattern  = regexp.MustCompile(`^([A-Z][A-Z0-9&-]*?)(\d{2})([JFMASOND])(\d{2})(\d+)(CE|PE)$`)
)

// ParseOptionSymbol splits an option symbol into its parts. Symbols without an
// exchange prefix are taken as NSE.
//
// Weekly letters J, M and A each stand for more than one month; the month
// whose expiry is the earliest not before ref wins, else the latest candidate.
func ParseOptionSymbol(s string, ref time.Time) (Option, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	exch, body := "NSE", raw
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		exch, body = raw[:i], raw[i+1:]
	}
	if exch == "" || body == "" {
		return Option{}, fmt.Errorf("%w: cannot parse %q", ErrNoSymbol, s)
	}

	if m := monthlyPattern.FindStringSubmatch(body); m != nil {
		year := 2000 + atoi(m[2])
		month := monthFromAbbr(m[3])
		strike := atoi(m[4])
		if strike <= 0 {
			return Option{}, fmt.Errorf("%w: zero strike in %q", ErrNoSymbol, s)
		}
		d := LastThursday(year, month)
		return Option{
			Exchange: exch,
			Root:     m[1],
			Expiry:   ExpiryAt(exch, d),
			Strike:   strike,
			Side:     sideFromSuffix(m[5]),
			Kind:     Monthly,
		}, nil
	}

	if m := weeklyPattern.FindStringSubmatch(body); m != nil {
		year := 2000 + atoi(m[2])
		day := atoi(m[4])
		strike := atoi(m[5])
		if strike <= 0 {
			return Option{}, fmt.Errorf("%w: zero strike in %q", ErrNoSymbol, s)
		}
		expiry, ok := resolveWeekly(exch, year, m[3][0], day, ref)
		if !ok {
			return Option{}, fmt.Errorf("%w: no valid date for %s%s%s in %q", ErrNoSymbol, m[2], m[3], m[4], s)
		}
		return Option{
			Exchange: exch,
			Root:     m[1],
			Expiry:   expiry,
			Strike:   strike,
			Side:     sideFromSuffix(m[6]),
			Kind:     Weekly,
		}, nil
	}

	return Option{}, fmt.Errorf("%w: %q is not an option symbol", ErrNoSymbol, s)
}

func resolveWeekly(exch string, year int, letter byte, day int, ref time.Time) (time.Time, bool) {
	var best, latest time.Time
	for i := 0; i < len(weeklyMonthLetters); i++ {
		if weeklyMonthLetters[i] != letter {
			continue
		}
		d := time.Date(year, time.Month(i+1), day, 0, 0, 0, 0, market.IST)
		if d.Day() != day {
			continue // e.g. 31 in a 30-day month
		}
		exp := ExpiryAt(exch, d)
		if exp.After(latest) {
			latest = exp
		}
		if !exp.Before(ref) && (best.IsZero() || exp.Before(best)) {
			best = exp
		}
	}
	if !best.IsZero() {
		return best, true
	}
	return latest, !latest.IsZero()
}

// LastThursday returns the last Thursday of month at midnight IST.
func LastThursday(year int, month time.Month) time.Time {
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, market.IST)
	for d.Weekday() != time.Thursday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// ExpiryAt puts the exchange's expiry clock on date d: 23:20 IST on MCX and
// 15:15 IST elsewhere.
func ExpiryAt(exchange string, d time.Time) time.Time {
	local := d.In(market.IST)
	hour, minute := 15, 15
	if IsCommodityExchange(exchange) {
		hour, minute = 23, 20
	}
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, market.IST)
}

func monthFromAbbr(s string) time.Month {
	for i, a := range monthAbbrs {
		if a == s {
			return time.Month(i + 1)
		}
	}
	return time.December
}

func sideFromSuffix(s string) Side {
	if s == "PE" {
		return Put
	}
	return Call
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
