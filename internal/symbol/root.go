// Package symbol derives exchange trading symbols for futures and options
// from a contract's root, expiry, strike and side, and parses option
// symbols back into their parts.
//
// Roots are resolved once into a closed set of kinds so that alternate-size
// commodity contracts (GOLDM, SILVERM, ...) are never mistaken for a base
// commodity carrying a month-code letter.
package symbol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSymbol is returned when a root, expiry or strike cannot produce a
// symbol. Callers retry on the next tick.
var ErrNoSymbol = errors.New("no symbol")

// Kind classifies a resolved root.
type Kind int

const (
	Index            Kind = iota // NIFTY, BANKNIFTY
	IndexVariant                 // other index families on the same segment
	Equity                       // any other non-commodity root, used verbatim
	Commodity                    // base MCX commodity
	CommodityVariant             // alternate-size MCX contract, kept verbatim
	CommodityOther               // unlisted MCX root, kept verbatim
)

func (k Kind) String() string {
	switch k {
	case Index:
		return "index"
	case IndexVariant:
		return "index-variant"
	case Equity:
		return "equity"
	case Commodity:
		return "commodity"
	case CommodityVariant:
		return "commodity-variant"
	case CommodityOther:
		return "commodity-other"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	indexRoots        = []string{"NIFTY", "BANKNIFTY"}
	indexVariantRoots = []string{"FINNIFTY", "MIDCPNIFTY", "NIFTYNXT50"}

	commodities = []string{
		"CRUDEOIL", "GOLD", "SILVER", "COPPER", "ZINC",
		"LEAD", "NICKEL", "ALUMINIUM", "NATURALGAS",
	}
	commodityVariants = []string{
		"SILVERM", "GOLDM", "SILVERMINI", "GOLDMINI",
		"SILVERMIC", "GOLDPETAL", "GOLDGUINEA", "NATGASMINI",
	}

	// futures month codes that may trail a configured commodity root
	commodityMonthCodes = "FGHJKMNQUVXZ"
)

// Root is a resolved root symbol.
type Root struct {
	// Name is the root used in derived symbols.
	Name string
	// Configured is the root as it appeared in configuration.
	Configured string
	Kind       Kind
}

// IsCommodity reports whether the root trades on a commodity segment.
func (r Root) IsCommodity() bool {
	return r.Kind == Commodity || r.Kind == CommodityVariant || r.Kind == CommodityOther
}

func (r Root) String() string { return r.Name }

// IsCommodityExchange reports whether exchange is a commodity segment.
func IsCommodityExchange(exchange string) bool {
	return strings.EqualFold(strings.TrimSpace(exchange), "MCX")
}

// Resolve classifies a configured root for exchange. An "EXCH:" prefix on the
// root is ignored.
//
// On a commodity exchange variants are matched first and kept verbatim. A
// known commodity followed by exactly one futures month-code letter loses the
// letter. Any other root (ZINCMINI, MENTHAOIL) is kept verbatim.
func Resolve(exchange, root string) (Root, error) {
	configured := strings.TrimSpace(root)
	name := strings.ToUpper(configured)
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return Root{}, fmt.Errorf("%w: empty root", ErrNoSymbol)
	}
	if strings.TrimSpace(exchange) == "" {
		return Root{}, fmt.Errorf("%w: empty exchange for root %s", ErrNoSymbol, name)
	}
	if !validRoot(name) {
		return Root{}, fmt.Errorf("%w: malformed root %q", ErrNoSymbol, configured)
	}

	if !IsCommodityExchange(exchange) {
		switch {
		case contains(indexRoots, name):
			return Root{Name: name, Configured: configured, Kind: Index}, nil
		case contains(indexVariantRoots, name):
			return Root{Name: name, Configured: configured, Kind: IndexVariant}, nil
		}
		return Root{Name: name, Configured: configured, Kind: Equity}, nil
	}

	if contains(commodityVariants, name) {
		return Root{Name: name, Configured: configured, Kind: CommodityVariant}, nil
	}
	for _, c := range commodities {
		if !strings.HasPrefix(name, c) {
			continue
		}
		rest := name[len(c):]
		if rest == "" || (len(rest) == 1 && strings.Contains(commodityMonthCodes, rest)) {
			return Root{Name: c, Configured: configured, Kind: Commodity}, nil
		}
	}
	return Root{Name: name, Configured: configured, Kind: CommodityOther}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func validRoot(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '&', r == '-':
		default:
			return false
		}
	}
	return s[0] >= 'A' && s[0] <= 'Z'
}
