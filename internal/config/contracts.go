package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/contactkeval/iv-tracker/internal/logger"
	"github.com/contactkeval/iv-tracker/internal/market"
	"github.com/contactkeval/iv-tracker/internal/symbol"
)

// ErrUnknownContract is returned when a root has no catalog entry.
var ErrUnknownContract = errors.New("unknown contract")

const (
	defaultStrikeStep = 50.0
	bankNiftyStep     = 100.0
)

var contractDateLayouts = []string{"02-01-2006", "2006-01-02"}

// Contract is one catalog row resolved at load time.
type Contract struct {
	Exchange     string
	Root         symbol.Root
	FutureExpiry time.Time
	OptionExpiry time.Time
	Kind         symbol.ExpiryKind
	StrikeStep   float64
}

// FutureSymbol is the future whose price sets the ATM strike.
func (c Contract) FutureSymbol() (string, error) {
	return symbol.FutureSymbol(c.Exchange, c.Root, c.FutureExpiry)
}

// Catalog is the set of configured contracts.
type Catalog struct {
	contracts []Contract
}

// NewCatalog wraps contracts.
func NewCatalog(contracts ...Contract) *Catalog {
	return &Catalog{contracts: contracts}
}

// DefaultCatalog is used when no catalog file exists.
func DefaultCatalog() *Catalog {
	root, _ := symbol.Resolve("NSE", "NIFTY")
	expiry := time.Date(2025, 11, 25, 0, 0, 0, 0, market.IST)
	return NewCatalog(Contract{
		Exchange:     "NSE",
		Root:         root,
		FutureExpiry: expiry,
		OptionExpiry: symbol.ExpiryAt("NSE", expiry),
		Kind:         symbol.Weekly,
		StrikeStep:   defaultStrikeStep,
	})
}

// All returns the contracts in file order.
func (c *Catalog) All() []Contract {
	return append([]Contract(nil), c.contracts...)
}

// Lookup finds the contract for root, written as ROOT or EXCH:ROOT. Both the
// configured and the resolved root name match.
func (c *Catalog) Lookup(root string) (Contract, error) {
	want := strings.ToUpper(strings.TrimSpace(root))
	exch := ""
	if i := strings.IndexByte(want, ':'); i >= 0 {
		exch, want = want[:i], want[i+1:]
	}
	for _, ct := range c.contracts {
		if exch != "" && exch != ct.Exchange {
			continue
		}
		if want == ct.Root.Name || want == strings.ToUpper(ct.Root.Configured) {
			return ct, nil
		}
	}
	return Contract{}, fmt.Errorf("%w: %s", ErrUnknownContract, root)
}

// LoadContracts reads the catalog at path. A missing file gives the default
// catalog.
func LoadContracts(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("config: contracts file %s not found, using defaults", path)
		return DefaultCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	cat, err := ParseContracts(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cat, nil
}

// ParseContracts reads catalog CSV with the columns Prefix, SYMBOL, EXPIERY
// and StrikeStep, and optionally OptionExpiry and ExpiryType.
func ParseContracts(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.New("empty catalog")
	}

	col := map[string]int{}
	for i, h := range recs[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"prefix", "symbol", "expiery"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("missing column %q", req)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Contract
	for n, rec := range recs[1:] {
		row := n + 2
		ct, err := parseContract(
			field(rec, "prefix"), field(rec, "symbol"), field(rec, "expiery"),
			field(rec, "strikestep"), field(rec, "optionexpiry"), field(rec, "expirytype"),
		)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		out = append(out, ct)
	}
	return NewCatalog(out...), nil
}

func parseContract(prefix, sym, expiry, step, optExpiry, kind string) (Contract, error) {
	exch := strings.ToUpper(prefix)
	if exch == "" {
		return Contract{}, errors.New("Prefix is required")
	}
	root, err := symbol.Resolve(exch, sym)
	if err != nil {
		return Contract{}, err
	}
	fut, err := parseContractDate(expiry)
	if err != nil {
		return Contract{}, fmt.Errorf("EXPIERY: %w", err)
	}
	ct := Contract{Exchange: exch, Root: root, FutureExpiry: fut, StrikeStep: defaultStrikeStep}
	if root.Name == "BANKNIFTY" {
		ct.StrikeStep = bankNiftyStep
	}
	if step != "" {
		v, err := strconv.ParseFloat(step, 64)
		if err != nil || v <= 0 {
			return Contract{}, fmt.Errorf("StrikeStep: invalid %q", step)
		}
		ct.StrikeStep = v
	}

	optDate := fut
	if optExpiry != "" {
		if optDate, err = parseContractDate(optExpiry); err != nil {
			return Contract{}, fmt.Errorf("OptionExpiry: %w", err)
		}
	}
	ct.OptionExpiry = symbol.ExpiryAt(exch, optDate)

	if ct.Kind, err = symbol.ParseExpiryKind(kind); err != nil {
		return Contract{}, fmt.Errorf("ExpiryType: %w", err)
	}
	return ct, nil
}

func parseContractDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("date is required")
	}
	for _, layout := range contractDateLayouts {
		if t, err := time.ParseInLocation(layout, s, market.IST); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date %q", s)
}
