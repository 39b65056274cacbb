// Package report writes one-shot exports of a computed series.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/contactkeval/iv-tracker/internal/cache"
	"github.com/contactkeval/iv-tracker/internal/symbol"
	"github.com/contactkeval/iv-tracker/internal/tracker"
)

// Export is the written document.
type Export struct {
	Session     tracker.StartResult `json:"session"`
	Series      cache.Series        `json:"series"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// WriteJSON writes the session result and its series to
// outdir/<option file name>.json and returns the path.
func WriteJSON(res tracker.StartResult, ser cache.Series, outdir string) (string, error) {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(Export{Session: res, Series: ser, GeneratedAt: time.Now()}, "", "  ")
	if err != nil {
		return "", err
	}
	name := symbol.FileName(res.ResolvedSymbol)
	if name == "" {
		name = "series"
	}
	path := filepath.Join(outdir, name+".json")
	return path, os.WriteFile(path, b, 0o644)
}
