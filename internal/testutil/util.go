// Package testutil holds helpers shared by package tests: golden JSON files
// and float comparison.
package testutil

import (
	"bytes"
	"encoding/json"
	"flag"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// Update rewrites golden files instead of comparing: go test ./... -update
var Update = flag.Bool(
	"update",
	false,
	"update golden files",
)

func goldenPath(name string) string {
	return filepath.Join("testdata", name+".golden")
}

func writeGolden(t *testing.T, name string, b []byte) {
	t.Helper()
	if err := os.MkdirAll("testdata", 0o755); err != nil {
		t.Fatalf("failed to create testdata: %v", err)
	}
	if err := os.WriteFile(goldenPath(name), b, 0o644); err != nil {
		t.Fatalf("failed to write golden file: %v", err)
	}
}

// CompareWithGolden marshals v as indented JSON and compares it with
// testdata/<name>.golden. Surrounding whitespace is ignored.
func CompareWithGolden(t *testing.T, name string, v any) {
	t.Helper()

	actual, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal actual JSON: %v", err)
	}

	if *Update {
		writeGolden(t, name, actual)
		return
	}

	expected, err := os.ReadFile(goldenPath(name))
	if err != nil {
		t.Fatalf("failed to read golden file: %v", err)
	}

	if !bytes.Equal(bytes.TrimSpace(expected), bytes.TrimSpace(actual)) {
		t.Fatalf("golden mismatch for %s\nexpected:\n%s\nactual:\n%s",
			name, string(expected), string(actual))
	}
}

// Close reports whether a and b differ by at most tol.
func Close(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// AssertClose fails the test when got is further than tol from want.
func AssertClose(t *testing.T, what string, got, want, tol float64) {
	t.Helper()
	if !Close(got, want, tol) {
		t.Fatalf("%s = %.8f, want %.8f (tol %g)", what, got, want, tol)
	}
}
