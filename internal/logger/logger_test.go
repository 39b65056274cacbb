package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestVerbosityFiltersLowerLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	prev := Verbosity()
	defer SetVerbosity(int(prev))

	SetVerbosity(int(Warn))
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	Errorf("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked at warn verbosity: %q", out)
	}
	if !strings.Contains(out, "[WARN]  shown 2") || !strings.Contains(out, "[ERROR] shown 3") {
		t.Fatalf("missing expected lines: %q", out)
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Fatalf("expected caller file in output: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", Debug, false},
		{" WARN ", Warn, false},
		{"4", Trace, false},
		{"0", Error, false},
		{"9", Info, true},
		{"loud", Info, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
