package logging

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"buy milk", 20, "buy milk"},
		{"line one\nline two", 40, "line one line two"},
		{"einkaufen bei Edeka", 9, "einkaufen..."},
		{"äöüäöü", 3, "äöü..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestDebugGate(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	flags := log.Flags()
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
		SetDebug(false)
	})

	SetDebug(false)
	Debug("test", "hidden %d", 1)
	SetDebug(true)
	Debug("test", "shown %d", 2)
	Warn("test", "careful")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug output leaked while disabled: %q", out)
	}
	if !strings.Contains(out, "[test] shown 2") || !strings.Contains(out, "[test] WARN careful") {
		t.Errorf("unexpected output: %q", out)
	}
}
