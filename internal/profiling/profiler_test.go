package profiling

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readTimings(t *testing.T, path string) []Timing {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read timings: %v", err)
	}

	var timings []Timing
	dec := json.NewDecoder(strings.NewReader(string(data)))
	for dec.More() {
		var mt Timing
		if err := dec.Decode(&mt); err != nil {
			t.Fatalf("decode timing: %v", err)
		}
		timings = append(timings, mt)
	}
	return timings
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"": LevelOff, "off": LevelOff, "Stages": LevelStages, "minimal": LevelStages, "detailed": LevelDetailed}
	for in, want := range tests {
		got, ok := ParseLevel(in)
		if !ok || got != want {
			t.Errorf("ParseLevel(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseLevel("trace"); ok {
		t.Error("trace should be rejected")
	}
}

func TestOffIsNil(t *testing.T) {
	p, err := Open(LevelOff, filepath.Join(t.TempDir(), "p.jsonl"))
	if err != nil || p != nil {
		t.Fatalf("expected nil profiler, got %v, %v", p, err)
	}
	// Nil profiler is usable
	p.Stage("m1", "interpret")()
	p.Detail("m1", "resolve", nil)()
	if p.Level() != LevelOff || p.Close() != nil {
		t.Error("nil profiler should report off and close cleanly")
	}
}

func TestStagesSkipsDetail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system", "profiling.jsonl")
	p, err := Open(LevelStages, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	p.Stage("m1", "interpret")()
	p.Detail("m1", "resolve.complete", map[string]any{"target": "milk"})()
	p.Close()

	timings := readTimings(t, path)
	if len(timings) != 1 || timings[0].Stage != "interpret" || timings[0].MessageID != "m1" {
		t.Errorf("unexpected timings: %+v", timings)
	}
}

func TestDetailedRecordsMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiling.jsonl")
	p, err := Open(LevelDetailed, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	p.Stage("m2", "ingest")()
	p.Detail("m2", "resolve.complete", map[string]any{"target": "milk"})()
	p.Close()

	timings := readTimings(t, path)
	if len(timings) != 2 {
		t.Fatalf("expected 2 timings, got %d", len(timings))
	}
	if timings[1].Metadata["target"] != "milk" {
		t.Errorf("metadata lost: %+v", timings[1])
	}
	if timings[0].DurationMs < 0 {
		t.Errorf("negative duration: %v", timings[0].DurationMs)
	}
}
