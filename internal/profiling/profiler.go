// Package profiling records how long each stage of handling a message took,
// one JSON object per line.
package profiling

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level selects how much gets recorded
type Level string

const (
	LevelOff      Level = "off"
	LevelStages   Level = "stages"   // handler stages only
	LevelDetailed Level = "detailed" // stages plus each operation
)

// ParseLevel maps a config value onto a Level
func ParseLevel(s string) (Level, bool) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case "", LevelOff:
		return LevelOff, true
	case LevelStages, "minimal":
		return LevelStages, true
	case LevelDetailed:
		return LevelDetailed, true
	}
	return LevelOff, false
}

// Timing is one recorded measurement
type Timing struct {
	MessageID  string         `json:"message_id"`
	Stage      string         `json:"stage"`
	StartTime  time.Time      `json:"start_time"`
	DurationMs float64        `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Profiler writes timings. A nil *Profiler records nothing.
type Profiler struct {
	level Level
	mu    sync.Mutex
	file  *os.File
	enc   *json.Encoder
}

// Open creates a profiler appending to path. LevelOff returns nil.
func Open(level Level, path string) (*Profiler, error) {
	if level == LevelOff {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create profiling dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open profiling log: %w", err)
	}
	return &Profiler{level: level, file: f, enc: json.NewEncoder(f)}, nil
}

// Close closes the log file
func (p *Profiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Close()
}

// Stage times a handler stage; call the returned func when it ends
func (p *Profiler) Stage(messageID, stage string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.Record(messageID, stage, start, time.Since(start), nil)
	}
}

// Detail times a sub-step; recorded only at LevelDetailed
func (p *Profiler) Detail(messageID, stage string, metadata map[string]any) func() {
	if p == nil || p.level != LevelDetailed {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.Record(messageID, stage, start, time.Since(start), metadata)
	}
}

// Record writes one timing
func (p *Profiler) Record(messageID, stage string, start time.Time, d time.Duration, metadata map[string]any) {
	if p == nil {
		return
	}
	timing := Timing{
		MessageID:  messageID,
		Stage:      stage,
		StartTime:  start,
		DurationMs: float64(d.Nanoseconds()) / 1e6,
		Metadata:   metadata,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(timing)
}

// Level returns the configured level (LevelOff for nil)
func (p *Profiler) Level() Level {
	if p == nil {
		return LevelOff
	}
	return p.level
}
