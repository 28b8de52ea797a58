package activity

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// helper: create a Log backed by a temp directory
func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	return New(dir), filepath.Join(dir, "system", "activity.jsonl")
}

// helper: read all raw entries from the JSONL file
func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	entries, err := (&Log{path: path}).readAll()
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	return entries
}

func TestLog_WritesJSONL(t *testing.T) {
	log, path := newTestLog(t)

	ts := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	err := log.Log(Entry{
		Timestamp: ts,
		Type:      TypeInput,
		Summary:   "buy milk",
		Chat:      "kitchen",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Type != TypeInput || e.Summary != "buy milk" || e.Chat != "kitchen" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if !e.Timestamp.Equal(ts) {
		t.Errorf("timestamp: got %v, want %v", e.Timestamp, ts)
	}
}

func TestLog_AutoTimestamp(t *testing.T) {
	log, path := newTestLog(t)
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	log.now = func() time.Time { return fixed }

	if err := log.Log(Entry{Type: TypeReply, Summary: "auto-ts"}); err != nil {
		t.Fatal(err)
	}

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].Timestamp.Equal(fixed) {
		t.Errorf("auto-timestamp %v, want %v", entries[0].Timestamp, fixed)
	}
}

func TestLog_NilIsNoop(t *testing.T) {
	var log *Log
	if err := log.LogInput("m1", "c", "alex", "hi"); err != nil {
		t.Fatalf("nil log returned %v", err)
	}
	entries, err := log.Recent(5)
	if err != nil || entries != nil {
		t.Errorf("nil log Recent = %v, %v", entries, err)
	}
	if log.Path() != "" {
		t.Errorf("nil log path = %q", log.Path())
	}
}

func TestLog_SkipsMalformedLines(t *testing.T) {
	log, path := newTestLog(t)

	if err := log.Log(Entry{Type: TypeReply, Summary: "good"}); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("not json at all\n")
	f.Close()

	if err := log.Log(Entry{Type: TypeReply, Summary: "good2"}); err != nil {
		t.Fatal(err)
	}

	entries, err := log.readAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}

func TestLog_MissingFileReturnsNil(t *testing.T) {
	log, _ := newTestLog(t)
	entries, err := log.readAll()
	if err != nil {
		t.Fatalf("readAll on missing file: %v", err)
	}
	if entries != nil {
		t.Errorf("expected nil entries for missing file")
	}
}

func TestLogInterpret(t *testing.T) {
	log, _ := newTestLog(t)
	if err := log.LogInterpret("m1", false, 2, 1, ""); err != nil {
		t.Fatal(err)
	}
	if err := log.LogInterpret("m2", true, 0, 1, "model timed out"); err != nil {
		t.Fatal(err)
	}

	entries, _ := log.readAll()
	if entries[0].Type != TypeInterpret || entries[0].Data["tasks"] != float64(2) {
		t.Errorf("model entry: %+v", entries[0])
	}
	if _, ok := entries[0].Data["reason"]; ok {
		t.Error("model entry should not carry a reason")
	}
	if entries[1].Type != TypeFallback || entries[1].Data["reason"] != "model timed out" {
		t.Errorf("fallback entry: %+v", entries[1])
	}
}

func TestLogOperationAndIngest(t *testing.T) {
	log, _ := newTestLog(t)
	log.LogIngest("m1", "alex", []string{"Buy milk"}, []string{"Buy bread"})
	log.LogOperation("m1", "alex", "complete", "milk", "completed", 1)

	entries, _ := log.readAll()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	added, _ := entries[0].Data["added"].([]any)
	if len(added) != 1 || added[0] != "Buy milk" {
		t.Errorf("added: %v", entries[0].Data["added"])
	}
	op := entries[1]
	if op.Type != TypeOperation || op.Summary != "complete completed" || op.Data["target"] != "milk" {
		t.Errorf("operation entry: %+v", op)
	}
}

func TestLogError(t *testing.T) {
	log, _ := newTestLog(t)
	if err := log.LogError("m1", "ingest failed", errors.New("disk full")); err != nil {
		t.Fatal(err)
	}
	entries, _ := log.readAll()
	if entries[0].Type != TypeError || entries[0].Data["error"] != "disk full" {
		t.Errorf("error entry: %+v", entries[0])
	}
}

func TestLogReply(t *testing.T) {
	log, _ := newTestLog(t)
	log.LogReply("m1", "c1", 12, nil)
	log.LogReply("m2", "c1", 12, errors.New("403 Forbidden"))

	entries, _ := log.readAll()
	if entries[0].Type != TypeReply || entries[0].Data["length"] != float64(12) {
		t.Errorf("reply entry: %+v", entries[0])
	}
	if entries[1].Type != TypeError || entries[1].Data["error"] != "403 Forbidden" {
		t.Errorf("failed reply entry: %+v", entries[1])
	}
}

func TestRecent(t *testing.T) {
	log, _ := newTestLog(t)
	for i := 0; i < 10; i++ {
		log.Log(Entry{Type: TypeReply, Summary: "entry"})
	}
	entries, err := log.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3, got %d", len(entries))
	}
	all, _ := log.Recent(100)
	if len(all) != 10 {
		t.Errorf("expected 10, got %d", len(all))
	}
}

func TestToday(t *testing.T) {
	log, _ := newTestLog(t)
	now := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)
	log.now = func() time.Time { return now }

	log.Log(Entry{Type: TypeReply, Summary: "today", Timestamp: now.Add(-time.Hour)})
	log.Log(Entry{Type: TypeReply, Summary: "yesterday", Timestamp: now.AddDate(0, 0, -1)})

	entries, err := log.Today()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Summary != "today" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestSearchAndByType(t *testing.T) {
	log, _ := newTestLog(t)
	log.LogInput("m1", "c", "alex", "buy milk at Edeka")
	log.LogOperation("m2", "alex", "complete", "milk", "completed", 1)
	log.LogInput("m3", "c", "sam", "what can I do at home")

	found, err := log.Search("MILK", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}
	if found[0].MessageID != "m2" {
		t.Errorf("expected most recent first, got %s", found[0].MessageID)
	}

	inputs, _ := log.ByType(TypeInput, 1)
	if len(inputs) != 1 || inputs[0].MessageID != "m3" {
		t.Errorf("ByType: %+v", inputs)
	}
}

func TestForMessage(t *testing.T) {
	log, _ := newTestLog(t)
	log.LogInput("m1", "c", "alex", "done with dishes")
	log.LogInput("m2", "c", "sam", "hello")
	log.LogOperation("m1", "alex", "complete", "dishes", "completed", 1)

	entries, err := log.ForMessage("m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Type != TypeInput || entries[1].Type != TypeOperation {
		t.Errorf("unexpected trail: %+v", entries)
	}
}

func TestLog_ConcurrentWrites(t *testing.T) {
	log, path := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Log(Entry{Type: TypeReply, Summary: "concurrent"})
		}()
	}
	wg.Wait()

	if n := len(readEntries(t, path)); n != 20 {
		t.Errorf("expected 20 entries, got %d", n)
	}
}
