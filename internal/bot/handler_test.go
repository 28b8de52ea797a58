package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vthunder/chorebot/internal/activity"
	"github.com/vthunder/chorebot/internal/ingest"
	"github.com/vthunder/chorebot/internal/intent"
	"github.com/vthunder/chorebot/internal/memory"
	"github.com/vthunder/chorebot/internal/reflex"
	"github.com/vthunder/chorebot/internal/resolver"
	"github.com/vthunder/chorebot/internal/tasks"
	"github.com/vthunder/chorebot/internal/types"
)

// fakeInterpreter answers with a fixed result or error and records inputs
type fakeInterpreter struct {
	mu     sync.Mutex
	result intent.Result
	err    error
	inputs []intent.Input
	delay  time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *fakeInterpreter) Interpret(ctx context.Context, in intent.Input) (intent.Result, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return f.result, f.err
}

func (f *fakeInterpreter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type harness struct {
	db      *tasks.DB
	interp  *fakeInterpreter
	handler *Handler
	memory  *memory.Sessions
	trail   *activity.Log
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	db, err := tasks.OpenPath(filepath.Join(dir, "test.db"), tasks.DefaultOptions())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	engine := reflex.NewEngine(dir)
	if err := engine.Load(); err != nil {
		t.Fatalf("load reflexes: %v", err)
	}

	interp := &fakeInterpreter{}
	sessions := memory.New(db, 12, 0)
	trail := activity.New(dir)
	h := New(Deps{
		Interpreter: interp,
		Fallback:    engine,
		Store:       db,
		Memory:      sessions,
		Ingester:    ingest.New(db, nil),
		Resolver:    resolver.New(db, nil, nil, resolver.Policy{}),
		Activity:    trail,
	})
	return &harness{db: db, interp: interp, handler: h, memory: sessions, trail: trail}
}

func message(text string) types.Message {
	return types.Message{
		ID:         "m1",
		Source:     "test",
		SenderID:   "u1",
		SenderName: "alex",
		ChatID:     "c1",
		Text:       text,
		Timestamp:  time.Now(),
	}
}

func (h *harness) seed(t *testing.T, titles ...string) {
	t.Helper()
	var list []tasks.Task
	for i, title := range titles {
		list = append(list, tasks.Task{
			Title:     title,
			Owner:     "alex",
			CreatedBy: "alex",
			CreatedAt: time.Now().Add(time.Duration(i-len(titles)) * time.Second),
		})
	}
	if _, err := h.db.Insert(context.Background(), list); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func only(t *testing.T, replies []types.Reply) string {
	t.Helper()
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if replies[0].ChatID != "c1" {
		t.Errorf("reply went to %q", replies[0].ChatID)
	}
	return replies[0].Content
}

func TestNonTextMessage(t *testing.T) {
	h := newHarness(t)
	msg := message("")
	msg.NonText = true

	got := only(t, h.handler.Handle(context.Background(), msg))
	if got != unsupportedReply {
		t.Errorf("got %q", got)
	}
	if h.interp.calls() != 0 {
		t.Error("interpreter should not be called")
	}
	if n, _ := h.db.Count(context.Background()); n != 0 {
		t.Errorf("store touched: %d rows", n)
	}
}

func TestEmptyTextIsIgnored(t *testing.T) {
	h := newHarness(t)
	if replies := h.handler.Handle(context.Background(), message("   ")); replies != nil {
		t.Errorf("expected no replies, got %v", replies)
	}
}

func TestMixedResultAppliesEverything(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "Wash the dishes")
	h.interp.result = intent.Result{
		Reply: "On it!",
		Tasks: []intent.NewTask{{Title: "Buy milk", Category: tasks.CategoryShopping}},
		Operations: []intent.Operation{
			{Type: intent.OpComplete, Target: "dishes"},
		},
	}.Validate()

	got := only(t, h.handler.Handle(context.Background(), message("bought... I mean buy milk, and dishes are done")))
	for _, want := range []string{"On it!", "Added: Buy milk", "Done: Wash the dishes"} {
		if !strings.Contains(got, want) {
			t.Errorf("reply %q missing %q", got, want)
		}
	}

	active, _ := h.db.Active(context.Background(), "alex")
	if len(active) != 1 || active[0].Title != "Buy milk" {
		t.Errorf("unexpected active tasks: %+v", active)
	}
}

func TestInterpreterFailureUsesFallback(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "Wash the dishes", "Take out trash")
	h.interp.err = errors.New("timeout")

	got := only(t, h.handler.Handle(context.Background(), message("done with the dishes")))
	if !strings.Contains(got, "Wash the dishes") {
		t.Errorf("fallback reply %q", got)
	}
	active, _ := h.db.Active(context.Background(), "alex")
	if len(active) != 1 || active[0].Title != "Take out trash" {
		t.Errorf("dishes should be completed: %+v", active)
	}
}

func TestInterpreterFailureWithoutFallbackApologizes(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "Wash the dishes")
	h.interp.err = intent.ErrUnparseable

	got := only(t, h.handler.Handle(context.Background(), message("hmm what about tomorrow")))
	if got != apologyReply {
		t.Errorf("got %q", got)
	}
	active, _ := h.db.Active(context.Background(), "alex")
	if len(active) != 1 {
		t.Errorf("no effects expected, active=%d", len(active))
	}
}

func TestHistoryFlowsIntoNextTurn(t *testing.T) {
	h := newHarness(t)
	h.interp.result = intent.Result{Reply: "Hi!"}.Validate()
	ctx := context.Background()

	h.handler.Handle(ctx, message("hello"))
	h.handler.Handle(ctx, message("and again"))

	if h.interp.calls() != 2 {
		t.Fatalf("expected 2 calls, got %d", h.interp.calls())
	}
	second := h.interp.inputs[1]
	if len(second.History) != 2 {
		t.Fatalf("expected 2 prior turns, got %d", len(second.History))
	}
	if second.History[0].Content != "hello" || second.History[1].Content != "Hi!" {
		t.Errorf("history out of order: %+v", second.History)
	}
	if second.Text != "and again" {
		t.Errorf("current text leaked into history handling: %q", second.Text)
	}

	// A fresh session store over the same DB sees the same turns
	fresh := memory.New(h.db, 12, 0)
	turns, err := fresh.History(ctx, memory.Scope{ChatID: "c1", UserID: "u1"})
	if err != nil || len(turns) != 4 {
		t.Errorf("rehydrated %d turns, err=%v", len(turns), err)
	}
}

func TestCommands(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "Wash the dishes")
	ctx := context.Background()

	if got := only(t, h.handler.Handle(ctx, message("/list"))); !strings.Contains(got, "Wash the dishes") {
		t.Errorf("/list: %q", got)
	}
	if got := only(t, h.handler.Handle(ctx, message("/all"))); !strings.Contains(got, "(alex)") {
		t.Errorf("/all should show owners: %q", got)
	}
	if got := only(t, h.handler.Handle(ctx, message("/status"))); !strings.Contains(got, "Uptime") || !strings.Contains(got, "Open tasks: 1") {
		t.Errorf("/status: %q", got)
	}
	if got := only(t, h.handler.Handle(ctx, message("/whatever"))); got != helpText {
		t.Errorf("unknown command should show help, got %q", got)
	}
	if h.interp.calls() != 0 {
		t.Error("commands must not reach the interpreter")
	}
	if h.memory.Len() != 0 {
		t.Error("commands must not be recorded")
	}
}

func TestSameConversationIsSerialized(t *testing.T) {
	h := newHarness(t)
	h.interp.result = intent.Result{Reply: "ok"}.Validate()
	h.interp.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.handler.Handle(context.Background(), message("hello"))
		}()
	}
	wg.Wait()

	if got := h.interp.maxInflight.Load(); got != 1 {
		t.Errorf("expected one message at a time, saw %d concurrent", got)
	}
	if h.handler.locks.size() != 0 {
		t.Error("locks should be released")
	}
}

func TestKeyedMutexSeparatesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
	if k.size() != 0 {
		t.Errorf("expected empty lock table, got %d", k.size())
	}
}

func TestActivityTrail(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "Wash the dishes")
	h.interp.err = errors.New("timeout")

	h.handler.Handle(context.Background(), message("done with the dishes"))

	entries, err := h.trail.ForMessage("m1")
	if err != nil {
		t.Fatal(err)
	}
	var kinds []activity.Type
	for _, e := range entries {
		kinds = append(kinds, e.Type)
	}
	want := []activity.Type{activity.TypeInput, activity.TypeFallback, activity.TypeOperation}
	if len(kinds) != len(want) {
		t.Fatalf("trail %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("entry %d: got %s, want %s", i, kinds[i], want[i])
		}
	}
	if entries[1].Data["reason"] != "timeout" {
		t.Errorf("fallback reason: %v", entries[1].Data["reason"])
	}
	if entries[2].Summary != "complete completed" {
		t.Errorf("operation summary: %q", entries[2].Summary)
	}
}
