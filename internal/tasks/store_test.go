package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T, opts Options) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		if filepath.Base(db.Path()) != "chorebot.db" {
			t.Errorf("unexpected path %s", db.Path())
		}
		db.Close()
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenPath(filepath.Join(t.TempDir(), "x.db"), Options{Driver: "postgres"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestInsertAndActive(t *testing.T) {
	db := openTest(t, DefaultOptions())
	ctx := context.Background()

	inserted, err := db.Insert(ctx, []Task{
		{Title: "Buy milk", Owner: "alex", CreatedBy: "alex", WhereText: strPtr("Edeka")},
		{Title: "Mow lawn", Owner: "sam", CreatedBy: "alex"},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(inserted) != 2 {
		t.Fatalf("expected 2 inserted, got %d", len(inserted))
	}
	if inserted[0].ID == "" || inserted[0].Importance != ImportanceNormal || inserted[0].Category != CategoryGeneral {
		t.Errorf("defaults not applied: %+v", inserted[0])
	}

	mine, err := db.Active(ctx, "alex")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].Where() != "Edeka" || mine[0].WhenText != nil {
		t.Errorf("unexpected active tasks: %+v", mine)
	}

	all, _ := db.Active(ctx, "")
	if len(all) != 2 {
		t.Errorf("expected 2 across owners, got %d", len(all))
	}
}

func TestUniqueActiveTitles(t *testing.T) {
	db := openTest(t, DefaultOptions())
	ctx := context.Background()

	first, _ := db.Insert(ctx, []Task{{Title: "Buy milk", Owner: "alex", CreatedBy: "alex"}})
	dup, err := db.Insert(ctx, []Task{
		{Title: "buy milk", Owner: "alex", CreatedBy: "alex"},
		{Title: "Buy milk", Owner: "sam", CreatedBy: "sam"},
	})
	if err != nil {
		t.Fatalf("duplicate insert should not error: %v", err)
	}
	if len(dup) != 1 || dup[0].Owner != "sam" {
		t.Errorf("expected only sam's row inserted, got %+v", dup)
	}

	// Completed rows do not block a new active one
	if _, err := db.Complete(ctx, []string{first[0].ID}, "alex", time.Now()); err != nil {
		t.Fatal(err)
	}
	again, _ := db.Insert(ctx, []Task{{Title: "Buy milk", Owner: "alex", CreatedBy: "alex"}})
	if len(again) != 1 {
		t.Error("expected insert after completion to succeed")
	}
}

func TestUniqueIndexCanBeDisabled(t *testing.T) {
	db := openTest(t, Options{Driver: DriverModernc, UniqueActiveTitles: false})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := db.Insert(ctx, []Task{{Title: "Buy milk", Owner: "alex", CreatedBy: "alex"}}); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := db.Count(ctx); n != 2 {
		t.Errorf("expected 2 rows without the index, got %d", n)
	}
}

func TestCompleteSetsFields(t *testing.T) {
	db := openTest(t, DefaultOptions())
	ctx := context.Background()

	inserted, _ := db.Insert(ctx, []Task{{Title: "Vacuum", Owner: "alex", CreatedBy: "alex"}})
	at := time.Now()
	n, err := db.Complete(ctx, []string{inserted[0].ID}, "sam", at)
	if err != nil || n != 1 {
		t.Fatalf("Complete = %d, %v", n, err)
	}

	got, _ := db.Get(ctx, inserted[0].ID)
	if !got.Completed || got.CompletedAt == nil || !got.CompletedAt.Equal(time.Unix(0, at.UnixNano())) {
		t.Errorf("completed_at not set: %+v", got)
	}
	if got.CompletedBy == nil || *got.CompletedBy != "sam" {
		t.Errorf("completed_by not set: %+v", got.CompletedBy)
	}

	// Second completion is a no-op
	if n, _ := db.Complete(ctx, []string{inserted[0].ID}, "alex", time.Now()); n != 0 {
		t.Errorf("expected no-op, got %d", n)
	}
}

func TestUpdatePatch(t *testing.T) {
	db := openTest(t, DefaultOptions())
	ctx := context.Background()

	inserted, _ := db.Insert(ctx, []Task{{
		Title: "Buy milk", Owner: "alex", CreatedBy: "alex",
		WhenText: strPtr("tomorrow"), WhereText: strPtr("Edeka"),
	}})
	id := inserted[0].ID

	urgent := ImportanceUrgent
	got, err := db.Update(ctx, id, Patch{Importance: &urgent, ClearWhere: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Importance != ImportanceUrgent || got.WhereText != nil || got.When() != "tomorrow" {
		t.Errorf("unexpected update result: %+v", got)
	}

	if _, err := db.Update(ctx, "missing", Patch{Importance: &urgent}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	db := openTest(t, DefaultOptions())
	ctx := context.Background()

	inserted, _ := db.Insert(ctx, []Task{{Title: "Vacuum", Owner: "alex", CreatedBy: "alex"}})
	if err := db.Delete(ctx, inserted[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := db.Delete(ctx, inserted[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCompletedBeforeAndDeleteMany(t *testing.T) {
	db := openTest(t, DefaultOptions())
	ctx := context.Background()

	inserted, _ := db.Insert(ctx, []Task{
		{Title: "Old", Owner: "alex", CreatedBy: "alex"},
		{Title: "Recent", Owner: "alex", CreatedBy: "alex"},
		{Title: "Open", Owner: "alex", CreatedBy: "alex"},
	})
	now := time.Now()
	db.Complete(ctx, []string{inserted[0].ID}, "alex", now.Add(-40*24*time.Hour))
	db.Complete(ctx, []string{inserted[1].ID}, "alex", now.Add(-time.Hour))

	old, err := db.CompletedBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 1 || old[0].Title != "Old" {
		t.Fatalf("expected only Old, got %+v", old)
	}

	n, err := db.DeleteMany(ctx, []string{old[0].ID})
	if err != nil || n != 1 {
		t.Fatalf("DeleteMany = %d, %v", n, err)
	}
	if total, _ := db.Count(ctx); total != 2 {
		t.Errorf("expected 2 rows left, got %d", total)
	}
}

func TestHistoryPruneAndOrder(t *testing.T) {
	db := openTest(t, DefaultOptions())
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		turn := Turn{ChatID: "c1", UserID: "u1", Role: RoleUser, Content: string(rune('a' + i)), Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := db.AppendTurn(ctx, turn, 3); err != nil {
			t.Fatal(err)
		}
	}
	db.AppendTurn(ctx, Turn{ChatID: "c1", UserID: "u2", Role: RoleUser, Content: "other"}, 3)

	turns, err := db.RecentTurns(ctx, "c1", "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns after pruning, got %d", len(turns))
	}
	got := turns[0].Content + turns[1].Content + turns[2].Content
	if got != "cde" {
		t.Errorf("expected chronological cde, got %s", got)
	}
}

func TestKV(t *testing.T) {
	db := openTest(t, DefaultOptions())
	ctx := context.Background()

	if _, ok, err := db.GetValue(ctx, "sweep.last_run"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	db.SetValue(ctx, "sweep.last_run", "a")
	db.SetValue(ctx, "sweep.last_run", "b")
	v, ok, err := db.GetValue(ctx, "sweep.last_run")
	if err != nil || !ok || v != "b" {
		t.Errorf("GetValue = %q, %v, %v", v, ok, err)
	}
}

func TestStats(t *testing.T) {
	db := openTest(t, DefaultOptions())
	ctx := context.Background()

	inserted, err := db.Insert(ctx, []Task{
		{Title: "Buy milk", Owner: "alex", CreatedBy: "alex"},
		{Title: "Mow lawn", Owner: "sam", CreatedBy: "alex"},
		{Title: "Bake bread", Owner: "sam", CreatedBy: "sam"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Complete(ctx, []string{inserted[2].ID}, "sam", time.Now()); err != nil {
		t.Fatal(err)
	}
	for _, user := range []string{"u1", "u2"} {
		if err := db.AppendTurn(ctx, Turn{ChatID: "c1", UserID: user, Role: RoleUser, Content: "hi", Timestamp: time.Now()}, 10); err != nil {
			t.Fatal(err)
		}
	}

	st, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Active != 2 || st.Completed != 1 {
		t.Errorf("active=%d completed=%d", st.Active, st.Completed)
	}
	if st.ActiveByOwner["alex"] != 1 || st.ActiveByOwner["sam"] != 1 {
		t.Errorf("by owner: %v", st.ActiveByOwner)
	}
	if st.Turns != 2 || st.Conversations != 2 {
		t.Errorf("turns=%d conversations=%d", st.Turns, st.Conversations)
	}
}
