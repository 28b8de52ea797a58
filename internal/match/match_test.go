package match

import (
	"testing"
	"time"

	"github.com/vthunder/chorebot/internal/tasks"
)

func task(title string, age time.Duration) tasks.Task {
	return tasks.Task{ID: title, Title: title, CreatedAt: time.Now().Add(-age)}
}

func TestSubstringScore(t *testing.T) {
	m := Substring{}
	tests := []struct {
		title, target string
		wantHit       bool
	}{
		{"Clean the kitchen", "kitchen", true},
		{"Clean the kitchen", "KITCHEN", true},
		{"Clean the kitchen", "kitchen clean", false},
		{"Clean the kitchen", "bathroom", false},
		{"Clean the kitchen", "", false},
		{"Milk", "buy milk", false},
	}
	for _, tt := range tests {
		got := m.Score(tt.title, tt.target)
		if (got > 0) != tt.wantHit {
			t.Errorf("Score(%q, %q) = %v, want hit=%v", tt.title, tt.target, got, tt.wantHit)
		}
	}
}

func TestWordsScoreAnyOrder(t *testing.T) {
	m := Words{}
	exact := m.Score("Wash the dishes", "wash the dishes")
	reordered := m.Score("Wash the dishes", "dishes wash")
	if exact <= 0 || reordered <= 0 {
		t.Fatalf("expected hits, got %v and %v", exact, reordered)
	}
	if reordered >= exact {
		t.Errorf("reordered hit %v should score below substring hit %v", reordered, exact)
	}
	if got := m.Score("Wash the dishes", "dishes dry"); got != 0 {
		t.Errorf("partial word hit scored %v", got)
	}
	if got := (Substring{}).Score("Wash the dishes", "dishes wash"); got != 0 {
		t.Errorf("Substring scored reordered words %v", got)
	}
}

func TestBestPrefersShortestTitle(t *testing.T) {
	candidates := []tasks.Task{
		task("clean the kitchen floor", 2*time.Hour),
		task("clean the kitchen", time.Hour),
	}
	best, ok := Best(Substring{}, candidates, "kitchen")
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Title != "clean the kitchen" {
		t.Errorf("expected shortest title, got %q", best.Title)
	}
}

func TestBestTieGoesToOldest(t *testing.T) {
	candidates := []tasks.Task{
		task("water plants", time.Minute),
		task("water garden", time.Hour),
	}
	best, ok := Best(Substring{}, candidates, "water")
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Title != "water garden" {
		t.Errorf("expected older task on tie, got %q", best.Title)
	}
}

func TestBestPluggableMatcher(t *testing.T) {
	exact := MatcherFunc(func(title, target string) float64 {
		if title == target {
			return 1
		}
		return 0
	})
	candidates := []tasks.Task{task("dishes", 0), task("wash dishes", 0)}
	best, ok := Best(exact, candidates, "wash dishes")
	if !ok || best.Title != "wash dishes" {
		t.Errorf("custom matcher not honored: %+v %v", best, ok)
	}
}

func TestSuggest(t *testing.T) {
	candidates := []tasks.Task{
		task("Wash the dishes", 0),
		task("Vacuum", 0),
		task("Dishwasher salt", 0),
	}
	got := Suggest(candidates, "dishrack", 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(got))
	}
	if got[0].Title != "Wash the dishes" {
		t.Errorf("expected shortest suggestion, got %q", got[0].Title)
	}

	if got := Suggest(candidates, "zz", 1); got != nil {
		t.Errorf("short target should give no suggestions, got %v", got)
	}
}
