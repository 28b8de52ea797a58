package reflex

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vthunder/chorebot/internal/intent"
	"github.com/vthunder/chorebot/internal/tasks"
)

func loadEngine(t *testing.T, statePath string) *Engine {
	t.Helper()
	e := NewEngine(statePath)
	if err := e.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return e
}

func TestRuleMatch(t *testing.T) {
	rule := &Rule{
		Name: "test-done",
		Trigger: Trigger{
			Pattern: `(?i)^done (.+)$`,
			Extract: []string{"target"},
		},
	}

	matched, extracted := rule.Match("done the laundry")
	if !matched {
		t.Fatal("Expected match")
	}
	if extracted["target"] != "the laundry" {
		t.Errorf("Expected target extraction, got: %v", extracted)
	}

	if matched, _ := rule.Match("hello world"); matched {
		t.Error("Expected no match")
	}
}

func TestEngineOperations(t *testing.T) {
	e := loadEngine(t, "")

	tests := []struct {
		text       string
		wantType   intent.OpType
		wantTarget string
		wantScope  intent.Scope
	}{
		{"done with the dishes", intent.OpComplete, "the dishes", intent.ScopePersonal},
		{"Dishes done!", intent.OpComplete, "Dishes", intent.ScopePersonal},
		{"erledigt müll", intent.OpComplete, "müll", intent.ScopePersonal},
		{"clear all", intent.OpClearAll, "", intent.ScopePersonal},
		{"alles erledigt", intent.OpClearAll, "", intent.ScopePersonal},
		{"list", intent.OpList, "", intent.ScopePersonal},
		{"list all", intent.OpList, "", intent.ScopeAll},
		{"remove vacuum", intent.OpDelete, "vacuum", intent.ScopePersonal},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			result, ok := e.Match(tt.text)
			if !ok {
				t.Fatal("expected a rule to fire")
			}
			if len(result.Operations) != 1 {
				t.Fatalf("expected 1 operation, got %+v", result)
			}
			op := result.Operations[0]
			if op.Type != tt.wantType {
				t.Errorf("type = %s, want %s", op.Type, tt.wantType)
			}
			if op.Target != tt.wantTarget {
				t.Errorf("target = %q, want %q", op.Target, tt.wantTarget)
			}
			if op.Scope != tt.wantScope {
				t.Errorf("scope = %s, want %s", op.Scope, tt.wantScope)
			}
		})
	}
}

func TestEngineBuyWithPlace(t *testing.T) {
	e := loadEngine(t, "")

	result, ok := e.Match("buy milk and bread at Edeka")
	if !ok {
		t.Fatal("expected buy rule to fire")
	}
	if result.Kind != intent.KindTasks {
		t.Fatalf("expected tasks, got %s", result.Kind)
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %+v", result.Tasks)
	}
	want := []string{"Buy milk", "Buy bread"}
	for i, task := range result.Tasks {
		if task.Title != want[i] {
			t.Errorf("task %d title = %q, want %q", i, task.Title, want[i])
		}
		if task.WhereText == nil || *task.WhereText != "Edeka" {
			t.Errorf("task %d where = %v, want Edeka", i, task.WhereText)
		}
		if task.WhenText != nil {
			t.Errorf("task %d when should stay nil, got %q", i, *task.WhenText)
		}
		if task.Category != tasks.CategoryShopping {
			t.Errorf("task %d category = %s", i, task.Category)
		}
	}
}

func TestEngineAddWithoutPlace(t *testing.T) {
	e := loadEngine(t, "")

	result, ok := e.Match("add water the plants")
	if !ok {
		t.Fatal("expected add rule to fire")
	}
	if len(result.Tasks) != 1 || result.Tasks[0].Title != "Water the plants" {
		t.Fatalf("unexpected tasks: %+v", result.Tasks)
	}
	if result.Tasks[0].WhereText != nil {
		t.Error("where_text must not be guessed")
	}
}

func TestEngineNoMatch(t *testing.T) {
	e := loadEngine(t, "")
	if _, ok := e.Match("how is the weather?"); ok {
		t.Error("expected no rule to fire")
	}
}

func TestEngineOverrideFromStateDir(t *testing.T) {
	dir := t.TempDir()
	ruleDir := filepath.Join(dir, "reflexes")
	if err := os.MkdirAll(ruleDir, 0755); err != nil {
		t.Fatal(err)
	}
	override := `name: list
priority: 30
trigger:
  pattern: '(?i)^zeig$'
op:
  type: list
  scope: all
`
	if err := os.WriteFile(filepath.Join(ruleDir, "list.yaml"), []byte(override), 0644); err != nil {
		t.Fatal(err)
	}

	e := loadEngine(t, dir)
	result, ok := e.Match("zeig")
	if !ok || result.Operations[0].Scope != intent.ScopeAll {
		t.Fatalf("expected override rule, got %+v ok=%v", result, ok)
	}
	if _, ok := e.Match("list"); ok {
		t.Error("built-in list rule should be replaced")
	}
}

func TestEngineRulesSortedByPriority(t *testing.T) {
	rules := loadEngine(t, "").Rules()
	for i := 1; i < len(rules); i++ {
		if rules[i].Priority > rules[i-1].Priority {
			t.Fatalf("rules not sorted: %s (%d) after %s (%d)",
				rules[i].Name, rules[i].Priority, rules[i-1].Name, rules[i-1].Priority)
		}
	}
}

func TestBrokenRuleFileIsSkippedWithWarning(t *testing.T) {
	dir := t.TempDir()
	ruleDir := filepath.Join(dir, "reflexes")
	if err := os.MkdirAll(ruleDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ruleDir, "broken.yaml"), []byte("name: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	e := loadEngine(t, dir)
	if len(e.Rules()) == 0 {
		t.Fatal("built-in rules should still load")
	}
	out := buf.String()
	if !strings.Contains(out, "[reflex] WARN Failed to load") || !strings.Contains(out, "broken.yaml") {
		t.Errorf("expected a tagged warning, got %q", out)
	}
	if !strings.Contains(out, "[reflex] ") || !strings.Contains(out, "rules active") {
		t.Errorf("expected rule count summary, got %q", out)
	}
}
