// Package reflex holds deterministic keyword rules that stand in for the
// language model when it fails, times out or returns nothing usable.
package reflex

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/vthunder/chorebot/internal/intent"
	"github.com/vthunder/chorebot/internal/logging"
	"github.com/vthunder/chorebot/internal/tasks"
)

//go:embed rules.yaml
var defaultRules []byte

// Engine matches messages against fallback rules
type Engine struct {
	rules   map[string]*Rule
	ruleDir string
	mu      sync.RWMutex
}

// NewEngine creates an engine that reads overrides from statePath/reflexes
func NewEngine(statePath string) *Engine {
	e := &Engine{rules: make(map[string]*Rule)}
	if statePath != "" {
		e.ruleDir = filepath.Join(statePath, "reflexes")
	}
	return e
}

// Load installs the built-in rules, then any YAML files in the rule
// directory. A file rule with the same name replaces the built-in one.
func (e *Engine) Load() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var builtin []*Rule
	if err := yaml.Unmarshal(defaultRules, &builtin); err != nil {
		return fmt.Errorf("failed to parse built-in rules: %w", err)
	}

	e.rules = make(map[string]*Rule, len(builtin))
	for _, r := range builtin {
		if err := r.compile(); err != nil {
			return err
		}
		e.rules[r.Name] = r
	}

	if e.ruleDir == "" {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(e.ruleDir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("failed to glob rules: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(e.ruleDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to glob rules: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		rule, err := loadRuleFile(file)
		if err == nil {
			err = rule.compile()
		}
		if err != nil {
			logging.Warn("reflex", "Failed to load %s: %v", file, err)
			continue
		}
		e.rules[rule.Name] = rule
		logging.Debug("reflex", "Loaded: %s", rule.Name)
	}

	logging.Info("reflex", "%d rules active", len(e.rules))
	return nil
}

func loadRuleFile(path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rule Rule
	if err := yaml.Unmarshal(data, &rule); err != nil {
		return nil, err
	}
	if rule.Name == "" {
		rule.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &rule, nil
}

// Rules returns the active rules, highest priority first
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Match runs the highest-priority matching rule and returns its result.
// ok is false when no rule produced anything.
func (e *Engine) Match(text string) (intent.Result, bool) {
	for _, rule := range e.Rules() {
		matched, vars := rule.Match(text)
		if !matched {
			continue
		}
		result, ok := build(rule.Op, vars)
		if !ok {
			continue
		}

		e.mu.Lock()
		rule.LastFired = time.Now()
		rule.FireCount++
		e.mu.Unlock()

		logging.Debug("reflex", "Fired: %s", rule.Name)
		return result, true
	}
	return intent.Result{}, false
}

func build(op RuleOp, vars map[string]string) (intent.Result, bool) {
	var result intent.Result

	switch strings.ToLower(op.Type) {
	case "add":
		item := vars["item"]
		if item == "" {
			return result, false
		}
		rest, place := splitPlace(item)
		var where *string
		if place != "" {
			where = &place
		}
		for _, piece := range splitItems(rest) {
			title := expand(op.Title, mergeVars(vars, "item", piece))
			if op.Title == "" {
				title = piece
			}
			result.Tasks = append(result.Tasks, intent.NewTask{
				Title:     capitalize(title),
				WhereText: where,
				Category:  tasks.Category(op.Category),
			})
		}

	default:
		typ, ok := intent.ParseOpType(op.Type)
		if !ok {
			return result, false
		}
		operation := intent.Operation{
			Type:   typ,
			Target: expand(op.Target, vars),
			Scope:  intent.Scope(expand(op.Scope, vars)),
		}
		if (typ == intent.OpComplete || typ == intent.OpDelete) && operation.Target == "" {
			return result, false
		}
		result.Operations = append(result.Operations, operation)
	}

	result = result.Validate()
	return result, result.Kind != intent.KindReply
}

func mergeVars(vars map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		out[k] = v
	}
	out[key] = value
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
