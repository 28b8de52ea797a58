package reflex

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// Rule is a pattern-to-operation fallback defined in YAML
type Rule struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Priority    int     `yaml:"priority"` // higher = fires first when multiple match
	Trigger     Trigger `yaml:"trigger"`
	Op          RuleOp  `yaml:"op"`

	// Runtime state
	compiledPattern *regexp.Regexp
	LastFired       time.Time `yaml:"-"`
	FireCount       int       `yaml:"-"`
}

// Trigger defines when a rule fires
type Trigger struct {
	Pattern string   `yaml:"pattern"` // regex pattern to match
	Extract []string `yaml:"extract"` // names for the capture groups, in order
}

// RuleOp is the operation a rule produces. String fields may reference
// extracted variables as $name.
type RuleOp struct {
	Type     string `yaml:"type"` // list, complete, delete, clear_all, add
	Target   string `yaml:"target"`
	Scope    string `yaml:"scope"`
	Title    string `yaml:"title"`    // add only; rendered once per item
	Category string `yaml:"category"` // add only
}

// compile prepares the pattern once so Match is safe for concurrent use
func (r *Rule) compile() error {
	compiled, err := regexp.Compile(r.Trigger.Pattern)
	if err != nil {
		return fmt.Errorf("rule %s: %w", r.Name, err)
	}
	r.compiledPattern = compiled
	return nil
}

// Match checks the rule against a message and returns the extracted variables
func (r *Rule) Match(content string) (bool, map[string]string) {
	if r.Trigger.Pattern == "" {
		return false, nil
	}

	re := r.compiledPattern
	if re == nil {
		compiled, err := regexp.Compile(r.Trigger.Pattern)
		if err != nil {
			return false, nil
		}
		re = compiled
	}

	matches := re.FindStringSubmatch(content)
	if matches == nil {
		return false, nil
	}

	extracted := make(map[string]string)
	for i, name := range r.Trigger.Extract {
		if i+1 < len(matches) {
			extracted[name] = strings.TrimSpace(matches[i+1])
		}
	}
	return true, extracted
}

// expand substitutes $name references with extracted values
func expand(tmpl string, vars map[string]string) string {
	return strings.TrimSpace(os.Expand(tmpl, func(name string) string {
		return vars[name]
	}))
}
