// Package vocab holds the language-specific keyword tables used for target
// cleaning, bulk shortcuts, title normalization and duration estimates.
package vocab

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vthunder/chorebot/internal/tasks"
)

//go:embed default.yaml
var defaultYAML []byte

// Bucket is a coarse duration class
type Bucket string

const (
	BucketShort  Bucket = "short"
	BucketMedium Bucket = "medium"
	BucketLong   Bucket = "long"
)

// DurationRule maps title keywords to a bucket
type DurationRule struct {
	Bucket   Bucket   `yaml:"bucket"`
	Keywords []string `yaml:"keywords"`
}

// Vocabulary is the full lookup table set
type Vocabulary struct {
	FillerWords    []string                    `yaml:"filler_words"`
	BulkQualifiers []string                    `yaml:"bulk_qualifiers"`
	Synonyms       map[string]string           `yaml:"synonyms"`
	Buckets        map[Bucket]int              `yaml:"buckets"`
	Durations      []DurationRule              `yaml:"durations"`
	Categories     map[tasks.Category][]string `yaml:"categories"`
	HomeWords      []string                    `yaml:"home_words"`
	Locations      []string                    `yaml:"locations"`

	filler map[string]bool
	bulk   map[string]bool
	home   map[string]bool
	syn    map[string]string
}

// Default returns the embedded vocabulary
func Default() *Vocabulary {
	v, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary is invalid: %v", err))
	}
	return v
}

// Parse decodes a vocabulary document
func Parse(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	v.index()
	return &v, nil
}

// Load reads statePath/vocabulary.yaml, falling back to the embedded default
func Load(statePath string) (*Vocabulary, error) {
	path := filepath.Join(statePath, "vocabulary.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return Parse(data)
}

func (v *Vocabulary) validate() error {
	for _, rule := range v.Durations {
		switch rule.Bucket {
		case BucketShort, BucketMedium, BucketLong:
		default:
			return fmt.Errorf("duration rule has unknown bucket %q", rule.Bucket)
		}
	}
	for cat := range v.Categories {
		if _, ok := tasks.ParseCategory(string(cat)); !ok {
			return fmt.Errorf("unknown category %q", cat)
		}
	}
	if v.Buckets == nil {
		v.Buckets = map[Bucket]int{}
	}
	for b, def := range map[Bucket]int{BucketShort: 10, BucketMedium: 30, BucketLong: 90} {
		if v.Buckets[b] <= 0 {
			v.Buckets[b] = def
		}
	}
	return nil
}

func (v *Vocabulary) index() {
	v.filler = toSet(v.FillerWords)
	v.bulk = toSet(v.BulkQualifiers)
	v.home = toSet(v.HomeWords)
	v.syn = make(map[string]string, len(v.Synonyms))
	for k, canonical := range v.Synonyms {
		v.syn[Fold(k)] = canonical
	}
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return set
}

// Fold lowercases and collapses whitespace; used as the comparison key
func Fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// IsFiller reports whether word is a filler word
func (v *Vocabulary) IsFiller(word string) bool {
	return v.filler[strings.ToLower(word)]
}

// IsBulkQualifier reports whether word turns a target into a bulk shortcut
func (v *Vocabulary) IsBulkQualifier(word string) bool {
	return v.bulk[strings.ToLower(word)]
}

// IsHome reports whether a location means "at home"
func (v *Vocabulary) IsHome(location string) bool {
	return v.home[Fold(location)]
}

// Canonical returns the canonical phrasing for a title, if one is configured
func (v *Vocabulary) Canonical(title string) (string, bool) {
	c, ok := v.syn[Fold(title)]
	return c, ok
}

// CleanTarget strips leading and trailing filler words and punctuation.
// Filler words inside the phrase are kept so substring matching still works
// against titles like "clean the kitchen".
func (v *Vocabulary) CleanTarget(target string) string {
	words := strings.Fields(strings.ToLower(target))
	for i := range words {
		words[i] = strings.Trim(words[i], ".,!?;:\"'")
	}
	start, end := 0, len(words)
	for start < end && (words[start] == "" || v.IsFiller(words[start])) {
		start++
	}
	for end > start && (words[end-1] == "" || v.IsFiller(words[end-1])) {
		end--
	}
	return strings.Join(words[start:end], " ")
}

// SplitBulk separates bulk qualifiers from a target. ok is false when the
// target carries no qualifier. The remaining keywords have filler removed.
func (v *Vocabulary) SplitBulk(target string) (keywords []string, ok bool) {
	for _, w := range strings.Fields(strings.ToLower(target)) {
		w = strings.Trim(w, ".,!?;:\"'")
		switch {
		case w == "":
		case v.IsBulkQualifier(w):
			ok = true
		case v.IsFiller(w):
		default:
			keywords = append(keywords, w)
		}
	}
	return keywords, ok
}

// CategoryFor maps a keyword to a category
func (v *Vocabulary) CategoryFor(keyword string) (tasks.Category, bool) {
	keyword = strings.ToLower(keyword)
	for cat, words := range v.Categories {
		if strings.EqualFold(string(cat), keyword) {
			return cat, true
		}
		for _, w := range words {
			if strings.EqualFold(w, keyword) {
				return cat, true
			}
		}
	}
	return "", false
}

// Estimate returns the duration bucket and minutes for a title
func (v *Vocabulary) Estimate(title string) (Bucket, int) {
	lower := strings.ToLower(title)
	for _, rule := range v.Durations {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return rule.Bucket, v.Buckets[rule.Bucket]
			}
		}
	}
	return BucketMedium, v.Buckets[BucketMedium]
}

// IsLocation reports whether word is a known place
func (v *Vocabulary) IsLocation(word string) bool {
	for _, loc := range v.Locations {
		if strings.EqualFold(loc, word) {
			return true
		}
	}
	return false
}

// MentionedLocation returns the first known location named in text
func (v *Vocabulary) MentionedLocation(text string) (string, bool) {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		for _, loc := range v.Locations {
			if w == strings.ToLower(loc) {
				return loc, true
			}
		}
	}
	return "", false
}
