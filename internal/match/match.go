// Package match identifies which stored task a free-text phrase refers to.
package match

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/vthunder/chorebot/internal/tasks"
)

// Matcher scores how well a candidate title matches a target phrase.
// 0 means no match; higher is more confident. Scores are only compared
// against other scores from the same Matcher.
type Matcher interface {
	Score(candidateTitle, target string) float64
}

// MatcherFunc adapts a function to Matcher
type MatcherFunc func(candidateTitle, target string) float64

func (f MatcherFunc) Score(candidateTitle, target string) float64 {
	return f(candidateTitle, target)
}

// Substring matches case-insensitively. A hit scores the share of the title
// the target covers, so the shortest containing title wins. Anything that is
// not a substring of the title scores 0.
type Substring struct{}

func (Substring) Score(candidateTitle, target string) float64 {
	title := strings.ToLower(candidateTitle)
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" || title == "" || !strings.Contains(title, target) {
		return 0
	}
	return coverage(title, target)
}

// Words is an opt-in looser matcher: a substring hit scores as Substring, and
// a title containing every word of the target in any order scores half that.
type Words struct{}

func (Words) Score(candidateTitle, target string) float64 {
	if score := (Substring{}).Score(candidateTitle, target); score > 0 {
		return score
	}
	title := strings.ToLower(candidateTitle)
	target = strings.ToLower(strings.TrimSpace(target))
	words := strings.Fields(target)
	if len(words) < 2 {
		return 0
	}
	for _, w := range words {
		if !strings.Contains(title, w) {
			return 0
		}
	}
	return coverage(title, target) / 2
}

func coverage(title, target string) float64 {
	c := float64(utf8.RuneCountInString(target)) / float64(utf8.RuneCountInString(title))
	if c > 1 {
		return 1
	}
	return c
}

// Best returns the highest-scoring task. Ties go to the shorter title, then
// the older task. ok is false when nothing scores above zero.
func Best(m Matcher, candidates []tasks.Task, target string) (tasks.Task, bool) {
	var (
		best      tasks.Task
		bestScore float64
		found     bool
	)
	for _, t := range candidates {
		score := m.Score(t.Title, target)
		if score <= 0 {
			continue
		}
		if !found || better(score, t, bestScore, best) {
			best, bestScore, found = t, score, true
		}
	}
	return best, found
}

func better(score float64, t tasks.Task, bestScore float64, best tasks.Task) bool {
	if score != bestScore {
		return score > bestScore
	}
	lt, lb := utf8.RuneCountInString(t.Title), utf8.RuneCountInString(best.Title)
	if lt != lb {
		return lt < lb
	}
	return t.CreatedAt.Before(best.CreatedAt)
}

// PrefixLen is how many leading characters of a target must appear in a
// title for it to be offered as a suggestion
const PrefixLen = 3

// Suggest returns up to limit tasks whose title contains the first PrefixLen
// characters of target, shortest title first. Used when no match was found.
func Suggest(candidates []tasks.Task, target string, limit int) []tasks.Task {
	r := []rune(strings.ToLower(strings.TrimSpace(target)))
	if len(r) < PrefixLen {
		return nil
	}
	prefix := string(r[:PrefixLen])

	var out []tasks.Task
	for _, t := range candidates {
		if strings.Contains(strings.ToLower(t.Title), prefix) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return utf8.RuneCountInString(out[i].Title) < utf8.RuneCountInString(out[j].Title)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
