package resolver

import (
	"context"
	"strings"

	"github.com/vthunder/chorebot/internal/intent"
	"github.com/vthunder/chorebot/internal/tasks"
	"github.com/vthunder/chorebot/internal/vocab"
)

// SuggestQuery filters a suggestion. Zero values mean "no filter".
type SuggestQuery struct {
	MaxMinutes int
	AtLocation string
	Count      int
}

// Suggest picks tasks the caller could do now. It never mutates.
func (r *Resolver) Suggest(ctx context.Context, actor tasks.Actor, q SuggestQuery) (Result, error) {
	active, err := r.store.Active(ctx, actor.Owner())
	if err != nil {
		return Result{}, err
	}
	sortForDisplay(active)

	res := Result{Op: intent.OpSuggest}
	candidates := active
	if loc := strings.TrimSpace(q.AtLocation); loc != "" {
		candidates = r.atLocation(candidates, loc)
	}

	var picked []tasks.Task
	switch {
	case q.MaxMinutes > 0:
		picked, res.Minutes = r.fitBudget(candidates, q.MaxMinutes)
	default:
		picked = candidates
	}

	limit := q.Count
	if limit <= 0 && q.MaxMinutes <= 0 && q.AtLocation == "" {
		limit = r.policy.SuggestCount
	}
	if limit > 0 && len(picked) > limit {
		picked = picked[:limit]
	}

	if len(picked) == 0 {
		res.Outcome = OutcomeEmpty
		return res, nil
	}
	if res.Minutes == 0 {
		for _, t := range picked {
			_, m := r.vocab.Estimate(t.Title)
			res.Minutes += m
		}
	}
	res.Outcome = OutcomeSuggested
	res.Tasks = picked
	res.Count = len(picked)
	return res, nil
}

// atLocation keeps tasks that reference loc in where_text or title. For a
// home-like location, tasks without any explicit location also qualify, but
// a task tied to some other place never does.
func (r *Resolver) atLocation(list []tasks.Task, loc string) []tasks.Task {
	want := vocab.Fold(loc)
	home := r.vocab.IsHome(want)

	var out []tasks.Task
	for _, t := range list {
		where := vocab.Fold(t.Where())
		title := vocab.Fold(t.Title)
		switch {
		case strings.Contains(where, want) || strings.Contains(title, want):
			out = append(out, t)
		case home && where != "" && r.vocab.IsHome(where):
			out = append(out, t)
		case home && where == "":
			if _, elsewhere := r.vocab.MentionedLocation(t.Title); !elsewhere {
				out = append(out, t)
			}
		}
	}
	return out
}

// fitBudget greedily takes tasks in display order while the estimated total
// stays within budget. If nothing fits it returns the single shortest task.
func (r *Resolver) fitBudget(list []tasks.Task, budget int) ([]tasks.Task, int) {
	if len(list) == 0 {
		return nil, 0
	}

	var (
		picked   []tasks.Task
		total    int
		shortest = -1
		minutes  int
	)
	for i, t := range list {
		_, m := r.vocab.Estimate(t.Title)
		if shortest == -1 || m < minutes {
			shortest, minutes = i, m
		}
		if total+m <= budget {
			picked = append(picked, t)
			total += m
		}
	}
	if len(picked) == 0 {
		return []tasks.Task{list[shortest]}, minutes
	}
	return picked, total
}
