// Package resolver applies operation descriptors to the task store: it finds
// which task a phrase refers to, runs the effect and reports what happened.
package resolver

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/vthunder/chorebot/internal/intent"
	"github.com/vthunder/chorebot/internal/logging"
	"github.com/vthunder/chorebot/internal/match"
	"github.com/vthunder/chorebot/internal/tasks"
	"github.com/vthunder/chorebot/internal/vocab"
)

// ClearScope decides whose tasks clear_all completes
type ClearScope string

const (
	ClearOwner  ClearScope = "owner"
	ClearGlobal ClearScope = "global"
)

// DefaultSuggestCount is how many tasks an unfiltered suggestion returns
const DefaultSuggestCount = 3

// Policy holds deployment choices
type Policy struct {
	ClearScope   ClearScope
	SuggestCount int
}

// Resolver applies operations against a Store
type Resolver struct {
	store   tasks.Store
	vocab   *vocab.Vocabulary
	matcher match.Matcher
	policy  Policy
	now     func() time.Time
}

// New creates a resolver. A nil matcher uses match.Substring.
func New(store tasks.Store, v *vocab.Vocabulary, m match.Matcher, policy Policy) *Resolver {
	if m == nil {
		m = match.Substring{}
	}
	if v == nil {
		v = vocab.Default()
	}
	if policy.ClearScope == "" {
		policy.ClearScope = ClearOwner
	}
	if policy.SuggestCount <= 0 {
		policy.SuggestCount = DefaultSuggestCount
	}
	return &Resolver{store: store, vocab: v, matcher: m, policy: policy, now: time.Now}
}

// Apply runs every operation in order and returns one result per operation
func (r *Resolver) Apply(ctx context.Context, actor tasks.Actor, ops []intent.Operation) []Result {
	results := make([]Result, 0, len(ops))
	for _, op := range ops {
		results = append(results, r.ApplyOne(ctx, actor, op))
	}
	return results
}

// ApplyOne runs a single operation. It never returns an error: store failures
// are logged and reported as OutcomeFailed.
func (r *Resolver) ApplyOne(ctx context.Context, actor tasks.Actor, op intent.Operation) Result {
	var (
		res Result
		err error
	)
	switch op.Type {
	case intent.OpList:
		res, err = r.List(ctx, actor, op.Scope)
	case intent.OpComplete:
		res, err = r.Complete(ctx, actor, op.Target)
	case intent.OpDelete:
		res, err = r.Delete(ctx, actor, op.Target)
	case intent.OpClearAll:
		res, err = r.ClearAll(ctx, actor)
	case intent.OpEdit:
		res, err = r.Edit(ctx, actor, op.Target, op.Details)
	case intent.OpSuggest:
		res, err = r.Suggest(ctx, actor, SuggestQuery{
			MaxMinutes: op.MaxMinutes,
			AtLocation: op.AtLocation,
			Count:      op.Count,
		})
	default:
		logging.Warn("resolver", "ignoring unknown operation %q", op.Type)
		return Result{Op: op.Type, Outcome: OutcomeNotFound, Target: op.Target}
	}
	if err != nil {
		logging.Error("resolver", "%s %q for %s failed: %v", op.Type, op.Target, actor.Owner(), err)
		return Result{Op: op.Type, Outcome: OutcomeFailed, Target: op.Target, Err: err}
	}
	logging.Debug("resolver", "%s %q -> %s (%d)", op.Type, op.Target, res.Outcome, res.Count)
	return res
}

// List returns active tasks ordered by importance, then category, then age
func (r *Resolver) List(ctx context.Context, actor tasks.Actor, scope intent.Scope) (Result, error) {
	owner := actor.Owner()
	if scope == intent.ScopeAll {
		owner = ""
	}
	active, err := r.store.Active(ctx, owner)
	if err != nil {
		return Result{}, err
	}
	res := Result{Op: intent.OpList, Scope: scope}
	if len(active) == 0 {
		res.Outcome = OutcomeEmpty
		return res, nil
	}
	sortForDisplay(active)
	res.Outcome = OutcomeListed
	res.Tasks = active
	res.Count = len(active)
	return res, nil
}

// Complete resolves target to one task, or to a bulk set when the target is a
// context shortcut ("edeka everything"), and marks it done
func (r *Resolver) Complete(ctx context.Context, actor tasks.Actor, target string) (Result, error) {
	res := Result{Op: intent.OpComplete, Target: target}
	if strings.TrimSpace(target) == "" {
		res.Outcome = OutcomeNeedTarget
		return res, nil
	}

	active, err := r.store.Active(ctx, actor.Owner())
	if err != nil {
		return Result{}, err
	}

	// A qualifier only makes a shortcut when every other word names a place
	// or a category; "water all plants" is an ordinary title.
	if keywords, bulk := r.vocab.SplitBulk(target); bulk && r.contextual(active, keywords) {
		if len(keywords) == 0 {
			// "everything" on its own
			return r.ClearAll(ctx, actor)
		}
		selected := r.shortcut(active, keywords)
		if len(selected) == 0 {
			res.Outcome = OutcomeNotFound
			return res, nil
		}
		n, err := r.store.Complete(ctx, ids(selected), actor.Owner(), r.now())
		if err != nil {
			return Result{}, err
		}
		res.Outcome = OutcomeCompleted
		res.Tasks = selected
		res.Count = n
		res.Bulk = true
		return res, nil
	}

	task, res, found := r.find(active, target, res)
	if !found {
		return res, nil
	}
	n, err := r.store.Complete(ctx, []string{task.ID}, actor.Owner(), r.now())
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		// Someone else completed it between the read and the write
		res.Outcome = OutcomeNotFound
		return res, nil
	}
	res.Outcome = OutcomeCompleted
	res.Tasks = []tasks.Task{task}
	res.Count = n
	return res, nil
}

// Delete removes the matched task without marking it done
func (r *Resolver) Delete(ctx context.Context, actor tasks.Actor, target string) (Result, error) {
	res := Result{Op: intent.OpDelete, Target: target}
	if strings.TrimSpace(target) == "" {
		res.Outcome = OutcomeNeedTarget
		return res, nil
	}

	active, err := r.store.Active(ctx, actor.Owner())
	if err != nil {
		return Result{}, err
	}

	task, res, found := r.find(active, target, res)
	if !found {
		return res, nil
	}
	if err := r.store.Delete(ctx, task.ID); err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			res.Outcome = OutcomeNotFound
			return res, nil
		}
		return Result{}, err
	}
	res.Outcome = OutcomeDeleted
	res.Tasks = []tasks.Task{task}
	res.Count = 1
	return res, nil
}

// ClearAll completes every active task in the policy's scope
func (r *Resolver) ClearAll(ctx context.Context, actor tasks.Actor) (Result, error) {
	owner := actor.Owner()
	if r.policy.ClearScope == ClearGlobal {
		owner = ""
	}
	active, err := r.store.Active(ctx, owner)
	if err != nil {
		return Result{}, err
	}
	n, err := r.store.Complete(ctx, ids(active), actor.Owner(), r.now())
	if err != nil {
		return Result{}, err
	}
	return Result{Op: intent.OpClearAll, Outcome: OutcomeCleared, Tasks: active, Count: n, Bulk: true}, nil
}

// Edit applies the recognized fields of details to the matched task
func (r *Resolver) Edit(ctx context.Context, actor tasks.Actor, target string, details intent.Details) (Result, error) {
	res := Result{Op: intent.OpEdit, Target: target}
	if strings.TrimSpace(target) == "" {
		res.Outcome = OutcomeNeedTarget
		return res, nil
	}
	patch := toPatch(details)
	if patch.Empty() {
		res.Outcome = OutcomeNothingToChange
		return res, nil
	}

	active, err := r.store.Active(ctx, actor.Owner())
	if err != nil {
		return Result{}, err
	}

	task, res, found := r.find(active, target, res)
	if !found {
		return res, nil
	}
	updated, err := r.store.Update(ctx, task.ID, patch)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			res.Outcome = OutcomeNotFound
			return res, nil
		}
		return Result{}, err
	}
	res.Outcome = OutcomeEdited
	res.Tasks = []tasks.Task{*updated}
	res.Count = 1
	return res, nil
}

// find runs the single-task matching policy: clean the target, take the best
// match, otherwise look for a did-you-mean suggestion
func (r *Resolver) find(active []tasks.Task, target string, res Result) (tasks.Task, Result, bool) {
	cleaned := r.vocab.CleanTarget(target)
	if cleaned == "" {
		res.Outcome = OutcomeNeedTarget
		return tasks.Task{}, res, false
	}

	if task, ok := match.Best(r.matcher, active, cleaned); ok {
		return task, res, true
	}

	if suggestions := match.Suggest(active, cleaned, 1); len(suggestions) > 0 {
		s := suggestions[0]
		res.Outcome = OutcomeDidYouMean
		res.Suggestion = &s
		return tasks.Task{}, res, false
	}
	res.Outcome = OutcomeNotFound
	return tasks.Task{}, res, false
}

// contextual reports whether every keyword is a context word: a known place,
// part of some task's where_text, or a category keyword
func (r *Resolver) contextual(active []tasks.Task, keywords []string) bool {
	for _, kw := range keywords {
		if r.vocab.IsLocation(kw) {
			continue
		}
		if _, ok := r.vocab.CategoryFor(kw); ok {
			continue
		}
		if !inSomeWhere(active, kw) {
			return false
		}
	}
	return true
}

func inSomeWhere(active []tasks.Task, kw string) bool {
	for _, t := range active {
		if where := strings.ToLower(t.Where()); where != "" && strings.Contains(where, kw) {
			return true
		}
	}
	return false
}

// shortcut selects tasks that satisfy every keyword: the location contains
// it, or the task's category is the one it names
func (r *Resolver) shortcut(active []tasks.Task, keywords []string) []tasks.Task {
	var selected []tasks.Task
	for _, t := range active {
		where := strings.ToLower(t.Where())
		all := true
		for _, kw := range keywords {
			if where != "" && strings.Contains(where, kw) {
				continue
			}
			if cat, ok := r.vocab.CategoryFor(kw); ok && t.Category == cat {
				continue
			}
			all = false
			break
		}
		if all {
			selected = append(selected, t)
		}
	}
	return selected
}

func toPatch(d intent.Details) tasks.Patch {
	var p tasks.Patch
	p.Title = d.Title
	p.Owner = d.Who
	if d.WhenText != nil {
		if *d.WhenText == "" {
			p.ClearWhen = true
		} else {
			p.WhenText = d.WhenText
		}
	}
	if d.WhereText != nil {
		if *d.WhereText == "" {
			p.ClearWhere = true
		} else {
			p.WhereText = d.WhereText
		}
	}
	p.Importance = d.Importance
	p.Category = d.Category
	return p
}

func ids(list []tasks.Task) []string {
	out := make([]string, len(list))
	for i, t := range list {
		out[i] = t.ID
	}
	return out
}

// sortForDisplay orders by importance, then category, then creation
func sortForDisplay(list []tasks.Task) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Importance.Rank() != b.Importance.Rank() {
			return a.Importance.Rank() < b.Importance.Rank()
		}
		if a.Category.Rank() != b.Category.Rank() {
			return a.Category.Rank() < b.Category.Rank()
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
