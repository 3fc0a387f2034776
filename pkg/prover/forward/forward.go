// Package forward derives facts by forward chaining: from the known facts,
// apply rules whose antecedents all hold until the goal shows up or nothing
// new can be derived.
package forward

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognicore/prover/pkg/prover/internalerr"
	"github.com/cognicore/prover/pkg/prover/kb"
)

// State is the set of facts that hold, indexed by fact id.
type State []bool

// NewState returns the state in which exactly facts hold.
func NewState(k *kb.KnowledgeBase, facts []kb.Fact) State {
	s := make(State, k.FactCount())
	for _, f := range facts {
		s[f.ID] = true
	}
	return s
}

// Has reports whether f holds.
func (s State) Has(f kb.Fact) bool {
	return f.ID >= 0 && f.ID < len(s) && s[f.ID]
}

// HasAll reports whether every fact holds.
func (s State) HasAll(facts []kb.Fact) bool {
	for _, f := range facts {
		if !s.Has(f) {
			return false
		}
	}
	return true
}

// Facts lists the facts that hold, in id order.
func (s State) Facts(k *kb.KnowledgeBase) []kb.Fact {
	var out []kb.Fact
	for id, ok := range s {
		if !ok {
			continue
		}
		if f, found := k.Fact(id); found {
			out = append(out, f)
		}
	}
	return out
}

// Format renders the facts that hold as "a, b, c".
func (s State) Format(k *kb.KnowledgeBase) string {
	facts := s.Facts(k)
	descs := make([]string, len(facts))
	for i, f := range facts {
		descs[i] = f.Desc
	}
	return strings.Join(descs, ", ")
}

// Applies reports whether r can fire in s and would add something new.
func (s State) Applies(r kb.Rule) bool {
	if r.Consequent == nil || s.Has(*r.Consequent) {
		return false
	}
	for _, a := range r.Antecedents {
		if !s.Has(a) {
			return false
		}
	}
	return true
}

// Apply returns a copy of s with r's consequent added.
func (s State) Apply(r kb.Rule) State {
	next := make(State, len(s))
	copy(next, s)
	next[r.Consequent.ID] = true
	return next
}

func (s State) key() string {
	b := make([]byte, (len(s)+7)/8)
	for i, ok := range s {
		if ok {
			b[i/8] |= 1 << (i % 8)
		}
	}
	return string(b)
}

// Closure applies rules until a fixpoint and returns everything derivable
// from known.
func Closure(k *kb.KnowledgeBase, known []kb.Fact) State {
	s := NewState(k, known)
	rules := k.Rules()
	for changed := true; changed; {
		changed = false
		for _, r := range rules {
			if s.Applies(r) {
				s[r.Consequent.ID] = true
				changed = true
			}
		}
	}
	return s
}

// Step is one rule application on a search path and the state it produced.
type Step struct {
	Rule  kb.Rule
	State State
}

// Option configures Search.
type Option func(*searchConfig)

type searchConfig struct {
	maxStates int
}

// WithMaxStates bounds the number of distinct states Search may visit.
// Zero means unbounded.
func WithMaxStates(n int) Option {
	return func(c *searchConfig) { c.maxStates = n }
}

// Search runs a breadth-first search over fact states. Each state's
// successors are the states reached by one rule application; visited states
// are never queued twice. The returned path leads from the known state to the
// first state containing every goal fact, and is empty when the goal already
// holds.
//
// Returns ErrUnreachable when the state space is exhausted, ErrSearchLimit
// when WithMaxStates is hit, and ctx.Err() if ctx is cancelled.
func Search(ctx context.Context, k *kb.KnowledgeBase, known, goal []kb.Fact, opts ...Option) ([]Step, error) {
	var cfg searchConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	type node struct {
		state  State
		parent int
		rule   kb.Rule
	}

	start := NewState(k, known)
	if start.HasAll(goal) {
		return nil, nil
	}

	rules := k.Rules()
	nodes := []node{{state: start, parent: -1}}
	visited := map[string]struct{}{start.key(): {}}

	path := func(i int) []Step {
		var steps []Step
		for ; nodes[i].parent >= 0; i = nodes[i].parent {
			steps = append(steps, Step{Rule: nodes[i].rule, State: nodes[i].state})
		}
		for l, r := 0, len(steps)-1; l < r; l, r = l+1, r-1 {
			steps[l], steps[r] = steps[r], steps[l]
		}
		return steps
	}

	for head := 0; head < len(nodes); head++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cur := nodes[head].state
		for _, r := range rules {
			if !cur.Applies(r) {
				continue
			}
			next := cur.Apply(r)
			key := next.key()
			if _, seen := visited[key]; seen {
				continue
			}
			visited[key] = struct{}{}
			nodes = append(nodes, node{state: next, parent: head, rule: r})

			if next.HasAll(goal) {
				return path(len(nodes) - 1), nil
			}
			if cfg.maxStates > 0 && len(visited) >= cfg.maxStates {
				return nil, fmt.Errorf("forward search: %d states: %w", len(visited), internalerr.ErrSearchLimit)
			}
		}
	}

	return nil, fmt.Errorf("forward search: %w", internalerr.ErrUnreachable)
}
