package backward

import (
	"fmt"

	"github.com/cognicore/prover/pkg/prover/internalerr"
	"github.com/cognicore/prover/pkg/prover/kb"
)

// Result is the outcome of Solve: either proved, with the resolved proof
// graph retained for extraction, or unreachable.
type Result struct {
	graph    *Graph
	stats    Stats
	strategy Strategy
}

// Proved reports whether every goal fact was derived.
func (r *Result) Proved() bool {
	return r.graph.Node(r.graph.goal).resolved
}

// Depth returns the depth of the proof: the number of rule applications on
// the longest dependency chain of the chosen derivation. Zero when every goal
// fact was already known.
func (r *Result) Depth() (int, bool) {
	return r.graph.Node(r.graph.goal).Depth()
}

// Stats returns counters for the work the search did.
func (r *Result) Stats() Stats { return r.stats }

// Strategy returns the strategy the search ran with.
func (r *Result) Strategy() Strategy { return r.strategy }

// Graph exposes the proof graph for inspection.
func (r *Result) Graph() *Graph { return r.graph }

// Extract returns the rules of a shortest proof in dependency order: every
// rule comes after the rules producing its antecedents, and each rule appears
// once even when several branches share it.
//
// Calling Extract on an unproved result returns ErrNotProved.
func (r *Result) Extract() ([]kb.Rule, error) {
	return Extract(r)
}

// Extract is the function form of Result.Extract.
func Extract(r *Result) ([]kb.Rule, error) {
	if r == nil || !r.Proved() {
		return nil, fmt.Errorf("extract: %w", internalerr.ErrNotProved)
	}

	x := &extractor{
		g:       r.graph,
		emitted: make([]bool, r.graph.kb.RuleCount()),
		visited: make([]bool, r.graph.kb.FactCount()),
	}
	// The goal rule is never emitted, only its antecedents are walked.
	for _, c := range r.graph.Node(r.graph.goal).children {
		x.walkFact(c)
	}
	return x.out, nil
}

type extractor struct {
	g       *Graph
	emitted []bool // rule id
	visited []bool // fact id
	out     []kb.Rule
}

func (x *extractor) walkFact(ref NodeRef) {
	n := x.g.Node(ref)
	if x.visited[n.fact.ID] {
		return
	}
	x.visited[n.fact.ID] = true
	if n.known {
		return
	}
	if best, ok := x.g.BestChild(ref); ok {
		x.walkRule(best)
	}
}

func (x *extractor) walkRule(ref NodeRef) {
	n := x.g.Node(ref)
	if x.emitted[n.rule.ID] {
		return
	}
	for _, c := range n.children {
		x.walkFact(c)
	}
	x.emitted[n.rule.ID] = true
	x.out = append(x.out, n.rule)
}
