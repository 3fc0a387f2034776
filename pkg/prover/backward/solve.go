package backward

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cognicore/prover/pkg/prover/internalerr"
	"github.com/cognicore/prover/pkg/prover/kb"
)

// Strategy selects how success is propagated through the proof graph.
type Strategy int

const (
	// Shortest expands the whole backward cone of the goal first and then
	// resolves nodes breadth-first from the known facts, so nodes resolve in
	// non-decreasing depth order and every depth is minimal.
	Shortest Strategy = iota

	// FirstProof propagates success eagerly while expanding and stops as soon
	// as the goal resolves. The proof is valid but its depth is only minimal
	// among the branches that had resolved by then.
	FirstProof
)

func (s Strategy) String() string {
	switch s {
	case Shortest:
		return "shortest"
	case FirstProof:
		return "first-proof"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a strategy name back to its value. The empty string
// selects Shortest.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "shortest":
		return Shortest, nil
	case "first-proof", "first":
		return FirstProof, nil
	default:
		return Shortest, fmt.Errorf("strategy %q: %w", name, internalerr.ErrInvalidInput)
	}
}

// Option configures Solve.
type Option func(*solver)

// WithLogger routes search events to logger at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(s *solver) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithStrategy selects the propagation strategy. Default: Shortest.
func WithStrategy(strategy Strategy) Option {
	return func(s *solver) { s.strategy = strategy }
}

// Stats counts the work a search did.
type Stats struct {
	FactNodes     int // fact nodes created, known facts included
	RuleNodes     int // rule nodes created, goal rule excluded
	FactsExpanded int // fact nodes opened for producing rules
	RulesExpanded int // rule nodes whose antecedents were attached
	Dequeued      int // work queue pops
}

type solver struct {
	kb       *kb.KnowledgeBase
	g        *Graph
	queue    []NodeRef
	log      *zap.Logger
	strategy Strategy
	stats    Stats
}

// Solve searches for a proof of every goal fact from the known facts.
//
// It never fails: a goal that cannot be derived yields a Result whose Proved
// reports false. Duplicate facts in either set are ignored. Facts whose ID is
// outside k are not part of k: such a known fact contributes nothing, and such
// a goal fact can never be proven, so the goal is reported unreachable.
func Solve(k *kb.KnowledgeBase, known, goal []kb.Fact, opts ...Option) *Result {
	s := &solver{
		kb:  k,
		g:   newGraph(k),
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	known, _ = dedupe(k, known)
	s.seed(known)
	goal, foreign := dedupe(k, goal)
	root := s.g.addRule(kb.Rule{ID: -1, Antecedents: goal})
	s.g.goal = root
	// A foreign goal fact is never credited.
	s.g.nodes[root].pending += foreign
	s.queue = append(s.queue, root)

	s.log.Debug("backward search started",
		zap.Int("known", len(known)),
		zap.Int("goal", len(goal)),
		zap.Stringer("strategy", s.strategy))

	s.expand()
	if s.strategy == Shortest {
		s.settle()
	}

	res := &Result{graph: s.g, stats: s.stats, strategy: s.strategy}
	if n := s.g.Node(root); n.resolved {
		s.log.Debug("goal proved", zap.Int("depth", n.depth), zap.Int("nodes", s.g.Len()))
	} else {
		s.log.Debug("goal unreachable", zap.Int("nodes", s.g.Len()))
	}
	return res
}

// seed creates a resolved fact node for every known fact. Known facts are
// never expanded.
func (s *solver) seed(known []kb.Fact) {
	for _, f := range known {
		ref := s.g.addFact(f, 0)
		n := s.g.Node(ref)
		n.known = true
		n.resolved = true
		s.stats.FactNodes++
	}
}

// expand drains the FIFO work queue. Under FirstProof it stops once the
// goal resolves.
func (s *solver) expand() {
	root := s.g.goal
	for len(s.queue) > 0 {
		if s.strategy == FirstProof && s.g.Node(root).resolved {
			return
		}
		ref := s.queue[0]
		s.queue = s.queue[1:]
		s.stats.Dequeued++

		if s.g.Node(ref).kind == FactNode {
			s.expandFact(ref)
		} else {
			s.expandRule(ref)
		}
	}
}

// expandFact opens an OR node: one producing rule is enough.
func (s *solver) expandFact(ref NodeRef) {
	n := s.g.Node(ref)
	if n.resolved {
		// Resolved through another branch after it was queued. Parents linked
		// since then still need their credit.
		s.rise(ref)
		return
	}
	if n.expanded {
		return
	}
	n.expanded = true
	n.pending = 1
	s.stats.FactsExpanded++

	producers := s.kb.RulesProducing(n.fact.ID)
	s.log.Debug("expand fact",
		zap.String("fact", n.fact.Desc),
		zap.Int("producers", len(producers)))

	for _, r := range producers {
		if child, ok := s.g.RuleNode(r.ID); ok {
			// Memoized: attach, never re-enqueue.
			if s.g.link(ref, child) && s.g.Node(ref).pending == 0 {
				s.rise(ref)
			}
			continue
		}

		child := s.g.addRule(r)
		s.stats.RuleNodes++
		s.g.link(ref, child)
		if len(r.Antecedents) == 0 {
			// Vacuous AND: proven on creation.
			s.rise(child)
			continue
		}
		s.queue = append(s.queue, child)
	}
}

// expandRule opens an AND node: every antecedent must be proven.
func (s *solver) expandRule(ref NodeRef) {
	s.stats.RulesExpanded++
	ants := s.g.Node(ref).rule.Antecedents

	for _, a := range ants {
		if child, ok := s.g.FactNode(a.ID); ok {
			s.g.link(ref, child)
			continue
		}
		child := s.g.addFact(a, 1)
		s.stats.FactNodes++
		s.g.link(ref, child)
		s.queue = append(s.queue, child)
	}

	if s.g.Node(ref).pending <= 0 {
		s.rise(ref)
	}
}

// rise resolves ref if needed and walks success up through every parent
// whose pending count reaches exactly zero. Each node passes through here at
// most once per parent edge, since credits are one-way decrements.
//
// Under Shortest nothing but the goal and known facts may resolve before
// settle runs, so rise only records candidates there.
func (s *solver) rise(ref NodeRef) {
	if s.strategy == Shortest {
		return
	}

	stack := []NodeRef{ref}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		s.g.markResolved(cur)
		stack = append(stack, s.g.creditParents(cur)...)
	}
}

// settle resolves the fully expanded graph in depth order.
//
// Rule nodes whose pending count is already zero (antecedents all known, or
// none at all) seed the frontier. From there a fact resolves through the
// first rule that credits it, and since facts leave the queue in
// non-decreasing depth, that rule is a cheapest one.
func (s *solver) settle() {
	var frontier []NodeRef

	// resolveRule resolves a rule and queues every fact it completes.
	resolveRule := func(ref NodeRef) bool {
		s.g.markResolved(ref)
		if ref == s.g.goal {
			return true
		}
		for _, f := range s.g.creditParents(ref) {
			s.g.markResolved(f)
			frontier = append(frontier, f)
		}
		return false
	}

	for ref := range s.g.nodes {
		n := s.g.Node(NodeRef(ref))
		if n.kind == RuleNode && !n.resolved && n.pending <= 0 {
			if resolveRule(NodeRef(ref)) {
				return
			}
		}
	}

	for len(frontier) > 0 {
		f := frontier[0]
		frontier = frontier[1:]
		for _, r := range s.g.creditParents(f) {
			if resolveRule(r) {
				return
			}
		}
	}
}

// dedupe drops repeated fact ids, keeping first occurrences in order, and
// drops ids outside k. It returns how many distinct foreign ids it dropped.
func dedupe(k *kb.KnowledgeBase, facts []kb.Fact) ([]kb.Fact, int) {
	seen := make(map[int]struct{}, len(facts))
	out := make([]kb.Fact, 0, len(facts))
	foreign := 0
	for _, f := range facts {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		if f.ID < 0 || f.ID >= k.FactCount() {
			foreign++
			continue
		}
		out = append(out, f)
	}
	return out, foreign
}
