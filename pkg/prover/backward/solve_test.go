package backward

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/cognicore/prover/pkg/prover/forward"
	"github.com/cognicore/prover/pkg/prover/internalerr"
	"github.com/cognicore/prover/pkg/prover/kb"
)

// buildKB creates a knowledge base from fact descriptions and rule lines.
func buildKB(t *testing.T, facts []string, rules ...string) *kb.KnowledgeBase {
	t.Helper()
	b := kb.NewBuilder()
	for _, f := range facts {
		if _, err := b.AddFact(f); err != nil {
			t.Fatalf("AddFact(%q): %v", f, err)
		}
	}
	for _, r := range rules {
		if _, err := b.AddRuleLine(r); err != nil {
			t.Fatalf("AddRuleLine(%q): %v", r, err)
		}
	}
	return b.Build()
}

func lookup(t *testing.T, k *kb.KnowledgeBase, descs ...string) []kb.Fact {
	t.Helper()
	facts, err := k.LookupAll(descs)
	if err != nil {
		t.Fatalf("LookupAll: %v", err)
	}
	return facts
}

func ruleStrings(rules []kb.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.String()
	}
	return out
}

func mustExtract(t *testing.T, res *Result) []string {
	t.Helper()
	proof, err := res.Extract()
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return ruleStrings(proof)
}

var strategies = []Strategy{Shortest, FirstProof}

func TestSolveChain(t *testing.T) {
	k := buildKB(t, []string{"A", "B", "C", "D"}, "A, B -> C", "C -> D")

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			res := Solve(k, lookup(t, k, "A", "B"), lookup(t, k, "D"), WithStrategy(s))
			if !res.Proved() {
				t.Fatal("expected Proved")
			}
			want := []string{"A, B -> C", "C -> D"}
			if diff := cmp.Diff(want, mustExtract(t, res)); diff != "" {
				t.Errorf("proof (-want +got):\n%s", diff)
			}
			if d, _ := res.Depth(); d != 2 {
				t.Errorf("depth = %d, want 2", d)
			}
		})
	}
}

func TestSolveUnreachable(t *testing.T) {
	k := buildKB(t, []string{"A", "B", "C"}, "B -> C")

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			res := Solve(k, lookup(t, k, "A"), lookup(t, k, "C"), WithStrategy(s))
			if res.Proved() {
				t.Fatal("expected Unreachable")
			}
			if _, ok := res.Depth(); ok {
				t.Error("unreachable result should have no depth")
			}
			_, err := res.Extract()
			if !errors.Is(err, internalerr.ErrNotProved) {
				t.Errorf("expected ErrNotProved, got %v", err)
			}
		})
	}
}

func TestSolveDiamond(t *testing.T) {
	k := buildKB(t, []string{"A", "B", "C", "D"}, "A -> B", "A -> C", "B, C -> D")

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			res := Solve(k, lookup(t, k, "A"), lookup(t, k, "D"), WithStrategy(s))
			if !res.Proved() {
				t.Fatal("expected Proved")
			}

			d := lookup(t, k, "D")[0]
			ref, ok := res.Graph().FactNode(d.ID)
			if !ok {
				t.Fatal("no node for D")
			}
			if depth, _ := res.Graph().Node(ref).Depth(); depth != 2 {
				t.Errorf("depth(D) = %d, want 2", depth)
			}

			want := []string{"A -> B", "A -> C", "B, C -> D"}
			if diff := cmp.Diff(want, mustExtract(t, res)); diff != "" {
				t.Errorf("proof (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSolveGoalAlreadyKnown(t *testing.T) {
	k := buildKB(t, []string{"A", "B"}, "A -> B")

	res := Solve(k, lookup(t, k, "A", "B"), lookup(t, k, "B"))
	if !res.Proved() {
		t.Fatal("known goal should be proved")
	}
	if d, _ := res.Depth(); d != 0 {
		t.Errorf("depth = %d, want 0", d)
	}
	if proof := mustExtract(t, res); len(proof) != 0 {
		t.Errorf("expected empty proof, got %v", proof)
	}
	if res.Stats().FactsExpanded != 0 {
		t.Errorf("known facts must not be expanded, stats %+v", res.Stats())
	}
}

func TestSolveEmptyGoal(t *testing.T) {
	k := buildKB(t, []string{"A"})
	res := Solve(k, nil, nil)
	if !res.Proved() {
		t.Fatal("empty goal is vacuously proved")
	}
}

func TestSolveZeroAntecedentRule(t *testing.T) {
	b := kb.NewBuilder()
	b.AddFact("Sun")
	b.AddFact("Day")
	b.AddRule(nil, "Sun")
	b.AddRuleLine("Sun -> Day")
	k := b.Build()

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			res := Solve(k, nil, lookup(t, k, "Day"), WithStrategy(s))
			if !res.Proved() {
				t.Fatal("expected Proved")
			}
			want := []string{" -> Sun", "Sun -> Day"}
			if diff := cmp.Diff(want, mustExtract(t, res)); diff != "" {
				t.Errorf("proof (-want +got):\n%s", diff)
			}
			if d, _ := res.Depth(); d != 2 {
				t.Errorf("depth = %d, want 2", d)
			}
		})
	}
}

func TestSolveCycle(t *testing.T) {
	k := buildKB(t, []string{"A", "B", "C"}, "A -> B", "B -> A", "C -> A")

	res := Solve(k, nil, lookup(t, k, "B"))
	if res.Proved() {
		t.Fatal("cycle without a known entry point must stay unreachable")
	}

	res = Solve(k, lookup(t, k, "C"), lookup(t, k, "B"))
	if !res.Proved() {
		t.Fatal("expected Proved via C")
	}
	want := []string{"C -> A", "A -> B"}
	if diff := cmp.Diff(want, mustExtract(t, res)); diff != "" {
		t.Errorf("proof (-want +got):\n%s", diff)
	}
}

func TestSolveRepeatedAntecedent(t *testing.T) {
	k := buildKB(t, []string{"A", "B", "C"}, "A -> B", "B, B -> C")

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			res := Solve(k, lookup(t, k, "A"), lookup(t, k, "C"), WithStrategy(s))
			if !res.Proved() {
				t.Fatal("expected Proved")
			}
			want := []string{"A -> B", "B, B -> C"}
			if diff := cmp.Diff(want, mustExtract(t, res)); diff != "" {
				t.Errorf("proof (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSolveDuplicateGoalAndKnown(t *testing.T) {
	k := buildKB(t, []string{"A", "B"}, "A -> B")
	res := Solve(k, lookup(t, k, "A", "A"), lookup(t, k, "B", "B"))
	if !res.Proved() {
		t.Fatal("expected Proved")
	}
	if diff := cmp.Diff([]string{"A -> B"}, mustExtract(t, res)); diff != "" {
		t.Errorf("proof (-want +got):\n%s", diff)
	}
}

// A goal listed before a deeper sub-goal it shares makes eager propagation
// settle on the slower branch; Shortest must still find the cheaper one.
func TestShortestBeatsFirstProof(t *testing.T) {
	k := buildKB(t, []string{"K", "X1", "P", "S", "D"},
		"X1 -> P",
		"K -> X1",
		"P -> D",
		"S -> D",
		"K -> S",
	)
	known := lookup(t, k, "K")
	goal := lookup(t, k, "P", "D")

	short := Solve(k, known, goal, WithStrategy(Shortest))
	if d, _ := short.Depth(); d != 2 {
		t.Errorf("Shortest depth = %d, want 2", d)
	}
	want := []string{"K -> X1", "X1 -> P", "K -> S", "S -> D"}
	if diff := cmp.Diff(want, mustExtract(t, short)); diff != "" {
		t.Errorf("Shortest proof (-want +got):\n%s", diff)
	}

	first := Solve(k, known, goal, WithStrategy(FirstProof))
	if !first.Proved() {
		t.Fatal("FirstProof should prove the goal")
	}
	if d, _ := first.Depth(); d != 3 {
		t.Errorf("FirstProof depth = %d, want 3", d)
	}
	want = []string{"K -> X1", "X1 -> P", "P -> D"}
	if diff := cmp.Diff(want, mustExtract(t, first)); diff != "" {
		t.Errorf("FirstProof proof (-want +got):\n%s", diff)
	}
}

func TestSolveTieBreaksByChildOrder(t *testing.T) {
	k := buildKB(t, []string{"A", "B", "C"}, "B -> C", "A -> C")
	res := Solve(k, lookup(t, k, "A", "B"), lookup(t, k, "C"))
	if diff := cmp.Diff([]string{"B -> C"}, mustExtract(t, res)); diff != "" {
		t.Errorf("proof (-want +got):\n%s", diff)
	}
}

func TestSolveDeterministic(t *testing.T) {
	k, known, goal := randomKB(t, rand.New(rand.NewSource(7)), 40, 80)

	first := Solve(k, known, goal)
	want, _ := first.Extract()
	for i := 0; i < 5; i++ {
		res := Solve(k, known, goal)
		if res.Proved() != first.Proved() {
			t.Fatalf("run %d: verdict changed", i)
		}
		got, _ := res.Extract()
		if diff := cmp.Diff(ruleStrings(want), ruleStrings(got)); diff != "" {
			t.Fatalf("run %d: proof changed (-first +now):\n%s", i, diff)
		}
	}
}

func TestSolveMemoizesNodes(t *testing.T) {
	// Every rule needs the same shared sub-goal S.
	k := buildKB(t, []string{"K", "S", "A", "B", "C", "G"},
		"K -> S",
		"S -> A",
		"S -> B",
		"S, A -> C",
		"A, B, C -> G",
	)

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			res := Solve(k, lookup(t, k, "K"), lookup(t, k, "G"), WithStrategy(s))
			if !res.Proved() {
				t.Fatal("expected Proved")
			}
			assertMemoized(t, res)
			if got := res.Stats().FactsExpanded; got > k.FactCount() {
				t.Errorf("expanded %d facts, only %d exist", got, k.FactCount())
			}
		})
	}
}

func assertMemoized(t *testing.T, res *Result) {
	t.Helper()
	g := res.Graph()
	facts := map[int]int{}
	rules := map[int]int{}
	for i := 0; i < g.Len(); i++ {
		n := g.Node(NodeRef(i))
		if n.Kind() == FactNode {
			facts[n.Fact().ID]++
		} else if !n.Rule().IsGoal() {
			rules[n.Rule().ID]++
		}
	}
	for id, c := range facts {
		if c > 1 {
			t.Errorf("fact %d has %d nodes", id, c)
		}
	}
	for id, c := range rules {
		if c > 1 {
			t.Errorf("rule %d has %d nodes", id, c)
		}
	}
	st := res.Stats()
	if st.FactNodes != len(facts) || st.RuleNodes != len(rules) {
		t.Errorf("stats %+v disagree with graph (%d facts, %d rules)", st, len(facts), len(rules))
	}
}

// A fact node that is already resolved when dequeued must still credit the
// parents it picked up while waiting in the queue.
func TestExpandResolvedFactCreditsLateParents(t *testing.T) {
	k := buildKB(t, []string{"A", "B", "C"}, "A -> B", "B -> C")
	a := lookup(t, k, "A")[0]
	b := lookup(t, k, "B")[0]
	bc, _ := k.Rule(1)

	s := &solver{kb: k, g: newGraph(k), strategy: FirstProof, log: zap.NewNop()}
	s.seed([]kb.Fact{a})

	fb := s.g.addFact(b, 1)
	s.queue = append(s.queue, fb)

	// B gets proven through some other branch while still queued...
	ab := s.g.addRule(kb.Rule{ID: 0, Antecedents: []kb.Fact{a}, Consequent: &b})
	s.g.link(fb, ab)
	s.g.nodes[ab].pending = 0
	s.rise(ab)
	if !s.g.Node(fb).Resolved() {
		t.Fatal("B should be resolved")
	}

	// ...and a new parent links to it without going through link's credit.
	rc := s.g.addRule(bc)
	s.g.nodes[rc].children = append(s.g.nodes[rc].children, fb)
	s.g.nodes[fb].parents = append(s.g.nodes[fb].parents, rc)

	s.expandFact(fb)

	if p := s.g.Node(rc).Pending(); p != 0 {
		t.Fatalf("late parent pending = %d, want 0", p)
	}
	if !s.g.Node(rc).Resolved() {
		t.Error("late parent should have resolved")
	}

	// Dequeuing again must not credit twice.
	s.expandFact(fb)
	if p := s.g.Node(rc).Pending(); p != 0 {
		t.Errorf("second dequeue changed pending to %d", p)
	}
}

// levels computes each fact's forward-chaining round: known facts are round
// 0, and a fact first derived in round n has a rule whose antecedents were
// all available before round n.
func levels(k *kb.KnowledgeBase, known []kb.Fact) map[int]int {
	lvl := map[int]int{}
	for _, f := range known {
		lvl[f.ID] = 0
	}
	for round := 1; ; round++ {
		var added []int
		for _, r := range k.Rules() {
			if _, ok := lvl[r.Consequent.ID]; ok {
				continue
			}
			ready := true
			for _, a := range r.Antecedents {
				if l, ok := lvl[a.ID]; !ok || l >= round {
					ready = false
					break
				}
			}
			if ready {
				added = append(added, r.Consequent.ID)
			}
		}
		if len(added) == 0 {
			return lvl
		}
		for _, id := range added {
			if _, ok := lvl[id]; !ok {
				lvl[id] = round
			}
		}
	}
}

func randomKB(t *testing.T, rng *rand.Rand, nFacts, nRules int) (*kb.KnowledgeBase, []kb.Fact, []kb.Fact) {
	t.Helper()
	b := kb.NewBuilder()
	names := make([]string, nFacts)
	for i := range names {
		names[i] = fmt.Sprintf("f%d", i)
		b.AddFact(names[i])
	}
	for i := 0; i < nRules; i++ {
		n := rng.Intn(3) + 1
		ants := make([]string, n)
		for j := range ants {
			ants[j] = names[rng.Intn(nFacts)]
		}
		if _, err := b.AddRule(ants, names[rng.Intn(nFacts)]); err != nil {
			t.Fatalf("AddRule: %v", err)
		}
	}
	k := b.Build()

	var known, goal []kb.Fact
	for i := 0; i < 4; i++ {
		f, _ := k.Fact(rng.Intn(nFacts))
		known = append(known, f)
	}
	for i := 0; i < 2; i++ {
		f, _ := k.Fact(rng.Intn(nFacts))
		goal = append(goal, f)
	}
	return k, known, goal
}

// Checks verdict, soundness and minimality against forward chaining on many
// random knowledge bases.
func TestSolveAgainstForwardChaining(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 300; i++ {
		k, known, goal := randomKB(t, rng, 12+rng.Intn(12), 10+rng.Intn(30))
		reachable := forward.Closure(k, known).HasAll(goal)

		for _, s := range strategies {
			res := Solve(k, known, goal, WithStrategy(s))
			if res.Proved() != reachable {
				t.Fatalf("case %d (%s): proved=%v, forward closure says %v", i, s, res.Proved(), reachable)
			}
			if !reachable {
				continue
			}

			proof, err := res.Extract()
			if err != nil {
				t.Fatalf("case %d: Extract: %v", i, err)
			}
			assertSound(t, i, known, goal, proof)
			assertMemoized(t, res)

			if s != Shortest {
				continue
			}
			lvl := levels(k, known)
			want := 0
			for _, g := range goal {
				if lvl[g.ID] > want {
					want = lvl[g.ID]
				}
			}
			if d, _ := res.Depth(); d != want {
				t.Fatalf("case %d: depth = %d, shortest chain is %d", i, d, want)
			}
		}
	}
}

func assertSound(t *testing.T, i int, known, goal []kb.Fact, proof []kb.Rule) {
	t.Helper()
	have := map[int]bool{}
	for _, f := range known {
		have[f.ID] = true
	}
	seen := map[int]bool{}
	for _, r := range proof {
		if seen[r.ID] {
			t.Fatalf("case %d: rule %q emitted twice", i, r)
		}
		seen[r.ID] = true
		for _, a := range r.Antecedents {
			if !have[a.ID] {
				t.Fatalf("case %d: rule %q used before %q was available", i, r, a.Desc)
			}
		}
		have[r.Consequent.ID] = true
	}
	for _, g := range goal {
		if !have[g.ID] {
			t.Fatalf("case %d: proof does not establish goal %q", i, g.Desc)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name    string
		want    Strategy
		wantErr bool
	}{
		{"", Shortest, false},
		{"shortest", Shortest, false},
		{"first-proof", FirstProof, false},
		{"first", FirstProof, false},
		{"greedy", Shortest, true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStrategy(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStrategy(%q) = %v, want %v", tt.name, got, tt.want)
		}
		if tt.wantErr && !errors.Is(err, internalerr.ErrInvalidInput) {
			t.Errorf("ParseStrategy(%q) error = %v, want ErrInvalidInput", tt.name, err)
		}
	}
}

func TestSolveIgnoresFactsOutsideKB(t *testing.T) {
	k := buildKB(t, []string{"A", "B"}, "A -> B")
	a, b := lookup(t, k, "A")[0], lookup(t, k, "B")[0]
	stray := kb.Fact{ID: 7, Desc: "Stray"}
	negative := kb.Fact{ID: -3, Desc: "Negative"}

	for _, strategy := range strategies {
		res := Solve(k, []kb.Fact{a, stray}, []kb.Fact{b}, WithStrategy(strategy))
		if !res.Proved() {
			t.Errorf("%v: a foreign known fact must not block the proof", strategy)
		}

		res = Solve(k, []kb.Fact{a}, []kb.Fact{b, stray, negative}, WithStrategy(strategy))
		if res.Proved() {
			t.Errorf("%v: a foreign goal fact must make the goal unreachable", strategy)
		}
		if _, err := res.Extract(); !errors.Is(err, internalerr.ErrNotProved) {
			t.Errorf("%v: Extract error = %v, want ErrNotProved", strategy, err)
		}

		res = Solve(k, []kb.Fact{a}, []kb.Fact{stray}, WithStrategy(strategy))
		if res.Proved() {
			t.Errorf("%v: a goal of only foreign facts must be unreachable", strategy)
		}
	}
}
