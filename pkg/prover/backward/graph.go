// Package backward proves goal facts from known facts by backward chaining.
//
// The search builds an AND/OR proof graph lazily, starting from a synthetic
// goal rule whose antecedents are the goal facts:
//
//   - a fact node is an OR node: it is proven once any producing rule is;
//   - a rule node is an AND node: it is proven once all its antecedents are.
//
// Nodes live in a single arena and are addressed by NodeRef. There is at most
// one fact node per fact id and one rule node per rule id, so shared
// sub-goals are expanded once and the structure is a DAG rather than a tree.
// Parent links are plain refs used only to propagate success upward.
package backward

import (
	"github.com/cognicore/prover/pkg/prover/kb"
)

// NodeRef addresses a node inside a Graph.
type NodeRef int32

// NoNode is the zero value for "no such node".
const NoNode NodeRef = -1

// Kind tags the two node variants.
type Kind uint8

const (
	FactNode Kind = iota // OR node
	RuleNode             // AND node
)

func (k Kind) String() string {
	if k == FactNode {
		return "fact"
	}
	return "rule"
}

// Node is a fact or rule instantiation in the proof graph.
type Node struct {
	kind Kind
	fact kb.Fact // FactNode
	rule kb.Rule // RuleNode

	// pending counts what is still missing: antecedents for a rule node,
	// one producing rule for an opened fact node. A node resolves when it
	// drops to zero.
	pending  int
	depth    int
	resolved bool
	known    bool // fact node seeded from the known set
	expanded bool

	children []NodeRef
	parents  []NodeRef
	credited int // parents[:credited] have already been decremented by this node
	best     int // fact node: index in children of the best resolved rule, -1 if none
}

// Kind returns whether n is a fact or rule node.
func (n *Node) Kind() Kind { return n.kind }

// Fact returns the fact of a fact node.
func (n *Node) Fact() kb.Fact { return n.fact }

// Rule returns the rule of a rule node.
func (n *Node) Rule() kb.Rule { return n.rule }

// Pending returns the node's outstanding success count.
func (n *Node) Pending() int { return n.pending }

// Depth returns the proof depth and whether the node is resolved.
func (n *Node) Depth() (int, bool) { return n.depth, n.resolved }

// Resolved reports whether the node has been proven.
func (n *Node) Resolved() bool { return n.resolved }

// Known reports whether a fact node was part of the known set.
func (n *Node) Known() bool { return n.known }

// Children returns the node's children. Must not be modified.
func (n *Node) Children() []NodeRef { return n.children }

// Parents returns the node's parents. Must not be modified.
func (n *Node) Parents() []NodeRef { return n.parents }

// Graph is the proof graph of one search. Fact and rule nodes are memoized in
// tables indexed by the knowledge base's dense ids.
type Graph struct {
	kb        *kb.KnowledgeBase
	nodes     []Node
	factNodes []NodeRef // fact id -> node
	ruleNodes []NodeRef // rule id -> node
	goal      NodeRef
}

func newGraph(k *kb.KnowledgeBase) *Graph {
	g := &Graph{
		kb:        k,
		factNodes: make([]NodeRef, k.FactCount()),
		ruleNodes: make([]NodeRef, k.RuleCount()),
		goal:      NoNode,
	}
	for i := range g.factNodes {
		g.factNodes[i] = NoNode
	}
	for i := range g.ruleNodes {
		g.ruleNodes[i] = NoNode
	}
	return g
}

// Node returns the node for ref. The pointer is only valid until the graph
// grows, so callers outside the search should treat it as read-only and short-lived.
func (g *Graph) Node(ref NodeRef) *Node { return &g.nodes[ref] }

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Goal returns the synthetic goal rule node.
func (g *Graph) Goal() NodeRef { return g.goal }

// FactNode returns the node for a fact id if one was created.
func (g *Graph) FactNode(factID int) (NodeRef, bool) {
	if factID < 0 || factID >= len(g.factNodes) {
		return NoNode, false
	}
	ref := g.factNodes[factID]
	return ref, ref != NoNode
}

// RuleNode returns the node for a rule id if one was created.
func (g *Graph) RuleNode(ruleID int) (NodeRef, bool) {
	if ruleID < 0 || ruleID >= len(g.ruleNodes) {
		return NoNode, false
	}
	ref := g.ruleNodes[ruleID]
	return ref, ref != NoNode
}

func (g *Graph) push(n Node) NodeRef {
	n.best = -1
	g.nodes = append(g.nodes, n)
	return NodeRef(len(g.nodes) - 1)
}

func (g *Graph) addFact(f kb.Fact, pending int) NodeRef {
	ref := g.push(Node{kind: FactNode, fact: f, pending: pending})
	g.factNodes[f.ID] = ref
	return ref
}

func (g *Graph) addRule(r kb.Rule) NodeRef {
	ref := g.push(Node{kind: RuleNode, rule: r, pending: len(r.Antecedents)})
	if !r.IsGoal() {
		g.ruleNodes[r.ID] = ref
	}
	return ref
}

// link records child under parent and parent as a back-reference of child.
// When the child is already resolved the parent is credited immediately and
// true is returned.
func (g *Graph) link(parent, child NodeRef) bool {
	p, c := &g.nodes[parent], &g.nodes[child]
	p.children = append(p.children, child)
	c.parents = append(c.parents, parent)
	if !c.resolved {
		return false
	}
	// A resolved child has already credited every earlier parent.
	c.credited = len(c.parents)
	g.credit(parent, len(p.children)-1)
	return true
}

// credit applies one success from children[idx] to parent.
func (g *Graph) credit(parent NodeRef, idx int) {
	p := &g.nodes[parent]
	p.pending--
	if p.kind != FactNode {
		return
	}
	c := &g.nodes[p.children[idx]]
	if p.best < 0 {
		p.best = idx
		return
	}
	cur := &g.nodes[p.children[p.best]]
	if c.depth < cur.depth || (c.depth == cur.depth && idx < p.best) {
		p.best = idx
	}
}

// creditParents applies a resolved node's success to every parent it has not
// credited yet and returns the parents whose pending count reached exactly zero.
func (g *Graph) creditParents(ref NodeRef) []NodeRef {
	var ready []NodeRef
	n := &g.nodes[ref]
	for _, parent := range n.parents[n.credited:] {
		g.credit(parent, g.childIndex(parent, ref))
		if g.nodes[parent].pending == 0 {
			ready = append(ready, parent)
		}
	}
	n.credited = len(n.parents)
	return ready
}

// childIndex finds child among a fact node's children. Rule parents do not
// need it and get -1.
func (g *Graph) childIndex(parent, child NodeRef) int {
	p := &g.nodes[parent]
	if p.kind != FactNode {
		return -1
	}
	for i, c := range p.children {
		if c == child {
			return i
		}
	}
	return -1
}

// computeDepth derives a node's depth from its resolved children: the
// cheapest producing rule for a fact, one more than the slowest antecedent
// for a rule. The goal rule applies nothing, so it takes the slowest goal
// fact's depth unchanged.
func (g *Graph) computeDepth(ref NodeRef) int {
	n := &g.nodes[ref]
	if n.kind == FactNode {
		if n.known || n.best < 0 {
			return 0
		}
		return g.nodes[n.children[n.best]].depth
	}

	max := 0
	for _, c := range n.children {
		if d := g.nodes[c].depth; d > max {
			max = d
		}
	}
	if n.rule.IsGoal() {
		return max
	}
	return max + 1
}

// markResolved fixes the node's depth. Depth is only ever set here, once.
func (g *Graph) markResolved(ref NodeRef) {
	n := &g.nodes[ref]
	if n.resolved {
		return
	}
	n.depth = g.computeDepth(ref)
	n.resolved = true
}

// BestChild returns the producing rule node chosen for a resolved fact node:
// the minimum-depth resolved child, first in children order on ties.
func (g *Graph) BestChild(ref NodeRef) (NodeRef, bool) {
	n := &g.nodes[ref]
	if n.kind != FactNode || n.best < 0 {
		return NoNode, false
	}
	return n.children[n.best], true
}
