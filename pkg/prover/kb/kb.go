// Package kb holds the immutable catalog of facts and implication rules that
// proof searches run against.
//
// A KnowledgeBase is built once through a Builder and is read-only afterwards,
// so a single instance can back any number of concurrent searches.
package kb

import (
	"fmt"
	"strings"

	"github.com/cognicore/prover/pkg/prover/internalerr"
)

// Fact is an interned proposition. Two facts are the same fact iff their IDs match.
type Fact struct {
	ID   int
	Desc string
}

func (f Fact) String() string { return f.Desc }

// Rule is an implication "antecedents -> consequent".
// A nil Consequent marks a synthetic goal rule; those never come out of a
// KnowledgeBase and are never indexed by consequent.
type Rule struct {
	ID          int
	Antecedents []Fact
	Consequent  *Fact
}

// IsGoal reports whether r is a synthetic goal rule.
func (r Rule) IsGoal() bool { return r.Consequent == nil }

// String renders the rule in the same syntax the rule loader accepts.
func (r Rule) String() string {
	var b strings.Builder
	for i, a := range r.Antecedents {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Desc)
	}
	b.WriteString(" -> ")
	if r.Consequent == nil {
		b.WriteString("?")
	} else {
		b.WriteString(r.Consequent.Desc)
	}
	return b.String()
}

// KnowledgeBase is an immutable set of facts and rules indexed by consequent.
type KnowledgeBase struct {
	facts     []Fact
	byDesc    map[string]int
	rules     []Rule
	producers [][]Rule // fact id -> rules whose consequent is that fact
}

// Lookup returns the fact with the given description.
func (k *KnowledgeBase) Lookup(desc string) (Fact, error) {
	id, ok := k.byDesc[desc]
	if !ok {
		return Fact{}, fmt.Errorf("%w: %q", internalerr.ErrUnknownFact, desc)
	}
	return k.facts[id], nil
}

// LookupAll resolves every description, failing on the first unknown one.
func (k *KnowledgeBase) LookupAll(descs []string) ([]Fact, error) {
	out := make([]Fact, 0, len(descs))
	for _, d := range descs {
		f, err := k.Lookup(d)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Fact returns the fact with the given id.
func (k *KnowledgeBase) Fact(id int) (Fact, bool) {
	if id < 0 || id >= len(k.facts) {
		return Fact{}, false
	}
	return k.facts[id], true
}

// Rule returns the rule with the given id.
func (k *KnowledgeBase) Rule(id int) (Rule, bool) {
	if id < 0 || id >= len(k.rules) {
		return Rule{}, false
	}
	return k.rules[id], true
}

// RulesProducing returns the rules whose consequent is factID, in rule id order.
// The returned slice is shared and must not be modified.
func (k *KnowledgeBase) RulesProducing(factID int) []Rule {
	if factID < 0 || factID >= len(k.producers) {
		return nil
	}
	return k.producers[factID]
}

// FactCount returns the number of facts.
func (k *KnowledgeBase) FactCount() int { return len(k.facts) }

// RuleCount returns the number of rules.
func (k *KnowledgeBase) RuleCount() int { return len(k.rules) }

// Facts returns a copy of all facts in id order.
func (k *KnowledgeBase) Facts() []Fact {
	out := make([]Fact, len(k.facts))
	copy(out, k.facts)
	return out
}

// Rules returns a copy of all rules in id order.
func (k *KnowledgeBase) Rules() []Rule {
	out := make([]Rule, len(k.rules))
	copy(out, k.rules)
	return out
}

// Builder accumulates facts and rules. Rules may only reference facts that
// were added before them.
type Builder struct {
	facts  []Fact
	byDesc map[string]int
	rules  []Rule
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{byDesc: make(map[string]int)}
}

// AddFact registers a fact and assigns it the next id.
func (b *Builder) AddFact(desc string) (Fact, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return Fact{}, fmt.Errorf("%w: empty fact description", internalerr.ErrInvalidInput)
	}
	if _, ok := b.byDesc[desc]; ok {
		return Fact{}, fmt.Errorf("%w: %q", internalerr.ErrDuplicateFact, desc)
	}
	f := Fact{ID: len(b.facts), Desc: desc}
	b.facts = append(b.facts, f)
	b.byDesc[desc] = f.ID
	return f, nil
}

// AddRule registers a rule built from fact descriptions. An empty antecedent
// list is legal and yields a rule that always fires.
func (b *Builder) AddRule(antecedents []string, consequent string) (Rule, error) {
	ants := make([]Fact, 0, len(antecedents))
	for _, a := range antecedents {
		f, err := b.lookup(a)
		if err != nil {
			return Rule{}, err
		}
		ants = append(ants, f)
	}
	cons, err := b.lookup(consequent)
	if err != nil {
		return Rule{}, err
	}
	r := Rule{ID: len(b.rules), Antecedents: ants, Consequent: &cons}
	b.rules = append(b.rules, r)
	return r, nil
}

// AddRuleLine parses "a, b -> c" and registers the rule.
func (b *Builder) AddRuleLine(line string) (Rule, error) {
	ants, cons, err := ParseRule(line)
	if err != nil {
		return Rule{}, err
	}
	return b.AddRule(ants, cons)
}

func (b *Builder) lookup(desc string) (Fact, error) {
	desc = strings.TrimSpace(desc)
	id, ok := b.byDesc[desc]
	if !ok {
		return Fact{}, fmt.Errorf("%w: %q", internalerr.ErrUnknownFact, desc)
	}
	return b.facts[id], nil
}

// Build freezes the builder into a KnowledgeBase. The builder should not be
// used afterwards.
func (b *Builder) Build() *KnowledgeBase {
	k := &KnowledgeBase{
		facts:     b.facts,
		byDesc:    b.byDesc,
		rules:     b.rules,
		producers: make([][]Rule, len(b.facts)),
	}
	for _, r := range k.rules {
		id := r.Consequent.ID
		k.producers[id] = append(k.producers[id], r)
	}
	return k
}

// ParseRule splits a rule line of the form "ant1, ant2 -> consequent".
func ParseRule(line string) (antecedents []string, consequent string, err error) {
	parts := strings.Split(line, "->")
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("%w: expected exactly one '->': %q", internalerr.ErrMalformedRule, line)
	}

	consequent = strings.TrimSpace(parts[1])
	if consequent == "" {
		return nil, "", fmt.Errorf("%w: empty consequent: %q", internalerr.ErrMalformedRule, line)
	}

	left := strings.TrimSpace(parts[0])
	if left == "" {
		return nil, "", fmt.Errorf("%w: empty antecedents: %q", internalerr.ErrMalformedRule, line)
	}
	for _, a := range strings.Split(left, ",") {
		a = strings.TrimSpace(a)
		if a == "" {
			return nil, "", fmt.Errorf("%w: empty antecedent: %q", internalerr.ErrMalformedRule, line)
		}
		antecedents = append(antecedents, a)
	}
	return antecedents, consequent, nil
}
