package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cognicore/prover/pkg/prover/kb"
)

// Store persists knowledge bases and the history of proof runs against them.
type Store interface {
	Close() error

	// Knowledge bases
	SaveKnowledgeBase(ctx context.Context, name string, k *kb.KnowledgeBase) error
	LoadKnowledgeBase(ctx context.Context, name string) (*kb.KnowledgeBase, error)
	KnowledgeBases(ctx context.Context) ([]string, error)

	// Runs
	RecordRun(ctx context.Context, r Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// Run is a stored proof attempt.
type Run struct {
	ID        string // ULID
	KB        string
	Method    string
	Known     []string
	Goal      []string
	Proved    bool
	Depth     int
	Proof     []string // rule lines in proof order
	Elapsed   time.Duration
	CreatedAt time.Time
}

// RuleRecord is the storage form of a rule: fact ids instead of facts.
type RuleRecord struct {
	ID          int
	Antecedents []int
	Consequent  int
}

// Records flattens a knowledge base into storable rows.
func Records(k *kb.KnowledgeBase) ([]kb.Fact, []RuleRecord) {
	rules := k.Rules()
	out := make([]RuleRecord, len(rules))
	for i, r := range rules {
		ants := make([]int, len(r.Antecedents))
		for j, a := range r.Antecedents {
			ants[j] = a.ID
		}
		out[i] = RuleRecord{ID: r.ID, Antecedents: ants, Consequent: r.Consequent.ID}
	}
	return k.Facts(), out
}

// Rebuild reconstructs a knowledge base from stored rows. Facts and rules
// must be in id order, which preserves every id.
func Rebuild(facts []kb.Fact, rules []RuleRecord) (*kb.KnowledgeBase, error) {
	b := kb.NewBuilder()
	for i, f := range facts {
		if f.ID != i {
			return nil, fmt.Errorf("rebuild: fact %q has id %d at position %d", f.Desc, f.ID, i)
		}
		if _, err := b.AddFact(f.Desc); err != nil {
			return nil, fmt.Errorf("rebuild: %w", err)
		}
	}

	desc := func(id int) (string, error) {
		if id < 0 || id >= len(facts) {
			return "", fmt.Errorf("rebuild: fact id %d out of range", id)
		}
		return facts[id].Desc, nil
	}

	for i, r := range rules {
		if r.ID != i {
			return nil, fmt.Errorf("rebuild: rule id %d at position %d", r.ID, i)
		}
		ants := make([]string, len(r.Antecedents))
		for j, id := range r.Antecedents {
			d, err := desc(id)
			if err != nil {
				return nil, err
			}
			ants[j] = d
		}
		cons, err := desc(r.Consequent)
		if err != nil {
			return nil, err
		}
		if _, err := b.AddRule(ants, cons); err != nil {
			return nil, fmt.Errorf("rebuild: %w", err)
		}
	}
	return b.Build(), nil
}
