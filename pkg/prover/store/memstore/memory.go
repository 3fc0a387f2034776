package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/prover/pkg/prover/internalerr"
	"github.com/cognicore/prover/pkg/prover/kb"
	"github.com/cognicore/prover/pkg/prover/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu   sync.RWMutex
	kbs  map[string]*kb.KnowledgeBase
	runs map[string]store.Run
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		kbs:  make(map[string]*kb.KnowledgeBase),
		runs: make(map[string]store.Run),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// SaveKnowledgeBase stores k under name, replacing any previous one.
// Knowledge bases are immutable, so the instance itself is kept.
func (s *Store) SaveKnowledgeBase(ctx context.Context, name string, k *kb.KnowledgeBase) error {
	if name == "" || k == nil {
		return fmt.Errorf("save knowledge base: %w", internalerr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kbs[name] = k
	return nil
}

// LoadKnowledgeBase returns the knowledge base stored under name.
func (s *Store) LoadKnowledgeBase(ctx context.Context, name string) (*kb.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.kbs[name]
	if !ok {
		return nil, fmt.Errorf("knowledge base %q: %w", name, internalerr.ErrNotFound)
	}
	return k, nil
}

// KnowledgeBases lists stored names in sorted order.
func (s *Store) KnowledgeBases(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.kbs))
	for name := range s.kbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// RecordRun stores a run, keyed by ID.
func (s *Store) RecordRun(ctx context.Context, r store.Run) error {
	if r.ID == "" {
		return fmt.Errorf("record run: empty id: %w", internalerr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = copyRun(r)
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return store.Run{}, fmt.Errorf("run %q: %w", id, internalerr.ErrNotFound)
	}
	return copyRun(r), nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	out := make([]store.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, copyRun(r))
	}
	// ULIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID > out[j].ID
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRun(r store.Run) store.Run {
	copySlice := func(in []string) []string {
		if in == nil {
			return nil
		}
		out := make([]string, len(in))
		copy(out, in)
		return out
	}

	r.Known = copySlice(r.Known)
	r.Goal = copySlice(r.Goal)
	r.Proof = copySlice(r.Proof)
	return r
}
