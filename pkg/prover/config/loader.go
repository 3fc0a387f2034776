package config

import (
	"context"
	"fmt"

	"github.com/cognicore/prover/pkg/prover/backward"
	"github.com/cognicore/prover/pkg/prover/kb"
	"github.com/cognicore/prover/pkg/prover/store"
	"github.com/cognicore/prover/pkg/prover/store/sqlite"
)

// Loader opens everything a Config points at
type Loader struct {
	Config *Config
}

// Components holds the loaded knowledge base and its optional store
type Components struct {
	KB       *kb.KnowledgeBase
	Store    store.Store // nil when no store is configured
	Strategy backward.Strategy
}

// Close releases the store, if any
func (c *Components) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// Load validates the config and returns initialized components. Text files
// take precedence over a stored knowledge base.
func (l *Loader) Load(ctx context.Context) (*Components, error) {
	if l.Config == nil {
		return nil, fmt.Errorf("load: nil config")
	}
	if err := l.Config.Validate(); err != nil {
		return nil, err
	}

	comp := &Components{}
	comp.Strategy, _ = backward.ParseStrategy(l.Config.Strategy)

	// Open store
	if l.Config.Store != "" {
		st, err := sqlite.OpenSQLite(ctx, l.Config.Store)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		comp.Store = st
	}

	// Load knowledge base
	if l.Config.Facts != "" {
		k, err := kb.LoadFiles(l.Config.Facts, l.Config.Rules)
		if err != nil {
			comp.Close()
			return nil, fmt.Errorf("load knowledge base: %w", err)
		}
		comp.KB = k
	} else {
		k, err := comp.Store.LoadKnowledgeBase(ctx, l.Config.KBName)
		if err != nil {
			comp.Close()
			return nil, fmt.Errorf("load knowledge base: %w", err)
		}
		comp.KB = k
	}

	return comp, nil
}
