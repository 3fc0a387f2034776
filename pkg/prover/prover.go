// Package prover answers "can these goal facts be derived from those known
// facts?" over a rule knowledge base, and explains the answer with a
// shortest proof.
package prover

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/prover/pkg/prover/backward"
	"github.com/cognicore/prover/pkg/prover/forward"
	"github.com/cognicore/prover/pkg/prover/internalerr"
	"github.com/cognicore/prover/pkg/prover/kb"
	"github.com/cognicore/prover/pkg/prover/report"
	"github.com/cognicore/prover/pkg/prover/store"
)

// Prover is the main proof engine facade
type Prover struct {
	kb          *kb.KnowledgeBase
	store       store.Store
	log         *zap.Logger
	reports     *report.Builder
	strategy    backward.Strategy
	parallelism int
	kbName      string
	maxStates   int
}

// Options configures a Prover instance
type Options struct {
	KB          *kb.KnowledgeBase
	Store       store.Store // optional; runs are recorded when set
	Logger      *zap.Logger
	Strategy    backward.Strategy
	Parallelism int    // ProveAll worker limit; GOMAXPROCS when zero
	KBName      string // recorded with every run
	MaxStates   int    // forward search state cap; unlimited when zero
}

// New creates a Prover over the given knowledge base
func New(opts Options) (*Prover, error) {
	if opts.KB == nil {
		return nil, fmt.Errorf("new prover: nil knowledge base: %w", internalerr.ErrInvalidInput)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	return &Prover{
		kb:          opts.KB,
		store:       opts.Store,
		log:         logger,
		reports:     report.New(),
		strategy:    opts.Strategy,
		parallelism: parallelism,
		kbName:      opts.KBName,
		maxStates:   opts.MaxStates,
	}, nil
}

// Close cleanly shuts down the Prover, closing its store if it has one
func (p *Prover) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}

// KnowledgeBase returns the rule base the prover searches
func (p *Prover) KnowledgeBase() *kb.KnowledgeBase { return p.kb }

// Request names the known and goal facts by description
type Request struct {
	Known []string
	Goal  []string
}

func (p *Prover) resolve(req Request) (known, goal []kb.Fact, err error) {
	known, err = p.kb.LookupAll(req.Known)
	if err != nil {
		return nil, nil, fmt.Errorf("known: %w", err)
	}
	goal, err = p.kb.LookupAll(req.Goal)
	if err != nil {
		return nil, nil, fmt.Errorf("goal: %w", err)
	}
	return known, goal, nil
}

// Prove runs a backward search for req. An unreachable goal is not an
// error: the report's verdict says so.
//
// Solve itself cannot be interrupted; when ctx ends first, Prove returns
// ctx.Err() and the search finishes in the background.
func (p *Prover) Prove(ctx context.Context, req Request) (report.Report, error) {
	known, goal, err := p.resolve(req)
	if err != nil {
		return report.Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return report.Report{}, err
	}

	start := time.Now()
	done := make(chan *backward.Result, 1)
	go func() {
		done <- backward.Solve(p.kb, known, goal,
			backward.WithLogger(p.log),
			backward.WithStrategy(p.strategy),
		)
	}()

	var res *backward.Result
	select {
	case <-ctx.Done():
		return report.Report{}, ctx.Err()
	case res = <-done:
	}

	r := p.reports.Backward(known, goal, res, time.Since(start))
	p.log.Info("backward search finished",
		zap.String("id", r.ID),
		zap.String("verdict", string(r.Verdict)),
		zap.Int("depth", r.Depth),
		zap.Int("steps", len(r.Proof)),
		zap.Duration("elapsed", r.Elapsed),
	)
	return r, p.record(ctx, r)
}

// ProveAll proves every request concurrently, bounded by the configured
// parallelism. Reports come back in request order. The first failure cancels
// the remaining work.
func (p *Prover) ProveAll(ctx context.Context, reqs []Request) ([]report.Report, error) {
	out := make([]report.Report, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			r, err := p.Prove(gctx, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Forward runs a breadth-first forward search for req, for comparison with
// the backward proof.
func (p *Prover) Forward(ctx context.Context, req Request) (report.Report, error) {
	known, goal, err := p.resolve(req)
	if err != nil {
		return report.Report{}, err
	}

	var opts []forward.Option
	if p.maxStates > 0 {
		opts = append(opts, forward.WithMaxStates(p.maxStates))
	}

	start := time.Now()
	steps, err := forward.Search(ctx, p.kb, known, goal, opts...)
	if err != nil && !errors.Is(err, internalerr.ErrUnreachable) {
		return report.Report{}, err
	}

	r := p.reports.Forward(p.kb, known, goal, steps, err, time.Since(start))
	p.log.Info("forward search finished",
		zap.String("id", r.ID),
		zap.String("verdict", string(r.Verdict)),
		zap.Int("steps", len(r.Proof)),
		zap.Duration("elapsed", r.Elapsed),
	)
	return r, p.record(ctx, r)
}

// Closure returns every fact derivable from known, in id order.
func (p *Prover) Closure(known []string) ([]string, error) {
	facts, err := p.kb.LookupAll(known)
	if err != nil {
		return nil, fmt.Errorf("known: %w", err)
	}
	derived := forward.Closure(p.kb, facts).Facts(p.kb)
	out := make([]string, len(derived))
	for i, f := range derived {
		out[i] = f.Desc
	}
	return out, nil
}

// SaveKnowledgeBase stores the prover's knowledge base under its name.
func (p *Prover) SaveKnowledgeBase(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("save knowledge base: no store: %w", internalerr.ErrInvalidConfig)
	}
	return p.store.SaveKnowledgeBase(ctx, p.kbName, p.kb)
}

// Runs lists recorded runs, newest first.
func (p *Prover) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	if p.store == nil {
		return nil, fmt.Errorf("list runs: no store: %w", internalerr.ErrInvalidConfig)
	}
	return p.store.ListRuns(ctx, limit)
}

func (p *Prover) record(ctx context.Context, r report.Report) error {
	if p.store == nil {
		return nil
	}
	if err := p.store.RecordRun(ctx, RunFromReport(p.kbName, r)); err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// RunFromReport converts a report into its stored form.
func RunFromReport(kbName string, r report.Report) store.Run {
	return store.Run{
		ID:        r.ID,
		KB:        kbName,
		Method:    r.Method,
		Known:     r.Known,
		Goal:      r.Goal,
		Proved:    r.Proved(),
		Depth:     r.Depth,
		Proof:     r.Lines(),
		Elapsed:   r.Elapsed,
		CreatedAt: r.CreatedAt,
	}
}
