package report

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/prover/pkg/prover/backward"
	"github.com/cognicore/prover/pkg/prover/forward"
	"github.com/cognicore/prover/pkg/prover/kb"
)

// Verdict is the outcome of a proof attempt.
type Verdict string

const (
	Proved      Verdict = "proved"
	Unreachable Verdict = "unreachable"
)

// Report is a presentable record of one search.
type Report struct {
	ID        string
	Method    string // "backward/shortest", "backward/first-proof", "forward"
	Known     []string
	Goal      []string
	Verdict   Verdict
	Depth     int
	Proof     []kb.Rule
	States    []string // forward search only: facts holding after each step
	Stats     backward.Stats
	Elapsed   time.Duration
	CreatedAt time.Time
}

// Proved reports whether the goal was derived.
func (r Report) Proved() bool { return r.Verdict == Proved }

// Lines renders each proof step as "a, b -> c".
func (r Report) Lines() []string {
	out := make([]string, len(r.Proof))
	for i, rule := range r.Proof {
		out[i] = rule.String()
	}
	return out
}

// WriteText writes a plain-text rendering of the report.
func (r Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Known: %s\n", strings.Join(r.Known, ", "))
	fmt.Fprintf(&b, "Goal:  %s\n", strings.Join(r.Goal, ", "))
	if !r.Proved() {
		b.WriteString("NOT REACHABLE\n")
	} else {
		fmt.Fprintf(&b, "Proved in %d step(s), depth %d:\n", len(r.Proof), r.Depth)
		for i, line := range r.Lines() {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, line)
			if i < len(r.States) {
				fmt.Fprintf(&b, "     => %s\n", r.States[i])
			}
		}
	}
	fmt.Fprintf(&b, "Elapsed time is %.3f seconds\n", r.Elapsed.Seconds())
	_, err := io.WriteString(w, b.String())
	return err
}

// Builder assembles reports and stamps them with ULIDs. Safe for concurrent use.
type Builder struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// New creates a new report builder
func New() *Builder {
	return &Builder{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (b *Builder) stamp() (string, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	return ulid.MustNew(ulid.Timestamp(now), b.entropy).String(), now
}

// Backward builds a report from a backward search result.
func (b *Builder) Backward(known, goal []kb.Fact, res *backward.Result, elapsed time.Duration) Report {
	id, now := b.stamp()
	r := Report{
		ID:        id,
		Method:    "backward/" + res.Strategy().String(),
		Known:     descs(known),
		Goal:      descs(goal),
		Verdict:   Unreachable,
		Stats:     res.Stats(),
		Elapsed:   elapsed,
		CreatedAt: now,
	}
	if proof, err := res.Extract(); err == nil {
		r.Verdict = Proved
		r.Proof = proof
		r.Depth, _ = res.Depth()
	}
	return r
}

// Forward builds a report from a forward search path. A nil error with an
// empty path means the goal already held.
func (b *Builder) Forward(k *kb.KnowledgeBase, known, goal []kb.Fact, steps []forward.Step, searchErr error, elapsed time.Duration) Report {
	id, now := b.stamp()
	r := Report{
		ID:        id,
		Method:    "forward",
		Known:     descs(known),
		Goal:      descs(goal),
		Verdict:   Unreachable,
		Elapsed:   elapsed,
		CreatedAt: now,
	}
	if searchErr != nil {
		return r
	}
	r.Verdict = Proved
	r.Depth = len(steps)
	for _, s := range steps {
		r.Proof = append(r.Proof, s.Rule)
		r.States = append(r.States, s.State.Format(k))
	}
	return r
}

func descs(facts []kb.Fact) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = f.Desc
	}
	return out
}
