// Package testcase models the TestCase entity: a synthesized program under
// evaluation, its lineage, and its place in the corpus.
package testcase

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jihwankim/jitfuzz/pkg/optvector"
)

// SeedMutator is the applied-mutator tag carried by every seed TestCase —
// mutation_depth 0 if and only if mutator == SeedMutator.
const SeedMutator = "SEED"

// TestCase is a synthesized program: one seed or one mutated child. Fields
// are grouped by who writes them: Seed Loader / Mutation Worker write the
// identity fields at creation; the Evaluator writes Score/Fingerprint/Hot
// after evaluation; the Corpus Manager toggles ActiveChampion and the
// Mutation Worker bumps TimesSelected.
type TestCase struct {
	// Identity, fixed at creation.
	Name          string
	UUID          uuid.UUID
	SeedAncestor  string
	Parent        string // name only — breaks the ownership cycle, see design notes
	AppliedMutator string
	MutationDepth int
	CreatedAt     time.Time

	// Written by the Evaluator after a TestCaseResult is scored.
	Score         float64
	Fingerprint   string
	HotClass      string
	HotMethod     string
	LatestVector  optvector.Vector
	ParentVector  optvector.Vector

	// ActiveChampion is written by the Corpus Manager, TimesSelected by
	// the Mutation Worker.
	ActiveChampion bool
	TimesSelected  int

	// Execution timings from the most recent run, carried for reporting.
	InterpreterRuntimeNS int64
	JITRuntimeNS         int64
}

// NewSeed constructs a depth-0 TestCase for a seed file. name must already
// be globally unique within the session (the seed loader derives it from
// the source file's base name plus a disambiguating suffix on collision).
func NewSeed(name string) *TestCase {
	return &TestCase{
		Name:           name,
		UUID:           uuid.New(),
		SeedAncestor:   name,
		Parent:         "",
		AppliedMutator: SeedMutator,
		MutationDepth:  0,
		CreatedAt:      timeNow(),
	}
}

// NewChild constructs a mutation_depth = parent.MutationDepth+1 TestCase
// produced by applying mutator to parent. name must be globally unique.
func NewChild(parent *TestCase, name, mutator string) *TestCase {
	return &TestCase{
		Name:           name,
		UUID:           uuid.New(),
		SeedAncestor:   parent.SeedAncestor,
		Parent:         parent.Name,
		AppliedMutator: mutator,
		MutationDepth:  parent.MutationDepth + 1,
		CreatedAt:      timeNow(),
		ParentVector:   parent.LatestVector,
	}
}

// IsSeed reports whether this case is a depth-0 seed.
func (t *TestCase) IsSeed() bool {
	return t.MutationDepth == 0 && t.AppliedMutator == SeedMutator
}

// QueueKey identifies this case in the mutation priority queue — its name,
// satisfying queue.PriorityItem.
func (t *TestCase) QueueKey() string {
	return t.Name
}

// Priority is the mutation queue's ordering key: score / (1 + times_selected).
// Frequently-selected champions naturally decay toward the back of the queue.
func (t *TestCase) Priority() float64 {
	return t.Score / float64(1+t.TimesSelected)
}

// MarkSelected increments TimesSelected, decaying Priority for the next pop.
func (t *TestCase) MarkSelected() {
	t.TimesSelected++
}

// SourceFileName returns the on-disk leaf name for this case's source,
// following the workspace layout testcases/<name>/<name>.<ext>.
func (t *TestCase) SourceFileName(ext string) string {
	return fmt.Sprintf("%s.%s", t.Name, ext)
}

// timeNow exists so tests can't accidentally rely on wall-clock ordering;
// it is the single call site for time.Now in this package.
func timeNow() time.Time { return time.Now() }

// Name generation: <seed>-d<depth>-<mutator>-<shortuuid>. Distinct from the
// entity's UUID field — the UUID exists purely to guarantee collision
// freedom under parallel mutation even if two names are requested in the
// same nanosecond; the name remains the human-legible on-disk identifier.
func ChildName(seedAncestor string, depth int, mutator string) string {
	id := uuid.New()
	short := id.String()[:8]
	return fmt.Sprintf("%s-d%d-%s-%s", seedAncestor, depth, mutator, short)
}

// Registry tracks every live TestCase by name for parent lookups (names are
// the only cross-reference a TestCase holds, per design notes). It is the
// Workspace-adjacent bookkeeping structure that lets the Mutation Worker and
// Corpus Manager resolve "parent" by name.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]*TestCase
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*TestCase)}
}

// Put registers or overwrites a TestCase under its name.
func (r *Registry) Put(tc *TestCase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[tc.Name] = tc
}

// Get looks up a TestCase by name.
func (r *Registry) Get(name string) (*TestCase, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tc, ok := r.byName[name]
	return tc, ok
}

// Delete removes a TestCase from the registry. Called by the session
// controller once a case is evicted or replaced out of the corpus and
// removed from the mutation queue.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
}

// Len returns the number of registered cases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
