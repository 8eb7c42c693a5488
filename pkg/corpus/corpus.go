// Package corpus implements the Corpus Manager: the pluggable champion and
// random retention policies that decide which evaluated TestCases occupy a
// corpus slot and feed the mutation queue.
package corpus

import (
	"math/rand"
	"sync"

	"github.com/jihwankim/jitfuzz/pkg/scoring"
	"github.com/jihwankim/jitfuzz/pkg/stats"
	"github.com/jihwankim/jitfuzz/pkg/testcase"
)

// Decision is the tagged outcome of one evaluate() call.
type Decision int

const (
	Accepted Decision = iota
	Replaced
	Rejected
	Discarded
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Replaced:
		return "replaced"
	case Rejected:
		return "rejected"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Outcome is the full result of one evaluate() call.
type Outcome struct {
	Decision Decision
	Previous *testcase.TestCase // set on Replaced
	Incumbent *testcase.TestCase // set on Rejected
	Reason    string             // set on Rejected/Discarded
	Evicted   []*testcase.TestCase
}

// SeedShareCap is the minimum guaranteed floor for the per-seed-ancestor
// corpus share rule: max(SeedShareCap, 1/distinct_seeds).
const SeedShareCap = 0.10

// Manager is the Corpus Manager's public interface: champion and random
// policies both implement it, selected by construction (spec.md's
// policy-pluggable design).
type Manager interface {
	// Evaluate decides the fate of tc, which has already been scored and
	// fingerprinted by the Evaluator. If preview is true, no mutation of
	// corpus state occurs — used only to preview a hypothetical score,
	// never by the real pipeline path (see design notes: score preview
	// must never mutate coverage or corpus state).
	Evaluate(tc *testcase.TestCase, preview bool) Outcome

	// Champions returns a snapshot of all currently active champions.
	Champions() []*testcase.TestCase

	// Capacity returns the configured corpus capacity.
	Capacity() int
}

// entry is one occupied corpus slot.
type entry struct {
	tc *testcase.TestCase
}

// base holds the state and locking shared by both policies.
type base struct {
	mu         sync.Mutex
	capacity   int
	byFP       map[string]*entry
	seedCounts map[string]int
	stats      *stats.GlobalStats
	rng        *rand.Rand
}

func newBase(capacity int, g *stats.GlobalStats, rng *rand.Rand) base {
	return base{
		capacity:   capacity,
		byFP:       make(map[string]*entry),
		seedCounts: make(map[string]int),
		stats:      g,
		rng:        rng,
	}
}

func (b *base) Capacity() int { return b.capacity }

func (b *base) Champions() []*testcase.TestCase {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*testcase.TestCase, 0, len(b.byFP))
	for _, e := range b.byFP {
		out = append(out, e.tc)
	}
	return out
}

// shareCapLocked returns the current cap given how many distinct seed
// ancestors are present: max(SeedShareCap, 1/distinct_seeds) * capacity.
func (b *base) shareCapLocked() float64 {
	distinct := len(b.seedCounts)
	if distinct == 0 {
		return float64(b.capacity)
	}
	frac := SeedShareCap
	if 1.0/float64(distinct) > frac {
		frac = 1.0 / float64(distinct)
	}
	return frac * float64(b.capacity)
}

// enforceShareCapLocked evicts the lowest-scoring champion belonging to
// seed ancestor `seed` until its share no longer exceeds the cap. Returns
// the evicted champions.
func (b *base) enforceShareCapLocked(seed string) []*testcase.TestCase {
	var evicted []*testcase.TestCase
	limit := b.shareCapLocked()
	for float64(b.seedCounts[seed]) > limit {
		victim := b.lowestScoringForSeedLocked(seed)
		if victim == nil {
			break
		}
		b.removeLocked(victim)
		evicted = append(evicted, victim)
	}
	return evicted
}

func (b *base) lowestScoringForSeedLocked(seed string) *testcase.TestCase {
	var victim *testcase.TestCase
	for _, e := range b.byFP {
		if e.tc.SeedAncestor != seed {
			continue
		}
		if victim == nil || e.tc.Score < victim.Score {
			victim = e.tc
		}
	}
	return victim
}

// lowestScoringLocked finds the globally lowest-scoring champion, used for
// capacity eviction. Ties are broken by lexicographically smallest name,
// which is deterministic but arbitrary, per spec.
func (b *base) lowestScoringLocked() *testcase.TestCase {
	var victim *testcase.TestCase
	for _, e := range b.byFP {
		if victim == nil || e.tc.Score < victim.Score ||
			(e.tc.Score == victim.Score && e.tc.Name < victim.Name) {
			victim = e.tc
		}
	}
	return victim
}

func (b *base) removeLocked(tc *testcase.TestCase) {
	delete(b.byFP, tc.Fingerprint)
	b.seedCounts[tc.SeedAncestor]--
	if b.seedCounts[tc.SeedAncestor] <= 0 {
		delete(b.seedCounts, tc.SeedAncestor)
	}
	tc.ActiveChampion = false
}

func (b *base) insertLocked(tc *testcase.TestCase) {
	b.byFP[tc.Fingerprint] = &entry{tc: tc}
	b.seedCounts[tc.SeedAncestor]++
	tc.ActiveChampion = true
}

// enforceCapacityLocked evicts the lowest-scoring champions while the
// corpus exceeds capacity.
func (b *base) enforceCapacityLocked() []*testcase.TestCase {
	var evicted []*testcase.TestCase
	for len(b.byFP) > b.capacity {
		victim := b.lowestScoringLocked()
		if victim == nil {
			break
		}
		b.removeLocked(victim)
		evicted = append(evicted, victim)
	}
	return evicted
}

// rescore recomputes tc's score against the current scoring mode, used to
// refresh a history-dependent incumbent's score before a replacement
// comparison (spec.md 4.4: "rescore the incumbent on demand").
func rescore(mode scoring.Mode, g *stats.GlobalStats, tc *testcase.TestCase) float64 {
	return mode.Score(scoring.Context{Vector: tc.LatestVector, Stats: g})
}
