package corpus

import (
	"math/rand"

	"github.com/jihwankim/jitfuzz/pkg/stats"
	"github.com/jihwankim/jitfuzz/pkg/testcase"
)

// Random is the random retention policy: uniform-random acceptance with a
// configured probability and uniform-random victim selection on overflow.
// Seeds are always accepted, to prevent ancestor extinction.
type Random struct {
	base
	acceptProbability float64
}

// NewRandom constructs a random-policy Corpus Manager with the given
// per-candidate acceptance probability.
func NewRandom(capacity int, acceptProbability float64, g *stats.GlobalStats, rng *rand.Rand) *Random {
	return &Random{base: newBase(capacity, g, rng), acceptProbability: acceptProbability}
}

func (r *Random) Evaluate(tc *testcase.TestCase, preview bool) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, collides := r.byFP[tc.Fingerprint]

	accept := tc.IsSeed() || r.rng.Float64() < r.acceptProbability
	if !accept {
		return Outcome{Decision: Discarded, Reason: "random policy declined"}
	}

	if preview {
		if collides {
			return Outcome{Decision: Replaced}
		}
		return Outcome{Decision: Accepted}
	}

	var previous *testcase.TestCase
	decision := Accepted
	if collides {
		previous = r.byFP[tc.Fingerprint].tc
		r.removeLocked(previous)
		decision = Replaced
	}

	r.insertLocked(tc)
	evicted := r.enforceCapacityRandomLocked()
	evicted = append(evicted, r.enforceShareCapLocked(tc.SeedAncestor)...)

	return Outcome{Decision: decision, Previous: previous, Evicted: evicted}
}

// enforceCapacityRandomLocked evicts uniform-random victims (rather than
// lowest-scoring) while the corpus exceeds capacity, per the random
// policy's overflow rule. Seed champions are protected from eviction here
// too, matching "seeds are always accepted to prevent ancestor extinction".
func (r *Random) enforceCapacityRandomLocked() []*testcase.TestCase {
	var evicted []*testcase.TestCase
	for len(r.byFP) > r.capacity {
		victim := r.randomNonSeedVictimLocked()
		if victim == nil {
			break
		}
		r.removeLocked(victim)
		evicted = append(evicted, victim)
	}
	return evicted
}

func (r *Random) randomNonSeedVictimLocked() *testcase.TestCase {
	candidates := make([]*testcase.TestCase, 0, len(r.byFP))
	for _, e := range r.byFP {
		if !e.tc.IsSeed() {
			candidates = append(candidates, e.tc)
		}
	}
	if len(candidates) == 0 {
		// Every remaining champion is a seed; capacity cannot be
		// enforced without violating ancestor protection.
		return nil
	}
	return candidates[r.rng.Intn(len(candidates))]
}
