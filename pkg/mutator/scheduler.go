package mutator

import (
	"math"
	"math/rand"
	"sort"

	"github.com/jihwankim/jitfuzz/pkg/stats"
)

// Scheduler picks one mutator name from a candidate set for the next
// mutation. Implementations own their *rand.Rand, matching the teacher's
// Sampler: one seeded RNG per struct, never the package-level global.
type Scheduler interface {
	Name() string
	Pick(names []string, g *stats.GlobalStats) string
}

// SchedulerFactory builds a Scheduler from a seeded RNG.
type SchedulerFactory func(rng *rand.Rand) Scheduler

// SchedulerRegistry is the --mutator-policy dispatch table.
var SchedulerRegistry = map[string]SchedulerFactory{
	"uniform": func(rng *rand.Rand) Scheduler { return &uniformScheduler{rng: rng} },
	"bandit":  func(rng *rand.Rand) Scheduler { return &banditScheduler{rng: rng} },
	"mop":     func(rng *rand.Rand) Scheduler { return &mopScheduler{rng: rng} },
}

// weightedChoice picks an index according to integer weights, the same
// "subtract running weight until negative" idiom used for sampling fault
// parameters elsewhere in the corpus.
func weightedChoice(rng *rand.Rand, weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return rng.Intn(len(weights))
	}
	r := rng.Intn(total)
	for i, w := range weights {
		r -= w
		if r < 0 {
			return i
		}
	}
	return len(weights) - 1
}

// sortedCopy returns names in a stable order so two schedulers given the
// same stats snapshot make the same deterministic choice under a fixed
// rng seed.
func sortedCopy(names []string) []string {
	out := append([]string{}, names...)
	sort.Strings(out)
	return out
}

// uniformScheduler picks uniformly at random among candidates.
type uniformScheduler struct{ rng *rand.Rand }

func (s *uniformScheduler) Name() string { return "uniform" }

func (s *uniformScheduler) Pick(names []string, g *stats.GlobalStats) string {
	names = sortedCopy(names)
	return names[s.rng.Intn(len(names))]
}

// banditScheduler is a UCB1 arm selector: each mutator is an arm, reward is
// improved-or-bug outcomes over applied attempts, and unseen arms are tried
// first (infinite exploration bonus).
type banditScheduler struct{ rng *rand.Rand }

func (s *banditScheduler) Name() string { return "bandit" }

func (s *banditScheduler) Pick(names []string, g *stats.GlobalStats) string {
	names = sortedCopy(names)

	var totalPulls int64
	snapshots := make([]stats.MutatorOutcome, len(names))
	for i, n := range names {
		snapshots[i] = g.MutatorOutcomeSnapshot(n)
		totalPulls += snapshots[i].Applied
	}

	// Any arm never applied gets picked immediately — UCB1's exploration
	// phase, before any score comparison is meaningful.
	for i, o := range snapshots {
		if o.Applied == 0 {
			return names[i]
		}
	}

	best := 0
	bestScore := math.Inf(-1)
	for i, o := range snapshots {
		reward := float64(o.Improved+o.Bug) / float64(o.Applied)
		bonus := math.Sqrt(2 * math.Log(float64(totalPulls)) / float64(o.Applied))
		score := reward + bonus
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return names[best]
}

// mopScheduler ("most-oft-productive") weights mutators by their observed
// success rate at producing accepted champions (improved+bug over applied),
// falling back to a uniform weight of 1 for arms with no history yet.
type mopScheduler struct{ rng *rand.Rand }

func (s *mopScheduler) Name() string { return "mop" }

func (s *mopScheduler) Pick(names []string, g *stats.GlobalStats) string {
	names = sortedCopy(names)
	weights := make([]int, len(names))
	for i, n := range names {
		o := g.MutatorOutcomeSnapshot(n)
		if o.Applied == 0 {
			weights[i] = 1
			continue
		}
		rate := float64(o.Improved+o.Bug) / float64(o.Applied)
		// Scale to an integer weight table; floor at 1 so a mutator with a
		// poor but nonzero track record can still be retried occasionally.
		w := int(rate*100) + 1
		weights[i] = w
	}
	return names[weightedChoice(s.rng, weights)]
}
