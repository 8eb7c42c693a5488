package corpus

import (
	"math/rand"

	"github.com/jihwankim/jitfuzz/pkg/scoring"
	"github.com/jihwankim/jitfuzz/pkg/stats"
	"github.com/jihwankim/jitfuzz/pkg/testcase"
)

// replacementMargin is the minimum relative score improvement a challenger
// must show over an incumbent to replace it. Earlier revisions used a
// strict >; this one retains the 5% margin for stability (design notes).
const replacementMargin = 0.05

// Champion is the champion retention policy: exactly one TestCase per
// distinct fingerprint, capacity-bounded, with on-demand incumbent
// rescoring and a relative-margin replacement rule.
type Champion struct {
	base
	mode scoring.Mode
}

// NewChampion constructs a champion-policy Corpus Manager.
func NewChampion(capacity int, mode scoring.Mode, g *stats.GlobalStats, rng *rand.Rand) *Champion {
	return &Champion{base: newBase(capacity, g, rng), mode: mode}
}

func (c *Champion) Evaluate(tc *testcase.TestCase, preview bool) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	incumbentEntry, collides := c.byFP[tc.Fingerprint]
	if !collides {
		if preview {
			return Outcome{Decision: Accepted}
		}
		c.insertLocked(tc)
		evicted := c.enforceCapacityLocked()
		evicted = append(evicted, c.enforceShareCapLocked(tc.SeedAncestor)...)
		return Outcome{Decision: Accepted, Evicted: evicted}
	}

	incumbent := incumbentEntry.tc
	incumbentScore := rescore(c.mode, c.stats, incumbent)

	var replace bool
	if c.mode.Name() == "uniform" {
		if tc.Score == incumbentScore {
			replace = c.rng.Float64() < 0.5
		} else {
			replace = tc.Score > incumbentScore
		}
	} else {
		threshold := incumbentScore * (1 + replacementMargin)
		replace = tc.Score >= threshold
	}

	if !replace {
		return Outcome{Decision: Rejected, Incumbent: incumbent, Reason: "incumbent score not exceeded by margin"}
	}

	if preview {
		return Outcome{Decision: Replaced, Previous: incumbent}
	}

	c.removeLocked(incumbent)
	c.insertLocked(tc)
	evicted := c.enforceCapacityLocked()
	evicted = append(evicted, c.enforceShareCapLocked(tc.SeedAncestor)...)

	return Outcome{Decision: Replaced, Previous: incumbent, Evicted: evicted}
}
