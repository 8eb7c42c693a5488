// Package scoring implements the pluggable interestingness scoring modes
// and the fingerprint bucketing rule used by the Corpus Manager.
package scoring

import (
	"math"

	"github.com/jihwankim/jitfuzz/pkg/optvector"
	"github.com/jihwankim/jitfuzz/pkg/stats"
)

const (
	liftEpsilon = 1e-9
	liftCap     = 8.0
	pairCoverageFloor = 0.01
)

// Context is everything a Mode needs to score a hot vector: the vector
// itself plus a read-only view of global coverage. Modes never mutate
// Stats — coverage counters are updated by the session controller only on
// acceptance, never during a score preview.
type Context struct {
	Vector optvector.Vector
	Stats  *stats.GlobalStats
}

// Mode is one tagged variant of the scoring function. The set is fixed and
// fully enumerated in Registry; adding a mode means adding both an
// implementation and a Registry entry.
type Mode interface {
	Name() string
	Score(ctx Context) float64
}

// Registry is the exhaustive map of scoring mode name to implementation.
var Registry = map[string]Mode{}

func register(m Mode) { Registry[m.Name()] = m }

func init() {
	register(pfIDF{})
	register(absoluteCount{})
	register(pairCoverage{})
	register(interactionDiversity{})
	register(novelFeatureBonus{})
	register(interactionPairWeighted{})
	register(uniform{})
}

// activeFeatures returns the indices of features with a non-zero count.
func activeFeatures(v optvector.Vector) []int {
	out := make([]int, 0, len(v))
	for i, c := range v {
		if c > 0 {
			out = append(out, i)
		}
	}
	return out
}

// lift computes min(liftCap, count/(avgFreq+eps)) for one active feature.
func lift(count int64, avgFreq float64) float64 {
	l := float64(count) / (avgFreq + liftEpsilon)
	if l > liftCap {
		return liftCap
	}
	return l
}

// pfidfPairTerms returns the per-pair max(0, s_ij*w_ij) terms for every
// unordered pair of active features, shared by pfIDF and
// interactionPairWeighted.
func pfidfPairTerms(ctx Context, active []int) []float64 {
	n := ctx.Stats.RunCount()
	terms := make([]float64, 0, len(active)*(len(active)-1)/2)

	logNPlus1 := math.Log(float64(n + 1))

	for a := 0; a < len(active); a++ {
		for b := a + 1; b < len(active); b++ {
			i, j := active[a], active[b]

			liftI := lift(ctx.Vector[i], ctx.Stats.AverageFeatureFreq(i))
			liftJ := lift(ctx.Vector[j], ctx.Stats.AverageFeatureFreq(j))
			sij := math.Sqrt(liftI*liftJ) - 1

			nij := ctx.Stats.PairCount(i, j)
			var wij float64
			if logNPlus1 == 0 {
				// N == 0: nothing has been observed yet, every pair is
				// maximally novel.
				wij = 1
			} else {
				wij = math.Log(float64(n+1)/float64(nij+1)) / logNPlus1
			}

			term := sij * wij
			if term < 0 {
				term = 0
			}
			terms = append(terms, term)
		}
	}
	return terms
}

// pfIDF is pair-frequency / inverse-document-frequency scoring over pairs
// of features present in the hot vector. Requires >= 2 active features;
// otherwise scores 0.
type pfIDF struct{}

func (pfIDF) Name() string { return "pfidf" }

func (pfIDF) Score(ctx Context) float64 {
	active := activeFeatures(ctx.Vector)
	if len(active) < 2 {
		return 0
	}
	terms := pfidfPairTerms(ctx, active)
	if len(terms) == 0 {
		return 0
	}
	var sum float64
	for _, t := range terms {
		sum += t
	}
	return sum / float64(len(terms))
}

// absoluteCount scores by the raw sum of counts in the hot vector.
type absoluteCount struct{}

func (absoluteCount) Name() string { return "absolute" }
func (absoluteCount) Score(ctx Context) float64 {
	return float64(ctx.Vector.Total())
}

// pairCoverage rewards previously-unseen pairs and (half-weighted)
// previously-unseen singleton features, with a floor so any vector with
// >= 2 active features still beats a vector that contributes nothing new.
type pairCoverage struct{}

func (pairCoverage) Name() string { return "pair_coverage" }
func (pairCoverage) Score(ctx Context) float64 {
	active := activeFeatures(ctx.Vector)

	var unseenSingletons float64
	for _, i := range active {
		if ctx.Stats.FeatureCount(i) == 0 {
			unseenSingletons++
		}
	}

	var unseenPairs float64
	for a := 0; a < len(active); a++ {
		for b := a + 1; b < len(active); b++ {
			if ctx.Stats.PairCount(active[a], active[b]) == 0 {
				unseenPairs++
			}
		}
	}

	score := unseenPairs + 0.5*unseenSingletons
	if score <= 0 && len(active) >= 2 {
		return pairCoverageFloor
	}
	return score
}

// interactionDiversity scores total count minus the largest single-feature
// count — vectors dominated by one feature score low.
type interactionDiversity struct{}

func (interactionDiversity) Name() string { return "interaction_diversity" }
func (interactionDiversity) Score(ctx Context) float64 {
	return float64(ctx.Vector.Total() - ctx.Vector.MaxSingle())
}

// novelFeatureBonus rewards previously-unseen features plus a small
// fraction of total activity.
type novelFeatureBonus struct{}

func (novelFeatureBonus) Name() string { return "novel_feature_bonus" }
func (novelFeatureBonus) Score(ctx Context) float64 {
	var novel float64
	for _, i := range activeFeatures(ctx.Vector) {
		if ctx.Stats.FeatureCount(i) == 0 {
			novel++
		}
	}
	return novel + 0.1*float64(ctx.Vector.Total())
}

// interactionPairWeighted is the PF-IDF variant normalized by sqrt(|pairs|)
// instead of the arithmetic mean.
type interactionPairWeighted struct{}

func (interactionPairWeighted) Name() string { return "interaction_pair_weighted" }
func (interactionPairWeighted) Score(ctx Context) float64 {
	active := activeFeatures(ctx.Vector)
	if len(active) < 2 {
		return 0
	}
	terms := pfidfPairTerms(ctx, active)
	if len(terms) == 0 {
		return 0
	}
	var sum float64
	for _, t := range terms {
		sum += t
	}
	return sum / math.Sqrt(float64(len(terms)))
}

// uniform is the constant-1 scoring mode, used when corpus selection
// should be driven entirely by acceptance policy rather than novelty.
type uniform struct{}

func (uniform) Name() string          { return "uniform" }
func (uniform) Score(ctx Context) float64 { return 1 }
