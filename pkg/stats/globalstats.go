// Package stats holds the process-wide GlobalStats counters read by the
// scorer and exported to Prometheus for the dashboard.
package stats

import (
	"sync"

	"github.com/jihwankim/jitfuzz/pkg/optvector"
)

// pairIndex maps an unordered feature-index pair (i<j) to its slot in the
// upper-triangular co-occurrence table.
func pairIndex(i, j int) int {
	if i > j {
		i, j = j, i
	}
	n := optvector.NumFeatures()
	// Row-major index into the upper triangle, skipping the diagonal.
	return i*n - (i*(i+1))/2 + (j - i - 1)
}

func numPairs() int {
	n := optvector.NumFeatures()
	return n * (n - 1) / 2
}

// RuntimeMoments accumulates enough state to report mean wall time without
// retaining every sample, following the teacher's running-aggregate idiom.
type RuntimeMoments struct {
	Count int64
	SumNS float64
}

// Add folds one more sample (nanoseconds) into the moments.
func (m *RuntimeMoments) Add(ns float64) {
	m.Count++
	m.SumNS += ns
}

// Mean returns the running average wall time in nanoseconds, or 0 if no
// samples have been recorded.
func (m *RuntimeMoments) Mean() float64 {
	if m.Count == 0 {
		return 0
	}
	return m.SumNS / float64(m.Count)
}

// MutatorOutcome is the per-mutator evaluation tally fed back to the
// Mutator Scheduler's bandit/MOP modes.
type MutatorOutcome struct {
	Applied    int64
	Skipped    int64
	Failed     int64
	Improved   int64
	NoChange   int64
	Bug        int64
	Timeout    int64
}

// GlobalStats is the process-wide, mutex-guarded set of monotone counters
// and running moments read by the scorer and the dashboard. All fields are
// either monotonically non-decreasing or replace-with-max; readers see a
// consistent-enough snapshot since every write happens under mu.
type GlobalStats struct {
	mu sync.Mutex

	runCount int64

	featureCounts [optvector.MaxFeatures]int64
	pairCounts    []int64 // upper-triangular, see pairIndex

	scoreSum float64
	scoreMax float64

	runtime RuntimeMoments

	mutatorOutcomes map[string]*MutatorOutcome
	bucketCounts    map[string]int64
}

// New constructs an empty GlobalStats, sized for the build-time feature
// enumeration.
func New() *GlobalStats {
	return &GlobalStats{
		pairCounts:      make([]int64, numPairs()),
		mutatorOutcomes: make(map[string]*MutatorOutcome),
		bucketCounts:    make(map[string]int64),
	}
}

// RunCount returns N, the number of hot vectors folded into coverage so far.
func (g *GlobalStats) RunCount() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runCount
}

// FeatureCount returns the global count for a single feature index.
func (g *GlobalStats) FeatureCount(i int) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.featureCounts[i]
}

// PairCount returns the global co-occurrence count for feature pair (i,j).
func (g *GlobalStats) PairCount(i, j int) int64 {
	if i == j {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pairCounts[pairIndex(i, j)]
}

// AverageFeatureFreq returns the running average count of feature i across
// all observed hot vectors — the avg_freq_i term of PF-IDF's lift formula.
func (g *GlobalStats) AverageFeatureFreq(i int) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.runCount == 0 {
		return 0
	}
	return float64(g.featureCounts[i]) / float64(g.runCount)
}

// RecordHotVector updates coverage counters (feature presence, pair
// presence, N) for the given hot vector. Per spec this happens exactly once
// per accepted case, never during score preview — see evaluator package.
func (g *GlobalStats) RecordHotVector(v optvector.Vector) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.runCount++
	active := make([]int, 0, len(v))
	for i, c := range v {
		if c > 0 {
			g.featureCounts[i] += c
			active = append(active, i)
		}
	}
	for a := 0; a < len(active); a++ {
		for b := a + 1; b < len(active); b++ {
			g.pairCounts[pairIndex(active[a], active[b])]++
		}
	}
}

// RecordScore folds a newly-accepted score into the running sum/max.
func (g *GlobalStats) RecordScore(score float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scoreSum += score
	if score > g.scoreMax {
		g.scoreMax = score
	}
}

// ScoreMax returns the highest score observed so far.
func (g *GlobalStats) ScoreMax() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scoreMax
}

// RecordRuntime folds one case's average (interpreter, JIT) wall time in
// nanoseconds into the global runtime moments, used for w_time.
func (g *GlobalStats) RecordRuntime(avgNS float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runtime.Add(avgNS)
}

// GlobalAverageRuntimeNS returns the running mean wall time across all
// recorded cases.
func (g *GlobalStats) GlobalAverageRuntimeNS() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runtime.Mean()
}

// RecordMutationAttempt tallies an applied/skipped/failed outcome for a
// named mutator — the first feedback channel the scheduler observes.
func (g *GlobalStats) RecordMutationAttempt(mutator, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o := g.outcomeLocked(mutator)
	switch status {
	case "success":
		o.Applied++
	case "skip":
		o.Skipped++
	case "failure":
		o.Failed++
	}
}

// RecordEvaluation tallies an improved/no-change/bug/timeout/failure
// outcome for a named mutator — the second feedback channel.
func (g *GlobalStats) RecordEvaluation(mutator, outcome string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o := g.outcomeLocked(mutator)
	switch outcome {
	case "improved":
		o.Improved++
	case "no-improvement":
		o.NoChange++
	case "bug":
		o.Bug++
	case "timeout":
		o.Timeout++
	case "failure":
		o.Failed++
	}
}

func (g *GlobalStats) outcomeLocked(mutator string) *MutatorOutcome {
	o, ok := g.mutatorOutcomes[mutator]
	if !ok {
		o = &MutatorOutcome{}
		g.mutatorOutcomes[mutator] = o
	}
	return o
}

// MutatorOutcomeSnapshot returns a copy of a mutator's tally (zero value if
// unseen), safe to read without holding g's lock.
func (g *GlobalStats) MutatorOutcomeSnapshot(mutator string) MutatorOutcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o, ok := g.mutatorOutcomes[mutator]; ok {
		return *o
	}
	return MutatorOutcome{}
}

// RecordBucket increments the per-bucket case count, used for the dashboard
// and for `unique_bug_buckets`.
func (g *GlobalStats) RecordBucket(bucketID string) (firstObservation bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, existed := g.bucketCounts[bucketID]
	g.bucketCounts[bucketID]++
	return !existed
}

// UniqueBugBuckets returns the number of distinct buckets observed.
func (g *GlobalStats) UniqueBugBuckets() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.bucketCounts)
}
