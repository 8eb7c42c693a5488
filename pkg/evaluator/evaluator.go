// Package evaluator implements the decision ladder that turns a raw
// TestCaseResult into a disposition: archive, bug report, or scored
// candidate for the Corpus Manager.
package evaluator

import (
	"regexp"
	"strings"

	"github.com/jihwankim/jitfuzz/pkg/optvector"
	"github.com/jihwankim/jitfuzz/pkg/scoring"
	"github.com/jihwankim/jitfuzz/pkg/stats"
	"github.com/jihwankim/jitfuzz/pkg/testcase"
)

// Verdict is the tagged outcome of the decision ladder (first match wins).
type Verdict int

const (
	VerdictArchiveInterpreterSlow Verdict = iota
	VerdictBugJITTimeout
	VerdictBugAssertionFailure
	VerdictBugExitCodesDiffer
	VerdictArchiveNonCompilable
	VerdictBugDivergentOutput
	VerdictScored
)

func (v Verdict) IsBug() bool {
	switch v {
	case VerdictBugJITTimeout, VerdictBugAssertionFailure, VerdictBugExitCodesDiffer, VerdictBugDivergentOutput:
		return true
	}
	return false
}

func (v Verdict) Reason() string {
	switch v {
	case VerdictArchiveInterpreterSlow:
		return "interpreter too slow"
	case VerdictBugJITTimeout:
		return "JIT timeout"
	case VerdictBugAssertionFailure:
		return "assertion failure"
	case VerdictBugExitCodesDiffer:
		return "different exit codes"
	case VerdictArchiveNonCompilable:
		return "non-compilable or runtime failure"
	case VerdictBugDivergentOutput:
		return "divergent output"
	case VerdictScored:
		return "scored"
	default:
		return "unknown"
	}
}

// Disposition is the full output of one Evaluate call.
type Disposition struct {
	Verdict     Verdict
	Sequence    optvector.Sequence
	HotMethod   optvector.MethodVector
	Score       float64
	Fingerprint string
}

var optsBlock = regexp.MustCompile(`(?s)OPTS_START.*?OPTS_END\n?`)

// stripInstrumentation removes OPTS_START…OPTS_END blocks from stdout
// before the divergent-output comparison, since those lines are an
// artifact of instrumentation, not program behavior.
func stripInstrumentation(stdout string) string {
	return optsBlock.ReplaceAllString(stdout, "")
}

// assertionMarker is the recognizable diagnostic substring a VM emits on a
// failed assertion, used only under --mode fuzz-asserts.
const assertionMarker = "Assertion failed"

// Evaluate runs the decision ladder (six steps, plus the assertion step
// under assert mode), then hot-vector selection and scoring, but never
// mutates g — coverage counters are updated by
// the caller only once the Corpus Manager has accepted the case (see
// design notes: score preview must not mutate state).
func Evaluate(result *testcase.Result, mode scoring.Mode, g *stats.GlobalStats, wTimeEnabled, assertMode bool) Disposition {
	interp, jit := result.Interpreter, result.JIT

	if interp.TimedOut {
		return Disposition{Verdict: VerdictArchiveInterpreterSlow}
	}
	if jit.TimedOut {
		return Disposition{Verdict: VerdictBugJITTimeout}
	}
	if assertMode && strings.Contains(jit.Stderr, assertionMarker) {
		return Disposition{Verdict: VerdictBugAssertionFailure}
	}
	if interp.ExitCode != jit.ExitCode {
		return Disposition{Verdict: VerdictBugExitCodesDiffer}
	}
	if interp.ExitCode != 0 && jit.ExitCode != 0 {
		return Disposition{Verdict: VerdictArchiveNonCompilable}
	}
	if stripInstrumentation(interp.Stdout) != stripInstrumentation(jit.Stdout) {
		return Disposition{Verdict: VerdictBugDivergentOutput}
	}

	seq := optvector.Parse(jit.Stdout, nil)
	hot, ok := seq.Hot()
	if !ok {
		// No OPTS blocks at all: nothing to score or fingerprint. Treat
		// as a non-bug, zero-score case with an empty fingerprint; the
		// session controller does not submit such a case to the Corpus
		// Manager.
		return Disposition{Verdict: VerdictScored, Sequence: seq}
	}

	score := mode.Score(scoring.Context{Vector: hot.Vector, Stats: g})
	if score < 0 {
		score = 0
	}
	if wTimeEnabled {
		score *= runtimeWeight(result, g)
	}

	return Disposition{
		Verdict:     VerdictScored,
		Sequence:    seq,
		HotMethod:   hot,
		Score:       score,
		Fingerprint: scoring.Fingerprint(hot.Vector),
	}
}

// runtimeWeight computes w_time = 1/(1 + tc_avg_ms/global_avg_ms), floored
// at 0.1, preferring fast-running candidates.
func runtimeWeight(result *testcase.Result, g *stats.GlobalStats) float64 {
	globalAvgNS := g.GlobalAverageRuntimeNS()
	if globalAvgNS <= 0 {
		return 1
	}
	tcAvgNS := float64(result.Interpreter.WallTime+result.JIT.WallTime) / 2
	w := 1 / (1 + tcAvgNS/globalAvgNS)
	if w < 0.1 {
		return 0.1
	}
	return w
}
