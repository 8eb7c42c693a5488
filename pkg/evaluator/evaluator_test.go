package evaluator

import (
	"testing"
	"time"

	"github.com/jihwankim/jitfuzz/pkg/scoring"
	"github.com/jihwankim/jitfuzz/pkg/stats"
	"github.com/jihwankim/jitfuzz/pkg/testcase"
)

func newResult(interp, jit testcase.ExecutionResult) *testcase.Result {
	return &testcase.Result{
		Case:        testcase.NewSeed("seed1"),
		Interpreter: interp,
		JIT:         jit,
		Compilable:  true,
	}
}

func TestEvaluateInterpreterTimeoutArchives(t *testing.T) {
	result := newResult(
		testcase.ExecutionResult{TimedOut: true},
		testcase.ExecutionResult{ExitCode: 0},
	)
	d := Evaluate(result, scoring.Registry["uniform"], stats.New(), false, false)
	if d.Verdict != VerdictArchiveInterpreterSlow {
		t.Fatalf("expected VerdictArchiveInterpreterSlow, got %v", d.Verdict)
	}
	if d.Verdict.IsBug() {
		t.Fatal("interpreter-too-slow is not a bug")
	}
}

func TestEvaluateJITTimeoutIsBug(t *testing.T) {
	result := newResult(
		testcase.ExecutionResult{ExitCode: 0},
		testcase.ExecutionResult{TimedOut: true},
	)
	d := Evaluate(result, scoring.Registry["uniform"], stats.New(), false, false)
	if d.Verdict != VerdictBugJITTimeout {
		t.Fatalf("expected VerdictBugJITTimeout, got %v", d.Verdict)
	}
	if !d.Verdict.IsBug() {
		t.Fatal("JIT timeout must be a bug")
	}
}

func TestEvaluateAssertionFailureOnlyUnderAssertMode(t *testing.T) {
	result := newResult(
		testcase.ExecutionResult{ExitCode: 0, Stdout: "x"},
		testcase.ExecutionResult{ExitCode: 0, Stdout: "x", Stderr: "Assertion failed: foo"},
	)
	d := Evaluate(result, scoring.Registry["uniform"], stats.New(), false, false)
	if d.Verdict != VerdictScored {
		t.Fatalf("without assert mode, assertion text should not trigger a bug, got %v", d.Verdict)
	}

	d2 := Evaluate(result, scoring.Registry["uniform"], stats.New(), false, true)
	if d2.Verdict != VerdictBugAssertionFailure {
		t.Fatalf("expected VerdictBugAssertionFailure under assert mode, got %v", d2.Verdict)
	}
}

func TestEvaluateExitCodesDifferIsBug(t *testing.T) {
	result := newResult(
		testcase.ExecutionResult{ExitCode: 0},
		testcase.ExecutionResult{ExitCode: 1},
	)
	d := Evaluate(result, scoring.Registry["uniform"], stats.New(), false, false)
	if d.Verdict != VerdictBugExitCodesDiffer {
		t.Fatalf("expected VerdictBugExitCodesDiffer, got %v", d.Verdict)
	}
}

func TestEvaluateBothNonZeroArchives(t *testing.T) {
	result := newResult(
		testcase.ExecutionResult{ExitCode: 1},
		testcase.ExecutionResult{ExitCode: 1},
	)
	d := Evaluate(result, scoring.Registry["uniform"], stats.New(), false, false)
	if d.Verdict != VerdictArchiveNonCompilable {
		t.Fatalf("expected VerdictArchiveNonCompilable, got %v", d.Verdict)
	}
}

func TestEvaluateDivergentOutputIsBug(t *testing.T) {
	result := newResult(
		testcase.ExecutionResult{ExitCode: 0, Stdout: "hello"},
		testcase.ExecutionResult{ExitCode: 0, Stdout: "goodbye"},
	)
	d := Evaluate(result, scoring.Registry["uniform"], stats.New(), false, false)
	if d.Verdict != VerdictBugDivergentOutput {
		t.Fatalf("expected VerdictBugDivergentOutput, got %v", d.Verdict)
	}
}

func TestEvaluateIgnoresInstrumentationWhenComparingOutput(t *testing.T) {
	jitStdout := "hello\nOPTS_START\nOpts|C|m|()V|OSR|-1|1\nInlining=2\nOPTS_END\n"
	result := newResult(
		testcase.ExecutionResult{ExitCode: 0, Stdout: "hello\n"},
		testcase.ExecutionResult{ExitCode: 0, Stdout: jitStdout},
	)
	d := Evaluate(result, scoring.Registry["uniform"], stats.New(), false, false)
	if d.Verdict != VerdictScored {
		t.Fatalf("instrumentation-only difference must not be flagged divergent, got %v", d.Verdict)
	}
}

func TestEvaluateScoresHotMethodAndFingerprints(t *testing.T) {
	jitStdout := "OPTS_START\nOpts|C|m|()V|OSR|-1|1\nInlining=5\nLoopUnrolling=3\nOPTS_END\n"
	result := newResult(
		testcase.ExecutionResult{ExitCode: 0, Stdout: ""},
		testcase.ExecutionResult{ExitCode: 0, Stdout: jitStdout},
	)
	d := Evaluate(result, scoring.Registry["absolute"], stats.New(), false, false)
	if d.Verdict != VerdictScored {
		t.Fatalf("expected VerdictScored, got %v", d.Verdict)
	}
	if d.Score != 8 {
		t.Fatalf("expected absolute score 8 (5+3), got %v", d.Score)
	}
	if d.Fingerprint == "" {
		t.Fatal("expected a non-empty fingerprint")
	}
}

func TestEvaluateNoOptsBlocksYieldsEmptySequenceNotCrash(t *testing.T) {
	result := newResult(
		testcase.ExecutionResult{ExitCode: 0, Stdout: "nothing here"},
		testcase.ExecutionResult{ExitCode: 0, Stdout: "nothing here"},
	)
	d := Evaluate(result, scoring.Registry["absolute"], stats.New(), false, false)
	if d.Verdict != VerdictScored {
		t.Fatalf("expected VerdictScored with zero score, got %v", d.Verdict)
	}
	if d.Score != 0 {
		t.Fatalf("expected zero score, got %v", d.Score)
	}
}

func TestEvaluateRuntimeWeightFloorsAtPointOne(t *testing.T) {
	g := stats.New()
	// Seed a fast global average so this case looks very slow by comparison.
	g.RecordRuntime(float64(time.Millisecond))

	jitStdout := "OPTS_START\nOpts|C|m|()V|OSR|-1|1\nInlining=10\nOPTS_END\n"
	result := newResult(
		testcase.ExecutionResult{ExitCode: 0, Stdout: "", WallTime: time.Hour},
		testcase.ExecutionResult{ExitCode: 0, Stdout: jitStdout, WallTime: time.Hour},
	)
	d := Evaluate(result, scoring.Registry["absolute"], g, true, false)
	if d.Score < 1 || d.Score > 1.0+1e-9 {
		t.Fatalf("expected score floored at 10*0.1=1, got %v", d.Score)
	}
}
