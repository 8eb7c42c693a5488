// Package executor compiles a TestCase and runs it twice — interpreter-only
// and JIT-enabled — capturing raw results for the Evaluator.
package executor

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jihwankim/jitfuzz/pkg/compiler"
	"github.com/jihwankim/jitfuzz/pkg/reporting"
	"github.com/jihwankim/jitfuzz/pkg/stats"
	"github.com/jihwankim/jitfuzz/pkg/testcase"
)

// InstrumentationFlags is the compile-time constant set of JIT flags that
// enable OPTS_START/OPTS_END instrumentation. The per-case class
// restriction is not part of this list; Run appends it separately (see
// classRestrictionFlag). The exact flag names are VM-specific (spec.md §6,
// design notes); they are an opaque constant co-designed with the
// instrumented VM build, not derived at runtime.
var InstrumentationFlags = []string{
	"-XX:+UnlockDiagnosticVMOptions",
	"-XX:+PrintCompilation",
	"-XX:+TraceOptimizationVector",
}

// InterpreterOnlyFlags disables the optimizing compiler entirely.
var InterpreterOnlyFlags = []string{"-Xint"}

// ClassExtractor extracts the set of top-level/nested class names from a
// source file — delegated to the external source-level parser (out of
// scope per spec.md §1).
type ClassExtractor interface {
	ExtractClasses(sourcePath string) ([]string, error)
}

// Config configures an Executor pool.
type Config struct {
	VMPath           string
	SpawnTimeout     time.Duration // default 15s
	ClassFlagPrefix  string        // e.g. "-XX:CompileOnly=" — VM-specific
	EnableAssertions bool          // fuzz-asserts mode: add AssertFlag to both spawns
}

// AssertFlag enables Java-style assertions, appended to both the
// interpreter-only and JIT flag sets under --mode fuzz-asserts.
const AssertFlag = "-ea"

// Executor compiles and dually-executes TestCases. N Executors run fully
// in parallel; each reads from a shared multi-consumer queue and holds no
// cross-executor state.
type Executor struct {
	cfg      Config
	compiler *compiler.Client
	classes  ClassExtractor
	stats    *stats.GlobalStats
	logger   *reporting.Logger
}

// New constructs an Executor.
func New(cfg Config, compilerClient *compiler.Client, classes ClassExtractor, g *stats.GlobalStats, logger *reporting.Logger) *Executor {
	if cfg.SpawnTimeout == 0 {
		cfg.SpawnTimeout = 15 * time.Second
	}
	return &Executor{cfg: cfg, compiler: compilerClient, classes: classes, stats: g, logger: logger}
}

// Run compiles tc and, if compilation succeeds, executes it twice,
// returning the raw result for the Evaluator. A compile failure yields
// Compilable=false and a nil error — the caller bumps failed-compilation
// counters and archives rather than treating this as an Executor error.
func (e *Executor) Run(ctx context.Context, tc *testcase.TestCase, sourcePath, outputDir string) (*testcase.Result, error) {
	compResp, err := e.compiler.Compile(ctx, compiler.Request{
		SourcePath: sourcePath,
		OutputDir:  outputDir,
	})
	if err != nil {
		e.logger.Warn("compiler service unreachable, case skipped", "case", tc.Name, "error", err)
		return nil, err
	}
	if !compResp.Success {
		return &testcase.Result{Case: tc, Compilable: false}, nil
	}

	classNames, err := e.classes.ExtractClasses(sourcePath)
	if err != nil {
		e.logger.Warn("class extraction failed, falling back to unrestricted compile", "case", tc.Name, "error", err)
	}

	entryClass := tc.Name
	if len(classNames) > 0 {
		entryClass = classNames[0]
	}

	interpFlags := InterpreterOnlyFlags
	jitFlags := append([]string{}, InstrumentationFlags...)
	if restrict := e.classRestrictionFlag(classNames); restrict != "" {
		jitFlags = append(jitFlags, restrict)
	}
	if e.cfg.EnableAssertions {
		interpFlags = append(append([]string{}, interpFlags...), AssertFlag)
		jitFlags = append(jitFlags, AssertFlag)
	}

	interp, err := e.spawn(ctx, interpFlags, entryClass, outputDir)
	if err != nil {
		return &testcase.Result{Case: tc, Compilable: false}, nil
	}

	jit, err := e.spawn(ctx, jitFlags, entryClass, outputDir)
	if err != nil {
		return &testcase.Result{Case: tc, Compilable: false}, nil
	}

	avgNS := float64(interp.WallTime+jit.WallTime) / 2
	e.stats.RecordRuntime(avgNS)

	return &testcase.Result{
		Case:        tc,
		Interpreter: interp,
		JIT:         jit,
		Compilable:  true,
	}, nil
}

func (e *Executor) classRestrictionFlag(classNames []string) string {
	if e.cfg.ClassFlagPrefix == "" || len(classNames) == 0 {
		return ""
	}
	joined := classNames[0]
	for _, c := range classNames[1:] {
		joined += "," + c
	}
	return e.cfg.ClassFlagPrefix + joined
}

// spawn runs the VM once with the given flags, enforcing a hard wall-clock
// timeout. On timeout the VM process is force-killed and TimedOut is set;
// ExitCode is then unreliable. Only the VM process itself is killed;
// processes it started are not signalled.
func (e *Executor) spawn(ctx context.Context, flags []string, entryClass, workDir string) (testcase.ExecutionResult, error) {
	spawnCtx, cancel := context.WithTimeout(ctx, e.cfg.SpawnTimeout)
	defer cancel()

	args := append(append([]string{}, flags...), entryClass)
	cmd := exec.CommandContext(spawnCtx, e.cfg.VMPath, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	timedOut := spawnCtx.Err() == context.DeadlineExceeded

	result := testcase.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		WallTime: elapsed,
		TimedOut: timedOut,
	}

	if timedOut {
		return result, nil
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, runErr
	}

	result.ExitCode = 0
	return result, nil
}

// SourcePathFor returns the on-disk path for a test case's source, given
// its workspace directory — a small convenience wrapper kept here since
// the Executor is the primary caller.
func SourcePathFor(caseDir string, tc *testcase.TestCase, ext string) string {
	return filepath.Join(caseDir, tc.SourceFileName(ext))
}
