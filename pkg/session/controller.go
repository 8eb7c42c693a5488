// Package session wires every pipeline component into one running fuzzing
// session: seed loading, the Executor pool, the Evaluator stage, the Corpus
// Manager, and the Mutation Worker pool, with errgroup-supervised lifecycle
// and signal-driven shutdown — grounded on the teacher's
// emergency.Controller OnStop-callback design and Orchestrator's
// goroutine-pool fan-out.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jihwankim/jitfuzz/pkg/bucketizer"
	"github.com/jihwankim/jitfuzz/pkg/compiler"
	"github.com/jihwankim/jitfuzz/pkg/config"
	"github.com/jihwankim/jitfuzz/pkg/corpus"
	"github.com/jihwankim/jitfuzz/pkg/evaluator"
	"github.com/jihwankim/jitfuzz/pkg/executor"
	"github.com/jihwankim/jitfuzz/pkg/mutator"
	"github.com/jihwankim/jitfuzz/pkg/queue"
	"github.com/jihwankim/jitfuzz/pkg/reporting"
	"github.com/jihwankim/jitfuzz/pkg/scoring"
	"github.com/jihwankim/jitfuzz/pkg/seedloader"
	"github.com/jihwankim/jitfuzz/pkg/stats"
	"github.com/jihwankim/jitfuzz/pkg/testcase"
	"github.com/jihwankim/jitfuzz/pkg/workspace"
)

// ClassExtractor is re-exported for callers assembling a Controller.
type ClassExtractor = executor.ClassExtractor

// Controller owns every long-lived component of one fuzzing session.
type Controller struct {
	cfg    *config.Config
	logger *reporting.Logger

	workspace *workspace.Workspace
	registry  *testcase.Registry
	stats     *stats.GlobalStats
	bugs      *bucketizer.Store

	execQueue    *queue.FIFO
	evalQueue    *queue.FIFO
	championPQ   *queue.Priority

	corpusMgr corpus.Manager
	scoreMode scoring.Mode

	executors []*executor.Executor
	mutWorkers []*mutator.Worker

	onStopMu sync.Mutex
	onStop   []func()
	stopped  bool

	assertMode bool
	rngTime    bool
}

// New assembles a Controller from cfg. classExtractor is the external
// source-level class extractor collaborator (spec §1's out-of-scope item).
func New(cfg *config.Config, classExtractor ClassExtractor, logger *reporting.Logger) (*Controller, error) {
	ws, err := workspace.New(cfg.Session.OutputDir, "java", time.Now())
	if err != nil {
		return nil, fmt.Errorf("session: create workspace: %w", err)
	}

	bugsStore, err := bucketizer.NewStore(ws.BugsDir())
	if err != nil {
		return nil, fmt.Errorf("session: create bug store: %w", err)
	}

	mode, ok := scoring.Registry[cfg.Corpus.ScoringMode]
	if !ok {
		return nil, fmt.Errorf("session: unknown scoring mode %q", cfg.Corpus.ScoringMode)
	}

	seed := int64(cfg.Session.RNGSeed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := stats.New()

	corpusRng := rand.New(rand.NewSource(seed))
	var mgr corpus.Manager
	switch cfg.Corpus.Policy {
	case "random":
		mgr = corpus.NewRandom(cfg.Corpus.Capacity, cfg.Corpus.RandomAcceptProb, g, corpusRng)
	default:
		mgr = corpus.NewChampion(cfg.Corpus.Capacity, mode, g, corpusRng)
	}

	compilerClient, err := compiler.New(compiler.Config{
		URL:            cfg.Compiler.URL,
		RequestTimeout: cfg.Compiler.RequestTimeout,
		RetryAttempts:  cfg.Compiler.RetryAttempts,
		RetryBaseDelay: cfg.Compiler.RetryBaseDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("session: create compiler client: %w", err)
	}

	execQueue := queue.NewFIFO(cfg.Execution.ExecutionQueueCap)
	evalQueue := queue.NewFIFO(cfg.Execution.EvaluationQueueCap)
	championPQ := queue.NewPriority()
	registry := testcase.NewRegistry()

	executors := make([]*executor.Executor, cfg.Execution.Executors)
	for i := range executors {
		executors[i] = executor.New(executor.Config{
			VMPath:           cfg.VM.JDKBinDir,
			SpawnTimeout:     cfg.Execution.SpawnTimeout,
			EnableAssertions: cfg.Session.Mode == config.ModeFuzzAsserts,
		}, compilerClient, classExtractor, g, logger)
	}

	schedFactory, ok := mutator.SchedulerRegistry[cfg.Mutation.SchedulerPolicy]
	if !ok {
		return nil, fmt.Errorf("session: unknown mutator scheduler %q", cfg.Mutation.SchedulerPolicy)
	}

	var allowed []string
	if cfg.Mutation.OnlyMutator != "" {
		allowed = []string{cfg.Mutation.OnlyMutator}
	}

	mutWorkers := make([]*mutator.Worker, cfg.Mutation.Workers)
	for i := range mutWorkers {
		workerRng := rand.New(rand.NewSource(seed + int64(i) + 1))
		mutWorkers[i] = mutator.New(mutator.Config{
			SoftQueueCap: cfg.Mutation.SoftQueueCap,
			Allowed:      allowed,
			SourceExt:    "java",
			PrintAST:     cfg.Session.PrintAST,
		}, schedFactory(workerRng), mutator.Builtin, championPQ, execQueue, registry, ws, g, logger, workerRng)
	}

	return &Controller{
		cfg: cfg, logger: logger,
		workspace: ws, registry: registry, stats: g, bugs: bugsStore,
		execQueue: execQueue, evalQueue: evalQueue, championPQ: championPQ,
		corpusMgr: mgr, scoreMode: mode,
		executors: executors, mutWorkers: mutWorkers,
		assertMode: cfg.Session.Mode == config.ModeFuzzAsserts,
		rngTime:    cfg.Corpus.RuntimeWeight,
	}, nil
}

// OnStop registers a shutdown callback, run at most once.
func (c *Controller) OnStop(fn func()) {
	c.onStopMu.Lock()
	defer c.onStopMu.Unlock()
	c.onStop = append(c.onStop, fn)
}

// LoadSeeds enumerates seedsPattern and enqueues every discovered TestCase
// for execution.
func (c *Controller) LoadSeeds(seedsPattern string) (int, error) {
	loader := seedloader.New(seedsPattern, "java", c.workspace, c.registry, c.logger)
	cases, err := loader.LoadAll()
	if err != nil {
		return 0, err
	}
	for _, tc := range cases {
		c.execQueue.TryPut(tc)
	}
	return len(cases), nil
}

// Run starts every worker goroutine and blocks until ctx is cancelled or a
// worker returns an unrecoverable error.
func (c *Controller) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, ex := range c.executors {
		ex := ex
		g.Go(func() error {
			c.runExecutor(gctx, ex)
			return nil
		})
	}

	g.Go(func() error {
		c.runEvaluator(gctx)
		return nil
	})

	for _, w := range c.mutWorkers {
		w := w
		g.Go(func() error {
			w.Run(gctx)
			return nil
		})
	}

	<-gctx.Done()
	c.shutdown()
	return g.Wait()
}

// shutdown runs every registered OnStop callback exactly once.
func (c *Controller) shutdown() {
	c.onStopMu.Lock()
	defer c.onStopMu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	for _, fn := range c.onStop {
		fn()
	}
}

func (c *Controller) runExecutor(ctx context.Context, ex *executor.Executor) {
	for {
		item, err := c.execQueue.Take(ctx)
		if err != nil {
			return
		}
		tc := item.(*testcase.TestCase)

		sourcePath := c.workspace.SourcePathOf(tc)
		outputDir := c.workspace.CaseDir(tc)
		result, err := ex.Run(ctx, tc, sourcePath, outputDir)
		if err != nil {
			c.logger.Warn("executor run failed", "case", tc.Name, "error", err)
			continue
		}
		if !result.Compilable {
			if archErr := c.workspace.ArchiveFailed(tc, "compile failure"); archErr != nil {
				c.logger.Warn("failed to archive non-compilable case", "case", tc.Name, "error", archErr)
			}
			continue
		}
		c.evalQueue.TryPut(result)
	}
}

func (c *Controller) runEvaluator(ctx context.Context) {
	for {
		item, err := c.evalQueue.Take(ctx)
		if err != nil {
			return
		}
		result := item.(*testcase.Result)
		c.evaluate(result)
	}
}

func (c *Controller) evaluate(result *testcase.Result) {
	tc := result.Case
	disposition := evaluator.Evaluate(result, c.scoreMode, c.stats, c.rngTime, c.assertMode)

	switch disposition.Verdict {
	case evaluator.VerdictArchiveInterpreterSlow, evaluator.VerdictArchiveNonCompilable:
		if err := c.workspace.ArchiveFailed(tc, disposition.Verdict.Reason()); err != nil {
			c.logger.Warn("failed to archive case", "case", tc.Name, "error", err)
		}
		return
	}

	if disposition.Verdict.IsBug() {
		c.recordBug(tc, result, disposition)
		return
	}

	tc.LatestVector = disposition.HotMethod.Vector
	tc.Fingerprint = disposition.Fingerprint
	tc.HotClass = disposition.HotMethod.ClassName
	tc.HotMethod = disposition.HotMethod.MethodName
	tc.Score = disposition.Score
	tc.InterpreterRuntimeNS = result.Interpreter.WallTime.Nanoseconds()
	tc.JITRuntimeNS = result.JIT.WallTime.Nanoseconds()

	if tc.Fingerprint == "" {
		return
	}

	outcome := c.corpusMgr.Evaluate(tc, false)
	switch outcome.Decision {
	case corpus.Accepted, corpus.Replaced:
		c.stats.RecordHotVector(tc.LatestVector)
		c.stats.RecordScore(tc.Score)
		c.stats.RecordEvaluation(tc.AppliedMutator, "improved")
		if outcome.Previous != nil {
			c.championPQ.Remove(outcome.Previous.Name)
			c.destroyCase(outcome.Previous)
		}
		for _, evicted := range outcome.Evicted {
			c.championPQ.Remove(evicted.Name)
			c.destroyCase(evicted)
		}
		c.championPQ.PushItem(tc)
	default:
		c.stats.RecordEvaluation(tc.AppliedMutator, "no-improvement")
	}
}

// destroyCase removes a TestCase evicted or replaced out of the corpus: once
// it carries no queue references, its workspace directory and registry
// entry are reclaimed.
func (c *Controller) destroyCase(tc *testcase.TestCase) {
	if err := c.workspace.DeleteCase(tc); err != nil {
		c.logger.Warn("failed to delete evicted case", "case", tc.Name, "error", err)
	}
	c.registry.Delete(tc.Name)
}

// recordBug builds a bucketizer.Signature from the diagnostic output
// available and routes the crash to the bug store.
func (c *Controller) recordBug(tc *testcase.TestCase, result *testcase.Result, disposition evaluator.Disposition) {
	diag := result.JIT.Stderr
	if diag == "" {
		diag = result.Interpreter.Stderr
	}

	sourceBytes, _ := os.ReadFile(c.workspace.SourcePathOf(tc))

	sig := bucketizer.Signature{
		Reason:               disposition.Verdict.Reason(),
		Signal:               firstLine(diag),
		ProblematicFrame:     bucketizer.NormalizeProblematicFrame(findMarkedLine(diag, "Problematic frame:")),
		CompileTask:          findMarkedLine(diag, "Compiled"),
		NativeFrames:         nativeFrames(diag),
		InterpreterExit:      result.Interpreter.ExitCode,
		JITExit:              result.JIT.ExitCode,
		NormalizedSourceHash: bucketizer.NormalizeSourceHash(string(sourceBytes)),
		Mutator:              tc.AppliedMutator,
		SeedAncestor:         tc.SeedAncestor,
	}

	bucketID := bucketizer.BucketID(sig)
	if _, err := c.bugs.RecordResult(sig, bucketID, tc.Name, ""); err != nil {
		c.logger.Warn("failed to record bug", "case", tc.Name, "error", err)
		bucketID = bucketizer.UnknownBucketID
	}
	firstObservation := c.stats.RecordBucket(bucketID)
	c.stats.RecordEvaluation(tc.AppliedMutator, "bug")
	c.logger.Info("bug recorded", "case", tc.Name, "bucket", bucketID, "first_observation", firstObservation, "reason", sig.Reason)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func findMarkedLine(s, marker string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, marker) {
			return line
		}
	}
	return ""
}

func nativeFrames(s string) []string {
	var frames []string
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 1 && trimmed[0] == '#' && trimmed[1] >= '0' && trimmed[1] <= '9' {
			frames = append(frames, bucketizer.NormalizeProblematicFrame(trimmed))
		}
		if len(frames) >= 5 {
			break
		}
	}
	return frames
}

// SnapshotTopChampions writes the top-K active champions (by score) to
// <session>/champions_snapshot.json, idempotent and at-most-once per
// Controller — intended as an OnStop callback.
func (c *Controller) SnapshotTopChampions(k int) error {
	champions := c.corpusMgr.Champions()
	sort.Slice(champions, func(i, j int) bool { return champions[i].Score > champions[j].Score })
	if k > 0 && len(champions) > k {
		champions = champions[:k]
	}

	type row struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
		Seed  string  `json:"seed_ancestor"`
	}
	rows := make([]row, len(champions))
	for i, tc := range champions {
		rows[i] = row{Name: tc.Name, Score: tc.Score, Seed: tc.SeedAncestor}
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.workspace.Root(), "champions_snapshot.json"), data, 0644)
}

// Workspace exposes the session's workspace for callers (e.g. the CLI)
// that need the session directory path for logging.
func (c *Controller) Workspace() *workspace.Workspace { return c.workspace }

// Stats exposes the session's GlobalStats, e.g. for wiring a stats.Exporter.
func (c *Controller) Stats() *stats.GlobalStats { return c.stats }
