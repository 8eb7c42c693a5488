package mutator

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/jihwankim/jitfuzz/pkg/queue"
	"github.com/jihwankim/jitfuzz/pkg/reporting"
	"github.com/jihwankim/jitfuzz/pkg/stats"
	"github.com/jihwankim/jitfuzz/pkg/testcase"
)

// SourceWriter persists a child TestCase's pretty-printed source under the
// workspace layout, returning the path the Executor should compile.
type SourceWriter interface {
	WriteSource(tc *testcase.TestCase, body []byte) (path string, err error)
	SourcePathOf(tc *testcase.TestCase) string
}

// ExecQueue is the subset of queue.FIFO the worker needs — narrowed to an
// interface so tests can swap in a trivial fake.
type ExecQueue interface {
	TryPut(item interface{}) bool
	Len() int
}

// Config configures a Worker.
type Config struct {
	SoftQueueCap    int // default 100; Put backs off and retries above this
	BackoffInterval time.Duration
	Allowed         []string // restrict to these mutator names; empty = all registered
	SourceExt       string   // e.g. "java"
	PrintAST        bool     // debug aid: log each mutated program body before enqueueing
}

// Worker is one Mutation Worker pool member: pop a champion, mutate it,
// enqueue the child for execution, requeue the parent.
type Worker struct {
	cfg       Config
	scheduler Scheduler
	mutators  Registry
	champions *queue.Priority
	execQueue ExecQueue
	registry  *testcase.Registry
	writer    SourceWriter
	stats     *stats.GlobalStats
	logger    *reporting.Logger
	rng       *rand.Rand
}

// New constructs a Worker. mutators defaults to Builtin if nil.
func New(cfg Config, scheduler Scheduler, mutators Registry, champions *queue.Priority, execQueue ExecQueue, registry *testcase.Registry, writer SourceWriter, g *stats.GlobalStats, logger *reporting.Logger, rng *rand.Rand) *Worker {
	if cfg.SoftQueueCap == 0 {
		cfg.SoftQueueCap = 100
	}
	if cfg.BackoffInterval == 0 {
		cfg.BackoffInterval = 10 * time.Millisecond
	}
	if mutators == nil {
		mutators = Builtin
	}
	return &Worker{
		cfg: cfg, scheduler: scheduler, mutators: mutators,
		champions: champions, execQueue: execQueue, registry: registry,
		writer: writer, stats: g, logger: logger, rng: rng,
	}
}

// Run loops until ctx is cancelled, processing one champion per iteration.
// When the queue is momentarily empty it waits a short interval rather than
// busy-spinning.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !w.step(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.BackoffInterval):
			}
		}
	}
}

// step processes one champion, if available, returning false if the
// champion queue was empty (caller should back off).
func (w *Worker) step(ctx context.Context) bool {
	item, ok := w.champions.PopHighest()
	if !ok {
		return false
	}
	parent := item.(*testcase.TestCase)

	names := w.mutators.Names(w.cfg.Allowed)
	if len(names) == 0 {
		w.logger.Warn("no mutators registered or allowed, skipping")
		return true
	}
	name := w.scheduler.Pick(names, w.stats)
	m := w.mutators[name]

	parentPath := w.writer.SourcePathOf(parent)
	body, err := os.ReadFile(parentPath)
	if err != nil {
		w.logger.Warn("failed to read parent source", "case", parent.Name, "error", err)
		w.markSelectedAndRequeue(parent)
		return true
	}

	out, applicable, err := m.Mutate(w.rng, Program{SourcePath: parentPath, Body: body})
	if err != nil {
		w.stats.RecordMutationAttempt(name, "failure")
		w.markSelectedAndRequeue(parent)
		return true
	}
	if !applicable {
		w.stats.RecordMutationAttempt(name, "skip")
		w.markSelectedAndRequeue(parent)
		return true
	}

	childName := testcase.ChildName(parent.SeedAncestor, parent.MutationDepth+1, name)
	child := testcase.NewChild(parent, childName, name)

	if _, err := w.writer.WriteSource(child, out.Body); err != nil {
		w.stats.RecordMutationAttempt(name, "failure")
		w.markSelectedAndRequeue(parent)
		return true
	}

	if w.cfg.PrintAST {
		w.logger.Debug("mutated program", "case", child.Name, "mutator", name, "source", string(out.Body))
	}

	w.registry.Put(child)
	w.enqueueWithBackpressure(ctx, child)
	w.stats.RecordMutationAttempt(name, "success")
	w.markSelectedAndRequeue(parent)
	return true
}

// enqueueWithBackpressure pushes child onto the execution queue, sleeping
// and retrying rather than dropping the case when the queue exceeds its
// soft cap.
func (w *Worker) enqueueWithBackpressure(ctx context.Context, child *testcase.TestCase) {
	for {
		if w.execQueue.Len() < w.cfg.SoftQueueCap {
			if w.execQueue.TryPut(child) {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.BackoffInterval):
		}
	}
}

func (w *Worker) markSelectedAndRequeue(parent *testcase.TestCase) {
	parent.MarkSelected()
	if parent.ActiveChampion {
		w.champions.PushItem(parent)
	}
}
