package mutator

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jihwankim/jitfuzz/pkg/queue"
	"github.com/jihwankim/jitfuzz/pkg/reporting"
	"github.com/jihwankim/jitfuzz/pkg/stats"
	"github.com/jihwankim/jitfuzz/pkg/testcase"
)

func TestBuiltinMutatorsRegistered(t *testing.T) {
	for _, name := range []string{"identifier-rename", "statement-duplicate", "dead-branch"} {
		if _, ok := Builtin[name]; !ok {
			t.Fatalf("expected %q to be registered", name)
		}
	}
}

func TestMutatorsNotApplicableOnEmptyBody(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for name, m := range Builtin {
		_, applicable, err := m.Mutate(rng, Program{Body: nil})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if applicable {
			t.Fatalf("%s: expected not applicable on empty body", name)
		}
	}
}

func TestUniformSchedulerPicksFromCandidates(t *testing.T) {
	s := &uniformScheduler{rng: rand.New(rand.NewSource(1))}
	g := stats.New()
	names := []string{"a", "b", "c"}
	for i := 0; i < 20; i++ {
		pick := s.Pick(names, g)
		found := false
		for _, n := range names {
			if n == pick {
				found = true
			}
		}
		if !found {
			t.Fatalf("picked %q not in candidate set", pick)
		}
	}
}

func TestBanditSchedulerExploresUnseenArmsFirst(t *testing.T) {
	s := &banditScheduler{rng: rand.New(rand.NewSource(1))}
	g := stats.New()
	g.RecordMutationAttempt("a", "success")
	g.RecordEvaluation("a", "improved")

	pick := s.Pick([]string{"a", "b"}, g)
	if pick != "b" {
		t.Fatalf("expected unseen arm 'b' to be explored first, got %q", pick)
	}
}

func TestBanditSchedulerPrefersHigherRewardArm(t *testing.T) {
	s := &banditScheduler{rng: rand.New(rand.NewSource(1))}
	g := stats.New()
	for i := 0; i < 50; i++ {
		g.RecordMutationAttempt("good", "success")
		g.RecordEvaluation("good", "improved")
		g.RecordMutationAttempt("bad", "success")
		g.RecordEvaluation("bad", "no-improvement")
	}
	pick := s.Pick([]string{"good", "bad"}, g)
	if pick != "good" {
		t.Fatalf("expected bandit to prefer the higher-reward arm, got %q", pick)
	}
}

func TestMOPSchedulerWeightsBySuccessRate(t *testing.T) {
	s := &mopScheduler{rng: rand.New(rand.NewSource(1))}
	g := stats.New()
	for i := 0; i < 50; i++ {
		g.RecordMutationAttempt("productive", "success")
		g.RecordEvaluation("productive", "bug")
	}
	g.RecordMutationAttempt("unproductive", "success")
	g.RecordEvaluation("unproductive", "no-improvement")

	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		counts[s.Pick([]string{"productive", "unproductive"}, g)]++
	}
	if counts["productive"] <= counts["unproductive"] {
		t.Fatalf("expected productive mutator picked more often, got %v", counts)
	}
}

// fakeWriter is an in-memory SourceWriter/PathResolver double.
type fakeWriter struct {
	mu    sync.Mutex
	dir   string
	paths map[string]string
}

func newFakeWriter(dir string) *fakeWriter {
	return &fakeWriter{dir: dir, paths: map[string]string{}}
}

func (f *fakeWriter) WriteSource(tc *testcase.TestCase, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := filepath.Join(f.dir, tc.Name+".java")
	if err := os.WriteFile(path, body, 0644); err != nil {
		return "", err
	}
	f.paths[tc.Name] = path
	return path, nil
}

func (f *fakeWriter) SourcePathOf(tc *testcase.TestCase) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paths[tc.Name]
}

type fakeExecQueue struct {
	mu    sync.Mutex
	items []interface{}
}

func (q *fakeExecQueue) TryPut(item interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return true
}

func (q *fakeExecQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func TestWorkerStepProducesChildAndRequeuesParent(t *testing.T) {
	dir := t.TempDir()
	writer := newFakeWriter(dir)

	parent := testcase.NewSeed("seed1")
	parent.ActiveChampion = true
	parent.Score = 10
	if _, err := writer.WriteSource(parent, []byte("class Seed1 {}")); err != nil {
		t.Fatal(err)
	}

	champions := queue.NewPriority()
	champions.PushItem(parent)
	execQueue := &fakeExecQueue{}
	registry := testcase.NewRegistry()
	registry.Put(parent)

	g := stats.New()
	logger := reporting.NewLogger(reporting.LoggerConfig{Output: os.Stderr})
	rng := rand.New(rand.NewSource(1))
	scheduler := &uniformScheduler{rng: rng}

	w := New(Config{SourceExt: "java"}, scheduler, Builtin, champions, execQueue, registry, writer, g, logger, rng)

	if !w.step(context.Background()) {
		t.Fatal("expected step to process the available champion")
	}

	if execQueue.Len() != 1 {
		t.Fatalf("expected 1 child enqueued, got %d", execQueue.Len())
	}
	if parent.TimesSelected != 1 {
		t.Fatalf("expected parent TimesSelected incremented, got %d", parent.TimesSelected)
	}
	if !champions.Contains(parent.Name) {
		t.Fatal("expected still-active parent to be re-pushed onto the champion queue")
	}
	if registry.Len() != 2 {
		t.Fatalf("expected registry to grow by one child, got %d", registry.Len())
	}
}

func TestWorkerStepSkipsWhenParentNotActive(t *testing.T) {
	dir := t.TempDir()
	writer := newFakeWriter(dir)

	parent := testcase.NewSeed("seed1")
	parent.ActiveChampion = false
	if _, err := writer.WriteSource(parent, []byte("class Seed1 {}")); err != nil {
		t.Fatal(err)
	}

	champions := queue.NewPriority()
	champions.PushItem(parent)
	execQueue := &fakeExecQueue{}
	registry := testcase.NewRegistry()
	registry.Put(parent)

	g := stats.New()
	logger := reporting.NewLogger(reporting.LoggerConfig{Output: os.Stderr})
	rng := rand.New(rand.NewSource(2))
	scheduler := &uniformScheduler{rng: rng}

	w := New(Config{}, scheduler, Builtin, champions, execQueue, registry, writer, g, logger, rng)
	w.step(context.Background())

	if champions.Contains(parent.Name) {
		t.Fatal("a parent no longer an active champion must not be re-pushed")
	}
}

func TestWorkerEnqueueBackpressureRetriesUnderSoftCap(t *testing.T) {
	dir := t.TempDir()
	writer := newFakeWriter(dir)
	execQueue := &fakeExecQueue{items: make([]interface{}, 5)}

	g := stats.New()
	logger := reporting.NewLogger(reporting.LoggerConfig{Output: os.Stderr})
	rng := rand.New(rand.NewSource(3))
	scheduler := &uniformScheduler{rng: rng}
	champions := queue.NewPriority()
	registry := testcase.NewRegistry()

	w := New(Config{SoftQueueCap: 5, BackoffInterval: time.Millisecond}, scheduler, Builtin, champions, execQueue, registry, writer, g, logger, rng)

	child := testcase.NewSeed("child1")
	done := make(chan struct{})
	go func() {
		w.enqueueWithBackpressure(context.Background(), child)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	execQueue.mu.Lock()
	execQueue.items = execQueue.items[:2] // drop below soft cap
	execQueue.mu.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected enqueueWithBackpressure to succeed once below soft cap")
	}
}

func ExampleRegistry_Names() {
	r := Registry{"a": nil, "b": nil}
	fmt.Println(len(r.Names(nil)))
	// Output: 2
}
