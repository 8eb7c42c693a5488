package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jihwankim/jitfuzz/pkg/compiler"
	"github.com/jihwankim/jitfuzz/pkg/reporting"
	"github.com/jihwankim/jitfuzz/pkg/stats"
	"github.com/jihwankim/jitfuzz/pkg/testcase"
)

type fakeClassExtractor struct{ classes []string }

func (f fakeClassExtractor) ExtractClasses(string) ([]string, error) { return f.classes, nil }

func newSuccessfulCompilerServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/compile", func(w http.ResponseWriter, r *http.Request) {
		data, _ := json.Marshal(compiler.Response{Success: true, Generated: []string{"Out.class"}})
		w.Write(data)
	})
	return httptest.NewServer(mux)
}

// writeFakeVM writes a tiny shell script standing in for the target VM:
// echoes its args then exits 0, fast enough to never hit the timeout.
func writeFakeVM(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakevm.sh")
	script := "#!/bin/sh\necho \"ran: $@\"\nexit 0\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newLogger() *reporting.Logger {
	return reporting.NewLogger(reporting.LoggerConfig{Output: io.Discard})
}

func TestExecutorRunSuccess(t *testing.T) {
	srv := newSuccessfulCompilerServer(t)
	defer srv.Close()

	c, err := compiler.New(compiler.Config{URL: srv.URL, RetryAttempts: 1})
	if err != nil {
		t.Fatal(err)
	}

	vmPath := writeFakeVM(t)
	g := stats.New()
	ex := New(Config{VMPath: vmPath, SpawnTimeout: 2 * time.Second}, c, fakeClassExtractor{classes: []string{"Foo"}}, g, newLogger())

	tc := testcase.NewSeed("seed1")
	dir := t.TempDir()

	result, err := ex.Run(context.Background(), tc, filepath.Join(dir, "seed1.java"), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Compilable {
		t.Fatal("expected compilable result")
	}
	if result.Interpreter.TimedOut || result.JIT.TimedOut {
		t.Fatal("expected neither run to time out")
	}
	if result.Interpreter.ExitCode != 0 || result.JIT.ExitCode != 0 {
		t.Fatalf("expected both exits to be 0, got interp=%d jit=%d", result.Interpreter.ExitCode, result.JIT.ExitCode)
	}
	if g.RunCount() != 0 {
		t.Fatal("executor must not touch coverage counters directly")
	}
}

func TestExecutorRunAppendsAssertFlagWhenEnabled(t *testing.T) {
	srv := newSuccessfulCompilerServer(t)
	defer srv.Close()

	c, err := compiler.New(compiler.Config{URL: srv.URL, RetryAttempts: 1})
	if err != nil {
		t.Fatal(err)
	}

	vmPath := writeFakeVM(t)
	ex := New(Config{VMPath: vmPath, SpawnTimeout: 2 * time.Second, EnableAssertions: true}, c, fakeClassExtractor{classes: []string{"Foo"}}, stats.New(), newLogger())

	tc := testcase.NewSeed("seed1")
	dir := t.TempDir()

	result, err := ex.Run(context.Background(), tc, filepath.Join(dir, "seed1.java"), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Interpreter.Stdout, AssertFlag) {
		t.Fatalf("expected interpreter spawn to include %s, got %q", AssertFlag, result.Interpreter.Stdout)
	}
	if !strings.Contains(result.JIT.Stdout, AssertFlag) {
		t.Fatalf("expected JIT spawn to include %s, got %q", AssertFlag, result.JIT.Stdout)
	}
}

func TestExecutorCompileFailureYieldsNotCompilable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/compile", func(w http.ResponseWriter, r *http.Request) {
		data, _ := json.Marshal(compiler.Response{Success: false})
		w.Write(data)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := compiler.New(compiler.Config{URL: srv.URL, RetryAttempts: 1})
	if err != nil {
		t.Fatal(err)
	}

	ex := New(Config{VMPath: "/bin/true"}, c, fakeClassExtractor{}, stats.New(), newLogger())
	tc := testcase.NewSeed("seed1")
	dir := t.TempDir()

	result, err := ex.Run(context.Background(), tc, filepath.Join(dir, "seed1.java"), dir)
	if err != nil {
		t.Fatal(err)
	}
	if result.Compilable {
		t.Fatal("expected non-compilable result for a failed compile")
	}
}

func TestExecutorSpawnTimeout(t *testing.T) {
	srv := newSuccessfulCompilerServer(t)
	defer srv.Close()
	c, err := compiler.New(compiler.Config{URL: srv.URL, RetryAttempts: 1})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	slowVM := filepath.Join(dir, "slow.sh")
	if err := os.WriteFile(slowVM, []byte("#!/bin/sh\nsleep 5\n"), 0755); err != nil {
		t.Fatal(err)
	}

	ex := New(Config{VMPath: slowVM, SpawnTimeout: 100 * time.Millisecond}, c, fakeClassExtractor{}, stats.New(), newLogger())
	tc := testcase.NewSeed("seed1")

	result, err := ex.Run(context.Background(), tc, filepath.Join(dir, "seed1.java"), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Interpreter.TimedOut {
		t.Fatal("expected interpreter run to report TimedOut")
	}
}
