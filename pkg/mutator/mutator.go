// Package mutator defines the Mutator contract and the handful of
// reference mutators used for wiring and testing. The real syntactic
// mutators and the source-level parser/pretty-printer are external
// collaborators; a Mutator here is the pure-function contract the engine
// requires of them — a (possibly trivial) AST in, a (possibly empty) AST
// out.
package mutator

import (
	"bytes"
	"fmt"
	"math/rand"
)

// Program is the minimal parsed-source placeholder the engine threads
// through mutators. Body is opaque pretty-printed source text; a real
// mutator implementation would instead hold a proper AST node.
type Program struct {
	SourcePath string
	Body       []byte
}

// Mutator is a pure function from one Program to a possibly-empty new one.
// Applicable reports whether the mutator had anything to do; when false,
// Body is unspecified and must not be written to the workspace.
type Mutator interface {
	Name() string
	Mutate(rng *rand.Rand, p Program) (out Program, applicable bool, err error)
}

// Registry is a name -> Mutator lookup table, mirroring the scoring and
// corpus package's tagged-variant pattern.
type Registry map[string]Mutator

// Builtin holds the mutators registered at init time.
var Builtin = Registry{}

func register(m Mutator) {
	Builtin[m.Name()] = m
}

// Names returns the registered mutator names, restricted to allowed if it
// is non-empty (the --mutator flag's single-name restriction is just
// allowed=[]string{name}).
func (r Registry) Names(allowed []string) []string {
	if len(allowed) > 0 {
		names := make([]string, 0, len(allowed))
		for _, n := range allowed {
			if _, ok := r[n]; ok {
				names = append(names, n)
			}
		}
		return names
	}
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	return names
}

func init() {
	register(identifierRenameMutator{})
	register(statementDuplicateMutator{})
	register(deadBranchMutator{})
}

// identifierRenameMutator appends a "// rename-salt:N" comment line with a
// fresh random N, the cheapest possible semantics-preserving perturbation
// that still changes the source hash. It does not rename any identifier in
// the program body.
type identifierRenameMutator struct{}

func (identifierRenameMutator) Name() string { return "identifier-rename" }

func (m identifierRenameMutator) Mutate(rng *rand.Rand, p Program) (Program, bool, error) {
	if len(p.Body) == 0 {
		return Program{}, false, nil
	}
	suffix := rng.Intn(100000)
	out := append([]byte{}, p.Body...)
	out = append(out, []byte(fmt.Sprintf("\n// rename-salt:%d\n", suffix))...)
	return Program{SourcePath: p.SourcePath, Body: out}, true, nil
}

// statementDuplicateMutator duplicates the program body's last line,
// standing in for a real "duplicate a random statement" AST transform.
type statementDuplicateMutator struct{}

func (statementDuplicateMutator) Name() string { return "statement-duplicate" }

func (m statementDuplicateMutator) Mutate(rng *rand.Rand, p Program) (Program, bool, error) {
	if len(p.Body) == 0 {
		return Program{}, false, nil
	}
	body := bytes.TrimRight(p.Body, "\n")
	last := body[bytes.LastIndexByte(body, '\n')+1:]
	out := append([]byte{}, p.Body...)
	if out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, last...)
	out = append(out, '\n')
	return Program{SourcePath: p.SourcePath, Body: out}, true, nil
}

// deadBranchMutator injects an always-false branch around a no-op,
// standing in for a real dead-code-insertion AST transform. It is a
// reference implementation, never applicable to an empty program.
type deadBranchMutator struct{}

func (deadBranchMutator) Name() string { return "dead-branch" }

func (m deadBranchMutator) Mutate(rng *rand.Rand, p Program) (Program, bool, error) {
	if len(p.Body) == 0 {
		return Program{}, false, nil
	}
	out := append([]byte{}, p.Body...)
	out = append(out, []byte(fmt.Sprintf("\nif (false) { int deadBranch%d = 0; }\n", rng.Intn(1<<20)))...)
	return Program{SourcePath: p.SourcePath, Body: out}, true, nil
}
