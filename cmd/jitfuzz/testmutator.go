package main

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jihwankim/jitfuzz/pkg/mutator"
)

var testMutatorCmd = &cobra.Command{
	Use:   "test-mutator",
	Args:  cobra.NoArgs,
	Short: "Sanity-check one or all mutators without compiling or running anything",
	Long: `test-mutator bypasses the full fuzzing pipeline: it generates a handful
of synthetic programs and repeatedly applies a mutator (or every registered
mutator) to them, reporting apply/skip/failure counts. Use this to check a
new mutator before wiring it into a real session.`,
	RunE: runTestMutator,
}

func init() {
	testMutatorCmd.Flags().Int("test-mutator-seeds", 5, "synthetic seed program count")
	testMutatorCmd.Flags().Int("test-mutator-iterations", 100, "mutation attempts per seed per mutator")
	testMutatorCmd.Flags().String("mutator", "", "restrict to one named mutator (default: all registered)")
	testMutatorCmd.Flags().Uint64("rng", 0, "RNG seed (0 = random)")
}

func runTestMutator(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	applyIntFlag(flags, "test-mutator-seeds", func(v int) { cfg.TestMutator.Seeds = v })
	applyIntFlag(flags, "test-mutator-iterations", func(v int) { cfg.TestMutator.Iterations = v })
	applyStringFlag(flags, "mutator", func(v string) { cfg.Mutation.OnlyMutator = v })
	applyUint64Flag(flags, "rng", func(v uint64) { cfg.Session.RNGSeed = v })

	seedCount := cfg.TestMutator.Seeds
	iterations := cfg.TestMutator.Iterations
	only := cfg.Mutation.OnlyMutator
	seed := cfg.Session.RNGSeed

	var allowed []string
	if only != "" {
		allowed = []string{only}
	}
	names := mutator.Builtin.Names(allowed)
	if len(names) == 0 {
		return fmt.Errorf("no mutators match %q", only)
	}

	rngSeed := int64(seed)
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(rngSeed))

	seeds := make([]mutator.Program, seedCount)
	for i := range seeds {
		seeds[i] = mutator.Program{
			SourcePath: fmt.Sprintf("synthetic-%d.java", i),
			Body:       []byte(fmt.Sprintf("class Synthetic%d { static void m() {} }", i)),
		}
	}

	type tally struct{ applied, skipped, failed int }
	results := make(map[string]*tally, len(names))
	for _, name := range names {
		results[name] = &tally{}
	}

	for _, name := range names {
		m := mutator.Builtin[name]
		t := results[name]
		for _, s := range seeds {
			program := s
			for i := 0; i < iterations; i++ {
				out, applicable, err := m.Mutate(rng, program)
				switch {
				case err != nil:
					t.failed++
				case !applicable:
					t.skipped++
				default:
					t.applied++
					program = out
				}
			}
		}
	}

	sort.Strings(names)
	for _, name := range names {
		t := results[name]
		fmt.Printf("%-24s applied=%-6d skipped=%-6d failed=%-6d\n", name, t.applied, t.skipped, t.failed)
	}
	return nil
}
