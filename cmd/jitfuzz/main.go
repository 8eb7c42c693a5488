package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev" // set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "jitfuzz",
	Short: "Feedback-driven grey-box fuzzer for a JIT compiler",
	Long: `jitfuzz mutates seed programs, compiles and runs each one twice
(interpreter-only and JIT-enabled), and uses the divergence between the two
runs to find miscompilations while using JIT optimization-decision coverage
to steer which mutated programs stay in the corpus.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./jitfuzz.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose (debug) logging")

	rootCmd.AddCommand(fuzzCmd)
	rootCmd.AddCommand(testMutatorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
