package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jihwankim/jitfuzz/pkg/compiler"
	"github.com/jihwankim/jitfuzz/pkg/config"
	"github.com/jihwankim/jitfuzz/pkg/mutator"
	"github.com/jihwankim/jitfuzz/pkg/optvector"
	"github.com/jihwankim/jitfuzz/pkg/reporting"
	"github.com/jihwankim/jitfuzz/pkg/session"
	"github.com/jihwankim/jitfuzz/pkg/stats"
)

var fuzzCmd = &cobra.Command{
	Use:   "fuzz",
	Args:  cobra.NoArgs,
	Short: "Run a feedback-driven fuzzing session",
	Long: `fuzz loads seed programs, then repeatedly mutates corpus champions,
compiles and runs each mutated program twice (interpreter-only and
JIT-enabled), and evaluates the divergence between the two runs to find
bugs while steering the corpus toward novel JIT optimization decisions.

Examples:
  jitfuzz fuzz --seeds ./corpus --mode fuzz
  jitfuzz fuzz --seeds './corpus/**/*.java' --executors 8 --scoring pfidf
  jitfuzz fuzz --seeds ./corpus --mode fuzz-asserts --jdk /opt/debug-jdk/bin`,
	RunE: runFuzz,
}

func init() {
	fuzzCmd.Flags().String("seeds", "", "seed directory or doublestar glob (required)")
	fuzzCmd.Flags().String("mode", "fuzz", "fuzz|fuzz-asserts")
	fuzzCmd.Flags().Int("executors", 4, "executor pool size")
	fuzzCmd.Flags().Int("mutation-workers", 2, "mutation worker pool size")
	fuzzCmd.Flags().Uint64("rng", 0, "top-level RNG seed (0 = random)")
	fuzzCmd.Flags().String("scoring", "pfidf", "scoring mode")
	fuzzCmd.Flags().String("corpus-policy", "champion", "champion|random")
	fuzzCmd.Flags().Int("corpus-capacity", 200, "corpus capacity")
	fuzzCmd.Flags().String("mutator-policy", "uniform", "uniform|bandit|mop")
	fuzzCmd.Flags().String("log-level", "info", "debug|info|warn|error")
	fuzzCmd.Flags().String("log-format", "text", "text|json")
	fuzzCmd.Flags().String("jdk", "", "instrumented VM bin directory")
	fuzzCmd.Flags().String("debug-jdk", "", "assert-enabled VM bin directory (fuzz-asserts mode)")
	fuzzCmd.Flags().Bool("print-ast", false, "log each mutated program at debug level before it is queued")
	fuzzCmd.Flags().String("mutator", "", "restrict mutation to one named mutator")
	fuzzCmd.Flags().String("compiler-url", "http://127.0.0.1:8787", "compiler service URL")
	fuzzCmd.Flags().Duration("exec-timeout", 15*time.Second, "per-spawn VM timeout")
	fuzzCmd.Flags().Int("queue-soft-cap", 100, "mutation worker backpressure threshold")
	fuzzCmd.Flags().String("metrics-addr", "", "Prometheus /metrics bind address (empty = disabled)")
	fuzzCmd.Flags().Int("top-k", 20, "champions kept in the shutdown snapshot")
}

func runFuzz(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Flags only override cfg (file + JITFUZZ_* env + defaults, already
	// merged by loadConfig) when the operator actually passed them —
	// otherwise an unset flag's zero-value default would always win over
	// an env var or config file setting.
	applyStringFlag(flags, "seeds", func(v string) { cfg.Session.SeedsDir = v })
	if cfg.Session.SeedsDir == "" {
		return fmt.Errorf("--seeds is required")
	}
	applyStringFlag(flags, "mode", func(v string) { cfg.Session.Mode = config.Mode(v) })
	applyIntFlag(flags, "executors", func(v int) { cfg.Execution.Executors = v })
	applyIntFlag(flags, "mutation-workers", func(v int) { cfg.Mutation.Workers = v })
	applyUint64Flag(flags, "rng", func(v uint64) { cfg.Session.RNGSeed = v })
	applyStringFlag(flags, "scoring", func(v string) { cfg.Corpus.ScoringMode = v })
	applyStringFlag(flags, "corpus-policy", func(v string) { cfg.Corpus.Policy = v })
	applyIntFlag(flags, "corpus-capacity", func(v int) { cfg.Corpus.Capacity = v })
	applyStringFlag(flags, "mutator-policy", func(v string) { cfg.Mutation.SchedulerPolicy = v })
	applyStringFlag(flags, "log-level", func(v string) { cfg.Session.LogLevel = v })
	applyStringFlag(flags, "log-format", func(v string) { cfg.Session.LogFormat = v })
	applyStringFlag(flags, "jdk", func(v string) { cfg.VM.JDKBinDir = v })
	applyStringFlag(flags, "debug-jdk", func(v string) { cfg.VM.DebugJDKBinDir = v })
	applyBoolFlag(flags, "print-ast", func(v bool) { cfg.Session.PrintAST = v })
	applyStringFlag(flags, "mutator", func(v string) { cfg.Mutation.OnlyMutator = v })
	applyStringFlag(flags, "compiler-url", func(v string) { cfg.Compiler.URL = v })
	applyDurationFlag(flags, "exec-timeout", func(v time.Duration) { cfg.Execution.SpawnTimeout = v })
	applyIntFlag(flags, "queue-soft-cap", func(v int) { cfg.Mutation.SoftQueueCap = v })
	applyStringFlag(flags, "metrics-addr", func(v string) { cfg.Reporting.MetricsAddr = v })

	topK, _ := flags.GetInt("top-k")

	if cfg.Session.Mode == config.ModeFuzzAsserts && cfg.VM.DebugJDKBinDir != "" {
		cfg.VM.JDKBinDir = cfg.VM.DebugJDKBinDir
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	effectiveLevel := reporting.LogLevel(cfg.Session.LogLevel)
	if verbose {
		effectiveLevel = reporting.LogLevelDebug
	}
	logger := reporting.NewLogger(reporting.LoggerConfig{
		Level:  effectiveLevel,
		Format: reporting.LogFormat(cfg.Session.LogFormat),
		Output: os.Stdout,
	})

	if err := waitForCompiler(cfg.Compiler.URL, cfg.Compiler.RequestTimeout); err != nil {
		return fmt.Errorf("compiler service not reachable: %w", err)
	}

	ctrl, err := session.New(cfg, regexClassExtractor{}, logger)
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}

	n, err := ctrl.LoadSeeds(cfg.Session.SeedsDir)
	if err != nil {
		return fmt.Errorf("load seeds: %w", err)
	}
	logger.Info("seeds loaded", "count", n)

	var exporter *stats.Exporter
	if cfg.Reporting.MetricsAddr != "" {
		exporter = stats.NewExporter(ctrl.Stats())
		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter.Handler())
		srv := &http.Server{Addr: cfg.Reporting.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		go refreshExporterLoop(exporter)
	}

	ctrl.OnStop(func() {
		if err := ctrl.SnapshotTopChampions(topK); err != nil {
			logger.Warn("failed to write champion snapshot", "error", err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("session starting", "workspace", ctrl.Workspace().Root())
	return ctrl.Run(ctx)
}

// waitForCompiler polls the compiler service's health endpoint, showing a
// spinner rather than a bare blocking wait.
func waitForCompiler(url string, timeout time.Duration) error {
	client, err := compiler.New(compiler.Config{URL: url, RequestTimeout: timeout})
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " waiting for compiler service..."
	s.Start()
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for {
		err := client.Health(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// applyStringFlag/applyIntFlag/applyBoolFlag/applyUint64Flag/applyDurationFlag
// call set with a flag's value only when the operator explicitly passed it,
// letting an unset flag fall through to whatever loadConfig already
// resolved from the config file or a JITFUZZ_* environment variable.
func applyStringFlag(flags *pflag.FlagSet, name string, set func(string)) {
	if flags.Changed(name) {
		v, _ := flags.GetString(name)
		set(v)
	}
}

func applyIntFlag(flags *pflag.FlagSet, name string, set func(int)) {
	if flags.Changed(name) {
		v, _ := flags.GetInt(name)
		set(v)
	}
}

func applyBoolFlag(flags *pflag.FlagSet, name string, set func(bool)) {
	if flags.Changed(name) {
		v, _ := flags.GetBool(name)
		set(v)
	}
}

func applyUint64Flag(flags *pflag.FlagSet, name string, set func(uint64)) {
	if flags.Changed(name) {
		v, _ := flags.GetUint64(name)
		set(v)
	}
}

func applyDurationFlag(flags *pflag.FlagSet, name string, set func(time.Duration)) {
	if flags.Changed(name) {
		v, _ := flags.GetDuration(name)
		set(v)
	}
}

func refreshExporterLoop(e *stats.Exporter) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	mutatorNames := mutator.Builtin.Names(nil)
	for range ticker.C {
		e.RefreshFeatureGauges(optvector.Features)
		e.RefreshMutatorGauges(mutatorNames)
	}
}
