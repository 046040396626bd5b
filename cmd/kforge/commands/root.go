package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kforge-dev/kforge/pkg/pipeline"
	"github.com/kforge-dev/kforge/pkg/telemetry"
)

var (
	// Global flags
	logLevel  string
	logFormat string
	verbose   bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kforge",
		Short: "kforge - typed manifest scripts compiled to validated Kubernetes YAML",
		Long: `kforge compiles Starlark manifest scripts into validated Kubernetes
manifests.

A script imports helpers, constructs builder objects, and hands them to a
single build() call. kforge executes the script in a fresh sandbox, renders
every builder, and walks the result through a strict validation pipeline:
serialization contract, resource-quantity grammar, and schema conformance.
Nothing is emitted unless every document passes every stage.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// newTelemetry builds the logger from the global flags. Metrics and tracing
// stay disabled unless a command turns them on.
func newTelemetry() (*telemetry.Logger, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = logLevel
	cfg.Logging.Format = logFormat
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return telemetry.NewLogger(cfg.Logging)
}

// ExitError carries the process exit code for an outcome so main can report
// it without cobra printing a second error.
type ExitError struct {
	Code    int
	Outcome pipeline.Outcome
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d (%s)", e.Code, e.Outcome)
}

// exitCodeFor maps the outcome taxonomy to stable process exit codes.
func exitCodeFor(outcome pipeline.Outcome) int {
	switch outcome {
	case pipeline.OutcomeSuccess:
		return 0
	case pipeline.OutcomeInvalidInput:
		return 2
	case pipeline.OutcomeCompileFailed:
		return 3
	case pipeline.OutcomeExecutionFailed:
		return 4
	case pipeline.OutcomeSchemaFetchFailed:
		return 5
	case pipeline.OutcomeContractRejected:
		return 6
	default:
		return 1
	}
}
