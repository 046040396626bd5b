package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kforge-dev/kforge/pkg/engine"
	"github.com/kforge-dev/kforge/pkg/pipeline"
)

func newValidateCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "validate <entry>",
		Short: "Run the full pipeline without emitting anything",
		Long: `Execute a manifest script through the full validation pipeline and
report the result without writing documents.

All stages run exactly as under build, so the exit code is the same the
build command would return. Diagnostics are printed to stderr.`,
		Example: `  # Validate a script
  kforge validate ./manifests/main.star

  # Validate with a wider project root
  kforge validate --project-root . ./manifests/main.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newTelemetry()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			p, err := newPipeline(ctx, logger, flags)
			if err != nil {
				logger.WithError(err).Error("failed to assemble pipeline")
				return &ExitError{Code: 2, Outcome: pipeline.OutcomeInvalidInput}
			}

			defer shutdownTracer(ctx, p)

			opts, err := runOptions(args[0], flags)
			if err != nil {
				logger.WithError(err).Error("invalid invocation")
				return &ExitError{Code: 2, Outcome: pipeline.OutcomeInvalidInput}
			}

			res := p.Run(ctx, opts)
			recordHistory(ctx, logger, flags.historyDB, opts.Entry, res)
			if err := reportResult(logger, res); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "%d document(s) valid\n", len(res.Documents))
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.projectRoot, "project-root", "", "project root for module containment (default: entry directory)")
	cmd.Flags().BoolVar(&flags.allowOutsideRoot, "allow-outside-root", false, "permit imports that escape the project root")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", engine.DefaultTimeout, "script execution timeout")
	cmd.Flags().StringVar(&flags.policyDir, "policy-dir", "", "directory of .rego deny policies")
	cmd.Flags().BoolVar(&flags.builtinPolicies, "builtin-policies", false, "enable the bundled deny policies")
	cmd.Flags().StringVar(&flags.historyDB, "history", "", "SQLite database path for run history")
	cmd.Flags().BoolVar(&flags.trace, "trace", false, "emit pipeline trace spans to stdout")

	return cmd
}
