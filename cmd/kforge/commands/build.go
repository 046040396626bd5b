package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kforge-dev/kforge/pkg/emit"
	"github.com/kforge-dev/kforge/pkg/engine"
	"github.com/kforge-dev/kforge/pkg/pipeline"
)

func newBuildCommand() *cobra.Command {
	var (
		flags  runFlags
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "build <entry>",
		Short: "Compile a manifest script and emit validated documents",
		Long: `Execute a manifest script through the full pipeline and emit the
resulting documents.

The entry script runs in a fresh sandbox, its builders are rendered, and
every document passes through the strict serialization contract, the
resource-quantity grammar, and schema validation. Documents are emitted
only when the whole set is valid.

Exit codes:
  0  every document valid, output emitted
  2  invalid invocation (bad flags, missing entry)
  3  a module failed to compile
  4  resolution, import-graph or script failure
  6  one or more validators produced diagnostics`,
		Example: `  # Build to stdout as YAML
  kforge build ./manifests/main.star

  # Build to a file as JSON
  kforge build --format json --output out.json ./manifests/main.star

  # Build with deny policies
  kforge build --builtin-policies --policy-dir ./policies ./manifests/main.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newTelemetry()
			if err != nil {
				return err
			}

			emitFormat, err := emit.ParseFormat(format)
			if err != nil {
				return &ExitError{Code: 2, Outcome: pipeline.OutcomeInvalidInput}
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

			var w io.Writer = os.Stdout
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					logger.WithError(err).Error("failed to create output file")
					return &ExitError{Code: 2, Outcome: pipeline.OutcomeInvalidInput}
				}
				defer file.Close()
				w = file
			}

			docs := make([]map[string]interface{}, len(res.Documents))
			for i, d := range res.Documents {
				docs[i] = d.Value
			}
			if err := emit.Write(w, docs, emitFormat); err != nil {
				return fmt.Errorf("failed to emit documents: %w", err)
			}
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
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format (yaml, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	return cmd
}
