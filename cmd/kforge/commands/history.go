package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kforge-dev/kforge/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		dbPath     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded pipeline runs",
		Long: `List runs recorded by build, validate or watch invocations that were
given a --history database.`,
		Example: `  # List the last 20 runs
  kforge history --db .kforge/history.db --limit 20

  # Machine-readable output
  kforge history --db .kforge/history.db --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newTelemetry()
			if err != nil {
				return err
			}

			store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := store.Init(ctx); err != nil {
				logger.WithError(err).Error("failed to open history store")
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tENTRY\tOUTCOME\tSTAGE\tDOCS\tDIAGS\tDURATION\tWHEN")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.Entry, r.Outcome, r.Stage,
					r.Documents, r.Diagnostics, r.Duration,
					r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", ".kforge/history.db", "SQLite database path")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}
