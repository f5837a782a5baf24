package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/testide/internal/cli/config"
	"github.com/leapstack-labs/testide/pkg/core"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Kind  string
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `List finished runs from the run history database, newest first.

Every completed or aborted run is recorded. --failed-only reruns use the
latest recorded run when no run happened in the current process.`,
		Example: `  # Last 20 runs of any kind
  testide history

  # Last 5 dry runs as JSON
  testide history --kind dry_run --limit 5 -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "Only show runs of this kind (parse|dry_run|build_run)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to show")
	_ = cmd.RegisterFlagCompletionFunc("kind", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(core.RunKindParse), string(core.RunKindDry), string(core.RunKindBuild)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	cfg := config.GetConfig(cmd.Context())

	var kind core.RunKind
	if opts.Kind != "" {
		k, err := core.ParseRunKind(opts.Kind)
		if err != nil {
			return err
		}
		kind = k
	}

	store, err := openStore(cfg, config.GetLogger(cmd.Context()))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(cmd.Context(), kind, opts.Limit)
	if err != nil {
		return err
	}
	return newRenderer(cmd, cfg).History(runs)
}
