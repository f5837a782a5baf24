package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/testide/internal/cli/output"
	"github.com/leapstack-labs/testide/internal/engine"
	"github.com/leapstack-labs/testide/internal/notifier"
	"github.com/leapstack-labs/testide/internal/status"
	"github.com/leapstack-labs/testide/pkg/core"
)

// RunOptions holds options for the run commands.
type RunOptions struct {
	Select     []string
	FailedOnly bool
	JSONOutput bool
}

// NewParseCommand creates the parse command.
func NewParseCommand() *cobra.Command {
	return newRunCommand(core.RunKindParse, &cobra.Command{
		Use:   "parse",
		Short: "Check versions for syntax errors",
		Long: `Parse the selected versions without executing them.

Versions whose code is unchanged since their last successful parse are not
sent again. The run aborts when any version fails to parse and lists the
position of each error.`,
		Example: `  # Parse the current version of every test
  testide parse

  # Parse specific versions
  testide parse --select add-v1,add-v2`,
	})
}

// NewDryRunCommand creates the dryrun command.
func NewDryRunCommand() *cobra.Command {
	cmd := newRunCommand(core.RunKindDry, &cobra.Command{
		Use:     "dryrun",
		Aliases: []string{"dry-run"},
		Short:   "Execute versions without side effects",
		Long: `Execute the selected versions as a dry run.

Every version is parsed first; nothing executes if any of them fails. Each
version then runs on the configured backend and its status is rolled up to
its test and file. Press Ctrl+C to stop the run: versions not yet started are
reported as stopped.`,
		Example: `  # Dry run the current version of every test
  testide dryrun

  # Rerun only the versions that failed last time
  testide dryrun --failed-only

  # Stream progress as JSON lines for CI
  testide dryrun --json`,
	})
	addEngineFlags(cmd)
	return cmd
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	cmd := newRunCommand(core.RunKindBuild, &cobra.Command{
		Use:   "build",
		Short: "Execute versions as a build run",
		Long: `Execute the selected versions as a build run.

Build runs follow the same rules as dry runs; the backend is told the run
kind and may treat builds differently.`,
		Example: `  # Build the current version of every test
  testide build

  # Build two versions four at a time
  testide build --select add-v1,sub-v3 --concurrency 4`,
	})
	addEngineFlags(cmd)
	return cmd
}

func newRunCommand(kind core.RunKind, cmd *cobra.Command) *cobra.Command {
	opts := &RunOptions{}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runRun(cmd, kind, opts)
	}
	cmd.Flags().StringSliceVarP(&opts.Select, "select", "s", nil, "Comma-separated list of version ids to run")
	cmd.Flags().BoolVar(&opts.FailedOnly, "failed-only", false, "Rerun the versions that failed in the previous run")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output as JSON lines for progress tracking")
	cmd.MarkFlagsMutuallyExclusive("select", "failed-only")

	return cmd
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().Int("concurrency", 0, "Versions executing at once (default 1)")
	cmd.Flags().Duration("unit-timeout", 0, "Time limit of a single version (0 = none)")
	cmd.Flags().Duration("stop-grace", 0, "How long running versions may finish after a stop (0 = wait)")
	cmd.Flags().Uint64("max-steps", 0, "Execution step limit of the local backend (0 = none)")
}

func runRun(cmd *cobra.Command, kind core.RunKind, opts *RunOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := cc.Engine.Controller(kind)

	// Subscribe before starting so the first events are not missed.
	var sub *notifier.Subscription
	if opts.JSONOutput {
		sub = cc.Engine.Notifier().Subscribe(kind)
		defer cc.Engine.Notifier().Unsubscribe(sub)
	}

	var run *core.Run
	if opts.FailedOnly {
		run, err = ctrl.RunFailedOnly(ctx)
	} else {
		targets := opts.Select
		if len(targets) == 0 {
			targets = cc.Workspace.CurrentVersionIDs()
		}
		run, err = ctrl.Start(targets)
	}
	switch {
	case errors.Is(err, core.ErrNothingToRerun):
		cc.Renderer.Success("No failed versions to rerun")
		return nil
	case errors.Is(err, core.ErrNoTargets):
		return fmt.Errorf("workspace has no versions to run")
	case err != nil:
		return err
	}
	cc.Logger.Debug("run started", "kind", kind, "run_id", run.ID, "targets", len(run.Targets))

	done := make(chan struct{})
	defer close(done)
	go stopOnInterrupt(ctx, done, ctrl, cc)

	if opts.JSONOutput {
		if err := streamEvents(cc.Renderer, sub, run.ID); err != nil {
			return err
		}
	}

	final, err := ctrl.Wait(context.Background())
	if err != nil {
		return err
	}
	rep, _ := ctrl.Rollup()

	if !opts.JSONOutput {
		if err := cc.Renderer.Report(rep); err != nil {
			return err
		}
	}
	return runOutcome(final, rep)
}

// stopOnInterrupt stops the run when ctx is cancelled before done closes.
func stopOnInterrupt(ctx context.Context, done <-chan struct{}, ctrl *engine.Controller, cc *CommandContext) {
	select {
	case <-done:
	case <-ctx.Done():
		cc.Renderer.Warning("Stopping run...")
		if err := ctrl.Stop(context.Background()); err != nil {
			cc.Logger.Warn("failed to stop run", "error", err)
		}
	}
}

// runOutcome turns a finished run into the command's exit status.
func runOutcome(run *core.Run, rep status.Report) error {
	if run.Phase == core.PhaseAborted {
		return fmt.Errorf("%s run %s aborted", run.Kind, run.ID)
	}
	if rep.Counts.Failed > 0 {
		return fmt.Errorf("%d of %d versions failed", rep.Counts.Failed, rep.Counts.Total)
	}
	return nil
}

// streamEvents writes one JSON line per event of run runID until it ends.
func streamEvents(r *output.Renderer, sub *notifier.Subscription, runID string) error {
	for ev := range sub.C {
		if ev.RunID != runID {
			continue
		}
		for _, line := range eventLines(ev) {
			if err := r.JSONLine(line); err != nil {
				return err
			}
		}
		if ev.Terminal() {
			return nil
		}
	}
	return nil
}

func eventLines(ev notifier.Event) []output.RunEvent {
	base := output.RunEvent{Event: string(ev.Type), RunID: ev.RunID, Kind: ev.Kind}
	if ev.Run != nil {
		base.Phase = ev.Run.Phase
	}

	switch ev.Type {
	case notifier.EventRunStarted:
		base.Targets = ev.Run.Targets
		return []output.RunEvent{base}

	case notifier.EventUnitUpdated:
		// A parse run settles every unit in one event.
		ids := []string{ev.VersionID}
		if ev.VersionID == "" {
			ids = ev.Run.Targets
		}
		lines := make([]output.RunEvent, 0, len(ids))
		for _, id := range ids {
			u, ok := ev.Run.Units[id]
			if !ok {
				continue
			}
			line := base
			line.VersionID = id
			line.Status = u.Status
			line.ElapsedMS = u.TimeTakenMS
			line.Error = u.Error
			lines = append(lines, line)
		}
		return lines

	case notifier.EventRunCompleted, notifier.EventRunAborted:
		base.Error = ev.Run.Error
		if ev.Report != nil {
			base.Status = ev.Report.Status
			base.ElapsedMS = ev.Report.ElapsedMS
			base.Passed = ev.Report.Counts.Passed
			base.Failed = ev.Report.Counts.Failed
			base.Total = ev.Report.Counts.Total
		}
		return []output.RunEvent{base}

	default:
		return []output.RunEvent{base}
	}
}
