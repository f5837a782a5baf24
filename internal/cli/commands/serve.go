package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/testide/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API",
		Long: `Start a local HTTP server exposing the workspace and its runs.

The API lets editors save version code, start and stop runs, push results
from external executors and follow run progress over server-sent events.
With --watch, edits to code files on disk are picked up automatically.`,
		Example: `  # Serve on the default port
  testide serve

  # Serve on a custom port without watching files
  testide serve --port 3000 --watch=false`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().Int("port", 0, "Port to serve on (default 8765)")
	cmd.Flags().Bool("watch", true, "Watch code files for changes")
	addEngineFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Engine:    cc.Engine,
		Workspace: cc.Workspace,
		Port:      cc.Cfg.Server.Port,
		Watch:     cc.Cfg.Server.Watch,
		Logger:    cc.Logger.With("component", "server"),
	})

	cc.Renderer.Success("Serving " + cc.Workspace.Root())
	return srv.Serve(ctx)
}
