package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/testide/internal/backend"
	"github.com/leapstack-labs/testide/internal/backend/local"
	"github.com/leapstack-labs/testide/internal/backend/remote"
	"github.com/leapstack-labs/testide/internal/cli/config"
	"github.com/leapstack-labs/testide/internal/cli/output"
	sharedcfg "github.com/leapstack-labs/testide/internal/config"
	"github.com/leapstack-labs/testide/internal/engine"
	"github.com/leapstack-labs/testide/internal/notifier"
	"github.com/leapstack-labs/testide/internal/saves"
	"github.com/leapstack-labs/testide/internal/state"
	"github.com/leapstack-labs/testide/internal/workspace"
)

// notifierBuffer is sized so progress printers see every unit event of
// typical runs.
const notifierBuffer = 256

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg       *config.Config
	Logger    *slog.Logger
	Workspace *workspace.Workspace
	Store     *state.SQLiteStore
	Engine    *engine.Engine
	Renderer  *output.Renderer
}

// NewCommandContext loads the workspace, opens the run history and creates
// the engine. Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	ws, err := loadWorkspace(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	be, err := createBackend(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(engine.Config{
		Tree:        ws.Tree(),
		Parser:      be,
		Executor:    be,
		Saves:       ws.Saves(),
		Notifier:    notifier.New(notifierBuffer),
		Store:       store,
		Concurrency: cfg.Engine.Concurrency,
		UnitTimeout: cfg.Engine.UnitTimeout,
		StopGrace:   cfg.Engine.StopGrace,
		Logger:      logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		eng.Close()
		_ = store.Close()
	}

	return &CommandContext{
		Cfg:       cfg,
		Logger:    logger,
		Workspace: ws,
		Store:     store,
		Engine:    eng,
		Renderer:  newRenderer(cmd, cfg),
	}, cleanup, nil
}

func newRenderer(cmd *cobra.Command, cfg *config.Config) *output.Renderer {
	return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
}

func loadWorkspace(cfg *config.Config, logger *slog.Logger) (*workspace.Workspace, error) {
	if err := cfg.ValidateWorkspace(); err != nil {
		return nil, err
	}
	return workspace.Load(workspace.Config{
		Dir:    cfg.Workspace,
		Saves:  saves.NewTracker(),
		Logger: logger.With("component", "workspace"),
	})
}

func createBackend(cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
	switch cfg.Backend.Type {
	case sharedcfg.BackendRemote:
		client, err := remote.New(remote.Config{
			URL:     cfg.Backend.URL,
			Timeout: cfg.Backend.Timeout,
			Logger:  logger.With("component", "backend"),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case sharedcfg.BackendLocal, "":
		return local.New(local.Config{
			MaxSteps: cfg.Engine.MaxSteps,
			Logger:   logger.With("component", "backend"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend.Type)
	}
}

// openStore opens and migrates the run history database.
func openStore(cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	if cfg.StatePath != ":memory:" {
		stateDir := filepath.Dir(cfg.StatePath)
		if stateDir != "." && stateDir != "" {
			if err := os.MkdirAll(stateDir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	store := state.NewSQLiteStore(logger.With("component", "state"))
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}
	return store, nil
}
