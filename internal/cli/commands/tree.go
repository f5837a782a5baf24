package commands

import (
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/testide/internal/cli/config"
	"github.com/leapstack-labs/testide/internal/cli/output"
	"github.com/leapstack-labs/testide/internal/workspace"
)

// treeVersion is the JSON shape of one listed version.
type treeVersion struct {
	File    string `json:"file"`
	Test    string `json:"test"`
	Version string `json:"version"`
	Name    string `json:"name"`
	Current bool   `json:"current"`
	Path    string `json:"path"`
}

// NewTreeCommand creates the tree command.
func NewTreeCommand() *cobra.Command {
	var currentOnly bool

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "List the files, tests and versions of the workspace",
		Long: `List every version of the workspace with its test, file and code path.

The version ids shown are the ones accepted by --select.`,
		Example: `  # List all versions
  testide tree

  # Only the current version of each test
  testide tree --current`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetConfig(cmd.Context())
			ws, err := loadWorkspace(cfg, config.GetLogger(cmd.Context()))
			if err != nil {
				return err
			}
			return renderTree(newRenderer(cmd, cfg), ws, currentOnly)
		},
	}

	cmd.Flags().BoolVar(&currentOnly, "current", false, "Only list the current version of each test")
	return cmd
}

func listVersions(ws *workspace.Workspace, currentOnly bool) []treeVersion {
	tr := ws.Tree()
	var out []treeVersion
	for _, f := range tr.Files() {
		for _, test := range tr.Tests(f.ID) {
			for _, v := range tr.Versions(test.ID) {
				if currentOnly && !v.IsCurrent {
					continue
				}
				path, _ := ws.CodePath(v.ID)
				if rel, err := filepath.Rel(ws.Root(), path); err == nil {
					path = rel
				}
				out = append(out, treeVersion{
					File:    f.Name,
					Test:    test.Name,
					Version: v.ID,
					Name:    v.Name,
					Current: v.IsCurrent,
					Path:    path,
				})
			}
		}
	}
	return out
}

func renderTree(r *output.Renderer, ws *workspace.Workspace, currentOnly bool) error {
	versions := listVersions(ws, currentOnly)
	if r.EffectiveMode() == output.ModeJSON {
		if versions == nil {
			versions = []treeVersion{}
		}
		return r.JSON(versions)
	}
	if len(versions) == 0 {
		r.Muted("Workspace has no versions")
		return nil
	}

	rows := make([]table.Row, 0, len(versions))
	for _, v := range versions {
		current := ""
		if v.Current {
			current = "*"
		}
		rows = append(rows, table.Row{v.File, v.Test, v.Version, v.Name, current, v.Path})
	}
	r.Table(table.Row{"File", "Test", "Version", "Name", "Current", "Path"}, rows)
	r.Muted(fmt.Sprintf("%d versions", len(versions)))
	return nil
}
