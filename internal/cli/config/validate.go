package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/testide/internal/workspace"
)

var outputFormats = map[string]bool{"auto": true, "text": true, "markdown": true, "json": true}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace is required")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if !outputFormats[c.OutputFormat] {
		return fmt.Errorf("unknown output format %q (auto|text|markdown|json)", c.OutputFormat)
	}
	if err := c.Backend.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	return c.Server.Validate()
}

// ValidateWorkspace checks that the workspace manifest exists.
// Only commands that load the workspace call it, so help works anywhere.
func (c *Config) ValidateWorkspace() error {
	manifest := filepath.Join(c.Workspace, workspace.ManifestName)
	if _, err := os.Stat(manifest); os.IsNotExist(err) {
		return fmt.Errorf("workspace manifest not found: %s\nHint: Create %s or use --workspace to point at one",
			manifest, workspace.ManifestName)
	}
	return nil
}
