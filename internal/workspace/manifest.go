package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestName is the workspace manifest file name.
const ManifestName = "testide.workspace.yaml"

// Manifest lists the files, tests and versions of a workspace. Version code
// lives in separate files referenced by path.
type Manifest struct {
	Files []FileEntry `yaml:"files"`
}

// FileEntry is a workspace file.
type FileEntry struct {
	ID    string      `yaml:"id"`
	Name  string      `yaml:"name"`
	Tests []TestEntry `yaml:"tests"`
}

// TestEntry is a test with its versions. Current defaults to the first version.
type TestEntry struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Current  string         `yaml:"current,omitempty"`
	Versions []VersionEntry `yaml:"versions"`
}

// VersionEntry is one version of a test. Path is relative to the workspace root.
type VersionEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
	Path string `yaml:"path"`
}

// ReadManifest reads and validates the manifest in dir.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks that every entity has an id, every version a path, and
// that current versions belong to their test.
func (m *Manifest) Validate() error {
	for i, f := range m.Files {
		if f.ID == "" {
			return fmt.Errorf("files[%d]: id is required", i)
		}
		for j, t := range f.Tests {
			if t.ID == "" {
				return fmt.Errorf("file %s: tests[%d]: id is required", f.ID, j)
			}
			if len(t.Versions) == 0 {
				return fmt.Errorf("test %s: at least one version is required", t.ID)
			}
			found := t.Current == ""
			for k, v := range t.Versions {
				if v.ID == "" {
					return fmt.Errorf("test %s: versions[%d]: id is required", t.ID, k)
				}
				if v.Path == "" {
					return fmt.Errorf("version %s: path is required", v.ID)
				}
				if filepath.IsAbs(v.Path) {
					return fmt.Errorf("version %s: path must be relative to the workspace", v.ID)
				}
				found = found || v.ID == t.Current
			}
			if !found {
				return fmt.Errorf("test %s: current version %q is not one of its versions", t.ID, t.Current)
			}
		}
	}
	return nil
}
