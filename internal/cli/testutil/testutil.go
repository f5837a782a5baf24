// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/testide/internal/cli/output"
)

// WorkspaceManifest is the manifest written by SetupTestWorkspace.
//
// Versions add-v1 and concat-v1 fail, every other version passes.
const WorkspaceManifest = `files:
  - id: math
    name: math.tests
    tests:
      - id: add
        name: addition
        current: add-v2
        versions:
          - id: add-v1
            name: add (broken)
            path: math/add_v1.star
          - id: add-v2
            name: add (fixed)
            path: math/add_v2.star
      - id: sub
        name: subtraction
        versions:
          - id: sub-v1
            path: math/sub_v1.star
  - id: strings
    name: strings.tests
    tests:
      - id: concat
        name: concatenation
        versions:
          - id: concat-v1
            path: strings/concat_v1.star
`

var workspaceFiles = map[string]string{
	"math/add_v1.star":       "assert_eq(1 + 1, 3, \"sum\")\n",
	"math/add_v2.star":       "assert_eq(1 + 1, 2, \"sum\")\n",
	"math/sub_v1.star":       "log(\"subtracting\")\nassert_eq(3 - 1, 2)\n",
	"strings/concat_v1.star": "fail(\"not implemented\")\n",
}

// SetupTestWorkspace creates a temporary workspace with a manifest and the
// code files it references.
func SetupTestWorkspace(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	WriteFile(t, tmpDir, "testide.workspace.yaml", WorkspaceManifest)
	for name, content := range workspaceFiles {
		WriteFile(t, tmpDir, name, content)
	}
	return tmpDir
}

// WriteFile writes content to dir/name, creating parent directories.
func WriteFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the combined stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// JSONLines splits newline-delimited JSON output into its lines.
func JSONLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
