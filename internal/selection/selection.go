// Package selection projects a run's target versions onto the workspace
// tree, producing the minimal set of files and tests that participate.
package selection

import (
	"slices"

	"github.com/leapstack-labs/testide/internal/tree"
	"github.com/leapstack-labs/testide/pkg/core"
)

// Source is the part of the version tree the projector reads. Locate
// must not depend on the size of the tree.
type Source interface {
	Locate(versionID string) (tree.Location, bool)
}

// Selection is the participating sub-tree of a run, in canonical tree order.
type Selection struct {
	FileIDs    []string    `json:"file_ids"`
	TestIDs    []string    `json:"test_ids"`
	VersionIDs []string    `json:"version_ids"`
	Groups     []FileGroup `json:"groups"`
}

// FileGroup is a selected file with its selected tests.
type FileGroup struct {
	FileID string      `json:"file_id"`
	Tests  []TestGroup `json:"tests"`
}

// TestGroup is a selected test with its selected versions.
type TestGroup struct {
	TestID     string   `json:"test_id"`
	VersionIDs []string `json:"version_ids"`
}

// Project computes the selection for targets. Input order is ignored and
// duplicates collapse. A target missing from the tree fails with
// *core.OrphanVersionError. The work depends only on the number of targets.
func Project(src Source, targets []string) (Selection, error) {
	seen := make(map[string]struct{}, len(targets))
	locs := make([]tree.Location, 0, len(targets))

	for _, id := range targets {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		loc, ok := src.Locate(id)
		if !ok {
			return Selection{}, &core.OrphanVersionError{VersionID: id}
		}
		locs = append(locs, loc)
	}

	slices.SortFunc(locs, func(a, b tree.Location) int {
		return a.Compare(b.Position)
	})

	var sel Selection
	for _, loc := range locs {
		sel.VersionIDs = append(sel.VersionIDs, loc.VersionID)

		if n := len(sel.Groups); n == 0 || sel.Groups[n-1].FileID != loc.FileID {
			sel.FileIDs = append(sel.FileIDs, loc.FileID)
			sel.Groups = append(sel.Groups, FileGroup{FileID: loc.FileID})
		}
		fg := &sel.Groups[len(sel.Groups)-1]

		if n := len(fg.Tests); n == 0 || fg.Tests[n-1].TestID != loc.TestID {
			sel.TestIDs = append(sel.TestIDs, loc.TestID)
			fg.Tests = append(fg.Tests, TestGroup{TestID: loc.TestID})
		}
		tg := &fg.Tests[len(fg.Tests)-1]
		tg.VersionIDs = append(tg.VersionIDs, loc.VersionID)
	}

	return sel, nil
}

// Contains reports whether the selection includes a version.
func (s Selection) Contains(versionID string) bool {
	for _, id := range s.VersionIDs {
		if id == versionID {
			return true
		}
	}
	return false
}
