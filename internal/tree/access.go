package tree

import (
	"cmp"
	"slices"

	"github.com/leapstack-labs/testide/pkg/core"
)

// Position locates a version in canonical tree order.
type Position struct {
	File    int
	Test    int
	Version int
}

// Compare orders positions by file, then test, then version.
func (p Position) Compare(o Position) int {
	if c := cmp.Compare(p.File, o.File); c != 0 {
		return c
	}
	if c := cmp.Compare(p.Test, o.Test); c != 0 {
		return c
	}
	return cmp.Compare(p.Version, o.Version)
}

// Less reports whether p comes before o.
func (p Position) Less(o Position) bool {
	return p.Compare(o) < 0
}

// Location is a version's owning file and test with its position.
type Location struct {
	FileID    string
	TestID    string
	VersionID string
	Position
}

// File returns a copy of a file.
func (t *Tree) File(id string) (core.File, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	f, ok := t.files[id]
	if !ok {
		return core.File{}, false
	}
	return copyFile(f), true
}

// Test returns a copy of a test.
func (t *Tree) Test(id string) (core.Test, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	test, ok := t.tests[id]
	if !ok {
		return core.Test{}, false
	}
	return copyTest(test), true
}

// Version returns a copy of a version.
func (t *Tree) Version(id string) (core.Version, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.versions[id]
	if !ok {
		return core.Version{}, false
	}
	return *v, true
}

// HasVersion reports whether a version exists.
func (t *Tree) HasVersion(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.versions[id]
	return ok
}

// Files returns all files in workspace order.
func (t *Tree) Files() []core.File {
	t.mu.RLock()
	defer t.mu.RUnlock()

	files := make([]core.File, 0, len(t.fileOrder))
	for _, id := range t.fileOrder {
		files = append(files, copyFile(t.files[id]))
	}
	return files
}

// Tests returns the tests of a file in order.
func (t *Tree) Tests(fileID string) []core.Test {
	t.mu.RLock()
	defer t.mu.RUnlock()

	f, ok := t.files[fileID]
	if !ok {
		return nil
	}
	tests := make([]core.Test, 0, len(f.TestIDs))
	for _, id := range f.TestIDs {
		tests = append(tests, copyTest(t.tests[id]))
	}
	return tests
}

// Versions returns the versions of a test in order.
func (t *Tree) Versions(testID string) []core.Version {
	t.mu.RLock()
	defer t.mu.RUnlock()

	test, ok := t.tests[testID]
	if !ok {
		return nil
	}
	versions := make([]core.Version, 0, len(test.VersionIDs))
	for _, id := range test.VersionIDs {
		versions = append(versions, *t.versions[id])
	}
	return versions
}

// Ancestors returns the test and file that own a version.
// ok is false when the version does not exist. A version whose test or
// file is missing panics.
func (t *Tree) Ancestors(versionID string) (file core.File, test core.Test, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, exists := t.versions[versionID]
	if !exists {
		return core.File{}, core.Test{}, false
	}
	tp := t.mustTest(v.TestID)
	fp := t.mustFile(tp.FileID)
	return copyFile(fp), copyTest(tp), true
}

// Position returns the canonical position of a version.
func (t *Tree) Position(versionID string) (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	loc, ok := t.locateLocked(versionID)
	return loc.Position, ok
}

// Locate returns the ancestors and position of a version in constant time.
// ok is false when the version does not exist.
func (t *Tree) Locate(versionID string) (Location, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.locateLocked(versionID)
}

func (t *Tree) locateLocked(versionID string) (Location, bool) {
	v, ok := t.versions[versionID]
	if !ok {
		return Location{}, false
	}
	test := t.mustTest(v.TestID)
	t.mustFile(test.FileID)
	return Location{
		FileID:    test.FileID,
		TestID:    test.ID,
		VersionID: versionID,
		Position: Position{
			File:    t.filePos[test.FileID],
			Test:    t.testPos[test.ID],
			Version: t.versionPos[versionID],
		},
	}, true
}

// CurrentVersionIDs returns the current version of every test, in tree order.
func (t *Tree) CurrentVersionIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for _, fid := range t.fileOrder {
		for _, tid := range t.files[fid].TestIDs {
			for _, vid := range t.tests[tid].VersionIDs {
				if t.versions[vid].IsCurrent {
					ids = append(ids, vid)
				}
			}
		}
	}
	return ids
}

// Len returns the number of versions in the tree.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.versions)
}

func copyFile(f *core.File) core.File {
	c := *f
	c.TestIDs = slices.Clone(f.TestIDs)
	return c
}

func copyTest(test *core.Test) core.Test {
	c := *test
	c.VersionIDs = slices.Clone(test.VersionIDs)
	return c
}
