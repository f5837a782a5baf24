// Package tree provides the normalized read model of workspace files, tests
// and versions together with each version's cached parse verdict.
//
// The tree is the single shared mutable structure of the run engine. Code
// edits go through UpdateCode or InvalidateParse; parse verdicts are written
// only through RecordVerdicts, which the parse gate owns.
package tree

import (
	"fmt"
	"slices"
	"sync"

	"github.com/leapstack-labs/testide/pkg/core"
)

// InvalidationFunc is called after a version's parse verdict was cleared.
type InvalidationFunc func(versionID string)

// Tree is a concurrency-safe File -> Test -> Version hierarchy.
type Tree struct {
	mu        sync.RWMutex
	files     map[string]*core.File
	fileOrder []string
	tests     map[string]*core.Test
	versions  map[string]*core.Version

	// Index of each node among its siblings, kept in step with the
	// order slices so positions resolve without scanning.
	filePos    map[string]int
	testPos    map[string]int
	versionPos map[string]int

	hooks []InvalidationFunc
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{
		files:    make(map[string]*core.File),
		tests:    make(map[string]*core.Test),
		versions: make(map[string]*core.Version),

		filePos:    make(map[string]int),
		testPos:    make(map[string]int),
		versionPos: make(map[string]int),
	}
}

// OnInvalidate registers fn to be called whenever a verdict is cleared.
func (t *Tree) OnInvalidate(fn InvalidationFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, fn)
}

// --- Building ---

// AddFile appends a file to the workspace.
func (t *Tree) AddFile(id, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.files[id]; exists {
		return fmt.Errorf("file %q already exists", id)
	}
	t.files[id] = &core.File{ID: id, Name: name}
	t.filePos[id] = len(t.fileOrder)
	t.fileOrder = append(t.fileOrder, id)
	return nil
}

// AddTest appends a test to a file.
func (t *Tree) AddTest(fileID, id, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[fileID]
	if !ok {
		return fmt.Errorf("file %q does not exist", fileID)
	}
	if _, exists := t.tests[id]; exists {
		return fmt.Errorf("test %q already exists", id)
	}
	t.tests[id] = &core.Test{ID: id, Name: name, FileID: fileID}
	t.testPos[id] = len(f.TestIDs)
	f.TestIDs = append(f.TestIDs, id)
	return nil
}

// AddVersion appends a version to a test. The first version of a test
// becomes its current version.
func (t *Tree) AddVersion(testID, id, name, code string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	test, ok := t.tests[testID]
	if !ok {
		return fmt.Errorf("test %q does not exist", testID)
	}
	if _, exists := t.versions[id]; exists {
		return fmt.Errorf("version %q already exists", id)
	}
	t.versions[id] = &core.Version{
		ID:        id,
		Name:      name,
		TestID:    testID,
		Code:      code,
		IsCurrent: len(test.VersionIDs) == 0,
	}
	t.versionPos[id] = len(test.VersionIDs)
	test.VersionIDs = append(test.VersionIDs, id)
	return nil
}

// SetCurrent makes versionID the single current version of its test.
func (t *Tree) SetCurrent(versionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.versions[versionID]
	if !ok {
		return &core.OrphanVersionError{VersionID: versionID}
	}
	for _, id := range t.mustTest(v.TestID).VersionIDs {
		t.versions[id].IsCurrent = id == versionID
	}
	return nil
}

// RemoveFile unloads a file with all of its tests and versions.
func (t *Tree) RemoveFile(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[id]
	if !ok {
		return false
	}
	for _, testID := range f.TestIDs {
		t.dropTest(testID)
	}
	delete(t.files, id)
	delete(t.filePos, id)
	t.fileOrder = slices.DeleteFunc(t.fileOrder, func(s string) bool { return s == id })
	reindex(t.filePos, t.fileOrder)
	return true
}

// RemoveTest deletes a test with all of its versions.
func (t *Tree) RemoveTest(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	test, ok := t.tests[id]
	if !ok {
		return false
	}
	f := t.mustFile(test.FileID)
	f.TestIDs = slices.DeleteFunc(f.TestIDs, func(s string) bool { return s == id })
	t.dropTest(id)
	reindex(t.testPos, f.TestIDs)
	return true
}

// RemoveVersion deletes a single version. If it was current, the last
// remaining version of the test becomes current.
func (t *Tree) RemoveVersion(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.versions[id]
	if !ok {
		return false
	}
	test := t.mustTest(v.TestID)
	test.VersionIDs = slices.DeleteFunc(test.VersionIDs, func(s string) bool { return s == id })
	delete(t.versions, id)
	delete(t.versionPos, id)
	reindex(t.versionPos, test.VersionIDs)
	if v.IsCurrent && len(test.VersionIDs) > 0 {
		t.versions[test.VersionIDs[len(test.VersionIDs)-1]].IsCurrent = true
	}
	return true
}

func (t *Tree) dropTest(id string) {
	for _, vid := range t.tests[id].VersionIDs {
		delete(t.versions, vid)
		delete(t.versionPos, vid)
	}
	delete(t.tests, id)
	delete(t.testPos, id)
}

func reindex(pos map[string]int, order []string) {
	for i, id := range order {
		pos[id] = i
	}
}

// mustFile and mustTest panic on a missing ancestor: the tree's own links
// are broken, which is a programming error rather than a user error.
func (t *Tree) mustFile(id string) *core.File {
	f, ok := t.files[id]
	if !ok {
		panic(fmt.Sprintf("tree: missing file %q", id))
	}
	return f
}

func (t *Tree) mustTest(id string) *core.Test {
	test, ok := t.tests[id]
	if !ok {
		panic(fmt.Sprintf("tree: missing test %q", id))
	}
	return test
}
