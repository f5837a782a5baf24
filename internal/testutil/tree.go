package testutil

import (
	"fmt"
	"testing"

	"github.com/leapstack-labs/testide/internal/tree"
)

// FileSpec describes a file fixture.
type FileSpec struct {
	ID    string
	Tests []TestSpec
}

// TestSpec describes a test fixture. The first version is current.
type TestSpec struct {
	ID       string
	Versions []string
}

// NewTree builds a tree from fixtures. Names are derived from ids and every
// version gets a trivial, valid program as its code.
func NewTree(t testing.TB, files ...FileSpec) *tree.Tree {
	t.Helper()

	tr := tree.New()
	for _, f := range files {
		if err := tr.AddFile(f.ID, f.ID+".tests"); err != nil {
			t.Fatalf("add file %s: %v", f.ID, err)
		}
		for _, test := range f.Tests {
			if err := tr.AddTest(f.ID, test.ID, "test "+test.ID); err != nil {
				t.Fatalf("add test %s: %v", test.ID, err)
			}
			for _, v := range test.Versions {
				code := fmt.Sprintf("name = %q\n", v)
				if err := tr.AddVersion(test.ID, v, "version "+v, code); err != nil {
					t.Fatalf("add version %s: %v", v, err)
				}
			}
		}
	}
	return tr
}
