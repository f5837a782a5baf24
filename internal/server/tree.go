package server

import (
	"github.com/leapstack-labs/testide/internal/tree"
	"github.com/leapstack-labs/testide/pkg/core"
)

type fileView struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Tests []testView `json:"tests"`
}

type testView struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Versions []versionView `json:"versions"`
}

type versionView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	IsCurrent bool   `json:"is_current"`
	Revision  uint64 `json:"revision"`
	// Parse is nil until the current code was parsed.
	Parse *core.ParseVerdict `json:"parse,omitempty"`
}

func buildTree(t *tree.Tree) []fileView {
	files := t.Files()
	out := make([]fileView, 0, len(files))
	for _, f := range files {
		fv := fileView{ID: f.ID, Name: f.Name, Tests: []testView{}}
		for _, test := range t.Tests(f.ID) {
			tv := testView{ID: test.ID, Name: test.Name, Versions: []versionView{}}
			for _, v := range t.Versions(test.ID) {
				tv.Versions = append(tv.Versions, versionView{
					ID:        v.ID,
					Name:      v.Name,
					Code:      v.Code,
					IsCurrent: v.IsCurrent,
					Revision:  v.Revision,
					Parse:     v.LastParseVerdict,
				})
			}
			fv.Tests = append(fv.Tests, tv)
		}
		out = append(out, fv)
	}
	return out
}
