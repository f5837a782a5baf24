package parsegate

import (
	"github.com/leapstack-labs/testide/internal/backend"
	"github.com/leapstack-labs/testide/internal/tree"
	"github.com/leapstack-labs/testide/pkg/core"
)

// CompleteSparse expands a sparse parse response into one verdict per
// requested version. A version absent from failures parsed successfully and
// gets an ok verdict; it is never treated as unknown.
//
// Failures naming versions that were not requested are returned as unknown
// and otherwise ignored. If a version is listed twice the first entry wins.
func CompleteSparse(inputs []tree.ParseInput, failures []backend.ParseFailure) (writes []tree.VerdictWrite, unknown []string) {
	requested := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		requested[in.VersionID] = true
	}

	problems := make(map[string]core.ParseProblem, len(failures))
	for _, f := range failures {
		if !requested[f.VersionID] {
			unknown = append(unknown, f.VersionID)
			continue
		}
		if _, dup := problems[f.VersionID]; !dup {
			problems[f.VersionID] = f.Problem
		}
	}

	writes = make([]tree.VerdictWrite, len(inputs))
	for i, in := range inputs {
		verdict := core.VerdictOK()
		if p, failed := problems[in.VersionID]; failed {
			verdict = core.VerdictError(p)
		}
		writes[i] = tree.VerdictWrite{
			VersionID: in.VersionID,
			Revision:  in.Revision,
			Verdict:   verdict,
		}
	}
	return writes, unknown
}
