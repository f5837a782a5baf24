package parsegate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/testide/internal/backend"
	"github.com/leapstack-labs/testide/internal/tree"
	"github.com/leapstack-labs/testide/pkg/core"
)

func TestCompleteSparse(t *testing.T) {
	inputs := []tree.ParseInput{
		{VersionID: "a", Revision: 1},
		{VersionID: "b", Revision: 4},
		{VersionID: "c", Revision: 2},
	}

	tests := []struct {
		name       string
		failures   []backend.ParseFailure
		wantFailed []string
		wantUnk    []string
	}{
		{
			name: "empty response means every version parsed",
		},
		{
			name:       "listed versions fail",
			failures:   []backend.ParseFailure{{VersionID: "b", Problem: core.ParseProblem{Message: "bad"}}},
			wantFailed: []string{"b"},
		},
		{
			name: "unknown ids are ignored",
			failures: []backend.ParseFailure{
				{VersionID: "zz", Problem: core.ParseProblem{Message: "?"}},
				{VersionID: "c", Problem: core.ParseProblem{Message: "bad"}},
			},
			wantFailed: []string{"c"},
			wantUnk:    []string{"zz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writes, unknown := CompleteSparse(inputs, tt.failures)
			require.Len(t, writes, len(inputs))
			assert.Equal(t, tt.wantUnk, unknown)

			var failed []string
			for i, w := range writes {
				assert.Equal(t, inputs[i].VersionID, w.VersionID)
				assert.Equal(t, inputs[i].Revision, w.Revision)
				if !w.Verdict.OK() {
					failed = append(failed, w.VersionID)
				}
			}
			assert.Equal(t, tt.wantFailed, failed)
		})
	}
}

func TestCompleteSparse_FirstDuplicateWins(t *testing.T) {
	writes, _ := CompleteSparse(
		[]tree.ParseInput{{VersionID: "a"}},
		[]backend.ParseFailure{
			{VersionID: "a", Problem: core.ParseProblem{Message: "first"}},
			{VersionID: "a", Problem: core.ParseProblem{Message: "second"}},
		},
	)
	require.Len(t, writes, 1)
	assert.Equal(t, "first", writes[0].Verdict.Problem.Message)
}
