package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/testide/internal/selection"
	"github.com/leapstack-labs/testide/internal/testutil"
	"github.com/leapstack-labs/testide/pkg/core"
)

func TestRollup(t *testing.T) {
	tr := testutil.NewTree(t,
		testutil.FileSpec{ID: "f1", Tests: []testutil.TestSpec{
			{ID: "t1", Versions: []string{"v1", "v2"}},
			{ID: "t2", Versions: []string{"v3"}},
		}},
		testutil.FileSpec{ID: "f2", Tests: []testutil.TestSpec{
			{ID: "t3", Versions: []string{"v4"}},
		}},
	)
	targets := []string{"v1", "v2", "v3", "v4"}
	sel, err := selection.Project(tr, targets)
	require.NoError(t, err)

	ms := int64(40)
	run := &core.Run{
		ID:      "run-1",
		Kind:    core.RunKindDry,
		Targets: targets,
		Phase:   core.PhaseRunning,
		Units: map[string]core.RunUnit{
			"v1": {VersionID: "v1", Status: core.StatusSuccess, TimeTakenMS: &ms},
			"v2": {VersionID: "v2", Status: core.StatusError, TimeTakenMS: &ms},
			"v3": {VersionID: "v3", Status: core.StatusRunning},
			"v4": {VersionID: "v4", Status: core.StatusSuccess},
		},
	}

	rep, err := Rollup(tr, run, sel)
	require.NoError(t, err)

	assert.Equal(t, core.StatusRunning, rep.Status)
	assert.Equal(t, Counts{Passed: 2, Failed: 1, Total: 4}, rep.Counts)
	assert.False(t, rep.CanRerunFailed, "rerun is gated on a terminal run")
	require.Len(t, rep.Files, 2)

	f1 := rep.Files[0]
	assert.Equal(t, "f1.tests", f1.Name)
	assert.Equal(t, core.StatusRunning, f1.Status)
	require.Len(t, f1.Tests, 2)
	assert.Equal(t, core.StatusError, f1.Tests[0].Status)
	assert.Equal(t, int64(80), *f1.Tests[0].ElapsedMS)
	assert.Equal(t, core.StatusRunning, f1.Tests[1].Status)
	assert.Nil(t, f1.Tests[1].ElapsedMS)

	assert.Equal(t, core.StatusSuccess, rep.Files[1].Status)

	// Finish v3; the run is now terminal with one failure
	run.Units["v3"] = core.RunUnit{VersionID: "v3", Status: core.StatusSuccess}
	run.Phase = core.PhaseCompleted
	rep, err = Rollup(tr, run, sel)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, rep.Status)
	assert.True(t, rep.CanRerunFailed)
}

func TestRollup_DeletedNodesLeaveAggregates(t *testing.T) {
	tr := testutil.NewTree(t,
		testutil.FileSpec{ID: "f1", Tests: []testutil.TestSpec{
			{ID: "t1", Versions: []string{"v1", "v2"}},
			{ID: "t2", Versions: []string{"v3"}},
		}},
	)
	targets := []string{"v1", "v2", "v3"}
	sel, err := selection.Project(tr, targets)
	require.NoError(t, err)

	run := &core.Run{
		ID:      "run-1",
		Targets: targets,
		Phase:   core.PhaseCompleted,
		Units: map[string]core.RunUnit{
			"v1": {VersionID: "v1", Status: core.StatusSuccess},
			"v2": {VersionID: "v2", Status: core.StatusSuccess},
			"v3": {VersionID: "v3", Status: core.StatusError},
		},
	}

	// A deleted version whose test survives keeps its last status
	require.True(t, tr.RemoveVersion("v2"))
	rep, err := Rollup(tr, run, sel)
	require.NoError(t, err)
	require.Len(t, rep.Files[0].Tests[0].Versions, 2)
	assert.Equal(t, "v2", rep.Files[0].Tests[0].Versions[1].Name)
	assert.Equal(t, core.StatusError, rep.Status)

	// Once the failing test is gone it no longer counts
	require.True(t, tr.RemoveTest("t2"))
	rep, err = Rollup(tr, run, sel)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, rep.Status)
	assert.Equal(t, 2, rep.Counts.Total)

	// Nothing left at all
	require.True(t, tr.RemoveFile("f1"))
	rep, err = Rollup(tr, run, sel)
	require.NoError(t, err)
	assert.Empty(t, rep.Files)
	assert.Equal(t, core.Status(""), rep.Status)
}

func TestRollup_AbortedRunHasNoTree(t *testing.T) {
	tr := testutil.NewTree(t,
		testutil.FileSpec{ID: "f1", Tests: []testutil.TestSpec{{ID: "t1", Versions: []string{"v1"}}}},
	)
	sel, err := selection.Project(tr, []string{"v1"})
	require.NoError(t, err)

	run := &core.Run{
		ID:      "run-2",
		Kind:    core.RunKindDry,
		Targets: []string{"v1"},
		Phase:   core.PhaseAborted,
		Error:   "1 version(s) failed to parse",
	}

	rep, err := Rollup(tr, run, sel)
	require.NoError(t, err)
	assert.Empty(t, rep.Files)
	assert.Equal(t, "1 version(s) failed to parse", rep.Error)
	assert.False(t, rep.CanRerunFailed)
}

func TestRollup_UnknownStatusIsDefect(t *testing.T) {
	tr := testutil.NewTree(t,
		testutil.FileSpec{ID: "f1", Tests: []testutil.TestSpec{{ID: "t1", Versions: []string{"v1"}}}},
	)
	sel, err := selection.Project(tr, []string{"v1"})
	require.NoError(t, err)

	run := &core.Run{
		Targets: []string{"v1"},
		Phase:   core.PhaseRunning,
		Units:   map[string]core.RunUnit{"v1": {VersionID: "v1", Status: "bogus"}},
	}

	_, err = Rollup(tr, run, sel)
	var undeducable *core.UndeducableStatusError
	assert.ErrorAs(t, err, &undeducable)
}
