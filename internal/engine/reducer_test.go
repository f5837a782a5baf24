package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/testide/pkg/core"
)

func runningRun(targets ...string) *core.Run {
	run := newRun("r", core.RunKindDry, targets, time.Unix(0, 0))
	beginUnits(run)
	return run
}

func TestApplyResult(t *testing.T) {
	ms := int64(7)

	tests := []struct {
		name    string
		from    core.RunUnit
		update  core.UnitResult
		changed bool
		want    core.Status
	}{
		{"start", core.RunUnit{Status: core.StatusUnstarted}, core.UnitResult{Status: core.StatusRunning}, true, core.StatusRunning},
		{"finish", core.RunUnit{Status: core.StatusRunning}, core.UnitResult{Status: core.StatusSuccess, TimeTakenMS: &ms}, true, core.StatusSuccess},
		{"skip running", core.RunUnit{Status: core.StatusUnstarted}, core.UnitResult{Status: core.StatusError}, true, core.StatusError},
		{"terminal is final", core.RunUnit{Status: core.StatusStopped}, core.UnitResult{Status: core.StatusSuccess}, false, core.StatusStopped},
		{"no regression", core.RunUnit{Status: core.StatusRunning}, core.UnitResult{Status: core.StatusUnstarted}, false, core.StatusRunning},
		{"duplicate", core.RunUnit{Status: core.StatusRunning}, core.UnitResult{Status: core.StatusRunning}, false, core.StatusRunning},
		{"invalid", core.RunUnit{Status: core.StatusRunning}, core.UnitResult{Status: "??"}, false, core.StatusRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := runningRun("v1")
			tt.from.VersionID = "v1"
			run.Units["v1"] = tt.from

			tt.update.VersionID = "v1"
			assert.Equal(t, tt.changed, applyResult(run, tt.update))
			assert.Equal(t, tt.want, run.Units["v1"].Status)
		})
	}
}

func TestApplyResult_UnknownUnitAndCompletedRun(t *testing.T) {
	run := runningRun("v1")
	assert.False(t, applyResult(run, core.UnitResult{VersionID: "v9", Status: core.StatusSuccess}))

	complete(run, time.Unix(1, 0))
	assert.False(t, applyResult(run, core.UnitResult{VersionID: "v1", Status: core.StatusSuccess}))
	assert.Equal(t, core.StatusUnstarted, run.Units["v1"].Status)
}

func TestStopLifecycle(t *testing.T) {
	run := runningRun("v1", "v2", "v3")
	applyResult(run, core.UnitResult{VersionID: "v1", Status: core.StatusSuccess})
	applyResult(run, core.UnitResult{VersionID: "v2", Status: core.StatusRunning})

	require.True(t, requestStop(run))
	assert.Equal(t, core.PhaseStopping, run.Phase)
	assert.False(t, requestStop(run), "second stop is a no-op")

	// Stopping alone changes no unit.
	assert.Equal(t, core.StatusRunning, run.Units["v2"].Status)
	assert.False(t, allTerminal(run))

	assert.Equal(t, []string{"v2", "v3"}, stopPending(run, "grace"))
	assert.Equal(t, core.StatusSuccess, run.Units["v1"].Status)
	assert.Equal(t, "grace", run.Units["v3"].Error)
	assert.True(t, allTerminal(run))

	complete(run, time.Unix(2, 0))
	assert.Equal(t, core.PhaseCompleted, run.Phase)
	assert.False(t, run.Stopping)
	assert.True(t, run.Completed)
	assert.False(t, requestStop(run))
}

func TestStopDuringGating(t *testing.T) {
	run := newRun("r", core.RunKindDry, []string{"v1"}, time.Unix(0, 0))
	require.True(t, requestStop(run))
	assert.Equal(t, core.PhaseSaving, run.Phase)

	assert.True(t, setPhase(run, core.PhaseParsing))

	beginUnits(run)
	assert.Equal(t, core.PhaseStopping, run.Phase)
}

func TestAbort(t *testing.T) {
	run := newRun("r", core.RunKindDry, []string{"v1"}, time.Unix(0, 0))
	abort(run, "1 version(s) failed to parse", time.Unix(3, 0))

	assert.Equal(t, core.PhaseAborted, run.Phase)
	assert.True(t, run.Completed)
	assert.Nil(t, run.Units)
	assert.Equal(t, "1 version(s) failed to parse", run.Error)
	assert.False(t, setPhase(run, core.PhaseParsing))
}
