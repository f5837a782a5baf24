package local

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/testide/internal/backend"
	"github.com/leapstack-labs/testide/internal/testutil"
	"github.com/leapstack-labs/testide/pkg/core"
)

const spin = `
def loop():
    n = 0
    while True:
        n += 1
loop()
`

func TestParse_SparseFailures(t *testing.T) {
	b := New(Config{Logger: testutil.NewTestLogger(t)})

	failures, err := b.Parse(context.Background(), []backend.Source{
		{VersionID: "ok", Code: "x = 1\nassert_eq(x, 1)\n"},
		{VersionID: "syntax", Code: "x = (1\n"},
		{VersionID: "undefined", Code: "x = 1\ny = nope + x\n"},
	})
	require.NoError(t, err)
	require.Len(t, failures, 2)

	assert.Equal(t, "syntax", failures[0].VersionID)
	assert.NotEmpty(t, failures[0].Problem.Message)

	assert.Equal(t, "undefined", failures[1].VersionID)
	assert.Contains(t, failures[1].Problem.Message, "nope")
	assert.Equal(t, core.Position{Line: 2, Column: 5}, failures[1].Problem.From)
	assert.Equal(t, core.Position{Line: 2, Column: 6}, failures[1].Problem.To)
}

func TestParse_DoesNotExecute(t *testing.T) {
	b := New(Config{})

	failures, err := b.Parse(context.Background(), []backend.Source{{VersionID: "v", Code: spin}})
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestParse_CancelledContext(t *testing.T) {
	b := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Parse(ctx, []backend.Source{{VersionID: "v", Code: "x = 1"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name       string
		kind       core.RunKind
		code       string
		wantStatus core.Status
		wantOutput string
		wantError  string
	}{
		{
			name:       "passing assertions",
			code:       "assert_eq(1 + 1, 2)\nassert_true(True)\nlog(\"checked\", 2)\n",
			wantStatus: core.StatusSuccess,
			wantOutput: "checked 2\n",
		},
		{
			name:       "print is captured",
			code:       "print(\"hello\")\n",
			wantStatus: core.StatusSuccess,
			wantOutput: "hello\n",
		},
		{
			name:       "failed assertion",
			code:       "assert_eq(1, 2, msg=\"math\")\n",
			wantStatus: core.StatusError,
			wantError:  "assert_eq: math: got 1, want 2",
		},
		{
			name:       "explicit fail",
			code:       "fail(\"boom\")\n",
			wantStatus: core.StatusError,
			wantError:  "fail: boom",
		},
		{
			name:       "runtime error",
			code:       "x = 1 // 0\n",
			wantStatus: core.StatusError,
			wantError:  "division by zero",
		},
		{
			name:       "kind is visible",
			kind:       core.RunKindBuild,
			code:       "assert_eq(KIND, \"build_run\")\n",
			wantStatus: core.StatusSuccess,
		},
	}

	b := New(Config{Logger: testutil.NewTestLogger(t)})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind := tt.kind
			if kind == "" {
				kind = core.RunKindDry
			}
			res, err := b.Execute(context.Background(), backend.Job{RunID: "r", Kind: kind, VersionID: "v", Code: tt.code})
			require.NoError(t, err)
			assert.Equal(t, "v", res.VersionID)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantOutput, res.Output)
			require.NotNil(t, res.TimeTakenMS)
			if tt.wantError != "" {
				assert.Contains(t, res.Error, tt.wantError)
			}
		})
	}
}

func TestExecute_MaxSteps(t *testing.T) {
	b := New(Config{MaxSteps: 10_000})

	res, err := b.Execute(context.Background(), backend.Job{RunID: "r", VersionID: "v", Code: spin})
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, res.Status)
	assert.Contains(t, res.Error, "too many steps")
}

func TestExecute_ContextTimeoutIsServiceError(t *testing.T) {
	b := New(Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Execute(ctx, backend.Job{RunID: "r", VersionID: "v", Code: spin})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecute_StopChannel(t *testing.T) {
	b := New(Config{})
	stop := make(chan struct{})
	time.AfterFunc(20*time.Millisecond, func() { close(stop) })

	res, err := b.Execute(context.Background(), backend.Job{RunID: "r", VersionID: "v", Code: spin, Stop: stop})
	require.NoError(t, err)
	assert.Equal(t, core.StatusStopped, res.Status)
}

func TestStopRun(t *testing.T) {
	b := New(Config{})

	done := make(chan core.UnitResult, 1)
	go func() {
		res, _ := b.Execute(context.Background(), backend.Job{RunID: "r1", VersionID: "v1", Code: spin})
		done <- res
	}()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.threads["r1"]) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.StopRun(context.Background(), "r1"))

	select {
	case res := <-done:
		assert.Equal(t, core.StatusStopped, res.Status)
	case <-time.After(time.Second):
		t.Fatal("execution was not cancelled")
	}

	// Later units of a stopped run never start.
	res, err := b.Execute(context.Background(), backend.Job{RunID: "r1", VersionID: "v2", Code: "x = 1"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusStopped, res.Status)

	// Other runs are unaffected.
	res, err = b.Execute(context.Background(), backend.Job{RunID: "r2", VersionID: "v3", Code: "x = 1"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, res.Status)
}

func TestStopRun_ForgetsOldestRuns(t *testing.T) {
	b := New(Config{})
	ctx := context.Background()

	for i := range maxStoppedRuns + 10 {
		require.NoError(t, b.StopRun(ctx, fmt.Sprintf("run-%d", i)))
	}
	require.NoError(t, b.StopRun(ctx, "run-20"), "stopping twice is not recorded twice")

	b.mu.Lock()
	assert.Len(t, b.stopped, maxStoppedRuns)
	assert.Len(t, b.stopOrder, maxStoppedRuns)
	b.mu.Unlock()

	assert.False(t, b.isStopped("run-0"))
	assert.True(t, b.isStopped("run-10"))
	assert.True(t, b.isStopped(fmt.Sprintf("run-%d", maxStoppedRuns+9)))
}
