package saves

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/testide/pkg/core"
)

func TestTracker_WaitReturnsImmediatelyWhenIdle(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Wait(context.Background(), []string{"v1"}))
	assert.Empty(t, tr.InProgress())
}

func TestTracker_WaitBlocksUntilDone(t *testing.T) {
	tr := NewTracker()
	tr.Begin("v1")
	tr.Begin("v2")

	done := make(chan error, 1)
	go func() { done <- tr.Wait(context.Background(), []string{"v1"}) }()

	// An unrelated save finishing does not release the waiter.
	tr.Done("v2", nil)
	select {
	case <-done:
		t.Fatal("Wait returned while v1 was still saving")
	case <-time.After(20 * time.Millisecond):
	}

	tr.Done("v1", nil)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after save finished")
	}
}

func TestTracker_OverlappingSaves(t *testing.T) {
	tr := NewTracker()
	tr.Begin("v1")
	tr.Begin("v1")
	tr.Done("v1", nil)
	assert.True(t, tr.Pending("v1"))
	tr.Done("v1", nil)
	assert.False(t, tr.Pending("v1"))
}

func TestTracker_FailedSave(t *testing.T) {
	tr := NewTracker()
	boom := errors.New("disk full")

	err := tr.Track("v1", func() error { return boom })
	require.ErrorIs(t, err, boom)

	err = tr.Wait(context.Background(), []string{"v2", "v1"})
	var sfe *core.SaveFailedError
	require.ErrorAs(t, err, &sfe)
	assert.Equal(t, "v1", sfe.VersionID)
	assert.ErrorIs(t, err, boom)

	// The next successful save clears the failure.
	require.NoError(t, tr.Track("v1", func() error { return nil }))
	require.NoError(t, tr.Wait(context.Background(), []string{"v1"}))
}

func TestTracker_WaitHonorsContext(t *testing.T) {
	tr := NewTracker()
	tr.Begin("v1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := tr.Wait(ctx, []string{"v1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
