// Package saves tracks code saves that are still being persisted, so a run
// can wait for its versions to be flushed before parsing them.
package saves

import (
	"context"
	"slices"
	"sync"

	"github.com/leapstack-labs/testide/pkg/core"
)

// Tracker is the set of versions with saves in flight.
// The zero value is not usable; call NewTracker.
type Tracker struct {
	mu      sync.Mutex
	pending map[string]int
	failed  map[string]error

	// changed is closed and replaced whenever the set changes.
	changed chan struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		pending: make(map[string]int),
		failed:  make(map[string]error),
		changed: make(chan struct{}),
	}
}

// Begin marks a save of versionID as in flight. Saves may overlap.
func (t *Tracker) Begin(versionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending[versionID]++
	delete(t.failed, versionID)
	t.broadcastLocked()
}

// Done ends one save of versionID. A non-nil err is remembered until the
// next Begin for that version.
func (t *Tracker) Done(versionID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending[versionID] <= 1 {
		delete(t.pending, versionID)
	} else {
		t.pending[versionID]--
	}
	if err != nil {
		t.failed[versionID] = err
	}
	t.broadcastLocked()
}

// Track runs save between Begin and Done.
func (t *Tracker) Track(versionID string, save func() error) error {
	t.Begin(versionID)
	err := save()
	t.Done(versionID, err)
	return err
}

// Pending reports whether versionID has a save in flight.
func (t *Tracker) Pending(versionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[versionID] > 0
}

// InProgress returns the sorted ids with saves in flight.
func (t *Tracker) InProgress() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Wait blocks until none of versionIDs has a save in flight. If the last
// save of any of them failed it returns *core.SaveFailedError.
func (t *Tracker) Wait(ctx context.Context, versionIDs []string) error {
	for {
		t.mu.Lock()
		busy := false
		for _, id := range versionIDs {
			if t.pending[id] > 0 {
				busy = true
				break
			}
		}
		if !busy {
			err := t.failureLocked(versionIDs)
			t.mu.Unlock()
			return err
		}
		changed := t.changed
		t.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *Tracker) failureLocked(versionIDs []string) error {
	for _, id := range versionIDs {
		if err, ok := t.failed[id]; ok {
			return &core.SaveFailedError{VersionID: id, Cause: err}
		}
	}
	return nil
}

func (t *Tracker) broadcastLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}
