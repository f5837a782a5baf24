package tree

import "github.com/leapstack-labs/testide/pkg/core"

// UpdateCode replaces a version's code. Changed code bumps the revision and
// clears the verdict. Returns false when the version does not exist or the
// code is unchanged.
func (t *Tree) UpdateCode(versionID, code string) bool {
	t.mu.Lock()
	v, ok := t.versions[versionID]
	if !ok || v.Code == code {
		t.mu.Unlock()
		return false
	}
	v.Code = code
	cleared := t.invalidateLocked(v)
	hooks := t.hooks
	t.mu.Unlock()

	if cleared {
		notify(hooks, versionID)
	}
	return true
}

// InvalidateParse clears the verdict of a version whose code changed.
// It returns true only when a verdict was actually cleared; calling it on a
// version without a verdict emits no invalidation event.
func (t *Tree) InvalidateParse(versionID string) bool {
	t.mu.Lock()
	v, ok := t.versions[versionID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	cleared := t.invalidateLocked(v)
	hooks := t.hooks
	t.mu.Unlock()

	if cleared {
		notify(hooks, versionID)
	}
	return cleared
}

// invalidateLocked bumps the revision so in-flight verdicts for the old code
// are rejected, then clears the verdict.
func (t *Tree) invalidateLocked(v *core.Version) bool {
	v.Revision++
	if v.LastParseVerdict == nil {
		return false
	}
	v.LastParseVerdict = nil
	return true
}

func notify(hooks []InvalidationFunc, versionID string) {
	for _, fn := range hooks {
		fn(versionID)
	}
}

// ParseInput is the code snapshot sent to a parser for one version.
type ParseInput struct {
	VersionID string
	Code      string
	Revision  uint64
}

// VerdictWrite is one verdict produced for a ParseInput.
type VerdictWrite struct {
	VersionID string
	Revision  uint64
	Verdict   core.ParseVerdict
}

// RecordVerdicts writes verdicts in a single critical section. A verdict
// whose revision no longer matches the version's code is dropped and its id
// returned as stale. Deleted versions are skipped.
func (t *Tree) RecordVerdicts(writes []VerdictWrite) (stale []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, w := range writes {
		v, ok := t.versions[w.VersionID]
		if !ok {
			continue
		}
		if v.Revision != w.Revision {
			stale = append(stale, w.VersionID)
			continue
		}
		verdict := w.Verdict
		v.LastParseVerdict = &verdict
	}
	return stale
}
