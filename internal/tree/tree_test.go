package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/testide/pkg/core"
)

// newSampleTree builds:
//
//	f1: t1(v1, v2), t2(v3)
//	f2: t3(v4)
func newSampleTree(t *testing.T) *Tree {
	t.Helper()
	tr := New()
	require.NoError(t, tr.AddFile("f1", "login.tests"))
	require.NoError(t, tr.AddFile("f2", "cart.tests"))
	require.NoError(t, tr.AddTest("f1", "t1", "valid login"))
	require.NoError(t, tr.AddTest("f1", "t2", "invalid login"))
	require.NoError(t, tr.AddTest("f2", "t3", "add item"))
	require.NoError(t, tr.AddVersion("t1", "v1", "draft", "a = 1"))
	require.NoError(t, tr.AddVersion("t1", "v2", "final", "a = 2"))
	require.NoError(t, tr.AddVersion("t2", "v3", "draft", "b = 1"))
	require.NoError(t, tr.AddVersion("t3", "v4", "draft", "c = 1"))
	return tr
}

func TestTree_Build(t *testing.T) {
	tr := newSampleTree(t)

	files := tr.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "f1", files[0].ID)
	assert.Equal(t, []string{"t1", "t2"}, files[0].TestIDs)
	assert.Equal(t, 4, tr.Len())

	assert.Error(t, tr.AddFile("f1", "dup"))
	assert.Error(t, tr.AddTest("missing", "tx", "x"))
	assert.Error(t, tr.AddVersion("missing", "vx", "x", ""))
	assert.Error(t, tr.AddVersion("t1", "v1", "dup", ""))
}

func TestTree_CurrentVersion(t *testing.T) {
	tr := newSampleTree(t)

	// First version of each test is current
	assert.Equal(t, []string{"v1", "v3", "v4"}, tr.CurrentVersionIDs())

	require.NoError(t, tr.SetCurrent("v2"))
	assert.Equal(t, []string{"v2", "v3", "v4"}, tr.CurrentVersionIDs())

	v1, _ := tr.Version("v1")
	assert.False(t, v1.IsCurrent)

	var orphan *core.OrphanVersionError
	assert.ErrorAs(t, tr.SetCurrent("nope"), &orphan)
}

func TestTree_RemoveVersionMovesCurrent(t *testing.T) {
	tr := newSampleTree(t)
	require.NoError(t, tr.SetCurrent("v2"))

	assert.True(t, tr.RemoveVersion("v2"))
	v1, ok := tr.Version("v1")
	require.True(t, ok)
	assert.True(t, v1.IsCurrent)
	assert.False(t, tr.RemoveVersion("v2"))
}

func TestTree_RemoveFileDropsDescendants(t *testing.T) {
	tr := newSampleTree(t)

	assert.True(t, tr.RemoveFile("f1"))
	assert.False(t, tr.HasVersion("v1"))
	assert.False(t, tr.HasVersion("v3"))
	_, ok := tr.Test("t1")
	assert.False(t, ok)
	assert.Len(t, tr.Files(), 1)
}

func TestTree_Ancestors(t *testing.T) {
	tr := newSampleTree(t)

	f, test, ok := tr.Ancestors("v3")
	require.True(t, ok)
	assert.Equal(t, "f1", f.ID)
	assert.Equal(t, "t2", test.ID)

	_, _, ok = tr.Ancestors("missing")
	assert.False(t, ok)
}

func TestTree_AncestorsPanicsOnBrokenLink(t *testing.T) {
	tr := newSampleTree(t)
	// Corrupt the tree on purpose
	delete(tr.tests, "t3")

	assert.Panics(t, func() { tr.Ancestors("v4") })
}

func TestTree_Position(t *testing.T) {
	tr := newSampleTree(t)

	p2, ok := tr.Position("v2")
	require.True(t, ok)
	assert.Equal(t, Position{File: 0, Test: 0, Version: 1}, p2)

	p4, _ := tr.Position("v4")
	assert.Equal(t, Position{File: 1, Test: 0, Version: 0}, p4)
	assert.True(t, p2.Less(p4))
	assert.False(t, p4.Less(p2))
}

func TestTree_Locate(t *testing.T) {
	tr := newSampleTree(t)

	loc, ok := tr.Locate("v3")
	require.True(t, ok)
	assert.Equal(t, Location{FileID: "f1", TestID: "t2", VersionID: "v3", Position: Position{File: 0, Test: 1, Version: 0}}, loc)

	_, ok = tr.Locate("missing")
	assert.False(t, ok)
}

func TestTree_PositionsFollowRemovals(t *testing.T) {
	tr := newSampleTree(t)
	require.NoError(t, tr.AddFile("f3", "checkout.tests"))
	require.NoError(t, tr.AddTest("f3", "t4", "pay"))
	require.NoError(t, tr.AddVersion("t4", "v5", "draft", "d = 1"))
	require.NoError(t, tr.AddVersion("t1", "v6", "retry", "a = 3"))

	require.True(t, tr.RemoveVersion("v1"))
	p, _ := tr.Position("v2")
	assert.Equal(t, Position{File: 0, Test: 0, Version: 0}, p)
	p, _ = tr.Position("v6")
	assert.Equal(t, Position{File: 0, Test: 0, Version: 1}, p)

	require.True(t, tr.RemoveTest("t1"))
	p, _ = tr.Position("v3")
	assert.Equal(t, Position{File: 0, Test: 0, Version: 0}, p)

	require.True(t, tr.RemoveFile("f2"))
	p, _ = tr.Position("v5")
	assert.Equal(t, Position{File: 1, Test: 0, Version: 0}, p)

	_, ok := tr.Position("v4")
	assert.False(t, ok)
}

func TestTree_ReturnsCopies(t *testing.T) {
	tr := newSampleTree(t)

	f, _ := tr.File("f1")
	f.TestIDs[0] = "mutated"

	again, _ := tr.File("f1")
	assert.Equal(t, "t1", again.TestIDs[0])
}

func TestTree_InvalidateParseIsIdempotent(t *testing.T) {
	tr := newSampleTree(t)

	var events []string
	tr.OnInvalidate(func(id string) { events = append(events, id) })

	v, _ := tr.Version("v1")
	stale := tr.RecordVerdicts([]VerdictWrite{{VersionID: "v1", Revision: v.Revision, Verdict: core.VerdictOK()}})
	require.Empty(t, stale)

	assert.True(t, tr.InvalidateParse("v1"))
	assert.False(t, tr.InvalidateParse("v1"), "second invalidation must be a no-op")
	assert.False(t, tr.InvalidateParse("missing"))
	assert.Equal(t, []string{"v1"}, events)

	// Editing code while the verdict is already null emits nothing
	assert.True(t, tr.UpdateCode("v1", "a = 42"))
	assert.Equal(t, []string{"v1"}, events)
}

func TestTree_UpdateCodeClearsVerdict(t *testing.T) {
	tr := newSampleTree(t)

	v, _ := tr.Version("v3")
	tr.RecordVerdicts([]VerdictWrite{{VersionID: "v3", Revision: v.Revision, Verdict: core.VerdictOK()}})
	v, _ = tr.Version("v3")
	require.NotNil(t, v.LastParseVerdict)

	assert.False(t, tr.UpdateCode("v3", "b = 1"), "unchanged code is not a modification")
	v, _ = tr.Version("v3")
	assert.NotNil(t, v.LastParseVerdict)

	assert.True(t, tr.UpdateCode("v3", "b = 2"))
	v, _ = tr.Version("v3")
	assert.Nil(t, v.LastParseVerdict)
	assert.Equal(t, "b = 2", v.Code)
}

func TestTree_RecordVerdictsRejectsStaleRevision(t *testing.T) {
	tr := newSampleTree(t)

	v, _ := tr.Version("v4")
	requested := v.Revision

	// Code changes while the parse request is in flight
	tr.UpdateCode("v4", "c = 2")

	stale := tr.RecordVerdicts([]VerdictWrite{
		{VersionID: "v4", Revision: requested, Verdict: core.VerdictOK()},
		{VersionID: "gone", Revision: 0, Verdict: core.VerdictOK()},
	})
	assert.Equal(t, []string{"v4"}, stale)

	v, _ = tr.Version("v4")
	assert.Nil(t, v.LastParseVerdict)
}
