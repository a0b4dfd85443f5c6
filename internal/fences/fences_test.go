package fences

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texpressocore/internal/trace"
	"texpressocore/internal/vfs"
)

func TestNewHasNoActiveFence(t *testing.T) {
	t.Parallel()

	f := New()
	_, ok := f.Active()
	assert.False(t, ok)
}

func TestComputePlacesFenceZeroClampedToBoundary(t *testing.T) {
	t.Parallel()

	v := vfs.New()
	entry := v.LookupOrCreate("/a.tex")
	tr := trace.New()
	tr.RecordSeen(entry, 10, 1000)

	f, resume := Compute(tr, 1, 130, 0)
	fence, ok := f.Active()
	require.True(t, ok)
	assert.Same(t, entry, fence.Entry)
	assert.Equal(t, int64(128), fence.Position, "130 rounds down to 128")
	assert.Equal(t, 1, resume)
}

func TestComputeFenceZeroUsesSeenWhenHigherThanOffset(t *testing.T) {
	t.Parallel()

	v := vfs.New()
	entry := v.LookupOrCreate("/a.tex")
	other := v.LookupOrCreate("/b.tex")
	tr := trace.New()
	tr.RecordSeen(entry, 50, 500)
	tr.RecordSeen(other, 1, 600)
	tr.RecordSeen(entry, 200, 1000) // second, non-coalesced bump: record keeps prev seen 50

	f, _ := Compute(tr, 3, 10, 0)
	fence, _ := f.Active()
	assert.Equal(t, int64(50), fence.Position)
}

func TestComputeWalksBackwardForOlderFences(t *testing.T) {
	t.Parallel()

	v := vfs.New()
	a := v.LookupOrCreate("/a.tex")
	b := v.LookupOrCreate("/b.tex")
	warm := v.LookupOrCreate("/warm.tex")

	tr := trace.New()
	tr.RecordSeen(a, 3, 50)    // idx0: a's first bump, prev seen -1, not fence-eligible
	tr.RecordSeen(warm, 1, 60) // idx1: breaks coalescing so a's next bump gets its own record
	tr.RecordSeen(a, 5, 100)   // idx2: a's second bump, prev seen 3, fence-eligible
	tr.RecordSeen(b, 9, 940)   // idx3, the target record
	f, resume := Compute(tr, 4, 9, 0)

	require.GreaterOrEqual(t, f.FencePos, 0)
	assert.Equal(t, 3, resume, "fence 0 targets idx3 (b), older fence placed at idx2 makes resume idx2+1")
	// fence_pos starts at the oldest (furthest-back) fence and descends
	// toward fence 0 (the target record) as forks consume it.
	active, _ := f.Active()
	assert.Same(t, a, active.Entry)

	f.Descend()
	atZero, ok := f.Active()
	require.True(t, ok)
	assert.Same(t, b, atZero.Entry)
}

func TestComputeStopsAtFloorTraceLen(t *testing.T) {
	t.Parallel()

	v := vfs.New()
	a := v.LookupOrCreate("/a.tex")
	b := v.LookupOrCreate("/b.tex")

	tr := trace.New()
	tr.RecordSeen(a, 1, 0)
	tr.RecordSeen(b, 1, 100000)

	f, resume := Compute(tr, 2, 1, 1)
	assert.Equal(t, 1, f.n, "floor prevents fencing into idx0's territory")
	assert.Equal(t, 2, resume)
}

func TestComputeEmptyTraceReturnsNoFences(t *testing.T) {
	t.Parallel()

	tr := trace.New()
	f, resume := Compute(tr, 0, 0, 0)
	_, ok := f.Active()
	assert.False(t, ok)
	assert.Equal(t, 0, resume)
}

func TestDescendMovesTowardFenceZero(t *testing.T) {
	t.Parallel()

	v := vfs.New()
	entry := v.LookupOrCreate("/a.tex")
	tr := trace.New()
	tr.RecordSeen(entry, 10, 1000)

	f, _ := Compute(tr, 1, 130, 0)
	startPos := f.FencePos
	f.Descend()
	assert.Equal(t, startPos-1, f.FencePos)
}

func TestAppliesToOnlyMatchesActiveFenceEntry(t *testing.T) {
	t.Parallel()

	v := vfs.New()
	a := v.LookupOrCreate("/a.tex")
	b := v.LookupOrCreate("/b.tex")
	tr := trace.New()
	tr.RecordSeen(a, 10, 1000)

	f, _ := Compute(tr, 1, 130, 0)
	_, ok := f.AppliesTo(b)
	assert.False(t, ok)

	pos, ok := f.AppliesTo(a)
	assert.True(t, ok)
	assert.Equal(t, int64(128), pos)
}

func TestResetClearsFences(t *testing.T) {
	t.Parallel()

	v := vfs.New()
	entry := v.LookupOrCreate("/a.tex")
	tr := trace.New()
	tr.RecordSeen(entry, 10, 1000)

	f, _ := Compute(tr, 1, 130, 0)
	f.Reset()
	_, ok := f.Active()
	assert.False(t, ok)
}
