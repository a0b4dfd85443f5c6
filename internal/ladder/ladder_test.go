package ladder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texpressocore/internal/journal"
)

func TestPushAndTop(t *testing.T) {
	t.Parallel()

	l := New()
	_, evicted := l.Push(Rung{PID: 1, TraceLen: 1})
	assert.False(t, evicted)

	top, ok := l.Top()
	require.True(t, ok)
	assert.Equal(t, int32(1), top.PID)
}

func TestPushEvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()

	l := New()
	for i := 0; i < MaxRungs; i++ {
		_, evicted := l.Push(Rung{PID: int32(i), TraceLen: i})
		assert.False(t, evicted)
	}
	require.Equal(t, MaxRungs, l.Len())

	evicted, ok := l.Push(Rung{PID: 1000, TraceLen: 1000})
	require.True(t, ok)
	assert.Equal(t, int32(0), evicted.PID, "oldest rung evicted first")
	assert.Equal(t, MaxRungs, l.Len())
	assert.Equal(t, int32(1), l.At(0).PID)
}

func TestNearestPicksClosestNotAfterTarget(t *testing.T) {
	t.Parallel()

	l := New()
	l.Push(Rung{PID: 1, TraceLen: 5})
	l.Push(Rung{PID: 2, TraceLen: 10})
	l.Push(Rung{PID: 3, TraceLen: 20})

	r, ok := l.Nearest(15)
	require.True(t, ok)
	assert.Equal(t, int32(2), r.PID)
}

func TestNearestEmptyLadder(t *testing.T) {
	t.Parallel()

	l := New()
	_, ok := l.Nearest(0)
	assert.False(t, ok)
}

func TestNearestNoRungBeforeTarget(t *testing.T) {
	t.Parallel()

	l := New()
	l.Push(Rung{PID: 1, TraceLen: 50})

	_, ok := l.Nearest(5)
	assert.False(t, ok)
}

func TestEvictPID(t *testing.T) {
	t.Parallel()

	l := New()
	l.Push(Rung{PID: 1})
	l.Push(Rung{PID: 2})

	assert.True(t, l.EvictPID(1))
	assert.False(t, l.EvictPID(1))
	require.Equal(t, 1, l.Len())
	assert.Equal(t, int32(2), l.At(0).PID)
}

func TestAllReturnsIndependentCopy(t *testing.T) {
	t.Parallel()

	l := New()
	l.Push(Rung{PID: 1})

	got := l.All()
	got[0].PID = 99
	assert.Equal(t, int32(1), l.At(0).PID)
}

func TestSetTopMarkFillsOutgoingTop(t *testing.T) {
	t.Parallel()

	l := New()
	l.Push(Rung{PID: 1})
	l.Push(Rung{PID: 2})

	assert.True(t, l.SetTopMark(42))
	top, _ := l.Top()
	assert.Equal(t, int32(2), top.PID)
	assert.Equal(t, journal.Mark(42), top.Mark)
	assert.True(t, top.HasMark)
	assert.False(t, l.At(0).HasMark, "only the top was marked")
}

func TestSetTopMarkOnEmptyLadder(t *testing.T) {
	t.Parallel()

	l := New()
	assert.False(t, l.SetTopMark(1))
}

func TestDecimateKeepsFirstLastTwoAndOddIndices(t *testing.T) {
	t.Parallel()

	l := New()
	for i := 0; i < MaxRungs; i++ {
		l.Push(Rung{PID: int32(i)})
	}

	evicted := l.Decimate()

	var survivors []int32
	for _, r := range l.All() {
		survivors = append(survivors, r.PID)
	}
	expected := []int32{0, 1, 3, 5, 7, 9, 11, 13, 15, 17, 19, 21, 23, 25, 27, 29, 30, 31}
	assert.Equal(t, expected, survivors)

	var evictedPIDs []int32
	for _, r := range evicted {
		evictedPIDs = append(evictedPIDs, r.PID)
	}
	assert.Equal(t, []int32{2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 22, 24, 26, 28}, evictedPIDs)
}

func TestDecimateEmptyLadder(t *testing.T) {
	t.Parallel()

	l := New()
	assert.Nil(t, l.Decimate())
}
