package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAndRollback(t *testing.T) {
	t.Parallel()

	j := New()
	x := 1

	mark := j.Snapshot()
	Log(j, func() int { return x }, func(v int) { x = v })
	x = 2
	require.Equal(t, 2, x)

	j.Rollback(mark)
	assert.Equal(t, 1, x)
	assert.Equal(t, mark, j.Snapshot(), "P6: tail equals mark after rollback")
}

func TestRollbackIsLIFO(t *testing.T) {
	t.Parallel()

	j := New()
	var order []int

	j.Push(func() { order = append(order, 1) })
	j.Push(func() { order = append(order, 2) })
	j.Push(func() { order = append(order, 3) })

	j.Rollback(0)
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestRollbackPartial(t *testing.T) {
	t.Parallel()

	j := New()
	x := 0

	Log(j, func() int { return x }, func(v int) { x = v })
	x = 1
	mark1 := j.Snapshot()

	Log(j, func() int { return x }, func(v int) { x = v })
	x = 2

	j.Rollback(mark1)
	assert.Equal(t, 1, x)
}

func TestSnapshotAfterRollbackIsAtLeastMark(t *testing.T) {
	t.Parallel()

	j := New()
	j.Push(func() {})
	mark := j.Snapshot()
	j.Push(func() {})
	j.Push(func() {})

	j.Rollback(mark)
	assert.GreaterOrEqual(t, int(j.Snapshot()), int(mark))
}
