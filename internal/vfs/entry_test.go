package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveDataPrecedence(t *testing.T) {
	t.Parallel()

	e := newEntry("/t/main.tex")

	// Nothing set: effective data is nil.
	assert.Nil(t, e.EffectiveData())

	e.SetFSData([]byte("from disk"))
	assert.Equal(t, []byte("from disk"), e.EffectiveData())

	e.SetEditData([]byte("from editor"))
	assert.Equal(t, []byte("from editor"), e.EffectiveData(), "edit_data must win over fs_data")

	e.Saved = Saved{Data: []byte("from worker"), Level: LevelWrite}
	assert.Equal(t, []byte("from worker"), e.EffectiveData(), "saved.data must win over edit_data")
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	e := newEntry("/t/main.tex")
	e.SetFSData([]byte("v1"))
	e.Seen = 5

	snap := e.Snapshot()

	e.SetFSData([]byte("v2"))
	e.Seen = 99
	require.Equal(t, []byte("v2"), e.EffectiveData())

	e.Restore(snap)
	assert.Equal(t, []byte("v1"), e.EffectiveData())
	assert.EqualValues(t, 5, e.Seen)
}

func TestClearFSDataPreservesData(t *testing.T) {
	t.Parallel()

	e := newEntry("/t/main.tex")
	e.SetFSData([]byte("cached"))
	require.True(t, e.HasFSData())

	e.ClearFSData()
	assert.False(t, e.HasFSData(), "cleared entry should report absent")
	assert.Equal(t, []byte("cached"), e.FSData, "clearing must not evict the cached bytes (spec.md §7)")
}
