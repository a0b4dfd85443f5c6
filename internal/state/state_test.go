package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"texpressocore/internal/vfs"
)

func TestGetOutOfRangeAborts(t *testing.T) {
	t.Parallel()

	s := New()
	assert.Panics(t, func() { s.Get(-1) })
	assert.Panics(t, func() { s.Get(MaxFiles) })
}

func TestGetInRangeReturnsStableSlot(t *testing.T) {
	t.Parallel()

	s := New()
	v := vfs.New()
	entry := v.LookupOrCreate("/a.tex")

	s.Get(3).Entry = entry
	assert.Same(t, entry, s.Get(3).Entry)
}

func TestClaimSingletonFirstClaim(t *testing.T) {
	t.Parallel()

	s := New()
	v := vfs.New()
	entry := v.LookupOrCreate("/out.log")

	s.ClaimSingleton(Stdout, entry)
	assert.Same(t, entry, s.Singleton(Stdout).Entry)
}

func TestClaimSingletonSameEntryIsNoop(t *testing.T) {
	t.Parallel()

	s := New()
	v := vfs.New()
	entry := v.LookupOrCreate("/out.log")

	s.ClaimSingleton(Stdout, entry)
	assert.NotPanics(t, func() { s.ClaimSingleton(Stdout, entry) })
}

func TestClaimSingletonSecondDistinctClaimAborts(t *testing.T) {
	t.Parallel()

	s := New()
	v := vfs.New()
	a := v.LookupOrCreate("/a.log")
	b := v.LookupOrCreate("/b.log")

	s.ClaimSingleton(Log, a)
	assert.Panics(t, func() { s.ClaimSingleton(Log, b) })
}

func TestClearSingletonsForClearsMatchingSlots(t *testing.T) {
	t.Parallel()

	s := New()
	v := vfs.New()
	entry := v.LookupOrCreate("/doc.tex")

	s.ClaimSingleton(Document, entry)
	s.ClaimSingleton(Stdout, entry)

	s.ClearSingletonsFor(entry, true)
	assert.Same(t, entry, s.Singleton(Document).Entry, "document survives a logical close")
	assert.Nil(t, s.Singleton(Stdout).Entry)

	s.ClearSingletonsFor(entry, false)
	assert.Nil(t, s.Singleton(Document).Entry)
}

func TestSingletonFor(t *testing.T) {
	t.Parallel()

	s := New()
	v := vfs.New()
	entry := v.LookupOrCreate("/x.synctex")
	s.ClaimSingleton(Synctex, entry)

	name, ok := s.SingletonFor(entry)
	assert.True(t, ok)
	assert.Equal(t, Synctex, name)

	other := v.LookupOrCreate("/y.synctex")
	_, ok = s.SingletonFor(other)
	assert.False(t, ok)
}
