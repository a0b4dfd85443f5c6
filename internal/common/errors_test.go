package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorDefinitions(t *testing.T) {
	t.Parallel()

	errs := []error{
		ErrNotFound,
		ErrExists,
		ErrNotDir,
		ErrIsDir,
		ErrInvalidPath,
		ErrInvalidHandle,
		ErrIO,
		ErrStreamClosed,
	}

	t.Run("all errors are non-nil", func(t *testing.T) {
		t.Parallel()
		for i, err := range errs {
			require.NotNil(t, err, "error at index %d should not be nil", i)
		}
	})

	t.Run("all error messages are unique", func(t *testing.T) {
		t.Parallel()
		seen := make(map[string]bool)
		for _, err := range errs {
			msg := err.Error()
			assert.False(t, seen[msg], "duplicate error message: %s", msg)
			seen[msg] = true
		}
	})
}

func TestProtocolError(t *testing.T) {
	t.Parallel()

	err := Protocolf("OPEN", "fid %d out of range", 99)
	assert.Equal(t, "protocol violation in OPEN: fid 99 out of range", err.Error())

	var pe *ProtocolError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "OPEN", pe.Op)
}

func TestAbortPanicsWithProtocolError(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		pe, ok := r.(*ProtocolError)
		require.True(t, ok, "expected *ProtocolError, got %T", r)
		assert.Equal(t, "CLOS", pe.Op)
	}()

	Abort("CLOS", "fid %d not open", 3)
}
