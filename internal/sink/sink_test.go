package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"texpressocore/internal/engine"
)

func TestAppendAccumulates(t *testing.T) {
	t.Parallel()

	b := New()
	b.Append(engine.SinkLog, []byte("hello "))
	b.Append(engine.SinkLog, []byte("world"))

	assert.Equal(t, "hello world", string(b.Bytes(engine.SinkLog)))
	assert.Equal(t, 0, b.Len(engine.SinkStdout))
}

func TestTruncateShortensChannel(t *testing.T) {
	t.Parallel()

	b := New()
	b.Append(engine.SinkStdout, []byte("0123456789"))
	b.Truncate(engine.SinkStdout, 4)

	assert.Equal(t, "0123", string(b.Bytes(engine.SinkStdout)))
	assert.Equal(t, 4, b.Len(engine.SinkStdout))
}

func TestTruncatePastLengthIsNoop(t *testing.T) {
	t.Parallel()

	b := New()
	b.Append(engine.SinkStdout, []byte("abc"))
	b.Truncate(engine.SinkStdout, 100)

	assert.Equal(t, "abc", string(b.Bytes(engine.SinkStdout)))
}

func TestChannelsAreIndependent(t *testing.T) {
	t.Parallel()

	b := New()
	b.Append(engine.SinkStdout, []byte("out"))
	b.Append(engine.SinkLog, []byte("log"))

	assert.Equal(t, "out", string(b.Bytes(engine.SinkStdout)))
	assert.Equal(t, "log", string(b.Bytes(engine.SinkLog)))
}
