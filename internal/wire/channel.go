// Copyright 2024 LatentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"texpressocore/internal/common"
)

// Channel is the bidirectional, framed message transport described in
// spec.md §4.1. It owns read/write buffering and the single-fd-per-CHLD
// ancillary data convention; the Engine drives it one query/answer round
// trip at a time from step() (spec.md §5).
//
// The shape of Server/Client request-response plumbing here follows the
// teacher daemon's internal/daemon/ipc.go Server/Client pair, adapted
// from line-oriented JSON framing to the spec's fixed binary layout and
// from net.Conn to *net.UnixConn so ancillary fd passing (unix.UnixRights)
// is available.
type Channel struct {
	conn *net.UnixConn

	in       []byte // buffered, unconsumed input
	inPos    int
	pendingFds []int // fds received via SCM_RIGHTS, awaiting a CHLD query

	out bytes.Buffer

	scratch []byte

	log *log.Entry
}

// New wraps a connected Unix-domain socket. The socket must support
// SCM_RIGHTS ancillary data (AF_UNIX, SOCK_STREAM); spec.md §4.1 assumes
// nothing more exotic than "a bidirectional byte stream with ancillary
// file-descriptor passing".
func New(conn *net.UnixConn) *Channel {
	return &Channel{
		conn: conn,
		log:  log.WithField("component", "wire.Channel"),
	}
}

// NewFromFD adopts a raw OS file descriptor (as handed to the Engine by
// a WorkerSpawner, or received via CHLD) as the Channel's transport.
func NewFromFD(fd int) (*Channel, error) {
	f := os.NewFile(uintptr(fd), "worker-socket")
	c, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("wire: adopt fd %d: %w", fd, err)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("wire: fd %d is not a unix socket", fd)
	}
	return New(uc), nil
}

// Reset discards all buffered input and output, per spec.md §4.1
// "reset(), set_fd(fd) — swap the underlying stream, discarding buffered
// input/output." Used by the process ladder on push/pop so a freshly
// forked or restored worker starts with a clean Channel.
func (c *Channel) Reset() {
	c.in = c.in[:0]
	c.inPos = 0
	c.pendingFds = c.pendingFds[:0]
	c.out.Reset()
}

// SetFD swaps the underlying stream to fd, discarding buffered state.
func (c *Channel) SetFD(fd int) error {
	nc, err := NewFromFD(fd)
	if err != nil {
		return err
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nc.conn
	c.Reset()
	return nil
}

// GetBuffer returns a scratch buffer of at least n bytes, growing it if
// necessary. The Engine stages OPEN/READ/WRITE payloads here before
// handing them to write_answer/write_ask so repeated calls don't churn
// the allocator (spec.md §4.1).
func (c *Channel) GetBuffer(n int) []byte {
	if cap(c.scratch) < n {
		c.scratch = make([]byte, n)
	}
	return c.scratch[:n]
}

// --- reading -------------------------------------------------------------

// fill ensures at least n unconsumed bytes are buffered in c.in,
// reading (and retrying on EINTR, which Go's net package already does
// internally) from the socket as needed. It returns
// common.ErrStreamClosed when the peer closes or resets the stream
// before n bytes are buffered — a clean end-of-stream per spec.md
// §4.1's ECONNRESET handling.
func (c *Channel) fill(n int) error {
	for len(c.in)-c.inPos < n {
		if c.inPos > 0 && c.inPos == len(c.in) {
			c.in = c.in[:0]
			c.inPos = 0
		} else if c.inPos > 4096 {
			c.in = append(c.in[:0], c.in[c.inPos:]...)
			c.inPos = 0
		}

		buf := make([]byte, 65536)
		oob := make([]byte, 256)
		nr, noob, _, _, err := c.conn.ReadMsgUnix(buf, oob)
		if nr == 0 && noob == 0 {
			if err == nil {
				err = io.EOF
			}
			if isConnReset(err) || errors.Is(err, io.EOF) {
				return common.ErrStreamClosed
			}
			return fmt.Errorf("wire: read: %w", err)
		}
		if noob > 0 {
			fds := parseRights(oob[:noob])
			if len(fds) > 1 {
				common.Abort("CHLD", "received %d fds in one frame, want at most 1", len(fds))
			}
			c.pendingFds = append(c.pendingFds, fds...)
		}
		c.in = append(c.in, buf[:nr]...)
	}
	return nil
}

// parseRights extracts file descriptors from a raw SCM_RIGHTS ancillary
// message. unix.ParseSocketControlMessage + unix.ParseUnixRights is the
// idiomatic x/sys/unix pairing for this.
func parseRights(oob []byte) []int {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil
	}
	var fds []int
	for _, m := range msgs {
		fs, err := unix.ParseUnixRights(&m)
		if err != nil {
			continue
		}
		fds = append(fds, fs...)
	}
	return fds
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, net.ErrClosed)
}

func (c *Channel) readByte() (byte, error) {
	if err := c.fill(1); err != nil {
		return 0, err
	}
	b := c.in[c.inPos]
	c.inPos++
	return b, nil
}

func (c *Channel) readN(n int) ([]byte, error) {
	if err := c.fill(n); err != nil {
		return nil, err
	}
	b := c.in[c.inPos : c.inPos+n]
	c.inPos += n
	return b, nil
}

func (c *Channel) readU32() (uint32, error) {
	b, err := c.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Channel) readI32() (int32, error) {
	v, err := c.readU32()
	return int32(v), err
}

func (c *Channel) readI64() (int64, error) {
	b, err := c.readN(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (c *Channel) readF32() (float32, error) {
	v, err := c.readU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (c *Channel) readCString() (string, error) {
	var b []byte
	for {
		ch, err := c.readByte()
		if err != nil {
			return "", err
		}
		if ch == 0 {
			return string(b), nil
		}
		b = append(b, ch)
	}
}

// Handshake performs the fixed 12-byte exchange of spec.md §6. It
// returns true unless the client's reply was a complete 12 bytes that
// mismatch HandshakeClient — a short read is treated as "not yet
// negotiated, retry later", per §4.1.
func (c *Channel) Handshake() (bool, error) {
	if _, err := c.out.WriteString(HandshakeServer); err != nil {
		return false, err
	}
	if err := c.Flush(); err != nil {
		return false, err
	}
	b, err := c.readN(len(HandshakeClient))
	if err != nil {
		if errors.Is(err, common.ErrStreamClosed) {
			return true, nil
		}
		return false, err
	}
	return string(b) == HandshakeClient, nil
}

// HasPendingQuery reports whether any query bytes are already buffered,
// or arrive within timeout. Go's net.Conn deadlines already
// retry EINTR internally, matching spec.md §4.1's "interrupted by
// signals are retried transparently".
func (c *Channel) HasPendingQuery(timeout time.Duration) bool {
	if len(c.in)-c.inPos > 0 {
		return true
	}
	deadline := time.Now().Add(timeout)
	_ = c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	err := c.fill(1)
	return err == nil
}

// PeekQuery returns the tag of the next query without consuming it.
func (c *Channel) PeekQuery() (Tag, error) {
	if err := c.fill(4); err != nil {
		return 0, err
	}
	return Tag(binary.LittleEndian.Uint32(c.in[c.inPos : c.inPos+4])), nil
}

// ReadQuery parses and consumes one framed query. It returns (nil, nil)
// on a clean end-of-stream encountered exactly at a frame boundary.
func (c *Channel) ReadQuery() (*Query, error) {
	tagVal, err := c.readU32()
	if err != nil {
		if errors.Is(err, common.ErrStreamClosed) {
			return nil, nil
		}
		return nil, err
	}
	t := Tag(tagVal)

	timeVal, err := c.readI32()
	if err != nil {
		return nil, err
	}

	q := &Query{Tag: t, Time: timeVal}

	switch t {
	case TagOPEN:
		if q.Fid, err = c.readI32(); err != nil {
			return nil, err
		}
		if q.Path, err = c.readCString(); err != nil {
			return nil, err
		}
		if q.Mode, err = c.readCString(); err != nil {
			return nil, err
		}

	case TagREAD:
		if q.Fid, err = c.readI32(); err != nil {
			return nil, err
		}
		if q.Pos, err = c.readI64(); err != nil {
			return nil, err
		}
		if q.Size, err = c.readI32(); err != nil {
			return nil, err
		}

	case TagWRIT:
		if q.Fid, err = c.readI32(); err != nil {
			return nil, err
		}
		if q.Pos, err = c.readI64(); err != nil {
			return nil, err
		}
		if q.Size, err = c.readI32(); err != nil {
			return nil, err
		}
		if q.Size < 0 {
			common.Abort("WRIT", "negative payload size %d", q.Size)
		}
		data, err := c.readN(int(q.Size))
		if err != nil {
			return nil, err
		}
		q.Data = append([]byte(nil), data...)

	case TagCLOS, TagSIZE:
		if q.Fid, err = c.readI32(); err != nil {
			return nil, err
		}

	case TagSEEN:
		if q.Fid, err = c.readI32(); err != nil {
			return nil, err
		}
		if q.Pos, err = c.readI64(); err != nil {
			return nil, err
		}

	case TagGPIC:
		if q.Path, err = c.readCString(); err != nil {
			return nil, err
		}
		if q.PicType, err = c.readI32(); err != nil {
			return nil, err
		}
		if q.PicPage, err = c.readI32(); err != nil {
			return nil, err
		}

	case TagSPIC:
		if q.Path, err = c.readCString(); err != nil {
			return nil, err
		}
		if q.PicCache.Type, err = c.readI32(); err != nil {
			return nil, err
		}
		if q.PicCache.Page, err = c.readI32(); err != nil {
			return nil, err
		}
		for i := range q.PicCache.Bounds {
			if q.PicCache.Bounds[i], err = c.readF32(); err != nil {
				return nil, err
			}
		}

	case TagCHLD:
		if q.Pid, err = c.readI32(); err != nil {
			return nil, err
		}
		if len(c.pendingFds) == 0 {
			common.Abort("CHLD", "no ancillary fd attached to CHLD frame")
		}
		q.Fd = c.pendingFds[0]
		c.pendingFds = c.pendingFds[1:]

	default:
		common.Abort("read_query", "unknown tag %q", t.String())
	}

	return q, nil
}

// --- writing --------------------------------------------------------------

func (c *Channel) writeU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	c.out.Write(b[:])
}

func (c *Channel) writeI32(v int32) { c.writeU32(uint32(v)) }

func (c *Channel) writeI64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	c.out.Write(b[:])
}

func (c *Channel) writeF32(v float32) {
	c.writeU32(math.Float32bits(v))
}

// WriteAnswer serializes and buffers ans for the worker. Call Flush to
// drain the buffer onto the wire.
func (c *Channel) WriteAnswer(ans Answer) error {
	c.writeU32(uint32(ans.Tag))
	switch ans.Tag {
	case TagDONE, TagPASS, TagFORK:
		// no payload
	case TagSIZE:
		c.writeI64(ans.Size)
	case TagREAD:
		c.writeI32(ans.N)
		c.out.Write(ans.Data[:ans.N])
	case TagOPEN:
		c.writeI64(ans.Size)
	case TagGPIC:
		for _, b := range ans.Bounds {
			c.writeF32(b)
		}
	default:
		return fmt.Errorf("wire: unknown answer tag %q", ans.Tag.String())
	}
	return nil
}

// WriteAsk serializes and buffers an out-of-band, server-initiated
// request. FLSH is the only defined variant (spec.md §4.1).
func (c *Channel) WriteAsk(ask Ask) error {
	if ask.Tag != TagFLSH {
		return fmt.Errorf("wire: unknown ask tag %q", ask.Tag.String())
	}
	c.writeU32(uint32(ask.Tag))
	return nil
}

// Flush drains the buffered output onto the wire.
func (c *Channel) Flush() error {
	if c.out.Len() == 0 {
		return nil
	}
	_, err := c.conn.Write(c.out.Bytes())
	c.out.Reset()
	if err != nil {
		return fmt.Errorf("wire: flush: %w", err)
	}
	return nil
}

// readAnswer decodes one Answer frame. Production code never calls this
// (only a worker process, out of this module's scope, reads answers);
// it exists so tests can assert WriteAnswer's encoding round-trips.
func (c *Channel) readAnswer() (*Answer, error) {
	tagVal, err := c.readU32()
	if err != nil {
		return nil, err
	}
	ans := &Answer{Tag: Tag(tagVal)}
	switch ans.Tag {
	case TagDONE, TagPASS, TagFORK:
	case TagSIZE:
		if ans.Size, err = c.readI64(); err != nil {
			return nil, err
		}
	case TagREAD:
		if ans.N, err = c.readI32(); err != nil {
			return nil, err
		}
		data, err := c.readN(int(ans.N))
		if err != nil {
			return nil, err
		}
		ans.Data = append([]byte(nil), data...)
	case TagOPEN:
		if ans.Size, err = c.readI64(); err != nil {
			return nil, err
		}
	case TagGPIC:
		for i := range ans.Bounds {
			if ans.Bounds[i], err = c.readF32(); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("wire: unknown answer tag %q", ans.Tag.String())
	}
	return ans, nil
}

// Close releases the underlying socket.
func (c *Channel) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
