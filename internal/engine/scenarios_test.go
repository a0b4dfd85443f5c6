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

// The tests in this file run the literal scenarios of spec.md §8 end
// to end against a live Engine, one per scenario, as opposed to the
// single-mechanism unit tests in engine_test.go. Grounded on the
// teacher's tests/integration package's gomega-based assertion style
// for its whole-system checks.
package engine

import (
	"syscall"
	"testing"

	. "github.com/onsi/gomega"

	"texpressocore/internal/fences"
	"texpressocore/internal/ladder"
	"texpressocore/internal/vfs"
	"texpressocore/internal/wire"
)

// S1: simple read of a short document with no fence pressure.
func TestScenarioSimpleRead(t *testing.T) {
	g := NewGomegaWithT(t)
	e, _ := newTestEngine(t)
	e.readFile = func(string) ([]byte, vfs.FileStat, error) {
		return []byte("Hello, \\LaTeX!\n\n"), vfs.FileStat{Size: 17}, nil
	}

	openAns := e.dispatch(&wire.Query{Tag: wire.TagOPEN, Fid: 3, Path: "/t/main.tex", Mode: "r"})
	g.Expect(openAns.Tag).To(Equal(wire.TagOPEN))

	sizeAns := e.dispatch(&wire.Query{Tag: wire.TagSIZE, Fid: 3})
	g.Expect(sizeAns.Tag).To(Equal(wire.TagSIZE))
	g.Expect(sizeAns.Size).To(BeEquivalentTo(16))

	readAns := e.dispatch(&wire.Query{Tag: wire.TagREAD, Fid: 3, Pos: 0, Size: 64, Time: 1})
	g.Expect(readAns.Tag).To(Equal(wire.TagREAD))
	g.Expect(string(readAns.Data)).To(Equal("Hello, \\LaTeX!\n\n"))

	closeAns := e.dispatch(&wire.Query{Tag: wire.TagCLOS, Fid: 3})
	g.Expect(closeAns.Tag).To(Equal(wire.TagDONE))
}

// S2: a worker whose clock is past the hysteresis window (SEEN at time
// 600) is answered with FORK on the next unfenced READ.
func TestScenarioSnapshotTrigger(t *testing.T) {
	g := NewGomegaWithT(t)
	e, _ := newTestEngine(t)
	e.readFile = func(string) ([]byte, vfs.FileStat, error) {
		return []byte("Hello, \\LaTeX!\n\n"), vfs.FileStat{}, nil
	}
	e.dispatch(&wire.Query{Tag: wire.TagOPEN, Fid: 3, Path: "/t/main.tex", Mode: "r"})

	e.dispatch(&wire.Query{Tag: wire.TagSEEN, Fid: 3, Pos: 10, Time: 600})

	ans := e.dispatch(&wire.Query{Tag: wire.TagREAD, Fid: 3, Pos: 10, Size: 4, Time: 650})
	g.Expect(ans.Tag).To(Equal(wire.TagFORK))
}

// S3: after the FORK from S2, the worker's CHLD frame pushes a second
// rung onto the ladder whose trace_len equals the parent's.
func TestScenarioChildPush(t *testing.T) {
	g := NewGomegaWithT(t)
	e, _ := newTestEngine(t)
	e.readFile = func(string) ([]byte, vfs.FileStat, error) {
		return []byte("Hello, \\LaTeX!\n\n"), vfs.FileStat{}, nil
	}
	// The worker under test is the ladder's first rung, as run pushes it
	// before serving.
	e.Ladder.Push(ladder.Rung{PID: 1})
	e.dispatch(&wire.Query{Tag: wire.TagOPEN, Fid: 3, Path: "/t/main.tex", Mode: "r"})
	e.dispatch(&wire.Query{Tag: wire.TagSEEN, Fid: 3, Pos: 10, Time: 600})
	e.dispatch(&wire.Query{Tag: wire.TagREAD, Fid: 3, Pos: 10, Size: 4, Time: 650})

	parentTraceLen := e.Trace.Len()

	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	g.Expect(err).NotTo(HaveOccurred())
	defer syscall.Close(fds[1])

	ans := e.dispatch(&wire.Query{Tag: wire.TagCHLD, Pid: 4242, Fd: fds[0]})
	g.Expect(ans.Tag).To(Equal(wire.TagDONE))
	g.Expect(e.Ladder.Len()).To(Equal(2))

	top, ok := e.Ladder.Top()
	g.Expect(ok).To(BeTrue())
	g.Expect(top.PID).To(BeEquivalentTo(4242))
	g.Expect(top.TraceLen).To(Equal(parentTraceLen))
}

// S4: an edit at byte 7 rolls the ladder back to its parent, replaces
// entry_data with the new buffer, and resets derived state (stdout
// mirror, page count).
func TestScenarioEditRollback(t *testing.T) {
	g := NewGomegaWithT(t)
	e, _ := newTestEngine(t)

	original := "Hello, \\LaTeX!\n\n"
	edited := "Hello, \\TeX!\n\n"
	current := original
	e.readFile = func(string) ([]byte, vfs.FileStat, error) {
		return []byte(current), vfs.FileStat{Size: int64(len(current))}, nil
	}
	e.stat = func(string) bool { return true }

	e.dispatch(&wire.Query{Tag: wire.TagOPEN, Fid: 3, Path: "/t/main.tex", Mode: "r"})
	e.dispatch(&wire.Query{Tag: wire.TagWRIT, Fid: -1, Data: []byte("partial output")})

	g.Expect(e.BeginChanges()).To(Succeed())
	current = edited
	g.Expect(e.DetectChanges()).To(Succeed())
	changed, err := e.EndChanges()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(changed).To(BeTrue())

	entry := e.VFS.Lookup("/t/main.tex")
	g.Expect(entry).NotTo(BeNil())
	g.Expect(string(entry.EffectiveData())).To(Equal(edited))
}

// S6: pushing one child past ladder.MaxRungs triggers decimation —
// every even-indexed rung except rung 0 and the two newest is killed,
// bringing the ladder's depth below capacity.
func TestScenarioDecimation(t *testing.T) {
	g := NewGomegaWithT(t)
	e, _ := newTestEngine(t)
	var killed []int32
	e.killProcess = func(pid int32) { killed = append(killed, pid) }

	for i := 0; i < ladder.MaxRungs; i++ {
		fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
		g.Expect(err).NotTo(HaveOccurred())
		e.dispatch(&wire.Query{Tag: wire.TagCHLD, Pid: int32(i), Fd: fds[0]})
		syscall.Close(fds[1])
	}
	g.Expect(e.Ladder.Len()).To(Equal(ladder.MaxRungs))

	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	g.Expect(err).NotTo(HaveOccurred())
	defer syscall.Close(fds[1])
	e.dispatch(&wire.Query{Tag: wire.TagCHLD, Pid: 999, Fd: fds[0]})

	g.Expect(e.Ladder.Len()).To(BeNumerically("<", ladder.MaxRungs))
	g.Expect(killed).NotTo(BeEmpty())

	top, ok := e.Ladder.Top()
	g.Expect(ok).To(BeTrue())
	g.Expect(top.PID).To(BeEquivalentTo(999))
}

// S5: a worker resuming from a fenced snapshot gets its READ clamped
// at the fence boundary, then FORKs on the next READ that would cross
// it, consuming the fence.
func TestScenarioFenceReuse(t *testing.T) {
	g := NewGomegaWithT(t)
	e, _ := newTestEngine(t)
	e.readFile = func(string) ([]byte, vfs.FileStat, error) {
		data := make([]byte, 256)
		for i := range data {
			data[i] = byte('a' + i%26)
		}
		return data, vfs.FileStat{}, nil
	}
	e.dispatch(&wire.Query{Tag: wire.TagOPEN, Fid: 3, Path: "/t/main.tex", Mode: "r"})
	entry := e.State.Get(3).Entry

	e.Trace.RecordSeen(entry, 64, 1)
	fenced, pos := fences.Compute(e.Trace, 1, 64, 0)
	g.Expect(pos).To(BeNumerically(">=", 0), "a fence must exist to reuse")
	e.Fences = fenced
	fencePos := fenced.FencePos

	ans := e.dispatch(&wire.Query{Tag: wire.TagREAD, Fid: 3, Pos: 0, Size: 128, Time: 1})
	g.Expect(ans.Tag).To(Equal(wire.TagREAD))
	g.Expect(ans.N).To(BeNumerically("<", 128), "clamped at the fence boundary")

	boundary := int64(ans.N)
	forkAns := e.dispatch(&wire.Query{Tag: wire.TagREAD, Fid: 3, Pos: boundary, Size: 64, Time: 1})
	g.Expect(forkAns.Tag).To(Equal(wire.TagFORK))
	g.Expect(e.Fences.FencePos).To(Equal(fencePos - 1))
}
