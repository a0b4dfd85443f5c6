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

// Package fences implements the speculative read-limit barriers of
// spec.md §4.9: a small ordered list of "worker may not read past
// offset O in file F" pairs that turn a READ past the barrier into a
// FORK instead of delivering bytes, so the engine gets a fresh
// snapshot at exactly the point a rollback needs one.
package fences

import (
	"texpressocore/internal/common"
	"texpressocore/internal/trace"
	"texpressocore/internal/vfs"
)

// MaxFences bounds the list (spec.md §3: "up to 16 {entry, position}
// pairs").
const MaxFences = 16

// readClamp is the byte alignment fence 0's position is rounded down
// to (spec.md §4.9: "rounded down to 64-byte boundary").
const readClamp = 64

// initialGapMillis and the doubling rule give the exponentially
// growing time gap used to pick each subsequent fence (spec.md §4.9:
// "initial 50 ms, doubled each step").
const initialGapMillis = 50

// leadMillis is subtracted from the target trace record's time before
// walking backward for older fences (spec.md §4.9: "measured backward
// from trace[trace_len].time − 10 ms").
const leadMillis = 10

// Fence is one {entry, position} barrier.
type Fence struct {
	Entry    *vfs.FileEntry
	Position int64
}

// Fences is the ordered barrier list with its active index.
type Fences struct {
	list     [MaxFences]Fence
	n        int
	FencePos int // -1 = no fences (spec.md §3)
}

// Options lets a deployment retune the timing constants spec.md §4.9
// fixes at 64/50/10ms, surfaced through internal/config so an operator
// can widen the fence spacing on a slower worker without touching code.
// A zero value for any field falls back to the spec.md default.
type Options struct {
	ReadClamp        int64
	InitialGapMillis int64
	LeadMillis       int64
}

func (o Options) withDefaults() Options {
	if o.ReadClamp == 0 {
		o.ReadClamp = readClamp
	}
	if o.InitialGapMillis == 0 {
		o.InitialGapMillis = initialGapMillis
	}
	if o.LeadMillis == 0 {
		o.LeadMillis = leadMillis
	}
	return o
}

// New creates an empty Fences with FencePos = -1.
func New() *Fences {
	return &Fences{FencePos: -1}
}

// Active reports whether a fence currently applies, and returns it.
func (f *Fences) Active() (Fence, bool) {
	if f.FencePos < 0 {
		return Fence{}, false
	}
	if f.FencePos >= f.n {
		common.Abort("fences.Active", "fence_pos %d out of range [0,%d)", f.FencePos, f.n)
	}
	return f.list[f.FencePos], true
}

// Descend moves to the next fence toward fence 0 (the fence on the
// rollback target record) after the active one has been consumed by a
// FORK (spec.md §4.7 READ: "decrement fence_pos").
func (f *Fences) Descend() {
	f.FencePos--
}

// Reset clears all fences (FencePos = -1, none placed).
func (f *Fences) Reset() {
	f.n = 0
	f.FencePos = -1
}

// possibleFence reports whether record r is eligible to host a fence:
// seen in (-1, INT_MAX) and the entry's saved level is at most READ
// (spec.md §4.9).
func possibleFence(r trace.Record) bool {
	if r.Seen <= vfs.NeverSeen || r.Seen >= vfs.NotFound {
		return false
	}
	return r.Entry.Saved.Level <= vfs.LevelRead
}

func clampDown(v, multiple int64) int64 {
	if v < 0 {
		return 0
	}
	return (v / multiple) * multiple
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Compute implements compute_fences(trace_len, offset) (spec.md §4.9):
// it walks tr backward from traceLen placing up to MaxFences barriers,
// stopping at floorTraceLen (the deepest already-existing snapshot's
// trace_len, below which we must not fence). It returns the resulting
// Fences and the resume-trace index the caller should roll the ladder
// back to.
func Compute(tr *trace.Trace, traceLen int, offset int64, floorTraceLen int) (*Fences, int) {
	return ComputeWithOptions(tr, traceLen, offset, floorTraceLen, Options{})
}

// ComputeWithOptions is Compute with operator-tunable timing constants
// (internal/config's global settings), see Options.
func ComputeWithOptions(tr *trace.Trace, traceLen int, offset int64, floorTraceLen int, opts Options) (*Fences, int) {
	opts = opts.withDefaults()
	out := New()
	if traceLen <= 0 || traceLen > tr.Len() {
		return out, traceLen
	}

	target := tr.At(traceLen - 1)
	pos0 := clampDown(max64(offset, 0), opts.ReadClamp)
	if pos0 < target.Seen {
		pos0 = target.Seen
	}
	out.list[0] = Fence{Entry: target.Entry, Position: pos0}
	out.n = 1

	deadline := target.Time - opts.LeadMillis
	gap := opts.InitialGapMillis
	resume := traceLen

	for i := traceLen - 2; i >= 0 && i >= floorTraceLen && out.n < MaxFences; i-- {
		r := tr.At(i)
		if r.Time > deadline {
			continue
		}
		if !possibleFence(r) {
			continue
		}
		out.list[out.n] = Fence{Entry: r.Entry, Position: r.Seen}
		out.n++
		resume = i + 1
		deadline = r.Time - gap
		gap *= 2
	}

	if out.n > 0 {
		out.FencePos = out.n - 1
	}
	return out, resume
}

// AppliesTo reports whether the active fence (if any) guards entry,
// returning its position.
func (f *Fences) AppliesTo(entry *vfs.FileEntry) (int64, bool) {
	fence, ok := f.Active()
	if !ok || fence.Entry != entry {
		return 0, false
	}
	return fence.Position, true
}
