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

// Package ladder implements the bounded stack of live worker snapshots
// of spec.md §4.6: the engine keeps a small number of forked workers
// alive at different points in their compilation, so that a FORK answer
// can hand an editor a process that is already most of the way to the
// requested offset instead of restarting from scratch.
package ladder

import (
	"github.com/google/uuid"

	"texpressocore/internal/journal"
)

// MaxRungs bounds the ladder (spec.md §4.6: "at most 32 live rungs").
// Push evicts the oldest rung when the ladder is already full; the
// engine instead thins a full ladder with Decimate before pushing.
const MaxRungs = 32

// Rung is one live worker snapshot: "{ pid, fd, trace_len, snap }"
// (spec.md §3). TraceLen is the trace length at the moment this rung
// was forked. Mark ("snap") is the journal position to roll back to
// when this rung is popped — it starts unset and is only filled in
// retroactively, on the PARENT rung, at the moment that parent forks
// its own child (spec.md §4.6 push: "snap = log_snapshot(), stored
// into the outgoing top-of-stack, not the new entry"). Callers attach
// their own process handle type via Handle. ID tags the rung with a
// stable identity that survives the PID being reused by the OS, so
// debug logs can name a specific snapshot unambiguously across a long
// editing session.
type Rung struct {
	ID       uuid.UUID
	PID      int32
	TraceLen int
	Mark     journal.Mark
	HasMark  bool
	Time     int64
	Handle   any
}

// Ladder is the bounded stack of Rungs, ordered oldest-first.
type Ladder struct {
	rungs []Rung
}

// New creates an empty Ladder.
func New() *Ladder {
	return &Ladder{}
}

// Len reports how many rungs are live.
func (l *Ladder) Len() int {
	return len(l.rungs)
}

// At returns the rung at index i, oldest-first.
func (l *Ladder) At(i int) Rung {
	return l.rungs[i]
}

// Top returns the most recently pushed rung, or false if the ladder is
// empty.
func (l *Ladder) Top() (Rung, bool) {
	if len(l.rungs) == 0 {
		return Rung{}, false
	}
	return l.rungs[len(l.rungs)-1], true
}

// Push adds r as the newest rung. If the ladder is already at
// MaxRungs, the oldest rung is evicted first and returned as evicted
// so the caller can tear down (kill) that worker process; ok reports
// whether an eviction happened.
func (l *Ladder) Push(r Rung) (evicted Rung, ok bool) {
	if len(l.rungs) >= MaxRungs {
		evicted = l.rungs[0]
		l.rungs = append(l.rungs[:0], l.rungs[1:]...)
		ok = true
	}
	l.rungs = append(l.rungs, r)
	return evicted, ok
}

// Nearest returns the rung whose TraceLen is the closest one not after
// targetTraceLen, which is the rung the engine should pop back to (or
// fork from) to reach that trace index with the least replay work.
// Returns false if no such rung exists.
func (l *Ladder) Nearest(targetTraceLen int) (Rung, bool) {
	var best Rung
	found := false
	for _, r := range l.rungs {
		if r.TraceLen <= targetTraceLen && (!found || r.TraceLen > best.TraceLen) {
			best = r
			found = true
		}
	}
	return best, found
}

// SetTopMark fills in the Mark ("snap") field of the current top rung.
// Called at the moment that rung forks a child (spec.md §4.6 push):
// the value is written into the outgoing top, not the new entry being
// pushed. Reports false if the ladder is empty.
func (l *Ladder) SetTopMark(m journal.Mark) bool {
	if len(l.rungs) == 0 {
		return false
	}
	top := &l.rungs[len(l.rungs)-1]
	top.Mark = m
	top.HasMark = true
	return true
}

// Decimate thins a full ladder per spec.md §4.6: keep rung 0, keep the
// newest two rungs verbatim, and among the rest keep only odd indices,
// evicting even ones. Returns the evicted rungs so the caller can
// terminate their processes and close their fds.
func (l *Ladder) Decimate() []Rung {
	n := len(l.rungs)
	if n == 0 {
		return nil
	}
	kept := make([]Rung, 0, n)
	var evicted []Rung
	for i, r := range l.rungs {
		if i == 0 || i >= n-2 || i%2 == 1 {
			kept = append(kept, r)
		} else {
			evicted = append(evicted, r)
		}
	}
	l.rungs = kept
	return evicted
}

// EvictPID removes the rung with the given pid, if present, and
// reports whether anything was removed. Used when a worker dies or is
// explicitly reaped outside the normal push-eviction path.
func (l *Ladder) EvictPID(pid int32) bool {
	for i, r := range l.rungs {
		if r.PID == pid {
			l.rungs = append(l.rungs[:i], l.rungs[i+1:]...)
			return true
		}
	}
	return false
}

// All returns the live rungs, oldest-first. The slice is owned by the
// caller; mutating it does not affect the Ladder.
func (l *Ladder) All() []Rung {
	out := make([]Rung, len(l.rungs))
	copy(out, l.rungs)
	return out
}
