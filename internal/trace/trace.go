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

// Package trace implements the per-process ordered read log of
// spec.md §4.5: a growable record of which FileEntry was observed at
// which seen-offset, at what logical time, with a coalescing rule that
// keeps the log from growing one record per bump when a worker advances
// its view of the same entry repeatedly with no other entry in between.
package trace

import "texpressocore/internal/vfs"

// Record is one "{ entry, seen, time }" observation (spec.md §4.5).
type Record struct {
	Entry *vfs.FileEntry
	Seen  int64
	Time  int64
}

// Trace is the ordered, growable log kept by each live process. Grown
// by doubling from an initial capacity of 8, mirroring the teacher's
// dynamic-array growth in internal/cache/cache.go's entry slice.
type Trace struct {
	records []Record
}

// New creates an empty Trace with an initial capacity of 8.
func New() *Trace {
	return &Trace{records: make([]Record, 0, 8)}
}

// Len reports how many records are currently on the trace.
func (t *Trace) Len() int {
	return len(t.records)
}

// At returns the record at index i.
func (t *Trace) At(i int) Record {
	return t.records[i]
}

// RecordSeen bumps entry.Seen to seen and appends or coalesces an
// observation (spec.md §4.5 record_seen). A record always captures
// entry's seen from *before* this bump, never the new value: if the
// most recent record already names entry, only entry.Seen and the
// record's Time advance in place; otherwise a new record is appended
// carrying the old entry.Seen. Silently does nothing if seen doesn't
// advance entry.Seen (never rewound).
func (t *Trace) RecordSeen(entry *vfs.FileEntry, seen int64, now int64) {
	if seen <= entry.Seen {
		return
	}
	prev := entry.Seen
	entry.Seen = seen

	if n := len(t.records); n > 0 {
		last := &t.records[n-1]
		if last.Entry == entry {
			last.Time = now
			return
		}
	}
	if len(t.records) == cap(t.records) {
		grown := make([]Record, len(t.records), 2*cap(t.records))
		copy(grown, t.records)
		t.records = grown
	}
	t.records = append(t.records, Record{Entry: entry, Seen: prev, Time: now})
}

// RevertTrace drops every record with Time > cutoff, implementing
// spec.md §4.5's revert_trace: when a process forks off an ancestor
// snapshot, its trace must be truncated back to what that ancestor had
// actually observed, discarding anything witnessed only by the more
// advanced descendant being replaced.
func (t *Trace) RevertTrace(cutoff int64) {
	i := len(t.records)
	for i > 0 && t.records[i-1].Time > cutoff {
		i--
	}
	t.records = t.records[:i]
}

// TruncateTo drops every record at or past index n, the index form of
// RevertTrace used once the engine already knows the resume trace
// index (spec.md §4.8 step 4's "revert any remaining trace records
// beyond the ladder's top").
func (t *Trace) TruncateTo(n int) {
	if n < len(t.records) {
		t.records = t.records[:n]
	}
}

// Clone returns an independent copy of t, used when a process forks a
// child that starts from the same observed history.
func (t *Trace) Clone() *Trace {
	c := &Trace{records: make([]Record, len(t.records), cap(t.records))}
	copy(c.records, t.records)
	return c
}
