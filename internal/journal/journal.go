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

// Package journal implements the append-only undo log of spec.md §4.3:
// every mutation the Engine makes to a FileEntry or a State cell is
// preceded by a call that snapshots the old value here, so that
// Rollback(mark) can restore exactly that prior state in LIFO order.
// Grounded on the teacher's internal/storage/snapshot.go
// CreateSnapshot/RestoreFromSnapshot pair — same "record enough to
// reverse this mutation" shape, generalized from on-disk SQL rows to an
// in-memory undo record, per spec.md §6's "Persisted state: None".
package journal

// Mark is an opaque position in the Journal. Snapshot reads it;
// Rollback(mark) undoes entries back to that mark.
type Mark int

// Journal is the append-only undo log (spec.md §9: "a vector of
// closures or tagged structs"). It never forgets a record that remains
// reachable from the process ladder — in practice that just means
// callers only take marks they intend to be able to roll back to.
type Journal struct {
	undo []func()
}

// New creates an empty Journal.
func New() *Journal {
	return &Journal{}
}

// Snapshot returns the current tail as a Mark.
func (j *Journal) Snapshot() Mark {
	return Mark(len(j.undo))
}

// Len reports how many records are on the log. Used by invariant checks
// (P6), not by rollback logic itself.
func (j *Journal) Len() int {
	return len(j.undo)
}

// Push records one inverse mutation directly. Prefer Log for the common
// get/set-cell and Snapshot/Restore-entry shapes; Push is the escape
// hatch for anything else (e.g. reverting a Trace record, which has its
// own revert method).
func (j *Journal) Push(undo func()) {
	j.undo = append(j.undo, undo)
}

// Log snapshots the current value via get, then records that set(that
// value) is how to undo whatever the caller is about to do. This is
// log_fileentry when get/set are entry.Snapshot/entry.Restore, and
// log_filecell when they are a slot's getter/setter (spec.md §4.3).
func Log[S any](j *Journal, get func() S, set func(S)) {
	old := get()
	j.Push(func() { set(old) })
}

// Rollback restores the Journal to mark, applying the reverse mutation
// of each popped record in LIFO order (spec.md §4.3 log_rollback).
func (j *Journal) Rollback(mark Mark) {
	for Mark(len(j.undo)) > mark {
		last := j.undo[len(j.undo)-1]
		j.undo = j.undo[:len(j.undo)-1]
		last()
	}
}
