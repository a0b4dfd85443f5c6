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

// Package vfs holds the in-memory, path-keyed FileEntry arena the
// Engine serves worker reads from (spec.md §3). FileEntries are created
// lazily on first mention and never freed; they are referenced by
// stable *FileEntry pointer throughout the Trace, State tables and
// Fences, the same non-owning-reference shape the teacher daemon's
// internal/vfs/handles.go gives its openHandle.
package vfs

import "math"

// SavedLevel records how far a worker-bound slot has progressed toward
// producing its own data, per spec.md §3's saved.level field.
type SavedLevel int

const (
	LevelNone SavedLevel = iota
	LevelRead
	LevelWrite
)

// NeverSeen and NotFound are the two sentinel values FileEntry.Seen can
// hold outside the ordinary non-negative range (spec.md §3).
const (
	NeverSeen       = -1
	NotFound  int64 = math.MaxInt64 // INT_MAX-equivalent "deliberately unresolved"
)

// FileStat mirrors the subset of a stat(2) result the Engine needs for
// change detection (spec.md §3).
type FileStat struct {
	Device uint64
	Inode  uint64
	Size   int64
	Mtime  int64 // nanoseconds since epoch
}

// IsZero reports whether the entry has never been stated, per
// FileEntry.fs_stat's "zero if never stated" rule.
func (s FileStat) IsZero() bool {
	return s == FileStat{}
}

// PicCache is the graphics bounding-box memo of spec.md §3.
type PicCache struct {
	Type   int32
	Page   int32
	Bounds [4]float32
}

// Saved holds worker-produced contents (for write-mode entries) or the
// promoted state of a read-mode entry, per spec.md §3's `saved` field.
type Saved struct {
	Data  []byte
	Level SavedLevel
}

// FileEntry is the VFS record of everything known about one path. One
// instance exists per path ever mentioned over the engine's lifetime
// (spec.md §3's "Lifecycle" — created lazily, never destroyed).
type FileEntry struct {
	Path string

	FSData []byte
	FSStat FileStat
	fsSet  bool // distinguishes "fs_data explicitly set to nil" from "never loaded"

	EditData []byte
	editSet  bool

	Saved Saved

	// Seen is the highest byte offset any worker has observed from this
	// entry's effective data. NeverSeen (-1) means "never seen"; NotFound
	// means "deliberately unresolved" (the worker asked and was told the
	// path does not exist).
	Seen int64

	PicCache *PicCache

	// DebugRollbackInvalidation is the spec.md §3 test hook: an offset
	// above which reads must not occur after rollback, or -1 when unset.
	DebugRollbackInvalidation int64
}

func newEntry(path string) *FileEntry {
	return &FileEntry{
		Path:                      path,
		Seen:                      NeverSeen,
		DebugRollbackInvalidation: -1,
	}
}

// HasFSData reports whether fs_data has ever been set (possibly to an
// empty-but-present slice), distinct from "never loaded".
func (e *FileEntry) HasFSData() bool { return e.fsSet }

// SetFSData sets fs_data (and marks it present), mirroring a filesystem
// scan or read result landing on the entry.
func (e *FileEntry) SetFSData(data []byte) {
	e.FSData = data
	e.fsSet = true
}

// ClearFSData marks fs_data absent without discarding the backing
// slice, matching spec.md §7's "recoverable" filesystem error handling:
// a read error during a scan treats the entry as removed without
// evicting cached data, so a later successful read can reinstate it.
func (e *FileEntry) ClearFSData() {
	e.fsSet = false
	e.FSStat = FileStat{}
}

// HasEditData reports whether an editor overlay has ever been set.
func (e *FileEntry) HasEditData() bool { return e.editSet }

// SetEditData installs the editor-provided overlay.
func (e *FileEntry) SetEditData(data []byte) {
	e.EditData = data
	e.editSet = true
}

// EffectiveData implements spec.md §3's non-negotiable entry_data rule:
// saved.data if present, else edit_data if present, else fs_data.
func (e *FileEntry) EffectiveData() []byte {
	if e.Saved.Data != nil {
		return e.Saved.Data
	}
	if e.editSet {
		return e.EditData
	}
	return e.FSData
}

// EntrySnapshot captures every mutable field of a FileEntry so the
// Journal can restore it verbatim (journal.LogFileEntry, spec.md §4.3).
// The journal package stores these opaquely alongside the *FileEntry
// they belong to (spec.md §9 "journal as a vector of closures or tagged
// structs") without knowing their internal shape.
type EntrySnapshot struct {
	fsData                    []byte
	fsStat                    FileStat
	fsSet                     bool
	editData                  []byte
	editSet                   bool
	saved                     Saved
	seen                      int64
	picCache                  *PicCache
	debugRollbackInvalidation int64
}

// Snapshot captures the entry's current mutable fields.
func (e *FileEntry) Snapshot() EntrySnapshot {
	return EntrySnapshot{
		fsData:                    e.FSData,
		fsStat:                    e.FSStat,
		fsSet:                     e.fsSet,
		editData:                  e.EditData,
		editSet:                   e.editSet,
		saved:                     e.Saved,
		seen:                      e.Seen,
		picCache:                  e.PicCache,
		debugRollbackInvalidation: e.DebugRollbackInvalidation,
	}
}

// Restore overwrites the entry's mutable fields from a prior Snapshot.
func (e *FileEntry) Restore(s EntrySnapshot) {
	e.FSData = s.fsData
	e.FSStat = s.fsStat
	e.fsSet = s.fsSet
	e.EditData = s.editData
	e.editSet = s.editSet
	e.Saved = s.saved
	e.Seen = s.seen
	e.PicCache = s.picCache
	e.DebugRollbackInvalidation = s.debugRollbackInvalidation
}
