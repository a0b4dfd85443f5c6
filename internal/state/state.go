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

// Package state holds the process-wide open-file table and the
// well-known singleton slots (stdout, document, synctex, log) of
// spec.md §3. Slots reference FileEntry instances owned by the vfs
// package non-owningly — State never creates or frees an entry.
package state

import (
	"texpressocore/internal/common"
	"texpressocore/internal/vfs"
)

// MaxFiles bounds the open-file table (spec.md §4.4): out-of-range fids
// are a fatal protocol error.
const MaxFiles = 256

// Slot is one open-file or singleton cell: "{ entry: FileEntry? }"
// (spec.md §3).
type Slot struct {
	Entry *vfs.FileEntry
}

// Singleton names the four well-known slots.
type Singleton int

const (
	Stdout Singleton = iota
	Document
	Synctex
	Log
	numSingletons
)

func (s Singleton) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Document:
		return "document"
	case Synctex:
		return "synctex"
	case Log:
		return "log"
	default:
		return "unknown"
	}
}

// State is the per-session process-wide table (spec.md §3).
type State struct {
	Table      [MaxFiles]Slot
	singletons [numSingletons]Slot
}

// New creates an empty State.
func New() *State {
	return &State{}
}

// Get returns the slot for fid, aborting (spec.md §4.4: "out-of-range
// fids are fatal protocol errors") if fid is out of range.
func (s *State) Get(fid int32) *Slot {
	if fid < 0 || int(fid) >= MaxFiles {
		common.Abort("state.Get", "fid %d out of range [0,%d)", fid, MaxFiles)
	}
	return &s.Table[fid]
}

// Singleton returns the slot for name.
func (s *State) Singleton(name Singleton) *Slot {
	return &s.singletons[name]
}

// ClaimSingleton binds name to entry. A second claim while the slot is
// already occupied by a different entry is fatal (spec.md §4.4:
// "second claim is fatal"); re-claiming by the same entry is a no-op,
// matching how a worker can legitimately WRITE-open its stdout target
// more than once across its own lifetime without the engine treating
// that as a violation.
func (s *State) ClaimSingleton(name Singleton, entry *vfs.FileEntry) {
	slot := s.Singleton(name)
	if slot.Entry != nil && slot.Entry != entry {
		common.Abort("ClaimSingleton", "%s already bound to %q, cannot rebind to %q", name, slot.Entry.Path, entry.Path)
	}
	slot.Entry = entry
}

// ClearSingletonsFor clears every singleton slot currently pointing at
// entry. Used by CLOSE (spec.md §4.7): "clear any singleton slot
// pointing to the same entry (except document, which is only logically
// closed)".
func (s *State) ClearSingletonsFor(entry *vfs.FileEntry, exceptDocument bool) {
	for i := range s.singletons {
		if Singleton(i) == Document && exceptDocument {
			continue
		}
		if s.singletons[i].Entry == entry {
			s.singletons[i].Entry = nil
		}
	}
}

// SingletonFor returns the Singleton occupied by entry, if any.
func (s *State) SingletonFor(entry *vfs.FileEntry) (Singleton, bool) {
	for i := range s.singletons {
		if s.singletons[i].Entry == entry {
			return Singleton(i), true
		}
	}
	return 0, false
}
