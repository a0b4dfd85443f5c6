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

package vfs

import (
	"path"
	"sort"
	"strings"
	"sync"
)

// VFS is the path-keyed map to FileEntry described in spec.md §4.2.
// Entries are owned here (by path) and referenced non-owningly
// everywhere else (Trace, State, Fences) — the "path-keyed arena" of
// spec.md §9.
type VFS struct {
	mu      sync.RWMutex
	entries map[string]*FileEntry
	order   []string // insertion order, for deterministic Scan
}

// New creates an empty VFS.
func New() *VFS {
	return &VFS{entries: make(map[string]*FileEntry)}
}

// Lookup returns the entry at path, or nil if no entry has ever been
// created for it. Exact match only — inclusion-path expansion is the
// caller's (Engine's) job, per spec.md §4.2.
func (v *VFS) Lookup(p string) *FileEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.entries[p]
}

// LookupOrCreate returns the entry at path, creating it (empty, never
// seen) if this is the first mention.
func (v *VFS) LookupOrCreate(p string) *FileEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	if e, ok := v.entries[p]; ok {
		return e
	}
	e := newEntry(p)
	v.entries[p] = e
	v.order = append(v.order, p)
	return e
}

// Cursor drives Scan's iteration order (spec.md §4.2).
type Cursor struct {
	idx int
}

// Scan returns the next entry in insertion order, advancing cursor, or
// nil once exhausted. Used by detect_changes (spec.md §4.8) to walk
// every known path looking for on-disk changes.
func (v *VFS) Scan(cursor *Cursor) *FileEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if cursor.idx >= len(v.order) {
		return nil
	}
	e := v.entries[v.order[cursor.idx]]
	cursor.idx++
	return e
}

// All returns every known entry, sorted by path, for callers (tests,
// the debug export) that want a deterministic full listing rather than
// a Cursor-driven walk.
func (v *VFS) All() []*FileEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*FileEntry, 0, len(v.entries))
	for _, p := range v.order {
		out = append(out, v.entries[p])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// InclusionPath is the parsed list of directories the Engine searches
// when resolving a bare (non-absolute, non-"./") name, per spec.md
// §4.2. spec.md §9 asks for "a parsed list of directories, not a
// NUL-separated string walked by pointer arithmetic" — this is that
// parsed form.
type InclusionPath struct {
	Dirs []string
}

// ParseInclusionPath splits a NUL-separated directory list, the wire
// shape the Engine's collaborator contract hands in, into an
// InclusionPath.
func ParseInclusionPath(nulSeparated string) InclusionPath {
	var dirs []string
	for _, d := range strings.Split(nulSeparated, "\x00") {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return InclusionPath{Dirs: dirs}
}

// StatFunc reports whether a path exists (and is statable) on the real
// filesystem. The Engine supplies this; tests supply a fake.
type StatFunc func(path string) bool

// Resolve implements spec.md §4.2's inclusion-path resolution: if name
// is absolute or begins with "./", strip the latter and only try the
// name as given; otherwise try each directory (joined with "/") in
// order and return the first that stats successfully. Returns ("", false)
// if nothing resolves.
func (ip InclusionPath) Resolve(name string, stat StatFunc) (string, bool) {
	if strings.HasPrefix(name, "/") {
		return name, stat(name)
	}
	if strings.HasPrefix(name, "./") {
		stripped := name[2:]
		return stripped, stat(stripped)
	}
	for _, dir := range ip.Dirs {
		candidate := path.Join(dir, name)
		if stat(candidate) {
			return candidate, true
		}
	}
	return "", false
}
