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

// Package exportfs presents the Engine's live VFS as a read-only
// billy.Filesystem, the same adapter shape the teacher's
// internal/daemon/server_nfs.go used to hand LatentFS to go-nfs, so a
// running engine's entry_data can be browsed with any NFSv3 client
// while a document is being edited. Debug tooling only: spec.md names
// no export feature, and nothing here participates in step/edit
// semantics.
package exportfs

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"

	"texpressocore/internal/vfs"
)

// Adapter adapts a *vfs.VFS (spec.md §4.2's flat path-keyed arena) to
// billy.Filesystem. Unlike the teacher's LatentFS, this VFS has no real
// directory tree — a directory is anything that is a proper prefix of
// some known path, synthesized by ReadDir/Stat rather than stored.
type Adapter struct {
	vfs   *vfs.VFS
	attrs *AttrCache
	uid   uint32
	gid   uint32
}

// NewAdapter adapts v for read-only export. attrs may be nil to disable
// caching.
func NewAdapter(v *vfs.VFS, attrs *AttrCache) *Adapter {
	return &Adapter{
		vfs:   v,
		attrs: attrs,
		uid:   uint32(os.Getuid()),
		gid:   uint32(os.Getgid()),
	}
}

func clean(filename string) string {
	return strings.TrimPrefix(path.Clean("/"+filename), "/")
}

func (a *Adapter) statEntry(filename string) (os.FileInfo, error) {
	clean := clean(filename)
	if clean == "" || clean == "." {
		return &FileInfo{name: "/", isDir: true}, nil
	}
	if cached := a.attrs.get(clean); cached != nil {
		return cached, nil
	}
	if entry := a.vfs.Lookup(clean); entry != nil {
		fi := &FileInfo{
			name:    path.Base(clean),
			size:    int64(len(entry.EffectiveData())),
			modTime: mtime(entry.FSStat.Mtime),
		}
		a.attrs.set(clean, fi)
		return fi, nil
	}
	prefix := clean + "/"
	for _, e := range a.vfs.All() {
		if strings.HasPrefix(e.Path, prefix) {
			fi := &FileInfo{name: path.Base(clean), isDir: true}
			a.attrs.set(clean, fi)
			return fi, nil
		}
	}
	return nil, os.ErrNotExist
}

func mtime(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (a *Adapter) Open(filename string) (billy.File, error) {
	return a.OpenFile(filename, os.O_RDONLY, 0)
}

func (a *Adapter) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 {
		return nil, os.ErrPermission
	}
	entry := a.vfs.Lookup(clean(filename))
	if entry == nil {
		return nil, os.ErrNotExist
	}
	return &File{name: filename, data: entry.EffectiveData()}, nil
}

func (a *Adapter) Stat(filename string) (os.FileInfo, error) {
	return a.statEntry(filename)
}

func (a *Adapter) Lstat(filename string) (os.FileInfo, error) {
	return a.statEntry(filename)
}

func (a *Adapter) ReadDir(dirname string) ([]os.FileInfo, error) {
	prefix := clean(dirname)
	if prefix != "" {
		prefix += "/"
	}
	seen := map[string]bool{}
	var out []os.FileInfo
	for _, e := range a.vfs.All() {
		if !strings.HasPrefix(e.Path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(e.Path, prefix)
		name, isDir := rest, false
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			name, isDir = rest[:idx], true
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if isDir {
			out = append(out, &FileInfo{name: name, isDir: true})
			continue
		}
		out = append(out, &FileInfo{
			name:    name,
			size:    int64(len(e.EffectiveData())),
			modTime: mtime(e.FSStat.Mtime),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (a *Adapter) Join(elem ...string) string { return path.Join(elem...) }

func (a *Adapter) Root() string { return "/" }

func (a *Adapter) Chroot(_ string) (billy.Filesystem, error) { return nil, os.ErrInvalid }

// Write paths are all rejected: export is read-only debug tooling, an
// editor already owns writes through the wire protocol.
func (a *Adapter) Create(string) (billy.File, error)                { return nil, os.ErrPermission }
func (a *Adapter) Rename(string, string) error                      { return os.ErrPermission }
func (a *Adapter) Remove(string) error                               { return os.ErrPermission }
func (a *Adapter) MkdirAll(string, os.FileMode) error                { return os.ErrPermission }
func (a *Adapter) TempFile(string, string) (billy.File, error)       { return nil, os.ErrInvalid }
func (a *Adapter) Symlink(string, string) error                      { return os.ErrPermission }
func (a *Adapter) Readlink(string) (string, error)                   { return "", os.ErrInvalid }
func (a *Adapter) Chmod(string, os.FileMode) error                   { return os.ErrPermission }
func (a *Adapter) Lchown(string, int, int) error                     { return os.ErrPermission }
func (a *Adapter) Chown(string, int, int) error                      { return os.ErrPermission }
func (a *Adapter) Chtimes(string, time.Time, time.Time) error        { return os.ErrPermission }

func (a *Adapter) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

// File is a read-only snapshot of one entry's effective data, taken at
// Open time — matching the teacher's BillyFile offset-tracking shape
// but without the write path.
type File struct {
	name   string
	data   []byte
	offset int64
}

func (f *File) Name() string { return f.name }

func (f *File) Read(p []byte) (int, error) {
	if f.offset >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.offset:])
	f.offset += int64(n)
	return n, nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	return n, nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		f.offset = int64(len(f.data)) + offset
	}
	return f.offset, nil
}

func (f *File) Write([]byte) (int, error)   { return 0, os.ErrPermission }
func (f *File) Close() error                { return nil }
func (f *File) Lock() error                 { return nil }
func (f *File) Unlock() error                { return nil }
func (f *File) Truncate(int64) error        { return os.ErrPermission }

// FileInfo is the os.FileInfo the Adapter hands back, standing in for
// the teacher's BillyFileInfo wrapping *vfs.Attributes / *vfs.DirInfo —
// this VFS has neither, so it carries its fields directly.
type FileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

func (fi *FileInfo) Name() string       { return fi.name }
func (fi *FileInfo) Size() int64        { return fi.size }
func (fi *FileInfo) ModTime() time.Time { return fi.modTime }
func (fi *FileInfo) IsDir() bool        { return fi.isDir }
func (fi *FileInfo) Sys() interface{}   { return nil }

func (fi *FileInfo) Mode() os.FileMode {
	if fi.isDir {
		return os.ModeDir | 0555
	}
	return 0444
}

var (
	_ billy.Filesystem = (*Adapter)(nil)
	_ billy.File       = (*File)(nil)
	_ os.FileInfo      = (*FileInfo)(nil)
)
