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

package engine

// DocDecoder is the page renderer and document-format decoder
// collaborator (spec.md §1: "out of scope, specified only by the
// interfaces the core uses"). WRITE to the document singleton calls
// Update after patching entry_data; a page-count change is reported
// back so the Engine can log it.
type DocDecoder interface {
	// Update reparses data (the document singleton's current
	// entry_data) and returns true if output has started producing at
	// least one renderable page, which gates need_snapshot's platform
	// guard (spec.md §4.7).
	Update(data []byte) (outputStarted bool, pageCount int, err error)
	// Reset discards decoder state, called when a worker opens the
	// document singleton for writing. A rollback does not call it; it
	// re-Updates the decoder from the restored document buffer.
	Reset()
	PageCount() int
}

// SyncTexIndex is the SyncTeX index collaborator (spec.md §1). WRITE to
// the synctex singleton calls Update; opening the synctex singleton for
// writing calls Reset, and a rollback re-Updates it from the restored
// buffer.
type SyncTexIndex interface {
	Update(data []byte) error
	Reset()
}

// EditorSink is the editor-side buffer mirror collaborator (spec.md
// §1): receives appended log/stdout text and can be truncated back to
// a prior length on rollback.
type EditorSink interface {
	Append(channel SinkChannel, data []byte)
	Truncate(channel SinkChannel, length int)
	Len(channel SinkChannel) int
}

// SinkChannel names which EditorSink stream is being written.
type SinkChannel int

const (
	SinkStdout SinkChannel = iota
	SinkLog
)

// WorkerSpawner is the collaborator that actually spawns a worker
// executable (spec.md §1). Spawn returns the fd of the newly connected
// control socket end and the worker's pid.
type WorkerSpawner interface {
	Spawn() (pid int32, fd int, err error)
}

// StepUI is the thin surface the UI event loop drives (spec.md §2 data
// flow: "the UI loop calls step()"). The Engine implements it.
type StepUI interface {
	Step() error
	BeginChanges() error
	NotifyFileChange(path string, changedOffset int64)
	DetectChanges() error
	EndChanges() (bool, error)
}

var _ StepUI = (*Engine)(nil)
