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

// Package sink implements engine.EditorSink: the editor-side mirror of
// the worker's stdout and log buffers. Grounded on the teacher's
// internal/cache package shape (a small mutex-guarded map keyed by a
// fixed set of channels, with an Invalidate-style reset), generalized
// from attribute caching to byte-buffer mirroring.
package sink

import (
	"sync"

	"texpressocore/internal/engine"
)

const numChannels = 2

// Buffer is an in-memory engine.EditorSink: it keeps the full
// accumulated text for each channel so an editor-facing UI can render
// it, and supports the Truncate a rollback needs to replay history
// back to an earlier point without re-running the worker for output it
// already produced.
type Buffer struct {
	mu   sync.Mutex
	data [numChannels][]byte
}

var _ engine.EditorSink = (*Buffer)(nil)

// New creates an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append adds data to the named channel's accumulated text.
func (b *Buffer) Append(channel engine.SinkChannel, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[channel] = append(b.data[channel], data...)
}

// Truncate drops the named channel's accumulated text back to length,
// used when a rollback (spec.md §4.8 EndChanges) replays a shorter
// history than what workers had already produced before the edit.
func (b *Buffer) Truncate(channel engine.SinkChannel, length int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if length < len(b.data[channel]) {
		b.data[channel] = b.data[channel][:length]
	}
}

// Len reports the named channel's current accumulated length.
func (b *Buffer) Len(channel engine.SinkChannel) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data[channel])
}

// Bytes returns a copy of the named channel's accumulated text, for UI
// rendering or tests.
func (b *Buffer) Bytes(channel engine.SinkChannel) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data[channel]))
	copy(out, b.data[channel])
	return out
}
