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

// Package decoder implements the engine.DocDecoder and
// engine.SyncTexIndex collaborators for the DVI/XDV family of document
// formats a TeX worker produces. Real page rendering and SyncTeX
// lookups are out of scope for the engine (spec.md §1); this package
// gives the engine just enough of a decoder to exercise need_snapshot's
// "decoder has begun producing output" guard and the page-count-drop
// assertions of the rollback scenarios, by walking the DVI opcode
// stream rather than pretending to be a no-op stub.
package decoder

// DVI/XDV opcodes relevant to page counting (Knuth's DVI format,
// extended by XDV with the same bop/eop framing).
const (
	opBOP = 139 // begin-of-page: followed by 10 four-byte counters + a four-byte back-pointer
	opEOP = 140 // end-of-page
	opPRE = 247 // preamble, carries no page
)

// Doc is the default DocDecoder: it scans for bop opcodes to count
// pages (a page counts once its bop is present, whether or not its eop
// has arrived) without attempting to render anything.
type Doc struct {
	pages   int
	started bool
}

// New creates an empty Doc decoder.
func New() *Doc {
	return &Doc{}
}

// Update rescans data from scratch (workers resend the whole buffer on
// every write per spec.md §3's entry_data model, so there is no
// incremental state to preserve across calls) and returns whether output
// has started (set once any page has been counted, cleared only by
// Reset) along with the new page count.
func (d *Doc) Update(data []byte) (outputStarted bool, pageCount int, err error) {
	pages := countPages(data)
	d.pages = pages
	if pages > 0 {
		d.started = true
	}
	return d.started, pages, nil
}

// Reset discards decoder state; the engine calls it when a worker opens
// the document singleton for writing.
func (d *Doc) Reset() {
	d.pages = 0
	d.started = false
}

// PageCount returns the page count from the most recent Update.
func (d *Doc) PageCount() int {
	return d.pages
}

// countPages walks a DVI/XDV byte stream counting opBOP markers after
// the preamble. Malformed or truncated streams just stop counting
// rather than erroring, since a worker mid-write is expected to hand
// over a partial, not-yet-valid file.
func countPages(data []byte) int {
	pages := 0
	for i := 0; i < len(data); {
		op := data[i]
		switch {
		case op == opPRE:
			// preamble: 1 (version) + 4*3 (num/den/mag) + 1 (comment
			// length) + comment bytes
			if i+15 > len(data) {
				return pages
			}
			commentLen := int(data[i+14])
			i += 15 + commentLen
		case op == opBOP:
			pages++
			i += 1 + 4*10 + 4 // 10 page counters + back-pointer
		case op == opEOP:
			i++
		default:
			i++
		}
	}
	return pages
}

// SyncTex is the default SyncTexIndex: it records whether an index has
// been loaded at all, which is the only thing the engine's rollback
// bookkeeping needs from it: a rollback re-Updates it from the restored
// synctex buffer.
type SyncTex struct {
	loaded bool
}

// NewSyncTex creates an empty SyncTex index.
func NewSyncTex() *SyncTex {
	return &SyncTex{}
}

// Update parses the .synctex buffer. Real coordinate indexing is out of
// scope; the index only tracks presence.
func (s *SyncTex) Update(data []byte) error {
	s.loaded = len(data) > 0
	return nil
}

// Reset discards the loaded index.
func (s *SyncTex) Reset() {
	s.loaded = false
}

// Loaded reports whether Update has ever seen non-empty data since the
// last Reset.
func (s *SyncTex) Loaded() bool {
	return s.loaded
}
