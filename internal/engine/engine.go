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

// Package engine drives the protocol (spec.md §4.7-§4.9): it pumps one
// query at a time from the current worker through a Channel, answers
// it by mutating the VFS, State tables, Trace, process Ladder and
// Fences (each mutation journalled for rollback), and exposes the
// begin_changes/detect_changes/end_changes transaction the UI drives
// on every edit.
package engine

import (
	"bytes"
	"path"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"texpressocore/internal/common"
	"texpressocore/internal/fences"
	"texpressocore/internal/journal"
	"texpressocore/internal/ladder"
	"texpressocore/internal/state"
	"texpressocore/internal/trace"
	"texpressocore/internal/vfs"
	"texpressocore/internal/wire"
)

// defaultSnapshotHysteresisMillis is the 500ms thrash guard of
// spec.md §4.7's need_snapshot, used when Config.SnapshotHysteresisMillis
// is left at zero.
const defaultSnapshotHysteresisMillis = 500

// rollbackState tracks the in-flight begin_changes/.../end_changes
// transaction (spec.md §4.8).
type rollbackState struct {
	active   bool
	traceLen int
	offset   int64
	flush    bool
}

// Engine is the query dispatcher and transaction coordinator. Exactly
// one Engine exists per editor session; cmd/texpresso-core wires one up
// per project.
type Engine struct {
	VFS     *vfs.VFS
	Journal *journal.Journal
	State   *state.State
	Trace   *trace.Trace
	Ladder  *ladder.Ladder
	Fences  *fences.Fences

	channel *wire.Channel

	inclusion vfs.InclusionPath
	stat      vfs.StatFunc
	readFile  func(path string) ([]byte, vfs.FileStat, error)

	decoder DocDecoder
	synctex SyncTexIndex
	sink    EditorSink
	spawner WorkerSpawner

	// terminated mirrors spec.md §7.2's DOC_TERMINATED: true once the
	// ladder has drained to no live worker, cleared again by respawn.
	terminated bool

	restartMark journal.Mark
	rollback    rollbackState

	hasSnapshot       bool
	snapshotTraceLen  int
	snapshotTraceTime int64

	// earlyForkUnsafe gates need_snapshot condition (a) behind the
	// decoder having started producing output, for platforms where an
	// early fork is unsafe (spec.md §4.7).
	earlyForkUnsafe bool

	snapshotHysteresisMillis int64
	fenceOptions             fences.Options

	childAlive  func(pid int32) bool
	killProcess func(pid int32)
	closeFD     func(fd int)
}

// Config bundles an Engine's collaborators.
type Config struct {
	Inclusion       vfs.InclusionPath
	Stat            vfs.StatFunc
	ReadFile        func(path string) ([]byte, vfs.FileStat, error)
	Decoder         DocDecoder
	SyncTex         SyncTexIndex
	Sink            EditorSink
	Spawner         WorkerSpawner
	EarlyForkUnsafe bool
	ChildAlive      func(pid int32) bool
	// KillProcess and CloseFD tear down an evicted or popped rung's
	// worker (spec.md §9: "a once-installed child-reaper ... suffices;
	// a pid that stops being writable is dead"). Both may be nil in
	// tests that never expect a real process to exist.
	KillProcess func(pid int32)
	CloseFD     func(fd int)
	// SnapshotHysteresisMillis overrides need_snapshot's 500ms thrash
	// guard; zero keeps the spec.md default. Surfaced via
	// internal/config's global settings.
	SnapshotHysteresisMillis int64
	// FenceOptions overrides compute_fences' timing constants; a zero
	// Options keeps the spec.md defaults.
	FenceOptions fences.Options
}

// New creates an Engine over a fresh VFS/Journal/State/Trace/Ladder/
// Fences and the given Channel and collaborators.
func New(ch *wire.Channel, cfg Config) *Engine {
	hysteresis := cfg.SnapshotHysteresisMillis
	if hysteresis == 0 {
		hysteresis = defaultSnapshotHysteresisMillis
	}
	e := &Engine{
		VFS:                      vfs.New(),
		Journal:                  journal.New(),
		State:                    state.New(),
		Trace:                    trace.New(),
		Ladder:                   ladder.New(),
		Fences:                   fences.New(),
		channel:                  ch,
		inclusion:                cfg.Inclusion,
		stat:                     cfg.Stat,
		readFile:                 cfg.ReadFile,
		decoder:                  cfg.Decoder,
		synctex:                  cfg.SyncTex,
		sink:                     cfg.Sink,
		spawner:                  cfg.Spawner,
		earlyForkUnsafe:          cfg.EarlyForkUnsafe,
		snapshotHysteresisMillis: hysteresis,
		fenceOptions:             cfg.FenceOptions,
		childAlive:               cfg.ChildAlive,
		killProcess:              cfg.KillProcess,
		closeFD:                  cfg.CloseFD,
	}
	e.restartMark = e.Journal.Snapshot()
	return e
}

func (e *Engine) logEntry(entry *vfs.FileEntry) {
	journal.Log(e.Journal, entry.Snapshot, entry.Restore)
}

func (e *Engine) logCell(slot *state.Slot) {
	journal.Log(e.Journal,
		func() *vfs.FileEntry { return slot.Entry },
		func(v *vfs.FileEntry) { slot.Entry = v })
}

// Step pumps and answers exactly one query, per spec.md §2's "the UI
// loop calls step()". It returns nil without reading anything when no
// query is currently pending.
func (e *Engine) Step() error {
	if !e.channel.HasPendingQuery(0) {
		return nil
	}
	q, err := e.channel.ReadQuery()
	if err != nil {
		return err
	}
	if q == nil {
		// Worker's stream closed cleanly: pop the snapshot, leave the
		// ladder consistent (spec.md §7.2).
		e.popTop()
		if e.terminated {
			return e.respawn()
		}
		return nil
	}
	ans := e.dispatch(q)
	if ans == nil {
		return nil
	}
	if err := e.channel.WriteAnswer(*ans); err != nil {
		return err
	}
	return e.channel.Flush()
}

// Terminated reports spec.md §7.2's DOC_TERMINATED condition: the
// ladder has drained to no live worker and no respawn has succeeded
// yet (e.g. because no WorkerSpawner was configured).
func (e *Engine) Terminated() bool {
	return e.terminated
}

func (e *Engine) dispatch(q *wire.Query) *wire.Answer {
	switch q.Tag {
	case wire.TagOPEN:
		return e.handleOpen(q)
	case wire.TagREAD:
		return e.handleRead(q)
	case wire.TagWRIT:
		return e.handleWrite(q)
	case wire.TagCLOS:
		return e.handleClose(q)
	case wire.TagSIZE:
		return e.handleSize(q)
	case wire.TagSEEN:
		e.handleSeen(q)
		return nil
	case wire.TagGPIC:
		return e.handleGpic(q)
	case wire.TagSPIC:
		return e.handleSpic(q)
	case wire.TagCHLD:
		return e.handleChld(q)
	default:
		common.Abort("dispatch", "unknown query tag %v", q.Tag)
		return nil
	}
}

// singletonFor reports which state.Singleton, if any, path/mode claims
// by name or extension (spec.md §4.7 OPEN write-mode rule).
func singletonFor(p string) (state.Singleton, bool) {
	base := path.Base(p)
	if base == "stdout" {
		return state.Stdout, true
	}
	switch strings.TrimPrefix(path.Ext(p), ".") {
	case "xdv", "dvi", "pdf":
		return state.Document, true
	case "synctex":
		return state.Synctex, true
	case "log":
		return state.Log, true
	}
	return 0, false
}

func (e *Engine) handleOpen(q *wire.Query) *wire.Answer {
	slot := e.State.Get(q.Fid)
	if slot.Entry != nil {
		common.Abort("OPEN", "fid %d already occupied by %q", q.Fid, slot.Entry.Path)
	}

	readMode := strings.HasPrefix(q.Mode, "r")

	entry := e.VFS.Lookup(q.Path)
	if readMode && (entry == nil || entry.EffectiveData() == nil) {
		if resolved, ok := e.inclusion.Resolve(q.Path, e.stat); ok {
			entry = e.VFS.LookupOrCreate(resolved)
		} else {
			entry = e.VFS.LookupOrCreate(q.Path)
			e.logEntry(entry)
			e.Trace.RecordSeen(entry, vfs.NotFound, int64(q.Time))
			return &wire.Answer{Tag: wire.TagPASS}
		}
	}
	if entry == nil {
		entry = e.VFS.LookupOrCreate(q.Path)
	}

	e.logCell(slot)
	slot.Entry = entry

	if entry.Seen < 0 {
		e.logEntry(entry)
		e.Trace.RecordSeen(entry, 0, int64(q.Time))
	}

	e.logEntry(entry)
	if readMode {
		if entry.Saved.Level < vfs.LevelRead {
			if e.readFile != nil {
				data, st, err := e.readFile(entry.Path)
				if err == nil {
					entry.SetFSData(data)
					entry.FSStat = st
				}
			}
			entry.Saved.Level = vfs.LevelRead
		}
	} else {
		entry.Saved.Data = []byte{}
		entry.Saved.Level = vfs.LevelWrite
		if name, ok := singletonFor(q.Path); ok {
			e.State.ClaimSingleton(name, entry)
			if name == state.Document {
				if e.decoder != nil {
					e.decoder.Reset()
				}
			}
			if name == state.Synctex && e.synctex != nil {
				e.synctex.Reset()
			}
		}
	}

	return &wire.Answer{Tag: wire.TagOPEN, Size: int64(len(q.Path)), Data: []byte(q.Path)}
}

func (e *Engine) handleRead(q *wire.Query) *wire.Answer {
	slot := e.State.Get(q.Fid)
	entry := slot.Entry
	if entry == nil {
		common.Abort("READ", "fid %d not open", q.Fid)
	}
	if entry.Saved.Level < vfs.LevelRead {
		common.Abort("READ", "fid %d below READ level", q.Fid)
	}
	data := entry.EffectiveData()
	if q.Pos > int64(len(data)) {
		common.Abort("READ", "pos %d beyond length %d", q.Pos, len(data))
	}

	n := q.Size
	if rem := int64(len(data)) - q.Pos; int64(n) > rem {
		n = int32(rem)
	}

	if pos, ok := e.Fences.AppliesTo(entry); ok && pos < q.Pos+int64(n) {
		n = int32(pos - q.Pos)
		if n < 0 {
			common.Abort("READ", "fence produced negative read size")
		}
		if n == 0 {
			e.Fences.Descend()
			return &wire.Answer{Tag: wire.TagFORK}
		}
	} else if e.needSnapshot(int64(q.Time)) {
		return &wire.Answer{Tag: wire.TagFORK}
	}

	return &wire.Answer{Tag: wire.TagREAD, N: n, Data: data[q.Pos : q.Pos+int64(n)]}
}

// needSnapshot implements spec.md §4.7's need_snapshot(time).
func (e *Engine) needSnapshot(time int64) bool {
	if _, ok := e.Fences.Active(); ok {
		return false
	}
	if !e.hasSnapshot {
		if time <= e.snapshotHysteresisMillis {
			return false
		}
		if e.earlyForkUnsafe && (e.decoder == nil || e.decoder.PageCount() == 0) {
			return false
		}
		return true
	}
	if e.Trace.Len() == e.snapshotTraceLen {
		return false
	}
	return time-e.snapshotTraceTime > e.snapshotHysteresisMillis
}

func (e *Engine) handleWrite(q *wire.Query) *wire.Answer {
	fid := q.Fid
	var entry *vfs.FileEntry
	pos := q.Pos

	if fid == -1 {
		entry = e.State.Singleton(state.Stdout).Entry
		if entry == nil {
			entry = e.VFS.LookupOrCreate("stdout")
			e.logEntry(entry)
			entry.Saved.Data = []byte{}
			entry.Saved.Level = vfs.LevelWrite
			e.State.ClaimSingleton(state.Stdout, entry)
		}
		pos = int64(len(entry.Saved.Data))
	} else {
		slot := e.State.Get(fid)
		entry = slot.Entry
		if entry == nil {
			common.Abort("WRITE", "fid %d not open", fid)
		}
	}

	if entry.Saved.Level != vfs.LevelWrite {
		common.Abort("WRITE", "entry %q not opened for write", entry.Path)
	}

	e.logEntry(entry)
	buf := entry.Saved.Data
	end := pos + int64(len(q.Data))
	if end > int64(len(buf)) {
		grown := make([]byte, pos, end)
		copy(grown, buf[:min64(pos, int64(len(buf)))])
		buf = append(grown, q.Data...)
	} else {
		copy(buf[pos:end], q.Data)
	}
	entry.Saved.Data = buf

	if name, ok := e.State.SingletonFor(entry); ok {
		switch name {
		case state.Document:
			if e.decoder != nil {
				before := e.decoder.PageCount()
				if _, pages, err := e.decoder.Update(buf); err == nil && pages != before {
					log.WithFields(log.Fields{"before": before, "pages": pages}).Debug("engine: document page count changed")
				}
			}
		case state.Synctex:
			if e.synctex != nil {
				e.synctex.Update(buf)
			}
		case state.Log:
			if e.sink != nil {
				e.sink.Append(SinkLog, q.Data)
			}
		case state.Stdout:
			if e.sink != nil {
				e.sink.Append(SinkStdout, q.Data)
			}
		}
	}

	return &wire.Answer{Tag: wire.TagDONE}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func (e *Engine) handleClose(q *wire.Query) *wire.Answer {
	slot := e.State.Get(q.Fid)
	entry := slot.Entry
	if entry == nil {
		common.Abort("CLOSE", "fid %d not open", q.Fid)
	}
	e.logCell(slot)
	slot.Entry = nil
	e.State.ClearSingletonsFor(entry, true)
	return &wire.Answer{Tag: wire.TagDONE}
}

func (e *Engine) handleSize(q *wire.Query) *wire.Answer {
	slot := e.State.Get(q.Fid)
	entry := slot.Entry
	if entry == nil {
		common.Abort("SIZE", "fid %d not open", q.Fid)
	}
	return &wire.Answer{Tag: wire.TagSIZE, Size: int64(len(entry.EffectiveData()))}
}

func (e *Engine) handleSeen(q *wire.Query) {
	slot := e.State.Get(q.Fid)
	entry := slot.Entry
	if entry == nil {
		common.Abort("SEEN", "fid %d not open", q.Fid)
	}
	if q.Pos <= entry.Seen {
		return
	}
	if pos, ok := e.Fences.AppliesTo(entry); ok && pos < q.Pos {
		common.Abort("SEEN", "pos %d crosses fence at %d", q.Pos, pos)
	}
	e.logEntry(entry)
	e.Trace.RecordSeen(entry, q.Pos, int64(q.Time))
}

func (e *Engine) handleGpic(q *wire.Query) *wire.Answer {
	entry := e.VFS.Lookup(q.Path)
	if entry == nil || entry.Saved.Level != vfs.LevelRead || entry.PicCache == nil {
		return &wire.Answer{Tag: wire.TagPASS}
	}
	if entry.PicCache.Type != q.PicType || entry.PicCache.Page != q.PicPage {
		return &wire.Answer{Tag: wire.TagPASS}
	}
	return &wire.Answer{Tag: wire.TagGPIC, Bounds: entry.PicCache.Bounds}
}

func (e *Engine) handleSpic(q *wire.Query) *wire.Answer {
	entry := e.VFS.Lookup(q.Path)
	if entry == nil || entry.Saved.Level != vfs.LevelRead {
		common.Abort("SPIC", "no read-mode entry for %q", q.Path)
	}
	e.logEntry(entry)
	entry.PicCache = &vfs.PicCache{
		Type:   q.PicCache.Type,
		Page:   q.PicCache.Page,
		Bounds: q.PicCache.Bounds,
	}
	return &wire.Answer{Tag: wire.TagDONE}
}

func (e *Engine) handleChld(q *wire.Query) *wire.Answer {
	if q.Fd < 0 {
		common.Abort("CHLD", "no fd attached")
	}
	if e.Ladder.Len() >= ladder.MaxRungs {
		for _, r := range e.Ladder.Decimate() {
			e.killRung(r)
		}
	}

	e.Ladder.SetTopMark(e.Journal.Snapshot())
	rung := ladder.Rung{
		ID:       uuid.New(),
		PID:      q.Pid,
		TraceLen: e.Trace.Len(),
		Time:     int64(q.Time),
		Handle:   q.Fd,
	}
	e.Ladder.Push(rung)
	log.WithFields(log.Fields{
		"rung": rung.ID, "pid": rung.PID, "trace_len": rung.TraceLen,
	}).Debug("engine: worker forked, pushed new ladder rung")

	e.channel.Reset()
	_ = e.channel.SetFD(q.Fd)

	e.hasSnapshot = true
	e.snapshotTraceLen = e.Trace.Len()
	if n := e.Trace.Len(); n > 0 {
		e.snapshotTraceTime = e.Trace.At(n - 1).Time
	}

	return &wire.Answer{Tag: wire.TagDONE}
}

// killRung tears down an evicted or popped rung's worker process
// (spec.md §4.6: "closed snapshots have their pids terminated and fds
// closed").
func (e *Engine) killRung(r ladder.Rung) {
	if e.killProcess != nil {
		e.killProcess(r.PID)
	}
	if e.closeFD != nil {
		if fd, ok := r.Handle.(int); ok {
			e.closeFD(fd)
		}
	}
}

// popTop pops the ladder's current top (spec.md §4.6 pop): closes its
// fd/kills its pid, rolls the journal back to the new top's snap (or
// the engine's restart mark if the ladder becomes empty), and resets
// the channel.
func (e *Engine) popTop() {
	top, ok := e.Ladder.Top()
	if !ok {
		return
	}
	e.Ladder.EvictPID(top.PID)
	e.killRung(top)
	log.WithFields(log.Fields{"rung": top.ID, "pid": top.PID}).Debug("engine: popped ladder rung")

	mark := e.restartMark
	if newTop, ok := e.Ladder.Top(); ok && newTop.HasMark {
		mark = newTop.Mark
	}
	e.Journal.Rollback(mark)
	e.channel.Reset()
	if e.Ladder.Len() == 0 {
		e.terminated = true
		log.Debug("engine: ladder drained, worker terminated")
	}
}

// respawn implements the "the UI observes DOC_TERMINATED until the
// next step() re-spawns" half of spec.md §7.2's worker-liveness
// handling: once the ladder has drained to nothing, the next Step asks
// the WorkerSpawner collaborator for a fresh process and attaches it to
// the channel in place of the one that just died.
func (e *Engine) respawn() error {
	if e.spawner == nil {
		return nil
	}
	pid, fd, err := e.spawner.Spawn()
	if err != nil {
		log.WithError(err).Error("engine: failed to respawn worker")
		return err
	}
	if err := e.channel.SetFD(fd); err != nil {
		return err
	}
	e.Trace = trace.New()
	e.Fences.Reset()
	rung := ladder.Rung{ID: uuid.New(), PID: pid, TraceLen: 0, Handle: fd}
	e.Ladder.Push(rung)
	e.terminated = false
	log.WithFields(log.Fields{"rung": rung.ID, "pid": rung.PID}).Info("engine: worker respawned")
	return nil
}

// BeginChanges implements spec.md §4.8 begin_changes.
func (e *Engine) BeginChanges() error {
	if e.rollback.active {
		common.Abort("BeginChanges", "already in a transaction")
	}
	e.rollback = rollbackState{
		active:   true,
		traceLen: e.Trace.Len(),
		offset:   -1,
		flush:    false,
	}
	return nil
}

// NotifyFileChange implements rollback_add_change (spec.md §4.8): the
// caller has determined path's on-disk content diverges from fs_data
// starting at changedOffset.
func (e *Engine) NotifyFileChange(p string, changedOffset int64) {
	entry := e.VFS.Lookup(p)
	if entry == nil {
		return
	}
	e.notifyEntryChange(entry, changedOffset)
}

func (e *Engine) notifyEntryChange(entry *vfs.FileEntry, changed int64) {
	if entry.Seen < changed && e.Trace.Len() == e.rollback.traceLen {
		drained := e.drainPendingSeen()
		if !drained && e.childAlive != nil {
			if top, ok := e.Ladder.Top(); ok && e.childAlive(top.PID) {
				e.rollback.flush = true
			}
		}
		if entry.Seen < changed {
			return
		}
	}

	for e.rollback.traceLen > 0 {
		r := e.Trace.At(e.rollback.traceLen - 1)
		if r.Entry != entry {
			break
		}
		if r.Seen <= changed {
			break
		}
		e.rollback.traceLen--
	}
	if e.rollback.traceLen > 0 {
		r := e.Trace.At(e.rollback.traceLen - 1)
		if r.Entry != entry {
			common.Abort("NotifyFileChange", "trace record at %d names a different entry", e.rollback.traceLen-1)
		}
	}
	e.rollback.offset = changed
}

// drainPendingSeen processes any SEEN queries already buffered in the
// channel, which may advance entry.Seen without the worker having to
// be asked anything further. Returns whether anything was drained.
func (e *Engine) drainPendingSeen() bool {
	drained := false
	for e.channel.HasPendingQuery(0) {
		tag, err := e.channel.PeekQuery()
		if err != nil || tag != wire.TagSEEN {
			break
		}
		q, err := e.channel.ReadQuery()
		if err != nil || q == nil {
			break
		}
		e.handleSeen(q)
		drained = true
	}
	return drained
}

// DetectChanges implements spec.md §4.8 detect_changes: scans the VFS
// for on-disk mtime/inode/size changes, diffs the changed bytes
// against fs_data, and feeds the first differing offset into
// rollback_add_change.
func (e *Engine) DetectChanges() error {
	if !e.rollback.active {
		common.Abort("DetectChanges", "not in a transaction")
	}
	var cur vfs.Cursor
	for entry := e.VFS.Scan(&cur); entry != nil; entry = e.VFS.Scan(&cur) {
		if e.readFile == nil {
			continue
		}
		data, st, err := e.readFile(entry.Path)
		if err != nil {
			continue
		}
		if st == entry.FSStat {
			continue
		}
		offset := firstDiff(entry.FSData, data)
		if offset < 0 {
			e.logEntry(entry)
			entry.SetFSData(data)
			entry.FSStat = st
			continue
		}
		e.logEntry(entry)
		entry.SetFSData(data)
		entry.FSStat = st
		e.notifyEntryChange(entry, int64(offset))
	}
	return nil
}

func firstDiff(old, new []byte) int {
	n := len(old)
	if len(new) < n {
		n = len(new)
	}
	if i := bytes.Compare(old[:n], new[:n]); i == 0 && len(old) == len(new) {
		return -1
	}
	for i := 0; i < n; i++ {
		if old[i] != new[i] {
			return i
		}
	}
	return n
}

// EndChanges implements spec.md §4.8 end_changes.
func (e *Engine) EndChanges() (bool, error) {
	if !e.rollback.active {
		common.Abort("EndChanges", "not in a transaction")
	}
	defer func() { e.rollback.active = false }()

	if e.Trace.Len() == e.rollback.traceLen {
		if !e.rollback.flush {
			log.Debug("engine: end_changes found nothing to roll back")
			return false, nil
		}
		if top, ok := e.Ladder.Top(); ok && e.childAlive != nil && e.childAlive(top.PID) {
			log.WithField("pid", top.PID).Debug("engine: requesting flush before rollback decision")
			if err := e.channel.WriteAsk(wire.Ask{Tag: wire.TagFLSH}); err != nil {
				return false, err
			}
			if err := e.channel.Flush(); err != nil {
				return false, err
			}
			return false, nil
		}
		if e.rollback.traceLen > 0 {
			r := e.Trace.At(e.rollback.traceLen - 1)
			e.rollback.traceLen--
			e.rollback.offset = r.Seen
		}
	}

	floor := 0
	if top, ok := e.Ladder.Top(); ok {
		floor = top.TraceLen
	}
	newFences, resume := fences.ComputeWithOptions(e.Trace, e.rollback.traceLen, e.rollback.offset, floor, e.fenceOptions)
	e.Fences = newFences
	log.WithFields(log.Fields{
		"fence_pos": newFences.FencePos, "resume_trace_len": resume, "offset": e.rollback.offset,
	}).Debug("engine: recomputed fences, rolling back processes")
	e.rollbackProcesses(resume)
	return true, nil
}

// rollbackProcesses implements spec.md §4.8 step 4: pop ladder
// snapshots until the top's trace_len <= resumeTraceLen, revert any
// remaining trace records beyond that point, and truncate sinks.
func (e *Engine) rollbackProcesses(resumeTraceLen int) {
	for {
		top, ok := e.Ladder.Top()
		if !ok || top.TraceLen <= resumeTraceLen {
			break
		}
		e.popTop()
	}

	e.Trace.TruncateTo(resumeTraceLen)

	if docEntry := e.State.Singleton(state.Document).Entry; docEntry != nil && e.decoder != nil {
		e.decoder.Update(docEntry.Saved.Data)
	}
	if synEntry := e.State.Singleton(state.Synctex).Entry; synEntry != nil && e.synctex != nil {
		e.synctex.Update(synEntry.Saved.Data)
	}
	if e.sink != nil {
		if stdoutEntry := e.State.Singleton(state.Stdout).Entry; stdoutEntry != nil {
			e.sink.Truncate(SinkStdout, len(stdoutEntry.Saved.Data))
		}
		if logEntry := e.State.Singleton(state.Log).Entry; logEntry != nil {
			e.sink.Truncate(SinkLog, len(logEntry.Saved.Data))
		}
	}
}
