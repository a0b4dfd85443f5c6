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

package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"texpressocore/internal/config"
	"texpressocore/internal/decoder"
	"texpressocore/internal/engine"
	"texpressocore/internal/exportfs"
	"texpressocore/internal/fences"
	"texpressocore/internal/ladder"
	"texpressocore/internal/sink"
	"texpressocore/internal/spawn"
	"texpressocore/internal/vfs"
	"texpressocore/internal/wire"
)

var runCmd = &cobra.Command{
	Use:   "run <main.tex>",
	Short: "Run the engine against a document, watching its directory for edits",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

var runExportAddr string

func init() {
	runCmd.Flags().StringVar(&runExportAddr, "export-addr", "", "if set, serve the live VFS read-only over NFSv3 at this address (debug)")
	rootCmd.AddCommand(runCmd)
}

// billyRoot is rooted at "/" so InclusionPath's already-absolute
// candidates can be opened directly, mirroring the teacher's
// server_nfs.go BillyAdapter wrapping a real filesystem for NFS export
// (SPEC_FULL.md §0: "entry_data's on-disk read path is expressed
// against a billy.Filesystem, not raw os.* calls").
var billyRoot billy.Filesystem = osfs.New("/")

func statFunc(path string) bool {
	var st unix.Stat_t
	return unix.Stat(path, &st) == nil
}

func readFileFunc(path string) ([]byte, vfs.FileStat, error) {
	f, err := billyRoot.Open(path)
	if err != nil {
		return nil, vfs.FileStat{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, vfs.FileStat{}, err
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return data, vfs.FileStat{}, nil
	}
	return data, vfs.FileStat{
		Device: uint64(st.Dev),
		Inode:  st.Ino,
		Size:   st.Size,
		Mtime:  st.Mtim.Sec*1e9 + st.Mtim.Nsec,
	}, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	docPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	projectDir := filepath.Dir(docPath)

	lockDir := filepath.Join(projectDir, ".texpresso")
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return fmt.Errorf("create control directory: %w", err)
	}
	engineLock := flock.New(filepath.Join(lockDir, "engine.lock"))
	locked, err := engineLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire engine lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another engine already has %s locked", docPath)
	}
	defer engineLock.Unlock()

	globalSettings, err := config.LoadGlobalSettings()
	if err != nil {
		return fmt.Errorf("load global settings: %w", err)
	}
	projectSettings, err := config.LoadProjectConfig(projectDir)
	if err != nil {
		return fmt.Errorf("load project config: %w", err)
	}
	if projectSettings == nil {
		projectSettings = &config.ProjectConfig{}
		projectSettings.ApplyDefaults()
	}

	workerCmd := projectSettings.WorkerCommand
	if len(workerCmd) == 0 {
		workerCmd = []string{"tex", "-ini"}
	}
	spawner := spawn.New(spawn.Options{Command: workerCmd})

	earlyForkUnsafe := globalSettings.EarlyForkUnsafe
	if projectSettings.EarlyForkUnsafe != nil {
		earlyForkUnsafe = *projectSettings.EarlyForkUnsafe
	}

	pid, fd, err := spawner.Spawn()
	if err != nil {
		return fmt.Errorf("spawn initial worker: %w", err)
	}
	ch, err := wire.NewFromFD(fd)
	if err != nil {
		return fmt.Errorf("attach worker channel: %w", err)
	}

	eng := engine.New(ch, engine.Config{
		Inclusion:       vfs.InclusionPath{Dirs: append([]string{projectDir}, projectSettings.InclusionPath...)},
		Stat:            statFunc,
		ReadFile:        readFileFunc,
		Decoder:         decoder.New(),
		SyncTex:         decoder.NewSyncTex(),
		Sink:            sink.New(),
		Spawner:         spawner,
		EarlyForkUnsafe: earlyForkUnsafe,
		ChildAlive:      spawner.Alive,
		KillProcess:     spawner.Kill,
		CloseFD:         spawner.CloseFD,
		SnapshotHysteresisMillis: globalSettings.SnapshotHysteresisMillis,
		FenceOptions: fences.Options{
			ReadClamp:        globalSettings.FenceReadClampBytes,
			InitialGapMillis: globalSettings.FenceInitialGapMillis,
			LeadMillis:       globalSettings.FenceLeadMillis,
		},
	})
	eng.Ladder.Push(ladder.Rung{ID: uuid.New(), PID: pid, TraceLen: 0})

	if runExportAddr != "" {
		exportSrv := exportfs.NewServer(eng.VFS, time.Second)
		go func() {
			log.WithField("addr", runExportAddr).Info("run: exporting live VFS over NFS")
			if err := exportSrv.Serve(runExportAddr); err != nil {
				log.WithError(err).Warn("run: export server stopped")
			}
		}()
		defer exportSrv.Shutdown()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(projectDir); err != nil {
		return fmt.Errorf("watch %s: %w", projectDir, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.WithFields(log.Fields{"doc": docPath, "pid": pid}).Info("run: engine started")

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			log.Info("run: shutting down")
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := applyEdit(eng); err != nil {
				log.WithError(err).Warn("run: apply edit failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("run: watcher error")
		case <-ticker.C:
			if err := eng.Step(); err != nil {
				log.WithError(err).Warn("run: step failed")
			}
		}
	}
}

// applyEdit runs the three-phase begin_changes/detect_changes/
// end_changes transaction (spec.md §4.8) in response to a filesystem
// notification. The watcher doesn't know which byte changed, so it asks
// DetectChanges to scan and diff rather than calling NotifyFileChange
// with a precomputed offset.
func applyEdit(eng *engine.Engine) error {
	if err := eng.BeginChanges(); err != nil {
		return err
	}
	if err := eng.DetectChanges(); err != nil {
		return err
	}
	_, err := eng.EndChanges()
	return err
}
