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

// Package spawn provides the default engine.WorkerSpawner: it forks a
// compiler worker subprocess, hands it the engine end of a socketpair
// and keeps the fd the worker's CHLD frame will later ask to inherit.
// Grounded on the teacher's internal/util/retry.go Retry (generalized
// from "database lock" retrying to "worker binary transiently
// unavailable/busy" retrying) and internal/util/process.go's
// signal-0 liveness probe.
package spawn

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/avast/retry-go/v4"
	log "github.com/sirupsen/logrus"

	"texpressocore/internal/util"
)

// Options configures the default spawner.
type Options struct {
	// Command is the compiler worker binary and leading arguments
	// (e.g. "tex" "-ini" "-jobname=texpresso"). The child's end of the
	// socketpair is passed as fd 3 and its number as the final
	// argument, mirroring how the teacher passes a descriptor to a
	// background daemon via SysProcAttr.
	Command []string
	Env     []string
	Attempts uint
}

// Spawner forks worker processes over a fresh socketpair per spawn,
// tracking each live PID so ChildAlive/Kill can answer without a
// separate process table.
type Spawner struct {
	opts Options

	mu  sync.Mutex
	pid map[int32]*os.Process
}

// New creates a Spawner. A zero Options.Attempts defaults to 3.
func New(opts Options) *Spawner {
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	return &Spawner{opts: opts, pid: make(map[int32]*os.Process)}
}

// Spawn starts one worker process and returns its pid and the engine's
// end of the socketpair it should hand to wire.NewChannel. Retries
// transient start failures with util.SpawnRetryOptions' backoff
// policy, capped at opts.Attempts.
func (s *Spawner) Spawn() (pid int32, fd int, err error) {
	ctx := context.Background()
	opts := util.SpawnRetryOptions(ctx)
	opts = append(opts, retry.Attempts(s.opts.Attempts))
	err = util.Retry(ctx, func() error {
		p, f, e := s.spawnOnce()
		if e != nil {
			return e
		}
		pid, fd = p, f
		return nil
	}, opts...)
	return pid, fd, err
}

func (s *Spawner) spawnOnce() (int32, int, error) {
	if len(s.opts.Command) == 0 {
		return 0, 0, fmt.Errorf("spawn: no worker command configured")
	}

	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("spawn: socketpair: %w", err)
	}
	engineFD, workerFD := fds[0], fds[1]

	// ExtraFiles[0] becomes fd 3 in the child.
	const childFD = 3
	args := append([]string{}, s.opts.Command[1:]...)
	args = append(args, strconv.Itoa(childFD))

	cmd := exec.Command(s.opts.Command[0], args...)
	cmd.Env = s.opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	workerFile := os.NewFile(uintptr(workerFD), "worker-fd")
	cmd.ExtraFiles = []*os.File{workerFile}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		syscall.Close(engineFD)
		workerFile.Close()
		return 0, 0, fmt.Errorf("spawn: start: %w", err)
	}
	// The child has inherited workerFD via ExtraFiles; closing the
	// parent's copy here leaves exactly one live copy on each side.
	workerFile.Close()

	pid := int32(cmd.Process.Pid)
	s.mu.Lock()
	s.pid[pid] = cmd.Process
	s.mu.Unlock()

	log.WithFields(log.Fields{"pid": pid, "fd": engineFD}).Debug("spawn: worker started")
	return pid, engineFD, nil
}

// Alive reports whether pid is still running.
func (s *Spawner) Alive(pid int32) bool {
	s.mu.Lock()
	_, ok := s.pid[pid]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return util.IsProcessRunning(int(pid))
}

// Kill sends SIGKILL to pid and forgets it. No graceful phase: the
// engine has already rolled the journal back, there is nothing left
// for the worker to flush.
func (s *Spawner) Kill(pid int32) {
	s.mu.Lock()
	proc, ok := s.pid[pid]
	delete(s.pid, pid)
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = proc.Signal(syscall.SIGKILL)
	go proc.Wait()
}

// CloseFD closes a raw fd the engine is done with (the engine-side
// socketpair half of a rung that was never attached to a live Channel).
func (s *Spawner) CloseFD(fd int) {
	_ = syscall.Close(fd)
}
