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

package common

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Recoverable sentinels. Callers may test with errors.Is; none of these
// indicate a broken protocol invariant.
var (
	ErrNotFound      = errors.New("not found")
	ErrExists        = errors.New("already exists")
	ErrNotDir        = errors.New("not a directory")
	ErrIsDir         = errors.New("is a directory")
	ErrInvalidPath   = errors.New("invalid path")
	ErrInvalidHandle = errors.New("invalid handle")
	ErrIO            = errors.New("I/O error")
	ErrStreamClosed  = errors.New("stream closed")
)

// ProtocolError marks a condition spec.md §7.1 classifies as an
// unrecoverable bug: a worker (or a caller of the Engine) violated an
// invariant the protocol depends on. The only correct response is to
// abort with context, never to attempt recovery.
type ProtocolError struct {
	Op  string
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation in %s: %s", e.Op, e.Msg)
}

// Protocolf builds a ProtocolError with a formatted message, mirroring
// fmt.Errorf's call shape so call sites read the same as any other
// error construction.
func Protocolf(op, format string, args ...any) *ProtocolError {
	return &ProtocolError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Abort logs the violation and panics with a ProtocolError. Nothing in
// the engine recovers this panic: Engine.Step lets it propagate to its
// caller.
func Abort(op, format string, args ...any) {
	err := Protocolf(op, format, args...)
	log.WithField("op", op).Error(err.Msg)
	panic(err)
}
