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

package wire

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// SendCHLD writes a CHLD frame whose ancillary data carries fd. This is
// the worker side of spec.md §4.1's "a CHLD frame carries no inline fd —
// the fd arrives via the stream's ancillary-data mechanism" — used by
// channel_test.go to exercise round-trip fd passing (R1).
func SendCHLD(conn *net.UnixConn, pid int32, fd int) error {
	frame := make([]byte, 12)
	frame[0], frame[1], frame[2], frame[3] = byte(TagCHLD), byte(TagCHLD>>8), byte(TagCHLD>>16), byte(TagCHLD>>24)
	// bytes [4:8) are the query's time field; CHLD does not use it.
	frame[8] = byte(pid)
	frame[9] = byte(pid >> 8)
	frame[10] = byte(pid >> 16)
	frame[11] = byte(pid >> 24)
	rights := unix.UnixRights(fd)

	n, oobn, err := conn.WriteMsgUnix(frame, rights, nil)
	if err != nil {
		return fmt.Errorf("wire: send CHLD: %w", err)
	}
	if n != len(frame) || oobn != len(rights) {
		return fmt.Errorf("wire: send CHLD: short write (%d/%d bytes, %d/%d oob)", n, len(frame), oobn, len(rights))
	}
	return nil
}
