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

package exportfs

import (
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"texpressocore/internal/vfs"
)

// Server wraps a go-nfs server exporting a live *vfs.VFS read-only, the
// same shape as the teacher's daemon.NFSServer but pointed at an
// Engine's VFS instead of LatentFS.
type Server struct {
	listener net.Listener
	server   *nfs.Server
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewServer builds a Server over v. attrTTL configures the Adapter's
// stat cache (0 disables caching).
func NewServer(v *vfs.VFS, attrTTL time.Duration) *Server {
	if log.IsLevelEnabled(log.TraceLevel) {
		nfs.Log.SetLevel(nfs.TraceLevel)
	} else if log.IsLevelEnabled(log.DebugLevel) {
		nfs.Log.SetLevel(nfs.DebugLevel)
	}

	adapter := NewAdapter(v, NewAttrCache(attrTTL))
	handler := nfshelper.NewNullAuthHandler(adapter)
	cacheHelper := nfshelper.NewCachingHandler(handler, 65536)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		server: &nfs.Server{Handler: cacheHelper, Context: ctx},
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Serve starts the NFS server on addr, blocking until Shutdown.
func (s *Server) Serve(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("exportfs: listen %s: %w", addr, err)
	}
	s.listener = listener
	return s.server.Serve(listener)
}

// Shutdown stops the server, settling in-flight requests first.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	time.Sleep(100 * time.Millisecond)
	if s.cancel != nil {
		s.cancel()
	}
	close(s.done)
}
