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
	"sync"
	"time"
)

// AttrCache memoizes statEntry results by path for a short TTL, the
// same fine-grained-invalidation shape as the teacher's
// internal/cache.AttrCache, adapted to cache this package's *FileInfo
// rather than an SMB-protocol attribute struct: nothing in this VFS's
// read-only export needs SMB's wire attribute type, only a plain stat
// result.
type AttrCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cachedAttr
}

type cachedAttr struct {
	info    *FileInfo
	expires time.Time
}

// NewAttrCache creates a cache with the given TTL. ttl == 0 disables
// expiration (entries live until explicitly invalidated).
func NewAttrCache(ttl time.Duration) *AttrCache {
	return &AttrCache{ttl: ttl, entries: make(map[string]cachedAttr, 256)}
}

func (c *AttrCache) get(path string) *FileInfo {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	if !ok {
		return nil
	}
	if c.ttl > 0 && time.Now().After(e.expires) {
		return nil
	}
	return e.info
}

func (c *AttrCache) set(path string, info *FileInfo) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var expires time.Time
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}
	c.entries[path] = cachedAttr{info: info, expires: expires}
}

// Invalidate drops every cached entry.
func (c *AttrCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedAttr, 256)
}

// Size reports the current entry count.
func (c *AttrCache) Size() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
