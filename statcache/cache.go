/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package statcache caches filesystem stat() results keyed by path, the
// collaborator the core plugin's index/static handlers call before
// touching the filesystem, grounded on
// original_source/src/main/plugin_core.c's li_stat_cache_get call sites
// (core_handle_index, core_handle_static) and srv->stat_cache_ttl
// (core_stat_cache_ttl).
//
// The original's li_stat_cache_get can return LI_HANDLER_WAIT_FOR_EVENT
// while an async stat() completes on a worker thread; Get here blocks
// the calling goroutine instead (the same collapse backendpool.Pool.Get
// applies to its own wait protocol), since a goroutine per request can
// afford to block on a stat(2) syscall. Concurrent lookups of the same
// path are deduped with singleflight so a cache-cold burst of requests
// for one path only touches the filesystem once.
package statcache

import (
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config controls cache freshness. TTL <= 0 disables caching: every Get
// call stats the filesystem directly, matching stat_cache.ttl left unset.
type Config struct {
	TTL time.Duration
}

type entry struct {
	info      os.FileInfo
	err       error
	checkedAt time.Time
}

func (e *entry) fresh(ttl time.Duration) bool {
	return ttl > 0 && time.Since(e.checkedAt) < ttl
}

// Cache is a TTL-bounded stat() cache safe for concurrent use across
// every worker goroutine.
type Cache struct {
	cfg Config

	mu      sync.RWMutex
	entries map[string]*entry

	group singleflight.Group
}

// New creates a Cache applying cfg.
func New(cfg Config) *Cache {
	return &Cache{cfg: cfg, entries: make(map[string]*entry)}
}

// SetTTL updates the cache freshness window (core_stat_cache_ttl's
// runtime equivalent); a non-positive value disables caching.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.TTL = ttl
}

// Get returns the cached or freshly-stat'd os.FileInfo for path. A
// non-nil error is itself cached for the TTL window, mirroring the
// original caching negative lookups (ENOENT) to avoid re-hammering a
// directory that is known to be missing a file.
func (c *Cache) Get(path string) (os.FileInfo, error) {
	if e, ok := c.lookup(path); ok {
		return e.info, e.err
	}

	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		if e, ok := c.lookup(path); ok {
			return e, nil
		}
		info, statErr := os.Stat(path)
		e := &entry{info: info, err: statErr, checkedAt: now()}
		c.store(path, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	e := v.(*entry)
	return e.info, e.err
}

// GetWithFile stats path and, if it is a regular file, also opens it,
// mirroring li_stat_cache_get's optional fd out-parameter (used by
// core_handle_static to hand the already-open descriptor down to
// li_chunkqueue_append_file_fd instead of stat'ing then re-opening).
// The caller owns the returned *os.File and must close it.
func (c *Cache) GetWithFile(path string) (os.FileInfo, *os.File, error) {
	info, err := c.Get(path)
	if err != nil || info == nil || info.IsDir() {
		return info, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return info, nil, err
	}
	return info, f, nil
}

// Invalidate drops path from the cache, used when a request is known to
// have changed the underlying file (e.g. after a PUT/DELETE handler).
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

func (c *Cache) lookup(path string) (*entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	if !ok || !e.fresh(c.cfg.TTL) {
		return nil, false
	}
	return e, true
}

func (c *Cache) store(path string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = e
}

// now is a var so tests can freeze time without sleeping through a TTL.
var now = time.Now
