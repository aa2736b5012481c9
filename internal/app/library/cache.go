// Package library provides the two-sided song catalog cache and the song
// identity resolver that reconciles local files with the remote catalog.
package library

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/wymusic/player/internal/domain/song"
)

// Cache is the library catalog cache: local records keyed by path, remote
// records keyed by catalog id, cross-linked once a song is downloaded.
// All writes funnel through the Resolver.
type Cache struct {
	mu      sync.RWMutex
	locals  map[string]*song.LocalSong  // by path
	remotes map[string]*song.RemoteSong // by catalog id
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		locals:  make(map[string]*song.LocalSong),
		remotes: make(map[string]*song.RemoteSong),
	}
}

// PutLocal stores (or overwrites) a local record. If the record carries a
// catalog id with a known remote record, the two become linked.
func (c *Cache) PutLocal(rec song.LocalSong) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := rec
	c.locals[rec.Path] = &stored
	if rec.CatalogID != "" {
		if remote, ok := c.remotes[rec.CatalogID]; ok {
			remote.LocalPath = rec.Path
		}
	}
}

// PutRemote stores (or overwrites on refetch) a remote record, preserving an
// existing local link.
func (c *Cache) PutRemote(rec song.RemoteSong) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := rec
	stored.LastAccess = time.Now()
	if prev, ok := c.remotes[rec.ID]; ok && stored.LocalPath == "" {
		stored.LocalPath = prev.LocalPath
	}
	// A local record scanned before the remote side was ever fetched also
	// establishes the link.
	if stored.LocalPath == "" {
		for path, local := range c.locals {
			if local.CatalogID == rec.ID {
				stored.LocalPath = path
				break
			}
		}
	}
	c.remotes[rec.ID] = &stored
}

// LocalByPath returns a copy of the local record for the path.
func (c *Cache) LocalByPath(path string) (song.LocalSong, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.locals[path]
	if !ok {
		return song.LocalSong{}, false
	}
	return *rec, true
}

// LocalByID returns a copy of the local record linked to the catalog id.
func (c *Cache) LocalByID(id string) (song.LocalSong, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, rec := range c.locals {
		if rec.CatalogID == id {
			return *rec, true
		}
	}
	return song.LocalSong{}, false
}

// Remote returns a copy of the remote record for the id, refreshing its
// last-access time. No eviction is applied to remote records.
func (c *Cache) Remote(id string) (song.RemoteSong, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.remotes[id]
	if !ok {
		return song.RemoteSong{}, false
	}
	rec.LastAccess = time.Now()
	return *rec, true
}

// Link records the bidirectional association between a catalog id and a
// local path. Called exactly once per completed acquisition.
func (c *Cache) Link(id, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote, ok := c.remotes[id]; ok {
		remote.LocalPath = path
	}
	if local, ok := c.locals[path]; ok {
		local.CatalogID = id
	}
}

// RemoveLocal drops the local record and severs any remote link.
func (c *Cache) RemoveLocal(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.locals[path]
	if !ok {
		return
	}
	if rec.CatalogID != "" {
		if remote, ok := c.remotes[rec.CatalogID]; ok && remote.LocalPath == path {
			remote.LocalPath = ""
		}
	}
	delete(c.locals, path)
}

// Locals returns copies of all local records, ordered by path.
func (c *Cache) Locals() []song.LocalSong {
	c.mu.RLock()
	defer c.mu.RUnlock()

	paths := lo.Keys(c.locals)
	sort.Strings(paths)
	out := make([]song.LocalSong, 0, len(paths))
	for _, path := range paths {
		out = append(out, *c.locals[path])
	}
	return out
}

// LocalPaths returns the set of known local paths.
func (c *Cache) LocalPaths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Keys(c.locals)
}
