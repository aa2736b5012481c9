package audio

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// poolEntry is one pooled handle with its usage accounting.
type poolEntry struct {
	identity string
	handle   Handle
	useCount int
}

// Pool keeps up to capacity open handles alive so replaying a recent song
// skips the decode. When full, inserting evicts the entry with the lowest
// use count; ties evict the earliest-inserted entry.
type Pool struct {
	mu       sync.Mutex
	capacity int
	entries  []*poolEntry // insertion order
}

// NewPool creates a pool bounded at capacity handles.
func NewPool(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{capacity: capacity}
}

// Get returns the pooled handle for the identity, bumping its use count.
func (p *Pool) Get(identity string) (Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.identity == identity {
			e.useCount++
			return e.handle, true
		}
	}
	return nil, false
}

// Put inserts a handle for the identity. If the identity is already pooled
// only its use count bumps; the given handle is not adopted. A full pool
// evicts and closes its least-used, earliest-inserted entry first.
func (p *Pool) Put(identity string, h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.identity == identity {
			e.useCount++
			return
		}
	}

	if len(p.entries) >= p.capacity {
		p.evictLocked()
	}
	p.entries = append(p.entries, &poolEntry{identity: identity, handle: h, useCount: 1})
}

// evictLocked removes and closes the lowest-useCount entry, earliest
// insertion winning ties. Caller holds p.mu.
func (p *Pool) evictLocked() {
	if len(p.entries) == 0 {
		return
	}

	victim := 0
	for i, e := range p.entries {
		if e.useCount < p.entries[victim].useCount {
			victim = i
		}
	}

	e := p.entries[victim]
	p.entries = append(p.entries[:victim], p.entries[victim+1:]...)
	if err := e.handle.Close(); err != nil {
		zlog.Warn().Msgf("audio: failed to close evicted handle for %s: %v", e.identity, err)
	}
	zlog.Debug().Msgf("audio: evicted pooled handle: identity=%s useCount=%d", e.identity, e.useCount)
}

// StopAll stops playback on every pooled handle without evicting any.
func (p *Pool) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		e.handle.Stop()
	}
}

// Remove closes and drops the handle for the identity, if pooled.
func (p *Pool) Remove(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, e := range p.entries {
		if e.identity == identity {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			if err := e.handle.Close(); err != nil {
				zlog.Warn().Msgf("audio: failed to close handle for %s: %v", identity, err)
			}
			return
		}
	}
}

// Len reports how many handles are pooled.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close closes every pooled handle and empties the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if err := e.handle.Close(); err != nil {
			zlog.Warn().Msgf("audio: failed to close handle for %s: %v", e.identity, err)
		}
	}
	p.entries = nil
}
