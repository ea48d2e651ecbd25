// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package session

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Context is the identifier-keyed session store shared by all engines of one
// configuration. One lock guards the map and the intrusive LRU list; the
// list keeps most recently accessed entries at the back, so eviction pops
// the front. Expired entries are removed lazily on lookup and on insert.
type Context struct {
	mu       sync.Mutex
	clk      clock.Clock
	capacity int           // 0 means unbounded
	timeout  time.Duration // 0 means entries never expire

	sessions map[string]*entry
	front    *entry // least recently accessed
	back     *entry
}

type entry struct {
	key        string
	sess       *Session
	prev, next *entry
}

const DefaultTimeout = 24 * time.Hour

func NewContext(clk clock.Clock, capacity int) *Context {
	if clk == nil {
		clk = clock.New()
	}
	return &Context{
		clk:      clk,
		capacity: capacity,
		timeout:  DefaultTimeout,
		sessions: make(map[string]*entry),
	}
}

// Now exposes the context clock so engines sharing the context stamp
// sessions consistently.
func (c *Context) Now() time.Time { return c.clk.Now() }

func (c *Context) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.front = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.back = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *Context) pushBack(e *entry) {
	e.prev = c.back
	e.next = nil
	if c.back != nil {
		c.back.next = e
	} else {
		c.front = e
	}
	c.back = e
}

func (c *Context) removeLocked(e *entry) {
	c.unlink(e)
	delete(c.sessions, e.key)
}

func (c *Context) expiredLocked(e *entry, now time.Time) bool {
	return c.timeout > 0 && now.Sub(e.sess.LastAccessed()) > c.timeout
}

// Get returns the stored resumable session or nil. A hit moves the entry to
// the back of the LRU order and advances lastAccessed monotonically.
func (c *Context) Get(id []byte) *Session {
	if len(id) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.sessions[string(id)]
	if !ok {
		return nil
	}
	now := c.clk.Now()
	if c.expiredLocked(e, now) || !e.sess.Resumable() {
		c.removeLocked(e)
		return nil
	}
	e.sess.accessedAt(now)
	c.unlink(e)
	c.pushBack(e)
	return e.sess
}

// Put stores a session under its ID, replacing any previous entry. Sessions
// without an ID are not storable. Inserting over capacity evicts from the
// least recently accessed end.
func (c *Context) Put(sess *Session) {
	id := sess.ID()
	if len(id) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.sessions[string(id)]; ok {
		c.removeLocked(e)
	}
	e := &entry{key: string(id), sess: sess}
	c.sessions[e.key] = e
	c.pushBack(e)
	sess.accessedAt(c.clk.Now())
	c.evictLocked()
}

// Invalidate marks the session invalid and drops it from the store.
// Idempotent; unknown IDs are ignored.
func (c *Context) Invalidate(id []byte) {
	if len(id) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.sessions[string(id)]; ok {
		e.sess.Invalidate()
		c.removeLocked(e)
	}
}

func (c *Context) SetCacheSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = n
	c.evictLocked()
}

func (c *Context) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

func (c *Context) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

func (c *Context) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// GetByPeer finds the most recently accessed resumable session negotiated
// with the given peer. Clients use it to pick a resumption candidate; SNI
// matching beyond host/port stays with the host.
func (c *Context) GetByPeer(host string, port int) *Session {
	if host == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	for e := c.back; e != nil; e = e.prev {
		if e.sess.PeerHost() != host || e.sess.PeerPort() != port {
			continue
		}
		if c.expiredLocked(e, now) || !e.sess.Resumable() {
			continue
		}
		e.sess.accessedAt(now)
		c.unlink(e)
		c.pushBack(e)
		return e.sess
	}
	return nil
}

// IDs of all stored entries, front to back, including expired entries not
// yet removed. For hosts enumerating the cache.
func (c *Context) IDs() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids [][]byte
	for e := c.front; e != nil; e = e.next {
		ids = append(ids, []byte(e.key))
	}
	return ids
}

func (c *Context) evictLocked() {
	now := c.clk.Now()
	// expired entries go first regardless of capacity
	for e := c.front; e != nil; {
		next := e.next
		if c.expiredLocked(e, now) {
			c.removeLocked(e)
		}
		e = next
	}
	if c.capacity <= 0 {
		return
	}
	for len(c.sessions) > c.capacity && c.front != nil {
		c.removeLocked(c.front)
	}
}
