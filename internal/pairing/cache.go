// Package pairing holds the short-lived pairing QR for each session and renders
// pairing payloads as scannable images.
package pairing

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultTTL is how long an artifact stays retrievable after it is stored.
const DefaultTTL = 2 * time.Minute

// DefaultSweepInterval is the cadence of the background expiry sweep. The sweep
// is a backstop; Get re-checks the TTL on every call regardless.
const DefaultSweepInterval = 5 * time.Minute

// Artifact is one rendered pairing credential with its generation time.
type Artifact struct {
	SessionID string
	Data      string // rendered QR, a data: URL
	IssuedAt  time.Time
}

// Cache is an in-memory store of at most one pairing artifact per session.
type Cache struct {
	mu   sync.RWMutex
	m    map[string]Artifact
	ttl  time.Duration
	nowF func() time.Time
}

// NewCache returns a Cache with the given TTL; ttl <= 0 uses DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		m:    make(map[string]Artifact),
		ttl:  ttl,
		nowF: time.Now,
	}
}

// Set stores the artifact for sessionID with a fresh timestamp, replacing any
// previous artifact for that session.
func (c *Cache) Set(sessionID, data string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[sessionID] = Artifact{SessionID: sessionID, Data: data, IssuedAt: c.nowF()}
}

// Get returns the artifact for sessionID if present and within TTL. The TTL is
// evaluated against the current time on every call, so a stale artifact is
// never returned even if the sweep has not run yet.
func (c *Cache) Get(sessionID string) (Artifact, bool) {
	c.mu.RLock()
	a, ok := c.m[sessionID]
	c.mu.RUnlock()
	if !ok {
		return Artifact{}, false
	}
	if c.nowF().Sub(a.IssuedAt) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; Set may have replaced it meanwhile.
		if cur, ok := c.m[sessionID]; ok && cur.IssuedAt.Equal(a.IssuedAt) {
			delete(c.m, sessionID)
		}
		c.mu.Unlock()
		return Artifact{}, false
	}
	return a, true
}

// Delete removes the artifact for sessionID, if any.
func (c *Cache) Delete(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, sessionID)
}

// SweepExpired removes all artifacts older than the TTL and returns how many
// were removed.
func (c *Cache) SweepExpired() int {
	now := c.nowF()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, a := range c.m {
		if now.Sub(a.IssuedAt) > c.ttl {
			delete(c.m, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs SweepExpired every interval until ctx is cancelled.
// interval <= 0 uses DefaultSweepInterval.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.SweepExpired(); n > 0 {
					log.Printf("pairing: swept %d expired artifact(s)", n)
				}
			}
		}
	}()
}
