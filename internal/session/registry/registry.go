// Package registry holds the in-memory session map. It carries no domain
// logic; all mutation comes from the session manager.
package registry

import (
	"sort"
	"sync"

	"whatsapp-otp-gateway/internal/session/domain"
)

// Registry is a mutex-guarded map of session records keyed by session ID.
// Get and List return copies, never live references.
type Registry struct {
	mu sync.RWMutex
	m  map[string]domain.Session
}

func New() *Registry {
	return &Registry{m: make(map[string]domain.Session)}
}

func (r *Registry) Put(sess domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[sess.SessionID] = sess
}

func (r *Registry) Get(sessionID string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.m[sessionID]
	return sess, ok
}

func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, sessionID)
}

// List returns a point-in-time snapshot sorted by session ID.
func (r *Registry) List() []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Session, 0, len(r.m))
	for _, sess := range r.m {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}
