// Package session resolves an opaque session id to a project state
// directory, process-lifetime only. Grounded on agents/registry.go's
// Registry (map guarded by sync.RWMutex, with a default-entry fallback),
// simplified: no hot reload, since sessions aren't loaded from disk.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionID names the fallback session used when a caller doesn't
// supply one, per spec.md §4.7.
const DefaultSessionID = "default"

// Entry is one session's resolved state.
type Entry struct {
	SessionID   string
	ProjectDir  string
	LastTouched time.Time
}

// Registry maps session ids to their project state directory.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Entry
	fallback string
}

// NewRegistry returns a registry whose default session resolves to
// fallbackDir until Bind("default", ...) overrides it.
func NewRegistry(fallbackDir string) *Registry {
	r := &Registry{sessions: make(map[string]*Entry), fallback: fallbackDir}
	r.sessions[DefaultSessionID] = &Entry{SessionID: DefaultSessionID, ProjectDir: fallbackDir, LastTouched: time.Now()}
	return r
}

// Mint creates a new session id and binds it to projectDir.
func (r *Registry) Mint(projectDir string) *Entry {
	id := uuid.NewString()
	return r.Bind(id, projectDir)
}

// Bind associates sessionID with projectDir, creating or overwriting the
// entry, and returns it.
func (r *Registry) Bind(sessionID, projectDir string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &Entry{SessionID: sessionID, ProjectDir: projectDir, LastTouched: time.Now()}
	r.sessions[sessionID] = e
	return e
}

// Resolve looks up sessionID, falling back to the default session when
// sessionID is empty. Returns (entry, found).
func (r *Registry) Resolve(sessionID string) (*Entry, bool) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if ok {
		e.LastTouched = time.Now()
	}
	return e, ok
}

// Touch refreshes a session's last-activity clock without changing its
// binding; it is a no-op for unknown sessions.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sessionID]; ok {
		e.LastTouched = time.Now()
	}
}

// Drop removes a session. The default session can be dropped and will be
// recreated pointing at the registry's original fallback directory.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	if sessionID == DefaultSessionID {
		r.sessions[DefaultSessionID] = &Entry{SessionID: DefaultSessionID, ProjectDir: r.fallback, LastTouched: time.Now()}
	}
}

// IdleSessions returns every non-default session whose LastTouched predates
// the cutoff, used by IdleReaper's sweep.
func (r *Registry) IdleSessions(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var idle []string
	for id, e := range r.sessions {
		if id == DefaultSessionID {
			continue
		}
		if e.LastTouched.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}
