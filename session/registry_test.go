package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveFallsBackToDefaultSession(t *testing.T) {
	r := NewRegistry("/srv/default")
	e, ok := r.Resolve("")
	require.True(t, ok)
	require.Equal(t, "/srv/default", e.ProjectDir)
}

func TestMintCreatesUniqueSessions(t *testing.T) {
	r := NewRegistry("/srv/default")
	a := r.Mint("/srv/a")
	b := r.Mint("/srv/b")
	require.NotEqual(t, a.SessionID, b.SessionID)

	got, ok := r.Resolve(a.SessionID)
	require.True(t, ok)
	require.Equal(t, "/srv/a", got.ProjectDir)
}

func TestResolveUnknownSessionNotFound(t *testing.T) {
	r := NewRegistry("/srv/default")
	_, ok := r.Resolve("nonexistent")
	require.False(t, ok)
}

func TestDropRecreatesDefaultSession(t *testing.T) {
	r := NewRegistry("/srv/default")
	r.Drop(DefaultSessionID)
	e, ok := r.Resolve(DefaultSessionID)
	require.True(t, ok)
	require.Equal(t, "/srv/default", e.ProjectDir)
}

func TestIdleSessionsExcludesDefault(t *testing.T) {
	r := NewRegistry("/srv/default")
	e := r.Mint("/srv/a")
	r.mu.Lock()
	r.sessions[e.SessionID].LastTouched = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	idle := r.IdleSessions(time.Now().Add(-time.Minute))
	require.Equal(t, []string{e.SessionID}, idle)
}
