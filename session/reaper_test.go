package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIdleReaperDropsIdleSessions(t *testing.T) {
	r := NewRegistry("/srv/default")
	e := r.Mint("/srv/a")
	r.mu.Lock()
	r.sessions[e.SessionID].LastTouched = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	reaper, err := NewIdleReaper(r, time.Minute, "@every 50ms", nil)
	require.NoError(t, err)
	reaper.Start()
	defer reaper.Stop()

	require.Eventually(t, func() bool {
		_, ok := r.Resolve(e.SessionID)
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}
