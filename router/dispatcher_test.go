package router

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rixmerz/flowgate/graph"
	"github.com/rixmerz/flowgate/persistence"
	"github.com/rixmerz/flowgate/rpcpool"
	"github.com/rixmerz/flowgate/session"
)

func buildTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	g.AddNode(&graph.Node{ID: "plan", IsStart: true, AllowedProviders: []string{"*"}, MaxVisits: 5})
	g.AddNode(&graph.Node{ID: "code", AllowedProviders: []string{"fake"}, MaxVisits: 5})
	g.AddNode(&graph.Node{ID: "locked", AllowedProviders: []string{"git"}, IsEnd: true, MaxVisits: 5})
	g.AddEdge(&graph.Edge{ID: "to-code", From: "plan", To: "code", Condition: graph.EdgeCondition{Type: "always"}})
	g.AddEdge(&graph.Edge{ID: "to-locked", From: "code", To: "locked", Condition: graph.EdgeCondition{Type: "tool", Tool: "fake__ping"}})
	require.NoError(t, g.Validate())
	return g
}

const echoProviderScript = `
while IFS= read -r line; do
  id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  case "$line" in
    *'"method":"initialize"'*) echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{}}" ;;
    *'"method":"tools/call"'*) echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"ok\":true}}" ;;
  esac
done
`

type echoConfig struct{}

func (echoConfig) Resolve(provider string) (rpcpool.LaunchConfig, bool) {
	if provider != "fake" {
		return rpcpool.LaunchConfig{}, false
	}
	return rpcpool.LaunchConfig{Provider: "fake", Command: "/bin/sh", Args: []string{"-c", echoProviderScript}}, true
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *graph.Graph, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake provider assumes a POSIX shell")
	}
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	g := buildTestGraph(t)
	store, err := persistence.NewFileStateStore(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewRegistry("/srv/default")

	state, err := graph.Initialize(g, "test", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, graph.TakeTransition(g, state, g.Edge("to-code"), "start", time.Now().UTC()))
	require.NoError(t, store.Save(context.Background(), session.DefaultSessionID, state))

	pool := rpcpool.NewPool(echoConfig{})
	t.Cleanup(func() { pool.CloseAll() })

	return &Dispatcher{Graph: g, Sessions: sessions, Store: store, Pool: pool}, g, session.DefaultSessionID
}

func TestDispatcherExecuteAllowedProvider(t *testing.T) {
	d, _, sessionID := newTestDispatcher(t)
	result, err := d.Execute(context.Background(), sessionID, "fake", "ping", nil)
	require.NoError(t, err)
	require.Contains(t, string(result.ToolResult), "ok")
	require.Len(t, result.AvailableTransitions, 1)
	require.Equal(t, "to-locked", result.AvailableTransitions[0].ID)
}

func TestDispatcherExecuteDeniesUnlistedProvider(t *testing.T) {
	d, _, sessionID := newTestDispatcher(t)
	_, err := d.Execute(context.Background(), sessionID, "git", "commit", nil)
	require.Error(t, err)
	var denied *PolicyDenied
	require.ErrorAs(t, err, &denied)
}

func TestDispatcherExecuteInitializesFreshSessionState(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake provider assumes a POSIX shell")
	}
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	g := buildTestGraph(t)
	store, err := persistence.NewFileStateStore(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewRegistry("/srv/default")
	pool := rpcpool.NewPool(echoConfig{})
	t.Cleanup(func() { pool.CloseAll() })

	d := &Dispatcher{Graph: g, Sessions: sessions, Store: store, Pool: pool}

	// No Activate call, and no state saved yet: the session resolves fine,
	// but the store has nothing for it. Execute should initialize state at
	// the graph's start node rather than erroring, and persist it.
	result, err := d.Execute(context.Background(), session.DefaultSessionID, "fake", "ping", nil)
	require.NoError(t, err)
	require.Contains(t, string(result.ToolResult), "ok")

	state, ok, err := store.Load(context.Background(), session.DefaultSessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "plan", state.CurrentNode())
}

func TestDispatcherExecuteUnknownSession(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	_, err := d.Execute(context.Background(), "ghost-session", "fake", "ping", nil)
	require.Error(t, err)
	var unresolved *SessionUnresolved
	require.ErrorAs(t, err, &unresolved)
}
