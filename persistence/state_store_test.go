package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rixmerz/flowgate/graph"
)

func TestFileStateStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStateStore(dir)
	require.NoError(t, err)

	state := graph.NewState(10)
	state.CurrentNodes = []string{"plan"}
	state.LastActivity = time.Unix(0, 0).UTC()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "sess-1", state))

	loaded, ok, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "plan", loaded.CurrentNode())
}

func TestFileStateStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStateStore(dir)
	require.NoError(t, err)

	state := graph.NewState(10)
	state.CurrentNodes = []string{"code"}
	require.NoError(t, store.Save(context.Background(), "sess-2", state))

	reopened, err := NewFileStateStore(dir)
	require.NoError(t, err)
	loaded, ok, err := reopened.Load(context.Background(), "sess-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "code", loaded.CurrentNode())
}

func TestFileStateStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStateStore(dir)
	require.NoError(t, err)

	state := graph.NewState(10)
	require.NoError(t, store.Save(context.Background(), "sess-3", state))
	require.NoError(t, store.Delete(context.Background(), "sess-3"))

	_, ok, err := store.Load(context.Background(), "sess-3")
	require.NoError(t, err)
	require.False(t, ok)
}
