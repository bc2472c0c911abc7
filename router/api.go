package router

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rixmerz/flowgate/graph"
	"github.com/rixmerz/flowgate/persistence"
	"github.com/rixmerz/flowgate/session"
)

// API implements the transition API (C8): status, traverse, check_tool,
// check_phrase, reset, set_node, override_max_visits, activate, validate.
// Grounded on server/api.go's APIServer (one method per operation, thin
// wrapper over the underlying engine) and on original_source/server.py's
// described FastMCP operation set.
type API struct {
	Sessions  *session.Registry
	Store     persistence.StateStore
	GraphDir  string // directory of named graph.yaml files, for Activate

	mu     sync.RWMutex
	graphs map[string]*graph.Graph // active graph per session
}

// NewAPI returns a ready-to-use transition API.
func NewAPI(sessions *session.Registry, store persistence.StateStore, graphDir string) *API {
	return &API{Sessions: sessions, Store: store, GraphDir: graphDir, graphs: make(map[string]*graph.Graph)}
}

func (a *API) graphFor(sessionID string) (*graph.Graph, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	g, ok := a.graphs[sessionID]
	return g, ok
}

func (a *API) resolveSession(sessionID string) (*session.Entry, error) {
	entry, ok := a.Sessions.Resolve(sessionID)
	if !ok {
		return nil, &SessionUnresolved{SessionID: sessionID}
	}
	return entry, nil
}

// Activate loads graphName from GraphDir, validates it, and binds it as the
// active graph for sessionID, initializing a fresh graph state at the
// graph's start node.
func (a *API) Activate(ctx context.Context, sessionID, graphName string) (*graph.State, error) {
	entry, err := a.resolveSession(sessionID)
	if err != nil {
		return nil, err
	}
	if err := graphLibraryExists(a.GraphDir); err != nil {
		return nil, err
	}
	g, err := graph.LoadFile(filepath.Join(a.GraphDir, graphName+".yaml"))
	if err != nil {
		return nil, err
	}
	state, err := graph.Initialize(g, graphName, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.graphs[entry.SessionID] = g
	a.mu.Unlock()
	if err := a.Store.Save(ctx, entry.SessionID, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Validate loads graphName from GraphDir and reports every structural
// problem found, without touching any session's active graph or state.
func (a *API) Validate(graphName string) error {
	_, err := graph.LoadFile(filepath.Join(a.GraphDir, graphName+".yaml"))
	return err
}

// Status returns the session's current graph state plus a visit-cap
// warning for its current node, matching the original pipeline manager's
// status operation (including its 80%-of-cap warning threshold).
func (a *API) Status(ctx context.Context, sessionID string) (*graph.State, string, error) {
	entry, err := a.resolveSession(sessionID)
	if err != nil {
		return nil, "", err
	}
	state, ok, err := a.Store.Load(ctx, entry.SessionID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", &SessionUnresolved{SessionID: entry.SessionID}
	}
	g, ok := a.graphFor(entry.SessionID)
	if !ok {
		if state.ActiveGraphName == "" {
			return state, "", nil
		}
		loaded, err := graph.LoadFile(filepath.Join(a.GraphDir, state.ActiveGraphName+".yaml"))
		if err != nil {
			return state, "", nil
		}
		g = loaded
	}
	return state, graph.VisitWarning(g, state, state.CurrentNode()), nil
}

// CheckTool evaluates, without applying, the edges a tool call would make
// available from the session's current node.
func (a *API) CheckTool(ctx context.Context, sessionID, provider, tool string) ([]*graph.Edge, error) {
	g, state, err := a.activeGraphAndState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return graph.EvaluateTransitions(g, state, graph.Trigger{Kind: graph.TriggerTool, Provider: provider, Tool: tool}), nil
}

// CheckPhrase evaluates, without applying, the edges an utterance would
// make available from the session's current node.
func (a *API) CheckPhrase(ctx context.Context, sessionID, text string) ([]*graph.Edge, error) {
	g, state, err := a.activeGraphAndState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return graph.EvaluateTransitions(g, state, graph.Trigger{Kind: graph.TriggerPhrase, Text: text}), nil
}

func (a *API) activeGraphAndState(ctx context.Context, sessionID string) (*graph.Graph, *graph.State, error) {
	entry, err := a.resolveSession(sessionID)
	if err != nil {
		return nil, nil, err
	}
	state, ok, err := a.Store.Load(ctx, entry.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, &SessionUnresolved{SessionID: entry.SessionID}
	}
	g, ok := a.graphFor(entry.SessionID)
	if !ok {
		// No graph cached in this process (e.g. a fresh flowgatectl run):
		// reload the one named by the persisted state.
		if state.ActiveGraphName == "" {
			return nil, nil, fmt.Errorf("no graph active for session %s", entry.SessionID)
		}
		if g, err = graph.LoadFile(filepath.Join(a.GraphDir, state.ActiveGraphName+".yaml")); err != nil {
			return nil, nil, err
		}
		a.mu.Lock()
		a.graphs[entry.SessionID] = g
		a.mu.Unlock()
	}
	return g, state, nil
}

// Traverse applies a specific edge by id, explicitly — the caller must have
// already decided this is the transition to take; nothing here auto-advances.
func (a *API) Traverse(ctx context.Context, sessionID, edgeID, reason string) (*graph.State, error) {
	g, state, err := a.activeGraphAndState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	edge := g.Edge(edgeID)
	if edge == nil {
		return nil, &graph.EdgeNotFound{EdgeID: edgeID}
	}
	if err := graph.TakeTransition(g, state, edge, reason, time.Now().UTC()); err != nil {
		return nil, err
	}
	entry, _ := a.resolveSession(sessionID)
	if err := a.Store.Save(ctx, entry.SessionID, state); err != nil {
		return nil, err
	}
	return state, nil
}

// SetNode is the admin jump: it bypasses edge conditions and visit caps
// entirely, recording the jump as an explicit trace entry.
func (a *API) SetNode(ctx context.Context, sessionID, nodeID, reason string) (*graph.State, error) {
	g, state, err := a.activeGraphAndState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if g.Node(nodeID) == nil {
		return nil, &graph.UnknownNodeReferenced{NodeID: nodeID}
	}
	from := state.CurrentNode()
	*state = *forceNode(state, from, nodeID, reason, time.Now().UTC())
	entry, _ := a.resolveSession(sessionID)
	if err := a.Store.Save(ctx, entry.SessionID, state); err != nil {
		return nil, err
	}
	return state, nil
}

func forceNode(s *graph.State, from, to, reason string, now time.Time) *graph.State {
	next := &graph.State{
		CurrentNodes:     []string{to},
		Visits:           s.Visits,
		Trace:            s.Trace,
		ActiveGraphName:  s.ActiveGraphName,
		DefaultMaxVisits: s.DefaultMaxVisits,
		TotalTransitions: s.TotalTransitions + 1,
		LastActivity:     now,
	}
	if next.Visits == nil {
		next.Visits = make(map[string]int)
	}
	next.Visits[to]++
	next.Trace = append(next.Trace, graph.TransitionRecord{From: from, To: to, Reason: reason, Timestamp: now})
	return next
}

// OverrideMaxVisits mutates a node's cap in memory only, for the lifetime
// of this process; it is never persisted as part of the graph definition
// and is lost on restart, deliberately (spec's design notes call this
// volatility out explicitly). It consults the session's current state so
// the new cap can never be set at or below the node's current visit count.
func (a *API) OverrideMaxVisits(ctx context.Context, sessionID, nodeID string, max int) error {
	entry, err := a.resolveSession(sessionID)
	if err != nil {
		return err
	}
	g, ok := a.graphFor(entry.SessionID)
	if !ok {
		return fmt.Errorf("no graph active for session %s", entry.SessionID)
	}
	state, ok, err := a.Store.Load(ctx, entry.SessionID)
	if err != nil {
		return err
	}
	var currentVisits int
	if ok {
		currentVisits = state.VisitCount(nodeID)
	}
	return g.OverrideMaxVisits(nodeID, max, currentVisits)
}

// Reset returns the session's graph state to its start node while
// preserving ActiveGraphName and DefaultMaxVisits.
func (a *API) Reset(ctx context.Context, sessionID string) (*graph.State, error) {
	g, state, err := a.activeGraphAndState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := graph.Reset(g, state, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	entry, _ := a.resolveSession(sessionID)
	if err := a.Store.Save(ctx, entry.SessionID, next); err != nil {
		return nil, err
	}
	return next, nil
}

// graphLibraryExists is a small guard used by Activate to give a clearer
// error than a bare "file not found" when GraphDir points at a path that
// was never created.
func graphLibraryExists(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("graph library dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("graph library dir %s is not a directory", dir)
	}
	return nil
}
