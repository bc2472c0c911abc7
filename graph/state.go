package graph

import "time"

// TransitionRecord is one entry in a graph state's append-only trace.
type TransitionRecord struct {
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	EdgeID    string    `json:"edge_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// State is the mutable, per-session position within a Graph. The
// CurrentNodes field is a list for parity with the original pipeline
// manager's parallel-branch shape, even though this implementation only
// ever populates it with a single entry (see spec's design notes on
// preserving the list shape without reproducing parallel execution).
type State struct {
	CurrentNodes     []string         `json:"current_nodes"`
	Visits           map[string]int   `json:"node_visits"`
	Trace            []TransitionRecord `json:"execution_path"`
	ActiveGraphName  string           `json:"active_graph"`
	DefaultMaxVisits int              `json:"max_visits_default"`
	TotalTransitions int              `json:"total_transitions"`
	LastActivity     time.Time        `json:"last_activity"`
}

// NewState returns a zeroed state with the given default visit cap; callers
// still need to Initialize it against a graph's start node.
func NewState(defaultMaxVisits int) *State {
	if defaultMaxVisits <= 0 {
		defaultMaxVisits = DefaultMaxVisits
	}
	return &State{
		Visits:           make(map[string]int),
		DefaultMaxVisits: defaultMaxVisits,
	}
}

// CurrentNode returns the first entry of CurrentNodes, or "" if unset.
func (s *State) CurrentNode() string {
	if len(s.CurrentNodes) == 0 {
		return ""
	}
	return s.CurrentNodes[0]
}

// VisitCount returns how many times nodeID has been entered.
func (s *State) VisitCount(nodeID string) int {
	return s.Visits[nodeID]
}

// recordTransition appends a trace entry, bumps the destination's visit
// count, replaces CurrentNodes with the single destination, and advances
// the transition counter and activity clock. It never removes or rewrites
// prior trace entries: the trace is append-only.
func (s *State) recordTransition(from, to, edgeID, reason string, now time.Time) {
	s.Trace = append(s.Trace, TransitionRecord{
		From:      from,
		To:        to,
		EdgeID:    edgeID,
		Timestamp: now,
		Reason:    reason,
	})
	if s.Visits == nil {
		s.Visits = make(map[string]int)
	}
	s.Visits[to]++
	s.CurrentNodes = []string{to}
	s.TotalTransitions++
	s.LastActivity = now
}

// Initialize sets the state to the graph's start node, recording a single
// "graph initialized" trace entry and a visit count of 1. The new state's
// ActiveGraphName is graphName and its DefaultMaxVisits is the package-level
// DefaultMaxVisits.
func Initialize(g *Graph, graphName string, now time.Time) (*State, error) {
	start := g.StartNode()
	if start == nil {
		return nil, &GraphStructureInvalid{Problems: []string{"graph has no start node"}}
	}
	s := NewState(DefaultMaxVisits)
	s.ActiveGraphName = graphName
	s.recordTransition("", start.ID, "", "graph initialized", now)
	return s, nil
}

// Reset returns the state to the graph's start node while preserving
// ActiveGraphName and DefaultMaxVisits, matching the original pipeline
// manager's reset_graph_state behavior (state identity survives a reset,
// only position does not).
func Reset(g *Graph, s *State, now time.Time) (*State, error) {
	start := g.StartNode()
	if start == nil {
		return nil, &GraphStructureInvalid{Problems: []string{"graph has no start node"}}
	}
	next := &State{
		Visits:           make(map[string]int),
		Trace:            append([]TransitionRecord(nil), s.Trace...),
		ActiveGraphName:  s.ActiveGraphName,
		DefaultMaxVisits: s.DefaultMaxVisits,
	}
	next.recordTransition(s.CurrentNode(), start.ID, "", "graph reset", now)
	return next, nil
}
