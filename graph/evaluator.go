package graph

import (
	"fmt"
	"time"
)

// TriggerKind distinguishes what caused an evaluation: a tool call, an
// utterance, or nothing (only "always"/"default" edges can fire).
type TriggerKind string

const (
	TriggerTool   TriggerKind = "tool"
	TriggerPhrase TriggerKind = "phrase"
	TriggerNone   TriggerKind = "none"
)

// Trigger carries the payload an evaluation needs: either Provider/Tool for
// a tool call, or Text for an utterance.
type Trigger struct {
	Kind     TriggerKind
	Provider string
	Tool     string
	Text     string
}

// EvaluateTransitions returns every outgoing edge from the state's current
// node whose condition matches the trigger, in ascending priority order.
// It never mutates state or takes a transition — callers decide whether and
// which candidate to traverse.
func EvaluateTransitions(g *Graph, s *State, trig Trigger) []*Edge {
	current := s.CurrentNode()
	if current == "" {
		return nil
	}
	var matches []*Edge
	full := ""
	if trig.Kind == TriggerTool {
		full = FullToolName(trig.Provider, trig.Tool)
	}
	for _, e := range g.OutgoingEdges(current) {
		switch trig.Kind {
		case TriggerTool:
			if e.Condition.MatchesTool(full) {
				matches = append(matches, e)
			}
		case TriggerPhrase:
			if ok, _ := e.Condition.MatchesPhrase(trig.Text); ok {
				matches = append(matches, e)
			}
		case TriggerNone:
			if e.Condition.Type == "always" || e.Condition.Type == "default" {
				matches = append(matches, e)
			}
		}
	}
	return matches
}

// TakeTransition applies a single edge, enforcing the destination node's
// visit cap. On MaxVisitsExceeded the state is left completely untouched;
// the caller may retry with a different edge or fail the request.
func TakeTransition(g *Graph, s *State, e *Edge, reason string, now time.Time) error {
	if e == nil {
		return fmt.Errorf("nil edge")
	}
	if s.CurrentNode() != e.From {
		return &EdgeNotFromCurrentNode{EdgeID: e.ID, Current: s.CurrentNode()}
	}
	dest := g.Node(e.To)
	if dest == nil {
		return &UnknownNodeReferenced{NodeID: e.To}
	}
	max := dest.MaxVisits
	if max <= 0 {
		max = s.DefaultMaxVisits
	}
	current := s.VisitCount(e.To)
	if current >= max {
		return &MaxVisitsExceeded{Node: e.To, Current: current, Cap: max}
	}
	s.recordTransition(e.From, e.To, e.ID, reason, now)
	return nil
}

// VisitWarning returns a human-readable warning when a node is at or above
// 80% of its visit cap, "" otherwise, matching the original pipeline
// manager's get_node_visit_warning threshold.
func VisitWarning(g *Graph, s *State, nodeID string) string {
	n := g.Node(nodeID)
	if n == nil {
		return ""
	}
	max := n.MaxVisits
	if max <= 0 {
		max = s.DefaultMaxVisits
	}
	current := s.VisitCount(nodeID)
	if current >= max {
		return fmt.Sprintf("BLOCKED: node %s has reached its visit cap (%d/%d)", nodeID, current, max)
	}
	if float64(current) >= 0.8*float64(max) {
		remaining := max - current
		return fmt.Sprintf("WARNING: node %s is near its visit cap, %d remaining", nodeID, remaining)
	}
	return ""
}
