// Package graph implements the declarative workflow graph: nodes that carry
// per-mode tool-provider policy, edges that describe how the active node may
// change, and the evaluator that turns a tool call or an agent utterance into
// a set of candidate transitions. Nothing in this package executes anything;
// it only answers "what does the policy say" and "where could we go next".
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultMaxVisits is used for a node whose MaxVisits is left at zero.
const DefaultMaxVisits = 10

// Node is an operating mode: a named point in the graph with its own
// provider allow-list and blocked-tool set.
type Node struct {
	ID              string
	Name            string
	AllowedProviders []string // "*" means every configured provider
	BlockedTools    []string // "{provider}__{tool}" patterns, matched verbatim
	PromptInjection string
	IsStart         bool
	IsEnd           bool
	MaxVisits       int
}

// AllowsProvider reports whether the node's policy permits the given
// provider at all (independent of any specific tool-block entry).
func (n *Node) AllowsProvider(provider string) bool {
	for _, p := range n.AllowedProviders {
		if p == "*" || p == provider {
			return true
		}
	}
	return false
}

// BlocksTool reports whether the fully qualified "{provider}__{tool}" name
// is explicitly blocked on this node.
func (n *Node) BlocksTool(fullName string) bool {
	for _, b := range n.BlockedTools {
		if b == fullName {
			return true
		}
	}
	return false
}

// EdgeCondition decides whether an edge fires for a tool call or for an
// utterance. A "tool" condition only answers MatchesTool and a "phrase"
// condition only answers MatchesPhrase; a "default" condition can match in
// both, and an "always" condition matches in neither (the evaluator handles
// it for triggerless evaluation only).
type EdgeCondition struct {
	Type    string // "tool", "phrase", "always", "default"
	Tool    string
	Phrases []string
}

// MatchesTool implements the three-way fuzzy match the original pipeline
// manager used: exact match, prefix match, or substring match against the
// fully qualified "{provider}__{tool}" name. All three are kept for parity
// even though the substring branch is a known hazard (see spec's design
// notes) — a short condition.Tool value can match more than intended.
func (c EdgeCondition) MatchesTool(fullName string) bool {
	if c.Type != "tool" && c.Type != "default" {
		return false
	}
	if c.Tool == "" {
		return c.Type == "default"
	}
	return fullName == c.Tool ||
		strings.HasPrefix(fullName, c.Tool) ||
		strings.Contains(fullName, c.Tool)
}

// MatchesPhrase reports whether text contains one of the condition's
// phrases (case-insensitive substring), and which phrase matched.
func (c EdgeCondition) MatchesPhrase(text string) (bool, string) {
	if c.Type != "phrase" && c.Type != "default" {
		return false, ""
	}
	if len(c.Phrases) == 0 {
		return c.Type == "default", ""
	}
	lower := strings.ToLower(text)
	for _, phrase := range c.Phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true, phrase
		}
	}
	return false, ""
}

// Edge is a directed, conditional transition from one node to another.
// Edges at the same source node are evaluated in ascending priority order,
// ties broken by declaration order.
type Edge struct {
	ID        string
	From      string
	To        string
	Condition EdgeCondition
	Priority  int
}

// FullToolName builds the "{provider}__{tool}" identity used throughout the
// policy and condition checks.
func FullToolName(provider, tool string) string {
	return fmt.Sprintf("%s__%s", provider, tool)
}

// Graph is the validated, effectively-immutable workflow definition: a set
// of nodes and the edges between them, indexed by source node for fast
// lookup. The only sanctioned mutation after Validate succeeds is
// OverrideMaxVisits, an explicit admin escape hatch.
type Graph struct {
	mu       sync.RWMutex
	Metadata map[string]string
	nodes    map[string]*Node
	edges    []*Edge
	bySource map[string][]*Edge
}

// New returns an empty graph ready for AddNode/AddEdge calls.
func New() *Graph {
	return &Graph{
		Metadata: map[string]string{},
		nodes:    make(map[string]*Node),
		bySource: make(map[string][]*Edge),
	}
}

// AddNode registers a node. Re-adding the same id replaces the prior node.
func (g *Graph) AddNode(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n.MaxVisits <= 0 {
		n.MaxVisits = DefaultMaxVisits
	}
	g.nodes[n.ID] = n
}

// AddEdge registers an edge and reindexes its source node's outgoing edges
// in priority order.
func (g *Graph) AddEdge(e *Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = append(g.edges, e)
	g.bySource[e.From] = append(g.bySource[e.From], e)
	sort.SliceStable(g.bySource[e.From], func(i, j int) bool {
		return g.bySource[e.From][i].Priority < g.bySource[e.From][j].Priority
	})
}

// Node returns the node with the given id, or nil if absent.
func (g *Graph) Node(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Nodes returns every node in the graph; order is unspecified.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Edge looks up a single edge by id.
func (g *Graph) Edge(id string) *Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.edges {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// OutgoingEdges returns the edges leaving nodeID, already sorted by
// ascending priority (ties in declaration order).
func (g *Graph) OutgoingEdges(nodeID string) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Edge(nil), g.bySource[nodeID]...)
}

// StartNode returns the node flagged is_start, falling back to an arbitrary
// node (map iteration order) if none is flagged, and nil for an empty graph.
// Validate rejects a graph without a start node before this matters in
// practice.
func (g *Graph) StartNode() *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.IsStart {
			return n
		}
	}
	for _, n := range g.nodes {
		return n
	}
	return nil
}

// OverrideMaxVisits mutates a single node's cap in place. This bypasses the
// otherwise-immutable-after-Validate contract deliberately: it is a
// volatile, in-memory-only admin escape hatch per spec, never persisted as
// part of the graph definition. currentVisits is the node's visit count in
// the caller's session state; the override is refused when newMax would
// fall at or below it, since that would instantly violate the
// visits[n] <= max_visits(n) invariant.
func (g *Graph) OverrideMaxVisits(nodeID string, newMax, currentVisits int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[nodeID]
	if !ok {
		return &UnknownNodeReferenced{NodeID: nodeID}
	}
	if newMax <= 0 {
		newMax = DefaultMaxVisits
	}
	if newMax <= currentVisits {
		return fmt.Errorf("override max visits for node %s: new max %d must exceed current visit count %d", nodeID, newMax, currentVisits)
	}
	n.MaxVisits = newMax
	return nil
}

// Validate checks the graph's structure (exactly one start node, every edge
// endpoint exists, every non-end node has an outgoing edge, every non-start
// node has an incoming edge) and returns every problem found, aggregated
// into a single GraphStructureInvalid, or nil if the graph is well formed.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var problems []string

	starts := 0
	for _, n := range g.nodes {
		if n.IsStart {
			starts++
		}
	}
	switch {
	case starts == 0:
		problems = append(problems, "graph has no start node")
	case starts > 1:
		problems = append(problems, fmt.Sprintf("graph has %d start nodes, expected exactly one", starts))
	}

	incoming := make(map[string]bool)
	outgoing := make(map[string]bool)
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			problems = append(problems, fmt.Sprintf("edge %s references unknown source node %s", e.ID, e.From))
		}
		if _, ok := g.nodes[e.To]; !ok {
			problems = append(problems, fmt.Sprintf("edge %s references unknown target node %s", e.ID, e.To))
		}
		outgoing[e.From] = true
		incoming[e.To] = true
	}

	for id, n := range g.nodes {
		if !n.IsEnd && !outgoing[id] {
			problems = append(problems, fmt.Sprintf("node %s has no outgoing edges and is not marked is_end", id))
		}
		if !n.IsStart && !incoming[id] {
			problems = append(problems, fmt.Sprintf("node %s has no incoming edges and is not marked is_start", id))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return &GraphStructureInvalid{Problems: problems}
}
