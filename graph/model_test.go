package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleGraph() *Graph {
	g := New()
	g.AddNode(&Node{ID: "plan", Name: "plan", AllowedProviders: []string{"*"}, IsStart: true, MaxVisits: 3})
	g.AddNode(&Node{ID: "code", Name: "code", AllowedProviders: []string{"filesystem", "git"}, MaxVisits: 5})
	g.AddNode(&Node{ID: "done", Name: "done", AllowedProviders: []string{"*"}, IsEnd: true})
	g.AddEdge(&Edge{ID: "e1", From: "plan", To: "code", Condition: EdgeCondition{Type: "phrase", Phrases: []string{"start coding"}}, Priority: 1})
	g.AddEdge(&Edge{ID: "e2", From: "code", To: "done", Condition: EdgeCondition{Type: "tool", Tool: "git__commit"}, Priority: 1})
	g.AddEdge(&Edge{ID: "e3", From: "code", To: "plan", Condition: EdgeCondition{Type: "default"}, Priority: 5})
	return g
}

func TestValidateAcceptsWellFormedGraph(t *testing.T) {
	g := sampleGraph()
	require.NoError(t, g.Validate())
}

func TestValidateRejectsMissingStart(t *testing.T) {
	g := New()
	g.AddNode(&Node{ID: "a", IsEnd: true})
	err := g.Validate()
	require.Error(t, err)
	var gse *GraphStructureInvalid
	require.ErrorAs(t, err, &gse)
	require.Contains(t, gse.Problems[0], "no start node")
}

func TestValidateRejectsMultipleStarts(t *testing.T) {
	g := New()
	g.AddNode(&Node{ID: "a", IsStart: true})
	g.AddNode(&Node{ID: "b", IsStart: true, IsEnd: true})
	g.AddEdge(&Edge{ID: "e", From: "a", To: "b", Condition: EdgeCondition{Type: "always"}})
	err := g.Validate()
	require.Error(t, err)
	var gse *GraphStructureInvalid
	require.ErrorAs(t, err, &gse)
	found := false
	for _, p := range gse.Problems {
		if p == "graph has 2 start nodes, expected exactly one" {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	g := New()
	g.AddNode(&Node{ID: "a", IsStart: true, IsEnd: true})
	g.AddEdge(&Edge{ID: "e", From: "a", To: "ghost", Condition: EdgeCondition{Type: "always"}})
	err := g.Validate()
	require.Error(t, err)
}

func TestNodePolicyAllowsProviderWithWildcard(t *testing.T) {
	n := &Node{AllowedProviders: []string{"*"}}
	require.True(t, n.AllowsProvider("anything"))
}

func TestNodePolicyDeniesUnlistedProvider(t *testing.T) {
	n := &Node{AllowedProviders: []string{"filesystem"}}
	require.False(t, n.AllowsProvider("git"))
}

func TestEdgeConditionMatchesToolThreeWays(t *testing.T) {
	exact := EdgeCondition{Type: "tool", Tool: "git__commit"}
	require.True(t, exact.MatchesTool("git__commit"))

	prefix := EdgeCondition{Type: "tool", Tool: "git__"}
	require.True(t, prefix.MatchesTool("git__commit"))

	substring := EdgeCondition{Type: "tool", Tool: "commit"}
	require.True(t, substring.MatchesTool("git__commit"))

	require.False(t, exact.MatchesTool("filesystem__read"))
}

func TestEdgeConditionMatchesPhraseCaseInsensitive(t *testing.T) {
	c := EdgeCondition{Type: "phrase", Phrases: []string{"Ready To Ship"}}
	ok, phrase := c.MatchesPhrase("I think we're ready to ship now")
	require.True(t, ok)
	require.Equal(t, "Ready To Ship", phrase)
}

func TestOutgoingEdgesSortedByPriority(t *testing.T) {
	g := sampleGraph()
	edges := g.OutgoingEdges("code")
	require.Len(t, edges, 2)
	require.Equal(t, "e2", edges[0].ID)
	require.Equal(t, "e3", edges[1].ID)
}

func TestOverrideMaxVisitsUnknownNode(t *testing.T) {
	g := sampleGraph()
	err := g.OverrideMaxVisits("missing", 4, 0)
	require.Error(t, err)
	var unk *UnknownNodeReferenced
	require.ErrorAs(t, err, &unk)
}

func TestOverrideMaxVisitsRejectsCapAtOrBelowCurrentVisits(t *testing.T) {
	g := sampleGraph()
	err := g.OverrideMaxVisits("code", 3, 3)
	require.Error(t, err)

	err = g.OverrideMaxVisits("code", 4, 3)
	require.NoError(t, err)
	require.Equal(t, 4, g.Node("code").MaxVisits)
}
