package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
metadata:
  name: sample
nodes:
  - id: plan
    name: Plan
    is_start: true
    mcps_enabled: ["*"]
  - id: code
    name: Code
    mcps_enabled: ["filesystem", "git"]
    tools_blocked: ["git__push"]
  - id: done
    name: Done
    is_end: true
edges:
  - id: e1
    from: plan
    to: code
    priority: 1
    condition:
      type: phrase
      phrases: ["start coding"]
  - id: e2
    from: code
    to: done
    priority: 1
    condition:
      type: tool
      tool: git__commit
`

func TestLoadFileCompilesValidGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	g, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "plan", g.StartNode().ID)
	require.True(t, g.Node("code").BlocksTool("git__push"))
}

func TestCompileAggregatesMissingFields(t *testing.T) {
	spec := &FileSpec{
		Nodes: []NodeSpec{{ID: "a", IsStart: true}},
		Edges: []EdgeSpec{{ID: "", From: "a", To: "a"}, {From: "a"}},
	}
	_, err := Compile(spec)
	require.Error(t, err)
	var gse *GraphStructureInvalid
	require.ErrorAs(t, err, &gse)
	require.GreaterOrEqual(t, len(gse.Problems), 2)
}
