package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSpec mirrors the on-disk graph.yaml shape before it is compiled into a
// Graph. Field names follow the original pipeline manager's graph_parser.py
// structure, translated into exported Go identifiers.
type FileSpec struct {
	Metadata map[string]string `yaml:"metadata"`
	Nodes    []NodeSpec        `yaml:"nodes"`
	Edges    []EdgeSpec        `yaml:"edges"`
}

// NodeSpec is one entry of FileSpec.Nodes.
type NodeSpec struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	MCPsEnabled     []string `yaml:"mcps_enabled"`
	ToolsBlocked    []string `yaml:"tools_blocked"`
	PromptInjection string   `yaml:"prompt_injection"`
	IsStart         bool     `yaml:"is_start"`
	IsEnd           bool     `yaml:"is_end"`
	MaxVisits       int      `yaml:"max_visits"`
}

// ConditionSpec is the nested "condition:" block of an edge.
type ConditionSpec struct {
	Type    string   `yaml:"type"`
	Tool    string   `yaml:"tool"`
	Phrases []string `yaml:"phrases"`
}

// EdgeSpec is one entry of FileSpec.Edges.
type EdgeSpec struct {
	ID        string        `yaml:"id"`
	From      string        `yaml:"from"`
	To        string        `yaml:"to"`
	Condition ConditionSpec `yaml:"condition"`
	Priority  int           `yaml:"priority"`
}

// LoadFile reads and compiles a graph.yaml file from disk.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file %s: %w", path, err)
	}
	var spec FileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse graph file %s: %w", path, err)
	}
	return Compile(&spec)
}

// Compile turns a parsed FileSpec into a validated Graph, aggregating every
// structural problem into a single GraphStructureInvalid rather than
// failing on the first one found.
func Compile(spec *FileSpec) (*Graph, error) {
	g := New()
	for k, v := range spec.Metadata {
		g.Metadata[k] = v
	}

	var problems []string
	for _, ns := range spec.Nodes {
		if ns.ID == "" {
			problems = append(problems, "node missing required 'id' field")
			continue
		}
		allowed := ns.MCPsEnabled
		if len(allowed) == 0 {
			allowed = []string{"*"}
		}
		name := ns.Name
		if name == "" {
			name = ns.ID
		}
		maxVisits := ns.MaxVisits
		if maxVisits <= 0 {
			maxVisits = DefaultMaxVisits
		}
		g.AddNode(&Node{
			ID:              ns.ID,
			Name:            name,
			AllowedProviders: allowed,
			BlockedTools:    ns.ToolsBlocked,
			PromptInjection: ns.PromptInjection,
			IsStart:         ns.IsStart,
			IsEnd:           ns.IsEnd,
			MaxVisits:       maxVisits,
		})
	}

	for _, es := range spec.Edges {
		switch {
		case es.ID == "":
			problems = append(problems, "edge missing required 'id' field")
			continue
		case es.From == "":
			problems = append(problems, fmt.Sprintf("edge '%s' missing required 'from' field", es.ID))
			continue
		case es.To == "":
			problems = append(problems, fmt.Sprintf("edge '%s' missing required 'to' field", es.ID))
			continue
		}
		condType := es.Condition.Type
		if condType == "" {
			condType = "always"
		}
		priority := es.Priority
		if priority == 0 {
			priority = 1
		}
		g.AddEdge(&Edge{
			ID:   es.ID,
			From: es.From,
			To:   es.To,
			Condition: EdgeCondition{
				Type:    condType,
				Tool:    es.Condition.Tool,
				Phrases: es.Condition.Phrases,
			},
			Priority: priority,
		})
	}

	if err := g.Validate(); err != nil {
		gse, ok := err.(*GraphStructureInvalid)
		if !ok {
			return nil, err
		}
		problems = append(problems, gse.Problems...)
	}
	if len(problems) > 0 {
		return nil, &GraphStructureInvalid{Problems: problems}
	}
	return g, nil
}
