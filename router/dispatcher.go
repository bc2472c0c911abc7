// Package router implements the policy-gated dispatcher (C6) and the
// transition API (C8): the two caller-facing surfaces of flowgate. The
// dispatcher's Execute gating sequence — authorize, log, delegate, log — is
// grounded on framework/tools.go's instrumentedTool.Execute, with the
// permission manager swapped for a direct check against the current node's
// policy.
package router

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rixmerz/flowgate/graph"
	"github.com/rixmerz/flowgate/persistence"
	"github.com/rixmerz/flowgate/rpcpool"
	"github.com/rixmerz/flowgate/session"
	"github.com/rixmerz/flowgate/toolindex"
)

// Dispatcher forwards tool calls from the caller to a provider subprocess,
// after checking the current node's policy, and returns a hint of possible
// transitions for the caller to act on explicitly.
type Dispatcher struct {
	Graph     *graph.Graph
	Sessions  *session.Registry
	Store     persistence.StateStore
	Pool      *rpcpool.Pool
	Index     *toolindex.Index // optional; nil disables reinforcement
	Logger    *log.Logger
}

// ExecuteResult is what the dispatcher hands back to the caller: the raw
// tool result plus a non-binding hint of transitions the evaluator found.
type ExecuteResult struct {
	ToolResult           []byte
	AvailableTransitions []*graph.Edge
}

func (d *Dispatcher) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// Execute validates policy, forwards the call to the provider, and
// evaluates (but never applies) possible transitions.
func (d *Dispatcher) Execute(ctx context.Context, sessionID, provider, tool string, arguments map[string]interface{}) (*ExecuteResult, error) {
	entry, ok := d.Sessions.Resolve(sessionID)
	if !ok {
		return nil, &SessionUnresolved{SessionID: sessionID}
	}

	state, ok, err := d.Store.Load(ctx, entry.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load graph state: %w", err)
	}
	if !ok {
		// First tool call on a session that never called activate: initialize
		// at the graph's start node and persist it, rather than failing — the
		// session itself resolved fine, there's simply no state yet.
		state, err = graph.Initialize(d.Graph, d.Graph.Metadata["name"], time.Now().UTC())
		if err != nil {
			return nil, err
		}
		if err := d.Store.Save(ctx, entry.SessionID, state); err != nil {
			return nil, fmt.Errorf("save initial graph state: %w", err)
		}
	}

	node := d.Graph.Node(state.CurrentNode())
	if node == nil {
		return nil, &graph.UnknownNodeReferenced{NodeID: state.CurrentNode()}
	}

	if !node.AllowsProvider(provider) {
		return nil, &PolicyDenied{Node: node.ID, Provider: provider, Allowed: node.AllowedProviders}
	}
	fullName := graph.FullToolName(provider, tool)
	if node.BlocksTool(fullName) {
		return nil, &PolicyDenied{Node: node.ID, Provider: provider, Allowed: node.AllowedProviders}
	}

	d.logger().Printf("dispatch: session=%s node=%s provider=%s tool=%s", entry.SessionID, node.ID, provider, tool)

	conn, err := d.Pool.Get(ctx, provider)
	if err != nil {
		return nil, err
	}
	result, err := conn.CallTool(ctx, tool, arguments)
	if err != nil {
		d.logger().Printf("dispatch failed: session=%s provider=%s tool=%s err=%v", entry.SessionID, provider, tool, err)
		return nil, err
	}

	if d.Index != nil {
		if reinforceErr := d.Index.Reinforce(fullName, tool); reinforceErr != nil {
			d.logger().Printf("tool index reinforce failed: %v", reinforceErr)
		}
	}

	hints := graph.EvaluateTransitions(d.Graph, state, graph.Trigger{Kind: graph.TriggerTool, Provider: provider, Tool: tool})

	d.logger().Printf("dispatch ok: session=%s provider=%s tool=%s transitions=%d", entry.SessionID, provider, tool, len(hints))

	return &ExecuteResult{ToolResult: result, AvailableTransitions: hints}, nil
}
