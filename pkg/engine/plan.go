package engine

import (
	"slices"

	"github.com/dukex/dataflow/pkg/graph"
)

// Scope names which nodes a run covers.
type Scope string

const (
	// ScopeAll runs every node of the graph.
	ScopeAll Scope = "all"
	// ScopeNode runs a node and everything downstream of it.
	ScopeNode Scope = "node"
	// ScopeNodeOnly runs a single node against the cached results of its inputs.
	ScopeNodeOnly Scope = "node_only"
)

// Plan is the ordered set of nodes a run executes.
type Plan struct {
	Scope  Scope
	Target string
	Waves  [][]string
}

// Nodes returns the planned node ids in execution order.
func (p *Plan) Nodes() []string {
	return slices.Concat(p.Waves...)
}

// Contains reports whether nodeID is part of the plan.
func (p *Plan) Contains(nodeID string) bool {
	for _, wave := range p.Waves {
		if slices.Contains(wave, nodeID) {
			return true
		}
	}

	return false
}

// PlanAll orders the whole graph. A cycle anywhere aborts the plan.
func PlanAll(g *graph.Graph) (*Plan, error) {
	waves, err := g.Waves()
	if err != nil {
		return nil, err
	}

	return &Plan{Scope: ScopeAll, Waves: waves}, nil
}

// PlanNode orders nodeID and its transitive downstream. Upstream nodes are
// not planned; their cached results feed the run.
func PlanNode(g *graph.Graph, nodeID string) (*Plan, error) {
	if !g.HasNode(nodeID) {
		return nil, &graph.NodeError{Op: "PlanNode", NodeID: nodeID, Err: graph.ErrNodeNotFound}
	}

	waves, err := g.SubgraphWaves(append([]string{nodeID}, g.Downstream(nodeID)...))
	if err != nil {
		return nil, err
	}

	return &Plan{Scope: ScopeNode, Target: nodeID, Waves: waves}, nil
}

// PlanNodeOnly plans nodeID alone.
func PlanNodeOnly(g *graph.Graph, nodeID string) (*Plan, error) {
	if !g.HasNode(nodeID) {
		return nil, &graph.NodeError{Op: "PlanNodeOnly", NodeID: nodeID, Err: graph.ErrNodeNotFound}
	}

	waves, err := g.SubgraphWaves([]string{nodeID})
	if err != nil {
		return nil, err
	}

	return &Plan{Scope: ScopeNodeOnly, Target: nodeID, Waves: waves}, nil
}
