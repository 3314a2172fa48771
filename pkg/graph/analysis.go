package graph

import (
	"slices"
)

// analysis is the dependency view computed from one graph version.
type analysis struct {
	waves [][]string
	err   error
}

// Waves groups the nodes into dependency levels: every node appears after
// all of its upstream nodes and nodes in the same wave do not depend on each
// other. Nodes inside a wave are in creation order. A cycle anywhere in the
// graph returns a *CyclicGraphError.
func (g *Graph) Waves() ([][]string, error) {
	if g.analysis == nil {
		waves, err := g.levels(g.NodeIDs())
		g.analysis = &analysis{waves: waves, err: err}
	}

	if g.analysis.err != nil {
		return nil, g.analysis.err
	}

	return cloneWaves(g.analysis.waves), nil
}

// Order returns a topological order of all nodes.
func (g *Graph) Order() ([]string, error) {
	waves, err := g.Waves()
	if err != nil {
		return nil, err
	}

	return slices.Concat(waves...), nil
}

// SubgraphWaves levels only the given nodes, considering just the edges
// between them. Unknown ids are ignored.
func (g *Graph) SubgraphWaves(nodeIDs []string) ([][]string, error) {
	ids := make([]string, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if g.HasNode(id) && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	g.sortByCreation(ids)

	return g.levels(ids)
}

// Successors returns the distinct nodes fed by an output of nodeID.
func (g *Graph) Successors(nodeID string) []string {
	var ids []string

	for _, edgeID := range g.edgeOrder {
		edge := g.edges[edgeID]
		if edge.Source.NodeID == nodeID && !slices.Contains(ids, edge.Target.NodeID) {
			ids = append(ids, edge.Target.NodeID)
		}
	}

	g.sortByCreation(ids)

	return ids
}

// Predecessors returns the distinct nodes feeding an input of nodeID.
func (g *Graph) Predecessors(nodeID string) []string {
	var ids []string

	for _, edgeID := range g.edgeOrder {
		edge := g.edges[edgeID]
		if edge.Target.NodeID == nodeID && !slices.Contains(ids, edge.Source.NodeID) {
			ids = append(ids, edge.Source.NodeID)
		}
	}

	g.sortByCreation(ids)

	return ids
}

// Downstream returns every node reachable from nodeID, excluding nodeID
// itself unless it sits on a cycle.
func (g *Graph) Downstream(nodeID string) []string {
	return g.reach(nodeID, g.Successors)
}

// Upstream returns every node nodeID transitively depends on.
func (g *Graph) Upstream(nodeID string) []string {
	return g.reach(nodeID, g.Predecessors)
}

func (g *Graph) reach(start string, next func(string) []string) []string {
	seen := make(map[string]bool)
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, id := range next(current) {
			if !seen[id] {
				seen[id] = true
				queue = append(queue, id)
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	g.sortByCreation(ids)

	return ids
}

// levels runs Kahn's algorithm over the subgraph induced by ids, which must
// be in creation order.
func (g *Graph) levels(ids []string) ([][]string, error) {
	member := make(map[string]bool, len(ids))
	for _, id := range ids {
		member[id] = true
	}

	indegree := make(map[string]int, len(ids))
	successors := make(map[string][]string, len(ids))

	for _, id := range ids {
		for _, pred := range g.Predecessors(id) {
			if member[pred] {
				indegree[id]++
				successors[pred] = append(successors[pred], id)
			}
		}
	}

	var (
		waves   [][]string
		visited int
		current []string
	)

	for _, id := range ids {
		if indegree[id] == 0 {
			current = append(current, id)
		}
	}

	for len(current) > 0 {
		waves = append(waves, current)
		visited += len(current)

		var next []string

		for _, id := range current {
			for _, succ := range successors[id] {
				indegree[succ]--
				if indegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}

		g.sortByCreation(next)
		current = next
	}

	if visited < len(ids) {
		return nil, g.cycleError(ids, indegree, member)
	}

	return waves, nil
}

// cycleError walks predecessors among the nodes Kahn could not release. Each
// of them still has a blocked predecessor, so the walk must revisit a node.
func (g *Graph) cycleError(ids []string, indegree map[string]int, member map[string]bool) *CyclicGraphError {
	blocked := func(id string) bool {
		return member[id] && indegree[id] > 0
	}

	var start string

	for _, id := range ids {
		if blocked(id) {
			start = id

			break
		}
	}

	var (
		walk []string
		pos  = make(map[string]int)
	)

	current := start

	for {
		if i, seen := pos[current]; seen {
			walk = walk[i:]

			break
		}

		pos[current] = len(walk)
		walk = append(walk, current)

		for _, pred := range g.Predecessors(current) {
			if blocked(pred) {
				current = pred

				break
			}
		}
	}

	// The walk followed predecessors; flip it into edge direction.
	slices.Reverse(walk)

	first := 0
	for i, id := range walk {
		if g.created[id] < g.created[walk[first]] {
			first = i
		}
	}

	path := append(slices.Clone(walk[first:]), walk[:first]...)

	return &CyclicGraphError{NodeID: path[0], Path: path}
}

func cloneWaves(waves [][]string) [][]string {
	out := make([][]string, len(waves))
	for i, wave := range waves {
		out[i] = slices.Clone(wave)
	}

	return out
}
