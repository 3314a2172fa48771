// Package graph models the node, edge and global variable structure of one
// project as an id-indexed arena.
//
// All traversal is by id lookup. The structural operations are the only way
// to change a Graph; each one bumps Version, which invalidates the cached
// dependency analysis. A Graph is not safe for concurrent use.
package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/google/uuid"
)

// ModuleLookup resolves module definitions by id.
type ModuleLookup interface {
	Get(id string) (*models.ModuleDefinition, error)
}

// Option configures a Graph.
type Option func(*Graph)

// WithIDGenerator replaces the uuid generator used for node and edge ids.
func WithIDGenerator(next func() string) Option {
	return func(g *Graph) {
		g.newID = next
	}
}

type Graph struct {
	modules ModuleLookup
	newID   func() string

	nodes   map[string]*models.FlowNode
	created map[string]uint64 // creation sequence per node id
	nextSeq uint64

	edges     map[string]*models.FlowEdge
	edgeOrder []string
	inbound   map[models.PortRef]string // target port -> edge id

	globals     map[string]*models.GlobalVariable
	globalOrder []string

	version  uint64
	analysis *analysis
}

func New(modules ModuleLookup, opts ...Option) *Graph {
	g := &Graph{
		modules: modules,
		newID:   uuid.NewString,
		nodes:   make(map[string]*models.FlowNode),
		created: make(map[string]uint64),
		edges:   make(map[string]*models.FlowEdge),
		inbound: make(map[models.PortRef]string),
		globals: make(map[string]*models.GlobalVariable),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// FromProject rebuilds a graph from a persisted project. Nodes whose module
// is unknown are kept; they fail when executed. Edges are checked like
// AddEdge wherever both modules are known.
func FromProject(project *models.Project, modules ModuleLookup, opts ...Option) (*Graph, error) {
	g := New(modules, opts...)

	for _, node := range project.Nodes {
		if node.ID == "" {
			return nil, &NodeError{Op: "Load", NodeID: node.ID, Err: ErrNodeNotFound}
		}

		if _, exists := g.nodes[node.ID]; exists {
			return nil, &NodeError{Op: "Load", NodeID: node.ID, Err: ErrDuplicateNode}
		}

		g.insertNode(node.Clone())
	}

	for _, edge := range project.Edges {
		if err := g.checkEdge(edge.Source, edge.Target, true); err != nil {
			return nil, err
		}

		id := edge.ID
		if id == "" {
			id = g.newID()
		}

		g.insertEdge(&models.FlowEdge{ID: id, Source: edge.Source, Target: edge.Target})
	}

	for _, global := range project.Globals {
		if err := g.SetGlobal(global.Name, models.CloneValue(global.Value)); err != nil {
			return nil, err
		}

		g.globals[global.Name].Description = global.Description
	}

	return g, nil
}

// Version changes after every successful structural operation.
func (g *Graph) Version() uint64 {
	return g.version
}

// AddNode places a new instance of moduleID. The node's config starts as a
// copy of the module defaults and its label as the module name.
func (g *Graph) AddNode(moduleID string, position models.Position) (string, error) {
	def, err := g.modules.Get(moduleID)
	if err != nil {
		return "", fmt.Errorf("failed to add node: %w", err)
	}

	node := &models.FlowNode{
		ID:       g.newID(),
		ModuleID: def.ID,
		Position: position,
		Config:   models.CloneMap(def.Config),
		Label:    def.Name,
	}

	g.insertNode(node)
	g.touch()

	return node.ID, nil
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(nodeID string) error {
	if _, ok := g.nodes[nodeID]; !ok {
		return &NodeError{Op: "RemoveNode", NodeID: nodeID, Err: ErrNodeNotFound}
	}

	for _, edgeID := range slices.Clone(g.edgeOrder) {
		edge := g.edges[edgeID]
		if edge.Source.NodeID == nodeID || edge.Target.NodeID == nodeID {
			g.deleteEdge(edgeID)
		}
	}

	delete(g.nodes, nodeID)
	delete(g.created, nodeID)
	g.touch()

	return nil
}

// UpdateNodeConfig merges partial into the node's config key by key.
func (g *Graph) UpdateNodeConfig(nodeID string, partial map[string]any) error {
	node, ok := g.nodes[nodeID]
	if !ok {
		return &NodeError{Op: "UpdateNodeConfig", NodeID: nodeID, Err: ErrNodeNotFound}
	}

	node.Config = models.MergeConfig(node.Config, partial)
	g.touch()

	return nil
}

// UpdateNodeLabel renames a node.
func (g *Graph) UpdateNodeLabel(nodeID, label string) error {
	node, ok := g.nodes[nodeID]
	if !ok {
		return &NodeError{Op: "UpdateNodeLabel", NodeID: nodeID, Err: ErrNodeNotFound}
	}

	node.Label = label
	g.touch()

	return nil
}

// MoveNode changes the canvas position of a node.
func (g *Graph) MoveNode(nodeID string, position models.Position) error {
	node, ok := g.nodes[nodeID]
	if !ok {
		return &NodeError{Op: "MoveNode", NodeID: nodeID, Err: ErrNodeNotFound}
	}

	node.Position = position
	g.touch()

	return nil
}

// PinNodeData fixes the outputs of a node; its logic is skipped while pinned.
func (g *Graph) PinNodeData(nodeID string, data map[string]any) error {
	node, ok := g.nodes[nodeID]
	if !ok {
		return &NodeError{Op: "PinNodeData", NodeID: nodeID, Err: ErrNodeNotFound}
	}

	node.PinnedData = models.CloneMap(data)
	g.touch()

	return nil
}

// UnpinNodeData removes pinned outputs from a node.
func (g *Graph) UnpinNodeData(nodeID string) error {
	node, ok := g.nodes[nodeID]
	if !ok {
		return &NodeError{Op: "UnpinNodeData", NodeID: nodeID, Err: ErrNodeNotFound}
	}

	node.PinnedData = nil
	g.touch()

	return nil
}

// AddEdge connects an output port to an input port. It returns a
// *ConnectionError when a node or port is unknown, the port kinds are not
// compatible, or the target port is already connected.
func (g *Graph) AddEdge(source, target models.PortRef) (string, error) {
	if err := g.checkEdge(source, target, false); err != nil {
		return "", err
	}

	edge := &models.FlowEdge{ID: g.newID(), Source: source, Target: target}
	g.insertEdge(edge)
	g.touch()

	return edge.ID, nil
}

// RemoveEdge deletes an edge.
func (g *Graph) RemoveEdge(edgeID string) error {
	if _, ok := g.edges[edgeID]; !ok {
		return fmt.Errorf("failed to remove edge %s: %w", edgeID, ErrEdgeNotFound)
	}

	g.deleteEdge(edgeID)
	g.touch()

	return nil
}

// SetGlobal creates or updates a global variable.
func (g *Graph) SetGlobal(name string, value any) error {
	if name == "" {
		return ErrInvalidGlobalName
	}

	if global, ok := g.globals[name]; ok {
		global.Value = value
	} else {
		g.globals[name] = &models.GlobalVariable{Name: name, Value: value}
		g.globalOrder = append(g.globalOrder, name)
	}

	g.touch()

	return nil
}

// DescribeGlobal sets the description of an existing global variable.
func (g *Graph) DescribeGlobal(name, description string) error {
	global, ok := g.globals[name]
	if !ok {
		return fmt.Errorf("failed to describe global %s: %w", name, ErrGlobalNotFound)
	}

	global.Description = description
	g.touch()

	return nil
}

// RemoveGlobal deletes a global variable.
func (g *Graph) RemoveGlobal(name string) error {
	if _, ok := g.globals[name]; !ok {
		return fmt.Errorf("failed to remove global %s: %w", name, ErrGlobalNotFound)
	}

	delete(g.globals, name)
	g.globalOrder = slices.DeleteFunc(g.globalOrder, func(n string) bool { return n == name })
	g.touch()

	return nil
}

// Node returns a copy of a node.
func (g *Graph) Node(nodeID string) (*models.FlowNode, error) {
	node, ok := g.nodes[nodeID]
	if !ok {
		return nil, &NodeError{Op: "Node", NodeID: nodeID, Err: ErrNodeNotFound}
	}

	return node.Clone(), nil
}

// HasNode reports whether the node exists.
func (g *Graph) HasNode(nodeID string) bool {
	_, ok := g.nodes[nodeID]

	return ok
}

// NodeIDs returns the node ids in creation order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}

	g.sortByCreation(ids)

	return ids
}

// Nodes returns copies of all nodes in creation order.
func (g *Graph) Nodes() []*models.FlowNode {
	ids := g.NodeIDs()

	nodes := make([]*models.FlowNode, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, g.nodes[id].Clone())
	}

	return nodes
}

// Edge returns a copy of an edge.
func (g *Graph) Edge(edgeID string) (*models.FlowEdge, error) {
	edge, ok := g.edges[edgeID]
	if !ok {
		return nil, fmt.Errorf("failed to get edge %s: %w", edgeID, ErrEdgeNotFound)
	}

	e := *edge

	return &e, nil
}

// Edges returns copies of all edges in creation order.
func (g *Graph) Edges() []*models.FlowEdge {
	edges := make([]*models.FlowEdge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		e := *g.edges[id]
		edges = append(edges, &e)
	}

	return edges
}

// IncomingEdge returns the edge feeding an input port, if any.
func (g *Graph) IncomingEdge(nodeID, portID string) (*models.FlowEdge, bool) {
	edgeID, ok := g.inbound[models.PortRef{NodeID: nodeID, PortID: portID}]
	if !ok {
		return nil, false
	}

	e := *g.edges[edgeID]

	return &e, true
}

// Globals returns a snapshot of the global variables as name to value.
func (g *Graph) Globals() map[string]any {
	out := make(map[string]any, len(g.globals))
	for name, global := range g.globals {
		out[name] = models.CloneValue(global.Value)
	}

	return out
}

// GlobalVariables returns copies of the global variables in creation order.
func (g *Graph) GlobalVariables() []*models.GlobalVariable {
	out := make([]*models.GlobalVariable, 0, len(g.globalOrder))
	for _, name := range g.globalOrder {
		global := *g.globals[name]
		global.Value = models.CloneValue(global.Value)
		out = append(out, &global)
	}

	return out
}

// Clone returns an independent copy of the graph. The cached analysis is
// shared because it is never mutated.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		modules:     g.modules,
		newID:       g.newID,
		nodes:       make(map[string]*models.FlowNode, len(g.nodes)),
		created:     make(map[string]uint64, len(g.created)),
		nextSeq:     g.nextSeq,
		edges:       make(map[string]*models.FlowEdge, len(g.edges)),
		edgeOrder:   slices.Clone(g.edgeOrder),
		inbound:     make(map[models.PortRef]string, len(g.inbound)),
		globals:     make(map[string]*models.GlobalVariable, len(g.globals)),
		globalOrder: slices.Clone(g.globalOrder),
		version:     g.version,
		analysis:    g.analysis,
	}

	for id, node := range g.nodes {
		c.nodes[id] = node.Clone()
		c.created[id] = g.created[id]
	}

	for id, edge := range g.edges {
		e := *edge
		c.edges[id] = &e
	}

	for ref, id := range g.inbound {
		c.inbound[ref] = id
	}

	for name, global := range g.globals {
		v := *global
		v.Value = models.CloneValue(global.Value)
		c.globals[name] = &v
	}

	return c
}

// Project exports the graph into the nodes, edges and globals of a project.
func (g *Graph) Project() *models.Project {
	return &models.Project{
		Nodes:   g.Nodes(),
		Edges:   g.Edges(),
		Globals: g.GlobalVariables(),
	}
}

func (g *Graph) checkEdge(source, target models.PortRef, lenient bool) error {
	reject := func(err error) error {
		return &ConnectionError{Source: source, Target: target, Err: err}
	}

	sourceNode, ok := g.nodes[source.NodeID]
	if !ok {
		return reject(fmt.Errorf("source: %w", ErrNodeNotFound))
	}

	targetNode, ok := g.nodes[target.NodeID]
	if !ok {
		return reject(fmt.Errorf("target: %w", ErrNodeNotFound))
	}

	if _, bound := g.inbound[target]; bound {
		return reject(ErrTargetBound)
	}

	sourceDef, sourceErr := g.modules.Get(sourceNode.ModuleID)
	targetDef, targetErr := g.modules.Get(targetNode.ModuleID)

	if sourceErr != nil || targetErr != nil {
		if lenient {
			return nil
		}

		return reject(fmt.Errorf("module lookup: %w", errors.Join(sourceErr, targetErr)))
	}

	out, ok := sourceDef.OutputPort(source.PortID)
	if !ok {
		return reject(fmt.Errorf("output %q on module %s: %w", source.PortID, sourceDef.ID, ErrPortNotFound))
	}

	in, ok := targetDef.InputPort(target.PortID)
	if !ok {
		return reject(fmt.Errorf("input %q on module %s: %w", target.PortID, targetDef.ID, ErrPortNotFound))
	}

	if !models.Compatible(out.Type, in.Type) {
		return reject(fmt.Errorf("%w: %s -> %s", ErrIncompatiblePorts, out.Type, in.Type))
	}

	return nil
}

func (g *Graph) insertNode(node *models.FlowNode) {
	g.nodes[node.ID] = node
	g.created[node.ID] = g.nextSeq
	g.nextSeq++
}

func (g *Graph) insertEdge(edge *models.FlowEdge) {
	g.edges[edge.ID] = edge
	g.edgeOrder = append(g.edgeOrder, edge.ID)
	g.inbound[edge.Target] = edge.ID
}

func (g *Graph) deleteEdge(edgeID string) {
	edge := g.edges[edgeID]
	delete(g.inbound, edge.Target)
	delete(g.edges, edgeID)
	g.edgeOrder = slices.DeleteFunc(g.edgeOrder, func(id string) bool { return id == edgeID })
}

func (g *Graph) touch() {
	g.version++
	g.analysis = nil
}

func (g *Graph) sortByCreation(ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		switch {
		case g.created[a] < g.created[b]:
			return -1
		case g.created[a] > g.created[b]:
			return 1
		default:
			return 0
		}
	})
}
