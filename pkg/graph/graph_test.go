package graph

import (
	"errors"
	"strconv"
	"testing"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnknownModule = errors.New("unknown module")

type fakeModules map[string]*models.ModuleDefinition

func (f fakeModules) Get(id string) (*models.ModuleDefinition, error) {
	def, ok := f[id]
	if !ok {
		return nil, errUnknownModule
	}

	return def.Clone(), nil
}

func testModules() fakeModules {
	return fakeModules{
		"source": {
			ID:      "source",
			Name:    "Source",
			Outputs: []models.PortSpec{{ID: "value", Type: models.PortKindNumber}},
			Config:  map[string]any{"value": 1.0},
		},
		"double": {
			ID:      "double",
			Name:    "Double",
			Inputs:  []models.PortSpec{{ID: "value", Type: models.PortKindNumber, Required: true}},
			Outputs: []models.PortSpec{{ID: "result", Type: models.PortKindNumber}},
		},
		"sum": {
			ID:   "sum",
			Name: "Sum",
			Inputs: []models.PortSpec{
				{ID: "a", Type: models.PortKindNumber},
				{ID: "b", Type: models.PortKindNumber},
			},
			Outputs: []models.PortSpec{{ID: "total", Type: models.PortKindNumber}},
		},
		"text": {
			ID:      "text",
			Name:    "Text",
			Inputs:  []models.PortSpec{{ID: "in", Type: models.PortKindString}},
			Outputs: []models.PortSpec{{ID: "out", Type: models.PortKindString}},
		},
		"any": {
			ID:      "any",
			Name:    "Any",
			Inputs:  []models.PortSpec{{ID: "in", Type: models.PortKindAny}},
			Outputs: []models.PortSpec{{ID: "out", Type: models.PortKindAny}},
		},
	}
}

func sequentialIDs() Option {
	n := 0

	return WithIDGenerator(func() string {
		n++

		return "id" + strconv.Itoa(n)
	})
}

func newTestGraph(t *testing.T) *Graph {
	t.Helper()

	return New(testModules(), sequentialIDs())
}

func addNode(t *testing.T, g *Graph, moduleID string) string {
	t.Helper()

	id, err := g.AddNode(moduleID, models.Position{})
	require.NoError(t, err)

	return id
}

func connect(t *testing.T, g *Graph, from, out, to, in string) string {
	t.Helper()

	id, err := g.AddEdge(models.PortRef{NodeID: from, PortID: out}, models.PortRef{NodeID: to, PortID: in})
	require.NoError(t, err)

	return id
}

func TestGraph_AddNode(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)

	id, err := g.AddNode("source", models.Position{X: 10, Y: 20})
	require.NoError(t, err)

	node, err := g.Node(id)
	require.NoError(t, err)
	assert.Equal(t, "source", node.ModuleID)
	assert.Equal(t, "Source", node.Label)
	assert.Equal(t, models.Position{X: 10, Y: 20}, node.Position)
	assert.Equal(t, map[string]any{"value": 1.0}, node.Config)

	_, err = g.AddNode("missing", models.Position{})
	require.ErrorIs(t, err, errUnknownModule)
	assert.Len(t, g.Nodes(), 1)
}

func TestGraph_VersionChangesOnMutation(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	v0 := g.Version()

	id := addNode(t, g, "source")
	v1 := g.Version()
	assert.Greater(t, v1, v0)

	require.NoError(t, g.UpdateNodeConfig(id, map[string]any{"value": 2.0}))
	assert.Greater(t, g.Version(), v1)

	v2 := g.Version()
	_, err := g.Node(id)
	require.NoError(t, err)
	assert.Equal(t, v2, g.Version())
}

func TestGraph_UpdateNodeConfig_Merges(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	id := addNode(t, g, "source")

	require.NoError(t, g.UpdateNodeConfig(id, map[string]any{"extra": "x"}))

	node, err := g.Node(id)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": 1.0, "extra": "x"}, node.Config)

	err = g.UpdateNodeConfig("nope", nil)
	assert.True(t, IsNodeNotFound(err))
}

func TestGraph_NodeMutators(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	id := addNode(t, g, "source")

	require.NoError(t, g.UpdateNodeLabel(id, "Prices"))
	require.NoError(t, g.MoveNode(id, models.Position{X: 5}))
	require.NoError(t, g.PinNodeData(id, map[string]any{"value": 9.0}))

	node, err := g.Node(id)
	require.NoError(t, err)
	assert.Equal(t, "Prices", node.Label)
	assert.Equal(t, 5.0, node.Position.X)
	assert.True(t, node.Pinned())

	require.NoError(t, g.UnpinNodeData(id))

	node, err = g.Node(id)
	require.NoError(t, err)
	assert.False(t, node.Pinned())

	for _, err := range []error{
		g.UpdateNodeLabel("x", ""),
		g.MoveNode("x", models.Position{}),
		g.PinNodeData("x", nil),
		g.UnpinNodeData("x"),
		g.RemoveNode("x"),
	} {
		assert.True(t, IsNodeNotFound(err))
	}
}

func TestGraph_RemoveNode_CascadesEdges(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	a := addNode(t, g, "source")
	b := addNode(t, g, "double")
	c := addNode(t, g, "double")

	connect(t, g, a, "value", b, "value")
	connect(t, g, b, "result", c, "value")

	require.NoError(t, g.RemoveNode(b))

	assert.Empty(t, g.Edges())
	assert.False(t, g.HasNode(b))

	_, bound := g.IncomingEdge(c, "value")
	assert.False(t, bound)

	// The freed port accepts a new edge.
	connect(t, g, a, "value", c, "value")
}

func TestGraph_AddEdge_Rejections(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	src := addNode(t, g, "source")
	dbl := addNode(t, g, "double")
	txt := addNode(t, g, "text")
	anyNode := addNode(t, g, "any")

	connect(t, g, src, "value", dbl, "value")

	tests := []struct {
		name   string
		source models.PortRef
		target models.PortRef
		want   error
	}{
		{"unknown source node", models.PortRef{NodeID: "x", PortID: "value"}, models.PortRef{NodeID: txt, PortID: "in"}, ErrNodeNotFound},
		{"unknown target node", models.PortRef{NodeID: src, PortID: "value"}, models.PortRef{NodeID: "x", PortID: "in"}, ErrNodeNotFound},
		{"unknown output port", models.PortRef{NodeID: src, PortID: "nope"}, models.PortRef{NodeID: anyNode, PortID: "in"}, ErrPortNotFound},
		{"unknown input port", models.PortRef{NodeID: src, PortID: "value"}, models.PortRef{NodeID: anyNode, PortID: "nope"}, ErrPortNotFound},
		{"incompatible kinds", models.PortRef{NodeID: src, PortID: "value"}, models.PortRef{NodeID: txt, PortID: "in"}, ErrIncompatiblePorts},
		{"target already bound", models.PortRef{NodeID: src, PortID: "value"}, models.PortRef{NodeID: dbl, PortID: "value"}, ErrTargetBound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := g.Edges()

			_, err := g.AddEdge(tt.source, tt.target)
			require.Error(t, err)
			assert.True(t, IsConnectionError(err))
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, g.Edges())
		})
	}
}

func TestGraph_AddEdge_AnyAcceptsEverything(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	txt := addNode(t, g, "text")
	anyNode := addNode(t, g, "any")
	src := addNode(t, g, "source")

	connect(t, g, txt, "out", anyNode, "in")
	connect(t, g, anyNode, "out", addNode(t, g, "double"), "value")
	connect(t, g, src, "value", addNode(t, g, "any"), "in")
}

func TestGraph_Globals(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)

	require.NoError(t, g.SetGlobal("taxRate", 0.08))
	require.NoError(t, g.SetGlobal("currency", "USD"))
	require.NoError(t, g.SetGlobal("taxRate", 0.2))
	require.NoError(t, g.DescribeGlobal("taxRate", "sales tax"))

	assert.Equal(t, map[string]any{"taxRate": 0.2, "currency": "USD"}, g.Globals())

	vars := g.GlobalVariables()
	require.Len(t, vars, 2)
	assert.Equal(t, "taxRate", vars[0].Name)
	assert.Equal(t, "sales tax", vars[0].Description)

	require.ErrorIs(t, g.SetGlobal("", 1.0), ErrInvalidGlobalName)

	require.NoError(t, g.RemoveGlobal("currency"))
	assert.True(t, IsGlobalNotFound(g.RemoveGlobal("currency")))
	assert.True(t, IsGlobalNotFound(g.DescribeGlobal("currency", "")))
	assert.Equal(t, map[string]any{"taxRate": 0.2}, g.Globals())
}

func TestGraph_RemoveEdge(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	a := addNode(t, g, "source")
	b := addNode(t, g, "double")
	edgeID := connect(t, g, a, "value", b, "value")

	require.NoError(t, g.RemoveEdge(edgeID))
	assert.Empty(t, g.Edges())
	assert.True(t, IsEdgeNotFound(g.RemoveEdge(edgeID)))

	_, err := g.Edge(edgeID)
	assert.True(t, IsEdgeNotFound(err))
}

func TestGraph_Clone_IsIndependent(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	a := addNode(t, g, "source")
	require.NoError(t, g.SetGlobal("list", []any{1.0}))

	c := g.Clone()
	require.NoError(t, c.UpdateNodeConfig(a, map[string]any{"value": 5.0}))
	require.NoError(t, c.SetGlobal("list", []any{2.0}))
	addNode(t, c, "double")

	node, err := g.Node(a)
	require.NoError(t, err)
	assert.Equal(t, 1.0, node.Config["value"])
	assert.Equal(t, []any{1.0}, g.Globals()["list"])
	assert.Len(t, g.Nodes(), 1)
	assert.Len(t, c.Nodes(), 2)
}

func TestGraph_ProjectRoundTrip(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	a := addNode(t, g, "source")
	b := addNode(t, g, "double")
	connect(t, g, a, "value", b, "value")
	require.NoError(t, g.SetGlobal("taxRate", 0.08))

	project := g.Project()

	loaded, err := FromProject(project, testModules())
	require.NoError(t, err)
	assert.Equal(t, g.Nodes(), loaded.Nodes())
	assert.Equal(t, g.Edges(), loaded.Edges())
	assert.Equal(t, g.Globals(), loaded.Globals())

	order, err := loaded.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, order)
}

func TestFromProject_Rejections(t *testing.T) {
	t.Parallel()

	node := func(id, module string) *models.FlowNode {
		return &models.FlowNode{ID: id, ModuleID: module}
	}

	_, err := FromProject(&models.Project{Nodes: []*models.FlowNode{node("a", "source"), node("a", "source")}}, testModules())
	require.ErrorIs(t, err, ErrDuplicateNode)

	_, err = FromProject(&models.Project{
		Nodes: []*models.FlowNode{node("a", "source"), node("b", "double")},
		Edges: []*models.FlowEdge{
			{ID: "e1", Source: models.PortRef{NodeID: "a", PortID: "value"}, Target: models.PortRef{NodeID: "b", PortID: "value"}},
			{ID: "e2", Source: models.PortRef{NodeID: "a", PortID: "value"}, Target: models.PortRef{NodeID: "b", PortID: "value"}},
		},
	}, testModules())
	require.ErrorIs(t, err, ErrTargetBound)

	// Unknown modules are kept so the project still opens.
	g, err := FromProject(&models.Project{
		Nodes: []*models.FlowNode{node("a", "gone"), node("b", "double")},
		Edges: []*models.FlowEdge{
			{ID: "e1", Source: models.PortRef{NodeID: "a", PortID: "out"}, Target: models.PortRef{NodeID: "b", PortID: "value"}},
		},
	}, testModules())
	require.NoError(t, err)
	assert.Len(t, g.Edges(), 1)
}
