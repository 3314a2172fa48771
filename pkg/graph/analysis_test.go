package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond builds a -> b, a -> c, b -> d, c -> d.
func diamond(t *testing.T) (*Graph, [4]string) {
	t.Helper()

	g := newTestGraph(t)
	a := addNode(t, g, "source")
	b := addNode(t, g, "double")
	c := addNode(t, g, "double")
	d := addNode(t, g, "sum")

	connect(t, g, a, "value", b, "value")
	connect(t, g, a, "value", c, "value")
	connect(t, g, b, "result", d, "a")
	connect(t, g, c, "result", d, "b")

	return g, [4]string{a, b, c, d}
}

func TestGraph_Waves(t *testing.T) {
	t.Parallel()

	g, ids := diamond(t)
	loose := addNode(t, g, "source")

	waves, err := g.Waves()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{ids[0], loose},
		{ids[1], ids[2]},
		{ids[3]},
	}, waves)

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], loose, ids[1], ids[2], ids[3]}, order)
}

func TestGraph_Waves_TieBreakByCreation(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	late := addNode(t, g, "double")
	early := addNode(t, g, "double")
	src := addNode(t, g, "source")

	// Edges added in reverse so edge order differs from creation order.
	connect(t, g, src, "value", early, "value")
	connect(t, g, src, "value", late, "value")

	waves, err := g.Waves()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{src}, {late, early}}, waves)
}

func TestGraph_Waves_CacheFollowsVersion(t *testing.T) {
	t.Parallel()

	g, ids := diamond(t)

	first, err := g.Waves()
	require.NoError(t, err)

	first[0][0] = "mutated"

	again, err := g.Waves()
	require.NoError(t, err)
	assert.Equal(t, ids[0], again[0][0])

	require.NoError(t, g.RemoveNode(ids[3]))

	waves, err := g.Waves()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{ids[0]}, {ids[1], ids[2]}}, waves)
}

func TestGraph_Waves_Cycle(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	src := addNode(t, g, "source")
	a := addNode(t, g, "sum")
	b := addNode(t, g, "double")
	c := addNode(t, g, "double")
	tail := addNode(t, g, "double")

	connect(t, g, src, "value", a, "a")
	connect(t, g, a, "total", b, "value")
	connect(t, g, b, "result", c, "value")
	connect(t, g, c, "result", a, "b")
	connect(t, g, c, "result", tail, "value")

	_, err := g.Waves()
	require.Error(t, err)
	assert.True(t, IsCyclicGraph(err))

	var cycleErr *CyclicGraphError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, a, cycleErr.NodeID)
	assert.Equal(t, []string{a, b, c}, cycleErr.Path)

	_, err = g.Order()
	assert.True(t, IsCyclicGraph(err))
}

func TestGraph_Waves_SelfLoop(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t)
	n := addNode(t, g, "any")
	connect(t, g, n, "out", n, "in")

	_, err := g.Waves()

	var cycleErr *CyclicGraphError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{n}, cycleErr.Path)
	assert.Contains(t, cycleErr.Error(), n+" -> "+n)
}

func TestGraph_DownstreamUpstream(t *testing.T) {
	t.Parallel()

	g, ids := diamond(t)
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]

	assert.Equal(t, []string{b, c, d}, g.Downstream(a))
	assert.Equal(t, []string{d}, g.Downstream(b))
	assert.Empty(t, g.Downstream(d))

	assert.Equal(t, []string{a, b, c}, g.Upstream(d))
	assert.Equal(t, []string{a}, g.Upstream(c))
	assert.Empty(t, g.Upstream(a))

	assert.Equal(t, []string{b, c}, g.Successors(a))
	assert.Equal(t, []string{b, c}, g.Predecessors(d))
}

func TestGraph_SubgraphWaves(t *testing.T) {
	t.Parallel()

	g, ids := diamond(t)
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]

	waves, err := g.SubgraphWaves([]string{d, b, "unknown", b})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{b}, {d}}, waves)

	// A cycle outside the requested set does not matter.
	x := addNode(t, g, "any")
	connect(t, g, x, "out", x, "in")

	waves, err = g.SubgraphWaves([]string{a, c})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{a}, {c}}, waves)

	_, err = g.SubgraphWaves([]string{a, x})
	assert.True(t, IsCyclicGraph(err))
}
