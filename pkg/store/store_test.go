package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/dataflow/pkg/engine"
	"github.com/dukex/dataflow/pkg/graph"
	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gate blocks the "gate" module until released or cancelled.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gate) logic(ctx context.Context, inputs, _, _ map[string]any) (map[string]any, error) {
	g.entered <- struct{}{}

	select {
	case <-g.release:
		return map[string]any{"value": inputs["value"]}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestRegistry(t *testing.T, g *gate) *registry.Registry {
	t.Helper()

	reg := registry.NewRegistry(discardLogger())
	require.NoError(t, reg.RegisterDefaultModules())

	defs := []*models.ModuleDefinition{
		{
			ID: "doubler", Name: "Doubler", Category: models.CategoryCustom,
			Inputs:  []models.PortSpec{{ID: "value", Type: models.PortKindNumber, Required: true}},
			Outputs: []models.PortSpec{{ID: "result", Type: models.PortKindNumber}},
			Code:    `{"result": inputs.value * 2.0}`,
		},
		{
			ID: "tax_calc", Name: "Tax", Category: models.CategoryCalculation,
			Inputs:  []models.PortSpec{{ID: "amount", Type: models.PortKindNumber, Required: true}},
			Outputs: []models.PortSpec{{ID: "tax", Type: models.PortKindNumber}},
			Code:    `{"tax": inputs.amount * globals.?taxRate.orValue(0.0)}`,
		},
	}

	if g != nil {
		defs = append(defs, &models.ModuleDefinition{
			ID: "gate", Name: "Gate", Category: models.CategoryCustom,
			Inputs:  []models.PortSpec{{ID: "value", Type: models.PortKindAny}},
			Outputs: []models.PortSpec{{ID: "value", Type: models.PortKindAny}},
			Logic:   models.LogicFunc(g.logic),
		})
	}

	for _, def := range defs {
		require.NoError(t, reg.Register(def))
	}

	return reg
}

func newTestStore(t *testing.T, g *gate) *Store {
	t.Helper()

	reg := newTestRegistry(t, g)
	runner := engine.NewRunner(reg, engine.NewExecutor(discardLogger()), discardLogger())

	s, err := New(&models.Project{ID: "p1", Name: "Test"}, reg, runner, discardLogger())
	require.NoError(t, err)

	return s
}

func addNode(t *testing.T, s *Store, moduleID string, config map[string]any) string {
	t.Helper()

	id, err := s.AddNode(moduleID, models.Position{})
	require.NoError(t, err)

	if config != nil {
		require.NoError(t, s.UpdateNodeConfig(id, config))
	}

	return id
}

func connect(t *testing.T, s *Store, from, out, to, in string) {
	t.Helper()

	_, err := s.AddEdge(models.PortRef{NodeID: from, PortID: out}, models.PortRef{NodeID: to, PortID: in})
	require.NoError(t, err)
}

type recorder struct {
	mu     sync.Mutex
	events map[string][]models.NodeStatus
}

func (r *recorder) listen(nodeID string, result *models.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.events == nil {
		r.events = make(map[string][]models.NodeStatus)
	}

	status := models.NodeStatus("")
	if result != nil {
		status = result.Status
	}

	r.events[nodeID] = append(r.events[nodeID], status)
}

func (r *recorder) statuses(nodeID string) []models.NodeStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]models.NodeStatus(nil), r.events[nodeID]...)
}

func TestStore_RunAll_NotifiesProgress(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, nil)
	a := addNode(t, s, "data_input", map[string]any{"value": 10.0})
	b := addNode(t, s, "doubler", nil)
	connect(t, s, a, "value", b, "value")

	rec := &recorder{}
	unsubscribe := s.Subscribe(rec.listen)

	results, err := s.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": 20.0}, results[b].Outputs)

	want := []models.NodeStatus{models.NodeStatusPending, models.NodeStatusRunning, models.NodeStatusSuccess}
	assert.Equal(t, want, rec.statuses(a))
	assert.Equal(t, want, rec.statuses(b))

	stored, ok := s.Result(b)
	require.True(t, ok)
	assert.Equal(t, 20.0, stored.Outputs["result"])
	assert.False(t, s.IsRunning())

	unsubscribe()

	_, err = s.RunAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, rec.statuses(a), 3)
}

func TestStore_CycleLeavesResultsUntouched(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, nil)
	a := addNode(t, s, "data_input", map[string]any{"value": 1.0})
	x := addNode(t, s, "doubler", nil)
	y := addNode(t, s, "doubler", nil)
	connect(t, s, a, "value", x, "value")

	_, err := s.RunAll(context.Background())
	require.NoError(t, err)

	before := s.Results()

	connect(t, s, x, "result", y, "value")
	require.NoError(t, s.RemoveEdge(s.Project().Edges[0].ID))
	connect(t, s, y, "result", x, "value")

	rec := &recorder{}
	s.Subscribe(rec.listen)

	_, err = s.RunAll(context.Background())
	require.Error(t, err)
	assert.True(t, graph.IsCyclicGraph(err))
	assert.Equal(t, before, s.Results())
	assert.Empty(t, rec.statuses(a))
	assert.Empty(t, rec.statuses(x))
}

func TestStore_RunNode_LeavesOtherNodesAlone(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, nil)
	amount := addNode(t, s, "data_input", map[string]any{"value": 100.0})
	tax := addNode(t, s, "tax_calc", nil)
	unrelated := addNode(t, s, "data_input", map[string]any{"value": "x"})
	connect(t, s, amount, "value", tax, "amount")

	require.NoError(t, s.SetGlobal("taxRate", 0.08))

	_, err := s.RunAll(context.Background())
	require.NoError(t, err)

	before := s.Results()
	assert.InDelta(t, 8.0, before[tax].Outputs["tax"], 1e-9)

	require.NoError(t, s.SetGlobal("taxRate", 0.2))

	results, err := s.RunNode(context.Background(), tax)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	after := s.Results()
	assert.InDelta(t, 20.0, after[tax].Outputs["tax"], 1e-9)
	assert.Equal(t, before[amount], after[amount])
	assert.Equal(t, before[unrelated], after[unrelated])
}

func TestStore_RunNodeOnly(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, nil)
	a := addNode(t, s, "data_input", map[string]any{"value": 1.0})
	b := addNode(t, s, "doubler", nil)
	c := addNode(t, s, "doubler", nil)
	connect(t, s, a, "value", b, "value")
	connect(t, s, b, "result", c, "value")

	_, err := s.RunAll(context.Background())
	require.NoError(t, err)

	before := s.Results()

	require.NoError(t, s.UpdateNodeConfig(a, map[string]any{"value": 5.0}))

	results, err := s.RunNodeOnly(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// b reads the cached output of a, which has not been re-run.
	assert.Equal(t, 2.0, results[b].Outputs["result"])
	assert.Equal(t, before[c], s.Results()[c])
}

func TestStore_SupersededRunDropsResults(t *testing.T) {
	t.Parallel()

	g := newGate()
	s := newTestStore(t, g)
	src := addNode(t, s, "data_input", map[string]any{"value": 1.0})
	slow := addNode(t, s, "gate", nil)
	connect(t, s, src, "value", slow, "value")

	firstErr := make(chan error, 1)

	go func() {
		_, err := s.RunAll(context.Background())
		firstErr <- err
	}()

	<-g.entered
	assert.True(t, s.IsRunning())

	secondDone := make(chan map[string]*models.ExecutionResult, 1)

	go func() {
		results, err := s.RunAll(context.Background())
		assert.NoError(t, err)
		secondDone <- results
	}()

	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, ErrRunSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("first run was not superseded")
	}

	<-g.entered
	close(g.release)

	results := <-secondDone
	assert.Equal(t, models.NodeStatusSuccess, results[slow].Status)

	stored, ok := s.Result(slow)
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, stored.Status)
	assert.False(t, s.IsRunning())
}

func TestStore_RunNodeTakesOverInFlightInput(t *testing.T) {
	t.Parallel()

	g := newGate()
	s := newTestStore(t, g)
	src := addNode(t, s, "data_input", map[string]any{"value": 1.0})
	slow := addNode(t, s, "gate", nil)
	b := addNode(t, s, "doubler", nil)
	connect(t, s, src, "value", slow, "value")
	connect(t, s, slow, "value", b, "value")

	rec := &recorder{}
	s.Subscribe(rec.listen)

	firstErr := make(chan error, 1)

	go func() {
		_, err := s.RunAll(context.Background())
		firstErr <- err
	}()

	<-g.entered

	secondDone := make(chan map[string]*models.ExecutionResult, 1)

	go func() {
		results, err := s.RunNode(context.Background(), b)
		assert.NoError(t, err)
		secondDone <- results
	}()

	// Every unfinished node of the first run moves to the second one.
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, ErrRunSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("first run was not superseded")
	}

	<-g.entered
	close(g.release)

	results := <-secondDone
	require.Contains(t, results, slow)
	assert.Equal(t, models.NodeStatusSuccess, results[slow].Status)
	assert.Equal(t, models.NodeStatusSuccess, results[b].Status)

	final := s.Results()
	assert.Equal(t, models.NodeStatusSuccess, final[slow].Status)
	assert.Equal(t, models.NodeStatusSuccess, final[b].Status)
	assert.Equal(t, 2.0, final[b].Outputs["result"])
	assert.NotContains(t, rec.statuses(b), models.NodeStatusError)
	assert.False(t, s.IsRunning())
}

func TestStore_PartialOverlapKeepsBothRuns(t *testing.T) {
	t.Parallel()

	g := newGate()
	s := newTestStore(t, g)
	src := addNode(t, s, "data_input", map[string]any{"value": 1.0})
	slow := addNode(t, s, "gate", nil)
	d1 := addNode(t, s, "doubler", nil)
	other := addNode(t, s, "data_input", map[string]any{"value": 3.0})
	d2 := addNode(t, s, "doubler", nil)
	d3 := addNode(t, s, "doubler", nil)
	connect(t, s, src, "value", slow, "value")
	connect(t, s, slow, "value", d1, "value")
	connect(t, s, other, "value", d2, "value")
	connect(t, s, d2, "result", d3, "value")

	rec := &recorder{}
	s.Subscribe(rec.listen)

	firstDone := make(chan map[string]*models.ExecutionResult, 1)

	go func() {
		results, err := s.RunAll(context.Background())
		assert.NoError(t, err)
		firstDone <- results
	}()

	<-g.entered

	// d2 shares a wave with the gate; d3 waits behind it.
	require.Eventually(t, func() bool {
		result, ok := s.Result(d2)

		return ok && result.Status == models.NodeStatusSuccess
	}, 5*time.Second, 10*time.Millisecond)

	second, err := s.RunNode(context.Background(), d3)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 12.0, second[d3].Outputs["result"])

	stored, ok := s.Result(d3)
	require.True(t, ok)
	assert.Equal(t, second[d3], stored)
	assert.True(t, s.IsRunning())

	close(g.release)

	first := <-firstDone
	assert.Equal(t, models.NodeStatusSuccess, first[d1].Status)

	final := s.Results()
	assert.Equal(t, models.NodeStatusSuccess, final[slow].Status)
	assert.Equal(t, 2.0, final[d1].Outputs["result"])

	// The first run's d3 went through after the second claimed it and was dropped.
	assert.Equal(t, second[d3], final[d3])
	assert.Equal(t, []models.NodeStatus{
		models.NodeStatusPending,
		models.NodeStatusPending,
		models.NodeStatusRunning,
		models.NodeStatusSuccess,
	}, rec.statuses(d3))
	assert.False(t, s.IsRunning())
}

func TestStore_RunNodeOnlyKeepsUnrelatedRun(t *testing.T) {
	t.Parallel()

	g := newGate()
	s := newTestStore(t, g)
	src := addNode(t, s, "data_input", map[string]any{"value": 1.0})
	slow := addNode(t, s, "gate", nil)
	lone := addNode(t, s, "data_input", map[string]any{"value": "x"})
	connect(t, s, src, "value", slow, "value")

	firstErr := make(chan error, 1)

	go func() {
		_, err := s.RunAll(context.Background())
		firstErr <- err
	}()

	<-g.entered

	results, err := s.RunNodeOnly(context.Background(), lone)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusSuccess, results[lone].Status)

	pending, ok := s.Result(slow)
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusRunning, pending.Status)

	close(g.release)
	require.NoError(t, <-firstErr)

	stored, ok := s.Result(slow)
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, stored.Status)
}

func TestStore_CancelledRunRestoresResults(t *testing.T) {
	t.Parallel()

	g := newGate()
	s := newTestStore(t, g)
	src := addNode(t, s, "data_input", map[string]any{"value": 1.0})
	slow := addNode(t, s, "gate", nil)
	connect(t, s, src, "value", slow, "value")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		_, err := s.RunAll(ctx)
		done <- err
	}()

	<-g.entered
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)

	_, ok := s.Result(slow)
	assert.False(t, ok)

	// src finished before the cancellation and keeps its result.
	srcResult, ok := s.Result(src)
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, srcResult.Status)
}

func TestStore_RemoveNodeDropsResult(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, nil)
	a := addNode(t, s, "data_input", map[string]any{"value": 1.0})

	_, err := s.RunAll(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.RemoveNode(a))

	_, ok := s.Result(a)
	assert.False(t, ok)
	assert.True(t, graph.IsNodeNotFound(s.RemoveNode(a)))
}

func TestStore_PortValues(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, nil)
	a := addNode(t, s, "data_input", map[string]any{"sampleData": `[{"id":1},{"id":2}]`})

	values, err := s.PortValues(a)
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = s.RunAll(context.Background())
	require.NoError(t, err)

	value, ok := s.PortValue(a, "value")
	require.True(t, ok)
	assert.Equal(t, []any{map[string]any{"id": 1.0}, map[string]any{"id": 2.0}}, value.Value)
	assert.Equal(t, "array", value.Format.Type)

	_, ok = s.PortValue(a, "missing")
	assert.False(t, ok)

	_, err = s.PortValues("missing")
	assert.True(t, graph.IsNodeNotFound(err))
}

func TestStore_DocumentRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, nil)
	a := addNode(t, s, "data_input", map[string]any{"value": 3.0})
	b := addNode(t, s, "doubler", nil)
	connect(t, s, a, "value", b, "value")
	require.NoError(t, s.SetGlobal("taxRate", 0.08))

	doc := s.Document()
	require.Len(t, doc.Modules, 1)
	assert.Equal(t, "doubler", doc.Modules[0].ID)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	decoded, err := DecodeDocument(data)
	require.NoError(t, err)

	// A fresh registry only knows the built-ins; the document brings doubler.
	reg := registry.NewRegistry(discardLogger())
	require.NoError(t, reg.RegisterDefaultModules())

	runner := engine.NewRunner(reg, engine.NewExecutor(discardLogger()), discardLogger())

	other, err := New(&models.Project{ID: "p2", Name: "Other"}, reg, runner, discardLogger())
	require.NoError(t, err)
	require.NoError(t, other.Import(decoded))

	project := other.Project()
	assert.Equal(t, "p2", project.ID)
	assert.Equal(t, "Test", project.Name)
	assert.Len(t, project.Nodes, 2)
	assert.Equal(t, map[string]any{"taxRate": 0.08}, other.Globals())

	results, err := other.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6.0, results[b].Outputs["result"])
}

func TestStore_ImportRejectedLeavesRegistryAlone(t *testing.T) {
	t.Parallel()

	bundled := func(id, name string) *models.ModuleDefinition {
		return &models.ModuleDefinition{
			ID: id, Name: name, Category: models.CategoryCustom,
			Inputs:  []models.PortSpec{{ID: "value", Type: models.PortKindNumber}},
			Outputs: []models.PortSpec{{ID: "result", Type: models.PortKindNumber}},
			Code:    `{"result": 1.0}`,
		}
	}

	tests := []struct {
		name string
		doc  func() *models.ProjectDocument
	}{
		{
			name: "duplicate node id",
			doc: func() *models.ProjectDocument {
				return &models.ProjectDocument{
					Project: models.Project{Name: "Broken", Nodes: []*models.FlowNode{
						{ID: "n1", ModuleID: "leaked"},
						{ID: "n1", ModuleID: "leaked"},
					}},
					Modules: []*models.ModuleDefinition{bundled("leaked", "Leaked")},
				}
			},
		},
		{
			name: "edge from an unknown port",
			doc: func() *models.ProjectDocument {
				return &models.ProjectDocument{
					Project: models.Project{
						Name: "Broken",
						Nodes: []*models.FlowNode{
							{ID: "n1", ModuleID: "leaked"},
							{ID: "n2", ModuleID: "leaked"},
						},
						Edges: []*models.FlowEdge{{
							Source: models.PortRef{NodeID: "n1", PortID: "missing"},
							Target: models.PortRef{NodeID: "n2", PortID: "value"},
						}},
					},
					Modules: []*models.ModuleDefinition{bundled("leaked", "Leaked")},
				}
			},
		},
		{
			name: "second module invalid",
			doc: func() *models.ProjectDocument {
				return &models.ProjectDocument{
					Project: models.Project{Name: "Broken", Nodes: []*models.FlowNode{{ID: "n1", ModuleID: "leaked"}}},
					Modules: []*models.ModuleDefinition{bundled("leaked", "Leaked"), bundled("nameless", "")},
				}
			},
		},
		{
			name: "second module shadows a built-in",
			doc: func() *models.ProjectDocument {
				return &models.ProjectDocument{
					Project: models.Project{Name: "Broken"},
					Modules: []*models.ModuleDefinition{bundled("leaked", "Leaked"), bundled("data_input", "Mine")},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg := newTestRegistry(t, nil)
			runner := engine.NewRunner(reg, engine.NewExecutor(discardLogger()), discardLogger())

			s, err := New(&models.Project{ID: "p1", Name: "Kept"}, reg, runner, discardLogger())
			require.NoError(t, err)

			kept := addNode(t, s, "data_input", map[string]any{"value": 1.0})

			require.Error(t, s.Import(tt.doc()))

			_, err = reg.Get("leaked")
			assert.True(t, registry.IsModuleNotFound(err))

			project := s.Project()
			assert.Equal(t, "Kept", project.Name)
			require.Len(t, project.Nodes, 1)
			assert.Equal(t, kept, project.Nodes[0].ID)
		})
	}
}

func TestValidateDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{"minimal", `{"name":"p","nodes":[]}`, true},
		{"missing name", `{"nodes":[]}`, false},
		{"node without module", `{"name":"p","nodes":[{"id":"a"}]}`, false},
		{"edge without target", `{"name":"p","nodes":[],"edges":[{"source":{"node_id":"a","port_id":"x"}}]}`, false},
		{"bad port kind", `{"name":"p","nodes":[],"modules":[{"id":"m","name":"M","category":"custom","inputs":[{"id":"x","type":"decimal"}]}]}`, false},
		{"not json", `{`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateDocument([]byte(tt.doc))
			if tt.valid {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.True(t, IsInvalidDocument(err))
		})
	}
}
