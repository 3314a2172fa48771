// Package store owns the live state of one project: its graph, the latest
// result of every node and the subscribers watching them.
//
// Every structural mutation and every run start goes through the store's
// lock. Runs execute outside the lock over a frozen copy of the graph; each
// result they produce is committed only if no newer run has claimed the
// node since, so a slow stale run never overwrites a fresher result.
package store

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dukex/dataflow/pkg/engine"
	"github.com/dukex/dataflow/pkg/graph"
	"github.com/dukex/dataflow/pkg/models"
)

// ModuleSource resolves and registers module definitions.
type ModuleSource interface {
	graph.ModuleLookup
	RegisterAll(defs ...*models.ModuleDefinition) error
}

// Listener is notified after the result of a node changes.
type Listener func(nodeID string, result *models.ExecutionResult)

// RunListener is notified when a run starts and when it ends.
type RunListener interface {
	RunStarted(projectID string, plan *engine.Plan)
	RunFinished(projectID string, plan *engine.Plan, results map[string]*models.ExecutionResult, err error)
}

type activeRun struct {
	claimed map[string]uint64
	cancel  context.CancelFunc
}

type Store struct {
	mu sync.Mutex

	project *models.Project // metadata only; nodes, edges and globals live in graph
	graph   *graph.Graph
	modules ModuleSource
	runner  *engine.Runner
	logger  *slog.Logger

	results     map[string]*models.ExecutionResult
	generations map[string]uint64
	runs        map[uint64]*activeRun
	runSeq      uint64

	listeners    map[int]Listener
	listenerSeq  int
	runListeners []RunListener
}

// Option configures a Store.
type Option func(*Store)

// WithRunListener registers a listener for run start and end.
func WithRunListener(listener RunListener) Option {
	return func(s *Store) {
		s.runListeners = append(s.runListeners, listener)
	}
}

// New opens a store over project. Nodes referencing unknown modules are kept
// and fail when executed.
func New(project *models.Project, modules ModuleSource, runner *engine.Runner, log *slog.Logger, opts ...Option) (*Store, error) {
	g, err := graph.FromProject(project, modules)
	if err != nil {
		return nil, err
	}

	meta := *project
	meta.Nodes, meta.Edges, meta.Globals = nil, nil, nil

	s := &Store{
		project:     &meta,
		graph:       g,
		modules:     modules,
		runner:      runner,
		logger:      log.With("module", "store", "project_id", project.ID),
		results:     make(map[string]*models.ExecutionResult),
		generations: make(map[string]uint64),
		runs:        make(map[uint64]*activeRun),
		listeners:   make(map[int]Listener),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// ID returns the project id.
func (s *Store) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.project.ID
}

// Project exports the current project.
func (s *Store) Project() *models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exportLocked()
}

// Rename changes the project name and description.
func (s *Store) Rename(name, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.project.Name = name
	s.project.Description = description
	s.touchLocked()
}

func (s *Store) AddNode(moduleID string, position models.Position) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.graph.AddNode(moduleID, position)
	if err != nil {
		return "", err
	}

	s.touchLocked()

	return id, nil
}

// RemoveNode deletes a node, its edges and its result. A run still executing
// the node drops its result.
func (s *Store) RemoveNode(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.graph.RemoveNode(nodeID); err != nil {
		return err
	}

	s.generations[nodeID]++
	delete(s.results, nodeID)
	s.touchLocked()

	return nil
}

func (s *Store) UpdateNodeConfig(nodeID string, partial map[string]any) error {
	return s.mutate(func(g *graph.Graph) error { return g.UpdateNodeConfig(nodeID, partial) })
}

func (s *Store) UpdateNodeLabel(nodeID, label string) error {
	return s.mutate(func(g *graph.Graph) error { return g.UpdateNodeLabel(nodeID, label) })
}

func (s *Store) MoveNode(nodeID string, position models.Position) error {
	return s.mutate(func(g *graph.Graph) error { return g.MoveNode(nodeID, position) })
}

func (s *Store) PinNodeData(nodeID string, data map[string]any) error {
	return s.mutate(func(g *graph.Graph) error { return g.PinNodeData(nodeID, data) })
}

func (s *Store) UnpinNodeData(nodeID string) error {
	return s.mutate(func(g *graph.Graph) error { return g.UnpinNodeData(nodeID) })
}

func (s *Store) AddEdge(source, target models.PortRef) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.graph.AddEdge(source, target)
	if err != nil {
		return "", err
	}

	s.touchLocked()

	return id, nil
}

func (s *Store) RemoveEdge(edgeID string) error {
	return s.mutate(func(g *graph.Graph) error { return g.RemoveEdge(edgeID) })
}

func (s *Store) SetGlobal(name string, value any) error {
	return s.mutate(func(g *graph.Graph) error { return g.SetGlobal(name, value) })
}

func (s *Store) DescribeGlobal(name, description string) error {
	return s.mutate(func(g *graph.Graph) error { return g.DescribeGlobal(name, description) })
}

func (s *Store) RemoveGlobal(name string) error {
	return s.mutate(func(g *graph.Graph) error { return g.RemoveGlobal(name) })
}

func (s *Store) Node(nodeID string) (*models.FlowNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.graph.Node(nodeID)
}

func (s *Store) Globals() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.graph.Globals()
}

// Waves returns the current dependency levels of the graph.
func (s *Store) Waves() ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.graph.Waves()
}

// RunAll executes every node.
func (s *Store) RunAll(ctx context.Context) (map[string]*models.ExecutionResult, error) {
	return s.run(ctx, engine.PlanAll)
}

// RunNode executes nodeID and everything downstream of it, reading the
// cached results of its upstream nodes.
func (s *Store) RunNode(ctx context.Context, nodeID string) (map[string]*models.ExecutionResult, error) {
	return s.run(ctx, func(g *graph.Graph) (*engine.Plan, error) { return engine.PlanNode(g, nodeID) })
}

// RunNodeOnly executes nodeID alone.
func (s *Store) RunNodeOnly(ctx context.Context, nodeID string) (map[string]*models.ExecutionResult, error) {
	return s.run(ctx, func(g *graph.Graph) (*engine.Plan, error) { return engine.PlanNodeOnly(g, nodeID) })
}

// IsRunning reports whether a run is in flight.
func (s *Store) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.runs) > 0
}

// Result returns the latest result of a node.
func (s *Store) Result(nodeID string) (*models.ExecutionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.results[nodeID]

	return result.Clone(), ok
}

// Results returns the latest result of every node that has one.
func (s *Store) Results() map[string]*models.ExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneResults(s.results)
}

// Subscribe registers a listener and returns the function removing it.
// Listeners are called outside the store lock, from the goroutine that
// produced the change.
func (s *Store) Subscribe(listener Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.listenerSeq
	s.listenerSeq++
	s.listeners[id] = listener

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.listeners, id)
	}
}

func (s *Store) run(ctx context.Context, planFn func(*graph.Graph) (*engine.Plan, error)) (map[string]*models.ExecutionResult, error) {
	s.mu.Lock()

	plan, err := planFn(s.graph)
	if err == nil {
		plan, err = s.widenLocked(plan)
	}

	if err != nil {
		s.mu.Unlock()

		return nil, err
	}

	nodes := plan.Nodes()
	req := engine.Request{
		ProjectID: s.project.ID,
		Graph:     s.graph.Clone(),
		Plan:      plan,
		Globals:   s.graph.Globals(),
		Previous:  cloneResults(s.results),
	}

	s.supersedeLocked(nodes)

	s.runSeq++
	runID := s.runSeq

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	claimed := make(map[string]uint64, len(nodes))
	s.runs[runID] = &activeRun{claimed: claimed, cancel: cancel}

	var changes []change

	for _, id := range nodes {
		s.generations[id]++
		claimed[id] = s.generations[id]

		pending := &models.ExecutionResult{NodeID: id, Status: models.NodeStatusPending, Timestamp: time.Now().UTC()}
		s.results[id] = pending
		changes = append(changes, change{id, pending.Clone()})
	}

	listeners := s.listenersLocked()
	runListeners := slices.Clone(s.runListeners)
	projectID := s.project.ID

	s.mu.Unlock()

	notify(listeners, changes)

	for _, l := range runListeners {
		l.RunStarted(projectID, plan)
	}

	s.logger.DebugContext(ctx, "Run dispatched", "run_id", runID, "scope", plan.Scope, "nodes", len(nodes))

	results, runErr := s.runner.Run(runCtx, req, func(result *models.ExecutionResult) {
		s.commit(claimed, result)
	})

	s.finish(runID, claimed, req.Previous, runErr)

	if runErr != nil && ctx.Err() == nil {
		runErr = ErrRunSuperseded
	}

	for _, l := range runListeners {
		l.RunFinished(projectID, plan, results, runErr)
	}

	return results, runErr
}

// widenLocked pulls into plan every direct input of a planned node whose
// result is still pending or running in another run, along with that
// input's downstream. The planned nodes then read fresh inputs from this run
// instead of a placeholder.
func (s *Store) widenLocked(plan *engine.Plan) (*engine.Plan, error) {
	queue := plan.Nodes()
	member := make(map[string]bool, len(queue))

	for _, id := range queue {
		member[id] = true
	}

	widened := false

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, up := range s.graph.Predecessors(current) {
			result, ok := s.results[up]
			if member[up] || !ok || !unfinished(result) {
				continue
			}

			widened = true

			for _, id := range append([]string{up}, s.graph.Downstream(up)...) {
				if !member[id] {
					member[id] = true
					queue = append(queue, id)
				}
			}
		}
	}

	if !widened {
		return plan, nil
	}

	waves, err := s.graph.SubgraphWaves(slices.Collect(maps.Keys(member)))
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Plan widened over in-flight inputs", "scope", plan.Scope, "target", plan.Target, "nodes", len(member))

	return &engine.Plan{Scope: plan.Scope, Target: plan.Target, Waves: waves}, nil
}

// supersedeLocked cancels the in-flight runs whose unfinished nodes are all
// claimed by a new run. Other runs keep going; the generation check drops
// their results on the claimed nodes.
func (s *Store) supersedeLocked(nodes []string) {
	for id, run := range s.runs {
		owned, covered := 0, true

		for n, gen := range run.claimed {
			result, ok := s.results[n]
			if s.generations[n] != gen || !ok || !unfinished(result) {
				continue
			}

			owned++

			if !slices.Contains(nodes, n) {
				covered = false

				break
			}
		}

		if owned > 0 && covered {
			s.logger.Debug("Superseding run", "run_id", id)
			run.cancel()
		}
	}
}

func (s *Store) commit(claimed map[string]uint64, result *models.ExecutionResult) {
	s.mu.Lock()

	if s.generations[result.NodeID] != claimed[result.NodeID] {
		s.mu.Unlock()

		return
	}

	s.results[result.NodeID] = result
	listeners := s.listenersLocked()

	s.mu.Unlock()

	notify(listeners, []change{{result.NodeID, result.Clone()}})
}

// finish closes a run. When the run was cancelled, the nodes it still owns
// and left unfinished get their previous result back.
func (s *Store) finish(runID uint64, claimed map[string]uint64, previous map[string]*models.ExecutionResult, runErr error) {
	s.mu.Lock()

	delete(s.runs, runID)

	var changes []change

	if runErr != nil {
		for id, gen := range claimed {
			current, ok := s.results[id]
			if s.generations[id] != gen || !ok || !unfinished(current) {
				continue
			}

			if prev, had := previous[id]; had && !unfinished(prev) {
				s.results[id] = prev
				changes = append(changes, change{id, prev.Clone()})
			} else {
				delete(s.results, id)
				changes = append(changes, change{id, nil})
			}
		}
	}

	listeners := s.listenersLocked()

	s.mu.Unlock()

	notify(listeners, changes)
}

func (s *Store) mutate(fn func(*graph.Graph) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.graph); err != nil {
		return err
	}

	s.touchLocked()

	return nil
}

func (s *Store) touchLocked() {
	s.project.UpdatedAt = time.Now().UTC()
}

func (s *Store) exportLocked() *models.Project {
	exported := s.graph.Project()

	project := *s.project
	project.Nodes = exported.Nodes
	project.Edges = exported.Edges
	project.Globals = exported.Globals
	project.Metadata = maps.Clone(s.project.Metadata)

	return &project
}

func (s *Store) listenersLocked() []Listener {
	ids := slices.Sorted(maps.Keys(s.listeners))

	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}

	return out
}

type change struct {
	nodeID string
	result *models.ExecutionResult
}

func notify(listeners []Listener, changes []change) {
	for _, c := range changes {
		for _, l := range listeners {
			l(c.nodeID, c.result)
		}
	}
}

func unfinished(result *models.ExecutionResult) bool {
	return result.Status == models.NodeStatusPending || result.Status == models.NodeStatusRunning
}

func cloneResults(results map[string]*models.ExecutionResult) map[string]*models.ExecutionResult {
	out := make(map[string]*models.ExecutionResult, len(results))
	for id, result := range results {
		out[id] = result.Clone()
	}

	return out
}
