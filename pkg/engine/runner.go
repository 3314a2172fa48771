// Package engine plans and executes dataflow runs over a graph snapshot.
//
// A run walks the plan wave by wave. Nodes inside a wave are independent and
// run concurrently; a wave starts only after the previous one has finished,
// so every input read sees the committed output of its source node. A failed
// node never stops the run: its downstream nodes are marked as failed by it
// without invoking their logic.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/dataflow/pkg/graph"
	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/otelhelper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Sink receives every status change of a run: running first, then the
// final result of each node.
type Sink func(result *models.ExecutionResult)

// Request is one run over a frozen graph.
type Request struct {
	ProjectID string
	Graph     *graph.Graph
	Plan      *Plan
	Globals   map[string]any

	// Previous holds the committed results read by nodes outside the plan.
	Previous map[string]*models.ExecutionResult
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency caps the nodes executed at once inside a wave. Zero or
// less means no cap.
func WithConcurrency(limit int) RunnerOption {
	return func(r *Runner) {
		r.concurrency = limit
	}
}

// WithTracer sets the tracer used for run and node spans.
func WithTracer(tracer trace.Tracer) RunnerOption {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

type Runner struct {
	modules     graph.ModuleLookup
	executor    *Executor
	logger      *slog.Logger
	tracer      trace.Tracer
	concurrency int
}

func NewRunner(modules graph.ModuleLookup, executor *Executor, log *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		modules:  modules,
		executor: executor,
		logger:   log.With("module", "runner"),
		tracer:   otel.Tracer("github.com/dukex/dataflow/pkg/engine"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes the plan and returns the results of the planned nodes. Node
// failures are recorded in the results; the returned error is only set when
// ctx is cancelled, in which case the unfinished nodes have no result.
func (r *Runner) Run(ctx context.Context, req Request, sink Sink) (map[string]*models.ExecutionResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "engine.run",
		attribute.String(otelhelper.ProjectIDKey, req.ProjectID),
		attribute.String(otelhelper.RunScopeKey, string(req.Plan.Scope)),
		attribute.String(otelhelper.NodeIDKey, req.Plan.Target),
	)
	defer span.End()

	logger := r.logger.With("project_id", req.ProjectID, "scope", req.Plan.Scope)
	logger.InfoContext(ctx, "Starting run", "nodes", len(req.Plan.Nodes()))

	if sink == nil {
		sink = func(*models.ExecutionResult) {}
	}

	state := &runState{
		previous: req.Previous,
		current:  make(map[string]*models.ExecutionResult),
	}

	for i, wave := range req.Plan.Waves {
		group, waveCtx := errgroup.WithContext(ctx)
		if r.concurrency > 0 {
			group.SetLimit(r.concurrency)
		}

		for _, nodeID := range wave {
			group.Go(func() error {
				result, err := r.runNode(waveCtx, req, state, nodeID, sink)
				if err != nil {
					return err
				}

				state.commit(result)
				sink(result.Clone())

				return nil
			})
		}

		if err := group.Wait(); err != nil {
			logger.WarnContext(ctx, "Run cancelled", "wave", i, "error", err)
			otelhelper.SetError(span, err,
				attribute.String(otelhelper.ProjectIDKey, req.ProjectID),
				attribute.Int(otelhelper.RunWaveKey, i))

			return state.results(), err
		}
	}

	logger.InfoContext(ctx, "Run completed", "failed", state.failures())

	return state.results(), nil
}

// runNode produces the result of one node. It only returns an error when
// the run was cancelled.
func (r *Runner) runNode(ctx context.Context, req Request, state *runState, nodeID string, sink Sink) (*models.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	node, err := req.Graph.Node(nodeID)
	if err != nil {
		return nil, err
	}

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "engine.node",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.ModuleIDKey, node.ModuleID),
	)
	defer span.End()

	if root, failed := state.failedUpstream(req.Graph, nodeID); failed {
		execErr := upstreamError(root)
		otelhelper.SetNodeError(span, nodeID, execErr)

		return &models.ExecutionResult{
			NodeID:    nodeID,
			Status:    models.NodeStatusError,
			Error:     execErr,
			Timestamp: time.Now().UTC(),
		}, nil
	}

	sink(&models.ExecutionResult{NodeID: nodeID, Status: models.NodeStatusRunning, Timestamp: time.Now().UTC()})

	started := time.Now()
	outputs, pinned, err := r.produce(ctx, req, state, node)

	result := &models.ExecutionResult{
		NodeID:     nodeID,
		DurationMs: time.Since(started).Milliseconds(),
		Timestamp:  time.Now().UTC(),
		Pinned:     pinned,
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		r.logger.InfoContext(ctx, "Node failed", "node_id", nodeID, "module_id", node.ModuleID, "error", err)
		result.Status = models.NodeStatusError
		result.Error = executionError(nodeID, err)
		otelhelper.SetNodeError(span, nodeID, result.Error)

		return result, nil
	}

	result.Status = models.NodeStatusSuccess
	result.Outputs = outputs

	r.logger.DebugContext(ctx, "Node succeeded", "node_id", nodeID, "duration_ms", result.DurationMs)

	return result, nil
}

// produce returns the outputs of a node: its pinned data when set, the
// outcome of its logic otherwise.
func (r *Runner) produce(ctx context.Context, req Request, state *runState, node *models.FlowNode) (map[string]any, bool, error) {
	if node.Pinned() {
		return models.CloneMap(node.PinnedData), true, nil
	}

	def, err := r.modules.Get(node.ModuleID)
	if err != nil {
		return nil, false, &ModuleNotFoundError{NodeID: node.ID, ModuleID: node.ModuleID, Err: err}
	}

	inputs, err := ResolveInputs(req.Graph, node.ID, def, state)
	if err != nil {
		return nil, false, err
	}

	outputs, err := r.executor.Execute(ctx, node, def, inputs, models.CloneMap(req.Globals))

	return outputs, false, err
}

// runState holds the results visible to one run: results committed in this
// run first, then the results committed before it.
type runState struct {
	mu       sync.RWMutex
	previous map[string]*models.ExecutionResult
	current  map[string]*models.ExecutionResult
}

func (s *runState) Result(nodeID string) (*models.ExecutionResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if result, ok := s.current[nodeID]; ok {
		return result, true
	}

	result, ok := s.previous[nodeID]

	return result, ok && result != nil
}

func (s *runState) commit(result *models.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current[result.NodeID] = result
}

// failedUpstream returns the root cause of the first predecessor that
// failed during this run.
func (s *runState) failedUpstream(g *graph.Graph, nodeID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pred := range g.Predecessors(nodeID) {
		result, ok := s.current[pred]
		if ok && result.Status == models.NodeStatusError {
			return result.Error.RaisedBy, true
		}
	}

	return "", false
}

func (s *runState) results() map[string]*models.ExecutionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.ExecutionResult, len(s.current))
	for id, result := range s.current {
		out[id] = result.Clone()
	}

	return out
}

func (s *runState) failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0

	for _, result := range s.current {
		if result.Status == models.NodeStatusError {
			n++
		}
	}

	return n
}
