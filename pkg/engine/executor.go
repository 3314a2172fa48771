package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dataflow/pkg/models"
)

// InvocationHook is called right before module logic is invoked.
type InvocationHook func(nodeID, moduleID string)

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithNodeTimeout bounds each logic invocation. Zero disables the bound.
func WithNodeTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = timeout
	}
}

// WithInvocationHook registers a hook called for every logic invocation.
func WithInvocationHook(hook InvocationHook) ExecutorOption {
	return func(e *Executor) {
		e.hook = hook
	}
}

// Executor invokes module logic for a single node.
type Executor struct {
	logger  *slog.Logger
	timeout time.Duration
	hook    InvocationHook
}

func NewExecutor(log *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger: log.With("module", "executor"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs the logic of def for node. Config is the module default
// overridden key by key by the node config. Every failure comes back as a
// *ModuleExecutionError.
func (e *Executor) Execute(
	ctx context.Context,
	node *models.FlowNode,
	def *models.ModuleDefinition,
	inputs, globals map[string]any,
) (map[string]any, error) {
	config := models.MergeConfig(def.Config, node.Config)

	if def.EffectiveRunMode() == models.RunModeEach && len(def.Inputs) > 0 {
		if items, ok := inputs[def.Inputs[0].ID].([]any); ok {
			return e.executeEach(ctx, node, def, def.Inputs[0].ID, items, inputs, config, globals)
		}
	}

	return e.invoke(ctx, node, def, inputs, config, globals)
}

// executeEach invokes the logic once per item of the first input port and
// gathers every output port into a list.
func (e *Executor) executeEach(
	ctx context.Context,
	node *models.FlowNode,
	def *models.ModuleDefinition,
	portID string,
	items []any,
	inputs, config, globals map[string]any,
) (map[string]any, error) {
	outputs := make(map[string]any, len(def.Outputs))
	for _, port := range def.Outputs {
		outputs[port.ID] = make([]any, 0, len(items))
	}

	for i, item := range items {
		itemInputs := models.CloneMap(inputs)
		itemInputs[portID] = item

		out, err := e.invoke(ctx, node, def, itemInputs, config, globals)
		if err != nil {
			var execErr *ModuleExecutionError
			if errors.As(err, &execErr) {
				execErr.Cause = fmt.Errorf("item %d: %w", i, execErr.Cause)
			}

			return nil, err
		}

		for key, value := range out {
			list, _ := outputs[key].([]any)
			outputs[key] = append(list, value)
		}
	}

	return outputs, nil
}

type invocation struct {
	outputs map[string]any
	err     error
}

func (e *Executor) invoke(
	ctx context.Context,
	node *models.FlowNode,
	def *models.ModuleDefinition,
	inputs, config, globals map[string]any,
) (map[string]any, error) {
	fail := func(cause error) error {
		return &ModuleExecutionError{NodeID: node.ID, ModuleID: def.ID, Cause: cause}
	}

	if def.Logic == nil {
		return nil, fail(ErrNoLogic)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if e.hook != nil {
		e.hook(node.ID, def.ID)
	}

	done := make(chan invocation, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Module logic panicked", "node_id", node.ID, "module_id", def.ID, "panic", r)
				done <- invocation{err: fmt.Errorf("panic: %v", r)}
			}
		}()

		out, err := def.Logic.Execute(ctx, inputs, config, globals)
		done <- invocation{outputs: out, err: err}
	}()

	// Logic that ignores ctx keeps running after a timeout; its result is dropped.
	var res invocation

	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if e.timeout > 0 && errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, fail(fmt.Errorf("%w after %s", ErrNodeTimeout, e.timeout))
			}

			return nil, fail(ctxErr)
		}

		return nil, fail(res.err)
	}

	if res.outputs == nil {
		return map[string]any{}, nil
	}

	return res.outputs, nil
}
