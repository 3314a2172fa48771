package models

import "time"

// ErrorKind classifies a node execution failure.
type ErrorKind string

const (
	ErrorKindMissingInput         ErrorKind = "missing_input"
	ErrorKindUnresolvedDependency ErrorKind = "unresolved_dependency"
	ErrorKindModuleExecution      ErrorKind = "module_execution"
	ErrorKindModuleNotFound       ErrorKind = "module_not_found"
	ErrorKindUpstreamFailed       ErrorKind = "upstream_failed"
)

// ExecutionError is the error recorded on a failed node. RaisedBy names the
// node where the failure originated; it equals the node's own id unless the
// error was propagated from upstream.
type ExecutionError struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	RaisedBy string    `json:"raised_by"`

	Err error `json:"-"`
}

func (e *ExecutionError) Error() string {
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ExecutionResult is the outcome of the latest execution of a node.
type ExecutionResult struct {
	NodeID     string          `json:"node_id"`
	Status     NodeStatus      `json:"status"`
	Outputs    map[string]any  `json:"outputs,omitempty"`
	Error      *ExecutionError `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Timestamp  time.Time       `json:"timestamp"`
	Pinned     bool            `json:"pinned,omitempty"`
}

// Succeeded reports whether the result holds usable outputs.
func (r *ExecutionResult) Succeeded() bool {
	return r != nil && r.Status == NodeStatusSuccess
}

// Clone returns a copy of the result with its outputs deep-copied.
func (r *ExecutionResult) Clone() *ExecutionResult {
	if r == nil {
		return nil
	}

	clone := *r
	clone.Outputs = CloneMap(r.Outputs)

	if r.Error != nil {
		e := *r.Error
		clone.Error = &e
	}

	return &clone
}

// PortValue is the cached value produced on one output port, with a
// description of its runtime shape for inspection.
type PortValue struct {
	NodeID    string      `json:"node_id"`
	PortID    string      `json:"port_id"`
	Value     any         `json:"value"`
	Format    ValueFormat `json:"format"`
	Timestamp time.Time   `json:"timestamp"`
}

// ValueFormat describes a port value: its kind and its structure.
type ValueFormat struct {
	Type      string          `json:"type"`
	Structure *ValueStructure `json:"structure,omitempty"`
}

// ValueStructure is a bounded, recursive sketch of a value.
type ValueStructure struct {
	Type    string                     `json:"type"`
	Sample  any                        `json:"sample,omitempty"`
	Length  *int                       `json:"length,omitempty"`
	Samples []*ValueStructure          `json:"samples,omitempty"`
	Fields  map[string]*ValueStructure `json:"fields,omitempty"`
	More    int                        `json:"more,omitempty"` // Fields left out of Fields
}
