package engine

import (
	"errors"
	"fmt"

	"github.com/dukex/dataflow/pkg/models"
)

var (
	// ErrNodeTimeout indicates the module logic did not return within the node timeout.
	ErrNodeTimeout = errors.New("node execution timed out")

	// ErrNoLogic indicates a module definition without executable logic.
	ErrNoLogic = errors.New("module has no logic")
)

// MissingInputError is raised when a required input port has no incoming edge.
type MissingInputError struct {
	NodeID string
	PortID string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("node %s: required input %q is not connected", e.NodeID, e.PortID)
}

// UnresolvedDependencyError is raised when the node feeding an input port
// has no successful result to read from.
type UnresolvedDependencyError struct {
	NodeID       string
	PortID       string
	SourceNodeID string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("node %s: input %q depends on node %s which has no successful result",
		e.NodeID, e.PortID, e.SourceNodeID)
}

// ModuleNotFoundError is raised when a node references a module that is not registered.
type ModuleNotFoundError struct {
	NodeID   string
	ModuleID string
	Err      error
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("node %s: module %s not found", e.NodeID, e.ModuleID)
}

func (e *ModuleNotFoundError) Unwrap() error {
	return e.Err
}

// ModuleExecutionError wraps any failure raised by module logic, panics included.
type ModuleExecutionError struct {
	NodeID   string
	ModuleID string
	Cause    error
}

func (e *ModuleExecutionError) Error() string {
	return fmt.Sprintf("node %s: module %s failed: %v", e.NodeID, e.ModuleID, e.Cause)
}

func (e *ModuleExecutionError) Unwrap() error {
	return e.Cause
}

// IsModuleExecution checks if the error was raised by module logic.
func IsModuleExecution(err error) bool {
	var execErr *ModuleExecutionError

	return errors.As(err, &execErr)
}

// IsMissingInput checks if the error reports an unconnected required input.
func IsMissingInput(err error) bool {
	var inputErr *MissingInputError

	return errors.As(err, &inputErr)
}

// IsUnresolvedDependency checks if the error reports an upstream node without a result.
func IsUnresolvedDependency(err error) bool {
	var depErr *UnresolvedDependencyError

	return errors.As(err, &depErr)
}

// executionError converts a per-node failure into the error stored on its result.
func executionError(nodeID string, err error) *models.ExecutionError {
	var (
		missing    *MissingInputError
		unresolved *UnresolvedDependencyError
		notFound   *ModuleNotFoundError
	)

	kind := models.ErrorKindModuleExecution

	switch {
	case errors.As(err, &missing):
		kind = models.ErrorKindMissingInput
	case errors.As(err, &unresolved):
		kind = models.ErrorKindUnresolvedDependency
	case errors.As(err, &notFound):
		kind = models.ErrorKindModuleNotFound
	}

	return &models.ExecutionError{
		Kind:     kind,
		Message:  err.Error(),
		RaisedBy: nodeID,
		Err:      err,
	}
}

// upstreamError is recorded on nodes downstream of a failure.
func upstreamError(root string) *models.ExecutionError {
	return &models.ExecutionError{
		Kind:     models.ErrorKindUpstreamFailed,
		Message:  fmt.Sprintf("upstream node %s failed", root),
		RaisedBy: root,
	}
}
