package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/dataflow/pkg/models"
)

var (
	// ErrNodeNotFound indicates a node was not found by the given identifier.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound indicates an edge was not found by the given identifier.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrGlobalNotFound indicates no global variable has the given name.
	ErrGlobalNotFound = errors.New("global variable not found")

	// ErrInvalidGlobalName indicates an empty global variable name.
	ErrInvalidGlobalName = errors.New("global variable name is required")

	// ErrPortNotFound indicates the module of a node does not declare the port.
	ErrPortNotFound = errors.New("port not found")

	// ErrIncompatiblePorts indicates the source and target port kinds do not match.
	ErrIncompatiblePorts = errors.New("incompatible port types")

	// ErrTargetBound indicates the target input port already has an incoming edge.
	ErrTargetBound = errors.New("target port already connected")

	// ErrDuplicateNode indicates a node id is already present in the graph.
	ErrDuplicateNode = errors.New("node already exists")
)

// NodeError wraps node-related errors with additional context.
type NodeError struct {
	Op     string // Operation being performed
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s failed for node %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ConnectionError is returned when an edge cannot be created. The edge set is
// left unchanged.
type ConnectionError struct {
	Source models.PortRef
	Target models.PortRef
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect %s to %s: %v", e.Source, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// CyclicGraphError reports a dependency cycle. NodeID is a node on the cycle
// and Path lists the cycle starting from it.
type CyclicGraphError struct {
	NodeID string
	Path   []string
}

func (e *CyclicGraphError) Error() string {
	if len(e.Path) == 0 {
		return "graph contains a cycle at node " + e.NodeID
	}

	return fmt.Sprintf("graph contains a cycle at node %s: %s -> %s",
		e.NodeID, strings.Join(e.Path, " -> "), e.Path[0])
}

// IsNodeNotFound checks if the error indicates a missing node.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// IsEdgeNotFound checks if the error indicates a missing edge.
func IsEdgeNotFound(err error) bool {
	return errors.Is(err, ErrEdgeNotFound)
}

// IsGlobalNotFound checks if the error indicates a missing global variable.
func IsGlobalNotFound(err error) bool {
	return errors.Is(err, ErrGlobalNotFound)
}

// IsConnectionError checks if the error is a rejected connection.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError

	return errors.As(err, &connErr)
}

// IsCyclicGraph checks if the error reports a dependency cycle.
func IsCyclicGraph(err error) bool {
	var cycleErr *CyclicGraphError

	return errors.As(err, &cycleErr)
}
