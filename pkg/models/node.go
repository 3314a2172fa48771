package models

// Position is the canvas location of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FlowNode is an instance of a module placed in a project graph.
type FlowNode struct {
	ID       string         `json:"id"                    validate:"required"`
	ModuleID string         `json:"module_id"             validate:"required"`
	Position Position       `json:"position"`
	Config   map[string]any `json:"config"`
	Label    string         `json:"label"`

	// PinnedData replaces the node's outputs without invoking its logic.
	PinnedData map[string]any `json:"pinned_data,omitempty"`
}

// Pinned reports whether the node carries pinned data.
func (n *FlowNode) Pinned() bool {
	return n.PinnedData != nil
}

// Clone returns a deep copy of the node.
func (n *FlowNode) Clone() *FlowNode {
	clone := *n
	clone.Config = CloneMap(n.Config)

	if n.PinnedData != nil {
		clone.PinnedData = CloneMap(n.PinnedData)
	}

	return &clone
}

// FlowEdge connects one node's output port to another node's input port.
type FlowEdge struct {
	ID     string  `json:"id"     validate:"required"`
	Source PortRef `json:"source" validate:"required"`
	Target PortRef `json:"target" validate:"required"`
}

// GlobalVariable is a named value visible to the logic of every node.
type GlobalVariable struct {
	Name        string `json:"name"                  validate:"required"`
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// NodeStatus defines the possible states of a node execution.
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)
