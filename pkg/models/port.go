package models

// PortKind is the structural tag declared on a port. It is used to validate
// connections, not to type-check values.
type PortKind string

const (
	PortKindNumber  PortKind = "number"
	PortKindString  PortKind = "string"
	PortKindJSON    PortKind = "json"
	PortKindBoolean PortKind = "boolean"
	PortKindArray   PortKind = "array"
	PortKindObject  PortKind = "object"
	PortKindAny     PortKind = "any"
)

// Valid reports whether k is one of the known port kinds.
func (k PortKind) Valid() bool {
	switch k {
	case PortKindNumber, PortKindString, PortKindJSON, PortKindBoolean,
		PortKindArray, PortKindObject, PortKindAny:
		return true
	default:
		return false
	}
}

// Compatible reports whether an output port of kind source may feed an input
// port of kind target. Identical tags are compatible, and any/json accept or
// produce everything.
func Compatible(source, target PortKind) bool {
	if source == target {
		return true
	}

	return isWildcard(source) || isWildcard(target)
}

func isWildcard(k PortKind) bool {
	return k == PortKindAny || k == PortKindJSON
}

// PortSpec declares one input or output slot of a module.
type PortSpec struct {
	ID          string   `json:"id"                    validate:"required"`
	Name        string   `json:"name"`
	Type        PortKind `json:"type"                  validate:"required,oneof=number string json boolean array object any"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"` // Ignored on outputs
}

// PortRef addresses a port on a node inside a graph.
type PortRef struct {
	NodeID string `json:"node_id" validate:"required"`
	PortID string `json:"port_id" validate:"required"`
}

func (r PortRef) String() string {
	return MakePortID(r.NodeID, r.PortID)
}

// ParsePortID parses a port ID in format "{node_id}:{port_id}" into components.
func ParsePortID(portID string) (string, string, bool) {
	for i := range len(portID) {
		if portID[i] == ':' {
			return portID[:i], portID[i+1:], true
		}
	}

	return "", "", false
}

// MakePortID creates a port ID from node ID and port ID.
func MakePortID(nodeID, portID string) string {
	return nodeID + ":" + portID
}
