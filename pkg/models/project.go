package models

import "time"

// Project is the aggregate root of one dataflow graph.
type Project struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"                  validate:"required,min=1"`
	Description string            `json:"description,omitempty"`
	Nodes       []*FlowNode       `json:"nodes"                 validate:"dive"` // Creation order
	Edges       []*FlowEdge       `json:"edges"                 validate:"dive"`
	Globals     []*GlobalVariable `json:"globals"               validate:"dive"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// GlobalsMap returns the globals as a name to value mapping.
func (p *Project) GlobalsMap() map[string]any {
	globals := make(map[string]any, len(p.Globals))
	for _, g := range p.Globals {
		globals[g.Name] = g.Value
	}

	return globals
}

// ProjectDocument is the self-contained persisted form of a project. It
// carries the user-defined modules referenced by the graph.
type ProjectDocument struct {
	Project

	Modules []*ModuleDefinition `json:"modules,omitempty"`
}
