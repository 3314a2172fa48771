// Package web provides the HTTP request and response types of the dataflow API.
package web

import (
	"github.com/dukex/dataflow/pkg/models"
)

// CreateProjectRequest represents the request body for creating a project.
type CreateProjectRequest struct {
	Name        string `json:"name"        validate:"required,min=1,max=255"`
	Description string `json:"description"`
}

// UpdateProjectRequest renames a project. Omitted fields are kept.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"        validate:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty"`
}

// ProjectResponse is a project with its run state.
type ProjectResponse struct {
	*models.Project

	Running bool `json:"running"`
}

// CreateNodeRequest represents the request body for adding a node.
type CreateNodeRequest struct {
	ModuleID string          `json:"module_id" validate:"required"`
	Position models.Position `json:"position"`
	Label    string          `json:"label"`
	Config   map[string]any  `json:"config"`
}

// UpdateNodeRequest changes the presentation of a node. Omitted fields are kept.
type UpdateNodeRequest struct {
	Label    *string          `json:"label,omitempty"    validate:"omitempty,min=1"`
	Position *models.Position `json:"position,omitempty"`
}

// PinNodeRequest holds the outputs to pin on a node.
type PinNodeRequest struct {
	Data map[string]any `json:"data" validate:"required"`
}

// CreateEdgeRequest connects an output port to an input port.
type CreateEdgeRequest struct {
	Source models.PortRef `json:"source" validate:"required"`
	Target models.PortRef `json:"target" validate:"required"`
}

// IDResponse returns the id of a created entity.
type IDResponse struct {
	ID string `json:"id"`
}

// SetGlobalRequest sets the value of a global variable.
type SetGlobalRequest struct {
	Value       any     `json:"value"`
	Description *string `json:"description,omitempty"`
}

// ForkModuleRequest copies a module under a new id.
type ForkModuleRequest struct {
	ID   string `json:"id"   validate:"required,min=1"`
	Name string `json:"name"`
}

// RunResponse holds the results a run produced.
type RunResponse struct {
	Results map[string]*models.ExecutionResult `json:"results"`
}

// ModuleSummary is a module without its code, as listed.
type ModuleSummary struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Category    models.Category   `json:"category"`
	Description string            `json:"description"`
	Version     string            `json:"version"`
	Inputs      []models.PortSpec `json:"inputs"`
	Outputs     []models.PortSpec `json:"outputs"`
	IsBuiltIn   bool              `json:"is_built_in"`
}

// SummarizeModule strips the code and configuration from a definition.
func SummarizeModule(def *models.ModuleDefinition) ModuleSummary {
	return ModuleSummary{
		ID:          def.ID,
		Name:        def.Name,
		Category:    def.Category,
		Description: def.Description,
		Version:     def.Version,
		Inputs:      def.Inputs,
		Outputs:     def.Outputs,
		IsBuiltIn:   def.IsBuiltIn,
	}
}
