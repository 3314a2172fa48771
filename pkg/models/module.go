// Package models defines the module, graph and execution types shared by the engine packages.
package models

import (
	"context"
	"time"
)

// Category groups modules for listing.
type Category string

const (
	CategoryInput       Category = "input"
	CategoryProcessing  Category = "processing"
	CategoryCalculation Category = "calculation"
	CategoryOutput      Category = "output"
	CategoryCustom      Category = "custom"
)

// Rank returns the listing position of the category. Unknown categories sort last.
func (c Category) Rank() int {
	switch c {
	case CategoryInput:
		return 0
	case CategoryProcessing:
		return 1
	case CategoryCalculation:
		return 2
	case CategoryOutput:
		return 3
	case CategoryCustom:
		return 4
	default:
		return 5
	}
}

// RunMode selects how a module consumes a list on its first input port.
type RunMode string

const (
	// RunModeOnce invokes the logic a single time with the inputs as given.
	RunModeOnce RunMode = "once"
	// RunModeEach invokes the logic once per item of the first input when it holds a list.
	RunModeEach RunMode = "each"
)

// Logic is the executable part of a module. Implementations must only use
// their three arguments; they have no access to the graph or the store.
type Logic interface {
	Execute(ctx context.Context, inputs, config, globals map[string]any) (map[string]any, error)
}

// LogicFunc adapts a function to the Logic interface.
type LogicFunc func(ctx context.Context, inputs, config, globals map[string]any) (map[string]any, error)

func (f LogicFunc) Execute(ctx context.Context, inputs, config, globals map[string]any) (map[string]any, error) {
	return f(ctx, inputs, config, globals)
}

// ModuleDefinition is a reusable node type.
type ModuleDefinition struct {
	ID           string         `json:"id"                  validate:"required"`
	Name         string         `json:"name"                validate:"required"`
	Category     Category       `json:"category"            validate:"required,oneof=input processing calculation output custom"`
	Description  string         `json:"description"`
	Version      string         `json:"version"`
	Author       string         `json:"author,omitempty"`
	Inputs       []PortSpec     `json:"inputs"              validate:"dive"`
	Outputs      []PortSpec     `json:"outputs"             validate:"dive"`
	Config       map[string]any `json:"config"`
	Code         string         `json:"code,omitempty"`
	RunMode      RunMode        `json:"run_mode,omitempty"  validate:"omitempty,oneof=once each"`
	IsBuiltIn    bool           `json:"is_built_in"`
	LastModified time.Time      `json:"last_modified"`

	// Logic is compiled from Code for user modules and provided directly by built-ins.
	Logic Logic `json:"-"`
}

// InputPort looks up a declared input port by id.
func (d *ModuleDefinition) InputPort(id string) (PortSpec, bool) {
	return findPort(d.Inputs, id)
}

// OutputPort looks up a declared output port by id.
func (d *ModuleDefinition) OutputPort(id string) (PortSpec, bool) {
	return findPort(d.Outputs, id)
}

// DuplicatePort returns the first port id declared twice within the inputs
// or within the outputs.
func (d *ModuleDefinition) DuplicatePort() (string, bool) {
	for _, ports := range [][]PortSpec{d.Inputs, d.Outputs} {
		seen := make(map[string]struct{}, len(ports))
		for _, p := range ports {
			if _, ok := seen[p.ID]; ok {
				return p.ID, true
			}

			seen[p.ID] = struct{}{}
		}
	}

	return "", false
}

// EffectiveRunMode returns the run mode, defaulting to once.
func (d *ModuleDefinition) EffectiveRunMode() RunMode {
	if d.RunMode == "" {
		return RunModeOnce
	}

	return d.RunMode
}

// Clone returns a deep copy of the definition. The logic is shared.
func (d *ModuleDefinition) Clone() *ModuleDefinition {
	clone := *d
	clone.Inputs = append([]PortSpec(nil), d.Inputs...)
	clone.Outputs = append([]PortSpec(nil), d.Outputs...)
	clone.Config = CloneMap(d.Config)

	return &clone
}

func findPort(ports []PortSpec, id string) (PortSpec, bool) {
	for _, p := range ports {
		if p.ID == id {
			return p, true
		}
	}

	return PortSpec{}, false
}
