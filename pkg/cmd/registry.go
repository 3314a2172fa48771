// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dataflow/pkg/engine"
	"github.com/dukex/dataflow/pkg/registry"
)

// NewRegistry creates a registry with the built-in modules and the user
// modules found in modulesPath.
func NewRegistry(log *slog.Logger, modulesPath string) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	err := reg.RegisterDefaultModules()
	if err != nil {
		return nil, fmt.Errorf("failed to register built-in modules: %w", err)
	}

	if modulesPath != "" {
		err = reg.RegisterModules(modulesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load modules from %s: %w", modulesPath, err)
		}
	}

	return reg, nil
}

// NewRunner creates the engine runner shared by every project.
func NewRunner(
	log *slog.Logger,
	reg *registry.Registry,
	nodeTimeout time.Duration,
	concurrency int,
	opts ...engine.RunnerOption,
) *engine.Runner {
	executor := engine.NewExecutor(log, engine.WithNodeTimeout(nodeTimeout))
	opts = append([]engine.RunnerOption{engine.WithConcurrency(concurrency)}, opts...)

	return engine.NewRunner(reg, executor, log, opts...)
}
