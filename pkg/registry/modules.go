package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/presets"
)

// RegisterDefaultModules registers all built-in modules with the registry.
func (r *Registry) RegisterDefaultModules() error {
	var errs []error

	for _, def := range presets.Modules() {
		if err := r.registerBuiltIn(def); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// LoadModules reads user module definitions from the JSON files in
// modulesPath. A file holds either one definition or a list of them. A
// missing directory yields no modules.
func (r *Registry) LoadModules(modulesPath string) ([]*models.ModuleDefinition, error) {
	if _, err := os.Stat(modulesPath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	root := os.DirFS(modulesPath)

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list module files: %w", err)
	}

	l := r.logger.With(slog.String("path", modulesPath))
	l.Info("Loading modules", "files", len(files))

	var defs []*models.ModuleDefinition

	for _, file := range files {
		body, err := fs.ReadFile(root, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read module file %s: %w", path.Join(modulesPath, file), err)
		}

		parsed, err := decodeModules(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode module file %s: %w", file, err)
		}

		for _, def := range parsed {
			def.IsBuiltIn = false
			defs = append(defs, def)
		}

		l.Info("Loaded module file", slog.String("file", file), slog.Int("modules", len(parsed)))
	}

	return defs, nil
}

// RegisterModules loads the modules in modulesPath and registers them.
func (r *Registry) RegisterModules(modulesPath string) error {
	defs, err := r.LoadModules(modulesPath)
	if err != nil {
		return err
	}

	return r.RegisterAll(defs...)
}

func decodeModules(body []byte) ([]*models.ModuleDefinition, error) {
	if strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
		var defs []*models.ModuleDefinition
		if err := json.Unmarshal(body, &defs); err != nil {
			return nil, err
		}

		return defs, nil
	}

	var def models.ModuleDefinition
	if err := json.Unmarshal(body, &def); err != nil {
		return nil, err
	}

	return []*models.ModuleDefinition{&def}, nil
}
