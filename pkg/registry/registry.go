// Package registry holds the module definitions available to projects.
package registry

import (
	"cmp"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/sandbox"
	"github.com/go-playground/validator/v10"
)

// Compiler turns module source text into executable logic.
type Compiler func(source string) (models.Logic, error)

// Option configures a Registry.
type Option func(*Registry)

// WithCompiler replaces the default CEL compiler used for user module code.
func WithCompiler(compile Compiler) Option {
	return func(r *Registry) {
		r.compile = compile
	}
}

// WithSandboxOptions passes options to the default CEL compiler.
func WithSandboxOptions(opts ...sandbox.Option) Option {
	return func(r *Registry) {
		r.compile = func(source string) (models.Logic, error) {
			return sandbox.Compile(source, opts...)
		}
	}
}

type Registry struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	validate *validator.Validate
	compile  Compiler
	modules  map[string]*models.ModuleDefinition
}

func NewRegistry(log *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:   log.With("module", "registry"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		compile: func(source string) (models.Logic, error) {
			return sandbox.Compile(source)
		},
		modules: make(map[string]*models.ModuleDefinition),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register inserts a user definition, replacing a user module with the same
// id. It fails with ErrDuplicateModule when the id belongs to a built-in and
// with ErrInvalidModule when def claims to be a built-in.
func (r *Registry) Register(def *models.ModuleDefinition) error {
	return r.register("Register", false, def)
}

// RegisterAll inserts several user definitions at once. Either every
// definition is registered or, on the first rejection, none is.
func (r *Registry) RegisterAll(defs ...*models.ModuleDefinition) error {
	return r.register("RegisterAll", false, defs...)
}

func (r *Registry) registerBuiltIn(def *models.ModuleDefinition) error {
	return r.register("RegisterBuiltIn", true, def)
}

func (r *Registry) register(op string, builtIn bool, defs ...*models.ModuleDefinition) error {
	prepared := make([]*models.ModuleDefinition, 0, len(defs))

	for _, def := range defs {
		if def != nil && def.IsBuiltIn != builtIn {
			return newModuleError(op, def.ID, fmt.Errorf("%w: built-in flag is reserved for preset modules", ErrInvalidModule))
		}

		p, err := r.prepare(def)
		if err != nil {
			var id string
			if def != nil {
				id = def.ID
			}

			return newModuleError(op, id, err)
		}

		prepared = append(prepared, p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range prepared {
		if existing, ok := r.modules[def.ID]; ok && existing.IsBuiltIn {
			return newModuleError(op, def.ID, ErrDuplicateModule)
		}
	}

	for _, def := range prepared {
		r.modules[def.ID] = def
		r.logger.Debug("Registered module", "module_id", def.ID, "built_in", def.IsBuiltIn)
	}

	return nil
}

// Get returns a copy of the definition registered under id.
func (r *Registry) Get(id string) (*models.ModuleDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.modules[id]
	if !ok {
		return nil, newModuleError("Get", id, ErrModuleNotFound)
	}

	return def.Clone(), nil
}

// List yields every definition ordered by category, then name, then id. Each
// iteration works on a snapshot taken when it starts.
func (r *Registry) List() iter.Seq[*models.ModuleDefinition] {
	return func(yield func(*models.ModuleDefinition) bool) {
		for _, def := range r.snapshot() {
			if !yield(def) {
				return
			}
		}
	}
}

// ListByCategory yields the definitions of one category in listing order.
func (r *Registry) ListByCategory(category models.Category) iter.Seq[*models.ModuleDefinition] {
	return func(yield func(*models.ModuleDefinition) bool) {
		for def := range r.List() {
			if def.Category == category && !yield(def) {
				return
			}
		}
	}
}

// Update replaces an existing user module.
func (r *Registry) Update(def *models.ModuleDefinition) error {
	prepared, err := r.prepare(def)
	if err != nil {
		return newModuleError("Update", def.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.modules[prepared.ID]
	if !ok {
		return newModuleError("Update", prepared.ID, ErrModuleNotFound)
	}

	if existing.IsBuiltIn || prepared.IsBuiltIn {
		return newModuleError("Update", prepared.ID, ErrImmutableModule)
	}

	r.modules[prepared.ID] = prepared

	return nil
}

// Remove deletes a user module.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.modules[id]
	if !ok {
		return newModuleError("Remove", id, ErrModuleNotFound)
	}

	if existing.IsBuiltIn {
		return newModuleError("Remove", id, ErrImmutableModule)
	}

	delete(r.modules, id)

	return nil
}

// Fork registers a user-owned copy of an existing module under newID, which
// is how built-ins are shadowed.
func (r *Registry) Fork(id, newID, name string) (*models.ModuleDefinition, error) {
	source, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	source.ID = newID
	source.IsBuiltIn = false

	if name != "" {
		source.Name = name
	}

	if err := r.Register(source); err != nil {
		return nil, err
	}

	return r.Get(newID)
}

// Contains reports whether a module is registered under id.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.modules[id]

	return ok
}

// HealthCheck reports the number of registered modules.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.modules) == 0 {
		return "no modules registered", false
	}

	return strconv.Itoa(len(r.modules)) + " modules registered", true
}

// prepare validates and compiles a copy of def. It never touches the registry state.
func (r *Registry) prepare(def *models.ModuleDefinition) (*models.ModuleDefinition, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: definition is nil", ErrInvalidModule)
	}

	prepared := def.Clone()

	if err := r.validate.Struct(prepared); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModule, err)
	}

	if port, dup := prepared.DuplicatePort(); dup {
		return nil, fmt.Errorf("%w: port %q declared twice", ErrInvalidModule, port)
	}

	if prepared.Logic == nil {
		logic, err := r.compile(prepared.Code)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidModule, err)
		}

		prepared.Logic = logic
	}

	if prepared.LastModified.IsZero() || !prepared.IsBuiltIn {
		prepared.LastModified = time.Now().UTC()
	}

	return prepared, nil
}

func (r *Registry) snapshot() []*models.ModuleDefinition {
	r.mu.RLock()

	defs := make([]*models.ModuleDefinition, 0, len(r.modules))
	for _, def := range r.modules {
		defs = append(defs, def.Clone())
	}

	r.mu.RUnlock()

	slices.SortFunc(defs, func(a, b *models.ModuleDefinition) int {
		return cmp.Or(
			cmp.Compare(a.Category.Rank(), b.Category.Rank()),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.ID, b.ID),
		)
	})

	return defs
}
