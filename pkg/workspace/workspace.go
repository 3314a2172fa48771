// Package workspace hosts the open projects of a process. It loads them from
// persistence, keeps one store per project and publishes their results on
// the event bus.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukex/dataflow/pkg/engine"
	"github.com/dukex/dataflow/pkg/eventbus"
	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/persistence"
	"github.com/dukex/dataflow/pkg/store"
	"github.com/google/uuid"
)

// ErrNoPersistence is returned by Save when the workspace has no storage.
var ErrNoPersistence = errors.New("workspace has no persistence configured")

type Workspace struct {
	mu     sync.RWMutex
	stores map[string]*store.Store

	modules     store.ModuleSource
	runner      *engine.Runner
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithPersistence stores projects through p.
func WithPersistence(p persistence.Persistence) Option {
	return func(w *Workspace) {
		w.persistence = p
	}
}

// WithPublisher publishes node results and run lifecycle events through pub.
func WithPublisher(pub eventbus.EventPublisher) Option {
	return func(w *Workspace) {
		w.publisher = pub
	}
}

// New creates an empty workspace.
func New(modules store.ModuleSource, runner *engine.Runner, log *slog.Logger, opts ...Option) *Workspace {
	w := &Workspace{
		stores:  make(map[string]*store.Store),
		modules: modules,
		runner:  runner,
		logger:  log.With("module", "workspace"),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// HealthCheck checks the health of the persistence layer.
func (w *Workspace) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "In-memory workspace", true
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create opens a new empty project.
func (w *Workspace) Create(_ context.Context, name, description string) (*store.Store, error) {
	now := time.Now().UTC()
	project := &models.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return w.host(project)
}

// Import opens a project from a document. A document without an id gets a
// new one; an already open project with the same id is replaced.
func (w *Workspace) Import(_ context.Context, doc *models.ProjectDocument) (*store.Store, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	err := store.RegisterDocumentModules(w.modules, doc)
	if err != nil {
		return nil, err
	}

	return w.host(&doc.Project)
}

// Open returns the store of an open project, loading it from persistence
// when needed.
func (w *Workspace) Open(ctx context.Context, id string) (*store.Store, error) {
	w.mu.RLock()
	s, ok := w.stores[id]
	w.mu.RUnlock()

	if ok {
		return s, nil
	}

	if w.persistence == nil {
		return nil, persistence.NewProjectError("Open", id, persistence.ErrProjectNotFound)
	}

	doc, err := w.persistence.ProjectByID(ctx, id)
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Loaded project", "project_id", id, "nodes", len(doc.Nodes))

	w.mu.Lock()
	defer w.mu.Unlock()

	// Another caller may have loaded it meanwhile.
	if s, ok := w.stores[id]; ok {
		return s, nil
	}

	err = store.RegisterDocumentModules(w.modules, doc)
	if err != nil {
		return nil, err
	}

	s, err = w.newStore(&doc.Project)
	if err != nil {
		return nil, err
	}

	w.stores[id] = s

	return s, nil
}

// Save persists the current state of an open project.
func (w *Workspace) Save(ctx context.Context, id string) (*models.ProjectDocument, error) {
	if w.persistence == nil {
		return nil, ErrNoPersistence
	}

	s, err := w.Open(ctx, id)
	if err != nil {
		return nil, err
	}

	doc := s.Document()

	err = w.persistence.SaveProject(ctx, doc)
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Saved project", "project_id", id)

	return doc, nil
}

// Delete closes the project and removes it from persistence.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	w.mu.Lock()
	_, open := w.stores[id]
	delete(w.stores, id)
	w.mu.Unlock()

	if w.persistence == nil {
		if !open {
			return persistence.NewProjectError("DeleteProject", id, persistence.ErrProjectNotFound)
		}

		return nil
	}

	return w.persistence.DeleteProject(ctx, id)
}

// List returns the known projects without their graphs. Open projects
// reflect their in-memory state. Most recently updated first.
func (w *Workspace) List(ctx context.Context) ([]*models.Project, error) {
	byID := make(map[string]*models.Project)

	if w.persistence != nil {
		docs, err := w.persistence.Projects(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}

		for _, doc := range docs {
			project := doc.Project
			byID[project.ID] = &project
		}
	}

	w.mu.RLock()
	for id, s := range w.stores {
		byID[id] = s.Project()
	}
	w.mu.RUnlock()

	projects := make([]*models.Project, 0, len(byID))
	for _, p := range byID {
		p.Nodes, p.Edges, p.Globals = nil, nil, nil
		projects = append(projects, p)
	}

	slices.SortFunc(projects, func(a, b *models.Project) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return projects, nil
}

func (w *Workspace) host(project *models.Project) (*store.Store, error) {
	s, err := w.newStore(project)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.stores[project.ID] = s
	w.mu.Unlock()

	return s, nil
}

func (w *Workspace) newStore(project *models.Project) (*store.Store, error) {
	var opts []store.Option

	var pub *publisher
	if w.publisher != nil {
		pub = &publisher{projectID: project.ID, bus: w.publisher, logger: w.logger}
		opts = append(opts, store.WithRunListener(pub))
	}

	s, err := store.New(project, w.modules, w.runner, w.logger, opts...)
	if err != nil {
		return nil, err
	}

	if pub != nil {
		pub.store = s
		s.Subscribe(pub.nodeChanged)
	}

	return s, nil
}
