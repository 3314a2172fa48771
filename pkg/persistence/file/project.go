package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/persistence"
)

// ProjectRepository stores one JSON document per project under its root.
type ProjectRepository struct {
	root string
}

// NewProjectRepository creates a repository rooted at dir.
func NewProjectRepository(dir string) *ProjectRepository {
	return &ProjectRepository{root: dir}
}

// Projects returns all stored projects.
func (fp *Persistence) Projects(ctx context.Context) ([]*models.ProjectDocument, error) {
	return fp.projectRepo.GetAll(ctx)
}

// ProjectByID returns the project document stored under id.
func (fp *Persistence) ProjectByID(ctx context.Context, id string) (*models.ProjectDocument, error) {
	return fp.projectRepo.GetByID(ctx, id)
}

// SaveProject writes the document, replacing a previous version.
func (fp *Persistence) SaveProject(ctx context.Context, doc *models.ProjectDocument) error {
	return fp.projectRepo.Save(ctx, doc)
}

// DeleteProject removes the stored document. Deleting an unknown project is not an error.
func (fp *Persistence) DeleteProject(ctx context.Context, id string) error {
	return fp.projectRepo.Delete(ctx, id)
}

// GetAll returns every project, most recently updated first.
func (r *ProjectRepository) GetAll(ctx context.Context) ([]*models.ProjectDocument, error) {
	root := os.DirFS(r.root)

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list project files: %w", err)
	}

	projects := make([]*models.ProjectDocument, 0, len(files))

	for _, file := range files {
		doc, err := r.GetByID(ctx, strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		projects = append(projects, doc)
	}

	slices.SortFunc(projects, func(a, b *models.ProjectDocument) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	return projects, nil
}

// GetByID reads one project document.
func (r *ProjectRepository) GetByID(_ context.Context, id string) (*models.ProjectDocument, error) {
	if !validID(id) {
		return nil, persistence.NewProjectError("ProjectByID", id, persistence.ErrProjectNotFound)
	}

	data, err := os.ReadFile(r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewProjectError("ProjectByID", id, persistence.ErrProjectNotFound)
		}

		return nil, fmt.Errorf("failed to read project %s: %w", id, err)
	}

	var doc models.ProjectDocument

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode project %s: %w", id, err)
	}

	return &doc, nil
}

// Save writes the document to <root>/<id>.json.
func (r *ProjectRepository) Save(_ context.Context, doc *models.ProjectDocument) error {
	if doc == nil || !validID(doc.ID) {
		id := ""
		if doc != nil {
			id = doc.ID
		}

		return persistence.NewProjectError("SaveProject", id, persistence.ErrInvalidProject)
	}

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}

	err := os.MkdirAll(r.root, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	err = os.WriteFile(r.path(doc.ID), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}

	return nil
}

// Delete removes the project file.
func (r *ProjectRepository) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return nil
	}

	err := os.Remove(r.path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}

	return nil
}

func (r *ProjectRepository) path(id string) string {
	return path.Join(r.root, id+".json")
}

// validID rejects ids that would escape the project directory.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}
