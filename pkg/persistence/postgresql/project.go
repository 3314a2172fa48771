package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/persistence"
	"github.com/lib/pq"
)

// ProjectRepository handles project-related database operations.
type ProjectRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db *sql.DB, logger *slog.Logger) *ProjectRepository {
	return &ProjectRepository{db: db, logger: logger}
}

// GetAll returns all projects, most recently updated first.
func (r *ProjectRepository) GetAll(ctx context.Context) ([]*models.ProjectDocument, error) {
	query := `
		SELECT document
		FROM projects
		ORDER BY updated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}

	defer func(ctx context.Context, r *ProjectRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	projects := make([]*models.ProjectDocument, 0)

	for rows.Next() {
		var raw []byte

		err := rows.Scan(&raw)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}

		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}

		projects = append(projects, doc)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}

	return projects, nil
}

// GetByID returns a project by its ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.ProjectDocument, error) {
	var raw []byte

	err := r.db.QueryRowContext(ctx, "SELECT document FROM projects WHERE id = $1", id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewProjectError("ProjectByID", id, persistence.ErrProjectNotFound)
		}

		return nil, fmt.Errorf("failed to query project %s: %w", id, err)
	}

	return decode(raw)
}

// Save inserts the document or replaces the stored one.
func (r *ProjectRepository) Save(ctx context.Context, doc *models.ProjectDocument) error {
	if doc == nil || doc.ID == "" {
		return persistence.NewProjectError("SaveProject", "", persistence.ErrInvalidProject)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	document, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	query := `
		INSERT INTO projects (id, name, description, document, module_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , document = EXCLUDED.document
		  , module_ids = EXCLUDED.module_ids
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		doc.ID,
		doc.Name,
		doc.Description,
		document,
		pq.Array(moduleIDs(doc)),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save project %s: %w", doc.ID, err)
	}

	r.logger.DebugContext(ctx, "project saved", "project_id", doc.ID)

	return nil
}

// Delete removes a project. Deleting an unknown project is not an error.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}

	return nil
}

// IDsByModule returns the ids of projects with a node of the given module.
func (r *ProjectRepository) IDsByModule(ctx context.Context, moduleID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM projects WHERE $1 = ANY(module_ids) ORDER BY id", moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects by module: %w", err)
	}

	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)

	for rows.Next() {
		var id string

		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func decode(raw []byte) (*models.ProjectDocument, error) {
	var doc models.ProjectDocument

	err := json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal project document: %w", err)
	}

	return &doc, nil
}

func moduleIDs(doc *models.ProjectDocument) []string {
	ids := make([]string, 0, len(doc.Nodes))
	for _, node := range doc.Nodes {
		if !slices.Contains(ids, node.ModuleID) {
			ids = append(ids, node.ModuleID)
		}
	}

	slices.Sort(ids)

	return ids
}
