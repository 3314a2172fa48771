// Package postgresql provides PostgreSQL persistence for project documents.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	projectRepo *ProjectRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:          database,
		logger:      logger,
		projectRepo: NewProjectRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Projects returns all projects from the database.
func (p *Persistence) Projects(ctx context.Context) ([]*models.ProjectDocument, error) {
	return p.projectRepo.GetAll(ctx)
}

// ProjectByID returns a project by its ID.
func (p *Persistence) ProjectByID(ctx context.Context, id string) (*models.ProjectDocument, error) {
	return p.projectRepo.GetByID(ctx, id)
}

// SaveProject upserts a project document.
func (p *Persistence) SaveProject(ctx context.Context, doc *models.ProjectDocument) error {
	return p.projectRepo.Save(ctx, doc)
}

// DeleteProject removes a project.
func (p *Persistence) DeleteProject(ctx context.Context, id string) error {
	return p.projectRepo.Delete(ctx, id)
}

// ProjectsUsingModule returns the ids of the projects whose graph references moduleID.
func (p *Persistence) ProjectsUsingModule(ctx context.Context, moduleID string) ([]string, error) {
	return p.projectRepo.IDsByModule(ctx, moduleID)
}
