// Package persistence provides the storage abstraction for project documents.
package persistence

import (
	"context"

	"github.com/dukex/dataflow/pkg/models"
)

// Persistence stores project documents. Implementations return an error
// wrapping ErrProjectNotFound for unknown ids.
type Persistence interface {
	Projects(ctx context.Context) ([]*models.ProjectDocument, error)
	ProjectByID(ctx context.Context, id string) (*models.ProjectDocument, error)
	SaveProject(ctx context.Context, doc *models.ProjectDocument) error
	DeleteProject(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
