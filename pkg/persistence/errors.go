// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrProjectNotFound indicates a project was not found by the given identifier.
	ErrProjectNotFound = errors.New("project not found")

	// ErrInvalidProject indicates a project cannot be stored, e.g. it has no id.
	ErrInvalidProject = errors.New("invalid project")
)

// ProjectError wraps project-related errors with additional context.
type ProjectError struct {
	Op        string // Operation being performed (e.g., "ProjectByID", "SaveProject")
	ProjectID string
	Err       error
}

func (e *ProjectError) Error() string {
	return fmt.Sprintf("%s operation failed for project %s: %v", e.Op, e.ProjectID, e.Err)
}

func (e *ProjectError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for project errors.
func (e *ProjectError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewProjectError creates a new project error with context.
func NewProjectError(op, projectID string, err error) *ProjectError {
	return &ProjectError{
		Op:        op,
		ProjectID: projectID,
		Err:       err,
	}
}

// IsProjectNotFound checks if an error indicates a project was not found.
func IsProjectNotFound(err error) bool {
	return errors.Is(err, ErrProjectNotFound)
}

// IsInvalidProject checks if an error indicates a project was rejected.
func IsInvalidProject(err error) bool {
	return errors.Is(err, ErrInvalidProject)
}
