package store

import "errors"

var (
	// ErrRunSuperseded indicates a newer run claimed every node of the run before it finished.
	ErrRunSuperseded = errors.New("run superseded by a newer run")

	// ErrInvalidDocument indicates a project document failed schema validation.
	ErrInvalidDocument = errors.New("invalid project document")
)

// IsRunSuperseded checks if the run was cancelled by a newer one.
func IsRunSuperseded(err error) bool {
	return errors.Is(err, ErrRunSuperseded)
}

// IsInvalidDocument checks if the error reports a rejected project document.
func IsInvalidDocument(err error) bool {
	return errors.Is(err, ErrInvalidDocument)
}
