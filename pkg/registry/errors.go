package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleNotFound indicates no module is registered under the given id.
	ErrModuleNotFound = errors.New("module not found")

	// ErrDuplicateModule indicates the id is already taken by a built-in module.
	ErrDuplicateModule = errors.New("module id is taken by a built-in module")

	// ErrImmutableModule indicates an attempt to change or remove a built-in module.
	ErrImmutableModule = errors.New("built-in modules cannot be changed or removed")

	// ErrInvalidModule indicates the definition failed validation or its code does not compile.
	ErrInvalidModule = errors.New("invalid module definition")
)

// ModuleError wraps registry errors with the operation and module id.
type ModuleError struct {
	Op       string // Operation being performed (e.g., "Register", "Remove")
	ModuleID string
	Err      error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("%s failed for module %s: %v", e.Op, e.ModuleID, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for module errors.
func (e *ModuleError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newModuleError(op, moduleID string, err error) *ModuleError {
	return &ModuleError{Op: op, ModuleID: moduleID, Err: err}
}

// IsModuleNotFound checks if the error indicates a missing module.
func IsModuleNotFound(err error) bool {
	return errors.Is(err, ErrModuleNotFound)
}

// IsDuplicateModule checks if the error indicates a clash with a built-in id.
func IsDuplicateModule(err error) bool {
	return errors.Is(err, ErrDuplicateModule)
}

// IsImmutableModule checks if the error indicates a built-in module was targeted.
func IsImmutableModule(err error) bool {
	return errors.Is(err, ErrImmutableModule)
}

// IsInvalidModule checks if the error indicates a rejected definition.
func IsInvalidModule(err error) bool {
	return errors.Is(err, ErrInvalidModule)
}
