package services

import (
	"errors"
	"fmt"

	"filemanager/models"
	"filemanager/storage"
)

var (
	ErrInvalidPath = errors.New("invalid path")
	ErrOutOfScope  = errors.New("path outside permitted scope")
	ErrForbidden   = errors.New("insufficient permissions")

	// ErrNoCompany means a scoped actor has no company, so no scope root
	// can be granted.
	ErrNoCompany = fmt.Errorf("actor has no company: %w", ErrOutOfScope)

	ErrNotFound      = storage.ErrNotFound
	ErrAlreadyExists = storage.ErrAlreadyExists
	ErrIO            = storage.ErrIO
)

// PermissionError names the permission an actor lacked. It matches
// ErrForbidden under errors.Is.
type PermissionError struct {
	Operation models.OperationKind
	Missing   []models.Permission
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("operation %s requires %v", e.Operation, e.Missing)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrForbidden
}

func invalidPath(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidPath, fmt.Sprintf(format, args...))
}
