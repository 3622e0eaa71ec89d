package storage

import "errors"

// Backends wrap these with context, e.g.
//
//	return fmt.Errorf("stat %s: %w", p, storage.ErrNotFound)
//
// and callers match them with errors.Is to pick a status code.
var (
	// ErrNotFound indicates the entry does not exist.
	// HTTP: 404 Not Found
	ErrNotFound = errors.New("entry not found")

	// ErrAlreadyExists indicates a create, copy, move or rename target is taken.
	// Plain writes overwrite and never return this.
	// HTTP: 409 Conflict
	ErrAlreadyExists = errors.New("entry already exists")

	// ErrNotDirectory indicates a directory operation hit a file.
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory indicates a file operation hit a directory.
	ErrIsDirectory = errors.New("is a directory")

	// ErrIO is the opaque failure of the underlying store.
	// HTTP: 500 Internal Server Error
	ErrIO = errors.New("storage I/O failure")
)
