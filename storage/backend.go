package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
)

// Backend is a hierarchical byte store addressed by slash separated paths
// relative to the backend root. Paths handed to a Backend are already
// normalized; an empty path is the backend root.
//
// Every method is atomic for a single entry only. Multi entry operations
// (recursive copy, recursive delete, object store moves) can leave partial
// state behind when they fail midway.
type Backend interface {
	// Name identifies the backend in logs ("local", "b2", "s3").
	Name() string

	// Resolve maps a relative path to the backend's own address for it
	// (a filesystem path or an object key). It performs no I/O.
	Resolve(p string) string

	// ReadDir returns the visible entries of one directory, sorted by name.
	ReadDir(ctx context.Context, p string) ([]EntryInfo, error)
	Stat(ctx context.Context, p string) (*EntryInfo, error)
	Exists(ctx context.Context, p string) (bool, error)

	Open(ctx context.Context, p string) (io.ReadCloser, error)

	// Write stores r at p, replacing any existing file. The parent
	// directory must exist. Readers never observe a partially written file.
	Write(ctx context.Context, p string, r io.Reader) (int64, error)

	// CreateDir creates a single directory and fails with ErrAlreadyExists
	// when anything exists at p.
	CreateDir(ctx context.Context, p string) error
	// MkdirAll creates p and any missing parents. Existing directories are fine.
	MkdirAll(ctx context.Context, p string) error

	// Move and Copy fail with ErrAlreadyExists when dst exists. Both
	// handle directories recursively.
	Move(ctx context.Context, src, dst string) error
	Copy(ctx context.Context, src, dst string) error

	// Delete removes a single file.
	Delete(ctx context.Context, p string) error
	// DeleteRecursive removes a file or a directory with all its contents.
	DeleteRecursive(ctx context.Context, p string) error
}

// EntryInfo describes a file or directory.
type EntryInfo struct {
	Name    string
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Listing is a one level directory listing split by entry type.
type Listing struct {
	Directories []string `json:"directories"`
	Files       []string `json:"files"`
}

const (
	uploadTempPrefix = ".upload-"
	uploadTempSuffix = ".tmp"
	dirMarker        = ".keep"
)

// IsHiddenName reports whether an entry is storage bookkeeping that is
// never shown to clients.
func IsHiddenName(name string) bool {
	if name == dirMarker {
		return true
	}
	return IsUploadTemp(name)
}

// IsUploadTemp reports whether name is an in-flight upload.
func IsUploadTemp(name string) bool {
	return strings.HasPrefix(name, uploadTempPrefix) && strings.HasSuffix(name, uploadTempSuffix)
}

// List reads one directory level of p.
func List(ctx context.Context, b Backend, p string) (*Listing, error) {
	entries, err := b.ReadDir(ctx, p)
	if err != nil {
		return nil, err
	}

	listing := &Listing{Directories: []string{}, Files: []string{}}
	for _, e := range entries {
		if e.IsDir {
			listing.Directories = append(listing.Directories, e.Name)
		} else {
			listing.Files = append(listing.Files, e.Name)
		}
	}
	sort.Strings(listing.Directories)
	sort.Strings(listing.Files)
	return listing, nil
}

// ReadAll reads the whole file at p into memory. Use Open for anything
// that may be large.
func ReadAll(ctx context.Context, b Backend, p string) ([]byte, error) {
	rc, err := b.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(newContextReader(ctx, rc))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, ioError(err))
	}
	return data, nil
}

// IsWithin reports whether p equals dir or is nested below it.
func IsWithin(dir, p string) bool {
	if dir == "" || dir == p {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}

func parentOf(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func sortEntries(entries []EntryInfo) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
}

// ioError tags err as ErrIO unless it already carries a storage sentinel
// or is a context error.
func ioError(err error) error {
	if err == nil {
		return nil
	}
	if isSentinel(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

func isSentinel(err error) bool {
	for _, s := range []error{ErrNotFound, ErrAlreadyExists, ErrNotDirectory, ErrIsDirectory, ErrIO} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
