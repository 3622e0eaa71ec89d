package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"filemanager/utils"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// LocalOptions configures the local filesystem backend.
type LocalOptions struct {
	BaseDir string `mapstructure:"base_dir"`
}

// LocalBackend stores entries on a filesystem through afero. Production
// uses a BasePathFs over the OS so nothing outside BaseDir is reachable;
// tests pass a MemMapFs.
type LocalBackend struct {
	fs      afero.Fs
	baseDir string

	// rename is swapped in tests to simulate cross-device moves.
	rename func(oldname, newname string) error
}

func NewLocalBackend(opts LocalOptions) (*LocalBackend, error) {
	if opts.BaseDir == "" {
		return nil, fmt.Errorf("local storage requires base_dir")
	}

	abs, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base dir %s: %w", opts.BaseDir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base dir %s: %w", abs, err)
	}

	return NewLocalBackendFs(afero.NewBasePathFs(afero.NewOsFs(), abs), abs), nil
}

// NewLocalBackendFs wraps an existing afero filesystem. baseDir is only
// used by Resolve.
func NewLocalBackendFs(fs afero.Fs, baseDir string) *LocalBackend {
	l := &LocalBackend{fs: fs, baseDir: baseDir}
	l.rename = fs.Rename
	return l
}

func (l *LocalBackend) Name() string { return "local" }

func (l *LocalBackend) Resolve(p string) string {
	return filepath.Join(l.baseDir, filepath.FromSlash(p))
}

func (l *LocalBackend) real(p string) string {
	return "/" + p
}

func (l *LocalBackend) ReadDir(ctx context.Context, p string) ([]EntryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.requireDir(p); err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(l.fs, l.real(p))
	if err != nil {
		return nil, mapFsError("read dir", p, err)
	}

	entries := make([]EntryInfo, 0, len(infos))
	for _, info := range infos {
		if IsHiddenName(info.Name()) {
			continue
		}
		entries = append(entries, entryFromInfo(path.Join(p, info.Name()), info))
	}
	sortEntries(entries)
	return entries, nil
}

func (l *LocalBackend) Stat(ctx context.Context, p string) (*EntryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := l.fs.Stat(l.real(p))
	if err != nil {
		return nil, mapFsError("stat", p, err)
	}
	e := entryFromInfo(p, info)
	return &e, nil
}

func (l *LocalBackend) Exists(ctx context.Context, p string) (bool, error) {
	_, err := l.Stat(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (l *LocalBackend) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	info, err := l.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if info.IsDir {
		return nil, fmt.Errorf("open %s: %w", p, ErrIsDirectory)
	}

	f, err := l.fs.Open(l.real(p))
	if err != nil {
		return nil, mapFsError("open", p, err)
	}
	return f, nil
}

// Write streams into a hidden temp file next to the target and renames it
// into place once the copy completes.
func (l *LocalBackend) Write(ctx context.Context, p string, r io.Reader) (int64, error) {
	if p == "" {
		return 0, fmt.Errorf("write root: %w", ErrIsDirectory)
	}
	if err := l.requireDir(parentOf(p)); err != nil {
		return 0, err
	}
	if info, err := l.fs.Stat(l.real(p)); err == nil && info.IsDir() {
		return 0, fmt.Errorf("write %s: %w", p, ErrIsDirectory)
	}

	tmp := path.Join(parentOf(p), uploadTempPrefix+uuid.NewString()+uploadTempSuffix)
	f, err := l.fs.OpenFile(l.real(tmp), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, mapFsError("create temp", tmp, err)
	}

	n, copyErr := io.Copy(f, newContextReader(ctx, r))
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = l.fs.Remove(l.real(tmp))
		if copyErr != nil {
			return n, fmt.Errorf("write %s: %w", p, ioError(copyErr))
		}
		return n, mapFsError("close", p, closeErr)
	}

	if err := l.fs.Rename(l.real(tmp), l.real(p)); err != nil {
		_ = l.fs.Remove(l.real(tmp))
		return n, mapFsError("commit", p, err)
	}
	return n, nil
}

func (l *LocalBackend) CreateDir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := l.fs.Stat(l.real(p)); err == nil {
		return fmt.Errorf("create dir %s: %w", p, ErrAlreadyExists)
	}
	if err := l.requireDir(parentOf(p)); err != nil {
		return err
	}
	if err := l.fs.Mkdir(l.real(p), 0o755); err != nil {
		return mapFsError("create dir", p, err)
	}
	return nil
}

func (l *LocalBackend) MkdirAll(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.fs.MkdirAll(l.real(p), 0o755); err != nil {
		return mapFsError("mkdir", p, err)
	}
	return nil
}

// Move renames in place. When source and destination sit on different
// devices the rename is replaced by copy, verify, delete, which is not
// atomic: a crash in between leaves both copies behind.
func (l *LocalBackend) Move(ctx context.Context, src, dst string) error {
	if err := l.checkTransfer(ctx, src, dst); err != nil {
		return err
	}

	err := l.rename(l.real(src), l.real(dst))
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return mapFsError("move", src, err)
	}

	utils.LogWarning(fmt.Sprintf("cross-device move %s -> %s, falling back to copy and delete", src, dst))
	if err := l.copyTree(ctx, src, dst); err != nil {
		return err
	}
	srcSize, err := l.treeSize(src)
	if err != nil {
		return err
	}
	dstSize, err := l.treeSize(dst)
	if err != nil {
		return err
	}
	if srcSize != dstSize {
		return fmt.Errorf("move %s: copied %d of %d bytes: %w", src, dstSize, srcSize, ErrIO)
	}
	if err := l.fs.RemoveAll(l.real(src)); err != nil {
		return mapFsError("remove moved source", src, err)
	}
	return nil
}

func (l *LocalBackend) Copy(ctx context.Context, src, dst string) error {
	if err := l.checkTransfer(ctx, src, dst); err != nil {
		return err
	}
	return l.copyTree(ctx, src, dst)
}

func (l *LocalBackend) Delete(ctx context.Context, p string) error {
	info, err := l.Stat(ctx, p)
	if err != nil {
		return err
	}
	if info.IsDir {
		return fmt.Errorf("delete %s: %w", p, ErrIsDirectory)
	}
	if err := l.fs.Remove(l.real(p)); err != nil {
		return mapFsError("delete", p, err)
	}
	return nil
}

func (l *LocalBackend) DeleteRecursive(ctx context.Context, p string) error {
	if _, err := l.Stat(ctx, p); err != nil {
		return err
	}
	if err := l.fs.RemoveAll(l.real(p)); err != nil {
		return mapFsError("delete", p, err)
	}
	return nil
}

// SweepStaleUploads removes upload temp files last touched before cutoff.
// They are left behind when the process dies mid upload.
func (l *LocalBackend) SweepStaleUploads(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := afero.Walk(l.fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || !IsUploadTemp(info.Name()) || !info.ModTime().Before(cutoff) {
			return nil
		}
		if rmErr := l.fs.Remove(p); rmErr != nil {
			utils.LogError("failed to remove stale upload "+p, rmErr)
			return nil
		}
		removed++
		return nil
	})
	return removed, err
}

func (l *LocalBackend) checkTransfer(ctx context.Context, src, dst string) error {
	if _, err := l.Stat(ctx, src); err != nil {
		return err
	}
	if _, err := l.fs.Stat(l.real(dst)); err == nil {
		return fmt.Errorf("%s: %w", dst, ErrAlreadyExists)
	}
	return l.requireDir(parentOf(dst))
}

func (l *LocalBackend) copyTree(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := l.fs.Stat(l.real(src))
	if err != nil {
		return mapFsError("copy", src, err)
	}

	if !info.IsDir() {
		f, err := l.fs.Open(l.real(src))
		if err != nil {
			return mapFsError("copy", src, err)
		}
		defer f.Close()
		_, err = l.Write(ctx, dst, f)
		return err
	}

	if err := l.fs.Mkdir(l.real(dst), 0o755); err != nil {
		return mapFsError("copy", dst, err)
	}
	children, err := afero.ReadDir(l.fs, l.real(src))
	if err != nil {
		return mapFsError("copy", src, err)
	}
	for _, child := range children {
		if IsUploadTemp(child.Name()) {
			continue
		}
		if err := l.copyTree(ctx, path.Join(src, child.Name()), path.Join(dst, child.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (l *LocalBackend) treeSize(p string) (int64, error) {
	var total int64
	err := afero.Walk(l.fs, l.real(p), func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && !IsUploadTemp(info.Name()) {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, mapFsError("size", p, err)
	}
	return total, nil
}

func (l *LocalBackend) requireDir(p string) error {
	info, err := l.fs.Stat(l.real(p))
	if err != nil {
		return mapFsError("stat", p, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", p, ErrNotDirectory)
	}
	return nil
}

func entryFromInfo(p string, info os.FileInfo) EntryInfo {
	e := EntryInfo{
		Name:    path.Base(p),
		Path:    p,
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}
	if p == "" {
		e.Name = ""
	}
	if !e.IsDir {
		e.Size = info.Size()
	}
	return e
}

func mapFsError(op, p string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%s %s: %w", op, p, ErrNotFound)
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%s %s: %w", op, p, ErrAlreadyExists)
	default:
		return fmt.Errorf("%s %s: %w", op, p, ioError(err))
	}
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return errors.Is(err, syscall.EXDEV)
}
