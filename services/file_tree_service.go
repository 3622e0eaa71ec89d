package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"filemanager/models"
	"filemanager/storage"
	"filemanager/utils"

	"github.com/gabriel-vasile/mimetype"
)

var ErrTooLarge = errors.New("file exceeds upload size limit")

// sniffLength is how much of a file is read to detect its content type.
const sniffLength = 3072

type FileTreeOptions struct {
	TreeMaxDepth  int
	TreeMaxNodes  int
	MaxUploadSize int64 // bytes, zero disables the limit
}

// FileTreeService runs every file manager operation through the same
// pipeline: validate all paths, confine them to the actor's scope, check
// the operation's permission, touch storage, then audit state changes.
type FileTreeService struct {
	backend storage.Backend
	guard   *PathGuard
	scopes  *ScopeResolver
	gate    *PermissionGate
	audit   AuditSink
	opts    FileTreeOptions
}

func NewFileTreeService(backend storage.Backend, guard *PathGuard, scopes *ScopeResolver, gate *PermissionGate, audit AuditSink, opts FileTreeOptions) *FileTreeService {
	return &FileTreeService{
		backend: backend,
		guard:   guard,
		scopes:  scopes,
		gate:    gate,
		audit:   audit,
		opts:    opts,
	}
}

type ListResult struct {
	Path        string   `json:"path"`
	Directories []string `json:"directories"`
	Files       []string `json:"files"`
}

// ItemResult is the outcome of one entry of a batch operation.
type ItemResult struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// BatchResult reports a multi item operation. Items are independent:
// a failure never rolls back items that already succeeded.
type BatchResult struct {
	Succeeded []ItemResult `json:"succeeded"`
	Failed    []ItemResult `json:"failed"`
}

func newBatchResult() *BatchResult {
	return &BatchResult{Succeeded: []ItemResult{}, Failed: []ItemResult{}}
}

// UploadItem is one file of a directory upload. RelativePath may contain
// folders, which are created as needed.
type UploadItem struct {
	RelativePath string
	Size         int64
	Open         func() (io.ReadCloser, error)
}

// FileContent is an open file ready to be streamed to a client. The
// caller must close Reader.
type FileContent struct {
	Name        string
	Path        string
	Size        int64
	ModTime     time.Time
	ContentType string
	Reader      io.ReadCloser
}

// List returns one level of rawPath, or of the actor's scope root when
// rawPath is empty.
func (s *FileTreeService) List(ctx context.Context, actor *models.Actor, rawPath string) (*ListResult, error) {
	p, scope, err := s.resolveDir(ctx, actor, rawPath)
	if err != nil {
		return nil, err
	}
	if err := s.check(actor, models.OpList, scope, p); err != nil {
		return nil, err
	}

	listing, err := storage.List(ctx, s.backend, p.Relative)
	if err != nil {
		return nil, mapStorageError(err, "folder")
	}
	return &ListResult{Path: p.Relative, Directories: listing.Directories, Files: listing.Files}, nil
}

// Tree returns the actor's whole scope as a single folder node. Large or
// deep trees come back with Truncated nodes instead of failing.
func (s *FileTreeService) Tree(ctx context.Context, actor *models.Actor) (*models.FileSystemNode, error) {
	scope, err := s.scopes.ResolveScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.check(actor, models.OpList, scope, scope); err != nil {
		return nil, err
	}

	node, err := storage.BuildTree(ctx, s.backend, scope.Relative, storage.TreeOptions{
		MaxDepth: s.opts.TreeMaxDepth,
		MaxNodes: s.opts.TreeMaxNodes,
		Visible:  func(p string) bool { return storage.IsWithin(scope.Relative, p) },
	})
	if err != nil {
		return nil, mapStorageError(err, "folder")
	}
	return node, nil
}

// OpenFile opens a file for download or inline viewing. Views get a
// content type sniffed from the first bytes of the file.
func (s *FileTreeService) OpenFile(ctx context.Context, actor *models.Actor, op models.OperationKind, rawDir, name string) (*FileContent, error) {
	if op != models.OpDownload && op != models.OpView {
		return nil, fmt.Errorf("open file as %s: %w", op, ErrForbidden)
	}

	target, scope, err := s.resolveEntry(ctx, actor, rawDir, name)
	if err != nil {
		return nil, err
	}
	if err := s.check(actor, op, scope, target); err != nil {
		return nil, err
	}

	info, err := s.backend.Stat(ctx, target.Relative)
	if err != nil {
		return nil, mapStorageError(err, "file")
	}
	if info.IsDir {
		return nil, fmt.Errorf("%s is a folder: %w", target.Relative, ErrNotFound)
	}

	rc, err := s.backend.Open(ctx, target.Relative)
	if err != nil {
		return nil, mapStorageError(err, "file")
	}

	content := &FileContent{
		Name:        path.Base(target.Relative),
		Path:        target.Relative,
		Size:        info.Size,
		ModTime:     info.ModTime,
		ContentType: "application/octet-stream",
		Reader:      rc,
	}
	if op == models.OpView {
		if err := sniffContentType(content); err != nil {
			rc.Close()
			return nil, mapStorageError(err, "file")
		}
	}
	return content, nil
}

func sniffContentType(content *FileContent) error {
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(content.Reader, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}
	head = head[:n]

	content.ContentType = mimetype.Detect(head).String()
	content.Reader = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), content.Reader), content.Reader}
	return nil
}

// FolderArchive is an authorized folder download that has not started yet.
type FolderArchive struct {
	Name string
	Path string

	backend storage.Backend
}

// PrepareFolderDownload runs every check up front so the caller can still
// report an error before any archive bytes are written.
func (s *FileTreeService) PrepareFolderDownload(ctx context.Context, actor *models.Actor, rawDir, name string) (*FolderArchive, error) {
	target, scope, err := s.resolveEntry(ctx, actor, rawDir, name)
	if err != nil {
		return nil, err
	}
	if err := s.check(actor, models.OpDownload, scope, target); err != nil {
		return nil, err
	}

	info, err := s.backend.Stat(ctx, target.Relative)
	if err != nil {
		return nil, mapStorageError(err, "folder")
	}
	if !info.IsDir {
		return nil, fmt.Errorf("%s is a file: %w", target.Relative, ErrNotFound)
	}

	return &FolderArchive{
		Name:    path.Base(target.Relative),
		Path:    target.Relative,
		backend: s.backend,
	}, nil
}

// Stream writes the zip archive to w, stopping when ctx is cancelled.
func (a *FolderArchive) Stream(ctx context.Context, w io.Writer) (int, error) {
	return storage.ArchiveZip(ctx, a.backend, a.Path, w)
}

// Upload stores r as name inside rawDir, replacing an existing file.
func (s *FileTreeService) Upload(ctx context.Context, actor *models.Actor, meta models.RequestMeta, rawDir, name string, size int64, r io.Reader) (PathSpec, error) {
	target, scope, err := s.resolveEntry(ctx, actor, rawDir, name)
	if err != nil {
		return PathSpec{}, err
	}
	if err := s.check(actor, models.OpUpload, scope, target); err != nil {
		return PathSpec{}, err
	}
	if err := s.writeLimited(ctx, target, size, r); err != nil {
		return PathSpec{}, err
	}

	s.record(ctx, actor, models.OpUpload, meta, target.Relative)
	return target, nil
}

// UploadDirectory stores every item below rawDir, creating intermediate
// folders. Items fail independently.
func (s *FileTreeService) UploadDirectory(ctx context.Context, actor *models.Actor, meta models.RequestMeta, rawDir string, items []UploadItem) (*BatchResult, error) {
	dir, scope, err := s.resolveDir(ctx, actor, rawDir)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, invalidPath("no files to upload")
	}
	if err := s.check(actor, models.OpUpload, scope, dir); err != nil {
		return nil, err
	}

	result := newBatchResult()
	var written []string
	for _, item := range items {
		target, err := s.uploadItem(ctx, dir, item)
		if err != nil {
			utils.LogWarningf("directory upload item %q failed: %v", item.RelativePath, err)
			result.Failed = append(result.Failed, ItemResult{Name: item.RelativePath, Error: Describe(err)})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		result.Succeeded = append(result.Succeeded, ItemResult{Name: item.RelativePath, Path: target.Relative})
		written = append(written, target.Relative)
	}

	if len(written) > 0 {
		s.record(ctx, actor, models.OpUpload, meta, written...)
	}
	return result, nil
}

func (s *FileTreeService) uploadItem(ctx context.Context, dir PathSpec, item UploadItem) (PathSpec, error) {
	rel, err := s.guard.Normalize(item.RelativePath)
	if err != nil {
		return PathSpec{}, err
	}
	target, err := s.guard.Normalize(path.Join(dir.Relative, rel.Relative))
	if err != nil {
		return PathSpec{}, err
	}

	if parent := path.Dir(target.Relative); parent != dir.Relative && parent != "." {
		if err := s.backend.MkdirAll(ctx, parent); err != nil {
			return PathSpec{}, mapStorageError(err, "folder")
		}
	}

	rc, err := item.Open()
	if err != nil {
		return PathSpec{}, fmt.Errorf("open upload part: %w", ErrIO)
	}
	defer rc.Close()

	if err := s.writeLimited(ctx, target, item.Size, rc); err != nil {
		return PathSpec{}, err
	}
	return target, nil
}

func (s *FileTreeService) writeLimited(ctx context.Context, target PathSpec, size int64, r io.Reader) error {
	limit := s.opts.MaxUploadSize
	if err := utils.ValidateFileSize(size, limit); err != nil {
		return fmt.Errorf("%v: %w", err, ErrTooLarge)
	}

	var limited *sizeLimitReader
	if limit > 0 {
		limited = &sizeLimitReader{r: r, limit: limit}
		r = limited
	}
	if _, err := s.backend.Write(ctx, target.Relative, r); err != nil {
		if limited != nil && limited.exceeded {
			return fmt.Errorf("%s: %w", target.Relative, ErrTooLarge)
		}
		return mapStorageError(err, "folder")
	}
	return nil
}

// sizeLimitReader fails the read that goes past limit. Backends abandon a
// write whose reader fails, so an oversized upload never replaces the
// existing file.
type sizeLimitReader struct {
	r        io.Reader
	limit    int64
	read     int64
	exceeded bool
}

func (l *sizeLimitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		l.exceeded = true
		return n, fmt.Errorf("upload passed %d bytes: %w", l.limit, ErrTooLarge)
	}
	return n, err
}

// CreateFolder creates name inside rawDir. An existing entry of that name
// is an error; nothing is merged.
func (s *FileTreeService) CreateFolder(ctx context.Context, actor *models.Actor, meta models.RequestMeta, rawDir, name string) (PathSpec, error) {
	if err := utils.ValidateFolderName(name); err != nil {
		return PathSpec{}, invalidPath("%v", err)
	}
	target, scope, err := s.resolveEntry(ctx, actor, rawDir, name)
	if err != nil {
		return PathSpec{}, err
	}
	if err := s.check(actor, models.OpCreateFolder, scope, target); err != nil {
		return PathSpec{}, err
	}

	if err := s.backend.CreateDir(ctx, target.Relative); err != nil {
		return PathSpec{}, mapStorageError(err, "parent folder")
	}

	s.record(ctx, actor, models.OpCreateFolder, meta, target.Relative)
	return target, nil
}

func (s *FileTreeService) DeleteFile(ctx context.Context, actor *models.Actor, meta models.RequestMeta, rawDir, name string) error {
	return s.deleteEntry(ctx, actor, meta, rawDir, name, false)
}

// DeleteFolder removes a folder and everything in it. There is no trash.
func (s *FileTreeService) DeleteFolder(ctx context.Context, actor *models.Actor, meta models.RequestMeta, rawDir, name string) error {
	return s.deleteEntry(ctx, actor, meta, rawDir, name, true)
}

func (s *FileTreeService) deleteEntry(ctx context.Context, actor *models.Actor, meta models.RequestMeta, rawDir, name string, folder bool) error {
	target, scope, err := s.resolveEntry(ctx, actor, rawDir, name)
	if err != nil {
		return err
	}
	if err := s.check(actor, models.OpDelete, scope, target); err != nil {
		return err
	}

	kind := "file"
	if folder {
		kind = "folder"
	}
	info, err := s.backend.Stat(ctx, target.Relative)
	if err != nil {
		return mapStorageError(err, kind)
	}
	if info.IsDir != folder {
		return fmt.Errorf("%s is not a %s: %w", target.Relative, kind, ErrNotFound)
	}

	if folder {
		err = s.backend.DeleteRecursive(ctx, target.Relative)
	} else {
		err = s.backend.Delete(ctx, target.Relative)
	}
	if err != nil {
		return mapStorageError(err, kind)
	}

	s.record(ctx, actor, models.OpDelete, meta, target.Relative)
	return nil
}

// Rename renames an entry within its folder. Files keep their extension:
// "report.pdf" renamed to "summary" becomes "summary.pdf". Folders take
// the new name literally.
func (s *FileTreeService) Rename(ctx context.Context, actor *models.Actor, meta models.RequestMeta, rawDir, oldName, newName string, kind models.NodeType) (PathSpec, error) {
	if kind != models.NodeFile && kind != models.NodeFolder {
		return PathSpec{}, invalidPath("type must be %q or %q", models.NodeFile, models.NodeFolder)
	}
	normalizedNew, err := s.guard.NormalizeName(newName)
	if err != nil {
		return PathSpec{}, err
	}

	finalName := normalizedNew
	if kind == models.NodeFile {
		finalName = RenamedFileName(oldName, normalizedNew)
	} else if err := utils.ValidateFolderName(normalizedNew); err != nil {
		return PathSpec{}, invalidPath("%v", err)
	}

	src, scope, err := s.resolveEntry(ctx, actor, rawDir, oldName)
	if err != nil {
		return PathSpec{}, err
	}
	dst, err := s.guard.Join(PathSpec{Relative: path.Dir(src.Relative)}, finalName)
	if err != nil {
		return PathSpec{}, err
	}
	if err := s.check(actor, models.OpRename, scope, src, dst); err != nil {
		return PathSpec{}, err
	}

	info, err := s.backend.Stat(ctx, src.Relative)
	if err != nil {
		return PathSpec{}, mapStorageError(err, string(kind))
	}
	if info.IsDir != (kind == models.NodeFolder) {
		return PathSpec{}, fmt.Errorf("%s is not a %s: %w", src.Relative, kind, ErrNotFound)
	}
	if dst.Relative == src.Relative {
		return dst, nil
	}

	if err := s.backend.Move(ctx, src.Relative, dst.Relative); err != nil {
		return PathSpec{}, mapStorageError(err, string(kind))
	}

	s.record(ctx, actor, models.OpRename, meta, src.Relative, dst.Relative)
	return dst, nil
}

// RenamedFileName applies the extension rule of Rename. A new name that
// already ends in the old extension is not given a second one.
func RenamedFileName(oldName, newName string) string {
	ext := path.Ext(oldName)
	if ext == "" || ext == oldName {
		return newName
	}
	if strings.EqualFold(path.Ext(newName), ext) && len(newName) > len(ext) {
		newName = strings.TrimSuffix(newName, path.Ext(newName))
	}
	return newName + ext
}

// Copy copies name (file or folder) from rawSrcDir into rawDstDir.
func (s *FileTreeService) Copy(ctx context.Context, actor *models.Actor, meta models.RequestMeta, name, rawSrcDir, rawDstDir string) (PathSpec, error) {
	return s.transfer(ctx, actor, meta, models.OpCopy, name, rawSrcDir, rawDstDir)
}

// Move moves name (file or folder) from rawSrcDir into rawDstDir.
func (s *FileTreeService) Move(ctx context.Context, actor *models.Actor, meta models.RequestMeta, name, rawSrcDir, rawDstDir string) (PathSpec, error) {
	return s.transfer(ctx, actor, meta, models.OpMove, name, rawSrcDir, rawDstDir)
}

// CopyBatch copies each name in turn. It is a loop of single copies, not a
// transaction: items copied before a failure stay copied.
func (s *FileTreeService) CopyBatch(ctx context.Context, actor *models.Actor, meta models.RequestMeta, names []string, rawSrcDir, rawDstDir string) (*BatchResult, error) {
	if len(names) == 0 {
		return nil, invalidPath("no files to copy")
	}

	// scope and permission problems fail the whole batch, not each item
	srcDir, scope, err := s.resolveDir(ctx, actor, rawSrcDir)
	if err != nil {
		return nil, err
	}
	dstDir, err := s.guard.NormalizeOr(rawDstDir, scope)
	if err != nil {
		return nil, err
	}
	if err := s.check(actor, models.OpCopy, scope, srcDir, dstDir); err != nil {
		return nil, err
	}

	result := newBatchResult()
	for _, name := range names {
		dst, err := s.transfer(ctx, actor, meta, models.OpCopy, name, srcDir.Relative, dstDir.Relative)
		if err != nil {
			result.Failed = append(result.Failed, ItemResult{Name: name, Error: Describe(err)})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		result.Succeeded = append(result.Succeeded, ItemResult{Name: name, Path: dst.Relative})
	}
	return result, nil
}

func (s *FileTreeService) transfer(ctx context.Context, actor *models.Actor, meta models.RequestMeta, op models.OperationKind, name, rawSrcDir, rawDstDir string) (PathSpec, error) {
	src, scope, err := s.resolveEntry(ctx, actor, rawSrcDir, name)
	if err != nil {
		return PathSpec{}, err
	}
	dstDir, err := s.guard.NormalizeOr(rawDstDir, scope)
	if err != nil {
		return PathSpec{}, err
	}
	dst, err := s.guard.Join(dstDir, path.Base(src.Relative))
	if err != nil {
		return PathSpec{}, err
	}
	if dst.Relative != src.Relative && storage.IsWithin(src.Relative, dst.Relative) {
		return PathSpec{}, invalidPath("cannot %s a folder into itself", op)
	}
	if err := s.check(actor, op, scope, src, dst); err != nil {
		return PathSpec{}, err
	}

	if op == models.OpMove {
		err = s.backend.Move(ctx, src.Relative, dst.Relative)
	} else {
		err = s.backend.Copy(ctx, src.Relative, dst.Relative)
	}
	if err != nil {
		return PathSpec{}, mapStorageError(err, "file")
	}

	s.record(ctx, actor, op, meta, src.Relative, dst.Relative)
	return dst, nil
}

// ProvisionCompanyFolder creates the folder a company's employees are
// scoped to. Unlike CreateFolder it succeeds when the folder exists.
func (s *FileTreeService) ProvisionCompanyFolder(ctx context.Context, companyName string) (PathSpec, bool, error) {
	folder, err := s.scopes.CompanyFolder(companyName)
	if err != nil {
		return PathSpec{}, false, err
	}

	if err := s.backend.MkdirAll(ctx, s.scopes.Root().Relative); err != nil {
		return PathSpec{}, false, mapStorageError(err, "folder")
	}
	err = s.backend.CreateDir(ctx, folder.Relative)
	if errors.Is(err, storage.ErrAlreadyExists) {
		info, statErr := s.backend.Stat(ctx, folder.Relative)
		if statErr == nil && info.IsDir {
			return folder, false, nil
		}
	}
	if err != nil {
		return PathSpec{}, false, mapStorageError(err, "folder")
	}
	return folder, true, nil
}

// resolveDir normalizes a folder argument, defaulting to the actor's scope
// root, and returns it with the scope.
func (s *FileTreeService) resolveDir(ctx context.Context, actor *models.Actor, rawDir string) (PathSpec, PathSpec, error) {
	var dir PathSpec
	var err error
	if strings.TrimSpace(rawDir) != "" {
		if dir, err = s.guard.Normalize(rawDir); err != nil {
			return PathSpec{}, PathSpec{}, err
		}
	}

	scope, err := s.scopes.ResolveScope(ctx, actor)
	if err != nil {
		return PathSpec{}, PathSpec{}, err
	}
	if strings.TrimSpace(rawDir) == "" {
		dir = scope
	}
	return dir, scope, nil
}

// resolveEntry normalizes a folder plus entry name and returns the entry
// path with the scope.
func (s *FileTreeService) resolveEntry(ctx context.Context, actor *models.Actor, rawDir, name string) (PathSpec, PathSpec, error) {
	if _, err := s.guard.NormalizeName(name); err != nil {
		return PathSpec{}, PathSpec{}, err
	}
	dir, scope, err := s.resolveDir(ctx, actor, rawDir)
	if err != nil {
		return PathSpec{}, PathSpec{}, err
	}
	target, err := s.guard.Join(dir, name)
	if err != nil {
		return PathSpec{}, PathSpec{}, err
	}
	return target, scope, nil
}

// check confines every path to scope and then asks the gate. Entries that
// are mutated must lie strictly below the scope root: the root itself can
// be listed but never deleted, renamed or moved.
func (s *FileTreeService) check(actor *models.Actor, op models.OperationKind, scope PathSpec, paths ...PathSpec) error {
	for _, p := range paths {
		if !IsWithinScope(scope, p) {
			utils.LogWarningf("actor %s denied %s on %q: outside scope %q", actor.ID, op, p.Relative, scope.Relative)
			return fmt.Errorf("%s: %w", p.Relative, ErrOutOfScope)
		}
		if isMutation(op) && p.Relative == scope.Relative {
			utils.LogWarningf("actor %s denied %s on scope root %q", actor.ID, op, scope.Relative)
			return fmt.Errorf("%s is the scope root: %w", p.Relative, ErrOutOfScope)
		}
	}
	return s.gate.Authorize(actor, op)
}

func isMutation(op models.OperationKind) bool {
	switch op {
	case models.OpDelete, models.OpRename, models.OpMove:
		return true
	}
	return false
}

// record appends an audit entry. The operation already happened, so a
// failed append is logged and otherwise ignored.
func (s *FileTreeService) record(ctx context.Context, actor *models.Actor, op models.OperationKind, meta models.RequestMeta, paths ...string) {
	if s.audit == nil {
		return
	}
	rec := NewAuditRecord(actor, op, meta, paths...)
	if err := s.audit.Append(context.WithoutCancel(ctx), rec); err != nil {
		utils.LogError(fmt.Sprintf("failed to audit %s by %s on %v", op, actor.ID, paths), err)
	}
}

// mapStorageError keeps storage sentinels and folds type mismatches into
// not found, naming what was expected.
func mapStorageError(err error, kind string) error {
	switch {
	case errors.Is(err, storage.ErrIsDirectory), errors.Is(err, storage.ErrNotDirectory):
		return fmt.Errorf("%s not found: %v: %w", kind, err, ErrNotFound)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s not found: %w", kind, err)
	default:
		return err
	}
}

// Describe returns the stable client facing message for err. Scope and
// permission failures share one message.
func Describe(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPath):
		return "Invalid path"
	case errors.Is(err, ErrOutOfScope), errors.Is(err, ErrForbidden):
		return "Permission denied"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrAlreadyExists):
		return "Already exists"
	case errors.Is(err, ErrTooLarge):
		return "File too large"
	default:
		return "Storage operation failed"
	}
}
