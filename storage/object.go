package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// ObjectClient is the minimal flat key/value surface an object store must
// provide. Keys use "/" as the delimiter.
type ObjectClient interface {
	// List returns objects under prefix. Unless recursive is set, keys
	// below the next "/" are folded into the returned common prefixes,
	// each ending in "/".
	List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, []string, error)
	// Head returns ErrNotFound for a missing key.
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader) error
	CopyObject(ctx context.Context, srcKey, dstKey string) error
	Remove(ctx context.Context, key string) error
}

// ObjectBackend maps the hierarchical Backend contract onto an object
// store. Directories are implied by key prefixes; empty directories are
// kept alive with a "<dir>/.keep" marker object.
//
// Object stores have no rename, so Move is Copy followed by
// DeleteRecursive. A failure between the two leaves both trees in place.
type ObjectBackend struct {
	name   string
	client ObjectClient
	prefix string
}

func NewObjectBackend(name string, client ObjectClient, prefix string) *ObjectBackend {
	return &ObjectBackend{
		name:   name,
		client: client,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (o *ObjectBackend) Name() string { return o.name }

func (o *ObjectBackend) Resolve(p string) string {
	return o.key(p)
}

func (o *ObjectBackend) key(p string) string {
	if o.prefix == "" {
		return p
	}
	if p == "" {
		return o.prefix
	}
	return o.prefix + "/" + p
}

func (o *ObjectBackend) dirPrefix(p string) string {
	k := o.key(p)
	if k == "" {
		return ""
	}
	return k + "/"
}

func (o *ObjectBackend) ReadDir(ctx context.Context, p string) ([]EntryInfo, error) {
	if err := o.requireDir(ctx, p); err != nil {
		return nil, err
	}

	prefix := o.dirPrefix(p)
	objects, prefixes, err := o.client.List(ctx, prefix, false)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, ioError(err))
	}

	entries := make([]EntryInfo, 0, len(objects)+len(prefixes))
	for _, cp := range prefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(cp, prefix), "/")
		if name == "" {
			continue
		}
		entries = append(entries, EntryInfo{Name: name, Path: path.Join(p, name), IsDir: true})
	}
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.Contains(name, "/") || IsHiddenName(name) {
			continue
		}
		entries = append(entries, EntryInfo{
			Name:    name,
			Path:    path.Join(p, name),
			Size:    obj.Size,
			ModTime: obj.ModTime,
		})
	}
	sortEntries(entries)
	return entries, nil
}

func (o *ObjectBackend) Stat(ctx context.Context, p string) (*EntryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p == "" {
		return &EntryInfo{IsDir: true}, nil
	}

	info, err := o.client.Head(ctx, o.key(p))
	if err == nil {
		return &EntryInfo{Name: path.Base(p), Path: p, Size: info.Size, ModTime: info.ModTime}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("stat %s: %w", p, ioError(err))
	}

	isDir, err := o.dirExists(ctx, p)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, fmt.Errorf("stat %s: %w", p, ErrNotFound)
	}
	return &EntryInfo{Name: path.Base(p), Path: p, IsDir: true}, nil
}

func (o *ObjectBackend) Exists(ctx context.Context, p string) (bool, error) {
	_, err := o.Stat(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (o *ObjectBackend) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	info, err := o.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if info.IsDir {
		return nil, fmt.Errorf("open %s: %w", p, ErrIsDirectory)
	}

	rc, err := o.client.Get(ctx, o.key(p))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, ioError(err))
	}
	return rc, nil
}

// Write relies on the store publishing an object only once its upload
// completes, so no temp key is needed.
func (o *ObjectBackend) Write(ctx context.Context, p string, r io.Reader) (int64, error) {
	if p == "" {
		return 0, fmt.Errorf("write root: %w", ErrIsDirectory)
	}
	if err := o.requireDir(ctx, parentOf(p)); err != nil {
		return 0, err
	}
	if isDir, err := o.dirExists(ctx, p); err != nil {
		return 0, err
	} else if isDir {
		return 0, fmt.Errorf("write %s: %w", p, ErrIsDirectory)
	}

	counter := &countingReader{r: newContextReader(ctx, r)}
	if err := o.client.Put(ctx, o.key(p), counter); err != nil {
		return counter.n, fmt.Errorf("write %s: %w", p, ioError(err))
	}
	return counter.n, nil
}

func (o *ObjectBackend) CreateDir(ctx context.Context, p string) error {
	exists, err := o.Exists(ctx, p)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("create dir %s: %w", p, ErrAlreadyExists)
	}
	if err := o.requireDir(ctx, parentOf(p)); err != nil {
		return err
	}
	return o.putMarker(ctx, p)
}

func (o *ObjectBackend) MkdirAll(ctx context.Context, p string) error {
	if p == "" {
		return nil
	}
	current := ""
	for _, seg := range strings.Split(p, "/") {
		current = path.Join(current, seg)
		info, err := o.Stat(ctx, current)
		if err == nil {
			if !info.IsDir {
				return fmt.Errorf("mkdir %s: %w", current, ErrNotDirectory)
			}
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := o.putMarker(ctx, current); err != nil {
			return err
		}
	}
	return nil
}

func (o *ObjectBackend) Move(ctx context.Context, src, dst string) error {
	if err := o.Copy(ctx, src, dst); err != nil {
		return err
	}
	return o.DeleteRecursive(ctx, src)
}

func (o *ObjectBackend) Copy(ctx context.Context, src, dst string) error {
	info, err := o.Stat(ctx, src)
	if err != nil {
		return err
	}
	if exists, err := o.Exists(ctx, dst); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%s: %w", dst, ErrAlreadyExists)
	}
	if err := o.requireDir(ctx, parentOf(dst)); err != nil {
		return err
	}

	if !info.IsDir {
		if err := o.client.CopyObject(ctx, o.key(src), o.key(dst)); err != nil {
			return fmt.Errorf("copy %s: %w", src, ioError(err))
		}
		return nil
	}

	srcPrefix, dstPrefix := o.dirPrefix(src), o.dirPrefix(dst)
	objects, _, err := o.client.List(ctx, srcPrefix, true)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, ioError(err))
	}
	if err := o.putMarker(ctx, dst); err != nil {
		return err
	}
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := strings.TrimPrefix(obj.Key, srcPrefix)
		if IsUploadTemp(path.Base(rel)) {
			continue
		}
		if rel == dirMarker {
			continue
		}
		if err := o.client.CopyObject(ctx, obj.Key, dstPrefix+rel); err != nil {
			return fmt.Errorf("copy %s: %w", obj.Key, ioError(err))
		}
	}
	return nil
}

func (o *ObjectBackend) Delete(ctx context.Context, p string) error {
	info, err := o.Stat(ctx, p)
	if err != nil {
		return err
	}
	if info.IsDir {
		return fmt.Errorf("delete %s: %w", p, ErrIsDirectory)
	}
	if err := o.client.Remove(ctx, o.key(p)); err != nil {
		return fmt.Errorf("delete %s: %w", p, ioError(err))
	}
	return nil
}

func (o *ObjectBackend) DeleteRecursive(ctx context.Context, p string) error {
	info, err := o.Stat(ctx, p)
	if err != nil {
		return err
	}
	if !info.IsDir {
		return o.Delete(ctx, p)
	}

	objects, _, err := o.client.List(ctx, o.dirPrefix(p), true)
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, ioError(err))
	}
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.client.Remove(ctx, obj.Key); err != nil {
			return fmt.Errorf("delete %s: %w", obj.Key, ioError(err))
		}
	}
	return nil
}

func (o *ObjectBackend) putMarker(ctx context.Context, p string) error {
	if err := o.client.Put(ctx, o.dirPrefix(p)+dirMarker, strings.NewReader("")); err != nil {
		return fmt.Errorf("create dir %s: %w", p, ioError(err))
	}
	return nil
}

func (o *ObjectBackend) dirExists(ctx context.Context, p string) (bool, error) {
	if p == "" {
		return true, nil
	}
	objects, prefixes, err := o.client.List(ctx, o.dirPrefix(p), false)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", p, ioError(err))
	}
	return len(objects) > 0 || len(prefixes) > 0, nil
}

func (o *ObjectBackend) requireDir(ctx context.Context, p string) error {
	info, err := o.Stat(ctx, p)
	if err != nil {
		return err
	}
	if !info.IsDir {
		return fmt.Errorf("%s: %w", p, ErrNotDirectory)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
