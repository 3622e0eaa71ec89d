package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryObjectClient is a flat key/value store with S3 style listing.
type memoryObjectClient struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjectClient() *memoryObjectClient {
	return &memoryObjectClient{objects: map[string][]byte{}}
}

func (m *memoryObjectClient) List(_ context.Context, prefix string, recursive bool) ([]ObjectInfo, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var objects []ObjectInfo
	seen := map[string]bool{}
	var prefixes []string
	for key, data := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if !recursive {
			if i := strings.Index(rest, "/"); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					prefixes = append(prefixes, cp)
				}
				continue
			}
		}
		objects = append(objects, ObjectInfo{Key: key, Size: int64(len(data)), ModTime: time.Unix(0, 0)})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	sort.Strings(prefixes)
	return objects, prefixes, nil
}

func (m *memoryObjectClient) Head(_ context.Context, key string) (*ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return &ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryObjectClient) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjectClient) Put(_ context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryObjectClient) CopyObject(_ context.Context, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[srcKey]
	if !ok {
		return fmt.Errorf("%s: %w", srcKey, ErrNotFound)
	}
	m.objects[dstKey] = append([]byte(nil), data...)
	return nil
}

func (m *memoryObjectClient) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjectClient) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newObjectBackendForTest(t *testing.T) (*ObjectBackend, *memoryObjectClient) {
	t.Helper()
	client := newMemoryObjectClient()
	b := NewObjectBackend("memory", client, "/tenant-a/")
	require.NoError(t, b.MkdirAll(context.Background(), "public/VSP"))
	return b, client
}

func TestObjectBackend_KeysCarryPrefix(t *testing.T) {
	b, client := newObjectBackendForTest(t)
	_, err := b.Write(context.Background(), "public/VSP/a.txt", strings.NewReader("a"))
	require.NoError(t, err)

	assert.Equal(t, "tenant-a/public/VSP/a.txt", b.Resolve("public/VSP/a.txt"))
	assert.Contains(t, client.keys(), "tenant-a/public/VSP/a.txt")
	assert.Contains(t, client.keys(), "tenant-a/public/VSP/.keep")
}

func TestObjectBackend_ListingHidesMarkers(t *testing.T) {
	ctx := context.Background()
	b, _ := newObjectBackendForTest(t)

	require.NoError(t, b.CreateDir(ctx, "public/VSP/Empty"))
	_, err := b.Write(ctx, "public/VSP/z.txt", strings.NewReader("z"))
	require.NoError(t, err)
	_, err = b.Write(ctx, "public/VSP/a.txt", strings.NewReader("a"))
	require.NoError(t, err)

	listing, err := List(ctx, b, "public/VSP")
	require.NoError(t, err)
	assert.Equal(t, []string{"Empty"}, listing.Directories)
	assert.Equal(t, []string{"a.txt", "z.txt"}, listing.Files)

	info, err := b.Stat(ctx, "public/VSP/Empty")
	require.NoError(t, err)
	assert.True(t, info.IsDir)
}

func TestObjectBackend_CreateDirCollision(t *testing.T) {
	ctx := context.Background()
	b, _ := newObjectBackendForTest(t)

	require.NoError(t, b.CreateDir(ctx, "public/VSP/Contracts"))
	assert.ErrorIs(t, b.CreateDir(ctx, "public/VSP/Contracts"), ErrAlreadyExists)
	assert.ErrorIs(t, b.CreateDir(ctx, "public/Missing/Contracts"), ErrNotFound)
}

func TestObjectBackend_MoveDirectory(t *testing.T) {
	ctx := context.Background()
	b, client := newObjectBackendForTest(t)

	require.NoError(t, b.MkdirAll(ctx, "public/VSP/src/inner"))
	_, err := b.Write(ctx, "public/VSP/src/inner/a.txt", strings.NewReader("aaa"))
	require.NoError(t, err)
	require.NoError(t, b.CreateDir(ctx, "public/VSP/archive"))

	require.NoError(t, b.Move(ctx, "public/VSP/src", "public/VSP/archive/src"))

	data, err := ReadAll(ctx, b, "public/VSP/archive/src/inner/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(data))

	for _, k := range client.keys() {
		assert.False(t, strings.HasPrefix(k, "tenant-a/public/VSP/src/"), "source key %s survived move", k)
	}
}

func TestObjectBackend_DeleteSemantics(t *testing.T) {
	ctx := context.Background()
	b, _ := newObjectBackendForTest(t)

	require.NoError(t, b.MkdirAll(ctx, "public/VSP/dir"))
	_, err := b.Write(ctx, "public/VSP/dir/x.txt", strings.NewReader("x"))
	require.NoError(t, err)

	assert.ErrorIs(t, b.Delete(ctx, "public/VSP/dir"), ErrIsDirectory)
	require.NoError(t, b.DeleteRecursive(ctx, "public/VSP/dir"))

	exists, err := b.Exists(ctx, "public/VSP/dir")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.ErrorIs(t, b.DeleteRecursive(ctx, "public/VSP/dir"), ErrNotFound)
}

func TestObjectBackend_FailedWriteKeepsExistingObject(t *testing.T) {
	ctx := context.Background()
	b, _ := newObjectBackendForTest(t)
	require.NoError(t, b.MkdirAll(ctx, "public/VSP"))
	_, err := b.Write(ctx, "public/VSP/report.pdf", strings.NewReader("original"))
	require.NoError(t, err)

	broken := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errors.New("client went away")))
	_, err = b.Write(ctx, "public/VSP/report.pdf", broken)
	require.Error(t, err)

	data, err := ReadAll(ctx, b, "public/VSP/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestObjectBackend_OpenDirectoryFails(t *testing.T) {
	b, _ := newObjectBackendForTest(t)
	_, err := b.Open(context.Background(), "public/VSP")
	assert.ErrorIs(t, err, ErrIsDirectory)
}
