package storage

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filemanager/models"
)

func seedTree(t *testing.T, fs afero.Fs) {
	t.Helper()
	require.NoError(t, fs.MkdirAll("/public/VSP/a/b/c", 0o755))
	require.NoError(t, fs.MkdirAll("/public/VSP/empty", 0o755))
	for _, f := range []string{"/public/VSP/root.txt", "/public/VSP/a/one.txt", "/public/VSP/a/b/two.txt", "/public/VSP/a/b/c/three.txt"} {
		require.NoError(t, afero.WriteFile(fs, f, []byte("data:"+f), 0o644))
	}
}

func TestWalk_VisitsInOrderAndStopsOnError(t *testing.T) {
	ctx := context.Background()
	b, fs := newMemBackend(t)
	seedTree(t, fs)

	var visited []string
	err := Walk(ctx, b, "public/VSP", func(e EntryInfo) error {
		visited = append(visited, e.Path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"public/VSP",
		"public/VSP/a",
		"public/VSP/a/b",
		"public/VSP/a/b/c",
		"public/VSP/a/b/c/three.txt",
		"public/VSP/a/b/two.txt",
		"public/VSP/a/one.txt",
		"public/VSP/empty",
		"public/VSP/root.txt",
	}, visited)

	stop := errors.New("stop")
	visited = nil
	err = Walk(ctx, b, "public/VSP", func(e EntryInfo) error {
		visited = append(visited, e.Path)
		if e.Path == "public/VSP/a/b" {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"public/VSP", "public/VSP/a", "public/VSP/a/b"}, visited)
}

func TestBuildTree_DepthCap(t *testing.T) {
	ctx := context.Background()
	b, fs := newMemBackend(t)
	seedTree(t, fs)

	root, err := BuildTree(ctx, b, "public/VSP", TreeOptions{MaxDepth: 2, MaxNodes: 100})
	require.NoError(t, err)

	assert.Equal(t, models.NodeFolder, root.Type)
	assert.Equal(t, "VSP", root.Name)
	require.Len(t, root.Children, 3)

	a := root.Children[0]
	assert.Equal(t, "a", a.Name)
	require.Len(t, a.Children, 2)
	b2 := a.Children[0]
	assert.Equal(t, "b", b2.Name)
	assert.True(t, b2.Truncated)
	assert.Empty(t, b2.Children)

	empty := root.Children[1]
	assert.False(t, empty.Truncated)
}

func TestBuildTree_NodeCap(t *testing.T) {
	ctx := context.Background()
	b, fs := newMemBackend(t)
	require.NoError(t, fs.MkdirAll("/public/VSP/many", 0o755))
	for i := 0; i < 20; i++ {
		require.NoError(t, afero.WriteFile(fs, fmt.Sprintf("/public/VSP/many/f%02d.txt", i), []byte("x"), 0o644))
	}

	root, err := BuildTree(ctx, b, "public/VSP", TreeOptions{MaxDepth: 10, MaxNodes: 5})
	require.NoError(t, err)

	total := 0
	var count func(n *models.FileSystemNode)
	count = func(n *models.FileSystemNode) {
		total++
		for _, c := range n.Children {
			count(c)
		}
	}
	count(root)
	assert.Equal(t, 5, total)
	assert.True(t, root.Children[0].Truncated)
}

func TestBuildTree_VisibleFilter(t *testing.T) {
	ctx := context.Background()
	b, fs := newMemBackend(t)
	seedTree(t, fs)

	root, err := BuildTree(ctx, b, "public/VSP", TreeOptions{
		MaxDepth: 10,
		MaxNodes: 100,
		Visible:  func(p string) bool { return !strings.HasPrefix(p, "public/VSP/a") },
	})
	require.NoError(t, err)
	var names []string
	for _, c := range root.Children {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"empty", "root.txt"}, names)
}

func TestArchiveZip_StreamsTree(t *testing.T) {
	ctx := context.Background()
	b, fs := newMemBackend(t)
	seedTree(t, fs)

	var buf bytes.Buffer
	files, err := ArchiveZip(ctx, b, "public/VSP/a", &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, files)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var names []string
	contents := map[string]string{}
	for _, f := range zr.File {
		names = append(names, f.Name)
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		contents[f.Name] = string(data)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a/", "a/b/", "a/b/c/", "a/b/c/three.txt", "a/b/two.txt", "a/one.txt"}, names)
	assert.Equal(t, "data:/public/VSP/a/b/two.txt", contents["a/b/two.txt"])
}

func TestArchiveZip_Cancelled(t *testing.T) {
	b, fs := newMemBackend(t)
	seedTree(t, fs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ArchiveZip(ctx, b, "public/VSP", io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}
