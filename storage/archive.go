package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ArchiveZip streams the subtree at root into w as a zip archive. Entries
// are named "<base of root>/<relative path>". Nothing is buffered beyond
// the compressor window, so archive size does not bound memory.
//
// Returns the number of files written. On error the archive is incomplete.
func ArchiveZip(ctx context.Context, b Backend, root string, w io.Writer) (int, error) {
	zw := zip.NewWriter(w)
	base := path.Base(root)
	if root == "" {
		base = "root"
	}

	files := 0
	err := Walk(ctx, b, root, func(entry EntryInfo) error {
		name := base
		if rel := strings.TrimPrefix(strings.TrimPrefix(entry.Path, root), "/"); rel != "" {
			name = base + "/" + rel
		}

		if entry.IsDir {
			_, err := zw.CreateHeader(&zip.FileHeader{Name: name + "/", Method: zip.Store, Modified: entry.ModTime})
			return err
		}

		header := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: entry.ModTime}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}

		rc, err := b.Open(ctx, entry.Path)
		if err != nil {
			return err
		}
		defer rc.Close()

		if _, err := io.Copy(fw, newContextReader(ctx, rc)); err != nil {
			return fmt.Errorf("add %s to archive: %w", entry.Path, err)
		}
		files++
		return nil
	})
	if err != nil {
		return files, err
	}

	if err := zw.Close(); err != nil {
		return files, fmt.Errorf("finalize archive: %w", err)
	}
	return files, nil
}
