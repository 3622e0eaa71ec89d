package storage

import (
	"context"
	"path"

	"filemanager/models"
)

// WalkFunc is called for every entry below (and including) the walk root.
// A non-nil return stops the walk and is returned from Walk.
type WalkFunc func(entry EntryInfo) error

// Walk visits root and everything beneath it depth first, entries of a
// directory in name order. Hidden bookkeeping entries are never visited.
func Walk(ctx context.Context, b Backend, root string, fn WalkFunc) error {
	info, err := b.Stat(ctx, root)
	if err != nil {
		return err
	}
	return walk(ctx, b, *info, fn)
}

func walk(ctx context.Context, b Backend, entry EntryInfo, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(entry); err != nil {
		return err
	}
	if !entry.IsDir {
		return nil
	}

	children, err := b.ReadDir(ctx, entry.Path)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := walk(ctx, b, child, fn); err != nil {
			return err
		}
	}
	return nil
}

// TreeOptions bounds a tree read.
type TreeOptions struct {
	MaxDepth int // levels below the root to expand; 0 means root only
	MaxNodes int // total nodes returned, root included
	// Visible, if set, hides entries (and their subtrees) it rejects.
	Visible func(p string) bool
}

// BuildTree reads the subtree at root. When a cap is reached the affected
// folders are returned with Truncated set rather than failing the read.
func BuildTree(ctx context.Context, b Backend, root string, opts TreeOptions) (*models.FileSystemNode, error) {
	info, err := b.Stat(ctx, root)
	if err != nil {
		return nil, err
	}

	t := &treeBuilder{b: b, opts: opts, count: 1}
	node := nodeFromEntry(*info)
	if info.IsDir {
		if err := t.expand(ctx, node, 0); err != nil {
			return nil, err
		}
	}
	return node, nil
}

type treeBuilder struct {
	b     Backend
	opts  TreeOptions
	count int
}

func (t *treeBuilder) expand(ctx context.Context, node *models.FileSystemNode, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := t.b.ReadDir(ctx, node.Path)
	if err != nil {
		return err
	}
	node.Children = []*models.FileSystemNode{}
	if len(entries) == 0 {
		return nil
	}
	if depth >= t.opts.MaxDepth {
		node.Truncated = true
		return nil
	}

	for _, e := range entries {
		if t.opts.Visible != nil && !t.opts.Visible(e.Path) {
			continue
		}
		if t.opts.MaxNodes > 0 && t.count >= t.opts.MaxNodes {
			node.Truncated = true
			return nil
		}
		t.count++
		child := nodeFromEntry(e)
		node.Children = append(node.Children, child)
		if e.IsDir {
			if err := t.expand(ctx, child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func nodeFromEntry(e EntryInfo) *models.FileSystemNode {
	n := &models.FileSystemNode{Name: e.Name, Path: e.Path, Type: models.NodeFile}
	if e.Name == "" && e.Path != "" {
		n.Name = path.Base(e.Path)
	}
	if e.IsDir {
		n.Type = models.NodeFolder
	}
	return n
}
