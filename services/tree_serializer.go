package services

import (
	"sort"

	"filemanager/models"
)

// SerializeTree converts a tree read into its wire form. Within each folder
// subfolders come first, then files, each group in byte order of name, so
// the same tree always serializes identically.
func SerializeTree(node *models.FileSystemNode) models.WireNode {
	wire := models.WireNode{
		Name:      node.Name,
		Path:      node.Path,
		Type:      node.Type,
		Truncated: node.Truncated,
	}
	if len(node.Children) == 0 {
		return wire
	}

	children := make([]*models.FileSystemNode, len(node.Children))
	copy(children, node.Children)
	sort.SliceStable(children, func(i, j int) bool {
		a, b := children[i], children[j]
		if a.Type != b.Type {
			return a.Type == models.NodeFolder
		}
		return a.Name < b.Name
	})

	wire.Children = make([]models.WireNode, 0, len(children))
	for _, child := range children {
		wire.Children = append(wire.Children, SerializeTree(child))
	}
	return wire
}

// SerializeForest serializes the top level nodes of a tree response.
func SerializeForest(nodes ...*models.FileSystemNode) []models.WireNode {
	out := make([]models.WireNode, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			out = append(out, SerializeTree(n))
		}
	}
	return out
}
