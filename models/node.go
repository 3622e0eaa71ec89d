package models

type NodeType string

const (
	NodeFile   NodeType = "file"
	NodeFolder NodeType = "folder"
)

// FileSystemNode is one entry of the storage namespace. Path is relative to
// the storage root. Children is only set for folders read as a tree.
type FileSystemNode struct {
	Name      string
	Path      string
	Type      NodeType
	Children  []*FileSystemNode
	Truncated bool // children omitted because a depth or size cap was hit
}

// WireNode is the JSON form of a FileSystemNode.
type WireNode struct {
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	Type      NodeType   `json:"type"`
	Children  []WireNode `json:"children,omitempty"`
	Truncated bool       `json:"truncated,omitempty"`
}
