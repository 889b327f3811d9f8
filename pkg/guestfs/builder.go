package guestfs

import (
	"fmt"

	"github.com/touchstone-hle/guestcore/pkg/guestpath"
)

// FsNodeBuilder assembles an FsNode tree one entry at a time, creating
// intermediate directories on demand. The ZIP ingester uses it because
// archive entries arrive in arbitrary order; the host directory walker
// builds its nodes directly while recursing and does not use it.
type FsNodeBuilder struct {
	root *FsNode
}

// NewFsNodeBuilder returns a builder seeded with an empty root directory.
func NewFsNodeBuilder() *FsNodeBuilder {
	return &FsNodeBuilder{root: NewDirectory()}
}

// findOrMakeDirectory walks path from the root, creating any missing
// directory along the way, and returns the directory node at path. It
// panics if a non-directory node already occupies one of path's components:
// that indicates a malformed archive where a file and a directory under it
// share a name, which ingestion treats as a bug rather than recoverable. It
// also panics if path contains a ".." component; callers are expected to
// have already validated paths derived from untrusted archive or
// host-directory data, so a ".." reaching this point is a programmer error.
func (b *FsNodeBuilder) findOrMakeDirectory(path guestpath.GuestPath) *FsNode {
	if err := path.EnsureNoDotDot(); err != nil {
		panic(fmt.Sprintf("guestfs: %q: %v", path, err))
	}

	current := b.root
	for _, component := range path.Components() {
		if current.Kind != NodeDirectory {
			panic(fmt.Sprintf("guestfs: %q is both a file and a directory", path))
		}
		next, ok := current.Children[component]
		if !ok {
			next = NewDirectory()
			current.Children[component] = next
		}
		current = next
	}
	if current.Kind != NodeDirectory {
		panic(fmt.Sprintf("guestfs: %q is both a file and a directory", path))
	}
	return current
}

// AddFile inserts a file node at path, creating its parent directories as
// needed. It panics if path's parent is already occupied by a file node, or
// if path contains a ".." component.
func (b *FsNodeBuilder) AddFile(path guestpath.GuestPath, node *FsNode) {
	if err := path.EnsureNoDotDot(); err != nil {
		panic(fmt.Sprintf("guestfs: %q: %v", path, err))
	}

	parent, base := path.Split()
	if base == "" {
		panic("guestfs: cannot add a file at the bundle root")
	}
	dir := b.findOrMakeDirectory(parent)
	if dir.Kind != NodeDirectory {
		panic(fmt.Sprintf("guestfs: %q is both a file and a directory", parent))
	}
	dir.Children[base] = node
}

// AddDirectory ensures a (possibly empty) directory exists at path.
func (b *FsNodeBuilder) AddDirectory(path guestpath.GuestPath) {
	b.findOrMakeDirectory(path)
}

// Build returns the assembled tree's root node.
func (b *FsNodeBuilder) Build() *FsNode {
	return b.root
}
