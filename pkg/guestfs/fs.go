package guestfs

import (
	"fmt"
	"io"
	"os"

	"github.com/touchstone-hle/guestcore/pkg/guestpath"
)

// GuestFile is a single open file handle as seen by the POSIX I/O shim. Its
// operations mirror the syscalls the shim exposes to guest code.
type GuestFile interface {
	io.Reader
	io.Writer
	io.Seeker
	// Sync flushes any buffered writes to the backing store. It is a no-op
	// for read-only backings.
	Sync() error
	// Close releases any host resources held by the file.
	Close() error
}

// FileSystem is a guest filesystem tree rooted at a single FsNode, typically
// produced by BundleData.IntoFsNode.
type FileSystem struct {
	root *FsNode
}

// NewFileSystem wraps root as a FileSystem.
func NewFileSystem(root *FsNode) *FileSystem {
	return &FileSystem{root: root}
}

// OpenWithOptions resolves path against the tree and opens the file node
// found there according to options. It fails if path does not resolve to a
// file, or if an intermediate component is not a directory.
func (fs *FileSystem) OpenWithOptions(path guestpath.GuestPath, options *GuestOpenOptions) (GuestFile, error) {
	node, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	if node.Kind != NodeFile {
		return nil, fmt.Errorf("guestfs: %q is a directory", path)
	}
	return node.Backing.OpenWithOptions(options)
}

// Lookup resolves path against the tree and returns the node found there,
// which may be a directory or a file.
func (fs *FileSystem) Lookup(path guestpath.GuestPath) (*FsNode, error) {
	return fs.lookup(path)
}

func (fs *FileSystem) lookup(path guestpath.GuestPath) (*FsNode, error) {
	current := fs.root
	for _, component := range path.Components() {
		if current.Kind != NodeDirectory {
			return nil, fmt.Errorf("guestfs: %q: %w", path, os.ErrNotExist)
		}
		next, ok := current.Children[component]
		if !ok {
			return nil, fmt.Errorf("guestfs: %q: %w", path, os.ErrNotExist)
		}
		current = next
	}
	return current, nil
}
