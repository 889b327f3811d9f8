package guestfs

import (
	"archive/zip"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/touchstone-hle/guestcore/pkg/guestpath"
)

// ErrNoAppBundle is returned when an IPA archive has no Payload/*.app
// directory at its top level.
var ErrNoAppBundle = errors.New("no app bundle found in the IPA archive")

type bundleKind int

const (
	bundleHostDirectory bundleKind = iota
	bundleZip
)

// BundleData is an opened, not-yet-materialized app bundle: either a host
// directory or a .ipa ZIP archive, located but not yet walked into an
// FsNode tree.
type BundleData struct {
	kind bundleKind

	hostDir string

	arena      *zipArena
	bundlePath string
}

// OpenHostDir opens a bundle from an already-extracted host directory. It
// performs no I/O beyond recording the path; missing or unreadable
// directories surface when IntoFsNode is called.
func OpenHostDir(path string) (*BundleData, error) {
	return &BundleData{kind: bundleHostDirectory, hostDir: path}, nil
}

// OpenIPA opens a bundle from a .ipa ZIP archive and locates its
// Payload/*.app directory. It returns ErrNoAppBundle if none is found.
func OpenIPA(path string) (*BundleData, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("guestfs: could not open IPA archive: %w", err)
	}

	bundlePath, err := findBundlePath(reader)
	if err != nil {
		reader.Close()
		return nil, err
	}

	return &BundleData{kind: bundleZip, arena: newZipArena(reader), bundlePath: bundlePath}, nil
}

func findBundlePath(reader *zip.ReadCloser) (string, error) {
	for _, f := range reader.File {
		rest := strings.TrimPrefix(f.Name, "Payload/")
		if rest == f.Name {
			continue // no Payload/ prefix
		}
		slash := strings.IndexByte(rest, '/')
		var appName string
		if slash < 0 {
			appName = rest
		} else {
			appName = rest[:slash]
		}
		if strings.HasSuffix(appName, ".app") {
			return "Payload/" + appName, nil
		}
	}
	return "", ErrNoAppBundle
}

// OpenAny inspects path and dispatches to OpenIPA or OpenHostDir based on
// whether it's a .ipa file or a directory.
func OpenAny(path string) (*BundleData, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("guestfs: could not stat %q: %w", path, err)
	}
	switch {
	case info.Mode().IsRegular() && strings.EqualFold(filepath.Ext(path), ".ipa"):
		return OpenIPA(path)
	case info.IsDir():
		return OpenHostDir(path)
	default:
		return nil, fmt.Errorf("guestfs: %q is neither a directory nor an IPA file", path)
	}
}

// IntoFsNode walks the bundle and materializes it into an FsNode tree
// rooted at the app bundle's own directory (Payload/<Name>.app for an IPA,
// or the host directory itself for a host-directory bundle).
func (b *BundleData) IntoFsNode() (*FsNode, error) {
	switch b.kind {
	case bundleHostDirectory:
		return fsNodeFromHostDir(b.hostDir)
	case bundleZip:
		return b.intoFsNodeFromZip()
	default:
		panic("guestfs: unknown bundle kind")
	}
}

func fsNodeFromHostDir(root string) (*FsNode, error) {
	entries, err := ioutil.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("guestfs: could not read host directory %q: %w", root, err)
	}

	dir := NewDirectory()
	for _, entry := range entries {
		if err := guestpath.GuestPath(entry.Name()).EnsureNoDotDot(); err != nil {
			return nil, fmt.Errorf("guestfs: host directory entry %q: %w", entry.Name(), err)
		}

		childPath := filepath.Join(root, entry.Name())
		switch {
		case entry.Mode()&os.ModeSymlink != 0:
			continue // symlinks are dropped during ingestion
		case entry.IsDir():
			child, err := fsNodeFromHostDir(childPath)
			if err != nil {
				return nil, err
			}
			dir.Children[entry.Name()] = child
		case entry.Mode().IsRegular():
			dir.Children[entry.Name()] = NewFile(HostPathBacking{HostPath: childPath})
		}
		// Other file types (devices, sockets, pipes) are silently dropped.
	}
	return dir, nil
}

func (b *BundleData) intoFsNodeFromZip() (*FsNode, error) {
	builder := NewFsNodeBuilder()
	for i, f := range b.arena.reader.File {
		rest := strings.TrimPrefix(f.Name, b.bundlePath)
		if rest == f.Name {
			continue // entry is outside the app bundle directory
		}
		rest = strings.TrimPrefix(rest, "/")
		if rest == "" {
			continue // the bundle directory entry itself
		}

		path := guestpath.GuestPath(rest)
		if err := path.EnsureNoDotDot(); err != nil {
			return nil, fmt.Errorf("guestfs: zip entry %q: %w", f.Name, err)
		}

		if f.FileInfo().IsDir() {
			builder.AddDirectory(path)
		} else {
			ref := &IpaFileRef{arena: b.arena, index: i}
			builder.AddFile(path, NewFile(&ZipEntryBacking{Ref: ref}))
		}
	}
	return builder.Build(), nil
}

// ReadPlist reads the app bundle's top-level Info.plist without
// materializing the whole tree first, since callers typically need it
// before they've decided how to use the rest of the bundle.
func (b *BundleData) ReadPlist() ([]byte, error) {
	switch b.kind {
	case bundleHostDirectory:
		data, err := ioutil.ReadFile(filepath.Join(b.hostDir, "Info.plist"))
		if err != nil {
			return nil, fmt.Errorf("guestfs: could not read Info.plist from the app bundle directory: %w", err)
		}
		return data, nil
	case bundleZip:
		f, err := b.arena.reader.Open(b.bundlePath + "/Info.plist")
		if err != nil {
			return nil, fmt.Errorf("guestfs: could not open Info.plist in the IPA archive: %w", err)
		}
		defer f.Close()

		data, err := ioutil.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("guestfs: could not read Info.plist from the IPA archive: %w", err)
		}
		return data, nil
	default:
		panic("guestfs: unknown bundle kind")
	}
}

// Close releases any host resources (such as an open ZIP file handle) held
// by the bundle. Host-directory bundles hold none and Close is a no-op.
func (b *BundleData) Close() error {
	if b.kind == bundleZip {
		return b.arena.Close()
	}
	return nil
}
