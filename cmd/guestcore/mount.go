package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/touchstone-hle/guestcore/pkg/guestfs"
	"github.com/touchstone-hle/guestcore/pkg/guestpath"
)

var mountConfiguration struct {
	help bool
}

var mountCommand = &cobra.Command{
	Use:                   "mount <bundle-path>",
	Short:                 "Materialize an .ipa archive or app bundle directory and report its contents",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	Run:                   mainify(mountMain),
}

func init() {
	registerHelpFlag(mountCommand.Flags(), &mountConfiguration.help)
}

// BundleHandle tags a single mount operation with a correlation ID, so that
// log lines and error messages produced while walking a bundle can be tied
// back to the invocation that triggered them.
type BundleHandle struct {
	ID   uuid.UUID
	Path string
}

func newBundleHandle(path string) BundleHandle {
	return BundleHandle{ID: uuid.New(), Path: path}
}

func (h BundleHandle) String() string {
	return fmt.Sprintf("%s (%s)", h.Path, h.ID)
}

func mountMain(command *cobra.Command, arguments []string) error {
	handle := newBundleHandle(arguments[0])
	fmt.Printf("mounting %s\n", handle)

	bundle, err := guestfs.OpenAny(handle.Path)
	if err != nil {
		return err
	}
	defer bundle.Close()

	plist, err := bundle.ReadPlist()
	if err != nil {
		warnf("%v", err)
	} else {
		fmt.Printf("Info.plist: %s\n", humanize.Bytes(uint64(len(plist))))
	}

	root, err := bundle.IntoFsNode()
	if err != nil {
		return err
	}

	fs := guestfs.NewFileSystem(root)
	summary, err := summarizeTree(fs, root, "")
	if err != nil {
		return err
	}

	sort.Strings(summary.paths)
	for _, p := range summary.paths {
		fmt.Println(p)
	}
	fmt.Printf("%d files, %s total\n", summary.fileCount, humanize.Bytes(summary.totalSize))
	return nil
}

type treeSummary struct {
	paths     []string
	fileCount int
	totalSize uint64
}

// summarizeTree walks every file in node, recording its guest path and
// measuring its size by seeking to the end of an opened handle.
func summarizeTree(fs *guestfs.FileSystem, node *guestfs.FsNode, prefix string) (*treeSummary, error) {
	summary := &treeSummary{}
	for name, child := range node.Children {
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}

		switch child.Kind {
		case guestfs.NodeDirectory:
			sub, err := summarizeTree(fs, child, path)
			if err != nil {
				return nil, err
			}
			summary.paths = append(summary.paths, sub.paths...)
			summary.fileCount += sub.fileCount
			summary.totalSize += sub.totalSize

		case guestfs.NodeFile:
			size, err := fileSize(fs, guestpath.GuestPath(path))
			if err != nil {
				return nil, err
			}
			summary.paths = append(summary.paths, path)
			summary.fileCount++
			summary.totalSize += size
		}
	}
	return summary, nil
}

func fileSize(fs *guestfs.FileSystem, path guestpath.GuestPath) (uint64, error) {
	f, err := fs.OpenWithOptions(path, guestfs.NewGuestOpenOptions().Read())
	if err != nil {
		return 0, fmt.Errorf("could not open %q: %w", path, err)
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("could not measure %q: %w", path, err)
	}
	return uint64(size), nil
}
