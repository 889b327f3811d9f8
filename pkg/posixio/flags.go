// Package posixio implements the guest-facing POSIX file I/O shim:
// open/read/write/lseek/close, translated from the raw O_* flag bitmask and
// guest memory addresses the interpreter would hand a real syscall trampoline
// into calls against a guestfs.FileSystem.
package posixio

import (
	"fmt"

	"github.com/touchstone-hle/guestcore/pkg/guestfs"
)

// FileDescriptor mirrors POSIX's plain int, kept as its own type for
// readability at call sites.
type FileDescriptor int32

// Standard descriptors reserved ahead of the shim's own file table. Only
// StderrFileno is referenced directly; stdin/stdout routing through the
// guest is not yet implemented.
const (
	StdinFileno      FileDescriptor = 0
	StdoutFileno     FileDescriptor = 1
	StderrFileno     FileDescriptor = 2
	normalFilenoBase FileDescriptor = StderrFileno + 1
)

// OpenFlag is the int bitmask passed to open(), using the same bit
// assignments as the guest's libc so that guest code's O_* constants need
// no translation before reaching this shim.
type OpenFlag int32

const (
	ORDONLY  OpenFlag = 0x0
	OWRONLY  OpenFlag = 0x1
	ORDWR    OpenFlag = 0x2
	OAccMode OpenFlag = ORDWR | OWRONLY | ORDONLY

	ONONBLOCK OpenFlag = 0x4
	OAPPEND   OpenFlag = 0x8
	ONOFOLLOW OpenFlag = 0x100
	OCREAT    OpenFlag = 0x200
	OTRUNC    OpenFlag = 0x400
	OEXCL     OpenFlag = 0x800

	supportedOpenFlags = OAccMode | ONONBLOCK | OAPPEND | ONOFOLLOW | OCREAT | OTRUNC | OEXCL
)

// Whence values for lseek.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// translateFlags converts an open() flags bitmask into a GuestOpenOptions
// value. Flag combinations this shim does not support (an unrecognized bit,
// O_NOFOLLOW, or O_EXCL) are programmer/guest-environment errors rather than
// recoverable conditions, so they panic instead of returning an error —
// symlinks and exclusive-create semantics have no representation in the
// guest filesystem at all.
func translateFlags(flags OpenFlag) *guestfs.GuestOpenOptions {
	if flags&^supportedOpenFlags != 0 {
		panic(fmt.Sprintf("posixio: unsupported open() flags: %#x", flags))
	}
	if flags&ONOFOLLOW != 0 {
		panic("posixio: O_NOFOLLOW is not supported; the guest filesystem has no symlinks")
	}
	if flags&OEXCL != 0 {
		panic("posixio: O_EXCL is not supported")
	}

	options := guestfs.NewGuestOpenOptions()
	switch flags & OAccMode {
	case ORDONLY:
		options.Read()
	case OWRONLY:
		options.Write()
	case ORDWR:
		options.Read().Write()
	default:
		panic(fmt.Sprintf("posixio: invalid O_ACCMODE bits in flags %#x", flags))
	}
	if flags&OAPPEND != 0 {
		options.Append()
	}
	if flags&OCREAT != 0 {
		options.Create()
	}
	if flags&OTRUNC != 0 {
		options.Truncate()
	}
	return options
}
