package posixio

import (
	"fmt"
	"io"

	"github.com/touchstone-hle/guestcore/pkg/guestfs"
	"github.com/touchstone-hle/guestcore/pkg/guestmem"
	"github.com/touchstone-hle/guestcore/pkg/guestpath"
	"github.com/touchstone-hle/guestcore/pkg/logging"
)

// State is the POSIX I/O shim's per-process file descriptor table. Slots
// below normalFilenoBase (stdin/stdout/stderr) are not modeled here.
type State struct {
	fs     *guestfs.FileSystem
	mem    guestmem.GuestMemory
	logger *logging.Logger

	files []*hostObject
}

type hostObject struct {
	file guestfs.GuestFile
}

// NewState creates a file descriptor table backed by fs, using mem to
// resolve guest pointers passed to open/read/write.
func NewState(fs *guestfs.FileSystem, mem guestmem.GuestMemory, logger *logging.Logger) *State {
	return &State{fs: fs, mem: mem, logger: logger}
}

func fileIdxToFD(idx int) FileDescriptor {
	return FileDescriptor(idx) + normalFilenoBase
}

func fdToFileIdx(fd FileDescriptor) int {
	return int(fd - normalFilenoBase)
}

// TODO: once an errno layer exists, callers should turn a nil result into a
// -1 return with EBADF instead of panicking.
func (s *State) fileForFD(fd FileDescriptor) *hostObject {
	idx := fdToFileIdx(fd)
	if idx < 0 || idx >= len(s.files) {
		return nil
	}
	return s.files[idx]
}

// Open resolves the NUL-terminated guest path at pathAddr, translates
// flags, and opens the file against the filesystem. It returns -1 on
// failure, as the underlying syscall would, rather than an error — errno
// propagation to guest code is the caller's concern, not this shim's.
func (s *State) Open(pathAddr uint32, flags OpenFlag) FileDescriptor {
	path := s.mem.CstrAtUTF8(pathAddr)
	options := translateFlags(flags)

	file, err := s.fs.OpenWithOptions(guestpath.GuestPath(path), options)
	if err != nil {
		s.logger.Debugf("open(%q, %#x) => -1 (%v)", path, flags, err)
		return -1
	}

	obj := &hostObject{file: file}
	idx := -1
	for i, existing := range s.files {
		if existing == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		idx = len(s.files)
		s.files = append(s.files, obj)
	} else {
		s.files[idx] = obj
	}

	fd := fileIdxToFD(idx)
	s.logger.Debugf("open(%q, %#x) => %d", path, flags, fd)
	return fd
}

// Read fills the guest memory range [addr, addr+size) from fd's current
// position. It panics if fd is not open, matching the original shim's
// treatment of an unknown file descriptor as a guest-environment bug rather
// than a recoverable I/O error.
func (s *State) Read(fd FileDescriptor, addr, size uint32) int32 {
	obj := s.fileForFD(fd)
	if obj == nil {
		panic(fmt.Sprintf("posixio: read() on unopened file descriptor %d", fd))
	}

	buffer := s.mem.BytesAtMut(addr, size)
	n, err := obj.file.Read(buffer)
	if err != nil && err != io.EOF {
		s.logger.Warnf("read(%d, %#x, %#x) encountered error %v, returning -1", fd, addr, size, err)
		return -1
	}
	if uint32(n) < size {
		s.logger.Warnf("read(%d, %#x, %#x) read only %#x bytes", fd, addr, size, n)
	} else {
		s.logger.Debugf("read(%d, %#x, %#x) => %#x", fd, addr, size, n)
	}
	return int32(n)
}

// Write drains the guest memory range [addr, addr+size) to fd at its
// current position.
func (s *State) Write(fd FileDescriptor, addr, size uint32) int32 {
	obj := s.fileForFD(fd)
	if obj == nil {
		panic(fmt.Sprintf("posixio: write() on unopened file descriptor %d", fd))
	}

	buffer := s.mem.BytesAt(addr, size)
	n, err := obj.file.Write(buffer)
	if err != nil {
		s.logger.Warnf("write(%d, %#x, %#x) encountered error %v, returning -1", fd, addr, size, err)
		return -1
	}
	if uint32(n) < size {
		s.logger.Warnf("write(%d, %#x, %#x) wrote only %#x bytes", fd, addr, size, n)
	} else {
		s.logger.Debugf("write(%d, %#x, %#x) => %#x", fd, addr, size, n)
	}
	return int32(n)
}

// Lseek repositions fd and returns the new offset, or -1 on failure.
func (s *State) Lseek(fd FileDescriptor, offset int64, whence int32) int64 {
	obj := s.fileForFD(fd)
	if obj == nil {
		panic(fmt.Sprintf("posixio: lseek() on unopened file descriptor %d", fd))
	}

	var from int
	switch whence {
	case SeekSet:
		if offset < 0 {
			panic(fmt.Sprintf("posixio: negative lseek() offset %d with SEEK_SET", offset))
		}
		from = io.SeekStart
	case SeekCur:
		from = io.SeekCurrent
	case SeekEnd:
		from = io.SeekEnd
	default:
		panic(fmt.Sprintf("posixio: unsupported \"whence\" parameter to lseek(): %d", whence))
	}

	newOffset, err := obj.file.Seek(offset, from)
	if err != nil {
		s.logger.Debugf("lseek(%d, %#x, %d) failed: %v", fd, offset, whence, err)
		return -1
	}
	s.logger.Debugf("lseek(%d, %#x, %d) => %d", fd, offset, whence, newOffset)
	return newOffset
}

// Close flushes and releases fd's slot, making it available for reuse by a
// later open(). It panics if fd is not open.
func (s *State) Close(fd FileDescriptor) int32 {
	idx := fdToFileIdx(fd)
	if idx < 0 || idx >= len(s.files) || s.files[idx] == nil {
		panic(fmt.Sprintf("posixio: close() on unopened file descriptor %d", fd))
	}

	obj := s.files[idx]
	s.files[idx] = nil

	syncErr := obj.file.Sync()
	closeErr := obj.file.Close()
	if syncErr != nil {
		s.logger.Warnf("close(%d) failed, returning -1", fd)
		return -1
	}
	if closeErr != nil {
		s.logger.Warnf("close(%d) failed, returning -1", fd)
		return -1
	}

	s.logger.Debugf("close(%d) => 0", fd)
	return 0
}
