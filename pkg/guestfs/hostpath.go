package guestfs

import "os"

// HostPathBacking backs a file node with a real path on the host
// filesystem, used when a bundle is mounted straight from an extracted
// directory rather than a .ipa archive. Unlike ZipEntryBacking, it supports
// write access, since there is a real host file underneath to write to.
type HostPathBacking struct {
	HostPath string
}

// OpenWithOptions implements FileBacking.
func (b HostPathBacking) OpenWithOptions(options *GuestOpenOptions) (GuestFile, error) {
	flags := os.O_RDONLY
	switch {
	case options.write && options.read:
		flags = os.O_RDWR
	case options.write:
		flags = os.O_WRONLY
	}
	if options.appendMode {
		flags |= os.O_APPEND
	}
	if options.create {
		flags |= os.O_CREATE
	}
	if options.truncate {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(b.HostPath, flags, 0644)
	if err != nil {
		return nil, err
	}
	return hostGuestFile{f}, nil
}

// hostGuestFile adapts *os.File to the GuestFile interface.
type hostGuestFile struct {
	f *os.File
}

func (h hostGuestFile) Read(p []byte) (int, error)  { return h.f.Read(p) }
func (h hostGuestFile) Write(p []byte) (int, error) { return h.f.Write(p) }
func (h hostGuestFile) Seek(offset int64, whence int) (int64, error) {
	return h.f.Seek(offset, whence)
}
func (h hostGuestFile) Sync() error  { return h.f.Sync() }
func (h hostGuestFile) Close() error { return h.f.Close() }
