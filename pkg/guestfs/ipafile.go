package guestfs

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"sync"

	"github.com/pkg/errors"
)

// zipArena owns the single *zip.ReadCloser backing an ingested IPA and
// serializes access to it. Go's archive/zip is in fact safe for concurrent
// File.Open calls, since each one opens an independent section reader over
// the underlying ReaderAt; the mutex here exists anyway to keep the access
// contract explicit and assertable, matching the single shared, mutably
// borrowed handle the rest of this package's API is modeled on.
type zipArena struct {
	mu     sync.Mutex
	reader *zip.ReadCloser
}

func newZipArena(reader *zip.ReadCloser) *zipArena {
	return &zipArena{reader: reader}
}

func (a *zipArena) openByIndex(index int) io.ReadCloser {
	a.mu.Lock()
	defer a.mu.Unlock()

	if index < 0 || index >= len(a.reader.File) {
		panic(fmt.Sprintf("guestfs: BUG: zip entry index %d out of range", index))
	}
	rc, err := a.reader.File[index].Open()
	if err != nil {
		panic(errors.Wrapf(err, "IO error while opening bundle file (zip index %d)", index))
	}
	return rc
}

func (a *zipArena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reader.Close()
}

// IpaFileRef is a lightweight, cloneable reference to a single entry inside
// an ingested IPA's ZIP archive. The entry's content is not read until Open
// is called.
type IpaFileRef struct {
	arena *zipArena
	index int
}

// Open decompresses the referenced entry in full and returns a seekable
// in-memory file. Decompression failure is treated as a fatal, non-
// recoverable condition (a corrupt IPA discovered mid-run), matching the
// original loader's behavior, so this panics rather than returning an error.
func (r *IpaFileRef) Open() *IpaFile {
	rc := r.arena.openByIndex(r.index)
	defer rc.Close()

	data, err := ioutil.ReadAll(rc)
	if err != nil {
		panic(errors.Wrap(err, "IO error while reading bundle file from IPA archive"))
	}
	return &IpaFile{reader: bytes.NewReader(data)}
}

// IpaFile is a fully-buffered, read-only view of one decompressed ZIP entry.
// It satisfies GuestFile so it can be handed directly to the POSIX I/O shim.
type IpaFile struct {
	reader *bytes.Reader
}

func (f *IpaFile) Read(p []byte) (int, error) { return f.reader.Read(p) }

func (f *IpaFile) Seek(offset int64, whence int) (int64, error) {
	return f.reader.Seek(offset, whence)
}

func (f *IpaFile) Write([]byte) (int, error) {
	return 0, errors.New("guestfs: bundle contents are read-only")
}

func (f *IpaFile) Sync() error { return nil }

func (f *IpaFile) Close() error { return nil }

// ZipEntryBacking backs a file node with a reference into an ingested IPA's
// ZIP archive.
type ZipEntryBacking struct {
	Ref *IpaFileRef
}

// OpenWithOptions implements FileBacking. Any write-intent flag is rejected
// up front, since ZIP entries are immutable once ingested.
func (b *ZipEntryBacking) OpenWithOptions(options *GuestOpenOptions) (GuestFile, error) {
	if options.write || options.create || options.truncate {
		return nil, errors.New("guestfs: bundle contents are read-only")
	}
	return b.Ref.Open(), nil
}
