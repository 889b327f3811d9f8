// Package guestmem defines the guest-memory collaborator interface consumed
// by the Mach-O loader and the POSIX I/O shim, along with a reference
// implementation suitable for running the core without a real ARM
// interpreter attached. The reference implementation stores bytes only; it
// never executes guest code, in keeping with the core's scope.
package guestmem

// NullPageSize is the size, in bytes, of the reserved zero page mapped at
// guest address 0. It mirrors the __PAGEZERO segment size expected by the
// Mach-O loader.
const NullPageSize = 0x1000

// GuestMemory is the interface the Mach-O loader and POSIX I/O shim use to
// read and write the guest address space. Implementations must guarantee
// that a freshly reserved range reads back as all zeroes.
type GuestMemory interface {
	// Reserve makes the address range [addr, addr+size) addressable and
	// zero-filled. It is safe to call Reserve more than once for overlapping
	// or adjacent ranges.
	Reserve(addr, size uint32)
	// BytesAt returns a read-only view of the byte range [addr, addr+size).
	// The range must already be reserved.
	BytesAt(addr, size uint32) []byte
	// BytesAtMut returns a mutable view of the byte range [addr, addr+size).
	// The range must already be reserved.
	BytesAtMut(addr, size uint32) []byte
	// CstrAtUTF8 reads a NUL-terminated string starting at addr and decodes
	// it as UTF-8.
	CstrAtUTF8(addr uint32) string
}
