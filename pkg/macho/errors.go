package macho

import "errors"

var (
	// ErrMalformed is returned when the file cannot be parsed as a Mach-O
	// file at all (bad magic, truncated header or load commands).
	ErrMalformed = errors.New("macho: could not parse Mach-O file")
	// ErrUnsupportedFileKind is returned for archives and symbol-definition
	// files, which are never executables.
	ErrUnsupportedFileKind = errors.New("macho: not an executable Mach-O file")
	// ErrFatBinary is returned for a fat (multi-architecture) binary.
	ErrFatBinary = errors.New("macho: fat binaries are not supported")
	// ErrNotARM is returned when the binary's CPU type isn't ARM.
	ErrNotARM = errors.New("macho: executable is not for an ARM CPU")
	// ErrBigEndian is returned for a big-endian binary.
	ErrBigEndian = errors.New("macho: executable is not little-endian")
	// Err64Bit is returned for a 64-bit binary.
	Err64Bit = errors.New("macho: executable is not 32-bit")
	// ErrEncrypted is returned when the binary's LC_ENCRYPTION_INFO command
	// reports a nonzero cryptid: the executable is still encrypted and
	// cannot be loaded.
	ErrEncrypted = errors.New("macho: executable is encrypted")
)
