// Package macho parses the 32-bit little-endian ARM Mach-O executables used
// by early iPhone OS apps, loading their loadable segments into guest
// memory and recording the metadata (entry point, dynamic libraries,
// indirect symbol stubs, external relocations) the rest of the emulator
// needs to run them. Only what a single non-fat ARM executable requires is
// implemented; archives and fat binaries are rejected. The header's file
// type is not checked, so other single-architecture Mach-O files (such as
// object files) are parsed like executables.
package macho

import "encoding/binary"

// LoadCmd identifies the kind of a Mach-O load command, using the same
// numeric values as <mach-o/loader.h>.
type LoadCmd uint32

const (
	lcSegment        LoadCmd = 0x1
	lcSymtab         LoadCmd = 0x2
	lcDysymtab       LoadCmd = 0xb
	lcLoadDylib      LoadCmd = 0xc
	lcEncryptionInfo LoadCmd = 0x21
	lcDyldInfo       LoadCmd = 0x22
	lcDyldInfoOnly   LoadCmd = 0x80000022
)

// cpuTypeARM is the cputype value for 32-bit ARM.
const cpuTypeARM uint32 = 0xc

// machMagic32 is the magic number for a 32-bit little-endian Mach-O file.
const machMagic32 uint32 = 0xfeedface

var byteOrder = binary.LittleEndian

// header mirrors struct mach_header (32-bit, no reserved trailing field).
type header struct {
	Magic      uint32
	CPUType    uint32
	CPUSubtype uint32
	FileType   uint32
	NCmds      uint32
	SizeOfCmds uint32
	Flags      uint32
}

const headerSize = 28

// loadCommandHeader is the 8-byte prefix common to every load command.
type loadCommandHeader struct {
	Cmd     uint32
	CmdSize uint32
}

const loadCommandHeaderSize = 8

// segmentCommand32 mirrors struct segment_command (32-bit), minus the
// common load command header, which is read separately.
type segmentCommand32 struct {
	SegName  [16]byte
	VMAddr   uint32
	VMSize   uint32
	FileOff  uint32
	FileSize uint32
	MaxProt  uint32
	InitProt uint32
	NSects   uint32
	Flags    uint32
}

const segmentCommand32Size = 48

// section32 mirrors struct section (32-bit).
type section32 struct {
	SectName  [16]byte
	SegName   [16]byte
	Addr      uint32
	Size      uint32
	Offset    uint32
	Align     uint32
	RelOff    uint32
	NReloc    uint32
	Flags     uint32
	Reserved1 uint32
	Reserved2 uint32
}

const section32Size = 68

// symtabCommand mirrors struct symtab_command, minus the common header.
type symtabCommand struct {
	SymOff  uint32
	NSyms   uint32
	StrOff  uint32
	StrSize uint32
}

const symtabCommandSize = 16

// dysymtabCommand mirrors struct dysymtab_command, minus the common header.
type dysymtabCommand struct {
	ILocalSym      uint32
	NLocalSym      uint32
	IExtDefSym     uint32
	NExtDefSym     uint32
	IUndefSym      uint32
	NUndefSym      uint32
	TOCOff         uint32
	NTOC           uint32
	ModTabOff      uint32
	NModTab        uint32
	ExtRefSymOff   uint32
	NExtRefSyms    uint32
	IndirectSymOff uint32
	NIndirectSyms  uint32
	ExtRelOff      uint32
	NExtRel        uint32
	LocRelOff      uint32
	NLocRel        uint32
}

const dysymtabCommandSize = 72

// dylibCommand mirrors struct dylib_command, minus the common header. Name
// is a variable-length, NUL-padded string starting NameOffset bytes after
// the command's own start (including the 8-byte load command header).
type dylibCommand struct {
	NameOffset       uint32
	Timestamp        uint32
	CurrentVersion   uint32
	CompatibilityVer uint32
}

const dylibCommandSize = 16

// encryptionInfoCommand mirrors struct encryption_info_command, minus the
// common header.
type encryptionInfoCommand struct {
	CryptOff  uint32
	CryptSize uint32
	CryptID   uint32
}

const encryptionInfoCommandSize = 12

// nlist32 mirrors struct nlist (32-bit symbol table entry).
type nlist32 struct {
	StrX  uint32
	Type  uint8
	Sect  uint8
	Desc  int16
	Value uint32
}

const nlist32Size = 12

// Symbol type bits from <mach-o/nlist.h>, relevant to classifying entries
// as debug stabs, undefined, or defined-with-a-value symbols.
const (
	nStab = 0xe0
	nType = 0x0e
	nUndf = 0x00
)

// narrow32 converts a 64-bit field read from a Mach-O command into a uint32
// guest address or size, panicking if the value doesn't fit. The guest
// address space is inherently 32-bit, so a value that doesn't fit indicates
// a malformed or unsupported binary, not a recoverable condition.
func narrow32(v uint64, what string) uint32 {
	if v > 0xffffffff {
		panic("macho: " + what + " does not fit in 32 bits")
	}
	return uint32(v)
}
