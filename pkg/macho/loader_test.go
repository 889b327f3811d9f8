package macho

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/touchstone-hle/guestcore/pkg/guestmem"
)

// testCommand is one load command to be assembled into a synthetic Mach-O
// file by buildFile: cmd is the LC_* value, body is everything after the
// 8-byte (cmd, cmdsize) header.
type testCommand struct {
	cmd  uint32
	body []byte
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// buildSegmentBody builds an LC_SEGMENT command body (without its 8-byte
// header) for a segment named name with one section named sectionName,
// whose reserved1/size describe an indirect symbol run.
func buildSegmentBody(name string, vmaddr, vmsize, fileoff, filesize uint32, sectionName string, sectAddr, sectSize, reserved1 uint32) []byte {
	var buf bytes.Buffer
	var segName [16]byte
	copy(segName[:], name)
	buf.Write(segName[:])
	buf.Write(u32(vmaddr))
	buf.Write(u32(vmsize))
	buf.Write(u32(fileoff))
	buf.Write(u32(filesize))
	buf.Write(u32(7)) // maxprot
	buf.Write(u32(7)) // initprot
	nsects := uint32(0)
	if sectionName != "" {
		nsects = 1
	}
	buf.Write(u32(nsects))
	buf.Write(u32(0)) // flags

	if sectionName != "" {
		var sectName, segNameField [16]byte
		copy(sectName[:], sectionName)
		copy(segNameField[:], name)
		buf.Write(sectName[:])
		buf.Write(segNameField[:])
		buf.Write(u32(sectAddr))
		buf.Write(u32(sectSize))
		buf.Write(u32(0)) // offset
		buf.Write(u32(0)) // align
		buf.Write(u32(0)) // reloff
		buf.Write(u32(0)) // nreloc
		buf.Write(u32(0)) // flags
		buf.Write(u32(reserved1))
		buf.Write(u32(0)) // reserved2
	}
	return buf.Bytes()
}

func buildFile(commands []testCommand) []byte {
	var cmdsBuf bytes.Buffer
	for _, c := range commands {
		cmdsize := uint32(8 + len(c.body))
		cmdsBuf.Write(u32(c.cmd))
		cmdsBuf.Write(u32(cmdsize))
		cmdsBuf.Write(c.body)
	}

	var buf bytes.Buffer
	buf.Write(u32(machMagic32))
	buf.Write(u32(uint32(cpuTypeARM)))
	buf.Write(u32(0)) // cpusubtype
	buf.Write(u32(2)) // filetype MH_EXECUTE
	buf.Write(u32(uint32(len(commands))))
	buf.Write(u32(uint32(cmdsBuf.Len())))
	buf.Write(u32(0)) // flags
	buf.Write(cmdsBuf.Bytes())
	return buf.Bytes()
}

// buildNlist encodes one 32-bit nlist entry.
func buildNlist(strx uint32, typ, sect uint8, desc int16, value uint32) []byte {
	var buf bytes.Buffer
	buf.Write(u32(strx))
	buf.WriteByte(typ)
	buf.WriteByte(sect)
	descBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(descBytes, uint16(desc))
	buf.Write(descBytes)
	buf.Write(u32(value))
	return buf.Bytes()
}

// TestLoadFromBytesBasicSegmentAndEntryPoint builds a minimal executable
// with one loadable __TEXT segment, a symbol table containing a defined
// "start" symbol, and verifies both the copied segment bytes and the
// resolved entry point.
func TestLoadFromBytesBasicSegmentAndEntryPoint(t *testing.T) {
	const (
		textVMAddr = 0x1000
		textSize   = 0x10
	)
	textContent := []byte("CODEBYTES\x00\x00\x00\x00\x00\x00\x00")

	// Trailing blob layout, computed after the fixed header+commands region.
	headerAndCmds := headerSize + loadCommandHeaderSize + segmentCommand32Size // segment cmd, no sections
	headerAndCmds += loadCommandHeaderSize + symtabCommandSize                // symtab cmd

	fileOff := uint32(headerAndCmds)
	strTab := append([]byte{0}, []byte("start\x00")...)
	strOff := fileOff + uint32(len(textContent))
	symOff := strOff + uint32(len(strTab))
	symTab := buildNlist(1 /* "start" */, 0x0e /* N_SECT */, 1, 0, 0x1004)

	segBody := buildSegmentBody("__TEXT", textVMAddr, textSize, fileOff, uint32(len(textContent)), "", 0, 0, 0)
	symtabBody := append(u32(symOff), u32(1)...)
	symtabBody = append(symtabBody, u32(strOff)...)
	symtabBody = append(symtabBody, u32(uint32(len(strTab)))...)

	header := buildFile([]testCommand{
		{cmd: uint32(lcSegment), body: segBody},
		{cmd: uint32(lcSymtab), body: symtabBody},
	})

	data := append(header, textContent...)
	data = append(data, strTab...)
	data = append(data, symTab...)

	mem := guestmem.NewFlatMemory()
	m, err := LoadFromBytes(data, mem)
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if !m.HasEntryPoint || m.EntryPointAddr != 0x1004 {
		t.Fatalf("entry point = (%v, %#x), expected (true, 0x1004)", m.HasEntryPoint, m.EntryPointAddr)
	}

	got := mem.BytesAt(textVMAddr, uint32(len(textContent)))
	if !bytes.Equal(got, textContent) {
		t.Fatalf("segment content = %q, expected %q", got, textContent)
	}
}

func TestLoadFromBytesRejectsNonARM(t *testing.T) {
	data := buildFile(nil)
	binary.LittleEndian.PutUint32(data[4:], 0x7) // CPU_TYPE_X86

	if _, err := LoadFromBytes(data, guestmem.NewFlatMemory()); err != ErrNotARM {
		t.Fatalf("LoadFromBytes error = %v, expected ErrNotARM", err)
	}
}

func TestLoadFromBytesRejectsEncrypted(t *testing.T) {
	encBody := append(u32(0), append(u32(0), u32(1)...)...) // cryptoff, cryptsize, cryptid=1
	data := buildFile([]testCommand{{cmd: uint32(lcEncryptionInfo), body: encBody}})

	if _, err := LoadFromBytes(data, guestmem.NewFlatMemory()); err != ErrEncrypted {
		t.Fatalf("LoadFromBytes error = %v, expected ErrEncrypted", err)
	}
}

func TestLoadFromBytesAcceptsUnencrypted(t *testing.T) {
	encBody := append(u32(0), append(u32(0), u32(0)...)...) // cryptid=0
	data := buildFile([]testCommand{{cmd: uint32(lcEncryptionInfo), body: encBody}})

	if _, err := LoadFromBytes(data, guestmem.NewFlatMemory()); err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
}

func TestLoadFromBytesRejectsBadMagic(t *testing.T) {
	data := buildFile(nil)
	binary.LittleEndian.PutUint32(data[0:], 0xdeadbeef)

	if _, err := LoadFromBytes(data, guestmem.NewFlatMemory()); err != ErrMalformed {
		t.Fatalf("LoadFromBytes error = %v, expected ErrMalformed", err)
	}
}

func TestLoadFromBytesRejectsFatBinary(t *testing.T) {
	data := buildFile(nil)
	binary.LittleEndian.PutUint32(data[0:], 0xcafebabe)

	if _, err := LoadFromBytes(data, guestmem.NewFlatMemory()); err != ErrFatBinary {
		t.Fatalf("LoadFromBytes error = %v, expected ErrFatBinary", err)
	}
}

func TestLoadFromBytesLoadDylib(t *testing.T) {
	name := "/usr/lib/libSystem.B.dylib"
	var body bytes.Buffer
	body.Write(u32(loadCommandHeaderSize + dylibCommandSize)) // name offset
	body.Write(u32(0))                                        // timestamp
	body.Write(u32(0))                                        // current_version
	body.Write(u32(0))                                        // compatibility_version
	body.WriteString(name)
	body.WriteByte(0)

	data := buildFile([]testCommand{{cmd: uint32(lcLoadDylib), body: body.Bytes()}})

	m, err := LoadFromBytes(data, guestmem.NewFlatMemory())
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if len(m.DynamicLibraries) != 1 || m.DynamicLibraries[0] != name {
		t.Fatalf("DynamicLibraries = %v, expected [%q]", m.DynamicLibraries, name)
	}
}

func TestLoadFromBytesPageZeroMismatchPanics(t *testing.T) {
	segBody := buildSegmentBody("__PAGEZERO", 0x1, guestmem.NullPageSize, 0, 0, "", 0, 0, 0)
	data := buildFile([]testCommand{{cmd: uint32(lcSegment), body: segBody}})

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a malformed __PAGEZERO segment")
		}
	}()
	LoadFromBytes(data, guestmem.NewFlatMemory())
}

func TestLoadFromBytesIndirectSymbols(t *testing.T) {
	const sectAddr = 0x2000

	headerAndCmds := headerSize +
		loadCommandHeaderSize + segmentCommand32Size + section32Size +
		loadCommandHeaderSize + symtabCommandSize +
		loadCommandHeaderSize + dysymtabCommandSize

	strTab := append([]byte{0}, []byte("foo\x00")...)
	strOff := uint32(headerAndCmds)
	symOff := strOff + uint32(len(strTab))
	indirectOff := symOff + nlist32Size

	// One undefined symbol "foo".
	symTab := buildNlist(1, 0x00 /* N_UNDF */, 0, 0, 0)
	indirectTab := u32(0) // references symbol index 0

	segBody := buildSegmentBody("__DATA", 0x2000, 0x10, 0, 0, "__la_symbol_ptr", sectAddr, 4, 0)
	symtabBody := append(u32(symOff), u32(1)...)
	symtabBody = append(symtabBody, u32(strOff)...)
	symtabBody = append(symtabBody, u32(uint32(len(strTab)))...)

	var dysymBody bytes.Buffer
	dysymBody.Write(u32(0)) // ilocalsym
	dysymBody.Write(u32(0)) // nlocalsym
	dysymBody.Write(u32(0)) // iextdefsym
	dysymBody.Write(u32(0)) // nextdefsym
	dysymBody.Write(u32(0)) // iundefsym
	dysymBody.Write(u32(1)) // nundefsym
	dysymBody.Write(u32(0)) // tocoff
	dysymBody.Write(u32(0)) // ntoc
	dysymBody.Write(u32(0)) // modtaboff
	dysymBody.Write(u32(0)) // nmodtab
	dysymBody.Write(u32(0)) // extrefsymoff
	dysymBody.Write(u32(0)) // nextrefsyms
	dysymBody.Write(u32(indirectOff))
	dysymBody.Write(u32(1)) // nindirectsyms
	dysymBody.Write(u32(0)) // extreloff
	dysymBody.Write(u32(0)) // nextrel
	dysymBody.Write(u32(0)) // locreloff
	dysymBody.Write(u32(0)) // nlocrel

	header := buildFile([]testCommand{
		{cmd: uint32(lcSegment), body: segBody},
		{cmd: uint32(lcSymtab), body: symtabBody},
		{cmd: uint32(lcDysymtab), body: dysymBody.Bytes()},
	})

	data := append(header, strTab...)
	data = append(data, symTab...)
	data = append(data, indirectTab...)

	m, err := LoadFromBytes(data, guestmem.NewFlatMemory())
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}

	section := m.GetSection("__la_symbol_ptr")
	if section == nil {
		t.Fatal("expected a __la_symbol_ptr section")
	}
	if section.DyldIndirectSymbolInfo == nil {
		t.Fatal("expected DyldIndirectSymbolInfo to be populated")
	}
	if got := section.DyldIndirectSymbolInfo.IndirectUndefSymbols; len(got) != 1 || got[0] != "foo" {
		t.Fatalf("IndirectUndefSymbols = %v, expected [\"foo\"]", got)
	}
}

// buildDysymtabBody encodes a dysymtab_command body referencing only the
// given indirect-symbol and external-relocation tables.
func buildDysymtabBody(indirectOff, nIndirect, extRelOff, nExtRel uint32) []byte {
	var buf bytes.Buffer
	for i := 0; i < 12; i++ {
		buf.Write(u32(0)) // ilocalsym through nextrefsyms
	}
	buf.Write(u32(indirectOff))
	buf.Write(u32(nIndirect))
	buf.Write(u32(extRelOff))
	buf.Write(u32(nExtRel))
	buf.Write(u32(0)) // locreloff
	buf.Write(u32(0)) // nlocrel
	return buf.Bytes()
}

func TestLoadFromBytesExternalRelocations(t *testing.T) {
	headerAndCmds := headerSize +
		loadCommandHeaderSize + symtabCommandSize +
		loadCommandHeaderSize + dysymtabCommandSize

	strTab := append([]byte{0}, []byte("_malloc\x00")...)
	strOff := uint32(headerAndCmds)
	symOff := strOff + uint32(len(strTab))
	extRelOff := symOff + nlist32Size

	symTab := buildNlist(1, 0x00 /* N_UNDF */, 0, 0, 0) // undefined "_malloc"

	// One relocation entry at 0x3008, symbol index 0, with high type bits set
	// in the second word to verify the 24-bit index mask.
	var relEntry bytes.Buffer
	relEntry.Write(u32(0x3008))
	relEntry.Write(u32(0x5d000000 | 0))

	symtabBody := append(u32(symOff), u32(1)...)
	symtabBody = append(symtabBody, u32(strOff)...)
	symtabBody = append(symtabBody, u32(uint32(len(strTab)))...)

	header := buildFile([]testCommand{
		{cmd: uint32(lcSymtab), body: symtabBody},
		{cmd: uint32(lcDysymtab), body: buildDysymtabBody(0, 0, extRelOff, 1)},
	})

	data := append(header, strTab...)
	data = append(data, symTab...)
	data = append(data, relEntry.Bytes()...)

	m, err := LoadFromBytes(data, guestmem.NewFlatMemory())
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	expected := []ExternalRelocation{{Addr: 0x3008, Name: "_malloc"}}
	if !reflect.DeepEqual(m.ExternalRelocations, expected) {
		t.Fatalf("ExternalRelocations = %v, expected %v", m.ExternalRelocations, expected)
	}
}

// TestLoadFromBytesIsDeterministic verifies that loading the same binary
// twice into fresh memories yields equal metadata and equal memory contents.
func TestLoadFromBytesIsDeterministic(t *testing.T) {
	segBody := buildSegmentBody("__TEXT", 0x1000, 0x20, 0, 0, "", 0, 0, 0)
	data := buildFile([]testCommand{{cmd: uint32(lcSegment), body: segBody}})

	memA := guestmem.NewFlatMemory()
	a, err := LoadFromBytes(data, memA)
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	memB := guestmem.NewFlatMemory()
	b, err := LoadFromBytes(data, memB)
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("repeated loads disagree: %+v vs %+v", a, b)
	}
	if !bytes.Equal(memA.BytesAt(0x1000, 0x20), memB.BytesAt(0x1000, 0x20)) {
		t.Fatal("repeated loads produced different memory contents")
	}
}
