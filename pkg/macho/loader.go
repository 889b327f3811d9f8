package macho

import (
	"encoding/binary"
	"fmt"

	"github.com/touchstone-hle/guestcore/pkg/guestmem"
)

const (
	fatMagic    uint32 = 0xcafebabe
	magic64     uint32 = 0xfeedfacf
	arFileMagic uint32 = 0x213c6172 // "!<ar" of the "!<arch>\n" ar(1) magic
)

// classify inspects the first 4 bytes of data and returns an error
// identifying why the file can't be loaded, or nil if it looks like a
// 32-bit little-endian Mach-O file worth attempting to parse further.
func classify(data []byte) error {
	leMagic := binary.LittleEndian.Uint32(data[:4])
	beMagic := binary.BigEndian.Uint32(data[:4])

	switch {
	case leMagic == machMagic32:
		return nil
	case leMagic == magic64 || beMagic == magic64:
		return Err64Bit
	case beMagic == machMagic32:
		return ErrBigEndian
	case leMagic == fatMagic || beMagic == fatMagic:
		return ErrFatBinary
	case beMagic == arFileMagic:
		return ErrUnsupportedFileKind
	default:
		return ErrMalformed
	}
}

// LoadFromBytes parses a 32-bit ARM Mach-O executable from data, loads its
// loadable segments into mem, and returns metadata describing it. It reads
// the binary exactly once; nothing in the returned MachO retains a
// reference to data.
func LoadFromBytes(data []byte, mem guestmem.GuestMemory) (*MachO, error) {
	if len(data) < headerSize {
		return nil, ErrMalformed
	}
	if err := classify(data); err != nil {
		return nil, err
	}

	var hdr header
	c := newCursor(data)
	if err := c.readStruct(&hdr, headerSize); err != nil {
		return nil, ErrMalformed
	}
	if hdr.CPUType != cpuTypeARM {
		return nil, ErrNotARM
	}

	var (
		symInfo              symtabInfo
		haveSymInfo          bool
		allSections          []rawSection
		indirectUndefSymbols []string
		dynamicLibraries     []string
		externalRelocations  []ExternalRelocation
		entryPointAddr       uint32
		hasEntryPoint        bool
	)

	pos := headerSize
	for i := uint32(0); i < hdr.NCmds; i++ {
		if pos+loadCommandHeaderSize > len(data) {
			return nil, ErrMalformed
		}

		var cmdHeader loadCommandHeader
		c.seek(pos)
		if err := c.readStruct(&cmdHeader, loadCommandHeaderSize); err != nil {
			return nil, ErrMalformed
		}
		if cmdHeader.CmdSize < loadCommandHeaderSize || pos+int(cmdHeader.CmdSize) > len(data) {
			return nil, ErrMalformed
		}
		body := data[pos+loadCommandHeaderSize : pos+int(cmdHeader.CmdSize)]

		switch LoadCmd(cmdHeader.Cmd) {
		case lcSegment:
			seg, sections, err := parseSegment(body)
			if err != nil {
				return nil, err
			}
			if err := loadSegment(seg, data, mem); err != nil {
				return nil, err
			}
			allSections = append(allSections, sections...)

		case lcSymtab:
			var symtabCmd symtabCommand
			bc := newCursor(body)
			if err := bc.readStruct(&symtabCmd, symtabCommandSize); err != nil {
				return nil, ErrMalformed
			}
			symInfo = symtabInfo{
				symOff:  symtabCmd.SymOff,
				nSyms:   symtabCmd.NSyms,
				strOff:  symtabCmd.StrOff,
				strSize: symtabCmd.StrSize,
			}
			haveSymInfo = true

			for idx := uint32(0); idx < symInfo.nSyms; idx++ {
				sym, ok := symbolAt(data, symInfo, idx)
				if !ok || sym.isDebug {
					continue
				}
				if !sym.isUndefined && sym.name == "start" {
					entryPointAddr = sym.value
					hasEntryPoint = true
				}
			}

		case lcDysymtab:
			if !haveSymInfo {
				panic("macho: LC_DYSYMTAB encountered before LC_SYMTAB")
			}
			var dysym dysymtabCommand
			bc := newCursor(body)
			if err := bc.readStruct(&dysym, dysymtabCommandSize); err != nil {
				return nil, ErrMalformed
			}

			indirectUndefSymbols = resolveIndirectSymbols(data, symInfo, dysym)
			externalRelocations = resolveExternalRelocations(data, symInfo, dysym)

		case lcEncryptionInfo:
			var enc encryptionInfoCommand
			bc := newCursor(body)
			if err := bc.readStruct(&enc, encryptionInfoCommandSize); err != nil {
				return nil, ErrMalformed
			}
			if enc.CryptID != 0 {
				return nil, ErrEncrypted
			}

		case lcLoadDylib:
			var dylib dylibCommand
			bc := newCursor(body)
			if err := bc.readStruct(&dylib, dylibCommandSize); err != nil {
				return nil, ErrMalformed
			}
			name := cstrAt(body, dylib.NameOffset-loadCommandHeaderSize)
			dynamicLibraries = append(dynamicLibraries, name)

		case lcDyldInfo, lcDyldInfoOnly:
			logger.Warnf("LC_DYLD_INFO is not handled")

		default:
			// Every other load command is irrelevant to loading: thread
			// state, code signatures, UUIDs, and so on.
		}

		pos += int(cmdHeader.CmdSize)
	}

	sections := buildSections(allSections, indirectUndefSymbols)

	return &MachO{
		EntryPointAddr:      entryPointAddr,
		HasEntryPoint:       hasEntryPoint,
		DynamicLibraries:    dynamicLibraries,
		Sections:            sections,
		ExternalRelocations: externalRelocations,
	}, nil
}

// loadSegment applies the __LINKEDIT/__PAGEZERO/__TEXT/__DATA policy and, if
// the segment is one that should be mapped, reserves its address range and
// copies its file contents in.
func loadSegment(seg segmentCommand32, data []byte, mem guestmem.GuestMemory) error {
	segName := fixedName(seg.SegName[:])

	loadMe := true
	switch segName {
	case "__LINKEDIT":
		loadMe = false
	case "__PAGEZERO":
		if seg.VMAddr != 0 || seg.VMSize != guestmem.NullPageSize || seg.FileSize != 0 {
			panic(fmt.Sprintf(
				"macho: unexpected __PAGEZERO layout: vmaddr=%#x vmsize=%#x filesize=%#x",
				seg.VMAddr, seg.VMSize, seg.FileSize,
			))
		}
		loadMe = false
	case "__TEXT", "__DATA":
		loadMe = true
	default:
		logger.Warnf("unexpected segment name: %s", segName)
		loadMe = true
	}

	if !loadMe {
		return nil
	}

	mem.Reserve(seg.VMAddr, seg.VMSize)
	if seg.FileSize == 0 {
		return nil
	}
	if seg.FileSize > seg.VMSize {
		panic(fmt.Sprintf("macho: segment %q has filesize %#x greater than vmsize %#x", segName, seg.FileSize, seg.VMSize))
	}
	if int(seg.FileOff)+int(seg.FileSize) > len(data) {
		return ErrMalformed
	}

	src := data[seg.FileOff:][:seg.FileSize]
	dst := mem.BytesAtMut(seg.VMAddr, seg.FileSize)
	copy(dst, src)
	return nil
}

// resolveIndirectSymbols reads the indirect symbol table and resolves each
// entry to the name of the undefined symbol it refers to, leaving an empty
// string where resolution fails — a missing indirect symbol name is
// tolerated, since only the dynamic linker that consumes this data actually
// needs every stub resolved.
func resolveIndirectSymbols(data []byte, symInfo symtabInfo, dysym dysymtabCommand) []string {
	if dysym.NIndirectSyms == 0 {
		return nil
	}
	if int(dysym.IndirectSymOff)+int(dysym.NIndirectSyms)*4 > len(data) {
		return make([]string, dysym.NIndirectSyms)
	}

	raw := data[dysym.IndirectSymOff:][:dysym.NIndirectSyms*4]
	names := make([]string, dysym.NIndirectSyms)
	for i := uint32(0); i < dysym.NIndirectSyms; i++ {
		idx := byteOrder.Uint32(raw[i*4:])
		sym, ok := symbolAt(data, symInfo, idx)
		if ok && sym.isUndefined && sym.name != "" {
			names[i] = sym.name
		}
	}
	return names
}

// resolveExternalRelocations reads the external relocation table and
// resolves each entry's symbol index to a name, dropping entries that don't
// refer to a named undefined symbol.
func resolveExternalRelocations(data []byte, symInfo symtabInfo, dysym dysymtabCommand) []ExternalRelocation {
	if dysym.NExtRel == 0 {
		return nil
	}
	if int(dysym.ExtRelOff)+int(dysym.NExtRel)*8 > len(data) {
		return nil
	}

	raw := data[dysym.ExtRelOff:][:dysym.NExtRel*8]
	var relocations []ExternalRelocation
	for i := uint32(0); i < dysym.NExtRel; i++ {
		entry := raw[i*8:][:8]
		addr := byteOrder.Uint32(entry[:4])
		symIdx := byteOrder.Uint32(entry[4:8]) & 0x00ffffff

		sym, ok := symbolAt(data, symInfo, symIdx)
		if !ok || !sym.isUndefined || sym.name == "" {
			continue
		}
		relocations = append(relocations, ExternalRelocation{Addr: addr, Name: sym.name})
	}
	return relocations
}
