package macho

import "github.com/touchstone-hle/guestcore/pkg/logging"

// logger is this package's ambient sublogger, used for tolerated-but-
// unusual conditions (an unrecognized segment name, an unhandled
// LC_DYLD_INFO command) that don't rise to a returned error.
var logger = logging.RootLogger.Sublogger("macho")

// MachO is the metadata and loaded state of a single ARM Mach-O executable.
type MachO struct {
	// EntryPointAddr is the address of the "start" symbol, if one was found.
	EntryPointAddr uint32
	HasEntryPoint  bool
	// DynamicLibraries lists the paths named by this binary's LC_LOAD_DYLIB
	// commands, in load-command order.
	DynamicLibraries []string
	// Sections holds metadata for every section across every loaded
	// segment.
	Sections []Section
	// ExternalRelocations lists the addresses the dynamic linker must patch
	// with the resolved address of a named external symbol.
	ExternalRelocations []ExternalRelocation
}

// GetSection returns the first section named name, or nil if there is none.
func (m *MachO) GetSection(name string) *Section {
	for i := range m.Sections {
		if m.Sections[i].Name == name {
			return &m.Sections[i]
		}
	}
	return nil
}

// Section is metadata for one Mach-O section.
type Section struct {
	Name                   string
	Addr                   uint32
	Size                   uint32
	DyldIndirectSymbolInfo *DyldIndirectSymbolInfo
}

// DyldIndirectSymbolInfo describes a section that holds a series of
// pointers or stub functions used to indirectly reference dynamically
// linked symbols (__nl_symbol_ptr, __la_symbol_ptr, __symbol_stub4).
type DyldIndirectSymbolInfo struct {
	// EntrySize is the size in bytes of a single pointer or stub entry.
	EntrySize uint32
	// IndirectUndefSymbols names the undefined symbol each entry
	// corresponds to, in entry order. An empty string means no name could
	// be resolved for that entry.
	IndirectUndefSymbols []string
}

// ExternalRelocation is one entry from LC_DYSYMTAB's external relocation
// list: an address the dynamic linker must patch with the resolved address
// of Name.
type ExternalRelocation struct {
	Addr uint32
	Name string
}

// rawSection is the intermediate form of a section read directly off a
// segment command, before indirect symbol names have been resolved against
// it.
type rawSection struct {
	Name      string
	Addr      uint32
	Size      uint32
	Reserved1 uint32
}
