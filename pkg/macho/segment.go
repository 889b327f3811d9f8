package macho

import "fmt"

// parseSegment decodes a segment_command (32-bit) and its trailing section
// array from body, the load command's bytes following its 8-byte header.
func parseSegment(body []byte) (segmentCommand32, []rawSection, error) {
	var seg segmentCommand32
	c := newCursor(body)
	if err := c.readStruct(&seg, segmentCommand32Size); err != nil {
		return seg, nil, ErrMalformed
	}

	sections := make([]rawSection, 0, seg.NSects)
	for i := uint32(0); i < seg.NSects; i++ {
		var sect section32
		if err := c.readStruct(&sect, section32Size); err != nil {
			return seg, nil, ErrMalformed
		}
		sections = append(sections, rawSection{
			Name:      fixedName(sect.SectName[:]),
			Addr:      sect.Addr,
			Size:      sect.Size,
			Reserved1: sect.Reserved1,
		})
	}
	return seg, sections, nil
}

// buildSections classifies each raw section and, for the special dyld
// indirect-symbol-pointer sections, slices the matching run of names out of
// indirectUndefSymbols. Slots that are consumed are cleared in place, since
// each indirect symbol slot belongs to exactly one section.
func buildSections(raw []rawSection, indirectUndefSymbols []string) []Section {
	sections := make([]Section, 0, len(raw))
	for _, r := range raw {
		var entrySize uint32
		switch r.Name {
		case "__symbol_stub4":
			entrySize = 12
		case "__nl_symbol_ptr", "__la_symbol_ptr":
			entrySize = 4
		}

		var info *DyldIndirectSymbolInfo
		if entrySize != 0 {
			if r.Size%entrySize != 0 {
				panic(fmt.Sprintf("macho: section %q size %#x is not a multiple of its entry size %d", r.Name, r.Size, entrySize))
			}
			count := int(r.Size / entrySize)
			start := int(r.Reserved1)

			names := make([]string, count)
			if start >= 0 && count >= 0 && start+count <= len(indirectUndefSymbols) {
				copy(names, indirectUndefSymbols[start:start+count])
				for i := start; i < start+count; i++ {
					indirectUndefSymbols[i] = ""
				}
			}
			info = &DyldIndirectSymbolInfo{EntrySize: entrySize, IndirectUndefSymbols: names}
		}

		sections = append(sections, Section{
			Name:                   r.Name,
			Addr:                   r.Addr,
			Size:                   r.Size,
			DyldIndirectSymbolInfo: info,
		})
	}
	return sections
}
