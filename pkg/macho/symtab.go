package macho

// symtabInfo records where the symbol table and its string table live in
// the file, captured when the LC_SYMTAB command is parsed.
type symtabInfo struct {
	symOff  uint32
	nSyms   uint32
	strOff  uint32
	strSize uint32
}

// symbolRef is a minimal view of one nlist entry: just enough to resolve
// entry points and indirect/external symbol names.
type symbolRef struct {
	name        string
	value       uint32
	isDebug     bool
	isUndefined bool
}

// symbolAt looks up the nlist entry at idx within the symbol table
// described by info, returning false if idx is out of range or the entry
// can't be read (a malformed but non-fatal condition — callers tolerate a
// missing symbol by leaving the corresponding slot unresolved).
func symbolAt(data []byte, info symtabInfo, idx uint32) (symbolRef, bool) {
	if idx >= info.nSyms {
		return symbolRef{}, false
	}

	entryOff := narrow32(uint64(info.symOff)+uint64(idx)*nlist32Size, "symbol table entry offset")
	if int(entryOff)+nlist32Size > len(data) {
		return symbolRef{}, false
	}

	var entry nlist32
	c := newCursor(data)
	c.seek(int(entryOff))
	if err := c.readStruct(&entry, nlist32Size); err != nil {
		return symbolRef{}, false
	}

	var name string
	if entry.StrX != 0 {
		name = cstrAt(data, info.strOff+entry.StrX)
	}

	isDebug := entry.Type&nStab != 0
	isUndefined := !isDebug && entry.Type&nType == nUndf

	return symbolRef{name: name, value: entry.Value, isDebug: isDebug, isUndefined: isUndefined}, true
}
