package macho

import (
	"bytes"
	"testing"
)

func TestSymbolAtOutOfRangeReturnsFalse(t *testing.T) {
	info := symtabInfo{symOff: 0, nSyms: 2, strOff: 0, strSize: 0}
	if _, ok := symbolAt(nil, info, 5); ok {
		t.Fatal("expected symbolAt to report false for an out-of-range index")
	}
}

func TestSymbolAtClassifiesUndefinedAndDefined(t *testing.T) {
	strTab := append([]byte{0}, []byte("bar\x00")...)
	const symOff = 64
	strOff := uint32(symOff + 2*nlist32Size)

	var data bytes.Buffer
	data.Write(make([]byte, symOff))
	data.Write(buildNlist(1, 0x00 /* N_UNDF */, 0, 0, 0))     // undefined "bar"
	data.Write(buildNlist(1, 0x0e /* N_SECT */, 1, 0, 0x4000)) // defined "bar"
	data.Write(strTab)

	info := symtabInfo{symOff: symOff, nSyms: 2, strOff: strOff, strSize: uint32(len(strTab))}

	undefined, ok := symbolAt(data.Bytes(), info, 0)
	if !ok || !undefined.isUndefined || undefined.name != "bar" {
		t.Fatalf("symbolAt(0) = %+v, expected an undefined symbol named \"bar\"", undefined)
	}

	defined, ok := symbolAt(data.Bytes(), info, 1)
	if !ok || defined.isUndefined || defined.name != "bar" || defined.value != 0x4000 {
		t.Fatalf("symbolAt(1) = %+v, expected a defined symbol named \"bar\" at 0x4000", defined)
	}
}

func TestSymbolAtDebugStabIsFlagged(t *testing.T) {
	var data bytes.Buffer
	data.Write(buildNlist(0, 0x20 /* N_STAB bit set */, 0, 0, 0))

	info := symtabInfo{symOff: 0, nSyms: 1, strOff: 0, strSize: 0}
	sym, ok := symbolAt(data.Bytes(), info, 0)
	if !ok || !sym.isDebug {
		t.Fatalf("symbolAt = %+v, expected isDebug", sym)
	}
}
