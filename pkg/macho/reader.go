package macho

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// cursor is a forward-only view over the raw file bytes, used to decode
// fixed-size structures without copying the underlying buffer.
type cursor struct {
	data []byte
	pos  int
}

func newCursor(data []byte) *cursor {
	return &cursor{data: data}
}

func (c *cursor) seek(offset int) {
	c.pos = offset
}

func (c *cursor) readStruct(v interface{}, size int) error {
	if c.pos < 0 || c.pos+size > len(c.data) {
		return fmt.Errorf("macho: read past end of file at offset %#x", c.pos)
	}
	r := bytes.NewReader(c.data[c.pos : c.pos+size])
	if err := binary.Read(r, byteOrder, v); err != nil {
		return err
	}
	c.pos += size
	return nil
}

// cstrAt reads a NUL-terminated ASCII string starting at an absolute offset
// in data.
func cstrAt(data []byte, offset uint32) string {
	if int(offset) >= len(data) {
		return ""
	}
	end := int(offset)
	for end < len(data) && data[end] != 0 {
		end++
	}
	return string(data[offset:end])
}

// fixedName decodes a NUL-padded fixed-size byte array (segment and section
// names) into a Go string.
func fixedName(b []byte) string {
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}
