// Package heap reads and builds the metadata heaps referenced from table
// columns: #Strings, #Blob, #GUID and #US.
package heap

import (
	"io"

	"github.com/cockroachdb/errors"

	"github.com/jtang613/goclr/pkg/clr/tables"
)

// MaxCompressedUint is the largest value a compressed integer can hold.
const MaxCompressedUint = 0x1FFFFFFF

// ReadCompressedUint decodes a compressed unsigned integer (ECMA-335
// §II.23.2) from the start of b and returns it with its encoded length.
func ReadCompressedUint(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, tables.BadImage(io.ErrUnexpectedEOF, "reading compressed integer")
	}
	switch {
	case b[0]&0x80 == 0:
		return uint32(b[0]), 1, nil
	case b[0]&0xC0 == 0x80:
		if len(b) < 2 {
			return 0, 0, tables.BadImage(io.ErrUnexpectedEOF, "reading compressed integer")
		}
		return uint32(b[0]&0x3F)<<8 | uint32(b[1]), 2, nil
	case b[0]&0xE0 == 0xC0:
		if len(b) < 4 {
			return 0, 0, tables.BadImage(io.ErrUnexpectedEOF, "reading compressed integer")
		}
		return uint32(b[0]&0x1F)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), 4, nil
	}
	return 0, 0, tables.BadImage(errors.Newf("lead byte 0x%02X", b[0]), "reading compressed integer")
}

// AppendCompressedUint appends the compressed form of v to dst. Values
// above MaxCompressedUint cannot be encoded.
func AppendCompressedUint(dst []byte, v uint32) []byte {
	switch {
	case v <= 0x7F:
		return append(dst, byte(v))
	case v <= 0x3FFF:
		return append(dst, byte(v>>8)|0x80, byte(v))
	case v <= MaxCompressedUint:
		return append(dst, byte(v>>24)|0xC0, byte(v>>16), byte(v>>8), byte(v))
	}
	panic(errors.AssertionFailedf("compressed integer 0x%X out of range", v))
}

func pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}
