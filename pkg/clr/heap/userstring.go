package heap

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf16"

	"github.com/cockroachdb/errors"

	"github.com/jtang613/goclr/pkg/clr/tables"
)

// UserStringTable is the table byte of user string tokens (ldstr).
const UserStringTable tables.Index = 0x70

// UserStringHeap is a read-only view of a #US heap.
type UserStringHeap struct {
	data []byte
}

func NewUserStringHeap(data []byte) *UserStringHeap {
	return &UserStringHeap{data: data}
}

// Size returns the heap size in bytes.
func (h *UserStringHeap) Size() int { return len(h.data) }

// Get decodes the string at offset.
func (h *UserStringHeap) Get(offset uint32) (string, error) {
	if offset == 0 {
		return "", nil
	}
	if int(offset) >= len(h.data) {
		return "", tables.BadImage(errors.Newf("offset %d beyond heap of %d bytes", offset, len(h.data)),
			"reading #US")
	}
	n, w, err := ReadCompressedUint(h.data[offset:])
	if err != nil {
		return "", errors.Wrapf(err, "reading #US at offset %d", offset)
	}
	start := int(offset) + w
	if start+int(n) > len(h.data) {
		return "", tables.BadImage(io.ErrUnexpectedEOF, "reading #US at offset %d", offset)
	}
	// n counts the UTF-16 bytes plus one trailing flag byte
	raw := h.data[start : start+int(n)]
	if len(raw) > 0 {
		raw = raw[:len(raw)-1]
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return string(utf16.Decode(units)), nil
}

// UserStringBuilder accumulates a deduplicated #US heap.
type UserStringBuilder struct {
	buf   []byte
	index map[string]uint32
}

func NewUserStringBuilder() *UserStringBuilder {
	return &UserStringBuilder{buf: []byte{0}, index: map[string]uint32{}}
}

// Add returns the heap offset of s, appending it on first use.
func (b *UserStringBuilder) Add(s string) uint32 {
	if i, ok := b.index[s]; ok {
		return i
	}
	units := utf16.Encode([]rune(s))
	offset := uint32(len(b.buf))
	b.buf = AppendCompressedUint(b.buf, uint32(2*len(units)+1))
	var flag byte
	for _, u := range units {
		b.buf = binary.LittleEndian.AppendUint16(b.buf, u)
		if needsSpecialHandling(u) {
			flag = 1
		}
	}
	b.buf = append(b.buf, flag)
	b.index[s] = offset
	return offset
}

// Token returns the ldstr token of a user string offset.
func Token(offset uint32) tables.Token {
	return tables.MakeToken(UserStringTable, offset)
}

// needsSpecialHandling implements the trailing-byte rule of ECMA-335
// §II.24.2.4.
func needsSpecialHandling(u uint16) bool {
	if u > 0xFF {
		return true
	}
	switch {
	case u >= 0x01 && u <= 0x08, u >= 0x0E && u <= 0x1F, u == 0x27, u == 0x2D, u == 0x7F:
		return true
	}
	return false
}

func (b *UserStringBuilder) Size() uint32 { return uint32(len(b.buf)+3) &^ 3 }

func (b *UserStringBuilder) Bytes() []byte { return pad4(bytes.Clone(b.buf)) }
