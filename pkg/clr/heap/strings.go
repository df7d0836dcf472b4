package heap

import (
	"bytes"
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/jtang613/goclr/pkg/clr/tables"
)

// StringHeap is a read-only view of a #Strings heap.
type StringHeap struct {
	data []byte
}

// NewStringHeap wraps the raw heap bytes.
func NewStringHeap(data []byte) *StringHeap {
	return &StringHeap{data: data}
}

// Size returns the heap size in bytes.
func (h *StringHeap) Size() int { return len(h.data) }

// Get returns the NUL-terminated string at offset i.
func (h *StringHeap) Get(i tables.StringIndex) (string, error) {
	if i == 0 {
		return "", nil
	}
	if int(i) >= len(h.data) {
		return "", tables.BadImage(errors.Newf("offset %d beyond heap of %d bytes", i, len(h.data)),
			"reading #Strings")
	}
	end := bytes.IndexByte(h.data[i:], 0)
	if end < 0 {
		return "", tables.BadImage(io.ErrUnexpectedEOF, "reading #Strings at offset %d", i)
	}
	return string(h.data[int(i) : int(i)+end]), nil
}

// StringBuilder accumulates a deduplicated #Strings heap.
type StringBuilder struct {
	buf   []byte
	index map[string]tables.StringIndex
}

// NewStringBuilder returns a builder holding only the empty string.
func NewStringBuilder() *StringBuilder {
	return &StringBuilder{buf: []byte{0}, index: map[string]tables.StringIndex{"": 0}}
}

// Add returns the offset of s, appending it on first use.
func (b *StringBuilder) Add(s string) tables.StringIndex {
	if i, ok := b.index[s]; ok {
		return i
	}
	if strings.IndexByte(s, 0) >= 0 {
		panic(errors.AssertionFailedf("#Strings entry %q contains NUL", s))
	}
	i := tables.StringIndex(len(b.buf))
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	b.index[s] = i
	return i
}

// Size returns the padded heap size.
func (b *StringBuilder) Size() uint32 { return uint32(len(b.buf)+3) &^ 3 }

// Bytes returns the heap padded to a multiple of 4 bytes.
func (b *StringBuilder) Bytes() []byte { return pad4(bytes.Clone(b.buf)) }
