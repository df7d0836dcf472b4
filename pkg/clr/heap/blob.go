package heap

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/jtang613/goclr/pkg/clr/tables"
)

// BlobHeap is a read-only view of a #Blob heap.
type BlobHeap struct {
	data []byte
}

func NewBlobHeap(data []byte) *BlobHeap {
	return &BlobHeap{data: data}
}

// Size returns the heap size in bytes.
func (h *BlobHeap) Size() int { return len(h.data) }

// Get returns the blob at offset i. The result aliases the heap.
func (h *BlobHeap) Get(i tables.BlobIndex) ([]byte, error) {
	if i == 0 {
		return nil, nil
	}
	if int(i) >= len(h.data) {
		return nil, tables.BadImage(errors.Newf("offset %d beyond heap of %d bytes", i, len(h.data)),
			"reading #Blob")
	}
	n, w, err := ReadCompressedUint(h.data[i:])
	if err != nil {
		return nil, errors.Wrapf(err, "reading #Blob at offset %d", i)
	}
	start := int(i) + w
	if start+int(n) > len(h.data) {
		return nil, tables.BadImage(io.ErrUnexpectedEOF, "reading #Blob at offset %d", i)
	}
	return h.data[start : start+int(n)], nil
}

// BlobBuilder accumulates a deduplicated #Blob heap.
type BlobBuilder struct {
	buf   []byte
	index map[string]tables.BlobIndex
}

// NewBlobBuilder returns a builder holding only the empty blob.
func NewBlobBuilder() *BlobBuilder {
	return &BlobBuilder{buf: []byte{0}, index: map[string]tables.BlobIndex{}}
}

// Add returns the offset of blob, appending it on first use. The empty
// blob is offset 0.
func (b *BlobBuilder) Add(blob []byte) tables.BlobIndex {
	if len(blob) == 0 {
		return 0
	}
	if i, ok := b.index[string(blob)]; ok {
		return i
	}
	i := tables.BlobIndex(len(b.buf))
	b.buf = AppendCompressedUint(b.buf, uint32(len(blob)))
	b.buf = append(b.buf, blob...)
	b.index[string(blob)] = i
	return i
}

func (b *BlobBuilder) Size() uint32 { return uint32(len(b.buf)+3) &^ 3 }

func (b *BlobBuilder) Bytes() []byte { return pad4(bytes.Clone(b.buf)) }
