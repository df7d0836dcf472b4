package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/jtang613/goclr/pkg/clr/tables"
)

const guidSize = 16

// GuidHeap is a read-only view of a #GUID heap. Entries are numbered
// from 1; index 0 is the null GUID.
type GuidHeap struct {
	data []byte
}

func NewGuidHeap(data []byte) *GuidHeap {
	return &GuidHeap{data: data}
}

// Size returns the heap size in bytes.
func (h *GuidHeap) Size() int { return len(h.data) }

// Len returns the number of entries.
func (h *GuidHeap) Len() int { return len(h.data) / guidSize }

// Get returns entry i.
func (h *GuidHeap) Get(i tables.GuidIndex) (uuid.UUID, error) {
	if i == 0 {
		return uuid.Nil, nil
	}
	if int(i) > h.Len() {
		return uuid.Nil, tables.BadImage(errors.Newf("entry %d of %d", i, h.Len()), "reading #GUID")
	}
	off := (int(i) - 1) * guidSize
	return fromMixedEndian(h.data[off : off+guidSize]), nil
}

// GUIDs are stored with their first three fields little-endian.
func fromMixedEndian(b []byte) uuid.UUID {
	var u uuid.UUID
	copy(u[:], b)
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	return u
}

func toMixedEndian(u uuid.UUID) []byte {
	b := make([]byte, guidSize)
	copy(b, u[:])
	b[0], b[1], b[2], b[3] = u[3], u[2], u[1], u[0]
	b[4], b[5] = u[5], u[4]
	b[6], b[7] = u[7], u[6]
	return b
}

// GuidBuilder accumulates a deduplicated #GUID heap.
type GuidBuilder struct {
	buf   []byte
	index map[uuid.UUID]tables.GuidIndex
}

func NewGuidBuilder() *GuidBuilder {
	return &GuidBuilder{index: map[uuid.UUID]tables.GuidIndex{}}
}

// Add returns the index of u, appending it on first use. The nil UUID is
// index 0.
func (b *GuidBuilder) Add(u uuid.UUID) tables.GuidIndex {
	if u == uuid.Nil {
		return 0
	}
	if i, ok := b.index[u]; ok {
		return i
	}
	b.buf = append(b.buf, toMixedEndian(u)...)
	i := tables.GuidIndex(len(b.buf) / guidSize)
	b.index[u] = i
	return i
}

func (b *GuidBuilder) Size() uint32 { return uint32(len(b.buf)) }

func (b *GuidBuilder) Bytes() []byte { return append([]byte(nil), b.buf...) }
