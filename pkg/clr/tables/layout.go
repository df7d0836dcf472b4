package tables

// bigThreshold is the largest row count or heap size that still fits a
// 2-byte index.
const bigThreshold = 0xFFFF

// HeapSizes holds the byte size of each heap referenced by table columns.
type HeapSizes struct {
	Strings uint32
	Guids   uint32
	Blobs   uint32
}

// HeapSizes flag bits in the "#~" header.
const (
	heapFlagStrings = 0x01
	heapFlagGuids   = 0x02
	heapFlagBlobs   = 0x04
	heapFlagExtra   = 0x40
)

// Layout is the index-width policy of a metadata stream. It is a pure
// function of the final row counts and heap sizes; every row size and
// every column width is derived from it.
type Layout struct {
	rows    [MaxTables]uint32
	bigHeap [numHeaps]bool
}

// NewLayout builds the layout for the given row counts and heap sizes.
func NewLayout(rows [MaxTables]uint32, heaps HeapSizes) *Layout {
	return &Layout{
		rows: rows,
		bigHeap: [numHeaps]bool{
			StringHeap: heaps.Strings > bigThreshold,
			GuidHeap:   heaps.Guids > bigThreshold,
			BlobHeap:   heaps.Blobs > bigThreshold,
		},
	}
}

// LayoutFromHeader builds the layout of a stream being read, where heap
// widths come from the HeapSizes flag byte instead of the heaps themselves.
func LayoutFromHeader(rows [MaxTables]uint32, heapFlags uint8) *Layout {
	return &Layout{
		rows: rows,
		bigHeap: [numHeaps]bool{
			StringHeap: heapFlags&heapFlagStrings != 0,
			GuidHeap:   heapFlags&heapFlagGuids != 0,
			BlobHeap:   heapFlags&heapFlagBlobs != 0,
		},
	}
}

// HeapFlags returns the HeapSizes byte for the "#~" header.
func (l *Layout) HeapFlags() uint8 {
	var f uint8
	if l.bigHeap[StringHeap] {
		f |= heapFlagStrings
	}
	if l.bigHeap[GuidHeap] {
		f |= heapFlagGuids
	}
	if l.bigHeap[BlobHeap] {
		f |= heapFlagBlobs
	}
	return f
}

// Rows returns the row count of a table.
func (l *Layout) Rows(t Index) uint32 {
	return l.rows[t]
}

// HeapIndexSize returns 2 or 4.
func (l *Layout) HeapIndexSize(h HeapKind) int {
	if l.bigHeap[h] {
		return 4
	}
	return 2
}

// TableIndexSize returns 2 or 4.
func (l *Layout) TableIndexSize(t Index) int {
	if l.rows[t] > bigThreshold {
		return 4
	}
	return 2
}

// CodedIndexSize returns 4 when the largest table of the scheme has too
// many rows to share 16 bits with the tag.
func (l *Layout) CodedIndexSize(s *Scheme) int {
	if s.MaxRows(l) >= s.threshold() {
		return 4
	}
	return 2
}

// MaxRows returns the largest row count among the scheme's tables.
func (s *Scheme) MaxRows(l *Layout) uint32 {
	var max uint32
	for _, t := range s.Tables() {
		if n := l.rows[t]; n > max {
			max = n
		}
	}
	return max
}

// ColumnSize returns the encoded width of a column.
func (l *Layout) ColumnSize(c Column) int {
	switch c.Kind {
	case KindHeap:
		return l.HeapIndexSize(c.Heap)
	case KindTable:
		return l.TableIndexSize(c.Table)
	case KindCoded:
		return l.CodedIndexSize(c.Scheme)
	default:
		return c.Size
	}
}

// RowSize returns the byte size of one row of table t.
func (l *Layout) RowSize(t Index) int {
	info := Info(t)
	if info == nil {
		return 0
	}
	c := l.RowSizeCalculator()
	for _, col := range info.Columns {
		switch col.Kind {
		case KindFixed:
			c.AddFixed(col.Size)
		case KindHeap:
			c.AddHeapIndex(col.Heap)
		case KindTable:
			c.AddTableIndex(col.Table)
		case KindCoded:
			c.AddCodedIndex(col.Scheme)
		}
	}
	return c.Value()
}

// RowSizeCalculator accumulates column widths under a Layout.
type RowSizeCalculator struct {
	layout *Layout
	size   int
}

// RowSizeCalculator returns a calculator starting at zero bytes.
func (l *Layout) RowSizeCalculator() *RowSizeCalculator {
	return &RowSizeCalculator{layout: l}
}

// AddFixed adds n bytes unconditionally.
func (c *RowSizeCalculator) AddFixed(n int) *RowSizeCalculator {
	c.size += n
	return c
}

// AddHeapIndex adds the width of an index into heap h.
func (c *RowSizeCalculator) AddHeapIndex(h HeapKind) *RowSizeCalculator {
	c.size += c.layout.HeapIndexSize(h)
	return c
}

// AddTableIndex adds the width of a row number into table t.
func (c *RowSizeCalculator) AddTableIndex(t Index) *RowSizeCalculator {
	c.size += c.layout.TableIndexSize(t)
	return c
}

// AddCodedIndex adds the width of a coded index of scheme s.
func (c *RowSizeCalculator) AddCodedIndex(s *Scheme) *RowSizeCalculator {
	c.size += c.layout.CodedIndexSize(s)
	return c
}

// Value returns the accumulated size.
func (c *RowSizeCalculator) Value() int {
	return c.size
}
