package tables

import (
	"iter"
	"math/bits"

	"github.com/cockroachdb/errors"
)

// AnyTable is the table-independent view of a metadata table.
type AnyTable interface {
	Index() Index
	Name() string
	Info() *TableInfo
	RowCount() int
	IsBig() bool
	IsSorted() bool
	Cells(i int) []any
	SetRowCount(n int)
	GetLength(l *Layout) int
	Read(r *MetadataReader, n int) error
	Write(w *MetadataWriter) error

	init(idx Index)
	freeze()
	setSorted(v bool)
	resolveTokens(resolve func(Token) (Token, bool)) error
}

// Filterable is implemented by tables that support owner lookups.
type Filterable interface {
	AnyTable
	Sort() error
	Filter(tok Token) iter.Seq[int]
}

// StreamHeader is the fixed part of the "#~" stream.
type StreamHeader struct {
	Reserved     uint32
	MajorVersion uint8
	MinorVersion uint8
	HeapSizes    uint8
	Reserved2    uint8
	Valid        uint64
	Sorted       uint64
	// Extra is present when HeapSizes has bit 0x40 set.
	Extra uint32
}

const streamHeaderSize = 24

// Set is the complete collection of metadata tables of one module.
type Set struct {
	Module                 Table[ModuleRow, *ModuleRow]
	TypeRef                Table[TypeRefRow, *TypeRefRow]
	TypeDef                Table[TypeDefRow, *TypeDefRow]
	FieldPtr               Table[FieldPtrRow, *FieldPtrRow]
	Field                  Table[FieldRow, *FieldRow]
	MethodPtr              Table[MethodPtrRow, *MethodPtrRow]
	MethodDef              Table[MethodDefRow, *MethodDefRow]
	ParamPtr               Table[ParamPtrRow, *ParamPtrRow]
	Param                  Table[ParamRow, *ParamRow]
	InterfaceImpl          InterfaceImplTable
	MemberRef              MemberRefTable
	Constant               ConstantTable
	CustomAttribute        CustomAttributeTable
	FieldMarshal           FieldMarshalTable
	DeclSecurity           DeclSecurityTable
	ClassLayout            ClassLayoutTable
	FieldLayout            FieldLayoutTable
	StandAloneSig          StandAloneSigTable
	EventMap               EventMapTable
	EventPtr               Table[EventPtrRow, *EventPtrRow]
	Event                  Table[EventRow, *EventRow]
	PropertyMap            PropertyMapTable
	PropertyPtr            Table[PropertyPtrRow, *PropertyPtrRow]
	Property               Table[PropertyRow, *PropertyRow]
	MethodSemantics        MethodSemanticsTable
	MethodImpl             MethodImplTable
	ModuleRef              ModuleRefTable
	TypeSpec               TypeSpecTable
	ImplMap                ImplMapTable
	FieldRVA               FieldRVATable
	EncLog                 Table[EncLogRow, *EncLogRow]
	EncMap                 Table[EncMapRow, *EncMapRow]
	Assembly               Table[AssemblyRow, *AssemblyRow]
	AssemblyProcessor      Table[AssemblyProcessorRow, *AssemblyProcessorRow]
	AssemblyOS             Table[AssemblyOSRow, *AssemblyOSRow]
	AssemblyRef            AssemblyRefTable
	AssemblyRefProcessor   Table[AssemblyRefProcessorRow, *AssemblyRefProcessorRow]
	AssemblyRefOS          Table[AssemblyRefOSRow, *AssemblyRefOSRow]
	File                   Table[FileRow, *FileRow]
	ExportedType           ExportedTypeTable
	ManifestResource       Table[ManifestResourceRow, *ManifestResourceRow]
	NestedClass            NestedClassTable
	GenericParam           GenericParamTable
	MethodSpec             MethodSpecTable
	GenericParamConstraint GenericParamConstraintTable

	byIndex [MaxTables]AnyTable
	header  StreamHeader
	layout  *Layout
	fixedUp bool
	frozen  bool
}

// NewSet returns an empty, mutable set of tables.
func NewSet() *Set {
	s := &Set{}
	all := []AnyTable{
		&s.Module, &s.TypeRef, &s.TypeDef, &s.FieldPtr, &s.Field, &s.MethodPtr,
		&s.MethodDef, &s.ParamPtr, &s.Param, &s.InterfaceImpl, &s.MemberRef,
		&s.Constant, &s.CustomAttribute, &s.FieldMarshal, &s.DeclSecurity,
		&s.ClassLayout, &s.FieldLayout, &s.StandAloneSig, &s.EventMap, &s.EventPtr,
		&s.Event, &s.PropertyMap, &s.PropertyPtr, &s.Property, &s.MethodSemantics,
		&s.MethodImpl, &s.ModuleRef, &s.TypeSpec, &s.ImplMap, &s.FieldRVA,
		&s.EncLog, &s.EncMap, &s.Assembly, &s.AssemblyProcessor, &s.AssemblyOS,
		&s.AssemblyRef, &s.AssemblyRefProcessor, &s.AssemblyRefOS, &s.File,
		&s.ExportedType, &s.ManifestResource, &s.NestedClass, &s.GenericParam,
		&s.MethodSpec, &s.GenericParamConstraint,
	}
	for i, t := range all {
		idx := tableInfos[i].Index
		t.init(idx)
		s.byIndex[idx] = t
	}
	return s
}

// Table returns the table with the given index, or nil.
func (s *Set) Table(idx Index) AnyTable {
	if int(idx) >= MaxTables {
		return nil
	}
	return s.byIndex[idx]
}

// Tables returns every table in ascending index order.
func (s *Set) Tables() []AnyTable {
	out := make([]AnyTable, 0, len(tableInfos))
	for _, t := range s.byIndex {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// RowCounts returns the row count of every table, indexed by table index.
func (s *Set) RowCounts() [MaxTables]uint32 {
	var rows [MaxTables]uint32
	for _, t := range s.Tables() {
		rows[t.Index()] = uint32(t.RowCount())
	}
	return rows
}

// ValidMask returns the present-tables bitmask: one bit per non-empty table.
func (s *Set) ValidMask() uint64 {
	var mask uint64
	for _, t := range s.Tables() {
		if t.RowCount() > 0 {
			mask |= 1 << t.Index()
		}
	}
	return mask
}

// HasIndirection reports whether any read-only table holds rows. Such a
// set can be inspected but not written.
func (s *Set) HasIndirection() bool {
	for _, t := range s.Tables() {
		if t.Info().ReadOnly && t.RowCount() > 0 {
			return true
		}
	}
	return false
}

// Header returns the stream header. For a built set it is only complete
// after Freeze.
func (s *Set) Header() StreamHeader { return s.header }

// Layout returns the frozen layout, or nil before Freeze.
func (s *Set) Layout() *Layout { return s.layout }

// IsFrozen reports whether the set has been frozen by Freeze or ReadStream.
func (s *Set) IsFrozen() bool { return s.frozen }

// Freeze computes the final layout from the row counts and heap sizes and
// makes every table immutable. Freezing before Fixup panics.
func (s *Set) Freeze(heaps HeapSizes) *Layout {
	if s.frozen {
		panic(errors.AssertionFailedf("tables: set frozen twice"))
	}
	if !s.fixedUp {
		panic(errors.AssertionFailedf("tables: freeze before fixup"))
	}
	s.header = StreamHeader{
		MajorVersion: 2,
		Reserved2:    1,
		Sorted:       s.sortedMask(),
	}
	s.layout = NewLayout(s.RowCounts(), heaps)
	s.header.HeapSizes = s.layout.HeapFlags()
	s.header.Valid = s.ValidMask()
	for _, t := range s.Tables() {
		t.freeze()
	}
	s.frozen = true
	return s.layout
}

// sortedMask has a bit for every table declared sorted whose rows are
// currently in order. A row added after Fixup clears its table's bit.
func (s *Set) sortedMask() uint64 {
	var mask uint64
	for _, t := range s.Tables() {
		if t.Info().Sorted && t.IsSorted() {
			mask |= 1 << t.Index()
		}
	}
	return mask
}

// GetLength returns the size of the "#~" stream in bytes.
func (s *Set) GetLength() int {
	if !s.frozen {
		panic(errors.AssertionFailedf("tables: length of unfrozen set"))
	}
	valid := s.validForWrite()
	n := streamHeaderSize + 4*bits.OnesCount64(valid)
	if s.header.HeapSizes&heapFlagExtra != 0 {
		n += 4
	}
	for _, t := range s.Tables() {
		n += t.GetLength(s.layout)
	}
	return n
}

// validForWrite keeps the bits of tables that were present but empty in
// a stream that was read, so that rewriting reproduces it.
func (s *Set) validForWrite() uint64 {
	return s.ValidMask() | s.header.Valid
}

// ReadStream decodes a "#~" or "#-" stream into the set, which must be
// empty. The set is frozen afterwards.
func (s *Set) ReadStream(data []byte) error {
	if s.frozen {
		panic(errors.AssertionFailedf("tables: read into frozen set"))
	}
	r := NewMetadataReader(data, nil)
	h, rows, err := readHeader(r)
	if err != nil {
		return err
	}
	layout := LayoutFromHeader(rows, h.HeapSizes)

	// Reject impossible row counts before allocating anything.
	need := 0
	for idx := Index(0); idx < MaxTables; idx++ {
		if rows[idx] > 0 {
			need += int(rows[idx]) * layout.RowSize(idx)
		}
	}
	if need > r.Remaining() {
		return BadImage(errors.Newf("tables need %d bytes, %d remain", need, r.Remaining()),
			"reading table data")
	}

	r.layout = layout
	for _, t := range s.Tables() {
		n := rows[t.Index()]
		if h.Valid&(1<<t.Index()) == 0 {
			continue
		}
		if err := t.Read(r, int(n)); err != nil {
			return err
		}
		t.setSorted(h.Sorted&(1<<t.Index()) != 0)
	}
	for _, t := range s.Tables() {
		t.freeze()
	}
	s.header = h
	s.layout = layout
	s.frozen = true
	return nil
}

func readHeader(r *MetadataReader) (h StreamHeader, rows [MaxTables]uint32, err error) {
	fail := func(e error) (StreamHeader, [MaxTables]uint32, error) {
		return h, rows, errors.Wrap(e, "reading table stream header")
	}
	if h.Reserved, err = r.ReadUint32(); err != nil {
		return fail(err)
	}
	if h.MajorVersion, err = r.ReadUint8(); err != nil {
		return fail(err)
	}
	if h.MinorVersion, err = r.ReadUint8(); err != nil {
		return fail(err)
	}
	if h.HeapSizes, err = r.ReadUint8(); err != nil {
		return fail(err)
	}
	if h.Reserved2, err = r.ReadUint8(); err != nil {
		return fail(err)
	}
	if h.Valid, err = r.ReadUint64(); err != nil {
		return fail(err)
	}
	if h.Sorted, err = r.ReadUint64(); err != nil {
		return fail(err)
	}
	for idx := Index(0); idx < MaxTables; idx++ {
		if h.Valid&(1<<idx) == 0 {
			continue
		}
		if Info(idx) == nil {
			return fail(badImagef("unknown table 0x%02X", uint8(idx)))
		}
		if rows[idx], err = r.ReadUint32(); err != nil {
			return fail(err)
		}
		if rows[idx] > rowMask {
			return fail(badImagef("table %s has %d rows", idx, rows[idx]))
		}
	}
	if h.HeapSizes&heapFlagExtra != 0 {
		if h.Extra, err = r.ReadUint32(); err != nil {
			return fail(err)
		}
	}
	return h, rows, nil
}

// WriteStream encodes the set as a "#~" stream. The set must be frozen.
func (s *Set) WriteStream() ([]byte, error) {
	if !s.frozen {
		panic(errors.AssertionFailedf("tables: write before freeze"))
	}
	w := NewMetadataWriter(s.layout)
	h := s.header
	h.HeapSizes = h.HeapSizes&^(heapFlagStrings|heapFlagGuids|heapFlagBlobs) | s.layout.HeapFlags()
	h.Valid = s.validForWrite()

	w.WriteUint32(h.Reserved)
	w.WriteUint8(h.MajorVersion)
	w.WriteUint8(h.MinorVersion)
	w.WriteUint8(h.HeapSizes)
	w.WriteUint8(h.Reserved2)
	w.WriteUint64(h.Valid)
	w.WriteUint64(h.Sorted)
	for _, t := range s.Tables() {
		if h.Valid&(1<<t.Index()) != 0 {
			w.WriteUint32(uint32(t.RowCount()))
		}
	}
	if h.HeapSizes&heapFlagExtra != 0 {
		w.WriteUint32(h.Extra)
	}
	for _, t := range s.Tables() {
		if t.RowCount() == 0 {
			continue
		}
		if err := t.Write(w); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}
