package tables

import (
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripEveryTable(t *testing.T) {
	heaps := map[string]HeapSizes{
		"small heaps": {},
		"big heaps":   {Strings: 70000, Guids: 70000, Blobs: 70000},
	}
	for name, h := range heaps {
		t.Run(name, func(t *testing.T) {
			s := NewSet()
			for _, idx := range writableTables() {
				fillTable(s.Table(idx), 3)
			}
			fixupAndFreeze(t, s, h)
			data, err := s.WriteStream()
			require.NoError(t, err)
			assert.Equal(t, s.GetLength(), len(data))

			r := NewSet()
			require.NoError(t, r.ReadStream(data))
			assert.Equal(t, s.ValidMask(), r.ValidMask())
			assert.Equal(t, s.Layout().HeapFlags(), r.Layout().HeapFlags())
			for _, idx := range writableTables() {
				want, got := s.Table(idx), r.Table(idx)
				require.Equal(t, want.RowCount(), got.RowCount(), idx.String())
				for i := 0; i < want.RowCount(); i++ {
					assert.Equal(t, want.Cells(i), got.Cells(i), "%s row %d", idx, i+1)
				}
			}

			again, err := r.WriteStream()
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestReadOnlyTablesAreRead(t *testing.T) {
	// hand-built "#-" stream with one FieldPtr and one EncMap row
	var rows [MaxTables]uint32
	rows[FieldPtr] = 1
	rows[EncMap] = 1
	w := NewMetadataWriter(LayoutFromHeader(rows, 0))
	w.WriteUint32(0)
	w.WriteUint8(2)
	w.WriteUint8(0)
	w.WriteUint8(0)
	w.WriteUint8(1)
	w.WriteUint64(1<<FieldPtr | 1<<EncMap)
	w.WriteUint64(0)
	w.WriteUint32(1)
	w.WriteUint32(1)
	w.WriteUint16(4)
	w.WriteUint32(0x04000004)

	s := NewSet()
	require.NoError(t, s.ReadStream(w.Bytes()))
	assert.Equal(t, MakeToken(Field, 4), s.FieldPtr.Row(0).Field)
	assert.Equal(t, uint32(0x04000004), s.EncMap.Row(0).Token)
	assert.True(t, s.HasIndirection())
}

func TestEmptyTablesAreSkipped(t *testing.T) {
	s := NewSet()
	s.Module.AddRecord(ModuleRow{Name: 1, Mvid: 1})
	l := fixupAndFreeze(t, s, HeapSizes{})

	assert.Equal(t, uint64(1), s.ValidMask())
	assert.Zero(t, s.TypeDef.GetLength(l))
	assert.Equal(t, 24+4+10, s.GetLength())

	data, err := s.WriteStream()
	require.NoError(t, err)
	assert.Len(t, data, 38)

	r := NewSet()
	require.NoError(t, r.ReadStream(data))
	assert.Equal(t, uint64(1), r.Header().Valid)
	assert.Equal(t, DefaultSortedMask(), r.Header().Sorted)
	assert.Zero(t, r.TypeDef.RowCount())
}

func TestWidthThresholdOnWrite(t *testing.T) {
	for _, n := range []int{65535, 65536} {
		s := NewSet()
		for i := 0; i < n; i++ {
			s.ModuleRef.AddRecord(ModuleRefRow{Name: 1})
		}
		s.ImplMap.AddRecord(ImplMapRow{
			MemberForwarded: MakeToken(MethodDef, 1),
			ImportName:      2,
			ImportScope:     MakeToken(ModuleRef, uint32(n)),
		})
		require.NoError(t, s.Fixup(FixupOptions{}))
		l := s.Freeze(HeapSizes{})

		want := 2 + 2 + 2 + 2
		if n > 65535 {
			want = 2 + 2 + 2 + 4
		}
		assert.Equal(t, want, l.RowSize(ImplMap), "%d module refs", n)
		assert.Equal(t, n > 65535, s.ModuleRef.IsBig())

		data, err := s.WriteStream()
		require.NoError(t, err)
		r := NewSet()
		require.NoError(t, r.ReadStream(data))
		assert.Equal(t, MakeToken(ModuleRef, uint32(n)), r.ImplMap.Row(0).ImportScope)
	}
}

func TestReadTruncated(t *testing.T) {
	s := NewSet()
	fillTable(s.Table(TypeDef), 2)
	fillTable(s.Table(CustomAttribute), 2)
	fixupAndFreeze(t, s, HeapSizes{})
	data, err := s.WriteStream()
	require.NoError(t, err)

	for n := 0; n < len(data); n++ {
		err := NewSet().ReadStream(data[:n])
		require.Error(t, err, "%d of %d bytes", n, len(data))
		assert.True(t, errors.Is(err, ErrBadImageFormat), "%d bytes: %v", n, err)
	}
}

func TestReadInvalidCodedTag(t *testing.T) {
	var rows [MaxTables]uint32
	rows[CustomAttribute] = 1
	w := NewMetadataWriter(LayoutFromHeader(rows, 0))
	w.WriteUint32(0)
	w.WriteUint8(2)
	w.WriteUint8(0)
	w.WriteUint8(0)
	w.WriteUint8(1)
	w.WriteUint64(1 << CustomAttribute)
	w.WriteUint64(0)
	w.WriteUint32(1)
	w.WriteUint16(1 << 5) // Parent: MethodDef 1
	w.WriteUint16(1 << 3) // Type: tag 0 is unused
	w.WriteUint16(0)

	err := NewSet().ReadStream(w.Bytes())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadImageFormat))
}

func TestReadRejectsBadHeader(t *testing.T) {
	header := func(valid uint64, counts ...uint32) []byte {
		w := NewMetadataWriter(nil)
		w.WriteUint32(0)
		w.WriteUint8(2)
		w.WriteUint8(0)
		w.WriteUint8(0)
		w.WriteUint8(1)
		w.WriteUint64(valid)
		w.WriteUint64(0)
		for _, c := range counts {
			w.WriteUint32(c)
		}
		return w.Bytes()
	}

	err := NewSet().ReadStream(header(1<<0x30, 1))
	assert.True(t, errors.Is(err, ErrBadImageFormat), "unknown table: %v", err)

	err = NewSet().ReadStream(header(1<<TypeRef, 0x01000000))
	assert.True(t, errors.Is(err, ErrBadImageFormat), "row count: %v", err)

	// a huge count must fail without allocating the rows
	err = NewSet().ReadStream(header(1<<TypeRef, 0x00FFFFFF))
	assert.True(t, errors.Is(err, ErrBadImageFormat), "size check: %v", err)
}

func TestExtraHeaderFieldRoundTrips(t *testing.T) {
	var rows [MaxTables]uint32
	rows[ModuleRef] = 1
	w := NewMetadataWriter(LayoutFromHeader(rows, 0))
	w.WriteUint32(0)
	w.WriteUint8(2)
	w.WriteUint8(0)
	w.WriteUint8(heapFlagExtra)
	w.WriteUint8(1)
	w.WriteUint64(1<<ModuleRef | 1<<TypeSpec) // TypeSpec present but empty
	w.WriteUint64(DefaultSortedMask())
	w.WriteUint32(1)
	w.WriteUint32(0)
	w.WriteUint32(0xCAFEBABE)
	w.WriteUint16(7)

	s := NewSet()
	require.NoError(t, s.ReadStream(w.Bytes()))
	assert.Equal(t, uint32(0xCAFEBABE), s.Header().Extra)
	assert.Equal(t, StringIndex(7), s.ModuleRef.Row(0).Name)
	assert.Equal(t, len(w.Bytes()), s.GetLength())

	out, err := s.WriteStream()
	require.NoError(t, err)
	assert.Equal(t, w.Bytes(), out)
}

func TestFreezeBeforeFixup(t *testing.T) {
	s := NewSet()
	for _, row := range []uint32{5, 1, 3} {
		s.CustomAttribute.AddRecord(CustomAttributeRow{Parent: MakeToken(TypeDef, row), Type: MakeToken(MethodDef, 1)})
	}
	requireAssertionPanic(t, func() { s.Freeze(HeapSizes{}) })
	requireAssertionPanic(t, func() { _, _ = s.WriteStream() })

	fixupAndFreeze(t, s, HeapSizes{})
	data, err := s.WriteStream()
	require.NoError(t, err)

	r := NewSet()
	require.NoError(t, r.ReadStream(data))
	assert.True(t, r.CustomAttribute.IsSorted())
	for _, row := range []uint32{1, 3, 5} {
		assert.Len(t, slices.Collect(r.CustomAttribute.Filter(MakeToken(TypeDef, row))), 1, "TypeDef %d", row)
	}
}

func TestSortedMaskFollowsRows(t *testing.T) {
	s := NewSet()
	s.CustomAttribute.AddRecord(CustomAttributeRow{Parent: MakeToken(TypeDef, 5), Type: MakeToken(MethodDef, 1)})
	require.NoError(t, s.Fixup(FixupOptions{}))
	// added after Fixup, so the table is out of order again
	s.CustomAttribute.AddRecord(CustomAttributeRow{Parent: MakeToken(TypeDef, 1), Type: MakeToken(MethodDef, 1)})
	s.Freeze(HeapSizes{})
	assert.Zero(t, s.Header().Sorted&(1<<CustomAttribute))
	assert.NotZero(t, s.Header().Sorted&(1<<InterfaceImpl))

	data, err := s.WriteStream()
	require.NoError(t, err)
	r := NewSet()
	require.NoError(t, r.ReadStream(data))
	assert.False(t, r.CustomAttribute.IsSorted())
	assert.Equal(t, []int{0}, slices.Collect(r.CustomAttribute.Filter(MakeToken(TypeDef, 5))))
	assert.Equal(t, []int{1}, slices.Collect(r.CustomAttribute.Filter(MakeToken(TypeDef, 1))))
}
