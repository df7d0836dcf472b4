package tables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The row structs and the column descriptors are declared separately;
// they must agree on count, order and storage type for every table.
func TestSchemaMatchesRows(t *testing.T) {
	s := NewSet()
	require.Len(t, s.Tables(), 45)
	for _, tbl := range s.Tables() {
		t.Run(tbl.Name(), func(t *testing.T) {
			info := Info(tbl.Index())
			require.NotNil(t, info)
			assert.Same(t, info, tbl.Info())

			tbl.SetRowCount(1)
			cells := tbl.Cells(0)
			require.Len(t, cells, len(info.Columns))
			for i, col := range info.Columns {
				switch col.Kind {
				case KindFixed:
					if col.Size == 2 {
						assert.IsType(t, (*uint16)(nil), cells[i], col.Name)
					} else {
						assert.Equal(t, 4, col.Size, col.Name)
						assert.IsType(t, (*uint32)(nil), cells[i], col.Name)
					}
				case KindHeap:
					switch col.Heap {
					case StringHeap:
						assert.IsType(t, (*StringIndex)(nil), cells[i], col.Name)
					case GuidHeap:
						assert.IsType(t, (*GuidIndex)(nil), cells[i], col.Name)
					case BlobHeap:
						assert.IsType(t, (*BlobIndex)(nil), cells[i], col.Name)
					}
				case KindTable, KindCoded:
					assert.IsType(t, (*Token)(nil), cells[i], col.Name)
				}
			}

			_, filterable := tbl.(Filterable)
			if info.Sorted {
				assert.True(t, filterable, "sorted table without Filter")
			}
		})
	}
}

func TestAddRecordGrowth(t *testing.T) {
	s := NewSet()
	for i := 1; i <= 40; i++ {
		tok := s.TypeRef.AddRecord(TypeRefRow{TypeName: StringIndex(i)})
		assert.Equal(t, MakeToken(TypeRef, uint32(i)), tok)
	}
	assert.Equal(t, 40, s.TypeRef.RowCount())
	assert.GreaterOrEqual(t, cap(s.TypeRef.rows), 40)
	assert.Equal(t, StringIndex(17), s.TypeRef.Lookup(MakeToken(TypeRef, 17)).TypeName)
	assert.Nil(t, s.TypeRef.Lookup(MakeToken(TypeRef, 41)))
	assert.Nil(t, s.TypeRef.Lookup(MakeToken(TypeDef, 1)))
	assert.Nil(t, s.TypeRef.Lookup(MakeToken(TypeRef, 0)))
	assert.False(t, s.TypeRef.IsBig())
}

func TestVirtualRecordsMatchAddRecord(t *testing.T) {
	methods := []MethodDefRow{
		{RVA: 0x2050, Flags: 0x0086, Name: 10, Signature: 1, ParamList: MakeToken(Param, 1)},
		{RVA: 0x2058, Flags: 0x0096, Name: 20, Signature: 5, ParamList: MakeToken(Param, 2)},
		{RVA: 0, ImplFlags: 0x1000, Flags: 0x01C6, Name: 30, Signature: 9, ParamList: MakeToken(Param, 3)},
	}

	direct := NewSet()
	for _, m := range methods {
		direct.MethodDef.AddRecord(m)
	}

	virtual := NewSet()
	var toks []Token
	for range methods {
		toks = append(toks, virtual.MethodDef.AddVirtualRecord())
	}
	for i, tok := range toks {
		*virtual.MethodDef.Lookup(tok) = methods[i]
	}

	fixupAndFreeze(t, direct, HeapSizes{})
	fixupAndFreeze(t, virtual, HeapSizes{})
	a, err := direct.WriteStream()
	require.NoError(t, err)
	b, err := virtual.WriteStream()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSetRowCountTwice(t *testing.T) {
	s := NewSet()
	s.Field.SetRowCount(3)
	requireAssertionPanic(t, func() { s.Field.SetRowCount(3) })

	s.Param.AddRecord(ParamRow{})
	requireAssertionPanic(t, func() { s.Param.SetRowCount(1) })
}

func TestWriteBeforeFreeze(t *testing.T) {
	s := NewSet()
	s.Module.AddRecord(ModuleRow{Name: 1})
	requireAssertionPanic(t, func() { _ = s.Module.Write(NewMetadataWriter(NewLayout(s.RowCounts(), HeapSizes{}))) })
	requireAssertionPanic(t, func() { _, _ = s.WriteStream() })
}

func TestAddAfterFreeze(t *testing.T) {
	s := NewSet()
	fixupAndFreeze(t, s, HeapSizes{})
	requireAssertionPanic(t, func() { s.TypeDef.AddRecord(TypeDefRow{}) })
}

func TestIndirectionTablesAreNotWritten(t *testing.T) {
	s := NewSet()
	s.FieldPtr.AddRecord(FieldPtrRow{Field: MakeToken(Field, 1)})
	assert.True(t, s.HasIndirection())
	fixupAndFreeze(t, s, HeapSizes{})
	requireAssertionPanic(t, func() { _, _ = s.WriteStream() })
}

func TestMaterializer(t *testing.T) {
	s := NewSet()
	s.MethodDef.AddRecord(MethodDefRow{RVA: 0x10, Name: 1})
	s.MethodDef.AddRecord(MethodDefRow{RVA: 0, Name: 2})
	s.MethodDef.SetMaterializer(func(rows []MethodDefRow) []MethodDefRow {
		for i := range rows {
			if rows[i].RVA != 0 {
				rows[i].RVA += 0x2000
			}
		}
		return rows
	})
	fixupAndFreeze(t, s, HeapSizes{})
	data, err := s.WriteStream()
	require.NoError(t, err)

	// stored rows are untouched
	assert.Equal(t, uint32(0x10), s.MethodDef.Row(0).RVA)

	r := NewSet()
	require.NoError(t, r.ReadStream(data))
	assert.Equal(t, uint32(0x2010), r.MethodDef.Row(0).RVA)
	assert.Equal(t, uint32(0), r.MethodDef.Row(1).RVA)
}

func TestMaterializerMustKeepRowCount(t *testing.T) {
	s := NewSet()
	s.Field.AddRecord(FieldRow{Name: 1})
	s.Field.SetMaterializer(func(rows []FieldRow) []FieldRow { return rows[:0] })
	fixupAndFreeze(t, s, HeapSizes{})
	requireAssertionPanic(t, func() { _, _ = s.WriteStream() })
}

func TestFindOrAddRecord(t *testing.T) {
	s := NewSet()

	a := s.MemberRef.FindOrAddRecord(MemberRefRow{Class: MakeToken(TypeRef, 1), Name: 5, Signature: 3})
	b := s.MemberRef.FindOrAddRecord(MemberRefRow{Class: MakeToken(TypeRef, 1), Name: 5, Signature: 3})
	c := s.MemberRef.FindOrAddRecord(MemberRefRow{Class: MakeToken(TypeRef, 2), Name: 5, Signature: 3})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, s.MemberRef.RowCount())

	assert.Equal(t, s.ModuleRef.FindOrAddRecord(ModuleRefRow{Name: 9}), s.ModuleRef.FindOrAddRecord(ModuleRefRow{Name: 9}))
	assert.Equal(t, s.TypeSpec.FindOrAddRecord(TypeSpecRow{Signature: 4}), s.TypeSpec.FindOrAddRecord(TypeSpecRow{Signature: 4}))
	assert.Equal(t, s.StandAloneSig.FindOrAddRecord(StandAloneSigRow{Signature: 4}), s.StandAloneSig.FindOrAddRecord(StandAloneSigRow{Signature: 4}))
	assert.Equal(t,
		s.MethodSpec.FindOrAddRecord(MethodSpecRow{Method: MakeToken(MethodDef, 1), Instantiation: 2}),
		s.MethodSpec.FindOrAddRecord(MethodSpecRow{Method: MakeToken(MethodDef, 1), Instantiation: 2}))

	ref := AssemblyRefRow{MajorVersion: 4, Name: 12, PublicKeyOrToken: 8, HashValue: 1}
	other := ref
	other.HashValue = 99
	assert.Equal(t, s.AssemblyRef.FindOrAddRecord(ref), s.AssemblyRef.FindOrAddRecord(other))
	other.MinorVersion = 1
	assert.NotEqual(t, s.AssemblyRef.FindOrAddRecord(ref), s.AssemblyRef.FindOrAddRecord(other))

	et := ExportedTypeRow{Flags: 1, TypeName: 3, TypeNamespace: 4, Implementation: MakeToken(AssemblyRef, 1)}
	et2 := et
	et2.Flags, et2.TypeDefId = 0x200000, 7
	assert.Equal(t, s.ExportedType.FindOrAddRecord(et), s.ExportedType.FindOrAddRecord(et2))
	assert.Equal(t, 1, s.ExportedType.RowCount())
}

func TestByName(t *testing.T) {
	idx, ok := ByName("typedef")
	require.True(t, ok)
	assert.Equal(t, TypeDef, idx)

	idx, ok = ByName("GenericParamConstraint")
	require.True(t, ok)
	assert.Equal(t, "GenericParamConstraint", idx.String())

	_, ok = ByName("Nope")
	assert.False(t, ok)
}
