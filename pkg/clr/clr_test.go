package clr_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jtang613/goclr/internal/testutil"
	"github.com/jtang613/goclr/pkg/clr"
	"github.com/jtang613/goclr/pkg/clr/heap"
	"github.com/jtang613/goclr/pkg/clr/root"
	"github.com/jtang613/goclr/pkg/clr/tables"
)

func readFixture(t *testing.T) (*testutil.Fixture, *clr.Module) {
	t.Helper()
	f := testutil.NewFixture(t)
	m, err := clr.Read(f.Metadata, clr.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return f, m
}

func TestInfo(t *testing.T) {
	_, m := readFixture(t)
	info := m.Info()

	assert.Equal(t, root.DefaultVersion, info.Version)
	assert.Equal(t, "Fixture.dll", info.Module)
	assert.Equal(t, testutil.FixtureMVID.String(), info.MVID)
	require.NotNil(t, info.Assembly)
	assert.Equal(t, "Fixture", info.Assembly.Name)
	assert.Equal(t, "1.2.3.4", info.Assembly.Version)
	assert.Equal(t, 4, info.Tables["TypeDef"])
	assert.Equal(t, 4, info.Tables["MethodDef"])
	assert.Equal(t, 3, info.Tables["GenericParam"])
	assert.NotContains(t, info.Tables, "EventMap")

	var names []string
	for _, s := range info.Streams {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"#~", "#Strings", "#US", "#GUID", "#Blob"}, names)
	assert.Equal(t, 16, info.Heaps.GUID)
}

func TestTypeName(t *testing.T) {
	f, m := readFixture(t)
	tests := []struct {
		tok  tables.Token
		want string
	}{
		{f.Program, "Fixture.Program"},
		{f.Inner, "Fixture.Program/Inner"},
		{f.Box, "Fixture.Box`1"},
		{f.Object, "System.Object"},
		{tables.MakeToken(tables.TypeDef, 1), "<Module>"},
	}
	for _, tc := range tests {
		got, err := m.TypeName(tc.tok)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := m.TypeName(tables.MakeToken(tables.TypeDef, 99))
	assert.True(t, errors.Is(err, tables.ErrBadImageFormat))
	_, err = m.TypeName(f.Main)
	assert.Error(t, err)
}

func TestLookups(t *testing.T) {
	f, m := readFixture(t)

	t.Run("custom attributes", func(t *testing.T) {
		cas := m.CustomAttributes(f.Program)
		require.Len(t, cas, 1)
		assert.Equal(t, f.Obsolete, cas[0].Type)
		value, err := m.Blob(cas[0].Value)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 0, 0, 0}, value)

		assert.Len(t, m.CustomAttributes(f.BoxTOther), 1, "remapped to the sorted generic parameter")
		assert.Empty(t, m.CustomAttributes(f.BoxTValue))
		assert.Empty(t, m.CustomAttributes(f.Inner))
	})

	t.Run("generic params", func(t *testing.T) {
		assert.Equal(t, tables.MakeToken(tables.GenericParam, 1), f.IdentityT)
		assert.Equal(t, tables.MakeToken(tables.GenericParam, 2), f.BoxTValue)
		assert.Equal(t, tables.MakeToken(tables.GenericParam, 3), f.BoxTOther)

		var names []string
		for _, gp := range m.GenericParams(f.Box) {
			s, err := m.String(gp.Name)
			require.NoError(t, err)
			names = append(names, s)
		}
		assert.Equal(t, []string{"TValue", "TOther"}, names)
		assert.Len(t, m.GenericParams(f.Identity), 1)
		assert.Empty(t, m.GenericParams(f.Program))

		assert.Equal(t, []tables.Token{f.Disposable}, m.GenericParamConstraints(f.BoxTOther))
		assert.Empty(t, m.GenericParamConstraints(f.BoxTValue))
	})

	t.Run("constant", func(t *testing.T) {
		c, ok := m.Constant(f.Count)
		require.True(t, ok)
		assert.Equal(t, uint16(0x08), c.Type)
		value, err := m.Blob(c.Value)
		require.NoError(t, err)
		assert.Equal(t, []byte{42, 0, 0, 0}, value)

		_, ok = m.Constant(f.Data)
		assert.False(t, ok)
	})

	t.Run("impl map", func(t *testing.T) {
		im, ok := m.ImplMap(f.MessageBox)
		require.True(t, ok)
		name, err := m.String(im.ImportName)
		require.NoError(t, err)
		assert.Equal(t, "MessageBoxW", name)
		scope := m.Tables().ModuleRef.Lookup(im.ImportScope)
		require.NotNil(t, scope)
		module, err := m.String(scope.Name)
		require.NoError(t, err)
		assert.Equal(t, "user32.dll", module)

		_, ok = m.ImplMap(f.Main)
		assert.False(t, ok)
	})

	t.Run("nesting", func(t *testing.T) {
		outer, ok := m.EnclosingClass(f.Inner)
		require.True(t, ok)
		assert.Equal(t, f.Program, outer)
		_, ok = m.EnclosingClass(f.Program)
		assert.False(t, ok)
		assert.Equal(t, []tables.Token{f.Inner}, m.NestedClasses(f.Program))
	})

	t.Run("misc", func(t *testing.T) {
		assert.Equal(t, []tables.Token{f.Disposable}, m.Interfaces(f.Program))

		rva, ok := m.FieldRVA(f.Data)
		require.True(t, ok)
		assert.Equal(t, uint32(testutil.SDataRVA+0x10), rva)

		sem := m.MethodSemantics(f.Name)
		require.Len(t, sem, 1)
		assert.Equal(t, f.GetName, sem[0].Method)

		cl, ok := m.ClassLayout(f.Inner)
		require.True(t, ok)
		assert.Equal(t, uint16(8), cl.PackingSize)
		assert.Equal(t, uint32(16), cl.ClassSize)

		native, err := m.FieldMarshal(f.Count)
		require.NoError(t, err)
		assert.Nil(t, native)
	})
}

func TestMethodBodyRVAs(t *testing.T) {
	_, m := readFixture(t)
	var rvas []uint32
	for _, r := range m.Tables().MethodDef.Rows() {
		rvas = append(rvas, r.RVA)
	}
	assert.Equal(t, []uint32{0x2050, 0, 0x2070, 0x2090}, rvas)
}

func TestUserString(t *testing.T) {
	f, m := readFixture(t)
	s, err := m.UserString(f.Hello)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", s)

	_, err = m.UserString(f.Main)
	assert.Error(t, err)
}

func TestTypes(t *testing.T) {
	_, m := readFixture(t)
	types := m.Types()
	require.Len(t, types, 4)

	byName := map[string]clr.TypeInfo{}
	for _, ti := range types {
		byName[ti.FullName] = ti
	}
	program := byName["Fixture.Program"]
	assert.Equal(t, 2, program.Fields)
	assert.Equal(t, 4, program.Methods)
	assert.Equal(t, "System.Object", program.Extends)
	assert.Equal(t, []string{"System.IDisposable"}, program.Interfaces)

	inner := byName["Fixture.Program/Inner"]
	assert.Equal(t, "Fixture.Program", inner.Enclosing)
	assert.Zero(t, inner.Fields)

	box := byName["Fixture.Box`1"]
	assert.Equal(t, []string{"TValue", "TOther"}, box.GenericParams)

	assert.Zero(t, byName["<Module>"].Methods)
}

// A "#-" image whose FieldPtr table lists three of the four Field rows.
func TestTypesWithFieldPtr(t *testing.T) {
	strs := heap.NewStringBuilder()
	ns := strs.Add("N")
	names := []tables.StringIndex{strs.Add("A"), strs.Add("B")}
	field := strs.Add("f")

	var rows [tables.MaxTables]uint32
	rows[tables.TypeDef] = 2
	rows[tables.FieldPtr] = 3
	rows[tables.Field] = 4
	w := tables.NewMetadataWriter(tables.LayoutFromHeader(rows, 0))
	w.WriteUint32(0)
	w.WriteUint8(2)
	w.WriteUint8(0)
	w.WriteUint8(0)
	w.WriteUint8(1)
	w.WriteUint64(1<<tables.TypeDef | 1<<tables.FieldPtr | 1<<tables.Field)
	w.WriteUint64(0)
	for _, idx := range []tables.Index{tables.TypeDef, tables.FieldPtr, tables.Field} {
		w.WriteUint32(rows[idx])
	}
	for i, name := range names {
		w.WriteUint32(0)             // Flags
		w.WriteUint16(uint16(name))  // TypeName
		w.WriteUint16(uint16(ns))    // TypeNamespace
		w.WriteUint16(0)             // Extends
		w.WriteUint16(uint16(i + 1)) // FieldList, into FieldPtr
		w.WriteUint16(1)             // MethodList
	}
	for _, f := range []uint16{3, 1, 2} {
		w.WriteUint16(f)
	}
	for range 4 {
		w.WriteUint16(0x0001)
		w.WriteUint16(uint16(field))
		w.WriteUint16(0)
	}

	md := root.Build(root.DefaultVersion, []root.Stream{
		root.NewStream(root.UncompressedTables, w.Bytes()),
		root.NewStream(root.StringsStream, strs.Bytes()),
	})
	m, err := clr.Read(md)
	require.NoError(t, err)
	require.True(t, m.Tables().HasIndirection())

	types := m.Types()
	require.Len(t, types, 2)
	assert.Equal(t, "N.A", types[0].FullName)
	assert.Equal(t, 1, types[0].Fields)
	assert.Equal(t, 2, types[1].Fields)
	assert.Zero(t, types[1].Methods)
}

func TestRowsAndFilter(t *testing.T) {
	f, m := readFixture(t)

	rows, err := m.Rows(tables.TypeDef)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "0x02000002", rows[1].Token)
	assert.Equal(t, clr.Cell{Name: "TypeName", Value: "Program"}, rows[1].Cells[1])
	assert.Equal(t, clr.Cell{Name: "Extends", Value: f.Object.String()}, rows[1].Cells[3])

	rows, err = m.Rows(tables.Constant)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2a000000", rows[0].Cells[2].Value)

	idx, err := m.Filter(tables.CustomAttribute, f.Program)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, idx)
	idx, err = m.Filter(tables.CustomAttribute, f.Box)
	require.NoError(t, err)
	assert.Empty(t, idx)

	_, err = m.Filter(tables.TypeDef, f.Program)
	assert.Error(t, err)
	_, err = m.Rows(tables.Index(0x3F))
	assert.Error(t, err)
}

func TestTableSummaries(t *testing.T) {
	_, m := readFixture(t)
	for _, s := range m.TableSummaries() {
		assert.Positive(t, s.Rows, s.Name)
		assert.False(t, s.Big)
		if s.Name == "TypeDef" {
			assert.Equal(t, 14, s.RowSize)
		}
		if s.Name == "CustomAttribute" {
			assert.True(t, s.Sorted)
		}
	}
}

func TestRewriteTables(t *testing.T) {
	_, m := readFixture(t)
	out, err := m.RewriteTables()
	require.NoError(t, err)
	assert.Equal(t, m.TableStream(), out)
}

func TestOpenFormats(t *testing.T) {
	f := testutil.NewFixture(t)
	image := testutil.WrapPE(t, f.Metadata)
	dir := t.TempDir()

	inputs := map[string][]byte{
		"raw.md":     f.Metadata,
		"image.dll":  image,
		"raw.md.zst": testutil.Compress(t, f.Metadata),
		"image.zst":  testutil.Compress(t, image),
	}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, data, 0o644))
			m, err := clr.Open(path)
			require.NoError(t, err)
			assert.Equal(t, "Fixture.dll", m.Info().Module)
			assert.Equal(t, f.Metadata, m.Metadata())
		})
	}

	_, err := clr.Open(filepath.Join(dir, "missing.dll"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.False(t, errors.Is(err, tables.ErrBadImageFormat))
}

func TestReadErrors(t *testing.T) {
	f := testutil.NewFixture(t)

	tests := map[string][]byte{
		"unknown format":   []byte("hello world"),
		"truncated root":   f.Metadata[:20],
		"truncated stream": f.Metadata[:len(f.Metadata)/2],
		"bad zstd":         {0x28, 0xB5, 0x2F, 0xFD, 0xFF, 0xFF},
		"not managed":      []byte("MZ"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := clr.Read(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tables.ErrBadImageFormat), "%v", err)
		})
	}
}
