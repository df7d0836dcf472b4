// Package testutil builds metadata images for tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/goclr/pkg/clr"
	"github.com/jtang613/goclr/pkg/clr/tables"
)

// FixtureMVID is the module version id of every fixture.
var FixtureMVID = uuid.MustParse("6f1c2d3e-4a5b-4c6d-8e7f-0123456789ab")

// Method body and field data bases used by the fixture.
const (
	MethodBodyRVA = 0x2050
	SDataRVA      = 0x4000
	CILRVA        = 0x2000
)

// Fixture is a small module exercising every lookup of clr.Module.
type Fixture struct {
	Metadata []byte

	Object     tables.Token // TypeRef System.Object
	Disposable tables.Token // TypeRef System.IDisposable
	Obsolete   tables.Token // MemberRef ObsoleteAttribute::.ctor

	Program    tables.Token // TypeDef Fixture.Program
	Inner      tables.Token // TypeDef Inner, nested in Program
	Box        tables.Token // TypeDef Fixture.Box`1
	Count      tables.Token // Field with a constant
	Data       tables.Token // Field with an RVA
	Main       tables.Token
	MessageBox tables.Token // P/Invoke
	Identity   tables.Token // generic method
	GetName    tables.Token
	Name       tables.Token // Property
	Hello      tables.Token // user string

	// Generic parameters after sorting.
	IdentityT tables.Token
	BoxTValue tables.Token
	BoxTOther tables.Token
}

// NewFixture builds and bakes the fixture module.
func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	f := &Fixture{}
	b := clr.NewBuilder(clr.BuilderWithMVID(FixtureMVID))

	b.DefineModule("Fixture.dll")
	b.DefineAssembly("Fixture", clr.Version{Major: 1, Minor: 2, Build: 3, Revision: 4}, nil)
	corlib := b.AddAssemblyRef("System.Runtime", clr.Version{Major: 8},
		[]byte{0xb0, 0x3f, 0x5f, 0x7f, 0x11, 0xd5, 0x0a, 0x3a})
	f.Object = b.AddTypeRef(corlib, "System", "Object")
	f.Disposable = b.AddTypeRef(corlib, "System", "IDisposable")
	obsolete := b.AddTypeRef(corlib, "System", "ObsoleteAttribute")
	f.Obsolete = b.AddMemberRef(obsolete, ".ctor", []byte{0x20, 0x00, 0x01})

	// The attribute on Program is recorded before Program exists.
	program := b.NewPseudoToken()
	b.AddCustomAttribute(program, f.Obsolete, []byte{0x01, 0x00, 0x00, 0x00})

	b.DefineType("", "<Module>", 0, 0)
	f.Program = b.DefineType("Fixture", "Program", 0x00100001, f.Object)
	b.ResolvePseudoToken(program, f.Program)

	f.Count = b.DefineField("Count", 0x0056, []byte{0x06, 0x08})
	b.AddConstant(f.Count, 0x08, []byte{42, 0, 0, 0})
	f.Data = b.DefineField("Data", 0x0113, []byte{0x06, 0x08})
	b.AddFieldRVA(f.Data, 0x10, false)

	f.Main = b.DefineMethod("Main", 0x0096, 0, []byte{0x00, 0x00, 0x01}, 0, true)
	f.MessageBox = b.DefineMethod("MessageBox", 0x2096, 0x0080, []byte{0x00, 0x01, 0x08, 0x0e}, 0, false)
	b.DefineParam(1, "text", 0)
	b.AddImplMap(f.MessageBox, 0x0100, "MessageBoxW", "user32.dll")
	f.Identity = b.DefineMethod("Identity", 0x0096, 0, []byte{0x10, 0x01, 0x01, 0x1e, 0x00, 0x1e, 0x00}, 0x20, true)
	f.GetName = b.DefineMethod("get_Name", 0x0886, 0, []byte{0x20, 0x00, 0x0e}, 0x40, true)

	f.Name = b.DefineProperty(f.Program, "Name", 0, []byte{0x28, 0x00, 0x0e})
	b.AddMethodSemantics(0x0002, f.GetName, f.Name)
	b.AddInterfaceImpl(f.Program, f.Disposable)

	f.Inner = b.DefineType("", "Inner", 0x00100002, f.Object)
	b.AddNestedClass(f.Inner, f.Program)
	b.AddClassLayout(f.Inner, 8, 16)

	f.Box = b.DefineType("Fixture", "Box`1", 0x00100001, f.Object)

	// Declared out of order so that sorting moves them.
	other := b.AddGenericParam(f.Box, 1, "TOther", 0)
	value := b.AddGenericParam(f.Box, 0, "TValue", 0)
	ident := b.AddGenericParam(f.Identity, 0, "T", 0)
	b.AddGenericParamConstraint(other, f.Disposable)
	b.AddCustomAttribute(other, f.Obsolete, []byte{0x01, 0x00, 0x00, 0x00})

	f.Hello = b.AddUserString("Hello, world")

	b.SetMethodBodyRVA(MethodBodyRVA)
	b.SetFieldDataRVAs(SDataRVA, CILRVA)
	require.NoError(t, b.Bake())

	f.BoxTOther = b.GenericParamToken(other)
	f.BoxTValue = b.GenericParamToken(value)
	f.IdentityT = b.GenericParamToken(ident)

	md, err := b.Bytes()
	require.NoError(t, err)
	f.Metadata = md
	return f
}
