package clr

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jtang613/goclr/pkg/clr/heap"
	"github.com/jtang613/goclr/pkg/clr/root"
	"github.com/jtang613/goclr/pkg/clr/tables"
)

// hashAlgSHA1 is the AssemblyHashAlgorithm written for new assemblies.
const hashAlgSHA1 = 0x8004

// Version is an assembly version.
type Version struct {
	Major, Minor, Build, Revision uint16
}

// Builder assembles metadata for a new module. Rows may reference each
// other through pseudo-tokens that are resolved by Bake. A Builder is not
// safe for concurrent use.
type Builder struct {
	Tables      *tables.Set
	Strings     *heap.StringBuilder
	Blobs       *heap.BlobBuilder
	GUIDs       *heap.GuidBuilder
	UserStrings *heap.UserStringBuilder

	version string
	mvid    uuid.UUID
	log     *zap.Logger

	pseudo     map[tables.Token]tables.Token
	nextPseudo uint32

	// hasBody[i] is set when MethodDef row i+1 carries a body offset.
	hasBody       []bool
	methodBodyRVA uint32
	sdataRVA      uint32
	cilRVA        uint32

	baked bool
}

// NewBuilder returns an empty builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		Tables:      tables.NewSet(),
		Strings:     heap.NewStringBuilder(),
		Blobs:       heap.NewBlobBuilder(),
		GUIDs:       heap.NewGuidBuilder(),
		UserStrings: heap.NewUserStringBuilder(),
		version:     root.DefaultVersion,
		log:         zap.NewNop(),
		pseudo:      make(map[tables.Token]tables.Token),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MVID returns the module version id, generating it on first use.
func (b *Builder) MVID() uuid.UUID {
	if b.mvid == uuid.Nil {
		b.mvid = uuid.New()
	}
	return b.mvid
}

// NewPseudoToken issues a placeholder to be bound with ResolvePseudoToken
// before Bake.
func (b *Builder) NewPseudoToken() tables.Token {
	b.nextPseudo++
	return tables.PseudoToken(b.nextPseudo)
}

// ResolvePseudoToken binds a placeholder to its final token.
func (b *Builder) ResolvePseudoToken(pseudo, tok tables.Token) {
	if !pseudo.IsPseudo() || tok.IsPseudo() {
		panic(errors.AssertionFailedf("cannot bind %s to %s", pseudo, tok))
	}
	b.pseudo[pseudo] = tok
}

func (b *Builder) resolve(tok tables.Token) (tables.Token, bool) {
	resolved, ok := b.pseudo[tok]
	return resolved, ok
}

// SetMethodBodyRVA sets the RVA that method body offsets are relative to.
func (b *Builder) SetMethodBodyRVA(rva uint32) { b.methodBodyRVA = rva }

// SetFieldDataRVAs sets the bases of field data placed in the initialized
// data section and in the CIL stream.
func (b *Builder) SetFieldDataRVAs(sdata, cil uint32) {
	b.sdataRVA = sdata
	b.cilRVA = cil
}

// DefineModule adds the Module row with the builder's MVID.
func (b *Builder) DefineModule(name string) tables.Token {
	return b.Tables.Module.AddRecord(tables.ModuleRow{
		Name: b.Strings.Add(name),
		Mvid: b.GUIDs.Add(b.MVID()),
	})
}

// DefineAssembly adds the Assembly row. The hash algorithm is SHA-1.
func (b *Builder) DefineAssembly(name string, v Version, publicKey []byte) tables.Token {
	return b.Tables.Assembly.AddRecord(tables.AssemblyRow{
		HashAlgId:      hashAlgSHA1,
		MajorVersion:   v.Major,
		MinorVersion:   v.Minor,
		BuildNumber:    v.Build,
		RevisionNumber: v.Revision,
		PublicKey:      b.Blobs.Add(publicKey),
		Name:           b.Strings.Add(name),
	})
}

// AddAssemblyRef returns the reference to an assembly, adding it once.
func (b *Builder) AddAssemblyRef(name string, v Version, publicKeyToken []byte) tables.Token {
	return b.Tables.AssemblyRef.FindOrAddRecord(tables.AssemblyRefRow{
		MajorVersion:     v.Major,
		MinorVersion:     v.Minor,
		BuildNumber:      v.Build,
		RevisionNumber:   v.Revision,
		PublicKeyOrToken: b.Blobs.Add(publicKeyToken),
		Name:             b.Strings.Add(name),
	})
}

// AddModuleRef returns the reference to a module, adding it once.
func (b *Builder) AddModuleRef(name string) tables.Token {
	return b.Tables.ModuleRef.FindOrAddRecord(tables.ModuleRefRow{Name: b.Strings.Add(name)})
}

// AddTypeRef returns the reference to a type, adding it once. scope is a
// Module, ModuleRef, AssemblyRef or, for nested types, TypeRef token.
func (b *Builder) AddTypeRef(scope tables.Token, namespace, name string) tables.Token {
	r := tables.TypeRefRow{
		ResolutionScope: scope,
		TypeName:        b.Strings.Add(name),
		TypeNamespace:   b.Strings.Add(namespace),
	}
	for i, existing := range b.Tables.TypeRef.Rows() {
		if existing == r {
			return tables.MakeToken(tables.TypeRef, uint32(i+1))
		}
	}
	return b.Tables.TypeRef.AddRecord(r)
}

// AddTypeSpec returns the TypeSpec for sig, adding it once.
func (b *Builder) AddTypeSpec(sig []byte) tables.Token {
	return b.Tables.TypeSpec.FindOrAddRecord(tables.TypeSpecRow{Signature: b.Blobs.Add(sig)})
}

// AddMemberRef returns the reference to a member of class, adding it once.
func (b *Builder) AddMemberRef(class tables.Token, name string, sig []byte) tables.Token {
	return b.Tables.MemberRef.FindOrAddRecord(tables.MemberRefRow{
		Class:     class,
		Name:      b.Strings.Add(name),
		Signature: b.Blobs.Add(sig),
	})
}

// AddMethodSpec returns an instantiation of a generic method, adding it once.
func (b *Builder) AddMethodSpec(method tables.Token, instantiation []byte) tables.Token {
	return b.Tables.MethodSpec.FindOrAddRecord(tables.MethodSpecRow{
		Method:        method,
		Instantiation: b.Blobs.Add(instantiation),
	})
}

// AddStandAloneSig returns the token of a local or call-site signature.
func (b *Builder) AddStandAloneSig(sig []byte) tables.Token {
	return b.Tables.StandAloneSig.FindOrAddRecord(tables.StandAloneSigRow{Signature: b.Blobs.Add(sig)})
}

// AddUserString returns the ldstr token of s.
func (b *Builder) AddUserString(s string) tables.Token {
	return heap.Token(b.UserStrings.Add(s))
}

// DefineType adds a TypeDef. Fields and methods defined afterwards belong
// to it until the next DefineType.
func (b *Builder) DefineType(namespace, name string, flags uint32, extends tables.Token) tables.Token {
	tok := b.Tables.TypeDef.AddVirtualRecord()
	r := b.Tables.TypeDef.Lookup(tok)
	r.Flags = flags
	r.TypeName = b.Strings.Add(name)
	r.TypeNamespace = b.Strings.Add(namespace)
	r.Extends = extends
	r.FieldList = tables.MakeToken(tables.Field, uint32(b.Tables.Field.RowCount()+1))
	r.MethodList = tables.MakeToken(tables.MethodDef, uint32(b.Tables.MethodDef.RowCount()+1))
	return tok
}

// DefineField adds a field to the type defined last.
func (b *Builder) DefineField(name string, flags uint16, sig []byte) tables.Token {
	return b.Tables.Field.AddRecord(tables.FieldRow{
		Flags:     flags,
		Name:      b.Strings.Add(name),
		Signature: b.Blobs.Add(sig),
	})
}

// DefineMethod adds a MethodDef. bodyOffset is relative to the method
// body RVA and is ignored when hasBody is false. Parameters defined
// afterwards belong to it.
func (b *Builder) DefineMethod(name string, flags, implFlags uint16, sig []byte, bodyOffset uint32, hasBody bool) tables.Token {
	r := tables.MethodDefRow{
		ImplFlags: implFlags,
		Flags:     flags,
		Name:      b.Strings.Add(name),
		Signature: b.Blobs.Add(sig),
		ParamList: tables.MakeToken(tables.Param, uint32(b.Tables.Param.RowCount()+1)),
	}
	if hasBody {
		r.RVA = bodyOffset
	}
	tok := b.Tables.MethodDef.AddRecord(r)
	for len(b.hasBody) < int(tok.Row())-1 {
		b.hasBody = append(b.hasBody, false)
	}
	b.hasBody = append(b.hasBody, hasBody)
	return tok
}

// DefineParam adds a parameter to the method defined last.
func (b *Builder) DefineParam(sequence uint16, name string, flags uint16) tables.Token {
	return b.Tables.Param.AddRecord(tables.ParamRow{
		Flags:    flags,
		Sequence: sequence,
		Name:     b.Strings.Add(name),
	})
}

// DefineProperty adds a property of parent. Properties of one type must
// be defined together.
func (b *Builder) DefineProperty(parent tables.Token, name string, flags uint16, sig []byte) tables.Token {
	next := tables.MakeToken(tables.Property, uint32(b.Tables.Property.RowCount()+1))
	if n := b.Tables.PropertyMap.RowCount(); n == 0 || b.Tables.PropertyMap.Row(n-1).Parent != parent {
		b.Tables.PropertyMap.AddRecord(tables.PropertyMapRow{Parent: parent, PropertyList: next})
	}
	return b.Tables.Property.AddRecord(tables.PropertyRow{
		Flags: flags,
		Name:  b.Strings.Add(name),
		Type:  b.Blobs.Add(sig),
	})
}

// DefineEvent adds an event of parent. Events of one type must be defined
// together.
func (b *Builder) DefineEvent(parent tables.Token, name string, flags uint16, eventType tables.Token) tables.Token {
	next := tables.MakeToken(tables.Event, uint32(b.Tables.Event.RowCount()+1))
	if n := b.Tables.EventMap.RowCount(); n == 0 || b.Tables.EventMap.Row(n-1).Parent != parent {
		b.Tables.EventMap.AddRecord(tables.EventMapRow{Parent: parent, EventList: next})
	}
	return b.Tables.Event.AddRecord(tables.EventRow{
		EventFlags: flags,
		Name:       b.Strings.Add(name),
		EventType:  eventType,
	})
}

// AddMethodSemantics binds an accessor method to a property or event.
func (b *Builder) AddMethodSemantics(semantics uint16, method, association tables.Token) {
	b.Tables.MethodSemantics.AddRecord(tables.MethodSemanticsRow{
		Semantics:   semantics,
		Method:      method,
		Association: association,
	})
}

// AddMethodImpl records that body implements declaration in class.
func (b *Builder) AddMethodImpl(class, body, declaration tables.Token) {
	b.Tables.MethodImpl.AddRecord(tables.MethodImplRow{
		Class:             class,
		MethodBody:        body,
		MethodDeclaration: declaration,
	})
}

// AddInterfaceImpl records that class implements iface.
func (b *Builder) AddInterfaceImpl(class, iface tables.Token) {
	b.Tables.InterfaceImpl.AddRecord(tables.InterfaceImplRow{Class: class, Interface: iface})
}

// AddNestedClass records that nested is declared inside enclosing.
func (b *Builder) AddNestedClass(nested, enclosing tables.Token) {
	b.Tables.NestedClass.AddRecord(tables.NestedClassRow{NestedClass: nested, EnclosingClass: enclosing})
}

// AddCustomAttribute attaches an attribute to parent. parent may be a
// pseudo-token resolved before Bake.
func (b *Builder) AddCustomAttribute(parent, ctor tables.Token, value []byte) {
	b.Tables.CustomAttribute.AddRecord(tables.CustomAttributeRow{
		Parent: parent,
		Type:   ctor,
		Value:  b.Blobs.Add(value),
	})
}

// AddConstant gives a field, parameter or property its default value.
func (b *Builder) AddConstant(parent tables.Token, elementType uint16, value []byte) {
	b.Tables.Constant.AddRecord(tables.ConstantRow{
		Type:   elementType,
		Parent: parent,
		Value:  b.Blobs.Add(value),
	})
}

// AddFieldMarshal sets the native type of a field or parameter.
func (b *Builder) AddFieldMarshal(parent tables.Token, nativeType []byte) {
	b.Tables.FieldMarshal.AddRecord(tables.FieldMarshalRow{Parent: parent, NativeType: b.Blobs.Add(nativeType)})
}

// AddDeclSecurity attaches a permission set to a type, method or assembly.
func (b *Builder) AddDeclSecurity(action uint16, parent tables.Token, permissionSet []byte) {
	b.Tables.DeclSecurity.AddRecord(tables.DeclSecurityRow{
		Action:        action,
		Parent:        parent,
		PermissionSet: b.Blobs.Add(permissionSet),
	})
}

// AddClassLayout sets explicit packing and size for a type.
func (b *Builder) AddClassLayout(parent tables.Token, packing uint16, size uint32) {
	b.Tables.ClassLayout.AddRecord(tables.ClassLayoutRow{PackingSize: packing, ClassSize: size, Parent: parent})
}

// AddFieldLayout sets the explicit offset of a field.
func (b *Builder) AddFieldLayout(field tables.Token, offset uint32) {
	b.Tables.FieldLayout.AddRecord(tables.FieldLayoutRow{Offset: offset, Field: field})
}

// AddFieldRVA places a field's initial data at offset in the initialized
// data section, or in the CIL stream when inCIL is set.
func (b *Builder) AddFieldRVA(field tables.Token, offset uint32, inCIL bool) {
	if inCIL {
		offset |= 0x80000000
	}
	b.Tables.FieldRVA.AddRecord(tables.FieldRVARow{RVA: offset, Field: field})
}

// AddImplMap declares member as a P/Invoke of importName in module.
func (b *Builder) AddImplMap(member tables.Token, flags uint16, importName, module string) {
	b.Tables.ImplMap.AddRecord(tables.ImplMapRow{
		MappingFlags:    flags,
		MemberForwarded: member,
		ImportName:      b.Strings.Add(importName),
		ImportScope:     b.AddModuleRef(module),
	})
}

// AddGenericParam adds a generic parameter of a type or method. The
// returned token is valid until Bake; use GenericParamToken afterwards.
func (b *Builder) AddGenericParam(owner tables.Token, number uint16, name string, flags uint16) tables.Token {
	return b.Tables.GenericParam.AddRecord(tables.GenericParamRow{
		Number: number,
		Flags:  flags,
		Owner:  owner,
		Name:   b.Strings.Add(name),
	})
}

// GenericParamToken maps a token returned by AddGenericParam to the row
// the parameter occupies after Bake.
func (b *Builder) GenericParamToken(tok tables.Token) tables.Token {
	fix := b.Tables.GenericParam.IndexFixup()
	i := int(tok.Row()) - 1
	if tok.Table() != tables.GenericParam || i < 0 || i >= len(fix) {
		return tok
	}
	return tables.MakeToken(tables.GenericParam, uint32(fix[i]+1))
}

// AddGenericParamConstraint constrains a parameter returned by
// AddGenericParam.
func (b *Builder) AddGenericParamConstraint(param, constraint tables.Token) {
	b.Tables.GenericParamConstraint.AddRecord(tables.GenericParamConstraintRow{Owner: param, Constraint: constraint})
}

// AddFile adds a file of a multi-file assembly.
func (b *Builder) AddFile(name string, flags uint32, hash []byte) tables.Token {
	return b.Tables.File.AddRecord(tables.FileRow{Flags: flags, Name: b.Strings.Add(name), HashValue: b.Blobs.Add(hash)})
}

// AddExportedType forwards a type to implementation, adding it once.
func (b *Builder) AddExportedType(namespace, name string, flags uint32, implementation tables.Token) tables.Token {
	return b.Tables.ExportedType.FindOrAddRecord(tables.ExportedTypeRow{
		Flags:          flags,
		TypeName:       b.Strings.Add(name),
		TypeNamespace:  b.Strings.Add(namespace),
		Implementation: implementation,
	})
}

// AddManifestResource adds a resource stored at offset in implementation,
// or in this module when implementation is nil.
func (b *Builder) AddManifestResource(name string, offset, flags uint32, implementation tables.Token) tables.Token {
	return b.Tables.ManifestResource.AddRecord(tables.ManifestResourceRow{
		Offset:         offset,
		Flags:          flags,
		Name:           b.Strings.Add(name),
		Implementation: implementation,
	})
}

// Bake resolves pseudo-tokens, sorts the sorted tables and freezes the
// layout. Nothing may be added afterwards.
func (b *Builder) Bake() error {
	if b.baked {
		return errors.AssertionFailedf("builder baked twice")
	}
	if err := b.Tables.Fixup(tables.FixupOptions{
		Resolve:  b.resolve,
		SDataRVA: b.sdataRVA,
		CILRVA:   b.cilRVA,
		Logger:   b.log,
	}); err != nil {
		return errors.Wrap(err, "failed to bake metadata")
	}
	b.Tables.MethodDef.SetMaterializer(b.materializeMethods)

	layout := b.Tables.Freeze(tables.HeapSizes{
		Strings: b.Strings.Size(),
		Guids:   b.GUIDs.Size(),
		Blobs:   b.Blobs.Size(),
	})
	b.baked = true
	b.log.Debug("layout",
		zap.Uint8("heap_sizes", layout.HeapFlags()),
		zap.Int("tables_size", b.Tables.GetLength()),
		zap.Uint64("valid", b.Tables.ValidMask()))
	return nil
}

// materializeMethods turns body offsets into RVAs.
func (b *Builder) materializeMethods(rows []tables.MethodDefRow) []tables.MethodDefRow {
	for i := range rows {
		if i < len(b.hasBody) && b.hasBody[i] {
			rows[i].RVA += b.methodBodyRVA
		}
	}
	return rows
}

// TableStream returns the encoded "#~" stream.
func (b *Builder) TableStream() ([]byte, error) {
	if !b.baked {
		return nil, errors.AssertionFailedf("builder must be baked before writing")
	}
	return b.Tables.WriteStream()
}

// Bytes returns the complete metadata root.
func (b *Builder) Bytes() ([]byte, error) {
	ts, err := b.TableStream()
	if err != nil {
		return nil, err
	}
	return root.Build(b.version, []root.Stream{
		root.NewStream(root.TablesStream, ts),
		root.NewStream(root.StringsStream, b.Strings.Bytes()),
		root.NewStream(root.UserStringsStream, b.UserStrings.Bytes()),
		root.NewStream(root.GUIDStream, b.GUIDs.Bytes()),
		root.NewStream(root.BlobStream, b.Blobs.Bytes()),
	}), nil
}
