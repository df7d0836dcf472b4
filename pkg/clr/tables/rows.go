package tables

// Row types. Each cells method returns pointers to the row's columns in
// schema order; the generic table engine reads and writes through them.
// Table-index and coded-index columns hold full tokens, never encoded
// values.

// ModuleRow identifies the current module.
type ModuleRow struct {
	Generation uint16
	Name       StringIndex
	Mvid       GuidIndex
	EncId      GuidIndex
	EncBaseId  GuidIndex
}

func (r *ModuleRow) cells() []any {
	return []any{&r.Generation, &r.Name, &r.Mvid, &r.EncId, &r.EncBaseId}
}

// TypeRefRow references a type defined in another module or assembly.
type TypeRefRow struct {
	ResolutionScope Token
	TypeName        StringIndex
	TypeNamespace   StringIndex
}

func (r *TypeRefRow) cells() []any {
	return []any{&r.ResolutionScope, &r.TypeName, &r.TypeNamespace}
}

// TypeDefRow defines a type; FieldList and MethodList start its member runs.
type TypeDefRow struct {
	Flags         uint32
	TypeName      StringIndex
	TypeNamespace StringIndex
	Extends       Token
	FieldList     Token
	MethodList    Token
}

func (r *TypeDefRow) cells() []any {
	return []any{&r.Flags, &r.TypeName, &r.TypeNamespace, &r.Extends, &r.FieldList, &r.MethodList}
}

// FieldPtrRow maps a position in a "#-" image to a Field row.
type FieldPtrRow struct{ Field Token }

func (r *FieldPtrRow) cells() []any { return []any{&r.Field} }

// FieldRow defines a field.
type FieldRow struct {
	Flags     uint16
	Name      StringIndex
	Signature BlobIndex
}

func (r *FieldRow) cells() []any { return []any{&r.Flags, &r.Name, &r.Signature} }

// MethodPtrRow maps a position in a "#-" image to a MethodDef row.
type MethodPtrRow struct{ Method Token }

func (r *MethodPtrRow) cells() []any { return []any{&r.Method} }

// MethodDefRow defines a method. RVA is relative to the method bodies.
type MethodDefRow struct {
	RVA       uint32
	ImplFlags uint16
	Flags     uint16
	Name      StringIndex
	Signature BlobIndex
	ParamList Token
}

func (r *MethodDefRow) cells() []any {
	return []any{&r.RVA, &r.ImplFlags, &r.Flags, &r.Name, &r.Signature, &r.ParamList}
}

// ParamPtrRow maps a position in a "#-" image to a Param row.
type ParamPtrRow struct{ Param Token }

func (r *ParamPtrRow) cells() []any { return []any{&r.Param} }

// ParamRow names a parameter; Sequence 0 is the return value.
type ParamRow struct {
	Flags    uint16
	Sequence uint16
	Name     StringIndex
}

func (r *ParamRow) cells() []any { return []any{&r.Flags, &r.Sequence, &r.Name} }

// InterfaceImplRow records that Class implements Interface.
type InterfaceImplRow struct {
	Class     Token
	Interface Token
}

func (r *InterfaceImplRow) cells() []any             { return []any{&r.Class, &r.Interface} }
func (r *InterfaceImplRow) SortKey() (uint32, error) { return r.Class.Row(), nil }
func (r *InterfaceImplRow) FilterKey() Token         { return r.Class }

// MemberRefRow references a field or method of another type.
type MemberRefRow struct {
	Class     Token
	Name      StringIndex
	Signature BlobIndex
}

func (r *MemberRefRow) cells() []any { return []any{&r.Class, &r.Name, &r.Signature} }

// ConstantRow holds the default value of a field, parameter or property.
type ConstantRow struct {
	Type   uint16
	Parent Token
	Value  BlobIndex
}

func (r *ConstantRow) cells() []any             { return []any{&r.Type, &r.Parent, &r.Value} }
func (r *ConstantRow) SortKey() (uint32, error) { return HasConstant.Encode(r.Parent) }
func (r *ConstantRow) FilterKey() Token         { return r.Parent }

// CustomAttributeRow attaches an attribute constructor and its blob to Parent.
type CustomAttributeRow struct {
	Parent Token
	Type   Token
	Value  BlobIndex
}

func (r *CustomAttributeRow) cells() []any { return []any{&r.Parent, &r.Type, &r.Value} }
func (r *CustomAttributeRow) SortKey() (uint32, error) {
	return HasCustomAttribute.Encode(r.Parent)
}
func (r *CustomAttributeRow) FilterKey() Token { return r.Parent }

// FieldMarshalRow gives the native marshaling of a field or parameter.
type FieldMarshalRow struct {
	Parent     Token
	NativeType BlobIndex
}

func (r *FieldMarshalRow) cells() []any             { return []any{&r.Parent, &r.NativeType} }
func (r *FieldMarshalRow) SortKey() (uint32, error) { return HasFieldMarshal.Encode(r.Parent) }
func (r *FieldMarshalRow) FilterKey() Token         { return r.Parent }

// DeclSecurityRow attaches a permission set to a type, method or assembly.
type DeclSecurityRow struct {
	Action        uint16
	Parent        Token
	PermissionSet BlobIndex
}

func (r *DeclSecurityRow) cells() []any             { return []any{&r.Action, &r.Parent, &r.PermissionSet} }
func (r *DeclSecurityRow) SortKey() (uint32, error) { return HasDeclSecurity.Encode(r.Parent) }
func (r *DeclSecurityRow) FilterKey() Token         { return r.Parent }

// ClassLayoutRow gives explicit packing and size for a type.
type ClassLayoutRow struct {
	PackingSize uint16
	ClassSize   uint32
	Parent      Token
}

func (r *ClassLayoutRow) cells() []any             { return []any{&r.PackingSize, &r.ClassSize, &r.Parent} }
func (r *ClassLayoutRow) SortKey() (uint32, error) { return r.Parent.Row(), nil }
func (r *ClassLayoutRow) FilterKey() Token         { return r.Parent }

// FieldLayoutRow gives the explicit offset of a field.
type FieldLayoutRow struct {
	Offset uint32
	Field  Token
}

func (r *FieldLayoutRow) cells() []any             { return []any{&r.Offset, &r.Field} }
func (r *FieldLayoutRow) SortKey() (uint32, error) { return r.Field.Row(), nil }
func (r *FieldLayoutRow) FilterKey() Token         { return r.Field }

// StandAloneSigRow holds a signature not owned by a member.
type StandAloneSigRow struct{ Signature BlobIndex }

func (r *StandAloneSigRow) cells() []any { return []any{&r.Signature} }

// EventMapRow starts the event run of a type.
type EventMapRow struct {
	Parent    Token
	EventList Token
}

func (r *EventMapRow) cells() []any             { return []any{&r.Parent, &r.EventList} }
func (r *EventMapRow) SortKey() (uint32, error) { return r.Parent.Row(), nil }
func (r *EventMapRow) FilterKey() Token         { return r.Parent }

// EventPtrRow maps a position in a "#-" image to an Event row.
type EventPtrRow struct{ Event Token }

func (r *EventPtrRow) cells() []any { return []any{&r.Event} }

// EventRow defines an event.
type EventRow struct {
	EventFlags uint16
	Name       StringIndex
	EventType  Token
}

func (r *EventRow) cells() []any { return []any{&r.EventFlags, &r.Name, &r.EventType} }

// PropertyMapRow starts the property run of a type.
type PropertyMapRow struct {
	Parent       Token
	PropertyList Token
}

func (r *PropertyMapRow) cells() []any             { return []any{&r.Parent, &r.PropertyList} }
func (r *PropertyMapRow) SortKey() (uint32, error) { return r.Parent.Row(), nil }
func (r *PropertyMapRow) FilterKey() Token         { return r.Parent }

// PropertyPtrRow maps a position in a "#-" image to a Property row.
type PropertyPtrRow struct{ Property Token }

func (r *PropertyPtrRow) cells() []any { return []any{&r.Property} }

// PropertyRow defines a property.
type PropertyRow struct {
	Flags uint16
	Name  StringIndex
	Type  BlobIndex
}

func (r *PropertyRow) cells() []any { return []any{&r.Flags, &r.Name, &r.Type} }

// MethodSemanticsRow links a getter, setter or other accessor to its event or property.
type MethodSemanticsRow struct {
	Semantics   uint16
	Method      Token
	Association Token
}

func (r *MethodSemanticsRow) cells() []any { return []any{&r.Semantics, &r.Method, &r.Association} }
func (r *MethodSemanticsRow) SortKey() (uint32, error) {
	return HasSemantics.Encode(r.Association)
}
func (r *MethodSemanticsRow) FilterKey() Token { return r.Association }

// MethodImplRow records that Body implements Declaration within Class.
type MethodImplRow struct {
	Class             Token
	MethodBody        Token
	MethodDeclaration Token
}

func (r *MethodImplRow) cells() []any {
	return []any{&r.Class, &r.MethodBody, &r.MethodDeclaration}
}
func (r *MethodImplRow) SortKey() (uint32, error) { return r.Class.Row(), nil }
func (r *MethodImplRow) FilterKey() Token         { return r.Class }

// ModuleRefRow references another module by name.
type ModuleRefRow struct{ Name StringIndex }

func (r *ModuleRefRow) cells() []any { return []any{&r.Name} }

// TypeSpecRow holds a type signature.
type TypeSpecRow struct{ Signature BlobIndex }

func (r *TypeSpecRow) cells() []any { return []any{&r.Signature} }

// ImplMapRow describes a P/Invoke import.
type ImplMapRow struct {
	MappingFlags    uint16
	MemberForwarded Token
	ImportName      StringIndex
	ImportScope     Token
}

func (r *ImplMapRow) cells() []any {
	return []any{&r.MappingFlags, &r.MemberForwarded, &r.ImportName, &r.ImportScope}
}
func (r *ImplMapRow) SortKey() (uint32, error) { return MemberForwarded.Encode(r.MemberForwarded) }
func (r *ImplMapRow) FilterKey() Token         { return r.MemberForwarded }

// FieldRVARow places the initial data of a field.
type FieldRVARow struct {
	RVA   uint32
	Field Token
}

func (r *FieldRVARow) cells() []any             { return []any{&r.RVA, &r.Field} }
func (r *FieldRVARow) SortKey() (uint32, error) { return r.Field.Row(), nil }
func (r *FieldRVARow) FilterKey() Token         { return r.Field }

// EncLogRow is an edit-and-continue log entry.
type EncLogRow struct {
	Token    uint32
	FuncCode uint32
}

func (r *EncLogRow) cells() []any { return []any{&r.Token, &r.FuncCode} }

// EncMapRow is an edit-and-continue token map entry.
type EncMapRow struct{ Token uint32 }

func (r *EncMapRow) cells() []any { return []any{&r.Token} }

// AssemblyRow describes the current assembly.
type AssemblyRow struct {
	HashAlgId      uint32
	MajorVersion   uint16
	MinorVersion   uint16
	BuildNumber    uint16
	RevisionNumber uint16
	Flags          uint32
	PublicKey      BlobIndex
	Name           StringIndex
	Culture        StringIndex
}

func (r *AssemblyRow) cells() []any {
	return []any{&r.HashAlgId, &r.MajorVersion, &r.MinorVersion, &r.BuildNumber,
		&r.RevisionNumber, &r.Flags, &r.PublicKey, &r.Name, &r.Culture}
}

// AssemblyProcessorRow is unused by the runtime and kept for completeness.
type AssemblyProcessorRow struct{ Processor uint32 }

func (r *AssemblyProcessorRow) cells() []any { return []any{&r.Processor} }

// AssemblyOSRow is unused by the runtime and kept for completeness.
type AssemblyOSRow struct {
	OSPlatformID   uint32
	OSMajorVersion uint32
	OSMinorVersion uint32
}

func (r *AssemblyOSRow) cells() []any {
	return []any{&r.OSPlatformID, &r.OSMajorVersion, &r.OSMinorVersion}
}

// AssemblyRefRow references another assembly.
type AssemblyRefRow struct {
	MajorVersion     uint16
	MinorVersion     uint16
	BuildNumber      uint16
	RevisionNumber   uint16
	Flags            uint32
	PublicKeyOrToken BlobIndex
	Name             StringIndex
	Culture          StringIndex
	HashValue        BlobIndex
}

func (r *AssemblyRefRow) cells() []any {
	return []any{&r.MajorVersion, &r.MinorVersion, &r.BuildNumber, &r.RevisionNumber,
		&r.Flags, &r.PublicKeyOrToken, &r.Name, &r.Culture, &r.HashValue}
}

// AssemblyRefProcessorRow is unused by the runtime and kept for completeness.
type AssemblyRefProcessorRow struct {
	Processor   uint32
	AssemblyRef Token
}

func (r *AssemblyRefProcessorRow) cells() []any { return []any{&r.Processor, &r.AssemblyRef} }

// AssemblyRefOSRow is unused by the runtime and kept for completeness.
type AssemblyRefOSRow struct {
	OSPlatformID   uint32
	OSMajorVersion uint32
	OSMinorVersion uint32
	AssemblyRef    Token
}

func (r *AssemblyRefOSRow) cells() []any {
	return []any{&r.OSPlatformID, &r.OSMajorVersion, &r.OSMinorVersion, &r.AssemblyRef}
}

// FileRow lists a file of a multi-file assembly.
type FileRow struct {
	Flags     uint32
	Name      StringIndex
	HashValue BlobIndex
}

func (r *FileRow) cells() []any { return []any{&r.Flags, &r.Name, &r.HashValue} }

// ExportedTypeRow forwards or exports a type defined elsewhere.
type ExportedTypeRow struct {
	Flags          uint32
	TypeDefId      uint32
	TypeName       StringIndex
	TypeNamespace  StringIndex
	Implementation Token
}

func (r *ExportedTypeRow) cells() []any {
	return []any{&r.Flags, &r.TypeDefId, &r.TypeName, &r.TypeNamespace, &r.Implementation}
}

// ManifestResourceRow describes a resource of the assembly.
type ManifestResourceRow struct {
	Offset         uint32
	Flags          uint32
	Name           StringIndex
	Implementation Token
}

func (r *ManifestResourceRow) cells() []any {
	return []any{&r.Offset, &r.Flags, &r.Name, &r.Implementation}
}

// NestedClassRow records the enclosing class of a nested type.
type NestedClassRow struct {
	NestedClass    Token
	EnclosingClass Token
}

func (r *NestedClassRow) cells() []any             { return []any{&r.NestedClass, &r.EnclosingClass} }
func (r *NestedClassRow) SortKey() (uint32, error) { return r.NestedClass.Row(), nil }
func (r *NestedClassRow) FilterKey() Token         { return r.NestedClass }

// GenericParamRow declares a generic parameter of a type or method.
type GenericParamRow struct {
	Number uint16
	Flags  uint16
	Owner  Token
	Name   StringIndex

	// position of the row before the owner sort
	unsortedIndex int
}

func (r *GenericParamRow) cells() []any             { return []any{&r.Number, &r.Flags, &r.Owner, &r.Name} }
func (r *GenericParamRow) SortKey() (uint32, error) { return TypeOrMethodDef.Encode(r.Owner) }
func (r *GenericParamRow) FilterKey() Token         { return r.Owner }

// MethodSpecRow instantiates a generic method.
type MethodSpecRow struct {
	Method        Token
	Instantiation BlobIndex
}

func (r *MethodSpecRow) cells() []any { return []any{&r.Method, &r.Instantiation} }

// GenericParamConstraintRow constrains a generic parameter.
type GenericParamConstraintRow struct {
	Owner      Token
	Constraint Token
}

func (r *GenericParamConstraintRow) cells() []any             { return []any{&r.Owner, &r.Constraint} }
func (r *GenericParamConstraintRow) SortKey() (uint32, error) { return r.Owner.Row(), nil }
func (r *GenericParamConstraintRow) FilterKey() Token         { return r.Owner }
