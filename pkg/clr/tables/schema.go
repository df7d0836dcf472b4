package tables

import "strings"

// HeapKind identifies a metadata heap referenced from table columns.
type HeapKind uint8

// Heaps
const (
	StringHeap HeapKind = iota
	GuidHeap
	BlobHeap
	numHeaps
)

func (h HeapKind) String() string {
	switch h {
	case StringHeap:
		return "#Strings"
	case GuidHeap:
		return "#GUID"
	case BlobHeap:
		return "#Blob"
	}
	return "#?"
}

// ColumnKind selects how a column is encoded.
type ColumnKind uint8

// Column kinds
const (
	KindFixed ColumnKind = iota // 2 or 4 byte constant
	KindHeap                    // index into a heap
	KindTable                   // row number in a single table
	KindCoded                   // coded index
)

// Column describes one column of a table row.
type Column struct {
	Name   string
	Kind   ColumnKind
	Size   int      // KindFixed
	Heap   HeapKind // KindHeap
	Table  Index    // KindTable
	Scheme *Scheme  // KindCoded
}

func fixed(name string, size int) Column { return Column{Name: name, Kind: KindFixed, Size: size} }
func str(name string) Column             { return Column{Name: name, Kind: KindHeap, Heap: StringHeap} }
func guid(name string) Column            { return Column{Name: name, Kind: KindHeap, Heap: GuidHeap} }
func blob(name string) Column            { return Column{Name: name, Kind: KindHeap, Heap: BlobHeap} }
func ref(name string, t Index) Column    { return Column{Name: name, Kind: KindTable, Table: t} }
func coded(name string, s *Scheme) Column {
	return Column{Name: name, Kind: KindCoded, Scheme: s}
}

// TableInfo is the fixed declaration of one metadata table.
type TableInfo struct {
	Index   Index
	Name    string
	Columns []Column
	// Sorted tables must be ordered by their owner column before writing.
	Sorted bool
	// ReadOnly tables are decoded from foreign images but never emitted.
	ReadOnly bool
}

var tableInfos = []TableInfo{
	{Index: Module, Name: "Module", Columns: []Column{
		fixed("Generation", 2), str("Name"), guid("Mvid"), guid("EncId"), guid("EncBaseId")}},
	{Index: TypeRef, Name: "TypeRef", Columns: []Column{
		coded("ResolutionScope", ResolutionScope), str("TypeName"), str("TypeNamespace")}},
	{Index: TypeDef, Name: "TypeDef", Columns: []Column{
		fixed("Flags", 4), str("TypeName"), str("TypeNamespace"), coded("Extends", TypeDefOrRef),
		ref("FieldList", Field), ref("MethodList", MethodDef)}},
	{Index: FieldPtr, Name: "FieldPtr", ReadOnly: true, Columns: []Column{ref("Field", Field)}},
	{Index: Field, Name: "Field", Columns: []Column{
		fixed("Flags", 2), str("Name"), blob("Signature")}},
	{Index: MethodPtr, Name: "MethodPtr", ReadOnly: true, Columns: []Column{ref("Method", MethodDef)}},
	{Index: MethodDef, Name: "MethodDef", Columns: []Column{
		fixed("RVA", 4), fixed("ImplFlags", 2), fixed("Flags", 2), str("Name"), blob("Signature"),
		ref("ParamList", Param)}},
	{Index: ParamPtr, Name: "ParamPtr", ReadOnly: true, Columns: []Column{ref("Param", Param)}},
	{Index: Param, Name: "Param", Columns: []Column{
		fixed("Flags", 2), fixed("Sequence", 2), str("Name")}},
	{Index: InterfaceImpl, Name: "InterfaceImpl", Sorted: true, Columns: []Column{
		ref("Class", TypeDef), coded("Interface", TypeDefOrRef)}},
	{Index: MemberRef, Name: "MemberRef", Columns: []Column{
		coded("Class", MemberRefParent), str("Name"), blob("Signature")}},
	{Index: Constant, Name: "Constant", Sorted: true, Columns: []Column{
		fixed("Type", 2), coded("Parent", HasConstant), blob("Value")}},
	{Index: CustomAttribute, Name: "CustomAttribute", Sorted: true, Columns: []Column{
		coded("Parent", HasCustomAttribute), coded("Type", CustomAttributeType), blob("Value")}},
	{Index: FieldMarshal, Name: "FieldMarshal", Sorted: true, Columns: []Column{
		coded("Parent", HasFieldMarshal), blob("NativeType")}},
	{Index: DeclSecurity, Name: "DeclSecurity", Sorted: true, Columns: []Column{
		fixed("Action", 2), coded("Parent", HasDeclSecurity), blob("PermissionSet")}},
	{Index: ClassLayout, Name: "ClassLayout", Sorted: true, Columns: []Column{
		fixed("PackingSize", 2), fixed("ClassSize", 4), ref("Parent", TypeDef)}},
	{Index: FieldLayout, Name: "FieldLayout", Sorted: true, Columns: []Column{
		fixed("Offset", 4), ref("Field", Field)}},
	{Index: StandAloneSig, Name: "StandAloneSig", Columns: []Column{blob("Signature")}},
	{Index: EventMap, Name: "EventMap", Columns: []Column{
		ref("Parent", TypeDef), ref("EventList", Event)}},
	{Index: EventPtr, Name: "EventPtr", ReadOnly: true, Columns: []Column{ref("Event", Event)}},
	{Index: Event, Name: "Event", Columns: []Column{
		fixed("EventFlags", 2), str("Name"), coded("EventType", TypeDefOrRef)}},
	{Index: PropertyMap, Name: "PropertyMap", Columns: []Column{
		ref("Parent", TypeDef), ref("PropertyList", Property)}},
	{Index: PropertyPtr, Name: "PropertyPtr", ReadOnly: true, Columns: []Column{ref("Property", Property)}},
	{Index: Property, Name: "Property", Columns: []Column{
		fixed("Flags", 2), str("Name"), blob("Type")}},
	{Index: MethodSemantics, Name: "MethodSemantics", Sorted: true, Columns: []Column{
		fixed("Semantics", 2), ref("Method", MethodDef), coded("Association", HasSemantics)}},
	{Index: MethodImpl, Name: "MethodImpl", Sorted: true, Columns: []Column{
		ref("Class", TypeDef), coded("MethodBody", MethodDefOrRef), coded("MethodDeclaration", MethodDefOrRef)}},
	{Index: ModuleRef, Name: "ModuleRef", Columns: []Column{str("Name")}},
	{Index: TypeSpec, Name: "TypeSpec", Columns: []Column{blob("Signature")}},
	{Index: ImplMap, Name: "ImplMap", Sorted: true, Columns: []Column{
		fixed("MappingFlags", 2), coded("MemberForwarded", MemberForwarded), str("ImportName"),
		ref("ImportScope", ModuleRef)}},
	{Index: FieldRVA, Name: "FieldRVA", Sorted: true, Columns: []Column{
		fixed("RVA", 4), ref("Field", Field)}},
	{Index: EncLog, Name: "EncLog", ReadOnly: true, Columns: []Column{
		fixed("Token", 4), fixed("FuncCode", 4)}},
	{Index: EncMap, Name: "EncMap", ReadOnly: true, Columns: []Column{fixed("Token", 4)}},
	{Index: Assembly, Name: "Assembly", Columns: []Column{
		fixed("HashAlgId", 4), fixed("MajorVersion", 2), fixed("MinorVersion", 2),
		fixed("BuildNumber", 2), fixed("RevisionNumber", 2), fixed("Flags", 4),
		blob("PublicKey"), str("Name"), str("Culture")}},
	{Index: AssemblyProcessor, Name: "AssemblyProcessor", ReadOnly: true, Columns: []Column{
		fixed("Processor", 4)}},
	{Index: AssemblyOS, Name: "AssemblyOS", ReadOnly: true, Columns: []Column{
		fixed("OSPlatformID", 4), fixed("OSMajorVersion", 4), fixed("OSMinorVersion", 4)}},
	{Index: AssemblyRef, Name: "AssemblyRef", Columns: []Column{
		fixed("MajorVersion", 2), fixed("MinorVersion", 2), fixed("BuildNumber", 2),
		fixed("RevisionNumber", 2), fixed("Flags", 4), blob("PublicKeyOrToken"), str("Name"),
		str("Culture"), blob("HashValue")}},
	{Index: AssemblyRefProcessor, Name: "AssemblyRefProcessor", ReadOnly: true, Columns: []Column{
		fixed("Processor", 4), ref("AssemblyRef", AssemblyRef)}},
	{Index: AssemblyRefOS, Name: "AssemblyRefOS", ReadOnly: true, Columns: []Column{
		fixed("OSPlatformID", 4), fixed("OSMajorVersion", 4), fixed("OSMinorVersion", 4),
		ref("AssemblyRef", AssemblyRef)}},
	{Index: File, Name: "File", Columns: []Column{
		fixed("Flags", 4), str("Name"), blob("HashValue")}},
	{Index: ExportedType, Name: "ExportedType", Columns: []Column{
		fixed("Flags", 4), fixed("TypeDefId", 4), str("TypeName"), str("TypeNamespace"),
		coded("Implementation", Implementation)}},
	{Index: ManifestResource, Name: "ManifestResource", Columns: []Column{
		fixed("Offset", 4), fixed("Flags", 4), str("Name"), coded("Implementation", Implementation)}},
	{Index: NestedClass, Name: "NestedClass", Sorted: true, Columns: []Column{
		ref("NestedClass", TypeDef), ref("EnclosingClass", TypeDef)}},
	{Index: GenericParam, Name: "GenericParam", Sorted: true, Columns: []Column{
		fixed("Number", 2), fixed("Flags", 2), coded("Owner", TypeOrMethodDef), str("Name")}},
	{Index: MethodSpec, Name: "MethodSpec", Columns: []Column{
		coded("Method", MethodDefOrRef), blob("Instantiation")}},
	{Index: GenericParamConstraint, Name: "GenericParamConstraint", Sorted: true, Columns: []Column{
		ref("Owner", GenericParam), coded("Constraint", TypeDefOrRef)}},
}

var schema [MaxTables]*TableInfo

func init() {
	for i := range tableInfos {
		schema[tableInfos[i].Index] = &tableInfos[i]
	}
}

// Info returns the declaration of a table, or nil for an unknown index.
func Info(i Index) *TableInfo {
	if int(i) >= MaxTables {
		return nil
	}
	return schema[i]
}

// Indexes returns every declared table index in ascending order.
func Indexes() []Index {
	out := make([]Index, len(tableInfos))
	for i := range tableInfos {
		out[i] = tableInfos[i].Index
	}
	return out
}

// ByName finds a table by its ECMA name, ignoring case.
func ByName(name string) (Index, bool) {
	for i := range tableInfos {
		if strings.EqualFold(tableInfos[i].Name, name) {
			return tableInfos[i].Index, true
		}
	}
	return 0, false
}

// DefaultSortedMask is the sorted bitmask written for freshly built
// metadata: one bit per table declared Sorted.
func DefaultSortedMask() uint64 {
	var mask uint64
	for i := range tableInfos {
		if tableInfos[i].Sorted {
			mask |= 1 << tableInfos[i].Index
		}
	}
	return mask
}
