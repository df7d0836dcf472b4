package clr

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"iter"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/jtang613/goclr/pkg/clr/heap"
	"github.com/jtang613/goclr/pkg/clr/root"
	"github.com/jtang613/goclr/pkg/clr/tables"
)

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	peMagic   = []byte{'M', 'Z'}
	rootMagic = []byte{'B', 'S', 'J', 'B'}
)

// maxNesting bounds the enclosing-class chain followed by TypeName.
const maxNesting = 64

// Module is a read-only view of a metadata image. It is safe for
// concurrent use.
type Module struct {
	root        *root.Root
	set         *tables.Set
	strings     *heap.StringHeap
	blobs       *heap.BlobHeap
	guids       *heap.GuidHeap
	userStrings *heap.UserStringHeap
	metadata    []byte
	log         *zap.Logger
}

// Open reads the file at path. See Read for the accepted formats.
func Open(path string, opts ...Option) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	m, err := Read(data, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return m, nil
}

// Read parses a managed PE image or a bare metadata root. Either may be
// zstd compressed.
func Read(data []byte, opts ...Option) (*Module, error) {
	o := buildOptions(opts)

	if bytes.HasPrefix(data, zstdMagic) {
		var err error
		if data, err = decompress(data); err != nil {
			return nil, err
		}
	}

	var md []byte
	switch {
	case bytes.HasPrefix(data, peMagic):
		var err error
		if md, err = locateMetadata(data); err != nil {
			return nil, err
		}
	case bytes.HasPrefix(data, rootMagic):
		md = data
	default:
		return nil, tables.BadImage(errors.New("unknown file format"), "failed to read metadata")
	}

	r, err := root.Parse(md)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse metadata root")
	}
	ts, ok := r.Tables()
	if !ok {
		return nil, tables.BadImage(errors.New("no #~ stream"), "failed to read metadata")
	}

	m := &Module{
		root:        r,
		set:         tables.NewSet(),
		strings:     heap.NewStringHeap(streamData(r, root.StringsStream)),
		blobs:       heap.NewBlobHeap(streamData(r, root.BlobStream)),
		guids:       heap.NewGuidHeap(streamData(r, root.GUIDStream)),
		userStrings: heap.NewUserStringHeap(streamData(r, root.UserStringsStream)),
		metadata:    md,
		log:         o.logger,
	}
	if err := m.set.ReadStream(ts.Data()); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s stream", ts.Name)
	}

	layout := m.set.Layout()
	for _, t := range m.set.Tables() {
		if t.RowCount() == 0 {
			continue
		}
		m.log.Debug("read table",
			zap.String("table", t.Name()),
			zap.Int("rows", t.RowCount()),
			zap.Int("row_size", layout.RowSize(t.Index())),
			zap.Bool("sorted", t.IsSorted()))
	}
	return m, nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd reader")
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, tables.BadImage(err, "failed to decompress")
	}
	return out, nil
}

func streamData(r *root.Root, name string) []byte {
	if s, ok := r.Stream(name); ok {
		return s.Data()
	}
	return nil
}

// Tables returns the decoded tables. The set is frozen.
func (m *Module) Tables() *tables.Set { return m.set }

// Root returns the parsed metadata root.
func (m *Module) Root() *root.Root { return m.root }

// Metadata returns the raw metadata root bytes.
func (m *Module) Metadata() []byte { return m.metadata }

// TableStream returns the raw "#~" (or "#-") stream.
func (m *Module) TableStream() []byte {
	s, _ := m.root.Tables()
	return s.Data()
}

// String resolves a #Strings index.
func (m *Module) String(i tables.StringIndex) (string, error) { return m.strings.Get(i) }

// Blob resolves a #Blob index.
func (m *Module) Blob(i tables.BlobIndex) ([]byte, error) { return m.blobs.Get(i) }

// UserString resolves an ldstr token or #US offset.
func (m *Module) UserString(tok tables.Token) (string, error) {
	if tok.Table() != heap.UserStringTable {
		return "", errors.Newf("token %s is not a user string", tok)
	}
	return m.userStrings.Get(tok.Row())
}

func (m *Module) str(i tables.StringIndex) string {
	s, err := m.strings.Get(i)
	if err != nil {
		return fmt.Sprintf("<bad string 0x%X>", uint32(i))
	}
	return s
}

// Info returns a summary of the image.
func (m *Module) Info() *ModuleInfo {
	info := &ModuleInfo{
		Version: m.root.Version,
		Heaps: HeapInfo{
			Strings:     m.strings.Size(),
			Blob:        m.blobs.Size(),
			GUID:        m.guids.Size(),
			UserStrings: m.userStrings.Size(),
		},
		Tables: make(map[string]int),
	}
	for _, s := range m.root.Streams() {
		info.Streams = append(info.Streams, StreamInfo{Name: s.Name, Offset: s.Offset, Size: s.Size})
	}
	for _, t := range m.set.Tables() {
		if t.RowCount() > 0 {
			info.Tables[t.Name()] = t.RowCount()
		}
	}

	if m.set.Module.RowCount() > 0 {
		mod := m.set.Module.Row(0)
		info.Module = m.str(mod.Name)
		if id, err := m.guids.Get(mod.Mvid); err == nil && mod.Mvid != 0 {
			info.MVID = id.String()
		}
	}
	if m.set.Assembly.RowCount() > 0 {
		a := m.set.Assembly.Row(0)
		info.Assembly = &AssemblyInfo{
			Name:    m.str(a.Name),
			Version: fmt.Sprintf("%d.%d.%d.%d", a.MajorVersion, a.MinorVersion, a.BuildNumber, a.RevisionNumber),
			Culture: m.str(a.Culture),
		}
	}
	return info
}

// TableSummaries describes every table that has rows.
func (m *Module) TableSummaries() []TableSummary {
	var out []TableSummary
	layout := m.set.Layout()
	for _, t := range m.set.Tables() {
		if t.RowCount() == 0 {
			continue
		}
		out = append(out, TableSummary{
			Index:   uint8(t.Index()),
			Name:    t.Name(),
			Rows:    t.RowCount(),
			RowSize: layout.RowSize(t.Index()),
			Sorted:  t.IsSorted(),
			Big:     t.IsBig(),
		})
	}
	return out
}

// Rows decodes every row of a table.
func (m *Module) Rows(idx tables.Index) ([]Row, error) {
	t := m.set.Table(idx)
	if t == nil {
		return nil, errors.Newf("unknown table 0x%02X", uint8(idx))
	}
	cols := t.Info().Columns
	out := make([]Row, t.RowCount())
	for i := range out {
		cells := t.Cells(i)
		row := Row{
			Token: tables.MakeToken(idx, uint32(i+1)).String(),
			Cells: make([]Cell, len(cols)),
		}
		for j, c := range cols {
			row.Cells[j] = Cell{Name: c.Name, Value: m.cellValue(cells[j])}
		}
		out[i] = row
	}
	return out, nil
}

func (m *Module) cellValue(cell any) any {
	switch v := cell.(type) {
	case *uint16:
		return *v
	case *uint32:
		return *v
	case *tables.StringIndex:
		return m.str(*v)
	case *tables.GuidIndex:
		id, err := m.guids.Get(*v)
		if err != nil {
			return fmt.Sprintf("<bad guid %d>", uint32(*v))
		}
		return id.String()
	case *tables.BlobIndex:
		b, err := m.blobs.Get(*v)
		if err != nil {
			return fmt.Sprintf("<bad blob 0x%X>", uint32(*v))
		}
		return hex.EncodeToString(b)
	case *tables.Token:
		return v.String()
	}
	panic(errors.AssertionFailedf("unexpected cell type %T", cell))
}

// Filter returns the 0-based indexes of the rows of a sorted table owned
// by tok.
func (m *Module) Filter(idx tables.Index, tok tables.Token) ([]int, error) {
	t, ok := m.set.Table(idx).(tables.Filterable)
	if !ok {
		return nil, errors.Newf("table %s cannot be filtered", idx)
	}
	var out []int
	for i := range t.Filter(tok) {
		out = append(out, i)
	}
	return out, nil
}

// RewriteTables encodes the tables again with the layout they were read
// with. For a well-formed image the result equals TableStream.
func (m *Module) RewriteTables() ([]byte, error) {
	if m.set.HasIndirection() {
		return nil, errors.New("images with indirection tables cannot be rewritten")
	}
	return m.set.WriteStream()
}

// ownedRows is implemented by every sorted table.
type ownedRows[R any] interface {
	Filter(tables.Token) iter.Seq[int]
	Row(int) *R
}

func owned[R any](t ownedRows[R], owner tables.Token) []R {
	var out []R
	for i := range t.Filter(owner) {
		out = append(out, *t.Row(i))
	}
	return out
}

func single[R any](t ownedRows[R], owner tables.Token) (R, bool) {
	for i := range t.Filter(owner) {
		return *t.Row(i), true
	}
	var zero R
	return zero, false
}

// CustomAttributes returns the attributes applied to parent.
func (m *Module) CustomAttributes(parent tables.Token) []tables.CustomAttributeRow {
	return owned[tables.CustomAttributeRow](&m.set.CustomAttribute, parent)
}

// Interfaces returns the interfaces implemented by a TypeDef.
func (m *Module) Interfaces(class tables.Token) []tables.Token {
	var out []tables.Token
	for _, r := range owned[tables.InterfaceImplRow](&m.set.InterfaceImpl, class) {
		out = append(out, r.Interface)
	}
	return out
}

// EnclosingClass returns the type a nested type is declared in.
func (m *Module) EnclosingClass(nested tables.Token) (tables.Token, bool) {
	r, ok := single[tables.NestedClassRow](&m.set.NestedClass, nested)
	return r.EnclosingClass, ok
}

// NestedClasses returns the types declared inside enclosing.
func (m *Module) NestedClasses(enclosing tables.Token) []tables.Token {
	var out []tables.Token
	for _, r := range m.set.NestedClass.Rows() {
		if r.EnclosingClass == enclosing {
			out = append(out, r.NestedClass)
		}
	}
	return out
}

// GenericParams returns the generic parameters of a type or method in
// declaration order.
func (m *Module) GenericParams(owner tables.Token) []tables.GenericParamRow {
	return owned[tables.GenericParamRow](&m.set.GenericParam, owner)
}

// GenericParamConstraints returns the constraint types of a generic
// parameter.
func (m *Module) GenericParamConstraints(param tables.Token) []tables.Token {
	var out []tables.Token
	for _, r := range owned[tables.GenericParamConstraintRow](&m.set.GenericParamConstraint, param) {
		out = append(out, r.Constraint)
	}
	return out
}

// Constant returns the default value of a field, parameter or property.
func (m *Module) Constant(parent tables.Token) (tables.ConstantRow, bool) {
	return single[tables.ConstantRow](&m.set.Constant, parent)
}

// ImplMap returns the P/Invoke information of a method.
func (m *Module) ImplMap(member tables.Token) (tables.ImplMapRow, bool) {
	return single[tables.ImplMapRow](&m.set.ImplMap, member)
}

// ClassLayout returns the explicit layout of a type.
func (m *Module) ClassLayout(parent tables.Token) (tables.ClassLayoutRow, bool) {
	return single[tables.ClassLayoutRow](&m.set.ClassLayout, parent)
}

// FieldRVA returns the RVA of a field's initial data.
func (m *Module) FieldRVA(field tables.Token) (uint32, bool) {
	r, ok := single[tables.FieldRVARow](&m.set.FieldRVA, field)
	return r.RVA, ok
}

// FieldMarshal returns the native type blob of a field or parameter.
func (m *Module) FieldMarshal(parent tables.Token) ([]byte, error) {
	r, ok := single[tables.FieldMarshalRow](&m.set.FieldMarshal, parent)
	if !ok {
		return nil, nil
	}
	return m.blobs.Get(r.NativeType)
}

// MethodSemantics returns the accessors of an event or property.
func (m *Module) MethodSemantics(association tables.Token) []tables.MethodSemanticsRow {
	return owned[tables.MethodSemanticsRow](&m.set.MethodSemantics, association)
}

// MethodImpls returns the explicit overrides declared by a type.
func (m *Module) MethodImpls(class tables.Token) []tables.MethodImplRow {
	return owned[tables.MethodImplRow](&m.set.MethodImpl, class)
}

// DeclSecurity returns the security declarations attached to parent.
func (m *Module) DeclSecurity(parent tables.Token) []tables.DeclSecurityRow {
	return owned[tables.DeclSecurityRow](&m.set.DeclSecurity, parent)
}

// TypeName returns the full name of a TypeDef or TypeRef, with nested
// types separated from their enclosing type by '/'.
func (m *Module) TypeName(tok tables.Token) (string, error) {
	return m.typeName(tok, 0)
}

func (m *Module) typeName(tok tables.Token, depth int) (string, error) {
	if depth > maxNesting {
		return "", tables.BadImage(errors.Newf("nesting deeper than %d at %s", maxNesting, tok), "resolving type name")
	}
	var outer tables.Token
	var name string
	switch tok.Table() {
	case tables.TypeDef:
		r := m.set.TypeDef.Lookup(tok)
		if r == nil {
			return "", badToken(tok)
		}
		name = qualify(m.str(r.TypeNamespace), m.str(r.TypeName))
		outer, _ = m.EnclosingClass(tok)
	case tables.TypeRef:
		r := m.set.TypeRef.Lookup(tok)
		if r == nil {
			return "", badToken(tok)
		}
		name = qualify(m.str(r.TypeNamespace), m.str(r.TypeName))
		if r.ResolutionScope.Table() == tables.TypeRef {
			outer = r.ResolutionScope
		}
	case tables.TypeSpec:
		if m.set.TypeSpec.Lookup(tok) == nil {
			return "", badToken(tok)
		}
		return fmt.Sprintf("TypeSpec(%d)", tok.Row()), nil
	default:
		return "", errors.Newf("token %s is not a type", tok)
	}
	if outer.IsNil() {
		return name, nil
	}
	o, err := m.typeName(outer, depth+1)
	if err != nil {
		return "", err
	}
	return o + "/" + name, nil
}

func qualify(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + "." + name
}

func badToken(tok tables.Token) error {
	return tables.BadImage(errors.Newf("token %s out of range", tok), "resolving token")
}

// Types returns every TypeDef with its name and member counts resolved.
func (m *Module) Types() []TypeInfo {
	defs := m.set.TypeDef.Rows()
	out := make([]TypeInfo, 0, len(defs))
	for i := range defs {
		r := &defs[i]
		tok := tables.MakeToken(tables.TypeDef, uint32(i+1))
		ti := TypeInfo{
			Token:     tok.String(),
			Namespace: m.str(r.TypeNamespace),
			Name:      m.str(r.TypeName),
			Flags:     r.Flags,
		}
		ti.FullName, _ = m.TypeName(tok)
		if !r.Extends.IsNil() {
			ti.Extends = m.nameOrToken(r.Extends)
		}

		fieldEnd := listEnd(&m.set.FieldPtr, &m.set.Field)
		methodEnd := listEnd(&m.set.MethodPtr, &m.set.MethodDef)
		if i+1 < len(defs) {
			fieldEnd = defs[i+1].FieldList.Row()
			methodEnd = defs[i+1].MethodList.Row()
		}
		ti.Fields = span(r.FieldList.Row(), fieldEnd)
		ti.Methods = span(r.MethodList.Row(), methodEnd)

		if outer, ok := m.EnclosingClass(tok); ok {
			ti.Enclosing = m.nameOrToken(outer)
		}
		for _, iface := range m.Interfaces(tok) {
			ti.Interfaces = append(ti.Interfaces, m.nameOrToken(iface))
		}
		for _, gp := range m.GenericParams(tok) {
			ti.GenericParams = append(ti.GenericParams, m.str(gp.Name))
		}
		out = append(out, ti)
	}
	return out
}

// listEnd is one past the last row a FieldList or MethodList column can
// name. In a "#-" image with a non-empty Ptr table the lists index the Ptr
// table instead of the member table.
func listEnd(ptr, members tables.AnyTable) uint32 {
	if n := ptr.RowCount(); n > 0 {
		return uint32(n) + 1
	}
	return uint32(members.RowCount()) + 1
}

func (m *Module) nameOrToken(tok tables.Token) string {
	if name, err := m.TypeName(tok); err == nil {
		return name
	}
	return tok.String()
}

func span(start, end uint32) int {
	if end < start {
		return 0
	}
	return int(end - start)
}
