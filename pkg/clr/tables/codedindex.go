package tables

import (
	"github.com/cockroachdb/errors"
)

// Scheme is a coded index: a small tag selecting one of several tables,
// packed together with a row number into a single column value.
// Tag assignments follow ECMA-335 §II.24.2.6 and must not be reordered.
type Scheme struct {
	Name    string
	TagBits uint

	tags     []Index
	reserved map[Index]bool
}

func newScheme(name string, bits uint, tags ...Index) *Scheme {
	return &Scheme{Name: name, TagBits: bits, tags: tags}
}

// reserve marks tables that own a tag slot but cannot be encoded.
func (s *Scheme) reserve(tables ...Index) *Scheme {
	s.reserved = make(map[Index]bool, len(tables))
	for _, t := range tables {
		s.reserved[t] = true
	}
	return s
}

// Coded index schemes
var (
	TypeDefOrRef = newScheme("TypeDefOrRef", 2, TypeDef, TypeRef, TypeSpec)
	HasConstant  = newScheme("HasConstant", 2, Field, Param, Property)

	// DeclSecurity (tag 8) and GenericParamConstraint (tag 20) decode, but
	// encoding them is unimplemented: both are sorted tables whose rows
	// would need the same remapping GenericParam gets.
	HasCustomAttribute = newScheme("HasCustomAttribute", 5,
		MethodDef, Field, TypeRef, TypeDef, Param, InterfaceImpl, MemberRef, Module,
		DeclSecurity, Property, Event, StandAloneSig, ModuleRef, TypeSpec, Assembly,
		AssemblyRef, File, ExportedType, ManifestResource, GenericParam,
		GenericParamConstraint, MethodSpec,
	).reserve(DeclSecurity, GenericParamConstraint)

	HasFieldMarshal     = newScheme("HasFieldMarshal", 1, Field, Param)
	HasDeclSecurity     = newScheme("HasDeclSecurity", 2, TypeDef, MethodDef, Assembly)
	MemberRefParent     = newScheme("MemberRefParent", 3, TypeDef, TypeRef, ModuleRef, MethodDef, TypeSpec)
	HasSemantics        = newScheme("HasSemantics", 1, Event, Property)
	MethodDefOrRef      = newScheme("MethodDefOrRef", 1, MethodDef, MemberRef)
	MemberForwarded     = newScheme("MemberForwarded", 1, Field, MethodDef)
	Implementation      = newScheme("Implementation", 2, File, AssemblyRef, ExportedType)
	CustomAttributeType = newScheme("CustomAttributeType", 3, noTable, noTable, MethodDef, MemberRef)
	ResolutionScope     = newScheme("ResolutionScope", 2, Module, ModuleRef, AssemblyRef, TypeRef)
	TypeOrMethodDef     = newScheme("TypeOrMethodDef", 1, TypeDef, MethodDef)
)

// Schemes lists every coded index scheme.
var Schemes = []*Scheme{
	TypeDefOrRef, HasConstant, HasCustomAttribute, HasFieldMarshal, HasDeclSecurity,
	MemberRefParent, HasSemantics, MethodDefOrRef, MemberForwarded, Implementation,
	CustomAttributeType, ResolutionScope, TypeOrMethodDef,
}

// Tables returns the tables the scheme can reference, in tag order.
// Unused tag slots are omitted.
func (s *Scheme) Tables() []Index {
	out := make([]Index, 0, len(s.tags))
	for _, t := range s.tags {
		if t != noTable {
			out = append(out, t)
		}
	}
	return out
}

// Tag returns the tag value of a table within the scheme.
func (s *Scheme) Tag(table Index) (uint32, bool) {
	for tag, t := range s.tags {
		if t == table && t != noTable {
			return uint32(tag), true
		}
	}
	return 0, false
}

// Encode packs a token into the scheme's coded form. A token with row 0
// encodes as 0 regardless of its table.
func (s *Scheme) Encode(tok Token) (uint32, error) {
	if tok.IsPseudo() {
		return 0, errors.AssertionFailedf("%s: cannot encode unresolved pseudo-token %s", s.Name, tok)
	}
	if tok.IsNil() {
		return 0, nil
	}
	tag, ok := s.Tag(tok.Table())
	if !ok {
		return 0, errors.AssertionFailedf("%s: table %s is not a member of the scheme", s.Name, tok.Table())
	}
	if s.reserved[tok.Table()] {
		return 0, errors.UnimplementedErrorf(errors.IssueLink{},
			"%s: %s as a target is not implemented", s.Name, tok.Table())
	}
	return tok.Row()<<s.TagBits | tag, nil
}

// MustEncode is like Encode but panics on error.
func (s *Scheme) MustEncode(tok Token) uint32 {
	v, err := s.Encode(tok)
	if err != nil {
		panic(err)
	}
	return v
}

// Decode unpacks a coded value into a token. An unknown tag is a format error.
func (s *Scheme) Decode(v uint32) (Token, error) {
	mask := uint32(1)<<s.TagBits - 1
	tag := v & mask
	if int(tag) >= len(s.tags) || s.tags[tag] == noTable {
		return 0, badImagef("%s: invalid tag %d in coded index 0x%X", s.Name, tag, v)
	}
	row := v >> s.TagBits
	if row > rowMask {
		return 0, badImagef("%s: row %d out of range", s.Name, row)
	}
	return MakeToken(s.tags[tag], row), nil
}

// threshold is the first row count that no longer fits a 2-byte coded index.
func (s *Scheme) threshold() uint32 {
	return 1 << (16 - s.TagBits)
}
