// Package tables implements the ECMA-335 metadata table engine: the table
// schema, coded indexes, index-width layout, sorted lookups and the "#~"
// stream codec.
package tables

import "fmt"

// Index identifies a metadata table (ECMA-335 §II.22).
type Index uint8

// Table indexes
const (
	Module                 Index = 0x00
	TypeRef                Index = 0x01
	TypeDef                Index = 0x02
	FieldPtr               Index = 0x03
	Field                  Index = 0x04
	MethodPtr              Index = 0x05
	MethodDef              Index = 0x06
	ParamPtr               Index = 0x07
	Param                  Index = 0x08
	InterfaceImpl          Index = 0x09
	MemberRef              Index = 0x0A
	Constant               Index = 0x0B
	CustomAttribute        Index = 0x0C
	FieldMarshal           Index = 0x0D
	DeclSecurity           Index = 0x0E
	ClassLayout            Index = 0x0F
	FieldLayout            Index = 0x10
	StandAloneSig          Index = 0x11
	EventMap               Index = 0x12
	EventPtr               Index = 0x13
	Event                  Index = 0x14
	PropertyMap            Index = 0x15
	PropertyPtr            Index = 0x16
	Property               Index = 0x17
	MethodSemantics        Index = 0x18
	MethodImpl             Index = 0x19
	ModuleRef              Index = 0x1A
	TypeSpec               Index = 0x1B
	ImplMap                Index = 0x1C
	FieldRVA               Index = 0x1D
	EncLog                 Index = 0x1E
	EncMap                 Index = 0x1F
	Assembly               Index = 0x20
	AssemblyProcessor      Index = 0x21
	AssemblyOS             Index = 0x22
	AssemblyRef            Index = 0x23
	AssemblyRefProcessor   Index = 0x24
	AssemblyRefOS          Index = 0x25
	File                   Index = 0x26
	ExportedType           Index = 0x27
	ManifestResource       Index = 0x28
	NestedClass            Index = 0x29
	GenericParam           Index = 0x2A
	MethodSpec             Index = 0x2B
	GenericParamConstraint Index = 0x2C
)

// MaxTables is the number of bits in the valid/sorted masks of the "#~" header.
const MaxTables = 64

// noTable marks an unused tag slot in a coded index scheme.
const noTable Index = 0xFF

// String returns the ECMA name of the table.
func (i Index) String() string {
	if info := Info(i); info != nil {
		return info.Name
	}
	return fmt.Sprintf("Table(0x%02X)", uint8(i))
}

// Token is a metadata token: the table index in the top byte and the
// 1-based row number in the low 24 bits. Row 0 is the null reference.
type Token uint32

const (
	rowMask         = 0x00FFFFFF
	pseudoTokenFlag = 0x80000000
)

// MakeToken combines a table index and a 1-based row number.
func MakeToken(table Index, row uint32) Token {
	return Token(uint32(table)<<24 | row&rowMask)
}

// PseudoToken returns the n-th placeholder token. Pseudo-tokens are issued
// while building and replaced by real tokens during fixup.
func PseudoToken(n uint32) Token {
	return Token(pseudoTokenFlag | n&0x7FFFFFFF)
}

// Table returns the table index of the token.
func (t Token) Table() Index {
	return Index(uint32(t) >> 24)
}

// Row returns the 1-based row number of the token.
func (t Token) Row() uint32 {
	return uint32(t) & rowMask
}

// IsNil reports whether the token references no row.
func (t Token) IsNil() bool {
	return t.Row() == 0
}

// IsPseudo reports whether the token is a build-time placeholder.
func (t Token) IsPseudo() bool {
	return uint32(t)&pseudoTokenFlag != 0
}

func (t Token) String() string {
	return fmt.Sprintf("0x%08X", uint32(t))
}

// Heap index types. Each is a byte offset into its heap, except GuidIndex
// which is a 1-based entry number.
type (
	StringIndex uint32
	GuidIndex   uint32
	BlobIndex   uint32
)
