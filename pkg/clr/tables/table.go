package tables

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// row is implemented by the pointer type of every row struct.
type row interface {
	cells() []any
}

type rowPtr[R any] interface {
	*R
	row
}

// Table is the row store of one metadata table. Rows are kept in a
// growable arena; the token of a row stays valid until the table is
// sorted.
type Table[R any, P rowPtr[R]] struct {
	info         *TableInfo
	rows         []R
	countSet     bool
	sorted       bool
	frozen       bool
	materializer func([]R) []R
}

func (t *Table[R, P]) init(idx Index) {
	t.info = Info(idx)
}

// Index returns the table index.
func (t *Table[R, P]) Index() Index { return t.info.Index }

// Name returns the ECMA table name.
func (t *Table[R, P]) Name() string { return t.info.Name }

// Info returns the table declaration.
func (t *Table[R, P]) Info() *TableInfo { return t.info }

// RowCount returns the number of rows, virtual rows included.
func (t *Table[R, P]) RowCount() int { return len(t.rows) }

// IsBig reports whether references to this table need 4 bytes.
func (t *Table[R, P]) IsBig() bool { return len(t.rows) > bigThreshold }

// IsSorted reports whether the rows are known to be ordered by their
// owner column. Filter only binary searches sorted tables.
func (t *Table[R, P]) IsSorted() bool { return t.sorted }

func (t *Table[R, P]) setSorted(v bool) { t.sorted = v }

func (t *Table[R, P]) mustBeMutable() {
	if t.frozen {
		panic(errors.AssertionFailedf("table %s: modified after freeze", t.info.Name))
	}
}

// AddRecord appends a row and returns its token.
func (t *Table[R, P]) AddRecord(r R) Token {
	t.mustBeMutable()
	if len(t.rows) == cap(t.rows) {
		grown := make([]R, len(t.rows), max(16, 2*cap(t.rows)))
		copy(grown, t.rows)
		t.rows = grown
	}
	t.rows = append(t.rows, r)
	t.sorted = false
	return MakeToken(t.info.Index, uint32(len(t.rows)))
}

// AddVirtualRecord reserves a zero row to be filled in later through Row.
func (t *Table[R, P]) AddVirtualRecord() Token {
	var zero R
	return t.AddRecord(zero)
}

// SetRowCount allocates n zero rows. It may be called once, on an empty
// table.
func (t *Table[R, P]) SetRowCount(n int) {
	if t.countSet || len(t.rows) != 0 {
		panic(errors.AssertionFailedf("table %s: row count already set", t.info.Name))
	}
	t.countSet = true
	t.rows = make([]R, n)
}

// Row returns a pointer to the i-th row (0-based). The pointer is
// invalidated by AddRecord and Sort.
func (t *Table[R, P]) Row(i int) *R { return &t.rows[i] }

// Rows returns the row slice. Callers must not append to it.
func (t *Table[R, P]) Rows() []R { return t.rows }

// Lookup returns the row a token references, or nil.
func (t *Table[R, P]) Lookup(tok Token) *R {
	if tok.IsPseudo() || tok.Table() != t.info.Index || tok.IsNil() || int(tok.Row()) > len(t.rows) {
		return nil
	}
	return &t.rows[tok.Row()-1]
}

// Cells returns pointers to the columns of row i in schema order.
func (t *Table[R, P]) Cells(i int) []any {
	return P(&t.rows[i]).cells()
}

// SetMaterializer installs a hook that produces the rows handed to Write.
// It must return the same number of rows it receives.
func (t *Table[R, P]) SetMaterializer(fn func([]R) []R) {
	t.materializer = fn
}

// GetLength returns the number of bytes the table occupies under l.
func (t *Table[R, P]) GetLength(l *Layout) int {
	return len(t.rows) * l.RowSize(t.info.Index)
}

// Read allocates n rows and decodes them from r.
func (t *Table[R, P]) Read(r *MetadataReader, n int) error {
	t.SetRowCount(n)
	cols := t.info.Columns
	for i := range t.rows {
		cells := P(&t.rows[i]).cells()
		for j, c := range cols {
			if err := r.readCell(c, cells[j]); err != nil {
				return errors.Wrapf(err, "reading %s row %d column %s", t.info.Name, i+1, c.Name)
			}
		}
	}
	return nil
}

// Write encodes every row with the writer's layout. The table must have
// been frozen.
func (t *Table[R, P]) Write(w *MetadataWriter) error {
	if !t.frozen {
		panic(errors.AssertionFailedf("table %s: write before freeze", t.info.Name))
	}
	if t.info.ReadOnly && len(t.rows) > 0 {
		panic(errors.AssertionFailedf("table %s: indirection tables are never written", t.info.Name))
	}
	rows := t.rows
	if t.materializer != nil {
		rows = t.materializer(slices.Clone(t.rows))
		if len(rows) != len(t.rows) {
			panic(errors.AssertionFailedf("table %s: materializer returned %d rows, want %d",
				t.info.Name, len(rows), len(t.rows)))
		}
	}
	cols := t.info.Columns
	for i := range rows {
		cells := P(&rows[i]).cells()
		for j, c := range cols {
			if err := w.writeCell(c, cells[j]); err != nil {
				return errors.Wrapf(err, "writing %s row %d", t.info.Name, i+1)
			}
		}
	}
	return nil
}

func (t *Table[R, P]) freeze() { t.frozen = true }

// resolveTokens replaces every pseudo-token in the table's token columns.
func (t *Table[R, P]) resolveTokens(resolve func(Token) (Token, bool)) error {
	for i := range t.rows {
		for _, c := range P(&t.rows[i]).cells() {
			p, ok := c.(*Token)
			if !ok || !p.IsPseudo() {
				continue
			}
			if resolve == nil {
				return errors.AssertionFailedf("%s row %d: unresolved pseudo-token %s", t.info.Name, i+1, *p)
			}
			resolved, ok := resolve(*p)
			if !ok || resolved.IsPseudo() {
				return errors.AssertionFailedf("%s row %d: unresolved pseudo-token %s", t.info.Name, i+1, *p)
			}
			*p = resolved
		}
	}
	return nil
}

// findOrAdd returns the token of the first row eq reports equal to r,
// appending r when there is none.
func (t *Table[R, P]) findOrAdd(r R, eq func(a, b *R) bool) Token {
	for i := range t.rows {
		if eq(&t.rows[i], &r) {
			return MakeToken(t.info.Index, uint32(i+1))
		}
	}
	return t.AddRecord(r)
}

func equal[R comparable](a, b *R) bool { return *a == *b }

// Tables with FindOrAddRecord.

// MemberRefTable is the MemberRef table with row dedup.
type MemberRefTable struct{ Table[MemberRefRow, *MemberRefRow] }

// FindOrAddRecord returns the token of an identical row, adding r if
// there is none.
func (t *MemberRefTable) FindOrAddRecord(r MemberRefRow) Token {
	return t.findOrAdd(r, equal[MemberRefRow])
}

// StandAloneSigTable is the StandAloneSig table with row dedup.
type StandAloneSigTable struct {
	Table[StandAloneSigRow, *StandAloneSigRow]
}

// FindOrAddRecord returns the token of an identical row, adding r if
// there is none.
func (t *StandAloneSigTable) FindOrAddRecord(r StandAloneSigRow) Token {
	return t.findOrAdd(r, equal[StandAloneSigRow])
}

// ModuleRefTable is the ModuleRef table with row dedup.
type ModuleRefTable struct{ Table[ModuleRefRow, *ModuleRefRow] }

// FindOrAddRecord returns the token of an identical row, adding r if
// there is none.
func (t *ModuleRefTable) FindOrAddRecord(r ModuleRefRow) Token {
	return t.findOrAdd(r, equal[ModuleRefRow])
}

// TypeSpecTable is the TypeSpec table with row dedup.
type TypeSpecTable struct{ Table[TypeSpecRow, *TypeSpecRow] }

// FindOrAddRecord returns the token of an identical row, adding r if
// there is none.
func (t *TypeSpecTable) FindOrAddRecord(r TypeSpecRow) Token {
	return t.findOrAdd(r, equal[TypeSpecRow])
}

// MethodSpecTable is the MethodSpec table with row dedup.
type MethodSpecTable struct{ Table[MethodSpecRow, *MethodSpecRow] }

// FindOrAddRecord returns the token of an identical row, adding r if
// there is none.
func (t *MethodSpecTable) FindOrAddRecord(r MethodSpecRow) Token {
	return t.findOrAdd(r, equal[MethodSpecRow])
}

// AssemblyRefTable is the AssemblyRef table with row dedup.
type AssemblyRefTable struct{ Table[AssemblyRefRow, *AssemblyRefRow] }

// FindOrAddRecord dedups on everything but HashValue.
func (t *AssemblyRefTable) FindOrAddRecord(r AssemblyRefRow) Token {
	return t.findOrAdd(r, func(a, b *AssemblyRefRow) bool {
		x, y := *a, *b
		x.HashValue, y.HashValue = 0, 0
		return x == y
	})
}

// ExportedTypeTable is the ExportedType table with row dedup.
type ExportedTypeTable struct {
	Table[ExportedTypeRow, *ExportedTypeRow]
}

// FindOrAddRecord dedups on implementation, name and namespace.
func (t *ExportedTypeTable) FindOrAddRecord(r ExportedTypeRow) Token {
	return t.findOrAdd(r, func(a, b *ExportedTypeRow) bool {
		return a.Implementation == b.Implementation &&
			a.TypeName == b.TypeName &&
			a.TypeNamespace == b.TypeNamespace
	})
}
