package tables

import (
	"cmp"
	"iter"
	"slices"
	"sort"

	"github.com/cockroachdb/errors"
)

// sortedRow is implemented by rows of tables that can be filtered by owner.
// SortKey is the value rows are physically ordered by, usually the coded
// form of the owner. FilterKey is the raw owner token.
type sortedRow interface {
	row
	SortKey() (uint32, error)
	FilterKey() Token
}

type sortedRowPtr[R any] interface {
	*R
	sortedRow
}

// SortedTable is a Table whose rows can be ordered by owner and looked up
// by owner token.
type SortedTable[R any, P sortedRowPtr[R]] struct {
	Table[R, P]
}

// Sort orders the rows by SortKey. Rows with equal keys keep their
// relative order.
func (t *SortedTable[R, P]) Sort() error {
	t.mustBeMutable()
	keys := make([]uint64, len(t.rows))
	for i := range t.rows {
		k, err := P(&t.rows[i]).SortKey()
		if err != nil {
			return errors.Wrapf(err, "sorting %s row %d", t.info.Name, i+1)
		}
		keys[i] = uint64(k)<<32 | uint64(i)
	}
	slices.Sort(keys)
	order := make([]int, len(keys))
	for i, k := range keys {
		order[i] = int(uint32(k))
	}
	t.permute(order)
	return nil
}

// permute rearranges the rows so that new position i holds old row order[i].
func (t *SortedTable[R, P]) permute(order []int) {
	sorted := make([]R, len(t.rows), cap(t.rows))
	for i, old := range order {
		sorted[i] = t.rows[old]
	}
	t.rows = sorted
	t.sorted = true
}

// Filter yields the 0-based indexes of the rows whose owner is tok. A
// sorted table is binary searched; otherwise every row is scanned.
func (t *SortedTable[R, P]) Filter(tok Token) iter.Seq[int] {
	return func(yield func(int) bool) {
		if !t.sorted {
			for i := range t.rows {
				if P(&t.rows[i]).FilterKey() == tok && !yield(i) {
					return
				}
			}
			return
		}
		want := uint32(tok) & rowMask
		key := func(i int) uint32 { return uint32(P(&t.rows[i]).FilterKey()) & rowMask }
		i := sort.Search(len(t.rows), func(i int) bool { return key(i) >= want })
		for ; i < len(t.rows) && key(i) == want; i++ {
			if P(&t.rows[i]).FilterKey() == tok && !yield(i) {
				return
			}
		}
	}
}

// Sorted tables.

// InterfaceImplTable is the sorted InterfaceImpl table.
type InterfaceImplTable struct {
	SortedTable[InterfaceImplRow, *InterfaceImplRow]
}

// ConstantTable is the sorted Constant table.
type ConstantTable struct{ SortedTable[ConstantRow, *ConstantRow] }

// CustomAttributeTable is the sorted CustomAttribute table.
type CustomAttributeTable struct {
	SortedTable[CustomAttributeRow, *CustomAttributeRow]
}

// FieldMarshalTable is the sorted FieldMarshal table.
type FieldMarshalTable struct {
	SortedTable[FieldMarshalRow, *FieldMarshalRow]
}

// DeclSecurityTable is the sorted DeclSecurity table.
type DeclSecurityTable struct {
	SortedTable[DeclSecurityRow, *DeclSecurityRow]
}

// ClassLayoutTable is the sorted ClassLayout table.
type ClassLayoutTable struct {
	SortedTable[ClassLayoutRow, *ClassLayoutRow]
}

// FieldLayoutTable is the sorted FieldLayout table.
type FieldLayoutTable struct {
	SortedTable[FieldLayoutRow, *FieldLayoutRow]
}

// EventMapTable is the sorted EventMap table.
type EventMapTable struct{ SortedTable[EventMapRow, *EventMapRow] }

// PropertyMapTable is the sorted PropertyMap table.
type PropertyMapTable struct {
	SortedTable[PropertyMapRow, *PropertyMapRow]
}

// MethodSemanticsTable is the sorted MethodSemantics table.
type MethodSemanticsTable struct {
	SortedTable[MethodSemanticsRow, *MethodSemanticsRow]
}

// MethodImplTable is the sorted MethodImpl table.
type MethodImplTable struct{ SortedTable[MethodImplRow, *MethodImplRow] }

// ImplMapTable is the sorted ImplMap table.
type ImplMapTable struct{ SortedTable[ImplMapRow, *ImplMapRow] }

// FieldRVATable is the sorted FieldRVA table.
type FieldRVATable struct{ SortedTable[FieldRVARow, *FieldRVARow] }

// NestedClassTable is the sorted NestedClass table.
type NestedClassTable struct {
	SortedTable[NestedClassRow, *NestedClassRow]
}

// GenericParamConstraintTable is the sorted GenericParamConstraint table.
type GenericParamConstraintTable struct {
	SortedTable[GenericParamConstraintRow, *GenericParamConstraintRow]
}

// GenericParamTable is sorted by owner and then by parameter number.
// Other tables reference generic parameters by position, so the table
// remembers where every row was before sorting.
type GenericParamTable struct {
	SortedTable[GenericParamRow, *GenericParamRow]
	fixup []int
}

// Sort orders the rows by (owner, number) and records the index fixup.
func (t *GenericParamTable) Sort() error {
	t.mustBeMutable()
	type entry struct {
		key    uint32
		number uint16
		index  int
	}
	entries := make([]entry, len(t.rows))
	for i := range t.rows {
		r := &t.rows[i]
		r.unsortedIndex = i
		k, err := r.SortKey()
		if err != nil {
			return errors.Wrapf(err, "sorting %s row %d", t.info.Name, i+1)
		}
		entries[i] = entry{key: k, number: r.Number, index: i}
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(a.key, b.key); c != 0 {
			return c
		}
		return cmp.Compare(a.number, b.number)
	})
	order := make([]int, len(entries))
	for i, e := range entries {
		order[i] = e.index
	}
	t.permute(order)

	t.fixup = make([]int, len(t.rows))
	for i := range t.rows {
		t.fixup[t.rows[i].unsortedIndex] = i
	}
	return nil
}

// IndexFixup maps the 0-based position a row had before Sort to its
// position after. Before any sort it is the identity.
func (t *GenericParamTable) IndexFixup() []int {
	if len(t.fixup) == len(t.rows) {
		return t.fixup
	}
	id := make([]int, len(t.rows))
	for i := range id {
		id[i] = i
	}
	return id
}
