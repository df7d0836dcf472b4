package tables

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireAssertionPanic runs fn and checks that it panics with an
// assertion failure.
func requireAssertionPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		assert.True(t, errors.IsAssertionFailure(err), "not an assertion failure: %v", err)
	}()
	fn()
}

// fixupAndFreeze runs Fixup on a set without pseudo-tokens and freezes it.
func fixupAndFreeze(t *testing.T, s *Set, heaps HeapSizes) *Layout {
	t.Helper()
	require.NoError(t, s.Fixup(FixupOptions{}))
	return s.Freeze(heaps)
}

// fillTable gives every row of t deterministic column values that are
// valid for its schema and small enough for 2-byte columns. References to
// GenericParam always name row 1 so that the Fixup remap stays in range.
func fillTable(t AnyTable, rows int) {
	t.SetRowCount(rows)
	for i := 0; i < rows; i++ {
		for j, cell := range t.Cells(i) {
			col := t.Info().Columns[j]
			v := uint32(i*7 + j + 1)
			switch p := cell.(type) {
			case *uint16:
				*p = uint16(v)
			case *uint32:
				*p = v * 0x01010101
			case *StringIndex:
				*p = StringIndex(v)
			case *GuidIndex:
				*p = GuidIndex(v % 3)
			case *BlobIndex:
				*p = BlobIndex(v * 2)
			case *Token:
				if col.Kind == KindTable {
					*p = MakeToken(col.Table, v)
					if col.Table == GenericParam {
						*p = MakeToken(GenericParam, 1)
					}
					continue
				}
				candidates := col.Scheme.Tables()
				for k := 0; k < len(candidates); k++ {
					target := candidates[(i+j+k)%len(candidates)]
					if target == GenericParam {
						continue
					}
					tok := MakeToken(target, v)
					if _, err := col.Scheme.Encode(tok); err == nil {
						*p = tok
						break
					}
				}
			}
		}
	}
}

// writableTables returns the indexes of tables the writer can emit.
func writableTables() []Index {
	var out []Index
	for _, idx := range Indexes() {
		if !Info(idx).ReadOnly {
			out = append(out, idx)
		}
	}
	return out
}
