package tables

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// FixupOptions configures Set.Fixup.
type FixupOptions struct {
	// Resolve maps a pseudo-token to its final token. It reports false for
	// tokens it does not know.
	Resolve func(Token) (Token, bool)
	// Base RVAs added to FieldRVA entries. An entry with the high bit set
	// is relative to the CIL stream, otherwise to the initialized data.
	SDataRVA uint32
	CILRVA   uint32
	Logger   *zap.Logger
}

// fieldRVACIL marks a FieldRVA entry that is an offset into the CIL stream.
const fieldRVACIL = 0x80000000

// fixupPass is one node of the fixup graph.
type fixupPass struct {
	name  string
	table Index
	after []Index
	run   func() error
}

// Fixup replaces every pseudo-token with its final token and sorts the
// tables that must be sorted. Passes run in dependency order; a table
// that references another table's rows by position runs after that
// table has been sorted. Freeze requires a successful Fixup.
func (s *Set) Fixup(opts FixupOptions) error {
	if s.frozen {
		return errors.AssertionFailedf("tables: fixup of frozen set")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ordered, err := orderPasses(s.fixupPasses(&opts))
	if err != nil {
		return err
	}
	for _, p := range ordered {
		if err := p.run(); err != nil {
			return errors.Wrapf(err, "fixup pass %s", p.name)
		}
		t := s.Table(p.table)
		log.Debug("fixup pass",
			zap.String("pass", p.name),
			zap.Int("rows", t.RowCount()),
			zap.Bool("sorted", t.IsSorted()))
	}
	s.fixedUp = true
	return nil
}

func (s *Set) fixupPasses(opts *FixupOptions) []fixupPass {
	resolve := opts.Resolve
	resolveOnly := func(idx Index) fixupPass {
		return fixupPass{name: idx.String(), table: idx, run: func() error {
			return s.Table(idx).resolveTokens(resolve)
		}}
	}
	resolveAndSort := func(idx Index) fixupPass {
		return fixupPass{name: idx.String(), table: idx, run: func() error {
			t := s.Table(idx).(Filterable)
			if err := t.resolveTokens(resolve); err != nil {
				return err
			}
			return t.Sort()
		}}
	}

	passes := []fixupPass{
		resolveOnly(TypeRef),
		resolveOnly(MemberRef),
		resolveOnly(MethodSpec),
		resolveOnly(ExportedType),
		resolveOnly(ManifestResource),
		resolveAndSort(InterfaceImpl),
		resolveAndSort(Constant),
		resolveAndSort(FieldMarshal),
		resolveAndSort(DeclSecurity),
		resolveAndSort(ClassLayout),
		resolveAndSort(FieldLayout),
		resolveAndSort(MethodSemantics),
		resolveAndSort(MethodImpl),
		resolveAndSort(ImplMap),
		resolveAndSort(NestedClass),
		{name: "FieldRVA", table: FieldRVA, run: func() error {
			rows := s.FieldRVA.rows
			for i := range rows {
				if rows[i].RVA&fieldRVACIL != 0 {
					rows[i].RVA = rows[i].RVA&^fieldRVACIL + opts.CILRVA
				} else {
					rows[i].RVA += opts.SDataRVA
				}
			}
			if err := s.FieldRVA.resolveTokens(resolve); err != nil {
				return err
			}
			return s.FieldRVA.Sort()
		}},
		{name: "GenericParam", table: GenericParam, run: func() error {
			if err := s.GenericParam.resolveTokens(resolve); err != nil {
				return err
			}
			return s.GenericParam.Sort()
		}},
		{name: "CustomAttribute", table: CustomAttribute, after: []Index{GenericParam}, run: func() error {
			if err := s.CustomAttribute.resolveTokens(resolve); err != nil {
				return err
			}
			fix := s.GenericParam.IndexFixup()
			rows := s.CustomAttribute.rows
			for i := range rows {
				if err := remapGenericParam(&rows[i].Parent, fix); err != nil {
					return errors.Wrapf(err, "CustomAttribute row %d", i+1)
				}
			}
			return s.CustomAttribute.Sort()
		}},
		{name: "GenericParamConstraint", table: GenericParamConstraint, after: []Index{GenericParam}, run: func() error {
			if err := s.GenericParamConstraint.resolveTokens(resolve); err != nil {
				return err
			}
			fix := s.GenericParam.IndexFixup()
			rows := s.GenericParamConstraint.rows
			for i := range rows {
				if err := remapGenericParam(&rows[i].Owner, fix); err != nil {
					return errors.Wrapf(err, "GenericParamConstraint row %d", i+1)
				}
			}
			return s.GenericParamConstraint.Sort()
		}},
	}

	// Every other writable table only needs its pseudo-tokens resolved.
	var covered [MaxTables]bool
	for _, p := range passes {
		covered[p.table] = true
	}
	for _, t := range s.Tables() {
		if !covered[t.Index()] && !t.Info().ReadOnly {
			passes = append(passes, resolveOnly(t.Index()))
		}
	}
	return passes
}

// remapGenericParam rewrites a reference to a GenericParam row from its
// position before the sort to its position after.
func remapGenericParam(tok *Token, fix []int) error {
	if tok.Table() != GenericParam || tok.IsNil() || tok.IsPseudo() {
		return nil
	}
	old := int(tok.Row()) - 1
	if old >= len(fix) {
		return errors.AssertionFailedf("generic parameter %s out of range", *tok)
	}
	*tok = MakeToken(GenericParam, uint32(fix[old]+1))
	return nil
}

// orderPasses sorts passes topologically. Among passes that are ready,
// declaration order wins.
func orderPasses(passes []fixupPass) ([]fixupPass, error) {
	byTable := make(map[Index]int, len(passes))
	for i, p := range passes {
		if _, dup := byTable[p.table]; dup {
			return nil, errors.AssertionFailedf("fixup: duplicate pass for %s", p.table)
		}
		byTable[p.table] = i
	}
	pending := make([]int, len(passes))
	dependents := make([][]int, len(passes))
	for i, p := range passes {
		for _, dep := range p.after {
			j, ok := byTable[dep]
			if !ok {
				return nil, errors.AssertionFailedf("fixup: pass %s depends on unknown pass %s", p.name, dep)
			}
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	done := make([]bool, len(passes))
	out := make([]fixupPass, 0, len(passes))
	for len(out) < len(passes) {
		next := -1
		for i := range passes {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, errors.AssertionFailedf("fixup: dependency cycle among %d passes", len(passes)-len(out))
		}
		done[next] = true
		out = append(out, passes[next])
		for _, j := range dependents[next] {
			pending[j]--
		}
	}
	return out, nil
}
