package transform

import (
	"context"

	"github.com/ardoooo/anonymizepg/internal/dbutil"
	"github.com/ardoooo/anonymizepg/internal/schema"
)

// shuffleTransform partitions columns into independent groups; each
// group is emitted in random order within the batch via its own
// ORDER BY RANDOM() function, and the outer insert reassembles the
// groups positionally.
type shuffleTransform struct {
	base
	groups    [][]string
	typeNames []string
	funcNames []string
}

func newShuffle(b base, groups [][]string) *shuffleTransform {
	typeNames := make([]string, len(groups))
	funcNames := make([]string, len(groups))
	for i, g := range groups {
		typeNames[i] = dbutil.DeriveName("_type_", g)
		funcNames[i] = dbutil.DeriveName("_select_random_", g)
	}
	return &shuffleTransform{base: b, groups: groups, typeNames: typeNames, funcNames: funcNames}
}

func (s *shuffleTransform) OutputSchema() []schema.Column {
	var out []schema.Column
	for _, g := range s.groups {
		for _, col := range g {
			out = append(out, schema.Column{Name: col, Type: s.columnTypes[col]})
		}
	}
	return out
}

func (s *shuffleTransform) Prepare(ctx context.Context, ex Executor) error {
	for i, g := range s.groups {
		fields, err := fieldsForColumns(s.base, g)
		if err != nil {
			return err
		}
		if err := createType(ctx, ex, s.typeNames[i], fields); err != nil {
			return err
		}
		if err := rowFunc(ctx, ex, s.funcNames[i], s.typeNames[i], s.srcTable, s.scratchTable, selectExprs(g), true); err != nil {
			return err
		}
	}
	return nil
}

func (s *shuffleTransform) ProducerFuncs() []string { return s.funcNames }

func (s *shuffleTransform) Cleanup(ctx context.Context, ex Executor) error {
	return dropTypesAndFuncs(ctx, ex, s.typeNames, s.funcNames)
}

func (s *shuffleTransform) SkipLastPartialBatch() bool { return false }
