package transform

import (
	"context"
	"fmt"
	"sort"

	"github.com/ardoooo/anonymizepg/internal/dbutil"
	"github.com/ardoooo/anonymizepg/internal/schema"
)

// aggrTransform applies a window function to each configured column,
// emitting one output row per input row: op(column) OVER() spans the
// current batch because the generated function's body restricts its join
// to the scratch table.
type aggrTransform struct {
	base
	columns  []string
	ops      map[string]string
	typeName string
	funcName string
}

// orderedKeys returns the map's keys sorted for determinism. Go map
// iteration order is randomized and JSON object key order is not
// preserved by mapstructure, so the column order used to build DDL is
// fixed once here rather than re-derived on each use.
func orderedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newAggr(b base, ops map[string]string) *aggrTransform {
	columns := orderedKeys(ops)
	return &aggrTransform{
		base:     b,
		columns:  columns,
		ops:      ops,
		typeName: dbutil.DeriveName("_type_", columns),
		funcName: dbutil.DeriveName("_aggregate_", columns),
	}
}

func (a *aggrTransform) OutputSchema() []schema.Column {
	out := make([]schema.Column, len(a.columns))
	for i, col := range a.columns {
		out[i] = schema.Column{Name: col, Type: a.columnTypes[col]}
	}
	return out
}

func (a *aggrTransform) exprs() ([]string, error) {
	exprs := make([]string, len(a.columns))
	for i, col := range a.columns {
		op := a.ops[col]
		if op == "echo" {
			exprs[i] = dbutil.Quote(col)
			continue
		}
		t, err := a.typeOf(col)
		if err != nil {
			return nil, err
		}
		exprs[i] = fmt.Sprintf("(%s(%s) OVER())::%s", op, dbutil.Quote(col), t)
	}
	return exprs, nil
}

func (a *aggrTransform) Prepare(ctx context.Context, ex Executor) error {
	fields, err := fieldsForColumns(a.base, a.columns)
	if err != nil {
		return err
	}
	if err := createType(ctx, ex, a.typeName, fields); err != nil {
		return err
	}
	exprs, err := a.exprs()
	if err != nil {
		return err
	}
	return rowFunc(ctx, ex, a.funcName, a.typeName, a.srcTable, a.scratchTable, exprs, false)
}

func (a *aggrTransform) ProducerFuncs() []string { return []string{a.funcName} }

func (a *aggrTransform) Cleanup(ctx context.Context, ex Executor) error {
	return dropTypesAndFuncs(ctx, ex, []string{a.typeName}, []string{a.funcName})
}

func (a *aggrTransform) SkipLastPartialBatch() bool { return false }
