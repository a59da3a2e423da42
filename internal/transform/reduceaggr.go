package transform

import (
	"context"
	"fmt"

	"github.com/ardoooo/anonymizepg/internal/dbutil"
	"github.com/ardoooo/anonymizepg/internal/schema"
)

// reduceAggrTransform reduces a batch to a single output row: unlike
// aggrTransform it drops the OVER() clause, so each aggregation op
// collapses the batch instead of annotating every row. Echo columns are
// passed through literally as bare, ungrouped columns; PostgreSQL rejects
// such a column alongside a true aggregate, so a configuration that mixes
// echo and aggregate ops fails when the generated function runs.
type reduceAggrTransform struct {
	base
	columns  []string
	ops      map[string]string
	typeName string
	funcName string
}

func newReduceAggr(b base, ops map[string]string) *reduceAggrTransform {
	columns := orderedKeys(ops)
	return &reduceAggrTransform{
		base:     b,
		columns:  columns,
		ops:      ops,
		typeName: dbutil.DeriveName("_type_", columns),
		funcName: dbutil.DeriveName("_reduce_aggregate_", columns),
	}
}

func (r *reduceAggrTransform) OutputSchema() []schema.Column {
	out := make([]schema.Column, len(r.columns))
	for i, col := range r.columns {
		out[i] = schema.Column{Name: col, Type: r.columnTypes[col]}
	}
	return out
}

func (r *reduceAggrTransform) exprs() ([]string, error) {
	exprs := make([]string, len(r.columns))
	for i, col := range r.columns {
		op := r.ops[col]
		if op == "echo" {
			exprs[i] = dbutil.Quote(col)
			continue
		}
		t, err := r.typeOf(col)
		if err != nil {
			return nil, err
		}
		exprs[i] = fmt.Sprintf("(%s(%s))::%s", op, dbutil.Quote(col), t)
	}
	return exprs, nil
}

func (r *reduceAggrTransform) Prepare(ctx context.Context, ex Executor) error {
	fields, err := fieldsForColumns(r.base, r.columns)
	if err != nil {
		return err
	}
	if err := createType(ctx, ex, r.typeName, fields); err != nil {
		return err
	}
	exprs, err := r.exprs()
	if err != nil {
		return err
	}
	return rowFunc(ctx, ex, r.funcName, r.typeName, r.srcTable, r.scratchTable, exprs, false)
}

func (r *reduceAggrTransform) ProducerFuncs() []string { return []string{r.funcName} }

func (r *reduceAggrTransform) Cleanup(ctx context.Context, ex Executor) error {
	return dropTypesAndFuncs(ctx, ex, []string{r.typeName}, []string{r.funcName})
}

func (r *reduceAggrTransform) SkipLastPartialBatch() bool { return false }
