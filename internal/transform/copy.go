package transform

import (
	"context"

	"github.com/ardoooo/anonymizepg/internal/dbutil"
	"github.com/ardoooo/anonymizepg/internal/schema"
)

// copyTransform carries a fixed list of source columns through to the
// transfer table unchanged.
type copyTransform struct {
	base
	columns  []string
	typeName string
	funcName string
}

func newCopy(b base, columns []string) *copyTransform {
	return &copyTransform{
		base:     b,
		columns:  columns,
		typeName: dbutil.DeriveName("_type_", columns),
		funcName: dbutil.DeriveName("_select_", columns),
	}
}

func (c *copyTransform) OutputSchema() []schema.Column {
	out := make([]schema.Column, len(c.columns))
	for i, col := range c.columns {
		out[i] = schema.Column{Name: col, Type: c.columnTypes[col]}
	}
	return out
}

func (c *copyTransform) Prepare(ctx context.Context, ex Executor) error {
	fields, err := fieldsForColumns(c.base, c.columns)
	if err != nil {
		return err
	}
	if err := createType(ctx, ex, c.typeName, fields); err != nil {
		return err
	}
	return rowFunc(ctx, ex, c.funcName, c.typeName, c.srcTable, c.scratchTable, selectExprs(c.columns), false)
}

func (c *copyTransform) ProducerFuncs() []string { return []string{c.funcName} }

func (c *copyTransform) Cleanup(ctx context.Context, ex Executor) error {
	return dropTypesAndFuncs(ctx, ex, []string{c.typeName}, []string{c.funcName})
}

func (c *copyTransform) SkipLastPartialBatch() bool { return false }
