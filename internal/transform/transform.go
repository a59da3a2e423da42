// Package transform implements the six transformation variants that turn
// a batch of source rows into the transfer table's output shape: copy,
// windowed aggregation, reducing aggregation, within-group shuffle,
// random-select-per-batch and UUID replacement. Each variant is a thin
// wrapper around a set-returning PL/pgSQL function created in Prepare and
// dropped in Cleanup; the pipeline skeleton drives them all the same way.
package transform

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ardoooo/anonymizepg/internal/config"
	"github.com/ardoooo/anonymizepg/internal/schema"
)

// Executor is the minimal DB surface the transform family needs: it is
// satisfied by both *pgx.Conn and pgx.Tx so the same variant code runs
// whether or not a batch transaction is open.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Transformer is the interface the pipeline skeleton drives; it never
// knows which of the six variants it is holding.
type Transformer interface {
	// OutputSchema is the ordered (name, type) list used to create the
	// transfer table.
	OutputSchema() []schema.Column
	// Prepare creates whatever method-specific types, functions and
	// auxiliary tables this variant needs for the run.
	Prepare(ctx context.Context, ex Executor) error
	// ProducerFuncs returns the ordered set-returning function names
	// whose concatenated output forms one row of the batch insert.
	ProducerFuncs() []string
	// Cleanup drops everything Prepare created.
	Cleanup(ctx context.Context, ex Executor) error
	// SkipLastPartialBatch reports whether a short final batch should be
	// dropped instead of processed. True only for select_random.
	SkipLastPartialBatch() bool
}

// base holds the fields every variant needs: the source table, the
// session-scoped scratch table holding the current batch's ctids, and
// the source column types used to build DDL.
type base struct {
	srcTable     string
	scratchTable string
	columnTypes  map[string]string
}

func newBase(srcTable, scratchTable string, cols []schema.Column) base {
	types := make(map[string]string, len(cols))
	for _, c := range cols {
		types[c.Name] = c.Type
	}
	return base{srcTable: srcTable, scratchTable: scratchTable, columnTypes: types}
}

func (b base) typeOf(column string) (string, error) {
	t, ok := b.columnTypes[column]
	if !ok {
		return "", fmt.Errorf("column %q not found on %s", column, b.srcTable)
	}
	return t, nil
}

// New builds the Transformer named by p.Method, grounded on the column
// types of srcTable.
func New(p config.ProcessingSettings, scratchTable string, cols []schema.Column) (Transformer, error) {
	b := newBase(p.SrcTable, scratchTable, cols)

	switch p.Method {
	case config.MethodCopy:
		return newCopy(b, p.Columns), nil
	case config.MethodAggr:
		return newAggr(b, p.ColumnOps), nil
	case config.MethodReduceAggr:
		return newReduceAggr(b, p.ColumnOps), nil
	case config.MethodShuffle:
		return newShuffle(b, p.Groups), nil
	case config.MethodSelectRandom:
		return newSelectRandom(b, p.Groups, p.BatchSize), nil
	case config.MethodUUID:
		return newUUIDReplace(b, p.TransferTable, p.ColumnOps), nil
	default:
		return nil, fmt.Errorf("unknown transform method %q", p.Method)
	}
}
