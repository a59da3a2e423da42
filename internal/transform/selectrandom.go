package transform

import (
	"context"
	"fmt"

	"github.com/ardoooo/anonymizepg/internal/dbutil"
	"github.com/ardoooo/anonymizepg/internal/schema"
)

// selectRandomTransform emits exactly one row per group per batch,
// picked uniformly from the batch's rows. A short final batch is never
// partially sampled; the pipeline skips it instead.
type selectRandomTransform struct {
	base
	groups    [][]string
	batchSize int
	typeNames []string
	funcNames []string
}

func newSelectRandom(b base, groups [][]string, batchSize int) *selectRandomTransform {
	typeNames := make([]string, len(groups))
	funcNames := make([]string, len(groups))
	for i, g := range groups {
		typeNames[i] = dbutil.DeriveName("_type_", g)
		funcNames[i] = dbutil.DeriveName("_select_random_", g)
	}
	return &selectRandomTransform{base: b, groups: groups, batchSize: batchSize, typeNames: typeNames, funcNames: funcNames}
}

func (s *selectRandomTransform) OutputSchema() []schema.Column {
	var out []schema.Column
	for _, g := range s.groups {
		for _, col := range g {
			out = append(out, schema.Column{Name: col, Type: s.columnTypes[col]})
		}
	}
	return out
}

func (s *selectRandomTransform) Prepare(ctx context.Context, ex Executor) error {
	for i, g := range s.groups {
		fields, err := fieldsForColumns(s.base, g)
		if err != nil {
			return err
		}
		if err := createType(ctx, ex, s.typeNames[i], fields); err != nil {
			return err
		}

		sql := fmt.Sprintf(`
			CREATE OR REPLACE FUNCTION %s()
			RETURNS SETOF %s AS $$
			DECLARE
				random_index INT;
				counter INT := 0;
				rec RECORD;
			BEGIN
				random_index := floor(random() * %d)::INT;
				FOR rec IN
					SELECT %s FROM %s s
					JOIN %s t ON s.ctid = t._ctid_
				LOOP
					IF counter = random_index THEN
						RETURN NEXT rec;
						EXIT;
					END IF;
					counter := counter + 1;
				END LOOP;
			END;
			$$ LANGUAGE plpgsql;`,
			dbutil.Quote(s.funcNames[i]), dbutil.Quote(s.typeNames[i]), s.batchSize,
			dbutil.JoinQuoted(g, ", "), dbutil.Quote(s.srcTable), dbutil.Quote(s.scratchTable))
		if _, err := ex.Exec(ctx, sql); err != nil {
			return fmt.Errorf("creating function %s: %w", s.funcNames[i], err)
		}
	}
	return nil
}

func (s *selectRandomTransform) ProducerFuncs() []string { return s.funcNames }

func (s *selectRandomTransform) Cleanup(ctx context.Context, ex Executor) error {
	return dropTypesAndFuncs(ctx, ex, s.typeNames, s.funcNames)
}

func (s *selectRandomTransform) SkipLastPartialBatch() bool { return true }
