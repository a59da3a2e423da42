package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/ardoooo/anonymizepg/internal/dbutil"
)

// field is a single column name/type pair used to build a composite
// type's body.
type field struct {
	name    string
	pgType  string
}

func fieldsBody(fields []field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s %s", dbutil.Quote(f.name), f.pgType)
	}
	return strings.Join(parts, ",\n")
}

func createType(ctx context.Context, ex Executor, typeName string, fields []field) error {
	sql := fmt.Sprintf("CREATE TYPE %s AS (\n%s\n);", dbutil.Quote(typeName), fieldsBody(fields))
	if _, err := ex.Exec(ctx, sql); err != nil {
		return fmt.Errorf("creating type %s: %w", typeName, err)
	}
	return nil
}

// rowFunc builds a CREATE OR REPLACE FUNCTION returning SETOF typeName
// whose body selects exprs from srcTable joined to scratchTable on ctid,
// optionally ordered by random() (used by shuffle).
func rowFunc(ctx context.Context, ex Executor, funcName, typeName, srcTable, scratchTable string, exprs []string, orderByRandom bool) error {
	order := ""
	if orderByRandom {
		order = "\n                ORDER BY RANDOM()"
	}
	sql := fmt.Sprintf(`
		CREATE OR REPLACE FUNCTION %s()
		RETURNS SETOF %s AS $$
		BEGIN
			RETURN QUERY SELECT %s FROM %s s
			JOIN %s t ON s.ctid = t._ctid_%s;
		END;
		$$ LANGUAGE plpgsql;`,
		dbutil.Quote(funcName), dbutil.Quote(typeName), strings.Join(exprs, ", "),
		dbutil.Quote(srcTable), dbutil.Quote(scratchTable), order)
	if _, err := ex.Exec(ctx, sql); err != nil {
		return fmt.Errorf("creating function %s: %w", funcName, err)
	}
	return nil
}

func dropTypesAndFuncs(ctx context.Context, ex Executor, types, funcs []string) error {
	if len(types) > 0 {
		sql := fmt.Sprintf("DROP TYPE IF EXISTS %s CASCADE;", dbutil.JoinQuoted(types, ", "))
		if _, err := ex.Exec(ctx, sql); err != nil {
			return fmt.Errorf("dropping types: %w", err)
		}
	}
	if len(funcs) > 0 {
		withParens := make([]string, len(funcs))
		for i, f := range funcs {
			withParens[i] = dbutil.Quote(f) + "()"
		}
		sql := fmt.Sprintf("DROP FUNCTION IF EXISTS %s CASCADE;", strings.Join(withParens, ", "))
		if _, err := ex.Exec(ctx, sql); err != nil {
			return fmt.Errorf("dropping functions: %w", err)
		}
	}
	return nil
}

func selectExprs(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = dbutil.Quote(c)
	}
	return out
}

func fieldsForColumns(b base, columns []string) ([]field, error) {
	fields := make([]field, len(columns))
	for i, c := range columns {
		t, err := b.typeOf(c)
		if err != nil {
			return nil, err
		}
		fields[i] = field{name: c, pgType: t}
	}
	return fields, nil
}
