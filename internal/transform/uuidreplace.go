package transform

import (
	"context"
	"fmt"

	"github.com/ardoooo/anonymizepg/internal/dbutil"
	"github.com/ardoooo/anonymizepg/internal/schema"
)

// uuidReplaceTransform passes echo columns through unchanged and, for
// each uuid column, replaces every batch value with a freshly generated
// UUID while recording the (uuid, original_value) mapping in a
// per-column table owned by the transfer table.
type uuidReplaceTransform struct {
	base
	transferTable string
	echoColumns   []string
	uuidColumns   []string

	echoType string
	echoFunc string

	uuidTables []string
	uuidTypes  []string
	uuidFuncs  []string
}

func newUUIDReplace(b base, transferTable string, ops map[string]string) *uuidReplaceTransform {
	cols := orderedKeys(ops)
	var echo, uuid []string
	for _, c := range cols {
		switch ops[c] {
		case "echo":
			echo = append(echo, c)
		case "uuid":
			uuid = append(uuid, c)
		}
	}

	u := &uuidReplaceTransform{
		base:          b,
		transferTable: transferTable,
		echoColumns:   echo,
		uuidColumns:   uuid,
		echoType:      dbutil.DeriveName("_uuid_echo_", echo) + "_type",
		echoFunc:      dbutil.DeriveName("_uuid_echo_", echo),
	}
	for _, c := range uuid {
		u.uuidTables = append(u.uuidTables, fmt.Sprintf("%s_uuid_%s", transferTable, c))
		u.uuidTypes = append(u.uuidTypes, fmt.Sprintf("%s_uuid_%s_type", transferTable, c))
		u.uuidFuncs = append(u.uuidFuncs, fmt.Sprintf("%s_uuid_%s_function", transferTable, c))
	}
	return u
}

func (u *uuidReplaceTransform) OutputSchema() []schema.Column {
	out := make([]schema.Column, 0, len(u.echoColumns)+len(u.uuidColumns))
	for _, c := range u.echoColumns {
		out = append(out, schema.Column{Name: c, Type: u.columnTypes[c]})
	}
	for _, c := range u.uuidColumns {
		out = append(out, schema.Column{Name: c, Type: "UUID"})
	}
	return out
}

func (u *uuidReplaceTransform) Prepare(ctx context.Context, ex Executor) error {
	if len(u.echoColumns) > 0 {
		fields, err := fieldsForColumns(u.base, u.echoColumns)
		if err != nil {
			return err
		}
		if err := createType(ctx, ex, u.echoType, fields); err != nil {
			return err
		}
		if err := rowFunc(ctx, ex, u.echoFunc, u.echoType, u.srcTable, u.scratchTable, selectExprs(u.echoColumns), false); err != nil {
			return err
		}
	}

	for i, col := range u.uuidColumns {
		t, err := u.typeOf(col)
		if err != nil {
			return err
		}

		createTableSQL := fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (uuid UUID NOT NULL, original_value %s);",
			dbutil.Quote(u.uuidTables[i]), t)
		if _, err := ex.Exec(ctx, createTableSQL); err != nil {
			return fmt.Errorf("creating uuid mapping table %s: %w", u.uuidTables[i], err)
		}

		if err := createType(ctx, ex, u.uuidTypes[i], []field{{name: col, pgType: "UUID"}}); err != nil {
			return err
		}

		funcSQL := fmt.Sprintf(`
			CREATE OR REPLACE FUNCTION %s()
			RETURNS SETOF %s AS $$
			DECLARE
				new_uuid UUID;
				rec RECORD;
			BEGIN
				FOR rec IN
					SELECT %s FROM %s s
					JOIN %s t ON s.ctid = t._ctid_
				LOOP
					INSERT INTO %s(uuid, original_value)
					VALUES (gen_random_uuid(), rec.%s)
					RETURNING uuid INTO new_uuid;

					RETURN NEXT new_uuid;
				END LOOP;
			END;
			$$ LANGUAGE plpgsql;`,
			dbutil.Quote(u.uuidFuncs[i]), dbutil.Quote(u.uuidTypes[i]),
			dbutil.Quote(col), dbutil.Quote(u.srcTable), dbutil.Quote(u.scratchTable),
			dbutil.Quote(u.uuidTables[i]), dbutil.Quote(col))
		if _, err := ex.Exec(ctx, funcSQL); err != nil {
			return fmt.Errorf("creating uuid function %s: %w", u.uuidFuncs[i], err)
		}
	}
	return nil
}

func (u *uuidReplaceTransform) ProducerFuncs() []string {
	funcs := make([]string, 0, 1+len(u.uuidFuncs))
	if len(u.echoColumns) > 0 {
		funcs = append(funcs, u.echoFunc)
	}
	funcs = append(funcs, u.uuidFuncs...)
	return funcs
}

func (u *uuidReplaceTransform) Cleanup(ctx context.Context, ex Executor) error {
	types := u.uuidTypes
	funcs := u.uuidFuncs
	if len(u.echoColumns) > 0 {
		types = append([]string{u.echoType}, types...)
		funcs = append([]string{u.echoFunc}, funcs...)
	}
	// Mapping tables are the run's deliverable data and are intentionally
	// left in place; only the generated types and functions are dropped.
	return dropTypesAndFuncs(ctx, ex, types, funcs)
}

func (u *uuidReplaceTransform) SkipLastPartialBatch() bool { return false }
