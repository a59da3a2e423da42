// Package schema reads column metadata from PostgreSQL's information
// schema, used by preparation and the transformer family to build DDL.
package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Column is a single column's name and declared type, as reported by
// information_schema.
type Column struct {
	Name string
	Type string
}

// Querier is the minimal interface schema introspection needs, satisfied
// by *pgx.Conn and pgx.Tx alike.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Introspect returns table's columns in ordinal position order.
func Introspect(ctx context.Context, q Querier, table string) ([]Column, error) {
	rows, err := q.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("introspecting %s: table not found or has no columns", table)
	}
	return cols, nil
}

// TypeOf returns the declared type of a single named column from an
// already-fetched column list.
func TypeOf(cols []Column, name string) (string, error) {
	for _, c := range cols {
		if c.Name == name {
			return c.Type, nil
		}
	}
	return "", fmt.Errorf("column %q not found", name)
}
