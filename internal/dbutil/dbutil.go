// Package dbutil holds small SQL-identifier helpers shared across the
// preparation, teardown, transform and trim packages.
package dbutil

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// Quote sanitizes a single SQL identifier (table, column, type, function,
// publication or subscription name) so it can be safely embedded in a
// query string.
func Quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// QuoteQualified sanitizes a dotted identifier, e.g. schema.table.
func QuoteQualified(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// QuoteLiteral escapes a string for use as a single-quoted SQL string
// literal. Used for DDL (CREATE SUBSCRIPTION ... WITH (slot_name = '...'))
// where PostgreSQL does not accept bind parameters.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// JoinQuoted quotes every name and joins the results with sep.
func JoinQuoted(names []string, sep string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = Quote(n)
	}
	return strings.Join(quoted, sep)
}

// DeriveName builds a deterministic type/function/table name from a prefix
// and a list of columns, so repeated runs with identical settings collide
// on the same names and are cleaned up the same way.
func DeriveName(prefix string, cols []string) string {
	return prefix + "_" + strings.Join(cols, "_")
}
