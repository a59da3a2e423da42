// Package prepare creates the bookkeeping column, transfer table,
// publication, destination tables and subscriptions that a run needs
// before the pipeline can start. The destination table, its XFER_ID
// column and its index are created IF NOT EXISTS; the source column,
// source index, source transfer table, publication and subscriptions are
// not, so those statements fail when the object already exists.
package prepare

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ardoooo/anonymizepg/internal/dbconn"
	"github.com/ardoooo/anonymizepg/internal/dbutil"
	"github.com/ardoooo/anonymizepg/internal/schema"
)

// SrcTable adds the PROCESSED column and its partial index. Step 1 of
// preparation; any failure here is fatal and triggers teardown with
// after_error=true.
func SrcTable(ctx context.Context, conn *pgx.Conn, srcTable, processedColumn string) error {
	alterSQL := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s BOOLEAN;",
		dbutil.Quote(srcTable), dbutil.Quote(processedColumn))
	if _, err := conn.Exec(ctx, alterSQL); err != nil {
		return fmt.Errorf("adding column %s to %s: %w", processedColumn, srcTable, err)
	}

	indexSQL := fmt.Sprintf("CREATE INDEX CONCURRENTLY %s ON %s(%s) WHERE %s IS NULL;",
		dbutil.Quote(processedColumn), dbutil.Quote(srcTable), dbutil.Quote(processedColumn), dbutil.Quote(processedColumn))
	if _, err := conn.Exec(ctx, indexSQL); err != nil {
		return fmt.Errorf("creating partial index on %s.%s: %w", srcTable, processedColumn, err)
	}
	return nil
}

// TransferTable creates XFER with outputSchema plus a bigserial
// XFER_ID primary key, and, in replicated mode, the publication covering
// it. Step 2-3 of preparation.
func TransferTable(ctx context.Context, conn *pgx.Conn, transferTable, idColumn string, outputSchema []schema.Column, publication string, replicated bool) error {
	columnDefs := make([]string, len(outputSchema))
	for i, c := range outputSchema {
		columnDefs[i] = fmt.Sprintf("%s %s", dbutil.Quote(c.Name), c.Type)
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s (%s, %s BIGSERIAL PRIMARY KEY)",
		dbutil.Quote(transferTable), strings.Join(columnDefs, ", "), dbutil.Quote(idColumn))
	if _, err := conn.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("creating transfer table %s: %w", transferTable, err)
	}

	if !replicated {
		return nil
	}

	pubSQL := fmt.Sprintf("CREATE PUBLICATION %s FOR TABLE %s WITH (publish = 'insert')",
		dbutil.Quote(publication), dbutil.Quote(transferTable))
	if _, err := conn.Exec(ctx, pubSQL); err != nil {
		return fmt.Errorf("creating publication %s: %w", publication, err)
	}
	return nil
}

// slotName is the deterministic per-destination slot name generator:
// transfer_slot_replica_1, _2, and so on, restarting at 1 every run.
func slotName(i int) string {
	return fmt.Sprintf("transfer_slot_replica_%d", i+1)
}

// DestinationTables mirrors XFER on every destination, adds the XFER_ID
// column and its index, and subscribes each destination to the source
// publication with a distinct replication slot. Step 4 of preparation,
// replicated mode only.
//
// CREATE SUBSCRIPTION is DDL and PostgreSQL does not accept bind
// parameters on DDL; each destination's slot name is baked into its own
// statement text via ExecEach instead of the broadcast Exec/PerMember
// path (which still exists for ordinary parameterized statements).
func DestinationTables(ctx context.Context, dst *dbconn.MultiConn, srcConnString, transferTable, idColumn string, outputSchema []schema.Column, publication, subscription string) error {
	columnDefs := make([]string, len(outputSchema))
	for i, c := range outputSchema {
		columnDefs[i] = fmt.Sprintf("%s %s", dbutil.Quote(c.Name), c.Type)
	}

	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);",
		dbutil.Quote(transferTable), strings.Join(columnDefs, ", "))
	if err := dst.Exec(ctx, createSQL, nil); err != nil {
		return fmt.Errorf("creating destination table %s: %w", transferTable, err)
	}

	addColSQL := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s BIGINT;",
		dbutil.Quote(transferTable), dbutil.Quote(idColumn))
	if err := dst.Exec(ctx, addColSQL, nil); err != nil {
		return fmt.Errorf("adding %s to destination table %s: %w", idColumn, transferTable, err)
	}

	indexSQL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s);",
		dbutil.Quote(idColumn), dbutil.Quote(transferTable), dbutil.Quote(idColumn))
	if err := dst.Exec(ctx, indexSQL, nil); err != nil {
		return fmt.Errorf("indexing destination table %s: %w", transferTable, err)
	}

	subStatements := make([]string, dst.Len())
	for i := range subStatements {
		subStatements[i] = fmt.Sprintf(
			"CREATE SUBSCRIPTION %s CONNECTION %s PUBLICATION %s WITH (slot_name = %s);",
			dbutil.Quote(subscription), dbutil.QuoteLiteral(srcConnString), dbutil.Quote(publication),
			dbutil.QuoteLiteral(slotName(i)))
	}
	if err := dst.ExecEach(ctx, subStatements); err != nil {
		return fmt.Errorf("creating destination subscriptions: %w", err)
	}
	return nil
}
