// Package teardown is the inverse of prepare: it runs on every exit path
// (success, preparation failure, pipeline failure, SIGINT) and must be
// safe to re-run against partial state.
package teardown

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ardoooo/anonymizepg/internal/dbconn"
	"github.com/ardoooo/anonymizepg/internal/dbutil"
)

// guard returns "IF EXISTS" when afterError is set, so a teardown that
// runs against only-partially-created state does not fail on the first
// missing object.
func guard(afterError bool) string {
	if afterError {
		return "IF EXISTS"
	}
	return ""
}

// Src drops the PROCESSED index and column from the source table, and
// either drops the publication and transfer table (replicated mode) or
// strips the XFER_ID column from the transfer table, leaving it as the
// deliverable (local-only mode).
func Src(ctx context.Context, conn *pgx.Conn, srcTable, processedColumn, transferTable, idColumn, publication string, replicated, afterError bool) error {
	g := guard(afterError)

	dropIdxSQL := fmt.Sprintf("DROP INDEX CONCURRENTLY %s %s;", g, dbutil.Quote(processedColumn))
	if _, err := conn.Exec(ctx, dropIdxSQL); err != nil {
		return fmt.Errorf("dropping index %s: %w", processedColumn, err)
	}

	dropColSQL := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s %s;", dbutil.Quote(srcTable), g, dbutil.Quote(processedColumn))
	if _, err := conn.Exec(ctx, dropColSQL); err != nil {
		return fmt.Errorf("dropping column %s from %s: %w", processedColumn, srcTable, err)
	}

	if replicated {
		dropPubSQL := fmt.Sprintf("DROP PUBLICATION %s %s;", g, dbutil.Quote(publication))
		if _, err := conn.Exec(ctx, dropPubSQL); err != nil {
			return fmt.Errorf("dropping publication %s: %w", publication, err)
		}

		dropTableSQL := fmt.Sprintf("DROP TABLE %s %s CASCADE;", g, dbutil.Quote(transferTable))
		if _, err := conn.Exec(ctx, dropTableSQL); err != nil {
			return fmt.Errorf("dropping transfer table %s: %w", transferTable, err)
		}
		return nil
	}

	dropIDColSQL := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s %s CASCADE;", dbutil.Quote(transferTable), g, dbutil.Quote(idColumn))
	if _, err := conn.Exec(ctx, dropIDColSQL); err != nil {
		return fmt.Errorf("dropping column %s from %s: %w", idColumn, transferTable, err)
	}
	return nil
}

// Dst drops each destination's subscription, XFER_ID index and column.
// Replicated mode only.
//
// The original implementation never guards the index drop or the column
// drop with IF EXISTS on the destination side, even when cleaning up
// after an error; that conflicts with idempotent teardown, so this port
// applies the same afterError guard used on the source side to every
// statement here.
func Dst(ctx context.Context, dst *dbconn.MultiConn, transferTable, idColumn, subscription string, afterError bool) error {
	g := guard(afterError)

	dropSubSQL := fmt.Sprintf("DROP SUBSCRIPTION %s %s;", g, dbutil.Quote(subscription))
	if err := dst.Exec(ctx, dropSubSQL, nil); err != nil {
		return fmt.Errorf("dropping subscription %s: %w", subscription, err)
	}

	dropIdxSQL := fmt.Sprintf("DROP INDEX CONCURRENTLY %s %s;", g, dbutil.Quote(idColumn))
	if err := dst.Exec(ctx, dropIdxSQL, nil); err != nil {
		return fmt.Errorf("dropping index %s on destinations: %w", idColumn, err)
	}

	dropColSQL := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s %s CASCADE;", dbutil.Quote(transferTable), g, dbutil.Quote(idColumn))
	if err := dst.Exec(ctx, dropColSQL, nil); err != nil {
		return fmt.Errorf("dropping column %s from destination %s: %w", idColumn, transferTable, err)
	}
	return nil
}
