// Package trim implements the concurrent trim worker: it watches the
// delivered XFER_ID watermark across destinations and deletes rows from
// the source transfer table once every destination has them durably.
package trim

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ardoooo/anonymizepg/internal/dbconn"
	"github.com/ardoooo/anonymizepg/internal/dbutil"
	"github.com/ardoooo/anonymizepg/internal/metrics"
)

// Worker owns its own source and destination connections; it does not
// reuse the controller's or the pipeline's.
type Worker struct {
	src           *pgx.Conn
	dst           *dbconn.MultiConn
	transferTable string
	idColumn      string
	periodS       int

	metrics metrics.Sink
	logger  zerolog.Logger
}

// New builds a trim Worker.
func New(src *pgx.Conn, dst *dbconn.MultiConn, transferTable, idColumn string, periodS int, sink metrics.Sink, logger zerolog.Logger) *Worker {
	return &Worker{
		src:           src,
		dst:           dst,
		transferTable: transferTable,
		idColumn:      idColumn,
		periodS:       periodS,
		metrics:       sink,
		logger:        logger.With().Str("component", "trim").Logger(),
	}
}

func scanNullInt64(row pgx.Row) (sql.NullInt64, error) {
	var n sql.NullInt64
	err := row.Scan(&n)
	return n, err
}

// Run loops until ctx is canceled (force-kill, used on pipeline error or
// interrupt) or stop is closed and the most recent delete removed zero
// rows (graceful drain, used on normal pipeline completion).
func (w *Worker) Run(ctx context.Context, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		maxes, err := dbconn.FetchOne(ctx, w.dst,
			fmt.Sprintf("SELECT MAX(%s) FROM %s", dbutil.Quote(w.idColumn), dbutil.Quote(w.transferTable)),
			nil, scanNullInt64)
		if err != nil {
			w.logger.Error().Err(err).Msg("error reading destination watermarks")
			return fmt.Errorf("reading destination watermarks: %w", err)
		}

		hosts := w.dst.Hosts()
		counts := make([]float64, len(maxes))
		allSet := true
		var watermark int64
		for i, m := range maxes {
			if m.Valid {
				counts[i] = float64(m.Int64)
				if i == 0 || m.Int64 < watermark {
					watermark = m.Int64
				}
			} else {
				counts[i] = 0
				allSet = false
			}
		}
		_ = w.metrics.AddArray(ctx, "total_cnt", counts, hosts)

		if allSet {
			deleted, err := w.deleteUpTo(ctx, watermark)
			if err != nil {
				w.logger.Error().Err(err).Msg("error deleting trimmed rows")
				return err
			}
			w.logger.Debug().Int64("watermark", watermark).Int64("deleted", deleted).Msg("trim iteration")
			_ = w.metrics.Increment(ctx, "total_deleted", float64(deleted), "")

			if deleted == 0 && stopped(stop) {
				return nil
			}
		} else {
			w.logger.Debug().Str("table", w.transferTable).Msg("no data to delete yet")
		}

		if w.periodS > 0 {
			select {
			case <-time.After(time.Duration(w.periodS) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func (w *Worker) deleteUpTo(ctx context.Context, watermark int64) (int64, error) {
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s <= %d", dbutil.Quote(w.transferTable), dbutil.Quote(w.idColumn), watermark)
	tag, err := w.src.Exec(ctx, deleteSQL)
	if err != nil {
		return 0, fmt.Errorf("deleting trimmed rows from %s: %w", w.transferTable, err)
	}
	return tag.RowsAffected(), nil
}
