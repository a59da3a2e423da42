// Package pipeline implements the batched transform loop: identify rows,
// transform, insert, mark, commit, sleep, repeat. It guarantees that a
// given source row is transformed exactly once per clean commit.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ardoooo/anonymizepg/internal/dbutil"
	"github.com/ardoooo/anonymizepg/internal/metrics"
	"github.com/ardoooo/anonymizepg/internal/transform"
)

const scratchTable = "temp_ctid_holder"

// Pipeline drives a single Transformer over a dedicated connection.
type Pipeline struct {
	conn            *pgx.Conn
	srcTable        string
	transferTable   string
	processedColumn string
	continuousMode  bool
	batchSize       int
	sleepMs         int

	transformer transform.Transformer
	metrics     metrics.Sink
	logger      zerolog.Logger
}

// New builds a Pipeline. conn is a dedicated connection owned by the
// pipeline for its entire run.
func New(conn *pgx.Conn, srcTable, transferTable, processedColumn string, continuousMode bool, batchSize, sleepMs int, t transform.Transformer, sink metrics.Sink, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		conn:            conn,
		srcTable:        srcTable,
		transferTable:   transferTable,
		processedColumn: processedColumn,
		continuousMode:  continuousMode,
		batchSize:       batchSize,
		sleepMs:         sleepMs,
		transformer:     t,
		metrics:         sink,
		logger:          logger.With().Str("component", "pipeline").Logger(),
	}
}

// ScratchTable is the name of the session-temp ctid-holder table, shared
// with callers that need to know it before Run starts (the run controller
// passes it to transform.New so the generated functions join against it).
func ScratchTable() string { return scratchTable }

// Run executes the batch loop to completion (continuousMode=false) or
// until ctx is canceled (continuousMode=true). On any database error it
// rolls back the open transaction, runs the transformer's cleanup on a
// bare connection, and returns the error. On normal exit it also runs
// the transformer's cleanup.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info().Msg("data transform process started")

	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning preparation transaction: %w", err)
	}
	if err := p.transformer.Prepare(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		_ = p.transformer.Cleanup(ctx, p.conn)
		return fmt.Errorf("preparing transformer: %w", err)
	}
	if err := p.createScratchTable(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		_ = p.transformer.Cleanup(ctx, p.conn)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = p.transformer.Cleanup(ctx, p.conn)
		return fmt.Errorf("committing preparation: %w", err)
	}

	tx, err = p.conn.Begin(ctx)
	if err != nil {
		_ = p.transformer.Cleanup(ctx, p.conn)
		return fmt.Errorf("beginning batch transaction: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = tx.Rollback(ctx)
			_ = p.transformer.Cleanup(ctx, p.conn)
			return ctx.Err()
		default:
		}

		start := time.Now()

		selected, err := p.selectCtids(ctx, tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			_ = p.transformer.Cleanup(ctx, p.conn)
			return err
		}
		_ = p.metrics.Increment(ctx, "total_selected_ctids", float64(selected), "")

		if selected == 0 || (selected < int64(p.batchSize) && p.transformer.SkipLastPartialBatch()) {
			if p.continuousMode {
				if err := p.sleep(ctx, p.sleepMs); err != nil {
					_ = tx.Rollback(ctx)
					_ = p.transformer.Cleanup(ctx, p.conn)
					return err
				}
				continue
			}
			if err := tx.Commit(ctx); err != nil {
				_ = p.transformer.Cleanup(ctx, p.conn)
				return fmt.Errorf("committing final empty batch: %w", err)
			}
			break
		}

		converted, err := p.insertIntoTransfer(ctx, tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			_ = p.transformer.Cleanup(ctx, p.conn)
			return err
		}
		_ = p.metrics.Increment(ctx, "total_converted", float64(converted), "")

		marked, err := p.markProcessed(ctx, tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			_ = p.transformer.Cleanup(ctx, p.conn)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			_ = p.transformer.Cleanup(ctx, p.conn)
			return fmt.Errorf("committing batch: %w", err)
		}
		_ = p.metrics.Increment(ctx, "total_mark_processed", float64(marked), "")

		tx2, err := p.conn.Begin(ctx)
		if err != nil {
			_ = p.transformer.Cleanup(ctx, p.conn)
			return fmt.Errorf("beginning truncate transaction: %w", err)
		}
		if err := p.truncateScratch(ctx, tx2); err != nil {
			_ = tx2.Rollback(ctx)
			_ = p.transformer.Cleanup(ctx, p.conn)
			return err
		}
		if err := tx2.Commit(ctx); err != nil {
			_ = p.transformer.Cleanup(ctx, p.conn)
			return fmt.Errorf("committing truncate: %w", err)
		}

		p.logger.Debug().Msg("completed iteration")
		_ = p.metrics.Add(ctx, "batch_time_execution_s", time.Since(start).Seconds(), "")

		if err := p.sleep(ctx, p.sleepMs); err != nil {
			_ = p.transformer.Cleanup(ctx, p.conn)
			return err
		}

		tx, err = p.conn.Begin(ctx)
		if err != nil {
			_ = p.transformer.Cleanup(ctx, p.conn)
			return fmt.Errorf("beginning batch transaction: %w", err)
		}
	}

	p.logger.Info().Msg("data transform process successfully completed")
	return p.transformer.Cleanup(ctx, p.conn)
}

func (p *Pipeline) sleep(ctx context.Context, ms int) error {
	if ms <= 0 {
		return nil
	}
	p.logger.Debug().Int("sleep_ms", ms).Msg("sleeping between batches")
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) createScratchTable(ctx context.Context, tx pgx.Tx) error {
	sql := fmt.Sprintf("CREATE TEMP TABLE %s (_ctid_ tid);", dbutil.Quote(scratchTable))
	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("creating scratch table: %w", err)
	}
	return nil
}

func (p *Pipeline) selectCtids(ctx context.Context, tx pgx.Tx) (int64, error) {
	sql := fmt.Sprintf(`
		INSERT INTO %s (_ctid_)
		SELECT ctid FROM %s
		WHERE %s IS NULL
		LIMIT %d;`,
		dbutil.Quote(scratchTable), dbutil.Quote(p.srcTable), dbutil.Quote(p.processedColumn), p.batchSize)
	tag, err := tx.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("selecting ctids from %s: %w", p.srcTable, err)
	}
	return tag.RowsAffected(), nil
}

func (p *Pipeline) insertIntoTransfer(ctx context.Context, tx pgx.Tx) (int64, error) {
	funcNames := p.transformer.ProducerFuncs()
	exprs := make([]string, len(funcNames))
	for i, f := range funcNames {
		exprs[i] = fmt.Sprintf("(%s()).*", dbutil.Quote(f))
	}
	sql := fmt.Sprintf("INSERT INTO %s SELECT %s;", dbutil.Quote(p.transferTable), strings.Join(exprs, ", "))
	tag, err := tx.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", p.transferTable, err)
	}
	return tag.RowsAffected(), nil
}

func (p *Pipeline) markProcessed(ctx context.Context, tx pgx.Tx) (int64, error) {
	sql := fmt.Sprintf(`
		UPDATE %s SET %s = TRUE
		WHERE ctid IN (SELECT _ctid_ FROM %s);`,
		dbutil.Quote(p.srcTable), dbutil.Quote(p.processedColumn), dbutil.Quote(scratchTable))
	tag, err := tx.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("marking rows processed in %s: %w", p.srcTable, err)
	}
	return tag.RowsAffected(), nil
}

func (p *Pipeline) truncateScratch(ctx context.Context, tx pgx.Tx) error {
	sql := fmt.Sprintf("TRUNCATE TABLE %s;", dbutil.Quote(scratchTable))
	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("truncating scratch table: %w", err)
	}
	return nil
}
