// Package runctl implements the run controller: given already-loaded
// configuration, it opens connections, drives preparation, spawns the trim worker, runs
// the pipeline, and guarantees teardown on every exit path.
package runctl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ardoooo/anonymizepg/internal/config"
	"github.com/ardoooo/anonymizepg/internal/dbconn"
	"github.com/ardoooo/anonymizepg/internal/metrics"
	"github.com/ardoooo/anonymizepg/internal/pipeline"
	"github.com/ardoooo/anonymizepg/internal/prepare"
	"github.com/ardoooo/anonymizepg/internal/schema"
	"github.com/ardoooo/anonymizepg/internal/teardown"
	"github.com/ardoooo/anonymizepg/internal/transform"
	"github.com/ardoooo/anonymizepg/internal/trim"
)

// Mode selects whether a run replicates to destinations or stays local.
type Mode int

const (
	Local Mode = iota
	Replicated
)

// Run executes one end-to-end run: preparation, concurrent pipeline and
// trim worker, and teardown under every exit path.
func Run(ctx context.Context, mode Mode, settings *config.Settings, conns *config.Connections, sink metrics.Sink, logger zerolog.Logger) error {
	replicated := mode == Replicated
	p := settings.ProcessingSettings

	srcPipelineConn, err := pgx.Connect(ctx, conns.Src)
	if err != nil {
		return fmt.Errorf("connecting to source for pipeline: %w", err)
	}
	defer srcPipelineConn.Close(context.Background())

	srcDDLConn, err := pgx.Connect(ctx, conns.Src)
	if err != nil {
		return fmt.Errorf("connecting to source for preparation: %w", err)
	}
	defer srcDDLConn.Close(context.Background())

	var dst *dbconn.MultiConn
	if replicated {
		dst, err = dbconn.NewMultiConn(ctx, conns.Dst)
		if err != nil {
			return fmt.Errorf("connecting to destinations: %w", err)
		}
		defer dst.Close(context.Background())
	}

	cols, err := schema.Introspect(ctx, srcPipelineConn, p.SrcTable)
	if err != nil {
		return fmt.Errorf("introspecting source table %s: %w", p.SrcTable, err)
	}

	transformer, err := transform.New(p, pipeline.ScratchTable(), cols)
	if err != nil {
		return err
	}

	logger.Info().Str("method", string(p.Method)).Bool("replicated", replicated).Msg("starting run")

	if err := prepare.SrcTable(ctx, srcDDLConn, p.SrcTable, p.ProcessedColumn); err != nil {
		_ = teardown.Src(context.Background(), srcDDLConn, p.SrcTable, p.ProcessedColumn, p.TransferTable, p.IDColumn, p.Publication, replicated, true)
		return fmt.Errorf("preparing source table: %w", err)
	}

	if err := prepare.TransferTable(ctx, srcDDLConn, p.TransferTable, p.IDColumn, transformer.OutputSchema(), p.Publication, replicated); err != nil {
		_ = teardown.Src(context.Background(), srcDDLConn, p.SrcTable, p.ProcessedColumn, p.TransferTable, p.IDColumn, p.Publication, replicated, true)
		return fmt.Errorf("preparing transfer table: %w", err)
	}

	if replicated {
		if err := prepare.DestinationTables(ctx, dst, conns.Src, p.TransferTable, p.IDColumn, transformer.OutputSchema(), p.Publication, p.Subscription); err != nil {
			_ = teardown.Src(context.Background(), srcDDLConn, p.SrcTable, p.ProcessedColumn, p.TransferTable, p.IDColumn, p.Publication, replicated, true)
			_ = teardown.Dst(context.Background(), dst, p.TransferTable, p.IDColumn, p.Subscription, true)
			return fmt.Errorf("preparing destination tables: %w", err)
		}
	}

	runErr := runPipelineAndTrim(ctx, srcPipelineConn, conns, p, transformer, replicated, sink, logger)

	afterError := runErr != nil
	if err := teardown.Src(context.Background(), srcDDLConn, p.SrcTable, p.ProcessedColumn, p.TransferTable, p.IDColumn, p.Publication, replicated, afterError); err != nil {
		logger.Error().Err(err).Msg("source teardown failed")
		if runErr == nil {
			runErr = fmt.Errorf("source teardown: %w", err)
		}
	}
	if replicated {
		if err := teardown.Dst(context.Background(), dst, p.TransferTable, p.IDColumn, p.Subscription, afterError); err != nil {
			logger.Error().Err(err).Msg("destination teardown failed")
			if runErr == nil {
				runErr = fmt.Errorf("destination teardown: %w", err)
			}
		}
	}

	return runErr
}

// runPipelineAndTrim spawns the trim worker (replicated mode only) and
// drives the pipeline to completion. The trim worker drains gracefully
// on normal pipeline completion and is force-canceled on any pipeline
// error or context cancellation (interrupt).
func runPipelineAndTrim(ctx context.Context, srcPipelineConn *pgx.Conn, conns *config.Connections, p config.ProcessingSettings, transformer transform.Transformer, replicated bool, sink metrics.Sink, logger zerolog.Logger) error {
	pl := pipeline.New(srcPipelineConn, p.SrcTable, p.TransferTable, p.ProcessedColumn, p.ContinuousMode, p.BatchSize, p.BatchSleepMs, transformer, sink, logger)

	if !replicated {
		return pl.Run(ctx)
	}

	trimCtx, cancelTrim := context.WithCancel(ctx)
	defer cancelTrim()
	stop := make(chan struct{})

	trimSrcConn, err := pgx.Connect(ctx, conns.Src)
	if err != nil {
		return fmt.Errorf("connecting to source for trim worker: %w", err)
	}
	defer trimSrcConn.Close(context.Background())

	trimDst, err := dbconn.NewMultiConn(ctx, conns.Dst)
	if err != nil {
		return fmt.Errorf("connecting to destinations for trim worker: %w", err)
	}
	defer trimDst.Close(context.Background())

	worker := trim.New(trimSrcConn, trimDst, p.TransferTable, p.IDColumn, p.DeleteSleepS, sink, logger)

	g, gctx := errgroup.WithContext(trimCtx)
	g.Go(func() error {
		return worker.Run(gctx, stop)
	})

	pipelineErr := pl.Run(ctx)

	close(stop)
	if pipelineErr != nil {
		cancelTrim()
	}

	trimErr := g.Wait()
	if pipelineErr != nil {
		return pipelineErr
	}
	if trimErr != nil && trimErr != context.Canceled {
		return fmt.Errorf("trim worker: %w", trimErr)
	}
	return nil
}
