package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Event is one progress notification. Rows and Chunks are cumulative for
// the unit. A terminal event is emitted exactly once per unit.
type Event struct {
	Unit      string
	TotalRows int64
	Rows      int64
	Chunks    int
	Terminal  bool
	Failed    bool
	Skipped   bool
}

// Reporter receives progress events. Implementations must be safe for
// concurrent use; units report in parallel.
type Reporter interface {
	Report(e Event)
}

type nopReporter struct{}

func (nopReporter) Report(Event) {}

// pipeline transfers one unit: a pool of fetchers pulls chunk metas and
// feeds a bounded channel, and a single writer drains it in sequence
// order.
type pipeline struct {
	source   Source
	dest     Destination
	reporter Reporter
	cfg      Config
}

// run executes a unit already decided to transfer. overwrite replaces
// existing destination content before the first chunk.
func (p *pipeline) run(ctx context.Context, unit UnitOfWork, overwrite bool) Result {
	start := time.Now()

	res := Result{Unit: unit}

	rows, chunks, err := p.transfer(ctx, unit, overwrite)
	res.Rows = rows
	res.Chunks = chunks
	res.Duration = time.Since(start)

	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		res.Reason = err.Error()
		log.Error().Err(err).Stringer("unit", unit).Msg("Transfer failed")
	} else {
		res.Status = StatusSucceeded
		log.Info().
			Stringer("unit", unit).
			Int64("rows", rows).
			Int("chunks", chunks).
			Dur("duration", res.Duration).
			Msg("Transfer finished")
	}

	p.reporter.Report(Event{
		Unit:     unit.String(),
		Rows:     rows,
		Chunks:   chunks,
		Terminal: true,
		Failed:   err != nil,
	})

	return res
}

func (p *pipeline) transfer(ctx context.Context, unit UnitOfWork, overwrite bool) (int64, int, error) {
	log.Info().Stringer("unit", unit).Msg("Starting transfer")

	job, err := p.source.RunQuery(ctx, unit)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to run source query: %w", err)
	}

	pool := NewChunkPool(SplitIntoChunks(job.RowCount(), p.cfg.ChunkSize))

	w, err := p.dest.OpenWriter(ctx, unit, job.Columns(), overwrite)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open destination writer: %w", err)
	}

	chunkC := make(chan *Chunk, maxChunksInMem)

	// Fetchers take a slot per chunk and the writer returns it once the
	// chunk is written. One stalled fetch therefore cannot let the other
	// workers pull the rest of the table into memory: chunks in flight
	// never exceed the window, whatever the unit size.
	window := p.cfg.FetchParallelism + maxChunksInMem
	slots := make(chan struct{}, window)
	for i := 0; i < window; i++ {
		slots <- struct{}{}
	}

	g, gCtx := errgroup.WithContext(ctx)

	var readWG sync.WaitGroup
	workers := p.cfg.FetchParallelism
	if workers > pool.Len() && pool.Len() > 0 {
		workers = pool.Len()
	}
	for i := 0; i < workers; i++ {
		readWG.Add(1)
		g.Go(func() error {
			defer readWG.Done()
			return p.fetchChunks(gCtx, job, pool, chunkC, slots)
		})
	}

	go func() {
		readWG.Wait()
		close(chunkC)
	}()

	var (
		written    int64
		chunksDone int
	)
	g.Go(func() error {
		next := 0
		pending := make(map[int]*Chunk, maxChunksInMem)
		for chunk := range chunkC {
			pending[chunk.Seq] = chunk
			for {
				c, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				if err := w.WriteChunk(gCtx, c); err != nil {
					return fmt.Errorf("failed to write chunk %d: %w", c.Seq, err)
				}
				slots <- struct{}{}
				next++
				written += int64(len(c.Rows))
				chunksDone++
				p.reporter.Report(Event{
					Unit:      unit.String(),
					TotalRows: job.RowCount(),
					Rows:      written,
					Chunks:    chunksDone,
				})
				log.Debug().
					Stringer("unit", unit).
					Int("seq", c.Seq).
					Int("rows", len(c.Rows)).
					Msg("Wrote chunk")
			}
		}
		if len(pending) > 0 {
			return fmt.Errorf("chunk sequence gap at %d with %d chunks pending", next, len(pending))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if aerr := w.Abort(); aerr != nil {
			log.Warn().Err(aerr).Stringer("unit", unit).Msg("Failed to discard partial destination content")
		}
		return written, chunksDone, err
	}

	if err := w.Close(); err != nil {
		return written, chunksDone, fmt.Errorf("failed to close destination writer: %w", err)
	}

	return written, chunksDone, nil
}

func (p *pipeline) fetchChunks(ctx context.Context, job QueryJob, pool *ChunkPool, chunkC chan<- *Chunk, slots <-chan struct{}) error {
	for {
		select {
		case <-slots:
		case <-ctx.Done():
			return ctx.Err()
		}

		meta, ok := pool.Next()
		if !ok {
			return nil
		}

		rows, err := job.FetchChunk(ctx, meta.Offset, meta.Limit)
		if err != nil {
			return fmt.Errorf("failed to fetch chunk %d: %w", meta.Seq, err)
		}

		select {
		case chunkC <- &Chunk{ChunkMeta: meta, Rows: rows}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
