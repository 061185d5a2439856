package transfer

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Enumerator lists the units of one run.
type Enumerator func(ctx context.Context, source Source) ([]UnitOfWork, error)

// CloneUnits enumerates one unit per table of the source database,
// mapped onto the same table name in the destination database.
func CloneUnits(sourceDB, destDB string) Enumerator {
	return func(ctx context.Context, source Source) ([]UnitOfWork, error) {
		tables, err := source.ListTables(ctx, sourceDB)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list source tables")
		}
		units := make([]UnitOfWork, 0, len(tables))
		for _, t := range tables {
			units = append(units, UnitOfWork{
				SourceDatabase: sourceDB,
				SourceTable:    t.Name,
				DestDatabase:   destDB,
				DestTable:      t.Name,
				RowEstimate:    t.RowCount,
			})
		}
		return units, nil
	}
}

// ExportUnits enumerates the single unit of an export run.
func ExportUnits(database, table, destPath, partitionColumn string, window *TimeWindow) Enumerator {
	return func(ctx context.Context, source Source) ([]UnitOfWork, error) {
		tables, err := source.ListTables(ctx, database)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list source tables")
		}
		for _, t := range tables {
			if t.Name == table {
				return []UnitOfWork{{
					SourceDatabase:  database,
					SourceTable:     table,
					DestPath:        destPath,
					Window:          window,
					PartitionColumn: partitionColumn,
					RowEstimate:     t.RowCount,
				}}, nil
			}
		}
		return nil, errors.Errorf("table %q not found in database %q", table, database)
	}
}

// Orchestrator drives a whole run: pre-flight, planning, and the bounded
// parallel execution of units.
type Orchestrator struct {
	source Source
	dest   Destination
	cfg    Config
}

func NewOrchestrator(source Source, dest Destination, cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{source: source, dest: dest, cfg: cfg}, nil
}

// Plan checks the source, snapshots the destination, enumerates units
// and decides each one. Planning never mutates the destination: both dry
// runs and live runs start here, so a dry run predicts exactly what a
// live run would do.
func (o *Orchestrator) Plan(ctx context.Context, database string, enumerate Enumerator) (*Plan, error) {
	ok, err := o.source.DatabaseExists(ctx, database)
	if err != nil {
		return nil, errors.Wrapf(ErrSourceUnavailable, "failed to check source database %q: %v", database, err)
	}
	if !ok {
		return nil, errors.Wrapf(ErrSourceUnavailable, "source database %q does not exist", database)
	}

	if err := o.dest.Snapshot(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to snapshot destination")
	}

	units, err := enumerate(ctx, o.source)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Policy: o.cfg.Policy}
	for _, unit := range units {
		exists, err := o.dest.Exists(ctx, unit)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to check destination for %s", unit)
		}
		plan.Entries = append(plan.Entries, PlanEntry{
			Unit:   unit,
			Action: Decide(exists, o.cfg.Policy),
		})
	}

	log.Debug().Int("units", len(plan.Entries)).Msg("Built transfer plan")
	return plan, nil
}

// Run executes a plan. Units run in a bounded pool and a failing unit
// never cancels its siblings: every unit always yields a result. The
// returned error covers destination preparation only; per-unit failures
// live in the summary.
func (o *Orchestrator) Run(ctx context.Context, plan *Plan, reporter Reporter) (*Summary, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}

	if err := o.dest.Prepare(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to prepare destination")
	}

	p := &pipeline{source: o.source, dest: o.dest, reporter: reporter, cfg: o.cfg}

	var (
		mu      sync.Mutex
		summary Summary
	)
	collect := func(r Result) {
		mu.Lock()
		summary.Results = append(summary.Results, r)
		mu.Unlock()
	}

	g := &errgroup.Group{}
	g.SetLimit(o.cfg.TableParallelism)

	for _, entry := range plan.Entries {
		g.Go(func() error {
			switch entry.Action {
			case ActionSkip:
				log.Info().Stringer("unit", entry.Unit).Msg("Skipping existing destination")
				reporter.Report(Event{Unit: entry.Unit.String(), Terminal: true, Skipped: true})
				collect(Result{
					Unit:   entry.Unit,
					Status: StatusSkipped,
					Reason: "destination already exists",
				})
			case ActionFail:
				err := errors.Errorf("destination %s already exists", entry.Unit.Dest())
				log.Error().Err(err).Stringer("unit", entry.Unit).Msg("Refusing to transfer")
				reporter.Report(Event{Unit: entry.Unit.String(), Terminal: true, Failed: true})
				collect(Result{
					Unit:   entry.Unit,
					Status: StatusFailed,
					Reason: err.Error(),
					Err:    err,
				})
			default:
				collect(p.run(ctx, entry.Unit, entry.Action == ActionOverwrite))
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	succeeded, skipped, failed := summary.Counts()
	log.Info().
		Int("succeeded", succeeded).
		Int("skipped", skipped).
		Int("failed", failed).
		Int64("rows", summary.Rows()).
		Msg("Run finished")

	return &summary, nil
}
