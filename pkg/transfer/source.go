package transfer

import "context"

// TableInfo is one table from the source listing. RowCount is metadata
// and may be zero for freshly written tables.
type TableInfo struct {
	Name     string
	RowCount int64
}

// Source is the query/listing side of the data platform. Transport-level
// retries belong to the implementation behind this interface; the engine
// never retries on its own.
type Source interface {
	DatabaseExists(ctx context.Context, database string) (bool, error)
	ListTables(ctx context.Context, database string) ([]TableInfo, error)
	RunQuery(ctx context.Context, unit UnitOfWork) (QueryJob, error)
}

// QueryJob is a completed query whose result can be fetched in bounded
// row ranges, independently and in any order.
type QueryJob interface {
	Columns() []string
	RowCount() int64
	FetchChunk(ctx context.Context, offset, limit int64) ([]Row, error)
}

// Destination is a sink for whole units: a remote database or a local
// directory of columnar files.
type Destination interface {
	// Snapshot runs once per run, before enumeration, and records
	// existing destination state for Exists. It must not mutate the
	// destination: dry runs go no further than this.
	Snapshot(ctx context.Context) error

	// Prepare creates the destination database or output directory.
	// Called on the live path only, after planning.
	Prepare(ctx context.Context) error

	// Exists answers from the Snapshot state, so decisions stay
	// deterministic against this run's own writes.
	Exists(ctx context.Context, unit UnitOfWork) (bool, error)

	// OpenWriter opens the per-unit sink. With overwrite set, prior
	// destination content is replaced before the first chunk arrives.
	OpenWriter(ctx context.Context, unit UnitOfWork, columns []string, overwrite bool) (ChunkWriter, error)
}

// ChunkWriter appends the chunks of one unit. It is called in strictly
// increasing sequence order and must not assume prior chunks are still
// buffered.
type ChunkWriter interface {
	WriteChunk(ctx context.Context, chunk *Chunk) error

	// Close finalizes the sink after every chunk was written.
	Close() error

	// Abort discards the sink after a failed transfer, removing partial
	// destination content where the sink supports it.
	Abort() error
}
