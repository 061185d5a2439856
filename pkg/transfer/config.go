package transfer

import "github.com/pkg/errors"

const (
	DefaultTableParallelism = 2
	DefaultFetchParallelism = 4
	DefaultCloneChunkSize   = 10_000
	DefaultExportChunkSize  = 100_000

	// maxChunksInMem bounds the fetcher-to-writer channel so slow sinks
	// apply backpressure instead of accumulating fetched chunks.
	maxChunksInMem = 4
)

// Config holds the engine knobs shared by every command.
type Config struct {
	// TableParallelism is the number of units transferred at once.
	TableParallelism int
	// FetchParallelism is the number of concurrent chunk fetches per unit.
	FetchParallelism int
	// ChunkSize is the maximum rows per chunk.
	ChunkSize int64

	Policy ExistingPolicy
}

func (c Config) validate() error {
	if c.TableParallelism < 1 {
		return errors.Errorf("table parallelism must be positive, got %d", c.TableParallelism)
	}
	if c.FetchParallelism < 1 {
		return errors.Errorf("fetch parallelism must be positive, got %d", c.FetchParallelism)
	}
	if c.ChunkSize < 1 {
		return errors.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	return nil
}
