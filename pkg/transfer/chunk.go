package transfer

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Row is one record keyed by column name.
type Row map[string]any

// ChunkMeta addresses one bounded row range of a unit's query result.
// Sequence numbers are contiguous from 0 and ranges never overlap.
type ChunkMeta struct {
	Seq    int
	Offset int64
	Limit  int64
}

// Chunk is the fetched content of one ChunkMeta. Chunks live inside a
// single pipeline invocation and are never shared across units.
type Chunk struct {
	ChunkMeta
	Rows []Row
}

// SplitIntoChunks slices totalRows into chunk metas of at most chunkSize
// rows each.
func SplitIntoChunks(totalRows, chunkSize int64) []ChunkMeta {
	if totalRows <= 0 {
		return nil
	}
	metas := make([]ChunkMeta, 0, totalRows/chunkSize+1)
	seq := 0
	for offset := int64(0); offset < totalRows; offset += chunkSize {
		limit := chunkSize
		if rest := totalRows - offset; rest < limit {
			limit = rest
		}
		metas = append(metas, ChunkMeta{Seq: seq, Offset: offset, Limit: limit})
		seq++
	}
	log.Debug().
		Int64("rows", totalRows).
		Int64("chunk_size", chunkSize).
		Int("chunks", len(metas)).
		Msg("Split rows into chunks")
	return metas
}

// ChunkPool hands out chunk metas to concurrent fetchers. An empty pool
// is valid: a zero-row table transfers no chunks.
type ChunkPool struct {
	mu         sync.Mutex
	chunks     []ChunkMeta
	currentIdx int
}

func NewChunkPool(metas []ChunkMeta) *ChunkPool {
	return &ChunkPool{chunks: metas}
}

func (p *ChunkPool) Next() (ChunkMeta, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentIdx >= len(p.chunks) {
		return ChunkMeta{}, false
	}

	m := p.chunks[p.currentIdx]
	p.currentIdx++

	return m, true
}

func (p *ChunkPool) Len() int {
	return len(p.chunks)
}
