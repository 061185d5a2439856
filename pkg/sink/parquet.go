// Package sink writes tables to local Parquet files.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"petit-cli/pkg/transfer"
)

// Path is the output file for one table export.
func Path(dir, database, table string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.parquet", database, table))
}

// Destination writes each unit to one Parquet file under its directory.
// Implements transfer.Destination.
type Destination struct {
	dir string
}

func NewDestination(dir string) *Destination {
	return &Destination{dir: dir}
}

// Snapshot is a no-op: existence answers come from the filesystem and
// planning must not touch it.
func (d *Destination) Snapshot(ctx context.Context) error {
	return nil
}

func (d *Destination) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %q", d.dir)
	}
	return nil
}

func (d *Destination) Exists(ctx context.Context, unit transfer.UnitOfWork) (bool, error) {
	_, err := os.Stat(unit.DestPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to stat %q", unit.DestPath)
}

func (d *Destination) OpenWriter(ctx context.Context, unit transfer.UnitOfWork, columns []string, overwrite bool) (transfer.ChunkWriter, error) {
	// O_TRUNC covers overwrite; create decisions already guarantee the
	// file is absent otherwise.
	file, err := os.OpenFile(unit.DestPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", unit.DestPath)
	}
	return &fileWriter{file: file, columns: columns}, nil
}

// fileWriter streams chunks into one Parquet file. The schema is
// inferred from the first chunk's values, so the writer is created
// lazily.
type fileWriter struct {
	file    *os.File
	columns []string
	writer  *parquet.GenericWriter[map[string]any]
}

func (w *fileWriter) WriteChunk(ctx context.Context, chunk *transfer.Chunk) error {
	if len(chunk.Rows) == 0 {
		return nil
	}
	if w.writer == nil {
		schema := schemaFromRows(w.columns, chunk.Rows)
		w.writer = parquet.NewGenericWriter[map[string]any](w.file, schema,
			parquet.Compression(&parquet.Snappy))
	}

	rows := make([]map[string]any, len(chunk.Rows))
	for i, r := range chunk.Rows {
		rows[i] = r
	}
	if _, err := w.writer.Write(rows); err != nil {
		return errors.Wrap(err, "failed to write parquet rows")
	}
	return nil
}

func (w *fileWriter) Close() error {
	if w.writer == nil {
		// Zero rows: still leave a valid empty file behind.
		w.writer = parquet.NewGenericWriter[map[string]any](w.file,
			schemaFromRows(w.columns, nil))
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close() //nolint:errcheck
		return errors.Wrap(err, "failed to close parquet writer")
	}
	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "failed to close output file")
	}
	log.Debug().Str("path", w.file.Name()).Msg("Closed parquet file")
	return nil
}

// Abort removes the partial file without finalizing a footer, so a
// failed export never leaves a readable-looking parquet file behind.
func (w *fileWriter) Abort() error {
	path := w.file.Name()
	w.file.Close() //nolint:errcheck
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove partial file %q", path)
	}
	return nil
}

// schemaFromRows infers an optional-leaf schema for the columns from the
// first non-nil value seen in each. Columns with only nil values, or no
// rows at all, fall back to string.
func schemaFromRows(columns []string, rows []transfer.Row) *parquet.Schema {
	fields := make(parquet.Group, len(columns))
	for _, col := range columns {
		var value any
		for _, row := range rows {
			if v := row[col]; v != nil {
				value = v
				break
			}
		}

		var field parquet.Node
		switch value.(type) {
		case bool:
			field = parquet.Optional(parquet.Leaf(parquet.BooleanType))
		case int, int32, int64:
			field = parquet.Optional(parquet.Leaf(parquet.Int64Type))
		case float32:
			field = parquet.Optional(parquet.Leaf(parquet.FloatType))
		case float64:
			// JSON numbers decode to float64.
			field = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		case []byte:
			field = parquet.Optional(parquet.Leaf(parquet.ByteArrayType))
		default:
			field = parquet.Optional(parquet.String())
		}
		fields[col] = field
	}
	return parquet.NewSchema("table_export", fields)
}
