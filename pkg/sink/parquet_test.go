package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"petit-cli/pkg/transfer"
)

func TestMain(m *testing.M) {
	log.Logger = zerolog.Nop()
	os.Exit(m.Run())
}

func openParquet(t *testing.T, path string) *parquet.File {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() }) //nolint:errcheck
	stat, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		t.Fatal(err)
	}
	return pf
}

func TestPath(t *testing.T) {
	got := Path("/tmp/out", "prod", "events")
	want := filepath.Join("/tmp/out", "prod_events.parquet")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDestinationWritesReadableFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	dest := NewDestination(dir)
	if err := dest.Prepare(ctx); err != nil {
		t.Fatal(err)
	}

	unit := transfer.UnitOfWork{
		SourceDatabase: "prod",
		SourceTable:    "events",
		DestPath:       Path(dir, "prod", "events"),
	}

	exists, err := dest.Exists(ctx, unit)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("fresh output path reported as existing")
	}

	columns := []string{"id", "name", "score"}
	w, err := dest.OpenWriter(ctx, unit, columns, false)
	if err != nil {
		t.Fatal(err)
	}

	chunks := [][]transfer.Row{
		{
			{"id": float64(1), "name": "a", "score": float64(0.5)},
			{"id": float64(2), "name": "b", "score": nil},
		},
		{
			{"id": float64(3), "name": nil, "score": float64(1.5)},
		},
	}
	for seq, rows := range chunks {
		chunk := &transfer.Chunk{
			ChunkMeta: transfer.ChunkMeta{Seq: seq, Offset: int64(seq * 2), Limit: int64(len(rows))},
			Rows:      rows,
		}
		if err := w.WriteChunk(ctx, chunk); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	exists, err = dest.Exists(ctx, unit)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("written file not reported as existing")
	}

	pf := openParquet(t, unit.DestPath)
	if pf.NumRows() != 3 {
		t.Fatalf("file holds %d rows, want 3", pf.NumRows())
	}
	if got := len(pf.Schema().Fields()); got != len(columns) {
		t.Fatalf("schema has %d fields, want %d", got, len(columns))
	}
}

func TestDestinationEmptyTableLeavesValidFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	dest := NewDestination(dir)
	if err := dest.Prepare(ctx); err != nil {
		t.Fatal(err)
	}

	unit := transfer.UnitOfWork{
		SourceDatabase: "prod",
		SourceTable:    "empty",
		DestPath:       Path(dir, "prod", "empty"),
	}
	w, err := dest.OpenWriter(ctx, unit, []string{"id"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	pf := openParquet(t, unit.DestPath)
	if pf.NumRows() != 0 {
		t.Fatalf("empty export holds %d rows", pf.NumRows())
	}
}

func TestDestinationOverwriteTruncates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	dest := NewDestination(dir)
	if err := dest.Prepare(ctx); err != nil {
		t.Fatal(err)
	}

	unit := transfer.UnitOfWork{
		SourceDatabase: "prod",
		SourceTable:    "events",
		DestPath:       Path(dir, "prod", "events"),
	}

	write := func(rows int) {
		w, err := dest.OpenWriter(ctx, unit, []string{"id"}, true)
		if err != nil {
			t.Fatal(err)
		}
		chunkRows := make([]transfer.Row, rows)
		for i := range chunkRows {
			chunkRows[i] = transfer.Row{"id": float64(i)}
		}
		chunk := &transfer.Chunk{
			ChunkMeta: transfer.ChunkMeta{Seq: 0, Offset: 0, Limit: int64(rows)},
			Rows:      chunkRows,
		}
		if err := w.WriteChunk(ctx, chunk); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}

	write(5)
	write(2)

	pf := openParquet(t, unit.DestPath)
	if pf.NumRows() != 2 {
		t.Fatalf("file holds %d rows after overwrite, want 2", pf.NumRows())
	}
}

func TestDestinationAbortRemovesPartialFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	dest := NewDestination(dir)
	if err := dest.Prepare(ctx); err != nil {
		t.Fatal(err)
	}

	unit := transfer.UnitOfWork{
		SourceDatabase: "prod",
		SourceTable:    "events",
		DestPath:       Path(dir, "prod", "events"),
	}
	w, err := dest.OpenWriter(ctx, unit, []string{"id"}, false)
	if err != nil {
		t.Fatal(err)
	}
	chunk := &transfer.Chunk{
		ChunkMeta: transfer.ChunkMeta{Seq: 0, Offset: 0, Limit: 1},
		Rows:      []transfer.Row{{"id": float64(1)}},
	}
	if err := w.WriteChunk(ctx, chunk); err != nil {
		t.Fatal(err)
	}
	if err := w.Abort(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(unit.DestPath); !os.IsNotExist(err) {
		t.Fatalf("partial file still present after abort: %v", err)
	}
	exists, err := dest.Exists(ctx, unit)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("aborted export reported as existing")
	}
}

func TestSchemaFromRowsTypes(t *testing.T) {
	rows := []transfer.Row{
		{"flag": nil, "count": nil, "label": nil},
		{"flag": true, "count": float64(3), "label": nil},
	}
	schema := schemaFromRows([]string{"flag", "count", "label"}, rows)

	fields := make(map[string]parquet.Field)
	for _, f := range schema.Fields() {
		fields[f.Name()] = f
	}
	if len(fields) != 3 {
		t.Fatalf("schema has %d fields, want 3", len(fields))
	}
	for name, f := range fields {
		if !f.Optional() {
			t.Fatalf("field %s is not optional", name)
		}
	}
}
