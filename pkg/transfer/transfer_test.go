package transfer

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestMain(m *testing.M) {
	log.Logger = zerolog.Nop()
	os.Exit(m.Run())
}

type fakeSource struct {
	databases []string
	tables    map[string][]TableInfo
	rows      map[string][]Row

	listErr  error
	queryErr error
	// fetchErrAtOffset fails the chunk starting at this offset, -1 for
	// none.
	fetchErrAtOffset int64
	// fetchDelay lets tests force out-of-order chunk completion.
	fetchDelay func(offset int64) time.Duration

	queryCalls atomic.Int32
	fetchCalls atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tables:           make(map[string][]TableInfo),
		rows:             make(map[string][]Row),
		fetchErrAtOffset: -1,
	}
}

func (s *fakeSource) addTable(database, table string, rowCount int) {
	rows := make([]Row, rowCount)
	for i := range rows {
		rows[i] = Row{"id": int64(i), "name": fmt.Sprintf("row-%d", i)}
	}
	s.tables[database] = append(s.tables[database], TableInfo{Name: table, RowCount: int64(rowCount)})
	s.rows[database+"."+table] = rows
	if !s.hasDatabase(database) {
		s.databases = append(s.databases, database)
	}
}

func (s *fakeSource) hasDatabase(database string) bool {
	for _, db := range s.databases {
		if db == database {
			return true
		}
	}
	return false
}

func (s *fakeSource) DatabaseExists(ctx context.Context, database string) (bool, error) {
	return s.hasDatabase(database), nil
}

func (s *fakeSource) ListTables(ctx context.Context, database string) ([]TableInfo, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tables[database], nil
}

func (s *fakeSource) RunQuery(ctx context.Context, unit UnitOfWork) (QueryJob, error) {
	s.queryCalls.Add(1)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	rows, ok := s.rows[unit.Source()]
	if !ok {
		return nil, errors.Errorf("no such table %s", unit.Source())
	}
	return &fakeJob{source: s, rows: rows}, nil
}

type fakeJob struct {
	source *fakeSource
	rows   []Row
}

func (j *fakeJob) Columns() []string { return []string{"id", "name"} }
func (j *fakeJob) RowCount() int64   { return int64(len(j.rows)) }

func (j *fakeJob) FetchChunk(ctx context.Context, offset, limit int64) ([]Row, error) {
	j.source.fetchCalls.Add(1)
	if j.source.fetchDelay != nil {
		time.Sleep(j.source.fetchDelay(offset))
	}
	if at := j.source.fetchErrAtOffset; at >= 0 && offset == at {
		return nil, errors.New("fetch blew up")
	}
	end := offset + limit
	if end > int64(len(j.rows)) {
		end = int64(len(j.rows))
	}
	return j.rows[offset:end], nil
}

type fakeDest struct {
	mu          sync.Mutex
	existing    map[string]bool
	writers     map[string]*memWriter
	snapshotted bool
	prepared    bool

	snapshotErr error
	prepareErr  error
	openErr     error
	writeErr    error
}

func newFakeDest(existing ...string) *fakeDest {
	d := &fakeDest{
		existing: make(map[string]bool),
		writers:  make(map[string]*memWriter),
	}
	for _, name := range existing {
		d.existing[name] = true
	}
	return d
}

func (d *fakeDest) Snapshot(ctx context.Context) error {
	d.snapshotted = true
	return d.snapshotErr
}

func (d *fakeDest) Prepare(ctx context.Context) error {
	d.prepared = true
	return d.prepareErr
}

func (d *fakeDest) Exists(ctx context.Context, unit UnitOfWork) (bool, error) {
	if !d.snapshotted {
		return false, errors.New("not snapshotted")
	}
	return d.existing[unit.Dest()], nil
}

func (d *fakeDest) OpenWriter(ctx context.Context, unit UnitOfWork, columns []string, overwrite bool) (ChunkWriter, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	w := &memWriter{overwrote: overwrite, writeErr: d.writeErr}
	d.mu.Lock()
	d.writers[unit.Dest()] = w
	d.mu.Unlock()
	return w, nil
}

func (d *fakeDest) writer(dest string) *memWriter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writers[dest]
}

type memWriter struct {
	seqs      []int
	rows      []Row
	overwrote bool
	closed    bool
	aborted   bool
	writeErr  error
}

func (w *memWriter) WriteChunk(ctx context.Context, chunk *Chunk) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.seqs = append(w.seqs, chunk.Seq)
	w.rows = append(w.rows, chunk.Rows...)
	return nil
}

func (w *memWriter) Close() error {
	w.closed = true
	return nil
}

func (w *memWriter) Abort() error {
	w.aborted = true
	return nil
}

type recordingReporter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingReporter) Report(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingReporter) terminal(unit string) (Event, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last Event
	count := 0
	for _, e := range r.events {
		if e.Unit == unit && e.Terminal {
			last = e
			count++
		}
	}
	return last, count
}

func testConfig() Config {
	return Config{
		TableParallelism: DefaultTableParallelism,
		FetchParallelism: DefaultFetchParallelism,
		ChunkSize:        3,
	}
}
