package transfer

import (
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Stats is an aggregate snapshot of a run in flight.
type Stats struct {
	Rows      int64
	UnitsDone int
	Units     int
	Ratio     float64
	ETA       time.Duration
}

// Tracker aggregates progress events across concurrently running units
// and optionally renders a progress bar. Accounting is identical whether
// rendering is on or off.
type Tracker struct {
	mu        sync.Mutex
	units     map[string]Event
	totalRows int64
	total     int
	done      int
	start     time.Time
	bar       *progressbar.ProgressBar
}

// NewTracker sets up tracking for a run of totalUnits units and
// totalRows estimated rows. render controls the bar only.
func NewTracker(totalUnits int, totalRows int64, render bool) *Tracker {
	t := &Tracker{
		units:     make(map[string]Event, totalUnits),
		totalRows: totalRows,
		total:     totalUnits,
		start:     time.Now(),
	}
	if render {
		t.bar = progressbar.NewOptions64(totalRows,
			progressbar.OptionSetDescription("transferring"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("rows"),
			progressbar.OptionClearOnFinish(),
		)
	}
	return t
}

// Report implements Reporter. Events carry cumulative per-unit counts so
// replacing the stored event keeps the totals exact.
func (t *Tracker) Report(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.units[e.Unit]
	t.units[e.Unit] = e
	if e.Terminal && !prev.Terminal {
		t.done++
	}
	if t.bar != nil {
		t.bar.Set64(t.rowsLocked()) //nolint:errcheck
	}
}

func (t *Tracker) rowsLocked() int64 {
	var rows int64
	for _, e := range t.units {
		rows += e.Rows
	}
	return rows
}

func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		Rows:      t.rowsLocked(),
		UnitsDone: t.done,
		Units:     t.total,
	}
	if t.totalRows > 0 {
		s.Ratio = float64(s.Rows) / float64(t.totalRows)
	}
	if s.Rows > 0 && s.Rows < t.totalRows {
		elapsed := time.Since(t.start)
		s.ETA = time.Duration(float64(elapsed) / float64(s.Rows) * float64(t.totalRows-s.Rows))
	}
	return s
}

// Finish clears the bar once the run is over.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bar != nil {
		t.bar.Finish() //nolint:errcheck
	}
}
