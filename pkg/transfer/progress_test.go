package transfer

import (
	"fmt"
	"sync"
	"testing"
)

func TestTrackerTotalsUnderConcurrentReporting(t *testing.T) {
	const units = 10
	tracker := NewTracker(units, units*100, false)

	var wg sync.WaitGroup
	for i := 0; i < units; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unit := fmt.Sprintf("unit-%d", i)
			for rows := int64(10); rows <= 100; rows += 10 {
				tracker.Report(Event{Unit: unit, Rows: rows})
			}
			tracker.Report(Event{Unit: unit, Rows: 100, Terminal: true})
		}(i)
	}
	wg.Wait()

	stats := tracker.Snapshot()
	if stats.Rows != units*100 {
		t.Fatalf("got %d rows, want %d", stats.Rows, units*100)
	}
	if stats.UnitsDone != units {
		t.Fatalf("got %d units done, want %d", stats.UnitsDone, units)
	}
	if stats.Ratio != 1.0 {
		t.Fatalf("got ratio %v, want 1.0", stats.Ratio)
	}
}

func TestTrackerTerminalCountedOnce(t *testing.T) {
	tracker := NewTracker(1, 100, false)

	tracker.Report(Event{Unit: "u", Rows: 50})
	tracker.Report(Event{Unit: "u", Rows: 100, Terminal: true})
	tracker.Report(Event{Unit: "u", Rows: 100, Terminal: true})

	if stats := tracker.Snapshot(); stats.UnitsDone != 1 {
		t.Fatalf("got %d units done, want 1", stats.UnitsDone)
	}
}

func TestTrackerPartialProgress(t *testing.T) {
	tracker := NewTracker(2, 200, false)

	tracker.Report(Event{Unit: "a", Rows: 50})
	tracker.Report(Event{Unit: "b", Rows: 50})

	stats := tracker.Snapshot()
	if stats.Rows != 100 {
		t.Fatalf("got %d rows, want 100", stats.Rows)
	}
	if stats.Ratio != 0.5 {
		t.Fatalf("got ratio %v, want 0.5", stats.Ratio)
	}
	if stats.ETA <= 0 {
		t.Fatal("mid-run snapshot has no ETA")
	}
}
