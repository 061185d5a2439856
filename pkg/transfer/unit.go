package transfer

import (
	"fmt"
	"time"
)

// TimeWindow bounds the rows of a unit by its partition column.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// UnitOfWork identifies one table to clone or one table to export into a
// local file. Units are enumerated once at the start of a run and are
// immutable for its duration.
type UnitOfWork struct {
	SourceDatabase string `json:"source_database"`
	SourceTable    string `json:"source_table"`

	DestDatabase string `json:"dest_database,omitempty"`
	DestTable    string `json:"dest_table,omitempty"`

	// DestPath is set instead of DestDatabase/DestTable when the
	// destination is a local columnar file.
	DestPath string `json:"dest_path,omitempty"`

	Window          *TimeWindow `json:"window,omitempty"`
	PartitionColumn string      `json:"partition_column,omitempty"`

	// RowEstimate comes from the source table listing metadata. It is a
	// planning hint, never a transfer bound.
	RowEstimate int64 `json:"row_estimate"`
}

func (u UnitOfWork) Source() string {
	return u.SourceDatabase + "." + u.SourceTable
}

func (u UnitOfWork) Dest() string {
	if u.DestPath != "" {
		return u.DestPath
	}
	return u.DestDatabase + "." + u.DestTable
}

func (u UnitOfWork) String() string {
	return fmt.Sprintf("%s -> %s", u.Source(), u.Dest())
}

// Status is the terminal state of one unit.
type Status int

const (
	StatusSucceeded Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the per-unit outcome. Every unit of a run produces exactly
// one result, skipped and failed ones included.
type Result struct {
	Unit     UnitOfWork
	Status   Status
	Rows     int64
	Chunks   int
	Duration time.Duration
	Reason   string
	Err      error
}

// Summary aggregates every unit's result for the run. Nothing is
// discarded: the final report and the process exit status both derive
// from it.
type Summary struct {
	Results []Result
}

func (s *Summary) Failed() bool {
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			return true
		}
	}
	return false
}

func (s *Summary) Counts() (succeeded, skipped, failed int) {
	for _, r := range s.Results {
		switch r.Status {
		case StatusSucceeded:
			succeeded++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return succeeded, skipped, failed
}

func (s *Summary) Rows() int64 {
	var rows int64
	for _, r := range s.Results {
		rows += r.Rows
	}
	return rows
}
