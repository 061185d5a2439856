package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"petit-cli/pkg/transfer"
)

func newClientHTTP() *fasthttp.Client {
	return &fasthttp.Client{
		MaxConnsPerHost:           8,
		MaxIdleConnDuration:       time.Minute,
		MaxIdemponentCallAttempts: 1,
		ReadTimeout:               time.Minute,
		WriteTimeout:              time.Minute,
		MaxConnWaitTimeout:        time.Second * 30,
	}
}

type goroutineLoggingHook struct{}

func (h goroutineLoggingHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	e.Int("goroutine_id", getGoroutineID())
}

func getGoroutineID() int {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	idField := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))[0]
	id, err := strconv.Atoi(idField)
	if err != nil {
		panic(fmt.Sprintf("cannot get goroutine id: %v", err))
	}
	return id
}

// parseWindow builds the optional time window from the two CLI bounds.
// Both must be given together.
func parseWindow(start, end string) (*transfer.TimeWindow, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, errors.New("start-ts and end-ts must be set together")
	}
	startTS, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse start-ts")
	}
	endTS, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse end-ts")
	}
	if !endTS.After(startTS) {
		return nil, errors.New("end-ts must be after start-ts")
	}
	return &transfer.TimeWindow{Start: startTS, End: endTS}, nil
}

func renderPlan(plan *transfer.Plan, asJSON bool) error {
	counts := plan.Counts()

	if asJSON {
		out := struct {
			Policy  string               `json:"policy"`
			Counts  transfer.PlanCounts  `json:"counts"`
			Entries []transfer.PlanEntry `json:"entries"`
		}{
			Policy:  plan.Policy.String(),
			Counts:  counts,
			Entries: plan.Entries,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Dry run, policy %q:\n", plan.Policy)
	for _, e := range plan.Entries {
		switch e.Action {
		case transfer.ActionOverwrite:
			fmt.Printf("  %-9s %s (existing destination data will be lost)\n", e.Action, e.Unit)
		default:
			fmt.Printf("  %-9s %s\n", e.Action, e.Unit)
		}
	}
	fmt.Printf("Planned: %d create, %d skip, %d overwrite, %d fail, ~%d rows\n",
		counts.Create, counts.Skip, counts.Overwrite, counts.Fail, counts.EstimatedRows)
	if counts.Fail > 0 {
		fmt.Println("Some destinations already exist. Use --skip-existing or --overwrite.")
	}
	return nil
}

func renderSummary(summary *transfer.Summary) {
	for _, r := range summary.Results {
		switch r.Status {
		case transfer.StatusFailed:
			fmt.Printf("  %-9s %s: %s\n", r.Status, r.Unit, r.Reason)
		case transfer.StatusSkipped:
			fmt.Printf("  %-9s %s\n", r.Status, r.Unit)
		default:
			fmt.Printf("  %-9s %s: %d rows in %d chunks (%s)\n",
				r.Status, r.Unit, r.Rows, r.Chunks, r.Duration.Round(time.Millisecond))
		}
	}
	succeeded, skipped, failed := summary.Counts()
	fmt.Printf("Done: %d succeeded, %d skipped, %d failed, %d rows\n",
		succeeded, skipped, failed, summary.Rows())
}
