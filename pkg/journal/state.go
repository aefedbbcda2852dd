package journal

import (
	"fmt"
	"strconv"
	"time"
)

// Status of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run state hash fields.
const (
	fieldStatus       = "status"
	fieldPagesRead    = "pages_read"
	fieldPagesWritten = "pages_written"
	fieldPagesFailed  = "pages_failed"
	fieldStartedAt    = "started_at"
	fieldFinishedAt   = "finished_at"
	fieldLastUpdate   = "last_update"
	fieldError        = "error"
)

// RunState is the progress of one migration run.
type RunState struct {
	RunID        string
	Status       Status
	PagesRead    int
	PagesWritten int
	PagesFailed  int
	StartedAt    time.Time
	FinishedAt   time.Time
	LastUpdate   time.Time

	// Error is the migration error of a failed run.
	Error string
}

// Done reports whether the run has finished, successfully or not.
func (s *RunState) Done() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Pending returns the number of pages read but neither written nor failed.
func (s *RunState) Pending() int {
	n := s.PagesRead - s.PagesWritten - s.PagesFailed
	if n < 0 {
		return 0
	}
	return n
}

// IsStale returns true if the state has not been updated within maxAge.
func (s *RunState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// parseRunState builds a RunState from the fields of the run hash.
func parseRunState(runID string, fields map[string]string) (*RunState, error) {
	state := &RunState{
		RunID:  runID,
		Status: Status(fields[fieldStatus]),
		Error:  fields[fieldError],
	}

	counters := []struct {
		field string
		dst   *int
	}{
		{fieldPagesRead, &state.PagesRead},
		{fieldPagesWritten, &state.PagesWritten},
		{fieldPagesFailed, &state.PagesFailed},
	}
	for _, c := range counters {
		v, ok := fields[c.field]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, c.field, err)
		}
		*c.dst = n
	}

	timestamps := []struct {
		field string
		dst   *time.Time
	}{
		{fieldStartedAt, &state.StartedAt},
		{fieldFinishedAt, &state.FinishedAt},
		{fieldLastUpdate, &state.LastUpdate},
	}
	for _, ts := range timestamps {
		v, ok := fields[ts.field]
		if !ok || v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, ts.field, err)
		}
		*ts.dst = t
	}

	return state, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
