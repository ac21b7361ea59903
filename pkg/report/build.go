package report

import (
	"time"
)

// RunMeta carries the run-level data delivered when the runner finishes.
type RunMeta struct {
	StartedAt time.Time
	Duration  time.Duration
	Status    Status
}

// Build wraps resolved results with the run metadata. The results are used
// as given; Build neither sorts nor filters them.
func Build(meta RunMeta, results []Result) *Report {
	if results == nil {
		results = make([]Result, 0)
	}

	return &Report{
		StartedAt:    meta.StartedAt.UnixMilli(),
		DurationInMs: meta.Duration.Milliseconds(),
		Status:       meta.Status,
		Results:      results,
	}
}

// StartTime returns StartedAt as a time.Time.
func (r *Report) StartTime() time.Time {
	return time.UnixMilli(r.StartedAt)
}

// Tally counts canonical results per outcome.
type Tally struct {
	Total      int `json:"total"`
	Expected   int `json:"expected"`
	Unexpected int `json:"unexpected"`
	Flaky      int `json:"flaky"`
	Skipped    int `json:"skipped"`
}

// Tally counts the report's results by outcome.
func (r *Report) Tally() Tally {
	t := Tally{Total: len(r.Results)}

	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeExpected:
			t.Expected++
		case OutcomeUnexpected:
			t.Unexpected++
		case OutcomeFlaky:
			t.Flaky++
		case OutcomeSkipped:
			t.Skipped++
		}
	}

	return t
}
