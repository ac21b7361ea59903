package report

import (
	"fmt"
)

// Outcome is the verdict recorded for a single test observation.
type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeExpected   Outcome = "expected"
	OutcomeUnexpected Outcome = "unexpected"
	OutcomeFlaky      Outcome = "flaky"
)

// Status is the overall status of a test run.
type Status string

const (
	StatusPassed      Status = "passed"
	StatusFailed      Status = "failed"
	StatusTimedOut    Status = "timedout"
	StatusInterrupted Status = "interrupted"
	StatusUnknown     Status = "unknown"
)

// Result is one observation of one test execution. After resolution it is
// the canonical record for a test id.
type Result struct {
	ID           string  `json:"id"`
	Project      string  `json:"project"`
	Location     string  `json:"location"`
	Title        string  `json:"title"`
	Outcome      Outcome `json:"outcome"`
	DurationInMs float64 `json:"durationInMs"`
}

// Report is the persisted summary of a single test run.
type Report struct {
	StartedAt    int64    `json:"startedAt"`
	DurationInMs int64    `json:"durationInMs"`
	Status       Status   `json:"status"`
	Results      []Result `json:"results"`
}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSkipped, OutcomeExpected, OutcomeUnexpected, OutcomeFlaky:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known run status.
func (s Status) Valid() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusTimedOut, StatusInterrupted, StatusUnknown:
		return true
	default:
		return false
	}
}

// ValidateResult checks a single result record.
func ValidateResult(r *Result) error {
	if r.ID == "" {
		return fmt.Errorf("result id is required")
	}

	if !r.Outcome.Valid() {
		return fmt.Errorf("result %q: unknown outcome %q", r.ID, r.Outcome)
	}

	if r.DurationInMs < 0 {
		return fmt.Errorf("result %q: negative duration %v", r.ID, r.DurationInMs)
	}

	return nil
}

// ValidateReport checks the report envelope and every result in it.
func ValidateReport(r *Report) error {
	if !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}

	if r.DurationInMs < 0 {
		return fmt.Errorf("negative duration %d", r.DurationInMs)
	}

	seen := make(map[string]struct{}, len(r.Results))

	for i := range r.Results {
		if err := ValidateResult(&r.Results[i]); err != nil {
			return fmt.Errorf("results[%d]: %w", i, err)
		}

		if _, dup := seen[r.Results[i].ID]; dup {
			return fmt.Errorf("results[%d]: duplicate id %q", i, r.Results[i].ID)
		}

		seen[r.Results[i].ID] = struct{}{}
	}

	return nil
}

// Failures returns the locations of all results whose outcome is unexpected,
// in report order.
func (r *Report) Failures() []string {
	locations := make([]string, 0, len(r.Results))

	for _, res := range r.Results {
		if res.Outcome == OutcomeUnexpected {
			locations = append(locations, res.Location)
		}
	}

	return locations
}
