package report

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a report as indented JSON.
func Encode(r *Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}

	return data, nil
}

// Decode parses and validates a report.
func Decode(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}

	if r.Results == nil {
		r.Results = make([]Result, 0)
	}

	if err := ValidateReport(&r); err != nil {
		return nil, fmt.Errorf("validating report: %w", err)
	}

	return &r, nil
}
