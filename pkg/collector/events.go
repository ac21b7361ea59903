package collector

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"time"

	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/mitchellh/mapstructure"
)

const (
	// EventTestEnd is emitted once per finished test attempt.
	EventTestEnd = "test_end"
	// EventRunEnd is emitted once when the run finishes.
	EventRunEnd = "run_end"

	maxEventSize = 4 * 1024 * 1024
)

// ErrRunNotFinished is returned when an event stream ends without run_end.
var ErrRunNotFinished = errors.New("event stream ended without run_end")

// TestEndEvent is the wire form of a per-test completion callback.
type TestEndEvent struct {
	ID         string         `json:"id"`
	TitlePath  []string       `json:"title_path"`
	Location   Location       `json:"location"`
	Outcome    report.Outcome `json:"outcome"`
	DurationMs float64        `json:"duration_ms"`
}

// RunEndEvent is the wire form of the run-completion callback.
type RunEndEvent struct {
	// StartTime is the run start as epoch milliseconds.
	StartTime  int64         `json:"start_time"`
	DurationMs int64         `json:"duration_ms"`
	Status     report.Status `json:"status"`
}

// decodeEvent decodes the payload of a generic event into out.
func decodeEvent(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.DecodeHookFuncKind(rejectFractionalInts),
		TagName:    "json",
		Result:     out,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	return dec.Decode(raw)
}

// rejectFractionalInts refuses JSON numbers with a fractional part for
// integer fields such as line, column and start_time.
func rejectFractionalInts(from, to reflect.Kind, data any) (any, error) {
	if from != reflect.Float64 && from != reflect.Float32 {
		return data, nil
	}

	switch to {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}

	f := reflect.ValueOf(data).Float()
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", f)
	}

	return data, nil
}

// Ingest consumes a newline-delimited JSON event stream, feeding test_end
// events to OnTestEnd and finishing the run on run_end. Unknown event types
// are skipped.
func (c *Collector) Ingest(ctx context.Context, r io.Reader) (*report.Report, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var (
		runEnd *RunEndEvent
		line   int
	)

	for scanner.Scan() {
		line++

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("line %d: parsing event: %w", line, err)
		}

		kind, _ := raw["type"].(string)
		delete(raw, "type")

		switch kind {
		case EventTestEnd:
			var ev TestEndEvent
			if err := decodeEvent(raw, &ev); err != nil {
				return nil, fmt.Errorf("line %d: decoding %s: %w", line, kind, err)
			}

			if ev.ID == "" {
				return nil, fmt.Errorf("line %d: %s without id", line, kind)
			}

			if !ev.Outcome.Valid() {
				return nil, fmt.Errorf("line %d: unknown outcome %q", line, ev.Outcome)
			}

			if runEnd != nil {
				c.log.WithField("line", line).Warn("Ignoring test_end after run_end")

				continue
			}

			c.OnTestEnd(TestCase{
				ID:        ev.ID,
				TitlePath: ev.TitlePath,
				Location:  ev.Location,
				Outcome:   ev.Outcome,
			}, TestResult{
				Duration: time.Duration(ev.DurationMs * float64(time.Millisecond)),
			})
		case EventRunEnd:
			var ev RunEndEvent
			if err := decodeEvent(raw, &ev); err != nil {
				return nil, fmt.Errorf("line %d: decoding %s: %w", line, kind, err)
			}

			if !ev.Status.Valid() {
				return nil, fmt.Errorf("line %d: unknown status %q", line, ev.Status)
			}

			runEnd = &ev
		default:
			c.log.WithFields(map[string]any{
				"line": line,
				"type": kind,
			}).Warn("Skipping unknown event")
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	if runEnd == nil {
		return nil, ErrRunNotFinished
	}

	return c.OnEnd(FullResult{
		StartTime: time.UnixMilli(runEnd.StartTime),
		Duration:  time.Duration(runEnd.DurationMs) * time.Millisecond,
		Status:    runEnd.Status,
	})
}
