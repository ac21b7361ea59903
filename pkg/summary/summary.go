package summary

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/reportoor/pkg/report"
)

// reserveChars is kept free for the truncation notice.
const reserveChars = 100

// Markdown renders a report as a markdown summary. Non-passing test rows are
// written last and truncated so the output stays within maxChars. A
// non-positive maxChars disables truncation.
func Markdown(r *report.Report, maxChars int) string {
	var sb strings.Builder

	sb.Grow(4096)

	writeOverview(&sb, r)
	writeTally(&sb, r.Tally())

	rows := collectRows(r)
	writeRows(&sb, rows, maxChars)

	return sb.String()
}

func writeOverview(sb *strings.Builder, r *report.Report) {
	sb.WriteString("# Test Report\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Status | %s |\n", statusLabel(r.Status))
	fmt.Fprintf(sb, "| Started | %s |\n",
		r.StartTime().UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(sb, "| Duration | %s |\n",
		units.HumanDuration(time.Duration(r.DurationInMs)*time.Millisecond))
	sb.WriteByte('\n')
}

func writeTally(sb *strings.Builder, t report.Tally) {
	sb.WriteString("## Results\n\n")
	sb.WriteString("| Total | Passed | Failed | Flaky | Skipped |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(sb, "| %d | %d | %d | %d | %d |\n\n",
		t.Total, t.Expected, t.Unexpected, t.Flaky, t.Skipped)
}

type row struct {
	outcome  report.Outcome
	location string
	title    string
	project  string
	duration float64
}

// collectRows returns failed tests followed by flaky ones, each in report
// order.
func collectRows(r *report.Report) []row {
	rows := make([]row, 0)

	for _, outcome := range []report.Outcome{report.OutcomeUnexpected, report.OutcomeFlaky} {
		for _, res := range r.Results {
			if res.Outcome != outcome {
				continue
			}

			rows = append(rows, row{
				outcome:  res.Outcome,
				location: res.Location,
				title:    res.Title,
				project:  res.Project,
				duration: res.DurationInMs,
			})
		}
	}

	return rows
}

func writeRows(sb *strings.Builder, rows []row, maxChars int) {
	if len(rows) == 0 {
		return
	}

	sb.WriteString("## Tests Needing Attention\n\n")
	sb.WriteString("| Outcome | Location | Title | Project | Duration |\n")
	sb.WriteString("|---|---|---|---|---|\n")

	for i, rw := range rows {
		line := fmt.Sprintf("| %s | `%s` | %s | %s | %s |\n",
			outcomeLabel(rw.outcome),
			escapeCell(rw.location),
			escapeCell(rw.title),
			escapeCell(rw.project),
			formatMillis(rw.duration),
		)

		if maxChars > 0 && sb.Len()+len(line)+reserveChars > maxChars {
			fmt.Fprintf(sb,
				"\n*%d more test(s) not shown "+
					"(output truncated at %d chars)*\n",
				len(rows)-i, maxChars)

			return
		}

		sb.WriteString(line)
	}
}

func statusLabel(s report.Status) string {
	switch s {
	case report.StatusPassed:
		return "✅ passed"
	case report.StatusFailed:
		return "❌ failed"
	default:
		return string(s)
	}
}

func outcomeLabel(o report.Outcome) string {
	if o == report.OutcomeUnexpected {
		return "failed"
	}

	return string(o)
}

// escapeCell keeps pipes in titles from breaking the table.
// escapeCell keeps a value inside its table cell.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func formatMillis(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.0fms", ms)
	}

	return fmt.Sprintf("%.1fs", ms/1000)
}
