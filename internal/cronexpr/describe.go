package cronexpr

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var wellKnown = map[string]string{
	"* * * * *":    "Every minute",
	"*/5 * * * *":  "Every 5 minutes",
	"*/15 * * * *": "Every 15 minutes",
	"*/30 * * * *": "Every 30 minutes",
	"0 * * * *":    "Every hour",
	"0 0 * * *":    "Daily at midnight",
	"0 9 * * *":    "Daily at 9:00 AM",
	"0 12 * * *":   "Daily at noon",
	"0 0 * * 0":    "Weekly on Sunday at midnight",
	"0 0 1 * *":    "Monthly on the 1st at midnight",
}

// Describe returns a human-readable label for a small set of well-known
// expressions, or a generic fallback.
func Describe(expr string) string {
	if label, ok := wellKnown[expr]; ok {
		return label
	}
	return fmt.Sprintf("Custom schedule: %s", expr)
}

// Upcoming returns the next n run instants computed by a full-grammar cron
// parser. It is a display helper only; the scheduler itself uses Next.
// Returns nil if the expression does not parse.
func Upcoming(expr string, from time.Time, n int) []time.Time {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil
	}
	runs := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = schedule.Next(t)
		if t.IsZero() {
			break
		}
		runs = append(runs, t)
	}
	return runs
}
