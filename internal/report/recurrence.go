package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"dayplan/internal/schedule"
)

// DescribeRecurrence says in words when t occurs, resolving the same
// fallbacks the engine uses for tasks without an explicit weekday or pattern.
func DescribeRecurrence(t schedule.Task) string {
	switch t.Frequency {
	case schedule.FrequencyOnce:
		return "once"
	case schedule.FrequencyDaily:
		return "every day"
	case schedule.FrequencyWeekly:
		wd := time.Monday
		switch {
		case t.Weekday != nil && *t.Weekday >= 0 && *t.Weekday <= 6:
			wd = time.Weekday(*t.Weekday)
		default:
			if created, ok := createdAt(t); ok {
				wd = created.Weekday()
			}
		}
		return "every " + wd.String()
	case schedule.FrequencyMonthly:
		return describeMonthly(t)
	default:
		return fmt.Sprintf("unknown frequency %q", t.Frequency)
	}
}

func describeMonthly(t schedule.Task) string {
	p := t.MonthlyPattern
	if p == nil {
		day := 1
		if created, ok := createdAt(t); ok {
			day = created.Day()
		}
		return humanize.Ordinal(day) + " of the month"
	}
	switch p.Type {
	case schedule.PatternFirst:
		return "1st of the month"
	case schedule.PatternLast:
		return "last day of the month"
	case schedule.PatternDate:
		return humanize.Ordinal(p.Date) + " of the month"
	case schedule.PatternWeekday:
		return fmt.Sprintf("%s %s of the month", humanize.Ordinal(p.Occurrence), time.Weekday(p.Weekday))
	default:
		return "monthly"
	}
}

func createdAt(t schedule.Task) (time.Time, bool) {
	raw := strings.TrimSpace(t.CreatedDate)
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.Local(), true
	}
	if ts, err := time.ParseInLocation(time.DateOnly, raw, time.Local); err == nil {
		return ts, true
	}
	return time.Time{}, false
}
