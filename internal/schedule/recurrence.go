package schedule

import (
	"strings"
	"time"

	logx "dayplan/pkg/logx"
)

// OccursOn reports whether t has an instance on date. now decides which day
// is "today" for once-tasks.
func (e *Engine) OccursOn(t Task, date, now time.Time) bool {
	return e.occursOn(t, e.localize(date), e.localize(now))
}

func (e *Engine) occursOn(t Task, date, now time.Time) bool {
	switch t.Frequency {
	case FrequencyOnce:
		return sameDay(date, now)
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return e.weeklyOccurs(t, date)
	case FrequencyMonthly:
		return e.monthlyOccurs(t, date)
	default:
		e.taskLog(t).Warn("unknown task frequency; task skipped", logx.String("frequency", string(t.Frequency)))
		return false
	}
}

func (e *Engine) weeklyOccurs(t Task, date time.Time) bool {
	if t.Weekday != nil {
		return int(date.Weekday()) == *t.Weekday
	}
	// Legacy tasks repeat on the weekday they were created.
	if created, ok := e.createdAt(t, date.Location()); ok {
		return date.Weekday() == created.Weekday()
	}
	return date.Weekday() == time.Monday
}

func (e *Engine) monthlyOccurs(t Task, date time.Time) bool {
	if t.MonthlyPattern != nil {
		return e.matchMonthlyPattern(t, *t.MonthlyPattern, date)
	}
	if created, ok := e.createdAt(t, date.Location()); ok {
		return date.Day() == created.Day()
	}
	return date.Day() == 1
}

func (e *Engine) matchMonthlyPattern(t Task, p MonthlyPattern, date time.Time) bool {
	switch p.Type {
	case PatternFirst:
		return date.Day() == 1
	case PatternLast:
		return date.AddDate(0, 0, 1).Month() != date.Month()
	case PatternDate:
		return date.Day() == min(p.Date, daysInMonth(date))
	case PatternWeekday:
		return IsNthWeekday(date, time.Weekday(p.Weekday), p.Occurrence)
	default:
		e.taskLog(t).Warn("unknown monthly pattern type; task skipped", logx.String("pattern", string(p.Type)))
		return false
	}
}

// IsNthWeekday reports whether date is the n-th (1-based) occurrence of wd in
// its month.
func IsNthWeekday(date time.Time, wd time.Weekday, n int) bool {
	if date.Weekday() != wd {
		return false
	}
	first := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
	firstMatch := 1 + (int(wd)-int(first.Weekday())+7)%7
	return (date.Day()-firstMatch)/7+1 == n
}

func (e *Engine) createdAt(t Task, loc *time.Location) (time.Time, bool) {
	raw := strings.TrimSpace(t.CreatedDate)
	if raw == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.In(loc), true
	}
	if ts, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
		return ts, true
	}
	e.taskLog(t).Warn("invalid createdDate; using default recurrence day", logx.String("created_date", raw))
	return time.Time{}, false
}
