package schedule

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOccursOn(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	now := clockAt(day(2026, 10, 19), 8, 0, 0) // Monday

	weekly := func(wd *int, created string) Task {
		return Task{ID: "w", Frequency: FrequencyWeekly, Weekday: wd, CreatedDate: created}
	}
	monthly := func(p *MonthlyPattern, created string) Task {
		return Task{ID: "m", Frequency: FrequencyMonthly, MonthlyPattern: p, CreatedDate: created}
	}

	tests := []struct {
		name string
		task Task
		date time.Time
		want bool
	}{
		{name: "once today", task: Task{Frequency: FrequencyOnce}, date: day(2026, 10, 19), want: true},
		{name: "once other day", task: Task{Frequency: FrequencyOnce}, date: day(2026, 10, 20), want: false},
		{name: "daily", task: Task{Frequency: FrequencyDaily}, date: day(2031, 1, 7), want: true},

		{name: "weekly weekday match", task: weekly(IntPtr(5), ""), date: day(2026, 10, 16), want: true},
		{name: "weekly weekday miss", task: weekly(IntPtr(5), ""), date: day(2026, 10, 17), want: false},
		{name: "weekly sunday", task: weekly(IntPtr(0), ""), date: day(2026, 10, 18), want: true},
		{name: "weekly created weekday", task: weekly(nil, "2026-09-02T15:04:05Z"), date: day(2026, 10, 21), want: true},
		{name: "weekly created weekday miss", task: weekly(nil, "2026-09-02T15:04:05.123Z"), date: day(2026, 10, 22), want: false},
		{name: "weekly default monday", task: weekly(nil, ""), date: day(2026, 10, 19), want: true},
		{name: "weekly default not tuesday", task: weekly(nil, ""), date: day(2026, 10, 20), want: false},
		{name: "weekly bad created falls back to monday", task: weekly(nil, "yesterday"), date: day(2026, 10, 26), want: true},

		{name: "monthly first", task: monthly(&MonthlyPattern{Type: PatternFirst}, ""), date: day(2026, 11, 1), want: true},
		{name: "monthly first miss", task: monthly(&MonthlyPattern{Type: PatternFirst}, ""), date: day(2026, 11, 2), want: false},
		{name: "monthly last 31", task: monthly(&MonthlyPattern{Type: PatternLast}, ""), date: day(2026, 10, 31), want: true},
		{name: "monthly last not 30th of oct", task: monthly(&MonthlyPattern{Type: PatternLast}, ""), date: day(2026, 10, 30), want: false},
		{name: "monthly last feb", task: monthly(&MonthlyPattern{Type: PatternLast}, ""), date: day(2026, 2, 28), want: true},
		{name: "monthly last leap feb 28", task: monthly(&MonthlyPattern{Type: PatternLast}, ""), date: day(2028, 2, 28), want: false},
		{name: "monthly last leap feb 29", task: monthly(&MonthlyPattern{Type: PatternLast}, ""), date: day(2028, 2, 29), want: true},
		{name: "monthly date", task: monthly(&MonthlyPattern{Type: PatternDate, Date: 15}, ""), date: day(2026, 10, 15), want: true},
		{name: "monthly date 31 clamps feb", task: monthly(&MonthlyPattern{Type: PatternDate, Date: 31}, ""), date: day(2026, 2, 28), want: true},
		{name: "monthly date 31 clamps leap feb", task: monthly(&MonthlyPattern{Type: PatternDate, Date: 31}, ""), date: day(2028, 2, 29), want: true},
		{name: "monthly date 31 on 30 day month", task: monthly(&MonthlyPattern{Type: PatternDate, Date: 31}, ""), date: day(2026, 11, 30), want: true},
		{name: "monthly date 31 not 30th in oct", task: monthly(&MonthlyPattern{Type: PatternDate, Date: 31}, ""), date: day(2026, 10, 30), want: false},
		{name: "third friday", task: monthly(&MonthlyPattern{Type: PatternWeekday, Weekday: 5, Occurrence: 3}, ""), date: day(2026, 10, 16), want: true},
		{name: "fourth friday is not third", task: monthly(&MonthlyPattern{Type: PatternWeekday, Weekday: 5, Occurrence: 3}, ""), date: day(2026, 10, 23), want: false},
		{name: "first thursday on the 1st", task: monthly(&MonthlyPattern{Type: PatternWeekday, Weekday: 4, Occurrence: 1}, ""), date: day(2026, 10, 1), want: true},
		{name: "weekday wrong day", task: monthly(&MonthlyPattern{Type: PatternWeekday, Weekday: 5, Occurrence: 3}, ""), date: day(2026, 10, 15), want: false},
		{name: "monthly created day", task: monthly(nil, "2026-01-12T09:00:00Z"), date: day(2026, 10, 12), want: true},
		{name: "monthly created day miss", task: monthly(nil, "2026-01-12T09:00:00Z"), date: day(2026, 10, 13), want: false},
		{name: "monthly default first", task: monthly(nil, ""), date: day(2026, 10, 1), want: true},
		{name: "monthly default miss", task: monthly(nil, ""), date: day(2026, 10, 2), want: false},

		{name: "unknown frequency", task: Task{Frequency: "hourly"}, date: day(2026, 10, 19), want: false},
		{name: "unknown pattern", task: monthly(&MonthlyPattern{Type: "second"}, ""), date: day(2026, 10, 1), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.OccursOn(tt.task, tt.date, now))
		})
	}
}

func TestOccursOnLogsUnknownFrequency(t *testing.T) {
	t.Parallel()
	e, logs := newCapturingEngine()
	ok := e.OccursOn(Task{ID: "x", Name: "mystery", Frequency: "fortnightly"}, day(2026, 10, 19), day(2026, 10, 19))
	assert.False(t, ok)
	assert.True(t, strings.Contains(logs.String(), "unknown task frequency"))
	assert.True(t, strings.Contains(logs.String(), `"task_id":"x"`))
}

func TestOnceUsesInjectedNow(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	tk := Task{Frequency: FrequencyOnce}
	// The real wall clock is irrelevant: "today" is whatever now says.
	past := clockAt(day(2001, 3, 4), 12, 0, 0)
	assert.True(t, e.OccursOn(tk, day(2001, 3, 4), past))
	assert.False(t, e.OccursOn(tk, day(2026, 10, 18), past))
}

func TestIsNthWeekdayAllMondays(t *testing.T) {
	t.Parallel()
	// Mondays in October 2026: 5, 12, 19, 26.
	for i, d := range []int{5, 12, 19, 26} {
		assert.True(t, IsNthWeekday(day(2026, 10, d), time.Monday, i+1), "day %d", d)
		assert.False(t, IsNthWeekday(day(2026, 10, d), time.Monday, i+2), "day %d", d)
	}
}
