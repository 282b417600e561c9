package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	HoursPerDay    = 24
	MinutesPerHour = 60
	MinutesPerDay  = HoursPerDay * MinutesPerHour
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// DefaultFallbackTime is used when a task's anchor time cannot be parsed.
var DefaultFallbackTime = TimeOfDay{Hour: 9, Minute: 0}

var (
	re12h = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*([AaPp][Mm])$`)
	re24h = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseClock parses "h:mm AM|PM" (the stored task form) or 24-hour "HH:MM".
func ParseClock(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return TimeOfDay{}, fmt.Errorf("time required")
	}

	if m := re12h.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh < 1 || hh > 12 || mm > 59 {
			return TimeOfDay{}, fmt.Errorf("invalid time %q", raw)
		}
		pm := strings.EqualFold(m[3], "PM")
		switch {
		case pm && hh != 12:
			hh += 12
		case !pm && hh == 12:
			hh = 0
		}
		return TimeOfDay{Hour: hh, Minute: mm}, nil
	}

	if m := re24h.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh > 23 || mm > 59 {
			return TimeOfDay{}, fmt.Errorf("invalid time %q", raw)
		}
		return TimeOfDay{Hour: hh, Minute: mm}, nil
	}

	return TimeOfDay{}, fmt.Errorf("invalid time %q (use '9:00 AM' or '09:00')", raw)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*MinutesPerHour + t.Minute }

// AddMinutes returns t shifted by n minutes, wrapped modulo 24h.
func (t TimeOfDay) AddMinutes(n int) TimeOfDay {
	return FromMinutes(t.Minutes() + n)
}

// FromMinutes converts minutes since midnight (any sign) to a TimeOfDay.
func FromMinutes(total int) TimeOfDay {
	total %= MinutesPerDay
	if total < 0 {
		total += MinutesPerDay
	}
	return TimeOfDay{Hour: total / MinutesPerHour, Minute: total % MinutesPerHour}
}

// String renders the 12-hour form used by stored tasks ("9:05 AM").
func (t TimeOfDay) String() string {
	period := "AM"
	h := t.Hour
	if h >= 12 {
		period = "PM"
	}
	switch {
	case h == 0:
		h = 12
	case h > 12:
		h -= 12
	}
	return fmt.Sprintf("%d:%02d %s", h, t.Minute, period)
}

// Clock24 renders "HH:MM".
func (t TimeOfDay) Clock24() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// HourLabel renders an hour slot label ("12 AM", "9 AM", "1 PM").
func HourLabel(hour int) string {
	switch {
	case hour == 0:
		return "12 AM"
	case hour < 12:
		return strconv.Itoa(hour) + " AM"
	case hour == 12:
		return "12 PM"
	default:
		return strconv.Itoa(hour-12) + " PM"
	}
}

// DateKey formats the local calendar date of t as YYYY-MM-DD.
func DateKey(t time.Time) string { return t.Format(time.DateOnly) }

// ParseDateKey parses YYYY-MM-DD as midnight in loc (nil means time.Local).
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(key), loc)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func daysInMonth(t time.Time) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
