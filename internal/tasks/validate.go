package tasks

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"dayplan/internal/schedule"
)

const (
	MaxNameLen  = 100
	MinDuration = 5
	MaxDuration = 480
	MinBuffer   = 0
	MaxBuffer   = 60
)

// Validate checks a task definition before it is stored. It does not look at
// other tasks; dependency checks need the whole set (see WouldCreateCycle).
func Validate(t schedule.Task) error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalid, MaxNameLen)
	}
	if _, err := schedule.ParseClock(t.Time); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if t.Duration < MinDuration || t.Duration > MaxDuration {
		return fmt.Errorf("%w: duration must be between %d and %d minutes", ErrInvalid, MinDuration, MaxDuration)
	}
	if t.BufferTime != nil && (*t.BufferTime < MinBuffer || *t.BufferTime > MaxBuffer) {
		return fmt.Errorf("%w: buffer time must be between %d and %d minutes", ErrInvalid, MinBuffer, MaxBuffer)
	}
	if !t.Frequency.Known() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalid, t.Frequency)
	}
	if t.Weekday != nil && (*t.Weekday < 0 || *t.Weekday > 6) {
		return fmt.Errorf("%w: weekday must be 0 (Sunday) to 6 (Saturday)", ErrInvalid)
	}
	if p := t.MonthlyPattern; p != nil {
		if err := validatePattern(*p); err != nil {
			return err
		}
	}
	if t.DependsOn != "" && t.DependsOn == t.ID {
		return fmt.Errorf("%w: a task cannot depend on itself", ErrCycle)
	}
	return nil
}

func validatePattern(p schedule.MonthlyPattern) error {
	switch p.Type {
	case schedule.PatternFirst, schedule.PatternLast:
		return nil
	case schedule.PatternDate:
		if p.Date < 1 || p.Date > 31 {
			return fmt.Errorf("%w: monthly date must be 1..31", ErrInvalid)
		}
		return nil
	case schedule.PatternWeekday:
		if p.Weekday < 0 || p.Weekday > 6 {
			return fmt.Errorf("%w: monthly weekday must be 0..6", ErrInvalid)
		}
		if p.Occurrence < 1 || p.Occurrence > 5 {
			return fmt.Errorf("%w: monthly occurrence must be 1..5", ErrInvalid)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown monthly pattern %q", ErrInvalid, p.Type)
	}
}

// normalize trims the name and stores the time in its canonical "h:mm AM" form.
func normalize(t *schedule.Task) {
	t.Name = strings.TrimSpace(t.Name)
	if tod, err := schedule.ParseClock(t.Time); err == nil {
		t.Time = tod.String()
	}
	t.DependsOn = strings.TrimSpace(t.DependsOn)
}
