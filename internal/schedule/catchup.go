package schedule

import "time"

// CatchUp moves an overdue start to now. Partial minutes round up, so a task
// due at 10:30 is still on time at 10:30:00 but moves to 10:31 at 10:30:01.
// now past 23:59 wraps to 0:00.
//
// It returns the start to display and whether it was moved.
func CatchUp(resolved TimeOfDay, now time.Time) (TimeOfDay, bool) {
	nowMin := now.Hour()*MinutesPerHour + now.Minute()
	if now.Second() > 0 || now.Nanosecond() > 0 {
		nowMin++
	}
	if nowMin <= resolved.Minutes() {
		return resolved, false
	}
	return FromMinutes(nowMin), true
}

// catchUpApplies: only incomplete required tasks, and only on today's schedule.
func catchUpApplies(t Task, completed bool, date, now time.Time) bool {
	return t.Required && !completed && sameDay(date, now)
}
