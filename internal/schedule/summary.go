package schedule

import "math"

// Gap is a maximal run of empty hours, inclusive on both ends.
type Gap struct {
	StartHour int `json:"startHour"`
	EndHour   int `json:"endHour"`
	Duration  int `json:"duration"` // hours
}

type Stats struct {
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	RequiredTasks  int     `json:"requiredTasks"`
	OverdueCount   int     `json:"overdueCount"`
	BusyHours      int     `json:"busyHours"`
	FreeHours      int     `json:"freeHours"`
	ConflictHours  int     `json:"conflictHours"`
	CompletionRate float64 `json:"completionRate"` // percent, one decimal
}

// FindGaps returns the runs of slots with no tasks, in hour order.
func FindGaps(slots []Slot) []Gap {
	gaps := []Gap{}
	open := -1
	for h, slot := range slots {
		if len(slot.Tasks) == 0 {
			if open < 0 {
				open = h
			}
			continue
		}
		if open >= 0 {
			gaps = append(gaps, Gap{StartHour: open, EndHour: h - 1, Duration: h - open})
			open = -1
		}
	}
	if open >= 0 {
		last := len(slots) - 1
		gaps = append(gaps, Gap{StartHour: open, EndHour: last, Duration: last - open + 1})
	}
	return gaps
}

// summarize fills the slot-derived counters; the per-instance counters were
// accumulated during placement.
func summarize(ds *DaySchedule) Stats {
	st := ds.Stats
	st.BusyHours = 0
	for _, slot := range ds.Slots {
		if len(slot.Tasks) > 0 {
			st.BusyHours++
		}
	}
	st.FreeHours = HoursPerDay - st.BusyHours
	st.ConflictHours = len(ds.Conflicts)
	st.CompletionRate = 0
	if st.TotalTasks > 0 {
		st.CompletionRate = math.Round(float64(st.CompletedTasks)/float64(st.TotalTasks)*100*10) / 10
	}
	return st
}
