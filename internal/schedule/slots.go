package schedule

import (
	"math"
	"time"

	logx "dayplan/pkg/logx"
)

// DaySchedule is the engine's only output.
type DaySchedule struct {
	Date      string     `json:"date"`
	Slots     []Slot     `json:"slots"` // always HoursPerDay entries
	Instances []Instance `json:"instances"`
	Conflicts []Conflict `json:"conflicts"`
	Gaps      []Gap      `json:"gaps"`
	Stats     Stats      `json:"stats"`
}

// Slot is one hour of the day.
//
// OccupiedMinutes is the exact sum of placed span minutes; UtilizationPercent
// is derived from it (and may exceed 100).
type Slot struct {
	Hour               int         `json:"hour"`
	Tasks              []Placement `json:"tasks"`
	OccupiedMinutes    int         `json:"occupiedMinutes"`
	UtilizationPercent float64     `json:"utilizationPercent"`
	HasConflict        bool        `json:"hasConflict"`
}

// Placement is the fragment of an instance that sits in one slot.
type Placement struct {
	InstanceID      string    `json:"instanceId"`
	TaskID          string    `json:"taskId"`
	Name            string    `json:"name"`
	StartTime       TimeOfDay `json:"startTime"`
	EndTime         TimeOfDay `json:"endTime"`
	Required        bool      `json:"required"`
	Completed       bool      `json:"completed"`
	Overdue         bool      `json:"overdue"`
	SlotStartMinute int       `json:"slotStartMinute"`
	SlotDuration    int       `json:"slotDuration"`
	SlotUtilization float64   `json:"slotUtilization"`
}

// Conflict is recorded once per hour, when the hour first goes over capacity.
// Severity is the number of fragments in the hour at that moment.
type Conflict struct {
	Hour     int            `json:"hour"`
	Tasks    []ConflictTask `json:"tasks"`
	Severity int            `json:"severity"`
}

type ConflictTask struct {
	Name      string    `json:"name"`
	StartTime TimeOfDay `json:"startTime"`
	EndTime   TimeOfDay `json:"endTime"`
}

func newDaySchedule(date time.Time) *DaySchedule {
	ds := &DaySchedule{
		Date:      DateKey(date),
		Slots:     make([]Slot, HoursPerDay),
		Conflicts: []Conflict{},
		Gaps:      []Gap{},
	}
	for h := range ds.Slots {
		ds.Slots[h] = Slot{Hour: h, Tasks: []Placement{}}
	}
	return ds
}

// Utilization converts occupied minutes to a percentage of one hour, rounded
// to two decimals.
func Utilization(minutes int) float64 {
	return math.Round(float64(minutes)*100*100/MinutesPerHour) / 100
}

// SpansFor splits [start, start+duration) at hour boundaries. Hours wrap past
// midnight. The span durations always sum to duration.
func (e *Engine) SpansFor(start TimeOfDay, duration int) []Span {
	spans := make([]Span, 0, max(0, duration/MinutesPerHour+2))
	cur := start.Minutes()
	end := cur + duration
	for cur < end {
		hour := (cur / MinutesPerHour) % HoursPerDay
		step := min(MinutesPerHour-cur%MinutesPerHour, end-cur)
		if hour < 0 || hour >= HoursPerDay || step <= 0 {
			e.log.Error("span out of range; truncating",
				logx.Int("hour", hour), logx.Int("minute", cur), logx.Int("step", step))
			break
		}
		spans = append(spans, Span{
			Hour:               hour,
			StartMinute:        cur % MinutesPerHour,
			Duration:           step,
			UtilizationPercent: Utilization(step),
		})
		cur += step
	}
	return spans
}

// place adds every span of inst to its slot and updates the running totals.
func (e *Engine) place(inst *Instance, ds *DaySchedule) {
	for _, sp := range inst.Spans {
		if sp.Hour < 0 || sp.Hour >= len(ds.Slots) || sp.Duration <= 0 {
			e.log.Error("span outside the day; skipped",
				logx.String("instance", inst.ID), logx.Int("hour", sp.Hour), logx.Int("duration", sp.Duration))
			continue
		}
		slot := &ds.Slots[sp.Hour]
		slot.Tasks = append(slot.Tasks, Placement{
			InstanceID:      inst.ID,
			TaskID:          inst.TaskID,
			Name:            inst.Name,
			StartTime:       inst.StartTime,
			EndTime:         inst.EndTime,
			Required:        inst.Required,
			Completed:       inst.Completed,
			Overdue:         inst.Overdue,
			SlotStartMinute: sp.StartMinute,
			SlotDuration:    sp.Duration,
			SlotUtilization: sp.UtilizationPercent,
		})
		slot.OccupiedMinutes += sp.Duration
		slot.UtilizationPercent = Utilization(slot.OccupiedMinutes)

		if slot.OccupiedMinutes > MinutesPerHour && !slot.HasConflict {
			slot.HasConflict = true
			ds.Conflicts = append(ds.Conflicts, newConflict(sp.Hour, slot.Tasks))
		}
	}

	ds.Stats.TotalTasks++
	if inst.Completed {
		ds.Stats.CompletedTasks++
	}
	if inst.Required {
		ds.Stats.RequiredTasks++
	}
	if inst.Overdue {
		ds.Stats.OverdueCount++
	}
}

func newConflict(hour int, occupants []Placement) Conflict {
	tasks := make([]ConflictTask, len(occupants))
	for i, p := range occupants {
		tasks[i] = ConflictTask{Name: p.Name, StartTime: p.StartTime, EndTime: p.EndTime}
	}
	return Conflict{Hour: hour, Tasks: tasks, Severity: len(occupants)}
}
