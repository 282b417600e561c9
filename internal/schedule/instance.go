package schedule

import "time"

// Span is the part of an instance that falls inside one hour.
type Span struct {
	Hour               int     `json:"hour"`
	StartMinute        int     `json:"startMinute"`
	Duration           int     `json:"duration"` // minutes within the hour
	UtilizationPercent float64 `json:"utilizationPercent"`
}

// Instance is a task materialized for one date. It is derived on every call
// and never stored.
type Instance struct {
	ID         string `json:"id"` // "<taskID>@<date>"
	TaskID     string `json:"taskId"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	Duration   int    `json:"duration"`
	Required   bool   `json:"required"`
	DependsOn  string `json:"dependsOn,omitempty"`
	BufferTime int    `json:"bufferTime"`

	StartTime    TimeOfDay `json:"startTime"`
	EndTime      TimeOfDay `json:"endTime"`
	OriginalTime TimeOfDay `json:"originalTime"` // parsed anchor, before dependencies and catch-up

	Completed bool `json:"completed"`
	Overdue   bool `json:"overdue"` // moved to now by catch-up

	Spans []Span `json:"spans"`
}

func (e *Engine) newInstance(t Task, snap *Snapshot, idx taskIndex, date, now time.Time) Instance {
	key := DateKey(date)
	completed := snap.completed(t.ID, key)

	start := e.resolveStart(t, idx)
	overdue := false
	if catchUpApplies(t, completed, date, now) {
		start, overdue = CatchUp(start, now)
	}

	return Instance{
		ID:           t.ID + "@" + key,
		TaskID:       t.ID,
		Name:         t.Name,
		Date:         key,
		Duration:     t.Duration,
		Required:     t.Required,
		DependsOn:    t.DependsOn,
		BufferTime:   e.buffer(t),
		StartTime:    start,
		EndTime:      start.AddMinutes(t.Duration),
		OriginalTime: e.anchor(t),
		Completed:    completed,
		Overdue:      overdue,
		Spans:        e.SpansFor(start, t.Duration),
	}
}
