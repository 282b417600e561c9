package schedule

// Frequency controls on which dates a task occurs.
type Frequency string

const (
	FrequencyOnce    Frequency = "once"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Known reports whether f is one of the supported frequencies.
func (f Frequency) Known() bool {
	switch f {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// PatternType selects how a monthly task picks its day.
type PatternType string

const (
	PatternFirst   PatternType = "first"   // 1st of the month
	PatternLast    PatternType = "last"    // last day of the month
	PatternDate    PatternType = "date"    // fixed day-of-month, clamped to month length
	PatternWeekday PatternType = "weekday" // nth weekday of the month
)

// MonthlyPattern refines monthly recurrence.
//
// Date is used by PatternDate (1-31). Weekday (0=Sunday) and Occurrence
// (1-based) are used by PatternWeekday.
type MonthlyPattern struct {
	Type       PatternType `json:"type"`
	Date       int         `json:"date,omitempty"`
	Weekday    int         `json:"weekday,omitempty"`
	Occurrence int         `json:"occurrence,omitempty"`
}

// Task is a recurring definition of work. Tasks are owned by the task store;
// the engine only reads them.
type Task struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Time      string    `json:"time"`     // anchor, "9:00 AM"
	Duration  int       `json:"duration"` // minutes
	Frequency Frequency `json:"frequency"`
	Required  bool      `json:"required"`
	DependsOn string    `json:"dependsOn,omitempty"`

	// BufferTime is the gap after the parent's end. nil means DefaultBuffer.
	BufferTime *int `json:"bufferTime,omitempty"`

	// Weekday (0=Sunday) for weekly tasks. nil falls back to CreatedDate's weekday, then Monday.
	Weekday *int `json:"weekday,omitempty"`

	// MonthlyPattern for monthly tasks. nil falls back to CreatedDate's day-of-month, then the 1st.
	MonthlyPattern *MonthlyPattern `json:"monthlyPattern,omitempty"`

	// CreatedDate is an RFC 3339 timestamp; only used for legacy recurrence defaults.
	CreatedDate string `json:"createdDate,omitempty"`
}

// Completions answers whether a task was marked done on a date (YYYY-MM-DD).
type Completions interface {
	IsCompleted(taskID, dateKey string) bool
}

// CompletionFunc adapts a function to Completions.
type CompletionFunc func(taskID, dateKey string) bool

func (f CompletionFunc) IsCompleted(taskID, dateKey string) bool { return f(taskID, dateKey) }

// Snapshot is the read-only input for one computation. Tasks keep the order of
// the task store; that order breaks start-time ties.
type Snapshot struct {
	Tasks       []Task
	Completions Completions
}

func (s *Snapshot) completed(taskID, dateKey string) bool {
	if s.Completions == nil {
		return false
	}
	return s.Completions.IsCompleted(taskID, dateKey)
}

// IntPtr is a convenience for optional Task fields.
func IntPtr(v int) *int { return &v }
