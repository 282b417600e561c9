package tasks

import (
	"slices"
	"strings"
	"sync"
	"time"

	"dayplan/internal/schedule"
)

// DefaultRetention is how long completion marks are kept.
const DefaultRetention = 30 * 24 * time.Hour

// Completion is one (task, date) mark.
type Completion struct {
	TaskID string `json:"taskId"`
	Date   string `json:"date"` // YYYY-MM-DD
}

// Completions is the in-memory completion set. It satisfies
// schedule.Completions and is safe for concurrent use.
type Completions struct {
	mu     sync.RWMutex
	byDate map[string]map[string]struct{}
}

var _ schedule.Completions = (*Completions)(nil)

func NewCompletions(seed ...Completion) *Completions {
	c := &Completions{byDate: map[string]map[string]struct{}{}}
	for _, e := range seed {
		c.setLocked(e.TaskID, e.Date, true)
	}
	return c
}

// Reset replaces every mark with entries.
func (c *Completions) Reset(entries []Completion) {
	fresh := NewCompletions(entries...)
	c.mu.Lock()
	c.byDate = fresh.byDate
	c.mu.Unlock()
}

func (c *Completions) IsCompleted(taskID, dateKey string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byDate[dateKey][taskID]
	return ok
}

// Set marks or unmarks a task for a date and reports whether anything changed.
func (c *Completions) Set(taskID, dateKey string, done bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(taskID, dateKey, done)
}

// Toggle flips the mark and returns the new state.
func (c *Completions) Toggle(taskID, dateKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, done := c.byDate[dateKey][taskID]
	c.setLocked(taskID, dateKey, !done)
	return !done
}

func (c *Completions) setLocked(taskID, dateKey string, done bool) bool {
	ids, ok := c.byDate[dateKey]
	if done {
		if !ok {
			ids = map[string]struct{}{}
			c.byDate[dateKey] = ids
		}
		if _, had := ids[taskID]; had {
			return false
		}
		ids[taskID] = struct{}{}
		return true
	}
	if _, had := ids[taskID]; !had {
		return false
	}
	delete(ids, taskID)
	if len(ids) == 0 {
		delete(c.byDate, dateKey)
	}
	return true
}

// ForgetTask drops every mark for taskID.
func (c *Completions) ForgetTask(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for date := range c.byDate {
		c.setLocked(taskID, date, false)
	}
}

// Cutoff is the oldest date key kept by Prune.
func Cutoff(now time.Time, retention time.Duration) string {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return schedule.DateKey(now.Add(-retention))
}

// Prune drops marks dated before the retention window and returns how many
// were removed. Date keys compare lexically.
func (c *Completions) Prune(now time.Time, retention time.Duration) int {
	cutoff := Cutoff(now, retention)
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for date, ids := range c.byDate {
		if date < cutoff {
			n += len(ids)
			delete(c.byDate, date)
		}
	}
	return n
}

// Entries lists every mark ordered by date, then task id.
func (c *Completions) Entries() []Completion {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Completion, 0, len(c.byDate))
	for date, ids := range c.byDate {
		for id := range ids {
			out = append(out, Completion{TaskID: id, Date: date})
		}
	}
	slices.SortFunc(out, func(a, b Completion) int {
		if d := strings.Compare(a.Date, b.Date); d != 0 {
			return d
		}
		return strings.Compare(a.TaskID, b.TaskID)
	})
	return out
}
