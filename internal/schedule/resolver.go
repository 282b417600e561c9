package schedule

import (
	"slices"
	"strings"

	logx "dayplan/pkg/logx"
)

type taskIndex map[string]*Task

// indexTasks maps ids to tasks. With duplicate ids the first task wins.
func indexTasks(tasks []Task) taskIndex {
	idx := make(taskIndex, len(tasks))
	for i := range tasks {
		if _, dup := idx[tasks[i].ID]; dup {
			continue
		}
		idx[tasks[i].ID] = &tasks[i]
	}
	return idx
}

// ResolveStartTime returns t's effective start: its anchor time when it has no
// dependency, otherwise the parent's resolved start plus the parent's duration
// plus t's buffer, wrapped at midnight.
//
// A task that sits on a dependency cycle resolves to its own anchor. Along any
// other chain, the level that exceeds the depth limit, reaches a cycle or
// misses its parent falls back to its own anchor and the levels below it keep
// composing from there.
func (e *Engine) ResolveStartTime(snap *Snapshot, t Task) TimeOfDay {
	if snap == nil {
		return e.anchor(t)
	}
	return e.resolveStart(t, indexTasks(snap.Tasks))
}

func (e *Engine) resolveStart(t Task, idx taskIndex) TimeOfDay {
	if onCycle(t, idx) {
		e.taskLog(t).Error("dependency cycle; using own anchor time", logx.String("depends_on", t.DependsOn))
		return e.anchor(t)
	}
	return e.resolve(t, idx, 0, nil)
}

// resolve walks the chain root-first. visited holds the ids already on the
// path; every level gets its own copy, so sibling walks never share state.
func (e *Engine) resolve(t Task, idx taskIndex, depth int, visited []string) TimeOfDay {
	if t.DependsOn == "" {
		return e.anchor(t)
	}
	if depth > e.cfg.maxDepth {
		e.taskLog(t).Warn("dependency chain too deep; using own anchor time",
			logx.Int("depth", depth), logx.Int("max_depth", e.cfg.maxDepth))
		return e.anchor(t)
	}
	if slices.Contains(visited, t.ID) {
		e.taskLog(t).Error("dependency cycle; using own anchor time",
			logx.String("path", strings.Join(append(slices.Clone(visited), t.ID), " -> ")))
		return e.anchor(t)
	}

	parent, ok := idx[t.DependsOn]
	if !ok {
		e.taskLog(t).Warn("dependency parent not found; using own anchor time", logx.String("depends_on", t.DependsOn))
		return e.anchor(t)
	}

	path := append(slices.Clone(visited), t.ID)
	parentAt := e.resolve(*parent, idx, depth+1, path)
	return parentAt.AddMinutes(e.duration(*parent) + e.buffer(t))
}

// onCycle reports whether following dependsOn from t leads back to t.
func onCycle(t Task, idx taskIndex) bool {
	cur := t
	for n := len(idx); n > 0; n-- {
		if cur.DependsOn == "" {
			return false
		}
		parent, ok := idx[cur.DependsOn]
		if !ok {
			return false
		}
		if parent.ID == t.ID {
			return true
		}
		cur = *parent
	}
	return false
}

// anchor parses t.Time, falling back to the configured default.
func (e *Engine) anchor(t Task) TimeOfDay {
	at, err := ParseClock(t.Time)
	if err != nil {
		e.taskLog(t).Warn("unparseable task time; using fallback",
			logx.String("time", t.Time), logx.String("fallback", e.cfg.fallback.String()))
		return e.cfg.fallback
	}
	return at
}

func (e *Engine) duration(t Task) int {
	if t.Duration <= 0 {
		return e.cfg.defaultDuration
	}
	return t.Duration
}

func (e *Engine) buffer(t Task) int {
	if t.BufferTime == nil || *t.BufferTime < 0 {
		return e.cfg.defaultBuffer
	}
	return *t.BufferTime
}
