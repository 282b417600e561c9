package schedule

import (
	"context"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	logx "dayplan/pkg/logx"
)

const (
	DefaultMaxDependencyDepth = 10
	DefaultBuffer             = 5  // minutes after the parent's end
	DefaultDuration           = 30 // minutes, used for parents with no duration
)

// Config tunes the engine. Zero values select the defaults above.
type Config struct {
	MaxDependencyDepth int
	DefaultBuffer      *int
	DefaultDuration    int
	FallbackTime       *TimeOfDay

	// Location, when set, is the wall clock that date and now are read in.
	// When nil, each time.Time keeps its own location.
	Location *time.Location
}

type engineConfig struct {
	maxDepth        int
	defaultBuffer   int
	defaultDuration int
	fallback        TimeOfDay
	loc             *time.Location
}

// Engine turns a task snapshot into a DaySchedule. It holds no per-call
// state and is safe for concurrent use.
type Engine struct {
	cfg engineConfig
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Engine {
	ec := engineConfig{
		maxDepth:        cfg.MaxDependencyDepth,
		defaultBuffer:   DefaultBuffer,
		defaultDuration: cfg.DefaultDuration,
		fallback:        DefaultFallbackTime,
		loc:             cfg.Location,
	}
	if ec.maxDepth <= 0 {
		ec.maxDepth = DefaultMaxDependencyDepth
	}
	if cfg.DefaultBuffer != nil && *cfg.DefaultBuffer >= 0 {
		ec.defaultBuffer = *cfg.DefaultBuffer
	}
	if ec.defaultDuration <= 0 {
		ec.defaultDuration = DefaultDuration
	}
	if cfg.FallbackTime != nil {
		ec.fallback = FromMinutes(cfg.FallbackTime.Minutes())
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{cfg: ec, log: log}
}

func (e *Engine) localize(t time.Time) time.Time {
	if e.cfg.loc != nil {
		return t.In(e.cfg.loc)
	}
	return t
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CalculateDaySchedule computes the schedule for date. now is the caller's
// current time; it decides "today" for once-tasks and drives catch-up.
//
// The result depends only on (snap, date, now).
func (e *Engine) CalculateDaySchedule(snap *Snapshot, date, now time.Time) (*DaySchedule, error) {
	if snap == nil {
		return nil, ErrNilSnapshot
	}
	date = midnight(e.localize(date))
	now = e.localize(now)

	ds := newDaySchedule(date)
	ds.Instances = e.instances(snap, date, now)
	for i := range ds.Instances {
		e.place(&ds.Instances[i], ds)
	}
	ds.Gaps = FindGaps(ds.Slots)
	ds.Stats = summarize(ds)

	e.log.Debug("day schedule computed",
		logx.String("date", ds.Date),
		logx.Int("tasks", ds.Stats.TotalTasks),
		logx.Int("conflicts", len(ds.Conflicts)),
		logx.Int("gaps", len(ds.Gaps)),
	)
	return ds, nil
}

// CalculateRange computes days consecutive schedules starting at from. Days are
// computed concurrently; the result is ordered by date and equal to calling
// CalculateDaySchedule for each day.
func (e *Engine) CalculateRange(ctx context.Context, snap *Snapshot, from time.Time, days int, now time.Time) ([]*DaySchedule, error) {
	if snap == nil {
		return nil, ErrNilSnapshot
	}
	if days <= 0 {
		return []*DaySchedule{}, nil
	}
	start := midnight(e.localize(from))
	out := make([]*DaySchedule, days)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < days; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ds, err := e.CalculateDaySchedule(snap, start.AddDate(0, 0, i), now)
			if err != nil {
				return err
			}
			out[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// instances materializes one Instance per task occurring on date, ordered by
// start time. Ties keep the snapshot order.
func (e *Engine) instances(snap *Snapshot, date, now time.Time) []Instance {
	idx := indexTasks(snap.Tasks)
	out := make([]Instance, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		if !e.occursOn(t, date, now) {
			continue
		}
		out = append(out, e.newInstance(t, snap, idx, date, now))
	}
	slices.SortStableFunc(out, func(a, b Instance) int {
		return a.StartTime.Minutes() - b.StartTime.Minutes()
	})
	return out
}

func (e *Engine) taskLog(t Task) logx.Logger {
	return e.log.With(logx.String("task_id", t.ID), logx.String("task", t.Name))
}
