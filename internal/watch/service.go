package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"dayplan/internal/config"
	"dayplan/internal/eventbus"
	"dayplan/internal/notifier"
	"dayplan/internal/report"
	"dayplan/internal/runtime/supervisor"
	"dayplan/internal/schedule"
	logx "dayplan/pkg/logx"
)

// Source provides the current tasks and completions. Sync pulls whatever
// other processes persisted since the last call.
type Source interface {
	Sync(ctx context.Context) error
	Snapshot(ctx context.Context) (*schedule.Snapshot, error)
}

type Notifier interface {
	Notify(ctx context.Context, m notifier.Message) error
}

// SystemdNotifier is the subset of pkg/systemd the daemon uses.
type SystemdNotifier interface {
	Ready() (bool, error)
	Stopping() (bool, error)
	Status(msg string) (bool, error)
	RunWatchdog(ctx context.Context, healthy func() bool) error
}

// Deps are the collaborators of a Service. Notifier, Bus and Systemd may be nil.
type Deps struct {
	Source   Source
	Engine   *schedule.Engine
	Notifier Notifier
	Bus      eventbus.Bus
	Systemd  SystemdNotifier
	Log      logx.Logger

	// Files are re-read through OnFileChange and trigger a refresh.
	Files        []string
	OnFileChange func(ctx context.Context, path string) error

	// Location is the wall clock cron specs and "today" are read in.
	Location *time.Location
	Now      func() time.Time
}

// Computed is the payload of schedule.computed events.
type Computed struct {
	Schedule *schedule.DaySchedule
	At       time.Time
	Reason   string
}

type Service struct {
	deps Deps
	log  logx.Logger

	mu       sync.Mutex
	settings config.WatchSettings
	engine   *schedule.Engine
	loc      *time.Location
	c        *cron.Cron
	runCtx   context.Context

	// seen holds notification keys already sent for seenDate.
	seenDate string
	seen     map[string]bool

	refreshMu   sync.Mutex
	lastOK      atomic.Int64 // unix nano of the last successful refresh
	lastFailure atomic.Bool
	last        atomic.Pointer[Computed]
}

func New(settings config.WatchSettings, deps Deps) (*Service, error) {
	if deps.Source == nil {
		return nil, errors.New("watch: source is required")
	}
	if deps.Engine == nil {
		deps.Engine = schedule.New(schedule.Config{}, deps.Log)
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Service{
		deps:     deps,
		log:      deps.Log.With(logx.String("comp", "watch")),
		settings: settings,
		engine:   deps.Engine,
		loc:      deps.Location,
		seen:     map[string]bool{},
	}
	return s, nil
}

// Apply swaps settings and engine at runtime, re-registering cron entries
// when the daemon is running.
func (s *Service) Apply(settings config.WatchSettings, eng *schedule.Engine, loc *time.Location) error {
	s.mu.Lock()
	if eng != nil {
		s.engine = eng
	}
	changedCron := settings.Refresh != s.settings.Refresh || settings.Digest != s.settings.Digest || loc != s.loc
	s.settings = settings
	s.loc = loc
	old := s.c
	if old == nil || !changedCron {
		s.mu.Unlock()
		return nil
	}
	s.c = nil
	s.mu.Unlock()

	// Stop waits for running jobs, which may need s.mu.
	<-old.Stop().Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || s.runCtx == nil || s.runCtx.Err() != nil {
		return nil
	}
	s.log.Info("cron specs changed; re-registering", logx.String("refresh", settings.Refresh), logx.String("digest", settings.Digest))
	return s.startCronLocked(s.runCtx)
}

// Run blocks until ctx ends. It does a first refresh, tells systemd it is
// ready and then serves cron ticks, file changes and the watchdog.
func (s *Service) Run(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(s.log))

	if _, err := s.Refresh(sup.Context(), "start"); err != nil {
		s.log.Warn("initial refresh failed", logx.Err(err))
	}

	s.mu.Lock()
	s.runCtx = sup.Context()
	err := s.startCronLocked(s.runCtx)
	s.mu.Unlock()
	if err != nil {
		sup.Cancel()
		return err
	}

	for _, path := range s.deps.Files {
		sup.GoRestart("watch.file:"+path, func(c context.Context) error {
			return config.WatchFile(c, path, s.log, func() { s.fileChanged(c, path) })
		})
	}

	if s.deps.Systemd != nil {
		if ok, err := s.deps.Systemd.Ready(); err != nil {
			s.log.Warn("systemd notify failed", logx.Err(err))
		} else if ok {
			s.log.Debug("systemd notified ready")
		}
		sup.Go("systemd.watchdog", func(c context.Context) error {
			return s.deps.Systemd.RunWatchdog(c, s.Healthy)
		})
	}

	s.log.Info("watch started", logx.Int("files", len(s.deps.Files)))
	<-sup.Context().Done()

	if s.deps.Systemd != nil {
		_, _ = s.deps.Systemd.Stopping()
	}
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = sup.Stop(stopCtx)
	s.log.Info("watch stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Service) startCronLocked(ctx context.Context) error {
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithParser(config.CronParser), cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if _, err := c.AddFunc(s.settings.Refresh, func() {
		if _, err := s.Refresh(ctx, "cron"); err != nil {
			s.log.Warn("scheduled refresh failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("watch.refresh %q: %w", s.settings.Refresh, err)
	}
	if strings.TrimSpace(s.settings.Digest) != "" {
		if _, err := c.AddFunc(s.settings.Digest, func() {
			if err := s.SendDigest(ctx); err != nil {
				s.log.Warn("digest failed", logx.Err(err))
			}
		}); err != nil {
			return fmt.Errorf("watch.digest %q: %w", s.settings.Digest, err)
		}
	}
	c.Start()
	s.c = c

	for _, e := range c.Entries() {
		s.log.Debug("cron entry registered", logx.Int("id", int(e.ID)), logx.Time("next", e.Next))
	}
	return nil
}

func (s *Service) fileChanged(ctx context.Context, path string) {
	log := s.log.With(logx.String("path", path))
	if s.deps.OnFileChange != nil {
		if err := s.deps.OnFileChange(ctx, path); err != nil {
			log.Warn("reload after file change failed", logx.Err(err))
			return
		}
	}
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(eventbus.Event{Type: eventbus.TasksReloaded, Data: path})
	}
	if _, err := s.Refresh(ctx, "file"); err != nil {
		log.Warn("refresh after file change failed", logx.Err(err))
	}
}

// Healthy is false once the last refresh failed or none succeeded for three
// refresh periods.
func (s *Service) Healthy() bool {
	if s.lastFailure.Load() {
		return false
	}
	last := s.lastOK.Load()
	return last != 0 && time.Since(time.Unix(0, last)) < 3*s.refreshPeriod()
}

func (s *Service) refreshPeriod() time.Duration {
	s.mu.Lock()
	spec := s.settings.Refresh
	s.mu.Unlock()
	sched, err := config.CronParser.Parse(spec)
	if err != nil {
		return time.Hour
	}
	now := time.Now()
	next := sched.Next(now)
	return max(sched.Next(next).Sub(next), time.Minute)
}

// Refresh syncs the source, computes today's schedule, publishes it and
// sends notifications for problems not reported yet today.
func (s *Service) Refresh(ctx context.Context, reason string) (*schedule.DaySchedule, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	ds, now, err := s.compute(ctx)
	if err != nil {
		s.lastFailure.Store(true)
		s.publish(eventbus.ScheduleFailed, err.Error())
		return nil, err
	}
	s.lastFailure.Store(false)
	s.lastOK.Store(time.Now().UnixNano())

	c := Computed{Schedule: ds, At: now, Reason: reason}
	s.last.Store(&c)
	s.publish(eventbus.ScheduleComputed, c)
	s.log.Debug("schedule computed",
		logx.String("date", ds.Date), logx.String("reason", reason),
		logx.Int("tasks", ds.Stats.TotalTasks), logx.Int("conflicts", len(ds.Conflicts)),
		logx.Int("overdue", ds.Stats.OverdueCount))

	if s.deps.Systemd != nil {
		_, _ = s.deps.Systemd.Status(fmt.Sprintf("%d tasks, %d done, %d over capacity, %d overdue",
			ds.Stats.TotalTasks, ds.Stats.CompletedTasks, ds.Stats.ConflictHours, ds.Stats.OverdueCount))
	}

	s.alert(ctx, ds, now)
	return ds, nil
}

// Current is the schedule of the most recent successful refresh.
func (s *Service) Current() (*schedule.DaySchedule, time.Time, bool) {
	if c := s.last.Load(); c != nil {
		return c.Schedule, c.At, true
	}
	return nil, time.Time{}, false
}

// SendDigest sends the whole day's plan once per date.
func (s *Service) SendDigest(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	ds, _, err := s.compute(ctx)
	if err != nil {
		return err
	}
	if s.deps.Notifier == nil {
		return nil
	}
	return ignoreDisabled(s.deps.Notifier.Notify(ctx, notifier.Message{
		Key:      "digest:" + ds.Date,
		Priority: notifier.PriorityInfo,
		Text:     report.Digest(ds),
	}))
}

func (s *Service) compute(ctx context.Context) (*schedule.DaySchedule, time.Time, error) {
	if err := s.deps.Source.Sync(ctx); err != nil {
		return nil, time.Time{}, fmt.Errorf("sync: %w", err)
	}
	snap, err := s.deps.Source.Snapshot(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("snapshot: %w", err)
	}
	s.mu.Lock()
	eng, loc := s.engine, s.loc
	s.mu.Unlock()

	now := s.deps.Now()
	if loc != nil {
		now = now.In(loc)
	}
	ds, err := eng.CalculateDaySchedule(snap, now, now)
	if err != nil {
		return nil, time.Time{}, err
	}
	return ds, now, nil
}

func (s *Service) alert(ctx context.Context, ds *schedule.DaySchedule, now time.Time) {
	if s.deps.Notifier == nil {
		return
	}
	s.mu.Lock()
	lookahead := s.settings.Lookahead
	if s.seenDate != ds.Date {
		s.seenDate = ds.Date
		s.seen = map[string]bool{}
	}
	s.mu.Unlock()

	var msgs []notifier.Message
	for _, c := range ds.Conflicts {
		msgs = append(msgs, notifier.Message{
			Key:      fmt.Sprintf("conflict:%s:%d", ds.Date, c.Hour),
			Priority: notifier.PriorityWarning,
			Text:     report.ConflictLine(c),
		})
	}
	nowMin := now.Hour()*schedule.MinutesPerHour + now.Minute()
	for _, in := range ds.Instances {
		switch {
		case in.Completed:
		case in.Overdue:
			msgs = append(msgs, notifier.Message{
				Key:      "overdue:" + in.ID,
				Priority: notifier.PriorityUrgent,
				Text:     report.OverdueLine(in),
			})
		case lookahead > 0:
			until := in.StartTime.Minutes() - nowMin
			if until > 0 && time.Duration(until)*time.Minute <= lookahead {
				start := now.Truncate(time.Minute).Add(time.Duration(until) * time.Minute)
				msgs = append(msgs, notifier.Message{
					Key:      "upcoming:" + in.ID,
					Priority: notifier.PriorityInfo,
					Text:     report.UpcomingLine(in, start, now),
				})
			}
		}
	}

	for _, m := range msgs {
		s.mu.Lock()
		dup := s.seen[m.Key]
		s.seen[m.Key] = true
		s.mu.Unlock()
		if dup {
			continue
		}
		if err := ignoreDisabled(s.deps.Notifier.Notify(ctx, m)); err != nil {
			s.log.Warn("notify failed", logx.String("key", m.Key), logx.Err(err))
			// Retry on the next refresh.
			s.mu.Lock()
			delete(s.seen, m.Key)
			s.mu.Unlock()
		}
	}
}

func (s *Service) publish(typ string, data any) {
	if s.deps.Bus == nil {
		return
	}
	s.deps.Bus.Publish(eventbus.Event{Type: typ, Time: s.deps.Now(), Data: data})
}

func ignoreDisabled(err error) error {
	if errors.Is(err, notifier.ErrDisabled) {
		return nil
	}
	return err
}
