package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/eventbus"
	"dayplan/internal/notifier"
	"dayplan/internal/notifier/telegram"
	"dayplan/internal/schedule"
	"dayplan/internal/storage"
	"dayplan/internal/tasks"
	logx "dayplan/pkg/logx"
)

// ErrAmbiguous is returned when a task reference matches several names.
var ErrAmbiguous = errors.New("ambiguous task reference")

// App wires configuration, logging, storage, the task store and the engine
// for one CLI invocation or one watch daemon.
type App struct {
	cfgm *config.ConfigManager
	res  config.Resolved

	log   logx.Logger
	logs  *logx.Service
	sink  *alertSink
	bus   eventbus.Bus
	store storage.Store
	notif *notifier.Service

	repo *tasks.MemoryRepo
	done *tasks.Completions
	// writeMu orders Sync against mutate-then-persist sequences.
	writeMu sync.Mutex

	mu     sync.RWMutex
	engine *schedule.Engine

	now func() time.Time
}

type Option func(*App)

// WithClock replaces the wall clock used for "now".
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New loads cfgPath (a missing file means defaults), opens storage and
// loads the persisted tasks and completions.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	res, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	// The notifier needs a logger and the logger forwards alerts to the
	// notifier, so the sink is bound once both exist.
	sink := &alertSink{}
	logs, log := logx.New(res.Logging, sink)

	a := &App{
		cfgm: cfgm,
		res:  res,
		log:  log.With(logx.String("comp", "app")),
		logs: logs,
		sink: sink,
		bus:  eventbus.New(),
		repo: tasks.NewMemoryRepo(),
		done: tasks.NewCompletions(),
		now:  time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	a.repo.SetClock(a.now)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a.store, err = storage.Open(res.Storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if a.store != nil {
		a.log.Debug("storage enabled", logx.String("driver", res.Storage.Driver))
	}

	var sender notifier.Sender
	if res.Notifier.Enabled {
		tg, err := telegram.New(res.Telegram)
		if err != nil {
			a.closeQuietly()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = tg
	}
	var dedup notifier.DedupStore
	if a.store != nil {
		dedup = a.store
	}
	a.notif = notifier.New(res.Notifier, sender, log.With(logx.String("comp", "notifier")), a.bus, dedup)
	sink.bind(a.notif)

	a.engine = schedule.New(res.Schedule, log.With(logx.String("comp", "schedule")))

	if err := a.Sync(ctx); err != nil {
		a.closeQuietly()
		return nil, err
	}
	return a, nil
}

func (a *App) Log() logx.Logger                { return a.log }
func (a *App) Bus() eventbus.Bus               { return a.bus }
func (a *App) Now() time.Time                  { return a.now() }
func (a *App) Completions() *tasks.Completions { return a.done }

func (a *App) Resolved() config.Resolved {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.res
}

// Location is the configured schedule time zone, time.Local when unset.
func (a *App) Location() *time.Location {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.res.Schedule.Location != nil {
		return a.res.Schedule.Location
	}
	return time.Local
}

func (a *App) Engine() *schedule.Engine {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.engine
}

// Sync reloads tasks and completions from storage.
func (a *App) Sync(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	ts, err := a.store.LoadTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	cs, err := a.store.LoadCompletions(ctx)
	if err != nil {
		return fmt.Errorf("load completions: %w", err)
	}
	a.repo.Replace(ts)
	a.done.Reset(cs)
	return nil
}

func (a *App) Snapshot(ctx context.Context) (*schedule.Snapshot, error) {
	ts, err := a.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return &schedule.Snapshot{Tasks: ts, Completions: a.done}, nil
}

// Schedule computes days consecutive schedules starting at from, with now
// driving completion and catch-up. A zero now means the app clock.
func (a *App) Schedule(ctx context.Context, from, now time.Time, days int) ([]*schedule.DaySchedule, error) {
	snap, err := a.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = a.now()
	}
	return a.Engine().CalculateRange(ctx, snap, from, days, now)
}

func (a *App) ListTasks(ctx context.Context) ([]schedule.Task, error) {
	return a.repo.List(ctx)
}

// FindTask resolves ref as a task id, then as a case-insensitive name.
func (a *App) FindTask(ctx context.Context, ref string) (schedule.Task, error) {
	ref = strings.TrimSpace(ref)
	if t, err := a.repo.Get(ctx, ref); err == nil {
		return t, nil
	}
	ts, err := a.repo.List(ctx)
	if err != nil {
		return schedule.Task{}, err
	}
	var found []schedule.Task
	for _, t := range ts {
		if strings.EqualFold(strings.TrimSpace(t.Name), ref) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return schedule.Task{}, fmt.Errorf("%w: %s", tasks.ErrNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return schedule.Task{}, fmt.Errorf("%w: %q matches %d tasks; use the id", ErrAmbiguous, ref, len(found))
	}
}

func (a *App) AddTask(ctx context.Context, t schedule.Task) (schedule.Task, error) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	created, err := a.repo.Create(ctx, t)
	if err != nil {
		return schedule.Task{}, err
	}
	if err := a.saveTasks(ctx); err != nil {
		return schedule.Task{}, err
	}
	a.log.Info("task added", logx.String("task_id", created.ID), logx.String("task", created.Name))
	return created, nil
}

// RemoveTask deletes ref. Dependents are released to their own anchor
// times and returned.
func (a *App) RemoveTask(ctx context.Context, ref string) (schedule.Task, []schedule.Task, error) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	t, err := a.FindTask(ctx, ref)
	if err != nil {
		return schedule.Task{}, nil, err
	}
	released, err := a.repo.Delete(ctx, t.ID)
	if err != nil {
		return schedule.Task{}, nil, err
	}
	a.done.ForgetTask(t.ID)
	if err := a.saveTasks(ctx); err != nil {
		return schedule.Task{}, nil, err
	}
	a.log.Info("task removed", logx.String("task_id", t.ID), logx.String("task", t.Name), logx.Int("released", len(released)))
	return t, released, nil
}

// ImportFile loads a YAML or JSON task file. With replace the file becomes
// the whole task set; tasks without an id keep the id of the existing task
// with the same name, so their completions survive a re-import.
func (a *App) ImportFile(ctx context.Context, path string, replace bool) ([]schedule.Task, error) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	batch, err := tasks.ParseFile(path, data)
	if err != nil {
		return nil, err
	}

	var added []schedule.Task
	if replace {
		current, err := a.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		keepIDs(current, batch)
		fresh := tasks.NewMemoryRepo()
		fresh.SetClock(a.now)
		if added, err = fresh.Import(ctx, batch); err != nil {
			return nil, err
		}
		all, _ := fresh.List(ctx)
		a.repo.Replace(all)
	} else if added, err = a.repo.Import(ctx, batch); err != nil {
		return nil, err
	}

	if err := a.saveTasks(ctx); err != nil {
		return nil, err
	}
	a.log.Info("tasks imported", logx.String("path", path), logx.Int("count", len(added)), logx.Bool("replace", replace))
	return added, nil
}

func keepIDs(current, batch []schedule.Task) {
	byName := make(map[string]string, len(current))
	for _, t := range current {
		byName[strings.ToLower(strings.TrimSpace(t.Name))] = t.ID
	}
	for i := range batch {
		if batch[i].ID != "" {
			continue
		}
		if id, ok := byName[strings.ToLower(strings.TrimSpace(batch[i].Name))]; ok {
			batch[i].ID = id
		}
	}
}

// MarkDone sets or clears the completion of ref on date and reports whether
// anything changed.
func (a *App) MarkDone(ctx context.Context, ref string, date time.Time, done bool) (schedule.Task, bool, error) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	t, err := a.FindTask(ctx, ref)
	if err != nil {
		return schedule.Task{}, false, err
	}
	key := schedule.DateKey(date.In(a.Location()))
	if !a.done.Set(t.ID, key, done) {
		return t, false, nil
	}
	if a.store != nil {
		c := tasks.Completion{TaskID: t.ID, Date: key}
		if done {
			err = a.store.PutCompletion(ctx, c)
		} else {
			err = a.store.DeleteCompletion(ctx, c)
		}
		if err != nil {
			return schedule.Task{}, false, err
		}
	}
	return t, true, nil
}

// Prune drops completion marks older than the retention window.
func (a *App) Prune(ctx context.Context) (int, error) {
	now := a.now().In(a.Location())
	retention := a.Resolved().Retention
	n := a.done.Prune(now, retention)
	if a.store == nil {
		return n, nil
	}
	stored, err := a.store.PruneCompletions(ctx, tasks.Cutoff(now, retention))
	if err != nil {
		return 0, err
	}
	a.log.Debug("completions pruned", logx.Int("memory", n), logx.Int("stored", stored))
	return max(n, stored), nil
}

func (a *App) saveTasks(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	ts, err := a.repo.List(ctx)
	if err != nil {
		return err
	}
	return a.store.SaveTasks(ctx, ts)
}

// Close flushes storage and logs.
func (a *App) Close(ctx context.Context) error {
	if a.notif != nil {
		a.notif.Stop(ctx)
	}
	return a.closeQuietly()
}

func (a *App) closeQuietly() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
		a.logs = nil
	}
	return errors.Join(errs...)
}

// alertSink forwards log alerts to the notifier once it exists.
type alertSink struct {
	n atomic.Pointer[notifier.Service]
}

func (s *alertSink) bind(n *notifier.Service) { s.n.Store(n) }

func (s *alertSink) Alert(ctx context.Context, text string) error {
	if n := s.n.Load(); n != nil {
		return n.Alert(ctx, text)
	}
	return nil
}
