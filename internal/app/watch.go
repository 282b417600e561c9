package app

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/eventbus"
	"dayplan/internal/observability/status"
	"dayplan/internal/runtime/supervisor"
	"dayplan/internal/schedule"
	"dayplan/internal/watch"
	logx "dayplan/pkg/logx"
)

// watchPather is implemented by storage backends whose files can change
// under a running daemon.
type watchPather interface {
	WatchPaths() []string
}

// Watch runs the daemon until ctx ends: the watch service, the config file
// watcher and live reload of logging, notifier, schedule and cron settings.
func (a *App) Watch(ctx context.Context, sd watch.SystemdNotifier) error {
	if n, err := a.Prune(ctx); err != nil {
		a.log.Warn("prune failed", logx.Err(err))
	} else if n > 0 {
		a.log.Info("old completions pruned", logx.Int("count", n))
	}

	res := a.Resolved()
	tasksFile := res.Watch.TasksFile
	if tasksFile != "" {
		if _, err := a.ImportFile(ctx, tasksFile, true); err != nil {
			return err
		}
	}

	files := []string{}
	if tasksFile != "" {
		files = append(files, tasksFile)
	}
	if wp, ok := a.store.(watchPather); ok {
		files = append(files, wp.WatchPaths()...)
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	// Workers outlive ctx so Stop can drain the queue.
	nctx := context.WithoutCancel(ctx)
	a.notif.Start(nctx)

	svc, err := watch.New(res.Watch, watch.Deps{
		Source:   a,
		Engine:   a.Engine(),
		Notifier: a.notif,
		Bus:      a.bus,
		Systemd:  sd,
		Log:      a.log,
		Files:    files,
		OnFileChange: func(ctx context.Context, path string) error {
			if tasksFile != "" && samePath(path, tasksFile) {
				_, err := a.ImportFile(ctx, path, true)
				return err
			}
			// Storage files are picked up by the refresh's Sync.
			return nil
		},
		Location: a.Location(),
		Now:      a.now,
	})
	if err != nil {
		return err
	}

	statusSrv := status.New(res.Status, svc, a.log)
	statusSrv.Start(sup.Context())

	cfgCh := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(cfgCh)

	sup.Go("watch", svc.Run)
	sup.GoRestart("config.watch", a.cfgm.Watch)
	sup.Go0("config.apply", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-cfgCh:
				if !ok {
					return
				}
				a.applyConfig(nctx, cfg, svc)
				statusSrv.Reconfigure(ctx, a.Resolved().Status)
			}
		}
	})
	sup.Go0("events.log", func(ctx context.Context) { a.logEvents(ctx) })

	<-sup.Context().Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	statusSrv.Stop(stopCtx)
	werr := sup.Stop(stopCtx)
	a.notif.Stop(stopCtx)
	if errors.Is(werr, context.Canceled) {
		return nil
	}
	return werr
}

// applyConfig swaps the live parts of a reloaded config. Storage and the
// Telegram credentials are bound at startup and need a restart.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config, svc *watch.Service) {
	res, err := cfg.Resolve()
	if err != nil {
		a.log.Error("config reload rejected", logx.Err(err))
		return
	}

	a.mu.Lock()
	old := a.res
	a.mu.Unlock()

	if !reflect.DeepEqual(old.Storage, res.Storage) {
		a.log.Warn("storage settings changed; restart required")
	}
	if old.Telegram != res.Telegram || (!old.Notifier.Enabled && res.Notifier.Enabled) {
		a.log.Warn("telegram settings changed; restart required")
	}

	a.logs.Apply(res.Logging)
	a.notif.Apply(res.Notifier)
	a.notif.Start(ctx)
	eng := schedule.New(res.Schedule, a.log.With(logx.String("comp", "schedule")))

	a.mu.Lock()
	a.res = res
	a.engine = eng
	a.mu.Unlock()

	loc := res.Schedule.Location
	if loc == nil {
		loc = time.Local
	}
	if err := svc.Apply(res.Watch, eng, loc); err != nil {
		a.log.Error("watch settings rejected", logx.Err(err))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigApplied, Data: cfg})
	a.log.Info("config applied")
}

func (a *App) logEvents(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			switch e.Type {
			case eventbus.ScheduleFailed, eventbus.NotifierFailed, eventbus.NotifierDropped:
				a.log.Warn("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			default:
				a.log.Debug("event", logx.String("type", e.Type))
			}
		}
	}
}

func samePath(a, b string) bool {
	if a == b {
		return true
	}
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}
