package config

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "dayplan/pkg/logx"
)

const (
	watchDebounce      = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// WatchFile calls onChange after the file at path is written, created,
// renamed or removed, debounced so an editor's burst of events becomes one
// call. The parent directory is watched, so atomic replace-by-rename works.
//
// fsnotify can stop delivering events (some editors and platforms trigger
// this); the watcher is recreated with jittered backoff. WatchFile returns
// nil once ctx ends.
func WatchFile(ctx context.Context, path string, log logx.Logger, onChange func()) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	dir := filepath.Dir(path)
	file := filepath.Base(path)
	log = log.With(logx.String("dir", dir), logx.String("file", file))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			if ctx.Err() == nil {
				onChange()
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sleep := func(reason string) bool {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		log.Warn(reason, logx.Duration("backoff", wait))
		backoff = min(backoff*2, restartBackoffMax)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
			return true
		}
	}

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			log.Debug("watcher init failed", logx.Err(err))
			if !sleep("file watch init failed; retrying") {
				return nil
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			log.Debug("watcher add failed", logx.Err(err))
			if !sleep("file watch add failed; retrying") {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		log.Debug("file watcher started")

		if !watchLoop(ctx, w, file, log, debounce) {
			_ = w.Close()
			return nil
		}
		_ = w.Close()
		if !sleep("file watcher stopped; restarting") {
			return nil
		}
	}
	return nil
}

// watchLoop pumps events until ctx ends (false) or the watcher breaks (true).
func watchLoop(ctx context.Context, w *fsnotify.Watcher, file string, log logx.Logger, changed func()) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-w.Events:
			if !ok {
				return true
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				log.Debug("file change detected", logx.String("op", ev.Op.String()))
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return true
			}
			if err == nil {
				continue
			}
			msg := strings.ToLower(err.Error())
			// Overflow means events were missed: reload once and keep going.
			if strings.Contains(msg, "overflow") {
				log.Warn("file watch overflow; forcing reload", logx.Err(err))
				changed()
				continue
			}
			log.Warn("file watch error", logx.Err(err))
			if strings.Contains(msg, "closed") {
				return true
			}
		}
	}
}
