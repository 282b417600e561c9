package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/config"
	"dayplan/internal/eventbus"
	"dayplan/internal/notifier"
	"dayplan/internal/schedule"
	logx "dayplan/pkg/logx"
)

type fakeSource struct {
	mu      sync.Mutex
	snap    *schedule.Snapshot
	syncErr error
	syncs   int
}

func (f *fakeSource) Sync(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return f.syncErr
}

func (f *fakeSource) Snapshot(context.Context) (*schedule.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	msgs  []notifier.Message
	fails int
}

func (f *fakeNotifier) Notify(_ context.Context, m notifier.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return notifier.ErrQueueFull
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeNotifier) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.Key
	}
	return out
}

type fakeSystemd struct {
	ready, stopping atomic.Int32
	status          atomic.Value
}

func (f *fakeSystemd) Ready() (bool, error)    { f.ready.Add(1); return true, nil }
func (f *fakeSystemd) Stopping() (bool, error) { f.stopping.Add(1); return true, nil }
func (f *fakeSystemd) Status(msg string) (bool, error) {
	f.status.Store(msg)
	return true, nil
}
func (f *fakeSystemd) RunWatchdog(ctx context.Context, _ func() bool) error {
	<-ctx.Done()
	return nil
}

func at(day, h, m int) time.Time { return time.Date(2026, time.October, day, h, m, 0, 0, time.UTC) }

func dayTasks() []schedule.Task {
	return []schedule.Task{
		{ID: "a", Name: "Standup", Time: "9:00 AM", Duration: 30, Frequency: schedule.FrequencyDaily},
		{ID: "b", Name: "Review", Time: "9:00 AM", Duration: 30, Frequency: schedule.FrequencyDaily},
		{ID: "c", Name: "Email", Time: "9:00 AM", Duration: 30, Frequency: schedule.FrequencyDaily},
		{ID: "g", Name: "Gym", Time: "7:00 AM", Duration: 45, Frequency: schedule.FrequencyDaily, Required: true},
		{ID: "l", Name: "Lunch", Time: "10:40 AM", Duration: 30, Frequency: schedule.FrequencyDaily},
	}
}

type harness struct {
	svc    *Service
	src    *fakeSource
	notify *fakeNotifier
	bus    eventbus.Bus
	now    atomic.Value
}

func newHarness(t *testing.T, settings config.WatchSettings) *harness {
	t.Helper()
	h := &harness{
		src:    &fakeSource{snap: &schedule.Snapshot{Tasks: dayTasks()}},
		notify: &fakeNotifier{},
		bus:    eventbus.New(),
	}
	h.now.Store(at(19, 10, 30))
	svc, err := New(settings, Deps{
		Source:   h.src,
		Engine:   schedule.New(schedule.Config{Location: time.UTC}, logx.Nop()),
		Notifier: h.notify,
		Bus:      h.bus,
		Location: time.UTC,
		Now:      func() time.Time { return h.now.Load().(time.Time) },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func defaultSettings() config.WatchSettings {
	return config.WatchSettings{Refresh: "@every 1h", Lookahead: 15 * time.Minute}
}

func TestNewRequiresSource(t *testing.T) {
	t.Parallel()
	_, err := New(defaultSettings(), Deps{})
	assert.Error(t, err)
}

func TestRefreshNotifiesOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultSettings())
	events, unsub := h.bus.Subscribe(8)
	defer unsub()
	ctx := context.Background()

	ds, err := h.svc.Refresh(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", ds.Date)

	assert.ElementsMatch(t, []string{
		"conflict:2026-10-19:9",
		"overdue:g@2026-10-19",
		"upcoming:l@2026-10-19",
	}, h.notify.keys())

	byKey := map[string]notifier.Message{}
	for _, m := range h.notify.msgs {
		byKey[m.Key] = m
	}
	assert.Equal(t, "3 tasks overlap at 9 AM", byKey["conflict:2026-10-19:9"].Text)
	assert.Equal(t, notifier.PriorityUrgent, byKey["overdue:g@2026-10-19"].Priority)
	assert.Equal(t, "Lunch starts 10 minutes from now (10:40 AM)", byKey["upcoming:l@2026-10-19"].Text)

	e := <-events
	assert.Equal(t, eventbus.ScheduleComputed, e.Type)
	computed, ok := e.Data.(Computed)
	require.True(t, ok)
	assert.Equal(t, "test", computed.Reason)
	assert.Same(t, ds, computed.Schedule)

	_, err = h.svc.Refresh(ctx, "test")
	require.NoError(t, err)
	assert.Len(t, h.notify.keys(), 3, "nothing new on the second refresh")
	assert.Equal(t, 2, h.src.syncs)
}

func TestRefreshSkipsCompletedAndResetsPerDay(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.WatchSettings{Refresh: "@every 1h"})
	h.src.snap.Completions = schedule.CompletionFunc(func(taskID, _ string) bool { return taskID == "g" })
	ctx := context.Background()

	_, err := h.svc.Refresh(ctx, "test")
	require.NoError(t, err)
	// No lookahead configured and Gym is done: only the conflict remains.
	assert.Equal(t, []string{"conflict:2026-10-19:9"}, h.notify.keys())

	h.now.Store(at(20, 10, 30))
	_, err = h.svc.Refresh(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"conflict:2026-10-19:9", "conflict:2026-10-20:9"}, h.notify.keys())
}

func TestRefreshRetriesFailedNotifications(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.WatchSettings{Refresh: "@every 1h"})
	h.src.snap.Tasks = dayTasks()[:3]
	h.notify.fails = 1
	ctx := context.Background()

	_, err := h.svc.Refresh(ctx, "test")
	require.NoError(t, err)
	assert.Empty(t, h.notify.keys())

	_, err = h.svc.Refresh(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"conflict:2026-10-19:9"}, h.notify.keys())
}

func TestRefreshFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultSettings())
	h.src.syncErr = errors.New("disk gone")
	events, unsub := h.bus.Subscribe(8)
	defer unsub()

	_, err := h.svc.Refresh(context.Background(), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.False(t, h.svc.Healthy())

	e := <-events
	assert.Equal(t, eventbus.ScheduleFailed, e.Type)
}

func TestHealthyAfterRefresh(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultSettings())
	assert.False(t, h.svc.Healthy(), "no refresh yet")
	_, _, ok := h.svc.Current()
	assert.False(t, ok)

	ds, err := h.svc.Refresh(context.Background(), "test")
	require.NoError(t, err)
	assert.True(t, h.svc.Healthy())

	cur, at, ok := h.svc.Current()
	require.True(t, ok)
	assert.Same(t, ds, cur)
	assert.Equal(t, "2026-10-19", schedule.DateKey(at))
}

func TestSendDigest(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultSettings())
	require.NoError(t, h.svc.SendDigest(context.Background()))
	require.Len(t, h.notify.msgs, 1)
	m := h.notify.msgs[0]
	assert.Equal(t, "digest:2026-10-19", m.Key)
	assert.Contains(t, m.Text, "Plan for Monday, October 19 2026")
}

func TestDisabledNotifierIsNotAnError(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultSettings())
	disabled := notifier.New(notifier.Config{}, nil, logx.Nop(), nil, nil)
	h.svc.deps.Notifier = disabled
	assert.NoError(t, h.svc.SendDigest(context.Background()))
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, defaultSettings())
	sd := &fakeSystemd{}
	h.svc.deps.Systemd = sd

	dir := t.TempDir()
	tasksFile := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(tasksFile, []byte("[]\n"), 0o600))
	var reloads atomic.Int32
	h.svc.deps.Files = []string{tasksFile}
	h.svc.deps.OnFileChange = func(context.Context, string) error { reloads.Add(1); return nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.svc.Run(ctx) }()

	require.Eventually(t, func() bool { return sd.ready.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, sd.status.Load(), "5 tasks")

	require.Eventually(t, func() bool {
		_ = os.WriteFile(tasksFile, []byte("# touched\n[]\n"), 0o600)
		return reloads.Load() > 0
	}, 5*time.Second, 300*time.Millisecond)

	require.NoError(t, h.svc.Apply(config.WatchSettings{Refresh: "@every 30m"}, nil, time.UTC))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, int32(1), sd.stopping.Load())
}
