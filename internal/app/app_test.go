package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/schedule"
	"dayplan/internal/tasks"
)

var testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func writeConfig(t *testing.T, dir, driver string) string {
	t.Helper()
	path := filepath.Join(dir, "dayplan.yaml")
	src := "logging:\n  level: error\nschedule:\n  timezone: UTC\nstorage:\n  driver: " + driver +
		"\n  path: " + filepath.Join(dir, "data") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func open(t *testing.T, cfgPath string) *App {
	t.Helper()
	a, err := New(context.Background(), cfgPath, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func daily(name, at string) schedule.Task {
	return schedule.Task{Name: name, Time: at, Duration: 30, Frequency: schedule.FrequencyDaily}
}

func TestTasksPersistAcrossRuns(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			cfg := writeConfig(t, t.TempDir(), driver)
			ctx := context.Background()

			a := open(t, cfg)
			gym, err := a.AddTask(ctx, daily("Gym", "7:00 AM"))
			require.NoError(t, err)
			_, changed, err := a.MarkDone(ctx, "gym", testNow, true)
			require.NoError(t, err)
			assert.True(t, changed)
			require.NoError(t, a.Close(ctx))

			b := open(t, cfg)
			ts, err := b.ListTasks(ctx)
			require.NoError(t, err)
			require.Len(t, ts, 1)
			assert.Equal(t, gym.ID, ts[0].ID)
			assert.True(t, b.Completions().IsCompleted(gym.ID, "2026-10-19"))

			days, err := b.Schedule(ctx, testNow, time.Time{}, 2)
			require.NoError(t, err)
			require.Len(t, days, 2)
			require.Len(t, days[0].Instances, 1)
			assert.True(t, days[0].Instances[0].Completed)
			assert.False(t, days[1].Instances[0].Completed)
		})
	}
}

func TestMissingConfigUsesMemory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "dayplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\nstorage:\n  driver: none\n"), 0o600))

	a := open(t, path)
	_, err := a.AddTask(context.Background(), daily("Read", "9:00 PM"))
	require.NoError(t, err)
	_, err = a.Prune(context.Background())
	require.NoError(t, err)
}

func TestFindTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := open(t, writeConfig(t, t.TempDir(), "file"))

	walk, err := a.AddTask(ctx, daily("Walk", "8:00 AM"))
	require.NoError(t, err)
	_, err = a.AddTask(ctx, daily("Call", "9:00 AM"))
	require.NoError(t, err)
	_, err = a.AddTask(ctx, daily("call", "5:00 PM"))
	require.NoError(t, err)

	got, err := a.FindTask(ctx, walk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Walk", got.Name)

	got, err = a.FindTask(ctx, " WALK ")
	require.NoError(t, err)
	assert.Equal(t, walk.ID, got.ID)

	_, err = a.FindTask(ctx, "call")
	assert.ErrorIs(t, err, ErrAmbiguous)

	_, err = a.FindTask(ctx, "swim")
	assert.ErrorIs(t, err, tasks.ErrNotFound)
}

func TestRemoveTaskReleasesDependents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := writeConfig(t, t.TempDir(), "file")
	a := open(t, cfg)

	gym, err := a.AddTask(ctx, daily("Gym", "7:00 AM"))
	require.NoError(t, err)
	shower := daily("Shower", "9:00 AM")
	shower.DependsOn = gym.ID
	shower, err = a.AddTask(ctx, shower)
	require.NoError(t, err)
	_, _, err = a.MarkDone(ctx, "Gym", testNow, true)
	require.NoError(t, err)

	removed, released, err := a.RemoveTask(ctx, "gym")
	require.NoError(t, err)
	assert.Equal(t, gym.ID, removed.ID)
	require.Len(t, released, 1)
	assert.Equal(t, shower.ID, released[0].ID)
	assert.Empty(t, released[0].DependsOn)
	assert.False(t, a.Completions().IsCompleted(gym.ID, "2026-10-19"))

	b := open(t, cfg)
	ts, err := b.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Empty(t, ts[0].DependsOn)
}

func TestMarkDoneUndo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := open(t, writeConfig(t, t.TempDir(), "file"))
	_, err := a.AddTask(ctx, daily("Gym", "7:00 AM"))
	require.NoError(t, err)

	_, changed, err := a.MarkDone(ctx, "Gym", testNow, false)
	require.NoError(t, err)
	assert.False(t, changed, "clearing an unset mark is a no-op")

	_, changed, err = a.MarkDone(ctx, "Gym", testNow, true)
	require.NoError(t, err)
	assert.True(t, changed)
	_, changed, err = a.MarkDone(ctx, "Gym", testNow, true)
	require.NoError(t, err)
	assert.False(t, changed)
	_, changed, err = a.MarkDone(ctx, "Gym", testNow, false)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestImportReplaceKeepsIDsByName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	a := open(t, writeConfig(t, dir, "file"))

	file := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
tasks:
  - name: Gym
    time: "7:00 AM"
    duration: 45
    frequency: daily
  - name: Lunch
    time: "12:00 PM"
    duration: 30
    frequency: daily
`), 0o600))

	first, err := a.ImportFile(ctx, file, true)
	require.NoError(t, err)
	require.Len(t, first, 2)

	require.NoError(t, os.WriteFile(file, []byte(`
tasks:
  - name: gym
    time: "6:30 AM"
    duration: 45
    frequency: daily
`), 0o600))
	second, err := a.ImportFile(ctx, file, true)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)

	ts, err := a.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "6:30 AM", ts[0].Time)

	// Appending keeps what is there.
	_, err = a.ImportFile(ctx, file, false)
	require.NoError(t, err)
	ts, err = a.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, ts, 2)
}

func TestPruneDropsOldMarks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := writeConfig(t, t.TempDir(), "sqlite")
	a := open(t, cfg)
	gym, err := a.AddTask(ctx, daily("Gym", "7:00 AM"))
	require.NoError(t, err)

	_, _, err = a.MarkDone(ctx, "Gym", testNow.AddDate(0, -3, 0), true)
	require.NoError(t, err)
	_, _, err = a.MarkDone(ctx, "Gym", testNow, true)
	require.NoError(t, err)

	n, err := a.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, a.Completions().IsCompleted(gym.ID, "2026-07-19"))
	assert.True(t, a.Completions().IsCompleted(gym.ID, "2026-10-19"))

	b := open(t, cfg)
	assert.False(t, b.Completions().IsCompleted(gym.ID, "2026-07-19"))
}
