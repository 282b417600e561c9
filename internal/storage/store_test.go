package storage

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"dayplan/internal/schedule"
	"dayplan/internal/tasks"
	logx "dayplan/pkg/logx"
)

func drivers(t *testing.T) map[string]Config {
	t.Helper()
	return map[string]Config{
		"file":   {Driver: "file", Path: filepath.Join(t.TempDir(), "dayplan")},
		"sqlite": {Driver: "sqlite", Path: filepath.Join(t.TempDir(), "dayplan.db"), BusyTimeout: time.Second},
	}
}

func sortedCompletions(in []tasks.Completion) []tasks.Completion {
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b tasks.Completion) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.TaskID, b.TaskID)
	})
	return out
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for file driver without path")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}

			empty, err := st.LoadTasks(ctx)
			if err != nil || len(empty) != 0 {
				t.Fatalf("LoadTasks on new store = %v, %v", empty, err)
			}

			in := []schedule.Task{
				{ID: "b", Name: "Second", Time: "9:00 AM", Duration: 30, Frequency: schedule.FrequencyDaily, BufferTime: schedule.IntPtr(0)},
				{ID: "a", Name: "First", Time: "8:00 AM", Duration: 45, Frequency: schedule.FrequencyWeekly, Weekday: schedule.IntPtr(3), DependsOn: "b"},
			}
			if err := st.SaveTasks(ctx, in); err != nil {
				t.Fatalf("SaveTasks: %v", err)
			}
			for _, c := range []tasks.Completion{
				{TaskID: "a", Date: "2026-09-01"},
				{TaskID: "a", Date: "2026-10-18"},
				{TaskID: "b", Date: "2026-10-18"},
			} {
				if err := st.PutCompletion(ctx, c); err != nil {
					t.Fatalf("PutCompletion: %v", err)
				}
			}
			if err := st.PutCompletion(ctx, tasks.Completion{TaskID: "b", Date: "2026-10-18"}); err != nil {
				t.Fatalf("duplicate PutCompletion: %v", err)
			}
			if err := st.DeleteCompletion(ctx, tasks.Completion{TaskID: "b", Date: "2026-10-18"}); err != nil {
				t.Fatalf("DeleteCompletion: %v", err)
			}
			until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			if err := st.PutDedup(ctx, "conflict:2026-10-18:9", until); err != nil {
				t.Fatalf("PutDedup: %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			// Reopen: everything must survive.
			st, err = Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st.Close()

			got, err := st.LoadTasks(ctx)
			if err != nil {
				t.Fatalf("LoadTasks: %v", err)
			}
			if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
				t.Fatalf("task order not kept: %+v", got)
			}
			if got[0].BufferTime == nil || *got[0].BufferTime != 0 {
				t.Fatalf("explicit zero buffer lost: %+v", got[0])
			}
			if got[1].Weekday == nil || *got[1].Weekday != 3 || got[1].DependsOn != "b" {
				t.Fatalf("optional fields lost: %+v", got[1])
			}

			done, err := st.LoadCompletions(ctx)
			if err != nil {
				t.Fatalf("LoadCompletions: %v", err)
			}
			want := []tasks.Completion{{TaskID: "a", Date: "2026-09-01"}, {TaskID: "a", Date: "2026-10-18"}}
			if !slices.Equal(sortedCompletions(done), want) {
				t.Fatalf("completions = %v, want %v", done, want)
			}

			n, err := st.PruneCompletions(ctx, "2026-09-18")
			if err != nil || n != 1 {
				t.Fatalf("PruneCompletions = %d, %v; want 1", n, err)
			}
			done, _ = st.LoadCompletions(ctx)
			if len(done) != 1 || done[0].Date != "2026-10-18" {
				t.Fatalf("after prune = %v", done)
			}

			gotUntil, ok, err := st.GetDedup(ctx, "conflict:2026-10-18:9")
			if err != nil || !ok || !gotUntil.Equal(until) {
				t.Fatalf("GetDedup = %v, %v, %v; want %v", gotUntil, ok, err, until)
			}
			if _, ok, _ := st.GetDedup(ctx, "missing"); ok {
				t.Fatal("GetDedup(missing) reported ok")
			}
		})
	}
}

func TestFileStoreSkipsTornJournalLine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "plan.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.PutCompletion(ctx, tasks.Completion{TaskID: "a", Date: "2026-10-18"}); err != nil {
		t.Fatal(err)
	}
	// Simulate a crash mid-write: a partial record at the end of the journal.
	fs := st.(*fileStore)
	journal := fs.doneJournal.Name()
	_ = fs.doneJournal.Close()
	fs.doneJournal = nil
	f, err := os.OpenFile(journal, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"op":"put","taskId":"b","da`)
	_ = f.Close()

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	done, _ := st2.LoadCompletions(ctx)
	if len(done) != 1 || done[0].TaskID != "a" {
		t.Fatalf("completions = %v", done)
	}

	// A record appended after the torn line must not be swallowed by it.
	if err := st2.PutCompletion(ctx, tasks.Completion{TaskID: "c", Date: "2026-10-18"}); err != nil {
		t.Fatal(err)
	}
	if err := st2.Close(); err != nil {
		t.Fatal(err)
	}
	st3, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st3.Close()
	done, _ = st3.LoadCompletions(ctx)
	got := sortedCompletions(done)
	if len(got) != 2 || got[0].TaskID != "a" || got[1].TaskID != "c" {
		t.Fatalf("completions after reopen = %v", got)
	}
}

func TestFileStoreOpenCloseKeepsSharedJournal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := Config{Driver: "file", Path: filepath.Join(t.TempDir(), "shared")}

	daemon, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer daemon.Close()
	if err := daemon.PutCompletion(ctx, tasks.Completion{TaskID: "gym", Date: "2026-10-18"}); err != nil {
		t.Fatal(err)
	}

	cli, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := cli.PutCompletion(ctx, tasks.Completion{TaskID: "read", Date: "2026-10-18"}); err != nil {
		t.Fatal(err)
	}
	if err := cli.Close(); err != nil {
		t.Fatal(err)
	}

	// Neither open nor close of the second process rewrote the journal.
	b, err := os.ReadFile(daemon.(*fileStore).doneJournalPath)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(b), "\n"); lines != 2 {
		t.Fatalf("journal has %d records, want 2:\n%s", lines, b)
	}

	// The daemon keeps appending to the same file after the other process left.
	if err := daemon.PutCompletion(ctx, tasks.Completion{TaskID: "walk", Date: "2026-10-18"}); err != nil {
		t.Fatal(err)
	}
	done, err := daemon.LoadCompletions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 3 {
		t.Fatalf("completions = %v", sortedCompletions(done))
	}
}

func TestFileStoreSeesOtherWriters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := Config{Driver: "file", Path: filepath.Join(t.TempDir(), "shared")}

	daemon, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer daemon.Close()
	cli, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if err := cli.PutCompletion(ctx, tasks.Completion{TaskID: "gym", Date: "2026-10-18"}); err != nil {
		t.Fatal(err)
	}
	if err := cli.Close(); err != nil {
		t.Fatal(err)
	}

	done, err := daemon.LoadCompletions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 || done[0].TaskID != "gym" {
		t.Fatalf("daemon completions = %v", done)
	}

	// The daemon's own prune must not resurrect or lose the other writer's mark.
	if n, err := daemon.PruneCompletions(ctx, "2026-10-01"); err != nil || n != 0 {
		t.Fatalf("prune = %d, %v", n, err)
	}
	done, _ = daemon.LoadCompletions(ctx)
	if len(done) != 1 {
		t.Fatalf("after prune completions = %v", done)
	}
}
