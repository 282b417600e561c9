package tasks

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompletionsSetToggle(t *testing.T) {
	t.Parallel()
	c := NewCompletions(Completion{TaskID: "a", Date: "2026-10-18"})

	assert.True(t, c.IsCompleted("a", "2026-10-18"))
	assert.False(t, c.IsCompleted("a", "2026-10-19"))

	assert.False(t, c.Set("a", "2026-10-18", true), "already set")
	assert.True(t, c.Set("b", "2026-10-18", true))
	assert.True(t, c.Set("a", "2026-10-18", false))
	assert.False(t, c.Set("a", "2026-10-18", false), "already unset")

	assert.True(t, c.Toggle("a", "2026-10-19"))
	assert.False(t, c.Toggle("a", "2026-10-19"))

	assert.Equal(t, []Completion{{TaskID: "b", Date: "2026-10-18"}}, c.Entries())
}

func TestCompletionsPrune(t *testing.T) {
	t.Parallel()
	c := NewCompletions(
		Completion{TaskID: "a", Date: "2026-09-17"},
		Completion{TaskID: "b", Date: "2026-09-17"},
		Completion{TaskID: "a", Date: "2026-09-18"},
		Completion{TaskID: "a", Date: "2026-10-18"},
	)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "2026-09-18", Cutoff(now, 0))
	assert.Equal(t, 2, c.Prune(now, DefaultRetention))
	assert.Equal(t, []Completion{
		{TaskID: "a", Date: "2026-09-18"},
		{TaskID: "a", Date: "2026-10-18"},
	}, c.Entries())

	assert.Equal(t, 1, c.Prune(now, 24*time.Hour))
}

func TestCompletionsForgetTask(t *testing.T) {
	t.Parallel()
	c := NewCompletions(
		Completion{TaskID: "a", Date: "2026-10-17"},
		Completion{TaskID: "a", Date: "2026-10-18"},
		Completion{TaskID: "b", Date: "2026-10-18"},
	)
	c.ForgetTask("a")
	assert.Equal(t, []Completion{{TaskID: "b", Date: "2026-10-18"}}, c.Entries())
}

func TestCompletionsConcurrentReaders(t *testing.T) {
	t.Parallel()
	c := NewCompletions()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Toggle("a", "2026-10-18")
				_ = c.IsCompleted("a", "2026-10-18")
			}
		}()
	}
	wg.Wait()
	// 8*200 toggles is even.
	assert.False(t, c.IsCompleted("a", "2026-10-18"))
}

func TestCompletionsReset(t *testing.T) {
	t.Parallel()
	c := NewCompletions(Completion{TaskID: "a", Date: "2026-10-18"})
	c.Reset([]Completion{{TaskID: "b", Date: "2026-10-18"}})
	assert.False(t, c.IsCompleted("a", "2026-10-18"))
	assert.True(t, c.IsCompleted("b", "2026-10-18"))

	c.Reset(nil)
	assert.Empty(t, c.Entries())
}
