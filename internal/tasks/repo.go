package tasks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"dayplan/internal/schedule"
)

// Repo stores task definitions in a stable, user-defined order. That order is
// what breaks start-time ties in the schedule.
type Repo interface {
	List(ctx context.Context) ([]schedule.Task, error)
	Get(ctx context.Context, id string) (schedule.Task, error)
	Create(ctx context.Context, t schedule.Task) (schedule.Task, error)
	Update(ctx context.Context, t schedule.Task) (schedule.Task, error)
	// Delete removes id and clears dependsOn on its direct dependents, which
	// are returned after the change.
	Delete(ctx context.Context, id string) ([]schedule.Task, error)
	Dependents(ctx context.Context, id string) ([]schedule.Task, error)
}

// MemoryRepo is a Repo guarded by a single RWMutex: one writer, many readers.
type MemoryRepo struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]schedule.Task

	now func() time.Time
}

// NewMemoryRepo seeds the repo with already-stored tasks. Seeds are not
// validated; the engine tolerates whatever older data contains.
func NewMemoryRepo(seed ...schedule.Task) *MemoryRepo {
	r := &MemoryRepo{
		tasks: make(map[string]schedule.Task, len(seed)),
		now:   time.Now,
	}
	for _, t := range seed {
		if t.ID == "" {
			t.ID = NewID()
		}
		if _, dup := r.tasks[t.ID]; dup {
			continue
		}
		r.order = append(r.order, t.ID)
		r.tasks[t.ID] = t
	}
	return r
}

// Replace swaps the whole task set, as loaded from storage. Like seeds, the
// tasks are not validated.
func (r *MemoryRepo) Replace(ts []schedule.Task) {
	fresh := NewMemoryRepo(ts...)
	r.mu.Lock()
	r.order, r.tasks = fresh.order, fresh.tasks
	r.mu.Unlock()
}

// SetClock replaces the clock used to stamp createdDate.
func (r *MemoryRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// NewID returns a fresh task id.
func NewID() string {
	return "task_" + uuid.NewString()
}

func (r *MemoryRepo) List(ctx context.Context) ([]schedule.Task, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(), nil
}

func (r *MemoryRepo) listLocked() []schedule.Task {
	out := make([]schedule.Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id])
	}
	return out
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (schedule.Task, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return schedule.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

func (r *MemoryRepo) Create(ctx context.Context, t schedule.Task) (schedule.Task, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		t.ID = NewID()
	}
	if _, dup := r.tasks[t.ID]; dup {
		return schedule.Task{}, fmt.Errorf("%w: %s", ErrExists, t.ID)
	}
	if err := r.checkLocked(&t); err != nil {
		return schedule.Task{}, err
	}
	if t.CreatedDate == "" {
		t.CreatedDate = r.now().UTC().Format(time.RFC3339)
	}

	r.order = append(r.order, t.ID)
	r.tasks[t.ID] = t
	return t, nil
}

func (r *MemoryRepo) Update(ctx context.Context, t schedule.Task) (schedule.Task, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.tasks[t.ID]
	if !ok {
		return schedule.Task{}, fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	if err := r.checkLocked(&t); err != nil {
		return schedule.Task{}, err
	}
	if t.CreatedDate == "" {
		t.CreatedDate = prev.CreatedDate
	}
	r.tasks[t.ID] = t
	return t, nil
}

// checkLocked normalizes and validates t against the current set.
func (r *MemoryRepo) checkLocked(t *schedule.Task) error {
	normalize(t)
	if err := Validate(*t); err != nil {
		return err
	}
	if t.DependsOn == "" {
		return nil
	}
	if _, ok := r.tasks[t.DependsOn]; !ok {
		return fmt.Errorf("%w: parent %s", ErrNotFound, t.DependsOn)
	}
	if WouldCreateCycle(r.listLocked(), t.ID, t.DependsOn) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, t.ID, t.DependsOn)
	}
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) ([]schedule.Task, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.tasks, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })

	var released []schedule.Task
	for _, oid := range r.order {
		t := r.tasks[oid]
		if t.DependsOn != id {
			continue
		}
		t.DependsOn = ""
		r.tasks[oid] = t
		released = append(released, t)
	}
	return released, nil
}

func (r *MemoryRepo) Dependents(ctx context.Context, id string) ([]schedule.Task, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []schedule.Task
	for _, oid := range r.order {
		if t := r.tasks[oid]; t.DependsOn == id {
			out = append(out, t)
		}
	}
	return out, nil
}

// Import adds a batch of tasks atomically. Tasks may depend on each other or
// on tasks already stored; the batch is rejected as a whole on the first
// invalid task, duplicate id, unknown parent or cycle.
func (r *MemoryRepo) Import(ctx context.Context, batch []schedule.Task) ([]schedule.Task, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	stamp := r.now().UTC().Format(time.RFC3339)
	known := make(map[string]bool, len(r.tasks)+len(batch))
	for id := range r.tasks {
		known[id] = true
	}

	added := make([]schedule.Task, 0, len(batch))
	for i, t := range batch {
		if t.ID == "" {
			t.ID = NewID()
		}
		if known[t.ID] {
			return nil, fmt.Errorf("task %d: %w: %s", i, ErrExists, t.ID)
		}
		known[t.ID] = true
		normalize(&t)
		if err := Validate(t); err != nil {
			return nil, fmt.Errorf("task %d (%s): %w", i, t.Name, err)
		}
		if t.CreatedDate == "" {
			t.CreatedDate = stamp
		}
		added = append(added, t)
	}

	all := append(r.listLocked(), added...)
	for _, t := range added {
		if t.DependsOn == "" {
			continue
		}
		if !known[t.DependsOn] {
			return nil, fmt.Errorf("task %s: %w: parent %s", t.ID, ErrNotFound, t.DependsOn)
		}
		// The edge is already part of all; walk from the parent back to t.
		if WouldCreateCycle(all, t.ID, t.DependsOn) {
			return nil, fmt.Errorf("task %s: %w", t.ID, ErrCycle)
		}
	}

	for _, t := range added {
		r.order = append(r.order, t.ID)
		r.tasks[t.ID] = t
	}
	return added, nil
}
