package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"dayplan/internal/schedule"
	"dayplan/internal/tasks"
	logx "dayplan/pkg/logx"
)

// Store is the persistence API used by the CLI and the watch daemon.
type Store interface {
	// LoadTasks returns tasks in their stored order.
	LoadTasks(ctx context.Context) ([]schedule.Task, error)
	// SaveTasks replaces the whole task set.
	SaveTasks(ctx context.Context, ts []schedule.Task) error

	LoadCompletions(ctx context.Context) ([]tasks.Completion, error)
	PutCompletion(ctx context.Context, c tasks.Completion) error
	DeleteCompletion(ctx context.Context, c tasks.Completion) error
	// PruneCompletions drops marks dated before the given YYYY-MM-DD key.
	PruneCompletions(ctx context.Context, before string) (int, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
