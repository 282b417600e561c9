package notifier

import (
	"context"
	"time"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

// Priority levels. Higher values get a louder prefix.
const (
	PriorityInfo    = 5
	PriorityWarning = 7
	PriorityUrgent  = 9
)

// Message is one notification. Key identifies it for dedup; when empty the
// text itself is the identity.
type Message struct {
	Key      string
	Priority int
	Text     string
}

// Sender delivers a rendered message to a channel (Telegram, stdout, ...).
type Sender interface {
	Send(ctx context.Context, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, text string) error

func (f SenderFunc) Send(ctx context.Context, text string) error { return f(ctx, text) }

// DedupStore persists dedup windows across restarts.
type DedupStore interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
}

type HistoryItem struct {
	At   time.Time
	Text string
}

// NotificationEvent is the payload of notifier.* bus events.
type NotificationEvent struct {
	Key   string    `json:"key"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}
