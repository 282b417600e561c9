package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("30s", "5m", "720h"). Cron fields take
// anything robfig/cron's standard parser accepts, descriptors included
// ("@every 5m", "0 7 * * *").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Schedule ScheduleConfig `json:"schedule"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Watch    WatchConfig    `json:"watch"`

	// Notifier is disabled when omitted.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Status is the watch daemon's HTTP endpoint, off when omitted.
	Status *StatusConfig `json:"status,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Alerts  LoggingAlerts `json:"alerts"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlerts forwards WARN+ log records to the notifier.
type LoggingAlerts struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ScheduleConfig tunes the schedule engine.
//
// Defaults (when fields are omitted/zero):
//   - timezone: the process local zone
//   - max_dependency_depth: 10
//   - default_buffer: 5 (an explicit 0 is honored)
//   - default_duration: 30
//   - fallback_time: "9:00 AM"
//   - completion_retention: "720h"
type ScheduleConfig struct {
	Timezone            string `json:"timezone,omitempty"`
	MaxDependencyDepth  int    `json:"max_dependency_depth,omitempty"`
	DefaultBuffer       *int   `json:"default_buffer,omitempty"`
	DefaultDuration     int    `json:"default_duration,omitempty"`
	FallbackTime        string `json:"fallback_time,omitempty"`
	CompletionRetention string `json:"completion_retention,omitempty"`
}

// StorageConfig controls persistence. Nil or driver "none" keeps everything
// in memory for the life of the process.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/dayplan.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// WatchConfig drives the long-running watch command.
//
// Defaults: refresh "@every 5m", digest "0 7 * * *", lookahead "15m".
// An explicit digest of "off" disables the daily digest.
type WatchConfig struct {
	Refresh   string `json:"refresh,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Lookahead string `json:"lookahead,omitempty"`

	// TasksFile, when set, is a YAML/JSON task file that is imported on
	// start and re-imported whenever it changes.
	TasksFile string `json:"tasks_file,omitempty"`
}

// NotifierConfig controls the async notification pipeline and its Telegram
// destination.
type NotifierConfig struct {
	Enabled         bool           `json:"enabled"`
	Workers         int            `json:"workers,omitempty"`
	QueueSize       int            `json:"queue_size,omitempty"`
	RatePerSec      int            `json:"rate_per_sec,omitempty"`
	RetryMax        int            `json:"retry_max,omitempty"`
	RetryBase       string         `json:"retry_base,omitempty"`
	RetryMaxDelay   string         `json:"retry_max_delay,omitempty"`
	DedupWindow     string         `json:"dedup_window,omitempty"`
	DedupMaxEntries int            `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool           `json:"persist_dedup,omitempty"`
	Telegram        TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// StatusConfig serves /healthz and /schedule (and optionally pprof) while
// the watch daemon runs. A non-loopback addr needs a token or
// allow_insecure.
type StatusConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default 127.0.0.1:7070
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
}

// Default is the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: &StorageConfig{Driver: "file", Path: "data/dayplan"},
	}
}
