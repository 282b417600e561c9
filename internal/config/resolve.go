package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"dayplan/internal/notifier"
	"dayplan/internal/notifier/telegram"
	"dayplan/internal/observability/status"
	"dayplan/internal/schedule"
	"dayplan/internal/storage"
	logx "dayplan/pkg/logx"
)

const (
	DefaultRefresh   = "@every 5m"
	DefaultDigest    = "0 7 * * *"
	DefaultLookahead = 15 * time.Minute
	DefaultRetention = 30 * 24 * time.Hour
)

// CronParser accepts 5-field specs, 6-field specs with leading seconds, and
// descriptors such as "@every 5m" or "@daily".
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Resolved is Config with defaults applied and every string parsed.
type Resolved struct {
	Logging   logx.Config
	Schedule  schedule.Config
	Retention time.Duration
	Storage   storage.Config
	Watch     WatchSettings
	Notifier  notifier.Config
	Telegram  telegram.Config
	Status    status.Config
}

type WatchSettings struct {
	Refresh   string
	Digest    string // empty when disabled
	Lookahead time.Duration
	TasksFile string
}

// Resolve validates cfg and maps it onto the runtime configs of each
// component. A nil cfg resolves as Default().
func (c *Config) Resolve() (Resolved, error) {
	if c == nil {
		c = Default()
	}
	var (
		out Resolved
		err error
	)

	out.Logging, err = mapLogging(c.Logging)
	if err != nil {
		return Resolved{}, err
	}
	out.Schedule, out.Retention, err = mapSchedule(c.Schedule)
	if err != nil {
		return Resolved{}, err
	}
	out.Storage, err = mapStorage(c.Storage)
	if err != nil {
		return Resolved{}, err
	}
	out.Watch, err = mapWatch(c.Watch)
	if err != nil {
		return Resolved{}, err
	}
	out.Notifier, out.Telegram, err = mapNotifier(c.Notifier)
	if err != nil {
		return Resolved{}, err
	}
	out.Status, err = mapStatus(c.Status)
	if err != nil {
		return Resolved{}, err
	}
	return out, nil
}

// Validate reports the first problem Resolve would hit.
func Validate(c *Config) error {
	_, err := c.Resolve()
	return err
}

func mapLogging(l LoggingConfig) (logx.Config, error) {
	out := logx.Config{
		Level:   strings.ToLower(strings.TrimSpace(l.Level)),
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: strings.TrimSpace(l.File.Path)},
		Alerts: logx.AlertConfig{
			Enabled:    l.Alerts.Enabled,
			MinLevel:   strings.ToLower(strings.TrimSpace(l.Alerts.MinLevel)),
			RatePerSec: l.Alerts.RatePerSec,
		},
	}
	if out.Level == "" {
		out.Level = "info"
	}
	if !knownLevel(out.Level) {
		return logx.Config{}, fmt.Errorf("logging.level: unknown level %q", l.Level)
	}
	if out.File.Enabled && out.File.Path == "" {
		return logx.Config{}, fmt.Errorf("logging.file.path is required when file logging is enabled")
	}
	if out.Alerts.MinLevel == "" {
		out.Alerts.MinLevel = "warn"
	}
	if !knownLevel(out.Alerts.MinLevel) {
		return logx.Config{}, fmt.Errorf("logging.alerts.min_level: unknown level %q", l.Alerts.MinLevel)
	}
	if out.Alerts.RatePerSec < 0 {
		return logx.Config{}, fmt.Errorf("logging.alerts.rate_per_sec must be >= 0")
	}
	return out, nil
}

func knownLevel(s string) bool {
	switch s {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
		return true
	}
	return false
}

func mapSchedule(s ScheduleConfig) (schedule.Config, time.Duration, error) {
	out := schedule.Config{
		MaxDependencyDepth: s.MaxDependencyDepth,
		DefaultBuffer:      s.DefaultBuffer,
		DefaultDuration:    s.DefaultDuration,
	}
	if out.MaxDependencyDepth < 0 {
		return schedule.Config{}, 0, fmt.Errorf("schedule.max_dependency_depth must be >= 0")
	}
	if out.DefaultBuffer != nil && (*out.DefaultBuffer < 0 || *out.DefaultBuffer > 60) {
		return schedule.Config{}, 0, fmt.Errorf("schedule.default_buffer must be within 0..60")
	}
	if out.DefaultDuration < 0 || out.DefaultDuration > 480 {
		return schedule.Config{}, 0, fmt.Errorf("schedule.default_duration must be within 0..480")
	}
	if fb := strings.TrimSpace(s.FallbackTime); fb != "" {
		tod, err := schedule.ParseClock(fb)
		if err != nil {
			return schedule.Config{}, 0, fmt.Errorf("schedule.fallback_time: %w", err)
		}
		out.FallbackTime = &tod
	}
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return schedule.Config{}, 0, fmt.Errorf("schedule.timezone: %w", err)
		}
		out.Location = loc
	}
	retention, err := ParseDurationOrDefault("schedule.completion_retention", s.CompletionRetention, DefaultRetention)
	if err != nil {
		return schedule.Config{}, 0, err
	}
	return out, retention, nil
}

func mapStorage(s *StorageConfig) (storage.Config, error) {
	if s == nil {
		return storage.Config{}, nil
	}
	out := storage.Config{
		Driver: strings.ToLower(strings.TrimSpace(s.Driver)),
		Path:   strings.TrimSpace(s.Path),
	}
	switch out.Driver {
	case "", "none":
		return storage.Config{}, nil
	case "file", "sqlite":
	default:
		return storage.Config{}, fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
	}
	if out.Path == "" {
		return storage.Config{}, fmt.Errorf("storage.path is required for driver %s", out.Driver)
	}
	var err error
	out.BusyTimeout, err = ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return out, nil
}

func mapWatch(w WatchConfig) (WatchSettings, error) {
	out := WatchSettings{
		Refresh:   strings.TrimSpace(w.Refresh),
		Digest:    strings.TrimSpace(w.Digest),
		TasksFile: strings.TrimSpace(w.TasksFile),
	}
	if out.Refresh == "" {
		out.Refresh = DefaultRefresh
	}
	if _, err := CronParser.Parse(out.Refresh); err != nil {
		return WatchSettings{}, fmt.Errorf("watch.refresh: %w", err)
	}
	switch strings.ToLower(out.Digest) {
	case "":
		out.Digest = DefaultDigest
	case "off", "none":
		out.Digest = ""
	}
	if out.Digest != "" {
		if _, err := CronParser.Parse(out.Digest); err != nil {
			return WatchSettings{}, fmt.Errorf("watch.digest: %w", err)
		}
	}
	var err error
	out.Lookahead, err = ParseDurationOrDefault("watch.lookahead", w.Lookahead, DefaultLookahead)
	if err != nil {
		return WatchSettings{}, err
	}
	return out, nil
}

func mapNotifier(n *NotifierConfig) (notifier.Config, telegram.Config, error) {
	out := notifier.Config{
		Workers:         1,
		QueueSize:       256,
		RatePerSec:      1,
		RetryMax:        3,
		RetryBase:       500 * time.Millisecond,
		RetryMaxDelay:   10 * time.Second,
		DedupWindow:     6 * time.Hour,
		DedupMaxEntries: 2000,
	}
	if n == nil || !n.Enabled {
		return out, telegram.Config{}, nil
	}
	out.Enabled = true
	out.PersistDedup = n.PersistDedup
	if n.Workers != 0 {
		out.Workers = n.Workers
	}
	if n.QueueSize != 0 {
		out.QueueSize = n.QueueSize
	}
	if n.RatePerSec != 0 {
		out.RatePerSec = n.RatePerSec
	}
	if n.RetryMax != 0 {
		out.RetryMax = n.RetryMax
	}
	if n.DedupMaxEntries != 0 {
		out.DedupMaxEntries = n.DedupMaxEntries
	}

	var err error
	if out.RetryBase, err = ParseDurationOrDefault("notifier.retry_base", n.RetryBase, out.RetryBase); err != nil {
		return notifier.Config{}, telegram.Config{}, err
	}
	if out.RetryMaxDelay, err = ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, out.RetryMaxDelay); err != nil {
		return notifier.Config{}, telegram.Config{}, err
	}
	if out.DedupWindow, err = ParseDurationOrDefault("notifier.dedup_window", n.DedupWindow, out.DedupWindow); err != nil {
		return notifier.Config{}, telegram.Config{}, err
	}

	for name, v := range map[string]int{
		"notifier.workers":           out.Workers,
		"notifier.queue_size":        out.QueueSize,
		"notifier.rate_per_sec":      out.RatePerSec,
		"notifier.retry_max":         out.RetryMax,
		"notifier.dedup_max_entries": out.DedupMaxEntries,
	} {
		if v < 0 {
			return notifier.Config{}, telegram.Config{}, fmt.Errorf("%s must be >= 0", name)
		}
	}

	tg := telegram.Config{
		Token:    strings.TrimSpace(n.Telegram.Token),
		ChatID:   n.Telegram.ChatID,
		ThreadID: n.Telegram.ThreadID,
	}
	if tg.Token == "" {
		return notifier.Config{}, telegram.Config{}, fmt.Errorf("notifier.telegram.token is required when the notifier is enabled")
	}
	if tg.ChatID == 0 {
		return notifier.Config{}, telegram.Config{}, fmt.Errorf("notifier.telegram.chat_id is required when the notifier is enabled")
	}
	return out, tg, nil
}

func mapStatus(st *StatusConfig) (status.Config, error) {
	if st == nil || !st.Enabled {
		return status.Config{}, nil
	}
	out := status.Config{
		Enabled:       true,
		Addr:          strings.TrimSpace(st.Addr),
		Token:         strings.TrimSpace(st.Token),
		AllowInsecure: st.AllowInsecure,
		Pprof:         st.Pprof,
	}
	if out.Addr == "" {
		out.Addr = status.DefaultAddr
	}
	if _, _, err := net.SplitHostPort(out.Addr); err != nil {
		return status.Config{}, fmt.Errorf("status.addr: %w", err)
	}
	var err error
	if out.ReadTimeout, err = ParseDurationOrDefault("status.read_timeout", st.ReadTimeout, 10*time.Second); err != nil {
		return status.Config{}, err
	}
	if out.WriteTimeout, err = ParseDurationField("status.write_timeout", st.WriteTimeout); err != nil {
		return status.Config{}, err
	}
	return out, nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
