package config

import (
	"reflect"
	"sort"
	"strings"

	logx "dayplan/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and
// structured attrs safe to log. Secrets (the Telegram token) are reported
// only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alerts_enabled", newCfg.Logging.Alerts.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedule")
		s := newCfg.Schedule
		buffer := -1
		if s.DefaultBuffer != nil {
			buffer = *s.DefaultBuffer
		}
		attrs = append(attrs,
			logx.String("schedule.timezone", strings.TrimSpace(s.Timezone)),
			logx.Int("schedule.max_dependency_depth", s.MaxDependencyDepth),
			logx.Int("schedule.default_buffer", buffer),
			logx.Int("schedule.default_duration", s.DefaultDuration),
			logx.String("schedule.fallback_time", strings.TrimSpace(s.FallbackTime)),
			logx.String("schedule.completion_retention", strings.TrimSpace(s.CompletionRetention)),
		)
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if strings.TrimSpace(oS.Driver) != strings.TrimSpace(nS.Driver) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nS.BusyTimeout)),
		)
	}

	if oldCfg.Watch != newCfg.Watch {
		changed = append(changed, "watch")
		attrs = append(attrs,
			logx.String("watch.refresh", strings.TrimSpace(newCfg.Watch.Refresh)),
			logx.String("watch.digest", strings.TrimSpace(newCfg.Watch.Digest)),
			logx.String("watch.lookahead", strings.TrimSpace(newCfg.Watch.Lookahead)),
			logx.Bool("watch.tasks_file_set", strings.TrimSpace(newCfg.Watch.TasksFile) != ""),
		)
	}

	var oN, nN NotifierConfig
	if oldCfg.Notifier != nil {
		oN = *oldCfg.Notifier
	}
	if newCfg.Notifier != nil {
		nN = *newCfg.Notifier
	}
	if oN != nN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", nN.Enabled),
			logx.Int("notifier.rate_per_sec", nN.RatePerSec),
			logx.String("notifier.dedup_window", strings.TrimSpace(nN.DedupWindow)),
			logx.Bool("notifier.persist_dedup", nN.PersistDedup),
			logx.Bool("notifier.telegram.token_set", strings.TrimSpace(nN.Telegram.Token) != ""),
			logx.Bool("notifier.telegram.token_changed", oN.Telegram.Token != nN.Telegram.Token),
			logx.Int64("notifier.telegram.chat_id", nN.Telegram.ChatID),
		)
	}

	var oSt, nSt StatusConfig
	if oldCfg.Status != nil {
		oSt = *oldCfg.Status
	}
	if newCfg.Status != nil {
		nSt = *newCfg.Status
	}
	if oSt != nSt {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", nSt.Enabled),
			logx.String("status.addr", strings.TrimSpace(nSt.Addr)),
			logx.Bool("status.pprof", nSt.Pprof),
			logx.Bool("status.token_set", strings.TrimSpace(nSt.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
