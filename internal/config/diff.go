package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Secrets (bot token, LLM api key) are only
// reported as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)
	section := func(name string, diff bool, fields ...logx.Field) {
		if !diff {
			return
		}
		changed = append(changed, name)
		attrs = append(attrs, fields...)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	section("telegram",
		ot.Token != nt.Token ||
			strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
			strings.TrimSpace(ot.SendTimeout) != strings.TrimSpace(nt.SendTimeout) ||
			!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs),
		logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
		logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
	)

	section("logging", !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging),
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.console", newCfg.Logging.Console),
		logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
	)

	var ost, nst StorageConfig
	if oldCfg.Storage != nil {
		ost = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nst = *newCfg.Storage
	}
	section("storage", ost != nst,
		logx.String("storage.driver", strings.TrimSpace(nst.Driver)),
		logx.Bool("storage.path_set", strings.TrimSpace(nst.Path) != ""),
		logx.String("storage.busy_timeout", strings.TrimSpace(nst.BusyTimeout)),
	)

	section("scheduler", oldCfg.Scheduler != newCfg.Scheduler,
		logx.String("scheduler.fire_timeout", strings.TrimSpace(newCfg.Scheduler.FireTimeout)),
	)

	oTE, nTE := derefTaskEngine(oldCfg.TaskEngine), derefTaskEngine(newCfg.TaskEngine)
	section("task_engine", !reflect.DeepEqual(oTE, nTE),
		logx.Int("task_engine.workers", nTE.Workers),
		logx.Int("task_engine.queue_size", nTE.QueueSize),
		logx.Int("task_engine.retry_max", nTE.RetryMax),
	)

	// Nil notifier means runtime defaults.
	var on, nn NotifierConfig
	if oldCfg.Notifier != nil {
		on = *oldCfg.Notifier
	}
	if newCfg.Notifier != nil {
		nn = *newCfg.Notifier
	}
	section("notifier", (oldCfg.Notifier == nil) != (newCfg.Notifier == nil) || on != nn,
		logx.Bool("notifier.enabled", newCfg.Notifier == nil || nn.Enabled),
		logx.Int("notifier.rate_per_sec", nn.RatePerSec),
		logx.String("notifier.per_chat_interval", nn.PerChatInterval),
	)

	or, nr := oldCfg.Resolver, newCfg.Resolver
	section("resolver", or != nr,
		logx.String("resolver.default_time", nr.DefaultTime),
		logx.Bool("resolver.llm_enabled", strings.TrimSpace(nr.LLM.APIKey) != ""),
		logx.Bool("resolver.llm_key_changed", or.LLM.APIKey != nr.LLM.APIKey),
		logx.String("resolver.llm_point_model", nr.LLM.PointModel),
		logx.String("resolver.llm_recurrence_model", nr.LLM.RecurrenceModel),
	)

	section("reminders", !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders),
		logx.String("reminders.send_jitter", newCfg.Reminders.SendJitter),
		logx.Bool("reminders.see_all_in_direct", newCfg.Reminders.SeeAllInDirectOrDefault()),
		logx.Bool("reminders.keyword_errors", newCfg.Reminders.KeywordErrorsOrDefault()),
		logx.String("reminders.redelivery_delay", newCfg.Reminders.RedeliveryDelay),
		logx.Int("reminders.max_redeliveries", newCfg.Reminders.MaxRedeliveries),
	)

	section("api", oldCfg.API != newCfg.API,
		logx.Bool("api.enabled", newCfg.API.Enabled),
		logx.String("api.addr", newCfg.API.Addr),
		logx.Bool("api.pprof", newCfg.API.Pprof),
	)

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed sections that only take effect on restart.
// Owner ids are applied live, so a telegram change counts only when the
// connection settings moved.
func RestartRequired(oldCfg, newCfg *Config, changed []string) []string {
	if oldCfg == nil || newCfg == nil {
		return changed
	}
	var out []string
	for _, s := range changed {
		switch s {
		case "logging", "notifier", "reminders":
		case "telegram":
			ot, nt := oldCfg.Telegram, newCfg.Telegram
			if ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout || ot.SendTimeout != nt.SendTimeout {
				out = append(out, s)
			}
		default:
			out = append(out, s)
		}
	}
	return out
}

func derefTaskEngine(te *TaskEngineConfig) TaskEngineConfig {
	if te == nil {
		return TaskEngineConfig{}
	}
	return *te
}
