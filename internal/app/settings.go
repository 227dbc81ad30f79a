package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/api"
	"remindbot/internal/config"
	"remindbot/internal/notifier"
	"remindbot/internal/remind"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/timeparse/llm"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

// settings is a validated config mapped onto component configs.
type settings struct {
	telegram  telegram.Config
	owners    []int64
	logging   logx.Config
	storage   storage.Config
	storageOn bool
	scheduler scheduler.Config
	engine    engine.Config
	notifier  notifier.Config
	llm       llm.Config

	defaultHour, defaultMinute int

	remind         remind.Config
	seeAllInDirect bool
	keywordErrors  bool

	apiOn    bool
	api      api.Config
	apiPprof bool
}

func mapConfig(cfg *config.Config) (settings, error) {
	var s settings
	if cfg == nil {
		return s, fmt.Errorf("config is nil")
	}
	var err error

	if s.telegram, err = mapTelegramConfig(cfg); err != nil {
		return s, err
	}
	s.owners = append([]int64(nil), cfg.Telegram.OwnerUserIDs...)
	s.logging = mapLoggingConfig(cfg)
	if s.storage, s.storageOn, err = mapStorageConfig(cfg); err != nil {
		return s, err
	}
	fire, err := config.ParseDurationOrDefault("scheduler.fire_timeout", cfg.Scheduler.FireTimeout, 30*time.Second)
	if err != nil {
		return s, err
	}
	s.scheduler = scheduler.Config{FireTimeout: fire}
	if s.engine, err = mapTaskEngineConfig(cfg); err != nil {
		return s, err
	}
	if s.notifier, err = mapNotifierConfig(cfg); err != nil {
		return s, err
	}
	if s.llm, s.defaultHour, s.defaultMinute, err = mapResolverConfig(cfg); err != nil {
		return s, err
	}
	if s.remind, err = mapRemindConfig(cfg); err != nil {
		return s, err
	}
	s.seeAllInDirect = cfg.Reminders.SeeAllInDirectOrDefault()
	s.keywordErrors = cfg.Reminders.KeywordErrorsOrDefault()

	s.apiOn = cfg.API.Enabled
	s.api = api.Config{Addr: strings.TrimSpace(cfg.API.Addr)}
	s.apiPprof = cfg.API.Pprof
	return s, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	send, err := config.ParseDurationOrDefault("telegram.send_timeout", cfg.Telegram.SendTimeout, 15*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: strings.TrimSpace(cfg.Telegram.Token), PollTimeout: poll, SendTimeout: send}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file", "memory", "mem":
		return storage.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{Enabled: true, Workers: 2, QueueSize: 256, HistorySize: 200, RetryMax: 3}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	if te.Enabled != nil {
		out.Enabled = *te.Enabled
	}
	if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 || te.RetryMax < 0 {
		return engine.Config{}, fmt.Errorf("task_engine: workers, queue_size, history_size and retry_max must be >= 0")
	}
	if te.Workers > 0 {
		out.Workers = te.Workers
	}
	if te.QueueSize > 0 {
		out.QueueSize = te.QueueSize
	}
	if te.HistorySize > 0 {
		out.HistorySize = te.HistorySize
	}
	if te.RetryMax > 0 {
		out.RetryMax = te.RetryMax
	}
	var err error
	if out.DefaultTimeout, err = config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
		return engine.Config{}, err
	}
	if out.RetryBase, err = config.ParseDurationField("task_engine.retry_base", te.RetryBase); err != nil {
		return engine.Config{}, err
	}
	if out.RetryCap, err = config.ParseDurationField("task_engine.retry_cap", te.RetryCap); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{Enabled: true}, nil
	}
	if nc.RatePerSec < 0 || nc.DedupMaxEntries < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: rate_per_sec and dedup_max_entries must be >= 0")
	}
	out := notifier.Config{Enabled: nc.Enabled, RatePerSec: nc.RatePerSec, DedupMaxEntries: nc.DedupMaxEntries}
	var err error
	if out.PerChatInterval, err = config.ParseDurationField("notifier.per_chat_interval", nc.PerChatInterval); err != nil {
		return notifier.Config{}, err
	}
	if out.SendTimeout, err = config.ParseDurationField("notifier.send_timeout", nc.SendTimeout); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", nc.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapResolverConfig(cfg *config.Config) (llm.Config, int, int, error) {
	hour, minute := 9, 0
	if h, m, ok, err := config.ParseClock("resolver.default_time", cfg.Resolver.DefaultTime); err != nil {
		return llm.Config{}, 0, 0, err
	} else if ok {
		hour, minute = h, m
	}
	lc := cfg.Resolver.LLM
	timeout, err := config.ParseDurationField("resolver.llm.timeout", lc.Timeout)
	if err != nil {
		return llm.Config{}, 0, 0, err
	}
	return llm.Config{
		Endpoint:        strings.TrimSpace(lc.Endpoint),
		APIKey:          strings.TrimSpace(lc.APIKey),
		PointModel:      strings.TrimSpace(lc.PointModel),
		RecurrenceModel: strings.TrimSpace(lc.RecurrenceModel),
		Timeout:         timeout,
	}, hour, minute, nil
}

func mapRemindConfig(cfg *config.Config) (remind.Config, error) {
	jitter, err := config.ParseDurationField("reminders.send_jitter", cfg.Reminders.SendJitter)
	if err != nil {
		return remind.Config{}, err
	}
	if strings.TrimSpace(cfg.Reminders.SendJitter) == "" {
		jitter = remind.DefaultSendJitter
	}
	delay, err := config.ParseDurationField("reminders.redelivery_delay", cfg.Reminders.RedeliveryDelay)
	if err != nil {
		return remind.Config{}, err
	}
	return remind.Config{SendJitter: jitter, RedeliveryDelay: delay, MaxRedeliveries: cfg.Reminders.MaxRedeliveries}, nil
}
