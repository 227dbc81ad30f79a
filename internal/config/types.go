package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Storage selects the snapshot backend. Nil or driver "none" keeps
	// reminders in memory only.
	Storage *StorageConfig `json:"storage,omitempty"`

	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls the worker pool that runs fired reminders.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	// Notifier controls outbound delivery. If omitted it is enabled with
	// runtime defaults.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	Resolver  ResolverConfig  `json:"resolver"`
	Reminders RemindersConfig `json:"reminders"`
	API       APIConfig       `json:"api"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/reminders.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type SchedulerConfig struct {
	// FireTimeout bounds one delivery attempt of a fired reminder.
	FireTimeout string `json:"fire_timeout,omitempty"`
}

// TaskEngineConfig controls the fire executor.
//
// Defaults (when fields are omitted/zero):
//   - enabled: true
//   - workers: 2
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
//   - retry_max: 3
type TaskEngineConfig struct {
	Enabled   *bool `json:"enabled,omitempty"`
	Workers   int   `json:"workers,omitempty"`
	QueueSize int   `json:"queue_size,omitempty"`

	DefaultTimeout string `json:"default_timeout,omitempty"`

	HistorySize int    `json:"history_size,omitempty"`
	RetryMax    int    `json:"retry_max,omitempty"`
	RetryBase   string `json:"retry_base,omitempty"`
	RetryCap    string `json:"retry_cap,omitempty"`
}

// NotifierConfig controls delivery rate limiting and dedup.
// All durations are Go duration strings.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	RatePerSec      int    `json:"rate_per_sec"`
	PerChatInterval string `json:"per_chat_interval,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
}

type ResolverConfig struct {
	// DefaultTime is the "HH:MM" a date-only expression resolves to.
	DefaultTime string    `json:"default_time,omitempty"`
	LLM         LLMConfig `json:"llm"`
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
// An empty api_key disables the fallback.
type LLMConfig struct {
	Endpoint        string `json:"endpoint,omitempty"`
	APIKey          string `json:"api_key,omitempty"` // never logged
	PointModel      string `json:"point_model,omitempty"`
	RecurrenceModel string `json:"recurrence_model,omitempty"`
	Timeout         string `json:"timeout,omitempty"`
}

type RemindersConfig struct {
	// SendJitter caps the random delay added to new one-shot reminders.
	// Empty means 30s; "0s" disables it.
	SendJitter string `json:"send_jitter,omitempty"`
	// SeeAllInDirect lets a private chat list the owner's group reminders
	// too. Nil means true.
	SeeAllInDirect *bool `json:"see_all_in_direct,omitempty"`
	// KeywordErrors answers keyword messages that could not be parsed.
	// Nil means true.
	KeywordErrors *bool `json:"keyword_errors,omitempty"`
	// RedeliveryDelay is the wait before a one-shot reminder whose delivery
	// failed is tried again. Empty means 1m.
	RedeliveryDelay string `json:"redelivery_delay,omitempty"`
	// MaxRedeliveries caps those retries; after that the reminder is dropped.
	// 0 means 3, negative disables retries.
	MaxRedeliveries int `json:"max_redeliveries,omitempty"`
}

// APIConfig controls the admin HTTP API.
//
// Security note: there is no authentication; bind to loopback.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8088"
	// Pprof mounts net/http/pprof under /debug.
	Pprof bool `json:"pprof,omitempty"`
}

// SeeAllInDirectOrDefault returns the effective flag.
func (c RemindersConfig) SeeAllInDirectOrDefault() bool {
	if c.SeeAllInDirect == nil {
		return true
	}
	return *c.SeeAllInDirect
}

func (c RemindersConfig) KeywordErrorsOrDefault() bool {
	if c.KeywordErrors == nil {
		return true
	}
	return *c.KeywordErrors
}
