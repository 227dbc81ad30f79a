package app

import (
	"errors"
	"fmt"

	"remindbot/internal/config"
	"remindbot/internal/storage"
	"remindbot/internal/timeparse"
	"remindbot/internal/timeparse/extract"
	"remindbot/internal/timeparse/llm"
	logx "remindbot/pkg/logx"
)

// LoadConfig reads and validates the config file at path.
func LoadConfig(path string) (*config.ConfigManager, *config.Config, error) {
	cfgm := config.NewConfigManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if _, err := mapConfig(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfgm, cfg, nil
}

// NewResolver builds the resolver chain: the offline extractor, then the LLM
// fallback when an api key is configured.
func NewResolver(cfg *config.Config, log logx.Logger) (*timeparse.Resolver, error) {
	s, err := mapConfig(cfg)
	if err != nil {
		return nil, err
	}
	return newResolver(s, log), nil
}

func newResolver(s settings, log logx.Logger) *timeparse.Resolver {
	ex := extract.New(extract.WithDefaultTime(s.defaultHour, s.defaultMinute))
	var fb timeparse.Fallback
	if client := llm.New(s.llm, log.With(logx.String("comp", "llm"))); client.Enabled() {
		fb = client
		log.Info("llm fallback enabled", logx.String("point_model", s.llm.PointModel), logx.String("recurrence_model", s.llm.RecurrenceModel))
	}
	return timeparse.New(ex, fb, log.With(logx.String("comp", "timeparse")))
}

// OpenStore opens the configured snapshot backend. Without a storage
// section the store lives in memory and reminders are lost on restart.
func OpenStore(cfg *config.Config, log logx.Logger) (*storage.Store, error) {
	s, err := mapConfig(cfg)
	if err != nil {
		return nil, err
	}
	return openStore(s, log)
}

func openStore(s settings, log logx.Logger) (*storage.Store, error) {
	slog := log.With(logx.String("comp", "storage"))
	if !s.storageOn {
		slog.Warn("storage disabled; reminders will not survive a restart")
		return storage.New(storage.NewMemory(), slog), nil
	}
	backend, err := storage.Open(s.storage, slog)
	if errors.Is(err, storage.ErrDisabled) {
		return storage.New(storage.NewMemory(), slog), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	slog.Info("storage enabled", logx.String("driver", s.storage.Driver))
	return storage.New(backend, slog), nil
}
