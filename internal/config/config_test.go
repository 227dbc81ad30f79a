package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

const jsonCfg = `{
  "telegram": {"token": "t", "owner_user_ids": [1, 2], "poll_timeout": "10s"},
  "logging": {"level": "info", "console": true},
  "storage": {"driver": "sqlite", "path": "./data/r.db"},
  "resolver": {"default_time": "09:00", "llm": {"api_key": "k"}},
  "reminders": {"send_jitter": "0s", "see_all_in_direct": false}
}`

const yamlCfg = `
telegram:
  token: t
  owner_user_ids: [1, 2]
  poll_timeout: 10s
logging:
  level: info
  console: true
storage:
  driver: sqlite
  path: ./data/r.db
resolver:
  default_time: "09:00"
  llm:
    api_key: k
reminders:
  send_jitter: 0s
  see_all_in_direct: false
`

const tomlCfg = `
[telegram]
token = "t"
owner_user_ids = [1, 2]
poll_timeout = "10s"

[logging]
level = "info"
console = true

[storage]
driver = "sqlite"
path = "./data/r.db"

[resolver]
default_time = "09:00"

[resolver.llm]
api_key = "k"

[reminders]
send_jitter = "0s"
see_all_in_direct = false
`

func TestDecodeFormats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
	}{
		{"config.json", jsonCfg},
		{"config.yaml", yamlCfg},
		{"config.toml", tomlCfg},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode(tc.name, []byte(tc.data))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if cfg.Telegram.Token != "t" || len(cfg.Telegram.OwnerUserIDs) != 2 || cfg.Telegram.OwnerUserIDs[1] != 2 {
				t.Errorf("telegram = %+v", cfg.Telegram)
			}
			if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
				t.Errorf("storage = %+v", cfg.Storage)
			}
			if cfg.Resolver.DefaultTime != "09:00" || cfg.Resolver.LLM.APIKey != "k" {
				t.Errorf("resolver = %+v", cfg.Resolver)
			}
			if cfg.Reminders.SeeAllInDirectOrDefault() {
				t.Errorf("see_all_in_direct should be false")
			}
			if !cfg.Reminders.KeywordErrorsOrDefault() {
				t.Errorf("keyword_errors should default to true")
			}
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		data string
	}{
		{"unknown field", "c.json", `{"telegram": {"tokn": "x"}}`},
		{"trailing data", "c.json", `{} {}`},
		{"unknown yaml field", "c.yaml", "plugins:\n  echo: {}\n"},
		{"bad toml", "c.toml", "[telegram\n"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.file, []byte(tc.data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative accepted")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil || !strings.Contains(err.Error(), "x:") {
		t.Fatalf("err = %v", err)
	}
	if d, _ := ParseDurationOrDefault("x", "", 3*time.Second); d != 3*time.Second {
		t.Fatalf("default = %v", d)
	}
	if d, _ := ParseDurationOrDefault("x", "2s", 3*time.Second); d != 2*time.Second {
		t.Fatalf("explicit = %v", d)
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in       string
		h, m     int
		ok, fail bool
	}{
		{in: ""},
		{in: " 08:30 ", h: 8, m: 30, ok: true},
		{in: "23:59", h: 23, m: 59, ok: true},
		{in: "24:00", fail: true},
		{in: "9", fail: true},
		{in: "09:60", fail: true},
		{in: "ab:cd", fail: true},
	}
	for _, tc := range cases {
		h, m, ok, err := ParseClock("resolver.default_time", tc.in)
		if (err != nil) != tc.fail {
			t.Fatalf("ParseClock(%q) err = %v", tc.in, err)
		}
		if h != tc.h || m != tc.m || ok != tc.ok {
			t.Fatalf("ParseClock(%q) = %d %d %v", tc.in, h, m, ok)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg, _ := Decode("c.json", []byte(jsonCfg))
	newCfg, _ := Decode("c.json", []byte(jsonCfg))
	if changed, _ := SummarizeConfigChange(oldCfg, newCfg); len(changed) != 0 {
		t.Fatalf("identical configs changed %v", changed)
	}

	newCfg.Logging.Level = "debug"
	newCfg.Telegram.OwnerUserIDs = []int64{3}
	newCfg.Resolver.LLM.APIKey = "other"
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "logging,resolver,telegram" {
		t.Fatalf("changed = %v", changed)
	}
	var buf bytes.Buffer
	logx.NewWriter(&buf, "debug").Info("config changed", attrs...)
	if out := buf.String(); strings.Contains(out, `"other"`) || strings.Contains(out, `"t"`) {
		t.Errorf("secret leaked into log: %s", out)
	}
	if got := RestartRequired(oldCfg, newCfg, changed); strings.Join(got, ",") != "resolver" {
		t.Fatalf("restart required = %v", got)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"logging": {"level": "info"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Logging.Level == "bogus" {
			return os.ErrInvalid
		}
		return nil
	})
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"logging": {"level": "bogus"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(600 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"logging": {"level": "debug"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no config published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("committed level %q", m.Get().Logging.Level)
	}
}
