package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseCommand(t *testing.T) {
	cfg := writeConfig(t, "config.yaml", "resolver:\n  default_time: \"08:30\"\n")

	out, err := execute(t, "parse", "--config", cfg, "明天打胶")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, want := range []string{"kind:     instant", "08:30", `rest:     "打胶"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "parse", "--config", cfg, "随便说说")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasPrefix(out, "unresolved") {
		t.Fatalf("output = %q", out)
	}
}

func TestParseRejectsBadConfig(t *testing.T) {
	cfg := writeConfig(t, "config.yaml", "resolver:\n  default_time: \"25:00\"\n")
	if _, err := execute(t, "parse", "--config", cfg, "明天"); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "reminders.json")
	cfg := writeConfig(t, "config.json", `{"storage":{"driver":"file","path":"`+snap+`"}}`)

	out, err := execute(t, "migrate", "--config", cfg)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "records: 0, migrated: 0, skipped: 0") {
		t.Fatalf("output = %q", out)
	}
	if _, err := os.Stat(snap); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
}
