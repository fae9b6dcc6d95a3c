package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"cellarcore/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cellarcore.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsExpandPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, resolved, exists, err := config.Load(filepath.Join(home, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if resolved != filepath.Join(home, "missing.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("expected sqlite default, got %q", cfg.Storage.Driver)
	}
	want := filepath.Join(home, ".local", "share", "cellarcore", "cellarcore.db")
	if cfg.Storage.SQLitePath != want {
		t.Fatalf("unexpected sqlite path: got %q want %q", cfg.Storage.SQLitePath, want)
	}
	if cfg.Sequence.MaxAttempts != 5 || cfg.Sequence.Backend != "scan" {
		t.Fatalf("unexpected sequence defaults %+v", cfg.Sequence)
	}
	if cfg.PhaseDuration() != 14*24*time.Hour {
		t.Fatalf("unexpected phase duration %s", cfg.PhaseDuration())
	}
	if cfg.EffectTimeout() != 2*time.Second {
		t.Fatalf("unexpected effect timeout %s", cfg.EffectTimeout())
	}
	if cfg.NeedsRedis() {
		t.Fatal("defaults should not need redis")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CELLAR_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CELLAR_REDIS_DB", "3")
	path := writeConfig(t, `
[storage]
driver = "Memory"

[sequence]
backend = "redis"
max_attempts = 9

[timeline]
driver = "s3"

[timeline.s3]
bucket = "cellar-events"
prefix = "events"

[logging]
format = "JSON"
level = "Debug"
`)

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected lower-cased driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Sequence.MaxAttempts != 9 {
		t.Fatalf("expected max attempts 9, got %d", cfg.Sequence.MaxAttempts)
	}
	if cfg.Redis.Addr != "redis.internal:6380" || cfg.Redis.DB != 3 {
		t.Fatalf("expected env redis overrides, got %+v", cfg.Redis)
	}
	if cfg.Timeline.S3.Prefix != "events/" {
		t.Fatalf("expected trailing slash on prefix, got %q", cfg.Timeline.S3.Prefix)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging %+v", cfg.Logging)
	}
	if !cfg.NeedsRedis() {
		t.Fatal("redis sequence backend should need redis")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cases := map[string]struct {
		body string
		want string
	}{
		"driver":        {body: "[storage]\ndriver = \"mongo\"\n", want: "storage.driver"},
		"postgres dsn":  {body: "[storage]\ndriver = \"postgres\"\n", want: "storage.postgres_dsn"},
		"sequence":      {body: "[sequence]\nbackend = \"uuid\"\n", want: "sequence.backend"},
		"s3 bucket":     {body: "[timeline]\ndriver = \"s3\"\n", want: "timeline.s3.bucket"},
		"log level":     {body: "[logging]\nlevel = \"loud\"\n", want: "logging.level"},
		"unknown field": {body: "[storage]\nflavor = \"hoppy\"\n", want: "parse config"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := config.Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadRejectsBadRedisDBEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CELLAR_REDIS_DB", "zero")
	if _, _, _, err := config.Load(writeConfig(t, "")); err == nil {
		t.Fatal("expected error for non-numeric CELLAR_REDIS_DB")
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists || cfg.Timeline.Driver != "log" {
		t.Fatalf("unexpected sample config: exists=%v timeline=%q", exists, cfg.Timeline.Driver)
	}
}
