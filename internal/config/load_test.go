package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validJSON = `{
	"telegram": {"token": "123:abc", "chat_id": -100200300},
	"logging": {"level": "debug", "console": true},
	"monitor": {"poll_interval": "60m", "sweep_interval": "6h20m", "critical_threshold": 9.0},
	"retention": {"preserve_window": "20m"},
	"assets": [
		{"name": "Ubuntu 22.04", "keywords": "ubuntu 22.04", "max_tracked": 2},
		{"name": "Mozilla Firefox", "cpe": "cpe:2.3:a:mozilla:firefox:*:*:*:*:*:*:*:*"}
	]
}`

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, "config.json", validJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.ChatID != -100200300 {
		t.Fatalf("ChatID = %d", cfg.Telegram.ChatID)
	}
	if got := cfg.AssetNames(); len(got) != 2 || got[0] != "Ubuntu 22.04" {
		t.Fatalf("AssetNames = %v", got)
	}
	d, err := ParseDurationOrDefault("monitor.sweep_interval", cfg.Monitor.SweepInterval, time.Hour)
	if err != nil || d != 6*time.Hour+20*time.Minute {
		t.Fatalf("sweep_interval = %v, %v", d, err)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	yml := `
telegram:
  token: "123:abc"
  chat_id: 99
logging:
  console: true
monitor:
  poll_interval: 30m
assets:
  - name: Oracle Database 19c
    keywords: oracle database 19c
`
	cfg, err := Load(writeConfig(t, "config.yaml", yml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.ChatID != 99 || cfg.Monitor.PollInterval != "30m" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	bad := strings.Replace(validJSON, `"logging"`, `"loggign"`, 1)
	if _, err := Load(writeConfig(t, "config.json", bad)); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = " " }, wantSub: "telegram.token"},
		{name: "missing chat", mutate: func(c *Config) { c.Telegram.ChatID = 0 }, wantSub: "chat_id"},
		{name: "no assets", mutate: func(c *Config) { c.Assets = nil }, wantSub: "assets"},
		{name: "asset without query", mutate: func(c *Config) { c.Assets[0].Keywords = "" }, wantSub: "cpe or keywords"},
		{name: "duplicate asset", mutate: func(c *Config) { c.Assets[1].Name = c.Assets[0].Name }, wantSub: "duplicate"},
		{name: "bad threshold", mutate: func(c *Config) { c.Monitor.CriticalThreshold = 11 }, wantSub: "critical_threshold"},
		{name: "bad duration", mutate: func(c *Config) { c.Monitor.PollInterval = "soon" }, wantSub: "poll_interval"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "config.json", validJSON))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("Validate() = %v, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	t.Parallel()
	if _, err := Load(writeConfig(t, "config.json", validJSON+"{}")); err == nil {
		t.Fatal("expected trailing-data error")
	}
}
