package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
telegram:
  token: "123:abc"
  chat_id: 42
http:
  api_key: "k3y"
alerts:
  call_delay: "2m"
commands:
  retention: "30m"
`

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.ChatID != 42 {
		t.Fatalf("telegram section mismatch: %+v", cfg.Telegram)
	}
	if cfg.HTTP.Listen != ":8000" {
		t.Fatalf("listen default not applied: %q", cfg.HTTP.Listen)
	}
	if !strings.HasPrefix(cfg.Webhook.Secret, "tv_") {
		t.Fatalf("webhook secret not generated: %q", cfg.Webhook.Secret)
	}
	if d := cfg.Alerts.CallDelayOr(5 * time.Minute); d != 2*time.Minute {
		t.Fatalf("call_delay: got %v", d)
	}
	if d := cfg.Commands.RetentionOr(time.Hour); d != 30*time.Minute {
		t.Fatalf("retention: got %v", d)
	}
	if d := cfg.Commands.EvictIntervalOr(5 * time.Minute); d != 5*time.Minute {
		t.Fatalf("evict_interval default: got %v", d)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return committed config")
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML+"\nbogus_section:\n  x: 1\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidateMissingFields(t *testing.T) {
	cases := []string{
		"telegram:\n  chat_id: 42\nhttp:\n  api_key: k\n",
		"telegram:\n  token: t\nhttp:\n  api_key: k\n",
		"telegram:\n  token: t\n  chat_id: 42\nhttp: {}\n",
	}
	for i, body := range cases {
		m := NewManager(writeConfig(t, "config.yaml", body))
		if _, err := m.Load(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestInvalidDurationRejected(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML+"\ntwilio:\n  timeout: \"soon\"\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected duration validation error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TG_BOT_TOKEN", "env:token")
	t.Setenv("NOTIFY_API_KEY", "env-key")
	t.Setenv("NOTIFY_PORT", "9001")
	t.Setenv("PHONE_TO", "+15550009")
	t.Setenv("CALL_DELAY_SECONDS", "120")

	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "env:token" {
		t.Fatalf("token override: %q", cfg.Telegram.Token)
	}
	if cfg.HTTP.APIKey != "env-key" {
		t.Fatalf("api key override: %q", cfg.HTTP.APIKey)
	}
	if cfg.HTTP.Listen != ":9001" {
		t.Fatalf("port override: %q", cfg.HTTP.Listen)
	}
	if cfg.Twilio.To != "+15550009" {
		t.Fatalf("phone override: %q", cfg.Twilio.To)
	}
	if d := cfg.Alerts.CallDelayOr(0); d != 2*time.Minute {
		t.Fatalf("call delay override: %v", d)
	}
}

func TestJSONConfig(t *testing.T) {
	body := `{"telegram":{"token":"t","chat_id":7},"http":{"api_key":"k"}}`
	m := NewManager(writeConfig(t, "config.json", body))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if cfg.Telegram.ChatID != 7 {
		t.Fatalf("chat_id: %d", cfg.Telegram.ChatID)
	}
}
