// Package config loads and watches the relay configuration.
//
// Config files are YAML (or JSON); both are decoded strictly, so unknown
// keys are rejected. Secrets can be supplied or overridden through the
// environment (see env.go), which is how the relay is normally deployed.
package config

import (
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	HTTP     HTTPConfig     `json:"http"`
	Twilio   TwilioConfig   `json:"twilio,omitempty"`
	Alerts   AlertsConfig   `json:"alerts,omitempty"`
	Commands CommandsConfig `json:"commands,omitempty"`
	Webhook  WebhookConfig  `json:"webhook,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
	// PollTimeout is a Go duration string (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type HTTPConfig struct {
	// Listen address, default ":8000".
	Listen string `json:"listen,omitempty"`
	APIKey string `json:"api_key"`
}

type TwilioConfig struct {
	AccountSID string `json:"account_sid,omitempty"`
	AuthToken  string `json:"auth_token,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	// Timeout is a Go duration string (default "30s").
	Timeout string `json:"timeout,omitempty"`
}

type AlertsConfig struct {
	// CallDelay is how long a critical alert may sit unacknowledged before
	// the voice call fires. Go duration string, default "5m".
	CallDelay string `json:"call_delay,omitempty"`
}

type CommandsConfig struct {
	// Retention is the command age cutoff for eviction, default "1h".
	Retention string `json:"retention,omitempty"`
	// EvictInterval is how often the eviction pass runs, default "5m".
	EvictInterval string `json:"evict_interval,omitempty"`
}

type WebhookConfig struct {
	// Secret guards POST /webhook/<secret>. Generated at startup when empty.
	Secret string `json:"secret,omitempty"`
}

type LoggingConfig struct {
	Level   string           `json:"level,omitempty"`
	Console *bool            `json:"console,omitempty"` // default true
	File    FileLogConfig    `json:"file,omitempty"`
	Chat    ChatLogConfig    `json:"chat,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ChatLogConfig mirrors warnings into the relay's own Telegram chat.
type ChatLogConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional audit log.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./tgrelay_audit" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ---- resolved durations ----

func (c TelegramConfig) PollTimeoutOr(def time.Duration) time.Duration {
	return durationOr(c.PollTimeout, def)
}

func (c TwilioConfig) TimeoutOr(def time.Duration) time.Duration {
	return durationOr(c.Timeout, def)
}

func (c AlertsConfig) CallDelayOr(def time.Duration) time.Duration {
	return durationOr(c.CallDelay, def)
}

func (c CommandsConfig) RetentionOr(def time.Duration) time.Duration {
	return durationOr(c.Retention, def)
}

func (c CommandsConfig) EvictIntervalOr(def time.Duration) time.Duration {
	return durationOr(c.EvictInterval, def)
}

func (c StorageConfig) BusyTimeoutOr(def time.Duration) time.Duration {
	return durationOr(c.BusyTimeout, def)
}

func (c LoggingConfig) ConsoleOr(def bool) bool {
	if c.Console == nil {
		return def
	}
	return *c.Console
}

func durationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
