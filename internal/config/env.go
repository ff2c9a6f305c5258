package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides carries the environment surface the relay has always been
// deployed with. Set values win over the config file, so secrets can stay
// out of it entirely.
type envOverrides struct {
	BotToken         string `envconfig:"TG_BOT_TOKEN"`
	ChatID           int64  `envconfig:"TG_CHAT_ID"`
	APIKey           string `envconfig:"NOTIFY_API_KEY"`
	Port             int    `envconfig:"NOTIFY_PORT"`
	TwilioSID        string `envconfig:"TWILIO_SID"`
	TwilioTok        string `envconfig:"TWILIO_TOKEN"`
	TwilioFrom       string `envconfig:"TWILIO_FROM"`
	PhoneTo          string `envconfig:"PHONE_TO"`
	CallDelaySeconds int    `envconfig:"CALL_DELAY_SECONDS"`
	WebhookSecret    string `envconfig:"WEBHOOK_SECRET"`
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := envconfig.Process("", &o); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}

	if o.BotToken != "" {
		cfg.Telegram.Token = o.BotToken
	}
	if o.ChatID != 0 {
		cfg.Telegram.ChatID = o.ChatID
	}
	if o.APIKey != "" {
		cfg.HTTP.APIKey = o.APIKey
	}
	if o.Port != 0 {
		cfg.HTTP.Listen = fmt.Sprintf(":%d", o.Port)
	}
	if o.TwilioSID != "" {
		cfg.Twilio.AccountSID = o.TwilioSID
	}
	if o.TwilioTok != "" {
		cfg.Twilio.AuthToken = o.TwilioTok
	}
	if o.TwilioFrom != "" {
		cfg.Twilio.From = o.TwilioFrom
	}
	if o.PhoneTo != "" {
		cfg.Twilio.To = o.PhoneTo
	}
	if o.CallDelaySeconds > 0 {
		cfg.Alerts.CallDelay = (time.Duration(o.CallDelaySeconds) * time.Second).String()
	}
	if o.WebhookSecret != "" {
		cfg.Webhook.Secret = o.WebhookSecret
	}
	return nil
}
