// Package twilio places voice calls through the Twilio REST API. It is the
// escalation target for unacknowledged critical alerts and the backend of
// the direct /call endpoint.
package twilio

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tgrelay/pkg/logx"
)

const defaultBaseURL = "https://api.twilio.com"

var ErrNotConfigured = errors.New("twilio is not configured")

type Config struct {
	AccountSID string
	AuthToken  string
	From       string // Twilio number placing the call
	To         string // operator number receiving it
	Timeout    time.Duration
}

type Caller struct {
	cfg     Config
	log     logx.Logger
	http    *http.Client
	baseURL string
}

func New(cfg Config, log logx.Logger) *Caller {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Caller{
		cfg:     cfg,
		log:     log,
		http:    &http.Client{Timeout: timeout},
		baseURL: defaultBaseURL,
	}
}

// Configured reports whether all credentials and both phone numbers are set.
// Health reporting uses this; Place refuses to run without it.
func (c *Caller) Configured() bool {
	return c.cfg.AccountSID != "" && c.cfg.AuthToken != "" && c.cfg.From != "" && c.cfg.To != ""
}

// Place dials the configured number and reads message aloud twice.
// Best-effort: callers treat a failure as logged-and-done, never retried.
func (c *Caller) Place(ctx context.Context, message string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	form := url.Values{}
	form.Set("To", c.cfg.To)
	form.Set("From", c.cfg.From)
	form.Set("Twiml", voiceScript(message))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("twilio call request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("twilio call failed: http=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		SID string `json:"sid"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	c.log.Info("phone call placed", logx.String("call_sid", out.SID))
	return nil
}

// voiceScript builds the TwiML readout: the alert twice with pauses, then
// a closing prompt.
func voiceScript(message string) string {
	msg := xmlEscape(message)
	var b strings.Builder
	b.WriteString("<Response>")
	fmt.Fprintf(&b, "<Say>Attention, urgent alert: %s</Say>", msg)
	b.WriteString(`<Pause length="2"/>`)
	fmt.Fprintf(&b, "<Say>Repeating: %s</Say>", msg)
	b.WriteString(`<Pause length="1"/>`)
	b.WriteString("<Say>Please handle it immediately.</Say>")
	b.WriteString("</Response>")
	return b.String()
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
