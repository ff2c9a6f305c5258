package notify

import (
	"fmt"
	"strings"
	"time"
)

// Priority levels accepted on the HTTP surface. Unknown strings fall back
// to PriorityNormal.
const (
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

func NormalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityCritical:
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// Request is a normalized inbound notification.
type Request struct {
	Channel  string
	Title    string
	Message  string
	Priority string
}

var channelEmoji = map[string]string{
	"gold":   "🥇",
	"wallet": "👛",
	"price":  "💰",
	"system": "⚙️",
	"alert":  "🚨",
	"trade":  "📈",
	"info":   "ℹ️",
}

func emojiFor(channel string) string {
	if e, ok := channelEmoji[channel]; ok {
		return e
	}
	return "📢"
}

// FormatHTML renders the chat message body (Telegram HTML parse mode).
// callDelay > 0 appends the escalation deadline footer shown on critical
// alerts.
func FormatHTML(req Request, now time.Time, callDelay time.Duration) string {
	var b strings.Builder

	switch req.Priority {
	case PriorityHigh:
		b.WriteString("🔴 ")
	case PriorityCritical:
		b.WriteString("🚨🚨🚨 CRITICAL 🚨🚨🚨\n")
	}

	fmt.Fprintf(&b, "%s <b>%s</b>\n\n%s\n\n<code>[%s] %s</code>",
		emojiFor(req.Channel), escapeHTML(req.Title), escapeHTML(req.Message),
		req.Channel, now.Format("15:04:05"))

	if req.Priority == PriorityCritical && callDelay > 0 {
		fmt.Fprintf(&b, "\n\n⏰ <b>unacknowledged alerts trigger a phone call in %d min</b>",
			int(callDelay.Minutes()))
	}
	return b.String()
}

// SpokenText is the flattened title+body read aloud on escalation.
func SpokenText(req Request) string {
	title := strings.TrimSpace(req.Title)
	msg := strings.TrimSpace(req.Message)
	if title == "" {
		return msg
	}
	return title + ": " + msg
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
