// Package notify formats alert text and sends it to the configured chat.
// It owns no alert state; escalation bookkeeping lives in internal/alerts.
package notify

import (
	"context"
	"time"

	tele "gopkg.in/telebot.v4"

	"tgrelay/internal/transport"
	"tgrelay/pkg/logx"
)

// AckCallbackPrefix tags acknowledgment button callback data. The router
// strips it to recover the alert id.
const AckCallbackPrefix = "ack_"

type Service struct {
	adapter   transport.Adapter
	target    transport.ChatTarget
	callDelay time.Duration
	log       logx.Logger
}

func NewService(adapter transport.Adapter, target transport.ChatTarget, callDelay time.Duration, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{adapter: adapter, target: target, callDelay: callDelay, log: log}
}

// Send delivers a normal/high priority notification.
func (s *Service) Send(ctx context.Context, req Request) error {
	text := FormatHTML(req, time.Now(), 0)
	_, err := s.adapter.SendText(ctx, s.target, text, htmlOpts(nil))
	if err != nil {
		s.log.Warn("notification send failed", logx.String("channel", req.Channel), logx.Err(err))
		return err
	}
	s.log.Debug("notification sent", logx.String("channel", req.Channel), logx.String("priority", req.Priority))
	return nil
}

// SendCritical delivers a critical notification carrying the inline
// acknowledge button for alertID.
func (s *Service) SendCritical(ctx context.Context, req Request, alertID string) error {
	text := FormatHTML(req, time.Now(), s.callDelay)

	// Raw callback data (no telebot unique prefix): the router matches on
	// the ack_ prefix itself.
	markup := &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{{
			{Text: "✅ received, cancel the call", Data: AckCallbackPrefix + alertID},
		}},
	}

	_, err := s.adapter.SendText(ctx, s.target, text, htmlOpts(markup))
	if err != nil {
		s.log.Warn("critical notification send failed", logx.String("alert_id", alertID), logx.Err(err))
		return err
	}
	s.log.Info("critical notification sent", logx.String("alert_id", alertID))
	return nil
}

// SendPlain delivers pre-formatted HTML text (callback replies, test
// messages, escalation notices).
func (s *Service) SendPlain(ctx context.Context, text string) error {
	_, err := s.adapter.SendText(ctx, s.target, text, htmlOpts(nil))
	return err
}

func htmlOpts(markup *tele.ReplyMarkup) *transport.SendOptions {
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup
	}
	return opt
}
