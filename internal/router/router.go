// Package router consumes inbound chat updates: operator-issued commands
// ("/<target> <action> [args...]") and acknowledgment button callbacks.
package router

import (
	"context"
	"fmt"
	"strings"

	"tgrelay/internal/alerts"
	"tgrelay/internal/commands"
	"tgrelay/internal/eventbus"
	"tgrelay/internal/notify"
	"tgrelay/internal/transport"
	"tgrelay/pkg/logx"
)

const usageReply = "usage: /&lt;target&gt; &lt;action&gt; [args...]\nexample: <code>/gold stop</code>"

type Router struct {
	store    *commands.Store
	registry *alerts.Registry
	adapter  transport.Adapter
	bus      eventbus.Bus
	chatID   int64
	log      logx.Logger
}

func New(store *commands.Store, registry *alerts.Registry, adapter transport.Adapter, bus eventbus.Bus, chatID int64, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{store: store, registry: registry, adapter: adapter, bus: bus, chatID: chatID, log: log}
}

// Run drains the update channel until ctx is cancelled or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			switch up.Kind {
			case transport.UpdateMessage:
				if up.Message != nil {
					r.handleMessage(ctx, up.Message)
				}
			case transport.UpdateCallback:
				if up.Callback != nil {
					r.handleCallback(ctx, up.Callback)
				}
			}
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	if r.chatID != 0 && m.ChatID != r.chatID {
		r.log.Debug("ignoring message from foreign chat", logx.Int64("chat_id", m.ChatID))
		return
	}

	target, action, args, ok := ParseCommand(m.Text)
	if !ok {
		// Plain chatter, not a command.
		return
	}
	if target == "help" || target == "start" {
		r.reply(ctx, m, usageReply)
		return
	}
	if action == "" {
		r.reply(ctx, m, usageReply)
		return
	}

	cmd, err := r.store.Append(target, action, args)
	if err != nil {
		r.reply(ctx, m, usageReply)
		return
	}
	r.log.Info("command queued",
		logx.Uint64("id", cmd.ID),
		logx.String("target", cmd.Target),
		logx.String("action", cmd.Action),
		logx.String("from", m.FromUsername))
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Topic: eventbus.TopicCommandAppended, Data: cmd})
	}
	r.reply(ctx, m, fmt.Sprintf("📬 queued <code>#%d</code> for <b>%s</b>: <code>%s</code>", cmd.ID, cmd.Target, strings.TrimSpace(cmd.Action+" "+strings.Join(cmd.Args, " "))))
}

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	if !strings.HasPrefix(cb.Data, notify.AckCallbackPrefix) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	alertID := strings.TrimPrefix(cb.Data, notify.AckCallbackPrefix)

	outcome := r.registry.Acknowledge(alertID)
	ref := transport.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}

	switch outcome {
	case alerts.OutcomeConfirmed:
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Acknowledged")
		if err := r.adapter.ClearKeyboard(ctx, ref); err != nil {
			r.log.Debug("clear keyboard failed", logx.String("alert_id", alertID), logx.Err(err))
		}
		r.send(ctx, cb, "✅ <b>acknowledged, phone call canceled</b>")
		if r.bus != nil {
			r.bus.Publish(eventbus.Event{Topic: eventbus.TopicAlertAcknowledged, Data: alertID})
		}
	default:
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		r.send(ctx, cb, "⚠️ this alert was already handled or expired")
	}
}

func (r *Router) reply(ctx context.Context, m *transport.Message, text string) {
	to := transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	if _, err := r.adapter.SendText(ctx, to, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		r.log.Warn("reply failed", logx.Err(err))
	}
}

func (r *Router) send(ctx context.Context, cb *transport.Callback, text string) {
	to := transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	if _, err := r.adapter.SendText(ctx, to, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		r.log.Warn("callback reply failed", logx.Err(err))
	}
}
