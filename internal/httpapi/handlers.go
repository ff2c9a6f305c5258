package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tgrelay/internal/eventbus"
	"tgrelay/internal/notify"
	"tgrelay/pkg/logx"
)

type notifyBody struct {
	Channel  string `json:"channel"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

func (b *notifyBody) toRequest() notify.Request {
	channel := strings.TrimSpace(b.Channel)
	if channel == "" {
		channel = "info"
	}
	return notify.Request{
		Channel:  channel,
		Title:    b.Title,
		Message:  b.Message,
		Priority: notify.NormalizePriority(b.Priority),
	}
}

func (s *Server) handleNotify(c *gin.Context) {
	var body notifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	if strings.TrimSpace(body.Title) == "" && strings.TrimSpace(body.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "title or message is required"})
		return
	}
	s.dispatch(c, body.toRequest())
}

// dispatch runs the shared notify pipeline for /notify and /webhook.
func (s *Server) dispatch(c *gin.Context, req notify.Request) {
	ctx := c.Request.Context()

	if req.Priority == notify.PriorityCritical {
		spoken := notify.SpokenText(req)
		alertID := s.registry.Create(spoken)

		if err := s.notifier.SendCritical(ctx, req, alertID); err != nil {
			// The chat never saw the button; don't let the timer dial anyone.
			s.registry.Cancel(alertID)
			s.publishNotify(req, false)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		s.publish(eventbus.TopicAlertCreated, eventbus.AlertEvent{ID: alertID, Message: spoken, OK: true})
		s.publishNotify(req, true)
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"alert_id": alertID,
			"message":  "Critical notification sent, phone call scheduled",
		})
		return
	}

	if err := s.notifier.Send(ctx, req); err != nil {
		s.publishNotify(req, false)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	s.publishNotify(req, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Notification sent"})
}

func (s *Server) handleCall(c *gin.Context) {
	message := c.Query("message")
	if message == "" {
		message = c.PostForm("message")
	}
	if message == "" {
		message = "Urgent alert, please check"
	}

	if err := s.caller.Place(c.Request.Context(), message); err != nil {
		s.log.Warn("direct call failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to make call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Phone call initiated"})
}

type commandJSON struct {
	ID     uint64   `json:"id"`
	Action string   `json:"action"`
	Args   []string `json:"args"`
	TS     int64    `json:"ts"`
}

func (s *Server) handleCommands(c *gin.Context) {
	target := strings.TrimSpace(c.Query("target"))
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "target is required"})
		return
	}
	after, err := strconv.ParseUint(strings.TrimSpace(c.DefaultQuery("after", "0")), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "after must be a non-negative integer"})
		return
	}

	cmds := s.store.Poll(target, after)
	out := make([]commandJSON, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, commandJSON{ID: cmd.ID, Action: cmd.Action, Args: cmd.Args, TS: cmd.CreatedAt.Unix()})
	}
	c.JSON(http.StatusOK, gin.H{"commands": out})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"twilio_configured": s.caller != nil && s.caller.Configured(),
		"pending_alerts":    s.registry.Len(),
	})
}

func (s *Server) handleTest(c *gin.Context) {
	if err := s.notifier.SendPlain(c.Request.Context(), "🧪 <b>test message</b>\n\nrelay is up and running"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Test notification sent"})
}

// handleWebhook accepts either JSON {title,message,channel,priority} or raw
// text (treated as message with defaults). The normalized payload flows
// through the same pipeline as /notify, so a critical webhook escalates too.
func (s *Server) handleWebhook(c *gin.Context) {
	secret := c.Param("secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.WebhookSecret)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Invalid webhook secret"})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unreadable body"})
		return
	}
	body := strings.TrimSpace(string(raw))
	if body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "empty body"})
		return
	}

	req := notify.Request{
		Channel:  "trade",
		Title:    "TradingView Alert",
		Message:  body,
		Priority: notify.PriorityNormal,
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed != nil {
		if v, ok := parsed["title"].(string); ok && v != "" {
			req.Title = v
		}
		if v, ok := parsed["message"].(string); ok && v != "" {
			req.Message = v
		}
		if v, ok := parsed["channel"].(string); ok && v != "" {
			req.Channel = v
		}
		if v, ok := parsed["priority"].(string); ok {
			req.Priority = notify.NormalizePriority(v)
		}
	}
	s.dispatch(c, req)
}

func (s *Server) publish(topic string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Topic: topic, Data: data})
	}
}

func (s *Server) publishNotify(req notify.Request, ok bool) {
	s.publish(eventbus.TopicNotifySent, eventbus.NotifyEvent{Channel: req.Channel, Priority: req.Priority, OK: ok})
}
