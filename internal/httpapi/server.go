// Package httpapi exposes the relay's HTTP surface: notification ingress,
// direct calls, command polling, health, and the TradingView-style webhook.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tgrelay/internal/alerts"
	"tgrelay/internal/commands"
	"tgrelay/internal/eventbus"
	"tgrelay/internal/notify"
	"tgrelay/internal/transport"
	"tgrelay/pkg/logx"
)

type Config struct {
	Listen        string
	APIKey        string
	WebhookSecret string
}

type Server struct {
	cfg      Config
	notifier *notify.Service
	registry *alerts.Registry
	store    *commands.Store
	caller   transport.Caller
	bus      eventbus.Bus
	log      logx.Logger

	srv *http.Server
}

func NewServer(cfg Config, notifier *notify.Service, registry *alerts.Registry, store *commands.Store, caller transport.Caller, bus eventbus.Bus, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:      cfg,
		notifier: notifier,
		registry: registry,
		store:    store,
		caller:   caller,
		bus:      bus,
		log:      log,
	}
}

// Handler builds the gin engine. Split out from Start for tests.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	authed := r.Group("/", s.requireAPIKey())
	authed.POST("/notify", s.handleNotify)
	authed.POST("/call", s.handleCall)

	r.GET("/commands", s.handleCommands)
	r.GET("/health", s.handleHealth)
	r.GET("/test", s.handleTest)
	r.POST("/webhook/:secret", s.handleWebhook)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.log.Info("http listening", logx.String("addr", s.cfg.Listen))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", logx.Err(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-Key") != s.cfg.APIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid API Key"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)))
	}
}
