// Package app wires the relay together: config, logging, the Telegram
// adapter, the HTTP API, and the background jobs.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tgrelay/internal/alerts"
	"tgrelay/internal/audit"
	"tgrelay/internal/commands"
	"tgrelay/internal/config"
	"tgrelay/internal/eventbus"
	"tgrelay/internal/httpapi"
	"tgrelay/internal/notify"
	"tgrelay/internal/router"
	"tgrelay/internal/storage"
	"tgrelay/internal/transport"
	"tgrelay/internal/transport/telegram"
	"tgrelay/internal/transport/twilio"
	"tgrelay/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter  *telegram.Adapter
	caller   *twilio.Caller
	store    storage.Store
	cmds     *commands.Store
	registry *alerts.Registry
	notifier *notify.Service
	router   *router.Router
	api      *httpapi.Server
	recorder *audit.Recorder
	jobs     *cron.Cron

	retention time.Duration
	updates   chan transport.Update

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeoutOr(10 * time.Second),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies the config immediately. The chat sink target isn't
	// known until after construction, so bootstrap with the sink disabled,
	// set the target, then Apply the real config.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(cfg.Telegram.ChatID, cfg.Logging.Chat.ThreadID)
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if cfg.Storage != nil {
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: cfg.Storage.BusyTimeoutOr(0),
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if store != nil {
			log.Info("audit storage enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	caller := twilio.New(twilio.Config{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		From:       cfg.Twilio.From,
		To:         cfg.Twilio.To,
		Timeout:    cfg.Twilio.TimeoutOr(30 * time.Second),
	}, log.With(logx.String("comp", "twilio")))

	callDelay := cfg.Alerts.CallDelayOr(5 * time.Minute)
	target := transport.ChatTarget{ChatID: cfg.Telegram.ChatID}
	notifier := notify.NewService(ad, target, callDelay, log.With(logx.String("comp", "notify")))

	escLog := log.With(logx.String("comp", "alerts"))
	escalate := func(id, message string) {
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		defer cancel()

		escLog.Warn("alert unacknowledged, escalating",
			logx.String("alert_id", id), logx.Duration("call_delay", callDelay))
		_ = notifier.SendPlain(ctx, "📞 <b>alert not acknowledged, placing phone call now</b>")

		ok := true
		if err := caller.Place(ctx, message); err != nil {
			ok = false
			escLog.Error("escalation call failed", logx.String("alert_id", id), logx.Err(err))
		}
		bus.Publish(eventbus.Event{
			Topic: eventbus.TopicAlertEscalated,
			Data:  eventbus.AlertEvent{ID: id, Message: message, OK: ok},
		})
	}
	registry := alerts.New(callDelay, escalate, escLog)

	cmdStore := commands.NewStore()
	rt := router.New(cmdStore, registry, ad, bus, cfg.Telegram.ChatID,
		log.With(logx.String("comp", "router")))

	api := httpapi.NewServer(httpapi.Config{
		Listen:        cfg.HTTP.Listen,
		APIKey:        cfg.HTTP.APIKey,
		WebhookSecret: cfg.Webhook.Secret,
	}, notifier, registry, cmdStore, caller, bus, log.With(logx.String("comp", "http")))

	return &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		adapter:   ad,
		caller:    caller,
		store:     store,
		cmds:      cmdStore,
		registry:  registry,
		notifier:  notifier,
		router:    rt,
		api:       api,
		recorder:  audit.NewRecorder(store, bus, log.With(logx.String("comp", "audit"))),
		jobs:      cron.New(),
		retention: cfg.Commands.RetentionOr(time.Hour),
		updates:   make(chan transport.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}
	if err := a.api.Start(runCtx); err != nil {
		cancel()
		_ = a.adapter.Stop(context.Background())
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.Run(runCtx, a.updates)
	}()

	if a.store != nil {
		a.recorder.Start(runCtx)
	}

	cfg := a.cfgm.Get()
	evictEvery := cfg.Commands.EvictIntervalOr(5 * time.Minute)
	if _, err := a.jobs.AddFunc(fmt.Sprintf("@every %s", evictEvery), a.evictCommands); err != nil {
		cancel()
		return fmt.Errorf("schedule eviction: %w", err)
	}
	a.jobs.Start()

	// Hot reload: only logging changes apply live, everything else needs a
	// restart (the adapter and HTTP listener are bound at startup).
	sub := a.cfgm.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.SetTelegramTarget(newCfg.Telegram.ChatID, newCfg.Logging.Chat.ThreadID)
				a.logs.Apply(mapLogConfig(newCfg))
				a.log.Info("logging config applied")
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.log.Info("relay started",
		logx.String("listen", cfg.HTTP.Listen),
		logx.Int64("chat_id", cfg.Telegram.ChatID),
		logx.Bool("twilio", a.caller.Configured()),
		logx.Duration("call_delay", cfg.Alerts.CallDelayOr(5*time.Minute)),
		logx.Duration("retention", a.retention))
	return nil
}

func (a *App) evictCommands() {
	removed := a.cmds.Evict(a.retention, time.Now())
	if removed > 0 {
		targets, remaining := a.cmds.Stats()
		a.log.Info("evicted expired commands",
			logx.Int("removed", removed),
			logx.Int("targets", targets),
			logx.Int("remaining", remaining))
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	if a.cancel != nil {
		a.cancel()
	}

	// Ingress first so nothing new arrives while components unwind.
	if err := a.api.Stop(ctx); err != nil {
		a.log.Warn("http stop", logx.Err(err))
	}
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}

	stopped := a.jobs.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}

	a.registry.Stop()
	a.recorder.Stop()
	a.wg.Wait()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleOr(true),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			ThreadID:   cfg.Logging.Chat.ThreadID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}
