// Package audit bridges the event bus to the optional audit store.
package audit

import (
	"context"

	"tgrelay/internal/commands"
	"tgrelay/internal/eventbus"
	"tgrelay/internal/storage"
	"tgrelay/pkg/logx"
)

// Recorder subscribes to the bus and appends one audit entry per event.
// With a nil store it does nothing.
type Recorder struct {
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	unsub func()
	done  chan struct{}
}

func NewRecorder(store storage.Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, bus: bus, log: log}
}

// Start begins consuming events. No-op when the store is disabled.
func (r *Recorder) Start(ctx context.Context) {
	if r.store == nil || r.bus == nil {
		return
	}
	ch, unsub := r.bus.Subscribe(64)
	r.unsub = unsub
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				r.record(ctx, e)
			}
		}
	}()
}

func (r *Recorder) Stop() {
	if r.unsub != nil {
		r.unsub()
	}
	if r.done != nil {
		<-r.done
	}
}

func (r *Recorder) record(ctx context.Context, e eventbus.Event) {
	entry := storage.AuditEntry{At: e.Time, Kind: e.Topic, OK: true}

	switch data := e.Data.(type) {
	case commands.Command:
		entry.Target = data.Target
		entry.Detail = data.Action
	case eventbus.AlertEvent:
		entry.AlertID = data.ID
		entry.Detail = data.Message
		entry.OK = data.OK
	case eventbus.NotifyEvent:
		entry.Target = data.Channel
		entry.Priority = data.Priority
		entry.OK = data.OK
	case string:
		entry.AlertID = data
	}

	if err := r.store.AppendAudit(ctx, entry); err != nil {
		r.log.Warn("audit append failed", logx.String("kind", e.Topic), logx.Err(err))
	}
}
