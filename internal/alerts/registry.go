// Package alerts tracks critical alerts awaiting acknowledgment and drives
// their escalation timers.
//
// Per-alert state machine: Created -> {Confirmed | Escalated}, terminal.
// Acknowledge and timer expiry linearize on the registry mutex; exactly one
// of the two removes the entry and performs its visible action.
package alerts

import (
	"strconv"
	"sync"
	"time"

	"tgrelay/pkg/logx"
)

// Outcome reports what Acknowledge did.
type Outcome int

const (
	// OutcomeConfirmed: the alert existed and is now confirmed; its
	// escalation will not fire.
	OutcomeConfirmed Outcome = iota
	// OutcomeUnknown: the alert was never created, already acknowledged,
	// or already escalated. Callers should render "already handled or
	// expired" and move on.
	OutcomeUnknown
)

// Escalator is invoked exactly once per expired alert, outside the registry
// lock. Failures are the escalator's problem; the alert is retired either way.
type Escalator func(id, message string)

type pendingAlert struct {
	message   string
	createdAt time.Time
	confirmed bool
	timer     *time.Timer
}

type Registry struct {
	delay    time.Duration
	escalate Escalator
	log      logx.Logger

	mu      sync.Mutex
	pending map[string]*pendingAlert
	lastID  int64
}

// New creates a registry whose alerts escalate after delay.
func New(delay time.Duration, escalate Escalator, log logx.Logger) *Registry {
	if delay <= 0 {
		delay = 5 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		delay:    delay,
		escalate: escalate,
		log:      log,
		pending:  map[string]*pendingAlert{},
	}
}

// Create inserts a pending alert and arms its escalation countdown.
// The returned id doubles as the acknowledgment token shown to operators.
//
// Ids are millisecond timestamps, bumped under the lock when two alerts
// land in the same millisecond.
func (r *Registry) Create(message string) string {
	now := time.Now()

	r.mu.Lock()
	ms := now.UnixMilli()
	if ms <= r.lastID {
		ms = r.lastID + 1
	}
	r.lastID = ms
	id := strconv.FormatInt(ms, 10)

	a := &pendingAlert{message: message, createdAt: now}
	a.timer = time.AfterFunc(r.delay, func() { r.expire(id) })
	r.pending[id] = a
	n := len(r.pending)
	r.mu.Unlock()

	r.log.Debug("alert created", logx.String("alert_id", id), logx.Duration("delay", r.delay), logx.Int("pending", n))
	return id
}

// Acknowledge marks the alert confirmed and removes it. A second call for
// the same id, or a call for an escalated/nonexistent alert, returns
// OutcomeUnknown without mutating anything.
func (r *Registry) Acknowledge(id string) Outcome {
	r.mu.Lock()
	a, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		return OutcomeUnknown
	}
	a.confirmed = true
	delete(r.pending, id)
	t := a.timer
	r.mu.Unlock()

	// Best-effort: the state check in expire() is the source of truth, not
	// the timer. Stopping it just avoids a useless wakeup.
	if t != nil {
		t.Stop()
	}
	r.log.Info("alert acknowledged", logx.String("alert_id", id))
	return OutcomeConfirmed
}

// Cancel quietly discards an alert whose announcement never reached the
// chat, so a button nobody saw can't turn into a phone call. Returns false
// if the alert already left the registry.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	a, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	return true
}

// expire is the timer callback. The check-then-act on the entry happens
// under the lock; the escalator runs after release so a slow voice call
// never blocks acknowledgments.
func (r *Registry) expire(id string) {
	r.mu.Lock()
	a, ok := r.pending[id]
	if !ok || a.confirmed {
		// Lost the race to Acknowledge.
		r.mu.Unlock()
		return
	}
	delete(r.pending, id)
	msg := a.message
	r.mu.Unlock()

	r.log.Warn("alert unacknowledged; escalating", logx.String("alert_id", id))
	if r.escalate != nil {
		r.escalate(id, msg)
	}
}

// Len reports the number of outstanding pending alerts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Stop cancels all outstanding timers and drops pending state. Used on
// shutdown; alerts are transient and do not survive a restart.
func (r *Registry) Stop() {
	r.mu.Lock()
	for id, a := range r.pending {
		if a.timer != nil {
			a.timer.Stop()
		}
		delete(r.pending, id)
	}
	r.mu.Unlock()
}
