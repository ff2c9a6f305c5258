// Package storage provides the optional write-only audit log.
//
// It records what the relay did (notifications sent, alerts acknowledged or
// escalated, commands queued) for later inspection. It never restores broker
// state: alerts and the command queue are memory-only and reset on restart.
package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the audit store.
//
// Driver values:
//   - "file": dependency-free JSONL append log
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one relay action. Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Kind     string    `json:"kind"` // event topic, e.g. "alert.escalated"
	AlertID  string    `json:"alert_id,omitempty"`
	Target   string    `json:"target,omitempty"`
	Priority string    `json:"priority,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	OK       bool      `json:"ok"`
}
