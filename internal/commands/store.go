// Package commands holds the in-memory command queue consumed by external
// scripts. Commands are issued from chat, stored per target, and retrieved
// by cursor-based polling.
package commands

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// BroadcastTarget is the reserved target delivered to every consumer.
const BroadcastTarget = "all"

var ErrEmptyTarget = errors.New("command target is empty")

// Command is immutable once stored.
type Command struct {
	ID        uint64
	Target    string
	Action    string
	Args      []string
	CreatedAt time.Time
}

// Store owns the full command log. A single counter is shared across all
// targets so ids reflect global creation order and are never reused.
//
// One coarse mutex guards everything; command volume is human-operator
// driven, so contention is not a concern.
type Store struct {
	mu     sync.Mutex
	nextID uint64
	logs   map[string][]Command
}

func NewStore() *Store {
	return &Store{logs: map[string][]Command{}}
}

// Append stores a new command at the tail of target's log and returns the
// stored record. Action may be empty; that is left to the consumer to
// interpret. Target must be non-empty.
func (s *Store) Append(target, action string, args []string) (Command, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Command{}, ErrEmptyTarget
	}
	if args == nil {
		args = []string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cmd := Command{
		ID:        s.nextID,
		Target:    target,
		Action:    action,
		Args:      args,
		CreatedAt: time.Now(),
	}
	s.logs[target] = append(s.logs[target], cmd)
	return cmd, nil
}

// Poll returns every command for target and for the broadcast target with
// id > after, sorted ascending by id. It never mutates store state; callers
// receive copies.
func (s *Store) Poll(target string, after uint64) []Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Command, 0, 8)
	for _, c := range s.logs[target] {
		if c.ID > after {
			out = append(out, c)
		}
	}
	if target != BroadcastTarget {
		for _, c := range s.logs[BroadcastTarget] {
			if c.ID > after {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Evict removes every command older than the retention window and prunes
// targets whose logs became empty. Returns the number of commands removed.
func (s *Store) Evict(retention time.Duration, now time.Time) int {
	cutoff := now.Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for target, log := range s.logs {
		kept := log[:0]
		for _, c := range log {
			if c.CreatedAt.After(cutoff) {
				kept = append(kept, c)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(s.logs, target)
			continue
		}
		s.logs[target] = kept
	}
	return removed
}

// Stats reports the number of targets with queued commands and the total
// queued command count.
func (s *Store) Stats() (targets, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, log := range s.logs {
		total += len(log)
	}
	return len(s.logs), total
}
