// internal/registry/sessionlog.go
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glidertools/sailbus/internal/sail"
)

// SessionLog is the append-only record of every snapshot accepted during a
// session, across all devices, in arrival order. It grows monotonically and
// is never mutated; plotting and printing happen outside the core.
type SessionLog struct {
	mu      sync.RWMutex
	session uuid.UUID
	started time.Time
	entries []sail.Snapshot
}

func NewSessionLog() *SessionLog {
	return &SessionLog{
		session: uuid.New(),
		started: time.Now().UTC(),
	}
}

// SessionID identifies this in-memory session.
func (l *SessionLog) SessionID() uuid.UUID {
	return l.session
}

// StartedAt is the UTC instant the session log was created.
func (l *SessionLog) StartedAt() time.Time {
	return l.started
}

// Append adds one snapshot. Append-only by contract.
func (l *SessionLog) Append(s sail.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

// Len returns the number of logged snapshots.
func (l *SessionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Since returns all snapshots taken at or after t, in arrival order.
func (l *SessionLog) Since(t time.Time) []sail.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []sail.Snapshot
	for _, s := range l.entries {
		if !s.TakenAt.Before(t) {
			out = append(out, s)
		}
	}
	return out
}
