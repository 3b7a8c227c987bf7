// Package history records supervisor lifecycle events for post-mortem
// inspection. The supervisor itself never reads this data back; sinks are
// write-only observability.
package history

import (
	"context"
	"time"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventLaunch    EventType = "launch"
	EventReady     EventType = "ready"
	EventUnhealthy EventType = "unhealthy"
	EventExit      EventType = "exit"
	EventStop      EventType = "stop"
	EventExhausted EventType = "exhausted"
)

// Record is one lifecycle event.
type Record struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	PID        int       `json:"pid,omitempty"`
	Port       int       `json:"port,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink persists lifecycle records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, rec Record) error
	Close() error
}
