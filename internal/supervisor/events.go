package supervisor

import (
	"sync"
	"time"
)

// EventKind classifies supervisor notifications pushed to observers.
type EventKind string

const (
	EventLaunching  EventKind = "launching"
	EventReady      EventKind = "ready"
	EventUnhealthy  EventKind = "unhealthy"
	EventCrashed    EventKind = "crashed"
	EventRestarting EventKind = "restarting"
	EventExhausted  EventKind = "exhausted"
	EventStopped    EventKind = "stopped"
)

// Event is one asynchronous notification. Post-readiness failures are never
// thrown at a pending caller (there is none); they surface here.
type Event struct {
	Kind    EventKind `json:"kind"`
	Time    time.Time `json:"time"`
	Port    int       `json:"port,omitempty"`
	PID     int       `json:"pid,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// Bus fans events out to subscribers. Publishing never blocks; a slow
// subscriber loses events rather than stalling the supervisor.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered listener. The returned cancel function
// unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
