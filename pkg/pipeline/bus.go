// Package pipeline carries recorder events from the maintenance context to
// observers such as the control server.
//
// Usage:
//
//	bus := NewEventBus()
//	ch := make(chan Event, 16)
//	bus.Subscribe(EventModeChanged, ch)
//	bus.Publish(Event{Type: EventModeChanged, Timestamp: time.Now(), Payload: change})
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies what happened.
type EventType int

const (
	EventModeChanged  EventType = iota // recorder switched mode
	EventLoopBoundary                  // a loop pass ended
	EventDiagnostics                   // diagnostic counters changed
	EventStorageError                  // a slot file could not be opened, read or written
	EventError                         // a control call or transition failed; payload is the error
)

// EventTypes lists every event type, for subscribers that want everything.
var EventTypes = []EventType{
	EventModeChanged,
	EventLoopBoundary,
	EventDiagnostics,
	EventStorageError,
	EventError,
}

// String returns the wire name of the event type
func (t EventType) String() string {
	switch t {
	case EventModeChanged:
		return "mode_changed"
	case EventLoopBoundary:
		return "loop_boundary"
	case EventDiagnostics:
		return "diagnostics"
	case EventStorageError:
		return "storage_error"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one notification on the bus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// Bus is the publish/subscribe surface shared by recorder and observers.
type Bus interface {
	Subscribe(eventType EventType, ch chan<- Event)
	Unsubscribe(eventType EventType, ch chan<- Event)
	// Publish never blocks. It reports false if any subscriber missed the
	// event because its channel was full or the bus is stopped.
	Publish(evt Event) bool
	Start(ctx context.Context) error
	Stop()
}

// EventBus is the in-process Bus.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan<- Event

	stopped atomic.Bool
	cancel  context.CancelFunc
	gen     uint64
	dropped atomic.Uint64
}

// NewEventBus returns a bus ready for use. Start is optional; it ties the
// bus lifetime to a context.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]chan<- Event),
	}
}

func (b *EventBus) Subscribe(eventType EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.subscribers[eventType] {
		if existing == ch {
			return
		}
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
}

func (b *EventBus) Unsubscribe(eventType EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, existing := range subs {
		if existing == ch {
			b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (b *EventBus) Publish(evt Event) bool {
	if b.stopped.Load() {
		b.dropped.Add(1)
		return false
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := true
	for _, ch := range b.subscribers[evt.Type] {
		select {
		case ch <- evt:
		default:
			delivered = false
			b.dropped.Add(1)
		}
	}
	return delivered
}

// Start (re)enables publishing until Stop is called or ctx is done.
func (b *EventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.gen++
	gen := b.gen
	b.stopped.Store(false)

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.gen == gen {
			b.stopped.Store(true)
			b.cancel = nil
		}
	}()
	return nil
}

// Stop disables publishing. Safe to call more than once.
func (b *EventBus) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.gen++
	b.stopped.Store(true)
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Dropped returns how many deliveries were skipped.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}
