// Package event provides the pub/sub push channel for the cmdgate server
// using watermill.
package event

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventType represents the type of event.
type EventType string

const (
	ApprovalRequested EventType = "approval.requested"
	ApprovalResolved  EventType = "approval.resolved"
	SettingsUpdated   EventType = "settings.updated"
	AuditRecorded     EventType = "audit.recorded"
)

// Event represents an event to be published.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Listener is a function that receives events.
type Listener func(event Event)

// listenerEntry wraps a listener with an ID so it can be removed later.
type listenerEntry struct {
	id uint64
	fn Listener
}

// Bus is the fan-out event bus. It is backed by watermill's gochannel for
// infrastructure while keeping direct-call semantics so event payloads keep
// their Go types. A listener that subscribes after a publish misses that
// event; pending approvals are re-derivable via the coordinator's ListPending.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	listeners map[EventType][]listenerEntry
	global    []listenerEntry

	nextID uint64
	closed bool
}

// globalBus is the default event bus instance.
var globalBus = newBus()

func newBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		listeners: make(map[EventType][]listenerEntry),
	}
}

// NewBus creates a new event bus instance.
func NewBus() *Bus {
	return newBus()
}

// Subscribe registers a listener for a specific event type on the global bus.
// Returns an unsubscribe function.
func Subscribe(eventType EventType, fn Listener) func() {
	return globalBus.Subscribe(eventType, fn)
}

func (b *Bus) Subscribe(eventType EventType, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.listeners[eventType] = append(b.listeners[eventType], listenerEntry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.listeners[eventType]
		for i, e := range entries {
			if e.id == id {
				b.listeners[eventType] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}
}

// SubscribeAll registers a listener for every event on the global bus.
// Returns an unsubscribe function.
func SubscribeAll(fn Listener) func() {
	return globalBus.SubscribeAll(fn)
}

func (b *Bus) SubscribeAll(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.global = append(b.global, listenerEntry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.global {
			if e.id == id {
				b.global = append(b.global[:i], b.global[i+1:]...)
				break
			}
		}
	}
}

// snapshot collects the listeners that should see an event, under the read lock.
func (b *Bus) snapshot(eventType EventType) []Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	fns := make([]Listener, 0, len(b.listeners[eventType])+len(b.global))
	for _, e := range b.listeners[eventType] {
		fns = append(fns, e.fn)
	}
	for _, e := range b.global {
		fns = append(fns, e.fn)
	}
	return fns
}

// Publish sends an event to all listeners asynchronously. Each listener runs
// in its own goroutine so a slow operator UI cannot stall the approval path.
func Publish(event Event) {
	globalBus.Publish(event)
}

func (b *Bus) Publish(event Event) {
	for _, fn := range b.snapshot(event.Type) {
		go fn(event)
	}
}

// PublishSync sends an event to all listeners in the calling goroutine.
func PublishSync(event Event) {
	globalBus.PublishSync(event)
}

func (b *Bus) PublishSync(event Event) {
	for _, fn := range b.snapshot(event.Type) {
		fn(event)
	}
}

// Reset clears all listeners from the global bus (for testing).
func Reset() {
	globalBus.mu.Lock()
	globalBus.closed = true
	globalBus.mu.Unlock()

	_ = globalBus.pubsub.Close()

	// Small delay to allow in-flight listener goroutines to finish
	time.Sleep(10 * time.Millisecond)

	globalBus = newBus()
}

// ListenerCount reports how many listeners are registered on the global
// bus (for testing).
func ListenerCount() int {
	return globalBus.ListenerCount()
}

func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.global)
	for _, entries := range b.listeners {
		n += len(entries)
	}
	return n
}

// Close closes the bus and drops all listeners.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.listeners = make(map[EventType][]listenerEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub returns the underlying watermill GoChannel for advanced use cases
// such as middleware or switching to a distributed backend.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
