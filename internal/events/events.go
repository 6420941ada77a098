// Package events is a small in-process event bus. Unlike a payloadless
// broadcast, every event names the conversation it concerns so subscribers
// can refresh incrementally instead of re-fetching everything.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Event is implemented by every event type.
type Event interface {
	EventName() string
}

// ConversationChanged fires when a conversation's message set or read state
// changed: new message stored, assistant reply landed, or read receipts
// applied.
type ConversationChanged struct {
	ConversationID uuid.UUID
	ParticipantIDs []uuid.UUID
}

func (ConversationChanged) EventName() string { return "conversation.changed" }

// Listener handles a dispatched event.
type Listener func(Event)

// Bus manages subscriptions and dispatch.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[string]map[int]Listener
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string]map[int]Listener)}
}

// Subscribe registers a listener for an event name and returns an
// unsubscribe function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(eventName string, fn Listener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.listeners[eventName] == nil {
		b.listeners[eventName] = make(map[int]Listener)
	}
	b.listeners[eventName][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners[eventName], id)
	}
}

// Emit dispatches an event to all listeners registered for its name.
// Listeners run synchronously on the emitting goroutine; they must not block.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	registered := b.listeners[ev.EventName()]
	fns := make([]Listener, 0, len(registered))
	for _, fn := range registered {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
