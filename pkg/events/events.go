// Package events implements the session scheduler's event bus: a
// best-effort, at-least-once broadcast fan-out from the coordinator and
// health monitor to whatever consumers subscribe (API layer, audit log,
// external webhooks).
package events

import (
	"sync"
	"time"
)

// EventType names one kind of lifecycle transition broadcast on the bus.
type EventType string

const (
	EventSessionStarted    EventType = "session.started"
	EventSessionTerminated EventType = "session.terminated"
	EventKernelStarted     EventType = "kernel.started"
	EventKernelTerminated  EventType = "kernel.terminated"
	EventAgentHeartbeat    EventType = "agent.heartbeat"
	EventAgentTerminated   EventType = "agent.terminated"
)

// Event is one published occurrence. Not every field applies to every
// EventType: kernel events leave AgentID set but not always meaningful,
// agent events leave SessionID empty.
type Event struct {
	Type         EventType
	SessionID    string
	AgentID      string
	Reason       string
	Timestamp    time.Time
	StatusBefore string
	StatusAfter  string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker manages event subscriptions and distribution. Publish never
// blocks on a slow subscriber: a full subscriber buffer drops the event
// for that subscriber rather than stalling the publisher, consistent with
// the at-least-once, best-effort delivery SPEC_FULL.md's concurrency model
// describes.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
