/*
Package events provides an in-memory event broker for the session
scheduler's pub/sub messaging.

The events package implements a lightweight event bus for broadcasting
session-lifecycle occurrences to interested subscribers: the API layer
streaming updates to clients, metrics counting events, audit logging. It
supports non-blocking, fan-out delivery over buffered channels; there is no
topic filtering, replay, or delivery guarantee beyond best-effort
at-least-once.

# Core components

Broker: the central message bus. Manages subscriber lifecycle, publishes
without blocking on a full subscriber buffer (100-event internal buffer,
50-event per-subscriber buffer), and shuts down gracefully via Stop.

Event: Type, SessionID, AgentID, Reason, Timestamp, StatusBefore,
StatusAfter. Not every field is meaningful for every Type — agent events
leave SessionID empty, for instance.

Subscriber: a buffered channel returned by Subscribe, closed by
Unsubscribe.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			handle(event)
		}
	}()

	broker.Publish(&events.Event{
		Type:      events.EventSessionStarted,
		SessionID: sessionID,
		Reason:    "scheduled",
	})

# Integration points

  - pkg/scheduler: publishes session events after each coordinator round
    commits a handler's result.
  - cmd/sessiond: subscribes and relays kernel-terminated, agent-heartbeat
    and session-terminated events into the coordinator's trigger channel.

# Delivery semantics

Publish never blocks on a slow subscriber — a full buffer drops the event
for that subscriber only, never for others, and never stalls the
publisher. Events are not persisted or replayable: a subscriber that was
not listening when an event fired has simply missed it, consistent with
SPEC_FULL.md's note that a crash between a status commit and its event
publish is acceptable, since the periodic wakeup re-derives events from
current state if needed.
*/
package events
