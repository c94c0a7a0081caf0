/*
Package scheduler implements the scheduling coordinator: one long-running
controller per scaling group that drives sessions through the lifecycle
handlers in pkg/handlers.

# Main loop

Each round: wait for a trigger or the periodic tick, coalesce any further
triggers received during the debounce window into the same round, then run
every handler once in declared order. Each handler acquires its own named
lock (pkg/lock) before loading a batch via
SchedulerRepository.GetSessionsForTransition; a lock held elsewhere skips
that handler for the round rather than blocking it. A handler's result is
committed by applying its SuccessStatus/FailureStatus/StaleStatus to the
corresponding session ids, grouped by the per-session reason string each
carries, then events are published for anything the handler flagged as
needing post-processing.

# Failure model

A handler error is logged and treated as no progress this round — the
batch simply retains its prior status and is picked up again next round.
A lock acquisition timeout is not an error. A crash between the status
commit and the event publish is acceptable: the periodic tick re-derives
work from current state rather than relying on the dropped event.

# Triggers

MarkSchedulingNeeded queues a reason string without blocking; a full
trigger channel already implies a round is pending, so a dropped trigger
changes nothing. Expected callers: a new session submission, a session
reaching a terminal status (frees slots), an agent heartbeat reporting
LOST->ALIVE or new slot types, a hook completion, and the health monitor
retrying an unhealthy session.
*/
package scheduler
