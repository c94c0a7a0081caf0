/*
Package handlers implements the lifecycle handler contract: small,
side-effect-declaring units that each own one (target status -> next status)
transition, invoked by the scheduling coordinator (pkg/scheduler) under a
per-handler named lock.

Canonical handlers, in the order the coordinator runs them each round:
SchedulePendingHandler, CheckPullingProgressHandler,
CheckCreatingProgressHandler, CheckTerminatingProgressHandler,
CheckRunningSessionTerminationHandler. Each is idempotent: re-running
Execute on the same batch, absent external changes, yields an equivalent
result, since every write underneath is itself guarded by the session's
current status.

Handlers never hold locks themselves and never touch the coordinator's
trigger channel; they receive an already-isolated batch and return a
result describing what happened to it. The coordinator turns a result into
status-column writes; the one exception is SchedulePendingHandler, whose
ApplySchedulingDecision call sets SCHEDULED itself before the coordinator
commits the same status.
*/
package handlers
