/*
Package types defines the core data structures of the session scheduler
domain model.

It contains the entities that flow through every other package: sessions,
kernels, agents, scaling groups, and the resource-slot normalization tables
(resource slot types, agent resources, resource allocations).

# Status state spaces

Session and kernel statuses both move through the same sequence:

	PENDING -> SCHEDULED -> PREPARING -> PULLING -> PREPARED -> CREATING -> RUNNING

RUNNING sessions end at TERMINATING -> TERMINATED, or at CANCELLED directly
from an earlier status. ERROR is a sink reachable from any non-terminal
status. A session's status is derived from its kernels' statuses by the
handlers in pkg/handlers and stored in Session.Status.

# Resource slots

ResourceSlot is a map from slot name to a decimal.Decimal quantity rather
than a float, so that both multi-terabyte byte counts and fractional CPU
counts round-trip exactly. Arithmetic over ResourceSlot lives in pkg/slots,
not on the type itself, to keep this package free of behavior.

References between entities are plain string ids (Session.ID, Kernel.AgentID,
AgentResource.AgentID, ...), not live pointers; joins happen at the
repository layer in pkg/storage.
*/
package types
