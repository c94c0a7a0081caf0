/*
Package storage implements the session repository and scheduler repository
contracts (SPEC_FULL.md §4.2) on top of an embedded BoltDB file, one bucket
per entity: sessions, kernels, agents, scaling_groups, resource_slot_types,
agent_resources, resource_allocations.

The Raft FSM in pkg/manager writes through BoltStore's raw CRUD when it
applies a committed command, so those writes execute on every node. The
repository methods are called directly by pkg/scheduler, pkg/handlers and
pkg/health and write only to the local file; they do not pass through the
replicated log. BoltDB's single-writer transactions serialize all of these
writes without any additional application-level locking.

# Key layout

Sessions, kernels, and agents are keyed by their own id. Agent resources are
keyed by agent id + NUL + slot name; resource allocations are keyed by
kernel id + NUL + slot name, mirroring their composite primary keys.

# Repository methods vs raw CRUD

BoltStore exposes both the coarse, intention-revealing repository methods
(GetSessionsForTransition, ApplySchedulingDecision, ...) used by
pkg/scheduler and pkg/handlers, and the raw per-entity CRUD
(CreateSession, ListKernels, ...) used by the FSM's Apply/Snapshot/Restore.
The repository methods are built from the raw CRUD, never the reverse.

ApplySchedulingDecision is the one genuinely multi-row write: it updates a
session's status, binds kernels to agents, increments each agent resource's
Used, and inserts allocation rows, all inside one bolt.Tx — if any slot
would exceed its agent's capacity the whole decision aborts.
*/
package storage
