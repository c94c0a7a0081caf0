// Package manager wires this node's Raft participation to the embedded
// store and hosts the control listener new voters use to join.
//
// # Architecture
//
// Manager owns one node's Raft instance, the FSM applying its committed
// log, the BoltDB-backed store behind that FSM, and a small grpc control
// service (clusterrpc.go) a leader uses to admit new voters. Bootstrap
// starts a brand-new single-node cluster; Join asks an existing leader to
// add this node as a voter.
//
// Manager exposes IsLeader, but cmd/sessiond does not use it to gate the
// scheduling coordinator (pkg/scheduler) or health monitor (pkg/health):
// both start on every node and write to that node's store through the
// repository methods directly, not through the FSM.
//
// # State machine
//
// FSM.Apply dispatches Command.Op against the embedded store: session,
// kernel, and agent CRUD, plus the resource-slot-accounting rows
// (slot types, agent resources, allocations) the scheduling coordinator
// and lifecycle handlers mutate. Snapshot/Restore serialize and replay
// every entity the FSM owns for log compaction and catch-up joins.
package manager
