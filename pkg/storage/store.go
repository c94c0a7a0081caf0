// Package storage defines the repository contracts (C2, C3) and an embedded
// BoltDB-backed implementation of them. Every write method is transactional;
// every read method is snapshot-consistent, relying on BoltDB's own
// single-writer isolation rather than application-level locking.
package storage

import (
	"context"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/types"
)

// SessionRepository is the minimum surface described in SPEC_FULL.md §4.2.
type SessionRepository interface {
	GetByID(ctx context.Context, sessionID string) (*types.SessionWithKernels, error)
	UpdateSessionsTo(ctx context.Context, status types.SessionStatus, ids []string, reason string) error
	InvalidateKernelRelatedCache(ctx context.Context, sessionIDs []string) error
	ForceUpdateLifecycle(ctx context.Context, sessionID string, status types.SessionStatus) error
	ClearErrors(ctx context.Context, sessionID string) error
	IncrementRetryCount(ctx context.Context, sessionID string) error
}

// KernelAssignment binds one kernel to one agent and records the resource
// allocations the binding consumes.
type KernelAssignment struct {
	KernelID    string
	AgentID     string
	Allocations []types.ResourceAllocation
}

// SchedulingDecision is the atomic package committed by
// SchedulerRepository.ApplySchedulingDecision: session -> SCHEDULED, kernel
// -> agent bindings, agent slot decrements, allocation rows. All-or-nothing.
type SchedulingDecision struct {
	SessionID   string
	Assignments []KernelAssignment
}

// SchedulerRepository is the minimum surface described in SPEC_FULL.md §4.2.
type SchedulerRepository interface {
	GetSessionsForTransition(ctx context.Context, targetStatuses []types.SessionStatus, targetKernelStatuses []types.KernelStatus, scalingGroup string) ([]batch.HandlerSessionData, error)
	// GetSessionsByStatus is the addition required by SPEC_FULL.md §9 (the
	// Open Question about the source's health-monitor placeholder): the
	// health monitor uses it to pull the batch for each monitored status
	// directly, independent of scaling group.
	GetSessionsByStatus(ctx context.Context, status types.SessionStatus) ([]batch.HandlerSessionData, error)
	ApplySchedulingDecision(ctx context.Context, decision SchedulingDecision) error
	// ReleaseKernelAllocations gives back every resource_allocations row
	// owned by each kernel id to its agent's available capacity, then
	// deletes the rows. Called by the terminating handler once a kernel is
	// confirmed TERMINATED.
	ReleaseKernelAllocations(ctx context.Context, kernelIDs []string) error
}

// AgentRepository is the read-mostly surface over agent rows; agents
// themselves are owned by an external heartbeat pipeline (SPEC_FULL.md
// §3.3), so this module only reads them and records capacity changes made
// as a side effect of scheduling.
type AgentRepository interface {
	GetAgentByID(ctx context.Context, agentID string) (*types.Agent, error)
	ListSchedulable(ctx context.Context, scalingGroup string) ([]*types.Agent, error)
	GetResources(ctx context.Context, agentID string) ([]types.AgentResource, error)
	ListSlotTypes(ctx context.Context) ([]types.ResourceSlotType, error)
	// GetScalingGroup returns the named scaling group's config, notably its
	// scheduling Policy. Returns a zero-value ScalingGroup (Policy ""), not
	// an error, for a name with no stored config: the scheduler treats an
	// unknown or unconfigured scaling group as fifo.
	GetScalingGroup(ctx context.Context, name string) (*types.ScalingGroup, error)
}

// Store is the full embedded-storage surface backing the repositories
// above, plus raw entity CRUD used by the Raft FSM's Apply/Snapshot/Restore.
type Store interface {
	SessionRepository
	SchedulerRepository
	AgentRepository

	CreateSession(s *types.Session) error
	UpdateSession(s *types.Session) error
	DeleteSession(id string) error
	GetSession(id string) (*types.Session, error)
	ListSessions() ([]*types.Session, error)

	CreateKernel(k *types.Kernel) error
	UpdateKernel(k *types.Kernel) error
	DeleteKernel(id string) error
	ListKernelsBySession(sessionID string) ([]*types.Kernel, error)
	ListKernels() ([]*types.Kernel, error)

	CreateAgent(a *types.Agent) error
	UpdateAgent(a *types.Agent) error
	ListAgents() ([]*types.Agent, error)

	PutScalingGroup(g *types.ScalingGroup) error
	ListScalingGroupsRaw() ([]*types.ScalingGroup, error)

	PutSlotType(t *types.ResourceSlotType) error
	ListSlotTypesRaw() ([]*types.ResourceSlotType, error)

	PutAgentResource(r *types.AgentResource) error
	ListAgentResourcesRaw() ([]*types.AgentResource, error)

	PutAllocation(a *types.ResourceAllocation) error
	DeleteAllocation(kernelID, slotName string) error
	ListAllocationsRaw() ([]*types.ResourceAllocation, error)

	Close() error
}
