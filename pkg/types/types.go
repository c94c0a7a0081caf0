// Package types defines the entities and status state spaces of the session
// scheduler domain: sessions, kernels, agents, scaling groups, and the
// resource-slot normalization tables.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle status of a Session.
type SessionStatus string

const (
	SessionPending     SessionStatus = "PENDING"
	SessionScheduled   SessionStatus = "SCHEDULED"
	SessionPreparing   SessionStatus = "PREPARING"
	SessionPulling     SessionStatus = "PULLING"
	SessionPrepared    SessionStatus = "PREPARED"
	SessionCreating    SessionStatus = "CREATING"
	SessionRunning     SessionStatus = "RUNNING"
	SessionTerminating SessionStatus = "TERMINATING"
	SessionTerminated  SessionStatus = "TERMINATED"
	SessionCancelled   SessionStatus = "CANCELLED"
	SessionError       SessionStatus = "ERROR"
)

// KernelStatus mirrors SessionStatus at container granularity.
type KernelStatus string

const (
	KernelPending     KernelStatus = "PENDING"
	KernelScheduled   KernelStatus = "SCHEDULED"
	KernelPreparing   KernelStatus = "PREPARING"
	KernelPulling     KernelStatus = "PULLING"
	KernelPrepared    KernelStatus = "PREPARED"
	KernelCreating    KernelStatus = "CREATING"
	KernelRunning     KernelStatus = "RUNNING"
	KernelTerminating KernelStatus = "TERMINATING"
	KernelTerminated  KernelStatus = "TERMINATED"
	KernelCancelled   KernelStatus = "CANCELLED"
	KernelError       KernelStatus = "ERROR"
)

// SessionType distinguishes how a session's kernels are meant to be used.
type SessionType string

const (
	SessionTypeInteractive SessionType = "INTERACTIVE"
	SessionTypeBatch       SessionType = "BATCH"
	SessionTypeInference   SessionType = "INFERENCE"
)

// ClusterMode describes whether a session spans one or several agents.
type ClusterMode string

const (
	ClusterModeSingleNode ClusterMode = "SINGLE_NODE"
	ClusterModeMultiNode  ClusterMode = "MULTI_NODE"
)

// AgentStatus is the liveness status of a compute agent, as observed by the
// (external) heartbeat pipeline.
type AgentStatus string

const (
	AgentAlive      AgentStatus = "ALIVE"
	AgentLost       AgentStatus = "LOST"
	AgentTerminated AgentStatus = "TERMINATED"
)

// SlotType is the kind of value a resource slot holds.
type SlotType string

const (
	SlotTypeCount SlotType = "count"
	SlotTypeBytes SlotType = "bytes"
)

// ResourceSlot maps a slot name (e.g. "cpu", "mem", "cuda.device") to a
// precise decimal quantity. Missing keys are treated as zero by the
// arithmetic in pkg/slots.
type ResourceSlot map[string]decimal.Decimal

// KernelRole distinguishes the main kernel of a session from its peers in a
// multi-node cluster session.
type KernelRole string

const (
	KernelRoleMain KernelRole = "main"
	KernelRoleSub  KernelRole = "sub"
)

// Session is the user-visible scheduling unit: a collection of one or more
// kernels that share an identity and lifecycle.
type Session struct {
	ID              string
	CreationID      string
	Name            string
	AccessKey       string
	Owner           string
	Project         string
	Domain          string
	ScalingGroup    string
	SessionType     SessionType
	ClusterMode     ClusterMode
	ClusterSize     int
	Status          SessionStatus
	StatusChangedAt time.Time
	StatusInfo      string
	RetryCount      int
	RequestedSlots  ResourceSlot
	OccupyingSlots  ResourceSlot
	CallbackURL     string
	BatchTimeout    time.Duration
	StartsAt        *time.Time
	CreatedAt       time.Time
}

// Kernel is a single container instance belonging to a Session.
type Kernel struct {
	ID              string
	SessionID       string
	AgentID         string // empty until bound
	ImageRef        string
	Architecture    string
	Status          KernelStatus
	StatusChangedAt time.Time
	RequestedSlots  ResourceSlot
	OccupiedSlots   ResourceSlot
	Role            KernelRole
}

// Agent is a compute node capable of running kernels.
type Agent struct {
	ID             string
	Status         AgentStatus
	ScalingGroup   string
	Region         string
	Architecture   string
	PublicHost     string
	Addr           string
	AvailableSlots ResourceSlot
	OccupiedSlots  ResourceSlot
	ComputePlugins []string
	Version        string
	FirstContact   time.Time
	LostAt         *time.Time
	Schedulable    bool
}

// ScalingGroup is a named pool of agents with a scheduling policy attached.
type ScalingGroup struct {
	Name   string
	Policy string // "fifo" | "lifo" | "drf" | ...
}

// ResourceSlotType is a named, typed capacity dimension.
type ResourceSlotType struct {
	SlotName    string
	SlotType    SlotType
	DisplayName string
	Rank        int
}

// AgentResource records one agent's capacity and usage for one slot.
type AgentResource struct {
	AgentID  string
	SlotName string
	Capacity decimal.Decimal
	Used     decimal.Decimal
}

// ResourceAllocation records one kernel's reservation against one slot.
type ResourceAllocation struct {
	KernelID  string
	SlotName  string
	Requested decimal.Decimal
	Used      decimal.Decimal
	UsedAt    *time.Time
}

// SessionWithKernels bundles a session with its owned kernels, as returned
// by read paths that need the full aggregate.
type SessionWithKernels struct {
	Session *Session
	Kernels []*Kernel
}
