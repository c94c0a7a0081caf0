package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/cuemby/sessiond/pkg/metrics"
	"github.com/cuemby/sessiond/pkg/storage"
	"github.com/cuemby/sessiond/pkg/types"
)

// FSM implements the Raft Finite State Machine over the embedded store:
// every session, kernel, agent, and resource-accounting mutation goes
// through Apply so every voter reaches the same state from the same log.
type FSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewFSM builds an FSM over store.
func NewFSM(store storage.Store) *FSM {
	return &FSM{store: store}
}

// Command is one state-change operation in the Raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Apply applies a committed Raft log entry to the FSM.
func (f *FSM) Apply(log *raft.Log) interface{} {
	start := time.Now()
	defer func() { metrics.RaftApplyDuration.Observe(time.Since(start).Seconds()) }()

	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case "create_session":
		var s types.Session
		if err := json.Unmarshal(cmd.Data, &s); err != nil {
			return err
		}
		return f.store.CreateSession(&s)

	case "update_session":
		var s types.Session
		if err := json.Unmarshal(cmd.Data, &s); err != nil {
			return err
		}
		return f.store.UpdateSession(&s)

	case "delete_session":
		var sessionID string
		if err := json.Unmarshal(cmd.Data, &sessionID); err != nil {
			return err
		}
		return f.store.DeleteSession(sessionID)

	case "create_kernel":
		var k types.Kernel
		if err := json.Unmarshal(cmd.Data, &k); err != nil {
			return err
		}
		return f.store.CreateKernel(&k)

	case "update_kernel":
		var k types.Kernel
		if err := json.Unmarshal(cmd.Data, &k); err != nil {
			return err
		}
		return f.store.UpdateKernel(&k)

	case "delete_kernel":
		var kernelID string
		if err := json.Unmarshal(cmd.Data, &kernelID); err != nil {
			return err
		}
		return f.store.DeleteKernel(kernelID)

	case "create_agent":
		var a types.Agent
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return f.store.CreateAgent(&a)

	case "update_agent":
		var a types.Agent
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return f.store.UpdateAgent(&a)

	case "put_scaling_group":
		var g types.ScalingGroup
		if err := json.Unmarshal(cmd.Data, &g); err != nil {
			return err
		}
		return f.store.PutScalingGroup(&g)

	case "put_slot_type":
		var t types.ResourceSlotType
		if err := json.Unmarshal(cmd.Data, &t); err != nil {
			return err
		}
		return f.store.PutSlotType(&t)

	case "put_agent_resource":
		var r types.AgentResource
		if err := json.Unmarshal(cmd.Data, &r); err != nil {
			return err
		}
		return f.store.PutAgentResource(&r)

	case "put_allocation":
		var a types.ResourceAllocation
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return f.store.PutAllocation(&a)

	case "delete_allocation":
		var ref allocationRef
		if err := json.Unmarshal(cmd.Data, &ref); err != nil {
			return err
		}
		return f.store.DeleteAllocation(ref.KernelID, ref.SlotName)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// allocationRef identifies one resource_allocations row for a delete.
type allocationRef struct {
	KernelID string `json:"kernel_id"`
	SlotName string `json:"slot_name"`
}

// Snapshot captures a point-in-time copy of every entity the FSM owns.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	sessions, err := f.store.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	kernels, err := f.store.ListKernels()
	if err != nil {
		return nil, fmt.Errorf("list kernels: %w", err)
	}
	agents, err := f.store.ListAgents()
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	scalingGroups, err := f.store.ListScalingGroupsRaw()
	if err != nil {
		return nil, fmt.Errorf("list scaling groups: %w", err)
	}
	slotTypes, err := f.store.ListSlotTypesRaw()
	if err != nil {
		return nil, fmt.Errorf("list slot types: %w", err)
	}
	resources, err := f.store.ListAgentResourcesRaw()
	if err != nil {
		return nil, fmt.Errorf("list agent resources: %w", err)
	}
	allocations, err := f.store.ListAllocationsRaw()
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}

	return &Snapshot{
		Sessions:      sessions,
		Kernels:       kernels,
		Agents:        agents,
		ScalingGroups: scalingGroups,
		SlotTypes:     slotTypes,
		Resources:     resources,
		Allocations:   allocations,
	}, nil
}

// Restore replaces the FSM's state with a decoded snapshot, used when a
// node restarts or joins the cluster and needs to catch up past the log
// Raft has already compacted.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot Snapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range snapshot.Sessions {
		if err := f.store.CreateSession(s); err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
	}
	for _, k := range snapshot.Kernels {
		if err := f.store.CreateKernel(k); err != nil {
			return fmt.Errorf("restore kernel: %w", err)
		}
	}
	for _, a := range snapshot.Agents {
		if err := f.store.CreateAgent(a); err != nil {
			return fmt.Errorf("restore agent: %w", err)
		}
	}
	for _, g := range snapshot.ScalingGroups {
		if err := f.store.PutScalingGroup(g); err != nil {
			return fmt.Errorf("restore scaling group: %w", err)
		}
	}
	for _, t := range snapshot.SlotTypes {
		if err := f.store.PutSlotType(t); err != nil {
			return fmt.Errorf("restore slot type: %w", err)
		}
	}
	for _, r := range snapshot.Resources {
		if err := f.store.PutAgentResource(r); err != nil {
			return fmt.Errorf("restore agent resource: %w", err)
		}
	}
	for _, a := range snapshot.Allocations {
		if err := f.store.PutAllocation(a); err != nil {
			return fmt.Errorf("restore allocation: %w", err)
		}
	}

	return nil
}

// Snapshot is the serialized point-in-time copy of every FSM-owned entity.
type Snapshot struct {
	Sessions      []*types.Session
	Kernels       []*types.Kernel
	Agents        []*types.Agent
	ScalingGroups []*types.ScalingGroup
	SlotTypes     []*types.ResourceSlotType
	Resources     []*types.AgentResource
	Allocations   []*types.ResourceAllocation
}

// Persist writes the snapshot to sink, the Raft-provided destination.
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release is a no-op; the snapshot holds no resources beyond the encoded
// bytes already written by Persist.
func (s *Snapshot) Release() {}
