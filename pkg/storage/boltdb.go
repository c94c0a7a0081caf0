package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/corerr"
	"github.com/cuemby/sessiond/pkg/types"
)

// timeNow is a small indirection so tests can freeze the clock.
var timeNow = time.Now

var (
	bucketSessions      = []byte("sessions")
	bucketKernels       = []byte("kernels")
	bucketAgents        = []byte("agents")
	bucketSlotTypes     = []byte("resource_slot_types")
	bucketAgentResRows  = []byte("agent_resources")
	bucketAllocations   = []byte("resource_allocations")
	bucketScalingGroups = []byte("scaling_groups")
)

// BoltStore implements Store on top of an embedded BoltDB file. It is the
// local-store half of the Raft FSM in pkg/manager, whose Apply writes
// through the raw CRUD methods after a command has committed. The
// repository methods (UpdateSessionsTo, ApplySchedulingDecision, ...)
// write to this node's file directly and do not go through the Raft log.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the session scheduler's data file
// under dataDir and ensures every bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "sessiond.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketSessions,
			bucketKernels,
			bucketAgents,
			bucketSlotTypes,
			bucketAgentResRows,
			bucketAllocations,
			bucketScalingGroups,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

// --- Session CRUD ---

func (s *BoltStore) CreateSession(sess *types.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return b.Put([]byte(sess.ID), data)
	})
}

func (s *BoltStore) UpdateSession(sess *types.Session) error { return s.CreateSession(sess) }

func (s *BoltStore) GetSession(id string) (*types.Session, error) {
	var sess types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get([]byte(id))
		if data == nil {
			return corerr.NotFound("session not found: %s", id)
		}
		return json.Unmarshal(data, &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *BoltStore) DeleteSession(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(id))
	})
}

func (s *BoltStore) ListSessions() ([]*types.Session, error) {
	var out []*types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(k, v []byte) error {
			var sess types.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return err
			}
			out = append(out, &sess)
			return nil
		})
	})
	return out, err
}

// --- Kernel CRUD ---

func (s *BoltStore) CreateKernel(k *types.Kernel) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKernels)
		data, err := json.Marshal(k)
		if err != nil {
			return err
		}
		return b.Put([]byte(k.ID), data)
	})
}

func (s *BoltStore) UpdateKernel(k *types.Kernel) error { return s.CreateKernel(k) }

func (s *BoltStore) DeleteKernel(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKernels).Delete([]byte(id))
	})
}

func (s *BoltStore) ListKernels() ([]*types.Kernel, error) {
	var out []*types.Kernel
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKernels).ForEach(func(k, v []byte) error {
			var kern types.Kernel
			if err := json.Unmarshal(v, &kern); err != nil {
				return err
			}
			out = append(out, &kern)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListKernelsBySession(sessionID string) ([]*types.Kernel, error) {
	all, err := s.ListKernels()
	if err != nil {
		return nil, err
	}
	var out []*types.Kernel
	for _, k := range all {
		if k.SessionID == sessionID {
			out = append(out, k)
		}
	}
	return out, nil
}

// --- Agent CRUD (read-mostly; agents are externally owned) ---

func (s *BoltStore) CreateAgent(a *types.Agent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAgents)
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return b.Put([]byte(a.ID), data)
	})
}

func (s *BoltStore) UpdateAgent(a *types.Agent) error { return s.CreateAgent(a) }

func (s *BoltStore) ListAgents() ([]*types.Agent, error) {
	var out []*types.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAgents).ForEach(func(k, v []byte) error {
			var a types.Agent
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, &a)
			return nil
		})
	})
	return out, err
}

// --- Scaling groups ---

func (s *BoltStore) PutScalingGroup(g *types.ScalingGroup) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScalingGroups)
		data, err := json.Marshal(g)
		if err != nil {
			return err
		}
		return b.Put([]byte(g.Name), data)
	})
}

func (s *BoltStore) ListScalingGroupsRaw() ([]*types.ScalingGroup, error) {
	var out []*types.ScalingGroup
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScalingGroups).ForEach(func(k, v []byte) error {
			var g types.ScalingGroup
			if err := json.Unmarshal(v, &g); err != nil {
				return err
			}
			out = append(out, &g)
			return nil
		})
	})
	return out, err
}

// GetScalingGroup satisfies AgentRepository.GetScalingGroup.
func (s *BoltStore) GetScalingGroup(ctx context.Context, name string) (*types.ScalingGroup, error) {
	var group types.ScalingGroup
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketScalingGroups).Get([]byte(name))
		if data == nil {
			group = types.ScalingGroup{Name: name}
			return nil
		}
		return json.Unmarshal(data, &group)
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// --- Resource slot normalization tables ---

func (s *BoltStore) PutSlotType(t *types.ResourceSlotType) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlotTypes)
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return b.Put([]byte(t.SlotName), data)
	})
}

func (s *BoltStore) ListSlotTypesRaw() ([]*types.ResourceSlotType, error) {
	var out []*types.ResourceSlotType
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSlotTypes).ForEach(func(k, v []byte) error {
			var t types.ResourceSlotType
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, &t)
			return nil
		})
	})
	return out, err
}

func agentResourceKey(agentID, slotName string) []byte {
	return []byte(agentID + "\x00" + slotName)
}

func (s *BoltStore) PutAgentResource(r *types.AgentResource) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAgentResRows)
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put(agentResourceKey(r.AgentID, r.SlotName), data)
	})
}

func (s *BoltStore) ListAgentResourcesRaw() ([]*types.AgentResource, error) {
	var out []*types.AgentResource
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAgentResRows).ForEach(func(k, v []byte) error {
			var r types.AgentResource
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, &r)
			return nil
		})
	})
	return out, err
}

func allocationKey(kernelID, slotName string) []byte {
	return []byte(kernelID + "\x00" + slotName)
}

func (s *BoltStore) PutAllocation(a *types.ResourceAllocation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAllocations)
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return b.Put(allocationKey(a.KernelID, a.SlotName), data)
	})
}

func (s *BoltStore) DeleteAllocation(kernelID, slotName string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAllocations).Delete(allocationKey(kernelID, slotName))
	})
}

func (s *BoltStore) ListAllocationsRaw() ([]*types.ResourceAllocation, error) {
	var out []*types.ResourceAllocation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAllocations).ForEach(func(k, v []byte) error {
			var a types.ResourceAllocation
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, &a)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) allocationsByKernel(kernelID string) ([]types.ResourceAllocation, error) {
	all, err := s.ListAllocationsRaw()
	if err != nil {
		return nil, err
	}
	var out []types.ResourceAllocation
	for _, a := range all {
		if a.KernelID == kernelID {
			out = append(out, *a)
		}
	}
	return out, nil
}

// --- AgentRepository ---

func (s *BoltStore) GetAgentByID(ctx context.Context, agentID string) (*types.Agent, error) {
	agents, err := s.ListAgents()
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		if a.ID == agentID {
			return a, nil
		}
	}
	return nil, corerr.NotFound("agent not found: %s", agentID)
}

func (s *BoltStore) ListSchedulable(ctx context.Context, scalingGroup string) ([]*types.Agent, error) {
	agents, err := s.ListAgents()
	if err != nil {
		return nil, err
	}
	var out []*types.Agent
	for _, a := range agents {
		if a.ScalingGroup == scalingGroup && a.Schedulable && a.Status == types.AgentAlive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *BoltStore) GetResources(ctx context.Context, agentID string) ([]types.AgentResource, error) {
	all, err := s.ListAgentResourcesRaw()
	if err != nil {
		return nil, err
	}
	var out []types.AgentResource
	for _, r := range all {
		if r.AgentID == agentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *BoltStore) ListSlotTypes(ctx context.Context) ([]types.ResourceSlotType, error) {
	raw, err := s.ListSlotTypesRaw()
	if err != nil {
		return nil, err
	}
	out := make([]types.ResourceSlotType, len(raw))
	for i, t := range raw {
		out[i] = *t
	}
	return out, nil
}

// --- SessionRepository ---

// GetByID satisfies SessionRepository.GetByID.
func (s *BoltStore) GetByID(ctx context.Context, sessionID string) (*types.SessionWithKernels, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	kernels, err := s.ListKernelsBySession(sessionID)
	if err != nil {
		return nil, err
	}
	return &types.SessionWithKernels{Session: sess, Kernels: kernels}, nil
}

func (s *BoltStore) UpdateSessionsTo(ctx context.Context, status types.SessionStatus, ids []string, reason string) error {
	for _, id := range ids {
		sess, err := s.GetSession(id)
		if err != nil {
			return err
		}
		if sess.Status == status {
			// Current-status guard: a repeated transition is a no-op.
			continue
		}
		sess.Status = status
		sess.StatusInfo = reason
		sess.StatusChangedAt = timeNow()
		if err := s.UpdateSession(sess); err != nil {
			return err
		}
	}
	return s.InvalidateKernelRelatedCache(ctx, ids)
}

func (s *BoltStore) InvalidateKernelRelatedCache(ctx context.Context, sessionIDs []string) error {
	// The Bolt store itself holds no cache entries; invalidation of the
	// Redis-backed layer (pkg/cache) is the caller's responsibility once
	// this method returns. Kept as a named method per SPEC_FULL.md §4.2
	// since cache layout can differ from row layout.
	return nil
}

func (s *BoltStore) ForceUpdateLifecycle(ctx context.Context, sessionID string, status types.SessionStatus) error {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}
	sess.Status = status
	sess.StatusChangedAt = timeNow()
	return s.UpdateSession(sess)
}

func (s *BoltStore) ClearErrors(ctx context.Context, sessionID string) error {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}
	sess.StatusInfo = ""
	return s.UpdateSession(sess)
}

// IncrementRetryCount satisfies SessionRepository.IncrementRetryCount.
func (s *BoltStore) IncrementRetryCount(ctx context.Context, sessionID string) error {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}
	sess.RetryCount++
	return s.UpdateSession(sess)
}

// --- SchedulerRepository ---

func (s *BoltStore) toHandlerData(sess *types.Session, kernels []*types.Kernel) batch.HandlerSessionData {
	hk := make([]batch.HandlerKernelData, len(kernels))
	for i, k := range kernels {
		hk[i] = batch.HandlerKernelData{
			KernelID: k.ID,
			AgentID:  k.AgentID,
			Image:    k.ImageRef,
			Status:   k.Status,
			Role:     k.Role,
		}
	}
	return batch.HandlerSessionData{
		SessionID:       sess.ID,
		CreationID:      sess.CreationID,
		AccessKey:       sess.AccessKey,
		Status:          sess.Status,
		ScalingGroup:    sess.ScalingGroup,
		SessionType:     sess.SessionType,
		StatusChangedAt: sess.StatusChangedAt.Unix(),
		StatusInfo:      sess.StatusInfo,
		RetryCount:      sess.RetryCount,
		Kernels:         hk,
	}
}

func containsStatus(set []types.SessionStatus, st types.SessionStatus) bool {
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}

func (s *BoltStore) GetSessionsForTransition(ctx context.Context, targetStatuses []types.SessionStatus, targetKernelStatuses []types.KernelStatus, scalingGroup string) ([]batch.HandlerSessionData, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	var out []batch.HandlerSessionData
	for _, sess := range sessions {
		if scalingGroup != "" && sess.ScalingGroup != scalingGroup {
			continue
		}
		if !containsStatus(targetStatuses, sess.Status) {
			continue
		}
		kernels, err := s.ListKernelsBySession(sess.ID)
		if err != nil {
			return nil, err
		}
		data := s.toHandlerData(sess, kernels)
		if len(targetKernelStatuses) > 0 {
			ks := make([]types.KernelStatus, len(targetKernelStatuses))
			copy(ks, targetKernelStatuses)
			ok := true
			for _, k := range kernels {
				if !containsKernelStatus(ks, k.Status) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
		}
		out = append(out, data)
	}
	return out, nil
}

func containsKernelStatus(set []types.KernelStatus, st types.KernelStatus) bool {
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}

func (s *BoltStore) GetSessionsByStatus(ctx context.Context, status types.SessionStatus) ([]batch.HandlerSessionData, error) {
	return s.GetSessionsForTransition(ctx, []types.SessionStatus{status}, nil, "")
}

func (s *BoltStore) ReleaseKernelAllocations(ctx context.Context, kernelIDs []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		resBucket := tx.Bucket(bucketAgentResRows)
		allocBucket := tx.Bucket(bucketAllocations)

		for _, kernelID := range kernelIDs {
			var toRelease []types.ResourceAllocation
			if err := allocBucket.ForEach(func(k, v []byte) error {
				var a types.ResourceAllocation
				if err := json.Unmarshal(v, &a); err != nil {
					return err
				}
				if a.KernelID == kernelID {
					toRelease = append(toRelease, a)
				}
				return nil
			}); err != nil {
				return err
			}

			for _, a := range toRelease {
				kern, err := s.kernelByID(kernelID)
				if err != nil {
					return err
				}
				resKey := agentResourceKey(kern.AgentID, a.SlotName)
				resData := resBucket.Get(resKey)
				if resData != nil {
					var res types.AgentResource
					if err := json.Unmarshal(resData, &res); err != nil {
						return err
					}
					res.Used = res.Used.Sub(a.Requested)
					if res.Used.IsNegative() {
						res.Used = decimal.Zero
					}
					newResData, err := json.Marshal(&res)
					if err != nil {
						return err
					}
					if err := resBucket.Put(resKey, newResData); err != nil {
						return err
					}
				}
				if err := allocBucket.Delete(allocationKey(kernelID, a.SlotName)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *BoltStore) kernelByID(kernelID string) (*types.Kernel, error) {
	all, err := s.ListKernels()
	if err != nil {
		return nil, err
	}
	for _, k := range all {
		if k.ID == kernelID {
			return k, nil
		}
	}
	return nil, corerr.NotFound("kernel not found: %s", kernelID)
}

func (s *BoltStore) ApplySchedulingDecision(ctx context.Context, decision SchedulingDecision) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sessBucket := tx.Bucket(bucketSessions)
		kernBucket := tx.Bucket(bucketKernels)
		resBucket := tx.Bucket(bucketAgentResRows)
		allocBucket := tx.Bucket(bucketAllocations)

		sessData := sessBucket.Get([]byte(decision.SessionID))
		if sessData == nil {
			return corerr.NotFound("session not found: %s", decision.SessionID)
		}
		var sess types.Session
		if err := json.Unmarshal(sessData, &sess); err != nil {
			return err
		}
		sess.Status = types.SessionScheduled
		sess.StatusChangedAt = timeNow()

		for _, assignment := range decision.Assignments {
			kernData := kernBucket.Get([]byte(assignment.KernelID))
			if kernData == nil {
				return corerr.NotFound("kernel not found: %s", assignment.KernelID)
			}
			var kern types.Kernel
			if err := json.Unmarshal(kernData, &kern); err != nil {
				return err
			}
			kern.AgentID = assignment.AgentID
			kern.Status = types.KernelScheduled
			kern.StatusChangedAt = timeNow()
			newKernData, err := json.Marshal(&kern)
			if err != nil {
				return err
			}
			if err := kernBucket.Put([]byte(kern.ID), newKernData); err != nil {
				return err
			}

			for _, alloc := range assignment.Allocations {
				resKey := agentResourceKey(assignment.AgentID, alloc.SlotName)
				resData := resBucket.Get(resKey)
				if resData == nil {
					return corerr.NotFound("agent resource not found: %s/%s", assignment.AgentID, alloc.SlotName)
				}
				var res types.AgentResource
				if err := json.Unmarshal(resData, &res); err != nil {
					return err
				}
				newUsed := res.Used.Add(alloc.Requested)
				if newUsed.GreaterThan(res.Capacity) {
					return corerr.ResourceExhausted("agent %s slot %s: requested %s exceeds remaining capacity", assignment.AgentID, alloc.SlotName, alloc.Requested)
				}
				res.Used = newUsed
				newResData, err := json.Marshal(&res)
				if err != nil {
					return err
				}
				if err := resBucket.Put(resKey, newResData); err != nil {
					return err
				}

				allocData, err := json.Marshal(&alloc)
				if err != nil {
					return err
				}
				if err := allocBucket.Put(allocationKey(alloc.KernelID, alloc.SlotName), allocData); err != nil {
					return err
				}
			}
		}

		newSessData, err := json.Marshal(&sess)
		if err != nil {
			return err
		}
		return sessBucket.Put([]byte(sess.ID), newSessData)
	})
}
