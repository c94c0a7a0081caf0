package handlers

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/log"
	"github.com/cuemby/sessiond/pkg/slots"
	"github.com/cuemby/sessiond/pkg/storage"
	"github.com/cuemby/sessiond/pkg/types"
)

// SchedulePendingHandler runs the scaling group's placement policy over
// PENDING sessions: it picks agents for each kernel and commits the
// assignment through SchedulerRepository.ApplySchedulingDecision.
type SchedulePendingHandler struct {
	sessions storage.SessionRepository
	agents   storage.AgentRepository
	sched    storage.SchedulerRepository
	logger   zerolog.Logger
}

// NewSchedulePendingHandler builds a SchedulePendingHandler over the given
// repositories.
func NewSchedulePendingHandler(sessions storage.SessionRepository, agents storage.AgentRepository, sched storage.SchedulerRepository) *SchedulePendingHandler {
	return &SchedulePendingHandler{
		sessions: sessions,
		agents:   agents,
		sched:    sched,
		logger:   log.WithComponent("handler.schedule_pending"),
	}
}

func (h *SchedulePendingHandler) Name() string { return "schedule_pending" }

func (h *SchedulePendingHandler) TargetStatuses() []types.SessionStatus {
	return []types.SessionStatus{types.SessionPending}
}

func (h *SchedulePendingHandler) TargetKernelStatuses() []types.KernelStatus { return nil }

func (h *SchedulePendingHandler) SuccessStatus() types.SessionStatus { return types.SessionScheduled }

func (h *SchedulePendingHandler) FailureStatus() (types.SessionStatus, bool) {
	return types.SessionPending, true
}

func (h *SchedulePendingHandler) StaleStatus() (types.SessionStatus, bool) {
	return types.SessionCancelled, true
}

func (h *SchedulePendingHandler) LockID() string { return "sokovan:target:pending" }

// agentCapacity is a working copy of one agent's remaining room, decremented
// as kernels are tentatively placed onto it within one Execute call.
type agentCapacity struct {
	agent     *types.Agent
	remaining types.ResourceSlot
}

func (h *SchedulePendingHandler) Execute(ctx context.Context, sessions []batch.HandlerSessionData, scalingGroup string) (batch.SessionExecutionResult, error) {
	var result batch.SessionExecutionResult
	if len(sessions) == 0 {
		return result, nil
	}

	agents, err := h.agents.ListSchedulable(ctx, scalingGroup)
	if err != nil {
		return result, err
	}
	pool := make([]*agentCapacity, len(agents))
	for i, a := range agents {
		resources, err := h.agents.GetResources(ctx, a.ID)
		if err != nil {
			return result, err
		}
		remaining := make(types.ResourceSlot, len(resources))
		for _, r := range resources {
			remaining[r.SlotName] = r.Capacity.Sub(r.Used)
		}
		pool[i] = &agentCapacity{agent: a, remaining: remaining}
	}

	var candidates []pendingSession
	for _, sd := range sessions {
		if len(sd.Kernels) == 0 {
			// A session with no kernels never runs; fold it into Stales,
			// which the coordinator moves to CANCELLED (see StaleStatus)
			// rather than mislabeling it a scheduling failure.
			result.Stales = append(result.Stales, sd.SessionID)
			continue
		}

		full, err := h.sessions.GetByID(ctx, sd.SessionID)
		if err != nil {
			result.Failures = append(result.Failures, sd.SessionID)
			continue
		}
		candidates = append(candidates, pendingSession{data: sd, full: full})
	}

	group, err := h.agents.GetScalingGroup(ctx, scalingGroup)
	if err != nil {
		return result, err
	}
	orderCandidates(candidates, group.Policy, totalCapacity(pool))

	for _, c := range candidates {
		decision, ok := h.placeSession(c.full, pool)
		if !ok {
			h.logger.Debug().Str("session_id", c.data.SessionID).Msg("no agent combination fits requested slots")
			result.Failures = append(result.Failures, c.data.SessionID)
			continue
		}

		if err := h.sched.ApplySchedulingDecision(ctx, decision); err != nil {
			result.Failures = append(result.Failures, c.data.SessionID)
			continue
		}

		result.Successes = append(result.Successes, c.data.SessionID)
		result.ScheduledData = append(result.ScheduledData, batch.ScheduledSessionData{
			SessionID:  c.data.SessionID,
			CreationID: c.data.CreationID,
			AccessKey:  c.data.AccessKey,
			Reason:     "scheduled",
		})
	}

	return result, nil
}

// pendingSession pairs a handler's compact view of a session with the full
// entity fetched for placement, so ordering and placement share one lookup.
type pendingSession struct {
	data batch.HandlerSessionData
	full *types.SessionWithKernels
}

// totalCapacity sums every agent's pristine remaining capacity in pool, for
// use as the denominator of a session's dominant-resource share under the
// drf policy. Must be called before any placement mutates pool.
func totalCapacity(pool []*agentCapacity) types.ResourceSlot {
	total := make(types.ResourceSlot)
	for _, cap := range pool {
		total = slots.Add(total, cap.remaining)
	}
	return total
}

// dominantShare returns the largest fraction of cluster-wide capacity any
// single slot of session's combined kernel requests would consume.
func dominantShare(session *types.SessionWithKernels, total types.ResourceSlot) float64 {
	requested := make(types.ResourceSlot)
	for _, k := range session.Kernels {
		requested = slots.Add(requested, k.RequestedSlots)
	}
	share := 0.0
	for slotName, amount := range requested {
		capacity, ok := total[slotName]
		if !ok || capacity.IsZero() {
			continue
		}
		if s, _ := amount.Div(capacity).Float64(); s > share {
			share = s
		}
	}
	return share
}

// orderCandidates sorts candidates in place according to the scaling
// group's scheduling policy: fifo (default) and lifo order by
// status_changed_at with session_id as a tie-break; drf orders by
// ascending dominant resource share so sessions asking for a smaller
// slice of cluster capacity are placed first.
func orderCandidates(candidates []pendingSession, policy string, total types.ResourceSlot) {
	switch policy {
	case "lifo":
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i].data, candidates[j].data
			if a.StatusChangedAt != b.StatusChangedAt {
				return a.StatusChangedAt > b.StatusChangedAt
			}
			return a.SessionID > b.SessionID
		})
	case "drf":
		sort.Slice(candidates, func(i, j int) bool {
			si, sj := dominantShare(candidates[i].full, total), dominantShare(candidates[j].full, total)
			if si != sj {
				return si < sj
			}
			return candidates[i].data.SessionID < candidates[j].data.SessionID
		})
	default: // "fifo" and unrecognized policies
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i].data, candidates[j].data
			if a.StatusChangedAt != b.StatusChangedAt {
				return a.StatusChangedAt < b.StatusChangedAt
			}
			return a.SessionID < b.SessionID
		})
	}
}

// placeSession assigns every kernel of session to a single-fit agent using
// first-fit over pool, mutating pool's remaining capacities as it commits
// tentative placements so later kernels in the same session see them.
//
// A MULTI_NODE session additionally requires that no two kernels land on
// the same agent: first-fit alone would happily pack all of a session's
// kernels onto one sufficiently large agent, which satisfies capacity but
// not the cluster's distinct-node guarantee. placeSession fails the whole
// decision rather than partially placing a session that can't satisfy
// that guarantee against the current pool.
func (h *SchedulePendingHandler) placeSession(session *types.SessionWithKernels, pool []*agentCapacity) (storage.SchedulingDecision, bool) {
	decision := storage.SchedulingDecision{SessionID: session.Session.ID}
	distinctAgents := session.Session.ClusterMode == types.ClusterModeMultiNode
	used := make(map[string]bool, len(session.Kernels))

	for _, kernel := range session.Kernels {
		placed := false
		for _, cap := range pool {
			if distinctAgents && used[cap.agent.ID] {
				continue
			}
			if !slots.LessEqual(kernel.RequestedSlots, cap.remaining) {
				continue
			}

			var allocations []types.ResourceAllocation
			for slotName, amount := range kernel.RequestedSlots {
				allocations = append(allocations, types.ResourceAllocation{
					KernelID:  kernel.ID,
					SlotName:  slotName,
					Requested: amount,
				})
			}
			decision.Assignments = append(decision.Assignments, storage.KernelAssignment{
				KernelID:    kernel.ID,
				AgentID:     cap.agent.ID,
				Allocations: allocations,
			})
			cap.remaining = slots.Sub(cap.remaining, kernel.RequestedSlots)
			used[cap.agent.ID] = true
			placed = true
			break
		}
		if !placed {
			return storage.SchedulingDecision{}, false
		}
	}

	if distinctAgents && len(used) < session.Session.ClusterSize {
		return storage.SchedulingDecision{}, false
	}

	return decision, true
}
