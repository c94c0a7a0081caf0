package handlers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/log"
	"github.com/cuemby/sessiond/pkg/storage"
	"github.com/cuemby/sessiond/pkg/types"
)

// CheckTerminatingProgressHandler advances TERMINATING sessions to
// TERMINATED once every kernel reports TERMINATED, releasing the kernels'
// resource allocations and invalidating kernel-related cache entries before
// firing the to-terminated hook.
type CheckTerminatingProgressHandler struct {
	sched    storage.SchedulerRepository
	sessions storage.SessionRepository
	hooks    *HookRegistry
	logger   zerolog.Logger
}

// NewCheckTerminatingProgressHandler builds a CheckTerminatingProgressHandler.
func NewCheckTerminatingProgressHandler(sched storage.SchedulerRepository, sessions storage.SessionRepository, hooks *HookRegistry) *CheckTerminatingProgressHandler {
	return &CheckTerminatingProgressHandler{
		sched:    sched,
		sessions: sessions,
		hooks:    hooks,
		logger:   log.WithComponent("handler.check_terminating_progress"),
	}
}

func (h *CheckTerminatingProgressHandler) Name() string { return "check_terminating_progress" }

func (h *CheckTerminatingProgressHandler) TargetStatuses() []types.SessionStatus {
	return []types.SessionStatus{types.SessionTerminating}
}

func (h *CheckTerminatingProgressHandler) TargetKernelStatuses() []types.KernelStatus { return nil }

func (h *CheckTerminatingProgressHandler) SuccessStatus() types.SessionStatus {
	return types.SessionTerminated
}

func (h *CheckTerminatingProgressHandler) FailureStatus() (types.SessionStatus, bool) {
	return "", false
}

func (h *CheckTerminatingProgressHandler) StaleStatus() (types.SessionStatus, bool) { return "", false }

func (h *CheckTerminatingProgressHandler) LockID() string { return "sokovan:target:terminating" }

func (h *CheckTerminatingProgressHandler) Execute(ctx context.Context, sessions []batch.HandlerSessionData, scalingGroup string) (batch.SessionExecutionResult, error) {
	var result batch.SessionExecutionResult
	for _, sd := range sessions {
		if !sd.AllKernelsInStatus(types.KernelTerminated) {
			continue
		}

		kernelIDs := make([]string, len(sd.Kernels))
		for i, k := range sd.Kernels {
			kernelIDs[i] = k.KernelID
		}
		if err := h.sched.ReleaseKernelAllocations(ctx, kernelIDs); err != nil {
			h.logger.Warn().Err(err).Str("session_id", sd.SessionID).Msg("failed to release kernel allocations")
			result.Failures = append(result.Failures, sd.SessionID)
			continue
		}
		if err := h.sessions.InvalidateKernelRelatedCache(ctx, []string{sd.SessionID}); err != nil {
			h.logger.Warn().Err(err).Str("session_id", sd.SessionID).Msg("failed to invalidate kernel-related cache")
		}

		if h.hooks != nil {
			if err := h.hooks.RunAll(ctx, TransitionToTerminated, sd); err != nil {
				h.logger.Warn().Err(err).Str("session_id", sd.SessionID).Msg("to_terminated hook failed")
			}
		}

		result.Successes = append(result.Successes, sd.SessionID)
		result.ScheduledData = append(result.ScheduledData, batch.ScheduledSessionData{
			SessionID:  sd.SessionID,
			CreationID: sd.CreationID,
			AccessKey:  sd.AccessKey,
			Reason:     "all kernels terminated",
		})
	}
	return result, nil
}
