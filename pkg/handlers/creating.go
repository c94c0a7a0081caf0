package handlers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/log"
	"github.com/cuemby/sessiond/pkg/types"
)

// CheckCreatingProgressHandler advances CREATING sessions to RUNNING once
// every kernel reports RUNNING, firing the to-running hook per session
// first. A hook failure keeps the session in CREATING for the next round.
type CheckCreatingProgressHandler struct {
	hooks  *HookRegistry
	logger zerolog.Logger
}

// NewCheckCreatingProgressHandler builds a CheckCreatingProgressHandler
// that runs hooks registered under TransitionToRunning before committing.
func NewCheckCreatingProgressHandler(hooks *HookRegistry) *CheckCreatingProgressHandler {
	return &CheckCreatingProgressHandler{
		hooks:  hooks,
		logger: log.WithComponent("handler.check_creating_progress"),
	}
}

func (h *CheckCreatingProgressHandler) Name() string { return "check_creating_progress" }

func (h *CheckCreatingProgressHandler) TargetStatuses() []types.SessionStatus {
	return []types.SessionStatus{types.SessionCreating}
}

func (h *CheckCreatingProgressHandler) TargetKernelStatuses() []types.KernelStatus { return nil }

func (h *CheckCreatingProgressHandler) SuccessStatus() types.SessionStatus {
	return types.SessionRunning
}

func (h *CheckCreatingProgressHandler) FailureStatus() (types.SessionStatus, bool) { return "", false }

func (h *CheckCreatingProgressHandler) StaleStatus() (types.SessionStatus, bool) { return "", false }

func (h *CheckCreatingProgressHandler) LockID() string { return "sokovan:target:creating" }

func (h *CheckCreatingProgressHandler) Execute(ctx context.Context, sessions []batch.HandlerSessionData, scalingGroup string) (batch.SessionExecutionResult, error) {
	var result batch.SessionExecutionResult
	for _, sd := range sessions {
		if !sd.AllKernelsInStatus(types.KernelRunning) {
			continue
		}

		if h.hooks != nil {
			if err := h.hooks.RunAll(ctx, TransitionToRunning, sd); err != nil {
				h.logger.Warn().Err(err).Str("session_id", sd.SessionID).Msg("to_running hook failed, holding session in CREATING")
				continue
			}
		}

		result.Successes = append(result.Successes, sd.SessionID)
		result.ScheduledData = append(result.ScheduledData, batch.ScheduledSessionData{
			SessionID:  sd.SessionID,
			CreationID: sd.CreationID,
			AccessKey:  sd.AccessKey,
			Reason:     "all kernels running",
		})
	}
	return result, nil
}
