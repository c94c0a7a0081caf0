package handlers

import (
	"context"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/types"
)

// CheckPullingProgressHandler advances PREPARING/PULLING sessions to
// PREPARED once every kernel has reported PREPARED or RUNNING. The actual
// "is the image there yet" probe is the pulling health keeper's job
// (pkg/health); this handler only observes state that has already landed.
type CheckPullingProgressHandler struct{}

// NewCheckPullingProgressHandler builds a CheckPullingProgressHandler.
func NewCheckPullingProgressHandler() *CheckPullingProgressHandler {
	return &CheckPullingProgressHandler{}
}

func (h *CheckPullingProgressHandler) Name() string { return "check_pulling_progress" }

func (h *CheckPullingProgressHandler) TargetStatuses() []types.SessionStatus {
	return []types.SessionStatus{types.SessionPreparing, types.SessionPulling}
}

func (h *CheckPullingProgressHandler) TargetKernelStatuses() []types.KernelStatus { return nil }

func (h *CheckPullingProgressHandler) SuccessStatus() types.SessionStatus {
	return types.SessionPrepared
}

func (h *CheckPullingProgressHandler) FailureStatus() (types.SessionStatus, bool) { return "", false }

func (h *CheckPullingProgressHandler) StaleStatus() (types.SessionStatus, bool) { return "", false }

func (h *CheckPullingProgressHandler) LockID() string { return "sokovan:target:preparing" }

func (h *CheckPullingProgressHandler) Execute(ctx context.Context, sessions []batch.HandlerSessionData, scalingGroup string) (batch.SessionExecutionResult, error) {
	var result batch.SessionExecutionResult
	for _, sd := range sessions {
		if sd.AllKernelsInStatus(types.KernelPrepared, types.KernelRunning) {
			result.Successes = append(result.Successes, sd.SessionID)
			result.ScheduledData = append(result.ScheduledData, batch.ScheduledSessionData{
				SessionID:  sd.SessionID,
				CreationID: sd.CreationID,
				AccessKey:  sd.AccessKey,
				Reason:     "image available",
			})
		}
	}
	return result, nil
}
