package handlers

import (
	"context"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/types"
)

// abnormalTerminationReason is the StatusInfo applied when a RUNNING
// session's kernels all died without the session ever being asked to
// terminate, and no earlier reason was already recorded.
const abnormalTerminationReason = "ABNORMAL_TERMINATION"

// CheckRunningSessionTerminationHandler catches RUNNING sessions whose
// kernels have all stopped out from under them (crash, OOM-kill, agent
// eviction) and moves them into the normal TERMINATING path so the
// terminating handler can release their allocations.
type CheckRunningSessionTerminationHandler struct{}

// NewCheckRunningSessionTerminationHandler builds a
// CheckRunningSessionTerminationHandler.
func NewCheckRunningSessionTerminationHandler() *CheckRunningSessionTerminationHandler {
	return &CheckRunningSessionTerminationHandler{}
}

func (h *CheckRunningSessionTerminationHandler) Name() string {
	return "check_running_session_termination"
}

func (h *CheckRunningSessionTerminationHandler) TargetStatuses() []types.SessionStatus {
	return []types.SessionStatus{types.SessionRunning}
}

func (h *CheckRunningSessionTerminationHandler) TargetKernelStatuses() []types.KernelStatus {
	return nil
}

func (h *CheckRunningSessionTerminationHandler) SuccessStatus() types.SessionStatus {
	return types.SessionTerminating
}

func (h *CheckRunningSessionTerminationHandler) FailureStatus() (types.SessionStatus, bool) {
	return "", false
}

func (h *CheckRunningSessionTerminationHandler) StaleStatus() (types.SessionStatus, bool) {
	return "", false
}

func (h *CheckRunningSessionTerminationHandler) LockID() string { return "sokovan:target:running" }

func (h *CheckRunningSessionTerminationHandler) Execute(ctx context.Context, sessions []batch.HandlerSessionData, scalingGroup string) (batch.SessionExecutionResult, error) {
	var result batch.SessionExecutionResult
	for _, sd := range sessions {
		if !sd.AllKernelsInStatus(types.KernelTerminated) {
			continue
		}

		reason := sd.StatusInfo
		if reason == "" {
			reason = abnormalTerminationReason
		}

		result.Successes = append(result.Successes, sd.SessionID)
		result.ScheduledData = append(result.ScheduledData, batch.ScheduledSessionData{
			SessionID:  sd.SessionID,
			CreationID: sd.CreationID,
			AccessKey:  sd.AccessKey,
			Reason:     reason,
		})
	}
	return result, nil
}
