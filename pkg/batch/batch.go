// Package batch defines the compact, value-typed views of sessions and
// kernels that flow between the repository layer, the lifecycle handlers,
// and the health monitor. These are deliberately not the entities in
// pkg/types: handlers must never see a live object graph, only an
// id-referenced, arena-style snapshot (SPEC_FULL.md §9).
package batch

import "github.com/cuemby/sessiond/pkg/types"

// HandlerKernelData is the compact view of a kernel a handler or keeper
// operates on.
type HandlerKernelData struct {
	KernelID string
	AgentID  string
	Image    string
	Status   types.KernelStatus
	Role     types.KernelRole
}

// HandlerSessionData is the compact view of a session (plus its kernels)
// passed into a handler's Execute and a keeper's CheckBatch.
type HandlerSessionData struct {
	SessionID       string
	CreationID      string
	AccessKey       string
	Status          types.SessionStatus
	ScalingGroup    string
	SessionType     types.SessionType
	StatusChangedAt int64 // unix seconds; 0 means unknown
	StatusInfo      string
	RetryCount      int
	Kernels         []HandlerKernelData
}

// MainKernel returns the session's main kernel, or nil if it has none yet.
func (s HandlerSessionData) MainKernel() *HandlerKernelData {
	for i := range s.Kernels {
		if s.Kernels[i].Role == types.KernelRoleMain {
			return &s.Kernels[i]
		}
	}
	return nil
}

// AllKernelsInStatus reports whether every kernel of the session is in one
// of the given statuses. An empty kernel set reports true (vacuously).
func (s HandlerSessionData) AllKernelsInStatus(statuses ...types.KernelStatus) bool {
	set := make(map[types.KernelStatus]struct{}, len(statuses))
	for _, st := range statuses {
		set[st] = struct{}{}
	}
	for _, k := range s.Kernels {
		if _, ok := set[k.Status]; !ok {
			return false
		}
	}
	return true
}

// ScheduledSessionData is the opaque per-session payload a handler attaches
// to a successful/failed/stale transition for post-processing (event
// broadcast) after the status update commits.
type ScheduledSessionData struct {
	SessionID  string
	CreationID string
	AccessKey  string
	Reason     string
}

// SessionExecutionResult is the output of a handler's Execute call.
type SessionExecutionResult struct {
	Successes     []string
	Failures      []string
	Stales        []string
	ScheduledData []ScheduledSessionData
}

// NeedsPostProcessing reports whether any scheduled data was produced.
func (r SessionExecutionResult) NeedsPostProcessing() bool {
	return len(r.ScheduledData) > 0
}

// SuccessCount reports len(r.Successes).
func (r SessionExecutionResult) SuccessCount() int {
	return len(r.Successes)
}

// Merge returns a new result combining r and other.
func (r SessionExecutionResult) Merge(other SessionExecutionResult) SessionExecutionResult {
	return SessionExecutionResult{
		Successes:     append(append([]string{}, r.Successes...), other.Successes...),
		Failures:      append(append([]string{}, r.Failures...), other.Failures...),
		Stales:        append(append([]string{}, r.Stales...), other.Stales...),
		ScheduledData: append(append([]ScheduledSessionData{}, r.ScheduledData...), other.ScheduledData...),
	}
}

// HealthCheckResult is the output of a health keeper's CheckBatch/HandleBatch.
type HealthCheckResult struct {
	HealthySessions   []string
	UnhealthySessions []string
}

// HasUnhealthySessions reports whether any session was classified unhealthy.
func (r HealthCheckResult) HasUnhealthySessions() bool {
	return len(r.UnhealthySessions) > 0
}
