// Package handlers implements the lifecycle handler contract: pure,
// side-effect-declaring units that move batches of sessions from one status
// to the next under a coordinator-held named lock.
package handlers

import (
	"context"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/types"
)

// LifecycleHandler is the contract every (target status -> next status)
// transition implements. See SPEC_FULL.md §4.3.
type LifecycleHandler interface {
	Name() string
	TargetStatuses() []types.SessionStatus
	TargetKernelStatuses() []types.KernelStatus
	SuccessStatus() types.SessionStatus
	// FailureStatus returns the status to apply on failure and whether one
	// applies at all; ok=false means "leave the session's status as-is".
	FailureStatus() (types.SessionStatus, bool)
	StaleStatus() (types.SessionStatus, bool)
	LockID() string
	Execute(ctx context.Context, sessions []batch.HandlerSessionData, scalingGroup string) (batch.SessionExecutionResult, error)
}
