package handlers

import (
	"context"
	"sync"

	"github.com/cuemby/sessiond/pkg/batch"
)

// TransitionKind names a point in the lifecycle where external collaborators
// may need to run side-channel setup or teardown.
type TransitionKind string

const (
	// TransitionToRunning fires once a session's kernels are all RUNNING,
	// before the status commit. A hook failure keeps the session CREATING.
	TransitionToRunning TransitionKind = "to_running"
	// TransitionToTerminated fires once a session's kernels are all
	// TERMINATED, before the status commit.
	TransitionToTerminated TransitionKind = "to_terminated"
)

// Hook is the side-channel callback invoked around a transition.
type Hook interface {
	Run(ctx context.Context, session batch.HandlerSessionData) error
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx context.Context, session batch.HandlerSessionData) error

func (f HookFunc) Run(ctx context.Context, session batch.HandlerSessionData) error {
	return f(ctx, session)
}

// HookRegistry holds the hooks mounted for each TransitionKind, replacing
// the decorator-based hook registration of the source system with an
// explicit map and a Register call.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[TransitionKind][]Hook
}

// NewHookRegistry returns an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[TransitionKind][]Hook)}
}

// Register mounts hook to run at kind.
func (r *HookRegistry) Register(kind TransitionKind, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[kind] = append(r.hooks[kind], hook)
}

// Get returns the hooks mounted at kind, if any.
func (r *HookRegistry) Get(kind TransitionKind) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Hook, len(r.hooks[kind]))
	copy(out, r.hooks[kind])
	return out
}

// RunAll invokes every hook mounted at kind in registration order, stopping
// and returning the first error encountered.
func (r *HookRegistry) RunAll(ctx context.Context, kind TransitionKind, session batch.HandlerSessionData) error {
	for _, h := range r.Get(kind) {
		if err := h.Run(ctx, session); err != nil {
			return err
		}
	}
	return nil
}
