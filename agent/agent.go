// Package agent defines the pluggable worker contract each pipeline stage
// fulfills. The core never interprets a stage's payload, only whether it
// errored and what patch it hands back to the session store.
package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/lordpython/videoforge/common"
	"github.com/lordpython/videoforge/session"
)

// Stage is the callable a worker invokes for one pipeline stage. It
// receives the session's current ProjectState (read-only snapshot) and
// returns a Patch to apply, or an error to fail the session.
type Stage func(ctx context.Context, sessionID uuid.UUID, state session.ProjectState) (session.Patch, error)

// Registry maps a pipeline stage to its implementation. A missing entry
// falls back to Stub, so a partially-wired registry still drives a
// session to completion during development and load testing.
type Registry struct {
	stages map[common.Stage]Stage
}

// NewRegistry builds an empty Registry; use Register to wire stages.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[common.Stage]Stage)}
}

// Register wires fn as the implementation for stage, replacing any
// previous registration.
func (r *Registry) Register(stage common.Stage, fn Stage) {
	r.stages[stage] = fn
}

// Resolve returns the registered Stage for stage, or Stub if none is
// registered.
func (r *Registry) Resolve(stage common.Stage) Stage {
	if fn, ok := r.stages[stage]; ok {
		return fn
	}
	return Stub
}

// Stub is the default no-op stage: it returns an empty patch at once. Used by the load generator and by tests that
// exercise scheduling without real agent implementations.
func Stub(_ context.Context, _ uuid.UUID, _ session.ProjectState) (session.Patch, error) {
	return session.Patch{}, nil
}
