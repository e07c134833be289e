// Package session is the authoritative in-memory map of session-id to
// (Session, ProjectState), mirrored write-through to one JSON file per
// session, with crash-recovery load on startup.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/lordpython/videoforge/common"
)

// JobRequest is the submitted job payload.
type JobRequest struct {
	Prompt      string              `json:"prompt"`
	DurationSec int                 `json:"duration_sec"`
	Style       string              `json:"style,omitempty"`
	Voice       string              `json:"voice,omitempty"`
	Quality     common.QualityTier  `json:"quality"`
}

// StageOutput records when a pipeline stage's output was produced;
// supplements the bare progress map with a per-stage completion timestamp,
// following the original system's per-field dataclasses.
type StageOutput struct {
	GeneratedAt time.Time `json:"generated_at"`
}

// ProjectState is the per-session accumulator. Each payload field is
// opaque to the core: only its presence and IntermediateFiles matter for
// scheduling and garbage collection.
type ProjectState struct {
	Research  map[string]any `json:"research,omitempty"`
	Script    map[string]any `json:"script,omitempty"`
	Assets    map[string]any `json:"assets,omitempty"`
	Audio     map[string]any `json:"audio,omitempty"`
	Final     map[string]any `json:"final,omitempty"`

	Outputs map[string]StageOutput `json:"outputs,omitempty"`

	IntermediateFiles []string `json:"intermediate_files,omitempty"`
}

// Patch replaces named fields of a ProjectState; nil fields are left
// untouched.
type Patch struct {
	Research *map[string]any
	Script   *map[string]any
	Assets   *map[string]any
	Audio    *map[string]any
	Final    *map[string]any
	Stage    *common.Stage // if set, stamps Outputs[Stage.String()].GeneratedAt = now
}

// Session is the durable record of one job's lifecycle.
type Session struct {
	ID          uuid.UUID          `json:"id"`
	SubmitterID string             `json:"submitter_id,omitempty"`
	Request     JobRequest         `json:"request"`
	Status      common.SessionStatus `json:"status"`
	Stage       common.Stage       `json:"stage"`
	Progress    float64            `json:"progress"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
	Error       string             `json:"error,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
}

// snapshot is the on-disk representation of one session file.
type snapshot struct {
	Session      Session      `json:"session"`
	ProjectState ProjectState `json:"project_state"`
}

// StatusUpdate carries the optional fields update-status may change; a nil
// pointer means "leave unchanged".
type StatusUpdate struct {
	Status   *common.SessionStatus
	Stage    *common.Stage
	Progress *float64
	Error    *string
	ETA      *time.Time
}

// ListFilters narrows the result of List.
type ListFilters struct {
	SubmitterID string
	Status      *common.SessionStatus
	Limit       int
}
