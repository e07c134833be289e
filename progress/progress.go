// Package progress computes weighted per-stage progress and ETA for a
// session, writing through to the session store on every update.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lordpython/videoforge/common"
	"github.com/lordpython/videoforge/session"
)

// DefaultWeights is the default per-stage weight table used to blend stage
// completion into an overall percentage; it sums to 1.
func DefaultWeights() map[common.Stage]float64 {
	return map[common.Stage]float64{
		common.EStage.Initializing():    0.05,
		common.EStage.Researching():     0.10,
		common.EStage.Scripting():       0.15,
		common.EStage.AssetSourcing():   0.25,
		common.EStage.AudioGeneration(): 0.15,
		common.EStage.VideoAssembly():   0.25,
		common.EStage.Finalizing():      0.05,
	}
}

// StageState is the per-stage progress record returned by Progress.
type StageState struct {
	Progress    float64
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Snapshot is the full progress view for one session.
type Snapshot struct {
	Overall             float64
	PerStage            map[common.Stage]StageState
	CurrentStage        common.Stage
	EstimatedCompletion *time.Time
}

// Monitor tracks weighted progress for every active session. It holds only
// transient in-process state (start times, per-stage-in-progress
// fractions); the session store remains the durable record of Session.Progress.
type Monitor struct {
	store *session.Store

	mu       sync.Mutex
	sessions map[uuid.UUID]*tracked
}

type tracked struct {
	weights   map[common.Stage]float64
	perStage  map[common.Stage]StageState
	current   common.Stage
	startedAt time.Time
}

// New constructs a Monitor backed by store.
func New(store *session.Store) *Monitor {
	return &Monitor{store: store, sessions: make(map[uuid.UUID]*tracked)}
}

// Start begins tracking sessionID with the given weights (or
// DefaultWeights if nil).
func (m *Monitor) Start(sessionID uuid.UUID, weights map[common.Stage]float64) {
	if weights == nil {
		weights = DefaultWeights()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = &tracked{
		weights:   weights,
		perStage:  make(map[common.Stage]StageState),
		current:   common.EStage.Initializing(),
		startedAt: time.Now().UTC(),
	}
}

func (m *Monitor) overall(t *tracked) float64 {
	var sum float64
	for _, stage := range common.PipelineStages {
		st, ok := t.perStage[stage]
		w := t.weights[stage]
		if !ok {
			if stage == t.current {
				sum += 0
			}
			continue
		}
		sum += w * st.Progress
	}
	return sum
}

// UpdateStageProgress records progressInStage ∈ [0,1] for stage and writes
// the recomputed overall progress through to the session store.
func (m *Monitor) UpdateStageProgress(sessionID uuid.UUID, stage common.Stage, progressInStage float64) error {
	if progressInStage < 0 {
		progressInStage = 0
	} else if progressInStage > 1 {
		progressInStage = 1
	}

	m.mu.Lock()
	t, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return common.NewError(common.EErrorKind.NotFound(), "progress.UpdateStageProgress", "session not tracked")
	}
	now := time.Now().UTC()
	st := t.perStage[stage]
	if st.StartedAt == nil {
		st.StartedAt = &now
	}
	st.Progress = progressInStage
	if progressInStage >= 1 {
		st.CompletedAt = &now
	}
	t.perStage[stage] = st
	t.current = stage
	overall := m.overall(t)
	eta := m.estimateETA(t, overall)
	m.mu.Unlock()

	return m.store.UpdateStatus(sessionID, session.StatusUpdate{Stage: &stage, Progress: &overall, ETA: eta})
}

// Advance marks every pipeline stage before newStage as complete
// (progress-in-stage=1) and sets the current stage to newStage.
func (m *Monitor) Advance(sessionID uuid.UUID, newStage common.Stage) error {
	m.mu.Lock()
	t, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return common.NewError(common.EErrorKind.NotFound(), "progress.Advance", "session not tracked")
	}
	now := time.Now().UTC()
	target := newStage.Order()
	for _, stage := range common.PipelineStages {
		if target >= 0 && stage.Order() < target {
			st := t.perStage[stage]
			if st.StartedAt == nil {
				st.StartedAt = &now
			}
			st.Progress = 1
			st.CompletedAt = &now
			t.perStage[stage] = st
		}
	}
	t.current = newStage
	overall := m.overall(t)
	eta := m.estimateETA(t, overall)
	m.mu.Unlock()

	return m.store.UpdateStatus(sessionID, session.StatusUpdate{Stage: &newStage, Progress: &overall, ETA: eta})
}

// Complete finalizes a session's progress: full success marks every stage
// complete and overall=1; failure preserves whatever partial overall
// progress had accumulated and records the error.
func (m *Monitor) Complete(sessionID uuid.UUID, success bool, errMsg string) error {
	m.mu.Lock()
	t, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return common.NewError(common.EErrorKind.NotFound(), "progress.Complete", "session not tracked")
	}

	var overall float64
	var stage common.Stage
	if success {
		now := time.Now().UTC()
		for _, s := range common.PipelineStages {
			st := t.perStage[s]
			if st.StartedAt == nil {
				st.StartedAt = &now
			}
			st.Progress = 1
			st.CompletedAt = &now
			t.perStage[s] = st
		}
		overall = 1
		stage = common.EStage.Completed()
	} else {
		overall = m.overall(t)
		stage = common.EStage.Failed()
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	status := common.ESessionStatus.Completed()
	if !success {
		status = common.ESessionStatus.Failed()
	}
	update := session.StatusUpdate{Status: &status, Stage: &stage, Progress: &overall}
	if !success && errMsg != "" {
		update.Error = &errMsg
	}
	return m.store.UpdateStatus(sessionID, update)
}

// Progress returns the current progress snapshot for sessionID.
func (m *Monitor) Progress(sessionID uuid.UUID) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.sessions[sessionID]
	if !ok {
		return Snapshot{}, common.NewError(common.EErrorKind.NotFound(), "progress.Progress", "session not tracked")
	}
	overall := m.overall(t)
	perStage := make(map[common.Stage]StageState, len(t.perStage))
	for k, v := range t.perStage {
		perStage[k] = v
	}
	return Snapshot{
		Overall:             overall,
		PerStage:            perStage,
		CurrentStage:        t.current,
		EstimatedCompletion: m.estimateETA(t, overall),
	}, nil
}

// estimateETA linearly extrapolates completion time from elapsed wall time
// and overall progress; returns nil until there is enough progress to
// extrapolate from.
func (m *Monitor) estimateETA(t *tracked, overall float64) *time.Time {
	if overall <= 0.01 {
		return nil
	}
	elapsed := time.Since(t.startedAt)
	total := time.Duration(float64(elapsed) / overall)
	eta := t.startedAt.Add(total)
	return &eta
}
