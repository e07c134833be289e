package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lordpython/videoforge/common"
)

// Store is the authoritative session map, guarded by a single RWMutex the
// way the storage engine collapses per-job locking into one job-manager
// lock. Readers take RLock; every mutation takes Lock and write-throughs
// to disk before releasing it.
type Store struct {
	dir    string
	logger common.ILogger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry
}

type entry struct {
	session      Session
	projectState ProjectState
}

// New opens (or creates) the session directory and loads any existing
// snapshots from disk. Malformed files are skipped with a warning and
// renamed aside with a ".corrupt" suffix, never causing the load to abort.
func New(dir string, logger common.ILogger) (*Store, error) {
	if logger == nil {
		logger = common.NopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, common.WrapError(common.EErrorKind.Internal(), "session.New", "creating session directory", err)
	}
	s := &Store{dir: dir, logger: logger, sessions: make(map[uuid.UUID]*entry)}
	s.recover()
	return s, nil
}

func (s *Store) recover() {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("session: recovery scan failed", fieldErr(err))
		return
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("session: recovery read failed, skipping", fieldStr("file", f.Name()), fieldErr(err))
			continue
		}
		var snap snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			s.logger.Warn("session: recovery parse failed, quarantining malformed snapshot", fieldStr("file", f.Name()), fieldErr(err))
			if err := os.Rename(path, path+".corrupt"); err != nil {
				s.logger.Warn("session: quarantine rename failed", fieldStr("file", f.Name()), fieldErr(err))
			}
			continue
		}
		if snap.Session.ID == uuid.Nil {
			s.logger.Warn("session: recovery found snapshot with no id, skipping", fieldStr("file", f.Name()))
			continue
		}
		// rehydrate defaults for any field a truncated snapshot omitted
		if snap.Session.CreatedAt.IsZero() {
			snap.Session.CreatedAt = time.Now().UTC()
		}
		if snap.Session.UpdatedAt.IsZero() {
			snap.Session.UpdatedAt = snap.Session.CreatedAt
		}
		s.sessions[snap.Session.ID] = &entry{session: snap.Session, projectState: snap.ProjectState}
	}
}

func (s *Store) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

// writeThrough persists e atomically via temp-file-then-rename. Write
// errors are logged but never roll back the already-applied in-memory
// mutation: the process is expected to restart, and the next successful
// write re-synchronizes.
func (s *Store) writeThrough(e *entry) {
	snap := snapshot{Session: e.session, ProjectState: e.projectState}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		s.logger.Error("session: marshal failed", fieldErr(err))
		return
	}
	final := s.path(e.session.ID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error("session: write-through failed", fieldStr("session_id", e.session.ID.String()), fieldErr(err))
		return
	}
	if err := os.Rename(tmp, final); err != nil {
		s.logger.Error("session: write-through rename failed", fieldStr("session_id", e.session.ID.String()), fieldErr(err))
	}
}

// Create initializes a new session (status=queued, stage=initializing,
// progress=0) and write-throughs it to disk.
func (s *Store) Create(req JobRequest, submitterID string) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()
	e := &entry{
		session: Session{
			ID:          id,
			SubmitterID: submitterID,
			Request:     req,
			Status:      common.ESessionStatus.Queued(),
			Stage:       common.EStage.Initializing(),
			Progress:    0,
			CreatedAt:   now,
			UpdatedAt:   now,
			Metadata:    map[string]string{},
		},
		projectState: ProjectState{Outputs: map[string]StageOutput{}},
	}

	s.mu.Lock()
	s.sessions[id] = e
	s.writeThrough(e)
	s.mu.Unlock()

	return id, nil
}

// Get returns a copy of the session, or NotFound.
func (s *Store) Get(id uuid.UUID) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return Session{}, common.NewError(common.EErrorKind.NotFound(), "session.Get", "session not found")
	}
	return e.session, nil
}

// GetProjectState returns a copy of the session's ProjectState, or NotFound.
func (s *Store) GetProjectState(id uuid.UUID) (ProjectState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return ProjectState{}, common.NewError(common.EErrorKind.NotFound(), "session.GetProjectState", "session not found")
	}
	return e.projectState, nil
}

// UpdateStatus applies a StatusUpdate, clamping progress and rejecting
// backward stage transitions (except to Failed), then write-throughs.
func (s *Store) UpdateStatus(id uuid.UUID, u StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return common.NewError(common.EErrorKind.NotFound(), "session.UpdateStatus", "session not found")
	}

	if u.Stage != nil {
		isFailure := u.Status != nil && *u.Status == common.ESessionStatus.Failed()
		if !isFailure && u.Stage.Order() >= 0 && e.session.Stage.Order() >= 0 && u.Stage.Order() < e.session.Stage.Order() {
			return common.NewError(common.EErrorKind.InvalidState(), "session.UpdateStatus",
				fmt.Sprintf("refusing backward stage transition %s -> %s", e.session.Stage, *u.Stage))
		}
		e.session.Stage = *u.Stage
	}
	if u.Status != nil {
		e.session.Status = *u.Status
	}
	if u.Progress != nil {
		p := *u.Progress
		if p < 0 {
			p = 0
		} else if p > 1 {
			p = 1
		}
		e.session.Progress = p
	}
	if u.Error != nil {
		e.session.Error = *u.Error
	}
	if u.ETA != nil {
		e.session.EstimatedCompletion = u.ETA
	}
	e.session.UpdatedAt = time.Now().UTC()

	s.writeThrough(e)
	return nil
}

// UpdateProjectState replaces the named fields of a session's ProjectState.
func (s *Store) UpdateProjectState(id uuid.UUID, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return common.NewError(common.EErrorKind.NotFound(), "session.UpdateProjectState", "session not found")
	}

	if patch.Research != nil {
		e.projectState.Research = *patch.Research
	}
	if patch.Script != nil {
		e.projectState.Script = *patch.Script
	}
	if patch.Assets != nil {
		e.projectState.Assets = *patch.Assets
	}
	if patch.Audio != nil {
		e.projectState.Audio = *patch.Audio
	}
	if patch.Final != nil {
		e.projectState.Final = *patch.Final
	}
	if patch.Stage != nil {
		if e.projectState.Outputs == nil {
			e.projectState.Outputs = map[string]StageOutput{}
		}
		e.projectState.Outputs[patch.Stage.String()] = StageOutput{GeneratedAt: time.Now().UTC()}
	}
	e.session.UpdatedAt = time.Now().UTC()

	s.writeThrough(e)
	return nil
}

// AddIntermediateFile idempotently records path as owned by session id.
func (s *Store) AddIntermediateFile(id uuid.UUID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return common.NewError(common.EErrorKind.NotFound(), "session.AddIntermediateFile", "session not found")
	}
	for _, p := range e.projectState.IntermediateFiles {
		if p == path {
			return nil
		}
	}
	e.projectState.IntermediateFiles = append(e.projectState.IntermediateFiles, path)
	e.session.UpdatedAt = time.Now().UTC()
	s.writeThrough(e)
	return nil
}

// List returns sessions matching filters, in created-at-desc order.
func (s *Store) List(f ListFilters) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		if f.SubmitterID != "" && e.session.SubmitterID != f.SubmitterID {
			continue
		}
		if f.Status != nil && e.session.Status != *f.Status {
			continue
		}
		out = append(out, e.session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Delete removes the session's snapshot and in-memory entry. If
// cleanupFiles is set, it best-effort unlinks every intermediate file.
func (s *Store) Delete(id uuid.UUID, cleanupFiles bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return common.NewError(common.EErrorKind.NotFound(), "session.Delete", "session not found")
	}

	if cleanupFiles {
		for _, p := range e.projectState.IntermediateFiles {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("session: best-effort intermediate file cleanup failed", fieldStr("path", p), fieldErr(err))
			}
		}
	}

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("session: snapshot removal failed", fieldStr("session_id", id.String()), fieldErr(err))
	}
	delete(s.sessions, id)
	return nil
}
