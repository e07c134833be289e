// Package maintenance implements the periodic janitor: session retention,
// temp-file expiry, log rotation, and orphan-file cleanup, grounded on the
// storage engine's predicate-based file-walk-and-delete helper.
package maintenance

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lordpython/videoforge/common"
	"github.com/lordpython/videoforge/governor"
	"github.com/lordpython/videoforge/session"
)

// Config controls sweep cadence, retention windows, and the directories
// swept for temp files, logs, and orphaned intermediate files.
type Config struct {
	Interval time.Duration

	FailedRetention    time.Duration
	CompletedRetention time.Duration
	CancelledRetention time.Duration

	TempDir        string
	TempFileAge    time.Duration
	LogDir         string
	LogRetention   time.Duration

	DiskCriticalPercent float64
}

// DefaultConfig returns the out-of-the-box sweep interval and retention.
func DefaultConfig() Config {
	return Config{
		Interval:            time.Hour,
		FailedRetention:     12 * time.Hour,
		CompletedRetention:  48 * time.Hour,
		CancelledRetention:  24 * time.Hour,
		TempDir:             os.TempDir(),
		TempFileAge:         6 * time.Hour,
		LogDir:              "./logs",
		LogRetention:        7 * 24 * time.Hour,
		DiskCriticalPercent: 95,
	}
}

// Result aggregates one pass's counts. Errors are recorded, never fatal:
// a failing step does not abort the remaining steps.
type Result struct {
	FilesDeleted       int
	DirsDeleted        int
	BytesFreed         int64
	SessionsCleaned    int
	Errors             []string
}

// Sweeper runs periodic cleanup passes against the session store, the
// governor's availability view, and the filesystem.
type Sweeper struct {
	cfg    Config
	store  *session.Store
	gov    *governor.Governor
	logger common.ILogger

	stop chan struct{}
	done chan struct{}
}

// New constructs a Sweeper. Call Start to begin the periodic loop, or
// RunOnce to drive a single pass (e.g. from the CLI's cleanup command).
func New(cfg Config, store *session.Store, gov *governor.Governor, logger common.ILogger) *Sweeper {
	if logger == nil {
		logger = common.NopLogger()
	}
	return &Sweeper{cfg: cfg, store: store, gov: gov, logger: logger, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start launches the periodic sweep loop.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.RunOnce()
			}
		}
	}()
}

// Stop halts the periodic loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// RunOnce drives one full sweep pass: retention cleanup, temp file/dir
// expiry, log rotation, disk-pressure relief, and orphan sweep.
func (s *Sweeper) RunOnce() Result {
	var r Result

	s.sweepExpiredSessions(&r)
	removeFilesWithPredicate(s.cfg.TempDir, &r, s.logger, func(fi os.FileInfo) bool {
		return !fi.IsDir() && time.Since(fi.ModTime()) > s.cfg.TempFileAge
	})
	s.sweepEmptyDirs(&r)
	removeFilesWithPredicate(s.cfg.LogDir, &r, s.logger, func(fi os.FileInfo) bool {
		return !fi.IsDir() && strings.HasSuffix(fi.Name(), ".log") && time.Since(fi.ModTime()) > s.cfg.LogRetention
	})
	s.relieveDiskPressure(&r)
	s.sweepOrphanFiles(&r)

	return r
}

func (s *Sweeper) sweepExpiredSessions(r *Result) {
	all := s.store.List(session.ListFilters{})
	now := time.Now().UTC()
	for _, sess := range all {
		var retention time.Duration
		switch sess.Status {
		case common.ESessionStatus.Failed():
			retention = s.cfg.FailedRetention
		case common.ESessionStatus.Completed():
			retention = s.cfg.CompletedRetention
		case common.ESessionStatus.Cancelled():
			retention = s.cfg.CancelledRetention
		default:
			continue
		}
		if now.Sub(sess.UpdatedAt) <= retention {
			continue
		}
		if err := s.store.Delete(sess.ID, true); err != nil {
			r.Errors = append(r.Errors, err.Error())
			continue
		}
		r.SessionsCleaned++
	}
}

func (s *Sweeper) sweepEmptyDirs(r *Result) {
	entries, err := os.ReadDir(s.cfg.TempDir)
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || time.Since(info.ModTime()) <= s.cfg.TempFileAge {
			continue
		}
		full := filepath.Join(s.cfg.TempDir, e.Name())
		inner, err := os.ReadDir(full)
		if err != nil || len(inner) != 0 {
			continue
		}
		if err := os.Remove(full); err != nil {
			r.Errors = append(r.Errors, err.Error())
			continue
		}
		r.DirsDeleted++
	}
}

// relieveDiskPressure repeatedly deletes the oldest completed session
// until disk usage falls below the critical threshold or no candidates
// remain. It consults the governor rather than re-sampling disk usage, to
// keep the cross-component dependency one-directional.
func (s *Sweeper) relieveDiskPressure(r *Result) {
	for {
		usage := s.gov.CurrentUsage()
		if usage.DiskPercent < s.cfg.DiskCriticalPercent {
			return
		}
		completed := common.ESessionStatus.Completed()
		sessions := s.store.List(session.ListFilters{Status: &completed})
		if len(sessions) == 0 {
			return
		}
		oldest := sessions[len(sessions)-1]
		for _, sess := range sessions {
			if sess.UpdatedAt.Before(oldest.UpdatedAt) {
				oldest = sess
			}
		}
		if err := s.store.Delete(oldest.ID, true); err != nil {
			r.Errors = append(r.Errors, err.Error())
			return
		}
		r.SessionsCleaned++
	}
}

// sweepOrphanFiles collects the ids of all sessions in the store and
// removes any file under TempDir whose name embeds a session id that maps
// to no live session.
func (s *Sweeper) sweepOrphanFiles(r *Result) {
	live := make(map[string]bool)
	for _, sess := range s.store.List(session.ListFilters{}) {
		live[sess.ID.String()] = true
	}

	removeFilesWithPredicate(s.cfg.TempDir, r, s.logger, func(fi os.FileInfo) bool {
		if fi.IsDir() {
			return false
		}
		id := extractUUID(fi.Name())
		return id != uuid.Nil && !live[id.String()]
	})
}

func extractUUID(name string) uuid.UUID {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if id, err := uuid.Parse(base); err == nil {
		return id
	}
	return uuid.Nil
}

// removeFilesWithPredicate walks targetDir (non-recursively, matching the
// storage engine's own plan-folder sweep) and removes every entry
// predicate approves, accumulating counts and bytes freed into r.
func removeFilesWithPredicate(targetDir string, r *Result, logger common.ILogger, predicate func(os.FileInfo) bool) {
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
		return
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			r.Errors = append(r.Errors, err.Error())
			continue
		}
		if !predicate(info) {
			continue
		}
		full := filepath.Join(targetDir, e.Name())
		size := info.Size()
		if err := os.Remove(full); err != nil {
			r.Errors = append(r.Errors, err.Error())
			continue
		}
		r.FilesDeleted++
		r.BytesFreed += size
	}
}
