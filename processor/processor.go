// Package processor is the concurrent request processor: a bounded worker
// pool consuming from a priority queue, gated by the resource governor,
// driving jobs through the fixed stage pipeline.
package processor

import (
	"container/heap"
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lordpython/videoforge/agent"
	"github.com/lordpython/videoforge/common"
	"github.com/lordpython/videoforge/governor"
	"github.com/lordpython/videoforge/progress"
	"github.com/lordpython/videoforge/session"
)

// State is the processor's lifecycle state.
type State uint32

var EState State

func (State) Stopped() State  { return State(0) }
func (State) Starting() State { return State(1) }
func (State) Running() State  { return State(2) }
func (State) Paused() State   { return State(3) }
func (State) Stopping() State { return State(4) }

func (s State) String() string {
	switch s {
	case EState.Starting():
		return "starting"
	case EState.Running():
		return "running"
	case EState.Paused():
		return "paused"
	case EState.Stopping():
		return "stopping"
	default:
		return "stopped"
	}
}

// Config controls pool sizing and timeouts.
type Config struct {
	MaxConcurrentSessions int
	MaxQueueSize          int
	WorkerTimeout         time.Duration
	AdmissionPollInterval time.Duration
}

// DefaultConfig returns the out-of-the-box admission and timeout tuning.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSessions: 5,
		MaxQueueSize:          100,
		WorkerTimeout:         time.Hour,
		AdmissionPollInterval: 200 * time.Millisecond,
	}
}

// ProcessingTask is an admitted job being worked by one goroutine.
type ProcessingTask struct {
	RequestID           uuid.UUID
	SessionID           uuid.UUID
	StartedAt           time.Time
	WorkerID            int
	ProjectedCompletion time.Time
	cancel              context.CancelFunc
}

// CompletedTask records a finished task's outcome for status lookups and
// average-duration bookkeeping.
type CompletedTask struct {
	RequestID   uuid.UUID
	SessionID   uuid.UUID
	Success     bool
	CompletedAt time.Time
	Duration    time.Duration
	Error       string
}

// Metrics is a point-in-time counters snapshot.
type Metrics struct {
	TotalProcessed      int64
	TotalFailed         int64
	TotalRetried        int64
	TotalQueued         int64
	CurrentActive       int
	CurrentQueueSize    int
	AvgProcessingSeconds float64
	PeakConcurrent      int64
	Uptime              time.Duration
}

// Processor is the bounded worker pool driving sessions through the
// pipeline. Construct with New, then Start.
type Processor struct {
	cfg      Config
	store    *session.Store
	gov      *governor.Governor
	prog     *progress.Monitor
	registry *agent.Registry
	logger   common.ILogger

	state       atomic.Uint32
	startedAt   time.Time
	shutdownCtx context.Context
	shutdown    context.CancelFunc
	loopsDone   sync.WaitGroup

	mu            sync.Mutex
	queue         priorityQueue
	activeTasks   map[uuid.UUID]*ProcessingTask
	completedTask []CompletedTask

	totalProcessed int64
	totalFailed    int64
	totalRetried   int64
	totalQueued    int64
	peakConcurrent int64
	totalDuration  time.Duration
	activeWorkers  sync.WaitGroup
}

// New constructs a Processor. Call Start to begin the admission loop.
func New(cfg Config, store *session.Store, gov *governor.Governor, prog *progress.Monitor, registry *agent.Registry, logger common.ILogger) *Processor {
	if logger == nil {
		logger = common.NopLogger()
	}
	p := &Processor{
		cfg:         cfg,
		store:       store,
		gov:         gov,
		prog:        prog,
		registry:    registry,
		logger:      logger,
		activeTasks: make(map[uuid.UUID]*ProcessingTask),
	}
	heap.Init(&p.queue)
	return p
}

// Start transitions stopped -> starting -> running and launches the
// admission loop. Returns false if the processor was not stopped.
func (p *Processor) Start() bool {
	if !p.state.CompareAndSwap(uint32(EState.Stopped()), uint32(EState.Starting())) {
		return false
	}
	p.shutdownCtx, p.shutdown = context.WithCancel(context.Background())
	p.startedAt = time.Now().UTC()
	p.gov.StartMonitoring()

	p.state.Store(uint32(EState.Running()))
	p.loopsDone.Add(1)
	go p.admissionLoop()
	return true
}

// Pause halts new admissions; in-flight work continues.
func (p *Processor) Pause() bool {
	return p.state.CompareAndSwap(uint32(EState.Running()), uint32(EState.Paused()))
}

// Resume resumes admissions after a Pause.
func (p *Processor) Resume() bool {
	return p.state.CompareAndSwap(uint32(EState.Paused()), uint32(EState.Running()))
}

// Stop signals shutdown, cancels in-flight futures, and waits (up to
// timeout) for the worker pool and admission loop to drain.
func (p *Processor) Stop(timeout time.Duration) bool {
	prev := State(p.state.Swap(uint32(EState.Stopping())))
	if prev == EState.Stopped() {
		p.state.Store(uint32(EState.Stopped()))
		return true
	}
	p.shutdown()

	p.mu.Lock()
	for _, t := range p.activeTasks {
		t.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.loopsDone.Wait()
		p.activeWorkers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("processor: stop timed out waiting for drain")
	}

	p.gov.StopMonitoring()
	p.state.Store(uint32(EState.Stopped()))
	return true
}

func (p *Processor) currentState() State { return State(p.state.Load()) }

// EstimateDuration computes the processing-time estimate used for progress
// reporting: clamp(base + duration_factor × request.duration, 5min, 1h) ×
// quality_multiplier.
func EstimateDuration(req session.JobRequest) time.Duration {
	const base = 5 * 60.0
	const durationFactor = 2.0
	raw := base + durationFactor*float64(req.DurationSec)
	clamped := math.Min(math.Max(raw, 5*60), 60*60)
	final := clamped * req.Quality.Multiplier()
	return time.Duration(final * float64(time.Second))
}

// Submit enqueues a new job, creating its session. Rejects if the
// processor is not running or the queue is full.
func (p *Processor) Submit(req session.JobRequest, user string, priority common.Priority) (uuid.UUID, error) {
	st := p.currentState()
	if st != EState.Running() && st != EState.Paused() {
		return uuid.Nil, common.NewError(common.EErrorKind.InvalidState(), "processor.Submit", "processor not running")
	}

	p.mu.Lock()
	if len(p.queue) >= p.cfg.MaxQueueSize {
		p.mu.Unlock()
		return uuid.Nil, common.NewError(common.EErrorKind.QueueFull(), "processor.Submit", "queue full")
	}
	p.mu.Unlock()

	sessionID, err := p.store.Create(req, user)
	if err != nil {
		return uuid.Nil, err
	}

	requestID := uuid.New()
	estimate := EstimateDuration(req)
	qr := &QueuedRequest{
		RequestID:        requestID,
		SessionID:        sessionID,
		Request:          req,
		Priority:         priority,
		SubmittedAt:      time.Now().UTC(),
		EstimatedSeconds: estimate.Seconds(),
	}

	p.mu.Lock()
	heap.Push(&p.queue, qr)
	p.mu.Unlock()

	atomic.AddInt64(&p.totalQueued, 1)
	p.prog.Start(sessionID, nil)
	return requestID, nil
}

// TaskState is the coarse lifecycle bucket Status reports.
type TaskState uint32

var ETaskState TaskState

func (TaskState) Queued() TaskState     { return TaskState(0) }
func (TaskState) Processing() TaskState { return TaskState(1) }
func (TaskState) Completed() TaskState  { return TaskState(2) }
func (TaskState) NotFound() TaskState   { return TaskState(3) }

// StatusRecord is the answer to a Status lookup.
type StatusRecord struct {
	State     TaskState
	SessionID uuid.UUID
	Success   bool
	Error     string
}

// Status scans active tasks, then completed tasks, then the queue.
func (p *Processor) Status(requestID uuid.UUID) StatusRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.activeTasks[requestID]; ok {
		return StatusRecord{State: ETaskState.Processing(), SessionID: t.SessionID}
	}
	for _, c := range p.completedTask {
		if c.RequestID == requestID {
			return StatusRecord{State: ETaskState.Completed(), SessionID: c.SessionID, Success: c.Success, Error: c.Error}
		}
	}
	for _, qr := range p.queue {
		if qr.RequestID == requestID {
			return StatusRecord{State: ETaskState.Queued(), SessionID: qr.SessionID}
		}
	}
	return StatusRecord{State: ETaskState.NotFound()}
}

// Cancel sets the shutdown flag on a single active task, if any.
func (p *Processor) Cancel(requestID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.activeTasks[requestID]
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// Metrics returns a point-in-time counters snapshot.
func (p *Processor) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	processed := atomic.LoadInt64(&p.totalProcessed)
	var avg float64
	if processed > 0 {
		avg = p.totalDuration.Seconds() / float64(processed)
	}
	return Metrics{
		TotalProcessed:       processed,
		TotalFailed:          atomic.LoadInt64(&p.totalFailed),
		TotalRetried:         atomic.LoadInt64(&p.totalRetried),
		TotalQueued:          atomic.LoadInt64(&p.totalQueued),
		CurrentActive:        len(p.activeTasks),
		CurrentQueueSize:     len(p.queue),
		AvgProcessingSeconds: avg,
		PeakConcurrent:       atomic.LoadInt64(&p.peakConcurrent),
		Uptime:               time.Since(p.startedAt),
	}
}

// ResourceUsage merges system usage, governor availability, and processor
// state into one view for the control-plane's resource endpoint.
type ResourceUsage struct {
	System       governor.Usage
	Availability governor.Availability
	State        string
	ActiveTasks  int
	QueueSize    int
}

func (p *Processor) ResourceUsage() ResourceUsage {
	p.mu.Lock()
	active := len(p.activeTasks)
	qsize := len(p.queue)
	p.mu.Unlock()
	return ResourceUsage{
		System:       p.gov.CurrentUsage(),
		Availability: p.gov.Availability(),
		State:        p.currentState().String(),
		ActiveTasks:  active,
		QueueSize:    qsize,
	}
}

// admissionLoop is the dedicated goroutine that promotes queued requests
// into workers while the processor is running, auto-pausing/resuming
// around governor-reported resource pressure.
func (p *Processor) admissionLoop() {
	defer p.loopsDone.Done()
	ticker := time.NewTicker(p.cfg.AdmissionPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.shutdownCtx.Done():
			return
		case <-ticker.C:
		}

		st := p.currentState()
		if st == EState.Stopping() || st == EState.Stopped() {
			return
		}

		if p.gov.AnyCritical() {
			p.Pause()
			continue
		}
		if st == EState.Paused() && p.gov.AllBelowWarning() {
			p.Resume()
		}
		if p.currentState() != EState.Running() {
			continue
		}

		p.mu.Lock()
		if len(p.activeTasks) >= p.cfg.MaxConcurrentSessions || len(p.queue) == 0 {
			p.mu.Unlock()
			continue
		}
		qr := heap.Pop(&p.queue).(*QueuedRequest)
		ctx, cancel := context.WithTimeout(p.shutdownCtx, p.cfg.WorkerTimeout)
		task := &ProcessingTask{
			RequestID:           qr.RequestID,
			SessionID:           qr.SessionID,
			StartedAt:           time.Now().UTC(),
			WorkerID:            len(p.activeTasks),
			ProjectedCompletion: time.Now().UTC().Add(time.Duration(qr.EstimatedSeconds * float64(time.Second))),
			cancel:              cancel,
		}
		p.activeTasks[qr.RequestID] = task
		if active := int64(len(p.activeTasks)); active > atomic.LoadInt64(&p.peakConcurrent) {
			atomic.StoreInt64(&p.peakConcurrent, active)
		}
		p.mu.Unlock()

		status := common.ESessionStatus.Processing()
		stage := common.EStage.Researching()
		progressVal := 0.1
		_ = p.store.UpdateStatus(qr.SessionID, session.StatusUpdate{Status: &status, Stage: &stage, Progress: &progressVal})

		p.activeWorkers.Add(1)
		go p.runWorker(ctx, task, qr)
	}
}

// ctxErr classifies a done context's error: a worker-timeout deadline is a
// Timeout, anything else (shutdown, explicit cancel) is a Cancelled.
func ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return common.NewError(common.EErrorKind.Timeout(), "processor.runWorker", "worker timeout exceeded")
	}
	return common.NewError(common.EErrorKind.Cancelled(), "processor.runWorker", "cancelled")
}

// runWorker drives one session through the fixed pipeline, checking for
// cancellation between stages.
func (p *Processor) runWorker(ctx context.Context, task *ProcessingTask, qr *QueuedRequest) {
	defer p.activeWorkers.Done()
	start := time.Now()

	var workErr error
	// Admission has already moved the session to Researching, and the store
	// refuses a move back to Initializing, so the walk starts there.
	for _, stage := range common.PipelineStages[common.EStage.Researching().Order():] {
		select {
		case <-ctx.Done():
			workErr = ctxErr(ctx)
		default:
		}
		if workErr != nil {
			break
		}

		if err := p.prog.Advance(qr.SessionID, stage); err != nil {
			workErr = err
			break
		}

		projState, err := p.store.GetProjectState(qr.SessionID)
		if err != nil {
			workErr = err
			break
		}

		fn := p.registry.Resolve(stage)
		patch, err := fn(ctx, qr.SessionID, projState)
		if err != nil {
			if ctx.Err() != nil {
				workErr = ctxErr(ctx)
			} else {
				workErr = err
			}
			break
		}
		patch.Stage = &stage
		if err := p.store.UpdateProjectState(qr.SessionID, patch); err != nil {
			workErr = err
			break
		}
		if err := p.prog.UpdateStageProgress(qr.SessionID, stage, 1); err != nil {
			workErr = err
			break
		}
	}

	success := workErr == nil
	errMsg := ""
	if workErr != nil {
		errMsg = workErr.Error()
	}
	if err := p.prog.Complete(qr.SessionID, success, errMsg); err != nil {
		p.logger.Error("processor: failed to record completion", zapErr(err))
	}

	duration := time.Since(start)

	p.mu.Lock()
	delete(p.activeTasks, qr.RequestID)
	p.completedTask = append(p.completedTask, CompletedTask{
		RequestID:   qr.RequestID,
		SessionID:   qr.SessionID,
		Success:     success,
		CompletedAt: time.Now().UTC(),
		Duration:    duration,
		Error:       errMsg,
	})
	p.mu.Unlock()

	if success {
		atomic.AddInt64(&p.totalProcessed, 1)
	} else {
		atomic.AddInt64(&p.totalFailed, 1)
	}
	p.mu.Lock()
	p.totalDuration += duration
	p.mu.Unlock()
}

