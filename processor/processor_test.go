package processor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/lordpython/videoforge/agent"
	"github.com/lordpython/videoforge/common"
	"github.com/lordpython/videoforge/governor"
	"github.com/lordpython/videoforge/progress"
	"github.com/lordpython/videoforge/session"
)

func newTestProcessor(t *testing.T, cfg Config) *Processor {
	t.Helper()
	return newTestProcessorWithRegistry(t, cfg, agent.NewRegistry())
}

func newTestProcessorWithRegistry(t *testing.T, cfg Config, reg *agent.Registry) *Processor {
	t.Helper()
	store, err := session.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	govCfg := governor.DefaultConfig()
	govCfg.TotalCPUCores = 8
	govCfg.TotalMemoryMB = 16384
	govCfg.TotalDiskMB = 100000
	gov := governor.New(govCfg, nil)
	prog := progress.New(store)
	return New(cfg, store, gov, prog, reg, nil)
}

// blockingStage waits for ctx to end and reports its error, simulating an
// upstream call that respects cancellation/deadline rather than a stub that
// returns immediately.
func blockingStage(ctx context.Context, _ uuid.UUID, _ session.ProjectState) (session.Patch, error) {
	<-ctx.Done()
	return session.Patch{}, ctx.Err()
}

func TestEstimateDurationClampsAndAppliesQualityMultiplier(t *testing.T) {
	a := assert.New(t)

	short := EstimateDuration(session.JobRequest{DurationSec: 1, Quality: common.EQualityTier.Medium()})
	a.Equal(5*time.Minute+2*time.Second, short)

	long := EstimateDuration(session.JobRequest{DurationSec: 100000, Quality: common.EQualityTier.Medium()})
	a.Equal(time.Hour, long)
}

func TestStartStopLifecycle(t *testing.T) {
	a := assert.New(t)

	p := newTestProcessor(t, DefaultConfig())
	a.True(p.Start())
	a.False(p.Start())
	a.Equal(EState.Running(), p.currentState())

	a.True(p.Pause())
	a.Equal(EState.Paused(), p.currentState())
	a.True(p.Resume())

	a.True(p.Stop(5 * time.Second))
	a.Equal(EState.Stopped(), p.currentState())
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	a := assert.New(t)

	cfg := DefaultConfig()
	cfg.MaxQueueSize = 1
	cfg.MaxConcurrentSessions = 0
	p := newTestProcessor(t, cfg)
	p.Start()
	defer p.Stop(5 * time.Second)

	_, err := p.Submit(session.JobRequest{Prompt: "p", DurationSec: 30}, "u", common.EPriority.Normal())
	a.NoError(err)

	_, err = p.Submit(session.JobRequest{Prompt: "p2", DurationSec: 30}, "u", common.EPriority.Normal())
	a.Error(err)
	a.Equal(common.EErrorKind.QueueFull(), common.KindOf(err))
}

func TestSubmitRejectsWhenNotRunning(t *testing.T) {
	a := assert.New(t)

	p := newTestProcessor(t, DefaultConfig())
	_, err := p.Submit(session.JobRequest{Prompt: "p", DurationSec: 30}, "u", common.EPriority.Normal())
	a.Error(err)
	a.Equal(common.EErrorKind.InvalidState(), common.KindOf(err))
}

func TestStatusUnknownRequestReturnsNotFound(t *testing.T) {
	a := assert.New(t)

	p := newTestProcessor(t, DefaultConfig())
	p.Start()
	defer p.Stop(5 * time.Second)

	st := p.Status(uuid.New())
	a.Equal(ETaskState.NotFound(), st.State)
}

func TestSubmitDrainsToCompletionWithStubAgents(t *testing.T) {
	a := assert.New(t)

	cfg := DefaultConfig()
	cfg.AdmissionPollInterval = 10 * time.Millisecond
	p := newTestProcessor(t, cfg)
	p.Start()
	defer p.Stop(5 * time.Second)

	reqID, err := p.Submit(session.JobRequest{Prompt: "p", DurationSec: 30}, "u", common.EPriority.Urgent())
	a.NoError(err)

	deadline := time.Now().Add(5 * time.Second)
	var st StatusRecord
	for time.Now().Before(deadline) {
		st = p.Status(reqID)
		if st.State == ETaskState.Completed() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	a.Equal(ETaskState.Completed(), st.State)
	a.True(st.Success)

	metrics := p.Metrics()
	a.Equal(int64(1), metrics.TotalProcessed)
}

func TestCancelUnknownRequestReturnsFalse(t *testing.T) {
	a := assert.New(t)

	p := newTestProcessor(t, DefaultConfig())
	a.False(p.Cancel(uuid.New()))
}

func TestCtxErrClassifiesTimeoutVsCancelled(t *testing.T) {
	a := assert.New(t)

	deadlineCtx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-deadlineCtx.Done()
	a.Equal(common.EErrorKind.Timeout(), common.KindOf(ctxErr(deadlineCtx)))

	cancelledCtx, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	a.Equal(common.EErrorKind.Cancelled(), common.KindOf(ctxErr(cancelledCtx)))
}

func TestWorkerTimeoutFailsSessionWithTimeoutKind(t *testing.T) {
	a := assert.New(t)

	reg := agent.NewRegistry()
	reg.Register(common.EStage.Researching(), blockingStage)

	cfg := DefaultConfig()
	cfg.AdmissionPollInterval = 10 * time.Millisecond
	cfg.WorkerTimeout = 50 * time.Millisecond
	p := newTestProcessorWithRegistry(t, cfg, reg)
	p.Start()
	defer p.Stop(5 * time.Second)

	reqID, err := p.Submit(session.JobRequest{Prompt: "p", DurationSec: 30}, "u", common.EPriority.Urgent())
	a.NoError(err)

	deadline := time.Now().Add(5 * time.Second)
	var st StatusRecord
	for time.Now().Before(deadline) {
		st = p.Status(reqID)
		if st.State == ETaskState.Completed() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	a.Equal(ETaskState.Completed(), st.State)
	a.False(st.Success)
	a.Contains(st.Error, "timeout")
}

func TestWorkerShutdownFailsSessionWithCancelledKind(t *testing.T) {
	a := assert.New(t)

	reg := agent.NewRegistry()
	reg.Register(common.EStage.Researching(), blockingStage)

	cfg := DefaultConfig()
	cfg.AdmissionPollInterval = 10 * time.Millisecond
	cfg.WorkerTimeout = time.Hour
	p := newTestProcessorWithRegistry(t, cfg, reg)
	p.Start()

	reqID, err := p.Submit(session.JobRequest{Prompt: "p", DurationSec: 30}, "u", common.EPriority.Urgent())
	a.NoError(err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Status(reqID).State == ETaskState.Processing() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	a.True(p.Stop(5 * time.Second))

	st := p.Status(reqID)
	a.Equal(ETaskState.Completed(), st.State)
	a.False(st.Success)
	a.Contains(st.Error, "cancelled")
}
