package loadgen

import (
	"context"
	"math/rand"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/lordpython/videoforge/agent"
	"github.com/lordpython/videoforge/governor"
	"github.com/lordpython/videoforge/processor"
	"github.com/lordpython/videoforge/progress"
	"github.com/lordpython/videoforge/session"
)

func newTestGenerator(t *testing.T) *Generator {
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

	procCfg := processor.DefaultConfig()
	procCfg.AdmissionPollInterval = 5 * time.Millisecond
	procCfg.MaxConcurrentSessions = 10
	procCfg.MaxQueueSize = 100
	proc := processor.New(procCfg, store, gov, prog, agent.NewRegistry(), nil)
	proc.Start()
	t.Cleanup(func() { proc.Stop(5 * time.Second) })

	return New(proc, gov)
}

func TestProfileStringAndParseRoundTrip(t *testing.T) {
	a := assert.New(t)

	for _, p := range []Profile{
		EProfile.ConstantLoad(), EProfile.RampUp(), EProfile.Spike(),
		EProfile.Stress(), EProfile.Endurance(), EProfile.Burst(),
	} {
		var parsed Profile
		a.NoError(parsed.Parse(p.String()))
		a.Equal(p, parsed)
	}
}

func TestProfileParseRejectsUnknown(t *testing.T) {
	a := assert.New(t)

	var p Profile
	a.Error(p.Parse("not-a-profile"))
}

func TestDesiredActiveConstantLoadIsAlwaysFull(t *testing.T) {
	a := assert.New(t)

	a.Equal(10, desiredActive(EProfile.ConstantLoad(), 10, 0, time.Minute))
	a.Equal(10, desiredActive(EProfile.ConstantLoad(), 10, 30*time.Second, time.Minute))
}

func TestDesiredActiveRampUpGrowsLinearlyOverFirstHalf(t *testing.T) {
	a := assert.New(t)

	total := time.Minute
	a.Equal(0, desiredActive(EProfile.RampUp(), 10, 0, total))
	a.Equal(10, desiredActive(EProfile.RampUp(), 10, total/2, total))
	a.Equal(10, desiredActive(EProfile.RampUp(), 10, total, total))
}

func TestDesiredActiveSpikeHasThreePhases(t *testing.T) {
	a := assert.New(t)

	total := 90 * time.Second
	a.Equal(3, desiredActive(EProfile.Spike(), 10, 0, total))
	a.Equal(10, desiredActive(EProfile.Spike(), 10, total/2, total))
	a.Equal(3, desiredActive(EProfile.Spike(), 10, total-time.Second, total))
}

func TestDesiredActiveBurstCycles(t *testing.T) {
	a := assert.New(t)

	a.Equal(10, desiredActive(EProfile.Burst(), 10, 0, time.Hour))
	a.Equal(10, desiredActive(EProfile.Burst(), 10, 29*time.Second, time.Hour))
	a.Equal(0, desiredActive(EProfile.Burst(), 10, 31*time.Second, time.Hour))
}

func TestPercentileBoundsAndMidpoint(t *testing.T) {
	a := assert.New(t)

	sorted := []float64{10, 20, 30, 40, 50}
	a.Equal(float64(0), percentile(nil, 0.5))
	a.Equal(float64(50), percentile(sorted, 1.0))
	a.Equal(float64(30), percentile(sorted, 0.5))
}

func TestSummarizeComputesRateAndLatencyStats(t *testing.T) {
	a := assert.New(t)

	now := time.Now()
	results := []requestResult{
		{start: now, end: now.Add(100 * time.Millisecond), success: true},
		{start: now, end: now.Add(200 * time.Millisecond), success: true},
		{start: now, end: now.Add(300 * time.Millisecond), success: false},
	}

	s := summarize(results, 3, time.Second, nil)
	a.Equal(3, s.TotalRequests)
	a.Equal(2, s.SuccessCount)
	a.Equal(1, s.FailureCount)
	a.InDelta(2.0/3, s.SuccessRate, 1e-9)
	a.Equal(3, s.PeakConcurrency)
	a.InDelta(100, s.MinLatencyMS, 1e-6)
	a.InDelta(300, s.MaxLatencyMS, 1e-6)
}

func TestSummarizeEmptyResultsIsZeroValued(t *testing.T) {
	a := assert.New(t)

	s := summarize(nil, 0, time.Second, nil)
	a.Equal(0, s.TotalRequests)
	a.Equal(float64(0), s.SuccessRate)
}

func TestStepSubmitsThenPollsThenThinksThenRepeats(t *testing.T) {
	a := assert.New(t)

	g := newTestGenerator(t)
	pollLimiter := rate.NewLimiter(rate.Limit(1000), 1000)
	vu := &virtualUser{rng: rand.New(rand.NewSource(1)), requestsLeft: 2}
	now := time.Now()

	_, got := g.step(vu, now, time.Millisecond, 10*time.Second, pollLimiter)
	a.False(got, "submitting a request produces no result yet")
	a.Equal(vuAwaiting, vu.phase)

	deadline := now.Add(2 * time.Second)
	var res requestResult
	for now.Before(deadline) {
		now = now.Add(5 * time.Millisecond)
		time.Sleep(time.Millisecond)
		res, got = g.step(vu, now, time.Millisecond, 10*time.Second, pollLimiter)
		if got {
			break
		}
	}
	a.True(got, "stub agents should complete well within the poll deadline")
	a.True(res.success)
	a.Equal(vuThinking, vu.phase)

	now = vu.resumeAt.Add(time.Millisecond)
	_, got = g.step(vu, now, time.Millisecond, time.Second, pollLimiter)
	a.False(got)
	a.Equal(vuIdle, vu.phase, "one request left: cycles back to idle rather than finishing")
	a.Equal(1, vu.requestsLeft)
}

func TestStepMarksDoneAfterLastRequest(t *testing.T) {
	a := assert.New(t)

	vu := &virtualUser{rng: rand.New(rand.NewSource(1)), requestsLeft: 0, phase: vuThinking, resumeAt: time.Now().Add(-time.Millisecond)}
	g := &Generator{}
	_, got := g.step(vu, time.Now(), time.Millisecond, time.Second, rate.NewLimiter(rate.Limit(1), 1))
	a.False(got)
	a.Equal(vuDone, vu.phase)
}

func TestRunDrivesVirtualUsersWithoutPerUserGoroutines(t *testing.T) {
	a := assert.New(t)

	g := newTestGenerator(t)
	before := runtime.NumGoroutine()

	summary := g.Run(context.Background(), Config{
		Profile:        EProfile.ConstantLoad(),
		Users:          25,
		RequestsPerUser: 2,
		ThinkTime:      time.Millisecond,
		Duration:       300 * time.Millisecond,
		RequestTimeout: time.Second,
		Seed:           7,
	})

	after := runtime.NumGoroutine()
	// The scheduler loop runs inline on the calling goroutine; the only
	// extra goroutine a run leaves behind transiently is its resource
	// sampler, regardless of how many virtual users it drives.
	a.LessOrEqual(after, before+3, "virtual users must not spawn their own goroutines")

	a.Greater(summary.TotalRequests, 0)
	a.Equal(1.0, summary.SuccessRate)
}

func TestRunRejectsWhenProcessorQueueIsFull(t *testing.T) {
	a := assert.New(t)

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

	procCfg := processor.DefaultConfig()
	procCfg.MaxQueueSize = 1
	procCfg.MaxConcurrentSessions = 0
	proc := processor.New(procCfg, store, gov, prog, agent.NewRegistry(), nil)
	proc.Start()
	defer proc.Stop(5 * time.Second)

	g := New(proc, gov)
	summary := g.Run(context.Background(), Config{
		Profile:        EProfile.ConstantLoad(),
		Users:          5,
		RequestsPerUser: 3,
		ThinkTime:      time.Millisecond,
		Duration:       150 * time.Millisecond,
		RequestTimeout: 50 * time.Millisecond,
		Seed:           3,
	})

	a.Greater(summary.TotalRequests, 0)
	a.Less(summary.SuccessRate, 1.0, "a saturated queue should produce submit failures")
}
