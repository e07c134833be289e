// Package loadgen drives the processor under one of six synthetic load
// profiles and computes summary statistics. Virtual users are cooperative
// tasks stepped round-robin off a single scheduler loop, the same
// ticker-driven single-threaded-poll idiom the processor package's own
// admission loop uses, rather than one goroutine per user: concurrency in
// this system belongs to the processor under test, not to the generator
// simulating its callers.
package loadgen

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/lordpython/videoforge/common"
	"github.com/lordpython/videoforge/governor"
	"github.com/lordpython/videoforge/processor"
	"github.com/lordpython/videoforge/session"
)

// Profile selects a load shape. The zero value is ConstantLoad.
type Profile uint32

var EProfile Profile

func (Profile) ConstantLoad() Profile { return Profile(0) }
func (Profile) RampUp() Profile       { return Profile(1) }
func (Profile) Spike() Profile        { return Profile(2) }
func (Profile) Stress() Profile       { return Profile(3) }
func (Profile) Endurance() Profile    { return Profile(4) }
func (Profile) Burst() Profile        { return Profile(5) }

func (p Profile) String() string {
	switch p {
	case EProfile.RampUp():
		return "ramp_up"
	case EProfile.Spike():
		return "spike"
	case EProfile.Stress():
		return "stress"
	case EProfile.Endurance():
		return "endurance"
	case EProfile.Burst():
		return "burst"
	default:
		return "constant_load"
	}
}

func (p *Profile) Parse(s string) error {
	switch s {
	case "ramp_up":
		*p = EProfile.RampUp()
	case "spike":
		*p = EProfile.Spike()
	case "stress":
		*p = EProfile.Stress()
	case "endurance":
		*p = EProfile.Endurance()
	case "burst":
		*p = EProfile.Burst()
	case "constant_load":
		*p = EProfile.ConstantLoad()
	default:
		return fmt.Errorf("loadgen: unknown profile %q", s)
	}
	return nil
}

// Config parameterizes one test run.
type Config struct {
	Profile      Profile
	Users        int
	RequestsPerUser int
	ThinkTime    time.Duration
	Duration     time.Duration
	RequestTimeout time.Duration
	Seed         int64
}

// requestResult records one virtual user's single request outcome.
type requestResult struct {
	start, end time.Time
	success    bool
}

// ResourceSnapshot pairs a point-in-time usage sample with its timestamp,
// taken every 5s throughout the run.
type ResourceSnapshot struct {
	At    time.Time
	Usage governor.Usage
}

// Summary is the load test's computed result set.
type Summary struct {
	TotalRequests   int
	SuccessCount    int
	FailureCount    int
	SuccessRate     float64
	RequestsPerSec  float64
	PeakConcurrency int
	MinLatencyMS    float64
	MaxLatencyMS    float64
	MeanLatencyMS   float64
	P50LatencyMS    float64
	P95LatencyMS    float64
	P99LatencyMS    float64
	ResourceSnapshots []ResourceSnapshot
}

// Generator drives a Processor under a configured Profile.
type Generator struct {
	proc *processor.Processor
	gov  *governor.Governor
}

// New constructs a Generator targeting proc, sampling gov for periodic
// resource snapshots.
func New(proc *processor.Processor, gov *governor.Governor) *Generator {
	return &Generator{proc: proc, gov: gov}
}

// desiredActive computes the target number of concurrently-active virtual
// users at elapsed time t into a run of total duration `total`, per the
// profile's shape matches the load-shape presets operators expect.
func desiredActive(profile Profile, n int, elapsed, total time.Duration) int {
	frac := float64(elapsed) / float64(total)
	if frac > 1 {
		frac = 1
	}
	switch profile {
	case EProfile.RampUp():
		rampFrac := math.Min(frac/0.5, 1) // ramp over first half, per "ramp-up window"
		return int(math.Round(rampFrac * float64(n)))
	case EProfile.Spike():
		switch {
		case frac < 1.0/3:
			return int(math.Round(0.25 * float64(n)))
		case frac < 2.0/3:
			return n
		default:
			return int(math.Round(0.25 * float64(n)))
		}
	case EProfile.Stress():
		return int(math.Round(frac * 1.5 * float64(n)))
	case EProfile.Endurance():
		return int(math.Round(0.75 * float64(n)))
	case EProfile.Burst():
		cycle := 90 * time.Second
		pos := time.Duration(int64(elapsed) % int64(cycle))
		if pos < 30*time.Second {
			return n
		}
		return 0
	default: // ConstantLoad
		return n
	}
}

// vuPhase is a virtual user's position in its request/think cycle.
type vuPhase int

const (
	vuIdle vuPhase = iota
	vuAwaiting
	vuThinking
	vuDone
)

// virtualUser is a cooperative task: the scheduler loop advances it by one
// non-blocking step per tick rather than running it on its own goroutine.
type virtualUser struct {
	rng          *rand.Rand
	requestsLeft int
	phase        vuPhase
	reqID        uuid.UUID
	reqStart     time.Time
	deadline     time.Time // awaiting-phase request timeout
	resumeAt     time.Time // thinking-phase wake time
}

// step advances vu by one non-blocking unit of work and returns a completed
// requestResult when one was produced during this step.
func (g *Generator) step(vu *virtualUser, now time.Time, thinkTime, reqTimeout time.Duration, pollLimiter *rate.Limiter) (requestResult, bool) {
	switch vu.phase {
	case vuIdle:
		req := generateJobRequest(vu.rng)
		vu.reqStart = now
		reqID, err := g.proc.Submit(req, "", common.EPriority.Normal())
		if err != nil {
			vu.requestsLeft--
			vu.phase = vuThinking
			vu.resumeAt = now.Add(thinkTime)
			return requestResult{start: now, end: now, success: false}, true
		}
		vu.reqID = reqID
		vu.deadline = now.Add(reqTimeout)
		vu.phase = vuAwaiting

	case vuAwaiting:
		if now.After(vu.deadline) {
			vu.requestsLeft--
			vu.phase = vuThinking
			vu.resumeAt = now.Add(thinkTime)
			return requestResult{start: vu.reqStart, end: now, success: false}, true
		}
		if !pollLimiter.Allow() {
			return requestResult{}, false
		}
		status := g.proc.Status(vu.reqID)
		switch status.State {
		case processor.ETaskState.Completed():
			vu.requestsLeft--
			vu.phase = vuThinking
			vu.resumeAt = now.Add(thinkTime)
			return requestResult{start: vu.reqStart, end: now, success: status.Success}, true
		case processor.ETaskState.NotFound():
			vu.requestsLeft--
			vu.phase = vuThinking
			vu.resumeAt = now.Add(thinkTime)
			return requestResult{start: vu.reqStart, end: now, success: false}, true
		}

	case vuThinking:
		if now.Before(vu.resumeAt) {
			return requestResult{}, false
		}
		if vu.requestsLeft <= 0 {
			vu.phase = vuDone
			return requestResult{}, false
		}
		vu.phase = vuIdle
	}
	return requestResult{}, false
}

// Run executes cfg against the Generator's processor for its configured
// Duration, returning aggregated Summary statistics. Virtual users are
// round-robined off one scheduler loop; the only other goroutine in a run
// is the periodic resource sampler, which does no request traffic of its
// own.
func (g *Generator) Run(ctx context.Context, cfg Config) Summary {
	rng := rand.New(rand.NewSource(cfg.Seed))
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var (
		mu    sync.Mutex
		snaps []ResourceSnapshot
	)

	var samplerDone sync.WaitGroup
	stop := make(chan struct{})
	samplerDone.Add(1)
	go func() {
		defer samplerDone.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				mu.Lock()
				snaps = append(snaps, ResourceSnapshot{At: time.Now().UTC(), Usage: g.gov.CurrentUsage()})
				mu.Unlock()
			}
		}
	}()

	requestsPerUser := cfg.RequestsPerUser
	thinkTime := cfg.ThinkTime
	if cfg.Profile == EProfile.Endurance() {
		requestsPerUser *= 3
		thinkTime *= 2
	}

	start := time.Now()
	pollLimiter := rate.NewLimiter(rate.Limit(20), 5)

	var (
		results []requestResult
		peak    int
		users   []*virtualUser
	)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

schedulerLoop:
	for {
		select {
		case <-ctx.Done():
			break schedulerLoop
		case now := <-ticker.C:
			want := desiredActive(cfg.Profile, cfg.Users, now.Sub(start), cfg.Duration)
			for len(users) < want {
				users = append(users, &virtualUser{rng: rand.New(rand.NewSource(rng.Int63())), requestsLeft: requestsPerUser})
			}

			live := users[:0]
			active := 0
			for _, vu := range users {
				res, got := g.step(vu, now, thinkTime, cfg.RequestTimeout, pollLimiter)
				if got {
					results = append(results, res)
				}
				if vu.phase == vuDone {
					continue
				}
				if vu.phase == vuAwaiting {
					active++
				}
				live = append(live, vu)
			}
			users = live
			if active > peak {
				peak = active
			}
		}
	}

	close(stop)
	samplerDone.Wait()

	return summarize(results, int64(peak), time.Since(start), snaps)
}

var (
	samplePrompts  = []string{"a walking tour of a coastal town", "how photosynthesis works", "a recipe for sourdough bread"}
	sampleStyles   = []string{"documentary", "cinematic", "explainer"}
	sampleVoices   = []string{"neutral", "warm", "energetic"}
	sampleQuality  = []common.QualityTier{common.EQualityTier.Low(), common.EQualityTier.Medium(), common.EQualityTier.High()}
)

func generateJobRequest(rng *rand.Rand) session.JobRequest {
	return session.JobRequest{
		Prompt:      samplePrompts[rng.Intn(len(samplePrompts))],
		DurationSec: 30 + rng.Intn(120),
		Style:       sampleStyles[rng.Intn(len(sampleStyles))],
		Voice:       sampleVoices[rng.Intn(len(sampleVoices))],
		Quality:     sampleQuality[rng.Intn(len(sampleQuality))],
	}
}

func summarize(results []requestResult, peak int64, wallClock time.Duration, snaps []ResourceSnapshot) Summary {
	s := Summary{TotalRequests: len(results), PeakConcurrency: int(peak), ResourceSnapshots: snaps}
	if len(results) == 0 {
		return s
	}

	latencies := make([]float64, 0, len(results))
	for _, r := range results {
		if r.success {
			s.SuccessCount++
		} else {
			s.FailureCount++
		}
		latencies = append(latencies, r.end.Sub(r.start).Seconds()*1000)
	}
	sort.Float64s(latencies)

	s.SuccessRate = float64(s.SuccessCount) / float64(s.TotalRequests)
	s.RequestsPerSec = float64(s.TotalRequests) / wallClock.Seconds()
	s.MinLatencyMS = latencies[0]
	s.MaxLatencyMS = latencies[len(latencies)-1]

	var sum float64
	for _, l := range latencies {
		sum += l
	}
	s.MeanLatencyMS = sum / float64(len(latencies))
	s.P50LatencyMS = percentile(latencies, 0.50)
	s.P95LatencyMS = percentile(latencies, 0.95)
	s.P99LatencyMS = percentile(latencies, 0.99)
	return s
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
