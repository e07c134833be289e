// Package ratelimit implements the per-service token bucket shared by
// workers before they call upstream APIs, layered with a sliding
// minute/hour cap and a circuit breaker that stops hammering a service
// that keeps coming back rate-limited.
package ratelimit

import (
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/sony/gobreaker"

	"github.com/lordpython/videoforge/common"
)

// ServiceConfig declares one rate-limited upstream's bucket shape.
type ServiceConfig struct {
	Capacity   float64
	RefillRate float64 // tokens/sec
	PerMinute  int
	PerHour    int
}

// logEntry is one record in a service's sliding statistics log.
type logEntry struct {
	at          time.Time
	success     bool
	latencyMS   float64
	rateLimited bool
}

type service struct {
	name    string
	cfg     ServiceConfig
	bucket  *bucket
	windows *catrate.Limiter
	breaker *gobreaker.CircuitBreaker

	logMu sync.Mutex
	log   []logEntry
}

// Limiter holds every configured service's bucket, sliding windows, and
// breaker, plus a background trimmer for the statistics log.
type Limiter struct {
	logger common.ILogger

	mu       sync.RWMutex
	services map[string]*service

	warnedMu sync.Mutex
	warned   map[string]bool

	stop chan struct{}
}

// New constructs a Limiter with the given named service configurations.
// Call Close to stop its background trimmer.
func New(services map[string]ServiceConfig, logger common.ILogger) *Limiter {
	if logger == nil {
		logger = common.NopLogger()
	}
	l := &Limiter{
		logger:   logger,
		services: make(map[string]*service, len(services)),
		warned:   make(map[string]bool),
		stop:     make(chan struct{}),
	}
	for name, cfg := range services {
		l.services[name] = newService(name, cfg)
	}
	go l.trimLoop()
	return l
}

func newService(name string, cfg ServiceConfig) *service {
	s := &service{
		name:   name,
		cfg:    cfg,
		bucket: newBucket(cfg.Capacity, cfg.RefillRate),
		windows: catrate.NewLimiter(map[time.Duration]int{
			time.Minute: cfg.PerMinute,
			time.Hour:   cfg.PerHour,
		}),
	}
	breakerSettings := gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		Timeout: 30 * time.Second,
	}
	s.breaker = gobreaker.NewCircuitBreaker(breakerSettings)
	return s
}

func (l *Limiter) get(name string) (*service, bool) {
	l.mu.RLock()
	s, ok := l.services[name]
	l.mu.RUnlock()
	return s, ok
}

// Close stops the background statistics trimmer.
func (l *Limiter) Close() { close(l.stop) }

func (l *Limiter) trimLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.RLock()
			services := make([]*service, 0, len(l.services))
			for _, s := range l.services {
				services = append(services, s)
			}
			l.mu.RUnlock()
			cutoff := time.Now().Add(-time.Hour)
			for _, s := range services {
				s.logMu.Lock()
				i := 0
				for i < len(s.log) && s.log[i].at.Before(cutoff) {
					i++
				}
				s.log = s.log[i:]
				s.logMu.Unlock()
			}
		}
	}
}

func (l *Limiter) warnUnknownOnce(name string) {
	l.warnedMu.Lock()
	defer l.warnedMu.Unlock()
	if l.warned[name] {
		return
	}
	l.warned[name] = true
	l.logger.Warn("ratelimit: unknown service, failing open", zapStr("service", name))
}

// Check is a non-mutating preview of whether one token could be taken from
// service's bucket right now, and if not, the delay the caller would need
// to wait. The user argument and the sliding minute/hour windows are not
// consulted. Unknown services fail open.
func (l *Limiter) Check(serviceName, user string) (bool, float64) {
	s, ok := l.get(serviceName)
	if !ok {
		l.warnUnknownOnce(serviceName)
		return true, 0
	}
	if s.breaker.State() == gobreaker.StateOpen {
		return false, 30
	}
	return s.bucket.peek(1)
}

// Acquire mutates state: it attempts to take n tokens from the bucket and
// consult the sliding minute/hour windows. Both must allow the request.
func (l *Limiter) Acquire(serviceName, user string, n int) (bool, float64) {
	if n <= 0 {
		n = 1
	}
	s, ok := l.get(serviceName)
	if !ok {
		l.warnUnknownOnce(serviceName)
		return true, 0
	}
	if s.breaker.State() == gobreaker.StateOpen {
		return false, 30
	}

	category := serviceName
	if user != "" {
		category = serviceName + ":" + user
	}
	if next, allowed := s.windows.Allow(category); !allowed {
		return false, time.Until(next).Seconds()
	}

	ok2, delay := s.bucket.tryAcquire(float64(n))
	return ok2, delay
}

// Record appends an outcome to the service's sliding statistics log and
// reports it to the circuit breaker (a rate-limited outcome counts as a
// breaker failure).
func (l *Limiter) Record(serviceName string, success bool, latencyMS float64, rateLimited bool) {
	s, ok := l.get(serviceName)
	if !ok {
		return
	}
	s.logMu.Lock()
	s.log = append(s.log, logEntry{at: time.Now(), success: success, latencyMS: latencyMS, rateLimited: rateLimited})
	s.logMu.Unlock()

	_, _ = s.breaker.Execute(func() (any, error) {
		if rateLimited {
			return nil, errRateLimited
		}
		return nil, nil
	})
}

var errRateLimited = common.NewError(common.EErrorKind.RateLimited(), "ratelimit.Record", "upstream reported rate limiting")

// ServiceStatus is the point-in-time view of one service's bucket.
type ServiceStatus struct {
	AllowedRPS       float64
	CurrentRPS       float64
	TokensAvailable  float64
	QueueSize        int
	CircuitOpen      bool
}

// ServiceStatus reports the current bucket state for serviceName.
func (l *Limiter) ServiceStatus(serviceName string) (ServiceStatus, bool) {
	s, ok := l.get(serviceName)
	if !ok {
		return ServiceStatus{}, false
	}
	s.logMu.Lock()
	cutoff := time.Now().Add(-time.Second)
	var recent int
	for _, e := range s.log {
		if e.at.After(cutoff) {
			recent++
		}
	}
	s.logMu.Unlock()

	return ServiceStatus{
		AllowedRPS:      s.cfg.RefillRate,
		CurrentRPS:      float64(recent),
		TokensAvailable: s.bucket.tokensAvailable(),
		QueueSize:       0,
		CircuitOpen:     s.breaker.State() == gobreaker.StateOpen,
	}, true
}

// Statistics is the aggregate view across every configured service.
type Statistics struct {
	TotalLastHour   int
	RateLimited     int
	RateLimitedPct  float64
	SuccessRate     float64
	AvgLatencyMS    float64
	PerService      map[string]ServiceStatistics
}

// ServiceStatistics is one service's slice of the aggregate Statistics.
type ServiceStatistics struct {
	TotalLastHour  int
	RateLimited    int
	SuccessRate    float64
	AvgLatencyMS   float64
	CircuitOpen    bool
}

// Statistics aggregates every service's sliding log over the last hour.
func (l *Limiter) Statistics() Statistics {
	l.mu.RLock()
	services := make(map[string]*service, len(l.services))
	for k, v := range l.services {
		services[k] = v
	}
	l.mu.RUnlock()

	out := Statistics{PerService: make(map[string]ServiceStatistics, len(services))}
	var totalLatency float64
	var totalSuccess int

	for name, s := range services {
		s.logMu.Lock()
		entries := append([]logEntry(nil), s.log...)
		s.logMu.Unlock()

		var rl, ok int
		var lat float64
		for _, e := range entries {
			if e.rateLimited {
				rl++
			}
			if e.success {
				ok++
			}
			lat += e.latencyMS
		}
		n := len(entries)
		svcStats := ServiceStatistics{TotalLastHour: n, RateLimited: rl, CircuitOpen: s.breaker.State() == gobreaker.StateOpen}
		if n > 0 {
			svcStats.SuccessRate = float64(ok) / float64(n)
			svcStats.AvgLatencyMS = lat / float64(n)
		}
		out.PerService[name] = svcStats

		out.TotalLastHour += n
		out.RateLimited += rl
		totalSuccess += ok
		totalLatency += lat
	}

	if out.TotalLastHour > 0 {
		out.RateLimitedPct = float64(out.RateLimited) / float64(out.TotalLastHour)
		out.SuccessRate = float64(totalSuccess) / float64(out.TotalLastHour)
		out.AvgLatencyMS = totalLatency / float64(out.TotalLastHour)
	}
	return out
}
