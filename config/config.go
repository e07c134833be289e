// Package config defines the typed, environment-overridable configuration
// surface for the videoforge core, following the name/default/description
// environment-variable idiom the processing engine uses for its own tuning
// knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvironmentVariable documents one overridable setting: its name, the
// value used when unset, and a short description of what it controls.
type EnvironmentVariable struct {
	Name         string
	DefaultValue string
	Description  string
}

// Get returns the environment variable's value, falling back to its default.
func (e EnvironmentVariable) Get() string {
	if v := os.Getenv(e.Name); v != "" {
		return v
	}
	return e.DefaultValue
}

func (e EnvironmentVariable) getInt() int {
	v, err := strconv.Atoi(e.Get())
	if err != nil {
		d, _ := strconv.Atoi(e.DefaultValue)
		return d
	}
	return v
}

func (e EnvironmentVariable) getFloat() float64 {
	v, err := strconv.ParseFloat(e.Get(), 64)
	if err != nil {
		d, _ := strconv.ParseFloat(e.DefaultValue, 64)
		return d
	}
	return v
}

func (e EnvironmentVariable) getDuration() time.Duration {
	v, err := time.ParseDuration(e.Get())
	if err != nil {
		d, _ := time.ParseDuration(e.DefaultValue)
		return d
	}
	return v
}

var (
	EnvMaxConcurrentSessions = EnvironmentVariable{"VIDEOFORGE_MAX_CONCURRENT_SESSIONS", "5", "maximum sessions actively processing at once"}
	EnvMaxQueueSize          = EnvironmentVariable{"VIDEOFORGE_MAX_QUEUE_SIZE", "100", "maximum sessions waiting admission before submissions are rejected"}
	EnvSessionTimeout        = EnvironmentVariable{"VIDEOFORGE_SESSION_TIMEOUT", "30m", "wall-clock budget for a single session before it is force-failed"}

	EnvCPUWarningPercent     = EnvironmentVariable{"VIDEOFORGE_CPU_WARNING_PERCENT", "70", "CPU utilization above which the governor raises a warning alert"}
	EnvCPUCriticalPercent    = EnvironmentVariable{"VIDEOFORGE_CPU_CRITICAL_PERCENT", "85", "CPU utilization above which admission is throttled"}
	EnvMemoryWarningPercent  = EnvironmentVariable{"VIDEOFORGE_MEMORY_WARNING_PERCENT", "75", "memory utilization above which the governor raises a warning alert"}
	EnvMemoryCriticalPercent = EnvironmentVariable{"VIDEOFORGE_MEMORY_CRITICAL_PERCENT", "90", "memory utilization above which admission is throttled"}
	EnvDiskWarningPercent    = EnvironmentVariable{"VIDEOFORGE_DISK_WARNING_PERCENT", "80", "disk utilization above which the governor raises a warning alert"}
	EnvDiskCriticalPercent   = EnvironmentVariable{"VIDEOFORGE_DISK_CRITICAL_PERCENT", "95", "disk utilization above which admission is throttled"}
	EnvSampleInterval        = EnvironmentVariable{"VIDEOFORGE_RESOURCE_SAMPLE_INTERVAL", "5s", "resource governor sampling period"}
	EnvHistorySize           = EnvironmentVariable{"VIDEOFORGE_RESOURCE_HISTORY_SIZE", "720", "number of resource samples retained (ring buffer)"}

	EnvRateLimitBurst     = EnvironmentVariable{"VIDEOFORGE_RATE_LIMIT_BURST", "10", "token bucket burst capacity per service"}
	EnvRateLimitPerMinute = EnvironmentVariable{"VIDEOFORGE_RATE_LIMIT_PER_MINUTE", "60", "sustained token refill rate per service, per minute"}
	EnvRateLimitPerHour   = EnvironmentVariable{"VIDEOFORGE_RATE_LIMIT_PER_HOUR", "1000", "sliding-window cap per service, per hour"}
	EnvCircuitMaxFailures = EnvironmentVariable{"VIDEOFORGE_CIRCUIT_MAX_FAILURES", "5", "loaded into Config only; the rate limiter's circuit opens after a fixed 3 consecutive rate-limited outcomes"}
	EnvCircuitCooldown    = EnvironmentVariable{"VIDEOFORGE_CIRCUIT_COOLDOWN", "30s", "loaded into Config only; an open rate-limiter circuit uses a fixed 30s before allowing a trial request"}

	EnvSweepInterval    = EnvironmentVariable{"VIDEOFORGE_SWEEP_INTERVAL", "10m", "maintenance sweeper run period"}
	EnvSessionRetention = EnvironmentVariable{"VIDEOFORGE_SESSION_RETENTION", "24h", "age at which a completed or failed session's artifacts become eligible for cleanup"}
	EnvOrphanGrace      = EnvironmentVariable{"VIDEOFORGE_ORPHAN_GRACE", "1h", "loaded into Config only; the sweeper removes intermediate files with no owning session without a grace period"}

	EnvStorePath   = EnvironmentVariable{"VIDEOFORGE_STORE_PATH", "./data/sessions", "directory holding session snapshot files"}
	EnvListenAddr  = EnvironmentVariable{"VIDEOFORGE_LISTEN_ADDR", ":8080", "control-plane HTTP listen address"}
	EnvLogProd     = EnvironmentVariable{"VIDEOFORGE_LOG_PROD", "false", "emit JSON production logs instead of console-formatted development logs"}
)

// Config is the fully resolved, validated configuration for one videoforge
// process. Zero value is not valid; use Load or LoadDefault.
type Config struct {
	MaxConcurrentSessions int
	MaxQueueSize          int
	SessionTimeout        time.Duration

	CPUWarningPercent     float64
	CPUCriticalPercent    float64
	MemoryWarningPercent  float64
	MemoryCriticalPercent float64
	DiskWarningPercent    float64
	DiskCriticalPercent   float64
	SampleInterval        time.Duration
	HistorySize           int

	RateLimitBurst     int
	RateLimitPerMinute int
	RateLimitPerHour   int
	CircuitMaxFailures uint32
	CircuitCooldown    time.Duration

	SweepInterval    time.Duration
	SessionRetention time.Duration
	OrphanGrace      time.Duration

	StorePath  string
	ListenAddr string
	LogProd    bool
}

// LoadDefault builds a Config purely from environment variables (or their
// defaults), with no command-line overrides. cmd/videoforge overwrites the
// StorePath, ListenAddr and LogProd fields from its pflag values afterwards.
func LoadDefault() (*Config, error) {
	c := &Config{
		MaxConcurrentSessions: EnvMaxConcurrentSessions.getInt(),
		MaxQueueSize:          EnvMaxQueueSize.getInt(),
		SessionTimeout:        EnvSessionTimeout.getDuration(),

		CPUWarningPercent:     EnvCPUWarningPercent.getFloat(),
		CPUCriticalPercent:    EnvCPUCriticalPercent.getFloat(),
		MemoryWarningPercent:  EnvMemoryWarningPercent.getFloat(),
		MemoryCriticalPercent: EnvMemoryCriticalPercent.getFloat(),
		DiskWarningPercent:    EnvDiskWarningPercent.getFloat(),
		DiskCriticalPercent:   EnvDiskCriticalPercent.getFloat(),
		SampleInterval:        EnvSampleInterval.getDuration(),
		HistorySize:           EnvHistorySize.getInt(),

		RateLimitBurst:     EnvRateLimitBurst.getInt(),
		RateLimitPerMinute: EnvRateLimitPerMinute.getInt(),
		RateLimitPerHour:   EnvRateLimitPerHour.getInt(),
		CircuitMaxFailures: uint32(EnvCircuitMaxFailures.getInt()),
		CircuitCooldown:    EnvCircuitCooldown.getDuration(),

		SweepInterval:    EnvSweepInterval.getDuration(),
		SessionRetention: EnvSessionRetention.getDuration(),
		OrphanGrace:      EnvOrphanGrace.getDuration(),

		StorePath:  EnvStorePath.Get(),
		ListenAddr: EnvListenAddr.Get(),
		LogProd:    EnvLogProd.Get() == "true",
	}
	return c, c.Validate()
}

// Validate rejects configurations that would make the pipeline unable to
// make progress or would panic downstream (e.g. division by a zero rate).
func (c *Config) Validate() error {
	switch {
	case c.MaxConcurrentSessions <= 0:
		return fmt.Errorf("config: MaxConcurrentSessions must be positive, got %d", c.MaxConcurrentSessions)
	case c.MaxQueueSize <= 0:
		return fmt.Errorf("config: MaxQueueSize must be positive, got %d", c.MaxQueueSize)
	case c.SampleInterval <= 0:
		return fmt.Errorf("config: SampleInterval must be positive, got %s", c.SampleInterval)
	case c.HistorySize <= 0:
		return fmt.Errorf("config: HistorySize must be positive, got %d", c.HistorySize)
	case c.RateLimitBurst <= 0:
		return fmt.Errorf("config: RateLimitBurst must be positive, got %d", c.RateLimitBurst)
	case c.RateLimitPerMinute <= 0:
		return fmt.Errorf("config: RateLimitPerMinute must be positive, got %d", c.RateLimitPerMinute)
	case c.CPUWarningPercent <= 0 || c.CPUWarningPercent > 100:
		return fmt.Errorf("config: CPUWarningPercent must be in (0, 100], got %f", c.CPUWarningPercent)
	case c.CPUCriticalPercent <= 0 || c.CPUCriticalPercent > 100:
		return fmt.Errorf("config: CPUCriticalPercent must be in (0, 100], got %f", c.CPUCriticalPercent)
	case c.CPUWarningPercent >= c.CPUCriticalPercent:
		return fmt.Errorf("config: CPUWarningPercent (%f) must be less than CPUCriticalPercent (%f)", c.CPUWarningPercent, c.CPUCriticalPercent)
	case c.MemoryWarningPercent <= 0 || c.MemoryWarningPercent > 100:
		return fmt.Errorf("config: MemoryWarningPercent must be in (0, 100], got %f", c.MemoryWarningPercent)
	case c.MemoryCriticalPercent <= 0 || c.MemoryCriticalPercent > 100:
		return fmt.Errorf("config: MemoryCriticalPercent must be in (0, 100], got %f", c.MemoryCriticalPercent)
	case c.MemoryWarningPercent >= c.MemoryCriticalPercent:
		return fmt.Errorf("config: MemoryWarningPercent (%f) must be less than MemoryCriticalPercent (%f)", c.MemoryWarningPercent, c.MemoryCriticalPercent)
	case c.DiskWarningPercent <= 0 || c.DiskWarningPercent > 100:
		return fmt.Errorf("config: DiskWarningPercent must be in (0, 100], got %f", c.DiskWarningPercent)
	case c.DiskCriticalPercent <= 0 || c.DiskCriticalPercent > 100:
		return fmt.Errorf("config: DiskCriticalPercent must be in (0, 100], got %f", c.DiskCriticalPercent)
	case c.DiskWarningPercent >= c.DiskCriticalPercent:
		return fmt.Errorf("config: DiskWarningPercent (%f) must be less than DiskCriticalPercent (%f)", c.DiskWarningPercent, c.DiskCriticalPercent)
	}
	return nil
}
