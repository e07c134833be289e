package main

import (
	"fmt"

	"github.com/lordpython/videoforge/agent"
	"github.com/lordpython/videoforge/common"
	"github.com/lordpython/videoforge/config"
	"github.com/lordpython/videoforge/governor"
	"github.com/lordpython/videoforge/maintenance"
	"github.com/lordpython/videoforge/processor"
	"github.com/lordpython/videoforge/progress"
	"github.com/lordpython/videoforge/ratelimit"
	"github.com/lordpython/videoforge/session"
)

// app bundles the wired-up core, shared by every subcommand that needs more
// than a bare HTTP client against a running server.
type app struct {
	cfg     *config.Config
	logger  common.ILogger
	store   *session.Store
	gov     *governor.Governor
	prog    *progress.Monitor
	limiter *ratelimit.Limiter
	proc    *processor.Processor
	sweeper *maintenance.Sweeper
}

func defaultRateLimitServices(cfg *config.Config) map[string]ratelimit.ServiceConfig {
	svc := ratelimit.ServiceConfig{
		Capacity:   float64(cfg.RateLimitBurst),
		RefillRate: float64(cfg.RateLimitPerMinute) / 60.0,
		PerMinute:  cfg.RateLimitPerMinute,
		PerHour:    cfg.RateLimitPerHour,
	}
	return map[string]ratelimit.ServiceConfig{
		"research": svc,
		"script":   svc,
		"assets":   svc,
		"audio":    svc,
		"assembly": svc,
	}
}

func newApp() (*app, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if storePath != "" {
		cfg.StorePath = storePath
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if logProd {
		cfg.LogProd = true
	}

	logger, err := common.NewLogger(cfg.LogProd)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	store, err := session.New(cfg.StorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	govCfg := governor.DefaultConfig()
	govCfg.SampleInterval = cfg.SampleInterval
	govCfg.HistorySize = cfg.HistorySize
	govCfg.CPU.Warning = cfg.CPUWarningPercent
	govCfg.CPU.Critical = cfg.CPUCriticalPercent
	govCfg.Memory.Warning = cfg.MemoryWarningPercent
	govCfg.Memory.Critical = cfg.MemoryCriticalPercent
	govCfg.Disk.Warning = cfg.DiskWarningPercent
	govCfg.Disk.Critical = cfg.DiskCriticalPercent
	gov := governor.New(govCfg, logger)

	prog := progress.New(store)
	limiter := ratelimit.New(defaultRateLimitServices(cfg), logger)
	registry := agent.NewRegistry()

	procCfg := processor.DefaultConfig()
	procCfg.MaxConcurrentSessions = cfg.MaxConcurrentSessions
	procCfg.MaxQueueSize = cfg.MaxQueueSize
	procCfg.WorkerTimeout = cfg.SessionTimeout
	proc := processor.New(procCfg, store, gov, prog, registry, logger)

	sweepCfg := maintenance.DefaultConfig()
	sweepCfg.Interval = cfg.SweepInterval
	sweepCfg.CompletedRetention = cfg.SessionRetention
	sweepCfg.FailedRetention = cfg.SessionRetention
	sweeper := maintenance.New(sweepCfg, store, gov, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		gov:     gov,
		prog:    prog,
		limiter: limiter,
		proc:    proc,
		sweeper: sweeper,
	}, nil
}
