package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/lordpython/videoforge/agent"
	"github.com/lordpython/videoforge/governor"
	"github.com/lordpython/videoforge/processor"
	"github.com/lordpython/videoforge/progress"
	"github.com/lordpython/videoforge/ratelimit"
	"github.com/lordpython/videoforge/session"
)

func TestCollectorGathersAllDeclaredMetrics(t *testing.T) {
	a := assert.New(t)

	store, err := session.New(t.TempDir(), nil)
	a.NoError(err)

	govCfg := governor.DefaultConfig()
	govCfg.TotalCPUCores = 4
	govCfg.TotalMemoryMB = 8192
	govCfg.TotalDiskMB = 10000
	gov := governor.New(govCfg, nil)

	prog := progress.New(store)
	cfg := processor.DefaultConfig()
	cfg.AdmissionPollInterval = 10 * time.Millisecond
	proc := processor.New(cfg, store, gov, prog, agent.NewRegistry(), nil)
	proc.Start()
	defer proc.Stop(5 * time.Second)

	limiter := ratelimit.New(map[string]ratelimit.ServiceConfig{
		"research": {Capacity: 5, RefillRate: 5, PerMinute: 100, PerHour: 1000},
	}, nil)
	defer limiter.Close()
	limiter.Record("research", true, 50, false)

	reg := prometheus.NewRegistry()
	a.NoError(reg.Register(New(proc, gov, limiter)))

	families, err := reg.Gather()
	a.NoError(err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"videoforge_sessions_processed_total",
		"videoforge_sessions_active",
		"videoforge_queue_size",
		"videoforge_host_cpu_percent",
		"videoforge_ratelimit_rejections_last_hour",
		"videoforge_circuit_open",
	} {
		a.True(names[want], "expected metric family %q", want)
	}
}
