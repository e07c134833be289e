// Package governor samples host resource usage and arbitrates admission of
// new work against configured CPU/memory/disk thresholds, independently of
// the logical allocation ledger it also maintains for the processor.
package governor

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"github.com/lordpython/videoforge/common"
)

// Thresholds configures the warning/critical percentage pairs for one
// resource dimension.
type Thresholds struct {
	Warning  float64
	Critical float64
}

// Config controls sampling cadence, retention, and alert thresholds.
type Config struct {
	SampleInterval time.Duration
	HistorySize    int
	MonitorPath    string // filesystem path sampled for disk usage/free space

	CPU    Thresholds
	Memory Thresholds
	Disk   Thresholds

	TotalCPUCores  float64
	TotalMemoryMB  int64
	TotalDiskMB    int64
}

// DefaultConfig returns the out-of-the-box warning/critical thresholds.
func DefaultConfig() Config {
	return Config{
		SampleInterval: 5 * time.Second,
		HistorySize:    720,
		MonitorPath:    ".",
		CPU:            Thresholds{Warning: 70, Critical: 85},
		Memory:         Thresholds{Warning: 75, Critical: 90},
		Disk:           Thresholds{Warning: 80, Critical: 95},
		TotalCPUCores:  float64(runtime.NumCPU()),
		TotalMemoryMB:  16384,
		TotalDiskMB:    512000,
	}
}

// Usage is one point-in-time system resource sample.
type Usage struct {
	CPUPercent     float64
	MemPercent     float64
	DiskPercent    float64
	MemAvailableGB float64
	DiskFreeGB     float64
	NetSentMbps    float64
	NetRecvMbps    float64
	Timestamp      time.Time
}

// AlertLevel distinguishes no-alert from warning/critical crossings.
type AlertLevel uint32

var EAlertLevel AlertLevel

func (AlertLevel) Warning() AlertLevel  { return AlertLevel(0) }
func (AlertLevel) Critical() AlertLevel { return AlertLevel(1) }

func (l AlertLevel) String() string {
	if l == EAlertLevel.Critical() {
		return "critical"
	}
	return "warning"
}

// Alert is an active threshold crossing for one resource dimension.
type Alert struct {
	Resource  string
	Level     AlertLevel
	Value     float64
	RaisedAt  time.Time
}

// Allocation is a logical reservation against the governor's ledger.
type Allocation struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	CPUCores  float64
	MemoryMB  int64
	DiskMB    int64
	Priority  common.Priority
	Active    bool
}

// Availability reports totals, allocated, and available amounts per
// dimension.
type Availability struct {
	TotalCPUCores     float64
	AllocatedCPUCores float64
	AvailableCPUCores float64

	TotalMemoryMB     int64
	AllocatedMemoryMB int64
	AvailableMemoryMB int64

	TotalDiskMB     int64
	AllocatedDiskMB int64
	AvailableDiskMB int64
}

// netCounters is the subset of gopsutil's net.IOCountersStat this package
// tracks across samples to derive throughput rates.
type netCounters struct {
	bytesSent uint64
	bytesRecv uint64
	at        time.Time
}

// Governor samples OS resource usage on a fixed interval, maintains a
// bounded history ring buffer, tracks active logical allocations, and
// answers admission questions for the processor's admission loop.
type Governor struct {
	cfg    Config
	logger common.ILogger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	historyMu sync.Mutex
	history   []Usage
	lastNet   netCounters

	alertMu sync.Mutex
	alerts  map[string]Alert

	cpuLimiter *resourceLimiter // scaled ×1000 to keep integer precision for fractional cores
	memLimiter *resourceLimiter
	diskLimiter *resourceLimiter

	allocMu     sync.Mutex
	allocations map[uuid.UUID]*Allocation
}

// New constructs a Governor. Call StartMonitoring to begin sampling.
func New(cfg Config, logger common.ILogger) *Governor {
	if logger == nil {
		logger = common.NopLogger()
	}
	return &Governor{
		cfg:         cfg,
		logger:      logger,
		alerts:      make(map[string]Alert),
		cpuLimiter:  newResourceLimiter(int64(cfg.TotalCPUCores * 1000)),
		memLimiter:  newResourceLimiter(cfg.TotalMemoryMB),
		diskLimiter: newResourceLimiter(cfg.TotalDiskMB),
		allocations: make(map[uuid.UUID]*Allocation),
	}
}

// StartMonitoring is idempotent; it launches the sampler goroutine if it is
// not already running.
func (g *Governor) StartMonitoring() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.done = make(chan struct{})
	g.running = true
	go g.sampleLoop(ctx)
}

// StopMonitoring is idempotent; it halts the sampler goroutine if running.
func (g *Governor) StopMonitoring() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	cancel := g.cancel
	done := g.done
	g.running = false
	g.mu.Unlock()

	cancel()
	<-done
}

func (g *Governor) sampleLoop(ctx context.Context) {
	defer close(g.done)
	ticker := time.NewTicker(g.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			usage := g.sample()
			g.appendHistory(usage)
			g.evaluateThresholds(usage)
		}
	}
}

// sample takes one synchronous reading of system resources. Errors from any
// individual gopsutil call are logged and that field is left at its zero
// value; the loop never aborts on a sampling error.
func (g *Governor) sample() Usage {
	now := time.Now().UTC()
	u := Usage{Timestamp: now}

	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		u.CPUPercent = percents[0]
	} else if err != nil {
		g.logger.Warn("governor: cpu sample failed", zap.Error(err))
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		u.MemPercent = vm.UsedPercent
		u.MemAvailableGB = float64(vm.Available) / (1024 * 1024 * 1024)
	} else {
		g.logger.Warn("governor: memory sample failed", zap.Error(err))
	}

	if du, err := disk.Usage(g.cfg.MonitorPath); err == nil {
		u.DiskPercent = du.UsedPercent
		u.DiskFreeGB = float64(du.Free) / (1024 * 1024 * 1024)
	} else {
		g.logger.Warn("governor: disk sample failed", zap.Error(err))
	}

	if counters, err := net.IOCounters(false); err == nil && len(counters) > 0 {
		cur := netCounters{bytesSent: counters[0].BytesSent, bytesRecv: counters[0].BytesRecv, at: now}
		if !g.lastNet.at.IsZero() {
			dt := cur.at.Sub(g.lastNet.at).Seconds()
			if dt > 0 {
				u.NetSentMbps = float64(cur.bytesSent-g.lastNet.bytesSent) * 8 / 1e6 / dt
				u.NetRecvMbps = float64(cur.bytesRecv-g.lastNet.bytesRecv) * 8 / 1e6 / dt
			}
		}
		g.lastNet = cur
	} else {
		g.logger.Warn("governor: network sample failed", zap.Error(err))
	}

	return u
}

func (g *Governor) appendHistory(u Usage) {
	g.historyMu.Lock()
	defer g.historyMu.Unlock()
	g.history = append(g.history, u)
	if n := len(g.history); n > g.cfg.HistorySize {
		g.history = g.history[n-g.cfg.HistorySize:]
	}
}

func (g *Governor) evaluateThresholds(u Usage) {
	g.checkOne("cpu", u.CPUPercent, g.cfg.CPU)
	g.checkOne("memory", u.MemPercent, g.cfg.Memory)
	g.checkOne("disk", u.DiskPercent, g.cfg.Disk)
}

func (g *Governor) checkOne(resource string, value float64, t Thresholds) {
	g.alertMu.Lock()
	defer g.alertMu.Unlock()
	switch {
	case value >= t.Critical:
		if a, ok := g.alerts[resource]; !ok || a.Level != EAlertLevel.Critical() {
			g.alerts[resource] = Alert{Resource: resource, Level: EAlertLevel.Critical(), Value: value, RaisedAt: time.Now().UTC()}
		}
	case value >= t.Warning:
		if a, ok := g.alerts[resource]; !ok || a.Level != EAlertLevel.Warning() {
			g.alerts[resource] = Alert{Resource: resource, Level: EAlertLevel.Warning(), Value: value, RaisedAt: time.Now().UTC()}
		}
	default:
		delete(g.alerts, resource)
	}
}

// CurrentUsage takes one synchronous sample outside the periodic loop.
func (g *Governor) CurrentUsage() Usage {
	return g.sample()
}

// ActiveAlerts returns the currently-raised alerts, one per resource at most.
func (g *Governor) ActiveAlerts() []Alert {
	g.alertMu.Lock()
	defer g.alertMu.Unlock()
	out := make([]Alert, 0, len(g.alerts))
	for _, a := range g.alerts {
		out = append(out, a)
	}
	return out
}

// AnyCritical reports whether any dimension is currently at or above its
// critical threshold, the trigger for the processor's auto-pause.
func (g *Governor) AnyCritical() bool {
	g.alertMu.Lock()
	defer g.alertMu.Unlock()
	for _, a := range g.alerts {
		if a.Level == EAlertLevel.Critical() {
			return true
		}
	}
	return false
}

// AllBelowWarning reports whether every dimension is under its warning
// threshold, the condition for the processor's auto-resume.
func (g *Governor) AllBelowWarning() bool {
	g.alertMu.Lock()
	defer g.alertMu.Unlock()
	return len(g.alerts) == 0
}

// Availability reports total/allocated/available per resource dimension
// from the logical ledger (not a live OS sample).
func (g *Governor) Availability() Availability {
	return Availability{
		TotalCPUCores:     g.cfg.TotalCPUCores,
		AllocatedCPUCores: float64(g.cpuLimiter.used()) / 1000,
		AvailableCPUCores: float64(g.cpuLimiter.available()) / 1000,

		TotalMemoryMB:     g.cfg.TotalMemoryMB,
		AllocatedMemoryMB: g.memLimiter.used(),
		AvailableMemoryMB: g.memLimiter.available(),

		TotalDiskMB:     g.cfg.TotalDiskMB,
		AllocatedDiskMB: g.diskLimiter.used(),
		AvailableDiskMB: g.diskLimiter.available(),
	}
}

// CanAllocate reports whether cpuCores/memMB/diskMB could currently be
// reserved, without reserving them.
func (g *Governor) CanAllocate(cpuCores float64, memMB, diskMB int64) (bool, string) {
	a := g.Availability()
	if cpuCores > a.AvailableCPUCores {
		return false, fmt.Sprintf("insufficient cpu: requested %.2f, available %.2f", cpuCores, a.AvailableCPUCores)
	}
	if memMB > a.AvailableMemoryMB {
		return false, fmt.Sprintf("insufficient memory: requested %d MB, available %d MB", memMB, a.AvailableMemoryMB)
	}
	if diskMB > a.AvailableDiskMB {
		return false, fmt.Sprintf("insufficient disk: requested %d MB, available %d MB", diskMB, a.AvailableDiskMB)
	}
	return true, ""
}

// Allocate reserves the requested resources for sessionID, returning the
// new allocation's id. It fails atomically: if any single dimension can't
// be reserved, nothing is reserved.
func (g *Governor) Allocate(sessionID uuid.UUID, cpuCores float64, memMB, diskMB int64, priority common.Priority) (uuid.UUID, error) {
	g.allocMu.Lock()
	defer g.allocMu.Unlock()

	if ok, reason := g.CanAllocate(cpuCores, memMB, diskMB); !ok {
		return uuid.Nil, common.NewError(common.EErrorKind.ResourceExhausted(), "governor.Allocate", reason)
	}

	cpuUnits := int64(cpuCores * 1000)
	if !g.cpuLimiter.tryAdd(cpuUnits) {
		return uuid.Nil, common.NewError(common.EErrorKind.ResourceExhausted(), "governor.Allocate", "cpu reservation lost race")
	}
	if !g.memLimiter.tryAdd(memMB) {
		g.cpuLimiter.remove(cpuUnits)
		return uuid.Nil, common.NewError(common.EErrorKind.ResourceExhausted(), "governor.Allocate", "memory reservation lost race")
	}
	if !g.diskLimiter.tryAdd(diskMB) {
		g.cpuLimiter.remove(cpuUnits)
		g.memLimiter.remove(memMB)
		return uuid.Nil, common.NewError(common.EErrorKind.ResourceExhausted(), "governor.Allocate", "disk reservation lost race")
	}

	id := uuid.New()
	g.allocations[id] = &Allocation{
		ID:        id,
		SessionID: sessionID,
		CPUCores:  cpuCores,
		MemoryMB:  memMB,
		DiskMB:    diskMB,
		Priority:  priority,
		Active:    true,
	}
	return id, nil
}

// Deallocate releases a previously allocated reservation exactly once.
func (g *Governor) Deallocate(id uuid.UUID) error {
	g.allocMu.Lock()
	defer g.allocMu.Unlock()

	alloc, ok := g.allocations[id]
	if !ok || !alloc.Active {
		return common.NewError(common.EErrorKind.NotFound(), "governor.Deallocate", "allocation not found")
	}
	alloc.Active = false
	g.cpuLimiter.remove(int64(alloc.CPUCores * 1000))
	g.memLimiter.remove(alloc.MemoryMB)
	g.diskLimiter.remove(alloc.DiskMB)
	delete(g.allocations, id)
	return nil
}

// GCResult reports the deltas of a forced garbage collection.
type GCResult struct {
	BytesFreed       int64
	ObjectsCollected int64
}

// ForceGC triggers runtime memory reclamation and reports before/after
// deltas, mirroring the explicit-GC-adjacent bookkeeping idiom the storage
// engine uses around its chunk memory pools.
func (g *Governor) ForceGC() GCResult {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	runtime.GC()
	debug.FreeOSMemory()
	runtime.ReadMemStats(&after)

	freed := int64(before.HeapAlloc) - int64(after.HeapAlloc)
	if freed < 0 {
		freed = 0
	}
	collected := int64(after.Frees) - int64(before.Frees)
	return GCResult{BytesFreed: freed, ObjectsCollected: collected}
}

// UsageHistory returns samples taken within the last `window`, oldest first.
func (g *Governor) UsageHistory(window time.Duration) []Usage {
	g.historyMu.Lock()
	defer g.historyMu.Unlock()
	cutoff := time.Now().UTC().Add(-window)
	out := make([]Usage, 0, len(g.history))
	for _, u := range g.history {
		if u.Timestamp.After(cutoff) {
			out = append(out, u)
		}
	}
	return out
}
