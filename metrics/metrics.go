// Package metrics bridges the processor's, governor's, and rate limiter's
// in-memory counters into Prometheus collectors, alongside the
// control-plane's own JSON snapshot endpoints.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lordpython/videoforge/governor"
	"github.com/lordpython/videoforge/processor"
	"github.com/lordpython/videoforge/ratelimit"
)

// Collector implements prometheus.Collector by sampling the processor,
// governor, and rate limiter on every scrape rather than maintaining its
// own duplicate counters.
type Collector struct {
	proc    *processor.Processor
	gov     *governor.Governor
	limiter *ratelimit.Limiter

	totalProcessed   *prometheus.Desc
	totalFailed      *prometheus.Desc
	totalQueued      *prometheus.Desc
	currentActive    *prometheus.Desc
	currentQueueSize *prometheus.Desc
	peakConcurrent   *prometheus.Desc
	avgProcessingSec *prometheus.Desc

	cpuPercent  *prometheus.Desc
	memPercent  *prometheus.Desc
	diskPercent *prometheus.Desc

	serviceRateLimited *prometheus.Desc
	serviceCircuitOpen *prometheus.Desc
}

// New constructs a Collector. Register it with a prometheus.Registry (or
// prometheus.MustRegister on the default one) before serving /metrics.
func New(proc *processor.Processor, gov *governor.Governor, limiter *ratelimit.Limiter) *Collector {
	ns := "videoforge"
	return &Collector{
		proc:    proc,
		gov:     gov,
		limiter: limiter,

		totalProcessed:   prometheus.NewDesc(ns+"_sessions_processed_total", "Total sessions completed successfully.", nil, nil),
		totalFailed:      prometheus.NewDesc(ns+"_sessions_failed_total", "Total sessions that ended in failure.", nil, nil),
		totalQueued:      prometheus.NewDesc(ns+"_sessions_queued_total", "Total sessions ever admitted to the queue.", nil, nil),
		currentActive:    prometheus.NewDesc(ns+"_sessions_active", "Sessions currently being processed.", nil, nil),
		currentQueueSize: prometheus.NewDesc(ns+"_queue_size", "Sessions currently waiting admission.", nil, nil),
		peakConcurrent:   prometheus.NewDesc(ns+"_peak_concurrency", "Highest observed concurrently-active session count.", nil, nil),
		avgProcessingSec: prometheus.NewDesc(ns+"_avg_processing_seconds", "Mean wall-clock seconds per completed session.", nil, nil),

		cpuPercent:  prometheus.NewDesc(ns+"_host_cpu_percent", "Most recent sampled host CPU utilization.", nil, nil),
		memPercent:  prometheus.NewDesc(ns+"_host_memory_percent", "Most recent sampled host memory utilization.", nil, nil),
		diskPercent: prometheus.NewDesc(ns+"_host_disk_percent", "Most recent sampled host disk utilization.", nil, nil),

		serviceRateLimited: prometheus.NewDesc(ns+"_ratelimit_rejections_last_hour", "Rate-limited call attempts in the trailing hour, by service.", []string{"service"}, nil),
		serviceCircuitOpen: prometheus.NewDesc(ns+"_circuit_open", "1 if the service's circuit breaker is open, else 0.", []string{"service"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalProcessed
	ch <- c.totalFailed
	ch <- c.totalQueued
	ch <- c.currentActive
	ch <- c.currentQueueSize
	ch <- c.peakConcurrent
	ch <- c.avgProcessingSec
	ch <- c.cpuPercent
	ch <- c.memPercent
	ch <- c.diskPercent
	ch <- c.serviceRateLimited
	ch <- c.serviceCircuitOpen
}

// Collect implements prometheus.Collector, sampling live state on each call.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.proc.Metrics()
	ch <- prometheus.MustNewConstMetric(c.totalProcessed, prometheus.CounterValue, float64(m.TotalProcessed))
	ch <- prometheus.MustNewConstMetric(c.totalFailed, prometheus.CounterValue, float64(m.TotalFailed))
	ch <- prometheus.MustNewConstMetric(c.totalQueued, prometheus.CounterValue, float64(m.TotalQueued))
	ch <- prometheus.MustNewConstMetric(c.currentActive, prometheus.GaugeValue, float64(m.CurrentActive))
	ch <- prometheus.MustNewConstMetric(c.currentQueueSize, prometheus.GaugeValue, float64(m.CurrentQueueSize))
	ch <- prometheus.MustNewConstMetric(c.peakConcurrent, prometheus.GaugeValue, float64(m.PeakConcurrent))
	ch <- prometheus.MustNewConstMetric(c.avgProcessingSec, prometheus.GaugeValue, m.AvgProcessingSeconds)

	usage := c.gov.CurrentUsage()
	ch <- prometheus.MustNewConstMetric(c.cpuPercent, prometheus.GaugeValue, usage.CPUPercent)
	ch <- prometheus.MustNewConstMetric(c.memPercent, prometheus.GaugeValue, usage.MemPercent)
	ch <- prometheus.MustNewConstMetric(c.diskPercent, prometheus.GaugeValue, usage.DiskPercent)

	stats := c.limiter.Statistics()
	for name, s := range stats.PerService {
		ch <- prometheus.MustNewConstMetric(c.serviceRateLimited, prometheus.GaugeValue, float64(s.RateLimited), name)
		open := 0.0
		if s.CircuitOpen {
			open = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.serviceCircuitOpen, prometheus.GaugeValue, open, name)
	}
}
