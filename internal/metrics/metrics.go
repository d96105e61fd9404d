// Package metrics adapts the teacher's Prometheus + gopsutil metrics
// object to this server's domain: DNS-engine counters keyed by opcode/
// rcode/result, plus the same process-level gopsutil gauges the teacher
// collected. Every cache-specific gauge (probation/protected size, top
// NXDOMAIN/latency domains) is dropped since there is no answer cache
// here (Non-goal).
package metrics

import (
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var (
	promQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authdns_queries_total",
		Help: "Total number of requests received, by opcode",
	}, []string{"opcode"})
	promResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authdns_responses_total",
		Help: "Total number of responses sent, by rcode",
	}, []string{"rcode"})
	promUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authdns_updates_total",
		Help: "Total number of UPDATE requests processed, by result",
	}, []string{"result"})
	promAXFRTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authdns_axfr_total",
		Help: "Total number of AXFR transfers, by result",
	}, []string{"result"})
	promNotifySent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authdns_notify_sent_total",
		Help: "Total number of NOTIFY fan-outs started after successful UPDATEs",
	})

	promCPUUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authdns_cpu_usage_percent",
		Help: "Current system-wide CPU usage percentage",
	})
	promMemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authdns_memory_usage_percent",
		Help: "Current system memory usage percentage",
	})
	promGoroutineCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authdns_goroutine_count",
		Help: "Current number of goroutines",
	})
)

// Metrics collects the counters above; it has no mutable state of its
// own beyond the background collector goroutine, since the Prometheus
// vectors are themselves safe for concurrent use.
type Metrics struct {
	once sync.Once
}

// New returns a Metrics instance and starts its background process-
// gauge collector.
func New() *Metrics {
	m := &Metrics{}
	m.once.Do(func() {
		go m.collectSystemMetrics()
	})
	return m
}

// RecordQuery increments the per-opcode request counter.
func (m *Metrics) RecordQuery(opcode string) {
	promQueriesTotal.WithLabelValues(opcode).Inc()
}

// RecordResponse increments the per-rcode response counter.
func (m *Metrics) RecordResponse(rcode string) {
	promResponsesTotal.WithLabelValues(rcode).Inc()
}

// RecordUpdate increments the UPDATE result counter (e.g. "noerror",
// "formerr", "notauth").
func (m *Metrics) RecordUpdate(result string) {
	promUpdatesTotal.WithLabelValues(result).Inc()
}

// RecordAXFR increments the AXFR result counter ("success" or
// "aborted").
func (m *Metrics) RecordAXFR(result string) {
	promAXFRTotal.WithLabelValues(result).Inc()
}

// RecordNotifySent increments the NOTIFY counter; the server calls it
// once per NOTIFY fan-out, not once per datagram.
func (m *Metrics) RecordNotifySent() {
	promNotifySent.Inc()
}

func (m *Metrics) collectSystemMetrics() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
			promCPUUsage.Set(pct[0])
		} else if err != nil {
			log.Printf("metrics: cpu.Percent: %v", err)
		}

		if info, err := mem.VirtualMemory(); err == nil {
			promMemoryUsage.Set(info.UsedPercent)
		} else {
			log.Printf("metrics: mem.VirtualMemory: %v", err)
		}

		promGoroutineCount.Set(float64(runtime.NumGoroutine()))
	}
}
