// Package metrics exports pool statistics and benchmark measurements as
// Prometheus metrics.
//
// # Overview
//
// The metrics package provides:
//   - PoolCollector, a prometheus.Collector reading Stats from a pool on
//     every scrape
//   - BenchMetrics, latency and throughput vectors for workload runs
//   - Dump, which writes any Gatherer in the text exposition format
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	if err := metrics.RegisterPool(reg, "slotpool", p); err != nil {
//	    return err
//	}
//	...
//	metrics.Dump(reg, os.Stdout)
//
// Collectors take a Registerer so tests and the CLI can use private
// registries instead of the global one.
package metrics

import (
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// StatsSource is anything that can report pool statistics. *pool.Pool[T]
// satisfies it for every T.
type StatsSource interface {
	Stats() pool.Stats
}

type statDesc struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(pool.Stats) float64
}

// PoolCollector reports the occupancy and counters of one pool. Values are
// read from the pool when the registry is scraped.
type PoolCollector struct {
	source StatsSource
	stats  []statDesc
}

// NewPoolCollector creates a collector for source. Metric names are
// prefixed with namespace and carry a "pool" label with the pool's name.
func NewPoolCollector(namespace string, source StatsSource) *PoolCollector {
	gauge := func(name, help string, value func(pool.Stats) float64) statDesc {
		return statDesc{
			desc:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", name), help, []string{"pool"}, nil),
			valueType: prometheus.GaugeValue,
			value:     value,
		}
	}
	counter := func(name, help string, value func(pool.Stats) float64) statDesc {
		sd := gauge(name, help, value)
		sd.valueType = prometheus.CounterValue
		return sd
	}

	return &PoolCollector{
		source: source,
		stats: []statDesc{
			gauge("pages", "Number of pages owned by the pool",
				func(s pool.Stats) float64 { return float64(s.Pages) }),
			gauge("capacity_slots", "Total slots across all pages",
				func(s pool.Stats) float64 { return float64(s.Capacity) }),
			gauge("live_slots", "Slots currently holding a value",
				func(s pool.Stats) float64 { return float64(s.Live) }),
			gauge("free_slots", "Slots on the free list",
				func(s pool.Stats) float64 { return float64(s.Free) }),
			gauge("unused_slots", "Slots never handed out",
				func(s pool.Stats) float64 { return float64(s.Unused) }),
			gauge("guards", "Outstanding guards",
				func(s pool.Stats) float64 { return float64(s.Guards) }),
			counter("allocations_total", "Slots handed out",
				func(s pool.Stats) float64 { return float64(s.Allocs) }),
			counter("frees_total", "Slots returned",
				func(s pool.Stats) float64 { return float64(s.Frees) }),
			counter("reuses_total", "Allocations served from the free list",
				func(s pool.Stats) float64 { return float64(s.Reuses) }),
			counter("page_grows_total", "Pages added after the first",
				func(s pool.Stats) float64 { return float64(s.Grows) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, sd := range c.stats {
		ch <- sd.desc
	}
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.Stats()
	for _, sd := range c.stats {
		ch <- prometheus.MustNewConstMetric(sd.desc, sd.valueType, sd.value(st), st.Name)
	}
}

// RegisterPool registers a PoolCollector for source on reg.
func RegisterPool(reg prometheus.Registerer, namespace string, source StatsSource) error {
	if err := reg.Register(NewPoolCollector(namespace, source)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to register pool collector").
			WithDetail("pool", source.Stats().Name)
	}
	return nil
}

// BenchMetrics holds the measurements of workload runs, labelled by mode.
type BenchMetrics struct {
	// OpLatency is the distribution of sampled alloc/free cycle latencies
	OpLatency *prometheus.HistogramVec
	// Cycles counts completed alloc/free cycles
	Cycles *prometheus.CounterVec
	// Throughput is the cycles per second of the last run
	Throughput *prometheus.GaugeVec
}

// NewBenchMetrics creates and registers the benchmark vectors on reg.
func NewBenchMetrics(reg prometheus.Registerer, namespace string) *BenchMetrics {
	factory := promauto.With(reg)
	return &BenchMetrics{
		OpLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bench",
				Name:      "cycle_latency_nanoseconds",
				Help:      "Latency of one alloc/free cycle in nanoseconds",
				Buckets: []float64{
					25,    // uncontended fast path
					100,   // 100ns
					1000,  // 1μs - contended lock
					10000, // 10μs - page growth
					1e5,   // 100μs
					1e6,   // 1ms - scheduler stalls
				},
			},
			[]string{"mode"},
		),
		Cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bench",
				Name:      "cycles_total",
				Help:      "Completed alloc/free cycles",
			},
			[]string{"mode"},
		),
		Throughput: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bench",
				Name:      "throughput_cycles_per_second",
				Help:      "Alloc/free cycles per second of the last run",
			},
			[]string{"mode"},
		),
	}
}

// Dump writes every metric family gathered from g to w in the Prometheus
// text exposition format.
func Dump(g prometheus.Gatherer, w io.Writer) error {
	families, err := g.Gather()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to gather metrics")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write metrics").
				WithDetail("family", mf.GetName())
		}
	}
	return nil
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks cycles per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Cycles since last reset
	lastReset time.Time // Time of last reset
	gauge     prometheus.Gauge
}

// NewThroughputTracker creates a tracker that publishes to gauge on every
// GetAndReset. gauge may be nil.
func NewThroughputTracker(gauge prometheus.Gauge) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		gauge:     gauge,
	}
}

// Increment adds n to the cycle count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset calculates the current throughput (cycles/second),
// updates the gauge, resets the counter, and returns the calculated
// throughput. Safe for concurrent use.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	if t.gauge != nil {
		t.gauge.Set(throughput)
	}

	return throughput
}
