// Package performance provides resource monitoring and latency tracking
// for slotpool benchmark runs
package performance

import (
	"context"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

// ResourceMonitor monitors the resources of the current process
type ResourceMonitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
	mu           sync.RWMutex
}

// NewResourceMonitor creates a resource monitor for the current process
func NewResourceMonitor() (*ResourceMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to open process")
	}
	cpuTime, err := proc.Times()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to read process CPU times")
	}

	return &ResourceMonitor{
		process:      proc,
		startCPUTime: cpuTime.Total(),
		startTime:    time.Now(),
	}, nil
}

// GetResourceUsage returns current resource usage. Fields the platform
// cannot report are left zero.
func (rm *ResourceMonitor) GetResourceUsage() (*ResourceUsage, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	usage := &ResourceUsage{}

	// CPU usage since the monitor was created
	cpuTime, err := rm.process.Times()
	if err == nil {
		elapsed := time.Since(rm.startTime).Seconds()
		if elapsed > 0 {
			usage.CPUPercent = ((cpuTime.Total() - rm.startCPUTime) / elapsed) * 100
		}
	}

	memInfo, err := rm.process.MemoryInfo()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to read process memory")
	}
	usage.MemoryRSS = memInfo.RSS
	usage.MemoryVMS = memInfo.VMS

	// System memory
	vmStat, err := mem.VirtualMemory()
	if err == nil {
		usage.SystemMemoryPercent = vmStat.UsedPercent
		usage.SystemMemoryAvailable = vmStat.Available
	}

	usage.GoroutineCount = runtime.NumGoroutine()
	usage.ThreadCount, _ = rm.process.NumThreads()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	usage.HeapAlloc = ms.HeapAlloc

	return usage, nil
}

// ResourceUsage contains resource usage information
type ResourceUsage struct {
	CPUPercent            float64 `json:"cpu_percent"`
	MemoryRSS             uint64  `json:"memory_rss"`
	MemoryVMS             uint64  `json:"memory_vms"`
	HeapAlloc             uint64  `json:"heap_alloc"`
	SystemMemoryPercent   float64 `json:"system_memory_percent"`
	SystemMemoryAvailable uint64  `json:"system_memory_available"`
	GoroutineCount        int     `json:"goroutines"`
	ThreadCount           int32   `json:"threads"`
}

// ResourceSummary aggregates samples taken over a run.
type ResourceSummary struct {
	Samples          int     `json:"samples"`
	PeakRSS          uint64  `json:"peak_rss"`
	PeakHeapAlloc    uint64  `json:"peak_heap_alloc"`
	PeakGoroutines   int     `json:"peak_goroutines"`
	ProcessCPU       float64 `json:"process_cpu_percent"`
	SystemCPUPercent float64 `json:"system_cpu_percent"`
}

// Sample polls the monitor every interval until ctx is done and returns
// the aggregate. It always takes at least one sample.
func (rm *ResourceMonitor) Sample(ctx context.Context, interval time.Duration) ResourceSummary {
	var (
		sum     ResourceSummary
		sysCPU  float64
		sysSeen int
	)
	take := func() {
		usage, err := rm.GetResourceUsage()
		if err != nil {
			return
		}
		sum.Samples++
		sum.ProcessCPU = usage.CPUPercent
		if usage.MemoryRSS > sum.PeakRSS {
			sum.PeakRSS = usage.MemoryRSS
		}
		if usage.HeapAlloc > sum.PeakHeapAlloc {
			sum.PeakHeapAlloc = usage.HeapAlloc
		}
		if usage.GoroutineCount > sum.PeakGoroutines {
			sum.PeakGoroutines = usage.GoroutineCount
		}
		// Interval 0 compares against the previous call.
		if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
			sysCPU += pct[0]
			sysSeen++
		}
	}

	take()
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ticker.C:
				take()
			case <-ctx.Done():
				break loop
			}
		}
		take()
	}
	if sysSeen > 0 {
		sum.SystemCPUPercent = sysCPU / float64(sysSeen)
	}
	return sum
}

// LatencyTracker tracks latency percentiles over the most recent samples
type LatencyTracker struct {
	samples []time.Duration
	next    int
	full    bool
	mu      sync.Mutex
}

// DefaultLatencySamples is the window used when NewLatencyTracker is given
// a non-positive size.
const DefaultLatencySamples = 10000

// NewLatencyTracker creates a latency tracker keeping the last maxSamples
// samples
func NewLatencyTracker(maxSamples int) *LatencyTracker {
	if maxSamples <= 0 {
		maxSamples = DefaultLatencySamples
	}
	return &LatencyTracker{
		samples: make([]time.Duration, 0, maxSamples),
	}
}

// Record records a latency sample
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if !lt.full {
		lt.samples = append(lt.samples, d)
		lt.full = len(lt.samples) == cap(lt.samples)
		return
	}
	lt.samples[lt.next] = d
	lt.next = (lt.next + 1) % len(lt.samples)
}

// Merge adds all samples of other to lt.
func (lt *LatencyTracker) Merge(other *LatencyTracker) {
	other.mu.Lock()
	samples := make([]time.Duration, len(other.samples))
	copy(samples, other.samples)
	other.mu.Unlock()

	for _, d := range samples {
		lt.Record(d)
	}
}

// LatencySummary holds order statistics of the recorded samples.
type LatencySummary struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min_ns"`
	Max   time.Duration `json:"max_ns"`
	Avg   time.Duration `json:"avg_ns"`
	P50   time.Duration `json:"p50_ns"`
	P95   time.Duration `json:"p95_ns"`
	P99   time.Duration `json:"p99_ns"`
}

// Summary returns latency order statistics
func (lt *LatencyTracker) Summary() LatencySummary {
	lt.mu.Lock()
	sorted := make([]time.Duration, len(lt.samples))
	copy(sorted, lt.samples)
	lt.mu.Unlock()

	if len(sorted) == 0 {
		return LatencySummary{}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return LatencySummary{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Avg:   total / time.Duration(len(sorted)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
	}
}

// GetPercentiles returns latency percentiles
func (lt *LatencyTracker) GetPercentiles() (p50, p95, p99 time.Duration) {
	s := lt.Summary()
	return s.P50, s.P95, s.P99
}

// GCStats is the garbage collector activity between two snapshots.
type GCStats struct {
	Cycles       uint32        `json:"cycles"`
	PauseTotal   time.Duration `json:"pause_total_ns"`
	Mallocs      uint64        `json:"mallocs"`
	TotalAlloc   uint64        `json:"total_alloc"`
	HeapAllocEnd uint64        `json:"heap_alloc_end"`
}

// GCSnapshot captures runtime memory statistics so the GC activity of a
// run can be measured.
type GCSnapshot struct {
	stats runtime.MemStats
}

// TakeGCSnapshot reads the current runtime memory statistics
func TakeGCSnapshot() *GCSnapshot {
	s := &GCSnapshot{}
	runtime.ReadMemStats(&s.stats)
	return s
}

// Since returns the GC activity from s to now.
func (s *GCSnapshot) Since() GCStats {
	var now runtime.MemStats
	runtime.ReadMemStats(&now)
	return GCStats{
		Cycles:       now.NumGC - s.stats.NumGC,
		PauseTotal:   time.Duration(now.PauseTotalNs - s.stats.PauseTotalNs),
		Mallocs:      now.Mallocs - s.stats.Mallocs,
		TotalAlloc:   now.TotalAlloc - s.stats.TotalAlloc,
		HeapAllocEnd: now.HeapAlloc,
	}
}
