package performance

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyTrackerSummary(t *testing.T) {
	lt := NewLatencyTracker(1000)
	for i := 100; i >= 1; i-- {
		lt.Record(time.Duration(i) * time.Microsecond)
	}

	s := lt.Summary()
	assert.Equal(t, 100, s.Count)
	assert.Equal(t, time.Microsecond, s.Min)
	assert.Equal(t, 100*time.Microsecond, s.Max)
	assert.Equal(t, 51*time.Microsecond, s.P50)
	assert.Equal(t, 96*time.Microsecond, s.P95)
	assert.Equal(t, 100*time.Microsecond, s.P99)
	assert.Equal(t, 50500*time.Nanosecond, s.Avg)

	p50, p95, p99 := lt.GetPercentiles()
	assert.Equal(t, s.P50, p50)
	assert.Equal(t, s.P95, p95)
	assert.Equal(t, s.P99, p99)
}

func TestLatencyTrackerWindow(t *testing.T) {
	lt := NewLatencyTracker(3)
	for i := 1; i <= 5; i++ {
		lt.Record(time.Duration(i))
	}
	s := lt.Summary()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, time.Duration(3), s.Min)
	assert.Equal(t, time.Duration(5), s.Max)
}

func TestLatencyTrackerEmpty(t *testing.T) {
	assert.Equal(t, LatencySummary{}, NewLatencyTracker(0).Summary())
}

func TestLatencyTrackerMergeConcurrent(t *testing.T) {
	total := NewLatencyTracker(0)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := NewLatencyTracker(100)
			for i := 0; i < 100; i++ {
				local.Record(time.Duration(i))
			}
			total.Merge(local)
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, total.Summary().Count)
}

func TestResourceMonitor(t *testing.T) {
	rm, err := NewResourceMonitor()
	require.NoError(t, err)

	usage, err := rm.GetResourceUsage()
	require.NoError(t, err)
	assert.Greater(t, usage.MemoryRSS, uint64(0))
	assert.Greater(t, usage.GoroutineCount, 0)
	assert.Greater(t, usage.HeapAlloc, uint64(0))
}

func TestResourceMonitorSample(t *testing.T) {
	rm, err := NewResourceMonitor()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sum := rm.Sample(ctx, 10*time.Millisecond)
	assert.GreaterOrEqual(t, sum.Samples, 2)
	assert.Greater(t, sum.PeakRSS, uint64(0))
	assert.Greater(t, sum.PeakGoroutines, 0)
}

func TestResourceMonitorSampleOnce(t *testing.T) {
	rm, err := NewResourceMonitor()
	require.NoError(t, err)
	assert.Equal(t, 1, rm.Sample(context.Background(), 0).Samples)
}

func TestGCSnapshot(t *testing.T) {
	snap := TakeGCSnapshot()
	sink := make([][]byte, 0, 64)
	for i := 0; i < 64; i++ {
		sink = append(sink, make([]byte, 4096))
	}
	runtime.GC()
	runtime.KeepAlive(sink)

	st := snap.Since()
	assert.GreaterOrEqual(t, st.Cycles, uint32(1))
	assert.Greater(t, st.Mallocs, uint64(0))
	assert.Greater(t, st.TotalAlloc, uint64(64*4096-1))
}
